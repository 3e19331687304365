package condition

import (
	"reflect"
	"testing"
	"time"

	"go.mongodb.org/mongo-driver/bson"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name     string
		key      string
		value    interface{}
		wantPath []string
		wantOp   Op
		wantErr  bool
	}{
		{
			name:     "Bare field is exact match",
			key:      "status",
			value:    "New",
			wantPath: []string{"status"},
			wantOp:   OpExact,
		},
		{
			name:     "Operator suffix",
			key:      "budget_min__gte",
			value:    500000,
			wantPath: []string{"budget_min"},
			wantOp:   OpGte,
		},
		{
			name:     "Lookup traversal with operator",
			key:      "property_type__name__in",
			value:    []interface{}{"Villa"},
			wantPath: []string{"property_type", "name"},
			wantOp:   OpIn,
		},
		{
			name:     "Trailing segment that is not an operator stays in the path",
			key:      "assigned_to__team",
			value:    "north",
			wantPath: []string{"assigned_to", "team"},
			wantOp:   OpExact,
		},
		{
			name:    "In without a list is rejected",
			key:     "status__in",
			value:   "New",
			wantErr: true,
		},
		{
			name:    "Empty segment is rejected",
			key:     "status____gte",
			value:   1,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Parse(tt.key, tt.value)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("Parse(%q) expected error, got %+v", tt.key, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("Parse(%q) unexpected error: %v", tt.key, err)
			}
			if !reflect.DeepEqual(got.Path, tt.wantPath) {
				t.Errorf("Parse(%q) path = %v, want %v", tt.key, got.Path, tt.wantPath)
			}
			if got.Op != tt.wantOp {
				t.Errorf("Parse(%q) op = %v, want %v", tt.key, got.Op, tt.wantOp)
			}
		})
	}
}

func TestParseMapSortsByField(t *testing.T) {
	conds, err := ParseMap(map[string]interface{}{
		"score__gte": 50,
		"budget_min": 100,
		"full_name":  "Omar",
		"region__in": []interface{}{"Downtown"},
	})
	if err != nil {
		t.Fatalf("ParseMap unexpected error: %v", err)
	}

	var fields []string
	for _, c := range conds {
		fields = append(fields, c.Field())
	}
	want := []string{"budget_min", "full_name", "region", "score"}
	if !reflect.DeepEqual(fields, want) {
		t.Errorf("ParseMap order = %v, want %v", fields, want)
	}
}

func TestCompile(t *testing.T) {
	tests := []struct {
		name string
		cond Condition
		want bson.M
	}{
		{
			name: "Exact",
			cond: Condition{Path: []string{"status"}, Op: OpExact, Value: "New"},
			want: bson.M{"status": bson.M{"$eq": "New"}},
		},
		{
			name: "In on a lookup path",
			cond: Condition{Path: []string{"property_type", "name"}, Op: OpIn, Value: []interface{}{"Villa"}},
			want: bson.M{"property_type.name": bson.M{"$in": []interface{}{"Villa"}}},
		},
		{
			name: "Gte",
			cond: Condition{Path: []string{"budget_min"}, Op: OpGte, Value: 500000},
			want: bson.M{"budget_min": bson.M{"$gte": 500000}},
		},
		{
			name: "Year uses an aggregation expression",
			cond: Condition{Path: []string{"created_at"}, Op: OpYear, Value: 2026},
			want: bson.M{"$expr": bson.M{"$eq": bson.A{bson.M{"$year": "$created_at"}, 2026}}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.cond.Compile()
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Compile() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCompileAll(t *testing.T) {
	single := []Condition{{Path: []string{"status"}, Op: OpExact, Value: "New"}}
	if got := CompileAll(single); !reflect.DeepEqual(got, bson.M{"status": bson.M{"$eq": "New"}}) {
		t.Errorf("single condition should compile without $and, got %v", got)
	}

	two := append(single, Condition{Path: []string{"score"}, Op: OpGt, Value: 50})
	got := CompileAll(two)
	parts, ok := got["$and"].([]bson.M)
	if !ok || len(parts) != 2 {
		t.Fatalf("two conditions should compile to a two-part $and, got %v", got)
	}
}

func TestNegate(t *testing.T) {
	conds := []Condition{{Path: []string{"status"}, Op: OpExact, Value: "Lost"}}
	got := Negate(conds)
	want := bson.M{"$nor": []bson.M{{"status": bson.M{"$eq": "Lost"}}}}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Negate() = %v, want %v", got, want)
	}

	if got := Negate(nil); len(got) != 0 {
		t.Errorf("Negate(nil) should match everything, got %v", got)
	}
}

func TestMatches(t *testing.T) {
	record := map[string]interface{}{
		"full_name":  "Omar Haddad",
		"score":      int32(82),
		"budget_min": 1500000,
		"property_type": map[string]interface{}{
			"name": "Office",
		},
		"created_at": time.Date(2026, time.March, 14, 10, 0, 0, 0, time.UTC),
	}

	tests := []struct {
		name string
		key  string
		val  interface{}
		want bool
	}{
		{"Exact hit", "full_name", "Omar Haddad", true},
		{"Exact miss", "full_name", "Lena", false},
		{"Icontains is case-insensitive", "full_name__icontains", "haddad", true},
		{"Startswith", "full_name__startswith", "Omar", true},
		{"Endswith miss", "full_name__endswith", "Omar", false},
		{"Numeric types compare loosely", "score__gte", 82.0, true},
		{"Gt strict", "score__gt", 82, false},
		{"In on nested lookup", "property_type__name__in", []interface{}{"Office", "Retail"}, true},
		{"In miss", "property_type__name__in", []interface{}{"Villa"}, false},
		{"Year", "created_at__year", 2026, true},
		{"Month miss", "created_at__month", 4, false},
		{"Day", "created_at__day", 14, true},
		{"Missing attribute never matches", "region", "Downtown", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cond, err := Parse(tt.key, tt.val)
			if err != nil {
				t.Fatalf("Parse(%q) unexpected error: %v", tt.key, err)
			}
			if got := cond.Matches(record); got != tt.want {
				t.Errorf("Matches(%q=%v) = %v, want %v", tt.key, tt.val, got, tt.want)
			}
		})
	}
}

func TestMatchesAll(t *testing.T) {
	record := map[string]interface{}{"status": "New", "score": 60}

	both, err := ParseMap(map[string]interface{}{"status": "New", "score__gte": 50})
	if err != nil {
		t.Fatalf("ParseMap unexpected error: %v", err)
	}
	if !MatchesAll(both, record) {
		t.Error("conjunction with both conditions true should match")
	}

	one, err := ParseMap(map[string]interface{}{"status": "New", "score__gte": 90})
	if err != nil {
		t.Fatalf("ParseMap unexpected error: %v", err)
	}
	if MatchesAll(one, record) {
		t.Error("conjunction with a failing condition should not match")
	}

	if !MatchesAll(nil, record) {
		t.Error("empty conjunction should match everything")
	}
}
