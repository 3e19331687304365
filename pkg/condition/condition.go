// Package condition parses the predicate-map grammar used by data filters,
// data scopes and dropdown restrictions, and renders parsed predicates either
// as Mongo filters or as in-memory checks against loaded records.
//
// A key is `name(__segment)*` where intermediate segments traverse nested
// attributes and the final segment may be one of a fixed operator set
// (`budget_min__gte`, `property_type__name__in`). A key without an operator
// suffix means exact match.
package condition

import (
	"fmt"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

type Op string

const (
	OpExact      Op = "exact"
	OpIContains  Op = "icontains"
	OpStartsWith Op = "startswith"
	OpEndsWith   Op = "endswith"
	OpIn         Op = "in"
	OpGt         Op = "gt"
	OpGte        Op = "gte"
	OpLt         Op = "lt"
	OpLte        Op = "lte"
	OpYear       Op = "year"
	OpMonth      Op = "month"
	OpDay        Op = "day"
)

var operators = map[string]Op{
	"exact": OpExact, "icontains": OpIContains, "startswith": OpStartsWith,
	"endswith": OpEndsWith, "in": OpIn, "gt": OpGt, "gte": OpGte,
	"lt": OpLt, "lte": OpLte, "year": OpYear, "month": OpMonth, "day": OpDay,
}

// Condition is one parsed predicate: an attribute path plus an operator.
// The parsed form is persisted alongside the raw conditions map so malformed
// policies are rejected at write time and the engine stays store-agnostic.
type Condition struct {
	Path  []string    `bson:"path" json:"path"`
	Op    Op          `bson:"op" json:"op"`
	Value interface{} `bson:"value" json:"value"`
}

// Field returns the dotted attribute path of the condition.
func (c Condition) Field() string {
	return strings.Join(c.Path, ".")
}

// Parse splits one raw `name__segment__op` key into a Condition.
func Parse(key string, value interface{}) (Condition, error) {
	segments := strings.Split(key, "__")
	if len(segments) == 0 || segments[0] == "" {
		return Condition{}, fmt.Errorf("condition key %q has an empty attribute path", key)
	}
	op := OpExact
	if len(segments) > 1 {
		if known, ok := operators[segments[len(segments)-1]]; ok {
			op = known
			segments = segments[:len(segments)-1]
		}
	}
	for _, s := range segments {
		if s == "" {
			return Condition{}, fmt.Errorf("condition key %q has an empty path segment", key)
		}
	}
	if op == OpIn {
		if _, ok := asSlice(value); !ok {
			return Condition{}, fmt.Errorf("condition key %q: 'in' requires a list value", key)
		}
	}
	return Condition{Path: segments, Op: op, Value: value}, nil
}

// ParseMap parses a whole conditions map into a predicate conjunction.
// Iteration order of the source map does not matter for semantics; the
// result is sorted by field for stable persistence.
func ParseMap(conds map[string]interface{}) ([]Condition, error) {
	parsed := make([]Condition, 0, len(conds))
	for key, value := range conds {
		c, err := Parse(key, value)
		if err != nil {
			return nil, err
		}
		parsed = append(parsed, c)
	}
	for i := 1; i < len(parsed); i++ {
		for j := i; j > 0 && parsed[j].Field() < parsed[j-1].Field(); j-- {
			parsed[j], parsed[j-1] = parsed[j-1], parsed[j]
		}
	}
	return parsed, nil
}

// Compile renders the condition as a Mongo filter fragment.
func (c Condition) Compile() bson.M {
	field := c.Field()
	switch c.Op {
	case OpExact:
		return bson.M{field: bson.M{"$eq": c.Value}}
	case OpIContains:
		return bson.M{field: bson.M{"$regex": primitive.Regex{Pattern: RegexEscape(toString(c.Value)), Options: "i"}}}
	case OpStartsWith:
		return bson.M{field: bson.M{"$regex": primitive.Regex{Pattern: "^" + RegexEscape(toString(c.Value))}}}
	case OpEndsWith:
		return bson.M{field: bson.M{"$regex": primitive.Regex{Pattern: RegexEscape(toString(c.Value)) + "$"}}}
	case OpIn:
		return bson.M{field: bson.M{"$in": c.Value}}
	case OpGt:
		return bson.M{field: bson.M{"$gt": c.Value}}
	case OpGte:
		return bson.M{field: bson.M{"$gte": c.Value}}
	case OpLt:
		return bson.M{field: bson.M{"$lt": c.Value}}
	case OpLte:
		return bson.M{field: bson.M{"$lte": c.Value}}
	case OpYear:
		return dateExpr("$year", field, c.Value)
	case OpMonth:
		return dateExpr("$month", field, c.Value)
	case OpDay:
		return dateExpr("$dayOfMonth", field, c.Value)
	}
	// Parse never produces other ops; match nothing rather than everything.
	return bson.M{"_id": bson.M{"$exists": false}}
}

func dateExpr(mongoOp, field string, value interface{}) bson.M {
	return bson.M{"$expr": bson.M{"$eq": bson.A{bson.M{mongoOp: "$" + field}, value}}}
}

// CompileAll renders a conjunction of conditions as one Mongo filter.
func CompileAll(conds []Condition) bson.M {
	switch len(conds) {
	case 0:
		return bson.M{}
	case 1:
		return conds[0].Compile()
	}
	parts := make([]bson.M, 0, len(conds))
	for _, c := range conds {
		parts = append(parts, c.Compile())
	}
	return bson.M{"$and": parts}
}

// Negate renders the negation of a conjunction ("none of these hold").
func Negate(conds []Condition) bson.M {
	if len(conds) == 0 {
		return bson.M{}
	}
	return bson.M{"$nor": []bson.M{CompileAll(conds)}}
}

// Matches evaluates the condition against an in-memory record. Used for
// conditional field visibility and dropdown predicates, which apply to
// records that are already loaded.
func (c Condition) Matches(record map[string]interface{}) bool {
	value, ok := walk(record, c.Path)
	if !ok {
		return false
	}
	switch c.Op {
	case OpExact:
		return looseEqual(value, c.Value)
	case OpIContains:
		return strings.Contains(strings.ToLower(toString(value)), strings.ToLower(toString(c.Value)))
	case OpStartsWith:
		return strings.HasPrefix(toString(value), toString(c.Value))
	case OpEndsWith:
		return strings.HasSuffix(toString(value), toString(c.Value))
	case OpIn:
		items, _ := asSlice(c.Value)
		for _, item := range items {
			if looseEqual(value, item) {
				return true
			}
		}
		return false
	case OpGt, OpGte, OpLt, OpLte:
		return compareOrdered(value, c.Value, c.Op)
	case OpYear, OpMonth, OpDay:
		return matchDatePart(value, c.Value, c.Op)
	}
	return false
}

// MatchesAll reports whether every condition of the conjunction holds.
func MatchesAll(conds []Condition, record map[string]interface{}) bool {
	for _, c := range conds {
		if !c.Matches(record) {
			return false
		}
	}
	return true
}

func walk(record map[string]interface{}, path []string) (interface{}, bool) {
	var current interface{} = record
	for _, segment := range path {
		m, ok := current.(map[string]interface{})
		if !ok {
			if bm, isBson := current.(bson.M); isBson {
				m = map[string]interface{}(bm)
			} else {
				return nil, false
			}
		}
		current, ok = m[segment]
		if !ok {
			return nil, false
		}
	}
	return current, true
}

func looseEqual(a, b interface{}) bool {
	if fa, aok := asFloat(a); aok {
		if fb, bok := asFloat(b); bok {
			return fa == fb
		}
	}
	return toString(a) == toString(b)
}

func compareOrdered(value, bound interface{}, op Op) bool {
	fv, vok := asFloat(value)
	fb, bok := asFloat(bound)
	var cmp int
	if vok && bok {
		switch {
		case fv < fb:
			cmp = -1
		case fv > fb:
			cmp = 1
		}
	} else if tv, tok := asTime(value); tok {
		if tb, tbok := asTime(bound); tbok {
			switch {
			case tv.Before(tb):
				cmp = -1
			case tv.After(tb):
				cmp = 1
			}
		} else {
			return false
		}
	} else {
		cmp = strings.Compare(toString(value), toString(bound))
	}
	switch op {
	case OpGt:
		return cmp > 0
	case OpGte:
		return cmp >= 0
	case OpLt:
		return cmp < 0
	case OpLte:
		return cmp <= 0
	}
	return false
}

func matchDatePart(value, want interface{}, op Op) bool {
	t, ok := asTime(value)
	if !ok {
		return false
	}
	n, ok := asFloat(want)
	if !ok {
		return false
	}
	switch op {
	case OpYear:
		return t.Year() == int(n)
	case OpMonth:
		return int(t.Month()) == int(n)
	case OpDay:
		return t.Day() == int(n)
	}
	return false
}

func asFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}

func asTime(v interface{}) (time.Time, bool) {
	switch t := v.(type) {
	case time.Time:
		return t, true
	case primitive.DateTime:
		return t.Time(), true
	case string:
		if parsed, err := time.Parse(time.RFC3339, t); err == nil {
			return parsed, true
		}
		if parsed, err := time.Parse("2006-01-02", t); err == nil {
			return parsed, true
		}
	}
	return time.Time{}, false
}

func asSlice(v interface{}) ([]interface{}, bool) {
	switch s := v.(type) {
	case []interface{}:
		return s, true
	case bson.A:
		return []interface{}(s), true
	case []string:
		items := make([]interface{}, len(s))
		for i, item := range s {
			items[i] = item
		}
		return items, true
	}
	return nil, false
}

func toString(v interface{}) string {
	if v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}

// RegexEscape quotes the characters Mongo's regex engine treats as special,
// so user-supplied text can be embedded in a $regex pattern verbatim.
func RegexEscape(s string) string {
	special := `\.+*?()|[]{}^$`
	var b strings.Builder
	for _, r := range s {
		if strings.ContainsRune(special, r) {
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}
