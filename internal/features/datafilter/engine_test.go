package datafilter

import (
	"context"
	"math/rand"
	"reflect"
	"testing"

	common_models "estate-crm/internal/common/models"
	"estate-crm/internal/registry"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

type fakeFilterRepo struct {
	filters []DataFilter
	saved   []DataFilter
}

func (f *fakeFilterRepo) EnsureIndexes(ctx context.Context) error { return nil }

func (f *fakeFilterRepo) Save(ctx context.Context, filter *DataFilter) error {
	f.saved = append(f.saved, *filter)
	return nil
}

func (f *fakeFilterRepo) FindActive(ctx context.Context, profileID primitive.ObjectID, moduleName, modelName string) ([]DataFilter, error) {
	var out []DataFilter
	for _, df := range f.filters {
		if df.ProfileID == profileID && df.ModuleName == moduleName && df.ModelName == modelName && df.Active {
			out = append(out, df)
		}
	}
	return out, nil
}

func (f *fakeFilterRepo) FindByProfileID(ctx context.Context, profileID primitive.ObjectID) ([]DataFilter, error) {
	return f.filters, nil
}

func (f *fakeFilterRepo) Delete(ctx context.Context, id string) error { return nil }

func (f *fakeFilterRepo) DeleteByProfileID(ctx context.Context, profileID primitive.ObjectID) error {
	return nil
}

func newTestService(repo *fakeFilterRepo) *DataFilterServiceImpl {
	return &DataFilterServiceImpl{
		FilterRepo: repo,
		Registry:   registry.Default(),
		Log:        zap.NewNop(),
	}
}

func principalWithProfile(profileID primitive.ObjectID) *common_models.Principal {
	return &common_models.Principal{
		UserID:    primitive.NewObjectID().Hex(),
		Active:    true,
		ProfileID: profileID.Hex(),
	}
}

func TestSaveRejectsMalformedFilters(t *testing.T) {
	repo := &fakeFilterRepo{}
	service := newTestService(repo)
	profileID := primitive.NewObjectID()

	tests := []struct {
		name    string
		filter  DataFilter
		wantErr bool
	}{
		{
			name: "Valid include filter",
			filter: DataFilter{
				ProfileID:  profileID,
				ModuleName: "property",
				ModelName:  "Property",
				Name:       "Commercial only",
				Kind:       KindInclude,
				Conditions: map[string]interface{}{
					"property_type__name__in": []interface{}{"Commercial", "Office"},
				},
			},
		},
		{
			name: "Unknown record type",
			filter: DataFilter{
				ProfileID:  profileID,
				ModuleName: "property",
				ModelName:  "Nope",
				Kind:       KindInclude,
				Conditions: map[string]interface{}{"status": "Available"},
			},
			wantErr: true,
		},
		{
			name: "Unknown attribute path",
			filter: DataFilter{
				ProfileID:  profileID,
				ModuleName: "leads",
				ModelName:  "Lead",
				Kind:       KindInclude,
				Conditions: map[string]interface{}{"no_such_field__gte": 1},
			},
			wantErr: true,
		},
		{
			name: "In without a list",
			filter: DataFilter{
				ProfileID:  profileID,
				ModuleName: "leads",
				ModelName:  "Lead",
				Kind:       KindInclude,
				Conditions: map[string]interface{}{"status__in": "New"},
			},
			wantErr: true,
		},
		{
			name: "Invalid kind",
			filter: DataFilter{
				ProfileID:  profileID,
				ModuleName: "leads",
				ModelName:  "Lead",
				Kind:       Kind("everything"),
				Conditions: map[string]interface{}{"status": "New"},
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := service.Save(context.Background(), &tt.filter)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if len(tt.filter.Parsed) == 0 {
				t.Error("Save should persist the parsed conditions")
			}
		})
	}
}

func TestApplyNarrowsForProfile(t *testing.T) {
	profileID := primitive.NewObjectID()
	repo := &fakeFilterRepo{
		filters: []DataFilter{
			{
				ProfileID:  profileID,
				ModuleName: "property",
				ModelName:  "Property",
				Name:       "Commercial inventory only",
				Kind:       KindInclude,
				Conditions: map[string]interface{}{
					"property_type__name__in": []interface{}{"Commercial", "Office", "Retail", "Warehouse"},
				},
				Active: true,
			},
		},
	}
	service := newTestService(repo)

	got, err := service.Apply(context.Background(), principalWithProfile(profileID), "property", "Property", bson.M{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := bson.M{"property_type.name": bson.M{"$in": []interface{}{"Commercial", "Office", "Retail", "Warehouse"}}}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Apply() = %v, want %v", got, want)
	}
}

func TestApplyMergesWithBaseQuery(t *testing.T) {
	profileID := primitive.NewObjectID()
	repo := &fakeFilterRepo{
		filters: []DataFilter{
			{
				ProfileID:  profileID,
				ModuleName: "leads",
				ModelName:  "Lead",
				Name:       "High budget",
				Kind:       KindInclude,
				Conditions: map[string]interface{}{"budget_min__gte": 1000000},
				Active:     true,
			},
		},
	}
	service := newTestService(repo)

	base := bson.M{"status": "New"}
	got, err := service.Apply(context.Background(), principalWithProfile(profileID), "leads", "Lead", base)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	parts, ok := got["$and"].([]bson.M)
	if !ok || len(parts) != 2 {
		t.Fatalf("base and filters should combine under $and, got %v", got)
	}
	if !reflect.DeepEqual(parts[0], base) {
		t.Errorf("first $and part should be the base query, got %v", parts[0])
	}
}

func TestApplyORsMultipleFiltersAndNegatesExcludes(t *testing.T) {
	profileID := primitive.NewObjectID()
	repo := &fakeFilterRepo{
		filters: []DataFilter{
			{
				ProfileID:  profileID,
				ModuleName: "leads",
				ModelName:  "Lead",
				Name:       "Hot leads",
				Kind:       KindInclude,
				Conditions: map[string]interface{}{"temperature": "Hot"},
				Active:     true,
			},
			{
				ProfileID:  profileID,
				ModuleName: "leads",
				ModelName:  "Lead",
				Name:       "No lost leads",
				Kind:       KindExclude,
				Conditions: map[string]interface{}{"status": "Lost"},
				Active:     true,
			},
		},
	}
	service := newTestService(repo)

	got, err := service.Apply(context.Background(), principalWithProfile(profileID), "leads", "Lead", bson.M{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	ors, ok := got["$or"].([]bson.M)
	if !ok || len(ors) != 2 {
		t.Fatalf("two filters should OR-compose, got %v", got)
	}
	if !reflect.DeepEqual(ors[0], bson.M{"temperature": bson.M{"$eq": "Hot"}}) {
		t.Errorf("include branch = %v", ors[0])
	}
	if !reflect.DeepEqual(ors[1], bson.M{"$nor": []bson.M{{"status": bson.M{"$eq": "Lost"}}}}) {
		t.Errorf("exclude branch should be negated, got %v", ors[1])
	}
}

func TestApplyIgnoresInvalidAmongValid(t *testing.T) {
	profileID := primitive.NewObjectID()
	principal := principalWithProfile(profileID)
	base := bson.M{"region": "Downtown"}

	valid := DataFilter{
		ProfileID:  profileID,
		ModuleName: "leads",
		ModelName:  "Lead",
		Name:       "Hot leads",
		Kind:       KindInclude,
		Conditions: map[string]interface{}{"temperature": "Hot"},
		Active:     true,
	}
	invalid := DataFilter{
		ProfileID:  profileID,
		ModuleName: "leads",
		ModelName:  "Lead",
		Name:       "Broken operator",
		Kind:       KindInclude,
		Conditions: map[string]interface{}{"status__in": "New"},
		Active:     true,
	}

	mixed, err := newTestService(&fakeFilterRepo{filters: []DataFilter{invalid, valid}}).
		Apply(context.Background(), principal, "leads", "Lead", base)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	clean, err := newTestService(&fakeFilterRepo{filters: []DataFilter{valid}}).
		Apply(context.Background(), principal, "leads", "Lead", base)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !reflect.DeepEqual(mixed, clean) {
		t.Errorf("an invalid filter among valid ones must not change the result: %v vs %v", mixed, clean)
	}
}

func TestApplyRandomizedFilterSets(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	profileID := primitive.NewObjectID()
	principal := principalWithProfile(profileID)
	base := bson.M{"status": "New"}

	leadFilter := func(name string, kind Kind, conds map[string]interface{}) DataFilter {
		return DataFilter{
			ProfileID:  profileID,
			ModuleName: "leads",
			ModelName:  "Lead",
			Name:       name,
			Kind:       kind,
			Conditions: conds,
			Active:     true,
		}
	}
	pool := []DataFilter{
		leadFilter("Hot leads", KindInclude, map[string]interface{}{"temperature": "Hot"}),
		leadFilter("High budget", KindInclude, map[string]interface{}{"budget_min__gte": 500000}),
		leadFilter("Marina", KindInclude, map[string]interface{}{"region__icontains": "Marina"}),
		leadFilter("No lost leads", KindExclude, map[string]interface{}{"status": "Lost"}),
		leadFilter("Qualified or converted", KindInclude, map[string]interface{}{
			"status__in": []interface{}{"Qualified", "Converted"},
		}),
	}
	invalid := leadFilter("Broken operator", KindInclude, map[string]interface{}{"status__in": "New"})

	apply := func(filters []DataFilter) bson.M {
		t.Helper()
		got, err := newTestService(&fakeFilterRepo{filters: filters}).
			Apply(context.Background(), principal, "leads", "Lead", base)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		return got
	}

	for i := 0; i < 100; i++ {
		var subset []DataFilter
		for _, f := range pool {
			if rng.Intn(2) == 1 {
				subset = append(subset, f)
			}
		}

		clean := apply(subset)

		// The base conjunction survives every composition: no filters keeps
		// the base verbatim, otherwise it is the first $and part.
		if len(subset) == 0 {
			if !reflect.DeepEqual(clean, base) {
				t.Fatalf("no filters should leave the base untouched, got %v", clean)
			}
		} else {
			parts, ok := clean["$and"].([]bson.M)
			if !ok || len(parts) != 2 || !reflect.DeepEqual(parts[0], base) {
				t.Fatalf("filters must compose as base AND branches, got %v", clean)
			}
		}

		// Injecting an invalid filter anywhere leaves the result identical.
		pos := rng.Intn(len(subset) + 1)
		withInvalid := make([]DataFilter, 0, len(subset)+1)
		withInvalid = append(withInvalid, subset[:pos]...)
		withInvalid = append(withInvalid, invalid)
		withInvalid = append(withInvalid, subset[pos:]...)

		if mixed := apply(withInvalid); !reflect.DeepEqual(mixed, clean) {
			t.Fatalf("invalid filter changed the composition: %v vs %v", mixed, clean)
		}
	}
}

func TestApplySkipsMalformedFilters(t *testing.T) {
	profileID := primitive.NewObjectID()
	repo := &fakeFilterRepo{
		filters: []DataFilter{
			{
				ProfileID:  profileID,
				ModuleName: "leads",
				ModelName:  "Lead",
				Name:       "Broken operator",
				Kind:       KindInclude,
				Conditions: map[string]interface{}{"status__in": "New"},
				Active:     true,
			},
			{
				ProfileID:  profileID,
				ModuleName: "leads",
				ModelName:  "Lead",
				Name:       "Unknown path",
				Kind:       KindInclude,
				Conditions: map[string]interface{}{"no_such_field": 1},
				Active:     true,
			},
		},
	}
	service := newTestService(repo)

	base := bson.M{"status": "New"}
	got, err := service.Apply(context.Background(), principalWithProfile(profileID), "leads", "Lead", base)
	if err != nil {
		t.Fatalf("malformed filters must not fail the request: %v", err)
	}
	if !reflect.DeepEqual(got, base) {
		t.Errorf("all filters skipped, query should stay the base: got %v", got)
	}
}

func TestApplyBypasses(t *testing.T) {
	repo := &fakeFilterRepo{}
	service := newTestService(repo)
	base := bson.M{"status": "New"}

	tests := []struct {
		name      string
		principal *common_models.Principal
	}{
		{"Nil principal", nil},
		{"Superuser", &common_models.Principal{Active: true, Superuser: true, ProfileID: primitive.NewObjectID().Hex()}},
		{"No profile", &common_models.Principal{Active: true}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := service.Apply(context.Background(), tt.principal, "leads", "Lead", base)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !reflect.DeepEqual(got, base) {
				t.Errorf("Apply() = %v, want base unchanged", got)
			}
		})
	}
}
