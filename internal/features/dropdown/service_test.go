package dropdown

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"testing"

	common_models "estate-crm/internal/common/models"
	"estate-crm/internal/registry"

	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

type fakeDropdownRepo struct {
	restrictions []DropdownRestriction
}

func (f *fakeDropdownRepo) EnsureIndexes(ctx context.Context) error { return nil }

func (f *fakeDropdownRepo) Upsert(ctx context.Context, restriction *DropdownRestriction) error {
	return nil
}

func (f *fakeDropdownRepo) FindActive(ctx context.Context, profileID primitive.ObjectID, moduleName, fieldName string) (*DropdownRestriction, error) {
	for i := range f.restrictions {
		r := &f.restrictions[i]
		if r.ProfileID == profileID && r.ModuleName == moduleName && r.FieldName == fieldName && r.Active {
			return r, nil
		}
	}
	return nil, nil
}

func (f *fakeDropdownRepo) DeleteByProfileID(ctx context.Context, profileID primitive.ObjectID) error {
	return nil
}

type fakeRecordSource struct {
	records map[string][]map[string]interface{}
}

func (f *fakeRecordSource) ListAll(ctx context.Context, moduleName, modelName string) ([]map[string]interface{}, error) {
	return f.records[moduleName+"/"+modelName], nil
}

func newDropdownService(repo *fakeDropdownRepo, records *fakeRecordSource) *DropdownServiceImpl {
	if records == nil {
		records = &fakeRecordSource{}
	}
	return &DropdownServiceImpl{
		DropdownRepo: repo,
		Registry:     registry.Default(),
		Records:      records,
		Log:          zap.NewNop(),
	}
}

func dropdownPrincipal(profileID primitive.ObjectID) *common_models.Principal {
	return &common_models.Principal{
		UserID:    primitive.NewObjectID().Hex(),
		Active:    true,
		ProfileID: profileID.Hex(),
	}
}

func propertyTypeRecords(names ...string) *fakeRecordSource {
	records := make([]map[string]interface{}, 0, len(names))
	for _, n := range names {
		records = append(records, map[string]interface{}{"name": n, "active": true})
	}
	return &fakeRecordSource{records: map[string][]map[string]interface{}{
		"property/PropertyType": records,
	}}
}

func optionValues(options []Option) []string {
	values := make([]string, 0, len(options))
	for _, o := range options {
		values = append(values, o.Value)
	}
	return values
}

func TestListOptionsDeclaredChoices(t *testing.T) {
	service := newDropdownService(&fakeDropdownRepo{}, nil)

	options, err := service.ListOptions(context.Background(), dropdownPrincipal(primitive.NewObjectID()), "leads", "Lead", "temperature")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := optionValues(options); !reflect.DeepEqual(got, []string{"Cold", "Warm", "Hot"}) {
		t.Errorf("declared choices should pass through unrestricted, got %v", got)
	}
}

func TestListOptionsAllowedList(t *testing.T) {
	profileID := primitive.NewObjectID()
	repo := &fakeDropdownRepo{
		restrictions: []DropdownRestriction{
			{
				ProfileID:     profileID,
				ModuleName:    "property",
				FieldName:     "property_type",
				SourceModel:   "PropertyType",
				SourceField:   "name",
				DisplayField:  "name",
				AllowedValues: []string{"Villa", "Apartment"},
				Active:        true,
			},
		},
	}
	source := propertyTypeRecords("Villa", "Apartment", "Commercial", "Office", "Retail")
	service := newDropdownService(repo, source)

	options, err := service.ListOptions(context.Background(), dropdownPrincipal(profileID), "property", "Property", "property_type")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := optionValues(options); !reflect.DeepEqual(got, []string{"Villa", "Apartment"}) {
		t.Errorf("allowed list should intersect the options, got %v", got)
	}
}

func TestListOptionsRestrictedList(t *testing.T) {
	profileID := primitive.NewObjectID()
	repo := &fakeDropdownRepo{
		restrictions: []DropdownRestriction{
			{
				ProfileID:        profileID,
				ModuleName:       "property",
				FieldName:        "property_type",
				RestrictedValues: []string{"Warehouse"},
				Active:           true,
			},
		},
	}
	source := propertyTypeRecords("Villa", "Warehouse", "Office")
	service := newDropdownService(repo, source)

	options, err := service.ListOptions(context.Background(), dropdownPrincipal(profileID), "property", "Property", "property_type")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := optionValues(options); !reflect.DeepEqual(got, []string{"Villa", "Office"}) {
		t.Errorf("restricted list should subtract, got %v", got)
	}
}

func TestListOptionsConditions(t *testing.T) {
	profileID := primitive.NewObjectID()
	repo := &fakeDropdownRepo{
		restrictions: []DropdownRestriction{
			{
				ProfileID:  profileID,
				ModuleName: "property",
				FieldName:  "property_type",
				Conditions: map[string]interface{}{"active": true},
				Active:     true,
			},
		},
	}
	source := &fakeRecordSource{records: map[string][]map[string]interface{}{
		"property/PropertyType": {
			{"name": "Villa", "active": true},
			{"name": "Chalet", "active": false},
		},
	}}
	service := newDropdownService(repo, source)

	options, err := service.ListOptions(context.Background(), dropdownPrincipal(profileID), "property", "Property", "property_type")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := optionValues(options); !reflect.DeepEqual(got, []string{"Villa"}) {
		t.Errorf("restriction conditions should prune source records, got %v", got)
	}
}

func TestListOptionsSuperuserBypassesRestrictions(t *testing.T) {
	profileID := primitive.NewObjectID()
	repo := &fakeDropdownRepo{
		restrictions: []DropdownRestriction{
			{
				ProfileID:     profileID,
				ModuleName:    "property",
				FieldName:     "property_type",
				AllowedValues: []string{"Villa"},
				Active:        true,
			},
		},
	}
	source := propertyTypeRecords("Villa", "Office")
	service := newDropdownService(repo, source)

	super := &common_models.Principal{Active: true, Superuser: true, ProfileID: profileID.Hex()}
	options, err := service.ListOptions(context.Background(), super, "property", "Property", "property_type")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := optionValues(options); !reflect.DeepEqual(got, []string{"Villa", "Office"}) {
		t.Errorf("superuser should see every option, got %v", got)
	}
}

func TestListOptionsCap(t *testing.T) {
	var names []string
	for i := 0; i < maxChoices+20; i++ {
		names = append(names, fmt.Sprintf("Type %03d", i))
	}
	service := newDropdownService(&fakeDropdownRepo{}, propertyTypeRecords(names...))

	options, err := service.ListOptions(context.Background(), dropdownPrincipal(primitive.NewObjectID()), "property", "Property", "property_type")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(options) != maxChoices {
		t.Errorf("options should cap at %d, got %d", maxChoices, len(options))
	}
}

func TestListOptionsSourceWithoutDescriptor(t *testing.T) {
	service := newDropdownService(&fakeDropdownRepo{}, nil)

	options, err := service.ListOptions(context.Background(), dropdownPrincipal(primitive.NewObjectID()), "leads", "Lead", "assigned_to")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(options) != 0 {
		t.Errorf("a source model without a descriptor yields no options, got %v", options)
	}
}

func TestValidateInput(t *testing.T) {
	profileID := primitive.NewObjectID()
	repo := &fakeDropdownRepo{
		restrictions: []DropdownRestriction{
			{
				ProfileID:     profileID,
				ModuleName:    "property",
				FieldName:     "property_type",
				AllowedValues: []string{"Villa", "Apartment"},
				Active:        true,
			},
		},
	}
	source := propertyTypeRecords("Villa", "Apartment", "Commercial")
	service := newDropdownService(repo, source)
	principal := dropdownPrincipal(profileID)

	t.Run("Permitted value accepted", func(t *testing.T) {
		if err := service.ValidateInput(context.Background(), principal, "property", "Property", "property_type", []string{"Villa"}); err != nil {
			t.Errorf("unexpected error: %v", err)
		}
	})

	t.Run("Out-of-range value rejected", func(t *testing.T) {
		err := service.ValidateInput(context.Background(), principal, "property", "Property", "property_type", []string{"Commercial"})
		if !errors.Is(err, ErrInputRejected) {
			t.Errorf("expected ErrInputRejected, got %v", err)
		}
	})

	t.Run("Superuser submits anything", func(t *testing.T) {
		super := &common_models.Principal{Active: true, Superuser: true}
		if err := service.ValidateInput(context.Background(), super, "property", "Property", "property_type", []string{"Commercial"}); err != nil {
			t.Errorf("unexpected error: %v", err)
		}
	})

	t.Run("Unrestricted lookup without an enumerable source accepts anything", func(t *testing.T) {
		if err := service.ValidateInput(context.Background(), dropdownPrincipal(primitive.NewObjectID()), "leads", "Lead", "assigned_to", []string{primitive.NewObjectID().Hex()}); err != nil {
			t.Errorf("unexpected error: %v", err)
		}
	})

	t.Run("Free-text field accepts anything", func(t *testing.T) {
		if err := service.ValidateInput(context.Background(), principal, "property", "Property", "name", []string{"whatever"}); err != nil {
			t.Errorf("unexpected error: %v", err)
		}
	})
}
