package dropdown

import (
	"context"

	"estate-crm/internal/database"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type DropdownRepository interface {
	EnsureIndexes(ctx context.Context) error
	Upsert(ctx context.Context, restriction *DropdownRestriction) error
	FindActive(ctx context.Context, profileID primitive.ObjectID, moduleName, fieldName string) (*DropdownRestriction, error)
	DeleteByProfileID(ctx context.Context, profileID primitive.ObjectID) error
}

type DropdownRepositoryImpl struct {
	collection *mongo.Collection
}

func NewDropdownRepository(mongodb *database.MongodbDB) DropdownRepository {
	return &DropdownRepositoryImpl{
		collection: mongodb.DB.Collection("dropdown_restrictions"),
	}
}

func (r *DropdownRepositoryImpl) EnsureIndexes(ctx context.Context) error {
	_, err := r.collection.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{
			{Key: "profile_id", Value: 1},
			{Key: "module_name", Value: 1},
			{Key: "field_name", Value: 1},
		},
		Options: options.Index().SetUnique(true),
	})
	return err
}

func (r *DropdownRepositoryImpl) Upsert(ctx context.Context, restriction *DropdownRestriction) error {
	filter := bson.M{
		"profile_id":  restriction.ProfileID,
		"module_name": restriction.ModuleName,
		"field_name":  restriction.FieldName,
	}
	update := bson.M{
		"$set": bson.M{
			"source_model":      restriction.SourceModel,
			"source_field":      restriction.SourceField,
			"display_field":     restriction.DisplayField,
			"allowed_values":    restriction.AllowedValues,
			"restricted_values": restriction.RestrictedValues,
			"conditions":        restriction.Conditions,
			"multi_select":      restriction.MultiSelect,
			"active":            restriction.Active,
			"updated_at":        restriction.UpdatedAt,
		},
		"$setOnInsert": bson.M{
			"created_at": restriction.CreatedAt,
		},
	}
	_, err := r.collection.UpdateOne(ctx, filter, update, options.Update().SetUpsert(true))
	return err
}

func (r *DropdownRepositoryImpl) FindActive(ctx context.Context, profileID primitive.ObjectID, moduleName, fieldName string) (*DropdownRestriction, error) {
	var restriction DropdownRestriction
	err := r.collection.FindOne(ctx, bson.M{
		"profile_id":  profileID,
		"module_name": moduleName,
		"field_name":  fieldName,
		"active":      true,
	}).Decode(&restriction)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, nil
		}
		return nil, err
	}
	return &restriction, nil
}

func (r *DropdownRepositoryImpl) DeleteByProfileID(ctx context.Context, profileID primitive.ObjectID) error {
	_, err := r.collection.DeleteMany(ctx, bson.M{"profile_id": profileID})
	return err
}
