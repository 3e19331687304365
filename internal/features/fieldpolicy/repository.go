package fieldpolicy

import (
	"context"

	"estate-crm/internal/database"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type FieldPolicyRepository interface {
	EnsureIndexes(ctx context.Context) error
	Upsert(ctx context.Context, policy *FieldPolicy) error
	FindForModel(ctx context.Context, profileID primitive.ObjectID, moduleName, modelName string) ([]FieldPolicy, error)
	FindForModule(ctx context.Context, profileID primitive.ObjectID, moduleName string) ([]FieldPolicy, error)
	DeleteByProfileID(ctx context.Context, profileID primitive.ObjectID) error
}

type FieldPolicyRepositoryImpl struct {
	collection *mongo.Collection
}

func NewFieldPolicyRepository(mongodb *database.MongodbDB) FieldPolicyRepository {
	return &FieldPolicyRepositoryImpl{
		collection: mongodb.DB.Collection("field_policies"),
	}
}

func (r *FieldPolicyRepositoryImpl) EnsureIndexes(ctx context.Context) error {
	_, err := r.collection.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{
			{Key: "profile_id", Value: 1},
			{Key: "module_name", Value: 1},
			{Key: "model_name", Value: 1},
			{Key: "field_name", Value: 1},
		},
		Options: options.Index().SetUnique(true),
	})
	return err
}

func (r *FieldPolicyRepositoryImpl) Upsert(ctx context.Context, policy *FieldPolicy) error {
	filter := bson.M{
		"profile_id":  policy.ProfileID,
		"module_name": policy.ModuleName,
		"model_name":  policy.ModelName,
		"field_name":  policy.FieldName,
	}
	update := bson.M{
		"$set": bson.M{
			"can_view":   policy.CanView,
			"can_edit":   policy.CanEdit,
			"can_filter": policy.CanFilter,
			"in_list":    policy.InList,
			"in_detail":  policy.InDetail,
			"in_form":    policy.InForm,
			"condition":  policy.Condition,
			"active":     policy.Active,
			"updated_at": policy.UpdatedAt,
		},
		"$setOnInsert": bson.M{
			"created_at": policy.CreatedAt,
		},
	}
	_, err := r.collection.UpdateOne(ctx, filter, update, options.Update().SetUpsert(true))
	return err
}

func (r *FieldPolicyRepositoryImpl) FindForModel(ctx context.Context, profileID primitive.ObjectID, moduleName, modelName string) ([]FieldPolicy, error) {
	return r.find(ctx, bson.M{
		"profile_id":  profileID,
		"module_name": moduleName,
		"model_name":  modelName,
		"active":      true,
	})
}

func (r *FieldPolicyRepositoryImpl) FindForModule(ctx context.Context, profileID primitive.ObjectID, moduleName string) ([]FieldPolicy, error) {
	return r.find(ctx, bson.M{
		"profile_id":  profileID,
		"module_name": moduleName,
		"active":      true,
	})
}

func (r *FieldPolicyRepositoryImpl) find(ctx context.Context, filter bson.M) ([]FieldPolicy, error) {
	cursor, err := r.collection.Find(ctx, filter)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var policies []FieldPolicy
	if err := cursor.All(ctx, &policies); err != nil {
		return nil, err
	}
	return policies, nil
}

func (r *FieldPolicyRepositoryImpl) DeleteByProfileID(ctx context.Context, profileID primitive.ObjectID) error {
	_, err := r.collection.DeleteMany(ctx, bson.M{"profile_id": profileID})
	return err
}
