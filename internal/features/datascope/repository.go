package datascope

import (
	"context"

	"estate-crm/internal/database"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type DataScopeRepository interface {
	EnsureIndexes(ctx context.Context) error
	Upsert(ctx context.Context, scope *DataScope) error
	FindActive(ctx context.Context, profileID primitive.ObjectID, moduleName string) ([]DataScope, error)
	DeleteByProfileID(ctx context.Context, profileID primitive.ObjectID) error
}

type DataScopeRepositoryImpl struct {
	collection *mongo.Collection
}

func NewDataScopeRepository(mongodb *database.MongodbDB) DataScopeRepository {
	return &DataScopeRepositoryImpl{
		collection: mongodb.DB.Collection("data_scopes"),
	}
}

func (r *DataScopeRepositoryImpl) EnsureIndexes(ctx context.Context) error {
	_, err := r.collection.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{
			{Key: "profile_id", Value: 1},
			{Key: "module_name", Value: 1},
			{Key: "kind", Value: 1},
		},
		Options: options.Index().SetUnique(true),
	})
	return err
}

func (r *DataScopeRepositoryImpl) Upsert(ctx context.Context, scope *DataScope) error {
	filter := bson.M{
		"profile_id":  scope.ProfileID,
		"module_name": scope.ModuleName,
		"kind":        scope.Kind,
	}
	update := bson.M{
		"$set": bson.M{
			"config":     scope.Config,
			"active":     scope.Active,
			"updated_at": scope.UpdatedAt,
		},
		"$setOnInsert": bson.M{
			"created_at": scope.CreatedAt,
		},
	}
	_, err := r.collection.UpdateOne(ctx, filter, update, options.Update().SetUpsert(true))
	return err
}

func (r *DataScopeRepositoryImpl) FindActive(ctx context.Context, profileID primitive.ObjectID, moduleName string) ([]DataScope, error) {
	cursor, err := r.collection.Find(ctx, bson.M{
		"profile_id":  profileID,
		"module_name": moduleName,
		"active":      true,
	})
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var scopes []DataScope
	if err := cursor.All(ctx, &scopes); err != nil {
		return nil, err
	}
	return scopes, nil
}

func (r *DataScopeRepositoryImpl) DeleteByProfileID(ctx context.Context, profileID primitive.ObjectID) error {
	_, err := r.collection.DeleteMany(ctx, bson.M{"profile_id": profileID})
	return err
}
