package datafilter

import (
	"context"

	"estate-crm/internal/database"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type DataFilterRepository interface {
	EnsureIndexes(ctx context.Context) error
	Save(ctx context.Context, filter *DataFilter) error
	FindActive(ctx context.Context, profileID primitive.ObjectID, moduleName, modelName string) ([]DataFilter, error)
	FindByProfileID(ctx context.Context, profileID primitive.ObjectID) ([]DataFilter, error)
	Delete(ctx context.Context, id string) error
	DeleteByProfileID(ctx context.Context, profileID primitive.ObjectID) error
}

type DataFilterRepositoryImpl struct {
	collection *mongo.Collection
}

func NewDataFilterRepository(mongodb *database.MongodbDB) DataFilterRepository {
	return &DataFilterRepositoryImpl{
		collection: mongodb.DB.Collection("data_filters"),
	}
}

func (r *DataFilterRepositoryImpl) EnsureIndexes(ctx context.Context) error {
	_, err := r.collection.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{
			{Key: "profile_id", Value: 1},
			{Key: "module_name", Value: 1},
			{Key: "model_name", Value: 1},
			{Key: "order", Value: 1},
		},
	})
	return err
}

func (r *DataFilterRepositoryImpl) Save(ctx context.Context, filter *DataFilter) error {
	if filter.ID.IsZero() {
		filter.ID = primitive.NewObjectID()
		_, err := r.collection.InsertOne(ctx, filter)
		return err
	}
	_, err := r.collection.ReplaceOne(ctx, bson.M{"_id": filter.ID}, filter)
	return err
}

func (r *DataFilterRepositoryImpl) FindActive(ctx context.Context, profileID primitive.ObjectID, moduleName, modelName string) ([]DataFilter, error) {
	filter := bson.M{
		"profile_id":  profileID,
		"module_name": moduleName,
		"model_name":  modelName,
		"active":      true,
	}

	cursor, err := r.collection.Find(ctx, filter, options.Find().SetSort(bson.D{{Key: "order", Value: 1}}))
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var filters []DataFilter
	if err := cursor.All(ctx, &filters); err != nil {
		return nil, err
	}
	return filters, nil
}

func (r *DataFilterRepositoryImpl) FindByProfileID(ctx context.Context, profileID primitive.ObjectID) ([]DataFilter, error) {
	cursor, err := r.collection.Find(ctx, bson.M{"profile_id": profileID},
		options.Find().SetSort(bson.D{{Key: "module_name", Value: 1}, {Key: "order", Value: 1}}))
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var filters []DataFilter
	if err := cursor.All(ctx, &filters); err != nil {
		return nil, err
	}
	return filters, nil
}

func (r *DataFilterRepositoryImpl) Delete(ctx context.Context, id string) error {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return err
	}
	_, err = r.collection.DeleteOne(ctx, bson.M{"_id": oid})
	return err
}

func (r *DataFilterRepositoryImpl) DeleteByProfileID(ctx context.Context, profileID primitive.ObjectID) error {
	_, err := r.collection.DeleteMany(ctx, bson.M{"profile_id": profileID})
	return err
}
