package record

import (
	"context"
	"time"

	"estate-crm/internal/database"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// RecordRepository stores all module records in one collection as flat
// documents discriminated by module and model fields, so policy predicate
// paths map straight onto document keys.
type RecordRepository interface {
	EnsureIndexes(ctx context.Context) error
	Insert(ctx context.Context, moduleName, modelName string, doc map[string]interface{}) (primitive.ObjectID, error)
	Find(ctx context.Context, moduleName, modelName string, filter bson.M, page, pageSize int) ([]map[string]interface{}, int64, error)
	FindOne(ctx context.Context, moduleName, modelName string, filter bson.M) (map[string]interface{}, error)
	Update(ctx context.Context, id primitive.ObjectID, set map[string]interface{}) error
	Delete(ctx context.Context, id primitive.ObjectID) error
	ListAll(ctx context.Context, moduleName, modelName string) ([]map[string]interface{}, error)
}

type RecordRepositoryImpl struct {
	collection *mongo.Collection
}

func NewRecordRepository(mongodb *database.MongodbDB) RecordRepository {
	return &RecordRepositoryImpl{
		collection: mongodb.DB.Collection("records"),
	}
}

func (r *RecordRepositoryImpl) EnsureIndexes(ctx context.Context) error {
	_, err := r.collection.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "module", Value: 1}, {Key: "model", Value: 1}, {Key: "created_at", Value: -1}}},
		{Keys: bson.D{{Key: "module", Value: 1}, {Key: "model", Value: 1}, {Key: "assigned_to", Value: 1}}},
	})
	return err
}

func typeFilter(moduleName, modelName string, extra bson.M) bson.M {
	filter := bson.M{"module": moduleName, "model": modelName}
	if len(extra) == 0 {
		return filter
	}
	return bson.M{"$and": []bson.M{filter, extra}}
}

func (r *RecordRepositoryImpl) Insert(ctx context.Context, moduleName, modelName string, doc map[string]interface{}) (primitive.ObjectID, error) {
	id := primitive.NewObjectID()
	doc["_id"] = id
	doc["module"] = moduleName
	doc["model"] = modelName
	doc["created_at"] = time.Now()
	doc["updated_at"] = doc["created_at"]

	if _, err := r.collection.InsertOne(ctx, doc); err != nil {
		return primitive.NilObjectID, err
	}
	return id, nil
}

func (r *RecordRepositoryImpl) Find(ctx context.Context, moduleName, modelName string, filter bson.M, page, pageSize int) ([]map[string]interface{}, int64, error) {
	query := typeFilter(moduleName, modelName, filter)

	total, err := r.collection.CountDocuments(ctx, query)
	if err != nil {
		return nil, 0, err
	}

	if pageSize <= 0 || pageSize > 200 {
		pageSize = 50
	}
	skip := 0
	if page > 1 {
		skip = (page - 1) * pageSize
	}

	cursor, err := r.collection.Find(ctx, query, options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}}).
		SetSkip(int64(skip)).
		SetLimit(int64(pageSize)))
	if err != nil {
		return nil, 0, err
	}
	defer cursor.Close(ctx)

	var records []map[string]interface{}
	if err := cursor.All(ctx, &records); err != nil {
		return nil, 0, err
	}
	return records, total, nil
}

func (r *RecordRepositoryImpl) FindOne(ctx context.Context, moduleName, modelName string, filter bson.M) (map[string]interface{}, error) {
	var record map[string]interface{}
	err := r.collection.FindOne(ctx, typeFilter(moduleName, modelName, filter)).Decode(&record)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, nil
		}
		return nil, err
	}
	return record, nil
}

func (r *RecordRepositoryImpl) Update(ctx context.Context, id primitive.ObjectID, set map[string]interface{}) error {
	set["updated_at"] = time.Now()
	_, err := r.collection.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": set})
	return err
}

func (r *RecordRepositoryImpl) Delete(ctx context.Context, id primitive.ObjectID) error {
	_, err := r.collection.DeleteOne(ctx, bson.M{"_id": id})
	return err
}

func (r *RecordRepositoryImpl) ListAll(ctx context.Context, moduleName, modelName string) ([]map[string]interface{}, error) {
	cursor, err := r.collection.Find(ctx, typeFilter(moduleName, modelName, nil))
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var records []map[string]interface{}
	if err := cursor.All(ctx, &records); err != nil {
		return nil, err
	}
	return records, nil
}
