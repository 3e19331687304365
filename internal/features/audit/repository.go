package audit

import (
	"context"
	"time"

	"estate-crm/internal/database"
	"estate-crm/pkg/condition"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type AuditRepository interface {
	EnsureIndexes(ctx context.Context) error
	Insert(ctx context.Context, entries []AuditEntry) error
	List(ctx context.Context, q Query) ([]AuditEntry, int64, error)
	FindByID(ctx context.Context, id string) (*AuditEntry, error)
	FindRelated(ctx context.Context, targetIDBackup string, limit int64) ([]AuditEntry, error)
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

type AuditRepositoryImpl struct {
	collection *mongo.Collection
}

func NewAuditRepository(mongodb *database.MongodbDB) AuditRepository {
	return &AuditRepositoryImpl{
		collection: mongodb.DB.Collection("audit_entries"),
	}
}

func (r *AuditRepositoryImpl) EnsureIndexes(ctx context.Context) error {
	_, err := r.collection.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "timestamp", Value: -1}}},
		{Keys: bson.D{{Key: "module_name", Value: 1}, {Key: "timestamp", Value: -1}}},
		{Keys: bson.D{{Key: "actor_id", Value: 1}, {Key: "timestamp", Value: -1}}},
		{Keys: bson.D{{Key: "target_id_backup", Value: 1}}},
	})
	return err
}

func (r *AuditRepositoryImpl) Insert(ctx context.Context, entries []AuditEntry) error {
	if len(entries) == 0 {
		return nil
	}
	docs := make([]interface{}, len(entries))
	for i := range entries {
		if entries[i].ID.IsZero() {
			entries[i].ID = primitive.NewObjectID()
		}
		docs[i] = entries[i]
	}
	_, err := r.collection.InsertMany(ctx, docs)
	return err
}

func (r *AuditRepositoryImpl) List(ctx context.Context, q Query) ([]AuditEntry, int64, error) {
	filter := buildFilter(q)

	total, err := r.collection.CountDocuments(ctx, filter)
	if err != nil {
		return nil, 0, err
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "timestamp", Value: -1}}).
		SetSkip(int64(q.Skip())).
		SetLimit(int64(q.Limit()))

	cursor, err := r.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, 0, err
	}
	defer cursor.Close(ctx)

	var entries []AuditEntry
	if err := cursor.All(ctx, &entries); err != nil {
		return nil, 0, err
	}
	return entries, total, nil
}

func buildFilter(q Query) bson.M {
	filter := bson.M{}
	if q.ModuleName != "" {
		filter["module_name"] = q.ModuleName
	}
	if q.ModelName != "" {
		filter["model_name"] = q.ModelName
	}
	if q.Action != "" {
		filter["action"] = q.Action
	}
	if q.Severity != "" {
		filter["severity"] = q.Severity
	}
	if q.ActorID != "" {
		if oid, err := primitive.ObjectIDFromHex(q.ActorID); err == nil {
			filter["actor_id"] = oid
		}
	}
	if q.TargetID != "" {
		filter["target_id_backup"] = q.TargetID
	}
	if q.Search != "" {
		regex := primitive.Regex{Pattern: condition.RegexEscape(q.Search), Options: "i"}
		filter["$or"] = []bson.M{
			{"target_display_backup": bson.M{"$regex": regex}},
			{"actor_display_backup": bson.M{"$regex": regex}},
			{"description": bson.M{"$regex": regex}},
			{"field": bson.M{"$regex": regex}},
		}
	}
	timeRange := bson.M{}
	if !q.From.IsZero() {
		timeRange["$gte"] = q.From
	}
	if !q.To.IsZero() {
		timeRange["$lte"] = q.To
	}
	if len(timeRange) > 0 {
		filter["timestamp"] = timeRange
	}
	return filter
}

func (r *AuditRepositoryImpl) FindByID(ctx context.Context, id string) (*AuditEntry, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, err
	}
	var entry AuditEntry
	err = r.collection.FindOne(ctx, bson.M{"_id": oid}).Decode(&entry)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, nil
		}
		return nil, err
	}
	return &entry, nil
}

func (r *AuditRepositoryImpl) FindRelated(ctx context.Context, targetIDBackup string, limit int64) ([]AuditEntry, error) {
	cursor, err := r.collection.Find(ctx, bson.M{"target_id_backup": targetIDBackup},
		options.Find().SetSort(bson.D{{Key: "timestamp", Value: -1}}).SetLimit(limit))
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var entries []AuditEntry
	if err := cursor.All(ctx, &entries); err != nil {
		return nil, err
	}
	return entries, nil
}

func (r *AuditRepositoryImpl) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := r.collection.DeleteMany(ctx, bson.M{"timestamp": bson.M{"$lt": cutoff}})
	if err != nil {
		return 0, err
	}
	return result.DeletedCount, nil
}
