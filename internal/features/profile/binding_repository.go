package profile

import (
	"context"

	"estate-crm/internal/database"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type BindingRepository interface {
	EnsureIndexes(ctx context.Context) error
	FindByUserID(ctx context.Context, userID primitive.ObjectID) (*Binding, error)
	Upsert(ctx context.Context, binding *Binding) error
	UnbindProfile(ctx context.Context, profileID primitive.ObjectID) error
}

type BindingRepositoryImpl struct {
	collection *mongo.Collection
}

func NewBindingRepository(mongodb *database.MongodbDB) BindingRepository {
	return &BindingRepositoryImpl{
		collection: mongodb.DB.Collection("principals"),
	}
}

func (r *BindingRepositoryImpl) EnsureIndexes(ctx context.Context) error {
	// One binding per user enforces the "at most one profile" rule.
	_, err := r.collection.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "user_id", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	return err
}

func (r *BindingRepositoryImpl) FindByUserID(ctx context.Context, userID primitive.ObjectID) (*Binding, error) {
	var binding Binding
	err := r.collection.FindOne(ctx, bson.M{"user_id": userID}).Decode(&binding)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, nil
		}
		return nil, err
	}
	return &binding, nil
}

func (r *BindingRepositoryImpl) Upsert(ctx context.Context, binding *Binding) error {
	update := bson.M{
		"$set": bson.M{
			"profile_id":    binding.ProfileID,
			"active":        binding.Active,
			"superuser":     binding.Superuser,
			"employee_name": binding.EmployeeName,
			"team":          binding.Team,
			"updated_at":    binding.UpdatedAt,
		},
		"$setOnInsert": bson.M{
			"created_at": binding.CreatedAt,
		},
	}
	_, err := r.collection.UpdateOne(ctx, bson.M{"user_id": binding.UserID}, update, options.Update().SetUpsert(true))
	return err
}

// UnbindProfile clears the profile reference from every binding that points
// at a deleted profile.
func (r *BindingRepositoryImpl) UnbindProfile(ctx context.Context, profileID primitive.ObjectID) error {
	_, err := r.collection.UpdateMany(ctx,
		bson.M{"profile_id": profileID},
		bson.M{"$unset": bson.M{"profile_id": ""}})
	return err
}
