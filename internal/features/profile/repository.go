package profile

import (
	"context"
	"fmt"

	"estate-crm/internal/database"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type ProfileRepository interface {
	EnsureIndexes(ctx context.Context) error
	Create(ctx context.Context, profile *Profile) error
	FindByID(ctx context.Context, id string) (*Profile, error)
	FindByName(ctx context.Context, name string) (*Profile, error)
	List(ctx context.Context) ([]Profile, error)
	Update(ctx context.Context, id string, profile *Profile) error
	Delete(ctx context.Context, id string) error
	SetPermissionsForModule(ctx context.Context, profileID primitive.ObjectID, moduleName string, refs []PermissionRef) error
}

type ProfileRepositoryImpl struct {
	collection *mongo.Collection
}

func NewProfileRepository(mongodb *database.MongodbDB) ProfileRepository {
	return &ProfileRepositoryImpl{
		collection: mongodb.DB.Collection("profiles"),
	}
}

func (r *ProfileRepositoryImpl) EnsureIndexes(ctx context.Context) error {
	_, err := r.collection.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "name", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	return err
}

func (r *ProfileRepositoryImpl) Create(ctx context.Context, profile *Profile) error {
	if profile.Permissions == nil {
		profile.Permissions = []PermissionRef{}
	}
	_, err := r.collection.InsertOne(ctx, profile)
	return err
}

func (r *ProfileRepositoryImpl) FindByID(ctx context.Context, id string) (*Profile, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, err
	}

	var profile Profile
	err = r.collection.FindOne(ctx, bson.M{"_id": oid}).Decode(&profile)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, nil
		}
		return nil, err
	}
	return &profile, nil
}

func (r *ProfileRepositoryImpl) FindByName(ctx context.Context, name string) (*Profile, error) {
	var profile Profile
	err := r.collection.FindOne(ctx, bson.M{"name": name}).Decode(&profile)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, nil
		}
		return nil, err
	}
	return &profile, nil
}

func (r *ProfileRepositoryImpl) List(ctx context.Context) ([]Profile, error) {
	cursor, err := r.collection.Find(ctx, bson.M{}, options.Find().SetSort(bson.D{{Key: "name", Value: 1}}))
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var profiles []Profile
	if err := cursor.All(ctx, &profiles); err != nil {
		return nil, err
	}
	return profiles, nil
}

func (r *ProfileRepositoryImpl) Update(ctx context.Context, id string, profile *Profile) error {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return err
	}

	update := bson.M{
		"$set": bson.M{
			"name":        profile.Name,
			"description": profile.Description,
			"rules":       profile.Rules,
			"updated_at":  profile.UpdatedAt,
		},
	}

	result, err := r.collection.UpdateOne(ctx, bson.M{"_id": oid}, update)
	if err != nil {
		return err
	}
	if result.MatchedCount == 0 {
		return fmt.Errorf("profile not found")
	}
	return nil
}

func (r *ProfileRepositoryImpl) Delete(ctx context.Context, id string) error {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return err
	}

	result, err := r.collection.DeleteOne(ctx, bson.M{"_id": oid})
	if err != nil {
		return err
	}
	if result.DeletedCount == 0 {
		return fmt.Errorf("profile not found")
	}
	return nil
}

// SetPermissionsForModule replaces the profile's permission refs for one
// module inside a transaction, so a concurrent check never observes the
// module half-granted.
func (r *ProfileRepositoryImpl) SetPermissionsForModule(ctx context.Context, profileID primitive.ObjectID, moduleName string, refs []PermissionRef) error {
	session, err := r.collection.Database().Client().StartSession()
	if err != nil {
		return err
	}
	defer session.EndSession(ctx)

	_, err = session.WithTransaction(ctx, func(sessCtx mongo.SessionContext) (interface{}, error) {
		_, err := r.collection.UpdateOne(sessCtx, bson.M{"_id": profileID}, bson.M{
			"$pull": bson.M{"permissions": bson.M{"module_name": moduleName}},
		})
		if err != nil {
			return nil, err
		}

		if len(refs) > 0 {
			_, err = r.collection.UpdateOne(sessCtx, bson.M{"_id": profileID}, bson.M{
				"$push": bson.M{"permissions": bson.M{"$each": refs}},
			})
			if err != nil {
				return nil, err
			}
		}
		return nil, nil
	})
	return err
}
