package catalog

import (
	"context"

	"estate-crm/internal/database"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type CatalogRepository interface {
	EnsureIndexes(ctx context.Context) error
	ListModules(ctx context.Context, activeOnly bool) ([]Module, error)
	FindModuleByName(ctx context.Context, name string) (*Module, error)
	UpsertModule(ctx context.Context, module *Module) error
	ListPermissions(ctx context.Context, moduleName string) ([]Permission, error)
	FindPermissionsByIDs(ctx context.Context, ids []string) ([]Permission, error)
	UpsertPermission(ctx context.Context, permission *Permission) error
}

type CatalogRepositoryImpl struct {
	modules     *mongo.Collection
	permissions *mongo.Collection
}

func NewCatalogRepository(mongodb *database.MongodbDB) CatalogRepository {
	return &CatalogRepositoryImpl{
		modules:     mongodb.DB.Collection("modules"),
		permissions: mongodb.DB.Collection("permissions"),
	}
}

func (r *CatalogRepositoryImpl) EnsureIndexes(ctx context.Context) error {
	_, err := r.modules.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "name", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return err
	}
	_, err = r.permissions.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "module_name", Value: 1}, {Key: "level", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	return err
}

func (r *CatalogRepositoryImpl) ListModules(ctx context.Context, activeOnly bool) ([]Module, error) {
	filter := bson.M{}
	if activeOnly {
		filter["active"] = true
	}

	cursor, err := r.modules.Find(ctx, filter, options.Find().SetSort(bson.D{{Key: "order", Value: 1}, {Key: "name", Value: 1}}))
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var modules []Module
	if err := cursor.All(ctx, &modules); err != nil {
		return nil, err
	}
	return modules, nil
}

func (r *CatalogRepositoryImpl) FindModuleByName(ctx context.Context, name string) (*Module, error) {
	var module Module
	err := r.modules.FindOne(ctx, bson.M{"name": name}).Decode(&module)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, nil
		}
		return nil, err
	}
	return &module, nil
}

func (r *CatalogRepositoryImpl) UpsertModule(ctx context.Context, module *Module) error {
	update := bson.M{
		"$set": bson.M{
			"label":      module.Label,
			"order":      module.Order,
			"active":     module.Active,
			"updated_at": module.UpdatedAt,
		},
		"$setOnInsert": bson.M{
			"created_at": module.CreatedAt,
		},
	}
	_, err := r.modules.UpdateOne(ctx, bson.M{"name": module.Name}, update, options.Update().SetUpsert(true))
	return err
}

func (r *CatalogRepositoryImpl) ListPermissions(ctx context.Context, moduleName string) ([]Permission, error) {
	cursor, err := r.permissions.Find(ctx,
		bson.M{"module_name": moduleName, "active": true},
		options.Find().SetSort(bson.D{{Key: "level", Value: 1}}))
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var permissions []Permission
	if err := cursor.All(ctx, &permissions); err != nil {
		return nil, err
	}
	return permissions, nil
}

func (r *CatalogRepositoryImpl) FindPermissionsByIDs(ctx context.Context, ids []string) ([]Permission, error) {
	oids, err := toObjectIDs(ids)
	if err != nil {
		return nil, err
	}

	cursor, err := r.permissions.Find(ctx, bson.M{"_id": bson.M{"$in": oids}})
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var permissions []Permission
	if err := cursor.All(ctx, &permissions); err != nil {
		return nil, err
	}
	return permissions, nil
}

func (r *CatalogRepositoryImpl) UpsertPermission(ctx context.Context, permission *Permission) error {
	update := bson.M{
		"$set": bson.M{
			"code":   permission.Code,
			"active": permission.Active,
		},
		"$setOnInsert": bson.M{
			"created_at": permission.CreatedAt,
		},
	}
	_, err := r.permissions.UpdateOne(ctx,
		bson.M{"module_name": permission.ModuleName, "level": permission.Level},
		update, options.Update().SetUpsert(true))
	return err
}

func toObjectIDs(ids []string) ([]primitive.ObjectID, error) {
	oids := make([]primitive.ObjectID, 0, len(ids))
	for _, id := range ids {
		oid, err := primitive.ObjectIDFromHex(id)
		if err != nil {
			return nil, err
		}
		oids = append(oids, oid)
	}
	return oids, nil
}
