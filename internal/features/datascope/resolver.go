package datascope

import (
	"context"

	common_models "estate-crm/internal/common/models"
	"estate-crm/internal/registry"
	"estate-crm/pkg/condition"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

// Evaluator runs a custom scope script and returns the filter map it
// produces. Kept as an interface so tests can substitute a stub.
type Evaluator interface {
	Evaluate(ctx context.Context, script string, principal *common_models.Principal) (map[string]interface{}, error)
}

type DataScopeService interface {
	Upsert(ctx context.Context, scope *DataScope) error
	ScopesForProfile(ctx context.Context, profileID string, moduleName string) ([]DataScope, error)
	Narrow(ctx context.Context, principal *common_models.Principal, moduleName, modelName string, base bson.M) (bson.M, error)
	DeleteByProfileID(ctx context.Context, profileID primitive.ObjectID) error
}

type DataScopeServiceImpl struct {
	ScopeRepo DataScopeRepository
	Registry  *registry.Registry
	Evaluator Evaluator
	Log       *zap.Logger
}

func NewDataScopeService(scopeRepo DataScopeRepository, reg *registry.Registry, evaluator Evaluator, log *zap.Logger) DataScopeService {
	return &DataScopeServiceImpl{
		ScopeRepo: scopeRepo,
		Registry:  reg,
		Evaluator: evaluator,
		Log:       log,
	}
}

func (s *DataScopeServiceImpl) Upsert(ctx context.Context, scope *DataScope) error {
	return s.ScopeRepo.Upsert(ctx, scope)
}

func (s *DataScopeServiceImpl) ScopesForProfile(ctx context.Context, profileID string, moduleName string) ([]DataScope, error) {
	oid, err := primitive.ObjectIDFromHex(profileID)
	if err != nil {
		return nil, err
	}
	return s.ScopeRepo.FindActive(ctx, oid, moduleName)
}

// Narrow bounds base to the rows the principal's scopes admit. Scopes of a
// module are OR-composed; an `all` scope, a missing scope, or any error
// computing a scope leaves the query unchanged. Module-level permission
// checks happen elsewhere, so falling back to identity never grants access
// by itself.
func (s *DataScopeServiceImpl) Narrow(ctx context.Context, principal *common_models.Principal, moduleName, modelName string, base bson.M) (bson.M, error) {
	if principal == nil || principal.Superuser || principal.ProfileID == "" {
		return base, nil
	}
	profileID, err := primitive.ObjectIDFromHex(principal.ProfileID)
	if err != nil {
		return base, nil
	}

	scopes, err := s.ScopeRepo.FindActive(ctx, profileID, moduleName)
	if err != nil {
		s.Log.Warn("data scope lookup failed, leaving query unscoped",
			zap.String("module", moduleName), zap.Error(err))
		return base, nil
	}
	if len(scopes) == 0 {
		return base, nil
	}

	desc, ok := s.Registry.Lookup(moduleName, modelName)
	if !ok {
		return base, nil
	}

	var branches []bson.M
	for i := range scopes {
		predicate, identity := s.compileScope(ctx, &scopes[i], principal, desc)
		if identity {
			return base, nil
		}
		if predicate != nil {
			branches = append(branches, predicate)
		}
	}
	if len(branches) == 0 {
		return base, nil
	}

	var combined bson.M
	if len(branches) == 1 {
		combined = branches[0]
	} else {
		combined = bson.M{"$or": branches}
	}

	if len(base) == 0 {
		return combined, nil
	}
	return bson.M{"$and": []bson.M{base, combined}}, nil
}

// compileScope returns the scope predicate, or identity=true when the scope
// grants everything or cannot be computed.
func (s *DataScopeServiceImpl) compileScope(ctx context.Context, scope *DataScope, principal *common_models.Principal, desc *registry.Descriptor) (predicate bson.M, identity bool) {
	switch scope.Kind {
	case KindAll:
		return nil, true

	case KindOwn:
		field := configString(scope.Config, "user_field", desc.OwnerField)
		return bson.M{field: principal.UserID}, false

	case KindAssigned:
		field := configString(scope.Config, "user_field", desc.AssignedField)
		return bson.M{field: principal.UserID}, false

	case KindTeam:
		attr := configString(scope.Config, "user_attribute", "team")
		value := principalAttr(principal, attr)
		if value == "" {
			s.Log.Warn("team scope resolves to an empty principal attribute, leaving query unscoped",
				zap.String("module", scope.ModuleName), zap.String("attribute", attr),
				zap.String("user_id", principal.UserID))
			return nil, true
		}
		field := configString(scope.Config, "team_field", desc.TeamField)
		if field == "" {
			field = "team"
		}
		return bson.M{field: value}, false

	case KindFiltered:
		raw, _ := scope.Config["filters"].(map[string]interface{})
		if len(raw) == 0 {
			return nil, true
		}
		conds, err := condition.ParseMap(raw)
		if err != nil {
			s.Log.Warn("unparseable filtered scope, leaving query unscoped",
				zap.String("module", scope.ModuleName), zap.Error(err))
			return nil, true
		}
		return condition.CompileAll(conds), false

	case KindCustom:
		script, _ := scope.Config["script"].(string)
		if script == "" || s.Evaluator == nil {
			return nil, true
		}
		filter, err := s.Evaluator.Evaluate(ctx, script, principal)
		if err != nil {
			s.Log.Warn("custom scope script failed, leaving query unscoped",
				zap.String("module", scope.ModuleName), zap.Error(err))
			return nil, true
		}
		conds, err := condition.ParseMap(filter)
		if err != nil {
			s.Log.Warn("custom scope produced an unparseable filter, leaving query unscoped",
				zap.String("module", scope.ModuleName), zap.Error(err))
			return nil, true
		}
		return condition.CompileAll(conds), false
	}

	s.Log.Warn("unknown data scope kind, leaving query unscoped", zap.String("kind", string(scope.Kind)))
	return nil, true
}

func (s *DataScopeServiceImpl) DeleteByProfileID(ctx context.Context, profileID primitive.ObjectID) error {
	return s.ScopeRepo.DeleteByProfileID(ctx, profileID)
}

func configString(config map[string]interface{}, key, fallback string) string {
	if v, ok := config[key].(string); ok && v != "" {
		return v
	}
	return fallback
}

// principalAttr reads a named identity attribute off the principal. Team
// scopes may point at any of these via config.user_attribute; an unknown
// name reads as empty and the scope degrades to identity.
func principalAttr(p *common_models.Principal, attr string) string {
	switch attr {
	case "team":
		return p.Team
	case "user_id":
		return p.UserID
	case "profile_id":
		return p.ProfileID
	case "name":
		return p.Name
	}
	return ""
}
