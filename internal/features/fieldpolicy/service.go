package fieldpolicy

import (
	"context"
	"fmt"
	"time"

	common_models "estate-crm/internal/common/models"
	"estate-crm/internal/registry"
	"estate-crm/pkg/condition"

	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

type FieldPolicyService interface {
	Upsert(ctx context.Context, policy *FieldPolicy) error
	PoliciesForModel(ctx context.Context, profileID, moduleName, modelName string) ([]FieldPolicy, error)
	VisibleFields(ctx context.Context, principal *common_models.Principal, moduleName, modelName string, view ViewType, record map[string]interface{}) ([]string, error)
	CanEdit(ctx context.Context, principal *common_models.Principal, moduleName, modelName, fieldName string) (bool, error)
	DeleteByProfileID(ctx context.Context, profileID primitive.ObjectID) error
}

type FieldPolicyServiceImpl struct {
	PolicyRepo FieldPolicyRepository
	Registry   *registry.Registry
	Log        *zap.Logger
}

func NewFieldPolicyService(policyRepo FieldPolicyRepository, reg *registry.Registry, log *zap.Logger) FieldPolicyService {
	return &FieldPolicyServiceImpl{
		PolicyRepo: policyRepo,
		Registry:   reg,
		Log:        log,
	}
}

// Upsert normalizes and persists a field policy. Edit access implies view
// access; a field that cannot be viewed cannot be edited or rendered.
func (s *FieldPolicyServiceImpl) Upsert(ctx context.Context, policy *FieldPolicy) error {
	desc, ok := s.Registry.Lookup(policy.ModuleName, policy.ModelName)
	if !ok {
		return fmt.Errorf("unknown record type %s/%s", policy.ModuleName, policy.ModelName)
	}
	if _, ok := desc.Field(policy.FieldName); !ok {
		return fmt.Errorf("unknown field %q on %s/%s", policy.FieldName, policy.ModuleName, policy.ModelName)
	}

	if policy.CanEdit {
		policy.CanView = true
	}
	if !policy.CanView {
		policy.CanEdit = false
		policy.InList = false
		policy.InDetail = false
		policy.InForm = false
	}

	now := time.Now()
	policy.UpdatedAt = now
	if policy.CreatedAt.IsZero() {
		policy.CreatedAt = now
	}
	return s.PolicyRepo.Upsert(ctx, policy)
}

func (s *FieldPolicyServiceImpl) PoliciesForModel(ctx context.Context, profileID, moduleName, modelName string) ([]FieldPolicy, error) {
	oid, err := primitive.ObjectIDFromHex(profileID)
	if err != nil {
		return nil, err
	}
	return s.PolicyRepo.FindForModel(ctx, oid, moduleName, modelName)
}

// VisibleFields resolves the fields of a record type the principal may see
// in the given view. Absence of a policy row means fully visible; a row
// with a condition map applies only when the record matches it. Superusers
// see everything.
func (s *FieldPolicyServiceImpl) VisibleFields(ctx context.Context, principal *common_models.Principal, moduleName, modelName string, view ViewType, record map[string]interface{}) ([]string, error) {
	desc, ok := s.Registry.Lookup(moduleName, modelName)
	if !ok {
		return nil, fmt.Errorf("unknown record type %s/%s", moduleName, modelName)
	}
	all := desc.FieldNames()

	if principal == nil || principal.Superuser || principal.ProfileID == "" {
		return all, nil
	}

	profileID, err := primitive.ObjectIDFromHex(principal.ProfileID)
	if err != nil {
		return all, nil
	}
	policies, err := s.PolicyRepo.FindForModel(ctx, profileID, moduleName, modelName)
	if err != nil {
		return nil, err
	}

	byField := make(map[string]*FieldPolicy, len(policies))
	for i := range policies {
		byField[policies[i].FieldName] = &policies[i]
	}

	visible := make([]string, 0, len(all))
	for _, name := range all {
		policy, restricted := byField[name]
		if !restricted {
			visible = append(visible, name)
			continue
		}
		if policy.AllowsView(view) && s.conditionMet(policy, record) {
			visible = append(visible, name)
		}
	}
	return visible, nil
}

// conditionMet evaluates the conditional-visibility map as equality
// predicates against the record snapshot. No condition, no record to test
// against, or an unparseable condition all count as met, so a broken
// condition never blanks the field everywhere.
func (s *FieldPolicyServiceImpl) conditionMet(policy *FieldPolicy, record map[string]interface{}) bool {
	if len(policy.Condition) == 0 || record == nil {
		return true
	}
	conditions, err := condition.ParseMap(policy.Condition)
	if err != nil {
		s.Log.Warn("unparseable field policy condition",
			zap.String("field", policy.FieldName),
			zap.String("module", policy.ModuleName),
			zap.Error(err))
		return true
	}
	return condition.MatchesAll(conditions, record)
}

// CanEdit reports whether the principal may write the field. Defaults to
// true when no policy row restricts it.
func (s *FieldPolicyServiceImpl) CanEdit(ctx context.Context, principal *common_models.Principal, moduleName, modelName, fieldName string) (bool, error) {
	if principal == nil {
		return false, nil
	}
	if principal.Superuser || principal.ProfileID == "" {
		return true, nil
	}

	profileID, err := primitive.ObjectIDFromHex(principal.ProfileID)
	if err != nil {
		return true, nil
	}
	policies, err := s.PolicyRepo.FindForModel(ctx, profileID, moduleName, modelName)
	if err != nil {
		return false, err
	}
	for i := range policies {
		if policies[i].FieldName == fieldName {
			return policies[i].CanEdit, nil
		}
	}
	return true, nil
}

func (s *FieldPolicyServiceImpl) DeleteByProfileID(ctx context.Context, profileID primitive.ObjectID) error {
	return s.PolicyRepo.DeleteByProfileID(ctx, profileID)
}
