package record

import (
	"context"
	"errors"
	"fmt"

	common_models "estate-crm/internal/common/models"
	"estate-crm/internal/features/audit"
	"estate-crm/internal/features/dropdown"
	"estate-crm/internal/features/fieldpolicy"
	"estate-crm/internal/features/policyctx"
	"estate-crm/internal/registry"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

var (
	ErrRecordNotFound  = errors.New("record not found")
	ErrUnknownType     = errors.New("unknown record type")
	ErrFieldNotAllowed = errors.New("field cannot be written by this profile")
)

// ListResult is one page of guarded, projected records.
type ListResult struct {
	Records  []map[string]interface{} `json:"records"`
	Total    int64                    `json:"total"`
	Page     int                      `json:"page"`
	PageSize int                      `json:"page_size"`
}

type RecordService interface {
	Create(ctx context.Context, principal *common_models.Principal, moduleName, modelName string, payload map[string]interface{}) (map[string]interface{}, error)
	Get(ctx context.Context, principal *common_models.Principal, moduleName, modelName, id string) (map[string]interface{}, error)
	List(ctx context.Context, principal *common_models.Principal, moduleName, modelName string, page, pageSize int) (*ListResult, error)
	Update(ctx context.Context, principal *common_models.Principal, moduleName, modelName, id string, payload map[string]interface{}) (map[string]interface{}, error)
	Delete(ctx context.Context, principal *common_models.Principal, moduleName, modelName, id string) error
}

type RecordServiceImpl struct {
	RecordRepo    RecordRepository
	Registry      *registry.Registry
	PolicyContext policyctx.PolicyContextService
	FieldPolicies fieldpolicy.FieldPolicyService
	Dropdowns     dropdown.DropdownService
	AuditService  audit.AuditService
	Log           *zap.Logger
}

func NewRecordService(
	recordRepo RecordRepository,
	reg *registry.Registry,
	policyContext policyctx.PolicyContextService,
	fieldPolicies fieldpolicy.FieldPolicyService,
	dropdowns dropdown.DropdownService,
	auditService audit.AuditService,
	log *zap.Logger,
) RecordService {
	return &RecordServiceImpl{
		RecordRepo:    recordRepo,
		Registry:      reg,
		PolicyContext: policyContext,
		FieldPolicies: fieldPolicies,
		Dropdowns:     dropdowns,
		AuditService:  auditService,
		Log:           log,
	}
}

func (s *RecordServiceImpl) descriptor(moduleName, modelName string) (*registry.Descriptor, error) {
	desc, ok := s.Registry.Lookup(moduleName, modelName)
	if !ok {
		return nil, fmt.Errorf("%w: %s/%s", ErrUnknownType, moduleName, modelName)
	}
	return desc, nil
}

// validatePayload checks every submitted field: it must be declared,
// writable under the caller's field policies, and hold a permitted choice
// value where the field has choices.
func (s *RecordServiceImpl) validatePayload(ctx context.Context, principal *common_models.Principal, desc *registry.Descriptor, payload map[string]interface{}) error {
	for name, value := range payload {
		field, ok := desc.Field(name)
		if !ok {
			return fmt.Errorf("unknown field %q on %s/%s", name, desc.Module, desc.Model)
		}

		editable, err := s.FieldPolicies.CanEdit(ctx, principal, desc.Module, desc.Model, name)
		if err != nil {
			return err
		}
		if !editable {
			return fmt.Errorf("%w: %s", ErrFieldNotAllowed, name)
		}

		if field.HasChoices() && value != nil {
			if err := s.Dropdowns.ValidateInput(ctx, principal, desc.Module, desc.Model, name, choiceValues(value)); err != nil {
				return err
			}
		}
	}
	return nil
}

func choiceValues(value interface{}) []string {
	switch v := value.(type) {
	case string:
		return []string{v}
	case []string:
		return v
	case []interface{}:
		values := make([]string, 0, len(v))
		for _, item := range v {
			values = append(values, fmt.Sprintf("%v", item))
		}
		return values
	case map[string]interface{}:
		// Lookup values arrive as nested maps keyed by the related name.
		if name, ok := v["name"].(string); ok {
			return []string{name}
		}
	}
	return []string{fmt.Sprintf("%v", value)}
}

func (s *RecordServiceImpl) Create(ctx context.Context, principal *common_models.Principal, moduleName, modelName string, payload map[string]interface{}) (map[string]interface{}, error) {
	desc, err := s.descriptor(moduleName, modelName)
	if err != nil {
		return nil, err
	}

	for _, field := range desc.Fields {
		if !field.Required {
			continue
		}
		if v, ok := payload[field.Name]; !ok || v == nil || v == "" {
			return nil, fmt.Errorf("field %q is required", field.Name)
		}
	}
	if err := s.validatePayload(ctx, principal, desc, payload); err != nil {
		return nil, err
	}

	doc := make(map[string]interface{}, len(payload)+1)
	for k, v := range payload {
		doc[k] = v
	}
	if principal != nil {
		doc[desc.OwnerField] = principal.UserID
	}

	id, err := s.RecordRepo.Insert(ctx, moduleName, modelName, doc)
	if err != nil {
		return nil, err
	}

	s.AuditService.RecordCreate(ctx, desc, id, doc)
	return s.project(ctx, principal, desc, doc, fieldpolicy.ViewDetail)
}

// Get loads one record through the query guard and projects it to the
// caller's detail-view fields. Out-of-scope records read as absent, not
// forbidden.
func (s *RecordServiceImpl) Get(ctx context.Context, principal *common_models.Principal, moduleName, modelName, id string) (map[string]interface{}, error) {
	desc, err := s.descriptor(moduleName, modelName)
	if err != nil {
		return nil, err
	}
	record, err := s.guardedLoad(ctx, principal, desc, id)
	if err != nil {
		return nil, err
	}
	return s.project(ctx, principal, desc, record, fieldpolicy.ViewDetail)
}

func (s *RecordServiceImpl) guardedLoad(ctx context.Context, principal *common_models.Principal, desc *registry.Descriptor, id string) (map[string]interface{}, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, ErrRecordNotFound
	}

	guarded, err := s.PolicyContext.GuardQuery(ctx, principal, desc.Module, desc.Model, bson.M{"_id": oid})
	if err != nil {
		return nil, err
	}
	record, err := s.RecordRepo.FindOne(ctx, desc.Module, desc.Model, guarded)
	if err != nil {
		return nil, err
	}
	if record == nil {
		return nil, ErrRecordNotFound
	}
	return record, nil
}

func (s *RecordServiceImpl) List(ctx context.Context, principal *common_models.Principal, moduleName, modelName string, page, pageSize int) (*ListResult, error) {
	desc, err := s.descriptor(moduleName, modelName)
	if err != nil {
		return nil, err
	}

	guarded, err := s.PolicyContext.GuardQuery(ctx, principal, moduleName, modelName, bson.M{})
	if err != nil {
		return nil, err
	}

	records, total, err := s.RecordRepo.Find(ctx, moduleName, modelName, guarded, page, pageSize)
	if err != nil {
		return nil, err
	}

	projected := make([]map[string]interface{}, 0, len(records))
	for _, record := range records {
		p, err := s.project(ctx, principal, desc, record, fieldpolicy.ViewList)
		if err != nil {
			return nil, err
		}
		projected = append(projected, p)
	}

	if page < 1 {
		page = 1
	}
	if pageSize <= 0 || pageSize > 200 {
		pageSize = 50
	}
	return &ListResult{Records: projected, Total: total, Page: page, PageSize: pageSize}, nil
}

func (s *RecordServiceImpl) Update(ctx context.Context, principal *common_models.Principal, moduleName, modelName, id string, payload map[string]interface{}) (map[string]interface{}, error) {
	desc, err := s.descriptor(moduleName, modelName)
	if err != nil {
		return nil, err
	}

	before, err := s.guardedLoad(ctx, principal, desc, id)
	if err != nil {
		return nil, err
	}
	if err := s.validatePayload(ctx, principal, desc, payload); err != nil {
		return nil, err
	}

	oid := before["_id"].(primitive.ObjectID)
	set := make(map[string]interface{}, len(payload))
	after := make(map[string]interface{}, len(before)+len(payload))
	for k, v := range before {
		after[k] = v
	}
	for k, v := range payload {
		set[k] = v
		after[k] = v
	}

	if err := s.RecordRepo.Update(ctx, oid, set); err != nil {
		return nil, err
	}

	s.AuditService.RecordUpdate(ctx, desc, oid, before, after)
	return s.project(ctx, principal, desc, after, fieldpolicy.ViewDetail)
}

func (s *RecordServiceImpl) Delete(ctx context.Context, principal *common_models.Principal, moduleName, modelName, id string) error {
	desc, err := s.descriptor(moduleName, modelName)
	if err != nil {
		return err
	}

	record, err := s.guardedLoad(ctx, principal, desc, id)
	if err != nil {
		return err
	}

	oid := record["_id"].(primitive.ObjectID)
	if err := s.RecordRepo.Delete(ctx, oid); err != nil {
		return err
	}

	s.AuditService.RecordDelete(ctx, desc, oid, record)
	return nil
}

// project keeps only the fields visible to the principal in the given view,
// plus the record identity.
func (s *RecordServiceImpl) project(ctx context.Context, principal *common_models.Principal, desc *registry.Descriptor, record map[string]interface{}, view fieldpolicy.ViewType) (map[string]interface{}, error) {
	visible, err := s.FieldPolicies.VisibleFields(ctx, principal, desc.Module, desc.Model, view, record)
	if err != nil {
		return nil, err
	}

	out := make(map[string]interface{}, len(visible)+1)
	if id, ok := record["_id"].(primitive.ObjectID); ok {
		out["id"] = id.Hex()
	}
	for _, name := range visible {
		if v, ok := record[name]; ok {
			out[name] = v
		}
	}
	return out, nil
}
