package catalog

import (
	"context"
	"errors"

	common_models "estate-crm/internal/common/models"
	"estate-crm/internal/registry"
)

var ErrModuleNotFound = errors.New("module not found")

type CatalogService interface {
	ListModules(ctx context.Context) ([]Module, error)
	GetModule(ctx context.Context, name string) (*Module, error)
	ModuleFields(ctx context.Context, moduleName, modelName string) ([]ModuleField, error)
	Levels() []LevelInfo
	PermissionsForModule(ctx context.Context, moduleName string) ([]Permission, error)
	PermissionsUpTo(ctx context.Context, moduleName string, level common_models.PermissionLevel) ([]Permission, error)
	PermissionsByIDs(ctx context.Context, ids []string) ([]Permission, error)
}

type CatalogServiceImpl struct {
	CatalogRepo CatalogRepository
	Registry    *registry.Registry
}

func NewCatalogService(catalogRepo CatalogRepository, reg *registry.Registry) CatalogService {
	return &CatalogServiceImpl{
		CatalogRepo: catalogRepo,
		Registry:    reg,
	}
}

func (s *CatalogServiceImpl) ListModules(ctx context.Context) ([]Module, error) {
	return s.CatalogRepo.ListModules(ctx, true)
}

func (s *CatalogServiceImpl) GetModule(ctx context.Context, name string) (*Module, error) {
	module, err := s.CatalogRepo.FindModuleByName(ctx, name)
	if err != nil {
		return nil, err
	}
	if module == nil || !module.Active {
		return nil, ErrModuleNotFound
	}
	return module, nil
}

// ModuleFields introspects the declared fields of a record type for policy
// editors. modelName may be empty, in which case the first model of the
// module is used.
func (s *CatalogServiceImpl) ModuleFields(ctx context.Context, moduleName, modelName string) ([]ModuleField, error) {
	if _, err := s.GetModule(ctx, moduleName); err != nil {
		return nil, err
	}

	var desc *registry.Descriptor
	if modelName != "" {
		d, ok := s.Registry.Lookup(moduleName, modelName)
		if !ok {
			return nil, ErrModuleNotFound
		}
		desc = d
	} else {
		models := s.Registry.Models(moduleName)
		if len(models) == 0 {
			return nil, ErrModuleNotFound
		}
		desc = models[0]
	}

	fields := make([]ModuleField, 0, len(desc.Fields))
	for _, f := range desc.Fields {
		fields = append(fields, ModuleField{
			Name:        f.Name,
			VerboseName: f.Label,
			Type:        string(f.Type),
			Required:    f.Required,
			HasChoices:  f.HasChoices(),
		})
	}
	return fields, nil
}

func (s *CatalogServiceImpl) Levels() []LevelInfo {
	levels := common_models.Levels()
	out := make([]LevelInfo, 0, len(levels))
	for _, l := range levels {
		out = append(out, LevelInfo{Level: int(l), Name: l.String()})
	}
	return out
}

func (s *CatalogServiceImpl) PermissionsForModule(ctx context.Context, moduleName string) ([]Permission, error) {
	if _, err := s.GetModule(ctx, moduleName); err != nil {
		return nil, err
	}
	return s.CatalogRepo.ListPermissions(ctx, moduleName)
}

// PermissionsUpTo returns the cumulative permission set of a module: every
// active permission whose level does not exceed the requested one.
func (s *CatalogServiceImpl) PermissionsUpTo(ctx context.Context, moduleName string, level common_models.PermissionLevel) ([]Permission, error) {
	all, err := s.PermissionsForModule(ctx, moduleName)
	if err != nil {
		return nil, err
	}

	var out []Permission
	for _, p := range all {
		if p.Level <= level {
			out = append(out, p)
		}
	}
	return out, nil
}

func (s *CatalogServiceImpl) PermissionsByIDs(ctx context.Context, ids []string) ([]Permission, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	return s.CatalogRepo.FindPermissionsByIDs(ctx, ids)
}
