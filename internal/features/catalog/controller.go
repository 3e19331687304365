package catalog

import (
	"github.com/gofiber/fiber/v2"
)

type CatalogController struct {
	CatalogService CatalogService
}

func NewCatalogController(catalogService CatalogService) *CatalogController {
	return &CatalogController{
		CatalogService: catalogService,
	}
}

// ListModules godoc
// @Summary      List active modules
// @Description  List the governed application modules in display order
// @Tags         catalog
// @Produce      json
// @Success      200  {array} Module
// @Failure      500  {string} string "Failed to list modules"
// @Router       /api/catalog/modules [get]
func (ctrl *CatalogController) ListModules(c *fiber.Ctx) error {
	modules, err := ctrl.CatalogService.ListModules(c.UserContext())
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": err.Error(),
		})
	}
	return c.JSON(modules)
}

// GetModuleFields godoc
// @Summary      Introspect module fields
// @Description  List the declared fields of a module's record type
// @Tags         catalog
// @Produce      json
// @Param        module path string true "Module name"
// @Param        model query string false "Model name within the module"
// @Success      200  {array} ModuleField
// @Failure      404  {string} string "Module not found"
// @Router       /api/catalog/modules/{module}/fields [get]
func (ctrl *CatalogController) GetModuleFields(c *fiber.Ctx) error {
	fields, err := ctrl.CatalogService.ModuleFields(c.UserContext(), c.Params("module"), c.Query("model"))
	if err != nil {
		if err == ErrModuleNotFound {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"error": "Module not found",
			})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": err.Error(),
		})
	}
	return c.JSON(fields)
}

// ListLevels godoc
// @Summary      List permission levels
// @Description  List the ordered permission levels of the ladder
// @Tags         catalog
// @Produce      json
// @Success      200  {array} LevelInfo
// @Router       /api/catalog/levels [get]
func (ctrl *CatalogController) ListLevels(c *fiber.Ctx) error {
	return c.JSON(ctrl.CatalogService.Levels())
}

// ListModulePermissions godoc
// @Summary      List module permissions
// @Description  List the grantable permissions of a module
// @Tags         catalog
// @Produce      json
// @Param        module path string true "Module name"
// @Success      200  {array} Permission
// @Failure      404  {string} string "Module not found"
// @Router       /api/catalog/modules/{module}/permissions [get]
func (ctrl *CatalogController) ListModulePermissions(c *fiber.Ctx) error {
	permissions, err := ctrl.CatalogService.PermissionsForModule(c.UserContext(), c.Params("module"))
	if err != nil {
		if err == ErrModuleNotFound {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"error": "Module not found",
			})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": err.Error(),
		})
	}
	return c.JSON(permissions)
}
