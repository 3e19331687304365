package profile

import (
	"estate-crm/internal/features/catalog"
	"estate-crm/internal/features/dropdown"
	"estate-crm/internal/features/fieldpolicy"
	"estate-crm/internal/middleware"
	"estate-crm/internal/registry"

	"github.com/gofiber/fiber/v2"
)

// PolicyController hosts the policy administration surface: module access
// levels, field policies and dropdown-restriction authoring helpers.
type PolicyController struct {
	ProfileService ProfileService
	CatalogService catalog.CatalogService
	FieldPolicies  fieldpolicy.FieldPolicyService
	Dropdowns      dropdown.DropdownService
	Registry       *registry.Registry
}

func NewPolicyController(
	profileService ProfileService,
	catalogService catalog.CatalogService,
	fieldPolicies fieldpolicy.FieldPolicyService,
	dropdowns dropdown.DropdownService,
	reg *registry.Registry,
) *PolicyController {
	return &PolicyController{
		ProfileService: profileService,
		CatalogService: catalogService,
		FieldPolicies:  fieldPolicies,
		Dropdowns:      dropdowns,
		Registry:       reg,
	}
}

// SetModuleLevel godoc
// @Summary      Set a profile's access level for a module
// @Description  Replaces the profile's permissions for the module with the cumulative set up to the level; 0 clears
// @Tags         policy
// @Accept       json
// @Produce      json
// @Param        id path string true "Profile ID"
// @Param        module path string true "Module name"
// @Param        request body map[string]int true "{\"level\": 0..4}"
// @Success      200  {object} map[string]interface{}
// @Failure      400  {string} string "Invalid level"
// @Router       /api/policy/profile/{id}/module/{module}/level [post]
func (ctrl *PolicyController) SetModuleLevel(c *fiber.Ctx) error {
	var body struct {
		Level int `json:"level"`
	}
	if err := c.BodyParser(&body); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"message": "Invalid request body",
		})
	}

	message, err := ctrl.ProfileService.SetModuleLevel(c.UserContext(), c.Params("id"), c.Params("module"), body.Level)
	if err != nil {
		status := fiber.StatusBadRequest
		if err == ErrProfileNotFound || err == catalog.ErrModuleNotFound {
			status = fiber.StatusNotFound
		}
		return c.Status(status).JSON(fiber.Map{
			"success": false,
			"message": err.Error(),
		})
	}
	return c.JSON(fiber.Map{
		"success": true,
		"message": message,
	})
}

// UpsertFieldPolicy godoc
// @Summary      Upsert a field policy
// @Description  Restricts one field of a record type for a profile; can_edit implies can_view
// @Tags         policy
// @Accept       json
// @Produce      json
// @Param        id path string true "Profile ID"
// @Param        request body FieldPolicyRequest true "Field policy"
// @Success      200  {object} map[string]interface{}
// @Failure      400  {string} string "Invalid request body"
// @Router       /api/policy/profile/{id}/field [post]
func (ctrl *PolicyController) UpsertFieldPolicy(c *fiber.Ctx) error {
	profileID, ok := parseObjectID(c, "id")
	if !ok {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"message": "Invalid profile ID",
		})
	}

	var req FieldPolicyRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"message": "Invalid request body",
		})
	}

	policy := &fieldpolicy.FieldPolicy{
		ProfileID:  profileID,
		ModuleName: req.Module,
		ModelName:  req.Model,
		FieldName:  req.Field,
		CanView:    req.CanView,
		CanEdit:    req.CanEdit,
		CanFilter:  req.CanFilter,
		InList:     req.VisibleInList,
		InDetail:   req.VisibleInDetail,
		InForm:     req.VisibleInForm,
		Condition:  req.Condition,
		Active:     true,
	}
	if err := ctrl.FieldPolicies.Upsert(c.UserContext(), policy); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"message": err.Error(),
		})
	}
	return c.JSON(fiber.Map{
		"success": true,
		"message": "Field policy saved",
	})
}

// ModuleFields godoc
// @Summary      Introspect a module's fields for the policy editor
// @Tags         policy
// @Produce      json
// @Param        module path string true "Module name"
// @Param        model query string false "Model name"
// @Success      200  {array} catalog.ModuleField
// @Failure      404  {string} string "Module not found"
// @Router       /api/policy/module/{module}/fields [get]
func (ctrl *PolicyController) ModuleFields(c *fiber.Ctx) error {
	fields, err := ctrl.CatalogService.ModuleFields(c.UserContext(), c.Params("module"), c.Query("model"))
	if err != nil {
		if err == catalog.ErrModuleNotFound {
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

// FieldChoices godoc
// @Summary      List the choice values of a field
// @Description  Options for dropdown-restriction authoring, limited to 100
// @Tags         policy
// @Produce      json
// @Param        module path string true "Module name"
// @Param        path path string true "Field name"
// @Param        model query string false "Model name"
// @Success      200  {array} map[string]string
// @Failure      404  {string} string "Unknown module or field"
// @Router       /api/policy/module/{module}/field/{path}/choices [get]
func (ctrl *PolicyController) FieldChoices(c *fiber.Ctx) error {
	moduleName := c.Params("module")
	modelName := c.Query("model")
	if modelName == "" {
		models := ctrl.Registry.Models(moduleName)
		if len(models) == 0 {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"error": "Module not found",
			})
		}
		modelName = models[0].Model
	}

	principal := middleware.PrincipalFromCtx(c)
	options, err := ctrl.Dropdowns.ListOptions(c.UserContext(), principal, moduleName, modelName, c.Params("path"))
	if err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	choices := make([]fiber.Map, 0, len(options))
	for _, o := range options {
		choices = append(choices, fiber.Map{"value": o.Value, "display": o.Label})
	}
	return c.JSON(choices)
}

// FieldPolicyRequest is the write shape of the field-policy endpoint.
type FieldPolicyRequest struct {
	Module          string                 `json:"module"`
	Model           string                 `json:"model"`
	Field           string                 `json:"field"`
	CanView         bool                   `json:"can_view"`
	CanEdit         bool                   `json:"can_edit"`
	CanFilter       bool                   `json:"can_filter"`
	VisibleInList   bool                   `json:"visible_in_list"`
	VisibleInDetail bool                   `json:"visible_in_detail"`
	VisibleInForm   bool                   `json:"visible_in_form"`
	Condition       map[string]interface{} `json:"condition,omitempty"`
}
