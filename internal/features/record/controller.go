package record

import (
	"errors"

	"estate-crm/internal/features/dropdown"
	"estate-crm/internal/middleware"

	"github.com/gofiber/fiber/v2"
)

type RecordController struct {
	RecordService RecordService
	Dropdowns     dropdown.DropdownService
}

func NewRecordController(recordService RecordService, dropdowns dropdown.DropdownService) *RecordController {
	return &RecordController{
		RecordService: recordService,
		Dropdowns:     dropdowns,
	}
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, ErrRecordNotFound), errors.Is(err, ErrUnknownType):
		return fiber.StatusNotFound
	case errors.Is(err, ErrFieldNotAllowed), errors.Is(err, dropdown.ErrInputRejected):
		return fiber.StatusForbidden
	}
	return fiber.StatusBadRequest
}

// List godoc
// @Summary      List records
// @Description  Paged records of a record type, narrowed by the caller's filters and scopes
// @Tags         records
// @Produce      json
// @Param        module path string true "Module name"
// @Param        model path string true "Model name"
// @Param        page query int false "Page number"
// @Param        page_size query int false "Page size (max 200)"
// @Success      200  {object} ListResult
// @Failure      404  {string} string "Unknown record type"
// @Router       /api/records/{module}/{model} [get]
func (ctrl *RecordController) List(c *fiber.Ctx) error {
	principal := middleware.PrincipalFromCtx(c)

	result, err := ctrl.RecordService.List(c.UserContext(), principal,
		c.Params("module"), c.Params("model"),
		c.QueryInt("page", 1), c.QueryInt("page_size", 50))
	if err != nil {
		return c.Status(statusFor(err)).JSON(fiber.Map{
			"error": err.Error(),
		})
	}
	return c.JSON(result)
}

// Get godoc
// @Summary      Get a record
// @Tags         records
// @Produce      json
// @Param        module path string true "Module name"
// @Param        model path string true "Model name"
// @Param        id path string true "Record ID"
// @Success      200  {object} map[string]interface{}
// @Failure      404  {string} string "Record not found"
// @Router       /api/records/{module}/{model}/{id} [get]
func (ctrl *RecordController) Get(c *fiber.Ctx) error {
	principal := middleware.PrincipalFromCtx(c)

	record, err := ctrl.RecordService.Get(c.UserContext(), principal,
		c.Params("module"), c.Params("model"), c.Params("id"))
	if err != nil {
		return c.Status(statusFor(err)).JSON(fiber.Map{
			"error": err.Error(),
		})
	}
	return c.JSON(record)
}

// Create godoc
// @Summary      Create a record
// @Tags         records
// @Accept       json
// @Produce      json
// @Param        module path string true "Module name"
// @Param        model path string true "Model name"
// @Param        record body map[string]interface{} true "Record fields"
// @Success      201  {object} map[string]interface{}
// @Failure      400  {string} string "Validation failed"
// @Router       /api/records/{module}/{model} [post]
func (ctrl *RecordController) Create(c *fiber.Ctx) error {
	principal := middleware.PrincipalFromCtx(c)

	var payload map[string]interface{}
	if err := c.BodyParser(&payload); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	created, err := ctrl.RecordService.Create(c.UserContext(), principal,
		c.Params("module"), c.Params("model"), payload)
	if err != nil {
		return c.Status(statusFor(err)).JSON(fiber.Map{
			"error": err.Error(),
		})
	}
	return c.Status(fiber.StatusCreated).JSON(created)
}

// Update godoc
// @Summary      Update a record
// @Tags         records
// @Accept       json
// @Produce      json
// @Param        module path string true "Module name"
// @Param        model path string true "Model name"
// @Param        id path string true "Record ID"
// @Param        record body map[string]interface{} true "Changed fields"
// @Success      200  {object} map[string]interface{}
// @Failure      404  {string} string "Record not found"
// @Router       /api/records/{module}/{model}/{id} [put]
func (ctrl *RecordController) Update(c *fiber.Ctx) error {
	principal := middleware.PrincipalFromCtx(c)

	var payload map[string]interface{}
	if err := c.BodyParser(&payload); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	updated, err := ctrl.RecordService.Update(c.UserContext(), principal,
		c.Params("module"), c.Params("model"), c.Params("id"), payload)
	if err != nil {
		return c.Status(statusFor(err)).JSON(fiber.Map{
			"error": err.Error(),
		})
	}
	return c.JSON(updated)
}

// Delete godoc
// @Summary      Delete a record
// @Tags         records
// @Produce      json
// @Param        module path string true "Module name"
// @Param        model path string true "Model name"
// @Param        id path string true "Record ID"
// @Success      200  {object} map[string]string
// @Failure      404  {string} string "Record not found"
// @Router       /api/records/{module}/{model}/{id} [delete]
func (ctrl *RecordController) Delete(c *fiber.Ctx) error {
	principal := middleware.PrincipalFromCtx(c)

	if err := ctrl.RecordService.Delete(c.UserContext(), principal,
		c.Params("module"), c.Params("model"), c.Params("id")); err != nil {
		return c.Status(statusFor(err)).JSON(fiber.Map{
			"error": err.Error(),
		})
	}
	return c.JSON(fiber.Map{
		"message": "Record deleted successfully",
	})
}

// Options godoc
// @Summary      List permitted dropdown options for a field
// @Tags         records
// @Produce      json
// @Param        module path string true "Module name"
// @Param        model path string true "Model name"
// @Param        field path string true "Field name"
// @Success      200  {array} dropdown.Option
// @Failure      404  {string} string "Unknown field"
// @Router       /api/records/{module}/{model}/options/{field} [get]
func (ctrl *RecordController) Options(c *fiber.Ctx) error {
	principal := middleware.PrincipalFromCtx(c)

	options, err := ctrl.Dropdowns.ListOptions(c.UserContext(), principal,
		c.Params("module"), c.Params("model"), c.Params("field"))
	if err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": err.Error(),
		})
	}
	return c.JSON(options)
}
