package profile

import (
	"estate-crm/internal/middleware"

	"github.com/gofiber/fiber/v2"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

type ProfileController struct {
	ProfileService ProfileService
}

func NewProfileController(profileService ProfileService) *ProfileController {
	return &ProfileController{
		ProfileService: profileService,
	}
}

// CreateProfile godoc
// @Summary      Create a profile
// @Description  Create a named permission bundle
// @Tags         profiles
// @Accept       json
// @Produce      json
// @Param        profile body Profile true "Profile object"
// @Success      201  {object} Profile
// @Failure      400  {string} string "Invalid request body"
// @Router       /api/profiles [post]
func (ctrl *ProfileController) CreateProfile(c *fiber.Ctx) error {
	var profile Profile
	if err := c.BodyParser(&profile); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	created, err := ctrl.ProfileService.CreateProfile(c.UserContext(), &profile)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": err.Error(),
		})
	}
	return c.Status(fiber.StatusCreated).JSON(created)
}

// ListProfiles godoc
// @Summary      List profiles
// @Tags         profiles
// @Produce      json
// @Success      200  {array} Profile
// @Router       /api/profiles [get]
func (ctrl *ProfileController) ListProfiles(c *fiber.Ctx) error {
	profiles, err := ctrl.ProfileService.ListProfiles(c.UserContext())
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": err.Error(),
		})
	}
	return c.JSON(profiles)
}

// GetProfile godoc
// @Summary      Get a profile
// @Tags         profiles
// @Produce      json
// @Param        id path string true "Profile ID"
// @Success      200  {object} Profile
// @Failure      404  {string} string "Profile not found"
// @Router       /api/profiles/{id} [get]
func (ctrl *ProfileController) GetProfile(c *fiber.Ctx) error {
	profile, err := ctrl.ProfileService.GetProfile(c.UserContext(), c.Params("id"))
	if err != nil {
		if err == ErrProfileNotFound {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"error": "Profile not found",
			})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": err.Error(),
		})
	}
	return c.JSON(profile)
}

// UpdateProfile godoc
// @Summary      Update a profile
// @Tags         profiles
// @Accept       json
// @Produce      json
// @Param        id path string true "Profile ID"
// @Param        profile body Profile true "Profile object"
// @Success      200  {object} map[string]string
// @Failure      400  {string} string "Invalid request body"
// @Router       /api/profiles/{id} [put]
func (ctrl *ProfileController) UpdateProfile(c *fiber.Ctx) error {
	var profile Profile
	if err := c.BodyParser(&profile); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	if err := ctrl.ProfileService.UpdateProfile(c.UserContext(), c.Params("id"), &profile); err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": err.Error(),
		})
	}
	return c.JSON(fiber.Map{
		"message": "Profile updated successfully",
	})
}

// DeleteProfile godoc
// @Summary      Delete a profile
// @Description  Removes the profile, its policy attachments, and unbinds its users
// @Tags         profiles
// @Produce      json
// @Param        id path string true "Profile ID"
// @Success      200  {object} map[string]string
// @Failure      400  {string} string "System profiles cannot be deleted"
// @Router       /api/profiles/{id} [delete]
func (ctrl *ProfileController) DeleteProfile(c *fiber.Ctx) error {
	if err := ctrl.ProfileService.DeleteProfile(c.UserContext(), c.Params("id")); err != nil {
		status := fiber.StatusInternalServerError
		if err == ErrProfileNotFound {
			status = fiber.StatusNotFound
		} else if err == ErrSystemProfile {
			status = fiber.StatusBadRequest
		}
		return c.Status(status).JSON(fiber.Map{
			"error": err.Error(),
		})
	}
	return c.JSON(fiber.Map{
		"message": "Profile deleted successfully",
	})
}

// BindUser godoc
// @Summary      Bind a user to a profile
// @Description  Upserts the user's principal binding (at most one profile per user)
// @Tags         profiles
// @Accept       json
// @Produce      json
// @Param        binding body Binding true "Binding object"
// @Success      200  {object} map[string]string
// @Failure      400  {string} string "Invalid request body"
// @Router       /api/profiles/bind [post]
func (ctrl *ProfileController) BindUser(c *fiber.Ctx) error {
	var binding Binding
	if err := c.BodyParser(&binding); err != nil || binding.UserID.IsZero() {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	if err := ctrl.ProfileService.BindUser(c.UserContext(), &binding); err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": err.Error(),
		})
	}
	return c.JSON(fiber.Map{
		"message": "User binding saved",
	})
}

// AccessibleModules godoc
// @Summary      List modules the caller can access
// @Tags         profiles
// @Produce      json
// @Success      200  {array} catalog.Module
// @Router       /api/profiles/me/modules [get]
func (ctrl *ProfileController) AccessibleModules(c *fiber.Ctx) error {
	principal := middleware.PrincipalFromCtx(c)
	modules, err := ctrl.ProfileService.AccessibleModules(c.UserContext(), principal)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": err.Error(),
		})
	}
	return c.JSON(modules)
}

func parseObjectID(c *fiber.Ctx, param string) (primitive.ObjectID, bool) {
	oid, err := primitive.ObjectIDFromHex(c.Params(param))
	return oid, err == nil
}
