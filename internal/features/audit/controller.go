package audit

import (
	"bufio"
	"strconv"
	"time"

	"estate-crm/internal/middleware"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

type AuditController struct {
	AuditService AuditService
	Log          *zap.Logger
}

func NewAuditController(auditService AuditService, log *zap.Logger) *AuditController {
	return &AuditController{
		AuditService: auditService,
		Log:          log,
	}
}

func queryFromRequest(c *fiber.Ctx) Query {
	q := Query{
		ModuleName: c.Query("module"),
		ModelName:  c.Query("model"),
		Action:     c.Query("action"),
		Severity:   c.Query("severity"),
		ActorID:    c.Query("user"),
		TargetID:   c.Query("target"),
		Search:     c.Query("search"),
		Page:       c.QueryInt("page", 1),
		PageSize:   c.QueryInt("page_size", 50),
	}
	if from := c.Query("date_from"); from != "" {
		if t, err := time.Parse("2006-01-02", from); err == nil {
			q.From = t
		}
	}
	if to := c.Query("date_to"); to != "" {
		if t, err := time.Parse("2006-01-02", to); err == nil {
			// Inclusive upper bound: the whole named day.
			q.To = t.AddDate(0, 0, 1)
		}
	}
	return q
}

// List godoc
// @Summary      Query the audit trail
// @Description  Paged audit entries filtered by time range, action, severity, actor and free text
// @Tags         audit
// @Produce      json
// @Param        date_from query string false "Start date (YYYY-MM-DD)"
// @Param        date_to query string false "End date (YYYY-MM-DD)"
// @Param        action query string false "Action tag"
// @Param        severity query string false "Severity"
// @Param        user query string false "Acting user id"
// @Param        search query string false "Free-text search"
// @Param        page query int false "Page number"
// @Param        page_size query int false "Page size (max 200)"
// @Success      200  {object} map[string]interface{}
// @Failure      500  {string} string "Failed to query audit trail"
// @Router       /api/audit [get]
func (ctrl *AuditController) List(c *fiber.Ctx) error {
	principal := middleware.PrincipalFromCtx(c)
	q := queryFromRequest(c)

	entries, total, err := ctrl.AuditService.List(c.UserContext(), principal, q)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": err.Error(),
		})
	}
	return c.JSON(fiber.Map{
		"entries":   entries,
		"total":     total,
		"page":      q.Page,
		"page_size": q.Limit(),
	})
}

// Get godoc
// @Summary      Get one audit entry
// @Description  Single entry plus up to 10 related entries for the same target
// @Tags         audit
// @Produce      json
// @Param        id path string true "Entry ID"
// @Success      200  {object} map[string]interface{}
// @Failure      404  {string} string "Entry not found"
// @Router       /api/audit/{id} [get]
func (ctrl *AuditController) Get(c *fiber.Ctx) error {
	principal := middleware.PrincipalFromCtx(c)

	entry, related, err := ctrl.AuditService.Get(c.UserContext(), principal, c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": err.Error(),
		})
	}
	if entry == nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Audit entry not found",
		})
	}
	return c.JSON(fiber.Map{
		"entry":   entry,
		"related": related,
	})
}

// Export godoc
// @Summary      Export the audit trail
// @Description  Streamed CSV (or XLSX with format=xlsx) of the filtered trail
// @Tags         audit
// @Produce      text/csv
// @Param        format query string false "csv (default) or xlsx"
// @Success      200  {string} string "File stream"
// @Failure      500  {string} string "Export failed"
// @Router       /api/audit/export [get]
func (ctrl *AuditController) Export(c *fiber.Ctx) error {
	principal := middleware.PrincipalFromCtx(c)
	q := queryFromRequest(c)
	ctx := c.UserContext()

	if c.Query("format") == "xlsx" {
		file, err := ctrl.AuditService.ExportXLSX(ctx, principal, q)
		if err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": err.Error(),
			})
		}
		c.Set(fiber.HeaderContentType, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
		c.Set(fiber.HeaderContentDisposition, `attachment; filename="audit_trail.xlsx"`)
		return file.Write(c.Response().BodyWriter())
	}

	c.Set(fiber.HeaderContentType, "text/csv")
	c.Set(fiber.HeaderContentDisposition, `attachment; filename="audit_trail.csv"`)
	c.Response().SetBodyStreamWriter(func(w *bufio.Writer) {
		if err := ctrl.AuditService.ExportCSV(ctx, principal, q, w); err != nil {
			ctrl.Log.Error("audit CSV export failed", zap.Error(err))
		}
	})
	return nil
}

// Purge godoc
// @Summary      Purge old audit entries
// @Description  Deletes entries older than the given number of days
// @Tags         audit
// @Accept       json
// @Produce      json
// @Param        request body map[string]int true "{\"days\": 365}"
// @Success      200  {object} map[string]interface{}
// @Failure      400  {string} string "Invalid request body"
// @Failure      500  {string} string "Purge failed"
// @Router       /api/audit/purge [post]
func (ctrl *AuditController) Purge(c *fiber.Ctx) error {
	var body struct {
		Days int `json:"days"`
	}
	if err := c.BodyParser(&body); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	deleted, err := ctrl.AuditService.Purge(c.UserContext(), body.Days)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": err.Error(),
		})
	}
	return c.JSON(fiber.Map{
		"deleted": deleted,
		"message": "Purged entries older than " + strconv.Itoa(body.Days) + " days",
	})
}
