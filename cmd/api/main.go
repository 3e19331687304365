package main

import (
	"context"
	"fmt"
	"log"
	"time"

	common_api "estate-crm/internal/common/api"
	"estate-crm/internal/config"
	"estate-crm/internal/database"
	"estate-crm/internal/features/audit"
	"estate-crm/internal/features/auth"
	"estate-crm/internal/features/catalog"
	"estate-crm/internal/features/datafilter"
	"estate-crm/internal/features/datascope"
	"estate-crm/internal/features/dropdown"
	"estate-crm/internal/features/fieldpolicy"
	"estate-crm/internal/features/policyctx"
	"estate-crm/internal/features/profile"
	"estate-crm/internal/features/record"
	"estate-crm/internal/features/system"
	"estate-crm/internal/features/user"
	"estate-crm/internal/logger"
	"estate-crm/internal/middleware"
	"estate-crm/internal/registry"
	"estate-crm/pkg/utils"

	_ "estate-crm/docs" // Import swagger docs

	"github.com/gofiber/fiber/v2"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"
)

// NewFiberServer creates a new Fiber app instance
func NewFiberServer() *fiber.App {
	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			code := fiber.StatusInternalServerError
			if e, ok := err.(*fiber.Error); ok {
				code = e.Code
			}
			return c.Status(code).JSON(fiber.Map{
				"error": err.Error(),
			})
		},
	})

	app.Use(middleware.CORSMiddleware())

	return app
}

// AsRoute is a helper function to reduce boilerplate.
// It tags the constructor so Fx knows to add it to the "routes" group.
func AsRoute(f any) any {
	return fx.Annotate(
		f,
		fx.As(new(common_api.Route)),
		fx.ResultTags(`group:"routes"`),
	)
}

// RegisterAllRoutes takes the group "routes" (slice of interfaces)
// and calls Setup() on each one.
func RegisterAllRoutes(app *fiber.App, routes []common_api.Route) {
	for _, route := range routes {
		route.Setup(app)
	}
	log.Printf("Registered %d routes\n", len(routes))
}

var RegisterAllRoutesWithAnnotation = fx.Annotate(
	RegisterAllRoutes,
	fx.ParamTags(``, `group:"routes"`),
)

// StartServer creates a lifecycle hook to start Fiber in a goroutine
// and shut it down when the app exits.
func StartServer(lc fx.Lifecycle, app *fiber.App, cfg *config.Config) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			utils.SetSecret(cfg.JWTSecret)
			go func() {
				port := fmt.Sprintf(":%s", cfg.Port)
				if err := app.Listen(port); err != nil {
					log.Fatalf("Server failed to start: %v", err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return app.Shutdown()
		},
	})
}

// InitializeIndexes ensures that necessary database indexes are created
func InitializeIndexes(
	lc fx.Lifecycle,
	zlog *zap.Logger,
	catalogRepo catalog.CatalogRepository,
	profileRepo profile.ProfileRepository,
	bindingRepo profile.BindingRepository,
	userRepo user.UserRepository,
	policyRepo fieldpolicy.FieldPolicyRepository,
	filterRepo datafilter.DataFilterRepository,
	scopeRepo datascope.DataScopeRepository,
	dropdownRepo dropdown.DropdownRepository,
	auditRepo audit.AuditRepository,
	recordRepo record.RecordRepository,
) {
	type indexed interface {
		EnsureIndexes(ctx context.Context) error
	}
	repos := map[string]indexed{
		"catalog":      catalogRepo,
		"profiles":     profileRepo,
		"bindings":     bindingRepo,
		"users":        userRepo,
		"fieldpolicy":  policyRepo,
		"datafilters":  filterRepo,
		"datascopes":   scopeRepo,
		"dropdowns":    dropdownRepo,
		"audit":        auditRepo,
		"records":      recordRepo,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
				defer cancel()
				for name, repo := range repos {
					if err := repo.EnsureIndexes(ctx); err != nil {
						zlog.Warn("failed to ensure indexes",
							zap.String("collection", name), zap.Error(err))
					}
				}
			}()
			return nil
		},
	})
}

// @title           Estate CRM Policy API
// @version         1.0
// @description     Profile-based access control, data scoping and audit trail for the estate CRM.

// @host            localhost:8000
// @BasePath        /
func main() {
	app := fx.New(
		fx.Provide(
			config.LoadConfig,
			database.NewDatabase,
			logger.NewLogger,
			NewFiberServer,
			registry.Default,

			// Repositories
			catalog.NewCatalogRepository,
			profile.NewProfileRepository,
			profile.NewBindingRepository,
			user.NewUserRepository,
			fieldpolicy.NewFieldPolicyRepository,
			datafilter.NewDataFilterRepository,
			datascope.NewDataScopeRepository,
			dropdown.NewDropdownRepository,
			audit.NewAuditRepository,
			record.NewRecordRepository,

			// Services
			catalog.NewCatalogService,
			fieldpolicy.NewFieldPolicyService,
			datafilter.NewDataFilterService,
			datascope.NewTengoEvaluator,
			datascope.NewDataScopeService,
			dropdown.NewDropdownService,
			audit.NewAuditService,
			profile.NewProfileService,
			policyctx.NewPolicyContextService,
			record.NewRecordService,
			auth.NewAuthService,

			// Interface adapters to break circular dependencies and satisfy Fx
			func(e *datascope.TengoEvaluator) datascope.Evaluator { return e },
			func(s profile.ProfileService) middleware.PrincipalResolver { return s },
			func(r record.RecordRepository) dropdown.RecordSource { return r },

			// Middleware
			middleware.NewAuth,
			middleware.NewGuard,

			// Controllers
			catalog.NewCatalogController,
			profile.NewProfileController,
			profile.NewPolicyController,
			record.NewRecordController,
			audit.NewAuditController,
			auth.NewAuthController,

			// API Routes
			AsRoute(catalog.NewCatalogApi),
			AsRoute(profile.NewProfileApi),
			AsRoute(record.NewRecordApi),
			AsRoute(audit.NewAuditApi),
			AsRoute(auth.NewAuthApi),
			AsRoute(policyctx.NewPolicyContextApi),
			AsRoute(system.NewHealthApi),
			AsRoute(system.NewSwaggerApi),
		),
		fx.WithLogger(func(log *zap.Logger) fxevent.Logger {
			return &fxevent.ZapLogger{Logger: log}
		}),
		fx.Invoke(
			RegisterAllRoutesWithAnnotation,
			StartServer,
			InitializeIndexes,
			audit.NewRetentionJob,
		),
	)

	app.Run()
}
