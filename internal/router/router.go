package router

import (
	"time"

	"roastkit/internal/config"
	"roastkit/internal/handler"
	"roastkit/internal/infra"
	"roastkit/internal/middleware"
	"roastkit/internal/model"
	"roastkit/internal/repository"
	"roastkit/internal/service"
	"roastkit/internal/worker"

	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// Deps are the long-lived collaborators built by main. Store, Breaker,
// Redis and Dispatcher may be nil (tests, storage disabled).
type Deps struct {
	Config     *config.Config
	DB         *gorm.DB
	Redis      *redis.Client
	Store      infra.ObjectStore
	Breaker    *infra.Breaker
	Dispatcher *worker.Dispatcher
}

// New wires all dependencies and returns a configured Gin engine.
// Dependency graph: Handler ← Service ← Repository ← DB/Redis
func New(d Deps) *gin.Engine {
	cfg := d.Config
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()

	// Global middleware chain (order matters)
	r.Use(middleware.RequestID())
	r.Use(middleware.Logger())
	r.Use(middleware.Recovery())
	r.Use(middleware.CORS(cfg.CORSOrigin))
	r.Use(middleware.ErrorHandler())
	r.Use(middleware.RateLimiter(d.Redis, "api", 1000, time.Minute)) // 1000 req/min per IP

	// ── Repositories ─────────────────────────────────────────────────────────
	userRepo := repository.NewUserRepository(d.DB)
	varietyRepo := repository.NewVarietyRepository(d.DB)
	batchRepo := repository.NewBatchRepository(d.DB)
	logRepo := repository.NewRoastLogRepository(d.DB)
	movementRepo := repository.NewStockMovementRepository(d.DB)

	// ── Services ─────────────────────────────────────────────────────────────
	authSvc := service.NewAuthService(userRepo, cfg)
	inventorySvc := service.NewInventoryService(varietyRepo, movementRepo, d.Store)
	batchSvc := service.NewBatchService(batchRepo, varietyRepo, movementRepo, d.Store, d.Dispatcher)
	telemetrySvc := service.NewTelemetryService(logRepo, batchRepo)

	// ── Handlers ─────────────────────────────────────────────────────────────
	authH := handler.NewAuthHandler(authSvc)
	usersH := handler.NewUsersHandler(authSvc)
	beansH := handler.NewBeansHandler(inventorySvc, cfg.LowStockGrams)
	roastingH := handler.NewRoastingHandler(batchSvc, telemetrySvc)

	// ── Routes ───────────────────────────────────────────────────────────────

	// Public
	r.GET("/health", handler.Health(d.DB, d.Redis, d.Breaker))

	// Auth (public)
	auth := r.Group("/v1/auth")
	{
		auth.POST("/login", middleware.RateLimiter(d.Redis, "login", 20, time.Minute), authH.Login)
	}

	// Protected routes
	jwtMW := middleware.JWTAuth(cfg.JWTSecret)
	anyRole := middleware.RequireRole(model.RoleAdmin, model.RoleRoaster)
	adminOnly := middleware.RequireRole(model.RoleAdmin)
	v1 := r.Group("/v1", jwtMW)
	{
		beans := v1.Group("/beans")
		{
			beans.GET("", anyRole, beansH.List)
			beans.GET("/alerts/low-stock", anyRole, beansH.LowStock)
			beans.GET("/:id", anyRole, beansH.Get)
			beans.POST("", adminOnly, beansH.Create)
			beans.PATCH("/:id", adminOnly, beansH.Update)
			beans.PATCH("/:id/restock", adminOnly, beansH.Restock)
			beans.DELETE("/:id", adminOnly, beansH.Delete)
			beans.GET("/:id/movements", adminOnly, beansH.Movements)
		}

		roasting := v1.Group("/roasting", anyRole)
		{
			roasting.POST("", roastingH.Start)
			roasting.GET("", roastingH.List)
			roasting.GET("/active", roastingH.Active)
			roasting.GET("/state/inprogress/:roasterId", roastingH.ActiveForRoaster)
			roasting.GET("/:id", roastingH.Get)
			roasting.POST("/:id/log", roastingH.AppendLog)
			roasting.GET("/:id/logs", roastingH.ListLogs)
			roasting.PATCH("/:id/finish", roastingH.Finish)
			roasting.PATCH("/:id/qc", adminOnly, roastingH.RecordQC)
		}

		users := v1.Group("/users", adminOnly)
		{
			users.POST("", usersH.Create)
			users.GET("", usersH.List)
			users.PATCH("/:id", usersH.Update)
			users.DELETE("/:id", usersH.Delete)
		}
	}

	// Swagger UI, only enabled outside production
	if !cfg.IsProduction() {
		r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	return r
}
