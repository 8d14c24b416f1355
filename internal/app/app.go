package app

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"profense_backend/internal/config"
	"profense_backend/internal/controller"
	"profense_backend/internal/repository"
	"profense_backend/internal/service"
	"profense_backend/pkg/database"
	"profense_backend/pkg/logger"
	"profense_backend/pkg/monitoring"
	"profense_backend/pkg/security"
	"profense_backend/pkg/tracing"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type App struct {
	Config *config.Config
	Router *gin.Engine
	DB     *gorm.DB
	Redis  *redis.Client
}

type repositories struct {
	user       *repository.UserRepository
	session    *repository.SessionRepository
	assessment *repository.AssessmentRepository
	attempt    *repository.AttemptRepository
	course     *repository.CourseRepository
}

type services struct {
	auth       *service.AuthService
	ai         *service.AIService
	similarity *service.SimilarityService
	safety     *service.SafetyFilter
	moderation *service.ModerationService
	parser     *service.RepairParser
	storage    service.StorageProvider
	session    *service.SessionService
	assessment *service.AssessmentService
	course     *service.CourseService
	qa         *service.QAService
}

type controllers struct {
	auth       *controller.AuthController
	session    *controller.SessionController
	assessment *controller.AssessmentController
	course     *controller.CourseController
	qa         *controller.QAController
	health     *controller.HealthController
}

func (a *App) initRepositories(db *gorm.DB) *repositories {
	return &repositories{
		user:       repository.NewUserRepository(db),
		session:    repository.NewSessionRepository(db),
		assessment: repository.NewAssessmentRepository(db),
		attempt:    repository.NewAttemptRepository(db),
		course:     repository.NewCourseRepository(db),
	}
}

func (a *App) initServices(repos *repositories, cfg *config.Config, rdb *redis.Client) *services {
	s := &services{}

	s.similarity = service.NewSimilarityService()
	s.safety = service.NewSafetyFilter()
	s.moderation = service.NewModerationService(s.similarity)
	s.parser = service.NewRepairParser()
	s.ai = service.NewAIService(cfg.AI)
	s.storage = service.NewStorageProvider(cfg)

	s.auth = service.NewAuthService(repos.user, &cfg.JWT)
	s.session = service.NewSessionService(repos.session, s.ai, s.moderation, s.safety, s.parser, s.storage, rdb)
	s.assessment = service.NewAssessmentService(repos.assessment, repos.attempt, repos.session, s.ai, s.parser)
	s.course = service.NewCourseService(repos.course, s.similarity)
	s.qa = service.NewQAService(s.ai, s.safety)

	return s
}

func (a *App) initControllers(s *services, db *gorm.DB, rdb *redis.Client) *controllers {
	return &controllers{
		auth:       controller.NewAuthController(s.auth),
		session:    controller.NewSessionController(s.session),
		assessment: controller.NewAssessmentController(s.assessment),
		course:     controller.NewCourseController(s.course),
		qa:         controller.NewQAController(s.qa),
		health:     controller.NewHealthController(db, rdb),
	}
}

func (a *App) setupMiddlewares(router *gin.Engine, cfg *config.Config) {
	router.Use(security.CORS(cfg.CORS.AllowedOrigins))
	router.Use(security.Secure())

	maxRequests := cfg.RateLimit.MaxRequests
	if maxRequests <= 0 {
		maxRequests = 1000
	}
	window := time.Duration(cfg.RateLimit.WindowMinutes) * time.Minute
	if window <= 0 {
		window = time.Minute
	}
	router.Use(security.RateLimiter(maxRequests, window))

	if cfg.Tracing.Enabled {
		router.Use(tracing.GinMiddleware())
	}

	router.Use(monitoring.MetricsMiddleware())
}

func NewApp(cfg *config.Config) *App {
	logger.InitLogger(cfg)

	logger.Log.Info("Logger initialized successfully")

	// release 模式默认跳过自动迁移，可通过 -migrate 强制执行
	migrate := cfg.Server.Mode != "release" || cfg.ForceMigrate
	db, err := database.InitDB(&cfg.Database, migrate)
	if err != nil {
		logger.Log.Fatal("Failed to initialize database", zap.Error(err))
	}

	rdb, err := database.InitRedis(&cfg.Redis)
	if err != nil {
		// Redis 不可用时会话级分布式锁与摘要缓存退化为单实例模式
		logger.Log.Warn("Failed to initialize redis, continuing without it", zap.Error(err))
		rdb = nil
	}

	app := &App{
		Config: cfg,
		DB:     db,
		Redis:  rdb,
	}

	repos := app.initRepositories(db)
	services := app.initServices(repos, cfg, rdb)
	controllers := app.initControllers(services, db, rdb)

	monitoring.Init()

	gin.SetMode(ginMode(cfg.Server.Mode))
	router := gin.Default()
	app.Router = router

	app.setupMiddlewares(router, cfg)

	if cfg.Tracing.Enabled {
		if _, err := tracing.InitTracer("profense-backend", cfg.Tracing.CollectorEndpoint); err != nil {
			logger.Log.Fatal("Failed to initialize tracing", zap.Error(err))
		}
	}

	app.registerRoutes(router, controllers, cfg)

	if cfg.Storage.Type == "local" && cfg.Storage.LocalPath != "" {
		if _, err := os.Stat(cfg.Storage.LocalPath); os.IsNotExist(err) {
			os.MkdirAll(cfg.Storage.LocalPath, os.ModePerm)
		}
	}

	return app
}

func ginMode(mode string) string {
	switch mode {
	case "release":
		return gin.ReleaseMode
	case "test":
		return gin.TestMode
	default:
		return gin.DebugMode
	}
}

func (a *App) Run() {
	srv := &http.Server{
		Addr:    ":" + a.Config.Server.Port,
		Handler: a.Router,
	}

	go func() {
		log.Printf("Server running on port %s", a.Config.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %s\n", err)
		}
	}()

	// 等待中断信号优雅地关闭服务器（设置5秒的超时时间）
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal("Server forced to shutdown:", err)
	}

	logger.Log.Sync()
	log.Println("Server exiting")
}
