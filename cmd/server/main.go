package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"site-builder/internal/config"
	"site-builder/internal/db"
	"site-builder/internal/editor"
	"site-builder/internal/generation"
	"site-builder/internal/logger"
	"site-builder/internal/middleware"
	"site-builder/internal/project"
	"site-builder/internal/telemetry"
	"site-builder/internal/user"
	"site-builder/internal/worker"
	"site-builder/redis"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const serviceName = "site-builder"

func main() {
	// Load configuration
	config.LoadConfig()
	logger.Set(config.AppConfig.Environment)
	defer logger.Flush()
	log := logger.Get()

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	shutdownTracer := func(context.Context) error { return nil }
	if config.AppConfig.JaegerEndpoint != "" {
		shutdown, err := telemetry.InitJaeger(serviceName, config.AppConfig.JaegerEndpoint)
		if err != nil {
			log.Warn("Tracing disabled", zap.Error(err))
		} else {
			shutdownTracer = shutdown
		}
	}

	// Connect to database
	if err := db.ConnectDb(log); err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer db.CloseDb(log)

	// Migrate database schema
	if err := db.Migrate(log); err != nil {
		log.Fatal("Failed to migrate database", zap.Error(err))
	}

	// Seed database with initial data (for development)
	if config.AppConfig.Environment == "development" {
		db.SeedData(ctx, log)
	}

	// Initialize Redis
	redis.InitRedis(ctx, log)
	cache := redis.NewCache(redis.RedisClient)

	// Generation
	prompts, err := generation.LoadPrompts()
	if err != nil {
		log.Fatal("Failed to load prompts", zap.Error(err))
	}
	if config.AppConfig.GeminiAPIKey == "" {
		log.Warn("GEMINI_API_KEY is not set, generation requests will fail")
	}
	gemini := generation.NewGeminiClient(config.AppConfig.GeminiBaseURL, config.AppConfig.GeminiAPIKey)
	images := generation.NewImageValidator(config.AppConfig.FallbackImageURL, config.AppConfig.ImageCheckTimeout, log)
	generator := generation.NewGenerator(gemini, prompts, images, generation.Options{
		CreateModel: config.AppConfig.CreateModel,
		EditModel:   config.AppConfig.EditModel,
		Timeout:     config.AppConfig.GenerationTimeout,
	}, log)

	// Initialize repository
	userRepo := user.NewRepository(db.AppDb)
	projectRepo := project.NewRepository(db.AppDb)
	// Initialize service
	userService := user.NewService(userRepo)
	projectService := project.NewService(projectRepo, generator, cache, log)

	// Editor sessions; AI edits run on the worker pool
	pool := worker.NewWorkerPool(config.AppConfig.WorkerCount, config.AppConfig.WorkerCount*4, log)
	manager := editor.NewManager(projectService, generator, pool, editor.Config{
		SaveDebounce: config.AppConfig.SaveDebounce,
		IdleTimeout:  config.AppConfig.SessionIdleTimeout,
		AITimeout:    config.AppConfig.GenerationTimeout,
	}, log)
	manager.StartReaper(ctx, time.Minute)

	limiter := middleware.NewRateLimiter(config.AppConfig.RateLimitRPS, config.AppConfig.RateLimitBurst, 10000)
	go limiter.Cleanup(ctx, 5*time.Minute, 30*time.Minute)

	// Initialize handler
	userHandler := user.NewHandler(userService, log)
	projectHandler := project.NewHandler(projectService)
	var wsOrigins []string
	if config.AppConfig.Environment != "development" {
		wsOrigins = []string{config.AppConfig.FrontendAddress}
	}
	editorHandler := editor.NewHandler(manager, wsOrigins, log)
	authMiddleware := &middleware.Auth{UserService: userService}
	requireAuth := authMiddleware.AuthMiddleWare()

	// Initialize Gin router
	if config.AppConfig.Environment != "development" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestContext(log))
	router.Use(middleware.ErrorHandler(log))

	// cors setting
	corsConfig := cors.Config{
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
		ExposeHeaders:    []string{"Content-Length", "Content-Disposition", "Retry-After", "X-Request-ID"},
		AllowCredentials: true,
	}

	if config.AppConfig.Environment == "development" {
		// Allow all origins in development
		corsConfig.AllowOriginFunc = func(string) bool { return true }
	} else {
		corsConfig.AllowOrigins = []string{config.AppConfig.FrontendAddress}
	}
	router.Use(cors.New(corsConfig))

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "sessions": manager.Count()})
	})

	// User routes
	router.POST("/register", userHandler.Register)
	router.POST("/login", userHandler.Login)
	router.POST("/refresh", userHandler.RefreshToken)
	router.DELETE("/logout", requireAuth, userHandler.Logout)
	router.GET("/profile", requireAuth, userHandler.GetProfile)

	// Project routes
	router.POST("/projects", requireAuth, limiter.Middleware(), projectHandler.Create)
	router.GET("/projects", requireAuth, projectHandler.List)
	router.GET("/projects/:id", requireAuth, projectHandler.Show)
	router.PUT("/projects/:id", requireAuth, projectHandler.Update)
	router.POST("/ai-edit", requireAuth, limiter.Middleware(), projectHandler.AIEdit)

	// Editor session routes
	router.POST("/projects/:id/sessions", requireAuth, editorHandler.Open)
	sessions := router.Group("/sessions/:sid", requireAuth)
	{
		sessions.GET("", editorHandler.Show)
		sessions.PUT("/state", editorHandler.Edit)
		sessions.POST("/save", editorHandler.Save)
		sessions.GET("/export", editorHandler.Export)
		sessions.POST("/ai-edit", limiter.Middleware(), editorHandler.SubmitAIEdit)
		sessions.GET("/ai-edit/preview", editorHandler.Preview)
		sessions.POST("/ai-edit/accept", editorHandler.AcceptAIEdit)
		sessions.POST("/ai-edit/reject", editorHandler.RejectAIEdit)
		sessions.GET("/events", editorHandler.Events)
		sessions.DELETE("", editorHandler.Close)
	}

	// Server configuration
	serverPort := config.AppConfig.ServerPort
	server := &http.Server{
		Addr:              fmt.Sprintf(":%s", serverPort),
		Handler:           router.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Start server
	go func() {
		log.Info("Server listening", zap.String("port", serverPort))
		err := server.ListenAndServe()
		if err != nil && err != http.ErrServerClosed {
			log.Fatal("Server failed to start", zap.Error(err))
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("Shutting down server...")
	stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("Server shutdown error", zap.Error(err))
	}
	// sessions flush their pending saves before the pool and the database go away
	if err := manager.Shutdown(shutdownCtx); err != nil {
		log.Error("Editor sessions shutdown error", zap.Error(err))
	}
	if err := pool.Shutdown(shutdownCtx); err != nil {
		log.Error("Worker pool shutdown error", zap.Error(err))
	}
	if err := shutdownTracer(shutdownCtx); err != nil {
		log.Error("Tracer shutdown error", zap.Error(err))
	}

	log.Info("Server shutdown complete")
}
