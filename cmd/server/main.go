package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"just_us/internal/config"
	"just_us/internal/handler"
	"just_us/internal/metrics"
	"just_us/internal/middleware"
	"just_us/internal/realtime"
	"just_us/internal/repository"
	"just_us/internal/service"
	"just_us/pkg/logger"
	"just_us/pkg/storage"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
)

func main() {
	// Загрузка конфигурации
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	appLogger := logger.New(cfg.Log.Level, cfg.Environment)

	// PostgreSQL
	poolCfg, err := pgxpool.ParseConfig(cfg.Database.DSN)
	if err != nil {
		appLogger.Fatal("Failed to parse database DSN", "error", err)
	}
	poolCfg.MaxConns = int32(cfg.Database.MaxConnections)
	poolCfg.MaxConnIdleTime = cfg.Database.MaxIdleTime
	poolCfg.MaxConnLifetime = cfg.Database.ConnMaxLifetime

	dbPool, err := pgxpool.NewWithConfig(context.Background(), poolCfg)
	if err != nil {
		appLogger.Fatal("Failed to connect to database", "error", err)
	}
	defer dbPool.Close()

	if err := dbPool.Ping(context.Background()); err != nil {
		appLogger.Fatal("Failed to ping database", "error", err)
	}
	appLogger.Info("Database connection established")

	if err := repository.Migrate(context.Background(), dbPool, cfg.Chat.MessagesTable, cfg.Chat.UsersTable, appLogger); err != nil {
		appLogger.Fatal("Failed to migrate database", "error", err)
	}

	// Redis
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer rdb.Close()

	if err := rdb.Ping(context.Background()).Err(); err != nil {
		appLogger.Fatal("Failed to connect to Redis", "error", err)
	}
	appLogger.Info("Redis connection established")

	appMetrics := metrics.New()
	repos := repository.NewRepositories(dbPool, rdb, cfg, appLogger)

	// Хаб рассылает снимки последних сообщений всем подключенным клиентам
	hub := realtime.NewHub(repos.Message, cfg.Chat.LiveWindow, rdb, cfg.Redis.Channel, appMetrics, appLogger)
	go hub.Run()

	objectStorage := storage.NewS3Client(storage.S3Config{
		Endpoint:        cfg.Media.Endpoint,
		Region:          cfg.Media.Region,
		AccessKeyID:     cfg.Media.AccessKey,
		SecretAccessKey: cfg.Media.SecretKey,
		Bucket:          cfg.Media.Bucket,
		CDNURL:          cfg.Media.CDNURL,
		ForcePathStyle:  cfg.Media.ForcePathStyle,
	})

	services := service.NewServices(repos, service.Deps{
		Notifier:   hub,
		Storage:    objectStorage,
		PushSender: service.NewWebPushSender(cfg.Push),
		Metrics:    appMetrics,
	}, cfg, appLogger)

	var verifier service.TokenVerifier
	if cfg.Auth.VerifyURL != "" {
		verifier = service.NewIdentityClient(cfg.Auth.VerifyURL)
	}

	authMiddleware := middleware.NewExternalAuthMiddleware(
		cfg.Auth.JWTSecret, cfg.Auth.Issuer, cfg.Auth.AllowedEmails, verifier, services.User, appLogger,
	)
	rateLimitMiddleware := middleware.NewRateLimitMiddleware(services.RateLimit, cfg.RateLimit.Limit, cfg.RateLimit.Window, appLogger)

	handlers := handler.NewHandlers(services, hub, cfg, appLogger)

	router := setupRouter(handlers, authMiddleware, rateLimitMiddleware, appMetrics, cfg, appLogger)

	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown
	go func() {
		appLogger.Info("Starting server", "port", cfg.Server.Port, "environment", cfg.Environment)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			appLogger.Fatal("Failed to start server", "error", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	appLogger.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// websocket-соединения не закрываются через Shutdown, их закрывает хаб
	hub.Stop()

	if err := srv.Shutdown(ctx); err != nil {
		appLogger.Fatal("Server forced to shutdown", "error", err)
	}

	appLogger.Info("Server exited")
}

func setupRouter(
	handlers *handler.Handlers,
	authMiddleware *middleware.ExternalAuthMiddleware,
	rateLimitMiddleware *middleware.RateLimitMiddleware,
	appMetrics *metrics.Metrics,
	cfg *config.Config,
	log logger.Logger,
) *gin.Engine {
	if !cfg.IsDevelopment() {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.CORS(cfg.Server.AllowedOrigins))
	router.Use(middleware.RequestLogger(log))
	router.Use(middleware.ErrorHandler(log))

	router.GET("/health", handlers.Health.Check)
	router.GET("/server-info", handlers.Health.ServerInfo)
	router.GET("/metrics", gin.WrapH(appMetrics.Handler()))

	v1 := router.Group("/api/v1")
	{
		// Решение гейта отдается и тем, кто не в списке разрешенных
		v1.GET("/auth/allowed", authMiddleware.Identify(), handlers.Auth.Allowed)

		protected := v1.Group("")
		protected.Use(authMiddleware.RequireAuth())
		{
			messages := protected.Group("/messages")
			{
				messages.GET("", handlers.Message.List)
				messages.GET("/older", handlers.Message.Older)
				messages.POST("", rateLimitMiddleware.Limit("send"), handlers.Message.Send)
				messages.POST("/seen", handlers.Message.MarkSeen)
				messages.PATCH("/:id", handlers.Message.Edit)
				messages.POST("/:id/unsend", handlers.Message.Unsend)
				messages.POST("/:id/undo-unsend", handlers.Message.UndoUnsend)
				messages.PUT("/:id/reaction", handlers.Message.SetReaction)
				messages.DELETE("/:id/reaction", handlers.Message.ClearReaction)
			}

			users := protected.Group("/users")
			{
				users.GET("/me", handlers.User.GetMe)
				users.GET("/peer", handlers.User.GetPeer)
				users.PUT("/me/typing", handlers.User.SetTyping)
				users.PUT("/me/subscription", handlers.User.SavePushSubscription)
				users.DELETE("/me/subscription", handlers.User.DeletePushSubscription)
				users.GET("/:id/subscriptions", handlers.User.GetSubscriptions)
			}

			uploads := protected.Group("/uploads")
			uploads.Use(rateLimitMiddleware.Limit("upload"))
			{
				uploads.POST("/image", handlers.Media.UploadImage)
				uploads.POST("/audio", handlers.Media.UploadAudio)
			}
			protected.GET("/gallery", handlers.Media.Gallery)

			protected.GET("/link-preview", handlers.LinkPreview.Get)

			gifs := protected.Group("/gifs")
			{
				gifs.GET("/search", handlers.Gif.Search)
				gifs.GET("/featured", handlers.Gif.Featured)
			}
		}
	}

	// WebSocket: токен приходит в ?token=
	router.GET("/ws/chat", authMiddleware.RequireAuth(), handlers.WebSocket.HandleChat)

	return router
}
