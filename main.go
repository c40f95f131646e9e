package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/CUknot/marketplace_chat/auth"
	"github.com/CUknot/marketplace_chat/config"
	"github.com/CUknot/marketplace_chat/controllers"
	"github.com/CUknot/marketplace_chat/database"
	"github.com/CUknot/marketplace_chat/docs"
	"github.com/CUknot/marketplace_chat/events"
	"github.com/CUknot/marketplace_chat/logger"
	"github.com/CUknot/marketplace_chat/metrics"
	"github.com/CUknot/marketplace_chat/middleware"
	"github.com/CUknot/marketplace_chat/push"
	"github.com/CUknot/marketplace_chat/store"
	"github.com/CUknot/marketplace_chat/websocket"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"
)

// @title           Marketplace Chat API
// @version         1.0
// @description     Real-time messaging service for marketplace listings
// @host            localhost:8080
// @BasePath        /
// @schemes         http
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description Type "Bearer" followed by a space and JWT token.
func main() {
	// Load environment variables
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using system environment variables")
	}

	cfg, err := config.Load(os.Getenv("CHAT_CONFIG"))
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	zl, err := logger.New(cfg.LogLevel, cfg.Development())
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer zl.Sync()

	if err := run(cfg, zl); err != nil {
		zl.Fatal("server stopped", zap.Error(err))
	}
}

func run(cfg *config.Config, log *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Initialize database
	db, err := database.Connect(cfg.Database, log)
	if err != nil {
		return err
	}
	if err := database.Migrate(db, log); err != nil {
		return err
	}

	messages := store.NewMessageStore(db)
	var tokens store.TokenRegistry = store.NewPushTokenStore(db)
	if cfg.Redis.Addr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer rdb.Close()
		tokens = store.NewCachedTokenLookup(tokens, rdb, cfg.Redis.TokenTTL, log)
		log.Info("push token cache enabled", zap.String("addr", cfg.Redis.Addr))
	}

	var publisher events.Publisher = events.NopPublisher{}
	if len(cfg.Kafka.Brokers) > 0 {
		publisher = events.NewKafkaPublisher(cfg.Kafka.Brokers, cfg.Kafka.Topic)
		log.Info("event publishing enabled", zap.Strings("brokers", cfg.Kafka.Brokers), zap.String("topic", cfg.Kafka.Topic))
	}
	defer publisher.Close()

	bridge := push.NewExpoBridge(cfg.Push.Host, cfg.Push.APIURL, cfg.Push.AccessToken, cfg.Push.Timeout, log)

	authenticator := auth.NewAuthenticator(cfg.JWTSecret)
	hub := websocket.NewHub()
	engine := websocket.NewEngine(hub, messages, tokens, bridge, publisher, log)
	// Frame handling outlives the signal so in-flight events finish during shutdown
	wsServer := websocket.NewServer(context.WithoutCancel(ctx), authenticator, hub, engine, websocket.Options{
		WriteWait:      cfg.WS.WriteWait,
		PongWait:       cfg.WS.PongWait,
		MaxMessageSize: cfg.WS.MaxMessageSize,
		SendBuffer:     cfg.WS.SendBuffer,
	}, log)

	// Set up Swagger info
	docs.SwaggerInfo.Host = "localhost:" + cfg.Port

	if !cfg.Development() {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery(), middleware.RequestLogger(log), middleware.CORS())

	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "connections": hub.ClientCount()})
	})
	router.GET("/metrics", gin.WrapH(metrics.Handler()))

	messageController := controllers.NewMessageController(messages, engine, log)
	pushTokenController := controllers.NewPushTokenController(tokens, log)

	// Protected routes
	api := router.Group("/api")
	api.Use(middleware.JWTAuth(authenticator))
	{
		api.GET("/messages", messageController.GetMessages)
		api.POST("/messages", messageController.CreateMessage)
		api.GET("/messages/unread", messageController.GetUnreadCount)
		api.POST("/push-tokens", pushTokenController.RegisterPushToken)
	}

	// WebSocket route
	router.GET("/ws", wsServer.HandleConnection)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("server running", zap.String("port", cfg.Port))
		log.Info("swagger documentation available", zap.String("url", "http://localhost:"+cfg.Port+"/swagger/index.html"))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return err
		}
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn("http shutdown", zap.Error(err))
	}

	// Shutdown does not close hijacked websocket connections
	closed := hub.CloseAll()
	log.Info("websocket connections closed", zap.Int("count", closed))

	// Drain detached push and publish work before the publisher is closed.
	engine.Stop()
	return nil
}
