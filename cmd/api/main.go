package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/websocket/v2"
	"go.uber.org/zap"

	"github.com/factflow/backend/internal/api/handlers"
	"github.com/factflow/backend/internal/cache/redis"
	"github.com/factflow/backend/internal/generation"
	"github.com/factflow/backend/internal/ingestion"
	"github.com/factflow/backend/internal/llm"
	"github.com/factflow/backend/internal/metrics"
	"github.com/factflow/backend/internal/middleware/ratelimit"
	"github.com/factflow/backend/internal/middleware/security"
	"github.com/factflow/backend/internal/middleware/validation"
	"github.com/factflow/backend/internal/pipeline"
	"github.com/factflow/backend/internal/retrieval"
	"github.com/factflow/backend/internal/storage/sqlite"
	"github.com/factflow/backend/internal/vector/milvus"
	"github.com/factflow/backend/pkg/config"
	appLogger "github.com/factflow/backend/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	err = appLogger.Init(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.OutputPath)
	if err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer appLogger.Sync()

	appLogger.Info("Starting FactFlow API Server")

	metrics.Init()

	sqliteClient, err := sqlite.NewClient(cfg.SQLite.Path)
	if err != nil {
		appLogger.Fatal("Failed to create SQLite client", zap.Error(err))
	}
	defer sqliteClient.Close()

	err = sqliteClient.InitSchema()
	if err != nil {
		appLogger.Fatal("Failed to initialize schema", zap.Error(err))
	}

	milvusClient, err := milvus.NewClient(
		cfg.Milvus.Endpoint,
		cfg.Milvus.APIKey,
		cfg.Milvus.CollectionName,
		cfg.Milvus.VectorDim,
	)
	if err != nil {
		appLogger.Fatal("Failed to create Milvus client", zap.Error(err))
	}
	defer milvusClient.Close()

	err = milvusClient.CreateCollection(context.Background())
	if err != nil {
		appLogger.Fatal("Failed to create collection", zap.Error(err))
	}

	redisClient, err := redis.NewClient(
		cfg.Redis.Host,
		cfg.Redis.Port,
		cfg.Redis.Password,
		cfg.Redis.DB,
	)
	if err != nil {
		appLogger.Warn("Redis unavailable, caching disabled", zap.Error(err))
		redisClient = nil
	} else {
		defer redisClient.Close()
	}

	var embeddingCache llm.EmbeddingCache
	if redisClient != nil {
		embeddingCache = redisClient
	}

	llmClient := llm.NewClient(
		cfg.LLM.APIKey,
		cfg.LLM.Model,
		cfg.LLM.EmbeddingModel,
		cfg.LLM.Temperature,
		cfg.LLM.MaxTokens,
		embeddingCache,
	)

	log := appLogger.GetLogger()

	retriever := retrieval.NewRetriever(llmClient, milvusClient, cfg.Pipeline.TopK, log)
	answerGenerator := generation.NewGenerator(llmClient, log)
	validator := pipeline.NewValidator(llmClient, cfg.Pipeline.TrustThreshold, log)
	detector := pipeline.NewHallucinationDetector(llmClient, cfg.Pipeline.ClaimSimilarityThreshold, log)
	refresher := pipeline.NewRefresher(llmClient, milvusClient, cfg.Pipeline.PartialRefreshThreshold, log)
	watcher := pipeline.NewWatcher(cfg.Pipeline.FreshnessThresholdDays, log)

	orchestrator := pipeline.NewOrchestrator(
		retriever,
		answerGenerator,
		validator,
		detector,
		refresher,
		cfg.Pipeline.MaxRetries,
		log,
	)

	var cacheInvalidator ingestion.CacheInvalidator
	if redisClient != nil {
		cacheInvalidator = redisClient
	}
	processor := ingestion.NewProcessor(sqliteClient, milvusClient, llmClient, cacheInvalidator)

	app := fiber.New(fiber.Config{
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		BodyLimit:    cfg.Server.BodyLimit,
	})

	app.Use(recover.New())
	app.Use(fiberlogger.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowHeaders: "Origin, Content-Type, Accept, Authorization",
		AllowMethods: "GET, POST, PUT, DELETE, OPTIONS",
	}))
	app.Use(security.HeadersMiddleware(security.HeadersConfig{}))
	app.Use(validation.Middleware(validation.Config{Logger: log}))

	rateLimiter := ratelimit.New(ratelimit.Config{
		MaxRequestsPerMinute: 60,
		Logger:               log,
	})
	defer rateLimiter.Stop()

	var responseCache handlers.ResponseCache
	if redisClient != nil {
		responseCache = redisClient
	}

	queryHandler := handlers.NewQueryHandler(orchestrator, sqliteClient, responseCache)
	documentHandler := handlers.NewDocumentHandler(processor, watcher, refresher)
	wsHandler := handlers.NewWebSocketHandler(orchestrator)

	api := app.Group("/api/v1")

	api.Post("/query", rateLimiter.Middleware(), queryHandler.HandleQuery)
	api.Get("/query/history", queryHandler.GetQueryHistory)
	api.Post("/feedback", queryHandler.SubmitFeedback)

	api.Post("/documents", documentHandler.UploadDocument)
	api.Post("/documents/watch", documentHandler.WatchDocuments)

	api.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status": "healthy",
			"time":   time.Now().Unix(),
		})
	})

	api.Get("/ready", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status": "ready",
		})
	})

	app.Get("/metrics", metrics.MetricsHandler())

	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws/query", websocket.New(wsHandler.HandleConnection))

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	appLogger.Info("Server starting", zap.String("address", addr))

	go func() {
		if err := app.Listen(addr); err != nil {
			appLogger.Fatal("Server failed to start", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	appLogger.Info("Server shutting down gracefully...")
	app.Shutdown()
	appLogger.Info("Server stopped")
}
