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
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/agentforge/backend/internal/api/handlers"
	"github.com/agentforge/backend/internal/embedding"
	"github.com/agentforge/backend/internal/llm"
	"github.com/agentforge/backend/internal/metrics"
	"github.com/agentforge/backend/internal/rag"
	"github.com/agentforge/backend/internal/storage/sqlite"
	"github.com/agentforge/backend/internal/vector/milvus"
	"github.com/agentforge/backend/internal/webhook"
	"github.com/agentforge/backend/pkg/config"
	appLogger "github.com/agentforge/backend/pkg/logger"
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

	appLogger.Info("Starting AgentForge API Server")

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
		context.Background(),
		cfg.Milvus.Endpoint,
		cfg.Milvus.CollectionName,
		cfg.Milvus.VectorDim,
	)
	if err != nil {
		appLogger.Fatal("Failed to create Milvus client", zap.Error(err))
	}
	defer milvusClient.Close()

	err = milvusClient.EnsureCollection(context.Background())
	if err != nil {
		appLogger.Fatal("Failed to ensure collection", zap.Error(err))
	}

	var embedder embedding.Embedder = embedding.NewOpenAIEmbedder(cfg.LLM.APIKey, cfg.LLM.EmbeddingModel)
	if cfg.Redis.Enabled {
		redisClient := redis.NewClient(&redis.Options{
			Addr:     fmt.Sprintf("%s:%d", cfg.Redis.Host, cfg.Redis.Port),
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := redisClient.Ping(context.Background()).Err(); err != nil {
			appLogger.Warn("Redis unreachable, embedding cache disabled", zap.Error(err))
		} else {
			embedder = embedding.NewCachedEmbedder(embedder, redisClient, cfg.Redis.TTL)
			appLogger.Info("Embedding cache enabled")
		}
	}

	llmClient := llm.NewClient(
		cfg.LLM.APIKey,
		cfg.LLM.Model,
		cfg.LLM.Temperature,
		cfg.LLM.MaxTokens,
	)

	engine := rag.NewEngine(embedder, milvusClient, sqliteClient, rag.Config{
		ChunkSize:    cfg.RAG.ChunkSize,
		ChunkOverlap: cfg.RAG.ChunkOverlap,
		TopK:         cfg.RAG.TopK,
	})

	dispatcher := webhook.NewDispatcher(sqliteClient, webhook.Config{
		Workers:        cfg.Webhook.Workers,
		QueueSize:      cfg.Webhook.QueueSize,
		AttemptTimeout: cfg.Webhook.AttemptTimeout,
	})

	app := fiber.New(fiber.Config{
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		BodyLimit:    cfg.Server.BodyLimit,
	})

	app.Use(recover.New())
	app.Use(logger.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowHeaders: "Origin, Content-Type, Accept, Authorization",
		AllowMethods: "GET, POST, PUT, DELETE, OPTIONS",
	}))

	agentHandler := handlers.NewAgentHandler(sqliteClient, dispatcher)
	documentHandler := handlers.NewDocumentHandler(sqliteClient, engine, dispatcher)
	queryHandler := handlers.NewQueryHandler(sqliteClient, engine, llmClient, dispatcher, cfg.RAG.MaxContextChars)
	webhookHandler := handlers.NewWebhookHandler(sqliteClient, dispatcher)

	api := app.Group("/api/v1")

	api.Post("/agents", agentHandler.CreateAgent)
	api.Get("/agents/:id", agentHandler.GetAgent)
	api.Put("/agents/:id", agentHandler.UpdateAgent)

	api.Post("/agents/:id/documents", documentHandler.UploadDocument)
	api.Get("/agents/:id/documents", documentHandler.ListDocuments)
	api.Delete("/agents/:id/documents/:docId", documentHandler.DeleteDocument)

	api.Post("/agents/:id/query", queryHandler.HandleQuery)
	api.Post("/agents/:id/conversations/end", queryHandler.EndConversation)

	api.Post("/agents/:id/webhooks", webhookHandler.CreateWebhook)
	api.Get("/agents/:id/webhooks", webhookHandler.ListWebhooks)
	api.Put("/agents/:id/webhooks/:webhookId", webhookHandler.UpdateWebhook)
	api.Delete("/agents/:id/webhooks/:webhookId", webhookHandler.DeleteWebhook)
	api.Get("/agents/:id/webhooks/:webhookId/deliveries", webhookHandler.ListDeliveries)
	api.Post("/agents/:id/webhooks/:webhookId/test", webhookHandler.TestWebhook)

	app.Get("/metrics", metrics.Handler())

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

	drainCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := dispatcher.Shutdown(drainCtx); err != nil {
		appLogger.Warn("Webhook dispatcher did not drain cleanly", zap.Error(err))
	}

	appLogger.Info("Server stopped")
}
