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

	"github.com/cityrag/backend/internal/answer"
	"github.com/cityrag/backend/internal/api/handlers"
	"github.com/cityrag/backend/internal/corpus"
	"github.com/cityrag/backend/internal/embedding"
	"github.com/cityrag/backend/internal/metrics"
	"github.com/cityrag/backend/internal/middleware/ratelimit"
	"github.com/cityrag/backend/internal/pipeline"
	"github.com/cityrag/backend/internal/scrape"
	"github.com/cityrag/backend/internal/storage/sqlite"
	"github.com/cityrag/backend/internal/vector"
	"github.com/cityrag/backend/internal/vector/memory"
	"github.com/cityrag/backend/internal/vector/milvus"
	"github.com/cityrag/backend/pkg/config"
	appLogger "github.com/cityrag/backend/pkg/logger"
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

	appLogger.Info("Starting city services assistant API server")

	metrics.Init()

	sqliteClient, err := sqlite.NewClient(cfg.SQLite.Path)
	if err != nil {
		appLogger.Fatal("Failed to create SQLite client", zap.Error(err))
	}
	defer sqliteClient.Close()

	if err := sqliteClient.InitSchema(); err != nil {
		appLogger.Fatal("Failed to initialize schema", zap.Error(err))
	}

	embedder, err := buildEmbedder(cfg)
	if err != nil {
		appLogger.Fatal("Failed to create embedding service", zap.Error(err))
	}

	index, err := buildIndex(cfg)
	if err != nil {
		appLogger.Fatal("Failed to create vector index", zap.Error(err))
	}
	defer index.Close()

	synth := answer.NewSynthesizer(buildGenerator(cfg), cfg.LLM.MaxRetries)

	processor, err := corpus.NewProcessor(
		cfg.Corpus.ChunkSize,
		cfg.Corpus.ChunkOverlap,
		cfg.Corpus.MinChunkLength,
		cfg.Corpus.MaxKeywords,
	)
	if err != nil {
		appLogger.Fatal("Failed to create corpus processor", zap.Error(err))
	}

	p := pipeline.New(embedder, index, synth, processor, sqliteClient, pipeline.Config{
		TopK:                cfg.Pipeline.TopK,
		SimilarityThreshold: cfg.Pipeline.SimilarityThreshold,
		RecreateCollection:  cfg.Vector.Recreate,
	})

	initPipeline(p, cfg)

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

	limiter := ratelimit.New(ratelimit.Config{
		MaxRequestsPerMinute: cfg.RateLimit.MaxRequestsPerMinute,
		Logger:               appLogger.GetLogger(),
	})
	defer limiter.Stop()

	askHandler := handlers.NewAskHandler(p)
	documentHandler := handlers.NewDocumentHandler(p, scrape.NewClient())
	wsHandler := handlers.NewWebSocketHandler(p)

	api := app.Group("/api/v1")
	api.Use(limiter.Middleware())

	api.Post("/ask", askHandler.HandleAsk)
	api.Get("/history", askHandler.GetHistory)
	api.Post("/feedback", askHandler.SubmitFeedback)
	api.Get("/stats", askHandler.GetStats)
	api.Post("/documents", documentHandler.UploadDocument)

	app.Get("/ws/chat", websocket.New(wsHandler.HandleConnection))

	app.Get("/metrics", metrics.MetricsHandler())

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status": "healthy",
			"time":   time.Now().Unix(),
		})
	})

	app.Get("/ready", func(c *fiber.Ctx) error {
		if p.State() != pipeline.StateServing {
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
				"status": "initializing",
				"state":  p.State().String(),
			})
		}
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
	appLogger.Info("Server stopped")
}

func buildEmbedder(cfg *config.Config) (*embedding.Service, error) {
	backend, err := embedding.NewOpenAIBackend(
		cfg.Embedding.APIKey,
		cfg.Embedding.BaseURL,
		cfg.Embedding.Model,
		cfg.Embedding.Dimension,
	)
	if err != nil {
		return nil, err
	}

	var cache embedding.Cache
	if cfg.Redis.Enabled {
		cache, err = embedding.NewRedisCache(
			cfg.Redis.Host,
			cfg.Redis.Port,
			cfg.Redis.Password,
			cfg.Redis.DB,
			time.Duration(cfg.Embedding.CacheTTL)*time.Second,
		)
	} else {
		cache, err = embedding.NewDiskCache(cfg.Embedding.CacheDir)
	}
	if err != nil {
		return nil, err
	}

	return embedding.NewService(backend, cache, cfg.Embedding.BatchSize), nil
}

func buildIndex(cfg *config.Config) (vector.Index, error) {
	if cfg.Vector.Backend == "milvus" {
		return milvus.New(cfg.Vector.Endpoint, cfg.Vector.CollectionName, cfg.Embedding.Dimension)
	}
	return memory.New(cfg.Vector.CollectionName, cfg.Embedding.Dimension, cfg.Vector.SnapshotPath)
}

func buildGenerator(cfg *config.Config) answer.Generator {
	gen, err := answer.NewOpenAIGenerator(
		cfg.LLM.APIKey,
		cfg.LLM.BaseURL,
		cfg.LLM.Model,
		cfg.LLM.Temperature,
		cfg.LLM.MaxTokens,
		cfg.LLM.TimeoutSec,
	)
	if err != nil {
		appLogger.Warn("Generation backend unavailable, answers will use fallbacks", zap.Error(err))
		return nil
	}
	return gen
}

// initPipeline brings the retrieval pipeline up. Failures leave the server
// running in a degraded state; /ready reports it and /ask returns a
// well-formed error response.
func initPipeline(p *pipeline.Pipeline, cfg *config.Config) {
	ctx := context.Background()

	if err := p.LoadCorpus(cfg.Corpus.Path); err != nil {
		appLogger.Warn("Corpus file unavailable, processing raw data", zap.Error(err))
		if err := p.ProcessRawData(cfg.Corpus.RawDataDir, cfg.Corpus.Path); err != nil {
			appLogger.Error("Failed to build corpus, serving degraded", zap.Error(err))
			return
		}
	}

	if err := p.BuildIndex(ctx); err != nil {
		appLogger.Error("Failed to build vector index, serving degraded", zap.Error(err))
		return
	}

	if err := p.Ready(); err != nil {
		appLogger.Error("Pipeline failed to reach serving state", zap.Error(err))
		return
	}

	appLogger.Info("Pipeline ready", zap.String("state", p.State().String()))
}
