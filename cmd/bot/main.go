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

	"github.com/azure/social-mentions-monitor/internal/config"
	"github.com/azure/social-mentions-monitor/internal/digest"
	"github.com/azure/social-mentions-monitor/internal/handlers"
	"github.com/azure/social-mentions-monitor/internal/ingestion"
	"github.com/azure/social-mentions-monitor/internal/llm"
	"github.com/azure/social-mentions-monitor/internal/metrics"
	"github.com/azure/social-mentions-monitor/internal/monitoring"
	"github.com/azure/social-mentions-monitor/internal/notifications"
	"github.com/azure/social-mentions-monitor/internal/repository"
	"github.com/azure/social-mentions-monitor/internal/scheduler"
	"github.com/azure/social-mentions-monitor/internal/sentiment"
	"github.com/azure/social-mentions-monitor/internal/sources"
	"github.com/azure/social-mentions-monitor/internal/stats"
	"github.com/azure/social-mentions-monitor/internal/storage"
	"github.com/azure/social-mentions-monitor/internal/triage"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

func main() {
	// Load environment variables from .env file if it exists
	if err := godotenv.Load(); err != nil {
		logrus.Info("No .env file found, using environment variables")
	}

	// Initialize configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Set up logging
	logrus.SetLevel(logrus.InfoLevel)
	if cfg.Debug {
		logrus.SetLevel(logrus.DebugLevel)
	}
	logrus.SetFormatter(&logrus.JSONFormatter{})

	logrus.Info("Starting Social Mentions Monitor")

	ctx := context.Background()

	// Initialize storage
	store, err := newStorage(ctx, cfg)
	if err != nil {
		logrus.Fatalf("Failed to initialize storage: %v", err)
	}
	mentionRepo := repository.NewMentionRepository(store)
	tenantRepo := repository.NewTenantRepository(store)

	// Initialize platform adapters
	registry := sources.NewRegistry(
		sources.NewTwitterSource(cfg.TwitterAPIURL),
		sources.NewYouTubeSource(cfg.YouTubeAPIURL),
		sources.NewRedditSource(cfg.RedditAPIURL),
		sources.NewInstagramSource(cfg.InstagramAPIURL),
	)

	// Initialize classifier backend
	completer, err := llm.New(llmConfig(cfg))
	if err != nil {
		logrus.Fatalf("Failed to initialize classifier: %v", err)
	}
	if completer == nil {
		logrus.Info("No LLM provider configured, classifying with the built-in lexicon")
	}

	promMetrics := metrics.New()

	classifier := sentiment.NewClassifier(completer, sentiment.Options{
		BatchSize: cfg.ClassifierBatchSize,
		Observe:   promMetrics.ObserveClassification,
	})
	coordinator := ingestion.NewCoordinator(registry, ingestion.Options{
		Concurrency: cfg.FetchConcurrency,
		Timeout:     cfg.FetchTimeout,
		Observer:    promMetrics,
	})
	gate := ingestion.NewGate(mentionRepo, promMetrics)
	aggregator := stats.NewAggregator(mentionRepo, stats.DefaultTopN)
	digestBuilder := digest.NewBuilder(mentionRepo, tenantRepo, aggregator, digest.DefaultItemLimit)

	// Initialize notification services
	notificationService := notifications.NewService(cfg)

	// Initialize monitoring service
	monitoringService := monitoring.NewService(cfg, monitoring.Components{
		Mentions:       mentionRepo,
		Tenants:        tenantRepo,
		Registry:       registry,
		Coordinator:    coordinator,
		Gate:           gate,
		Classifier:     classifier,
		Digests:        digestBuilder,
		AlertDelivered: promMetrics.AlertDelivered,
	}, notificationService)

	// Initialize scheduler
	schedulerService, err := scheduler.NewService(cfg, monitoringService)
	if err != nil {
		logrus.Fatalf("Failed to create scheduler: %v", err)
	}

	// Start scheduler
	if err := schedulerService.Start(); err != nil {
		logrus.Fatalf("Failed to start scheduler: %v", err)
	}

	triageStore := triage.NewStore(mentionRepo)
	api := handlers.New(handlers.Dependencies{
		Pipeline:   monitoringService,
		Tenants:    tenantRepo,
		Mentions:   mentionRepo,
		Store:      triageStore,
		Dispatcher: triage.NewDispatcher(triageStore, registry, tenantRepo),
		Aggregator: aggregator,
		Digests:    digestBuilder,
		Registry:   registry,
		Metrics:    promMetrics.Handler(),
	})

	server := &http.Server{
		Addr:        fmt.Sprintf(":%s", cfg.Port),
		Handler:     api.Router(),
		ReadTimeout: 15 * time.Second,
		// a manual ingestion runs inside the request
		WriteTimeout: cfg.FetchTimeout + 60*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start HTTP server in a goroutine
	go func() {
		logrus.Infof("HTTP server starting on port %s", cfg.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logrus.Fatalf("HTTP server failed: %v", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logrus.Info("Shutting down server...")

	// Create a deadline for shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	shutdown(shutdownCtx, server, schedulerService, store)

	logrus.Info("Server exited")
}

// shutdown stops intake first, then waits for in-flight jobs, and only then
// releases storage those jobs may still be using
func shutdown(ctx context.Context, server interface{ Shutdown(context.Context) error }, jobs interface{ Stop() }, store any) {
	if err := server.Shutdown(ctx); err != nil {
		logrus.Errorf("Server forced to shutdown: %v", err)
	}

	jobs.Stop()

	if closer, ok := store.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			logrus.Errorf("Failed to close storage: %v", err)
		}
	}
}

func newStorage(ctx context.Context, cfg *config.Config) (storage.StorageInterface, error) {
	switch cfg.StorageBackend {
	case config.StorageAzure:
		logrus.Infof("Using Azure Blob storage (%s/%s)", cfg.StorageAccount, cfg.StorageContainer)
		return storage.NewAzureStorage(ctx, cfg.StorageAccount, cfg.StorageContainer)
	case config.StorageRedis:
		logrus.Infof("Using Redis storage at %s", cfg.RedisAddr)
		return storage.NewRedisStorage(ctx, storage.RedisConfig{
			Addr:      cfg.RedisAddr,
			Password:  cfg.RedisPassword,
			DB:        cfg.RedisDB,
			KeyPrefix: cfg.RedisKeyPrefix,
		})
	default:
		logrus.Warn("Using in-memory storage, data will not survive a restart")
		return storage.NewMemoryStorage(), nil
	}
}

func llmConfig(cfg *config.Config) llm.Config {
	switch cfg.ClassifierProvider {
	case config.ClassifierOpenAI:
		return llm.Config{
			Provider:   llm.ProviderOpenAI,
			APIKey:     cfg.OpenAIAPIKey,
			Model:      cfg.OpenAIModel,
			BaseURL:    cfg.OpenAIBaseURL,
			MaxRetries: cfg.ClassifierMaxRetries,
		}
	case config.ClassifierAnthropic:
		return llm.Config{
			Provider:   llm.ProviderAnthropic,
			APIKey:     cfg.AnthropicAPIKey,
			Model:      cfg.AnthropicModel,
			MaxRetries: cfg.ClassifierMaxRetries,
		}
	default:
		return llm.Config{}
	}
}
