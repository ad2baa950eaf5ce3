/**
 * Evidence ingestion worker entry point.
 *
 * Wires configuration, object storage, the job store, the parsing engine
 * and the queue consumer together, then blocks until a shutdown signal.
 */

package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/parseforge/ingest-worker/internal/config"
	"github.com/parseforge/ingest-worker/internal/engine"
	"github.com/parseforge/ingest-worker/internal/errors"
	"github.com/parseforge/ingest-worker/internal/model"
	"github.com/parseforge/ingest-worker/internal/pipeline"
	"github.com/parseforge/ingest-worker/internal/processor"
	"github.com/parseforge/ingest-worker/internal/queue"
	"github.com/parseforge/ingest-worker/internal/storage"
	"github.com/parseforge/ingest-worker/internal/upload"
)

func main() {
	if err := godotenv.Load(".env"); err != nil {
		log.Printf("Warning: .env not found, using system environment variables")
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	log.Printf("Evidence ingestion worker starting...")
	log.Printf("Configuration loaded: Redis=%s, Storage=%s/%s, Workers=%d, Concurrency=%d",
		cfg.RedisURL, cfg.StorageEndpoint, cfg.StorageBucket, cfg.MaxWorkers, cfg.WorkerConcurrency)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// Object storage
	transport, err := storage.NewMinioTransport(ctx, &storage.MinioConfig{
		Endpoint:  cfg.StorageEndpoint,
		AccessKey: cfg.StorageAccessKey,
		SecretKey: cfg.StorageSecretKey,
		UseSSL:    cfg.StorageUseSSL,
		Bucket:    cfg.StorageBucket,
		Region:    cfg.StorageRegion,
	})
	if err != nil {
		log.Fatalf("Failed to connect to object storage: %v", err)
	}

	store, err := storage.NewObjectStorage(transport, &storage.ObjectStorageConfig{
		Prefix:     cfg.StoragePrefix,
		MaxRetries: cfg.StorageMaxRetries,
		RetryDelay: cfg.StorageRetryDelay,
	})
	if err != nil {
		log.Fatalf("Failed to initialize object storage: %v", err)
	}
	log.Printf("Object storage initialized (bucket=%s, prefix=%s)", cfg.StorageBucket, cfg.StoragePrefix)

	// Job store (optional)
	var jobs *storage.JobStore
	if cfg.DatabaseURL != "" {
		jobs, err = storage.NewJobStore(cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("Failed to connect to database: %v", err)
		}
		defer jobs.Close()
		log.Printf("Job store initialized")
	} else {
		log.Printf("DATABASE_URL not set, job persistence disabled")
	}

	// Model service client
	modelClient := model.NewClient(cfg.ModelServiceURL)
	if err := modelClient.HealthCheck(ctx); err != nil {
		log.Printf("Warning: model service health check failed: %v", err)
	} else {
		log.Printf("Model service reachable at %s", cfg.ModelServiceURL)
	}

	// Processors and engine
	source := processor.NewStorageSource(store, cfg.TempDir)

	eng := engine.NewEngine(&engine.EngineConfig{
		MaxWorkers:        cfg.MaxWorkers,
		ProcessingTimeout: time.Duration(cfg.ProcessingTimeout * float64(time.Second)),
	})
	eng.Register(processor.NewTextProcessor(source, modelClient))
	eng.Register(processor.NewImageProcessor(source, modelClient, cfg.TessdataPrefix))
	eng.Register(processor.NewDocumentProcessor(source))
	log.Printf("Parsing engine initialized (%d extensions registered)", len(eng.SupportedExtensions()))

	// Upload manager and pipeline facade
	uploads, err := upload.NewManager(&upload.ManagerConfig{
		MaxFileSize:        cfg.MaxFileSize,
		MaxFilesPerRequest: cfg.MaxFilesPerRequest,
		SupportedFormats:   cfg.SupportedFormats,
	})
	if err != nil {
		log.Fatalf("Failed to initialize upload manager: %v", err)
	}

	service, err := pipeline.NewService(&pipeline.ServiceConfig{
		Uploads:         uploads,
		Store:           store,
		Engine:          eng,
		Jobs:            jobs,
		Handler:         errors.NewHandler(),
		PresignedURLTTL: time.Duration(cfg.PresignedURLTTL) * time.Second,
	})
	if err != nil {
		log.Fatalf("Failed to initialize pipeline: %v", err)
	}

	// Status publisher (optional, shares the queue's Redis)
	status, err := queue.NewStatusPublisher(cfg.RedisURL)
	if err != nil {
		log.Printf("Warning: status publishing disabled: %v", err)
		status = nil
	}
	if status != nil {
		defer status.Close()
	}

	// Queue consumer
	consumer, err := queue.NewConsumer(&queue.ConsumerConfig{
		RedisURL:          cfg.RedisURL,
		QueueName:         cfg.QueueName,
		Concurrency:       cfg.WorkerConcurrency,
		Service:           service,
		Jobs:              jobs,
		Status:            status,
		ProcessingTimeout: time.Duration(cfg.ProcessingTimeout * float64(time.Second)),
	})
	if err != nil {
		log.Fatalf("Failed to initialize queue consumer: %v", err)
	}

	if err := consumer.Start(context.Background()); err != nil {
		log.Fatalf("Failed to start queue consumer: %v", err)
	}

	log.Printf("===========================================")
	log.Printf("Evidence ingestion worker is READY")
	log.Printf("===========================================")
	log.Printf("Queue: %s", cfg.QueueName)
	log.Printf("Concurrency: %d", cfg.WorkerConcurrency)
	log.Printf("Max file size: %s", config.FormatSize(cfg.MaxFileSize))
	log.Printf("Max files per request: %d", cfg.MaxFilesPerRequest)
	log.Printf("===========================================")
	log.Printf("Waiting for jobs...")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM, syscall.SIGINT)

	sig := <-sigChan
	log.Printf("Received signal %v, initiating graceful shutdown...", sig)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := consumer.Stop(shutdownCtx); err != nil {
		log.Printf("Error stopping queue consumer: %v", err)
	}

	log.Printf("Shutdown complete")
}
