/**
 * OCR Worker - Main Entry Point
 *
 * Go worker for image text recognition.
 *
 * Architecture:
 * - Redis LIST consumer (default) or asynq consumer for the job queue
 * - Preprocessing pipeline + Tesseract recognition per job
 * - Optional PostgreSQL persistence for recognition results
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

	"github.com/adverant/nexus/ocr-worker/internal/config"
	"github.com/adverant/nexus/ocr-worker/internal/engine/tesseract"
	"github.com/adverant/nexus/ocr-worker/internal/logging"
	"github.com/adverant/nexus/ocr-worker/internal/processor"
	"github.com/adverant/nexus/ocr-worker/internal/queue"
	"github.com/adverant/nexus/ocr-worker/internal/storage"
)

// jobConsumer is implemented by both queue backends
type jobConsumer interface {
	Start() error
	Stop() error
}

func main() {
	if err := godotenv.Load(".env"); err != nil {
		log.Printf("Warning: .env not found, using system environment variables")
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if err := logging.Configure(cfg.EnableLogging, cfg.LogFile); err != nil {
		log.Printf("Warning: %v", err)
	}

	log.Printf("OCR Worker starting...")
	log.Printf("Configuration loaded: Redis=%s, Queue=%s (%s), Workers=%d, Language=%s",
		cfg.RedisURL, cfg.QueueName, cfg.QueueBackend, cfg.WorkerConcurrency, cfg.Language)

	svc := processor.NewService(*cfg, tesseract.New(cfg.TessdataPrefix))
	if err := svc.Init(cfg.Language, cfg.MinConfidence, cfg.EnablePreprocessing); err != nil {
		log.Fatalf("Failed to initialize OCR engine: %v", err)
	}

	var sink processor.ResultSink
	var db *storage.PostgresClient
	if cfg.DatabaseURL != "" {
		log.Printf("Connecting to PostgreSQL...")
		db, err = storage.NewPostgresClient(cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("Failed to connect to PostgreSQL: %v", err)
		}
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		err = db.EnsureSchema(ctx)
		cancel()
		if err != nil {
			log.Fatalf("Failed to prepare result schema: %v", err)
		}
		sink = &storage.ResultSink{Client: db}
		log.Printf("Results will be persisted to PostgreSQL")
	} else {
		log.Printf("DATABASE_URL not set, results are kept in Redis only")
	}

	consumer, err := newConsumer(cfg, svc, sink)
	if err != nil {
		log.Fatalf("Failed to initialize queue consumer: %v", err)
	}
	if err := consumer.Start(); err != nil {
		log.Fatalf("Failed to start queue consumer: %v", err)
	}

	log.Printf("===========================================")
	log.Printf("OCR Worker is READY")
	log.Printf("===========================================")
	log.Printf("Queue: %s (%s)", cfg.QueueName, cfg.QueueBackend)
	log.Printf("Workers: %d", cfg.WorkerConcurrency)
	log.Printf("Engine: tesseract %s", svc.SystemInfo().EngineVersion)
	log.Printf("Timeout per job: %v", cfg.Timeout)
	log.Printf("===========================================")
	log.Printf("Waiting for jobs...")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	sig := <-sigChan
	log.Printf("Received signal %v, initiating graceful shutdown...", sig)

	if err := consumer.Stop(); err != nil {
		log.Printf("Error stopping queue consumer: %v", err)
	} else {
		log.Printf("Queue consumer stopped successfully")
	}

	if db != nil {
		if err := db.Close(); err != nil {
			log.Printf("Error closing PostgreSQL: %v", err)
		}
	}

	log.Printf("Shutdown complete")
}

func newConsumer(cfg *config.Config, svc *processor.Service, sink processor.ResultSink) (jobConsumer, error) {
	if cfg.QueueBackend == config.QueueBackendAsynq {
		return queue.NewConsumer(&queue.ConsumerConfig{
			RedisURL:    cfg.RedisURL,
			QueueName:   cfg.QueueName,
			Concurrency: cfg.WorkerConcurrency,
			Service:     svc,
			Sink:        sink,
		})
	}
	return queue.NewRedisConsumer(&queue.RedisConsumerConfig{
		RedisURL:    cfg.RedisURL,
		QueueName:   cfg.QueueName,
		Concurrency: cfg.WorkerConcurrency,
		MaxRetries:  cfg.MaxRetries,
		Service:     svc,
		Sink:        sink,
	})
}
