/**
 * Asynq Queue Consumer for the OCR worker
 *
 * Alternative to the Redis LIST consumer for deployments that enqueue
 * through asynq (OCR_QUEUE_BACKEND=asynq). Job semantics are identical:
 * both run the same Handler.
 */

package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"

	"github.com/adverant/nexus/ocr-worker/internal/processor"
)

// resultRetention keeps completed task results readable through asynq
const resultRetention = 24 * time.Hour

// Consumer handles job consumption from an asynq queue
type Consumer struct {
	server  *asynq.Server
	mux     *asynq.ServeMux
	handler *Handler
	config  *ConsumerConfig
}

// ConsumerConfig holds consumer configuration
type ConsumerConfig struct {
	RedisURL    string
	QueueName   string
	Concurrency int
	Service     *processor.Service
	Sink        processor.ResultSink
}

// NewConsumer creates a new queue consumer
func NewConsumer(cfg *ConsumerConfig) (*Consumer, error) {
	if cfg.RedisURL == "" {
		return nil, fmt.Errorf("RedisURL is required")
	}
	if cfg.QueueName == "" {
		return nil, fmt.Errorf("QueueName is required")
	}
	if cfg.Service == nil {
		return nil, fmt.Errorf("Service is required")
	}

	redisOpt, err := asynq.ParseRedisURI(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	server := asynq.NewServer(
		redisOpt,
		asynq.Config{
			Concurrency: cfg.Concurrency,
			Queues: map[string]int{
				cfg.QueueName: 10,
				"default":     1,
			},
			// Exponential backoff: 5s, 10s, 20s, capped at 60s
			RetryDelayFunc: func(n int, err error, task *asynq.Task) time.Duration {
				delay := time.Duration(5*(1<<uint(n))) * time.Second
				if delay > 60*time.Second {
					delay = 60 * time.Second
				}
				return delay
			},
			ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
				log.Printf("Task processing error: type=%s, error=%v", task.Type(), err)
			}),
		},
	)

	c := &Consumer{
		server:  server,
		mux:     asynq.NewServeMux(),
		handler: NewHandler(cfg.Service, cfg.Sink),
		config:  cfg,
	}
	c.mux.HandleFunc(JobTypeOCR, c.handleOCR)
	return c, nil
}

// Start starts the queue consumer without blocking
func (c *Consumer) Start() error {
	log.Printf("Starting asynq consumer (concurrency=%d, queue=%s)...",
		c.config.Concurrency, c.config.QueueName)
	if err := c.server.Start(c.mux); err != nil {
		return fmt.Errorf("failed to start asynq server: %w", err)
	}
	return nil
}

// Stop waits for in-flight tasks and stops the consumer
func (c *Consumer) Stop() error {
	log.Printf("Stopping asynq consumer...")
	c.server.Shutdown()
	log.Printf("Asynq consumer stopped")
	return nil
}

func (c *Consumer) handleOCR(ctx context.Context, task *asynq.Task) error {
	var payload JobPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return fmt.Errorf("failed to unmarshal job payload: %v: %w", err, asynq.SkipRetry)
	}

	log.Printf("[Job %s] Processing image: %s", payload.JobID, payload.Source())

	summary, err := c.handler.Handle(ctx, &payload)
	if err != nil {
		if !Retryable(err) {
			return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
		}
		return err
	}

	if w := task.ResultWriter(); w != nil {
		data, mErr := json.Marshal(summary)
		if mErr == nil {
			_, mErr = w.Write(data)
		}
		if mErr != nil {
			log.Printf("[Job %s] Warning: Failed to write task result: %v", payload.JobID, mErr)
		}
	}
	return nil
}

// GetStatistics returns consumer statistics
func (c *Consumer) GetStatistics() map[string]interface{} {
	return map[string]interface{}{
		"concurrency": c.config.Concurrency,
		"queue":       c.config.QueueName,
	}
}

// Producer enqueues OCR tasks for the asynq consumer
type Producer struct {
	client     *asynq.Client
	queue      string
	maxRetries int
}

// NewProducer creates a producer for queueName
func NewProducer(redisURL, queueName string, maxRetries int) (*Producer, error) {
	redisOpt, err := asynq.ParseRedisURI(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}
	if maxRetries <= 0 {
		maxRetries = DefaultMaxRetries
	}
	return &Producer{
		client:     asynq.NewClient(redisOpt),
		queue:      queueName,
		maxRetries: maxRetries,
	}, nil
}

// NewTask builds the asynq task for payload, assigning a job id if missing.
func NewTask(payload *JobPayload) (*asynq.Task, error) {
	if payload.JobID == "" {
		payload.JobID = uuid.New().String()
	}
	if err := payload.Validate(); err != nil {
		return nil, err
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal job payload: %w", err)
	}
	return asynq.NewTask(JobTypeOCR, data), nil
}

// Enqueue submits payload and returns its job id.
func (p *Producer) Enqueue(ctx context.Context, payload JobPayload) (string, error) {
	task, err := NewTask(&payload)
	if err != nil {
		return "", err
	}
	_, err = p.client.EnqueueContext(ctx, task,
		asynq.Queue(p.queue),
		asynq.TaskID(payload.JobID),
		asynq.MaxRetry(p.maxRetries),
		asynq.Retention(resultRetention),
	)
	if err != nil {
		return "", fmt.Errorf("failed to enqueue job %s: %w", payload.JobID, err)
	}
	return payload.JobID, nil
}

// Close releases the producer's Redis connection
func (p *Producer) Close() error {
	return p.client.Close()
}
