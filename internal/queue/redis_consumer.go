/**
 * Direct Redis Queue Consumer for the OCR worker
 *
 * Compatible with the TypeScript RedisQueue implementation.
 * Uses simple Redis LIST operations for perfect compatibility.
 */

package queue

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/adverant/nexus/ocr-worker/internal/processor"
)

const (
	// JobTypeOCR is the job type written by producers
	JobTypeOCR = "ocr:process"

	// DefaultMaxRetries applies when a job does not carry its own limit
	DefaultMaxRetries = 3

	popTimeout = 5 * time.Second
)

var errNoJob = stderrors.New("no jobs available")

// RedisConsumer handles job consumption from Redis queue
type RedisConsumer struct {
	client  *redis.Client
	handler *Handler
	config  *RedisConsumerConfig
	keys    Keys
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// RedisConsumerConfig holds consumer configuration
type RedisConsumerConfig struct {
	RedisURL    string
	QueueName   string
	Concurrency int
	MaxRetries  int
	Service     *processor.Service
	Sink        processor.ResultSink // optional, e.g. storage.ResultSink
}

// NewRedisConsumer creates a new Redis-based queue consumer
func NewRedisConsumer(cfg *RedisConsumerConfig) (*RedisConsumer, error) {
	if cfg.RedisURL == "" {
		return nil, fmt.Errorf("RedisURL is required")
	}

	opt, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	client := redis.NewClient(opt)
	if err := client.Ping(context.Background()).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	c, err := newRedisConsumer(client, cfg)
	if err != nil {
		client.Close()
		return nil, err
	}
	return c, nil
}

func newRedisConsumer(client *redis.Client, cfg *RedisConsumerConfig) (*RedisConsumer, error) {
	if cfg.Service == nil {
		return nil, fmt.Errorf("Service is required")
	}
	if cfg.QueueName == "" {
		cfg.QueueName = "ocr:jobs"
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = DefaultMaxRetries
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &RedisConsumer{
		client:  client,
		handler: NewHandler(cfg.Service, cfg.Sink),
		config:  cfg,
		keys:    Keys{Queue: cfg.QueueName},
		ctx:     ctx,
		cancel:  cancel,
	}, nil
}

// Start begins processing jobs from the queue
func (c *RedisConsumer) Start() error {
	log.Printf("Starting Redis queue consumer (concurrency=%d, queue=%s)...",
		c.config.Concurrency, c.config.QueueName)

	for i := 0; i < c.config.Concurrency; i++ {
		c.wg.Add(1)
		go c.worker(i)
	}

	log.Println("Queue consumer started successfully")
	return nil
}

// Stop gracefully stops the consumer. In-flight jobs run to completion.
func (c *RedisConsumer) Stop() error {
	log.Println("Stopping queue consumer...")
	c.cancel()
	c.wg.Wait()
	return c.client.Close()
}

func (c *RedisConsumer) worker(id int) {
	defer c.wg.Done()
	log.Printf("Worker %d started", id)

	for {
		select {
		case <-c.ctx.Done():
			log.Printf("Worker %d stopping", id)
			return
		default:
		}

		if err := c.processNextJob(); err != nil {
			if err == errNoJob || c.ctx.Err() != nil {
				continue
			}
			log.Printf("Worker %d error: %v", id, err)
			select {
			case <-time.After(time.Second):
			case <-c.ctx.Done():
			}
		}
	}
}

// processNextJob fetches and processes the next job from the queue
func (c *RedisConsumer) processNextJob() error {
	result, err := c.client.BRPop(c.ctx, popTimeout, c.config.QueueName).Result()
	if err != nil {
		if err == redis.Nil {
			return errNoJob
		}
		return fmt.Errorf("failed to fetch job: %w", err)
	}
	if len(result) < 2 {
		return fmt.Errorf("invalid job result")
	}

	// The job has left the list; finish it even if Stop is called meanwhile.
	ctx := context.WithoutCancel(c.ctx)
	return c.processJob(ctx, result[1])
}

func (c *RedisConsumer) processJob(ctx context.Context, id string) error {
	raw, err := c.client.HGet(ctx, c.keys.Data(), id).Result()
	if err != nil {
		return fmt.Errorf("failed to get job data for %s: %w", id, err)
	}

	var job RedisJobData
	if err := json.Unmarshal([]byte(raw), &job); err != nil {
		c.updateJobStatus(ctx, id, StatusFailed, ErrorMap(err, 1))
		return fmt.Errorf("failed to unmarshal job %s: %w", id, err)
	}
	if job.Payload.JobID == "" {
		job.Payload.JobID = job.ID
	}
	if job.MaxRetries <= 0 {
		job.MaxRetries = c.config.MaxRetries
	}
	jobID := job.Payload.JobID

	c.updateJobStatus(ctx, jobID, StatusProcessing, nil)
	log.Printf("Processing job %s: %s", jobID, job.Payload.Source())

	summary, err := c.handler.Handle(ctx, &job.Payload)
	if err == nil {
		c.updateJobStatus(ctx, jobID, StatusCompleted, summary)
		log.Printf("Job %s completed successfully", jobID)
		return nil
	}

	log.Printf("Job %s failed: %v", jobID, err)
	job.Attempts++
	if Retryable(err) && job.Attempts < job.MaxRetries {
		updated, mErr := json.Marshal(job)
		if mErr != nil {
			return fmt.Errorf("failed to marshal job %s: %w", jobID, mErr)
		}
		pipe := c.client.TxPipeline()
		pipe.HSet(ctx, c.keys.Data(), job.ID, updated)
		pipe.SRem(ctx, c.keys.Processing(), jobID)
		pipe.LPush(ctx, c.config.QueueName, job.ID)
		if _, pErr := pipe.Exec(ctx); pErr != nil {
			return fmt.Errorf("failed to re-queue job %s: %w", jobID, pErr)
		}
		log.Printf("Job %s re-queued for retry (attempt %d/%d)", jobID, job.Attempts, job.MaxRetries)
		return nil
	}

	c.updateJobStatus(ctx, jobID, StatusFailed, ErrorMap(err, job.Attempts))
	return nil
}

// updateJobStatus moves the job between status sets, stores the result or
// error record and publishes an event for subscribers.
func (c *RedisConsumer) updateJobStatus(ctx context.Context, jobID, status string, record map[string]interface{}) {
	pipe := c.client.TxPipeline()

	switch status {
	case StatusProcessing:
		pipe.SAdd(ctx, c.keys.Processing(), jobID)
	case StatusCompleted, StatusFailed:
		target, hash := c.keys.Completed(), c.keys.Results()
		if status == StatusFailed {
			target, hash = c.keys.Failed(), c.keys.Errors()
		}
		pipe.SRem(ctx, c.keys.Processing(), jobID)
		pipe.SAdd(ctx, target, jobID)
		if record != nil {
			data, err := json.Marshal(record)
			if err != nil {
				log.Printf("[Job %s] Warning: Failed to marshal %s record: %v", jobID, status, err)
			} else {
				pipe.HSet(ctx, hash, jobID, data)
			}
		}
	}

	event := map[string]interface{}{
		"event":     fmt.Sprintf("job:%s", status),
		"jobId":     jobID,
		"timestamp": time.Now().Format(time.RFC3339),
	}
	eventData, _ := json.Marshal(event)
	pipe.Publish(ctx, c.keys.Events(), eventData)

	if _, err := pipe.Exec(ctx); err != nil {
		log.Printf("[Job %s] Warning: Failed to update status to %s: %v", jobID, status, err)
	}
}

// GetStats returns queue statistics
func (c *RedisConsumer) GetStats(ctx context.Context) (map[string]int64, error) {
	pipe := c.client.Pipeline()
	waiting := pipe.LLen(ctx, c.config.QueueName)
	processing := pipe.SCard(ctx, c.keys.Processing())
	completed := pipe.SCard(ctx, c.keys.Completed())
	failed := pipe.SCard(ctx, c.keys.Failed())
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("failed to read queue stats: %w", err)
	}

	return map[string]int64{
		"waiting":    waiting.Val(),
		"processing": processing.Val(),
		"completed":  completed.Val(),
		"failed":     failed.Val(),
	}, nil
}

// PushJob stores payload in the data hash and appends it to the queue using
// the same layout the TypeScript producer writes. It returns the job id.
func PushJob(ctx context.Context, client *redis.Client, queueName string, payload JobPayload, maxRetries int) (string, error) {
	if payload.JobID == "" {
		payload.JobID = uuid.New().String()
	}
	if err := payload.Validate(); err != nil {
		return "", err
	}
	if maxRetries <= 0 {
		maxRetries = DefaultMaxRetries
	}

	job := RedisJobData{
		ID:         payload.JobID,
		Type:       JobTypeOCR,
		Payload:    payload,
		CreatedAt:  time.Now().UTC(),
		MaxRetries: maxRetries,
	}
	data, err := json.Marshal(job)
	if err != nil {
		return "", fmt.Errorf("failed to marshal job: %w", err)
	}

	keys := Keys{Queue: queueName}
	pipe := client.TxPipeline()
	pipe.HSet(ctx, keys.Data(), job.ID, data)
	pipe.LPush(ctx, queueName, job.ID)
	if _, err := pipe.Exec(ctx); err != nil {
		return "", fmt.Errorf("failed to enqueue job: %w", err)
	}
	return job.ID, nil
}
