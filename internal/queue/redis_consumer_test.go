package queue

import (
	"context"
	"encoding/json"
	"os"
	"testing"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/adverant/nexus/ocr-worker/internal/config"
	"github.com/adverant/nexus/ocr-worker/internal/engine/enginetest"
	"github.com/adverant/nexus/ocr-worker/internal/processor"
)

// redisClient connects to REDIS_URL or skips the test.
func redisClient(t *testing.T) *redis.Client {
	t.Helper()
	url := os.Getenv("REDIS_URL")
	if url == "" {
		t.Skip("REDIS_URL not set")
	}
	opt, err := redis.ParseURL(url)
	if err != nil {
		t.Fatalf("ParseURL() error = %v", err)
	}
	client := redis.NewClient(opt)
	if err := client.Ping(context.Background()).Err(); err != nil {
		client.Close()
		t.Skipf("redis unavailable: %v", err)
	}
	return client
}

func newTestConsumer(t *testing.T, client *redis.Client, fake *enginetest.Engine) *RedisConsumer {
	t.Helper()
	cfg := config.Default()
	cfg.LogFile = ""
	cfg.EnableLogging = false
	cfg.EnableDeskew = false

	queueName := "ocr:test:" + uuid.New().String()
	c, err := newRedisConsumer(client, &RedisConsumerConfig{
		QueueName:  queueName,
		MaxRetries: 2,
		Service:    processor.NewService(cfg, fake),
	})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		k := c.keys
		client.Del(context.Background(), queueName, k.Data(), k.Processing(), k.Completed(), k.Failed(), k.Results(), k.Errors())
	})
	return c
}

func TestRedisConsumerCompletesJob(t *testing.T) {
	client := redisClient(t)
	defer client.Close()
	c := newTestConsumer(t, client, enginetest.New("queued text", 88))
	ctx := context.Background()

	id, err := PushJob(ctx, client, c.config.QueueName, JobPayload{FileBuffer: pagePNG(t), Language: "eng"}, 0)
	if err != nil {
		t.Fatalf("PushJob() error = %v", err)
	}
	if err := c.processNextJob(); err != nil {
		t.Fatalf("processNextJob() error = %v", err)
	}

	if ok, _ := client.SIsMember(ctx, c.keys.Completed(), id).Result(); !ok {
		t.Error("job should be in the completed set")
	}
	if ok, _ := client.SIsMember(ctx, c.keys.Processing(), id).Result(); ok {
		t.Error("job should have left the processing set")
	}

	raw, err := client.HGet(ctx, c.keys.Results(), id).Result()
	if err != nil {
		t.Fatalf("result missing: %v", err)
	}
	var summary map[string]interface{}
	if err := json.Unmarshal([]byte(raw), &summary); err != nil {
		t.Fatal(err)
	}
	if summary["text"] != "queued text" || summary["jobId"] != id {
		t.Errorf("summary = %v", summary)
	}

	stats, err := c.GetStats(ctx)
	if err != nil || stats["completed"] != 1 || stats["waiting"] != 0 {
		t.Errorf("stats = %v, %v", stats, err)
	}
}

func TestRedisConsumerRetriesThenFails(t *testing.T) {
	client := redisClient(t)
	defer client.Close()
	fake := enginetest.New("x", 80)
	fake.RecognizeErr = os.ErrDeadlineExceeded
	c := newTestConsumer(t, client, fake)
	ctx := context.Background()

	id, err := PushJob(ctx, client, c.config.QueueName, JobPayload{FileBuffer: pagePNG(t), Language: "eng"}, 2)
	if err != nil {
		t.Fatal(err)
	}

	// first attempt is re-queued, second exhausts MaxRetries
	for i := 0; i < 2; i++ {
		if err := c.processNextJob(); err != nil {
			t.Fatalf("attempt %d: %v", i+1, err)
		}
	}

	if ok, _ := client.SIsMember(ctx, c.keys.Failed(), id).Result(); !ok {
		t.Error("job should be in the failed set")
	}
	raw, err := client.HGet(ctx, c.keys.Errors(), id).Result()
	if err != nil {
		t.Fatalf("error record missing: %v", err)
	}
	var record map[string]interface{}
	if err := json.Unmarshal([]byte(raw), &record); err != nil {
		t.Fatal(err)
	}
	if record["error_code"] != "PROCESSING_FAILURE" || record["attempts"] != float64(2) {
		t.Errorf("record = %v", record)
	}
}

func TestRedisConsumerDoesNotRetryBadInput(t *testing.T) {
	client := redisClient(t)
	defer client.Close()
	c := newTestConsumer(t, client, enginetest.New("x", 80))
	ctx := context.Background()

	id, err := PushJob(ctx, client, c.config.QueueName, JobPayload{FileBuffer: []byte("not an image at all")}, 3)
	if err != nil {
		t.Fatal(err)
	}
	if err := c.processNextJob(); err != nil {
		t.Fatal(err)
	}
	if n, _ := client.LLen(ctx, c.config.QueueName).Result(); n != 0 {
		t.Errorf("queue length = %d, invalid images must not be re-queued", n)
	}
	if ok, _ := client.SIsMember(ctx, c.keys.Failed(), id).Result(); !ok {
		t.Error("job should be in the failed set")
	}
}
