/**
 * Job types shared by the Redis LIST consumer and the asynq consumer
 *
 * Payloads are produced by the TypeScript API as well as by the Go CLI, so
 * fileBuffer accepts both a base64 string and a serialized Node.js Buffer.
 */

package queue

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"path/filepath"
	"time"
)

// Job statuses tracked in Redis
const (
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
)

// RedisJobData represents a job from the Redis queue
type RedisJobData struct {
	ID         string     `json:"id"`
	Type       string     `json:"type"`
	Payload    JobPayload `json:"payload"`
	CreatedAt  time.Time  `json:"createdAt"`
	Attempts   int        `json:"attempts"`
	MaxRetries int        `json:"maxRetries"`
}

// JobPayload describes one image to recognize. Exactly one of FilePath,
// FileBuffer or FileURL is expected; FilePath wins when several are set.
type JobPayload struct {
	JobID      string `json:"jobId"`
	Filename   string `json:"filename,omitempty"`
	FilePath   string `json:"filePath,omitempty"`
	FileURL    string `json:"fileUrl,omitempty"`
	FileBuffer []byte `json:"-"` // set by UnmarshalJSON
	Language   string `json:"language,omitempty"`
}

// UnmarshalJSON handles fileBuffer as a base64 string (current producers) or
// a Node.js Buffer object {"type":"Buffer","data":[...]} (legacy producers).
func (p *JobPayload) UnmarshalJSON(data []byte) error {
	type Alias JobPayload
	aux := &struct {
		FileBuffer interface{} `json:"fileBuffer,omitempty"`
		*Alias
	}{
		Alias: (*Alias)(p),
	}

	if err := json.Unmarshal(data, &aux); err != nil {
		return fmt.Errorf("failed to unmarshal JobPayload: %w", err)
	}

	if aux.FileBuffer == nil {
		return nil
	}

	switch v := aux.FileBuffer.(type) {
	case string:
		decoded, err := base64.StdEncoding.DecodeString(v)
		if err != nil {
			return fmt.Errorf("failed to decode base64 fileBuffer: %w", err)
		}
		p.FileBuffer = decoded

	case map[string]interface{}:
		if bufferType, ok := v["type"].(string); !ok || bufferType != "Buffer" {
			return fmt.Errorf("invalid Buffer object format (missing or incorrect 'type' field)")
		}
		dataArray, ok := v["data"].([]interface{})
		if !ok {
			return fmt.Errorf("Buffer object missing 'data' array")
		}
		p.FileBuffer = make([]byte, len(dataArray))
		for i, val := range dataArray {
			byteVal, ok := val.(float64)
			if !ok || byteVal < 0 || byteVal > 255 {
				return fmt.Errorf("invalid byte value in Buffer data array at index %d", i)
			}
			p.FileBuffer[i] = byte(byteVal)
		}

	default:
		return fmt.Errorf("fileBuffer must be either base64 string or Buffer object, got %T", v)
	}

	return nil
}

// MarshalJSON writes fileBuffer as base64 so Go producers and the API agree.
func (p JobPayload) MarshalJSON() ([]byte, error) {
	type Alias JobPayload
	aux := struct {
		FileBuffer string `json:"fileBuffer,omitempty"`
		Alias
	}{
		Alias: Alias(p),
	}
	if len(p.FileBuffer) > 0 {
		aux.FileBuffer = base64.StdEncoding.EncodeToString(p.FileBuffer)
	}
	return json.Marshal(aux)
}

// Source names the job input for logs and persisted results.
func (p *JobPayload) Source() string {
	switch {
	case p.FilePath != "":
		return p.FilePath
	case p.Filename != "":
		return p.Filename
	case p.FileURL != "":
		return p.FileURL
	}
	return "<memory>"
}

// Validate checks that the payload names something to recognize.
func (p *JobPayload) Validate() error {
	if p.JobID == "" {
		return fmt.Errorf("jobId is required")
	}
	if p.FilePath == "" && len(p.FileBuffer) == 0 && p.FileURL == "" {
		return fmt.Errorf("job %s has no file source (filePath, fileBuffer or fileUrl)", p.JobID)
	}
	if p.FilePath != "" && !filepath.IsAbs(p.FilePath) {
		return fmt.Errorf("job %s filePath must be absolute: %s", p.JobID, p.FilePath)
	}
	return nil
}

// Keys names the Redis structures that belong to one queue.
type Keys struct {
	Queue string
}

func (k Keys) Data() string       { return k.Queue + ":data" }
func (k Keys) Processing() string { return k.Queue + ":" + StatusProcessing }
func (k Keys) Completed() string  { return k.Queue + ":" + StatusCompleted }
func (k Keys) Failed() string     { return k.Queue + ":" + StatusFailed }
func (k Keys) Results() string    { return k.Queue + ":results" }
func (k Keys) Errors() string     { return k.Queue + ":errors" }
func (k Keys) Events() string     { return k.Queue + ":events" }
