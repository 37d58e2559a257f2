/**
 * PostgreSQL Client for the OCR worker
 *
 * Persists one row per recognition (queue job or batch file) in
 * ocr.results. Rows are upserted by job id so retried jobs overwrite
 * their previous attempt.
 */

package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/lib/pq"
)

// schema is applied by EnsureSchema
const schema = `
	CREATE SCHEMA IF NOT EXISTS ocr;

	CREATE TABLE IF NOT EXISTS ocr.results (
		job_id             TEXT PRIMARY KEY,
		source             TEXT NOT NULL,
		language           TEXT NOT NULL DEFAULT '',
		status             TEXT NOT NULL,
		error_code         TEXT,
		error_message      TEXT,
		confidence         NUMERIC(5,2),
		word_count         INTEGER NOT NULL DEFAULT 0,
		char_count         INTEGER NOT NULL DEFAULT 0,
		processing_time_ms BIGINT NOT NULL DEFAULT 0,
		text               TEXT,
		words              TEXT[],
		metadata           JSONB NOT NULL DEFAULT '{}'::jsonb,
		created_at         TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at         TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);

	CREATE INDEX IF NOT EXISTS results_status_idx ON ocr.results (status);
`

// PostgresClient handles database operations
type PostgresClient struct {
	db *sql.DB
}

// ResultRecord is one persisted recognition
type ResultRecord struct {
	JobID            string
	Source           string
	Language         string
	Status           string // SUCCESS or the error code
	ErrorCode        string
	ErrorMessage     string
	Confidence       float64 // NotComputed (-1) is stored as NULL
	WordCount        int
	CharCount        int
	ProcessingTimeMs int64
	Text             *string
	Words            []string
	Metadata         map[string]interface{}
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// sanitizeConfidence rounds confidence to 2 decimal places to match the
// NUMERIC(5,2) column. Negative or NaN values mean "not computed" and are
// stored as NULL.
func sanitizeConfidence(confidence float64) sql.NullFloat64 {
	if math.IsNaN(confidence) || confidence < 0 {
		return sql.NullFloat64{}
	}
	if confidence > 100 {
		confidence = 100
	}
	return sql.NullFloat64{Float64: math.Round(confidence*100) / 100, Valid: true}
}

// sanitizeText removes NUL characters, which PostgreSQL TEXT rejects.
func sanitizeText(s string) string {
	return strings.ReplaceAll(s, "\x00", "")
}

// NewPostgresClient creates a new PostgreSQL client
func NewPostgresClient(databaseURL string) (*PostgresClient, error) {
	if databaseURL == "" {
		return nil, fmt.Errorf("database URL is required")
	}

	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)
	db.SetConnMaxIdleTime(2 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &PostgresClient{db: db}, nil
}

// EnsureSchema creates the ocr schema and results table when missing
func (p *PostgresClient) EnsureSchema(ctx context.Context) error {
	if _, err := p.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// SaveResult upserts rec by job id
func (p *PostgresClient) SaveResult(ctx context.Context, rec *ResultRecord) error {
	if rec.JobID == "" {
		return fmt.Errorf("job ID is required")
	}
	if rec.Status == "" {
		return fmt.Errorf("status is required")
	}

	metadataJSON, err := json.Marshal(rec.Metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}
	if rec.Metadata == nil {
		metadataJSON = []byte("{}")
	}

	var text sql.NullString
	if rec.Text != nil {
		text = sql.NullString{String: sanitizeText(*rec.Text), Valid: true}
	}
	words := make([]string, len(rec.Words))
	for i, w := range rec.Words {
		words[i] = sanitizeText(w)
	}
	confidence := sanitizeConfidence(rec.Confidence)
	errorMessage := sanitizeText(rec.ErrorMessage)

	query := `
		INSERT INTO ocr.results (
			job_id, source, language, status, error_code, error_message,
			confidence, word_count, char_count, processing_time_ms,
			text, words, metadata, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, NULLIF($5, ''), NULLIF($6, ''),
			$7, $8, $9, $10,
			$11, $12, $13::jsonb, NOW(), NOW()
		)
		ON CONFLICT (job_id) DO UPDATE SET
			source = EXCLUDED.source,
			language = EXCLUDED.language,
			status = EXCLUDED.status,
			error_code = EXCLUDED.error_code,
			error_message = EXCLUDED.error_message,
			confidence = EXCLUDED.confidence,
			word_count = EXCLUDED.word_count,
			char_count = EXCLUDED.char_count,
			processing_time_ms = EXCLUDED.processing_time_ms,
			text = EXCLUDED.text,
			words = EXCLUDED.words,
			metadata = EXCLUDED.metadata,
			updated_at = NOW()
	`

	_, err = p.db.ExecContext(ctx, query,
		rec.JobID,            // $1
		rec.Source,           // $2
		rec.Language,         // $3
		rec.Status,           // $4
		rec.ErrorCode,        // $5
		errorMessage,         // $6
		confidence,           // $7
		rec.WordCount,        // $8
		rec.CharCount,        // $9
		rec.ProcessingTimeMs, // $10
		text,                 // $11
		pq.Array(words),      // $12
		metadataJSON,         // $13
	)
	if err != nil {
		return fmt.Errorf("failed to save result (job=%s, status=%s): %w", rec.JobID, rec.Status, err)
	}
	return nil
}

// GetResult retrieves the result stored for jobID
func (p *PostgresClient) GetResult(ctx context.Context, jobID string) (*ResultRecord, error) {
	if jobID == "" {
		return nil, fmt.Errorf("job ID is required")
	}

	query := `
		SELECT
			job_id, source, language, status, error_code, error_message,
			confidence, word_count, char_count, processing_time_ms,
			text, words, metadata, created_at, updated_at
		FROM ocr.results
		WHERE job_id = $1
	`

	var (
		rec                     ResultRecord
		errorCode, errorMessage sql.NullString
		confidence              sql.NullFloat64
		text                    sql.NullString
		words                   pq.StringArray
		metadataJSON            []byte
	)

	err := p.db.QueryRowContext(ctx, query, jobID).Scan(
		&rec.JobID, &rec.Source, &rec.Language, &rec.Status, &errorCode, &errorMessage,
		&confidence, &rec.WordCount, &rec.CharCount, &rec.ProcessingTimeMs,
		&text, &words, &metadataJSON, &rec.CreatedAt, &rec.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("result not found: %s", jobID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get result: %w", err)
	}

	rec.ErrorCode = errorCode.String
	rec.ErrorMessage = errorMessage.String
	rec.Confidence = -1
	if confidence.Valid {
		rec.Confidence = confidence.Float64
	}
	if text.Valid {
		s := text.String
		rec.Text = &s
	}
	rec.Words = []string(words)

	if len(metadataJSON) > 0 {
		if err := json.Unmarshal(metadataJSON, &rec.Metadata); err != nil {
			return nil, fmt.Errorf("failed to unmarshal metadata: %w", err)
		}
	}

	return &rec, nil
}

// CountByStatus returns the number of stored results per status
func (p *PostgresClient) CountByStatus(ctx context.Context) (map[string]int64, error) {
	rows, err := p.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM ocr.results GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("failed to count results: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int64)
	for rows.Next() {
		var status string
		var n int64
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("failed to scan result count: %w", err)
		}
		counts[status] = n
	}
	return counts, rows.Err()
}

// Ping checks database connectivity
func (p *PostgresClient) Ping(ctx context.Context) error {
	return p.db.PingContext(ctx)
}

// Close closes the database connection
func (p *PostgresClient) Close() error {
	if p.db != nil {
		return p.db.Close()
	}
	return nil
}

// GetStats returns connection pool statistics
func (p *PostgresClient) GetStats() sql.DBStats {
	return p.db.Stats()
}
