// Package audit persists an append-only log of routing outcomes. Writes are
// fire-and-forget: a slow or absent database must never add latency to the
// routing hot path, so failures are logged and dropped.
package audit

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

const writeTimeout = 2 * time.Second

// Entry is one routing outcome.
type Entry struct {
	RequestID    string
	ChunkHash    string
	Task         string
	Success      bool
	BackendUsed  string
	Model        string
	AttemptsMade int
	TriedAPIs    []string
	ErrorText    string
	Duration     time.Duration
}

// HashChunk returns the stored digest of a chunk. Raw document text never
// reaches the audit table.
func HashChunk(chunk string) string {
	sum := sha256.Sum256([]byte(chunk))
	return hex.EncodeToString(sum[:])
}

// Recorder writes audit entries to PostgreSQL. A nil Recorder or a Recorder
// without a pool silently discards entries.
type Recorder struct {
	db *pgxpool.Pool
}

func NewRecorder(db *pgxpool.Pool) *Recorder {
	return &Recorder{db: db}
}

// Record persists one entry asynchronously.
func (r *Recorder) Record(entry Entry) {
	if r == nil || r.db == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
		defer cancel()

		_, err := r.db.Exec(ctx, `
			INSERT INTO routing_audit (
				request_id, chunk_hash, task, success, backend_used, model,
				attempts_made, tried_apis, error_text, duration_ms
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		`,
			entry.RequestID,
			entry.ChunkHash,
			entry.Task,
			entry.Success,
			nullable(entry.BackendUsed),
			nullable(entry.Model),
			entry.AttemptsMade,
			entry.TriedAPIs,
			nullable(entry.ErrorText),
			entry.Duration.Milliseconds(),
		)
		if err != nil {
			slog.Error("audit write failed", "request_id", entry.RequestID, "error", err)
		}
	}()
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
