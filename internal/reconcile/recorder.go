package reconcile

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	// KindSignerRegistration marks a passkey binding whose remote signer
	// registration failed.
	KindSignerRegistration = "signer_registration"

	signerQueueKey = "reconcile:signers"
)

// Entry describes a local change the remote side has not acknowledged.
type Entry struct {
	Kind       string    `json:"kind"`
	UserID     int64     `json:"user_id"`
	ContractID string    `json:"contract_id"`
	Email      string    `json:"email,omitempty"`
	Phone      string    `json:"phone,omitempty"`
	Reason     string    `json:"reason"`
	RecordedAt time.Time `json:"recorded_at"`
}

// Recorder keeps entries around for a later reconciliation pass.
type Recorder interface {
	Record(ctx context.Context, entry Entry) error
}

// LogRecorder writes entries to the structured logger only.
type LogRecorder struct {
	logger *slog.Logger
}

// NewLogRecorder constructs a recorder that only logs.
func NewLogRecorder(logger *slog.Logger) *LogRecorder {
	return &LogRecorder{logger: logger}
}

// Record logs the entry at warn level.
func (r *LogRecorder) Record(_ context.Context, entry Entry) error {
	if r == nil || r.logger == nil {
		return nil
	}
	r.logger.Warn("reconciliation pending",
		slog.String("kind", entry.Kind),
		slog.Int64("user_id", entry.UserID),
		slog.String("contract_id", entry.ContractID),
		slog.String("reason", entry.Reason),
	)
	return nil
}

// RedisRecorder appends entries to a Redis list so a worker, or the next
// login, can replay them.
type RedisRecorder struct {
	cache  *redis.Client
	logger *slog.Logger
}

// NewRedisRecorder builds a Redis-backed recorder.
func NewRedisRecorder(cache *redis.Client, logger *slog.Logger) *RedisRecorder {
	return &RedisRecorder{cache: cache, logger: logger}
}

// Record pushes the JSON encoded entry onto the queue and logs it.
func (r *RedisRecorder) Record(ctx context.Context, entry Entry) error {
	if entry.RecordedAt.IsZero() {
		entry.RecordedAt = time.Now().UTC()
	}
	payload, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("encode reconcile entry: %w", err)
	}
	if err := r.cache.RPush(ctx, signerQueueKey, payload).Err(); err != nil {
		return fmt.Errorf("push reconcile entry: %w", err)
	}
	if r.logger != nil {
		r.logger.Warn("reconciliation queued",
			slog.String("kind", entry.Kind),
			slog.Int64("user_id", entry.UserID),
			slog.String("reason", entry.Reason),
		)
	}
	return nil
}

// Pending returns queued entries without removing them. Undecodable items
// are skipped.
func (r *RedisRecorder) Pending(ctx context.Context) ([]Entry, error) {
	items, err := r.cache.LRange(ctx, signerQueueKey, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("read reconcile queue: %w", err)
	}
	entries := make([]Entry, 0, len(items))
	for _, item := range items {
		var e Entry
		if err := json.Unmarshal([]byte(item), &e); err != nil {
			if r.logger != nil {
				r.logger.Warn("skipping undecodable reconcile entry", slog.Any("error", err))
			}
			continue
		}
		entries = append(entries, e)
	}
	return entries, nil
}
