package reconcile

import (
	"context"
	"testing"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/congo-pay/druid/internal/logging"
)

func TestRedisRecorderQueuesEntries(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	defer mr.Close()
	cache := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer cache.Close()

	rec := NewRedisRecorder(cache, logging.Discard())
	ctx := context.Background()

	if err := rec.Record(ctx, Entry{Kind: KindSignerRegistration, UserID: 42, ContractID: "CABC", Reason: "timeout"}); err != nil {
		t.Fatalf("record: %v", err)
	}
	mr.Lpush(signerQueueKey, "not-json")

	pending, err := rec.Pending(ctx)
	if err != nil {
		t.Fatalf("pending: %v", err)
	}
	if len(pending) != 1 {
		t.Fatalf("expected 1 decodable entry, got %d", len(pending))
	}
	if pending[0].UserID != 42 || pending[0].ContractID != "CABC" {
		t.Fatalf("unexpected entry: %+v", pending[0])
	}
	if pending[0].RecordedAt.IsZero() {
		t.Fatalf("expected recorded_at to be stamped")
	}
}

func TestLogRecorderNilSafe(t *testing.T) {
	var rec *LogRecorder
	if err := rec.Record(context.Background(), Entry{}); err != nil {
		t.Fatalf("nil recorder should be a no-op: %v", err)
	}
}
