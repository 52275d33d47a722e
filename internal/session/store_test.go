package session

import (
	"context"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/congo-pay/druid/internal/identity"
	"github.com/congo-pay/druid/internal/logging"
)

func sampleIdentity() identity.Identity {
	return identity.Identity{
		ID:             2627,
		Email:          "a@b.com",
		FirstName:      "Ada",
		LastName:       "Lovelace",
		HashedPIN:      identity.PINSetMarker,
		PasskeyAddress: identity.SkippedPasskey(),
		WalletAddress:  "wallet:0f8c",
	}
}

func storages(t *testing.T) map[string]Storage {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	cache := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		cache.Close()
		mr.Close()
	})

	sqlite, err := OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "session.db"))
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() {
		if err := sqlite.Close(); err != nil {
			t.Fatalf("close sqlite: %v", err)
		}
	})

	return map[string]Storage{
		"memory": NewMemoryStorage(),
		"redis":  NewRedisStorage(cache, "test", 0),
		"sqlite": sqlite,
	}
}

func TestSaveThenLoadReturnsEquivalentIdentity(t *testing.T) {
	for name, storage := range storages(t) {
		t.Run(name, func(t *testing.T) {
			store := NewStore(storage, nil, logging.Discard())
			ctx := context.Background()
			want := sampleIdentity()

			if err := store.Save(ctx, want); err != nil {
				t.Fatalf("save: %v", err)
			}
			got, ok, err := store.Load(ctx)
			if err != nil {
				t.Fatalf("load: %v", err)
			}
			if !ok {
				t.Fatalf("expected stored identity")
			}
			if !reflect.DeepEqual(got, want) {
				t.Fatalf("round trip mismatch:\n got %+v\nwant %+v", got, want)
			}
		})
	}
}

func TestSaveOverwritesWholesale(t *testing.T) {
	store := NewStore(NewMemoryStorage(), nil, logging.Discard())
	ctx := context.Background()

	first := sampleIdentity()
	if err := store.Save(ctx, first); err != nil {
		t.Fatalf("save first: %v", err)
	}
	second := identity.Identity{ID: 9, Phone: "650000000"}
	if err := store.Save(ctx, second); err != nil {
		t.Fatalf("save second: %v", err)
	}
	got, _, err := store.Load(ctx)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !reflect.DeepEqual(got, second) {
		t.Fatalf("expected second identity only, got %+v", got)
	}
}

func TestLoadCorruptContentClearsStorage(t *testing.T) {
	corrupt := []string{
		`{not json`,
		`{"identity":{"id":0}}`,
		`{"identity":{"id":5}}`,
		`[]`,
	}
	for name, storage := range storages(t) {
		for _, payload := range corrupt {
			t.Run(name+"/"+payload, func(t *testing.T) {
				ctx := context.Background()
				if err := storage.Set(ctx, Key, []byte(payload)); err != nil {
					t.Fatalf("seed: %v", err)
				}
				store := NewStore(storage, nil, logging.Discard())

				_, ok, err := store.Load(ctx)
				if err != nil {
					t.Fatalf("corrupt content must not surface an error: %v", err)
				}
				if ok {
					t.Fatalf("expected absent identity")
				}
				if _, present, _ := storage.Get(ctx, Key); present {
					t.Fatalf("expected corrupt record to be cleared")
				}
			})
		}
	}
}

func TestLoadEmpty(t *testing.T) {
	store := NewStore(NewMemoryStorage(), nil, logging.Discard())
	_, ok, err := store.Load(context.Background())
	if err != nil || ok {
		t.Fatalf("expected absent without error, got ok=%v err=%v", ok, err)
	}
}

func TestClearIsIdempotent(t *testing.T) {
	store := NewStore(NewMemoryStorage(), nil, logging.Discard())
	ctx := context.Background()
	if err := store.Save(ctx, sampleIdentity()); err != nil {
		t.Fatalf("save: %v", err)
	}
	for i := 0; i < 2; i++ {
		if err := store.Clear(ctx); err != nil {
			t.Fatalf("clear %d: %v", i, err)
		}
	}
	if _, ok, _ := store.Load(ctx); ok {
		t.Fatalf("expected no session after clear")
	}
}

func TestSaveRejectsInvalidIdentity(t *testing.T) {
	store := NewStore(NewMemoryStorage(), nil, logging.Discard())
	if err := store.Save(context.Background(), identity.Identity{ID: 1}); err != ErrInvalidIdentity {
		t.Fatalf("expected invalid identity, got %v", err)
	}
}

func TestSignedCodecDetectsTampering(t *testing.T) {
	codec, err := NewSignedCodec([]byte("0123456789abcdef0123"))
	if err != nil {
		t.Fatalf("new codec: %v", err)
	}
	storage := NewMemoryStorage()
	store := NewStore(storage, codec, logging.Discard())
	ctx := context.Background()

	want := sampleIdentity()
	want.PasskeyAddress = identity.BoundPasskey("CADDR")
	if err := store.Save(ctx, want); err != nil {
		t.Fatalf("save: %v", err)
	}

	got, ok, err := store.Load(ctx)
	if err != nil || !ok {
		t.Fatalf("load signed: ok=%v err=%v", ok, err)
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("signed round trip mismatch: %+v", got)
	}

	raw, _, _ := storage.Get(ctx, Key)
	parts := strings.Split(string(raw), ".")
	if len(parts) != 3 {
		t.Fatalf("expected compact token, got %q", raw)
	}
	tampered := parts[0] + "." + parts[1] + "." + strings.Repeat("A", len(parts[2]))
	if err := storage.Set(ctx, Key, []byte(tampered)); err != nil {
		t.Fatalf("tamper: %v", err)
	}

	if _, ok, err := store.Load(ctx); ok || err != nil {
		t.Fatalf("tampered token must load as absent, got ok=%v err=%v", ok, err)
	}
}

func TestNewSignedCodecRequiresKeyLength(t *testing.T) {
	if _, err := NewSignedCodec([]byte("short")); err == nil {
		t.Fatalf("expected short key to be rejected")
	}
}
