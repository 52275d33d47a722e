package ledger

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
)

func TestInMemoryLedger_EnsureAccountIsIdempotent(t *testing.T) {
	l := NewInMemory()
	ctx := context.Background()

	if err := l.EnsureAccount(ctx, "wallet:a"); err != nil {
		t.Fatalf("ensure account: %v", err)
	}
	SeedBalance(l, "wallet:a", 2_000)
	if err := l.EnsureAccount(ctx, "wallet:a"); err != nil {
		t.Fatalf("ensure account again: %v", err)
	}

	balance, err := l.Balance(ctx, "wallet:a")
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if balance != 2_000 {
		t.Fatalf("expected balance to survive re-provisioning, got %d", balance)
	}
}

func TestInMemoryLedger_UnknownAccount(t *testing.T) {
	l := NewInMemory()
	if _, err := l.Balance(context.Background(), "wallet:missing"); !errors.Is(err, ErrAccountNotFound) {
		t.Fatalf("expected ErrAccountNotFound, got %v", err)
	}
}

func TestInMemoryLedger_ConcurrentProvisioning(t *testing.T) {
	l := NewInMemory()
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			code := fmt.Sprintf("wallet:%d", i%10)
			if err := l.EnsureAccount(ctx, code); err != nil {
				t.Errorf("ensure %s: %v", code, err)
			}
		}(i)
	}
	wg.Wait()

	for i := 0; i < 10; i++ {
		code := fmt.Sprintf("wallet:%d", i)
		balance, err := l.Balance(ctx, code)
		if err != nil {
			t.Fatalf("balance %s: %v", code, err)
		}
		if balance != 0 {
			t.Fatalf("expected zero balance for %s, got %d", code, balance)
		}
	}
}
