package wallet

import (
	"context"
	"encoding/json"
	"io"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/druid/internal/ledger"
)

func TestHandlerForUser(t *testing.T) {
	led := ledger.NewInMemory()
	svc := NewService(NewMemoryRepository(), led)
	w, err := svc.Create(context.Background(), CreateInput{OwnerID: 3})
	if err != nil {
		t.Fatalf("create wallet: %v", err)
	}
	ledger.SeedBalance(led, w.AccountCode, 750)

	app := fiber.New()
	app.Get("/users/:id/wallet", NewHandler(svc).ForUser)

	resp, err := app.Test(httptest.NewRequest(fiber.MethodGet, "/users/3/wallet", nil))
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("expected 200, got %d: %s", resp.StatusCode, body)
	}
	var got walletResponse
	if err := json.Unmarshal(body, &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Address != w.AccountCode || got.Balance != 750 || got.OwnerID != 3 {
		t.Fatalf("unexpected wallet response %+v", got)
	}

	for path, want := range map[string]int{
		"/users/4/wallet":   fiber.StatusNotFound,
		"/users/abc/wallet": fiber.StatusBadRequest,
	} {
		resp, err := app.Test(httptest.NewRequest(fiber.MethodGet, path, nil))
		if err != nil {
			t.Fatalf("%s: %v", path, err)
		}
		resp.Body.Close()
		if resp.StatusCode != want {
			t.Fatalf("%s: expected %d, got %d", path, want, resp.StatusCode)
		}
	}
}
