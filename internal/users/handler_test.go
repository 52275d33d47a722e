package users

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/druid/internal/identity"
)

func itoa(id int64) string {
	return strconv.FormatInt(id, 10)
}

func newTestApp(t *testing.T) *fiber.App {
	t.Helper()
	svc, _ := newTestService(t)
	h := NewHandler(svc)
	app := fiber.New()
	app.Post("/users", h.Register)
	app.Get("/users/by-email", h.ByEmail)
	app.Get("/users/by-phone", h.ByPhone)
	app.Post("/users/pin", h.SetPIN)
	app.Get("/users/:id", h.Get)
	app.Post("/signers", h.SaveSigner)
	return app
}

func do(t *testing.T, app *fiber.App, method, path string, body any) (int, []byte) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	out, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, out
}

func register(t *testing.T, app *fiber.App, in RegisterInput) registerResponse {
	t.Helper()
	status, body := do(t, app, http.MethodPost, "/users", in)
	if status != http.StatusCreated {
		t.Fatalf("register: status %d body %s", status, body)
	}
	var out registerResponse
	if err := json.Unmarshal(body, &out); err != nil {
		t.Fatalf("decode register: %v", err)
	}
	return out
}

func TestHandlerRegisterAndLookup(t *testing.T) {
	app := newTestApp(t)
	created := register(t, app, RegisterInput{FirstName: "Ada", Email: "ada@example.com"})
	if created.ID == 0 || created.WalletAddress == "" {
		t.Fatalf("unexpected register response %+v", created)
	}

	status, body := do(t, app, http.MethodGet, "/users/by-email?email=ada@example.com", nil)
	if status != http.StatusOK {
		t.Fatalf("lookup: status %d body %s", status, body)
	}
	rec, err := identity.Decode(body)
	if err != nil {
		t.Fatalf("decode lookup: %v", err)
	}
	if rec.ID != created.ID || rec.FirstName != "Ada" || rec.HasPIN() {
		t.Fatalf("unexpected record %+v", rec)
	}
	if rec.PasskeyAddress.State() != identity.PasskeyUnset {
		t.Fatalf("expected unset passkey, got %s", rec.PasskeyAddress.State())
	}

	status, _ = do(t, app, http.MethodGet, "/users/by-phone?phone=061234567", nil)
	if status != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown phone, got %d", status)
	}

	status, _ = do(t, app, http.MethodPost, "/users", RegisterInput{Email: "ada@example.com"})
	if status != http.StatusConflict {
		t.Fatalf("expected 409 for duplicate, got %d", status)
	}
}

func TestHandlerSetPIN(t *testing.T) {
	app := newTestApp(t)
	created := register(t, app, RegisterInput{Email: "ada@example.com"})

	status, body := do(t, app, http.MethodPost, "/users/pin", setPINRequest{UserID: created.ID, PIN: "12"})
	if status != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", status)
	}
	var result struct {
		Success bool   `json:"success"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if result.Success || result.Message != ErrInvalidPIN.Error() {
		t.Fatalf("unexpected result %+v", result)
	}

	status, body = do(t, app, http.MethodPost, "/users/pin", setPINRequest{UserID: created.ID, PIN: "123456"})
	if status != http.StatusOK {
		t.Fatalf("set pin: status %d body %s", status, body)
	}
	if err := json.Unmarshal(body, &result); err != nil || !result.Success {
		t.Fatalf("expected success, got %+v %v", result, err)
	}

	status, body = do(t, app, http.MethodGet, "/users/"+itoa(created.ID), nil)
	if status != http.StatusOK {
		t.Fatalf("get: status %d", status)
	}
	var rec identity.Identity
	if err := json.Unmarshal(body, &rec); err != nil {
		t.Fatalf("decode get: %v", err)
	}
	if rec.HashedPIN != identity.PINSetMarker {
		t.Fatalf("expected redacted pin marker, got %q", rec.HashedPIN)
	}
}

func TestHandlerSaveSigner(t *testing.T) {
	app := newTestApp(t)
	created := register(t, app, RegisterInput{Phone: "061234567"})
	id := itoa(created.ID)

	signer := map[string]string{"contractId": "CABC", "signerId": id, "phone": "061234567"}
	if status, body := do(t, app, http.MethodPost, "/signers", signer); status != http.StatusOK {
		t.Fatalf("save signer: status %d body %s", status, body)
	}

	signer["contractId"] = "COTHER"
	if status, _ := do(t, app, http.MethodPost, "/signers", signer); status != http.StatusConflict {
		t.Fatalf("expected 409, got %d", status)
	}

	if status, _ := do(t, app, http.MethodPost, "/signers", map[string]string{"signerId": id}); status != http.StatusBadRequest {
		t.Fatalf("expected 400 without contractId, got %d", status)
	}

	status, body := do(t, app, http.MethodGet, "/users/by-phone?phone=061234567", nil)
	if status != http.StatusOK {
		t.Fatalf("lookup: %d", status)
	}
	rec, err := identity.Decode(body)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if rec.PasskeyAddress.Address() != "CABC" {
		t.Fatalf("expected first binding to stand, got %s", rec.PasskeyAddress)
	}
}

func TestHandlerGetInvalidID(t *testing.T) {
	app := newTestApp(t)
	if status, _ := do(t, app, http.MethodGet, "/users/abc", nil); status != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", status)
	}
	if status, _ := do(t, app, http.MethodGet, "/users/77", nil); status != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", status)
	}
}
