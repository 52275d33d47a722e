package remote

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/congo-pay/druid/internal/auth"
	"github.com/congo-pay/druid/internal/binding"
	"github.com/congo-pay/druid/internal/identity"
	"github.com/congo-pay/druid/internal/logging"
)

func newTestClient(t *testing.T, h http.HandlerFunc) (*Client, *tracetest.SpanRecorder) {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	rec := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec))
	c, err := New(Options{BaseURL: srv.URL, Timeout: 2 * time.Second, Logger: logging.Discard(), TracerProvider: tp})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	return c, rec
}

func TestLookupUserByEmail(t *testing.T) {
	c, rec := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/users/by-email" || r.URL.Query().Get("email") != "a+b@c.com" {
			t.Errorf("unexpected request %s?%s", r.URL.Path, r.URL.RawQuery)
		}
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"json":{"id":5,"email":"a+b@c.com"}}`)
	})

	body, err := c.LookupUser(context.Background(), identity.KindEmail, "a+b@c.com")
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	id, err := identity.Decode(body)
	if err != nil || id.ID != 5 {
		t.Fatalf("decode: %+v %v", id, err)
	}
	spans := rec.Ended()
	if len(spans) != 1 || spans[0].Name() != "users.lookup" {
		t.Fatalf("expected one lookup span, got %d", len(spans))
	}
}

func TestLookupUserStatusMapping(t *testing.T) {
	cases := map[int]error{
		http.StatusNotFound:            identity.ErrNotFound,
		http.StatusInternalServerError: identity.ErrRemoteUnavailable,
		http.StatusTooManyRequests:     identity.ErrRemoteUnavailable,
	}
	for status, want := range cases {
		c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path != "/api/v1/users/by-phone" {
				t.Errorf("unexpected path %s", r.URL.Path)
			}
			w.WriteHeader(status)
		})
		if _, err := c.LookupUser(context.Background(), identity.KindPhone, "650000000"); !errors.Is(err, want) {
			t.Fatalf("status %d: expected %v, got %v", status, want, err)
		}
	}
}

func TestLookupUserTransportFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	base := srv.URL
	srv.Close()

	c, err := New(Options{BaseURL: base, Timeout: time.Second, Logger: logging.Discard()})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	if _, err := c.LookupUser(context.Background(), identity.KindEmail, "a@b.com"); !errors.Is(err, identity.ErrRemoteUnavailable) {
		t.Fatalf("expected remote unavailable, got %v", err)
	}
}

func TestSetPIN(t *testing.T) {
	var got struct {
		UserID int64  `json:"userId"`
		PIN    string `json:"pin"`
	}
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/v1/users/pin" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if r.Header.Get("Idempotency-Key") == "" {
			t.Errorf("expected idempotency key")
		}
		json.NewDecoder(r.Body).Decode(&got)
		io.WriteString(w, `{"success":true,"message":"PIN set successfully"}`)
	})

	res, err := c.SetPIN(context.Background(), 12, "123456")
	if err != nil {
		t.Fatalf("set pin: %v", err)
	}
	if !res.Success || got.UserID != 12 || got.PIN != "123456" {
		t.Fatalf("unexpected exchange: res=%+v req=%+v", res, got)
	}
}

func TestSetPINRejection(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		io.WriteString(w, `{"success":false,"message":"pin must be 6 digits"}`)
	})
	res, err := c.SetPIN(context.Background(), 12, "12")
	if err != nil {
		t.Fatalf("rejection is not a transport error: %v", err)
	}
	if res.Success || res.Message != "pin must be 6 digits" {
		t.Fatalf("unexpected result %+v", res)
	}
}

func TestSetPINServerError(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		io.WriteString(w, `upstream down`)
	})
	if _, err := c.SetPIN(context.Background(), 12, "123456"); err == nil {
		t.Fatalf("expected error for non-json 5xx")
	}
}

func TestSaveSigner(t *testing.T) {
	var got binding.Signer
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&got)
		if got.SignerID == "13" {
			w.WriteHeader(http.StatusConflict)
			return
		}
		io.WriteString(w, `{"success":true}`)
	})
	ctx := context.Background()

	want := binding.Signer{ContractID: "CADDR", SignerID: "12", Phone: "650000000"}
	if err := c.SaveSigner(ctx, want); err != nil {
		t.Fatalf("save signer: %v", err)
	}
	if got != want {
		t.Fatalf("unexpected payload %+v", got)
	}
	if err := c.SaveSigner(ctx, binding.Signer{ContractID: "X", SignerID: "13"}); !errors.Is(err, ErrSignerConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
}

func TestRegister(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		var reg auth.Registration
		json.NewDecoder(r.Body).Decode(&reg)
		if reg.Email != "n@b.com" || reg.FirstName != "Nia" {
			t.Errorf("unexpected registration %+v", reg)
		}
		w.WriteHeader(http.StatusCreated)
		io.WriteString(w, `{"id":44}`)
	})
	id, err := c.Register(context.Background(), auth.Registration{FirstName: "Nia", Email: "n@b.com"})
	if err != nil || id != 44 {
		t.Fatalf("register: id=%d err=%v", id, err)
	}
}

func TestRegisterError(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		io.WriteString(w, `email already registered`)
	})
	if _, err := c.Register(context.Background(), auth.Registration{Email: "n@b.com"}); err == nil {
		t.Fatalf("expected error")
	}
}

func TestCancelledContextSkipsRequest(t *testing.T) {
	called := false
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) { called = true })
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := c.LookupUser(ctx, identity.KindEmail, "a@b.com"); !errors.Is(err, identity.ErrRemoteUnavailable) {
		t.Fatalf("expected remote unavailable, got %v", err)
	}
	if called {
		t.Fatalf("request must not be sent with a cancelled context")
	}
}

func TestNewRequiresBaseURL(t *testing.T) {
	if _, err := New(Options{}); err == nil {
		t.Fatalf("expected error for empty base url")
	}
}
