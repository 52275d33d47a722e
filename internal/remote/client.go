package remote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"github.com/congo-pay/druid/internal/auth"
	"github.com/congo-pay/druid/internal/binding"
	"github.com/congo-pay/druid/internal/identity"
	"github.com/congo-pay/druid/internal/onboarding"
)

const (
	apiPrefix      = "/api/v1"
	defaultTimeout = 10 * time.Second
	tracerName     = "github.com/congo-pay/druid/internal/remote"
)

// ErrSignerConflict is returned when the service already holds a different
// signer for the user.
var ErrSignerConflict = errors.New("signer already registered with a different address")

// Options configure a Client.
type Options struct {
	BaseURL        string
	Timeout        time.Duration
	Logger         *slog.Logger
	TracerProvider trace.TracerProvider
}

// Client talks to the users service.
type Client struct {
	baseURL string
	timeout time.Duration
	logger  *slog.Logger
	tracer  trace.Tracer
}

// New builds a client for the service at opts.BaseURL.
func New(opts Options) (*Client, error) {
	base := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if base == "" {
		return nil, errors.New("users service base url is required")
	}
	if _, err := url.ParseRequestURI(base); err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.TracerProvider == nil {
		opts.TracerProvider = otel.GetTracerProvider()
	}
	return &Client{
		baseURL: base,
		timeout: opts.Timeout,
		logger:  opts.Logger,
		tracer:  opts.TracerProvider.Tracer(tracerName),
	}, nil
}

// LookupUser fetches the raw record for an email or phone.
func (c *Client) LookupUser(ctx context.Context, kind identity.Kind, value string) ([]byte, error) {
	path, param := "/users/by-phone", "phone"
	if kind == identity.KindEmail {
		path, param = "/users/by-email", "email"
	}
	q := url.Values{}
	q.Set(param, value)

	status, body, err := c.do(ctx, "users.lookup", fiber.MethodGet, path, q, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", identity.ErrRemoteUnavailable, err)
	}
	switch {
	case status == fiber.StatusNotFound:
		return nil, identity.ErrNotFound
	case status < 200 || status > 299:
		return nil, fmt.Errorf("%w: lookup returned status %d", identity.ErrRemoteUnavailable, status)
	}
	return body, nil
}

// SetPIN stores the user's PIN. A rejection with a message is a result, not
// an error.
func (c *Client) SetPIN(ctx context.Context, userID int64, pin string) (onboarding.SetPINResult, error) {
	req := struct {
		UserID int64  `json:"userId"`
		PIN    string `json:"pin"`
	}{UserID: userID, PIN: pin}

	status, body, err := c.do(ctx, "users.set_pin", fiber.MethodPost, "/users/pin", nil, req)
	if err != nil {
		return onboarding.SetPINResult{}, err
	}
	var res onboarding.SetPINResult
	if jsonErr := json.Unmarshal(body, &res); jsonErr != nil {
		return onboarding.SetPINResult{}, fmt.Errorf("set pin: status %d: %w", status, jsonErr)
	}
	if status >= 500 {
		return onboarding.SetPINResult{}, fmt.Errorf("set pin: status %d: %s", status, res.Message)
	}
	if status < 200 || status > 299 {
		res.Success = false
	}
	return res, nil
}

// SaveSigner registers a passkey-derived signer.
func (c *Client) SaveSigner(ctx context.Context, signer binding.Signer) error {
	status, body, err := c.do(ctx, "signers.save", fiber.MethodPost, "/signers", nil, signer)
	if err != nil {
		return err
	}
	switch {
	case status == fiber.StatusConflict:
		return ErrSignerConflict
	case status < 200 || status > 299:
		return fmt.Errorf("save signer: status %d: %s", status, errorMessage(body))
	}
	return nil
}

// Register creates a user and returns its id.
func (c *Client) Register(ctx context.Context, reg auth.Registration) (int64, error) {
	status, body, err := c.do(ctx, "users.register", fiber.MethodPost, "/users", nil, reg)
	if err != nil {
		return 0, err
	}
	if status < 200 || status > 299 {
		return 0, fmt.Errorf("register: status %d: %s", status, errorMessage(body))
	}
	var res struct {
		ID json.Number `json:"id"`
	}
	if err := json.Unmarshal(body, &res); err != nil {
		return 0, fmt.Errorf("decode register response: %w", err)
	}
	id, err := strconv.ParseInt(res.ID.String(), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("register: invalid user id %q", res.ID)
	}
	return id, nil
}

func (c *Client) do(ctx context.Context, op, method, path string, query url.Values, body any) (int, []byte, error) {
	ctx, span := c.tracer.Start(ctx, op,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("http.request.method", method),
			attribute.String("url.path", apiPrefix+path),
		),
	)
	defer span.End()

	if err := ctx.Err(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return 0, nil, err
	}

	var a *fiber.Agent
	if method == fiber.MethodPost {
		a = fiber.Post(c.baseURL + apiPrefix + path)
		a.JSON(body)
		a.Set("Idempotency-Key", uuid.NewString())
	} else {
		a = fiber.Get(c.baseURL + apiPrefix + path)
	}
	if len(query) > 0 {
		a.QueryString(query.Encode())
	}
	a.Set(fiber.HeaderAccept, fiber.MIMEApplicationJSON)
	a.Timeout(c.deadline(ctx))

	carrier := propagation.MapCarrier{}
	otel.GetTextMapPropagator().Inject(ctx, carrier)
	for k, v := range carrier {
		a.Set(k, v)
	}

	started := time.Now()
	status, resp, errs := a.Bytes()
	if len(errs) > 0 {
		err := errors.Join(errs...)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		c.logger.Warn("users service request failed",
			slog.String("op", op),
			slog.Duration("elapsed", time.Since(started)),
			slog.Any("error", err),
		)
		return 0, nil, err
	}

	span.SetAttributes(attribute.Int("http.response.status_code", status))
	if status >= 500 {
		span.SetStatus(codes.Error, fmt.Sprintf("status %d", status))
	}
	c.logger.Debug("users service request",
		slog.String("op", op),
		slog.Int("status", status),
		slog.Duration("elapsed", time.Since(started)),
	)
	return status, resp, nil
}

// deadline caps the per-request timeout by the context deadline.
func (c *Client) deadline(ctx context.Context) time.Duration {
	timeout := c.timeout
	if dl, ok := ctx.Deadline(); ok {
		if left := time.Until(dl); left < timeout {
			timeout = left
		}
	}
	if timeout <= 0 {
		timeout = time.Millisecond
	}
	return timeout
}

func errorMessage(body []byte) string {
	var e struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &e); err == nil {
		if e.Error != "" {
			return e.Error
		}
		if e.Message != "" {
			return e.Message
		}
	}
	return strings.TrimSpace(string(body))
}
