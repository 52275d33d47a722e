package users

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/druid/internal/binding"
	"github.com/congo-pay/druid/internal/identity"
	"github.com/congo-pay/druid/internal/onboarding"
)

// Handler exposes user endpoints.
type Handler struct {
	service *Service
}

// NewHandler constructs a users HTTP handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

type registerResponse struct {
	ID            int64  `json:"id"`
	WalletAddress string `json:"walletAddress,omitempty"`
}

// lookupResponse nests the record under "json", the envelope clients unwrap.
type lookupResponse struct {
	JSON identity.Identity `json:"json"`
}

type setPINRequest struct {
	UserID int64  `json:"userId"`
	PIN    string `json:"pin"`
}

// Register handles sign-up.
func (h *Handler) Register(c *fiber.Ctx) error {
	var req RegisterInput
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	user, err := h.service.Register(c.UserContext(), req)
	if err != nil {
		return fiber.NewError(statusFor(err), err.Error())
	}
	return c.Status(http.StatusCreated).JSON(registerResponse{ID: user.ID, WalletAddress: user.WalletAddress})
}

// ByEmail looks a user up by the email query parameter.
func (h *Handler) ByEmail(c *fiber.Ctx) error {
	return h.lookup(c, identity.KindEmail, c.Query("email"))
}

// ByPhone looks a user up by the phone query parameter.
func (h *Handler) ByPhone(c *fiber.Ctx) error {
	return h.lookup(c, identity.KindPhone, c.Query("phone"))
}

func (h *Handler) lookup(c *fiber.Ctx, kind identity.Kind, value string) error {
	user, err := h.service.Lookup(c.UserContext(), kind, value)
	if err != nil {
		return fiber.NewError(statusFor(err), err.Error())
	}
	return c.Status(http.StatusOK).JSON(lookupResponse{JSON: user.Record()})
}

// Get returns the flat record of the user named in the route.
func (h *Handler) Get(c *fiber.Ctx) error {
	id, err := strconv.ParseInt(c.Params("id"), 10, 64)
	if err != nil || id <= 0 {
		return fiber.NewError(http.StatusBadRequest, "invalid user id")
	}
	user, err := h.service.Get(c.UserContext(), id)
	if err != nil {
		return fiber.NewError(statusFor(err), err.Error())
	}
	return c.Status(http.StatusOK).JSON(user.Record())
}

// SetPIN stores a PIN. Failures are reported in the body as well as the
// status so clients can show the message.
func (h *Handler) SetPIN(c *fiber.Ctx) error {
	var req setPINRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(http.StatusBadRequest).JSON(onboarding.SetPINResult{Message: "invalid request body"})
	}
	if err := h.service.SetPIN(c.UserContext(), req.UserID, req.PIN); err != nil {
		status := statusFor(err)
		msg := err.Error()
		if status == http.StatusInternalServerError {
			msg = "failed to save PIN"
		}
		return c.Status(status).JSON(onboarding.SetPINResult{Message: msg})
	}
	return c.Status(http.StatusOK).JSON(onboarding.SetPINResult{Success: true, Message: "PIN set successfully"})
}

// SaveSigner registers a passkey-derived signer for a user.
func (h *Handler) SaveSigner(c *fiber.Ctx) error {
	var req binding.Signer
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	if _, err := h.service.SaveSigner(c.UserContext(), req); err != nil {
		return fiber.NewError(statusFor(err), err.Error())
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{"success": true})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrExists), errors.Is(err, ErrSignerConflict):
		return http.StatusConflict
	case errors.Is(err, ErrContactRequired),
		errors.Is(err, ErrInvalidEmail),
		errors.Is(err, ErrInvalidPhone),
		errors.Is(err, ErrInvalidPIN),
		errors.Is(err, ErrInvalidSigner),
		errors.Is(err, ErrSignerContact),
		errors.Is(err, ErrAddressRequired),
		errors.Is(err, ErrReservedAddress):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
