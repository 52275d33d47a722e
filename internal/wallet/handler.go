package wallet

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
)

// Handler exposes wallet HTTP endpoints.
type Handler struct {
	service *Service
}

// NewHandler builds a wallet HTTP handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

type walletResponse struct {
	ID        string    `json:"id"`
	OwnerID   int64     `json:"ownerId"`
	Address   string    `json:"address"`
	Currency  string    `json:"currency"`
	Status    string    `json:"status"`
	Balance   int64     `json:"balance"`
	AsOf      time.Time `json:"asOf"`
	CreatedAt time.Time `json:"createdAt"`
}

// ForUser returns the wallet of the user in the route with its balance.
func (h *Handler) ForUser(c *fiber.Ctx) error {
	ownerID, err := strconv.ParseInt(c.Params("id"), 10, 64)
	if err != nil || ownerID <= 0 {
		return fiber.NewError(http.StatusBadRequest, "invalid user id")
	}
	wallet, err := h.service.ForOwner(c.UserContext(), ownerID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return fiber.NewError(http.StatusNotFound, err.Error())
		}
		return fiber.NewError(http.StatusInternalServerError, err.Error())
	}
	balance, err := h.service.Balance(c.UserContext(), wallet)
	if err != nil {
		return fiber.NewError(http.StatusInternalServerError, err.Error())
	}
	return c.Status(http.StatusOK).JSON(walletResponse{
		ID:        wallet.ID,
		OwnerID:   wallet.OwnerID,
		Address:   wallet.AccountCode,
		Currency:  wallet.Currency,
		Status:    wallet.Status,
		Balance:   balance.Amount,
		AsOf:      balance.AsOf,
		CreatedAt: wallet.CreatedAt,
	})
}
