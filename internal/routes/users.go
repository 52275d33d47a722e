package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/druid/internal/users"
)

// RegisterUserRoutes wires registration, lookup, PIN and signer endpoints.
// The lookup routes go through limiter when one is given.
func RegisterUserRoutes(r fiber.Router, h *users.Handler, limiter fiber.Handler) {
	r.Post("/users", h.Register)
	if limiter != nil {
		r.Get("/users/by-email", limiter, h.ByEmail)
		r.Get("/users/by-phone", limiter, h.ByPhone)
	} else {
		r.Get("/users/by-email", h.ByEmail)
		r.Get("/users/by-phone", h.ByPhone)
	}
	r.Post("/users/pin", h.SetPIN)
	r.Get("/users/:id", h.Get)
	r.Post("/signers", h.SaveSigner)
}
