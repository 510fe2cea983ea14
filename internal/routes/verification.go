package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/relay-guard/relayguard/internal/otp"
)

// RegisterVerificationRoutes wires the OTP lifecycle endpoints.
func RegisterVerificationRoutes(r fiber.Router, h *otp.Handler, rateLimiter fiber.Handler) {
	group := r.Group("/verifications")
	if rateLimiter != nil {
		group.Post("/", rateLimiter, h.RequestVerification)
	} else {
		group.Post("/", h.RequestVerification)
	}
	group.Post("/verify", h.Verify)
	group.Get("/status", h.Status)
	group.Get("/by-phone", h.ByPhone)

	r.Get("/devices/check", h.DeviceCheck)
}
