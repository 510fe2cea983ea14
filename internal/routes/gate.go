package routes

import (
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/relay-guard/relayguard/internal/gate"
	"github.com/relay-guard/relayguard/internal/otp"
)

// RegisterGateRoutes wires the admission endpoints used by the relay loop.
func RegisterGateRoutes(r fiber.Router, h *gate.Handler) {
	group := r.Group("/gate")
	group.Post("/admit", h.Admit)
	group.Post("/decision", h.Decision)
	group.Get("/sessions/:principal", h.Session)
}

// RegisterStatsRoute exposes a combined gate/verifier snapshot.
func RegisterStatsRoute(r fiber.Router, gateSvc *gate.Service, otpSvc *otp.Service) {
	r.Get("/stats", func(c *fiber.Ctx) error {
		verifier, err := otpSvc.Stats(c.UserContext())
		if err != nil {
			return fiber.NewError(http.StatusInternalServerError, err.Error())
		}
		return c.JSON(fiber.Map{
			"gate":     gateSvc.Stats(),
			"verifier": verifier,
		})
	})
}
