package auth

import (
	"net/http"

	"github.com/gofiber/fiber/v2"
)

// Handler exposes the token endpoint.
type Handler struct {
	service *Service
}

// NewHandler constructs an auth HTTP handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

type tokenRequest struct {
	AppName string `json:"app_name"`
	Secret  string `json:"secret"`
}

// Token exchanges application credentials for a bearer token.
func (h *Handler) Token(c *fiber.Ctx) error {
	var req tokenRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	token, err := h.service.IssueToken(req.AppName, req.Secret)
	if err != nil {
		return fiber.NewError(http.StatusUnauthorized, err.Error())
	}
	return c.JSON(token)
}
