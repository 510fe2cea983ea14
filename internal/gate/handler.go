package gate

import (
	"net/http"

	"github.com/gofiber/fiber/v2"
)

// Handler exposes gate endpoints to the relay loop.
type Handler struct {
	service *Service
}

// NewHandler constructs a gate HTTP handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

type admitRequest struct {
	Principal   string `json:"principal"`
	DisplayName string `json:"display_name"`
	Message     string `json:"message"`
}

// Admit runs an admission check. The request blocks while a pending decision
// is outstanding, so the relay loop should call it with a generous client
// timeout.
func (h *Handler) Admit(c *fiber.Ctx) error {
	var req admitRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	if req.Principal == "" {
		return fiber.NewError(http.StatusBadRequest, "principal is required")
	}
	decision, err := h.service.Admit(c.UserContext(), req.Principal, req.DisplayName, req.Message)
	if err != nil {
		// Context cancellation: report the provisional decision anyway.
		return c.JSON(fiber.Map{"decision": decision, "detail": err.Error()})
	}
	return c.JSON(fiber.Map{"decision": decision})
}

type decisionRequest struct {
	Text      string `json:"text"`
	Principal string `json:"principal"`
}

// Decision applies an owner reply. With a principal it targets that request
// explicitly; without one it follows the most recent pending request.
func (h *Handler) Decision(c *fiber.Ctx) error {
	var req decisionRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	var handled bool
	if req.Principal != "" {
		handled = h.service.ResolveOwnerDecisionFor(c.UserContext(), req.Principal, req.Text)
	} else {
		handled = h.service.ResolveOwnerDecision(c.UserContext(), req.Text)
	}
	return c.JSON(fiber.Map{"handled": handled})
}

// Session returns the active session for a principal.
func (h *Handler) Session(c *fiber.Ctx) error {
	principal := c.Params("principal")
	info, ok := h.service.SessionInfo(principal)
	if !ok {
		return fiber.NewError(http.StatusNotFound, "no active session")
	}
	return c.JSON(info)
}
