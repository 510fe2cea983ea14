package otp

import (
	"errors"
	"net/http"

	"github.com/gofiber/fiber/v2"
)

// Handler exposes verification endpoints.
type Handler struct {
	service *Service
}

// NewHandler constructs a verification HTTP handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

type requestVerificationRequest struct {
	Principal   string `json:"principal"`
	DisplayName string `json:"display_name"`
	AppName     string `json:"app_name"`
	ClaimedName string `json:"claimed_name"`
	Phone       string `json:"phone"`
	DeviceID    string `json:"device_id"`
}

// RequestVerification starts (or short-circuits) an OTP exchange.
func (h *Handler) RequestVerification(c *fiber.Ctx) error {
	var req requestVerificationRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	if req.Principal == "" || req.AppName == "" || req.Phone == "" {
		return fiber.NewError(http.StatusBadRequest, "principal, app_name and phone are required")
	}
	result, err := h.service.RequestVerification(c.UserContext(), RequestInput{
		Principal:   req.Principal,
		DisplayName: req.DisplayName,
		AppName:     req.AppName,
		ClaimedName: req.ClaimedName,
		RawPhone:    req.Phone,
		DeviceID:    req.DeviceID,
	})
	if err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	return c.Status(http.StatusOK).JSON(result)
}

type verifyRequest struct {
	Principal string `json:"principal"`
	AppName   string `json:"app_name"`
	Code      string `json:"code"`
}

// Verify checks a submitted code.
func (h *Handler) Verify(c *fiber.Ctx) error {
	var req verifyRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	if req.Principal == "" || req.AppName == "" || req.Code == "" {
		return fiber.NewError(http.StatusBadRequest, "principal, app_name and code are required")
	}
	result, err := h.service.Verify(c.UserContext(), req.Principal, req.AppName, req.Code)
	if err != nil {
		return verifyError(err)
	}
	return c.Status(http.StatusOK).JSON(result)
}

func verifyError(err error) error {
	switch {
	case errors.Is(err, ErrNotFound):
		return fiber.NewError(http.StatusNotFound, err.Error())
	case errors.Is(err, ErrExpired):
		return fiber.NewError(http.StatusGone, err.Error())
	case errors.Is(err, ErrAttemptsExceeded):
		return fiber.NewError(http.StatusLocked, err.Error())
	case errors.Is(err, ErrMismatch):
		return fiber.NewError(http.StatusUnauthorized, err.Error())
	default:
		return fiber.NewError(http.StatusInternalServerError, err.Error())
	}
}

// Status reports verification and outstanding-code state for a key.
func (h *Handler) Status(c *fiber.Ctx) error {
	principal := c.Query("principal")
	appName := c.Query("app_name")
	if principal == "" || appName == "" {
		return fiber.NewError(http.StatusBadRequest, "principal and app_name are required")
	}
	return c.JSON(fiber.Map{
		"principal": principal,
		"app_name":  appName,
		"verified":  h.service.IsVerified(c.UserContext(), principal, appName),
		"otp":       h.service.OTPStatus(c.UserContext(), principal, appName),
	})
}

// ByPhone lists valid verifications for any raw representation of a phone.
func (h *Handler) ByPhone(c *fiber.Ctx) error {
	raw := c.Query("phone")
	if raw == "" {
		return fiber.NewError(http.StatusBadRequest, "phone is required")
	}
	found, err := h.service.FindVerifiedByPhone(c.UserContext(), raw)
	if err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(fiber.Map{"verifications": found})
}

// DeviceCheck reports whether a device holds any valid verification.
func (h *Handler) DeviceCheck(c *fiber.Ctx) error {
	deviceID := c.Query("id")
	if deviceID == "" {
		return fiber.NewError(http.StatusBadRequest, "id is required")
	}
	found, err := h.service.FindVerifiedByDevice(c.UserContext(), deviceID)
	if err != nil {
		return fiber.NewError(http.StatusInternalServerError, err.Error())
	}
	if len(found) == 0 {
		return fiber.NewError(http.StatusForbidden, "device not verified")
	}
	return c.JSON(fiber.Map{"authorized": true, "verifications": found})
}
