package routes

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/relay-guard/relayguard/internal/auth"
	"github.com/relay-guard/relayguard/internal/clock"
	"github.com/relay-guard/relayguard/internal/config"
	"github.com/relay-guard/relayguard/internal/gate"
	"github.com/relay-guard/relayguard/internal/middleware"
	"github.com/relay-guard/relayguard/internal/notification"
	"github.com/relay-guard/relayguard/internal/otp"
)

// Deps aggregates shared dependencies required to wire routes.
type Deps struct {
	Cfg    config.Config
	DB     *pgxpool.Pool
	Cache  *redis.Client
	Logger *slog.Logger

	// Notifier delivers out-of-band messages; when nil a logging stub is
	// used, which only makes sense in development.
	Notifier notification.Notifier
	// Contacts resolves display names; optional.
	Contacts gate.ContactLookup
	Clock    clock.Clock
	// Codes overrides the verification code source; tests inject a fixed one.
	Codes otp.CodeSource
}

// Setup configures middlewares and all application routes.
func Setup(app *fiber.App, d Deps) error {
	if !d.Cfg.IsDev() {
		if d.DB == nil {
			return fmt.Errorf("database is required when APP_ENV=%s", d.Cfg.AppEnv)
		}
		if d.Cache == nil {
			return fmt.Errorf("redis is required when APP_ENV=%s", d.Cfg.AppEnv)
		}
	}

	if d.Clock == nil {
		d.Clock = clock.System()
	}
	if d.Notifier == nil {
		d.Notifier = notification.NewLoggerNotifier(d.Logger)
	}

	app.Use(recover.New())
	app.Use(middleware.RequestID())
	app.Use(logger.New(logger.Config{
		Format:     "[${time}] ${status} -  ${latency} ${method} ${path}\n",
		TimeFormat: "15:04:05",
		TimeZone:   "Local",
	}))
	app.Use(middleware.Audit(d.Logger))

	// Stores: durable/shared backends when available, memory otherwise.
	var records otp.RecordStore
	if d.Cache != nil {
		records = otp.NewRedisRecordStore(d.Cache)
	} else {
		records = otp.NewMemoryRecordStore()
	}
	var verified otp.VerificationStore
	if d.DB != nil {
		verified = otp.NewPostgresVerificationStore(d.DB)
	} else {
		verified = otp.NewMemoryVerificationStore()
	}

	if d.Codes == nil {
		d.Codes = otp.NewCodeSource()
	}

	exemptions := gate.NewExemptionSet()
	otpSvc := otp.NewService(d.Cfg, records, verified, exemptions, d.Notifier, d.Clock, d.Codes, d.Logger)
	gateSvc, err := gate.NewService(d.Cfg, gate.NewMemoryStore(), exemptions, otpSvc, d.Contacts, d.Notifier, d.Clock, d.Logger)
	if err != nil {
		return err
	}
	authSvc := auth.NewService(d.Cfg, d.Clock)

	RegisterHealthRoutes(app, d)

	api := app.Group("/api/v1")
	api.Get("/ping", func(c *fiber.Ctx) error {
		reqID, _ := c.Locals("X-Request-ID").(string)
		return c.Status(http.StatusOK).JSON(fiber.Map{
			"status":     "ok",
			"request_id": reqID,
			"timestamp":  time.Now().UTC().Format(time.RFC3339Nano),
		})
	})

	api.Post("/auth/token", auth.NewHandler(authSvc).Token)

	protected := api.Group("", middleware.AppAuth(authSvc))
	RegisterVerificationRoutes(protected, otp.NewHandler(otpSvc), middleware.CodeRequestRateLimit(d.Cache, 3))
	RegisterGateRoutes(protected, gate.NewHandler(gateSvc))
	RegisterStatsRoute(protected, gateSvc, otpSvc)

	return nil
}
