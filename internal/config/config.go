package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	defaultAppName         = "RelayGuard"
	defaultAppEnv          = "development"
	defaultPort            = "8080"
	defaultLogLevel        = "info"
	defaultShutdownDelay   = 10 * time.Second
	defaultPendingTimeout  = 35 * time.Second
	defaultSessionTTL      = 10 * time.Minute
	defaultOTPTTL          = 5 * time.Minute
	defaultOTPMaxAttempts  = 3
	defaultVerifiedTTL     = 30 * 24 * time.Hour
	defaultTokenTTL        = 15 * time.Minute
	defaultCountry         = "SA"
	shutdownSecondsEnvVar  = "SHUTDOWN_TIMEOUT_SECONDS"
	shutdownDurationEnvVar = "SHUTDOWN_TIMEOUT"
)

// Config captures application runtime configuration loaded from environment variables.
type Config struct {
	AppName        string
	AppEnv         string
	Port           string
	LogLevel       string
	DatabaseURL    string
	RedisURL       string
	ShutdownPeriod time.Duration

	// OwnerPrincipal identifies the distinguished correspondent with
	// authority over gating decisions.
	OwnerPrincipal string
	DefaultCountry string
	PendingTimeout time.Duration
	SessionTTL     time.Duration
	OTPTTL         time.Duration
	OTPMaxAttempts int
	VerifiedTTL    time.Duration

	// AppCredentials maps client application names to bcrypt hashes of
	// their API secrets, parsed from APP_CREDENTIALS ("name:hash,name:hash").
	AppCredentials map[string]string
	JWTSecret      string
	TokenTTL       time.Duration
}

// Load reads configuration values from the environment and populates a Config instance.
func Load() (Config, error) {
	cfg := Config{
		AppName:        getEnv("APP_NAME", defaultAppName),
		AppEnv:         getEnv("APP_ENV", defaultAppEnv),
		Port:           getEnv("PORT", defaultPort),
		LogLevel:       strings.ToLower(getEnv("LOG_LEVEL", defaultLogLevel)),
		DatabaseURL:    os.Getenv("DATABASE_URL"),
		RedisURL:       os.Getenv("REDIS_URL"),
		ShutdownPeriod: defaultShutdownDelay,
		OwnerPrincipal: os.Getenv("OWNER_PRINCIPAL"),
		DefaultCountry: getEnv("DEFAULT_COUNTRY", defaultCountry),
		PendingTimeout: defaultPendingTimeout,
		SessionTTL:     defaultSessionTTL,
		OTPTTL:         defaultOTPTTL,
		OTPMaxAttempts: defaultOTPMaxAttempts,
		VerifiedTTL:    defaultVerifiedTTL,
		JWTSecret:      os.Getenv("JWT_SECRET"),
		TokenTTL:       defaultTokenTTL,
	}

	if v := os.Getenv(shutdownSecondsEnvVar); v != "" {
		seconds, err := strconv.Atoi(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid %s: %w", shutdownSecondsEnvVar, err)
		}
		cfg.ShutdownPeriod = time.Duration(seconds) * time.Second
	} else if v := os.Getenv(shutdownDurationEnvVar); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid %s: %w", shutdownDurationEnvVar, err)
		}
		cfg.ShutdownPeriod = d
	}

	durations := []struct {
		envVar string
		dst    *time.Duration
	}{
		{"PENDING_TIMEOUT", &cfg.PendingTimeout},
		{"SESSION_TTL", &cfg.SessionTTL},
		{"OTP_TTL", &cfg.OTPTTL},
		{"VERIFIED_TTL", &cfg.VerifiedTTL},
		{"TOKEN_TTL", &cfg.TokenTTL},
	}
	for _, d := range durations {
		if v := os.Getenv(d.envVar); v != "" {
			parsed, err := time.ParseDuration(v)
			if err != nil {
				return Config{}, fmt.Errorf("invalid %s: %w", d.envVar, err)
			}
			*d.dst = parsed
		}
	}

	if v := os.Getenv("OTP_MAX_ATTEMPTS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return Config{}, fmt.Errorf("invalid OTP_MAX_ATTEMPTS: %q", v)
		}
		cfg.OTPMaxAttempts = n
	}

	creds, err := parseAppCredentials(os.Getenv("APP_CREDENTIALS"))
	if err != nil {
		return Config{}, err
	}
	cfg.AppCredentials = creds

	if cfg.OwnerPrincipal == "" {
		return Config{}, fmt.Errorf("OWNER_PRINCIPAL must be set")
	}

	if cfg.JWTSecret == "" && len(cfg.AppCredentials) > 0 {
		return Config{}, fmt.Errorf("JWT_SECRET must be set when APP_CREDENTIALS is configured")
	}

	return cfg, nil
}

// Address returns the listen address in the format Fiber expects.
func (c Config) Address() string {
	if strings.HasPrefix(c.Port, ":") {
		return c.Port
	}
	return fmt.Sprintf(":%s", c.Port)
}

// IsDev reports whether the application runs in a development environment,
// where Postgres and Redis are optional and memory stores are used instead.
func (c Config) IsDev() bool {
	switch strings.ToLower(c.AppEnv) {
	case "dev", "development", "local":
		return true
	default:
		return false
	}
}

func parseAppCredentials(raw string) (map[string]string, error) {
	creds := make(map[string]string)
	if strings.TrimSpace(raw) == "" {
		return creds, nil
	}
	for _, pair := range strings.Split(raw, ",") {
		name, hash, ok := strings.Cut(strings.TrimSpace(pair), ":")
		if !ok || name == "" || hash == "" {
			return nil, fmt.Errorf("invalid APP_CREDENTIALS entry %q", pair)
		}
		creds[name] = hash
	}
	return creds, nil
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}
