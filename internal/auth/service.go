// Package auth authenticates client applications calling the verification
// API: application secrets are kept as bcrypt hashes in configuration and
// exchanged for short-lived HS256 bearer tokens.
package auth

import (
	"errors"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/relay-guard/relayguard/internal/clock"
	"github.com/relay-guard/relayguard/internal/config"
)

// ErrInvalidCredentials covers unknown applications and wrong secrets alike.
var ErrInvalidCredentials = errors.New("invalid application credentials")

// Token is an issued bearer token.
type Token struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int64  `json:"expires_in"`
}

// Service issues and verifies application tokens.
type Service struct {
	credentials map[string]string
	secret      []byte
	tokenTTL    time.Duration
	clock       clock.Clock
}

// NewService builds the auth service from configured application credentials.
func NewService(cfg config.Config, clk clock.Clock) *Service {
	return &Service{
		credentials: cfg.AppCredentials,
		secret:      []byte(cfg.JWTSecret),
		tokenTTL:    cfg.TokenTTL,
		clock:       clk,
	}
}

// Enabled reports whether any application credentials are configured. When
// false, the API runs open (development setups).
func (s *Service) Enabled() bool {
	return len(s.credentials) > 0
}

// IssueToken validates the application secret against its stored bcrypt hash
// and returns a bearer token.
func (s *Service) IssueToken(appName, secret string) (Token, error) {
	hash, ok := s.credentials[appName]
	if !ok {
		return Token{}, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(secret)); err != nil {
		return Token{}, ErrInvalidCredentials
	}

	now := s.clock.Now()
	claims := map[string]any{
		"sub": appName,
		"iat": now.Unix(),
		"exp": now.Add(s.tokenTTL).Unix(),
	}
	signed, err := signHS256(claims, s.secret)
	if err != nil {
		return Token{}, err
	}
	return Token{AccessToken: signed, ExpiresIn: int64(s.tokenTTL.Seconds())}, nil
}

// VerifyToken returns the application name a valid token was issued to.
func (s *Service) VerifyToken(token string) (string, error) {
	claims, err := parseHS256(token, s.secret, s.clock.Now())
	if err != nil {
		return "", err
	}
	appName, _ := claims["sub"].(string)
	if appName == "" {
		return "", errors.New("missing subject claim")
	}
	if _, ok := s.credentials[appName]; !ok {
		return "", errors.New("unknown application")
	}
	return appName, nil
}
