package otp

import (
	"errors"
	"time"
)

var (
	// ErrNotFound means no verification code is pending for the key.
	ErrNotFound = errors.New("no pending verification")
	// ErrExpired means the code's lifetime elapsed before it was submitted.
	ErrExpired = errors.New("verification code expired")
	// ErrAttemptsExceeded means the retry budget is exhausted; the record is gone.
	ErrAttemptsExceeded = errors.New("verification attempts exceeded")
	// ErrMismatch means the submitted code is wrong but retries remain.
	ErrMismatch = errors.New("incorrect verification code")
)

// Status reported by verification operations.
type Status string

const (
	// StatusVerified means the (principal, application) pair holds a valid verification.
	StatusVerified Status = "VERIFIED"
	// StatusOTPSent means a code was issued and delivered out of band.
	StatusOTPSent Status = "OTP_SENT"
)

// Record is an outstanding verification code, keyed by (principal, application).
type Record struct {
	Principal   string    `json:"principal"`
	AppName     string    `json:"app_name"`
	Code        string    `json:"code"`
	Reference   string    `json:"reference"`
	IssuedAt    time.Time `json:"issued_at"`
	ExpiresAt   time.Time `json:"expires_at"`
	Attempts    int       `json:"attempts"`
	MaxAttempts int       `json:"max_attempts"`

	CanonicalPhone string `json:"canonical_phone"`
	RawPhoneInput  string `json:"raw_phone_input"`
	DeviceID       string `json:"device_id"`
	DisplayName    string `json:"display_name"`
}

// Verification binds a device and application to a verified principal.
type Verification struct {
	Principal      string    `json:"principal"`
	AppName        string    `json:"app_name"`
	VerifiedAt     time.Time `json:"verified_at"`
	DeviceID       string    `json:"device_id"`
	CanonicalPhone string    `json:"canonical_phone"`
	DisplayName    string    `json:"display_name"`
}

// PrincipalInfo tracks what is known about a correspondent across requests.
type PrincipalInfo struct {
	Principal   string    `json:"principal"`
	DisplayName string    `json:"display_name"`
	Phone       string    `json:"phone"`
	FirstSeen   time.Time `json:"first_seen"`
}

// CodeStatus is the read-only view of an outstanding code.
type CodeStatus struct {
	Pending     bool      `json:"pending"`
	ExpiresAt   time.Time `json:"expires_at,omitempty"`
	Attempts    int       `json:"attempts,omitempty"`
	MaxAttempts int       `json:"max_attempts,omitempty"`
}

// Stats is a point-in-time snapshot of verifier state.
type Stats struct {
	OutstandingCodes     int            `json:"outstanding_codes"`
	VerifiedApplications int            `json:"verified_applications"`
	KnownPrincipals      int            `json:"known_principals"`
	ByApplication        map[string]int `json:"by_application"`
}
