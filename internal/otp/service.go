// Package otp issues, tracks and validates one-time codes that bind a device
// to a verified principal for a named client application.
package otp

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/relay-guard/relayguard/internal/clock"
	"github.com/relay-guard/relayguard/internal/config"
	"github.com/relay-guard/relayguard/internal/notification"
	"github.com/relay-guard/relayguard/internal/phone"
)

// Exemptions is the gate allowlist the verifier maintains while a code is in
// flight. Satisfied by gate.ExemptionSet.
type Exemptions interface {
	Exempt(principal string)
	Unexempt(principal string)
}

// Service is the OTP verifier.
type Service struct {
	owner          string
	defaultCountry string
	otpTTL         time.Duration
	maxAttempts    int
	verifiedTTL    time.Duration

	records    RecordStore
	verified   VerificationStore
	exemptions Exemptions
	notifier   notification.Notifier
	clock      clock.Clock
	codes      CodeSource
	logger     *slog.Logger

	// mu serializes the read-modify-write cycles on code records.
	mu sync.Mutex

	dirMu     sync.Mutex
	directory map[string]PrincipalInfo
}

// NewService builds the verifier.
func NewService(cfg config.Config, records RecordStore, verified VerificationStore, exemptions Exemptions, notifier notification.Notifier, clk clock.Clock, codes CodeSource, logger *slog.Logger) *Service {
	return &Service{
		owner:          cfg.OwnerPrincipal,
		defaultCountry: cfg.DefaultCountry,
		otpTTL:         cfg.OTPTTL,
		maxAttempts:    cfg.OTPMaxAttempts,
		verifiedTTL:    cfg.VerifiedTTL,
		records:        records,
		verified:       verified,
		exemptions:     exemptions,
		notifier:       notifier,
		clock:          clk,
		codes:          codes,
		logger:         logger,
		directory:      make(map[string]PrincipalInfo),
	}
}

// RequestInput carries everything a client application submits to start
// verification.
type RequestInput struct {
	Principal   string
	DisplayName string
	AppName     string
	ClaimedName string
	RawPhone    string
	DeviceID    string
}

// RequestResult reports the outcome of RequestVerification. The code itself
// is never returned to the API caller; only an opaque reference is.
type RequestResult struct {
	Status    Status `json:"status"`
	Reference string `json:"reference,omitempty"`
	DeviceID  string `json:"device_id,omitempty"`
	AppName   string `json:"app_name"`
}

// RequestVerification issues a fresh code for (principal, application)
// unless a verification from the retention window already covers it. The
// principal is exempted from gating while the code is outstanding.
func (s *Service) RequestVerification(ctx context.Context, in RequestInput) (RequestResult, error) {
	canonical, err := phone.Canonicalize(in.RawPhone, s.defaultCountry)
	if err != nil {
		return RequestResult{}, fmt.Errorf("canonicalize phone: %w", err)
	}

	known := s.rememberPrincipal(in.Principal, in.ClaimedName, canonical.E164())

	if v, ok := s.currentVerification(ctx, in.Principal, in.AppName); ok {
		return RequestResult{Status: StatusVerified, DeviceID: v.DeviceID, AppName: in.AppName}, nil
	}

	code, err := s.codes.SixDigitCode()
	if err != nil {
		return RequestResult{}, err
	}

	now := s.clock.Now()
	record := Record{
		Principal:      in.Principal,
		AppName:        in.AppName,
		Code:           code,
		Reference:      uuid.NewString(),
		IssuedAt:       now,
		ExpiresAt:      now.Add(s.otpTTL),
		Attempts:       0,
		MaxAttempts:    s.maxAttempts,
		CanonicalPhone: canonical.E164(),
		RawPhoneInput:  in.RawPhone,
		DeviceID:       in.DeviceID,
		DisplayName:    displayName(in),
	}

	s.mu.Lock()
	err = s.records.Put(ctx, record)
	s.mu.Unlock()
	if err != nil {
		return RequestResult{}, err
	}
	s.exemptions.Exempt(in.Principal)

	s.send(ctx, notification.Message{
		Kind:        notification.KindOTPCode,
		Destination: in.Principal,
		Body: fmt.Sprintf("Verification code for %s\n\nHello %s,\n\nYour code is %s.\nIt expires in %s. Device: %s.\nEnter it in the application to continue.",
			in.AppName, displayName(in), code, s.otpTTL, orUnknown(in.DeviceID)),
	})
	s.send(ctx, notification.Message{
		Kind:        notification.KindOTPAudit,
		Destination: s.owner,
		Body: fmt.Sprintf("Verification requested\nUser: %s (%s)\nPhone: %s (entered as %q)\nApplication: %s\nDevice: %s\nCode: %s\nWaiting for the code from the application.",
			displayName(in), userStatus(known), canonical.E164(), in.RawPhone, in.AppName, orUnknown(in.DeviceID), code),
	})

	return RequestResult{Status: StatusOTPSent, Reference: record.Reference, AppName: in.AppName}, nil
}

// VerifyResult reports a successful code match.
type VerifyResult struct {
	Status   Status `json:"status"`
	AppName  string `json:"app_name"`
	DeviceID string `json:"device_id,omitempty"`
}

// Verify checks a submitted code. Attempts are counted before the code is
// compared, so the attempt after the budget is spent fails with
// ErrAttemptsExceeded even when the code is right.
func (s *Service) Verify(ctx context.Context, principal, appName, submittedCode string) (VerifyResult, error) {
	s.mu.Lock()
	record, err := s.records.Get(ctx, principal, appName)
	if err != nil {
		s.mu.Unlock()
		return VerifyResult{}, err
	}

	now := s.clock.Now()
	if now.After(record.ExpiresAt) {
		s.discardRecord(ctx, record)
		s.mu.Unlock()
		return VerifyResult{}, ErrExpired
	}

	record.Attempts++
	if record.Attempts > record.MaxAttempts {
		s.discardRecord(ctx, record)
		s.mu.Unlock()
		s.send(ctx, notification.Message{
			Kind:        notification.KindOTPAudit,
			Destination: s.owner,
			Body: fmt.Sprintf("Verification failed\nUser: %s\nApplication: %s\nRetry budget exhausted (%d attempts).",
				record.DisplayName, appName, record.MaxAttempts),
		})
		return VerifyResult{}, ErrAttemptsExceeded
	}

	if submittedCode != record.Code {
		if err := s.records.Put(ctx, record); err != nil {
			s.mu.Unlock()
			return VerifyResult{}, err
		}
		s.mu.Unlock()
		return VerifyResult{}, fmt.Errorf("%w (attempt %d/%d)", ErrMismatch, record.Attempts, record.MaxAttempts)
	}

	verification := Verification{
		Principal:      principal,
		AppName:        appName,
		VerifiedAt:     now,
		DeviceID:       record.DeviceID,
		CanonicalPhone: record.CanonicalPhone,
		DisplayName:    record.DisplayName,
	}
	if err := s.verified.Put(ctx, verification); err != nil {
		s.mu.Unlock()
		return VerifyResult{}, err
	}
	s.discardRecord(ctx, record)
	s.mu.Unlock()

	s.send(ctx, notification.Message{
		Kind:        notification.KindOTPAudit,
		Destination: s.owner,
		Body: fmt.Sprintf("Application verified\nUser: %s\nPhone: %s\nApplication: %s\nDevice: %s",
			record.DisplayName, record.CanonicalPhone, appName, orUnknown(record.DeviceID)),
	})
	s.send(ctx, notification.Message{
		Kind:        notification.KindOTPCode,
		Destination: principal,
		Body:        fmt.Sprintf("Verified. %s is ready to use.", appName),
	})

	return VerifyResult{Status: StatusVerified, AppName: appName, DeviceID: record.DeviceID}, nil
}

// discardRecord removes the record and its gate exemption together. Caller
// holds s.mu.
func (s *Service) discardRecord(ctx context.Context, record Record) {
	if err := s.records.Delete(ctx, record.Principal, record.AppName); err != nil && s.logger != nil {
		s.logger.Warn("delete otp record", "principal", record.Principal, "app", record.AppName, "error", err)
	}
	s.exemptions.Unexempt(record.Principal)
}

// IsVerified reports whether a valid verification covers the key.
func (s *Service) IsVerified(ctx context.Context, principal, appName string) bool {
	_, ok := s.currentVerification(ctx, principal, appName)
	return ok
}

// currentVerification fetches the verification and applies the lazy
// retention check, deleting stale records.
func (s *Service) currentVerification(ctx context.Context, principal, appName string) (Verification, bool) {
	v, err := s.verified.Get(ctx, principal, appName)
	if err != nil {
		return Verification{}, false
	}
	if !s.withinRetention(v) {
		if err := s.verified.Delete(ctx, principal, appName); err != nil && s.logger != nil {
			s.logger.Warn("delete stale verification", "principal", principal, "app", appName, "error", err)
		}
		return Verification{}, false
	}
	return v, true
}

func (s *Service) withinRetention(v Verification) bool {
	return s.clock.Now().Sub(v.VerifiedAt) < s.verifiedTTL
}

// OTPStatus reports the outstanding code for a key, if any.
func (s *Service) OTPStatus(ctx context.Context, principal, appName string) CodeStatus {
	record, err := s.records.Get(ctx, principal, appName)
	if err != nil {
		return CodeStatus{Pending: false}
	}
	return CodeStatus{
		Pending:     true,
		ExpiresAt:   record.ExpiresAt,
		Attempts:    record.Attempts,
		MaxAttempts: record.MaxAttempts,
	}
}

// Outstanding reports whether any application has a code in flight for the
// principal. Implements the gate's OutstandingSource.
func (s *Service) Outstanding(ctx context.Context, principal string) bool {
	ok, err := s.records.AnyForPrincipal(ctx, principal)
	if err != nil {
		if s.logger != nil {
			s.logger.Warn("outstanding lookup", "principal", principal, "error", err)
		}
		return false
	}
	return ok
}

// FindVerifiedByPhone canonicalizes the query the same way stored numbers
// were, so any equivalent raw representation matches.
func (s *Service) FindVerifiedByPhone(ctx context.Context, rawPhone string) ([]Verification, error) {
	canonical, err := phone.Canonicalize(rawPhone, s.defaultCountry)
	if err != nil {
		return nil, fmt.Errorf("canonicalize phone: %w", err)
	}
	found, err := s.verified.FindByPhone(ctx, canonical.E164())
	if err != nil {
		return nil, err
	}
	return s.filterRetained(found), nil
}

// FindVerifiedByDevice returns the valid verifications bound to a device.
func (s *Service) FindVerifiedByDevice(ctx context.Context, deviceID string) ([]Verification, error) {
	found, err := s.verified.FindByDevice(ctx, deviceID)
	if err != nil {
		return nil, err
	}
	return s.filterRetained(found), nil
}

func (s *Service) filterRetained(in []Verification) []Verification {
	out := make([]Verification, 0, len(in))
	for _, v := range in {
		if s.withinRetention(v) {
			out = append(out, v)
		}
	}
	return out
}

// PrincipalDirectory returns what is known about a principal.
func (s *Service) PrincipalDirectory(principal string) (PrincipalInfo, bool) {
	s.dirMu.Lock()
	defer s.dirMu.Unlock()
	info, ok := s.directory[principal]
	return info, ok
}

// rememberPrincipal upserts the directory entry and reports whether the
// principal was already known.
func (s *Service) rememberPrincipal(principal, name, canonicalPhone string) bool {
	s.dirMu.Lock()
	defer s.dirMu.Unlock()
	info, known := s.directory[principal]
	if !known {
		info = PrincipalInfo{Principal: principal, FirstSeen: s.clock.Now()}
	}
	if name != "" {
		info.DisplayName = name
	}
	if canonicalPhone != "" {
		info.Phone = canonicalPhone
	}
	s.directory[principal] = info
	return known
}

// Stats snapshots verifier state, counting only retained verifications.
func (s *Service) Stats(ctx context.Context) (Stats, error) {
	outstanding, err := s.records.Count(ctx)
	if err != nil {
		return Stats{}, err
	}
	all, err := s.verified.List(ctx)
	if err != nil {
		return Stats{}, err
	}
	byApp := make(map[string]int)
	retained := 0
	for _, v := range all {
		if !s.withinRetention(v) {
			continue
		}
		retained++
		byApp[v.AppName]++
	}
	s.dirMu.Lock()
	known := len(s.directory)
	s.dirMu.Unlock()
	return Stats{
		OutstandingCodes:     outstanding,
		VerifiedApplications: retained,
		KnownPrincipals:      known,
		ByApplication:        byApp,
	}, nil
}

// send delivers best-effort; failures never surface.
func (s *Service) send(ctx context.Context, msg notification.Message) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.Send(ctx, msg); err != nil && s.logger != nil {
		s.logger.Warn("notification failed", "kind", msg.Kind, "destination", msg.Destination, "error", err)
	}
}

func displayName(in RequestInput) string {
	if in.ClaimedName != "" {
		return in.ClaimedName
	}
	if in.DisplayName != "" {
		return in.DisplayName
	}
	return "friend"
}

func userStatus(known bool) string {
	if known {
		return "known user"
	}
	return "new user"
}

func orUnknown(v string) string {
	if v == "" {
		return "unknown"
	}
	return v
}
