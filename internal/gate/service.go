// Package gate implements the per-principal authorization state machine that
// suspends inbound message processing until the owner decides, auto-approving
// on timeout.
package gate

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/relay-guard/relayguard/internal/clock"
	"github.com/relay-guard/relayguard/internal/config"
	"github.com/relay-guard/relayguard/internal/notification"
)

const (
	groupSuffix     = "@g.us"
	previewMaxRunes = 50
)

// ContactLookup resolves a display name for a principal. Best effort: any
// error is treated as "unknown".
type ContactLookup interface {
	DisplayNameFor(ctx context.Context, principal string) (string, error)
}

// ContactLookupFunc adapts a function to the ContactLookup interface.
type ContactLookupFunc func(ctx context.Context, principal string) (string, error)

// DisplayNameFor calls the wrapped function.
func (f ContactLookupFunc) DisplayNameFor(ctx context.Context, principal string) (string, error) {
	return f(ctx, principal)
}

// OutstandingSource reports whether a principal has any verification code in
// flight. Implemented by the OTP verifier.
type OutstandingSource interface {
	Outstanding(ctx context.Context, principal string) bool
}

// Service is the access gate. All state transitions are serialized behind a
// single mutex; notification sends happen outside it and never fail a
// transition.
type Service struct {
	owner          string
	pendingTimeout time.Duration
	sessionTTL     time.Duration

	store       Store
	exemptions  *ExemptionSet
	outstanding OutstandingSource
	contacts    ContactLookup
	notifier    notification.Notifier
	clock       clock.Clock
	logger      *slog.Logger

	vocab   Vocabulary
	isGroup func(principal string) bool

	mu          sync.Mutex
	lastRequest string
}

// NewService builds the gate. The notifier is required: without it the owner
// could never approve or deny, so admission would be meaningless.
func NewService(cfg config.Config, store Store, exemptions *ExemptionSet, outstanding OutstandingSource, contacts ContactLookup, notifier notification.Notifier, clk clock.Clock, logger *slog.Logger) (*Service, error) {
	if notifier == nil {
		return nil, fmt.Errorf("gate requires a notifier")
	}
	if cfg.OwnerPrincipal == "" {
		return nil, fmt.Errorf("gate requires an owner principal")
	}
	s := &Service{
		owner:          cfg.OwnerPrincipal,
		pendingTimeout: cfg.PendingTimeout,
		sessionTTL:     cfg.SessionTTL,
		store:          store,
		exemptions:     exemptions,
		outstanding:    outstanding,
		contacts:       contacts,
		notifier:       notifier,
		clock:          clk,
		logger:         logger,
		vocab:          DefaultVocabulary(),
		isGroup: func(principal string) bool {
			return strings.HasSuffix(principal, groupSuffix)
		},
	}
	return s, nil
}

// SetVocabulary replaces the owner decision token sets.
func (s *Service) SetVocabulary(v Vocabulary) { s.vocab = v }

// SetGroupClassifier replaces the group-principal check.
func (s *Service) SetGroupClassifier(fn func(principal string) bool) {
	if fn != nil {
		s.isGroup = fn
	}
}

// Exemptions exposes the gate's OTP allowlist so the verifier can write it.
func (s *Service) Exemptions() *ExemptionSet { return s.exemptions }

// Admit decides whether an inbound message from the principal may be
// processed. When the principal is unknown it notifies the owner, creates a
// pending request and blocks until the owner decides, the timeout
// auto-approves, or ctx is cancelled.
func (s *Service) Admit(ctx context.Context, principal, displayNameHint, messageText string) (Decision, error) {
	if s.isGroup(principal) {
		return DecisionProceed, nil
	}
	if principal == s.owner {
		return DecisionProceed, nil
	}
	if s.outstanding != nil && s.outstanding.Outstanding(ctx, principal) {
		return DecisionProceed, nil
	}

	if decision, decided := s.checkState(principal); decided {
		return decision, nil
	}

	displayName, registered := s.resolveDisplayName(ctx, principal, displayNameHint)
	s.notifyOwnerPrompt(ctx, principal, displayName, registered, messageText)

	req, decision, created := s.createPending(principal, displayName)
	if !created {
		return decision, nil
	}

	select {
	case decision := <-req.decision:
		return decision, nil
	case <-ctx.Done():
		// The pending request stays behind; the timeout will settle it.
		return DecisionWait, ctx.Err()
	}
}

// checkState evaluates exemption, session and pending state under the lock.
// The second return is false when a pending request must be created.
func (s *Service) checkState(principal string) (Decision, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.exemptions.Exempted(principal) {
		return DecisionProceed, true
	}

	if session, ok := s.store.SessionGet(principal); ok {
		if s.clock.Now().Before(session.GrantedAt.Add(s.sessionTTL)) {
			return DecisionProceed, true
		}
		s.store.SessionDelete(principal)
	}

	if _, ok := s.store.PendingGet(principal); ok {
		return DecisionWait, true
	}

	return DecisionWait, false
}

// createPending re-checks state under the lock (it was released during the
// contact lookup and owner prompt), then installs the pending request and its
// timeout timer. When created is false the returned decision applies instead.
func (s *Service) createPending(principal, displayName string) (*PendingRequest, Decision, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.exemptions.Exempted(principal) {
		return nil, DecisionProceed, false
	}
	if session, ok := s.store.SessionGet(principal); ok && s.clock.Now().Before(session.GrantedAt.Add(s.sessionTTL)) {
		return nil, DecisionProceed, false
	}
	if _, ok := s.store.PendingGet(principal); ok {
		return nil, DecisionWait, false
	}

	req := newPendingRequest(principal, displayName, s.clock.Now())
	req.timer = time.AfterFunc(s.pendingTimeout, func() { s.timeoutFire(req) })
	s.store.PendingPut(req)
	s.lastRequest = principal

	return req, DecisionWait, true
}

// timeoutFire promotes a still-pending request to an auto-approved session.
// A no-op if the owner decided first.
func (s *Service) timeoutFire(req *PendingRequest) {
	s.mu.Lock()
	current, ok := s.store.PendingGet(req.Principal)
	if !ok || current != req {
		s.mu.Unlock()
		return
	}
	s.store.PendingDelete(req.Principal)
	session := Session{
		Principal:   req.Principal,
		DisplayName: req.DisplayName,
		GrantedAt:   s.clock.Now(),
		GrantedBy:   GrantAutoTimeout,
	}
	s.store.SessionPut(session)
	s.mu.Unlock()

	req.decision <- DecisionProceed

	s.send(context.Background(), notification.Message{
		Kind:        notification.KindAccessDecision,
		Destination: s.owner,
		Body:        fmt.Sprintf("No answer in %s: %s (%s) auto-approved for %s.", s.pendingTimeout, req.DisplayName, req.Principal, s.sessionTTL),
	})
}

// ResolveOwnerDecision interprets a raw owner reply against the most recently
// created pending request. Returns false when the text is not a decision or
// no pending request is pointed to.
func (s *Service) ResolveOwnerDecision(ctx context.Context, rawText string) bool {
	return s.resolveDecision(ctx, "", rawText)
}

// ResolveOwnerDecisionFor applies a decision to an explicitly named
// principal, bypassing the last-request pointer.
func (s *Service) ResolveOwnerDecisionFor(ctx context.Context, principal, rawText string) bool {
	return s.resolveDecision(ctx, principal, rawText)
}

func (s *Service) resolveDecision(ctx context.Context, principal, rawText string) bool {
	verdict := s.vocab.Classify(rawText)
	if verdict == VerdictNone {
		return false
	}

	s.mu.Lock()
	target := principal
	if target == "" {
		target = s.lastRequest
	}
	if target == "" {
		s.mu.Unlock()
		return false
	}
	req, ok := s.store.PendingGet(target)
	if !ok {
		s.mu.Unlock()
		return false
	}
	req.timer.Stop()
	s.store.PendingDelete(target)
	if verdict == VerdictAffirm {
		s.store.SessionPut(Session{
			Principal:   target,
			DisplayName: req.DisplayName,
			GrantedAt:   s.clock.Now(),
			GrantedBy:   GrantOwner,
		})
	}
	if s.lastRequest == target {
		s.lastRequest = ""
	}
	s.mu.Unlock()

	if verdict == VerdictAffirm {
		req.decision <- DecisionProceed
		s.send(ctx, notification.Message{
			Kind:        notification.KindAccessDecision,
			Destination: s.owner,
			Body:        fmt.Sprintf("Access granted: %s (%s) for %s.", req.DisplayName, target, s.sessionTTL),
		})
	} else {
		req.decision <- DecisionBlocked
		s.send(ctx, notification.Message{
			Kind:        notification.KindAccessDecision,
			Destination: s.owner,
			Body:        fmt.Sprintf("Access denied: %s (%s).", req.DisplayName, target),
		})
	}
	return true
}

// SessionInfo returns the active session for a principal, applying the lazy
// expiry check.
func (s *Service) SessionInfo(principal string) (SessionInfo, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.store.SessionGet(principal)
	if !ok {
		return SessionInfo{}, false
	}
	expiresAt := session.GrantedAt.Add(s.sessionTTL)
	if !s.clock.Now().Before(expiresAt) {
		s.store.SessionDelete(principal)
		return SessionInfo{}, false
	}
	return SessionInfo{
		Principal:   session.Principal,
		DisplayName: session.DisplayName,
		GrantedAt:   session.GrantedAt,
		GrantedBy:   session.GrantedBy,
		ExpiresAt:   expiresAt,
	}, true
}

// Stats counts unexpired sessions and pending requests.
func (s *Service) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock.Now()
	active := 0
	for _, session := range s.store.SessionList() {
		if now.Before(session.GrantedAt.Add(s.sessionTTL)) {
			active++
		}
	}
	return Stats{
		ActiveSessions:  active,
		PendingRequests: s.store.PendingCount(),
	}
}

func (s *Service) resolveDisplayName(ctx context.Context, principal, hint string) (name string, registered bool) {
	if s.contacts != nil {
		if saved, err := s.contacts.DisplayNameFor(ctx, principal); err == nil && strings.TrimSpace(saved) != "" {
			return strings.TrimSpace(saved), true
		}
	}
	if strings.TrimSpace(hint) != "" {
		return strings.TrimSpace(hint), false
	}
	return localPart(principal), false
}

func (s *Service) notifyOwnerPrompt(ctx context.Context, principal, displayName string, registered bool, messageText string) {
	status := "not in contacts"
	if registered {
		status = "in contacts"
	}
	body := fmt.Sprintf(
		"Access request\nName: %s\nNumber: %s\nStatus: %s\nMessage: %q\nApproved sessions last %s. Reply yes to allow, no to deny.",
		displayName, localPart(principal), status, preview(messageText), s.sessionTTL,
	)
	s.send(ctx, notification.Message{
		Kind:        notification.KindAccessRequest,
		Destination: s.owner,
		Body:        body,
	})
}

// send delivers a notification best-effort. Failures are logged and swallowed.
func (s *Service) send(ctx context.Context, msg notification.Message) {
	if err := s.notifier.Send(ctx, msg); err != nil && s.logger != nil {
		s.logger.Warn("notification failed", "kind", msg.Kind, "destination", msg.Destination, "error", err)
	}
}

func preview(text string) string {
	runes := []rune(text)
	if len(runes) <= previewMaxRunes {
		return text
	}
	return string(runes[:previewMaxRunes]) + "..."
}

func localPart(principal string) string {
	if i := strings.IndexByte(principal, '@'); i >= 0 {
		return principal[:i]
	}
	return principal
}
