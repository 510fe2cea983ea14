package gate

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/relay-guard/relayguard/internal/clock"
	"github.com/relay-guard/relayguard/internal/config"
	"github.com/relay-guard/relayguard/internal/logging"
	"github.com/relay-guard/relayguard/internal/notification"
)

const testOwner = "owner@s.whatsapp.net"

type staticOutstanding map[string]bool

func (o staticOutstanding) Outstanding(_ context.Context, principal string) bool {
	return o[principal]
}

type fixture struct {
	svc      *Service
	store    Store
	clock    *clock.Fake
	notifier *notification.Recorder
	exempt   *ExemptionSet
	pending  staticOutstanding
}

func newFixture(t *testing.T, pendingTimeout time.Duration) *fixture {
	t.Helper()
	cfg := config.Config{
		OwnerPrincipal: testOwner,
		PendingTimeout: pendingTimeout,
		SessionTTL:     10 * time.Minute,
	}
	f := &fixture{
		store:    NewMemoryStore(),
		clock:    clock.NewFake(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)),
		notifier: notification.NewRecorder(),
		exempt:   NewExemptionSet(),
		pending:  staticOutstanding{},
	}
	svc, err := NewService(cfg, f.store, f.exempt, f.pending, nil, f.notifier, f.clock, logging.Discard())
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	f.svc = svc
	return f
}

// waitPending blocks until a pending request exists for the principal.
func (f *fixture) waitPending(t *testing.T, principal string) *PendingRequest {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if req, ok := f.store.PendingGet(principal); ok {
			return req
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("no pending request appeared for %s", principal)
	return nil
}

func admitAsync(f *fixture, principal string) chan Decision {
	out := make(chan Decision, 1)
	go func() {
		d, _ := f.svc.Admit(context.Background(), principal, "", "hello")
		out <- d
	}()
	return out
}

func TestAdmitOwnerAlwaysProceeds(t *testing.T) {
	f := newFixture(t, time.Minute)
	d, err := f.svc.Admit(context.Background(), testOwner, "", "anything")
	if err != nil {
		t.Fatalf("admit: %v", err)
	}
	if d != DecisionProceed {
		t.Fatalf("expected PROCEED for owner, got %s", d)
	}
}

func TestAdmitGroupsNeverGated(t *testing.T) {
	f := newFixture(t, time.Minute)
	d, err := f.svc.Admit(context.Background(), "12036304@g.us", "", "group chatter")
	if err != nil {
		t.Fatalf("admit: %v", err)
	}
	if d != DecisionProceed {
		t.Fatalf("expected PROCEED for group, got %s", d)
	}
	if f.store.PendingCount() != 0 {
		t.Fatalf("group admission must not create a pending request")
	}
}

func TestAdmitExemptPrincipalProceeds(t *testing.T) {
	f := newFixture(t, time.Minute)
	f.exempt.Exempt("p1@s.whatsapp.net")
	d, err := f.svc.Admit(context.Background(), "p1@s.whatsapp.net", "", "otp flow")
	if err != nil {
		t.Fatalf("admit: %v", err)
	}
	if d != DecisionProceed {
		t.Fatalf("expected PROCEED for exempt principal, got %s", d)
	}
}

func TestAdmitOutstandingCodeProceeds(t *testing.T) {
	f := newFixture(t, time.Minute)
	f.pending["p2@s.whatsapp.net"] = true
	d, err := f.svc.Admit(context.Background(), "p2@s.whatsapp.net", "", "code is 114477")
	if err != nil {
		t.Fatalf("admit: %v", err)
	}
	if d != DecisionProceed {
		t.Fatalf("expected PROCEED while a code is outstanding, got %s", d)
	}
}

func TestOwnerApprovalGrantsSession(t *testing.T) {
	f := newFixture(t, time.Minute)
	principal := "p3@s.whatsapp.net"

	result := admitAsync(f, principal)
	f.waitPending(t, principal)

	if !f.svc.ResolveOwnerDecision(context.Background(), " Yes ") {
		t.Fatalf("expected decision to be handled")
	}
	if d := <-result; d != DecisionProceed {
		t.Fatalf("expected PROCEED after approval, got %s", d)
	}

	info, ok := f.svc.SessionInfo(principal)
	if !ok {
		t.Fatalf("expected active session after approval")
	}
	if info.GrantedBy != GrantOwner {
		t.Fatalf("expected owner grant, got %s", info.GrantedBy)
	}

	if msgs := f.notifier.SentTo(testOwner); len(msgs) < 2 {
		t.Fatalf("expected prompt and grant notifications, got %d", len(msgs))
	}
}

func TestOwnerDenialBlocks(t *testing.T) {
	f := newFixture(t, time.Minute)
	principal := "p4@s.whatsapp.net"

	result := admitAsync(f, principal)
	f.waitPending(t, principal)

	if !f.svc.ResolveOwnerDecision(context.Background(), "no") {
		t.Fatalf("expected decision to be handled")
	}
	if d := <-result; d != DecisionBlocked {
		t.Fatalf("expected BLOCKED after denial, got %s", d)
	}
	if _, ok := f.svc.SessionInfo(principal); ok {
		t.Fatalf("denial must not create a session")
	}
}

func TestArabicVocabulary(t *testing.T) {
	f := newFixture(t, time.Minute)
	principal := "p5@s.whatsapp.net"

	result := admitAsync(f, principal)
	f.waitPending(t, principal)

	if !f.svc.ResolveOwnerDecision(context.Background(), "نعم") {
		t.Fatalf("expected Arabic affirmative to be handled")
	}
	if d := <-result; d != DecisionProceed {
		t.Fatalf("expected PROCEED, got %s", d)
	}
}

func TestUnrecognizedTextNotHandled(t *testing.T) {
	f := newFixture(t, time.Minute)
	principal := "p6@s.whatsapp.net"

	result := admitAsync(f, principal)
	f.waitPending(t, principal)

	if f.svc.ResolveOwnerDecision(context.Background(), "maybe later") {
		t.Fatalf("non-decision text must not be handled")
	}
	if f.svc.ResolveOwnerDecision(context.Background(), "") {
		t.Fatalf("empty text must not be handled")
	}

	// The request is still pending; settle it.
	if !f.svc.ResolveOwnerDecision(context.Background(), "yes") {
		t.Fatalf("expected follow-up decision to be handled")
	}
	<-result
}

func TestDecisionWithoutPendingRequest(t *testing.T) {
	f := newFixture(t, time.Minute)
	if f.svc.ResolveOwnerDecision(context.Background(), "yes") {
		t.Fatalf("decision with no pending request must not be handled")
	}
}

func TestTimeoutAutoApproves(t *testing.T) {
	f := newFixture(t, 30*time.Millisecond)
	principal := "p7@s.whatsapp.net"

	result := admitAsync(f, principal)

	select {
	case d := <-result:
		if d != DecisionProceed {
			t.Fatalf("expected auto-approved PROCEED, got %s", d)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for auto-approval")
	}

	info, ok := f.svc.SessionInfo(principal)
	if !ok {
		t.Fatalf("expected session after auto-approval")
	}
	if info.GrantedBy != GrantAutoTimeout {
		t.Fatalf("expected auto-timeout grant, got %s", info.GrantedBy)
	}
}

func TestDecisionAfterTimeoutIsNoop(t *testing.T) {
	f := newFixture(t, 20*time.Millisecond)
	principal := "p8@s.whatsapp.net"

	result := admitAsync(f, principal)
	if d := <-result; d != DecisionProceed {
		t.Fatalf("expected auto-approval, got %s", d)
	}

	// The timer already settled the request; a late owner reply finds nothing.
	if f.svc.ResolveOwnerDecision(context.Background(), "no") {
		t.Fatalf("late decision must be a no-op")
	}
	if _, ok := f.svc.SessionInfo(principal); !ok {
		t.Fatalf("auto-approved session must survive the late reply")
	}
}

func TestConcurrentAdmitsSinglePending(t *testing.T) {
	f := newFixture(t, time.Minute)
	principal := "p9@s.whatsapp.net"

	first := admitAsync(f, principal)
	f.waitPending(t, principal)

	second, err := f.svc.Admit(context.Background(), principal, "", "second message")
	if err != nil {
		t.Fatalf("second admit: %v", err)
	}
	if second != DecisionWait {
		t.Fatalf("expected WAIT for duplicate admission, got %s", second)
	}
	if f.store.PendingCount() != 1 {
		t.Fatalf("expected exactly one pending request, got %d", f.store.PendingCount())
	}

	f.svc.ResolveOwnerDecision(context.Background(), "yes")
	<-first
}

func TestSessionExpiryMonotonicity(t *testing.T) {
	f := newFixture(t, time.Minute)
	principal := "p10@s.whatsapp.net"
	f.store.SessionPut(Session{Principal: principal, GrantedAt: f.clock.Now(), GrantedBy: GrantOwner})

	if d, decided := f.svc.checkState(principal); !decided || d != DecisionProceed {
		t.Fatalf("expected PROCEED inside the session window")
	}

	f.clock.Advance(10*time.Minute - time.Second)
	if d, decided := f.svc.checkState(principal); !decided || d != DecisionProceed {
		t.Fatalf("expected PROCEED just before expiry")
	}

	f.clock.Advance(time.Second)
	if _, decided := f.svc.checkState(principal); decided {
		t.Fatalf("expected session to be treated as absent at the boundary")
	}
	if _, ok := f.store.SessionGet(principal); ok {
		t.Fatalf("expired session must be evicted lazily")
	}
}

func TestReapprovalSupersedesSession(t *testing.T) {
	f := newFixture(t, time.Minute)
	principal := "p11@s.whatsapp.net"
	f.store.SessionPut(Session{Principal: principal, GrantedAt: f.clock.Now(), GrantedBy: GrantAutoTimeout})

	f.clock.Advance(11 * time.Minute)
	result := admitAsync(f, principal)
	f.waitPending(t, principal)
	f.svc.ResolveOwnerDecision(context.Background(), "yes")
	<-result

	info, ok := f.svc.SessionInfo(principal)
	if !ok {
		t.Fatalf("expected fresh session")
	}
	if info.GrantedBy != GrantOwner {
		t.Fatalf("expected the new grant to supersede, got %s", info.GrantedBy)
	}
}

func TestLastRequestPointerTargetsMostRecent(t *testing.T) {
	f := newFixture(t, 5*time.Second)
	first := "p12@s.whatsapp.net"
	second := "p13@s.whatsapp.net"

	firstResult := admitAsync(f, first)
	f.waitPending(t, first)
	secondResult := admitAsync(f, second)
	f.waitPending(t, second)

	// The bare "yes" follows the most recent request only.
	if !f.svc.ResolveOwnerDecision(context.Background(), "yes") {
		t.Fatalf("expected decision to be handled")
	}
	if d := <-secondResult; d != DecisionProceed {
		t.Fatalf("expected the most recent principal to be approved, got %s", d)
	}
	if _, ok := f.store.PendingGet(first); !ok {
		t.Fatalf("the earlier request must remain stranded")
	}

	// A second bare reply has no target left.
	if f.svc.ResolveOwnerDecision(context.Background(), "yes") {
		t.Fatalf("expected no remaining target for a bare decision")
	}

	// The explicit form reaches the stranded principal.
	if !f.svc.ResolveOwnerDecisionFor(context.Background(), first, "no") {
		t.Fatalf("expected explicit decision to be handled")
	}
	if d := <-firstResult; d != DecisionBlocked {
		t.Fatalf("expected the stranded principal to be blocked, got %s", d)
	}
}

func TestAdmitContextCancellation(t *testing.T) {
	f := newFixture(t, 250*time.Millisecond)
	principal := "p14@s.whatsapp.net"

	ctx, cancel := context.WithCancel(context.Background())
	type outcome struct {
		d   Decision
		err error
	}
	result := make(chan outcome, 1)
	go func() {
		d, err := f.svc.Admit(ctx, principal, "", "hi")
		result <- outcome{d, err}
	}()
	f.waitPending(t, principal)
	cancel()

	got := <-result
	if !errors.Is(got.err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", got.err)
	}
	if got.d != DecisionWait {
		t.Fatalf("expected WAIT on cancellation, got %s", got.d)
	}

	// The request stays behind and the timeout settles it.
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if _, ok := f.svc.SessionInfo(principal); ok {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("expected the abandoned request to auto-approve")
}

func TestNotificationFailureDoesNotFailTransition(t *testing.T) {
	f := newFixture(t, time.Minute)
	f.notifier.Err = errors.New("transport down")
	principal := "p15@s.whatsapp.net"

	result := admitAsync(f, principal)
	f.waitPending(t, principal)
	if !f.svc.ResolveOwnerDecision(context.Background(), "yes") {
		t.Fatalf("decision must succeed despite notifier failure")
	}
	if d := <-result; d != DecisionProceed {
		t.Fatalf("expected PROCEED, got %s", d)
	}
}

func TestOwnerPromptContents(t *testing.T) {
	f := newFixture(t, time.Minute)
	f.svc.contacts = ContactLookupFunc(func(_ context.Context, principal string) (string, error) {
		return "Saved Name", nil
	})
	principal := "966554526287@s.whatsapp.net"
	longMessage := strings.Repeat("x", 80)

	result := admitAsync2(f, principal, longMessage)
	f.waitPending(t, principal)

	prompts := f.notifier.SentTo(testOwner)
	if len(prompts) != 1 {
		t.Fatalf("expected one prompt, got %d", len(prompts))
	}
	body := prompts[0].Body
	for _, want := range []string{"Saved Name", "966554526287", "in contacts", strings.Repeat("x", 50) + "..."} {
		if !strings.Contains(body, want) {
			t.Fatalf("prompt missing %q:\n%s", want, body)
		}
	}
	if strings.Contains(body, strings.Repeat("x", 51)) {
		t.Fatalf("message preview must be truncated")
	}

	f.svc.ResolveOwnerDecision(context.Background(), "yes")
	<-result
}

func admitAsync2(f *fixture, principal, message string) chan Decision {
	out := make(chan Decision, 1)
	go func() {
		d, _ := f.svc.Admit(context.Background(), principal, "Hint", message)
		out <- d
	}()
	return out
}

func TestContactLookupFailureFallsBack(t *testing.T) {
	f := newFixture(t, time.Minute)
	f.svc.contacts = ContactLookupFunc(func(_ context.Context, _ string) (string, error) {
		return "", errors.New("lookup unavailable")
	})
	principal := "p16@s.whatsapp.net"

	result := admitAsync2(f, principal, "hello")
	req := f.waitPending(t, principal)
	if req.DisplayName != "Hint" {
		t.Fatalf("expected the hint as fallback, got %q", req.DisplayName)
	}

	f.svc.ResolveOwnerDecision(context.Background(), "yes")
	<-result
}

func TestStats(t *testing.T) {
	f := newFixture(t, time.Minute)
	f.store.SessionPut(Session{Principal: "a@s.whatsapp.net", GrantedAt: f.clock.Now()})
	f.store.SessionPut(Session{Principal: "b@s.whatsapp.net", GrantedAt: f.clock.Now().Add(-11 * time.Minute)})

	stats := f.svc.Stats()
	if stats.ActiveSessions != 1 {
		t.Fatalf("expected 1 active session, got %d", stats.ActiveSessions)
	}
	if stats.PendingRequests != 0 {
		t.Fatalf("expected 0 pending requests, got %d", stats.PendingRequests)
	}
}

func TestVocabularyClassify(t *testing.T) {
	v := DefaultVocabulary()
	cases := map[string]Verdict{
		"yes":   VerdictAffirm,
		" OK ":  VerdictAffirm,
		"نعم":   VerdictAffirm,
		"👍":     VerdictAffirm,
		"no":    VerdictDeny,
		"لا":    VerdictDeny,
		"block": VerdictDeny,
		"hello": VerdictNone,
		"":      VerdictNone,
	}
	for text, want := range cases {
		if got := v.Classify(text); got != want {
			t.Fatalf("classify %q: expected %v, got %v", text, want, got)
		}
	}
}
