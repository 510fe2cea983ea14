package gate

import "sync"

// Store holds the gate's mutable state. Pending requests carry an in-process
// resolution channel, so implementations are in-memory by design; the
// interface exists so the service can be tested without package-level state.
type Store interface {
	PendingGet(principal string) (*PendingRequest, bool)
	PendingPut(req *PendingRequest)
	PendingDelete(principal string)
	PendingCount() int

	SessionGet(principal string) (Session, bool)
	SessionPut(session Session)
	SessionDelete(principal string)
	SessionList() []Session
}

type memoryStore struct {
	mu       sync.RWMutex
	pending  map[string]*PendingRequest
	sessions map[string]Session
}

// NewMemoryStore builds the in-memory gate store.
func NewMemoryStore() Store {
	return &memoryStore{
		pending:  make(map[string]*PendingRequest),
		sessions: make(map[string]Session),
	}
}

func (s *memoryStore) PendingGet(principal string) (*PendingRequest, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	req, ok := s.pending[principal]
	return req, ok
}

func (s *memoryStore) PendingPut(req *PendingRequest) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending[req.Principal] = req
}

func (s *memoryStore) PendingDelete(principal string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.pending, principal)
}

func (s *memoryStore) PendingCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.pending)
}

func (s *memoryStore) SessionGet(principal string) (Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	session, ok := s.sessions[principal]
	return session, ok
}

func (s *memoryStore) SessionPut(session Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[session.Principal] = session
}

func (s *memoryStore) SessionDelete(principal string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, principal)
}

func (s *memoryStore) SessionList() []Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Session, 0, len(s.sessions))
	for _, session := range s.sessions {
		out = append(out, session)
	}
	return out
}

// ExemptionSet is the allowlist of principals engaged in an OTP exchange.
// The verifier writes it; the gate reads it.
type ExemptionSet struct {
	mu  sync.RWMutex
	set map[string]struct{}
}

// NewExemptionSet builds an empty exemption set.
func NewExemptionSet() *ExemptionSet {
	return &ExemptionSet{set: make(map[string]struct{})}
}

// Exempt adds the principal to the allowlist.
func (e *ExemptionSet) Exempt(principal string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.set[principal] = struct{}{}
}

// Unexempt removes the principal from the allowlist.
func (e *ExemptionSet) Unexempt(principal string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.set, principal)
}

// Exempted reports allowlist membership.
func (e *ExemptionSet) Exempted(principal string) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	_, ok := e.set[principal]
	return ok
}
