package otp

import (
	"context"
	"sync"
)

type recordKey struct {
	principal string
	appName   string
}

type memoryRecordStore struct {
	mu      sync.RWMutex
	records map[recordKey]Record
}

// NewMemoryRecordStore builds an in-memory code store, used in development
// and as the test double.
func NewMemoryRecordStore() RecordStore {
	return &memoryRecordStore{records: make(map[recordKey]Record)}
}

func (s *memoryRecordStore) Put(_ context.Context, record Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[recordKey{record.Principal, record.AppName}] = record
	return nil
}

func (s *memoryRecordStore) Get(_ context.Context, principal, appName string) (Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	record, ok := s.records[recordKey{principal, appName}]
	if !ok {
		return Record{}, ErrNotFound
	}
	return record, nil
}

func (s *memoryRecordStore) Delete(_ context.Context, principal, appName string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records, recordKey{principal, appName})
	return nil
}

func (s *memoryRecordStore) AnyForPrincipal(_ context.Context, principal string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for key := range s.records {
		if key.principal == principal {
			return true, nil
		}
	}
	return false, nil
}

func (s *memoryRecordStore) Count(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records), nil
}

type memoryVerificationStore struct {
	mu       sync.RWMutex
	verified map[recordKey]Verification
}

// NewMemoryVerificationStore builds an in-memory verification store.
func NewMemoryVerificationStore() VerificationStore {
	return &memoryVerificationStore{verified: make(map[recordKey]Verification)}
}

func (s *memoryVerificationStore) Put(_ context.Context, verification Verification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.verified[recordKey{verification.Principal, verification.AppName}] = verification
	return nil
}

func (s *memoryVerificationStore) Get(_ context.Context, principal, appName string) (Verification, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	verification, ok := s.verified[recordKey{principal, appName}]
	if !ok {
		return Verification{}, ErrNotFound
	}
	return verification, nil
}

func (s *memoryVerificationStore) Delete(_ context.Context, principal, appName string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.verified, recordKey{principal, appName})
	return nil
}

func (s *memoryVerificationStore) FindByPhone(_ context.Context, canonicalPhone string) ([]Verification, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Verification
	for _, v := range s.verified {
		if v.CanonicalPhone == canonicalPhone {
			out = append(out, v)
		}
	}
	return out, nil
}

func (s *memoryVerificationStore) FindByDevice(_ context.Context, deviceID string) ([]Verification, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Verification
	for _, v := range s.verified {
		if v.DeviceID == deviceID {
			out = append(out, v)
		}
	}
	return out, nil
}

func (s *memoryVerificationStore) List(_ context.Context) ([]Verification, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Verification, 0, len(s.verified))
	for _, v := range s.verified {
		out = append(out, v)
	}
	return out, nil
}
