package otp

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
)

// RecordStore persists outstanding verification codes. Implementations
// return ErrNotFound when no record exists for the key; they never interpret
// timestamps, since expiry is checked lazily by the service against its
// injected clock.
type RecordStore interface {
	Put(ctx context.Context, record Record) error
	Get(ctx context.Context, principal, appName string) (Record, error)
	Delete(ctx context.Context, principal, appName string) error
	AnyForPrincipal(ctx context.Context, principal string) (bool, error)
	Count(ctx context.Context) (int, error)
}

// VerificationStore persists long-lived verification bindings.
type VerificationStore interface {
	Put(ctx context.Context, verification Verification) error
	Get(ctx context.Context, principal, appName string) (Verification, error)
	Delete(ctx context.Context, principal, appName string) error
	FindByPhone(ctx context.Context, canonicalPhone string) ([]Verification, error)
	FindByDevice(ctx context.Context, deviceID string) ([]Verification, error)
	List(ctx context.Context) ([]Verification, error)
}

// CodeSource produces verification codes. Injectable so tests are deterministic.
type CodeSource interface {
	SixDigitCode() (string, error)
}

type cryptoCodeSource struct{}

// NewCodeSource returns the production code source, drawing uniformly from
// 100000-999999 using crypto/rand.
func NewCodeSource() CodeSource { return cryptoCodeSource{} }

func (cryptoCodeSource) SixDigitCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(900000))
	if err != nil {
		return "", fmt.Errorf("draw verification code: %w", err)
	}
	return fmt.Sprintf("%d", n.Int64()+100000), nil
}
