package otp

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresVerificationStore implements VerificationStore using PostgreSQL.
//
// Expected schema:
//
//	CREATE TABLE verified_applications (
//	    principal       TEXT        NOT NULL,
//	    app_name        TEXT        NOT NULL,
//	    verified_at     TIMESTAMPTZ NOT NULL,
//	    device_id       TEXT        NOT NULL DEFAULT '',
//	    canonical_phone TEXT        NOT NULL DEFAULT '',
//	    display_name    TEXT        NOT NULL DEFAULT '',
//	    PRIMARY KEY (principal, app_name)
//	);
//	CREATE INDEX verified_applications_phone_idx ON verified_applications (canonical_phone);
//	CREATE INDEX verified_applications_device_idx ON verified_applications (device_id);
type PostgresVerificationStore struct {
	db *pgxpool.Pool
}

// NewPostgresVerificationStore builds a Postgres-backed verification store.
func NewPostgresVerificationStore(db *pgxpool.Pool) *PostgresVerificationStore {
	return &PostgresVerificationStore{db: db}
}

// Put inserts or refreshes the verification binding.
func (s *PostgresVerificationStore) Put(ctx context.Context, v Verification) error {
	_, err := s.db.Exec(ctx, `INSERT INTO verified_applications (principal, app_name, verified_at, device_id, canonical_phone, display_name)
        VALUES ($1, $2, $3, $4, $5, $6)
        ON CONFLICT (principal, app_name) DO UPDATE SET
            verified_at = EXCLUDED.verified_at,
            device_id = EXCLUDED.device_id,
            canonical_phone = EXCLUDED.canonical_phone,
            display_name = EXCLUDED.display_name`,
		v.Principal, v.AppName, v.VerifiedAt.UTC(), v.DeviceID, v.CanonicalPhone, v.DisplayName)
	if err != nil {
		return fmt.Errorf("store verification: %w", err)
	}
	return nil
}

// Get fetches the verification or ErrNotFound.
func (s *PostgresVerificationStore) Get(ctx context.Context, principal, appName string) (Verification, error) {
	row := s.db.QueryRow(ctx, `SELECT principal, app_name, verified_at, device_id, canonical_phone, display_name
        FROM verified_applications WHERE principal = $1 AND app_name = $2`, principal, appName)
	v, err := scanVerification(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Verification{}, ErrNotFound
	}
	if err != nil {
		return Verification{}, fmt.Errorf("load verification: %w", err)
	}
	return v, nil
}

// Delete removes the verification if present.
func (s *PostgresVerificationStore) Delete(ctx context.Context, principal, appName string) error {
	if _, err := s.db.Exec(ctx, `DELETE FROM verified_applications WHERE principal = $1 AND app_name = $2`, principal, appName); err != nil {
		return fmt.Errorf("delete verification: %w", err)
	}
	return nil
}

// FindByPhone returns all verifications bound to the canonical phone.
func (s *PostgresVerificationStore) FindByPhone(ctx context.Context, canonicalPhone string) ([]Verification, error) {
	return s.query(ctx, `SELECT principal, app_name, verified_at, device_id, canonical_phone, display_name
        FROM verified_applications WHERE canonical_phone = $1`, canonicalPhone)
}

// FindByDevice returns all verifications bound to the device.
func (s *PostgresVerificationStore) FindByDevice(ctx context.Context, deviceID string) ([]Verification, error) {
	return s.query(ctx, `SELECT principal, app_name, verified_at, device_id, canonical_phone, display_name
        FROM verified_applications WHERE device_id = $1`, deviceID)
}

// List returns every stored verification.
func (s *PostgresVerificationStore) List(ctx context.Context) ([]Verification, error) {
	return s.query(ctx, `SELECT principal, app_name, verified_at, device_id, canonical_phone, display_name
        FROM verified_applications`)
}

func (s *PostgresVerificationStore) query(ctx context.Context, sql string, args ...any) ([]Verification, error) {
	rows, err := s.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("query verifications: %w", err)
	}
	defer rows.Close()

	var out []Verification
	for rows.Next() {
		v, err := scanVerification(rows)
		if err != nil {
			return nil, fmt.Errorf("scan verification: %w", err)
		}
		out = append(out, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate verifications: %w", err)
	}
	return out, nil
}

func scanVerification(row pgx.Row) (Verification, error) {
	var v Verification
	if err := row.Scan(&v.Principal, &v.AppName, &v.VerifiedAt, &v.DeviceID, &v.CanonicalPhone, &v.DisplayName); err != nil {
		return Verification{}, err
	}
	v.VerifiedAt = v.VerifiedAt.UTC()
	return v, nil
}
