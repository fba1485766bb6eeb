package store

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
)

// ErrVendorNotFound is returned when a vendor has no configuration row.
var ErrVendorNotFound = errors.New("vendor not found")

type Store struct{ DB *sqlx.DB }

func Open(dsn string) (*Store, error) {
	db, err := sqlx.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)
	return &Store{DB: db}, nil
}

func (s *Store) Ping(ctx context.Context) error { return s.DB.PingContext(ctx) }

func (s *Store) Close() error { return s.DB.Close() }

func (s *Store) Migrate(ctx context.Context) error {
	stmts := []string{
		`CREATE EXTENSION IF NOT EXISTS pgcrypto;`,
		`CREATE TABLE IF NOT EXISTS vendors (
            vendor_key      TEXT PRIMARY KEY,
            current_rate_sd DOUBLE PRECISION NOT NULL DEFAULT 1,
            created_at      TIMESTAMPTZ NOT NULL DEFAULT now(),
            updated_at      TIMESTAMPTZ NOT NULL DEFAULT now()
        );`,
		`CREATE TABLE IF NOT EXISTS provider_raw_snapshots (
            id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
            provider       TEXT NOT NULL,
            endpoint       TEXT NOT NULL,
            payload        JSONB NOT NULL,
            fetched_at     TIMESTAMPTZ NOT NULL DEFAULT now(),
            payload_sha256 TEXT NOT NULL
        );`,
		`CREATE INDEX IF NOT EXISTS idx_snapshots_provider ON provider_raw_snapshots(provider, endpoint, fetched_at DESC);`,
		`CREATE UNIQUE INDEX IF NOT EXISTS ux_snapshots_sha ON provider_raw_snapshots(provider, endpoint, payload_sha256);`,
	}
	for _, q := range stmts {
		if _, err := s.DB.ExecContext(ctx, q); err != nil {
			return err
		}
	}
	return nil
}

// Vendor is one row of the vendors table.
type Vendor struct {
	Key           string    `db:"vendor_key"`
	CurrentRateSd float64   `db:"current_rate_sd"`
	UpdatedAt     time.Time `db:"updated_at"`
}

func (s *Store) GetVendor(ctx context.Context, key string) (Vendor, error) {
	var v Vendor
	err := s.DB.GetContext(ctx, &v, `SELECT vendor_key, current_rate_sd, updated_at FROM vendors WHERE vendor_key=$1`, key)
	if errors.Is(err, sql.ErrNoRows) {
		return v, fmt.Errorf("%w: %s", ErrVendorNotFound, key)
	}
	return v, err
}

// VendorMultiplier returns the price multiplier configured for vendorKey.
func (s *Store) VendorMultiplier(ctx context.Context, vendorKey string) (float64, error) {
	v, err := s.GetVendor(ctx, vendorKey)
	if err != nil {
		return 0, err
	}
	return v.CurrentRateSd, nil
}

// EnsureVendor inserts a vendor row with the given multiplier unless one
// already exists, and reports whether it inserted. Existing rows are left
// untouched so operator edits survive restarts.
func (s *Store) EnsureVendor(ctx context.Context, key string, rate float64) (bool, error) {
	res, err := s.DB.ExecContext(ctx, `
        INSERT INTO vendors (vendor_key, current_rate_sd) VALUES ($1, $2)
        ON CONFLICT (vendor_key) DO NOTHING`,
		key, rate)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n == 1, err
}

// WriteSnapshot stores a raw partner payload. Identical payloads for the same
// endpoint are stored once; later writes only bump fetched_at.
func (s *Store) WriteSnapshot(ctx context.Context, provider, endpoint string, payload []byte) error {
	if len(payload) == 0 {
		return errors.New("empty payload")
	}
	sum := sha256.Sum256(payload)
	sha := hex.EncodeToString(sum[:])
	_, err := s.DB.ExecContext(ctx, `
        INSERT INTO provider_raw_snapshots (provider, endpoint, payload, payload_sha256)
        VALUES ($1,$2,$3,$4)
        ON CONFLICT (provider, endpoint, payload_sha256) DO UPDATE SET fetched_at=now()`,
		provider, endpoint, string(payload), sha)
	return err
}
