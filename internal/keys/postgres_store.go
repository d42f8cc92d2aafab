package keys

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/vnmchuo/inference-gateway/internal/provider"
)

type DB interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// PostgresStore keeps one active key per provider.
type PostgresStore struct {
	db DB
}

func NewPostgresStore(db DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const Schema = `
	CREATE TABLE IF NOT EXISTS provider_credentials (
		provider   TEXT PRIMARY KEY,
		api_key    TEXT NOT NULL,
		active     BOOLEAN NOT NULL DEFAULT true,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("failed to migrate provider_credentials: %w", err)
	}
	return nil
}

func (s *PostgresStore) APIKey(ctx context.Context, providerName string) (string, error) {
	query := `
		SELECT api_key
		FROM provider_credentials
		WHERE provider = $1 AND active = true
	`

	var key string
	err := s.db.QueryRow(ctx, query, providerName).Scan(&key)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", provider.ErrNoAPIKey
		}
		return "", fmt.Errorf("failed to get api key for %s: %w", providerName, err)
	}
	return key, nil
}

// Put stores key as the active key of providerName.
func (s *PostgresStore) Put(ctx context.Context, providerName, key string) error {
	if key == "" {
		return fmt.Errorf("api key is required")
	}

	query := `
		INSERT INTO provider_credentials (provider, api_key, active, updated_at)
		VALUES ($1, $2, true, now())
		ON CONFLICT (provider) DO UPDATE SET api_key = EXCLUDED.api_key, active = true, updated_at = now()
	`
	if _, err := s.db.Exec(ctx, query, providerName, key); err != nil {
		return fmt.Errorf("failed to store api key for %s: %w", providerName, err)
	}
	return nil
}

func (s *PostgresStore) Revoke(ctx context.Context, providerName string) error {
	query := `UPDATE provider_credentials SET active = false, updated_at = now() WHERE provider = $1`
	tag, err := s.db.Exec(ctx, query, providerName)
	if err != nil {
		return fmt.Errorf("failed to revoke api key for %s: %w", providerName, err)
	}

	if tag.RowsAffected() == 0 {
		return provider.ErrNoAPIKey
	}

	return nil
}
