// Package postgres provides the PostgreSQL-backed Store for distributed
// deployments where multiple homeserver instances share account state.
package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"hearth/internal/storage"
	"hearth/pkg/sentinel"
)

const uniqueViolation = "23505"

// Store persists accounts, devices and access tokens in PostgreSQL.
// Uniqueness is enforced by the accounts primary key, so concurrent
// registration of one localpart resolves to exactly one winner.
type Store struct {
	pool *pgxpool.Pool
}

// New constructs a PostgreSQL-backed store over an existing pool.
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

func (s *Store) UsernameExists(ctx context.Context, localpart string) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM accounts WHERE localpart = $1)`,
		localpart,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check username exists: %w", errors.Join(sentinel.ErrUnavailable, err))
	}
	return exists, nil
}

func (s *Store) InsertAccount(ctx context.Context, account storage.Account) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO accounts (localpart, user_id, kind, password_hash, created_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		account.Localpart, account.UserID, string(account.Kind), account.PasswordHash, account.CreatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("insert account: %w", errors.Join(sentinel.ErrUnavailable, err))
	}
	return nil
}

func (s *Store) InsertOrReplaceDeviceToken(ctx context.Context, device storage.Device, token storage.AccessToken) error {
	// One transaction covers device upsert, prior-token deletion and the new
	// insert, so concurrent issuance for the same device serializes on the
	// device row and never leaves two active tokens.
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin device token tx: %w", errors.Join(sentinel.ErrUnavailable, err))
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx,
		`INSERT INTO devices (device_id, user_id, display_name)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (device_id, user_id) DO UPDATE SET display_name = EXCLUDED.display_name`,
		device.ID, device.UserID, device.DisplayName,
	)
	if err != nil {
		return fmt.Errorf("upsert device: %w", errors.Join(sentinel.ErrUnavailable, err))
	}

	_, err = tx.Exec(ctx,
		`DELETE FROM access_tokens WHERE user_id = $1 AND device_id = $2`,
		token.UserID, token.DeviceID,
	)
	if err != nil {
		return fmt.Errorf("invalidate prior token: %w", errors.Join(sentinel.ErrUnavailable, err))
	}

	_, err = tx.Exec(ctx,
		`INSERT INTO access_tokens (token, user_id, device_id, issued_at)
		 VALUES ($1, $2, $3, $4)`,
		token.Token, token.UserID, token.DeviceID, token.IssuedAt,
	)
	if err != nil {
		return fmt.Errorf("insert token: %w", errors.Join(sentinel.ErrUnavailable, err))
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit device token tx: %w", errors.Join(sentinel.ErrUnavailable, err))
	}
	return nil
}

func (s *Store) TokenByValue(ctx context.Context, value string) (*storage.AccessToken, error) {
	var token storage.AccessToken
	err := s.pool.QueryRow(ctx,
		`SELECT token, user_id, device_id, issued_at FROM access_tokens WHERE token = $1`,
		value,
	).Scan(&token.Token, &token.UserID, &token.DeviceID, &token.IssuedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("token lookup: %w", errors.Join(sentinel.ErrUnavailable, err))
	}
	return &token, nil
}
