package session

import (
	"context"
	"errors"
	"net"
	"time"

	"pdfgate/cmd/identity"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/oklog/ulid/v2"
)

// PostgresStore implements Store using PostgreSQL (pdfgate.sessions).
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a Postgres-backed session store.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const sessionColumns = `
	id, user_id, role, device_id, refresh_token_hash,
	created_at, last_used_at, expires_at, revoked_at, revocation_reason,
	replaced_by_session_id`

func scanRow(row pgx.Row) (Row, error) {
	var (
		r    Row
		role string
	)
	err := row.Scan(
		&r.ID,
		&r.UserID,
		&role,
		&r.DeviceID,
		&r.RefreshTokenHash,
		&r.CreatedAt,
		&r.LastUsedAt,
		&r.ExpiresAt,
		&r.RevokedAt,
		&r.RevocationReason,
		&r.ReplacedBySessionID,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return Row{}, ErrSessionNotFound
	}
	if err != nil {
		return Row{}, err
	}
	r.Role = identity.Role(role)
	return r, nil
}

// Create inserts a new session row and returns its ULID.
func (s *PostgresStore) Create(ctx context.Context, now time.Time, subj Subject, client ClientContext, refreshHash string, expiresAt time.Time) (string, error) {
	id := ulid.Make().String()
	if err := insertSession(ctx, s.pool, id, now, subj, client, refreshHash, expiresAt); err != nil {
		return "", err
	}
	return id, nil
}

// GetByID loads a session row by ID.
func (s *PostgresStore) GetByID(ctx context.Context, sessionID string) (Row, error) {
	return scanRow(s.pool.QueryRow(ctx, `SELECT `+sessionColumns+` FROM pdfgate.sessions WHERE id = $1`, sessionID))
}

// Rotate locks the old row by refresh hash (SELECT ... FOR UPDATE) and
// performs reuse detection and replacement in one transaction.
func (s *PostgresStore) Rotate(ctx context.Context, now time.Time, in RotateInput) (Row, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return Row{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	old, err := getByRefreshHashForUpdateTx(ctx, tx, in.OldRefreshHash)
	if err != nil {
		return Row{}, err
	}

	if !old.ExpiresAt.After(now) {
		return Row{}, ErrSessionExpired
	}

	// A rotated refresh token presented again is a security incident.
	if old.RevokedAt != nil && old.ReplacedBySessionID != nil {
		if err := revokeAllTx(ctx, tx, now, old.UserID); err != nil {
			return Row{}, err
		}
		if err := tx.Commit(ctx); err != nil {
			return Row{}, err
		}
		return Row{}, ErrRefreshReuseDetected
	}
	if old.RevokedAt != nil {
		if deviceReason(old.RevocationReason) {
			return Row{}, ErrSessionInvalidated
		}
		return Row{}, ErrSessionRevoked
	}

	newID := ulid.Make().String()
	if err := insertSession(ctx, tx, newID, now, old.Subject(), in.Client, in.NewRefreshHash, in.NewExpiresAt); err != nil {
		return Row{}, err
	}
	if err := markRotatedTx(ctx, tx, now, old.ID, newID); err != nil {
		return Row{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return Row{}, err
	}

	used := now
	return Row{
		ID:               newID,
		UserID:           old.UserID,
		Role:             old.Role,
		DeviceID:         old.DeviceID,
		RefreshTokenHash: in.NewRefreshHash,
		CreatedAt:        now,
		LastUsedAt:       &used,
		ExpiresAt:        in.NewExpiresAt,
	}, nil
}

// Touch updates last_used_at for a session.
func (s *PostgresStore) Touch(ctx context.Context, now time.Time, sessionID string) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE pdfgate.sessions
		SET last_used_at = $2
		WHERE id = $1
	`, sessionID, now)
	return err
}

// Revoke revokes a single session (idempotent).
func (s *PostgresStore) Revoke(ctx context.Context, now time.Time, sessionID string, reason string) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE pdfgate.sessions
		SET revoked_at = COALESCE(revoked_at, $2),
		    revocation_reason = COALESCE(revocation_reason, $3)
		WHERE id = $1
	`, sessionID, now, reason)
	return err
}

// RevokeAll revokes all live sessions for a user.
func (s *PostgresStore) RevokeAll(ctx context.Context, now time.Time, userID string, reason string) (int, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE pdfgate.sessions
		SET revoked_at = $2, revocation_reason = $3
		WHERE user_id = $1 AND revoked_at IS NULL
	`, userID, now, reason)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}

// RevokeByDevice revokes live sessions bound to one device.
func (s *PostgresStore) RevokeByDevice(ctx context.Context, now time.Time, userID, deviceID string, reason string) (int, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE pdfgate.sessions
		SET revoked_at = $3, revocation_reason = $4
		WHERE user_id = $1 AND device_id = $2 AND revoked_at IS NULL
	`, userID, deviceID, now, reason)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullIP(ip net.IP) any {
	if ip == nil {
		return nil
	}
	return ip
}
