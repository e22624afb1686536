package viewsession

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore keeps view sessions in pdfgate.view_sessions.
//
// ReuseOrCreate serializes per share with a transaction-scoped advisory lock
// keyed on the share id, so two concurrent issues for one share agree on a
// single token.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const viewColumns = `id, token, share_id, user_id, issued_at, expires_at`

func scanSession(row pgx.Row) (Session, error) {
	var vs Session
	err := row.Scan(&vs.ID, &vs.Token, &vs.ShareID, &vs.UserID, &vs.IssuedAt, &vs.ExpiresAt)
	return vs, err
}

func (s *PostgresStore) ReuseOrCreate(ctx context.Context, candidate Session, notBefore, now time.Time) (Session, bool, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return Session{}, false, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, candidate.ShareID); err != nil {
		return Session{}, false, err
	}

	vs, err := scanSession(tx.QueryRow(ctx, `
		SELECT `+viewColumns+`
		FROM pdfgate.view_sessions
		WHERE share_id = $1 AND expires_at > $2 AND issued_at >= $3
		ORDER BY expires_at DESC
		LIMIT 1
	`, candidate.ShareID, now, notBefore))
	switch {
	case err == nil:
		if err := tx.Commit(ctx); err != nil {
			return Session{}, false, err
		}
		return vs, true, nil
	case !errors.Is(err, pgx.ErrNoRows):
		return Session{}, false, err
	}

	if _, err := tx.Exec(ctx, `
		INSERT INTO pdfgate.view_sessions (`+viewColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, candidate.ID, candidate.Token, candidate.ShareID, candidate.UserID, candidate.IssuedAt, candidate.ExpiresAt); err != nil {
		return Session{}, false, err
	}
	if err := tx.Commit(ctx); err != nil {
		return Session{}, false, err
	}
	return candidate, false, nil
}

func (s *PostgresStore) GetByToken(ctx context.Context, token string) (Session, error) {
	vs, err := scanSession(s.pool.QueryRow(ctx,
		`SELECT `+viewColumns+` FROM pdfgate.view_sessions WHERE token = $1`, token,
	))
	if errors.Is(err, pgx.ErrNoRows) {
		return Session{}, OpError{Op: "viewsession.GetByToken", Kind: ErrNotFound}
	}
	return vs, err
}

func (s *PostgresStore) DeleteExpired(ctx context.Context, now time.Time) (int, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM pdfgate.view_sessions WHERE expires_at <= $1`, now)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}

func (s *PostgresStore) DeleteForUser(ctx context.Context, userID string) (int, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM pdfgate.view_sessions WHERE user_id = $1`, userID)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}
