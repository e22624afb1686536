package session

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// execer is satisfied by both *pgxpool.Pool and pgx.Tx.
type execer interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
}

func getByRefreshHashForUpdateTx(ctx context.Context, tx pgx.Tx, refreshHash string) (Row, error) {
	return scanRow(tx.QueryRow(ctx, `
		SELECT `+sessionColumns+`
		FROM pdfgate.sessions
		WHERE refresh_token_hash = $1
		FOR UPDATE
	`, refreshHash))
}

func insertSession(
	ctx context.Context,
	db execer,
	id string,
	now time.Time,
	subj Subject,
	client ClientContext,
	refreshHash string,
	expiresAt time.Time,
) error {
	_, err := db.Exec(ctx, `
		INSERT INTO pdfgate.sessions (
			id, user_id, role, device_id, refresh_token_hash,
			created_at, last_used_at, expires_at, revoked_at,
			replaced_by_session_id, user_agent, ip, revocation_reason
		) VALUES (
			$1, $2, $3, $4, $5,
			$6, $6, $7, NULL,
			NULL, $8, $9, NULL
		)
	`, id, subj.UserID, string(subj.Role), subj.DeviceID, refreshHash,
		now, expiresAt, nullIfEmpty(client.UserAgent), nullIP(client.IP))
	return err
}

func markRotatedTx(ctx context.Context, tx pgx.Tx, now time.Time, oldID string, newID string) error {
	_, err := tx.Exec(ctx, `
		UPDATE pdfgate.sessions
		SET
			last_used_at = $2,
			revoked_at = $2,
			replaced_by_session_id = $3,
			revocation_reason = 'rotation'
		WHERE id = $1
	`, oldID, now, newID)
	return err
}

func revokeAllTx(ctx context.Context, tx pgx.Tx, now time.Time, userID string) error {
	_, err := tx.Exec(ctx, `
		UPDATE pdfgate.sessions
		SET revoked_at = COALESCE(revoked_at, $2),
		    revocation_reason = COALESCE(revocation_reason, 'reuse_detected')
		WHERE user_id = $1
	`, userID, now)
	return err
}
