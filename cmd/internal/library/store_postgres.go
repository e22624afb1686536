package library

import (
	"context"
	"errors"
	"time"

	"pdfgate/cmd/identity"
	"pdfgate/cmd/identity/ids"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore keeps uploads and shares in pdfgate.uploads / pdfgate.shares.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const (
	uploadColumns = `u.id, u.storage_key, u.original_name, u.size_bytes, u.content_digest, u.uploaded_by, u.created_at`
	shareColumns  = `s.id, s.upload_id, s.user_id, s.shared_at, s.revoked_at`
)

func scanUploadInto(u *Upload) []any {
	return []any{&u.ID, &u.StorageKey, &u.OriginalName, &u.Size, &u.Digest, &u.UploadedBy, &u.CreatedAt}
}

func scanShareInto(sh *Share) []any {
	return []any{&sh.ID, &sh.UploadID, &sh.UserID, &sh.SharedAt, &sh.RevokedAt}
}

func (s *PostgresStore) CreateUpload(ctx context.Context, u Upload) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO pdfgate.uploads (id, storage_key, original_name, size_bytes, content_digest, uploaded_by, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, u.ID, u.StorageKey, u.OriginalName, u.Size, u.Digest, u.UploadedBy, u.CreatedAt)
	if identity.PgIsForeignKeyViolation(err) {
		return notFound("library.CreateUpload", "user")
	}
	return err
}

func (s *PostgresStore) GetUpload(ctx context.Context, id string) (Upload, error) {
	var u Upload
	err := s.pool.QueryRow(ctx, `SELECT `+uploadColumns+` FROM pdfgate.uploads u WHERE u.id = $1`, id).
		Scan(scanUploadInto(&u)...)
	if errors.Is(err, pgx.ErrNoRows) {
		return Upload{}, notFound("library.GetUpload", "upload")
	}
	return u, err
}

func (s *PostgresStore) ListUploads(ctx context.Context) ([]UploadSummary, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+uploadColumns+`,
		       (SELECT count(*) FROM pdfgate.shares s WHERE s.upload_id = u.id AND s.revoked_at IS NULL)
		FROM pdfgate.uploads u
		ORDER BY u.created_at DESC, u.id DESC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []UploadSummary
	for rows.Next() {
		var us UploadSummary
		if err := rows.Scan(append(scanUploadInto(&us.Upload), &us.ActiveShares)...); err != nil {
			return nil, err
		}
		out = append(out, us)
	}
	return out, rows.Err()
}

func (s *PostgresStore) DeleteUpload(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM pdfgate.uploads WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return notFound("library.DeleteUpload", "upload")
	}
	return nil
}

func (s *PostgresStore) GetShare(ctx context.Context, id string) (Share, error) {
	var sh Share
	err := s.pool.QueryRow(ctx, `SELECT `+shareColumns+` FROM pdfgate.shares s WHERE s.id = $1`, id).
		Scan(scanShareInto(&sh)...)
	if errors.Is(err, pgx.ErrNoRows) {
		return Share{}, notFound("library.GetShare", "share")
	}
	return sh, err
}

func (s *PostgresStore) GetShareFor(ctx context.Context, uploadID, userID string) (Share, error) {
	var sh Share
	err := s.pool.QueryRow(ctx,
		`SELECT `+shareColumns+` FROM pdfgate.shares s WHERE s.upload_id = $1 AND s.user_id = $2`,
		uploadID, userID,
	).Scan(scanShareInto(&sh)...)
	if errors.Is(err, pgx.ErrNoRows) {
		return Share{}, notFound("library.GetShareFor", "share")
	}
	return sh, err
}

func (s *PostgresStore) Grant(ctx context.Context, uploadID, userID string, now time.Time) (Share, error) {
	return s.upsert(ctx, "library.Grant", uploadID, userID, now, true)
}

func (s *PostgresStore) EnsureSelfShare(ctx context.Context, uploadID, userID string, now time.Time) (Share, error) {
	return s.upsert(ctx, "library.EnsureSelfShare", uploadID, userID, now, false)
}

func (s *PostgresStore) upsert(ctx context.Context, op, uploadID, userID string, now time.Time, conflictIfActive bool) (Share, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return Share{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var sh Share
	err = tx.QueryRow(ctx,
		`SELECT `+shareColumns+` FROM pdfgate.shares s WHERE s.upload_id = $1 AND s.user_id = $2 FOR UPDATE`,
		uploadID, userID,
	).Scan(scanShareInto(&sh)...)

	switch {
	case err == nil && sh.Active():
		if conflictIfActive {
			return Share{}, ConflictError{Op: op, UploadID: uploadID, UserID: userID}
		}
		return sh, nil

	case err == nil:
		if _, err := tx.Exec(ctx,
			`UPDATE pdfgate.shares SET revoked_at = NULL, shared_at = $2 WHERE id = $1`, sh.ID, now,
		); err != nil {
			return Share{}, err
		}
		sh.RevokedAt = nil
		sh.SharedAt = now

	case errors.Is(err, pgx.ErrNoRows):
		id, err := ids.NewULID(now)
		if err != nil {
			return Share{}, err
		}
		sh = Share{ID: id, UploadID: uploadID, UserID: userID, SharedAt: now}
		_, err = tx.Exec(ctx, `
			INSERT INTO pdfgate.shares (id, upload_id, user_id, shared_at)
			VALUES ($1, $2, $3, $4)
		`, sh.ID, sh.UploadID, sh.UserID, sh.SharedAt)
		switch {
		case identity.PgIsForeignKeyViolation(err):
			return Share{}, notFound(op, "upload or user")
		case identity.PgIsUniqueViolation(err):
			// Lost a race with a concurrent grant for the same pair.
			return Share{}, ConflictError{Op: op, UploadID: uploadID, UserID: userID}
		case err != nil:
			return Share{}, err
		}

	default:
		return Share{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return Share{}, err
	}
	return sh, nil
}

func (s *PostgresStore) Revoke(ctx context.Context, uploadID, userID string, now time.Time) (Share, error) {
	var sh Share
	err := s.pool.QueryRow(ctx, `
		UPDATE pdfgate.shares s
		SET revoked_at = COALESCE(s.revoked_at, $3)
		WHERE s.upload_id = $1 AND s.user_id = $2
		RETURNING `+shareColumns,
		uploadID, userID, now,
	).Scan(scanShareInto(&sh)...)
	if errors.Is(err, pgx.ErrNoRows) {
		return Share{}, notFound("library.Revoke", "share")
	}
	return sh, err
}

func (s *PostgresStore) ListActiveFor(ctx context.Context, userID string) ([]SharedDocument, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+shareColumns+`, `+uploadColumns+`
		FROM pdfgate.shares s
		JOIN pdfgate.uploads u ON u.id = s.upload_id
		WHERE s.user_id = $1 AND s.revoked_at IS NULL
		ORDER BY s.shared_at DESC, s.id DESC
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []SharedDocument
	for rows.Next() {
		var d SharedDocument
		if err := rows.Scan(append(scanShareInto(&d.Share), scanUploadInto(&d.Upload)...)...); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (s *PostgresStore) ListForUpload(ctx context.Context, uploadID string) ([]Share, error) {
	var exists bool
	if err := s.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM pdfgate.uploads WHERE id = $1)`, uploadID,
	).Scan(&exists); err != nil {
		return nil, err
	}
	if !exists {
		return nil, notFound("library.ListForUpload", "upload")
	}

	rows, err := s.pool.Query(ctx, `
		SELECT `+shareColumns+`
		FROM pdfgate.shares s
		WHERE s.upload_id = $1
		ORDER BY s.shared_at DESC, s.id DESC
	`, uploadID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Share
	for rows.Next() {
		var sh Share
		if err := rows.Scan(scanShareInto(&sh)...); err != nil {
			return nil, err
		}
		out = append(out, sh)
	}
	return out, rows.Err()
}

func (s *PostgresStore) GrantUploadToUsers(ctx context.Context, uploadID string, userIDs []string, now time.Time) (int, error) {
	pairs := make([][2]string, 0, len(userIDs))
	for _, uid := range userIDs {
		pairs = append(pairs, [2]string{uploadID, uid})
	}
	return s.bulkGrant(ctx, "library.GrantUploadToUsers", pairs, now)
}

func (s *PostgresStore) GrantUploadsToUser(ctx context.Context, userID string, now time.Time) (int, error) {
	rows, err := s.pool.Query(ctx, `SELECT id FROM pdfgate.uploads ORDER BY created_at`)
	if err != nil {
		return 0, err
	}
	uploadIDs, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return 0, err
	}

	pairs := make([][2]string, 0, len(uploadIDs))
	for _, id := range uploadIDs {
		pairs = append(pairs, [2]string{id, userID})
	}
	return s.bulkGrant(ctx, "library.GrantUploadsToUser", pairs, now)
}

// bulkGrant inserts (upload, user) pairs in one transaction, skipping pairs
// that already have a row.
func (s *PostgresStore) bulkGrant(ctx context.Context, op string, pairs [][2]string, now time.Time) (int, error) {
	if len(pairs) == 0 {
		return 0, nil
	}
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	n := 0
	for _, p := range pairs {
		id, err := ids.NewULID(now)
		if err != nil {
			return 0, err
		}
		tag, err := tx.Exec(ctx, `
			INSERT INTO pdfgate.shares (id, upload_id, user_id, shared_at)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT ON CONSTRAINT uq_shares_upload_user DO NOTHING
		`, id, p[0], p[1], now)
		if identity.PgIsForeignKeyViolation(err) {
			return 0, notFound(op, "upload or user")
		}
		if err != nil {
			return 0, err
		}
		n += int(tag.RowsAffected())
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, err
	}
	return n, nil
}

func (s *PostgresStore) DeleteForUser(ctx context.Context, userID string) (int, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM pdfgate.shares WHERE user_id = $1`, userID)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}
