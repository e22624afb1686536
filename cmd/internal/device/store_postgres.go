package device

import (
	"context"
	"errors"

	"pdfgate/cmd/identity"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore keeps device records in pdfgate.devices.
//
// Inspect and Mutate lock the owning pdfgate.users row FOR UPDATE before
// reading devices, so concurrent approvals for one user serialize while
// different users proceed in parallel.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const deviceColumns = `id, user_id, device_id, label, status, requested_at, approved_at, rejected_at, revoked_at, last_login_at`

func scanRecord(row pgx.Row) (Record, error) {
	var (
		r      Record
		status string
	)
	err := row.Scan(
		&r.ID,
		&r.UserID,
		&r.DeviceID,
		&r.Label,
		&status,
		&r.RequestedAt,
		&r.ApprovedAt,
		&r.RejectedAt,
		&r.RevokedAt,
		&r.LastLoginAt,
	)
	r.Status = Status(status)
	return r, err
}

func (s *PostgresStore) Inspect(ctx context.Context, userID, deviceID string, fn InspectFunc) (Record, error) {
	const op = "device.Inspect"

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return Record{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := lockUserTx(ctx, tx, userID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Record{}, OpError{Op: op, Kind: ErrNotFound, Msg: "user"}
		}
		return Record{}, err
	}

	var cur *Record
	r, err := scanRecord(tx.QueryRow(ctx,
		`SELECT `+deviceColumns+` FROM pdfgate.devices WHERE user_id = $1 AND device_id = $2`,
		userID, deviceID,
	))
	switch {
	case err == nil:
		cur = &r
	case errors.Is(err, pgx.ErrNoRows):
	default:
		return Record{}, err
	}

	next, write, err := fn(cur)
	if err != nil {
		return Record{}, err
	}
	if write {
		if cur == nil {
			err = insertTx(ctx, tx, next)
		} else {
			err = updateTx(ctx, tx, next)
		}
		if err != nil {
			return Record{}, err
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return Record{}, err
	}
	return next, nil
}

func (s *PostgresStore) Mutate(ctx context.Context, id string, fn MutateFunc) (Record, error) {
	const op = "device.Mutate"

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return Record{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var userID string
	if err := tx.QueryRow(ctx, `SELECT user_id FROM pdfgate.devices WHERE id = $1`, id).Scan(&userID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Record{}, notFound(op)
		}
		return Record{}, err
	}
	if err := lockUserTx(ctx, tx, userID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Record{}, notFound(op)
		}
		return Record{}, err
	}

	// Re-read under the user lock; the row may have changed or vanished.
	cur, err := scanRecord(tx.QueryRow(ctx,
		`SELECT `+deviceColumns+` FROM pdfgate.devices WHERE id = $1 FOR UPDATE`, id,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Record{}, notFound(op)
		}
		return Record{}, err
	}

	var others int
	if err := tx.QueryRow(ctx,
		`SELECT count(*) FROM pdfgate.devices WHERE user_id = $1 AND status = 'APPROVED' AND id <> $2`,
		userID, id,
	).Scan(&others); err != nil {
		return Record{}, err
	}

	next, err := fn(cur, others)
	if err != nil {
		return Record{}, err
	}
	if err := updateTx(ctx, tx, next); err != nil {
		return Record{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return Record{}, err
	}
	return next, nil
}

func (s *PostgresStore) Get(ctx context.Context, id string) (Record, error) {
	r, err := scanRecord(s.pool.QueryRow(ctx, `SELECT `+deviceColumns+` FROM pdfgate.devices WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Record{}, notFound("device.Get")
	}
	return r, err
}

func (s *PostgresStore) Find(ctx context.Context, userID, deviceID string) (Record, error) {
	r, err := scanRecord(s.pool.QueryRow(ctx,
		`SELECT `+deviceColumns+` FROM pdfgate.devices WHERE user_id = $1 AND device_id = $2`,
		userID, deviceID,
	))
	if errors.Is(err, pgx.ErrNoRows) {
		return Record{}, notFound("device.Find")
	}
	return r, err
}

func (s *PostgresStore) List(ctx context.Context, status Status) ([]Record, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+deviceColumns+`
		FROM pdfgate.devices
		WHERE ($1 = '' OR status = $1)
		ORDER BY requested_at DESC, id DESC
	`, string(status))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *PostgresStore) DeleteForUser(ctx context.Context, userID string) (int, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM pdfgate.devices WHERE user_id = $1`, userID)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}

func lockUserTx(ctx context.Context, tx pgx.Tx, userID string) error {
	var id string
	return tx.QueryRow(ctx, `SELECT id FROM pdfgate.users WHERE id = $1 FOR UPDATE`, userID).Scan(&id)
}

func insertTx(ctx context.Context, tx pgx.Tx, r Record) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO pdfgate.devices (
			id, user_id, device_id, label, status,
			requested_at, approved_at, rejected_at, revoked_at, last_login_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, r.ID, r.UserID, r.DeviceID, r.Label, string(r.Status),
		r.RequestedAt, r.ApprovedAt, r.RejectedAt, r.RevokedAt, r.LastLoginAt)
	if identity.PgIsForeignKeyViolation(err) {
		return OpError{Op: "device.Inspect", Kind: ErrNotFound, Msg: "user"}
	}
	return err
}

func updateTx(ctx context.Context, tx pgx.Tx, r Record) error {
	_, err := tx.Exec(ctx, `
		UPDATE pdfgate.devices
		SET label = $2,
		    status = $3,
		    requested_at = $4,
		    approved_at = $5,
		    rejected_at = $6,
		    revoked_at = $7,
		    last_login_at = $8
		WHERE id = $1
	`, r.ID, r.Label, string(r.Status), r.RequestedAt, r.ApprovedAt, r.RejectedAt, r.RevokedAt, r.LastLoginAt)
	return err
}
