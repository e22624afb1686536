package identity

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore implements identity persistence over PostgreSQL.
//
// The pgx pool is owned by the caller; this store must NOT close it.
// Schema/table identifiers are quoted with pgx.Identifier.
type PostgresStore struct {
	pool   *pgxpool.Pool
	schema string
	hasher PasswordHasher
}

// PostgresOption configures the store.
type PostgresOption func(*PostgresStore) error

var pgIdentRe = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// DefaultSchema is the Postgres schema all pdfgate tables live in.
const DefaultSchema = "pdfgate"

// WithSchema sets the Postgres schema used by the identity store (default "pdfgate").
func WithSchema(schema string) PostgresOption {
	return func(s *PostgresStore) error {
		schema = strings.TrimSpace(schema)
		if schema == "" {
			return fmt.Errorf("identity: empty schema")
		}
		if !pgIdentRe.MatchString(schema) {
			return fmt.Errorf("identity: invalid schema identifier")
		}
		s.schema = schema
		return nil
	}
}

// WithHasher overrides the env-configured password hasher.
func WithHasher(h PasswordHasher) PostgresOption {
	return func(s *PostgresStore) error {
		if h == nil {
			return fmt.Errorf("identity: nil hasher")
		}
		s.hasher = h
		return nil
	}
}

// NewPostgresStore constructs a PostgresStore.
func NewPostgresStore(pool *pgxpool.Pool, opts ...PostgresOption) (*PostgresStore, error) {
	st := &PostgresStore{
		pool:   pool,
		schema: DefaultSchema,
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(st); err != nil {
			return nil, err
		}
	}
	if st.pool == nil {
		return nil, fmt.Errorf("identity: nil pool")
	}
	if st.hasher == nil {
		st.hasher = DefaultHasher()
	}
	return st, nil
}

// CreateUser inserts the user and its credentials in one transaction.
func (s *PostgresStore) CreateUser(ctx context.Context, in CreateUserInput) (User, error) {
	const op = "identity.CreateUser"

	if err := ctx.Err(); err != nil {
		return User{}, err
	}
	p, err := prepareCreate(op, in, s.hasher)
	if err != nil {
		return User{}, err
	}

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{
		IsoLevel:   pgx.ReadCommitted,
		AccessMode: pgx.ReadWrite,
	})
	if err != nil {
		return User{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	u, err := s.insertTx(ctx, tx, op, p)
	if err != nil {
		return User{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return User{}, err
	}
	return u, nil
}

// EnsureAdmin is the idempotent seed path: existing rows are never modified.
func (s *PostgresStore) EnsureAdmin(ctx context.Context, in CreateUserInput) (User, bool, error) {
	const op = "identity.EnsureAdmin"

	if err := ctx.Err(); err != nil {
		return User{}, false, err
	}
	in.Role = RoleAdmin
	p, err := prepareCreate(op, in, s.hasher)
	if err != nil {
		return User{}, false, err
	}

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{
		IsoLevel:   pgx.ReadCommitted,
		AccessMode: pgx.ReadWrite,
	})
	if err != nil {
		return User{}, false, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	existing, err := s.scanUser(tx.QueryRow(ctx,
		`SELECT id, email, email_norm, name, role, created_at
		   FROM `+pgIdent(s.schema, "users")+`
		  WHERE email_norm = $1`,
		p.emailNorm,
	))
	if err == nil {
		return existing, false, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return User{}, false, err
	}

	u, err := s.insertTx(ctx, tx, op, p)
	if err != nil {
		// A concurrent seeder won the race; report its row.
		if IsConflict(err) {
			_ = tx.Rollback(ctx)
			got, gerr := s.GetUserAuthByEmail(ctx, p.email)
			if gerr != nil {
				return User{}, false, gerr
			}
			return got.User, false, nil
		}
		return User{}, false, err
	}
	if err := tx.Commit(ctx); err != nil {
		return User{}, false, err
	}
	return u, true, nil
}

func (s *PostgresStore) insertTx(ctx context.Context, tx pgx.Tx, op string, p preparedUser) (User, error) {
	userID, err := NewULID(p.now)
	if err != nil {
		return User{}, err
	}

	_, err = tx.Exec(ctx,
		`INSERT INTO `+pgIdent(s.schema, "users")+` (id, email, email_norm, name, role, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		userID, p.email, p.emailNorm, p.name, string(p.role), p.now,
	)
	if err != nil {
		if field, ok := pgClassifyUniqueViolation(err); ok {
			return User{}, ConflictError{Op: op, Field: field}
		}
		return User{}, err
	}

	_, err = tx.Exec(ctx,
		`INSERT INTO `+pgIdent(s.schema, "user_credentials")+` (user_id, password_hash, created_at, updated_at)
		 VALUES ($1, $2, $3, $3)`,
		userID, p.hash, p.now,
	)
	if err != nil {
		return User{}, err
	}

	return User{
		ID:        userID,
		Email:     p.email,
		EmailNorm: p.emailNorm,
		Name:      p.name,
		Role:      p.role,
		CreatedAt: p.now,
	}, nil
}

func (s *PostgresStore) GetUserByID(ctx context.Context, id string) (User, error) {
	const op = "identity.GetUserByID"

	id = strings.TrimSpace(id)
	if id == "" {
		return User{}, invalid(op, "missing user_id")
	}
	u, err := s.scanUser(s.pool.QueryRow(ctx,
		`SELECT id, email, email_norm, name, role, created_at
		   FROM `+pgIdent(s.schema, "users")+`
		  WHERE id = $1`,
		id,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return User{}, NotFoundError{Op: op, Resource: "user"}
		}
		return User{}, err
	}
	return u, nil
}

func (s *PostgresStore) GetUserAuthByEmail(ctx context.Context, email string) (UserAuth, error) {
	const op = "identity.GetUserAuthByEmail"

	norm := NormalizeEmail(email)
	if norm == "" {
		return UserAuth{}, invalid(op, "missing email")
	}

	var (
		out  UserAuth
		role string
	)
	err := s.pool.QueryRow(ctx,
		`SELECT u.id, u.email, u.email_norm, u.name, u.role, u.created_at, c.password_hash
		   FROM `+pgIdent(s.schema, "users")+` u
		   JOIN `+pgIdent(s.schema, "user_credentials")+` c ON c.user_id = u.id
		  WHERE u.email_norm = $1`,
		norm,
	).Scan(
		&out.User.ID,
		&out.User.Email,
		&out.User.EmailNorm,
		&out.User.Name,
		&role,
		&out.User.CreatedAt,
		&out.PasswordHash,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return UserAuth{}, NotFoundError{Op: op, Resource: "user"}
		}
		return UserAuth{}, err
	}
	out.User.Role = Role(role)
	return out, nil
}

func (s *PostgresStore) ListUsers(ctx context.Context) ([]User, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, email, email_norm, name, role, created_at
		   FROM `+pgIdent(s.schema, "users")+`
		  ORDER BY created_at ASC, id ASC`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []User
	for rows.Next() {
		u, err := s.scanUser(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

func (s *PostgresStore) ListUserIDsByRole(ctx context.Context, role Role) ([]string, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id FROM `+pgIdent(s.schema, "users")+` WHERE role = $1 ORDER BY created_at ASC, id ASC`,
		string(role),
	)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[string])
}

func (s *PostgresStore) UpdatePasswordHash(ctx context.Context, userID, hash string, now time.Time) error {
	const op = "identity.UpdatePasswordHash"

	if strings.TrimSpace(userID) == "" || strings.TrimSpace(hash) == "" {
		return invalid(op, "missing user_id or hash")
	}
	if now.IsZero() {
		now = time.Now().UTC()
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE `+pgIdent(s.schema, "user_credentials")+`
		    SET password_hash = $2, updated_at = $3
		  WHERE user_id = $1`,
		userID, hash, now,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return NotFoundError{Op: op, Resource: "user"}
	}
	return nil
}

func (s *PostgresStore) DeleteUser(ctx context.Context, userID string) error {
	const op = "identity.DeleteUser"

	if strings.TrimSpace(userID) == "" {
		return invalid(op, "missing user_id")
	}
	tag, err := s.pool.Exec(ctx, `DELETE FROM `+pgIdent(s.schema, "users")+` WHERE id = $1`, userID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return NotFoundError{Op: op, Resource: "user"}
	}
	return nil
}

// DeleteUserCascade locks the account row, refuses admins, then deletes view
// sessions, shares, devices, auth sessions and the account in one transaction.
func (s *PostgresStore) DeleteUserCascade(ctx context.Context, userID string) (Purged, error) {
	const op = "identity.DeleteUserCascade"

	if strings.TrimSpace(userID) == "" {
		return Purged{}, invalid(op, "missing user_id")
	}

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{
		IsoLevel:   pgx.ReadCommitted,
		AccessMode: pgx.ReadWrite,
	})
	if err != nil {
		return Purged{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var role string
	err = tx.QueryRow(ctx,
		`SELECT role FROM `+pgIdent(s.schema, "users")+` WHERE id = $1 FOR UPDATE`,
		userID,
	).Scan(&role)
	if errors.Is(err, pgx.ErrNoRows) {
		return Purged{}, NotFoundError{Op: op, Resource: "user"}
	}
	if err != nil {
		return Purged{}, err
	}
	if Role(role).IsAdmin() {
		return Purged{}, OpError{Op: op, Kind: ErrAdminProtected, Msg: "admin accounts cannot be deleted"}
	}

	// View sessions reference shares, so they go first.
	var out Purged
	for _, step := range []struct {
		table string
		n     *int
	}{
		{"view_sessions", &out.ViewSessions},
		{"shares", &out.Shares},
		{"devices", &out.Devices},
		{"sessions", &out.Sessions},
	} {
		tag, err := tx.Exec(ctx, `DELETE FROM `+pgIdent(s.schema, step.table)+` WHERE user_id = $1`, userID)
		if err != nil {
			return Purged{}, fmt.Errorf("%s: %s: %w", op, step.table, err)
		}
		*step.n = int(tag.RowsAffected())
	}

	if _, err := tx.Exec(ctx, `DELETE FROM `+pgIdent(s.schema, "users")+` WHERE id = $1`, userID); err != nil {
		return Purged{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return Purged{}, err
	}
	return out, nil
}

func (s *PostgresStore) scanUser(row pgx.Row) (User, error) {
	var (
		u    User
		role string
	)
	if err := row.Scan(&u.ID, &u.Email, &u.EmailNorm, &u.Name, &role, &u.CreatedAt); err != nil {
		return User{}, err
	}
	u.Role = Role(role)
	return u, nil
}

// ---- helpers ----

// pgIdent safely quotes a schema-qualified identifier: "schema"."name".
func pgIdent(schema, name string) string {
	return pgx.Identifier{schema, name}.Sanitize()
}

// PgIsForeignKeyViolation reports a 23503 error; other pdfgate stores share it.
func PgIsForeignKeyViolation(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	return pgErr.Code == "23503" // foreign_key_violation
}

// PgIsUniqueViolation reports a 23505 error.
func PgIsUniqueViolation(err error) bool {
	_, ok := pgClassifyUniqueViolation(err)
	return ok
}

func pgClassifyUniqueViolation(err error) (field string, ok bool) {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return "", false
	}
	if pgErr.Code != "23505" { // unique_violation
		return "", false
	}

	// Prefer stable schema constraint names. Fall back to substring matching.
	c := strings.ToLower(strings.TrimSpace(pgErr.ConstraintName))
	switch c {
	case "uq_users_email_norm":
		return "email", true
	case "users_pkey":
		return "id", true
	default:
		if strings.Contains(c, "email") {
			return "email", true
		}
		return "unique", true
	}
}
