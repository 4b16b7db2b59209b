package user

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"shareledger/internal/auth/models"
	id "shareledger/pkg/domain"
	"shareledger/pkg/platform/sentinel"
	txcontext "shareledger/pkg/platform/tx"
)

const uniqueViolation = "23505"

// PostgresStore persists users in the users table. Email uniqueness is
// enforced by a unique index on lower(email).
type PostgresStore struct {
	db *sql.DB
}

// NewPostgres constructs a PostgreSQL-backed user store.
func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const userColumns = `id, email, name, role, active, password_hash,
	totp_secret, totp_enabled, last_login_at, login_attempts, lockout_until,
	reset_token_hash, reset_token_expiry, email_verify_token, created_at, updated_at`

func (s *PostgresStore) Create(ctx context.Context, u *models.User) error {
	query := `INSERT INTO users (` + userColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`
	_, err := txcontext.Conn(ctx, s.db).ExecContext(ctx, query, userArgs(u)...)
	if err != nil {
		return translateWriteError(err, "insert user")
	}
	return nil
}

func (s *PostgresStore) FindByID(ctx context.Context, userID id.UserID) (*models.User, error) {
	return s.findOne(ctx, `id = $1`, uuid.UUID(userID))
}

func (s *PostgresStore) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	return s.findOne(ctx, `lower(email) = $1`, models.NormalizeEmail(email))
}

func (s *PostgresStore) FindByResetTokenHash(ctx context.Context, digest string) (*models.User, error) {
	if digest == "" {
		return nil, fmt.Errorf("user not found: %w", sentinel.ErrNotFound)
	}
	return s.findOne(ctx, `reset_token_hash = $1`, digest)
}

func (s *PostgresStore) findOne(ctx context.Context, where string, arg any) (*models.User, error) {
	row := txcontext.Conn(ctx, s.db).QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE `+where, arg)
	u, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("user not found: %w", sentinel.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("find user: %w", err)
	}
	return u, nil
}

// Update locks the row with SELECT ... FOR UPDATE for the duration of fn.
func (s *PostgresStore) Update(ctx context.Context, userID id.UserID, fn UpdateFunc) (*models.User, error) {
	var updated *models.User
	err := txcontext.Run(ctx, s.db, func(ctx context.Context) error {
		conn := txcontext.Conn(ctx, s.db)
		row := conn.QueryRowContext(ctx,
			`SELECT `+userColumns+` FROM users WHERE id = $1 FOR UPDATE`, uuid.UUID(userID))
		u, err := scanUser(row)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("user not found: %w", sentinel.ErrNotFound)
		}
		if err != nil {
			return fmt.Errorf("lock user: %w", err)
		}
		if err := fn(u); err != nil {
			return err
		}
		query := `UPDATE users SET email = $2, name = $3, role = $4, active = $5, password_hash = $6,
			totp_secret = $7, totp_enabled = $8, last_login_at = $9, login_attempts = $10, lockout_until = $11,
			reset_token_hash = $12, reset_token_expiry = $13, email_verify_token = $14, updated_at = $15
			WHERE id = $1`
		args := userArgs(u)
		args = append(args[:14], u.UpdatedAt)
		if _, err := conn.ExecContext(ctx, query, args...); err != nil {
			return translateWriteError(err, "update user")
		}
		updated = u
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func (s *PostgresStore) List(ctx context.Context, opts ListOptions) ([]*models.User, int, error) {
	if opts.Access.IsEmpty() {
		return []*models.User{}, 0, nil
	}
	page := opts.Page.Normalize()

	var (
		clauses []string
		args    []any
	)
	add := func(clause string, arg any) {
		args = append(args, arg)
		clauses = append(clauses, strings.ReplaceAll(clause, "?", "$"+strconv.Itoa(len(args))))
	}
	if owner, ok := opts.Access.Owner(); ok {
		add("id = ?", uuid.UUID(owner))
	}
	if opts.Role != "" {
		add("role = ?", string(opts.Role))
	}
	if opts.Active != nil {
		add("active = ?", *opts.Active)
	}
	if opts.Search != "" {
		add("(email ILIKE ? OR name ILIKE ?)", "%"+escapeLike(opts.Search)+"%")
	}
	where := ""
	if len(clauses) > 0 {
		where = " WHERE " + strings.Join(clauses, " AND ")
	}

	conn := txcontext.Conn(ctx, s.db)
	var total int
	if err := conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM users`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count users: %w", err)
	}

	args = append(args, page.Limit, page.Offset)
	query := `SELECT ` + userColumns + ` FROM users` + where +
		` ORDER BY created_at DESC, email ASC LIMIT $` + strconv.Itoa(len(args)-1) + ` OFFSET $` + strconv.Itoa(len(args))
	rows, err := conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	users := []*models.User{}
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan user: %w", err)
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate users: %w", err)
	}
	return users, total, nil
}

func (s *PostgresStore) Delete(ctx context.Context, userID id.UserID) error {
	res, err := txcontext.Conn(ctx, s.db).ExecContext(ctx, `DELETE FROM users WHERE id = $1`, uuid.UUID(userID))
	if err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("user not found: %w", sentinel.ErrNotFound)
	}
	return nil
}

func (s *PostgresStore) Lookup(ctx context.Context, ids []id.UserID) (map[id.UserID]models.User, error) {
	out := make(map[id.UserID]models.User, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	raw := make([]string, len(ids))
	for i, userID := range ids {
		raw[i] = userID.String()
	}
	rows, err := txcontext.Conn(ctx, s.db).QueryContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = ANY($1::uuid[])`, pq.Array(raw))
	if err != nil {
		return nil, fmt.Errorf("lookup users: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		out[u.ID] = *u
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanUser(row scanner) (*models.User, error) {
	var (
		u                           models.User
		userID                      uuid.UUID
		role                        string
		totpSecret, resetHash, verf sql.NullString
		lastLogin, lockout, resetEx sql.NullTime
	)
	err := row.Scan(&userID, &u.Email, &u.Name, &role, &u.Active, &u.PasswordHash,
		&totpSecret, &u.Security.TOTPEnabled, &lastLogin, &u.Security.LoginAttempts, &lockout,
		&resetHash, &resetEx, &verf, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return nil, err
	}
	u.ID = id.UserID(userID)
	u.Role = id.Role(role)
	u.Security.TOTPSecret = totpSecret.String
	u.Security.ResetTokenHash = resetHash.String
	u.Security.EmailVerifyToken = verf.String
	u.Security.LastLoginAt = timePtr(lastLogin)
	u.Security.LockoutUntil = timePtr(lockout)
	u.Security.ResetTokenExpiry = timePtr(resetEx)
	return &u, nil
}

func userArgs(u *models.User) []any {
	return []any{
		uuid.UUID(u.ID),
		u.Email,
		u.Name,
		string(u.Role),
		u.Active,
		u.PasswordHash,
		nullString(u.Security.TOTPSecret),
		u.Security.TOTPEnabled,
		u.Security.LastLoginAt,
		u.Security.LoginAttempts,
		u.Security.LockoutUntil,
		nullString(u.Security.ResetTokenHash),
		u.Security.ResetTokenExpiry,
		nullString(u.Security.EmailVerifyToken),
		u.CreatedAt,
		u.UpdatedAt,
	}
}

func translateWriteError(err error, op string) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
		return fmt.Errorf("%s: %w", op, sentinel.ErrConflict)
	}
	return fmt.Errorf("%s: %w", op, err)
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
