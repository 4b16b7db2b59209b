package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	authmodels "shareledger/internal/auth/models"
	"shareledger/internal/users/models"
	id "shareledger/pkg/domain"
	"shareledger/pkg/platform/sentinel"
	txcontext "shareledger/pkg/platform/tx"
)

const uniqueViolation = "23505"

// PostgresStore persists tombstones in the deleted_users table. The account,
// its holdings and its certificates are stored as JSONB documents; the
// credential fields the account hides from JSON go in their own column.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const tombstoneColumns = `id, user_id, email, account, credentials, shares, certificates,
	retired_share_ids, deleted_by, reason, deleted_at, purge_at`

type credentials struct {
	PasswordHash string              `json:"password_hash"`
	Security     authmodels.Security `json:"security"`
}

func (s *PostgresStore) Create(ctx context.Context, d *models.DeletedUser) error {
	args, err := tombstoneArgs(d)
	if err != nil {
		return err
	}
	query := `INSERT INTO deleted_users (` + tombstoneColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`
	if _, err := txcontext.Conn(ctx, s.db).ExecContext(ctx, query, args...); err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return fmt.Errorf("tombstone %s: %w", d.ID, sentinel.ErrConflict)
		}
		return fmt.Errorf("insert tombstone: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindByID(ctx context.Context, tombID id.TombstoneID) (*models.DeletedUser, error) {
	row := txcontext.Conn(ctx, s.db).QueryRowContext(ctx,
		`SELECT `+tombstoneColumns+` FROM deleted_users WHERE id = $1`, uuid.UUID(tombID))
	d, err := scanTombstone(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("deleted user not found: %w", sentinel.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("find tombstone: %w", err)
	}
	return d, nil
}

func (s *PostgresStore) List(ctx context.Context, page id.Page) ([]*models.DeletedUser, int, error) {
	page = page.Normalize()
	conn := txcontext.Conn(ctx, s.db)
	var total int
	if err := conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM deleted_users`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count tombstones: %w", err)
	}
	rows, err := conn.QueryContext(ctx,
		`SELECT `+tombstoneColumns+` FROM deleted_users ORDER BY deleted_at DESC, email ASC LIMIT $1 OFFSET $2`,
		page.Limit, page.Offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list tombstones: %w", err)
	}
	defer rows.Close()

	out := []*models.DeletedUser{}
	for rows.Next() {
		d, err := scanTombstone(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan tombstone: %w", err)
		}
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate tombstones: %w", err)
	}
	return out, total, nil
}

func (s *PostgresStore) Delete(ctx context.Context, tombID id.TombstoneID) error {
	res, err := txcontext.Conn(ctx, s.db).ExecContext(ctx,
		`DELETE FROM deleted_users WHERE id = $1`, uuid.UUID(tombID))
	if err != nil {
		return fmt.Errorf("delete tombstone: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("deleted user not found: %w", sentinel.ErrNotFound)
	}
	return nil
}

func (s *PostgresStore) DeleteExpired(ctx context.Context, now time.Time) (int, error) {
	res, err := txcontext.Conn(ctx, s.db).ExecContext(ctx,
		`DELETE FROM deleted_users WHERE purge_at <= $1`, now)
	if err != nil {
		return 0, fmt.Errorf("purge tombstones: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return int(n), nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanTombstone(row scanner) (*models.DeletedUser, error) {
	var (
		d                                    models.DeletedUser
		tombID, userID, deletedBy            uuid.UUID
		email                                string
		account, creds, shares, certificates []byte
		retired                              []string
	)
	err := row.Scan(&tombID, &userID, &email, &account, &creds, &shares, &certificates,
		pq.Array(&retired), &deletedBy, &d.Reason, &d.DeletedAt, &d.PurgeAt)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(account, &d.User); err != nil {
		return nil, fmt.Errorf("decode account: %w", err)
	}
	var c credentials
	if err := json.Unmarshal(creds, &c); err != nil {
		return nil, fmt.Errorf("decode credentials: %w", err)
	}
	d.User.PasswordHash = c.PasswordHash
	d.User.Security = c.Security
	if err := json.Unmarshal(shares, &d.Shares); err != nil {
		return nil, fmt.Errorf("decode shares: %w", err)
	}
	if err := json.Unmarshal(certificates, &d.Certificates); err != nil {
		return nil, fmt.Errorf("decode certificates: %w", err)
	}
	d.RetiredShareIDs = make([]id.ShareID, 0, len(retired))
	for _, raw := range retired {
		u, err := uuid.Parse(raw)
		if err != nil {
			return nil, fmt.Errorf("decode retired share: %w", err)
		}
		d.RetiredShareIDs = append(d.RetiredShareIDs, id.ShareID(u))
	}
	d.ID = id.TombstoneID(tombID)
	d.User.ID = id.UserID(userID)
	d.DeletedBy = id.UserID(deletedBy)
	return &d, nil
}

func tombstoneArgs(d *models.DeletedUser) ([]any, error) {
	account, err := json.Marshal(d.User)
	if err != nil {
		return nil, fmt.Errorf("encode account: %w", err)
	}
	creds, err := json.Marshal(credentials{PasswordHash: d.User.PasswordHash, Security: d.User.Security})
	if err != nil {
		return nil, fmt.Errorf("encode credentials: %w", err)
	}
	shares, err := json.Marshal(d.Shares)
	if err != nil {
		return nil, fmt.Errorf("encode shares: %w", err)
	}
	certificates, err := json.Marshal(d.Certificates)
	if err != nil {
		return nil, fmt.Errorf("encode certificates: %w", err)
	}
	retired := make([]string, len(d.RetiredShareIDs))
	for i, shareID := range d.RetiredShareIDs {
		retired[i] = shareID.String()
	}
	return []any{
		uuid.UUID(d.ID),
		uuid.UUID(d.User.ID),
		d.User.Email,
		account,
		creds,
		shares,
		certificates,
		pq.Array(retired),
		uuid.UUID(d.DeletedBy),
		d.Reason,
		d.DeletedAt,
		d.PurgeAt,
	}, nil
}
