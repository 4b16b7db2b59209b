package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"shareledger/internal/shares/models"
	id "shareledger/pkg/domain"
	"shareledger/pkg/platform/sentinel"
	txcontext "shareledger/pkg/platform/tx"
)

const uniqueViolation = "23505"

// PostgresStore persists shares in the shares table. Prices are NUMERIC and
// the history is a JSONB array rewritten with each update.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const shareColumns = `id, owner_id, count, price, value, purchase_date, purchase_price,
	assigned_by, active, retired_with_owner, history, created_at, updated_at`

func (s *PostgresStore) Create(ctx context.Context, share *models.Share) error {
	args, err := shareArgs(share)
	if err != nil {
		return err
	}
	query := `INSERT INTO shares (` + shareColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`
	if _, err := txcontext.Conn(ctx, s.db).ExecContext(ctx, query, args...); err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return fmt.Errorf("share %s: %w", share.ID, sentinel.ErrConflict)
		}
		return fmt.Errorf("insert share: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindByID(ctx context.Context, shareID id.ShareID) (*models.Share, error) {
	row := txcontext.Conn(ctx, s.db).QueryRowContext(ctx,
		`SELECT `+shareColumns+` FROM shares WHERE id = $1`, uuid.UUID(shareID))
	share, err := scanShare(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("share not found: %w", sentinel.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("find share: %w", err)
	}
	return share, nil
}

// Update locks the row with SELECT ... FOR UPDATE for the duration of fn.
func (s *PostgresStore) Update(ctx context.Context, shareID id.ShareID, fn UpdateFunc) (*models.Share, error) {
	var updated *models.Share
	err := txcontext.Run(ctx, s.db, func(ctx context.Context) error {
		conn := txcontext.Conn(ctx, s.db)
		row := conn.QueryRowContext(ctx,
			`SELECT `+shareColumns+` FROM shares WHERE id = $1 FOR UPDATE`, uuid.UUID(shareID))
		share, err := scanShare(row)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("share not found: %w", sentinel.ErrNotFound)
		}
		if err != nil {
			return fmt.Errorf("lock share: %w", err)
		}
		if err := fn(share); err != nil {
			return err
		}
		args, err := shareArgs(share)
		if err != nil {
			return err
		}
		query := `UPDATE shares SET owner_id = $2, count = $3, price = $4, value = $5,
			purchase_date = $6, purchase_price = $7, assigned_by = $8, active = $9,
			retired_with_owner = $10, history = $11, updated_at = $12
			WHERE id = $1`
		args = append(args[:11], share.UpdatedAt)
		if _, err := conn.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("update share: %w", err)
		}
		updated = share
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func (s *PostgresStore) List(ctx context.Context, opts ListOptions) ([]*models.Share, int, error) {
	if opts.Access.IsEmpty() {
		return []*models.Share{}, 0, nil
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
		add("owner_id = ?", uuid.UUID(owner))
	}
	if opts.OwnerID != nil {
		add("owner_id = ?", uuid.UUID(*opts.OwnerID))
	}
	if !opts.IncludeInactive {
		add("active = ?", true)
	}
	where := ""
	if len(clauses) > 0 {
		where = " WHERE " + strings.Join(clauses, " AND ")
	}

	conn := txcontext.Conn(ctx, s.db)
	var total int
	if err := conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM shares`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count shares: %w", err)
	}

	args = append(args, page.Limit, page.Offset)
	query := `SELECT ` + shareColumns + ` FROM shares` + where +
		` ORDER BY created_at DESC, id ASC LIMIT $` + strconv.Itoa(len(args)-1) + ` OFFSET $` + strconv.Itoa(len(args))
	rows, err := conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list shares: %w", err)
	}
	defer rows.Close()
	shares, err := scanShares(rows)
	if err != nil {
		return nil, 0, err
	}
	return shares, total, nil
}

func (s *PostgresStore) ListByOwner(ctx context.Context, owner id.UserID, includeInactive bool) ([]*models.Share, error) {
	query := `SELECT ` + shareColumns + ` FROM shares WHERE owner_id = $1`
	if !includeInactive {
		query += ` AND active = TRUE`
	}
	query += ` ORDER BY created_at DESC, id ASC`
	rows, err := txcontext.Conn(ctx, s.db).QueryContext(ctx, query, uuid.UUID(owner))
	if err != nil {
		return nil, fmt.Errorf("list owner shares: %w", err)
	}
	defer rows.Close()
	return scanShares(rows)
}

type scanner interface {
	Scan(dest ...any) error
}

func scanShares(rows *sql.Rows) ([]*models.Share, error) {
	shares := []*models.Share{}
	for rows.Next() {
		share, err := scanShare(rows)
		if err != nil {
			return nil, fmt.Errorf("scan share: %w", err)
		}
		shares = append(shares, share)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate shares: %w", err)
	}
	return shares, nil
}

func scanShare(row scanner) (*models.Share, error) {
	var (
		share          models.Share
		shareID, owner uuid.UUID
		assignedBy     uuid.UUID
		history        []byte
	)
	err := row.Scan(&shareID, &owner, &share.Count, &share.Price, &share.Value, &share.PurchaseDate,
		&share.PurchasePrice, &assignedBy, &share.Active, &share.RetiredWithOwner, &history,
		&share.CreatedAt, &share.UpdatedAt)
	if err != nil {
		return nil, err
	}
	share.ID = id.ShareID(shareID)
	share.OwnerID = id.UserID(owner)
	share.AssignedBy = id.UserID(assignedBy)
	if len(history) > 0 {
		if err := json.Unmarshal(history, &share.History); err != nil {
			return nil, fmt.Errorf("decode share history: %w", err)
		}
	}
	return &share, nil
}

func shareArgs(share *models.Share) ([]any, error) {
	history, err := json.Marshal(share.History)
	if err != nil {
		return nil, fmt.Errorf("marshal share history: %w", err)
	}
	return []any{
		uuid.UUID(share.ID),
		uuid.UUID(share.OwnerID),
		share.Count,
		share.Price,
		share.Value,
		share.PurchaseDate,
		share.PurchasePrice,
		uuid.UUID(share.AssignedBy),
		share.Active,
		share.RetiredWithOwner,
		history,
		share.CreatedAt,
		share.UpdatedAt,
	}, nil
}
