package store

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

	"shareledger/internal/certificates/models"
	id "shareledger/pkg/domain"
	"shareledger/pkg/platform/sentinel"
	txcontext "shareledger/pkg/platform/tx"
)

const uniqueViolation = "23505"

// PostgresStore persists certificate records in the certificates table. A
// partial unique index on (share_id) WHERE latest keeps one latest version
// per share even when two first uploads race.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const certColumns = `id, owner_id, share_id, file_name, file_size, mime_type, checksum, status,
	reviewed_by, reviewed_at, rejection_reason, version, previous_id, latest, uploaded_at, updated_at`

// AddVersion locks the owner's rows, lets build decide, then supersedes and
// inserts inside one transaction.
func (s *PostgresStore) AddVersion(ctx context.Context, owner id.UserID, shareID id.ShareID, build VersionFunc) (*models.Certificate, error) {
	var created *models.Certificate
	err := txcontext.Run(ctx, s.db, func(ctx context.Context) error {
		conn := txcontext.Conn(ctx, s.db)
		owned, err := s.query(ctx, `SELECT `+certColumns+` FROM certificates WHERE owner_id = $1 FOR UPDATE`, uuid.UUID(owner))
		if err != nil {
			return err
		}
		latest := latestFor(owned, shareID)
		next, err := build(owned, latest)
		if err != nil {
			return err
		}
		if latest != nil {
			if _, err := conn.ExecContext(ctx,
				`UPDATE certificates SET latest = false, updated_at = $2 WHERE id = $1`,
				uuid.UUID(latest.ID), next.UploadedAt); err != nil {
				return fmt.Errorf("supersede certificate: %w", err)
			}
		}
		query := `INSERT INTO certificates (` + certColumns + `)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`
		if _, err := conn.ExecContext(ctx, query, certArgs(next)...); err != nil {
			var pqErr *pq.Error
			if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
				return fmt.Errorf("certificate version: %w", sentinel.ErrConflict)
			}
			return fmt.Errorf("insert certificate: %w", err)
		}
		created = next
		return nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

func (s *PostgresStore) FindByID(ctx context.Context, certID id.CertificateID) (*models.Certificate, error) {
	row := txcontext.Conn(ctx, s.db).QueryRowContext(ctx,
		`SELECT `+certColumns+` FROM certificates WHERE id = $1`, uuid.UUID(certID))
	c, err := scanCertificate(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("certificate not found: %w", sentinel.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("find certificate: %w", err)
	}
	return c, nil
}

// Update locks the row with SELECT ... FOR UPDATE for the duration of fn.
func (s *PostgresStore) Update(ctx context.Context, certID id.CertificateID, fn UpdateFunc) (*models.Certificate, error) {
	var updated *models.Certificate
	err := txcontext.Run(ctx, s.db, func(ctx context.Context) error {
		conn := txcontext.Conn(ctx, s.db)
		row := conn.QueryRowContext(ctx,
			`SELECT `+certColumns+` FROM certificates WHERE id = $1 FOR UPDATE`, uuid.UUID(certID))
		c, err := scanCertificate(row)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("certificate not found: %w", sentinel.ErrNotFound)
		}
		if err != nil {
			return fmt.Errorf("lock certificate: %w", err)
		}
		if err := fn(c); err != nil {
			return err
		}
		if _, err := conn.ExecContext(ctx,
			`UPDATE certificates SET status = $2, reviewed_by = $3, reviewed_at = $4,
			rejection_reason = $5, latest = $6, updated_at = $7 WHERE id = $1`,
			uuid.UUID(c.ID), string(c.Status), nullUserID(c.ReviewedBy), c.ReviewedAt,
			c.RejectionReason, c.Latest, c.UpdatedAt); err != nil {
			return fmt.Errorf("update certificate: %w", err)
		}
		updated = c
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func (s *PostgresStore) List(ctx context.Context, opts ListOptions) ([]*models.Certificate, int, error) {
	if opts.Access.IsEmpty() {
		return []*models.Certificate{}, 0, nil
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
	if opts.ShareID != nil {
		add("share_id = ?", uuid.UUID(*opts.ShareID))
	}
	if opts.Status != "" {
		add("status = ?", string(opts.Status))
	}
	if opts.LatestOnly {
		add("latest = ?", true)
	}
	where := ""
	if len(clauses) > 0 {
		where = " WHERE " + strings.Join(clauses, " AND ")
	}

	var total int
	if err := txcontext.Conn(ctx, s.db).QueryRowContext(ctx,
		`SELECT COUNT(*) FROM certificates`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count certificates: %w", err)
	}
	args = append(args, page.Limit, page.Offset)
	certs, err := s.query(ctx, `SELECT `+certColumns+` FROM certificates`+where+
		` ORDER BY uploaded_at DESC, id ASC LIMIT $`+strconv.Itoa(len(args)-1)+` OFFSET $`+strconv.Itoa(len(args)), args...)
	if err != nil {
		return nil, 0, err
	}
	return certs, total, nil
}

func (s *PostgresStore) ListByOwner(ctx context.Context, owner id.UserID) ([]*models.Certificate, error) {
	return s.query(ctx, `SELECT `+certColumns+` FROM certificates WHERE owner_id = $1
		ORDER BY uploaded_at DESC, id ASC`, uuid.UUID(owner))
}

// Remove deletes the row, relinks a successor, and promotes the predecessor
// of a removed latest version, in one transaction.
func (s *PostgresStore) Remove(ctx context.Context, certID id.CertificateID, now time.Time, check RemoveFunc) (*models.Certificate, error) {
	var removed *models.Certificate
	err := txcontext.Run(ctx, s.db, func(ctx context.Context) error {
		conn := txcontext.Conn(ctx, s.db)
		row := conn.QueryRowContext(ctx,
			`SELECT `+certColumns+` FROM certificates WHERE id = $1 FOR UPDATE`, uuid.UUID(certID))
		c, err := scanCertificate(row)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("certificate not found: %w", sentinel.ErrNotFound)
		}
		if err != nil {
			return fmt.Errorf("lock certificate: %w", err)
		}
		if err := check(c); err != nil {
			return err
		}
		if _, err := conn.ExecContext(ctx,
			`UPDATE certificates SET previous_id = $2, updated_at = $3 WHERE previous_id = $1`,
			uuid.UUID(certID), nullCertID(c.PreviousID), now); err != nil {
			return fmt.Errorf("relink certificate: %w", err)
		}
		if _, err := conn.ExecContext(ctx, `DELETE FROM certificates WHERE id = $1`, uuid.UUID(certID)); err != nil {
			return fmt.Errorf("delete certificate: %w", err)
		}
		if c.Latest && c.PreviousID != nil {
			if _, err := conn.ExecContext(ctx,
				`UPDATE certificates SET latest = true, updated_at = $2 WHERE id = $1`,
				uuid.UUID(*c.PreviousID), now); err != nil {
				return fmt.Errorf("promote certificate: %w", err)
			}
		}
		removed = c
		return nil
	})
	if err != nil {
		return nil, err
	}
	return removed, nil
}

func (s *PostgresStore) query(ctx context.Context, query string, args ...any) ([]*models.Certificate, error) {
	rows, err := txcontext.Conn(ctx, s.db).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query certificates: %w", err)
	}
	defer rows.Close()
	out := []*models.Certificate{}
	for rows.Next() {
		c, err := scanCertificate(rows)
		if err != nil {
			return nil, fmt.Errorf("scan certificate: %w", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate certificates: %w", err)
	}
	return out, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanCertificate(row scanner) (*models.Certificate, error) {
	var (
		c                      models.Certificate
		certID, owner, shareID uuid.UUID
		status                 string
		reviewedBy, previousID uuid.NullUUID
		reviewedAt             sql.NullTime
	)
	err := row.Scan(&certID, &owner, &shareID, &c.File.Name, &c.File.Size, &c.File.MimeType, &c.File.Checksum,
		&status, &reviewedBy, &reviewedAt, &c.RejectionReason, &c.Version, &previousID, &c.Latest,
		&c.UploadedAt, &c.UpdatedAt)
	if err != nil {
		return nil, err
	}
	c.ID = id.CertificateID(certID)
	c.OwnerID = id.UserID(owner)
	c.ShareID = id.ShareID(shareID)
	c.Status = models.Status(status)
	if reviewedBy.Valid {
		v := id.UserID(reviewedBy.UUID)
		c.ReviewedBy = &v
	}
	if reviewedAt.Valid {
		v := reviewedAt.Time
		c.ReviewedAt = &v
	}
	if previousID.Valid {
		v := id.CertificateID(previousID.UUID)
		c.PreviousID = &v
	}
	return &c, nil
}

func certArgs(c *models.Certificate) []any {
	return []any{
		uuid.UUID(c.ID),
		uuid.UUID(c.OwnerID),
		uuid.UUID(c.ShareID),
		c.File.Name,
		c.File.Size,
		c.File.MimeType,
		c.File.Checksum,
		string(c.Status),
		nullUserID(c.ReviewedBy),
		c.ReviewedAt,
		c.RejectionReason,
		c.Version,
		nullCertID(c.PreviousID),
		c.Latest,
		c.UploadedAt,
		c.UpdatedAt,
	}
}

func nullUserID(v *id.UserID) uuid.NullUUID {
	if v == nil {
		return uuid.NullUUID{}
	}
	return uuid.NullUUID{UUID: uuid.UUID(*v), Valid: true}
}

func nullCertID(v *id.CertificateID) uuid.NullUUID {
	if v == nil {
		return uuid.NullUUID{}
	}
	return uuid.NullUUID{UUID: uuid.UUID(*v), Valid: true}
}
