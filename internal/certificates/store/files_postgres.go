package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	id "shareledger/pkg/domain"
	"shareledger/pkg/platform/sentinel"
	txcontext "shareledger/pkg/platform/tx"
)

// PostgresFileStore keeps uploaded bytes in the certificate_files bytea
// table, one row per certificate.
type PostgresFileStore struct {
	db *sql.DB
}

func NewPostgresFileStore(db *sql.DB) *PostgresFileStore {
	return &PostgresFileStore{db: db}
}

func (s *PostgresFileStore) Put(ctx context.Context, certID id.CertificateID, data []byte) error {
	_, err := txcontext.Conn(ctx, s.db).ExecContext(ctx,
		`INSERT INTO certificate_files (certificate_id, content) VALUES ($1, $2)
		ON CONFLICT (certificate_id) DO UPDATE SET content = EXCLUDED.content`,
		uuid.UUID(certID), data)
	if err != nil {
		return fmt.Errorf("store certificate file: %w", err)
	}
	return nil
}

func (s *PostgresFileStore) Get(ctx context.Context, certID id.CertificateID) ([]byte, error) {
	var data []byte
	err := txcontext.Conn(ctx, s.db).QueryRowContext(ctx,
		`SELECT content FROM certificate_files WHERE certificate_id = $1`, uuid.UUID(certID)).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("certificate file not found: %w", sentinel.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("load certificate file: %w", err)
	}
	return data, nil
}

func (s *PostgresFileStore) Delete(ctx context.Context, certID id.CertificateID) error {
	_, err := txcontext.Conn(ctx, s.db).ExecContext(ctx,
		`DELETE FROM certificate_files WHERE certificate_id = $1`, uuid.UUID(certID))
	if err != nil {
		return fmt.Errorf("delete certificate file: %w", err)
	}
	return nil
}
