package core

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/edvin/certgen/internal/model"
)

// DB is the subset of pgxpool.Pool the record store uses.
type DB interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// RecordStore durably keeps certificate records. Get returns nil, nil for an
// unknown id.
type RecordStore interface {
	Save(ctx context.Context, rec *model.CertificateRecord) error
	Get(ctx context.Context, id string) (*model.CertificateRecord, error)
	Ping(ctx context.Context) error
}

// PostgresRecordStore keeps records in the certificate_records table.
type PostgresRecordStore struct {
	db DB
}

func NewPostgresRecordStore(db DB) *PostgresRecordStore {
	return &PostgresRecordStore{db: db}
}

func (s *PostgresRecordStore) Save(ctx context.Context, rec *model.CertificateRecord) error {
	_, err := s.db.Exec(ctx,
		`INSERT INTO certificate_records (certificate_id, status, certificate_type, storage_ref, error, error_kind, created_at, updated_at, completed_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 ON CONFLICT (certificate_id) DO UPDATE SET
		   status = EXCLUDED.status,
		   certificate_type = EXCLUDED.certificate_type,
		   storage_ref = EXCLUDED.storage_ref,
		   error = EXCLUDED.error,
		   error_kind = EXCLUDED.error_kind,
		   updated_at = EXCLUDED.updated_at,
		   completed_at = EXCLUDED.completed_at`,
		rec.CertificateID, rec.Status, rec.CertificateType, rec.StorageRef, rec.Error, rec.ErrorKind,
		rec.CreatedAt, rec.UpdatedAt, rec.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert certificate record %s: %w", rec.CertificateID, err)
	}
	return nil
}

func (s *PostgresRecordStore) Get(ctx context.Context, id string) (*model.CertificateRecord, error) {
	var rec model.CertificateRecord
	err := s.db.QueryRow(ctx,
		`SELECT certificate_id, status, certificate_type, storage_ref, error, error_kind, created_at, updated_at, completed_at
		 FROM certificate_records WHERE certificate_id = $1`, id,
	).Scan(&rec.CertificateID, &rec.Status, &rec.CertificateType, &rec.StorageRef, &rec.Error, &rec.ErrorKind,
		&rec.CreatedAt, &rec.UpdatedAt, &rec.CompletedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get certificate record %s: %w", id, err)
	}
	return &rec, nil
}

func (s *PostgresRecordStore) Ping(ctx context.Context) error {
	var one int
	if err := s.db.QueryRow(ctx, "SELECT 1").Scan(&one); err != nil {
		return fmt.Errorf("ping record store: %w", err)
	}
	return nil
}
