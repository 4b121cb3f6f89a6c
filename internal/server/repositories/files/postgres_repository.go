package files

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/openscholar/platform/internal/common"
	"github.com/openscholar/platform/internal/dbx"
	"github.com/openscholar/platform/internal/server/models"
)

// name of the partial unique index that forbids two pending versions on one record
const pendingUniqueConstraint = "uq_file_versions_pending"

// PostgresRepository implements file storage over a dbx.DBTX (*sql.DB or *sql.Tx).
type PostgresRepository struct {
	db dbx.DBTX
}

// NewPostgresRepository constructs a repository bound to the given DBTX.
func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const versionColumns = `id, record_id, idx, status, creator_id, upload_signature, location, metadata, created_at, resolved_at`

func scanVersion(row interface{ Scan(...any) error }) (*models.FileVersion, error) {
	v := &models.FileVersion{}
	err := row.Scan(&v.ID, &v.RecordID, &v.Index, &v.Status, &v.CreatorID,
		&v.UploadSignature, &v.Location, &v.Metadata, &v.CreatedAt, &v.ResolvedAt)
	if err != nil {
		return nil, err
	}
	return v, nil
}

// GetOrCreate returns the record at (nodeID, path), creating an empty one on
// first reference. Idempotent.
func (r *PostgresRepository) GetOrCreate(ctx context.Context, nodeID, path, name string) (*models.FileRecord, error) {
	query := `
		INSERT INTO file_records (node_id, path, name)
		VALUES ($1, $2, $3)
		ON CONFLICT (node_id, path) DO NOTHING
	`
	if _, err := r.db.ExecContext(ctx, query, nodeID, path, name); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return r.GetByPath(ctx, nodeID, path)
}

// GetByPath returns the record at (nodeID, path) whether or not it is
// soft-deleted; common.ErrNotFound when no record exists.
func (r *PostgresRepository) GetByPath(ctx context.Context, nodeID, path string) (*models.FileRecord, error) {
	query := `SELECT id, node_id, path, name, is_deleted, created_at FROM file_records
		WHERE node_id=$1 AND path=$2`

	rec := &models.FileRecord{}
	err := r.db.QueryRowContext(ctx, query, nodeID, path).
		Scan(&rec.ID, &rec.NodeID, &rec.Path, &rec.Name, &rec.IsDeleted, &rec.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return rec, nil
}

// ListByNode returns the node's non-deleted records ordered by path.
func (r *PostgresRepository) ListByNode(ctx context.Context, nodeID string) ([]*models.FileRecord, error) {
	query := `SELECT id, node_id, path, name, is_deleted, created_at FROM file_records
		WHERE node_id=$1 AND NOT is_deleted ORDER BY path`

	rows, err := r.db.QueryContext(ctx, query, nodeID)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var result []*models.FileRecord
	for rows.Next() {
		rec := &models.FileRecord{}
		if err := rows.Scan(&rec.ID, &rec.NodeID, &rec.Path, &rec.Name, &rec.IsDeleted, &rec.CreatedAt); err != nil {
			return nil, err
		}
		result = append(result, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// LockRecord takes a row lock on the record, serializing version transitions
// for it. Must run inside a transaction.
func (r *PostgresRepository) LockRecord(ctx context.Context, recordID int64) error {
	query := `SELECT id FROM file_records WHERE id=$1 FOR UPDATE`

	var id int64
	err := r.db.QueryRowContext(ctx, query, recordID).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return common.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

// GetLatestVersion returns the record's newest version, or common.ErrNotFound
// when the record has none.
func (r *PostgresRepository) GetLatestVersion(ctx context.Context, recordID int64) (*models.FileVersion, error) {
	query := `SELECT ` + versionColumns + ` FROM file_versions
		WHERE record_id=$1 ORDER BY idx DESC LIMIT 1`

	v, err := scanVersion(r.db.QueryRowContext(ctx, query, recordID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return v, nil
}

// GetVersionByIndex returns the version at the one-based index.
func (r *PostgresRepository) GetVersionByIndex(ctx context.Context, recordID int64, idx int) (*models.FileVersion, error) {
	query := `SELECT ` + versionColumns + ` FROM file_versions
		WHERE record_id=$1 AND idx=$2`

	v, err := scanVersion(r.db.QueryRowContext(ctx, query, recordID, idx))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return v, nil
}

// ListVersions returns all versions of the record ordered by index ascending.
func (r *PostgresRepository) ListVersions(ctx context.Context, recordID int64) ([]*models.FileVersion, error) {
	query := `SELECT ` + versionColumns + ` FROM file_versions
		WHERE record_id=$1 ORDER BY idx`

	rows, err := r.db.QueryContext(ctx, query, recordID)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var result []*models.FileVersion
	for rows.Next() {
		v, err := scanVersion(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, v)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// CountVersions returns the number of versions of the record.
func (r *PostgresRepository) CountVersions(ctx context.Context, recordID int64) (int, error) {
	query := `SELECT count(*) FROM file_versions WHERE record_id=$1`

	var n int
	if err := r.db.QueryRowContext(ctx, query, recordID).Scan(&n); err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	return n, nil
}

// SignatureConsumed reports whether the signature was already used to resolve
// a version of this record.
func (r *PostgresRepository) SignatureConsumed(ctx context.Context, recordID int64, signature string) (bool, error) {
	query := `SELECT EXISTS (
		SELECT 1 FROM file_versions
		WHERE record_id=$1 AND upload_signature=$2 AND status <> 'pending'
	)`

	var consumed bool
	if err := r.db.QueryRowContext(ctx, query, recordID, signature).Scan(&consumed); err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}
	return consumed, nil
}

// SignatureConsumedInNode is the strict-scope variant of SignatureConsumed:
// it checks every record of the node.
func (r *PostgresRepository) SignatureConsumedInNode(ctx context.Context, nodeID, signature string) (bool, error) {
	query := `SELECT EXISTS (
		SELECT 1 FROM file_versions v
		JOIN file_records r ON r.id = v.record_id
		WHERE r.node_id=$1 AND v.upload_signature=$2 AND v.status <> 'pending'
	)`

	var consumed bool
	if err := r.db.QueryRowContext(ctx, query, nodeID, signature).Scan(&consumed); err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}
	return consumed, nil
}

// InsertVersion appends a version and fills in its id. A concurrent pending
// version on the same record surfaces as common.ErrPathLocked via the partial
// unique index.
func (r *PostgresRepository) InsertVersion(ctx context.Context, v *models.FileVersion) error {
	query := `
		INSERT INTO file_versions (record_id, idx, status, creator_id, upload_signature, location, metadata)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at
	`
	err := r.db.QueryRowContext(ctx, query,
		v.RecordID, v.Index, v.Status, v.CreatorID, v.UploadSignature, v.Location, v.Metadata).
		Scan(&v.ID, &v.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" && pgErr.ConstraintName == pendingUniqueConstraint {
			return common.ErrPathLocked
		}
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

// TransitionVersion moves a version out of pending into toStatus, recording
// location, metadata and the resolution time. common.ErrVersionNotPending
// when the version was already resolved.
func (r *PostgresRepository) TransitionVersion(ctx context.Context, versionID int64, toStatus string, location, metadata []byte) error {
	query := `
		UPDATE file_versions
		SET status=$2, location=$3, metadata=$4, resolved_at=now()
		WHERE id=$1 AND status='pending'
	`
	res, err := r.db.ExecContext(ctx, query, versionID, toStatus, location, metadata)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected error: %w", err)
	}
	switch n {
	case 1:
		return nil
	case 0:
		return common.ErrVersionNotPending
	default:
		return fmt.Errorf("unexpected rows affected: %d", n)
	}
}

// SoftDeleteRecord marks the record deleted. common.ErrNotFound when it is
// unknown or already deleted.
func (r *PostgresRepository) SoftDeleteRecord(ctx context.Context, recordID int64) error {
	query := `UPDATE file_records SET is_deleted=TRUE WHERE id=$1 AND NOT is_deleted`

	res, err := r.db.ExecContext(ctx, query, recordID)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected error: %w", err)
	}
	switch n {
	case 1:
		return nil
	case 0:
		return common.ErrNotFound
	default:
		return fmt.Errorf("unexpected rows affected: %d", n)
	}
}
