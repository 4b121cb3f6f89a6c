package wiki

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

// PostgresRepository implements wiki page storage over a dbx.DBTX.
type PostgresRepository struct {
	db dbx.DBTX
}

// NewPostgresRepository constructs a repository bound to the given DBTX.
func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const pageColumns = `id, node_id, key, name, version, content, author_id, created_at`

func scanPage(row interface{ Scan(...any) error }) (*models.WikiPage, error) {
	p := &models.WikiPage{}
	err := row.Scan(&p.ID, &p.NodeID, &p.Key, &p.Name, &p.Version, &p.Content, &p.AuthorID, &p.CreatedAt)
	if err != nil {
		return nil, err
	}
	return p, nil
}

// GetLatest returns the newest version of the page, or common.ErrNotFound.
func (r *PostgresRepository) GetLatest(ctx context.Context, nodeID, key string) (*models.WikiPage, error) {
	query := `SELECT ` + pageColumns + ` FROM wiki_pages
		WHERE node_id=$1 AND key=$2 ORDER BY version DESC LIMIT 1`

	p, err := scanPage(r.db.QueryRowContext(ctx, query, nodeID, key))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return p, nil
}

// GetVersion returns one historical version of the page.
func (r *PostgresRepository) GetVersion(ctx context.Context, nodeID, key string, version int) (*models.WikiPage, error) {
	query := `SELECT ` + pageColumns + ` FROM wiki_pages
		WHERE node_id=$1 AND key=$2 AND version=$3`

	p, err := scanPage(r.db.QueryRowContext(ctx, query, nodeID, key, version))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return p, nil
}

// ListVersions returns all versions of the page, newest first.
func (r *PostgresRepository) ListVersions(ctx context.Context, nodeID, key string) ([]*models.WikiPage, error) {
	query := `SELECT ` + pageColumns + ` FROM wiki_pages
		WHERE node_id=$1 AND key=$2 ORDER BY version DESC`

	rows, err := r.db.QueryContext(ctx, query, nodeID, key)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var result []*models.WikiPage
	for rows.Next() {
		p, err := scanPage(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// ListKeys returns the keys of all pages on the node.
func (r *PostgresRepository) ListKeys(ctx context.Context, nodeID string) ([]string, error) {
	query := `SELECT DISTINCT key FROM wiki_pages WHERE node_id=$1 ORDER BY key`

	rows, err := r.db.QueryContext(ctx, query, nodeID)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var result []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, err
		}
		result = append(result, key)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// Insert appends a page version and fills in its id. A concurrent write of
// the same version surfaces as common.ErrPageConflict via the unique key.
func (r *PostgresRepository) Insert(ctx context.Context, page *models.WikiPage) error {
	query := `
		INSERT INTO wiki_pages (node_id, key, name, version, content, author_id)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at
	`
	err := r.db.QueryRowContext(ctx, query,
		page.NodeID, page.Key, page.Name, page.Version, page.Content, page.AuthorID).
		Scan(&page.ID, &page.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return common.ErrPageConflict
		}
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

// RenameKey moves the page's whole version history to a new key and display
// name. common.ErrNotFound when the old key has no versions,
// common.ErrPageConflict when the target key is taken.
func (r *PostgresRepository) RenameKey(ctx context.Context, nodeID, oldKey, newKey, newName string) error {
	query := `UPDATE wiki_pages SET key=$3, name=$4 WHERE node_id=$1 AND key=$2`

	res, err := r.db.ExecContext(ctx, query, nodeID, oldKey, newKey, newName)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return common.ErrPageConflict
		}
		return fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected error: %w", err)
	}
	if n == 0 {
		return common.ErrNotFound
	}
	return nil
}

// DeleteKey removes the page and its whole version history.
func (r *PostgresRepository) DeleteKey(ctx context.Context, nodeID, key string) error {
	query := `DELETE FROM wiki_pages WHERE node_id=$1 AND key=$2`

	res, err := r.db.ExecContext(ctx, query, nodeID, key)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected error: %w", err)
	}
	if n == 0 {
		return common.ErrNotFound
	}
	return nil
}
