package nodes

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/openscholar/platform/internal/common"
	"github.com/openscholar/platform/internal/dbx"
	"github.com/openscholar/platform/internal/server/models"
)

// PostgresRepository implements node storage over a dbx.DBTX (*sql.DB or *sql.Tx).
// Contributors and addons live in JSONB columns, marshalled here.
type PostgresRepository struct {
	db dbx.DBTX
}

// NewPostgresRepository constructs a repository bound to the given DBTX.
func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Create inserts a node with its contributor and addon sets.
func (r *PostgresRepository) Create(ctx context.Context, node *models.Node) (*models.Node, error) {
	contributors, err := json.Marshal(node.Contributors)
	if err != nil {
		return nil, fmt.Errorf("marshal contributors: %w", err)
	}
	addons, err := json.Marshal(node.Addons)
	if err != nil {
		return nil, fmt.Errorf("marshal addons: %w", err)
	}

	query := `
		INSERT INTO nodes (id, title, is_public, is_registration, contributors, addons)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at
	`
	err = r.db.QueryRowContext(ctx, query,
		node.ID, node.Title, node.IsPublic, node.IsRegistration, contributors, addons).
		Scan(&node.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return node, nil
}

// GetByID returns the node with the given id. Deleted nodes are treated as
// absent; common.ErrNotFound either way.
func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*models.Node, error) {
	query := `
		SELECT id, title, is_public, is_registration, is_deleted, contributors, addons, created_at
		FROM nodes WHERE id=$1 AND NOT is_deleted
	`
	n := &models.Node{}
	var contributors, addons []byte
	err := r.db.QueryRowContext(ctx, query, id).
		Scan(&n.ID, &n.Title, &n.IsPublic, &n.IsRegistration, &n.IsDeleted, &contributors, &addons, &n.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	if err := json.Unmarshal(contributors, &n.Contributors); err != nil {
		return nil, fmt.Errorf("unmarshal contributors: %w", err)
	}
	if err := json.Unmarshal(addons, &n.Addons); err != nil {
		return nil, fmt.Errorf("unmarshal addons: %w", err)
	}
	return n, nil
}
