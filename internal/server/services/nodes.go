package services

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/openscholar/platform/internal/server/models"
	"github.com/openscholar/platform/internal/server/repositories/repomanager"
)

// NodeService loads and creates projects. Contributor management beyond
// creation is handled elsewhere; addons and permissions are read-mostly here.
type NodeService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
}

func NewNodeService(db *sql.DB, m repomanager.RepositoryManager) *NodeService {
	return &NodeService{db: db, repomanager: m}
}

func (s *NodeService) GetByID(ctx context.Context, id string) (*models.Node, error) {
	return s.repomanager.Nodes(s.db).GetByID(ctx, id)
}

// Create sets up a node with its creator as admin and the default addons.
func (s *NodeService) Create(ctx context.Context, id, title, creatorID string) (*models.Node, error) {
	node := &models.Node{
		ID:           id,
		Title:        title,
		Contributors: map[string]string{creatorID: models.PermAdmin},
		Addons:       []string{"osfstorage", "wiki"},
	}

	node, err := s.repomanager.Nodes(s.db).Create(ctx, node)
	if err != nil {
		return nil, fmt.Errorf("error creating node: %w", err)
	}
	return node, nil
}
