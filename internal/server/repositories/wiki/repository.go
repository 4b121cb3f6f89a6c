package wiki

import (
	"context"

	"github.com/openscholar/platform/internal/server/models"
)

// Repository persists wiki pages as an append-only version log keyed by
// (node, key, version). The current content of a page is its highest version.
type Repository interface {
	GetLatest(ctx context.Context, nodeID, key string) (*models.WikiPage, error)
	GetVersion(ctx context.Context, nodeID, key string, version int) (*models.WikiPage, error)
	ListVersions(ctx context.Context, nodeID, key string) ([]*models.WikiPage, error)
	ListKeys(ctx context.Context, nodeID string) ([]string, error)
	Insert(ctx context.Context, page *models.WikiPage) error
	RenameKey(ctx context.Context, nodeID, oldKey, newKey, newName string) error
	DeleteKey(ctx context.Context, nodeID, key string) error
}
