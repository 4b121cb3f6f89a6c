package nodes

import (
	"context"

	"github.com/openscholar/platform/internal/server/models"
)

type Repository interface {
	Create(ctx context.Context, node *models.Node) (*models.Node, error)
	GetByID(ctx context.Context, id string) (*models.Node, error)
}
