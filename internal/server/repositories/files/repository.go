package files

import (
	"context"

	"github.com/openscholar/platform/internal/server/models"
)

// Repository persists file records and their version history. Callers that
// append or resolve versions must hold the record row lock (LockRecord) so
// transitions for one record are serialized; the partial unique index on
// pending versions backstops the lock if two transactions race anyway.
type Repository interface {
	GetOrCreate(ctx context.Context, nodeID, path, name string) (*models.FileRecord, error)
	GetByPath(ctx context.Context, nodeID, path string) (*models.FileRecord, error)
	ListByNode(ctx context.Context, nodeID string) ([]*models.FileRecord, error)
	LockRecord(ctx context.Context, recordID int64) error
	GetLatestVersion(ctx context.Context, recordID int64) (*models.FileVersion, error)
	GetVersionByIndex(ctx context.Context, recordID int64, idx int) (*models.FileVersion, error)
	ListVersions(ctx context.Context, recordID int64) ([]*models.FileVersion, error)
	CountVersions(ctx context.Context, recordID int64) (int, error)
	SignatureConsumed(ctx context.Context, recordID int64, signature string) (bool, error)
	SignatureConsumedInNode(ctx context.Context, nodeID, signature string) (bool, error)
	InsertVersion(ctx context.Context, v *models.FileVersion) error
	TransitionVersion(ctx context.Context, versionID int64, toStatus string, location, metadata []byte) error
	SoftDeleteRecord(ctx context.Context, recordID int64) error
}
