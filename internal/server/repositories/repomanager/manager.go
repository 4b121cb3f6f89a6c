package repomanager

import (
	"context"
	"database/sql"

	"github.com/openscholar/platform/internal/dbx"
	"github.com/openscholar/platform/internal/server/repositories/files"
	"github.com/openscholar/platform/internal/server/repositories/nodes"
	"github.com/openscholar/platform/internal/server/repositories/users"
	"github.com/openscholar/platform/internal/server/repositories/wiki"
)

// RepositoryManager hands out repositories bound to a DBTX, so a service can
// run several repositories inside one transaction.
type RepositoryManager interface {
	RunMigrations(context.Context, *sql.DB) error
	Users(db dbx.DBTX) users.Repository
	Nodes(db dbx.DBTX) nodes.Repository
	Files(db dbx.DBTX) files.Repository
	Wiki(db dbx.DBTX) wiki.Repository
}
