// Package provider defines the contract external cloud-storage adapters
// implement so node addons can browse, fetch and push files that live
// outside the platform's own object store.
package provider

import (
	"context"
	"io"
	"time"
)

// FileInfo describes one item in the external store.
type FileInfo struct {
	ID       string
	Name     string
	MimeType string
	Size     int64
	IsFolder bool
}

// Revision is one historical revision of an external file.
type Revision struct {
	ID       string
	Modified time.Time
}

// Provider is a read/write adapter for one external storage account.
type Provider interface {
	// Download streams the file's content. The caller owns the returned
	// reader and must close it.
	Download(ctx context.Context, fileID string) (io.ReadCloser, error)

	// Upload pushes content as a new file under folderID. The bool reports
	// whether the file was created (true) or replaced an existing name.
	Upload(ctx context.Context, folderID, name string, content io.Reader, size int64) (*FileInfo, bool, error)

	// Metadata resolves a file by name within a folder.
	Metadata(ctx context.Context, folderID, name string) (*FileInfo, error)

	// List returns the folder's direct children.
	List(ctx context.Context, folderID string) ([]*FileInfo, error)

	// Delete removes the file.
	Delete(ctx context.Context, fileID string) error

	// Revisions lists the file's revisions, newest first.
	Revisions(ctx context.Context, fileID string) ([]*Revision, error)
}
