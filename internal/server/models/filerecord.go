package models

import "time"

// Version states of an upload. A version is created PENDING when the upload
// service announces a new upload, and leaves PENDING exactly once: to
// COMPLETE on a success webhook or to FAILED on an error webhook.
const (
	VersionPending  = "pending"
	VersionComplete = "complete"
	VersionFailed   = "failed"
)

// FileRecord is the logical file at (node, path). It owns an ordered,
// append-only list of versions; at most one of them may be pending at any
// time. Records are created lazily on the first upload request for a path
// and are soft-deleted only.
type FileRecord struct {
	ID        int64
	NodeID    string
	Path      string
	Name      string
	IsDeleted bool
	CreatedAt time.Time
}

// FileVersion is one revision of a FileRecord. Index is one-based within
// the record. UploadSignature is the opaque per-attempt token the upload
// service must echo back to resolve or cancel the version; it is consumed
// when the version leaves PENDING.
type FileVersion struct {
	ID              int64
	RecordID        int64
	Index           int
	Status          string
	CreatorID       string
	UploadSignature string
	// Location and Metadata are raw JSON documents reported by the upload
	// service on success; empty until the version completes.
	Location   []byte
	Metadata   []byte
	CreatedAt  time.Time
	ResolvedAt *time.Time
}

// IsPending reports whether the version still awaits its finish webhook.
func (v *FileVersion) IsPending() bool {
	return v.Status == VersionPending
}
