package services

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sort"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/openscholar/platform/internal/common"
	"github.com/openscholar/platform/internal/dbx"
	"github.com/openscholar/platform/internal/logging"
	sc "github.com/openscholar/platform/internal/server/config"
	"github.com/openscholar/platform/internal/server/models"
	"github.com/openscholar/platform/internal/server/repositories/files"
	"github.com/openscholar/platform/internal/server/repositories/nodes"
	"github.com/openscholar/platform/internal/server/repositories/repomanager"
	"github.com/openscholar/platform/internal/server/repositories/users"
	"github.com/openscholar/platform/internal/server/repositories/wiki"
)

// fakeFilesRepo is an in-memory files.Repository. It mirrors the database's
// behavior for the two constraints the service leans on: the partial unique
// index on pending versions and the status guard on transitions.
type fakeFilesRepo struct {
	records   map[string]*models.FileRecord
	versions  map[int64][]*models.FileVersion
	nextRecID int64
	nextVerID int64
}

func newFakeFilesRepo() *fakeFilesRepo {
	return &fakeFilesRepo{
		records:  map[string]*models.FileRecord{},
		versions: map[int64][]*models.FileVersion{},
	}
}

func recKey(nodeID, path string) string { return nodeID + "\x00" + path }

func (f *fakeFilesRepo) GetOrCreate(ctx context.Context, nodeID, path, name string) (*models.FileRecord, error) {
	if rec, ok := f.records[recKey(nodeID, path)]; ok {
		return rec, nil
	}
	f.nextRecID++
	rec := &models.FileRecord{ID: f.nextRecID, NodeID: nodeID, Path: path, Name: name, CreatedAt: time.Now()}
	f.records[recKey(nodeID, path)] = rec
	return rec, nil
}

func (f *fakeFilesRepo) GetByPath(ctx context.Context, nodeID, path string) (*models.FileRecord, error) {
	if rec, ok := f.records[recKey(nodeID, path)]; ok {
		return rec, nil
	}
	return nil, common.ErrNotFound
}

func (f *fakeFilesRepo) ListByNode(ctx context.Context, nodeID string) ([]*models.FileRecord, error) {
	var out []*models.FileRecord
	for _, rec := range f.records {
		if rec.NodeID == nodeID && !rec.IsDeleted {
			out = append(out, rec)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out, nil
}

func (f *fakeFilesRepo) LockRecord(ctx context.Context, recordID int64) error {
	for _, rec := range f.records {
		if rec.ID == recordID {
			return nil
		}
	}
	return common.ErrNotFound
}

func (f *fakeFilesRepo) GetLatestVersion(ctx context.Context, recordID int64) (*models.FileVersion, error) {
	vs := f.versions[recordID]
	if len(vs) == 0 {
		return nil, common.ErrNotFound
	}
	cp := *vs[len(vs)-1]
	return &cp, nil
}

func (f *fakeFilesRepo) GetVersionByIndex(ctx context.Context, recordID int64, idx int) (*models.FileVersion, error) {
	for _, v := range f.versions[recordID] {
		if v.Index == idx {
			cp := *v
			return &cp, nil
		}
	}
	return nil, common.ErrNotFound
}

func (f *fakeFilesRepo) ListVersions(ctx context.Context, recordID int64) ([]*models.FileVersion, error) {
	var out []*models.FileVersion
	for _, v := range f.versions[recordID] {
		cp := *v
		out = append(out, &cp)
	}
	return out, nil
}

func (f *fakeFilesRepo) CountVersions(ctx context.Context, recordID int64) (int, error) {
	return len(f.versions[recordID]), nil
}

func (f *fakeFilesRepo) SignatureConsumed(ctx context.Context, recordID int64, signature string) (bool, error) {
	for _, v := range f.versions[recordID] {
		if v.UploadSignature == signature && v.Status != models.VersionPending {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeFilesRepo) SignatureConsumedInNode(ctx context.Context, nodeID, signature string) (bool, error) {
	for _, rec := range f.records {
		if rec.NodeID != nodeID {
			continue
		}
		consumed, _ := f.SignatureConsumed(ctx, rec.ID, signature)
		if consumed {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeFilesRepo) InsertVersion(ctx context.Context, v *models.FileVersion) error {
	for _, existing := range f.versions[v.RecordID] {
		if existing.Status == models.VersionPending {
			return common.ErrPathLocked
		}
	}
	f.nextVerID++
	v.ID = f.nextVerID
	v.CreatedAt = time.Now()
	cp := *v
	f.versions[v.RecordID] = append(f.versions[v.RecordID], &cp)
	return nil
}

func (f *fakeFilesRepo) TransitionVersion(ctx context.Context, versionID int64, toStatus string, location, metadata []byte) error {
	for _, vs := range f.versions {
		for _, v := range vs {
			if v.ID != versionID {
				continue
			}
			if v.Status != models.VersionPending {
				return common.ErrVersionNotPending
			}
			now := time.Now()
			v.Status = toStatus
			v.Location = location
			v.Metadata = metadata
			v.ResolvedAt = &now
			return nil
		}
	}
	return common.ErrVersionNotPending
}

func (f *fakeFilesRepo) SoftDeleteRecord(ctx context.Context, recordID int64) error {
	for _, rec := range f.records {
		if rec.ID == recordID && !rec.IsDeleted {
			rec.IsDeleted = true
			return nil
		}
	}
	return common.ErrNotFound
}

// setCreated backdates a version, for lease expiry tests.
func (f *fakeFilesRepo) setCreated(recordID int64, idx int, at time.Time) {
	for _, v := range f.versions[recordID] {
		if v.Index == idx {
			v.CreatedAt = at
		}
	}
}

func (f *fakeFilesRepo) pendingCount(recordID int64) int {
	n := 0
	for _, v := range f.versions[recordID] {
		if v.Status == models.VersionPending {
			n++
		}
	}
	return n
}

type fakeManager struct {
	files *fakeFilesRepo
	users *fakeUsersRepo
	nodes *fakeNodesRepo
	wiki  *fakeWikiRepo
}

func (m *fakeManager) RunMigrations(ctx context.Context, db *sql.DB) error { return nil }

func (m *fakeManager) Users(db dbx.DBTX) users.Repository {
	if m.users == nil {
		return nil
	}
	return m.users
}

func (m *fakeManager) Nodes(db dbx.DBTX) nodes.Repository {
	if m.nodes == nil {
		return nil
	}
	return m.nodes
}

func (m *fakeManager) Files(db dbx.DBTX) files.Repository {
	if m.files == nil {
		return nil
	}
	return m.files
}

func (m *fakeManager) Wiki(db dbx.DBTX) wiki.Repository {
	if m.wiki == nil {
		return nil
	}
	return m.wiki
}

var _ repomanager.RepositoryManager = (*fakeManager)(nil)

func quietLogger() logging.Logger {
	return logging.NewSlogLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func newStorageFixture(t *testing.T) (*StorageService, *fakeFilesRepo, *sc.Config) {
	t.Helper()

	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	// lifecycle calls open short transactions; allow a generous number in
	// any order, with rollbacks on error paths
	mock.MatchExpectationsInOrder(false)
	for i := 0; i < 32; i++ {
		mock.ExpectBegin()
		mock.ExpectCommit()
		mock.ExpectRollback()
	}

	cfg := &sc.Config{}
	cfg.LoadDefaults()

	repo := newFakeFilesRepo()
	svc := NewStorageService(db, &fakeManager{files: repo}, cfg, quietLogger())
	return svc, repo, cfg
}

func TestUploadRoundTrip(t *testing.T) {
	svc, repo, _ := newStorageFixture(t)
	ctx := context.Background()

	v, err := svc.StartUpload(ctx, "node1", "/paper.pdf", "paper.pdf", "u-1", "t1")
	if err != nil {
		t.Fatalf("StartUpload error: %v", err)
	}
	if v.Index != 1 || !v.IsPending() {
		t.Fatalf("unexpected version: %+v", v)
	}

	loc := json.RawMessage(`{"service":"s3","bucket":"osfstorage","object":"L"}`)
	meta := json.RawMessage(`{"size":1024}`)
	if err := svc.ResolveUpload(ctx, "node1", "/paper.pdf", "t1", loc, meta); err != nil {
		t.Fatalf("ResolveUpload error: %v", err)
	}

	got, err := svc.FindVersion(ctx, "node1", "/paper.pdf", "1")
	if err != nil {
		t.Fatalf("FindVersion error: %v", err)
	}
	if got.Status != models.VersionComplete {
		t.Fatalf("expected complete, got %q", got.Status)
	}
	if string(got.Location) != string(loc) || string(got.Metadata) != string(meta) {
		t.Fatalf("location/metadata not preserved: %s %s", got.Location, got.Metadata)
	}
	if repo.pendingCount(got.RecordID) != 0 {
		t.Fatal("pending version left behind")
	}
}

func TestStartUpload_PathLocked(t *testing.T) {
	svc, repo, _ := newStorageFixture(t)
	ctx := context.Background()

	if _, err := svc.StartUpload(ctx, "node1", "/paper.pdf", "paper.pdf", "u-1", "t1"); err != nil {
		t.Fatalf("StartUpload error: %v", err)
	}

	_, err := svc.StartUpload(ctx, "node1", "/paper.pdf", "paper.pdf", "u-2", "t2")
	if !errors.Is(err, common.ErrPathLocked) {
		t.Fatalf("expected ErrPathLocked, got %v", err)
	}

	rec, _ := repo.GetByPath(ctx, "node1", "/paper.pdf")
	if n, _ := repo.CountVersions(ctx, rec.ID); n != 1 {
		t.Fatalf("version list mutated: %d versions", n)
	}
	if repo.pendingCount(rec.ID) != 1 {
		t.Fatal("expected exactly one pending version")
	}
}

func TestCancel_WrongSignature(t *testing.T) {
	svc, _, _ := newStorageFixture(t)
	ctx := context.Background()

	if _, err := svc.StartUpload(ctx, "node1", "/paper.pdf", "paper.pdf", "u-1", "t1"); err != nil {
		t.Fatalf("StartUpload error: %v", err)
	}

	err := svc.CancelUpload(ctx, "node1", "/paper.pdf", "wrong")
	if !errors.Is(err, common.ErrSignatureMismatch) {
		t.Fatalf("expected ErrSignatureMismatch, got %v", err)
	}

	got, err := svc.FindVersion(ctx, "node1", "/paper.pdf", VersionLatest)
	if err != nil {
		t.Fatalf("FindVersion error: %v", err)
	}
	if !got.IsPending() {
		t.Fatalf("version no longer pending: %q", got.Status)
	}
}

func TestResolve_AfterCancel(t *testing.T) {
	svc, _, _ := newStorageFixture(t)
	ctx := context.Background()

	if _, err := svc.StartUpload(ctx, "node1", "/paper.pdf", "paper.pdf", "u-1", "t1"); err != nil {
		t.Fatalf("StartUpload error: %v", err)
	}
	if err := svc.CancelUpload(ctx, "node1", "/paper.pdf", "t1"); err != nil {
		t.Fatalf("CancelUpload error: %v", err)
	}

	err := svc.ResolveUpload(ctx, "node1", "/paper.pdf", "t1", nil, nil)
	if !errors.Is(err, common.ErrVersionNotPending) {
		t.Fatalf("expected ErrVersionNotPending, got %v", err)
	}
}

func TestStartUpload_SignatureReplay(t *testing.T) {
	svc, _, _ := newStorageFixture(t)
	ctx := context.Background()

	if _, err := svc.StartUpload(ctx, "node1", "/paper.pdf", "paper.pdf", "u-1", "t1"); err != nil {
		t.Fatalf("StartUpload error: %v", err)
	}
	if err := svc.ResolveUpload(ctx, "node1", "/paper.pdf", "t1", nil, nil); err != nil {
		t.Fatalf("ResolveUpload error: %v", err)
	}

	_, err := svc.StartUpload(ctx, "node1", "/paper.pdf", "paper.pdf", "u-1", "t1")
	if !errors.Is(err, common.ErrSignatureConsumed) {
		t.Fatalf("expected ErrSignatureConsumed, got %v", err)
	}
}

func TestStartUpload_StrictSignatureScope(t *testing.T) {
	svc, _, cfg := newStorageFixture(t)
	ctx := context.Background()

	if _, err := svc.StartUpload(ctx, "node1", "/a.txt", "a.txt", "u-1", "t1"); err != nil {
		t.Fatalf("StartUpload error: %v", err)
	}
	if err := svc.ResolveUpload(ctx, "node1", "/a.txt", "t1", nil, nil); err != nil {
		t.Fatalf("ResolveUpload error: %v", err)
	}

	// default scope: reuse on another path of the same node is allowed
	if _, err := svc.StartUpload(ctx, "node1", "/b.txt", "b.txt", "u-1", "t1"); err != nil {
		t.Fatalf("cross-path reuse rejected with scope off: %v", err)
	}
	if err := svc.CancelUpload(ctx, "node1", "/b.txt", "t1"); err != nil {
		t.Fatalf("CancelUpload error: %v", err)
	}

	cfg.StrictSignatureScope = true
	_, err := svc.StartUpload(ctx, "node1", "/c.txt", "c.txt", "u-1", "t1")
	if !errors.Is(err, common.ErrSignatureConsumed) {
		t.Fatalf("expected ErrSignatureConsumed with strict scope, got %v", err)
	}
}

func TestStartUpload_LeaseExpiryReclaimsPath(t *testing.T) {
	svc, repo, cfg := newStorageFixture(t)
	ctx := context.Background()

	v, err := svc.StartUpload(ctx, "node1", "/paper.pdf", "paper.pdf", "u-1", "t1")
	if err != nil {
		t.Fatalf("StartUpload error: %v", err)
	}
	repo.setCreated(v.RecordID, v.Index, time.Now().Add(-2*cfg.PendingLeaseDuration))

	v2, err := svc.StartUpload(ctx, "node1", "/paper.pdf", "paper.pdf", "u-2", "t2")
	if err != nil {
		t.Fatalf("expected reclaim after lease expiry, got %v", err)
	}
	if v2.Index != 2 {
		t.Fatalf("unexpected index: %d", v2.Index)
	}

	first, _ := repo.GetVersionByIndex(ctx, v.RecordID, 1)
	if first.Status != models.VersionFailed {
		t.Fatalf("expired pending not failed: %q", first.Status)
	}
	if repo.pendingCount(v.RecordID) != 1 {
		t.Fatal("expected exactly one pending version after reclaim")
	}
}

func TestStartUpload_LeaseDisabled(t *testing.T) {
	svc, repo, cfg := newStorageFixture(t)
	cfg.PendingLeaseDuration = 0
	ctx := context.Background()

	v, err := svc.StartUpload(ctx, "node1", "/paper.pdf", "paper.pdf", "u-1", "t1")
	if err != nil {
		t.Fatalf("StartUpload error: %v", err)
	}
	repo.setCreated(v.RecordID, v.Index, time.Now().Add(-24*time.Hour))

	_, err = svc.StartUpload(ctx, "node1", "/paper.pdf", "paper.pdf", "u-2", "t2")
	if !errors.Is(err, common.ErrPathLocked) {
		t.Fatalf("expected ErrPathLocked with lease disabled, got %v", err)
	}
}

func TestGateVersion(t *testing.T) {
	svc, _, _ := newStorageFixture(t)

	if err := svc.GateVersion(&models.FileVersion{Status: models.VersionComplete}); err != nil {
		t.Fatalf("complete version gated: %v", err)
	}
	if err := svc.GateVersion(&models.FileVersion{Status: models.VersionPending}); !errors.Is(err, common.ErrUploadPending) {
		t.Fatalf("expected ErrUploadPending, got %v", err)
	}
	if err := svc.GateVersion(&models.FileVersion{Status: models.VersionFailed}); !errors.Is(err, common.ErrUploadFailed) {
		t.Fatalf("expected ErrUploadFailed, got %v", err)
	}
}

func TestFindVersion_Specifiers(t *testing.T) {
	svc, _, _ := newStorageFixture(t)
	ctx := context.Background()

	for _, token := range []string{"t1", "t2"} {
		if _, err := svc.StartUpload(ctx, "node1", "/paper.pdf", "paper.pdf", "u-1", token); err != nil {
			t.Fatalf("StartUpload error: %v", err)
		}
		if err := svc.ResolveUpload(ctx, "node1", "/paper.pdf", token, nil, nil); err != nil {
			t.Fatalf("ResolveUpload error: %v", err)
		}
	}

	tests := []struct {
		spec    string
		wantIdx int
		wantErr error
	}{
		{VersionLatest, 2, nil},
		{"1", 1, nil},
		{"2", 2, nil},
		{"0", 0, common.ErrInvalidVersion},
		{"-1", 0, common.ErrInvalidVersion},
		{"two", 0, common.ErrInvalidVersion},
		{"99", 0, common.ErrNotFound},
	}
	for _, tt := range tests {
		v, err := svc.FindVersion(ctx, "node1", "/paper.pdf", tt.spec)
		if tt.wantErr != nil {
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("spec %q: expected %v, got %v", tt.spec, tt.wantErr, err)
			}
			continue
		}
		if err != nil {
			t.Fatalf("spec %q: unexpected error: %v", tt.spec, err)
		}
		if v.Index != tt.wantIdx {
			t.Fatalf("spec %q: index %d, want %d", tt.spec, v.Index, tt.wantIdx)
		}
	}
}

func TestFindVersion_UnknownPath(t *testing.T) {
	svc, _, _ := newStorageFixture(t)

	_, err := svc.FindVersion(context.Background(), "node1", "/ghost", VersionLatest)
	if !errors.Is(err, common.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestDeleteRecord_HidesFromReads(t *testing.T) {
	svc, _, _ := newStorageFixture(t)
	ctx := context.Background()

	if _, err := svc.StartUpload(ctx, "node1", "/paper.pdf", "paper.pdf", "u-1", "t1"); err != nil {
		t.Fatalf("StartUpload error: %v", err)
	}
	if err := svc.ResolveUpload(ctx, "node1", "/paper.pdf", "t1", nil, nil); err != nil {
		t.Fatalf("ResolveUpload error: %v", err)
	}

	if err := svc.DeleteRecord(ctx, "node1", "/paper.pdf"); err != nil {
		t.Fatalf("DeleteRecord error: %v", err)
	}
	if _, err := svc.FindVersion(ctx, "node1", "/paper.pdf", VersionLatest); !errors.Is(err, common.ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}

	recs, err := svc.ListRecords(ctx, "node1")
	if err != nil {
		t.Fatalf("ListRecords error: %v", err)
	}
	if len(recs) != 0 {
		t.Fatalf("deleted record still listed: %+v", recs)
	}
}

func TestRevisions_Paging(t *testing.T) {
	svc, _, cfg := newStorageFixture(t)
	cfg.RevisionsPageSize = 2
	ctx := context.Background()

	for _, token := range []string{"t1", "t2", "t3"} {
		if _, err := svc.StartUpload(ctx, "node1", "/paper.pdf", "paper.pdf", "u-1", token); err != nil {
			t.Fatalf("StartUpload error: %v", err)
		}
		if err := svc.ResolveUpload(ctx, "node1", "/paper.pdf", token, nil, nil); err != nil {
			t.Fatalf("ResolveUpload error: %v", err)
		}
	}

	page1, more, err := svc.Revisions(ctx, "node1", "/paper.pdf", 1)
	if err != nil {
		t.Fatalf("Revisions error: %v", err)
	}
	if len(page1) != 2 || !more || page1[0].Index != 3 || page1[1].Index != 2 {
		t.Fatalf("unexpected first page: %+v more=%v", page1, more)
	}

	page2, more, err := svc.Revisions(ctx, "node1", "/paper.pdf", 2)
	if err != nil {
		t.Fatalf("Revisions error: %v", err)
	}
	if len(page2) != 1 || more || page2[0].Index != 1 {
		t.Fatalf("unexpected second page: %+v more=%v", page2, more)
	}

	if _, _, err := svc.Revisions(ctx, "node1", "/paper.pdf", 0); !errors.Is(err, common.ErrInvalidVersion) {
		t.Fatalf("expected ErrInvalidVersion for page 0, got %v", err)
	}
}
