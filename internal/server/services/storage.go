package services

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/openscholar/platform/internal/common"
	"github.com/openscholar/platform/internal/dbx"
	"github.com/openscholar/platform/internal/logging"
	sc "github.com/openscholar/platform/internal/server/config"
	"github.com/openscholar/platform/internal/server/models"
	"github.com/openscholar/platform/internal/server/repositories/repomanager"
)

// VersionLatest selects the newest version on read paths.
const VersionLatest = ""

// StorageService owns the per-path upload lifecycle: pending versions are
// opened by the upload-start webhook, resolved to complete or failed by the
// upload-finish webhook, and only complete versions are servable. All
// transitions for one record run under its row lock, so concurrent webhooks
// serialize and the loser observes a precise conflict error.
type StorageService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	config      *sc.Config
	logger      logging.Logger
	now         func() time.Time
}

func NewStorageService(db *sql.DB, m repomanager.RepositoryManager, cfg *sc.Config, logger logging.Logger) *StorageService {
	return &StorageService{
		db:          db,
		repomanager: m,
		config:      cfg,
		logger:      logger,
		now:         time.Now,
	}
}

// GetOrCreateRecord returns the record at (nodeID, path), lazily creating it
// on first reference.
func (s *StorageService) GetOrCreateRecord(ctx context.Context, nodeID, path, name string) (*models.FileRecord, error) {
	repo := s.repomanager.Files(s.db)
	rec, err := repo.GetOrCreate(ctx, nodeID, path, name)
	if err != nil {
		return nil, fmt.Errorf("error creating file record: %w", err)
	}
	return rec, nil
}

// StartUpload opens a pending version for (nodeID, path) on behalf of actor.
// It fails with common.ErrPathLocked while another upload is in flight for
// the path and with common.ErrSignatureConsumed when the signature was
// already used to resolve an earlier version.
func (s *StorageService) StartUpload(ctx context.Context, nodeID, path, name, actorID, signature string) (*models.FileVersion, error) {
	var version *models.FileVersion

	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		repo := s.repomanager.Files(tx)

		rec, err := repo.GetOrCreate(ctx, nodeID, path, name)
		if err != nil {
			return err
		}
		if err := repo.LockRecord(ctx, rec.ID); err != nil {
			return err
		}

		latest, err := repo.GetLatestVersion(ctx, rec.ID)
		if err != nil && !errors.Is(err, common.ErrNotFound) {
			return err
		}
		if latest != nil && latest.IsPending() {
			if !s.leaseExpired(latest) {
				return common.ErrPathLocked
			}
			// the previous upload never reported back; reclaim the path
			s.logger.Info(ctx, "reclaiming expired pending upload",
				"node", nodeID, "path", path, "version", latest.Index)
			if err := repo.TransitionVersion(ctx, latest.ID, models.VersionFailed, nil, nil); err != nil {
				return err
			}
		}

		consumed, err := s.signatureConsumed(ctx, repo, rec, signature)
		if err != nil {
			return err
		}
		if consumed {
			return common.ErrSignatureConsumed
		}

		count, err := repo.CountVersions(ctx, rec.ID)
		if err != nil {
			return err
		}

		version = &models.FileVersion{
			RecordID:        rec.ID,
			Index:           count + 1,
			Status:          models.VersionPending,
			CreatorID:       actorID,
			UploadSignature: signature,
		}
		return repo.InsertVersion(ctx, version)
	})
	if err != nil {
		return nil, err
	}

	return version, nil
}

// ResolveUpload transitions the path's pending version to complete, storing
// the upload service's reported location and metadata.
func (s *StorageService) ResolveUpload(ctx context.Context, nodeID, path, signature string, location, metadata json.RawMessage) error {
	return s.finishUpload(ctx, nodeID, path, signature, models.VersionComplete, location, metadata)
}

// CancelUpload transitions the path's pending version to failed.
func (s *StorageService) CancelUpload(ctx context.Context, nodeID, path, signature string) error {
	return s.finishUpload(ctx, nodeID, path, signature, models.VersionFailed, nil, nil)
}

func (s *StorageService) finishUpload(ctx context.Context, nodeID, path, signature, toStatus string, location, metadata json.RawMessage) error {
	return dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		repo := s.repomanager.Files(tx)

		rec, err := repo.GetByPath(ctx, nodeID, path)
		if err != nil {
			return err
		}
		if err := repo.LockRecord(ctx, rec.ID); err != nil {
			return err
		}

		latest, err := repo.GetLatestVersion(ctx, rec.ID)
		if errors.Is(err, common.ErrNotFound) {
			return common.ErrVersionNotPending
		}
		if err != nil {
			return err
		}
		if !latest.IsPending() {
			return common.ErrVersionNotPending
		}
		if latest.UploadSignature != signature {
			s.logger.Warn(ctx, "upload signature mismatch, possible stale or forged webhook",
				"node", nodeID, "path", path, "version", latest.Index)
			return common.ErrSignatureMismatch
		}

		return repo.TransitionVersion(ctx, latest.ID, toStatus, location, metadata)
	})
}

// FindVersion resolves a version specifier against the record's history.
// An empty specifier means latest; otherwise a 1-based integer. Malformed
// specifiers fail with common.ErrInvalidVersion, out-of-range with
// common.ErrNotFound.
func (s *StorageService) FindVersion(ctx context.Context, nodeID, path, spec string) (*models.FileVersion, error) {
	repo := s.repomanager.Files(s.db)

	rec, err := repo.GetByPath(ctx, nodeID, path)
	if err != nil {
		return nil, err
	}
	if rec.IsDeleted {
		return nil, common.ErrNotFound
	}

	if spec == VersionLatest {
		return repo.GetLatestVersion(ctx, rec.ID)
	}

	idx, err := strconv.Atoi(spec)
	if err != nil || idx < 1 {
		return nil, common.ErrInvalidVersion
	}
	return repo.GetVersionByIndex(ctx, rec.ID, idx)
}

// GateVersion rejects versions that are not servable content: pending
// versions fail with common.ErrUploadPending (caller may retry later),
// failed versions with common.ErrUploadFailed (caller must re-upload).
func (s *StorageService) GateVersion(v *models.FileVersion) error {
	switch v.Status {
	case models.VersionComplete:
		return nil
	case models.VersionPending:
		return common.ErrUploadPending
	case models.VersionFailed:
		return common.ErrUploadFailed
	default:
		return fmt.Errorf("unknown version status %q: %w", v.Status, common.ErrInternal)
	}
}

// Revisions returns one page of the record's version history, newest first,
// and whether more pages follow. Pages are 1-based.
func (s *StorageService) Revisions(ctx context.Context, nodeID, path string, page int) ([]*models.FileVersion, bool, error) {
	if page < 1 {
		return nil, false, common.ErrInvalidVersion
	}

	repo := s.repomanager.Files(s.db)
	rec, err := repo.GetByPath(ctx, nodeID, path)
	if err != nil {
		return nil, false, err
	}

	all, err := repo.ListVersions(ctx, rec.ID)
	if err != nil {
		return nil, false, err
	}
	// newest first
	for i, j := 0, len(all)-1; i < j; i, j = i+1, j-1 {
		all[i], all[j] = all[j], all[i]
	}

	size := s.config.RevisionsPageSize
	start := (page - 1) * size
	if start >= len(all) {
		return []*models.FileVersion{}, false, nil
	}
	end := start + size
	if end > len(all) {
		end = len(all)
	}
	return all[start:end], end < len(all), nil
}

// ListRecords returns the node's live file records for grid views.
func (s *StorageService) ListRecords(ctx context.Context, nodeID string) ([]*models.FileRecord, error) {
	return s.repomanager.Files(s.db).ListByNode(ctx, nodeID)
}

// StorageLocation is the object-store coordinate a complete version points
// at, as reported by the upload service in the finish webhook.
type StorageLocation struct {
	Service string `json:"service"`
	Bucket  string `json:"bucket"`
	Object  string `json:"object"`
}

// DownloadURL resolves the version specifier, gates on servability and
// returns a short-lived presigned URL for the stored object.
func (s *StorageService) DownloadURL(ctx context.Context, nodeID, path, spec string) (string, error) {
	v, err := s.FindVersion(ctx, nodeID, path, spec)
	if err != nil {
		return "", err
	}
	if err := s.GateVersion(v); err != nil {
		return "", err
	}

	var loc StorageLocation
	if err := json.Unmarshal(v.Location, &loc); err != nil {
		return "", fmt.Errorf("malformed version location: %w", err)
	}
	return s.GetPresignedGetUrl(ctx, loc.Object)
}

// DeleteRecord soft-deletes the record; version history is retained.
func (s *StorageService) DeleteRecord(ctx context.Context, nodeID, path string) error {
	return dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		repo := s.repomanager.Files(tx)

		rec, err := repo.GetByPath(ctx, nodeID, path)
		if err != nil {
			return err
		}
		return repo.SoftDeleteRecord(ctx, rec.ID)
	})
}

func (s *StorageService) leaseExpired(v *models.FileVersion) bool {
	lease := s.config.PendingLeaseDuration
	if lease <= 0 {
		return false
	}
	return s.now().Sub(v.CreatedAt) > lease
}

func (s *StorageService) signatureConsumed(ctx context.Context, repo filesRepo, rec *models.FileRecord, signature string) (bool, error) {
	if s.config.StrictSignatureScope {
		return repo.SignatureConsumedInNode(ctx, rec.NodeID, signature)
	}
	return repo.SignatureConsumed(ctx, rec.ID, signature)
}

// filesRepo is the slice of files.Repository signatureConsumed needs.
type filesRepo interface {
	SignatureConsumed(ctx context.Context, recordID int64, signature string) (bool, error)
	SignatureConsumedInNode(ctx context.Context, nodeID, signature string) (bool, error)
}
