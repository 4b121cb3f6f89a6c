package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/openscholar/platform/internal/common"
	"github.com/openscholar/platform/internal/dbx"
	"github.com/openscholar/platform/internal/logging"
	sc "github.com/openscholar/platform/internal/server/config"
	"github.com/openscholar/platform/internal/server/models"
	"github.com/openscholar/platform/internal/server/repositories/repomanager"
)

const (
	// HomePageKey is the default page every project starts with. It cannot
	// be renamed or deleted.
	HomePageKey = "home"

	maxPageNameLength = 100

	// WidgetContentLimit is where the dashboard widget truncates the home
	// page preview.
	WidgetContentLimit = 500
)

const invalidPageNameChars = `/\#<>[]{}|`

// CoeditNotifier tells the realtime co-editing hub that a page changed
// underneath its document, and reads the live draft back.
type CoeditNotifier interface {
	Broadcast(ctx context.Context, action, nodeID, key string, payload map[string]string) error
	Draft(ctx context.Context, nodeID, key string) (string, error)
}

// WikiService owns per-node wiki pages: append-only version history per page,
// rename and delete of whole histories, and notifications to the co-editing
// hub on destructive changes.
type WikiService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	config      *sc.Config
	logger      logging.Logger
	coedit      CoeditNotifier
}

func NewWikiService(db *sql.DB, m repomanager.RepositoryManager, cfg *sc.Config, logger logging.Logger, coedit CoeditNotifier) *WikiService {
	return &WikiService{
		db:          db,
		repomanager: m,
		config:      cfg,
		logger:      logger,
		coedit:      coedit,
	}
}

// PageKey normalizes a display name into the storage key.
func PageKey(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// ValidatePageName checks a user-supplied page name. common.ErrNameEmpty,
// common.ErrNameTooLong or common.ErrNameInvalid on failure.
func ValidatePageName(name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return common.ErrNameEmpty
	}
	if len(name) > maxPageNameLength {
		return common.ErrNameTooLong
	}
	if strings.ContainsAny(name, invalidPageNameChars) {
		return common.ErrNameInvalid
	}
	return nil
}

// GetPage returns one version of a page; empty spec means latest.
// Malformed version specifiers fail with common.ErrInvalidVersion.
func (s *WikiService) GetPage(ctx context.Context, nodeID, name, spec string) (*models.WikiPage, error) {
	repo := s.repomanager.Wiki(s.db)
	key := PageKey(name)

	if spec == VersionLatest {
		return repo.GetLatest(ctx, nodeID, key)
	}

	version, err := parseWikiVersion(spec)
	if err != nil {
		return nil, err
	}
	return repo.GetVersion(ctx, nodeID, key, version)
}

// PageDraft returns the live co-editing content of the page, falling back to
// the last saved version when nobody holds an open draft.
func (s *WikiService) PageDraft(ctx context.Context, nodeID, name string) (string, error) {
	key := PageKey(name)

	page, err := s.repomanager.Wiki(s.db).GetLatest(ctx, nodeID, key)
	if err != nil {
		return "", err
	}

	draft, err := s.coedit.Draft(ctx, nodeID, key)
	if errors.Is(err, common.ErrNotFound) {
		return page.Content, nil
	}
	if err != nil {
		return "", err
	}
	return draft, nil
}

func parseWikiVersion(spec string) (int, error) {
	var version int
	if _, err := fmt.Sscanf(spec, "%d", &version); err != nil || version < 1 {
		return 0, common.ErrInvalidVersion
	}
	return version, nil
}

// UpdateResult reports what an update did: a new version, or nothing because
// the content was unchanged.
type UpdateResult struct {
	Page     *models.WikiPage
	Modified bool
}

// UpdatePage appends a new version of the page, creating the page on first
// write. Writing identical content is a no-op reported as unmodified.
func (s *WikiService) UpdatePage(ctx context.Context, nodeID, name, content, authorID string) (*UpdateResult, error) {
	if err := ValidatePageName(name); err != nil {
		return nil, err
	}
	key := PageKey(name)
	displayName := strings.TrimSpace(name)
	// home is always stored lower case since it cannot be renamed
	if key == HomePageKey {
		displayName = HomePageKey
	}

	var result *UpdateResult
	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		repo := s.repomanager.Wiki(tx)

		latest, err := repo.GetLatest(ctx, nodeID, key)
		if err != nil && !errors.Is(err, common.ErrNotFound) {
			return err
		}

		if latest != nil {
			if latest.Content == content {
				result = &UpdateResult{Page: latest, Modified: false}
				return nil
			}
			// keep the display name the history already uses
			displayName = latest.Name
		}

		page := &models.WikiPage{
			NodeID:   nodeID,
			Key:      key,
			Name:     displayName,
			Version:  nextWikiVersion(latest),
			Content:  content,
			AuthorID: authorID,
		}
		if err := repo.Insert(ctx, page); err != nil {
			return err
		}
		result = &UpdateResult{Page: page, Modified: true}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func nextWikiVersion(latest *models.WikiPage) int {
	if latest == nil {
		return 1
	}
	return latest.Version + 1
}

// RenamePage moves the page's whole history to a new name. The home page
// cannot be renamed; the target name must be free.
func (s *WikiService) RenamePage(ctx context.Context, nodeID, oldName, newName string) error {
	oldKey := PageKey(oldName)
	if oldKey == HomePageKey {
		return common.ErrCannotRename
	}
	if err := ValidatePageName(newName); err != nil {
		return err
	}
	newKey := PageKey(newName)
	if newKey == HomePageKey {
		return common.ErrPageConflict
	}

	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		repo := s.repomanager.Wiki(tx)

		if newKey != oldKey {
			if _, err := repo.GetLatest(ctx, nodeID, newKey); err == nil {
				return common.ErrPageConflict
			} else if !errors.Is(err, common.ErrNotFound) {
				return err
			}
		}
		return repo.RenameKey(ctx, nodeID, oldKey, newKey, strings.TrimSpace(newName))
	})
	if err != nil {
		return err
	}

	s.notifyCoedit(ctx, "redirect", nodeID, newKey, map[string]string{"name": strings.TrimSpace(newName)})
	return nil
}

// DeletePage removes the page and its history and tells the co-editing hub
// to drop the live document.
func (s *WikiService) DeletePage(ctx context.Context, nodeID, name string) error {
	key := PageKey(name)

	if err := s.repomanager.Wiki(s.db).DeleteKey(ctx, nodeID, key); err != nil {
		return err
	}
	s.notifyCoedit(ctx, "delete", nodeID, key, nil)
	return nil
}

// PageVersions lists the page's history, newest first.
func (s *WikiService) PageVersions(ctx context.Context, nodeID, name string) ([]*models.WikiPage, error) {
	return s.repomanager.Wiki(s.db).ListVersions(ctx, nodeID, PageKey(name))
}

// ListPages returns the keys of the node's pages.
func (s *WikiService) ListPages(ctx context.Context, nodeID string) ([]string, error) {
	return s.repomanager.Wiki(s.db).ListKeys(ctx, nodeID)
}

// ValidateNewPageName checks that a name is valid and not yet taken, for the
// new-page dialog. common.ErrPageConflict when a page already exists.
func (s *WikiService) ValidateNewPageName(ctx context.Context, nodeID, name string) error {
	if err := ValidatePageName(name); err != nil {
		return err
	}
	key := PageKey(name)
	if key == HomePageKey {
		return common.ErrPageConflict
	}

	_, err := s.repomanager.Wiki(s.db).GetLatest(ctx, nodeID, key)
	if err == nil {
		return common.ErrPageConflict
	}
	if !errors.Is(err, common.ErrNotFound) {
		return err
	}
	return nil
}

// Widget is the dashboard summary of the home page.
type Widget struct {
	Content string `json:"wiki_content"`
	More    bool   `json:"more"`
}

// HomeWidget returns the truncated home page preview. A node without a home
// page gets an empty widget, not an error.
func (s *WikiService) HomeWidget(ctx context.Context, nodeID string) (*Widget, error) {
	page, err := s.repomanager.Wiki(s.db).GetLatest(ctx, nodeID, HomePageKey)
	if errors.Is(err, common.ErrNotFound) {
		return &Widget{}, nil
	}
	if err != nil {
		return nil, err
	}

	w := &Widget{Content: page.Content}
	if len(w.Content) > WidgetContentLimit {
		w.Content = w.Content[:WidgetContentLimit] + "..."
		w.More = true
	}
	return w, nil
}

func (s *WikiService) notifyCoedit(ctx context.Context, action, nodeID, key string, payload map[string]string) {
	if s.coedit == nil {
		return
	}
	if err := s.coedit.Broadcast(ctx, action, nodeID, key, payload); err != nil {
		// the hub being down must not fail the write itself
		s.logger.Warn(ctx, "coedit broadcast failed", "action", action, "node", nodeID, "page", key, "error", err)
	}
}
