// Package api is the HTTP boundary. Handlers translate requests into service
// calls and map sentinel errors onto status codes through one explicit table;
// no handler invents its own status for a known error kind.
package api

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/openscholar/platform/internal/logging"
	sc "github.com/openscholar/platform/internal/server/config"
	"github.com/openscholar/platform/internal/server/models"
	"github.com/openscholar/platform/internal/server/services"
	"github.com/openscholar/platform/internal/signing"
)

// StorageAddon is the slice of the storage service the handlers use.
type StorageAddon interface {
	StartUpload(ctx context.Context, nodeID, path, name, actorID, signature string) (*models.FileVersion, error)
	ResolveUpload(ctx context.Context, nodeID, path, signature string, location, metadata json.RawMessage) error
	CancelUpload(ctx context.Context, nodeID, path, signature string) error
	FindVersion(ctx context.Context, nodeID, path, spec string) (*models.FileVersion, error)
	GateVersion(v *models.FileVersion) error
	Revisions(ctx context.Context, nodeID, path string, page int) ([]*models.FileVersion, bool, error)
	ListRecords(ctx context.Context, nodeID string) ([]*models.FileRecord, error)
	DeleteRecord(ctx context.Context, nodeID, path string) error
	DownloadURL(ctx context.Context, nodeID, path, spec string) (string, error)
	GetPresignedPutUrl(ctx context.Context, nodeID string) (string, string, error)
}

// WikiAddon is the slice of the wiki service the handlers use.
type WikiAddon interface {
	GetPage(ctx context.Context, nodeID, name, spec string) (*models.WikiPage, error)
	UpdatePage(ctx context.Context, nodeID, name, content, authorID string) (*services.UpdateResult, error)
	RenamePage(ctx context.Context, nodeID, oldName, newName string) error
	DeletePage(ctx context.Context, nodeID, name string) error
	PageVersions(ctx context.Context, nodeID, name string) ([]*models.WikiPage, error)
	PageDraft(ctx context.Context, nodeID, name string) (string, error)
	ListPages(ctx context.Context, nodeID string) ([]string, error)
	ValidateNewPageName(ctx context.Context, nodeID, name string) error
	HomeWidget(ctx context.Context, nodeID string) (*services.Widget, error)
}

// UserDirectory resolves and creates accounts.
type UserDirectory interface {
	Register(ctx context.Context, login, fullName string) (*models.User, error)
	GetByID(ctx context.Context, id string) (*models.User, error)
	GetByLogin(ctx context.Context, login string) (*models.User, error)
	UserFromToken(ctx context.Context, token string) (*models.User, error)
	IssueToken(userID string) (string, error)
}

// NodeDirectory resolves and creates nodes.
type NodeDirectory interface {
	GetByID(ctx context.Context, id string) (*models.Node, error)
	Create(ctx context.Context, id, title, creatorID string) (*models.Node, error)
}

// SessionStore binds browser sessions to signed cookies.
type SessionStore interface {
	Create(ctx context.Context, userID string) (*models.Session, error)
	Get(ctx context.Context, id string) (*models.Session, error)
	Touch(ctx context.Context, id string) error
	Destroy(ctx context.Context, id string) error
	EncodeCookie(sessionID string) string
	DecodeCookie(cookie string) (string, error)
}

// DownloadCounter tracks download analytics.
type DownloadCounter interface {
	Increment(ctx context.Context, nodeID, path string, version int) (int64, error)
	Get(ctx context.Context, nodeID, path string, version int) (int64, error)
}

type Server struct {
	config   *sc.Config
	logger   logging.Logger
	storage  StorageAddon
	wiki     WikiAddon
	users    UserDirectory
	nodes    NodeDirectory
	sessions SessionStore
	counter  DownloadCounter
	hooks    *signing.Signer
}

func NewServer(
	cfg *sc.Config,
	logger logging.Logger,
	storage StorageAddon,
	wiki WikiAddon,
	users UserDirectory,
	nodes NodeDirectory,
	sessions SessionStore,
	counter DownloadCounter,
) *Server {
	return &Server{
		config:   cfg,
		logger:   logger,
		storage:  storage,
		wiki:     wiki,
		users:    users,
		nodes:    nodes,
		sessions: sessions,
		counter:  counter,
		hooks:    signing.NewSigner([]byte(cfg.WebhookSecret)),
	}
}

// Router builds the gin engine with all routes mounted.
func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), s.requestLog())

	v1 := r.Group("/api/v1")

	v1.POST("/users", s.registerUser)
	v1.POST("/sessions", s.login)
	v1.DELETE("/sessions", s.logout)
	v1.POST("/tokens", s.withSession(true), s.issueToken)

	v1.POST("/nodes", s.withSession(true), s.createNode)

	node := v1.Group("/nodes/:node", s.withSession(false), s.loadNode())

	osf := node.Group("/osfstorage", s.requireAddon("osfstorage"))
	{
		// webhook endpoints authenticate with a body HMAC, not a session
		osf.POST("/hooks/start/*path", s.uploadStartHook)
		osf.POST("/hooks/finish/*path", s.uploadFinishHook)

		osf.POST("/upload-url", s.requireWrite(), s.requestUploadURL)
		// the addon root lists the node's file records; item routes take the
		// storage path as a catch-all parameter
		osf.GET("", s.requireRead(), s.fileGrid)
		osf.GET("/files/*path", s.requireRead(), s.viewFile)
		osf.GET("/download/*path", s.requireRead(), s.downloadFile)
		osf.GET("/revisions/*path", s.requireRead(), s.fileRevisions)
		osf.DELETE("/files/*path", s.requireWrite(), s.deleteFile)
	}

	wiki := node.Group("/wiki", s.requireAddon("wiki"))
	{
		wiki.GET("", s.requireRead(), s.listWikiPages)
		wiki.GET("/widget", s.requireRead(), s.wikiWidget)
		wiki.POST("/validate", s.requireWrite(), s.validateWikiName)
		wiki.GET("/pages/:wname", s.requireRead(), s.getWikiPage)
		wiki.PUT("/pages/:wname", s.requireWrite(), s.updateWikiPage)
		wiki.DELETE("/pages/:wname", s.requireWrite(), s.deleteWikiPage)
		wiki.GET("/pages/:wname/versions", s.requireRead(), s.wikiPageVersions)
		wiki.GET("/pages/:wname/draft", s.requireRead(), s.wikiPageDraft)
		wiki.POST("/pages/:wname/rename", s.requireWrite(), s.renameWikiPage)
	}

	return r
}

func (s *Server) requestLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		s.logger.Info(c.Request.Context(), "http request",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
		)
	}
}

// ListenAndServe runs the HTTP server until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:    s.config.EndpointAddrHTTP,
		Handler: s.Router(),
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		return srv.Shutdown(context.Background())
	case err := <-errCh:
		return err
	}
}
