package api

import (
	"fmt"
	"net/http"
	"path"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/openscholar/platform/internal/common"
	"github.com/openscholar/platform/internal/server/models"
)

// version index 0 aggregates downloads across all versions of a path
const totalDownloads = 0

type fileVersionView struct {
	Index     int        `json:"index"`
	Status    string     `json:"status"`
	Creator   string     `json:"creator"`
	CreatedAt time.Time  `json:"created_at"`
	Resolved  *time.Time `json:"resolved_at,omitempty"`
	Downloads int64      `json:"downloads"`
}

func (s *Server) versionView(c *gin.Context, nodeID, p string, v *models.FileVersion) fileVersionView {
	downloads, err := s.counter.Get(c.Request.Context(), nodeID, p, v.Index)
	if err != nil {
		s.logger.Warn(c.Request.Context(), "download counter read failed", "error", err.Error())
	}
	return fileVersionView{
		Index:     v.Index,
		Status:    v.Status,
		Creator:   v.CreatorID,
		CreatedAt: v.CreatedAt,
		Resolved:  v.ResolvedAt,
		Downloads: downloads,
	}
}

// requestUploadURL hands out a presigned PUT target in object storage along
// with a fresh upload signature the upload service echoes back through the
// start and finish hooks.
func (s *Server) requestUploadURL(c *gin.Context) {
	node := currentNode(c)
	key, url, err := s.storage.GetPresignedPutUrl(c.Request.Context(), node.ID)
	if err != nil {
		s.writeError(c, err)
		return
	}
	signature, err := common.MakeRandHexString(32)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"key": key, "url": url, "signature": signature})
}

func (s *Server) fileGrid(c *gin.Context) {
	node := currentNode(c)
	records, err := s.storage.ListRecords(c.Request.Context(), node.ID)
	if err != nil {
		s.writeError(c, err)
		return
	}

	type entry struct {
		Path string `json:"path"`
		Name string `json:"name"`
	}
	out := make([]entry, 0, len(records))
	for _, r := range records {
		out = append(out, entry{Path: r.Path, Name: r.Name})
	}
	c.JSON(http.StatusOK, gin.H{"files": out})
}

// viewFile returns the requested version of a file. Only complete versions
// are viewable; pending and failed ones report their state instead.
func (s *Server) viewFile(c *gin.Context) {
	node := currentNode(c)
	p := hookPath(c)

	version, err := s.storage.FindVersion(c.Request.Context(), node.ID, p, c.Query("version"))
	if err != nil {
		s.writeError(c, err)
		return
	}
	if err := s.storage.GateVersion(version); err != nil {
		s.writeError(c, err)
		return
	}

	base := fmt.Sprintf("/api/v1/nodes/%s/osfstorage", node.ID)
	c.JSON(http.StatusOK, gin.H{
		"path":    p,
		"name":    path.Base(p),
		"version": s.versionView(c, node.ID, p, version),
		"links": gin.H{
			"download":  fmt.Sprintf("%s/download%s?version=%d", base, p, version.Index),
			"delete":    fmt.Sprintf("%s/files%s", base, p),
			"revisions": fmt.Sprintf("%s/revisions%s", base, p),
		},
	})
}

// downloadFile redirects to a short-lived presigned GET URL and counts the
// download against the served version.
func (s *Server) downloadFile(c *gin.Context) {
	node := currentNode(c)
	p := hookPath(c)
	ctx := c.Request.Context()
	spec := c.Query("version")

	version, err := s.storage.FindVersion(ctx, node.ID, p, spec)
	if err != nil {
		s.writeError(c, err)
		return
	}
	if err := s.storage.GateVersion(version); err != nil {
		s.writeError(c, err)
		return
	}

	url, err := s.storage.DownloadURL(ctx, node.ID, p, spec)
	if err != nil {
		s.writeError(c, err)
		return
	}

	if _, err := s.counter.Increment(ctx, node.ID, p, version.Index); err != nil {
		s.logger.Warn(ctx, "download counter increment failed", "error", err.Error())
	}
	if _, err := s.counter.Increment(ctx, node.ID, p, totalDownloads); err != nil {
		s.logger.Warn(ctx, "download counter increment failed", "error", err.Error())
	}

	c.Redirect(http.StatusFound, url)
}

func (s *Server) fileRevisions(c *gin.Context) {
	node := currentNode(c)
	p := hookPath(c)

	page := 1
	if raw := c.Query("page"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			s.writeError(c, common.ErrInvalidVersion)
			return
		}
		page = n
	}

	versions, more, err := s.storage.Revisions(c.Request.Context(), node.ID, p, page)
	if err != nil {
		s.writeError(c, err)
		return
	}

	out := make([]fileVersionView, 0, len(versions))
	for _, v := range versions {
		out = append(out, s.versionView(c, node.ID, p, v))
	}
	c.JSON(http.StatusOK, gin.H{"revisions": out, "more": more})
}

func (s *Server) deleteFile(c *gin.Context) {
	node := currentNode(c)
	if err := s.storage.DeleteRecord(c.Request.Context(), node.ID, hookPath(c)); err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "success"})
}
