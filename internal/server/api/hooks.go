package api

import (
	"encoding/json"
	"io"
	"net/http"
	"path"

	"github.com/gin-gonic/gin"

	"github.com/openscholar/platform/internal/common"
	"github.com/openscholar/platform/internal/server/models"
)

// signatureHeader carries the hex HMAC of the exact raw request body. The
// upload service computes it with the shared webhook secret.
const signatureHeader = "X-Signature"

type startHookBody struct {
	UploadPayload struct {
		Extra struct {
			User string `json:"user"`
		} `json:"extra"`
	} `json:"uploadPayload"`
	UploadSignature string `json:"uploadSignature"`
}

type finishHookBody struct {
	Status          string          `json:"status"`
	UploadSignature string          `json:"uploadSignature"`
	Location        json.RawMessage `json:"location"`
	Metadata        json.RawMessage `json:"metadata"`
}

// readHookBody reads the raw body and verifies its HMAC before anything
// parses it. Rejected bodies never reach a decoder, let alone the database.
func (s *Server) readHookBody(c *gin.Context) ([]byte, error) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		return nil, common.ErrInvalidHookBody
	}
	if !s.hooks.Verify(c.GetHeader(signatureHeader), body) {
		return nil, common.ErrBadBodySignature
	}
	return body, nil
}

func hookPath(c *gin.Context) string {
	return path.Clean(c.Param("path"))
}

func (s *Server) uploadStartHook(c *gin.Context) {
	raw, err := s.readHookBody(c)
	if err != nil {
		s.writeError(c, err)
		return
	}

	var body startHookBody
	if err := json.Unmarshal(raw, &body); err != nil || body.UploadSignature == "" {
		s.writeError(c, common.ErrInvalidHookBody)
		return
	}

	// the announced uploader must be a known account
	actor := body.UploadPayload.Extra.User
	if _, err := s.users.GetByID(c.Request.Context(), actor); err != nil {
		s.writeError(c, common.ErrInvalidHookBody)
		return
	}

	node := currentNode(c)
	p := hookPath(c)
	version, err := s.storage.StartUpload(c.Request.Context(),
		node.ID, p, path.Base(p), actor, body.UploadSignature)
	if err != nil {
		s.writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"status":  "success",
		"version": version.Index,
	})
}

func (s *Server) uploadFinishHook(c *gin.Context) {
	raw, err := s.readHookBody(c)
	if err != nil {
		s.writeError(c, err)
		return
	}

	var body finishHookBody
	if err := json.Unmarshal(raw, &body); err != nil || body.UploadSignature == "" {
		s.writeError(c, common.ErrInvalidHookBody)
		return
	}

	node := currentNode(c)
	p := hookPath(c)
	ctx := c.Request.Context()

	switch body.Status {
	case models.VersionComplete, "success":
		err = s.storage.ResolveUpload(ctx, node.ID, p, body.UploadSignature, body.Location, body.Metadata)
	case models.VersionFailed, "error":
		err = s.storage.CancelUpload(ctx, node.ID, p, body.UploadSignature)
	default:
		err = common.ErrInvalidHookBody
	}
	if err != nil {
		s.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "success"})
}
