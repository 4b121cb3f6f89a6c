package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/openscholar/platform/internal/common"
)

type errMapping struct {
	status int
	reason string
}

// errTable is the single place error kinds turn into HTTP responses. Every
// sentinel a handler can surface must have a row here; unknown errors fall
// through to 500 without leaking their message.
var errTable = []struct {
	err error
	m   errMapping
}{
	{common.ErrPathLocked, errMapping{http.StatusConflict, "File path is locked"}},
	{common.ErrSignatureConsumed, errMapping{http.StatusBadRequest, "Signature consumed"}},
	{common.ErrVersionNotPending, errMapping{http.StatusBadRequest, "No pending upload"}},
	{common.ErrSignatureMismatch, errMapping{http.StatusBadRequest, "Invalid upload signature"}},
	{common.ErrInvalidVersion, errMapping{http.StatusBadRequest, "Invalid version"}},
	{common.ErrUploadPending, errMapping{http.StatusNotFound, "File upload in progress"}},
	{common.ErrUploadFailed, errMapping{http.StatusNotFound, "File upload failed"}},
	{common.ErrBadBodySignature, errMapping{http.StatusBadRequest, "Invalid signature"}},
	{common.ErrInvalidHookBody, errMapping{http.StatusBadRequest, "Invalid payload"}},
	{common.ErrNameEmpty, errMapping{http.StatusBadRequest, "Page name cannot be blank"}},
	{common.ErrNameInvalid, errMapping{http.StatusBadRequest, "Page name contains invalid characters"}},
	{common.ErrNameTooLong, errMapping{http.StatusBadRequest, "Page name is too long"}},
	{common.ErrCannotRename, errMapping{http.StatusBadRequest, "Page cannot be renamed"}},
	{common.ErrPageConflict, errMapping{http.StatusConflict, "Page already exists"}},
	{common.ErrLoginAlreadyExists, errMapping{http.StatusConflict, "Login already taken"}},
	{common.ErrUnauthorized, errMapping{http.StatusUnauthorized, "Unauthorized"}},
	{common.ErrInvalidToken, errMapping{http.StatusUnauthorized, "Unauthorized"}},
	{common.ErrTokenExpired, errMapping{http.StatusUnauthorized, "Unauthorized"}},
	{common.ErrForbidden, errMapping{http.StatusForbidden, "Forbidden"}},
	{common.ErrNotFound, errMapping{http.StatusNotFound, "Not found"}},
}

// writeError resolves err against errTable and writes {"reason": ...} with
// the mapped status. It aborts the gin chain so later handlers do not run.
func (s *Server) writeError(c *gin.Context, err error) {
	for _, row := range errTable {
		if errors.Is(err, row.err) {
			c.AbortWithStatusJSON(row.m.status, gin.H{"reason": row.m.reason})
			return
		}
	}
	s.logger.Error(c.Request.Context(), "unhandled error", "error", err.Error())
	c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"reason": "Internal error"})
}
