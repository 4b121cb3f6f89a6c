package api

import (
	"context"
	"errors"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/openscholar/platform/internal/common"
	"github.com/openscholar/platform/internal/server/authz"
	"github.com/openscholar/platform/internal/server/models"
)

const (
	ctxUserKey = "currentUser"
	ctxNodeKey = "currentNode"
)

// withSession resolves the caller from the signed session cookie, with a
// bearer token as fallback. When required is true an anonymous request is
// rejected; otherwise the request proceeds with no user attached and the
// authorization predicates decide what it may see.
func (s *Server) withSession(required bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		user, err := s.resolveUser(c)
		if err != nil {
			s.writeError(c, err)
			return
		}
		if user == nil && required {
			s.writeError(c, common.ErrUnauthorized)
			return
		}
		if user != nil {
			c.Set(ctxUserKey, user)
		}
		c.Next()
	}
}

func (s *Server) resolveUser(c *gin.Context) (*models.User, error) {
	ctx := c.Request.Context()

	// A cookie that does not open a session makes the request anonymous,
	// never an error: browsers keep sending tampered or expired cookies
	// and public content must still be served to them.
	if cookie, err := c.Cookie(s.config.CookieName); err == nil && cookie != "" {
		if user, ok := s.sessionUser(ctx, cookie); ok {
			return user, nil
		}
	}

	if header := c.GetHeader("Authorization"); strings.HasPrefix(header, "Bearer ") {
		token := strings.TrimPrefix(header, "Bearer ")
		return s.users.UserFromToken(ctx, token)
	}

	return nil, nil
}

func (s *Server) sessionUser(ctx context.Context, cookie string) (*models.User, bool) {
	sessionID, err := s.sessions.DecodeCookie(cookie)
	if err != nil {
		s.logger.Warn(ctx, "discarding unverifiable session cookie")
		return nil, false
	}

	sess, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		if !errors.Is(err, common.ErrNotFound) {
			s.logger.Warn(ctx, "session lookup failed", "error", err.Error())
		}
		return nil, false
	}

	if err := s.sessions.Touch(ctx, sess.ID); err != nil {
		s.logger.Warn(ctx, "session touch failed", "error", err.Error())
	}

	user, err := s.users.GetByID(ctx, sess.UserID)
	if err != nil {
		s.logger.Warn(ctx, "session user lookup failed", "error", err.Error())
		return nil, false
	}
	return user, true
}

func currentUser(c *gin.Context) *models.User {
	if v, ok := c.Get(ctxUserKey); ok {
		return v.(*models.User)
	}
	return nil
}

func currentNode(c *gin.Context) *models.Node {
	return c.MustGet(ctxNodeKey).(*models.Node)
}

// loadNode resolves the :node path parameter and stores the node on the
// request context. Deleted and unknown nodes 404 here, before any
// permission check can reveal their existence.
func (s *Server) loadNode() gin.HandlerFunc {
	return func(c *gin.Context) {
		node, err := s.nodes.GetByID(c.Request.Context(), c.Param("node"))
		if err != nil {
			s.writeError(c, err)
			return
		}
		c.Set(ctxNodeKey, node)
		c.Next()
	}
}

func (s *Server) requireAddon(name string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := authz.MustHaveAddon(currentNode(c), name); err != nil {
			s.writeError(c, err)
			return
		}
		c.Next()
	}
}

// requireRead admits contributors and, on public nodes, anyone.
func (s *Server) requireRead() gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := authz.MustBeContributorOrPublic(currentNode(c), userID(c)); err != nil {
			s.writeError(c, err)
			return
		}
		c.Next()
	}
}

// requireWrite admits contributors with write permission on nodes that are
// not registrations. Registrations are immutable snapshots.
func (s *Server) requireWrite() gin.HandlerFunc {
	return func(c *gin.Context) {
		node := currentNode(c)
		if currentUser(c) == nil {
			s.writeError(c, common.ErrUnauthorized)
			return
		}
		if err := authz.MustHavePermission(node, userID(c), models.PermWrite); err != nil {
			s.writeError(c, err)
			return
		}
		if err := authz.MustNotBeRegistration(node); err != nil {
			s.writeError(c, err)
			return
		}
		c.Next()
	}
}

func userID(c *gin.Context) string {
	if u := currentUser(c); u != nil {
		return u.ID
	}
	return ""
}
