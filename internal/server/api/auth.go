package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/openscholar/platform/internal/common"
)

func (s *Server) registerUser(c *gin.Context) {
	var body struct {
		Login    string `json:"login"`
		FullName string `json:"full_name"`
	}
	if err := c.ShouldBindJSON(&body); err != nil || body.Login == "" {
		s.writeError(c, common.ErrInvalidHookBody)
		return
	}

	user, err := s.users.Register(c.Request.Context(), body.Login, body.FullName)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"id": user.ID, "login": user.Login})
}

// login opens a session for an existing login and sets the signed session
// cookie. Sessions live in redis; the cookie holds only the signed id.
func (s *Server) login(c *gin.Context) {
	var body struct {
		Login string `json:"login"`
	}
	if err := c.ShouldBindJSON(&body); err != nil || body.Login == "" {
		s.writeError(c, common.ErrInvalidHookBody)
		return
	}

	ctx := c.Request.Context()
	user, err := s.users.GetByLogin(ctx, body.Login)
	if err != nil {
		s.writeError(c, common.ErrUnauthorized)
		return
	}

	sess, err := s.sessions.Create(ctx, user.ID)
	if err != nil {
		s.writeError(c, err)
		return
	}

	c.SetCookie(s.config.CookieName, s.sessions.EncodeCookie(sess.ID),
		int(s.config.SessionTTL.Seconds()), "/", "", false, true)
	c.JSON(http.StatusOK, gin.H{"user": user.ID})
}

func (s *Server) logout(c *gin.Context) {
	cookie, err := c.Cookie(s.config.CookieName)
	if err == nil && cookie != "" {
		if sessionID, derr := s.sessions.DecodeCookie(cookie); derr == nil {
			if derr := s.sessions.Destroy(c.Request.Context(), sessionID); derr != nil {
				s.logger.Warn(c.Request.Context(), "session destroy failed", "error", derr.Error())
			}
		}
	}
	c.SetCookie(s.config.CookieName, "", -1, "/", "", false, true)
	c.JSON(http.StatusOK, gin.H{"status": "success"})
}

// issueToken mints a short-lived bearer token for non-browser clients of
// the logged-in user.
func (s *Server) issueToken(c *gin.Context) {
	token, err := s.users.IssueToken(userID(c))
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"token": token})
}

func (s *Server) createNode(c *gin.Context) {
	var body struct {
		Title string `json:"title"`
	}
	if err := c.ShouldBindJSON(&body); err != nil || body.Title == "" {
		s.writeError(c, common.ErrInvalidHookBody)
		return
	}

	node, err := s.nodes.Create(c.Request.Context(), uuid.NewString(), body.Title, userID(c))
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"id": node.ID, "title": node.Title})
}
