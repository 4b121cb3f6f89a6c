package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/openscholar/platform/internal/common"
	"github.com/openscholar/platform/internal/server/models"
)

type wikiPageView struct {
	Name      string    `json:"name"`
	Key       string    `json:"key"`
	Version   int       `json:"version"`
	Content   string    `json:"content"`
	Author    string    `json:"author"`
	UpdatedAt time.Time `json:"updated_at"`
}

func pageView(p *models.WikiPage) wikiPageView {
	return wikiPageView{
		Name:      p.Name,
		Key:       p.Key,
		Version:   p.Version,
		Content:   p.Content,
		Author:    p.AuthorID,
		UpdatedAt: p.CreatedAt,
	}
}

func (s *Server) listWikiPages(c *gin.Context) {
	node := currentNode(c)
	keys, err := s.wiki.ListPages(c.Request.Context(), node.ID)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"pages": keys})
}

func (s *Server) wikiWidget(c *gin.Context) {
	node := currentNode(c)
	widget, err := s.wiki.HomeWidget(c.Request.Context(), node.ID)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, widget)
}

func (s *Server) getWikiPage(c *gin.Context) {
	node := currentNode(c)
	page, err := s.wiki.GetPage(c.Request.Context(), node.ID, c.Param("wname"), c.Query("version"))
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, pageView(page))
}

func (s *Server) updateWikiPage(c *gin.Context) {
	var body struct {
		Content string `json:"content"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		s.writeError(c, common.ErrInvalidHookBody)
		return
	}

	node := currentNode(c)
	res, err := s.wiki.UpdatePage(c.Request.Context(), node.ID, c.Param("wname"), body.Content, userID(c))
	if err != nil {
		s.writeError(c, err)
		return
	}
	if !res.Modified {
		c.JSON(http.StatusOK, gin.H{"status": "unmodified", "version": res.Page.Version})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "success", "version": res.Page.Version})
}

func (s *Server) renameWikiPage(c *gin.Context) {
	var body struct {
		Value string `json:"value"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		s.writeError(c, common.ErrInvalidHookBody)
		return
	}

	node := currentNode(c)
	if err := s.wiki.RenamePage(c.Request.Context(), node.ID, c.Param("wname"), body.Value); err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "success"})
}

func (s *Server) deleteWikiPage(c *gin.Context) {
	node := currentNode(c)
	if err := s.wiki.DeletePage(c.Request.Context(), node.ID, c.Param("wname")); err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "success"})
}

func (s *Server) wikiPageVersions(c *gin.Context) {
	node := currentNode(c)
	pages, err := s.wiki.PageVersions(c.Request.Context(), node.ID, c.Param("wname"))
	if err != nil {
		s.writeError(c, err)
		return
	}
	out := make([]wikiPageView, 0, len(pages))
	for _, p := range pages {
		out = append(out, pageView(p))
	}
	c.JSON(http.StatusOK, gin.H{"versions": out})
}

func (s *Server) wikiPageDraft(c *gin.Context) {
	node := currentNode(c)
	draft, err := s.wiki.PageDraft(c.Request.Context(), node.ID, c.Param("wname"))
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"wiki_draft": draft})
}

func (s *Server) validateWikiName(c *gin.Context) {
	var body struct {
		Value string `json:"value"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		s.writeError(c, common.ErrInvalidHookBody)
		return
	}

	node := currentNode(c)
	if err := s.wiki.ValidateNewPageName(c.Request.Context(), node.ID, body.Value); err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "success"})
}
