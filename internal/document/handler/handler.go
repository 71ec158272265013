// Package handler exposes the clinic document repository over HTTP.
package handler

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/dentalhub/dentalhub/backend/go-services/internal/access"
	"github.com/dentalhub/dentalhub/backend/go-services/internal/document"
	"github.com/dentalhub/dentalhub/backend/go-services/internal/document/handout"
	"github.com/dentalhub/dentalhub/backend/go-services/internal/document/markdown"
	"github.com/dentalhub/dentalhub/backend/go-services/internal/document/service"
	"github.com/dentalhub/dentalhub/backend/go-services/internal/models"
	"github.com/dentalhub/dentalhub/backend/go-services/internal/profiles"
	"github.com/dentalhub/dentalhub/backend/go-services/internal/sessions"
	"github.com/dentalhub/dentalhub/backend/go-services/internal/tokens"
	"github.com/dentalhub/dentalhub/backend/go-services/pkg/logger"
	"github.com/dentalhub/dentalhub/backend/go-services/pkg/middleware"
	"github.com/gin-gonic/gin"
)

const (
	msgForbidden       = "Not allowed to access this document"
	msgHandoutDisabled = "Handout storage is not configured"
)

// Profiles resolves callers to their profile and clinic.
type Profiles interface {
	Lookup(ctx context.Context, userID string) (models.Profile, error)
	ClinicFor(ctx context.Context, sess *sessions.Session) (string, error)
	UpsertFromClaims(ctx context.Context, sess *sessions.Session, claims map[string]interface{}) (models.Profile, error)
}

// Publisher publishes patient handouts.
type Publisher interface {
	Publish(ctx context.Context, d *document.Document) (*handout.Handout, error)
}

// Deps are the collaborators of the document routes. Handouts may be nil.
type Deps struct {
	Documents  service.Repository
	Profiles   Profiles
	Authorizer *access.Authorizer
	Renderer   *markdown.Renderer
	Handouts   Publisher
}

type documentHandler struct {
	Deps
}

// RegisterDocumentRoutes mounts the document API on rg. rg must already run
// middleware.AuthMiddleware.
func RegisterDocumentRoutes(rg gin.IRouter, deps Deps) {
	if deps.Renderer == nil {
		deps.Renderer = markdown.NewRenderer()
	}
	h := &documentHandler{Deps: deps}

	docs := rg.Group("/api/documents")
	docs.GET("", h.list)
	docs.POST("", h.create)
	docs.GET("/:id", h.get)
	docs.PATCH("/:id", h.update)
	docs.DELETE("/:id", h.delete)
	docs.POST("/:id/duplicate", h.duplicate)
	docs.PUT("/:id/share", h.share)
	docs.GET("/:id/preview", h.preview)
	docs.POST("/:id/handout", h.handout)

	v1 := rg.Group("/api/v1")
	v1.GET("/me", h.me)
	v1.POST("/logout", h.logout)
}

// writeError maps err onto the response. Store failures log the cause and
// only expose their message.
func writeError(c *gin.Context, err error) {
	status := document.StatusCode(err)
	msg := err.Error()
	switch {
	case errors.Is(err, profiles.ErrNoClinic):
		status = http.StatusForbidden
	case errors.Is(err, document.ErrStore):
		var se *document.StoreError
		if errors.As(err, &se) {
			msg = se.Message
		}
	}
	if status >= http.StatusInternalServerError {
		logger.L().Error().Err(err).Str("path", c.FullPath()).Msg("document request failed")
	}
	c.AbortWithStatusJSON(status, gin.H{"error": msg})
}

// caller returns the session and its policy principal. Doctors carry their
// clinic; patients have none.
func (h *documentHandler) caller(c *gin.Context) (*sessions.Session, access.Principal, error) {
	sess := middleware.SessionFrom(c)
	if sess == nil || sess.UserID == "" {
		return nil, access.Principal{}, &document.AuthError{Message: document.MsgNotAuthenticated}
	}
	p := access.Principal{UserID: sess.UserID, Role: sess.Role}
	if sess.IsDoctor() {
		clinicID, err := h.Profiles.ClinicFor(c.Request.Context(), sess)
		if err != nil {
			return nil, access.Principal{}, err
		}
		p.ClinicID = clinicID
	}
	return sess, p, nil
}

// allow writes 403 (or 500) and returns false when the policy denies.
func (h *documentHandler) allow(c *gin.Context, p access.Principal, action access.Action, r access.Resource) bool {
	ok, err := h.Authorizer.Authorize(p, action, r)
	if err != nil {
		writeError(c, err)
		return false
	}
	if !ok {
		logger.Debugf("deny %s on %s/%s for %s", action, r.Type, r.ID, p.UserID)
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": msgForbidden})
		return false
	}
	return true
}

// load resolves the caller and the :id document and checks action on it.
func (h *documentHandler) load(c *gin.Context, action access.Action) (*sessions.Session, *document.Document, bool) {
	sess, p, err := h.caller(c)
	if err != nil {
		writeError(c, err)
		return nil, nil, false
	}
	d, err := h.Documents.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return nil, nil, false
	}
	if !h.allow(c, p, action, access.DocumentResource(d)) {
		return nil, nil, false
	}
	return sess, d, true
}

func (h *documentHandler) list(c *gin.Context) {
	_, p, err := h.caller(c)
	if err != nil {
		writeError(c, err)
		return
	}
	if !h.allow(c, p, access.ActionList, access.ClinicResource(p.ClinicID)) {
		return
	}
	category := document.Category(c.Query("category"))
	docs, err := h.Documents.List(c.Request.Context(), p.ClinicID, category, c.Query("search"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, docs)
}

func (h *documentHandler) create(c *gin.Context) {
	sess, p, err := h.caller(c)
	if err != nil {
		writeError(c, err)
		return
	}
	var in document.CreateInput
	if err := c.ShouldBindJSON(&in); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if !h.allow(c, p, access.ActionCreate, access.ClinicResource(p.ClinicID)) {
		return
	}
	// ownership always comes from the caller, never the body
	in.ClinicID = p.ClinicID
	in.CreatedBy = sess.UserID
	d, err := h.Documents.Create(c.Request.Context(), in)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, d)
}

func (h *documentHandler) get(c *gin.Context) {
	_, d, ok := h.load(c, access.ActionRead)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, d)
}

func (h *documentHandler) update(c *gin.Context) {
	var patch document.Patch
	if err := c.ShouldBindJSON(&patch); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	_, d, ok := h.load(c, access.ActionUpdate)
	if !ok {
		return
	}
	if patch.Empty() {
		c.JSON(http.StatusOK, d)
		return
	}
	updated, err := h.Documents.Update(c.Request.Context(), d.ID, patch)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, updated)
}

func (h *documentHandler) delete(c *gin.Context) {
	_, p, err := h.caller(c)
	if err != nil {
		writeError(c, err)
		return
	}
	d, err := h.Documents.Get(c.Request.Context(), c.Param("id"))
	if errors.Is(err, document.ErrNotFound) {
		c.Status(http.StatusNoContent)
		return
	}
	if err != nil {
		writeError(c, err)
		return
	}
	if !h.allow(c, p, access.ActionDelete, access.DocumentResource(d)) {
		return
	}
	if _, err := h.Documents.Delete(c.Request.Context(), d.ID); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *documentHandler) duplicate(c *gin.Context) {
	sess, d, ok := h.load(c, access.ActionDuplicate)
	if !ok {
		return
	}
	dup, err := h.Documents.Duplicate(c.Request.Context(), d.ID, sess.UserID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, dup)
}

func (h *documentHandler) share(c *gin.Context) {
	var req struct {
		Shared *bool `json:"shared" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	_, d, ok := h.load(c, access.ActionShare)
	if !ok {
		return
	}
	updated, err := h.Documents.ToggleShare(c.Request.Context(), d.ID, *req.Shared)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, updated)
}

func (h *documentHandler) preview(c *gin.Context) {
	_, d, ok := h.load(c, access.ActionPreview)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"id":      d.ID,
		"title":   d.Title,
		"version": d.Version,
		"html":    h.Renderer.Render(d.Content),
	})
}

func (h *documentHandler) handout(c *gin.Context) {
	if h.Handouts == nil {
		c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": msgHandoutDisabled})
		return
	}
	_, d, ok := h.load(c, access.ActionHandout)
	if !ok {
		return
	}
	out, err := h.Handouts.Publish(c.Request.Context(), d)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, out)
}

// me returns the caller's profile, creating it from the token claims on first
// sight.
func (h *documentHandler) me(c *gin.Context) {
	sess := middleware.SessionFrom(c)
	if sess == nil || sess.UserID == "" {
		writeError(c, &document.AuthError{Message: document.MsgNotAuthenticated})
		return
	}
	ctx := c.Request.Context()
	p, err := h.Profiles.Lookup(ctx, sess.UserID)
	if errors.Is(err, profiles.ErrNoProfile) {
		claims, _ := c.Get(middleware.ClaimsKey)
		cm, _ := claims.(map[string]interface{})
		p, err = h.Profiles.UpsertFromClaims(ctx, sess, cm)
	}
	if err != nil {
		logger.Warnf("me: profile for %s: %v", sess.UserID, err)
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "profile not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"role": p.ProfileRole(), "profile": p})
}

// logout revokes the presented token for the rest of its lifetime.
func (h *documentHandler) logout(c *gin.Context) {
	sess := middleware.SessionFrom(c)
	if sess == nil || sess.Token == "" {
		writeError(c, &document.AuthError{Message: document.MsgNotAuthenticated})
		return
	}
	claims, _ := c.Get(middleware.ClaimsKey)
	cm, _ := claims.(map[string]interface{})
	ttl := tokens.ExpiresIn(cm, time.Now())
	if err := sessions.RevokeToken(c.Request.Context(), sess.Token, ttl); err != nil {
		logger.Errorf("logout: revoke token for %s: %v", sess.UserID, err)
		c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "failed to revoke token"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "logged out"})
}
