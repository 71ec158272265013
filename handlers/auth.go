package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/dentalhub/dentalhub/backend/go-services/internal/config"
	"github.com/dentalhub/dentalhub/backend/go-services/internal/models"
	"github.com/dentalhub/dentalhub/backend/go-services/internal/sessions"
	"github.com/dentalhub/dentalhub/backend/go-services/internal/tokens"
	"github.com/dentalhub/dentalhub/backend/go-services/pkg/logger"
	"github.com/dentalhub/dentalhub/backend/go-services/pkg/middleware"
	"github.com/gin-gonic/gin"
)

// LoginRequest is a sign-in either with email/password (password grant) or
// with an authorization code from the Keycloak redirect. Development builds
// also accept "mock" against the seeded accounts.
type LoginRequest struct {
	Mode        string `json:"mode" binding:"required"` // "password" | "auth_code" | "mock"
	Email       string `json:"email"`
	Password    string `json:"password"`
	Code        string `json:"code"`
	RedirectURI string `json:"redirect_uri"`
}

// ProfileUpserter creates or refreshes the profile of a signed-in user.
type ProfileUpserter interface {
	UpsertFromClaims(ctx context.Context, sess *sessions.Session, claims map[string]interface{}) (models.Profile, error)
}

// AuthHandler exchanges Keycloak credentials for a DentalHub access token.
type AuthHandler struct {
	kc       config.KeycloakConfig
	secret   string
	ttl      time.Duration
	idTokens middleware.Verifier
	profiles ProfileUpserter
	client   *http.Client
	mock     MockAuthenticator
}

// MockAuthenticator checks development credentials without Keycloak.
type MockAuthenticator func(email, password string) (*sessions.Session, bool)

// NewAuthHandler verifies id tokens with idTokens and signs access tokens
// with cfg.JWT.Secret.
func NewAuthHandler(cfg *config.Config, idTokens middleware.Verifier, p ProfileUpserter) *AuthHandler {
	ttl := cfg.JWT.AccessTokenTTL
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &AuthHandler{
		kc:       cfg.Keycloak,
		secret:   cfg.JWT.Secret,
		ttl:      ttl,
		idTokens: idTokens,
		profiles: p,
		client:   &http.Client{Timeout: 10 * time.Second},
	}
}

// WithMockLogin enables mode "mock".
func (h *AuthHandler) WithMockLogin(fn MockAuthenticator) *AuthHandler {
	h.mock = fn
	return h
}

// Register routes under /auth
func (h *AuthHandler) Register(rg gin.IRouter) {
	a := rg.Group("/auth")
	a.POST("/login", h.Login)
}

// Login signs the user in against Keycloak, upserts their profile from the id
// token and returns a locally signed access token.
func (h *AuthHandler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.Mode == "mock" && h.mock != nil {
		h.mockLogin(c, req)
		return
	}
	form := url.Values{}
	switch req.Mode {
	case "password":
		if req.Email == "" || req.Password == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "email and password required"})
			return
		}
		form.Set("grant_type", "password")
		form.Set("username", req.Email)
		form.Set("password", req.Password)
		form.Set("scope", "openid")
	case "auth_code":
		if req.Code == "" || req.RedirectURI == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "code and redirect_uri required for auth_code mode"})
			return
		}
		form.Set("grant_type", "authorization_code")
		form.Set("code", req.Code)
		form.Set("redirect_uri", req.RedirectURI)
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "unsupported mode"})
		return
	}
	if h.kc.URL == "" || h.kc.Realm == "" || h.idTokens == nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Keycloak not configured"})
		return
	}
	if h.secret == "" {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "JWT_SECRET not configured"})
		return
	}

	tr, err := h.requestToken(c.Request.Context(), form)
	if err != nil {
		logger.Warnf("login (%s): token exchange failed: %v", req.Mode, err)
		c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication failed"})
		return
	}
	claims, err := h.verifyIDToken(c.Request.Context(), tr.IDToken)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid id token", "details": err.Error()})
		return
	}
	sess, err := sessions.FromClaims(claims)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
		return
	}
	h.issue(c, sess, claims)
}

// mockLogin signs in a seeded development account.
func (h *AuthHandler) mockLogin(c *gin.Context, req LoginRequest) {
	if h.secret == "" {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "JWT_SECRET not configured"})
		return
	}
	sess, ok := h.mock(req.Email, req.Password)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid email or password"})
		return
	}
	logger.Warnf("mock sign-in for %s", sess.Email)
	h.issue(c, sess, map[string]interface{}{})
}

// issue upserts the caller's profile and responds with a signed access token.
func (h *AuthHandler) issue(c *gin.Context, sess *sessions.Session, claims map[string]interface{}) {
	profile, err := h.profiles.UpsertFromClaims(c.Request.Context(), sess, claims)
	if err != nil {
		logger.Errorf("profile upsert for %s: %v", sess.UserID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "profile upsert failed"})
		return
	}
	access, err := tokens.GenerateAccessToken(h.secret, sess, h.ttl)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create access token"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"accessToken": access,
		"expiresIn":   int(h.ttl.Seconds()),
		"role":        sess.Role,
		"profile":     profile,
	})
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	IDToken     string `json:"id_token"`
}

func (h *AuthHandler) tokenURL() string {
	return strings.TrimRight(h.kc.URL, "/") + "/realms/" + h.kc.Realm + "/protocol/openid-connect/token"
}

// requestToken posts form to the token endpoint with client_secret_post and
// falls back to HTTP Basic client authentication on 401.
func (h *AuthHandler) requestToken(ctx context.Context, form url.Values) (*tokenResponse, error) {
	form.Set("client_id", h.kc.ClientID)
	if h.kc.ClientSecret != "" {
		form.Set("client_secret", h.kc.ClientSecret)
	}
	resp, err := h.post(ctx, form, false)
	if err == nil && resp.StatusCode == http.StatusUnauthorized && h.kc.ClientSecret != "" {
		_ = resp.Body.Close()
		logger.Debugf("token endpoint returned 401; retrying with basic auth")
		basic := url.Values{}
		for k, v := range form {
			if k != "client_secret" {
				basic[k] = v
			}
		}
		resp, err = h.post(ctx, basic, true)
	}
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("token endpoint returned %d: %s", resp.StatusCode, strings.TrimSpace(string(b)))
	}
	var tr tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		return nil, fmt.Errorf("decode token response: %w", err)
	}
	if tr.IDToken == "" {
		return nil, fmt.Errorf("token response carries no id_token")
	}
	return &tr, nil
}

func (h *AuthHandler) post(ctx context.Context, form url.Values, basic bool) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.tokenURL(), strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if basic {
		req.SetBasicAuth(h.kc.ClientID, h.kc.ClientSecret)
	}
	return h.client.Do(req)
}

func (h *AuthHandler) verifyIDToken(ctx context.Context, idToken string) (map[string]interface{}, error) {
	tok, err := h.idTokens.Verify(ctx, idToken)
	if err != nil {
		return nil, err
	}
	var claims map[string]interface{}
	if err := tok.Claims(&claims); err != nil {
		return nil, err
	}
	return claims, nil
}
