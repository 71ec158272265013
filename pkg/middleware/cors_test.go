package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func corsRouter(origins string) *gin.Engine {
	g := gin.New()
	g.Use(CORS(origins))
	g.PATCH("/api/documents/:id", func(c *gin.Context) { c.Status(http.StatusOK) })
	return g
}

func preflight(g *gin.Engine, origin string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodOptions, "/api/documents/1", nil)
	req.Header.Set("Origin", origin)
	req.Header.Set("Access-Control-Request-Method", http.MethodPatch)
	req.Header.Set("Access-Control-Request-Headers", "Authorization")
	g.ServeHTTP(w, req)
	return w
}

func TestCORS_AllowedOrigin(t *testing.T) {
	g := corsRouter("https://app.dentalhub.test, https://admin.dentalhub.test")

	w := preflight(g, "https://admin.dentalhub.test")
	require.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "https://admin.dentalhub.test", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, w.Header().Get("Access-Control-Allow-Methods"), "PATCH")
	assert.Contains(t, w.Header().Get("Access-Control-Allow-Headers"), "Authorization")

	w = httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPatch, "/api/documents/1", nil)
	req.Header.Set("Origin", "https://app.dentalhub.test")
	g.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "https://app.dentalhub.test", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, w.Header().Get("Access-Control-Expose-Headers"), "Content-Length")
}

func TestCORS_RejectsUnknownOrigin(t *testing.T) {
	g := corsRouter("https://app.dentalhub.test")
	w := preflight(g, "https://evil.test")
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
}

func TestCORS_EmptyOriginAllowsAny(t *testing.T) {
	g := corsRouter("")
	w := preflight(g, "https://anywhere.test")
	require.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestCORS_RequestWithoutOriginPassesThrough(t *testing.T) {
	g := corsRouter("https://app.dentalhub.test")
	w := httptest.NewRecorder()
	g.ServeHTTP(w, httptest.NewRequest(http.MethodPatch, "/api/documents/1", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}
