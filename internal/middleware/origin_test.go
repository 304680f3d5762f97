package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
)

func originTestRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.POST("/login", OriginGuard(), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"ok": true})
	})
	return r
}

func TestOriginGuardAbsentOriginPasses(t *testing.T) {
	r := originTestRouter()

	req := httptest.NewRequest(http.MethodPost, "/login", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
}

func TestOriginGuardRejectsUnlistedOrigin(t *testing.T) {
	t.Setenv(AllowedOriginsEnv, "https://desk.oit.int")
	r := originTestRouter()

	req := httptest.NewRequest(http.MethodPost, "/login", nil)
	req.Host = "desk.oit.int"
	req.Header.Set("Origin", "https://evil.example.com")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusForbidden, w.Code)
}

func TestOriginGuardAllowsEnvListedOrigin(t *testing.T) {
	t.Setenv(AllowedOriginsEnv, "https://desk.oit.int, other.oit.int")
	r := originTestRouter()

	for _, origin := range []string{"https://desk.oit.int", "http://other.oit.int", "https://other.oit.int"} {
		req := httptest.NewRequest(http.MethodPost, "/login", nil)
		req.Header.Set("Origin", origin)
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)

		require.Equal(t, http.StatusOK, w.Code, "origin %s", origin)
	}
}

func TestOriginGuardAllowsOwnHost(t *testing.T) {
	r := originTestRouter()

	req := httptest.NewRequest(http.MethodPost, "/login", nil)
	req.Host = "desk.oit.int"
	req.Header.Set("Origin", "https://desk.oit.int")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
}

func TestOriginGuardMalformedOriginFailsOpen(t *testing.T) {
	r := originTestRouter()

	req := httptest.NewRequest(http.MethodPost, "/login", nil)
	req.Header.Set("Origin", "::not a url::")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
}
