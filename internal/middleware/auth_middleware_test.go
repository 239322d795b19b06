package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	iauth "github.com/aiva-app/notify/internal/auth"
)

func newAuthRouter(t *testing.T) (*gin.Engine, *iauth.JWTService) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	jwtSvc, err := iauth.NewJWTService(iauth.JWTConfig{
		Secret: "test-secret-please-rotate",
		Issuer: "aiva-user-service",
	})
	require.NoError(t, err)

	router := gin.New()
	router.GET("/protected", Auth(jwtSvc), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"user_id": c.GetString(CtxUserIDKey)})
	})
	return router, jwtSvc
}

func TestAuthAcceptsValidToken(t *testing.T) {
	router, jwtSvc := newAuthRouter(t)

	token, err := jwtSvc.SignAccessToken("user-1", time.Minute)
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "user-1")
}

func TestAuthRejectsMissingHeader(t *testing.T) {
	router, _ := newAuthRouter(t)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAuthRejectsGarbageToken(t *testing.T) {
	router, _ := newAuthRouter(t)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Bearer not-a-jwt")
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.Equal(t, "Bearer", rec.Header().Get("WWW-Authenticate"))
}

func TestInternalAuth(t *testing.T) {
	gin.SetMode(gin.TestMode)

	router := gin.New()
	router.POST("/internal", InternalAuth("svc-token"), func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/internal", nil)
	req.Header.Set("X-Internal-Token", "svc-token")
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPost, "/internal", nil)
	req.Header.Set("X-Internal-Token", "wrong")
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusForbidden, rec.Code)

	// An empty configured token always denies, even when the header is empty.
	emptyRouter := gin.New()
	emptyRouter.POST("/internal", InternalAuth(""), func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})
	rec = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPost, "/internal", nil)
	emptyRouter.ServeHTTP(rec, req)
	require.Equal(t, http.StatusForbidden, rec.Code)
}
