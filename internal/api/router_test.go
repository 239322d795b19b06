package api

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/aiva-app/notify/internal/app"
	iauth "github.com/aiva-app/notify/internal/auth"
	"github.com/aiva-app/notify/internal/database/testutil"
	"github.com/aiva-app/notify/internal/push"
	"github.com/aiva-app/notify/internal/services"
)

func newTestRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db := testutil.MustOpenTestDB(t)

	devices, err := services.NewDeviceService(db)
	require.NoError(t, err)
	tokens, err := services.NewTokenService(db)
	require.NoError(t, err)
	permissions, err := services.NewPermissionService(db)
	require.NoError(t, err)
	fanout, err := services.NewFanoutService(permissions, tokens, push.NewLogGateway())
	require.NoError(t, err)

	jwtSvc, err := iauth.NewJWTService(iauth.JWTConfig{
		Secret: "router-test-secret",
		Issuer: "aiva-user-service",
	})
	require.NoError(t, err)

	cfg := &app.Config{}
	cfg.Auth.InternalToken = "internal-token"
	cfg.Monitoring.Prometheus.Enabled = true

	router, err := NewRouter(db, jwtSvc, cfg, Services{
		Devices:     devices,
		Tokens:      tokens,
		Permissions: permissions,
		Fanout:      fanout,
	})
	require.NoError(t, err)
	return router
}

func TestRouterPublicEndpoints(t *testing.T) {
	router := newTestRouter(t)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestRouterProtectsAPIRoutes(t *testing.T) {
	router := newTestRouter(t)

	for _, path := range []string{"/api/devices", "/api/notification-settings", "/api/consent-events"} {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		require.Equal(t, http.StatusUnauthorized, rec.Code, path)
	}

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/internal/dispatch", nil))
	require.Equal(t, http.StatusForbidden, rec.Code)
}

func TestRouterUnknownRoute(t *testing.T) {
	router := newTestRouter(t)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/nowhere", nil))
	require.Equal(t, http.StatusNotFound, rec.Code)
}
