package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	iauth "github.com/aiva-app/notify/internal/auth"
	"github.com/aiva-app/notify/internal/database/testutil"
	"github.com/aiva-app/notify/internal/middleware"
	"github.com/aiva-app/notify/internal/push"
	"github.com/aiva-app/notify/internal/services"
)

const testInternalToken = "internal-test-token"

type testEnv struct {
	db     *gorm.DB
	router *gin.Engine
	jwt    *iauth.JWTService

	devices     *services.DeviceService
	tokens      *services.TokenService
	permissions *services.PermissionService
	fanout      *services.FanoutService
}

func newTestEnv(t *testing.T) *testEnv {
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
		Secret: "handler-test-secret",
		Issuer: "aiva-user-service",
	})
	require.NoError(t, err)

	deviceHandler, err := NewDeviceHandler(devices, tokens)
	require.NoError(t, err)
	settingsHandler, err := NewSettingsHandler(permissions)
	require.NoError(t, err)
	dispatchHandler, err := NewDispatchHandler(fanout)
	require.NoError(t, err)

	router := gin.New()
	authed := router.Group("/api", middleware.Auth(jwtSvc))
	authed.POST("/devices", deviceHandler.Register)
	authed.GET("/devices", deviceHandler.List)
	authed.DELETE("/devices/:identifier", deviceHandler.Unregister)
	authed.PUT("/devices/:identifier/token", deviceHandler.UpsertToken)
	authed.GET("/notification-settings", settingsHandler.List)
	authed.PATCH("/notification-settings/:id", settingsHandler.Update)
	authed.GET("/consent-events", settingsHandler.ListConsentEvents)

	internal := router.Group("/api/internal", middleware.InternalAuth(testInternalToken))
	internal.POST("/dispatch", dispatchHandler.Dispatch)

	return &testEnv{
		db:          db,
		router:      router,
		jwt:         jwtSvc,
		devices:     devices,
		tokens:      tokens,
		permissions: permissions,
		fanout:      fanout,
	}
}

func (e *testEnv) bearer(t *testing.T, userID string) string {
	t.Helper()

	token, err := e.jwt.SignAccessToken(userID, time.Minute)
	require.NoError(t, err)
	return "Bearer " + token
}

func (e *testEnv) do(t *testing.T, method, path, authorization string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(encoded)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if authorization != "" {
		req.Header.Set("Authorization", authorization)
	}

	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func (e *testEnv) doInternal(t *testing.T, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	encoded, err := json.Marshal(body)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/api/internal/dispatch", bytes.NewReader(encoded))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Internal-Token", testInternalToken)

	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func decodeData[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()

	var payload struct {
		Success bool `json:"success"`
		Data    T    `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload))
	require.True(t, payload.Success)
	return payload.Data
}

func requireStatus(t *testing.T, rec *httptest.ResponseRecorder, expected int) {
	t.Helper()
	require.Equal(t, expected, rec.Code, "unexpected status: %s", rec.Body.String())
}
