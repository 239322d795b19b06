package api

import (
	"fmt"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gorm.io/gorm"

	"github.com/aiva-app/notify/internal/app"
	iauth "github.com/aiva-app/notify/internal/auth"
	"github.com/aiva-app/notify/internal/handlers"
	"github.com/aiva-app/notify/internal/middleware"
	"github.com/aiva-app/notify/internal/services"
)

// Services bundles the domain services the router mounts handlers for.
type Services struct {
	Devices     *services.DeviceService
	Tokens      *services.TokenService
	Permissions *services.PermissionService
	Fanout      *services.FanoutService
}

// NewRouter builds the Gin engine, wires middleware and registers all routes.
func NewRouter(db *gorm.DB, jwt *iauth.JWTService, cfg *app.Config, svcs Services) (*gin.Engine, error) {
	if db == nil {
		return nil, fmt.Errorf("database handle must be provided")
	}
	if jwt == nil {
		return nil, fmt.Errorf("jwt service must be provided")
	}
	if cfg == nil {
		return nil, fmt.Errorf("config must be provided")
	}
	if svcs.Devices == nil || svcs.Tokens == nil || svcs.Permissions == nil || svcs.Fanout == nil {
		return nil, fmt.Errorf("all domain services must be provided")
	}

	r := gin.New()

	// Global middleware
	r.Use(middleware.Recovery())
	r.Use(middleware.Logger())
	r.Use(middleware.Metrics())
	r.NoRoute(middleware.NotFoundHandler)

	// Health endpoint (public)
	r.GET("/health", handlers.Health(db))

	if cfg.Monitoring.Prometheus.Enabled {
		endpoint := cfg.Monitoring.Prometheus.Endpoint
		if endpoint == "" {
			endpoint = "/metrics"
		}
		r.GET(endpoint, gin.WrapH(promhttp.Handler()))
	}

	api := r.Group("/api")
	api.Use(middleware.Auth(jwt))

	if err := registerDeviceRoutes(api, svcs); err != nil {
		return nil, err
	}
	if err := registerSettingsRoutes(api, svcs); err != nil {
		return nil, err
	}

	internal := r.Group("/api/internal")
	internal.Use(middleware.InternalAuth(cfg.Auth.InternalToken))
	if err := registerDispatchRoutes(internal, svcs); err != nil {
		return nil, err
	}

	return r, nil
}
