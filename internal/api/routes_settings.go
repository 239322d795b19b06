package api

import (
	"github.com/gin-gonic/gin"

	"github.com/aiva-app/notify/internal/handlers"
)

func registerSettingsRoutes(api *gin.RouterGroup, svcs Services) error {
	handler, err := handlers.NewSettingsHandler(svcs.Permissions)
	if err != nil {
		return err
	}

	settings := api.Group("/notification-settings")
	{
		settings.GET("", handler.List)
		settings.PATCH("/:id", handler.Update)
	}
	api.GET("/consent-events", handler.ListConsentEvents)
	return nil
}
