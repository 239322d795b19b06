package api

import (
	"github.com/gin-gonic/gin"

	"github.com/aiva-app/notify/internal/handlers"
)

func registerDeviceRoutes(api *gin.RouterGroup, svcs Services) error {
	handler, err := handlers.NewDeviceHandler(svcs.Devices, svcs.Tokens)
	if err != nil {
		return err
	}

	devices := api.Group("/devices")
	{
		devices.POST("", handler.Register)
		devices.GET("", handler.List)
		devices.DELETE("/:identifier", handler.Unregister)
		devices.PUT("/:identifier/token", handler.UpsertToken)
	}
	return nil
}
