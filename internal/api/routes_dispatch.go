package api

import (
	"github.com/gin-gonic/gin"

	"github.com/aiva-app/notify/internal/handlers"
)

func registerDispatchRoutes(internal *gin.RouterGroup, svcs Services) error {
	handler, err := handlers.NewDispatchHandler(svcs.Fanout)
	if err != nil {
		return err
	}

	internal.POST("/dispatch", handler.Dispatch)
	return nil
}
