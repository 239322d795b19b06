package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/aiva-app/notify/internal/services"
	"github.com/aiva-app/notify/pkg/response"
)

// DispatchHandler exposes the internal fan-out endpoint used by producing
// services to push a notification event synchronously.
type DispatchHandler struct {
	fanout *services.FanoutService
}

// NewDispatchHandler constructs a DispatchHandler.
func NewDispatchHandler(fanout *services.FanoutService) (*DispatchHandler, error) {
	if fanout == nil {
		return nil, errors.New("dispatch handler: fanout service is required")
	}
	return &DispatchHandler{fanout: fanout}, nil
}

type dispatchRequest struct {
	UserIDs []string               `json:"user_ids" validate:"required,min=1"`
	Type    string                 `json:"type" validate:"required"`
	Title   string                 `json:"title" validate:"max=255"`
	Body    string                 `json:"body" validate:"max=4096"`
	Data    map[string]interface{} `json:"data"`
}

// Dispatch handles POST /api/internal/dispatch. The response reports how the
// event resolved; delivery itself is fire-and-forget.
func (h *DispatchHandler) Dispatch(c *gin.Context) {
	var req dispatchRequest
	if !bindAndValidate(c, &req) {
		return
	}

	result, err := h.fanout.Dispatch(requestContext(c), services.DispatchInput{
		UserIDs:        req.UserIDs,
		PermissionType: req.Type,
		Title:          req.Title,
		Body:           req.Body,
		Data:           req.Data,
		Source:         "http",
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusAccepted, result)
}
