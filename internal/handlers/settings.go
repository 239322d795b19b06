package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/aiva-app/notify/internal/services"
	"github.com/aiva-app/notify/pkg/response"
)

// SettingsHandler exposes the notification permission ledger over HTTP.
type SettingsHandler struct {
	permissions *services.PermissionService
}

// NewSettingsHandler constructs a SettingsHandler.
func NewSettingsHandler(permissions *services.PermissionService) (*SettingsHandler, error) {
	if permissions == nil {
		return nil, errors.New("settings handler: permission service is required")
	}
	return &SettingsHandler{permissions: permissions}, nil
}

type updateSettingRequest struct {
	Enabled *bool `json:"enabled" validate:"required"`
}

// List handles GET /api/notification-settings. Missing rows are materialised
// with their defaults, so the response always covers every permission type.
func (h *SettingsHandler) List(c *gin.Context) {
	settings, err := h.permissions.GetSettings(requestContext(c), currentUserID(c))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, settings)
}

// Update handles PATCH /api/notification-settings/:id and records the change
// in the consent audit trail.
func (h *SettingsHandler) Update(c *gin.Context) {
	var req updateSettingRequest
	if !bindAndValidate(c, &req) {
		return
	}

	setting, err := h.permissions.UpdateSetting(requestContext(c), services.UpdateSettingInput{
		UserID:    currentUserID(c),
		SettingID: c.Param("id"),
		Enabled:   *req.Enabled,
		IPAddress: c.ClientIP(),
		UserAgent: c.Request.UserAgent(),
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, setting)
}

// ListConsentEvents handles GET /api/consent-events with page/per_page
// pagination, newest first.
func (h *SettingsHandler) ListConsentEvents(c *gin.Context) {
	page := parseIntQuery(c, "page", 1)
	perPage := parseIntQuery(c, "per_page", 50)

	events, total, err := h.permissions.ListConsentEvents(requestContext(c), services.ListConsentEventsOptions{
		UserID:   currentUserID(c),
		Page:     page,
		PageSize: perPage,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	totalPages := 0
	if perPage > 0 {
		totalPages = int((total + int64(perPage) - 1) / int64(perPage))
	}

	response.SuccessWithMeta(c, http.StatusOK, events, &response.Meta{
		Page:       page,
		PerPage:    perPage,
		Total:      total,
		TotalPages: totalPages,
	})
}
