package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/aiva-app/notify/internal/services"
	"github.com/aiva-app/notify/pkg/response"
)

// DeviceHandler exposes the device registry and token store over HTTP.
type DeviceHandler struct {
	devices *services.DeviceService
	tokens  *services.TokenService
}

// NewDeviceHandler constructs a DeviceHandler.
func NewDeviceHandler(devices *services.DeviceService, tokens *services.TokenService) (*DeviceHandler, error) {
	if devices == nil || tokens == nil {
		return nil, errors.New("device handler: device and token services are required")
	}
	return &DeviceHandler{devices: devices, tokens: tokens}, nil
}

type registerDeviceRequest struct {
	DeviceIdentifier string `json:"device_identifier" validate:"required,max=255"`
	Platform         string `json:"platform" validate:"required,oneof=ANDROID IOS WEB android ios web"`
	AppVersion       string `json:"app_version" validate:"max=64"`
	Token            string `json:"token" validate:"omitempty,max=512"`
}

// registeredDevice is the register response; push_token is present only when
// the request carried a token.
type registeredDevice struct {
	services.DeviceDTO
	PushToken *services.PushTokenDTO `json:"push_token,omitempty"`
}

type upsertTokenRequest struct {
	Token string `json:"token" validate:"required,max=512"`
}

// Register handles POST /api/devices. Registration is idempotent on the
// (user, device identifier) pair, so clients can call it on every app start.
// A push token may ride along to register device and token in one round trip.
func (h *DeviceHandler) Register(c *gin.Context) {
	var req registerDeviceRequest
	if !bindAndValidate(c, &req) {
		return
	}

	ctx := requestContext(c)
	userID := currentUserID(c)

	device, err := h.devices.Register(ctx, services.RegisterDeviceInput{
		UserID:           userID,
		DeviceIdentifier: req.DeviceIdentifier,
		Platform:         req.Platform,
		AppVersion:       req.AppVersion,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	body := registeredDevice{DeviceDTO: *device}
	if req.Token != "" {
		token, err := h.tokens.Upsert(ctx, device.ID, userID, req.Token)
		if err != nil {
			response.Error(c, err)
			return
		}
		body.PushToken = token
	}

	response.Success(c, http.StatusOK, body)
}

// List handles GET /api/devices and returns the caller's live devices.
func (h *DeviceHandler) List(c *gin.Context) {
	devices, err := h.devices.ListForUser(requestContext(c), currentUserID(c))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, devices)
}

// Unregister handles DELETE /api/devices/:identifier. The delete is a
// soft-delete and is idempotent: removing an unknown or already-removed
// device still succeeds.
func (h *DeviceHandler) Unregister(c *gin.Context) {
	err := h.devices.SoftDelete(requestContext(c), currentUserID(c), c.Param("identifier"))
	if err != nil {
		response.Error(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

// UpsertToken handles PUT /api/devices/:identifier/token. The device must be
// a live device owned by the caller.
func (h *DeviceHandler) UpsertToken(c *gin.Context) {
	var req upsertTokenRequest
	if !bindAndValidate(c, &req) {
		return
	}

	ctx := requestContext(c)
	userID := currentUserID(c)

	device, err := h.devices.FindLive(ctx, userID, c.Param("identifier"))
	if err != nil {
		response.Error(c, err)
		return
	}

	token, err := h.tokens.Upsert(ctx, device.ID, userID, req.Token)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, token)
}
