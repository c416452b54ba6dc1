package handlers

import (
	"net/http"

	"messengerBack/internal/models"
	"messengerBack/internal/services"
)

// FCMHandler registers the push tokens of the caller's devices.
type FCMHandler struct {
	Service *services.NotificationService
}

func NewFCMHandler(service *services.NotificationService) *FCMHandler {
	return &FCMHandler{Service: service}
}

func (h *FCMHandler) CreateToken(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	var req models.DeviceTokenRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	if err := h.Service.RegisterDeviceToken(r.Context(), userID, req.Token, req.Platform); err != nil {
		writeServiceError(w, "CreateToken", err)
		return
	}
	w.WriteHeader(http.StatusCreated)
}

func (h *FCMHandler) DeleteToken(w http.ResponseWriter, r *http.Request) {
	if _, ok := requireUser(w, r); !ok {
		return
	}
	token := getParam(r, "token")
	if token == "" {
		writeError(w, http.StatusBadRequest, "Missing token")
		return
	}

	if err := h.Service.DeleteDeviceToken(r.Context(), token); err != nil {
		writeServiceError(w, "DeleteToken", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
