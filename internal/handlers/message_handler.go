package handlers

import (
	"net/http"

	"messengerBack/internal/models"
	service "messengerBack/internal/services"
)

type MessageHandler struct {
	MessageService *service.MessageService
}

func (h *MessageHandler) CreateMessage(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	chatID := getParam(r, "id")
	if chatID == "" {
		writeError(w, http.StatusBadRequest, "Invalid chat ID")
		return
	}
	var req models.SendMessageRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	msg, err := h.MessageService.SendMessage(r.Context(), userID, chatID, req.Text)
	if err != nil {
		writeServiceError(w, "CreateMessage", err)
		return
	}
	writeJSON(w, http.StatusCreated, msg)
}

func (h *MessageHandler) GetMessagesForChat(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	chatID := getParam(r, "id")
	if chatID == "" {
		writeError(w, http.StatusBadRequest, "Invalid chat ID")
		return
	}

	// Bad values fall back to the service defaults.
	page := queryInt(r, "page")
	pageSize := queryInt(r, "page_size")

	messages, err := h.MessageService.ListMessages(r.Context(), userID, chatID, page, pageSize)
	if err != nil {
		writeServiceError(w, "GetMessagesForChat", err)
		return
	}
	writeJSON(w, http.StatusOK, messages)
}

func (h *MessageHandler) DeleteMessage(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	messageID := getParam(r, "id")
	if messageID == "" {
		writeError(w, http.StatusBadRequest, "Invalid message ID")
		return
	}

	if err := h.MessageService.DeleteMessage(r.Context(), userID, messageID); err != nil {
		writeServiceError(w, "DeleteMessage", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
