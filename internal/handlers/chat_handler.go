package handlers

import (
	"net/http"

	"messengerBack/internal/models"
	service "messengerBack/internal/services"
)

type ChatHandler struct {
	ChatService *service.ChatService
}

// CreateChat opens a chat with the listed participants. An existing
// one-to-one chat is answered with 200 and created=false.
func (h *ChatHandler) CreateChat(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	var req models.CreateChatRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	chat, created, err := h.ChatService.CreateChat(r.Context(), userID, req.Participants, req.Title)
	if err != nil {
		writeServiceError(w, "CreateChat", err)
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	writeJSON(w, status, models.CreateChatResponse{Chat: chat, Created: created})
}

func (h *ChatHandler) ListChats(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	chats, err := h.ChatService.ListChats(r.Context(), userID)
	if err != nil {
		writeServiceError(w, "ListChats", err)
		return
	}
	writeJSON(w, http.StatusOK, chats)
}

func (h *ChatHandler) SearchChats(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	chats, err := h.ChatService.SearchChats(r.Context(), userID, r.URL.Query().Get("q"))
	if err != nil {
		writeServiceError(w, "SearchChats", err)
		return
	}
	writeJSON(w, http.StatusOK, chats)
}

func (h *ChatHandler) GetChatByID(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	chatID := getParam(r, "id")
	if chatID == "" {
		writeError(w, http.StatusBadRequest, "Invalid chat ID")
		return
	}

	chat, err := h.ChatService.GetChat(r.Context(), userID, chatID)
	if err != nil {
		writeServiceError(w, "GetChatByID", err)
		return
	}
	writeJSON(w, http.StatusOK, chat)
}

func (h *ChatHandler) DeleteChat(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	chatID := getParam(r, "id")
	if chatID == "" {
		writeError(w, http.StatusBadRequest, "Invalid chat ID")
		return
	}

	if err := h.ChatService.DeleteChat(r.Context(), userID, chatID); err != nil {
		writeServiceError(w, "DeleteChat", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *ChatHandler) LeaveChat(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	chatID := getParam(r, "id")
	if chatID == "" {
		writeError(w, http.StatusBadRequest, "Invalid chat ID")
		return
	}

	if err := h.ChatService.LeaveChat(r.Context(), userID, chatID); err != nil {
		writeServiceError(w, "LeaveChat", err)
		return
	}
	writeMessage(w, http.StatusOK, "left chat")
}

func (h *ChatHandler) AddParticipants(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	chatID := getParam(r, "id")
	if chatID == "" {
		writeError(w, http.StatusBadRequest, "Invalid chat ID")
		return
	}
	var req models.AddParticipantsRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	chat, err := h.ChatService.AddParticipants(r.Context(), userID, chatID, req.Participants)
	if err != nil {
		writeServiceError(w, "AddParticipants", err)
		return
	}
	writeJSON(w, http.StatusOK, chat)
}

// GetAllChats lists every chat. Routed behind the admin role.
func (h *ChatHandler) GetAllChats(w http.ResponseWriter, r *http.Request) {
	chats, err := h.ChatService.ListAllChats(r.Context())
	if err != nil {
		writeServiceError(w, "GetAllChats", err)
		return
	}
	writeJSON(w, http.StatusOK, chats)
}
