package handlers

import (
	"net/http"

	service "messengerBack/internal/services"
)

type ContactHandler struct {
	ContactService *service.ContactService
}

// SearchContacts serves GET /api/contacts?q=<email>&exclude_chatted=true.
func (h *ContactHandler) SearchContacts(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	// The "new chat" screen hides people the user already talks to.
	excludeChatted := queryBool(r, "exclude_chatted", true)

	contacts, err := h.ContactService.SearchContacts(r.Context(), userID, r.URL.Query().Get("q"), excludeChatted)
	if err != nil {
		writeServiceError(w, "SearchContacts", err)
		return
	}
	writeJSON(w, http.StatusOK, contacts)
}
