package handlers

import (
	"net/http"

	"chat-realtime/internal/auth"
	"chat-realtime/internal/services"
)

type MessageHandlers struct {
	directService   *services.DirectService
	presenceService *services.PresenceService
	authService     *auth.Service
}

func NewMessageHandlers(directService *services.DirectService, presenceService *services.PresenceService, authService *auth.Service) *MessageHandlers {
	return &MessageHandlers{
		directService:   directService,
		presenceService: presenceService,
		authService:     authService,
	}
}

// DirectHistory returns the caller's conversation with peerID, oldest first.
func (h *MessageHandlers) DirectHistory(w http.ResponseWriter, r *http.Request) {
	user, err := authenticate(h.authService, r)
	if err != nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	peerID, err := pathID(r, "peerID")
	if err != nil {
		http.Error(w, "invalid peer ID", http.StatusBadRequest)
		return
	}
	q, err := historyQuery(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	messages, err := h.directService.History(r.Context(), user.ID, peerID, q)
	if err != nil {
		writeServiceError(w, "Direct history", err)
		return
	}

	writeJSON(w, http.StatusOK, messages)
}

func (h *MessageHandlers) OnlineUsers(w http.ResponseWriter, r *http.Request) {
	if _, err := authenticate(h.authService, r); err != nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	online := h.presenceService.OnlineUsers()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"user_ids": online,
		"count":    len(online),
	})
}
