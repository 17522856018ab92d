package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"chat-realtime/internal/auth"
	"chat-realtime/internal/models"
	"chat-realtime/internal/services"
	"chat-realtime/pkg/logger"
)

// authenticate resolves the caller from an Authorization bearer header or,
// for browser websocket clients, the token query parameter.
func authenticate(authService *auth.Service, r *http.Request) (*models.User, error) {
	tokenStr := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	if tokenStr == "" {
		tokenStr = r.URL.Query().Get("token")
	}
	if tokenStr == "" {
		return nil, fmt.Errorf("missing token")
	}

	return authService.GetUserFromToken(r.Context(), tokenStr)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Error("Encode response error: %v", err)
	}
}

// writeServiceError maps service errors onto HTTP status codes. Storage
// failures are logged and hidden from the client.
func writeServiceError(w http.ResponseWriter, op string, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, services.ErrNotAuthenticated):
		status = http.StatusUnauthorized
	case errors.Is(err, services.ErrUnknownRecipient), errors.Is(err, services.ErrUnknownGroup):
		status = http.StatusNotFound
	case errors.Is(err, services.ErrNotAMember), errors.Is(err, services.ErrNotAuthorized):
		status = http.StatusForbidden
	case errors.Is(err, services.ErrInvalidRequest):
		status = http.StatusBadRequest
	}

	if status == http.StatusInternalServerError {
		logger.Error("%s error: %v", op, err)
		http.Error(w, "internal server error", status)
		return
	}
	http.Error(w, err.Error(), status)
}

func pathID(r *http.Request, name string) (int, error) {
	id, err := strconv.Atoi(r.PathValue(name))
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid %s", name)
	}
	return id, nil
}

func historyQuery(r *http.Request) (models.HistoryQuery, error) {
	var q models.HistoryQuery
	var err error
	if v := r.URL.Query().Get("limit"); v != "" {
		if q.Limit, err = strconv.Atoi(v); err != nil || q.Limit < 0 {
			return q, fmt.Errorf("invalid limit")
		}
	}
	if v := r.URL.Query().Get("before"); v != "" {
		if q.Before, err = strconv.Atoi(v); err != nil || q.Before < 0 {
			return q, fmt.Errorf("invalid before")
		}
	}
	return q, nil
}
