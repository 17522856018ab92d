package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"chat-realtime/internal/auth"
	"chat-realtime/internal/models"
	"chat-realtime/internal/services"
)

type GroupHandlers struct {
	groupService *services.GroupService
	authService  *auth.Service
}

func NewGroupHandlers(groupService *services.GroupService, authService *auth.Service) *GroupHandlers {
	return &GroupHandlers{
		groupService: groupService,
		authService:  authService,
	}
}

func (h *GroupHandlers) CreateGroup(w http.ResponseWriter, r *http.Request) {
	user, err := authenticate(h.authService, r)
	if err != nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	var req models.CreateGroupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request", http.StatusBadRequest)
		return
	}

	group, err := h.groupService.CreateGroup(r.Context(), user.ID, &req)
	if err != nil {
		writeServiceError(w, "Create group", err)
		return
	}

	writeJSON(w, http.StatusCreated, group)
}

func (h *GroupHandlers) ListGroups(w http.ResponseWriter, r *http.Request) {
	user, err := authenticate(h.authService, r)
	if err != nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	groups, err := h.groupService.ListUserGroups(r.Context(), user.ID)
	if err != nil {
		writeServiceError(w, "List groups", err)
		return
	}

	writeJSON(w, http.StatusOK, groups)
}

func (h *GroupHandlers) GetMembers(w http.ResponseWriter, r *http.Request) {
	user, err := authenticate(h.authService, r)
	if err != nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	groupID, err := pathID(r, "id")
	if err != nil {
		http.Error(w, "invalid group ID", http.StatusBadRequest)
		return
	}

	members, err := h.groupService.GetMembers(r.Context(), user.ID, groupID)
	if err != nil {
		writeServiceError(w, "Get group members", err)
		return
	}

	writeJSON(w, http.StatusOK, members)
}

func (h *GroupHandlers) AddMember(w http.ResponseWriter, r *http.Request) {
	user, err := authenticate(h.authService, r)
	if err != nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	groupID, err := pathID(r, "id")
	if err != nil {
		http.Error(w, "invalid group ID", http.StatusBadRequest)
		return
	}

	var req models.AddMemberRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.UserID <= 0 {
		http.Error(w, "invalid request", http.StatusBadRequest)
		return
	}

	if err := h.groupService.AddMember(r.Context(), user.ID, groupID, req.UserID); err != nil {
		writeServiceError(w, "Add member", err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *GroupHandlers) RemoveMember(w http.ResponseWriter, r *http.Request) {
	h.changeMember(w, r, "Remove member", h.groupService.RemoveMember)
}

func (h *GroupHandlers) PromoteAdmin(w http.ResponseWriter, r *http.Request) {
	h.changeMember(w, r, "Promote admin", h.groupService.PromoteAdmin)
}

func (h *GroupHandlers) DemoteAdmin(w http.ResponseWriter, r *http.Request) {
	h.changeMember(w, r, "Demote admin", h.groupService.DemoteAdmin)
}

type memberChange func(ctx context.Context, requesterID, groupID, targetID int) error

// changeMember handles the /groups/{id}/.../{userID} routes, which all take
// the group and target user from the path.
func (h *GroupHandlers) changeMember(w http.ResponseWriter, r *http.Request, op string, apply memberChange) {
	user, err := authenticate(h.authService, r)
	if err != nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	groupID, err := pathID(r, "id")
	if err != nil {
		http.Error(w, "invalid group ID", http.StatusBadRequest)
		return
	}
	targetID, err := pathID(r, "userID")
	if err != nil {
		http.Error(w, "invalid user ID", http.StatusBadRequest)
		return
	}

	if err := apply(r.Context(), user.ID, groupID, targetID); err != nil {
		writeServiceError(w, op, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *GroupHandlers) GetMessages(w http.ResponseWriter, r *http.Request) {
	user, err := authenticate(h.authService, r)
	if err != nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	groupID, err := pathID(r, "id")
	if err != nil {
		http.Error(w, "invalid group ID", http.StatusBadRequest)
		return
	}
	q, err := historyQuery(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	messages, err := h.groupService.History(r.Context(), user.ID, groupID, q)
	if err != nil {
		writeServiceError(w, "Group history", err)
		return
	}

	writeJSON(w, http.StatusOK, messages)
}
