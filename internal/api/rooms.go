package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/skippi/standup/internal/models"
)

// Snowflakes travel as decimal strings in JSON, mirroring the platform's
// own wire convention.
type RoomResponse struct {
	ChannelID string   `json:"channel_id"`
	Cooldown  int64    `json:"cooldown"`
	RoleIDs   []string `json:"role_ids"`
}

func roomResponse(room *models.Room) RoomResponse {
	roleIDs := make([]string, len(room.RoleIDs))
	for i, id := range room.RoleIDs {
		roleIDs[i] = strconv.FormatUint(id, 10)
	}
	return RoomResponse{
		ChannelID: strconv.FormatUint(room.ChannelID, 10),
		Cooldown:  room.Cooldown,
		RoleIDs:   roleIDs,
	}
}

func channelIDParam(r *http.Request) (uint64, bool) {
	id, err := strconv.ParseUint(chi.URLParam(r, "channelID"), 10, 64)
	return id, err == nil
}

// ListRooms returns all configured rooms with their role sets.
func (h *Handler) ListRooms(w http.ResponseWriter, r *http.Request) {
	rooms, err := h.store.ListRooms(r.Context())
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "storage error")
		return
	}

	resp := make([]RoomResponse, len(rooms))
	for i := range rooms {
		resp[i] = roomResponse(&rooms[i])
	}
	h.JSON(w, http.StatusOK, resp)
}

// CreateRoomRequest represents the room creation request.
type CreateRoomRequest struct {
	ChannelID string `json:"channel_id"`
	Cooldown  int64  `json:"cooldown,omitempty"`
}

// CreateRoom configures a channel as a standup room.
func (h *Handler) CreateRoom(w http.ResponseWriter, r *http.Request) {
	var req CreateRoomRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.Error(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	channelID, err := strconv.ParseUint(req.ChannelID, 10, 64)
	if err != nil {
		h.Error(w, http.StatusBadRequest, "invalid channel_id")
		return
	}
	if req.Cooldown < 0 {
		h.Error(w, http.StatusBadRequest, "cooldown must be positive")
		return
	}

	existing, err := h.store.GetRoom(r.Context(), channelID)
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "storage error")
		return
	}
	if existing != nil {
		h.Error(w, http.StatusConflict, "channel already is a room")
		return
	}

	room, err := h.store.CreateRoom(r.Context(), channelID, req.Cooldown)
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "storage error")
		return
	}
	h.JSON(w, http.StatusCreated, roomResponse(room))
}

// DeleteRoom removes a room, invalidating its posts first.
func (h *Handler) DeleteRoom(w http.ResponseWriter, r *http.Request) {
	channelID, ok := channelIDParam(r)
	if !ok {
		h.Error(w, http.StatusBadRequest, "invalid channel id")
		return
	}

	removed, err := h.manager.RemoveRoom(r.Context(), channelID)
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "storage error")
		return
	}
	if !removed {
		h.Error(w, http.StatusNotFound, "room not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// SetRolesRequest represents the role replacement request.
type SetRolesRequest struct {
	RoleIDs []string `json:"role_ids"`
}

// SetRoles replaces a room's whole role set. An empty list clears it.
func (h *Handler) SetRoles(w http.ResponseWriter, r *http.Request) {
	channelID, ok := channelIDParam(r)
	if !ok {
		h.Error(w, http.StatusBadRequest, "invalid channel id")
		return
	}

	var req SetRolesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.Error(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	roleIDs := make([]uint64, 0, len(req.RoleIDs))
	for _, s := range req.RoleIDs {
		id, err := strconv.ParseUint(s, 10, 64)
		if err != nil {
			h.Error(w, http.StatusBadRequest, "invalid role id")
			return
		}
		roleIDs = append(roleIDs, id)
	}

	room, err := h.store.GetRoom(r.Context(), channelID)
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "storage error")
		return
	}
	if room == nil {
		h.Error(w, http.StatusNotFound, "room not found")
		return
	}

	if err := h.store.ReplaceRoles(r.Context(), channelID, roleIDs); err != nil {
		h.Error(w, http.StatusInternalServerError, "storage error")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// SetCooldownRequest represents the cooldown update request.
type SetCooldownRequest struct {
	Cooldown int64 `json:"cooldown"`
}

// SetCooldown updates a room's cooldown in seconds.
func (h *Handler) SetCooldown(w http.ResponseWriter, r *http.Request) {
	channelID, ok := channelIDParam(r)
	if !ok {
		h.Error(w, http.StatusBadRequest, "invalid channel id")
		return
	}

	var req SetCooldownRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.Error(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Cooldown <= 0 {
		h.Error(w, http.StatusBadRequest, "cooldown must be positive")
		return
	}

	room, err := h.store.GetRoom(r.Context(), channelID)
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "storage error")
		return
	}
	if room == nil {
		h.Error(w, http.StatusNotFound, "room not found")
		return
	}

	if err := h.store.SetCooldown(r.Context(), channelID, req.Cooldown); err != nil {
		h.Error(w, http.StatusInternalServerError, "storage error")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
