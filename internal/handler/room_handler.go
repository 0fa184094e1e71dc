package handler

import (
	"net/http"
	"strconv"

	"github.com/spyword/server/internal/apperr"
	"github.com/spyword/server/internal/service"
)

// RoomHandler is the small HTTP surface: room creation and a cheap
// version-checked snapshot. Everything else flows over the WebSocket.
type RoomHandler struct {
	rooms *service.RoomService
}

// NewRoomHandler creates a RoomHandler.
func NewRoomHandler(rooms *service.RoomService) *RoomHandler {
	return &RoomHandler{rooms: rooms}
}

// CreateRoom handles POST /rooms.
func (h *RoomHandler) CreateRoom(w http.ResponseWriter, r *http.Request) {
	code, err := h.rooms.CreateRoom(r.Context())
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"code": code})
}

// GetRoom handles GET /rooms/{code}. An optional ?version= lets clients
// long-poll cheaply: when nothing changed since that version the response
// is 304 with no body.
func (h *RoomHandler) GetRoom(w http.ResponseWriter, r *http.Request) {
	code := r.PathValue("code")
	since, _ := strconv.ParseInt(r.URL.Query().Get("version"), 10, 64)

	snap, err := h.rooms.Snapshot(r.Context(), code, since)
	if err != nil {
		writeAppError(w, err)
		return
	}
	if snap == nil {
		w.WriteHeader(http.StatusNotModified)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// writeAppError maps the error taxonomy onto HTTP statuses.
func writeAppError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch apperr.KindOf(err) {
	case apperr.KindNotFound:
		status = http.StatusNotFound
	case apperr.KindForbidden:
		status = http.StatusForbidden
	case apperr.KindActionFailed:
		status = http.StatusConflict
	case apperr.KindValidationFailed:
		status = http.StatusBadRequest
	case apperr.KindBusy:
		status = http.StatusServiceUnavailable
	}
	msg := err.Error()
	if status == http.StatusInternalServerError {
		msg = "internal error"
	}
	writeError(w, status, msg)
}
