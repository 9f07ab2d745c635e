// Package httpapi holds the helpers shared by the HTTP handler packages:
// JSON writing, the fault-to-status mapping, and actor resolution. The
// session layer upstream is trusted to set X-User-ID.
package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/medichat/platform/pkg/common/faults"
)

func WriteJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func WriteError(w http.ResponseWriter, err error) {
	var verr *faults.ValidationError
	switch {
	case errors.As(err, &verr):
		WriteJSON(w, http.StatusBadRequest, map[string]string{"error": verr.Error()})
	case errors.Is(err, faults.ErrNotFound):
		WriteJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
	case errors.Is(err, faults.ErrInvalidState):
		WriteJSON(w, http.StatusConflict, map[string]string{"error": err.Error()})
	case errors.Is(err, faults.ErrConflict):
		WriteJSON(w, http.StatusConflict, map[string]string{"error": err.Error()})
	case errors.Is(err, faults.ErrForbidden):
		WriteJSON(w, http.StatusForbidden, map[string]string{"error": err.Error()})
	case errors.Is(err, faults.ErrUpstreamTimeout):
		WriteJSON(w, http.StatusGatewayTimeout, map[string]string{"error": err.Error()})
	case errors.Is(err, faults.ErrUpstreamInvalid):
		WriteJSON(w, http.StatusBadGateway, map[string]string{"error": err.Error()})
	default:
		WriteJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
	}
}

// Actor returns the authenticated user id propagated by the session layer.
func Actor(r *http.Request) (uuid.UUID, error) {
	raw := r.Header.Get("X-User-ID")
	if raw == "" {
		return uuid.Nil, faults.ErrForbidden
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, faults.ErrForbidden
	}
	return id, nil
}

func ParseLimit(r *http.Request, fallback int) int {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return fallback
	}
	if v, err := strconv.Atoi(raw); err == nil && v > 0 {
		return v
	}
	return fallback
}
