package profile

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/medichat/platform/pkg/access"
	"github.com/medichat/platform/pkg/common/faults"
	"github.com/medichat/platform/pkg/common/httpapi"
	"github.com/medichat/platform/pkg/common/logger"
	"github.com/medichat/platform/pkg/common/models"
)

type Handler struct {
	service *Service
	authz   access.Authorizer
}

func NewHandler(service *Service, authz access.Authorizer) *Handler {
	return &Handler{service: service, authz: authz}
}

func (h *Handler) Register(r *mux.Router) {
	r.HandleFunc("/patients/{id}/profile", h.handleGet).Methods(http.MethodGet)
	r.HandleFunc("/patients/{id}/profile", h.handleUpsert).Methods(http.MethodPut)
}

func (h *Handler) patientScope(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	patientID, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		httpapi.WriteJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid patient id"})
		return uuid.Nil, false
	}
	actor, err := httpapi.Actor(r)
	if err != nil {
		httpapi.WriteError(w, err)
		return uuid.Nil, false
	}
	ok, err := h.authz.Authorize(r.Context(), actor, patientID)
	if err != nil {
		logger.Log.WithError(err).Error("authorization check failed")
		httpapi.WriteError(w, err)
		return uuid.Nil, false
	}
	if !ok {
		httpapi.WriteError(w, faults.ErrForbidden)
		return uuid.Nil, false
	}
	return patientID, true
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	patientID, ok := h.patientScope(w, r)
	if !ok {
		return
	}
	p, err := h.service.Get(r.Context(), patientID)
	if errors.Is(err, faults.ErrNotFound) {
		httpapi.WriteJSON(w, http.StatusOK, map[string]interface{}{"profile": nil})
		return
	}
	if err != nil {
		logger.Log.WithError(err).Error("failed to load profile")
		httpapi.WriteError(w, err)
		return
	}
	httpapi.WriteJSON(w, http.StatusOK, map[string]interface{}{"profile": p})
}

func (h *Handler) handleUpsert(w http.ResponseWriter, r *http.Request) {
	patientID, ok := h.patientScope(w, r)
	if !ok {
		return
	}
	var req models.UpsertProfileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpapi.WriteJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request"})
		return
	}
	p, err := h.service.Upsert(r.Context(), patientID, req)
	if err != nil {
		logger.Log.WithError(err).Error("failed to save profile")
		httpapi.WriteError(w, err)
		return
	}
	httpapi.WriteJSON(w, http.StatusOK, map[string]interface{}{"profile": p})
}
