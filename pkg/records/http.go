package records

import (
	"encoding/json"
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
	r.HandleFunc("/patients/{id}/vitals", h.handleAddVital).Methods(http.MethodPost)
	r.HandleFunc("/patients/{id}/labs", h.handleAddLab).Methods(http.MethodPost)
	r.HandleFunc("/patients/{id}/medications", h.handleAddMedication).Methods(http.MethodPost)
	r.HandleFunc("/patients/{id}/conditions", h.handleAddCondition).Methods(http.MethodPost)
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

func (h *Handler) handleAddVital(w http.ResponseWriter, r *http.Request) {
	patientID, ok := h.patientScope(w, r)
	if !ok {
		return
	}
	var req models.CreateVitalRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpapi.WriteJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request"})
		return
	}
	vital, err := h.service.AddVital(r.Context(), patientID, req)
	if err != nil {
		logger.Log.WithError(err).Error("failed to add vital")
		httpapi.WriteError(w, err)
		return
	}
	httpapi.WriteJSON(w, http.StatusCreated, map[string]interface{}{"vital": vital})
}

func (h *Handler) handleAddLab(w http.ResponseWriter, r *http.Request) {
	patientID, ok := h.patientScope(w, r)
	if !ok {
		return
	}
	var req models.CreateLabRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpapi.WriteJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request"})
		return
	}
	lab, err := h.service.AddLab(r.Context(), patientID, req)
	if err != nil {
		httpapi.WriteError(w, err)
		return
	}
	httpapi.WriteJSON(w, http.StatusCreated, map[string]interface{}{"lab": lab})
}

func (h *Handler) handleAddMedication(w http.ResponseWriter, r *http.Request) {
	patientID, ok := h.patientScope(w, r)
	if !ok {
		return
	}
	var req models.CreateMedicationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpapi.WriteJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request"})
		return
	}
	med, err := h.service.AddMedication(r.Context(), patientID, req)
	if err != nil {
		httpapi.WriteError(w, err)
		return
	}
	httpapi.WriteJSON(w, http.StatusCreated, map[string]interface{}{"medication": med})
}

func (h *Handler) handleAddCondition(w http.ResponseWriter, r *http.Request) {
	patientID, ok := h.patientScope(w, r)
	if !ok {
		return
	}
	var req models.CreateConditionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpapi.WriteJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request"})
		return
	}
	cond, err := h.service.AddCondition(r.Context(), patientID, req)
	if err != nil {
		httpapi.WriteError(w, err)
		return
	}
	httpapi.WriteJSON(w, http.StatusCreated, map[string]interface{}{"condition": cond})
}
