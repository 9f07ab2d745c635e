package insights

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/medichat/platform/pkg/access"
	"github.com/medichat/platform/pkg/common/faults"
	"github.com/medichat/platform/pkg/common/httpapi"
	"github.com/medichat/platform/pkg/common/logger"
)

type Handler struct {
	service *Service
	authz   access.Authorizer
}

func NewHandler(service *Service, authz access.Authorizer) *Handler {
	return &Handler{service: service, authz: authz}
}

func (h *Handler) Register(r *mux.Router) {
	r.HandleFunc("/documents/{id}/insights", h.handleDocumentInsights).Methods(http.MethodGet)
	r.HandleFunc("/patients/{id}/overview", h.handlePatientOverview).Methods(http.MethodGet)
}

func (h *Handler) handleDocumentInsights(w http.ResponseWriter, r *http.Request) {
	documentID, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		httpapi.WriteJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid document id"})
		return
	}
	actor, err := httpapi.Actor(r)
	if err != nil {
		httpapi.WriteError(w, err)
		return
	}

	view, err := h.service.DocumentInsights(r.Context(), documentID)
	if err != nil {
		logger.Log.WithError(err).WithField("document_id", documentID.String()).Error("document insights failed")
		httpapi.WriteError(w, err)
		return
	}

	ok, err := h.authz.Authorize(r.Context(), actor, view.Document.PatientUserID)
	if err != nil {
		httpapi.WriteError(w, err)
		return
	}
	if !ok {
		httpapi.WriteError(w, faults.ErrForbidden)
		return
	}
	httpapi.WriteJSON(w, http.StatusOK, view)
}

func (h *Handler) handlePatientOverview(w http.ResponseWriter, r *http.Request) {
	patientID, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		httpapi.WriteJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid patient id"})
		return
	}
	actor, err := httpapi.Actor(r)
	if err != nil {
		httpapi.WriteError(w, err)
		return
	}
	ok, err := h.authz.Authorize(r.Context(), actor, patientID)
	if err != nil {
		httpapi.WriteError(w, err)
		return
	}
	if !ok {
		httpapi.WriteError(w, faults.ErrForbidden)
		return
	}

	view, err := h.service.PatientOverview(r.Context(), patientID)
	if err != nil {
		logger.Log.WithError(err).WithField("patient_user_id", patientID.String()).Error("patient overview failed")
		httpapi.WriteError(w, err)
		return
	}
	httpapi.WriteJSON(w, http.StatusOK, view)
}
