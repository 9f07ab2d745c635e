package dashboard

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
	r.HandleFunc("/dashboards/generate", h.handleGenerate).Methods(http.MethodPost)
}

func (h *Handler) handleGenerate(w http.ResponseWriter, r *http.Request) {
	actor, err := httpapi.Actor(r)
	if err != nil {
		httpapi.WriteError(w, err)
		return
	}

	var req models.GenerateDashboardRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpapi.WriteJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request"})
		return
	}
	if req.PatientUserID == uuid.Nil {
		req.PatientUserID = actor
	}

	ok, err := h.authz.Authorize(r.Context(), actor, req.PatientUserID)
	if err != nil {
		httpapi.WriteError(w, err)
		return
	}
	if !ok {
		httpapi.WriteError(w, faults.ErrForbidden)
		return
	}

	res, err := h.service.Generate(r.Context(), req.PatientUserID, req.Force)
	if err != nil {
		logger.Log.WithError(err).WithField("patient_user_id", req.PatientUserID.String()).
			Warn("dashboard generation failed")
		httpapi.WriteError(w, err)
		return
	}

	status := http.StatusCreated
	if res.Reused {
		status = http.StatusOK
	}
	httpapi.WriteJSON(w, status, map[string]interface{}{
		"dashboard": res.Dashboard,
		"reused":    res.Reused,
	})
}
