package documents

import (
	"io"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/medichat/platform/pkg/access"
	"github.com/medichat/platform/pkg/common/faults"
	"github.com/medichat/platform/pkg/common/httpapi"
	"github.com/medichat/platform/pkg/common/logger"
)

const defaultListLimit = 50

type Handler struct {
	service   *Service
	authz     access.Authorizer
	maxUpload int64
}

func NewHandler(service *Service, authz access.Authorizer, maxUpload int64) *Handler {
	return &Handler{service: service, authz: authz, maxUpload: maxUpload}
}

func (h *Handler) Register(r *mux.Router) {
	r.HandleFunc("/documents/upload", h.handleUpload).Methods(http.MethodPost)
	r.HandleFunc("/documents", h.handleList).Methods(http.MethodGet)
	r.HandleFunc("/documents/{id}/parse", h.handleParse).Methods(http.MethodPost)
	r.HandleFunc("/documents/{id}/download", h.handleDownload).Methods(http.MethodGet)
}

func (h *Handler) handleUpload(w http.ResponseWriter, r *http.Request) {
	actor, err := httpapi.Actor(r)
	if err != nil {
		httpapi.WriteError(w, err)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.maxUpload)
	if err := r.ParseMultipartForm(h.maxUpload); err != nil {
		httpapi.WriteJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid multipart upload"})
		return
	}

	patientID := actor
	if raw := r.FormValue("patientUserId"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			httpapi.WriteJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid patientUserId"})
			return
		}
		patientID = id
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

	file, header, err := r.FormFile("file")
	if err != nil {
		httpapi.WriteJSON(w, http.StatusBadRequest, map[string]string{"error": "file field is required"})
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		httpapi.WriteJSON(w, http.StatusBadRequest, map[string]string{"error": "could not read upload"})
		return
	}

	contentType := header.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	doc, err := h.service.RegisterUploaded(r.Context(), patientID, actor, header.Filename, contentType, data)
	if err != nil {
		logger.Log.WithError(err).Error("document upload failed")
		httpapi.WriteError(w, err)
		return
	}
	httpapi.WriteJSON(w, http.StatusCreated, map[string]interface{}{"document": doc})
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	actor, err := httpapi.Actor(r)
	if err != nil {
		httpapi.WriteError(w, err)
		return
	}

	patientID := actor
	if raw := r.URL.Query().Get("patientUserId"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			httpapi.WriteJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid patientUserId"})
			return
		}
		patientID = id
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

	docs, err := h.service.List(r.Context(), patientID, httpapi.ParseLimit(r, defaultListLimit))
	if err != nil {
		logger.Log.WithError(err).Error("document list failed")
		httpapi.WriteError(w, err)
		return
	}
	httpapi.WriteJSON(w, http.StatusOK, map[string]interface{}{"documents": docs})
}

// documentScope loads the document from the path id and checks that the
// actor may act on its patient.
func (h *Handler) documentScope(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	documentID, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		httpapi.WriteJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid document id"})
		return uuid.Nil, false
	}
	actor, err := httpapi.Actor(r)
	if err != nil {
		httpapi.WriteError(w, err)
		return uuid.Nil, false
	}
	doc, err := h.service.Get(r.Context(), documentID)
	if err != nil {
		httpapi.WriteError(w, err)
		return uuid.Nil, false
	}
	ok, err := h.authz.Authorize(r.Context(), actor, doc.PatientUserID)
	if err != nil {
		httpapi.WriteError(w, err)
		return uuid.Nil, false
	}
	if !ok {
		httpapi.WriteError(w, faults.ErrForbidden)
		return uuid.Nil, false
	}
	return documentID, true
}

func (h *Handler) handleParse(w http.ResponseWriter, r *http.Request) {
	documentID, ok := h.documentScope(w, r)
	if !ok {
		return
	}
	outcome, err := h.service.RequestParse(r.Context(), documentID)
	if err != nil {
		logger.Log.WithError(err).WithField("document_id", documentID.String()).Warn("parse request failed")
		httpapi.WriteError(w, err)
		return
	}
	httpapi.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"document": outcome.Document,
		"created": map[string]int{
			"vitals":      len(outcome.Created.Vitals),
			"labs":        len(outcome.Created.Labs),
			"medications": len(outcome.Created.Medications),
			"conditions":  len(outcome.Created.Conditions),
		},
		"dropped": len(outcome.Dropped),
	})
}

func (h *Handler) handleDownload(w http.ResponseWriter, r *http.Request) {
	documentID, ok := h.documentScope(w, r)
	if !ok {
		return
	}
	doc, data, err := h.service.Download(r.Context(), documentID)
	if err != nil {
		logger.Log.WithError(err).Error("document download failed")
		httpapi.WriteError(w, err)
		return
	}
	w.Header().Set("Content-Type", doc.ContentType)
	w.Header().Set("Content-Disposition", `attachment; filename="`+doc.OriginalFileName+`"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}
