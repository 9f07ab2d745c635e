package documents

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/medichat/platform/pkg/ai"
	"github.com/medichat/platform/pkg/blobstore"
	"github.com/medichat/platform/pkg/common/faults"
	"github.com/medichat/platform/pkg/common/kafka"
	"github.com/medichat/platform/pkg/common/logger"
	"github.com/medichat/platform/pkg/common/models"
	"github.com/medichat/platform/pkg/consolidate"
	"github.com/medichat/platform/pkg/locks"
	"github.com/medichat/platform/pkg/observability/metrics"
)

// Store is the persistence contract for the document lifecycle.
type Store interface {
	Create(ctx context.Context, doc models.Document) (models.Document, error)
	Get(ctx context.Context, id uuid.UUID) (models.Document, error)
	ListByPatient(ctx context.Context, patientUserID uuid.UUID, limit int) ([]models.Document, error)
	LatestExtraction(ctx context.Context, documentID uuid.UUID) (*models.Extraction, error)
	CommitParse(ctx context.Context, documentID uuid.UUID, fromStatus string, ext models.Extraction, created models.CreatedRecords) (models.Document, models.Extraction, models.CreatedRecords, error)
	MarkParseError(ctx context.Context, documentID uuid.UUID, fromStatus, message string) (models.Document, error)
}

type Publisher interface {
	PublishEvent(ctx context.Context, eventType, source string, data map[string]interface{}) error
}

// ParseOutcome is what one successful parse produced.
type ParseOutcome struct {
	Document   models.Document
	Extraction models.Extraction
	Created    models.CreatedRecords
	Dropped    []consolidate.Drop
}

// Service owns the document state machine: uploaded -> parsed | error,
// with error documents eligible for re-parse.
type Service struct {
	store        Store
	blobs        blobstore.Store
	extractor    ai.Extractor
	consolidator *consolidate.Consolidator
	claims       locks.Claimer
	publisher    Publisher
	bucket       string
	claimTTL     time.Duration
	now          func() time.Time
}

func NewService(store Store, blobs blobstore.Store, extractor ai.Extractor, consolidator *consolidate.Consolidator, claims locks.Claimer, publisher Publisher, bucket string, claimTTL time.Duration) *Service {
	return &Service{
		store:        store,
		blobs:        blobs,
		extractor:    extractor,
		consolidator: consolidator,
		claims:       claims,
		publisher:    publisher,
		bucket:       bucket,
		claimTTL:     claimTTL,
		now:          func() time.Time { return time.Now().UTC() },
	}
}

// RegisterUploaded stores the raw bytes and creates the document row in
// uploaded status. The row exists only after a successful blob store.
func (s *Service) RegisterUploaded(ctx context.Context, patientUserID, uploadedByUserID uuid.UUID, fileName, contentType string, data []byte) (models.Document, error) {
	if fileName == "" {
		return models.Document{}, &faults.ValidationError{Fields: []string{"fileName is required"}}
	}
	if len(data) == 0 {
		return models.Document{}, &faults.ValidationError{Fields: []string{"file is empty"}}
	}

	key := blobstore.NewObjectKey(patientUserID, fileName)
	if err := s.blobs.Put(ctx, s.bucket, key, data); err != nil {
		return models.Document{}, fmt.Errorf("storing blob: %w", err)
	}

	bucket := s.bucket
	doc, err := s.store.Create(ctx, models.Document{
		PatientUserID:    patientUserID,
		UploadedByUserID: uploadedByUserID,
		OriginalFileName: fileName,
		ContentType:      contentType,
		SizeBytes:        int64(len(data)),
		Bucket:           &bucket,
		ObjectKey:        &key,
	})
	if err != nil {
		return models.Document{}, err
	}

	metrics.IncDocumentsRegistered()
	_ = s.publisher.PublishEvent(ctx, kafka.EventDocumentUploaded, "documents", map[string]interface{}{
		"document_id":     doc.ID.String(),
		"patient_user_id": doc.PatientUserID.String(),
		"content_type":    doc.ContentType,
		"size_bytes":      doc.SizeBytes,
	})
	return doc, nil
}

// RequestParse runs one parse attempt end to end. Parsed documents are
// rejected; error documents are retryable. The attempt is detached from the
// caller's context so a client disconnect cannot strand a half-finished
// extraction.
func (s *Service) RequestParse(ctx context.Context, documentID uuid.UUID) (ParseOutcome, error) {
	doc, err := s.store.Get(ctx, documentID)
	if err != nil {
		return ParseOutcome{}, err
	}
	if doc.Status == models.DocumentStatusParsed {
		return ParseOutcome{}, fmt.Errorf("document %s already parsed: %w", documentID, faults.ErrInvalidState)
	}
	if doc.Bucket == nil || doc.ObjectKey == nil {
		return ParseOutcome{}, fmt.Errorf("document %s has no stored blob: %w", documentID, faults.ErrInvalidState)
	}

	claimKey := "parse:" + documentID.String()
	claimed, err := s.claims.Claim(ctx, claimKey, s.claimTTL)
	if err != nil {
		return ParseOutcome{}, fmt.Errorf("acquiring parse claim: %w", err)
	}
	if !claimed {
		metrics.IncClaimConflicts()
		return ParseOutcome{}, fmt.Errorf("parse already in flight for document %s: %w", documentID, faults.ErrConflict)
	}

	// The upstream call is billed whether or not the caller sticks around;
	// run to completion or timeout server-side.
	runCtx := context.WithoutCancel(ctx)
	defer s.claims.Release(runCtx, claimKey)

	return s.parse(runCtx, doc)
}

func (s *Service) parse(ctx context.Context, doc models.Document) (ParseOutcome, error) {
	data, err := s.blobs.Get(ctx, *doc.Bucket, *doc.ObjectKey)
	if err != nil {
		return ParseOutcome{}, s.fail(ctx, doc, fmt.Errorf("fetching blob: %w", err), "stored document unavailable")
	}

	payload, err := s.extractor.Extract(ctx, data, doc.ContentType)
	if err != nil {
		switch {
		case errors.Is(err, faults.ErrUpstreamTimeout):
			return ParseOutcome{}, s.fail(ctx, doc, err, "extraction timed out")
		case errors.Is(err, faults.ErrUpstreamInvalid):
			return ParseOutcome{}, s.fail(ctx, doc, err, "extraction returned an unusable response")
		default:
			return ParseOutcome{}, s.fail(ctx, doc, err, "extraction failed")
		}
	}

	res, err := s.consolidator.Consolidate(payload, doc.PatientUserID, s.now())
	if err != nil {
		wrapped := fmt.Errorf("%w: %v", faults.ErrUpstreamInvalid, err)
		return ParseOutcome{}, s.fail(ctx, doc, wrapped, "extraction payload rejected")
	}

	ext := models.Extraction{
		ID:            uuid.New(),
		DocumentID:    doc.ID,
		Model:         s.extractor.Model(),
		ExtractedJSON: payload,
		CreatedAt:     s.now(),
	}

	updated, ext, created, err := s.store.CommitParse(ctx, doc.ID, doc.Status, ext, res.Created())
	if err != nil {
		if errors.Is(err, faults.ErrConflict) {
			metrics.IncClaimConflicts()
		}
		return ParseOutcome{}, err
	}

	metrics.IncDocumentsParsed()
	metrics.AddRecordsCreated(created.Total())
	metrics.AddCandidatesDropped(len(res.Dropped))

	for _, drop := range res.Dropped {
		logger.Log.WithFields(map[string]interface{}{
			"document_id": doc.ID.String(),
			"kind":        drop.Kind,
			"index":       drop.Index,
			"reason":      drop.Reason,
		}).Warn("consolidation dropped a candidate")
	}

	_ = s.publisher.PublishEvent(ctx, kafka.EventDocumentParsed, "documents", map[string]interface{}{
		"document_id":     doc.ID.String(),
		"patient_user_id": doc.PatientUserID.String(),
		"extraction_id":   ext.ID.String(),
		"records_created": created.Total(),
		"dropped":         len(res.Dropped),
	})

	return ParseOutcome{Document: updated, Extraction: ext, Created: created, Dropped: res.Dropped}, nil
}

// fail transitions the document to error with a human-readable cause and
// returns the original failure. No clinical records are created on this
// path.
func (s *Service) fail(ctx context.Context, doc models.Document, cause error, message string) error {
	metrics.IncParseFailures()

	if _, markErr := s.store.MarkParseError(ctx, doc.ID, doc.Status, message); markErr != nil {
		logger.Log.WithError(markErr).WithField("document_id", doc.ID.String()).
			Error("failed to record parse error")
	}

	_ = s.publisher.PublishEvent(ctx, kafka.EventDocumentParseFailed, "documents", map[string]interface{}{
		"document_id":     doc.ID.String(),
		"patient_user_id": doc.PatientUserID.String(),
		"reason":          message,
	})

	return fmt.Errorf("%s: %w", message, cause)
}

func (s *Service) Get(ctx context.Context, documentID uuid.UUID) (models.Document, error) {
	return s.store.Get(ctx, documentID)
}

func (s *Service) List(ctx context.Context, patientUserID uuid.UUID, limit int) ([]models.Document, error) {
	return s.store.ListByPatient(ctx, patientUserID, limit)
}

// Download returns the raw stored bytes for open/download views.
func (s *Service) Download(ctx context.Context, documentID uuid.UUID) (models.Document, []byte, error) {
	doc, err := s.store.Get(ctx, documentID)
	if err != nil {
		return models.Document{}, nil, err
	}
	if doc.Bucket == nil || doc.ObjectKey == nil {
		return models.Document{}, nil, fmt.Errorf("document %s has no stored blob: %w", documentID, faults.ErrNotFound)
	}
	data, err := s.blobs.Get(ctx, *doc.Bucket, *doc.ObjectKey)
	if err != nil {
		return models.Document{}, nil, err
	}
	return doc, data, nil
}
