package documents

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/medichat/platform/pkg/ai"
	"github.com/medichat/platform/pkg/blobstore"
	"github.com/medichat/platform/pkg/common/faults"
	"github.com/medichat/platform/pkg/common/kafka"
	"github.com/medichat/platform/pkg/common/logger"
	"github.com/medichat/platform/pkg/common/models"
	"github.com/medichat/platform/pkg/consolidate"
	"github.com/medichat/platform/pkg/terminology"
	"github.com/stretchr/testify/assert"
)

func TestMain(m *testing.M) {
	logger.Init()
	m.Run()
}

type mockStore struct {
	mu          sync.Mutex
	docs        map[uuid.UUID]models.Document
	extractions []models.Extraction
	created     []models.CreatedRecords
}

var _ Store = (*mockStore)(nil)

func newMockStore() *mockStore {
	return &mockStore{docs: map[uuid.UUID]models.Document{}}
}

func (m *mockStore) Create(ctx context.Context, doc models.Document) (models.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if doc.ID == uuid.Nil {
		doc.ID = uuid.New()
	}
	doc.Status = models.DocumentStatusUploaded
	doc.CreatedAt = time.Now().UTC()
	m.docs[doc.ID] = doc
	return doc, nil
}

func (m *mockStore) Get(ctx context.Context, id uuid.UUID) (models.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	doc, ok := m.docs[id]
	if !ok {
		return models.Document{}, fmt.Errorf("document %s: %w", id, faults.ErrNotFound)
	}
	return doc, nil
}

func (m *mockStore) ListByPatient(ctx context.Context, patientUserID uuid.UUID, limit int) ([]models.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Document
	for _, doc := range m.docs {
		if doc.PatientUserID == patientUserID {
			out = append(out, doc)
		}
	}
	return out, nil
}

func (m *mockStore) LatestExtraction(ctx context.Context, documentID uuid.UUID) (*models.Extraction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := len(m.extractions) - 1; i >= 0; i-- {
		if m.extractions[i].DocumentID == documentID {
			ext := m.extractions[i]
			return &ext, nil
		}
	}
	return nil, nil
}

func (m *mockStore) CommitParse(ctx context.Context, documentID uuid.UUID, fromStatus string, ext models.Extraction, created models.CreatedRecords) (models.Document, models.Extraction, models.CreatedRecords, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	doc, ok := m.docs[documentID]
	if !ok {
		return models.Document{}, models.Extraction{}, models.CreatedRecords{}, faults.ErrNotFound
	}
	if doc.Status != fromStatus {
		return models.Document{}, models.Extraction{}, models.CreatedRecords{}, fmt.Errorf("status moved: %w", faults.ErrConflict)
	}
	now := ext.CreatedAt
	doc.Status = models.DocumentStatusParsed
	doc.ParsedAt = &now
	doc.ParseError = nil
	m.docs[documentID] = doc
	m.extractions = append(m.extractions, ext)
	m.created = append(m.created, created)
	return doc, ext, created, nil
}

func (m *mockStore) MarkParseError(ctx context.Context, documentID uuid.UUID, fromStatus, message string) (models.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	doc, ok := m.docs[documentID]
	if !ok {
		return models.Document{}, faults.ErrNotFound
	}
	if doc.Status != fromStatus {
		return models.Document{}, fmt.Errorf("status moved: %w", faults.ErrConflict)
	}
	doc.Status = models.DocumentStatusError
	doc.ParseError = &message
	doc.ParsedAt = nil
	m.docs[documentID] = doc
	return doc, nil
}

type mockExtractor struct {
	extractFunc func(ctx context.Context, data []byte, contentType string) (json.RawMessage, error)
}

var _ ai.Extractor = (*mockExtractor)(nil)

func (m *mockExtractor) Extract(ctx context.Context, data []byte, contentType string) (json.RawMessage, error) {
	return m.extractFunc(ctx, data, contentType)
}

func (m *mockExtractor) Model() string { return "test-extractor" }

type mockClaimer struct {
	mu   sync.Mutex
	held map[string]bool
}

func newMockClaimer() *mockClaimer { return &mockClaimer{held: map[string]bool{}} }

func (m *mockClaimer) Claim(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.held[key] {
		return false, nil
	}
	m.held[key] = true
	return true, nil
}

func (m *mockClaimer) Release(ctx context.Context, key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.held, key)
}

func newTestService(store Store, extractor ai.Extractor) (*Service, *blobstore.MemoryStore) {
	blobs := blobstore.NewMemoryStore()
	return NewService(
		store,
		blobs,
		extractor,
		consolidate.New(terminology.DefaultCatalog()),
		newMockClaimer(),
		kafka.NoopPublisher{},
		"documents",
		time.Minute,
	), blobs
}

func uploadFixture(t *testing.T, svc *Service, patientID uuid.UUID) models.Document {
	t.Helper()
	doc, err := svc.RegisterUploaded(context.Background(), patientID, patientID, "visit-summary.pdf", "application/pdf", []byte("%PDF-1.7 fixture"))
	assert.NoError(t, err)
	return doc
}

func TestRegisterUploadedStartsInUploadedStatus(t *testing.T) {
	store := newMockStore()
	svc, blobs := newTestService(store, &mockExtractor{})
	patientID := uuid.New()

	doc := uploadFixture(t, svc, patientID)

	assert.Equal(t, models.DocumentStatusUploaded, doc.Status)
	assert.Equal(t, patientID, doc.PatientUserID)
	assert.NotNil(t, doc.Bucket)
	assert.NotNil(t, doc.ObjectKey)
	assert.Equal(t, int64(len("%PDF-1.7 fixture")), doc.SizeBytes)

	data, err := blobs.Get(context.Background(), *doc.Bucket, *doc.ObjectKey)
	assert.NoError(t, err)
	assert.Equal(t, []byte("%PDF-1.7 fixture"), data)
}

func TestRegisterUploadedRejectsEmptyFile(t *testing.T) {
	svc, _ := newTestService(newMockStore(), &mockExtractor{})

	_, err := svc.RegisterUploaded(context.Background(), uuid.New(), uuid.New(), "empty.pdf", "application/pdf", nil)

	var verr *faults.ValidationError
	assert.ErrorAs(t, err, &verr)
}

func TestRequestParseCreatesRecordsAndMarksParsed(t *testing.T) {
	store := newMockStore()
	extractor := &mockExtractor{
		extractFunc: func(ctx context.Context, data []byte, contentType string) (json.RawMessage, error) {
			return json.RawMessage(`{
				"vitals": [{"systolic": 128, "diastolic": 84, "heartRate": 77}],
				"labs": [{"testName": "HbA1c", "valueText": "6.1", "unit": "%", "flag": "high"}],
				"medications": [{"medicationName": "metformin", "dose": "500 mg"}],
				"conditions": [{"conditionName": "type 2 diabetes"}]
			}`), nil
		},
	}
	svc, _ := newTestService(store, extractor)
	doc := uploadFixture(t, svc, uuid.New())

	outcome, err := svc.RequestParse(context.Background(), doc.ID)

	assert.NoError(t, err)
	assert.Equal(t, models.DocumentStatusParsed, outcome.Document.Status)
	assert.NotNil(t, outcome.Document.ParsedAt)
	assert.Nil(t, outcome.Document.ParseError)
	assert.Equal(t, 4, outcome.Created.Total())
	assert.Empty(t, outcome.Dropped)
	assert.Equal(t, "test-extractor", outcome.Extraction.Model)
	assert.Len(t, store.created, 1)
}

func TestRequestParseRejectsAlreadyParsedDocument(t *testing.T) {
	store := newMockStore()
	extractor := &mockExtractor{
		extractFunc: func(ctx context.Context, data []byte, contentType string) (json.RawMessage, error) {
			return json.RawMessage(`{}`), nil
		},
	}
	svc, _ := newTestService(store, extractor)
	doc := uploadFixture(t, svc, uuid.New())

	_, err := svc.RequestParse(context.Background(), doc.ID)
	assert.NoError(t, err)

	_, err = svc.RequestParse(context.Background(), doc.ID)
	assert.ErrorIs(t, err, faults.ErrInvalidState)
	assert.Len(t, store.extractions, 1)
}

func TestRequestParseTimeoutMovesDocumentToError(t *testing.T) {
	store := newMockStore()
	extractor := &mockExtractor{
		extractFunc: func(ctx context.Context, data []byte, contentType string) (json.RawMessage, error) {
			return nil, fmt.Errorf("extract: %w", faults.ErrUpstreamTimeout)
		},
	}
	svc, _ := newTestService(store, extractor)
	doc := uploadFixture(t, svc, uuid.New())

	_, err := svc.RequestParse(context.Background(), doc.ID)
	assert.ErrorIs(t, err, faults.ErrUpstreamTimeout)

	stored, getErr := store.Get(context.Background(), doc.ID)
	assert.NoError(t, getErr)
	assert.Equal(t, models.DocumentStatusError, stored.Status)
	assert.NotNil(t, stored.ParseError)
	assert.Equal(t, "extraction timed out", *stored.ParseError)
	assert.Empty(t, store.created)
}

func TestRequestParseInvalidPayloadMovesDocumentToError(t *testing.T) {
	store := newMockStore()
	extractor := &mockExtractor{
		extractFunc: func(ctx context.Context, data []byte, contentType string) (json.RawMessage, error) {
			return json.RawMessage(`["not", "an", "object"]`), nil
		},
	}
	svc, _ := newTestService(store, extractor)
	doc := uploadFixture(t, svc, uuid.New())

	_, err := svc.RequestParse(context.Background(), doc.ID)
	assert.ErrorIs(t, err, faults.ErrUpstreamInvalid)

	stored, _ := store.Get(context.Background(), doc.ID)
	assert.Equal(t, models.DocumentStatusError, stored.Status)
	assert.Empty(t, store.extractions)
}

func TestRequestParseErrorDocumentIsRetryable(t *testing.T) {
	store := newMockStore()
	attempts := 0
	extractor := &mockExtractor{
		extractFunc: func(ctx context.Context, data []byte, contentType string) (json.RawMessage, error) {
			attempts++
			if attempts == 1 {
				return nil, fmt.Errorf("extract: %w", faults.ErrUpstreamTimeout)
			}
			return json.RawMessage(`{"labs": [{"testName": "TSH", "valueText": "2.1"}]}`), nil
		},
	}
	svc, _ := newTestService(store, extractor)
	doc := uploadFixture(t, svc, uuid.New())

	_, err := svc.RequestParse(context.Background(), doc.ID)
	assert.ErrorIs(t, err, faults.ErrUpstreamTimeout)

	outcome, err := svc.RequestParse(context.Background(), doc.ID)
	assert.NoError(t, err)
	assert.Equal(t, models.DocumentStatusParsed, outcome.Document.Status)
	assert.Nil(t, outcome.Document.ParseError)
	assert.Equal(t, 1, outcome.Created.Total())
}

func TestRequestParseInFlightClaimConflicts(t *testing.T) {
	store := newMockStore()
	release := make(chan struct{})
	started := make(chan struct{})
	extractor := &mockExtractor{
		extractFunc: func(ctx context.Context, data []byte, contentType string) (json.RawMessage, error) {
			close(started)
			<-release
			return json.RawMessage(`{}`), nil
		},
	}
	svc, _ := newTestService(store, extractor)
	doc := uploadFixture(t, svc, uuid.New())

	done := make(chan error, 1)
	go func() {
		_, err := svc.RequestParse(context.Background(), doc.ID)
		done <- err
	}()
	<-started

	_, err := svc.RequestParse(context.Background(), doc.ID)
	assert.ErrorIs(t, err, faults.ErrConflict)

	close(release)
	assert.NoError(t, <-done)
}

func TestRequestParseEmptyExtractionStillParses(t *testing.T) {
	store := newMockStore()
	extractor := &mockExtractor{
		extractFunc: func(ctx context.Context, data []byte, contentType string) (json.RawMessage, error) {
			return json.RawMessage(`{"vitals": [], "labs": []}`), nil
		},
	}
	svc, _ := newTestService(store, extractor)
	doc := uploadFixture(t, svc, uuid.New())

	outcome, err := svc.RequestParse(context.Background(), doc.ID)

	assert.NoError(t, err)
	assert.Equal(t, models.DocumentStatusParsed, outcome.Document.Status)
	assert.Zero(t, outcome.Created.Total())
}

func TestRequestParseUnknownDocument(t *testing.T) {
	svc, _ := newTestService(newMockStore(), &mockExtractor{})

	_, err := svc.RequestParse(context.Background(), uuid.New())
	assert.ErrorIs(t, err, faults.ErrNotFound)
}

func TestDownloadReturnsStoredBytes(t *testing.T) {
	svc, _ := newTestService(newMockStore(), &mockExtractor{})
	doc := uploadFixture(t, svc, uuid.New())

	got, data, err := svc.Download(context.Background(), doc.ID)
	assert.NoError(t, err)
	assert.Equal(t, doc.ID, got.ID)
	assert.Equal(t, []byte("%PDF-1.7 fixture"), data)
}

func TestRequestParseSurvivesCallerCancellation(t *testing.T) {
	store := newMockStore()
	extractor := &mockExtractor{
		extractFunc: func(ctx context.Context, data []byte, contentType string) (json.RawMessage, error) {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			return json.RawMessage(`{}`), nil
		},
	}
	svc, _ := newTestService(store, extractor)
	doc := uploadFixture(t, svc, uuid.New())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	// The parse work runs on a detached context, so a dropped client must
	// not leave the document half-finished.
	_, err := svc.RequestParse(ctx, doc.ID)
	assert.NoError(t, err)
	stored, _ := store.Get(context.Background(), doc.ID)
	assert.Equal(t, models.DocumentStatusParsed, stored.Status)
}
