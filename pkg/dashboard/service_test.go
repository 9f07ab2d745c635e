package dashboard

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/medichat/platform/pkg/ai"
	"github.com/medichat/platform/pkg/common/faults"
	"github.com/medichat/platform/pkg/common/kafka"
	"github.com/medichat/platform/pkg/common/logger"
	"github.com/medichat/platform/pkg/common/models"
	"github.com/stretchr/testify/assert"
)

func TestMain(m *testing.M) {
	logger.Init()
	m.Run()
}

type mockStore struct {
	mu   sync.Mutex
	rows []models.DailyDashboard
}

var _ Store = (*mockStore)(nil)

func (m *mockStore) FindCurrent(ctx context.Context, patientUserID uuid.UUID, date string) (*models.DailyDashboard, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var current *models.DailyDashboard
	for i := range m.rows {
		row := m.rows[i]
		if row.PatientUserID != patientUserID || row.Date != date || row.Status != models.DashboardStatusGenerated {
			continue
		}
		if current == nil || row.CreatedAt.After(current.CreatedAt) {
			current = &row
		}
	}
	return current, nil
}

func (m *mockStore) Insert(ctx context.Context, d models.DailyDashboard, snapshot models.PatientSnapshot) (models.DailyDashboard, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	m.rows = append(m.rows, d)
	return d, nil
}

type mockProfiles struct {
	profile *models.PatientProfile
}

func (m *mockProfiles) GetOrNil(ctx context.Context, patientUserID uuid.UUID) (*models.PatientProfile, error) {
	return m.profile, nil
}

type mockRecords struct {
	recent models.CreatedRecords
	counts models.InsightCounts
}

func (m *mockRecords) Recent(ctx context.Context, patientUserID uuid.UUID, limit int) (models.CreatedRecords, error) {
	return m.recent, nil
}

func (m *mockRecords) Counts(ctx context.Context, patientUserID uuid.UUID) (models.InsightCounts, error) {
	return m.counts, nil
}

type mockSummarizer struct {
	mu        sync.Mutex
	calls     int
	snapshots []models.PatientSnapshot
	fn        func() (json.RawMessage, error)
}

var _ ai.Summarizer = (*mockSummarizer)(nil)

func (m *mockSummarizer) Summarize(ctx context.Context, snapshot models.PatientSnapshot) (json.RawMessage, error) {
	m.mu.Lock()
	m.calls++
	m.snapshots = append(m.snapshots, snapshot)
	m.mu.Unlock()
	return m.fn()
}

func (m *mockSummarizer) Model() string { return "test-summarizer" }

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

func goodSummary() (json.RawMessage, error) {
	return json.RawMessage(`{
		"overview": "Blood pressure trending high over the last week.",
		"insights": ["Systolic readings above 130 on three days"],
		"recommendations": ["Re-check blood pressure in the morning"],
		"redFlags": [],
		"suggestedFollowUps": ["Discuss readings at the next appointment"]
	}`), nil
}

func newTestService(store *mockStore, summarizer *mockSummarizer) *Service {
	svc := NewService(
		store,
		&mockProfiles{},
		&mockRecords{counts: models.InsightCounts{Labs: 3, FlaggedLabs: 1}},
		summarizer,
		newMockClaimer(),
		kafka.NoopPublisher{},
		time.Minute,
	)
	fixed := time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)
	svc.now = func() time.Time { return fixed }
	return svc
}

func TestGenerateProducesDashboardForToday(t *testing.T) {
	store := &mockStore{}
	summarizer := &mockSummarizer{fn: goodSummary}
	svc := newTestService(store, summarizer)
	patientID := uuid.New()

	res, err := svc.Generate(context.Background(), patientID, false)

	assert.NoError(t, err)
	assert.False(t, res.Reused)
	assert.Equal(t, "2026-03-14", res.Dashboard.Date)
	assert.Equal(t, models.DashboardStatusGenerated, res.Dashboard.Status)
	assert.Equal(t, "test-summarizer", res.Dashboard.Model)
	assert.Equal(t, "Blood pressure trending high over the last week.", res.Dashboard.DashboardJSON.Overview)
	assert.Equal(t, 1, summarizer.calls)
}

func TestGenerateIsIdempotentPerDay(t *testing.T) {
	store := &mockStore{}
	summarizer := &mockSummarizer{fn: goodSummary}
	svc := newTestService(store, summarizer)
	patientID := uuid.New()

	first, err := svc.Generate(context.Background(), patientID, false)
	assert.NoError(t, err)

	second, err := svc.Generate(context.Background(), patientID, false)
	assert.NoError(t, err)
	assert.True(t, second.Reused)
	assert.Equal(t, first.Dashboard.ID, second.Dashboard.ID)
	assert.Equal(t, 1, summarizer.calls, "reuse must not call the summarizer")
}

func TestGenerateForceCreatesNewDashboard(t *testing.T) {
	store := &mockStore{}
	summarizer := &mockSummarizer{fn: goodSummary}
	svc := newTestService(store, summarizer)
	patientID := uuid.New()

	first, err := svc.Generate(context.Background(), patientID, false)
	assert.NoError(t, err)

	svc.now = func() time.Time { return time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC) }
	forced, err := svc.Generate(context.Background(), patientID, true)
	assert.NoError(t, err)
	assert.False(t, forced.Reused)
	assert.NotEqual(t, first.Dashboard.ID, forced.Dashboard.ID)
	assert.Equal(t, 2, summarizer.calls)

	// The forced row is now the current one for the day.
	current, err := svc.Current(context.Background(), patientID, "2026-03-14")
	assert.NoError(t, err)
	assert.Equal(t, forced.Dashboard.ID, current.ID)
}

func TestGenerateSummarizerFailurePersistsNothing(t *testing.T) {
	store := &mockStore{}
	summarizer := &mockSummarizer{fn: func() (json.RawMessage, error) {
		return nil, fmt.Errorf("summarize: %w", faults.ErrUpstreamTimeout)
	}}
	svc := newTestService(store, summarizer)
	patientID := uuid.New()

	_, err := svc.Generate(context.Background(), patientID, false)
	assert.ErrorIs(t, err, faults.ErrUpstreamTimeout)
	assert.Empty(t, store.rows)

	// The day stays regenerable.
	summarizer.fn = goodSummary
	res, err := svc.Generate(context.Background(), patientID, false)
	assert.NoError(t, err)
	assert.False(t, res.Reused)
}

func TestGenerateRejectsSummaryWithoutOverview(t *testing.T) {
	store := &mockStore{}
	summarizer := &mockSummarizer{fn: func() (json.RawMessage, error) {
		return json.RawMessage(`{"insights": ["no overview present"]}`), nil
	}}
	svc := newTestService(store, summarizer)

	_, err := svc.Generate(context.Background(), uuid.New(), false)
	assert.ErrorIs(t, err, faults.ErrUpstreamInvalid)
	assert.Empty(t, store.rows)
}

func TestGenerateSnapshotCarriesProfileAndCounts(t *testing.T) {
	store := &mockStore{}
	summarizer := &mockSummarizer{fn: goodSummary}
	svc := newTestService(store, summarizer)
	patientID := uuid.New()

	age := 54
	svc.profiles = &mockProfiles{profile: &models.PatientProfile{
		PatientUserID: patientID,
		AgeYears:      &age,
		Gender:        "female",
	}}

	_, err := svc.Generate(context.Background(), patientID, false)
	assert.NoError(t, err)

	assert.Len(t, summarizer.snapshots, 1)
	snapshot := summarizer.snapshots[0]
	assert.Equal(t, patientID, snapshot.PatientUserID)
	assert.Equal(t, "2026-03-14", snapshot.Date)
	assert.NotNil(t, snapshot.Profile)
	assert.Equal(t, 54, *snapshot.Profile.AgeYears)
	assert.Equal(t, 1, snapshot.FlaggedLabs)
}

func TestGenerateClaimedDayReturnsConflict(t *testing.T) {
	store := &mockStore{}
	summarizer := &mockSummarizer{fn: goodSummary}
	svc := newTestService(store, summarizer)
	patientID := uuid.New()

	claimed, err := svc.claims.Claim(context.Background(), "dashboard:"+patientID.String()+":2026-03-14", time.Minute)
	assert.NoError(t, err)
	assert.True(t, claimed)

	_, err = svc.Generate(context.Background(), patientID, false)
	assert.ErrorIs(t, err, faults.ErrConflict)
	assert.Zero(t, summarizer.calls)
}

// hideFirstLookup returns nil on the first FindCurrent so the caller falls
// through to the claim, simulating a winner that commits between the loser's
// existence check and its claim attempt.
type hideFirstLookup struct {
	*mockStore
	skipped bool
}

func (h *hideFirstLookup) FindCurrent(ctx context.Context, patientUserID uuid.UUID, date string) (*models.DailyDashboard, error) {
	if !h.skipped {
		h.skipped = true
		return nil, nil
	}
	return h.mockStore.FindCurrent(ctx, patientUserID, date)
}

func TestGenerateClaimLoserServesFreshWinnerResult(t *testing.T) {
	inner := &mockStore{}
	summarizer := &mockSummarizer{fn: goodSummary}
	svc := newTestService(&mockStore{}, summarizer)
	svc.store = &hideFirstLookup{mockStore: inner}
	patientID := uuid.New()

	winner := models.DailyDashboard{
		ID:            uuid.New(),
		PatientUserID: patientID,
		Date:          "2026-03-14",
		Status:        models.DashboardStatusGenerated,
		CreatedAt:     time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC),
	}
	inner.rows = append(inner.rows, winner)
	_, err := svc.claims.Claim(context.Background(), "dashboard:"+patientID.String()+":2026-03-14", time.Minute)
	assert.NoError(t, err)

	res, err := svc.Generate(context.Background(), patientID, false)
	assert.NoError(t, err)
	assert.True(t, res.Reused)
	assert.Equal(t, winner.ID, res.Dashboard.ID)
	assert.Zero(t, summarizer.calls)
}
