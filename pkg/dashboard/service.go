package dashboard

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/medichat/platform/pkg/ai"
	"github.com/medichat/platform/pkg/common/faults"
	"github.com/medichat/platform/pkg/common/kafka"
	"github.com/medichat/platform/pkg/common/logger"
	"github.com/medichat/platform/pkg/common/models"
	"github.com/medichat/platform/pkg/locks"
	"github.com/medichat/platform/pkg/observability/metrics"
)

// snapshotRecordLimit caps how much recent clinical history goes into one
// summarization prompt.
const snapshotRecordLimit = 50

type Store interface {
	FindCurrent(ctx context.Context, patientUserID uuid.UUID, date string) (*models.DailyDashboard, error)
	Insert(ctx context.Context, d models.DailyDashboard, snapshot models.PatientSnapshot) (models.DailyDashboard, error)
}

type ProfileSource interface {
	GetOrNil(ctx context.Context, patientUserID uuid.UUID) (*models.PatientProfile, error)
}

type RecordSource interface {
	Recent(ctx context.Context, patientUserID uuid.UUID, limit int) (models.CreatedRecords, error)
	Counts(ctx context.Context, patientUserID uuid.UUID) (models.InsightCounts, error)
}

type Publisher interface {
	PublishEvent(ctx context.Context, eventType, source string, data map[string]interface{}) error
}

// Result reports whether the dashboard was produced by this call or reused
// from an earlier generation of the same day.
type Result struct {
	Dashboard models.DailyDashboard
	Reused    bool
}

// Service generates the per-(patient, day) dashboard. Generation is
// idempotent: absent force, a day that already has a dashboard returns it
// without calling the summarizer.
type Service struct {
	store      Store
	profiles   ProfileSource
	records    RecordSource
	summarizer ai.Summarizer
	claims     locks.Claimer
	publisher  Publisher
	claimTTL   time.Duration
	now        func() time.Time
}

func NewService(store Store, profiles ProfileSource, records RecordSource, summarizer ai.Summarizer, claims locks.Claimer, publisher Publisher, claimTTL time.Duration) *Service {
	return &Service{
		store:      store,
		profiles:   profiles,
		records:    records,
		summarizer: summarizer,
		claims:     claims,
		publisher:  publisher,
		claimTTL:   claimTTL,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// Today returns the current server-side UTC calendar day.
func (s *Service) Today() string {
	return s.now().Format("2006-01-02")
}

// Current returns the day's dashboard without generating one.
func (s *Service) Current(ctx context.Context, patientUserID uuid.UUID, date string) (*models.DailyDashboard, error) {
	return s.store.FindCurrent(ctx, patientUserID, date)
}

func (s *Service) Generate(ctx context.Context, patientUserID uuid.UUID, force bool) (Result, error) {
	date := s.Today()

	if !force {
		existing, err := s.store.FindCurrent(ctx, patientUserID, date)
		if err != nil {
			return Result{}, err
		}
		if existing != nil {
			metrics.IncDashboardsReused()
			return Result{Dashboard: *existing, Reused: true}, nil
		}
	}

	claimKey := "dashboard:" + patientUserID.String() + ":" + date
	claimed, err := s.claims.Claim(ctx, claimKey, s.claimTTL)
	if err != nil {
		return Result{}, fmt.Errorf("acquiring generation claim: %w", err)
	}
	if !claimed {
		metrics.IncClaimConflicts()
		// The holder may have just finished; serve its result if so.
		existing, err := s.store.FindCurrent(ctx, patientUserID, date)
		if err != nil {
			return Result{}, err
		}
		if existing != nil && !force {
			metrics.IncDashboardsReused()
			return Result{Dashboard: *existing, Reused: true}, nil
		}
		return Result{}, fmt.Errorf("dashboard generation already in flight for %s on %s: %w", patientUserID, date, faults.ErrConflict)
	}

	// Summarization cost is incurred server-side regardless of the caller.
	runCtx := context.WithoutCancel(ctx)
	defer s.claims.Release(runCtx, claimKey)

	return s.generate(runCtx, patientUserID, date)
}

func (s *Service) generate(ctx context.Context, patientUserID uuid.UUID, date string) (Result, error) {
	snapshot, err := s.assembleSnapshot(ctx, patientUserID, date)
	if err != nil {
		return Result{}, fmt.Errorf("assembling snapshot: %w", err)
	}

	payload, err := s.summarizer.Summarize(ctx, snapshot)
	if err != nil {
		// Nothing is persisted on failure; the day stays regenerable.
		return Result{}, fmt.Errorf("summarizing snapshot: %w", err)
	}

	content, err := parseContent(payload)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %v", faults.ErrUpstreamInvalid, err)
	}

	d, err := s.store.Insert(ctx, models.DailyDashboard{
		PatientUserID: patientUserID,
		Date:          date,
		Model:         s.summarizer.Model(),
		DashboardJSON: content,
		Status:        models.DashboardStatusGenerated,
		CreatedAt:     s.now(),
	}, snapshot)
	if err != nil {
		return Result{}, err
	}

	metrics.IncDashboardsGenerated()
	logger.Log.WithFields(map[string]interface{}{
		"patient_user_id": patientUserID.String(),
		"date":            date,
		"dashboard_id":    d.ID.String(),
	}).Info("daily dashboard generated")

	_ = s.publisher.PublishEvent(ctx, kafka.EventDashboardGenerated, "dashboard", map[string]interface{}{
		"dashboard_id":    d.ID.String(),
		"patient_user_id": patientUserID.String(),
		"date":            date,
	})

	return Result{Dashboard: d}, nil
}

func (s *Service) assembleSnapshot(ctx context.Context, patientUserID uuid.UUID, date string) (models.PatientSnapshot, error) {
	profile, err := s.profiles.GetOrNil(ctx, patientUserID)
	if err != nil {
		return models.PatientSnapshot{}, err
	}
	recent, err := s.records.Recent(ctx, patientUserID, snapshotRecordLimit)
	if err != nil {
		return models.PatientSnapshot{}, err
	}
	counts, err := s.records.Counts(ctx, patientUserID)
	if err != nil {
		return models.PatientSnapshot{}, err
	}
	return models.PatientSnapshot{
		PatientUserID: patientUserID,
		Date:          date,
		Profile:       profile,
		Vitals:        recent.Vitals,
		Labs:          recent.Labs,
		Medications:   recent.Medications,
		Conditions:    recent.Conditions,
		FlaggedLabs:   counts.FlaggedLabs,
	}, nil
}

// parseContent validates the summarizer's JSON into dashboard content. Any
// missing list comes back empty rather than null.
func parseContent(payload json.RawMessage) (models.DashboardContent, error) {
	var content models.DashboardContent
	if err := json.Unmarshal(payload, &content); err != nil {
		return models.DashboardContent{}, fmt.Errorf("summary payload is not dashboard content: %w", err)
	}
	if strings.TrimSpace(content.Overview) == "" {
		return models.DashboardContent{}, fmt.Errorf("summary payload missing overview")
	}
	if content.Insights == nil {
		content.Insights = []string{}
	}
	if content.Recommendations == nil {
		content.Recommendations = []string{}
	}
	if content.RedFlags == nil {
		content.RedFlags = []string{}
	}
	if content.SuggestedFollowUps == nil {
		content.SuggestedFollowUps = []string{}
	}
	return content, nil
}
