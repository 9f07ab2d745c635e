package records

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/medichat/platform/pkg/common/faults"
	"github.com/medichat/platform/pkg/common/logger"
	"github.com/medichat/platform/pkg/common/models"
)

// Store is the persistence contract for manual data entry. The concrete
// Repository satisfies it; tests substitute fakes.
type Store interface {
	InsertVital(ctx context.Context, v models.Vital) (models.Vital, error)
	InsertLab(ctx context.Context, l models.Lab) (models.Lab, error)
	InsertMedication(ctx context.Context, m models.Medication) (models.Medication, error)
	InsertCondition(ctx context.Context, c models.Condition) (models.Condition, error)
	Counts(ctx context.Context, patientUserID uuid.UUID) (models.InsightCounts, error)
}

// Service handles manual patient data entry. Manual entries bypass the
// consolidator but share the clinical record tables and their invariants.
type Service struct {
	store Store
	now   func() time.Time
}

func NewService(store Store) *Service {
	return &Service{store: store, now: func() time.Time { return time.Now().UTC() }}
}

func (s *Service) AddVital(ctx context.Context, patientUserID uuid.UUID, req models.CreateVitalRequest) (models.Vital, error) {
	if req.Systolic == nil && req.Diastolic == nil && req.HeartRate == nil && req.TemperatureC == nil {
		logger.Log.WithField("patient_user_id", patientUserID).Warn("manual vital with no measurements")
	}
	return s.store.InsertVital(ctx, models.Vital{
		PatientUserID: patientUserID,
		MeasuredAt:    s.now(),
		Systolic:      req.Systolic,
		Diastolic:     req.Diastolic,
		HeartRate:     req.HeartRate,
		TemperatureC:  req.TemperatureC,
	})
}

func (s *Service) AddLab(ctx context.Context, patientUserID uuid.UUID, req models.CreateLabRequest) (models.Lab, error) {
	var missing []string
	if req.TestName == "" {
		missing = append(missing, "testName is required")
	}
	if req.ValueText == "" {
		missing = append(missing, "valueText is required")
	}
	if len(missing) > 0 {
		return models.Lab{}, &faults.ValidationError{Fields: missing}
	}
	return s.store.InsertLab(ctx, models.Lab{
		PatientUserID:  patientUserID,
		CollectedAt:    s.now(),
		TestName:       req.TestName,
		ValueText:      req.ValueText,
		Unit:           req.Unit,
		ReferenceRange: req.ReferenceRange,
		Flag:           req.Flag,
	})
}

func (s *Service) AddMedication(ctx context.Context, patientUserID uuid.UUID, req models.CreateMedicationRequest) (models.Medication, error) {
	if req.MedicationName == "" {
		return models.Medication{}, &faults.ValidationError{Fields: []string{"medicationName is required"}}
	}
	active := true
	if req.Active != nil {
		active = *req.Active
	}
	return s.store.InsertMedication(ctx, models.Medication{
		PatientUserID:  patientUserID,
		MedicationName: req.MedicationName,
		Dose:           req.Dose,
		Frequency:      req.Frequency,
		Active:         active,
		NotedAt:        s.now(),
	})
}

func (s *Service) AddCondition(ctx context.Context, patientUserID uuid.UUID, req models.CreateConditionRequest) (models.Condition, error) {
	if req.ConditionName == "" {
		return models.Condition{}, &faults.ValidationError{Fields: []string{"conditionName is required"}}
	}
	return s.store.InsertCondition(ctx, models.Condition{
		PatientUserID: patientUserID,
		ConditionName: req.ConditionName,
		Status:        req.Status,
		NotedAt:       s.now(),
	})
}

func (s *Service) Counts(ctx context.Context, patientUserID uuid.UUID) (models.InsightCounts, error) {
	return s.store.Counts(ctx, patientUserID)
}
