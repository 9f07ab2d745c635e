package profile

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/medichat/platform/pkg/common/faults"
	"github.com/medichat/platform/pkg/common/models"
)

type Store interface {
	Get(ctx context.Context, patientUserID uuid.UUID) (models.PatientProfile, error)
	Upsert(ctx context.Context, p models.PatientProfile) (models.PatientProfile, error)
}

type Service struct {
	store Store
}

func NewService(store Store) *Service {
	return &Service{store: store}
}

func (s *Service) Get(ctx context.Context, patientUserID uuid.UUID) (models.PatientProfile, error) {
	return s.store.Get(ctx, patientUserID)
}

// GetOrNil is used by snapshot assembly, where a missing profile is normal.
func (s *Service) GetOrNil(ctx context.Context, patientUserID uuid.UUID) (*models.PatientProfile, error) {
	p, err := s.store.Get(ctx, patientUserID)
	if errors.Is(err, faults.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *Service) Upsert(ctx context.Context, patientUserID uuid.UUID, req models.UpsertProfileRequest) (models.PatientProfile, error) {
	p := models.PatientProfile{
		PatientUserID:           patientUserID,
		AgeYears:                req.AgeYears,
		Gender:                  orUnknown(req.Gender),
		HistoryOfPresentIllness: req.HistoryOfPresentIllness,
		SymptomOnset:            req.SymptomOnset,
		SymptomDuration:         req.SymptomDuration,
		SmokingStatus:           orUnknown(req.SmokingStatus),
		AlcoholConsumption:      orUnknown(req.AlcoholConsumption),
		PhysicalActivityLevel:   orUnknown(req.PhysicalActivityLevel),
	}
	return s.store.Upsert(ctx, p)
}

func orUnknown(s string) string {
	if s == "" {
		return "unknown"
	}
	return s
}
