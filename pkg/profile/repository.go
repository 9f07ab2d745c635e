package profile

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/medichat/platform/pkg/common/faults"
	"github.com/medichat/platform/pkg/common/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) AutoMigrate() error {
	return r.db.AutoMigrate(&profileModel{})
}

type profileModel struct {
	PatientUserID           uuid.UUID `gorm:"primaryKey;column:patient_user_id"`
	AgeYears                *int      `gorm:"column:age_years"`
	Gender                  string    `gorm:"column:gender"`
	HistoryOfPresentIllness *string   `gorm:"column:history_of_present_illness"`
	SymptomOnset            *string   `gorm:"column:symptom_onset"`
	SymptomDuration         *string   `gorm:"column:symptom_duration"`
	SmokingStatus           string    `gorm:"column:smoking_status"`
	AlcoholConsumption      string    `gorm:"column:alcohol_consumption"`
	PhysicalActivityLevel   string    `gorm:"column:physical_activity_level"`
	UpdatedAt               time.Time `gorm:"column:updated_at"`
}

func (profileModel) TableName() string { return "patient_profiles" }

func (r *Repository) Get(ctx context.Context, patientUserID uuid.UUID) (models.PatientProfile, error) {
	var row profileModel
	result := r.db.WithContext(ctx).First(&row, "patient_user_id = ?", patientUserID)
	if errors.Is(result.Error, gorm.ErrRecordNotFound) {
		return models.PatientProfile{}, faults.ErrNotFound
	}
	if result.Error != nil {
		return models.PatientProfile{}, result.Error
	}
	return rowToProfile(row), nil
}

func (r *Repository) Upsert(ctx context.Context, p models.PatientProfile) (models.PatientProfile, error) {
	row := profileModel{
		PatientUserID:           p.PatientUserID,
		AgeYears:                p.AgeYears,
		Gender:                  p.Gender,
		HistoryOfPresentIllness: p.HistoryOfPresentIllness,
		SymptomOnset:            p.SymptomOnset,
		SymptomDuration:         p.SymptomDuration,
		SmokingStatus:           p.SmokingStatus,
		AlcoholConsumption:      p.AlcoholConsumption,
		PhysicalActivityLevel:   p.PhysicalActivityLevel,
		UpdatedAt:               time.Now().UTC(),
	}
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "patient_user_id"}},
		UpdateAll: true,
	}).Create(&row).Error
	if err != nil {
		return models.PatientProfile{}, err
	}
	return rowToProfile(row), nil
}

func rowToProfile(row profileModel) models.PatientProfile {
	return models.PatientProfile{
		PatientUserID:           row.PatientUserID,
		AgeYears:                row.AgeYears,
		Gender:                  row.Gender,
		HistoryOfPresentIllness: row.HistoryOfPresentIllness,
		SymptomOnset:            row.SymptomOnset,
		SymptomDuration:         row.SymptomDuration,
		SmokingStatus:           row.SmokingStatus,
		AlcoholConsumption:      row.AlcoholConsumption,
		PhysicalActivityLevel:   row.PhysicalActivityLevel,
		UpdatedAt:               row.UpdatedAt,
	}
}
