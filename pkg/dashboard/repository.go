package dashboard

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/medichat/platform/pkg/common/models"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) AutoMigrate() error {
	return r.db.AutoMigrate(&dailyDashboardModel{})
}

type dailyDashboardModel struct {
	ID            uuid.UUID      `gorm:"primaryKey;column:id"`
	PatientUserID uuid.UUID      `gorm:"column:patient_user_id;index:idx_dashboards_patient_date"`
	Date          string         `gorm:"column:date;index:idx_dashboards_patient_date"`
	Model         string         `gorm:"column:model"`
	DashboardJSON datatypes.JSON `gorm:"column:dashboard_json"`
	SnapshotJSON  datatypes.JSON `gorm:"column:snapshot_json"`
	Status        string         `gorm:"column:status"`
	CreatedAt     time.Time      `gorm:"column:created_at"`
}

func (dailyDashboardModel) TableName() string { return "daily_dashboards" }

// FindCurrent returns the newest generated dashboard for the patient and
// day, or nil when none exists. Force-regenerated days keep their history;
// recency decides which row is current.
func (r *Repository) FindCurrent(ctx context.Context, patientUserID uuid.UUID, date string) (*models.DailyDashboard, error) {
	var row dailyDashboardModel
	result := r.db.WithContext(ctx).
		Where("patient_user_id = ? AND date = ? AND status = ?", patientUserID, date, models.DashboardStatusGenerated).
		Order("created_at desc").
		First(&row)
	if errors.Is(result.Error, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if result.Error != nil {
		return nil, result.Error
	}
	d, err := rowToDashboard(row)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

// Insert persists one generated dashboard together with the snapshot it was
// summarized from.
func (r *Repository) Insert(ctx context.Context, d models.DailyDashboard, snapshot models.PatientSnapshot) (models.DailyDashboard, error) {
	content, err := json.Marshal(d.DashboardJSON)
	if err != nil {
		return models.DailyDashboard{}, err
	}
	snapshotJSON, err := json.Marshal(snapshot)
	if err != nil {
		return models.DailyDashboard{}, err
	}

	row := dailyDashboardModel{
		ID:            d.ID,
		PatientUserID: d.PatientUserID,
		Date:          d.Date,
		Model:         d.Model,
		DashboardJSON: content,
		SnapshotJSON:  snapshotJSON,
		Status:        d.Status,
		CreatedAt:     d.CreatedAt,
	}
	if row.ID == uuid.Nil {
		row.ID = uuid.New()
	}
	if row.CreatedAt.IsZero() {
		row.CreatedAt = time.Now().UTC()
	}
	if err := r.db.WithContext(ctx).Create(&row).Error; err != nil {
		return models.DailyDashboard{}, err
	}
	return rowToDashboard(row)
}

func rowToDashboard(row dailyDashboardModel) (models.DailyDashboard, error) {
	var content models.DashboardContent
	if len(row.DashboardJSON) > 0 {
		if err := json.Unmarshal(row.DashboardJSON, &content); err != nil {
			return models.DailyDashboard{}, err
		}
	}
	return models.DailyDashboard{
		ID:            row.ID,
		PatientUserID: row.PatientUserID,
		Date:          row.Date,
		Model:         row.Model,
		DashboardJSON: content,
		Status:        row.Status,
		CreatedAt:     row.CreatedAt,
	}, nil
}
