package records

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/medichat/platform/pkg/common/models"
	"gorm.io/gorm"
)

type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) AutoMigrate() error {
	return r.db.AutoMigrate(&vitalModel{}, &labModel{}, &medicationModel{}, &conditionModel{})
}

type vitalModel struct {
	ID               uuid.UUID  `gorm:"primaryKey;column:id"`
	PatientUserID    uuid.UUID  `gorm:"column:patient_user_id;index"`
	SourceDocumentID *uuid.UUID `gorm:"column:source_document_id;index"`
	MeasuredAt       time.Time  `gorm:"column:measured_at"`
	Systolic         *int       `gorm:"column:systolic"`
	Diastolic        *int       `gorm:"column:diastolic"`
	HeartRate        *int       `gorm:"column:heart_rate"`
	TemperatureC     *int       `gorm:"column:temperature_c"`
	CreatedAt        time.Time  `gorm:"column:created_at"`
}

func (vitalModel) TableName() string { return "vitals" }

type labModel struct {
	ID               uuid.UUID  `gorm:"primaryKey;column:id"`
	PatientUserID    uuid.UUID  `gorm:"column:patient_user_id;index"`
	SourceDocumentID *uuid.UUID `gorm:"column:source_document_id;index"`
	CollectedAt      time.Time  `gorm:"column:collected_at"`
	TestName         string     `gorm:"column:test_name"`
	ValueText        string     `gorm:"column:value_text"`
	Unit             *string    `gorm:"column:unit"`
	ReferenceRange   *string    `gorm:"column:reference_range"`
	Flag             *string    `gorm:"column:flag"`
	CreatedAt        time.Time  `gorm:"column:created_at"`
}

func (labModel) TableName() string { return "labs" }

type medicationModel struct {
	ID               uuid.UUID  `gorm:"primaryKey;column:id"`
	PatientUserID    uuid.UUID  `gorm:"column:patient_user_id;index"`
	SourceDocumentID *uuid.UUID `gorm:"column:source_document_id;index"`
	MedicationName   string     `gorm:"column:medication_name"`
	Dose             *string    `gorm:"column:dose"`
	Frequency        *string    `gorm:"column:frequency"`
	Active           bool       `gorm:"column:active"`
	NotedAt          time.Time  `gorm:"column:noted_at"`
	CreatedAt        time.Time  `gorm:"column:created_at"`
}

func (medicationModel) TableName() string { return "medications" }

type conditionModel struct {
	ID               uuid.UUID  `gorm:"primaryKey;column:id"`
	PatientUserID    uuid.UUID  `gorm:"column:patient_user_id;index"`
	SourceDocumentID *uuid.UUID `gorm:"column:source_document_id;index"`
	ConditionName    string     `gorm:"column:condition_name"`
	Status           *string    `gorm:"column:status"`
	NotedAt          time.Time  `gorm:"column:noted_at"`
	CreatedAt        time.Time  `gorm:"column:created_at"`
}

func (conditionModel) TableName() string { return "conditions" }

func (r *Repository) InsertVital(ctx context.Context, v models.Vital) (models.Vital, error) {
	row := vitalToRow(v)
	if err := r.db.WithContext(ctx).Create(&row).Error; err != nil {
		return models.Vital{}, err
	}
	return rowToVital(row), nil
}

func (r *Repository) InsertLab(ctx context.Context, l models.Lab) (models.Lab, error) {
	row := labToRow(l)
	if err := r.db.WithContext(ctx).Create(&row).Error; err != nil {
		return models.Lab{}, err
	}
	return rowToLab(row), nil
}

func (r *Repository) InsertMedication(ctx context.Context, m models.Medication) (models.Medication, error) {
	row := medicationToRow(m)
	if err := r.db.WithContext(ctx).Create(&row).Error; err != nil {
		return models.Medication{}, err
	}
	return rowToMedication(row), nil
}

func (r *Repository) InsertCondition(ctx context.Context, c models.Condition) (models.Condition, error) {
	row := conditionToRow(c)
	if err := r.db.WithContext(ctx).Create(&row).Error; err != nil {
		return models.Condition{}, err
	}
	return rowToCondition(row), nil
}

// InsertCreatedTx persists one consolidation's rows inside the caller's
// transaction, stamping provenance back to the source document. Returns the
// rows with their assigned IDs.
func (r *Repository) InsertCreatedTx(tx *gorm.DB, sourceDocumentID uuid.UUID, created models.CreatedRecords) (models.CreatedRecords, error) {
	out := models.CreatedRecords{}
	docID := sourceDocumentID

	for _, v := range created.Vitals {
		v.SourceDocumentID = &docID
		row := vitalToRow(v)
		if err := tx.Create(&row).Error; err != nil {
			return models.CreatedRecords{}, err
		}
		out.Vitals = append(out.Vitals, rowToVital(row))
	}
	for _, l := range created.Labs {
		l.SourceDocumentID = &docID
		row := labToRow(l)
		if err := tx.Create(&row).Error; err != nil {
			return models.CreatedRecords{}, err
		}
		out.Labs = append(out.Labs, rowToLab(row))
	}
	for _, m := range created.Medications {
		m.SourceDocumentID = &docID
		row := medicationToRow(m)
		if err := tx.Create(&row).Error; err != nil {
			return models.CreatedRecords{}, err
		}
		out.Medications = append(out.Medications, rowToMedication(row))
	}
	for _, c := range created.Conditions {
		c.SourceDocumentID = &docID
		row := conditionToRow(c)
		if err := tx.Create(&row).Error; err != nil {
			return models.CreatedRecords{}, err
		}
		out.Conditions = append(out.Conditions, rowToCondition(row))
	}

	return out, nil
}

// ListByDocument returns the record set a parse created, newest parse wins
// naturally since only one successful parse ever writes records.
func (r *Repository) ListByDocument(ctx context.Context, documentID uuid.UUID) (models.CreatedRecords, error) {
	out := models.CreatedRecords{}

	var vitals []vitalModel
	if err := r.db.WithContext(ctx).Where("source_document_id = ?", documentID).Order("measured_at asc").Find(&vitals).Error; err != nil {
		return out, err
	}
	for _, row := range vitals {
		out.Vitals = append(out.Vitals, rowToVital(row))
	}

	var labs []labModel
	if err := r.db.WithContext(ctx).Where("source_document_id = ?", documentID).Order("collected_at asc").Find(&labs).Error; err != nil {
		return out, err
	}
	for _, row := range labs {
		out.Labs = append(out.Labs, rowToLab(row))
	}

	var meds []medicationModel
	if err := r.db.WithContext(ctx).Where("source_document_id = ?", documentID).Order("noted_at asc").Find(&meds).Error; err != nil {
		return out, err
	}
	for _, row := range meds {
		out.Medications = append(out.Medications, rowToMedication(row))
	}

	var conds []conditionModel
	if err := r.db.WithContext(ctx).Where("source_document_id = ?", documentID).Order("noted_at asc").Find(&conds).Error; err != nil {
		return out, err
	}
	for _, row := range conds {
		out.Conditions = append(out.Conditions, rowToCondition(row))
	}

	return out, nil
}

func (r *Repository) Counts(ctx context.Context, patientUserID uuid.UUID) (models.InsightCounts, error) {
	var counts models.InsightCounts
	var n int64

	if err := r.db.WithContext(ctx).Model(&vitalModel{}).Where("patient_user_id = ?", patientUserID).Count(&n).Error; err != nil {
		return counts, err
	}
	counts.Vitals = int(n)

	if err := r.db.WithContext(ctx).Model(&labModel{}).Where("patient_user_id = ?", patientUserID).Count(&n).Error; err != nil {
		return counts, err
	}
	counts.Labs = int(n)

	if err := r.db.WithContext(ctx).Model(&labModel{}).Where("patient_user_id = ? AND flag IS NOT NULL", patientUserID).Count(&n).Error; err != nil {
		return counts, err
	}
	counts.FlaggedLabs = int(n)

	if err := r.db.WithContext(ctx).Model(&medicationModel{}).Where("patient_user_id = ?", patientUserID).Count(&n).Error; err != nil {
		return counts, err
	}
	counts.Medications = int(n)

	if err := r.db.WithContext(ctx).Model(&conditionModel{}).Where("patient_user_id = ?", patientUserID).Count(&n).Error; err != nil {
		return counts, err
	}
	counts.Conditions = int(n)

	return counts, nil
}

// Recent returns the newest rows of each kind for the summarization
// snapshot.
func (r *Repository) Recent(ctx context.Context, patientUserID uuid.UUID, limit int) (models.CreatedRecords, error) {
	out := models.CreatedRecords{}

	var vitals []vitalModel
	if err := r.db.WithContext(ctx).Where("patient_user_id = ?", patientUserID).Order("measured_at desc").Limit(limit).Find(&vitals).Error; err != nil {
		return out, err
	}
	for _, row := range vitals {
		out.Vitals = append(out.Vitals, rowToVital(row))
	}

	var labs []labModel
	if err := r.db.WithContext(ctx).Where("patient_user_id = ?", patientUserID).Order("collected_at desc").Limit(limit).Find(&labs).Error; err != nil {
		return out, err
	}
	for _, row := range labs {
		out.Labs = append(out.Labs, rowToLab(row))
	}

	var meds []medicationModel
	if err := r.db.WithContext(ctx).Where("patient_user_id = ?", patientUserID).Order("noted_at desc").Limit(limit).Find(&meds).Error; err != nil {
		return out, err
	}
	for _, row := range meds {
		out.Medications = append(out.Medications, rowToMedication(row))
	}

	var conds []conditionModel
	if err := r.db.WithContext(ctx).Where("patient_user_id = ?", patientUserID).Order("noted_at desc").Limit(limit).Find(&conds).Error; err != nil {
		return out, err
	}
	for _, row := range conds {
		out.Conditions = append(out.Conditions, rowToCondition(row))
	}

	return out, nil
}

func vitalToRow(v models.Vital) vitalModel {
	id := v.ID
	if id == uuid.Nil {
		id = uuid.New()
	}
	return vitalModel{
		ID:               id,
		PatientUserID:    v.PatientUserID,
		SourceDocumentID: v.SourceDocumentID,
		MeasuredAt:       v.MeasuredAt,
		Systolic:         v.Systolic,
		Diastolic:        v.Diastolic,
		HeartRate:        v.HeartRate,
		TemperatureC:     v.TemperatureC,
		CreatedAt:        time.Now().UTC(),
	}
}

func rowToVital(row vitalModel) models.Vital {
	return models.Vital{
		ID:               row.ID,
		PatientUserID:    row.PatientUserID,
		SourceDocumentID: row.SourceDocumentID,
		MeasuredAt:       row.MeasuredAt,
		Systolic:         row.Systolic,
		Diastolic:        row.Diastolic,
		HeartRate:        row.HeartRate,
		TemperatureC:     row.TemperatureC,
	}
}

func labToRow(l models.Lab) labModel {
	id := l.ID
	if id == uuid.Nil {
		id = uuid.New()
	}
	return labModel{
		ID:               id,
		PatientUserID:    l.PatientUserID,
		SourceDocumentID: l.SourceDocumentID,
		CollectedAt:      l.CollectedAt,
		TestName:         l.TestName,
		ValueText:        l.ValueText,
		Unit:             l.Unit,
		ReferenceRange:   l.ReferenceRange,
		Flag:             l.Flag,
		CreatedAt:        time.Now().UTC(),
	}
}

func rowToLab(row labModel) models.Lab {
	return models.Lab{
		ID:               row.ID,
		PatientUserID:    row.PatientUserID,
		SourceDocumentID: row.SourceDocumentID,
		CollectedAt:      row.CollectedAt,
		TestName:         row.TestName,
		ValueText:        row.ValueText,
		Unit:             row.Unit,
		ReferenceRange:   row.ReferenceRange,
		Flag:             row.Flag,
	}
}

func medicationToRow(m models.Medication) medicationModel {
	id := m.ID
	if id == uuid.Nil {
		id = uuid.New()
	}
	return medicationModel{
		ID:               id,
		PatientUserID:    m.PatientUserID,
		SourceDocumentID: m.SourceDocumentID,
		MedicationName:   m.MedicationName,
		Dose:             m.Dose,
		Frequency:        m.Frequency,
		Active:           m.Active,
		NotedAt:          m.NotedAt,
		CreatedAt:        time.Now().UTC(),
	}
}

func rowToMedication(row medicationModel) models.Medication {
	return models.Medication{
		ID:               row.ID,
		PatientUserID:    row.PatientUserID,
		SourceDocumentID: row.SourceDocumentID,
		MedicationName:   row.MedicationName,
		Dose:             row.Dose,
		Frequency:        row.Frequency,
		Active:           row.Active,
		NotedAt:          row.NotedAt,
	}
}

func conditionToRow(c models.Condition) conditionModel {
	id := c.ID
	if id == uuid.Nil {
		id = uuid.New()
	}
	return conditionModel{
		ID:               id,
		PatientUserID:    c.PatientUserID,
		SourceDocumentID: c.SourceDocumentID,
		ConditionName:    c.ConditionName,
		Status:           c.Status,
		NotedAt:          c.NotedAt,
		CreatedAt:        time.Now().UTC(),
	}
}

func rowToCondition(row conditionModel) models.Condition {
	return models.Condition{
		ID:               row.ID,
		PatientUserID:    row.PatientUserID,
		SourceDocumentID: row.SourceDocumentID,
		ConditionName:    row.ConditionName,
		Status:           row.Status,
		NotedAt:          row.NotedAt,
	}
}
