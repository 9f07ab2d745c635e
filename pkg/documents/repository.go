package documents

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/medichat/platform/pkg/common/faults"
	"github.com/medichat/platform/pkg/common/models"
	"github.com/medichat/platform/pkg/records"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Repository struct {
	db      *gorm.DB
	records *records.Repository
}

func NewRepository(db *gorm.DB, recordsRepo *records.Repository) *Repository {
	return &Repository{db: db, records: recordsRepo}
}

func (r *Repository) AutoMigrate() error {
	return r.db.AutoMigrate(&documentModel{}, &extractionModel{})
}

type documentModel struct {
	ID               uuid.UUID  `gorm:"primaryKey;column:id"`
	PatientUserID    uuid.UUID  `gorm:"column:patient_user_id;index"`
	UploadedByUserID uuid.UUID  `gorm:"column:uploaded_by_user_id"`
	OriginalFileName string     `gorm:"column:original_file_name"`
	ContentType      string     `gorm:"column:content_type"`
	SizeBytes        int64      `gorm:"column:size_bytes"`
	Bucket           *string    `gorm:"column:bucket"`
	ObjectKey        *string    `gorm:"column:object_key"`
	Status           string     `gorm:"column:status;index"`
	ParsedAt         *time.Time `gorm:"column:parsed_at"`
	ParseError       *string    `gorm:"column:parse_error"`
	CreatedAt        time.Time  `gorm:"column:created_at"`
}

func (documentModel) TableName() string { return "documents" }

type extractionModel struct {
	ID            uuid.UUID      `gorm:"primaryKey;column:id"`
	DocumentID    uuid.UUID      `gorm:"column:document_id;index"`
	Model         string         `gorm:"column:model"`
	ExtractedJSON datatypes.JSON `gorm:"column:extracted_json"`
	CreatedAt     time.Time      `gorm:"column:created_at"`
}

func (extractionModel) TableName() string { return "extractions" }

func (r *Repository) Create(ctx context.Context, doc models.Document) (models.Document, error) {
	row := documentModel{
		ID:               doc.ID,
		PatientUserID:    doc.PatientUserID,
		UploadedByUserID: doc.UploadedByUserID,
		OriginalFileName: doc.OriginalFileName,
		ContentType:      doc.ContentType,
		SizeBytes:        doc.SizeBytes,
		Bucket:           doc.Bucket,
		ObjectKey:        doc.ObjectKey,
		Status:           models.DocumentStatusUploaded,
		CreatedAt:        time.Now().UTC(),
	}
	if row.ID == uuid.Nil {
		row.ID = uuid.New()
	}
	if err := r.db.WithContext(ctx).Create(&row).Error; err != nil {
		return models.Document{}, err
	}
	return rowToDocument(row), nil
}

func (r *Repository) Get(ctx context.Context, id uuid.UUID) (models.Document, error) {
	var row documentModel
	result := r.db.WithContext(ctx).First(&row, "id = ?", id)
	if errors.Is(result.Error, gorm.ErrRecordNotFound) {
		return models.Document{}, fmt.Errorf("document %s: %w", id, faults.ErrNotFound)
	}
	if result.Error != nil {
		return models.Document{}, result.Error
	}
	return rowToDocument(row), nil
}

func (r *Repository) ListByPatient(ctx context.Context, patientUserID uuid.UUID, limit int) ([]models.Document, error) {
	var rows []documentModel
	err := r.db.WithContext(ctx).
		Where("patient_user_id = ?", patientUserID).
		Order("created_at desc").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	docs := make([]models.Document, 0, len(rows))
	for _, row := range rows {
		docs = append(docs, rowToDocument(row))
	}
	return docs, nil
}

// LatestExtraction returns the newest extraction for a document, or nil when
// the document has never parsed. A re-parse of an error document supersedes
// the prior extraction by recency.
func (r *Repository) LatestExtraction(ctx context.Context, documentID uuid.UUID) (*models.Extraction, error) {
	var row extractionModel
	result := r.db.WithContext(ctx).
		Where("document_id = ?", documentID).
		Order("created_at desc").
		First(&row)
	if errors.Is(result.Error, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if result.Error != nil {
		return nil, result.Error
	}
	ext := rowToExtraction(row)
	return &ext, nil
}

// CommitParse atomically performs the uploaded/error -> parsed transition:
// the status CAS, the extraction row, and every consolidated record commit
// together or not at all. A CAS miss means a concurrent parse won the race.
func (r *Repository) CommitParse(ctx context.Context, documentID uuid.UUID, fromStatus string, ext models.Extraction, created models.CreatedRecords) (models.Document, models.Extraction, models.CreatedRecords, error) {
	var (
		doc models.Document
		out models.CreatedRecords
	)

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		parsedAt := ext.CreatedAt
		result := tx.Model(&documentModel{}).
			Where("id = ? AND status = ?", documentID, fromStatus).
			Updates(map[string]interface{}{
				"status":      models.DocumentStatusParsed,
				"parsed_at":   parsedAt,
				"parse_error": nil,
			})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return fmt.Errorf("document %s left status %s: %w", documentID, fromStatus, faults.ErrConflict)
		}

		extRow := extractionModel{
			ID:            ext.ID,
			DocumentID:    documentID,
			Model:         ext.Model,
			ExtractedJSON: datatypes.JSON(ext.ExtractedJSON),
			CreatedAt:     ext.CreatedAt,
		}
		if extRow.ID == uuid.Nil {
			extRow.ID = uuid.New()
		}
		if err := tx.Create(&extRow).Error; err != nil {
			return err
		}
		ext = rowToExtraction(extRow)

		var err error
		out, err = r.records.InsertCreatedTx(tx, documentID, created)
		if err != nil {
			return err
		}

		var row documentModel
		if err := tx.First(&row, "id = ?", documentID).Error; err != nil {
			return err
		}
		doc = rowToDocument(row)
		return nil
	})
	if err != nil {
		return models.Document{}, models.Extraction{}, models.CreatedRecords{}, err
	}

	return doc, ext, out, nil
}

// MarkParseError transitions the document to error with the cause. The CAS
// against the observed status keeps a slow failure from clobbering a
// successful concurrent parse.
func (r *Repository) MarkParseError(ctx context.Context, documentID uuid.UUID, fromStatus, message string) (models.Document, error) {
	result := r.db.WithContext(ctx).Model(&documentModel{}).
		Where("id = ? AND status = ?", documentID, fromStatus).
		Updates(map[string]interface{}{
			"status":      models.DocumentStatusError,
			"parse_error": message,
			"parsed_at":   nil,
		})
	if result.Error != nil {
		return models.Document{}, result.Error
	}
	if result.RowsAffected == 0 {
		return models.Document{}, fmt.Errorf("document %s left status %s: %w", documentID, fromStatus, faults.ErrConflict)
	}

	var row documentModel
	if err := r.db.WithContext(ctx).First(&row, "id = ?", documentID).Error; err != nil {
		return models.Document{}, err
	}
	return rowToDocument(row), nil
}

func rowToDocument(row documentModel) models.Document {
	return models.Document{
		ID:               row.ID,
		PatientUserID:    row.PatientUserID,
		UploadedByUserID: row.UploadedByUserID,
		OriginalFileName: row.OriginalFileName,
		ContentType:      row.ContentType,
		SizeBytes:        row.SizeBytes,
		Bucket:           row.Bucket,
		ObjectKey:        row.ObjectKey,
		Status:           row.Status,
		ParsedAt:         row.ParsedAt,
		ParseError:       row.ParseError,
		CreatedAt:        row.CreatedAt,
	}
}

func rowToExtraction(row extractionModel) models.Extraction {
	return models.Extraction{
		ID:            row.ID,
		DocumentID:    row.DocumentID,
		Model:         row.Model,
		ExtractedJSON: []byte(row.ExtractedJSON),
		CreatedAt:     row.CreatedAt,
	}
}
