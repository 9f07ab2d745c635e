package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Document lifecycle statuses. A document is created as uploaded, and a
// parse attempt moves it to parsed or error. Error documents may be
// re-parsed; parsed documents may not.
const (
	DocumentStatusUploaded = "uploaded"
	DocumentStatusParsed   = "parsed"
	DocumentStatusError    = "error"
)

const (
	DashboardStatusGenerated = "generated"
	DashboardStatusError     = "error"
)

type Document struct {
	ID               uuid.UUID  `json:"id"`
	PatientUserID    uuid.UUID  `json:"patientUserId"`
	UploadedByUserID uuid.UUID  `json:"uploadedByUserId"`
	OriginalFileName string     `json:"originalFileName"`
	ContentType      string     `json:"contentType"`
	SizeBytes        int64      `json:"sizeBytes"`
	Bucket           *string    `json:"bucket"`
	ObjectKey        *string    `json:"objectKey"`
	Status           string     `json:"status"`
	ParsedAt         *time.Time `json:"parsedAt"`
	ParseError       *string    `json:"parseError"`
	CreatedAt        time.Time  `json:"createdAt"`
}

type Extraction struct {
	ID            uuid.UUID       `json:"id"`
	DocumentID    uuid.UUID       `json:"documentId"`
	Model         string          `json:"model"`
	ExtractedJSON json.RawMessage `json:"extractedJson"`
	CreatedAt     time.Time       `json:"createdAt"`
}

// Clinical record variants. All four are append-only facts attributed to a
// patient. SourceDocumentID is set when the record was produced by a parse
// and nil for manual entries.
type Vital struct {
	ID               uuid.UUID  `json:"id"`
	PatientUserID    uuid.UUID  `json:"patientUserId"`
	SourceDocumentID *uuid.UUID `json:"sourceDocumentId,omitempty"`
	MeasuredAt       time.Time  `json:"measuredAt"`
	Systolic         *int       `json:"systolic"`
	Diastolic        *int       `json:"diastolic"`
	HeartRate        *int       `json:"heartRate"`
	TemperatureC     *int       `json:"temperatureC"`
}

type Lab struct {
	ID               uuid.UUID  `json:"id"`
	PatientUserID    uuid.UUID  `json:"patientUserId"`
	SourceDocumentID *uuid.UUID `json:"sourceDocumentId,omitempty"`
	CollectedAt      time.Time  `json:"collectedAt"`
	TestName         string     `json:"testName"`
	ValueText        string     `json:"valueText"`
	Unit             *string    `json:"unit"`
	ReferenceRange   *string    `json:"referenceRange"`
	Flag             *string    `json:"flag"`
}

type Medication struct {
	ID               uuid.UUID  `json:"id"`
	PatientUserID    uuid.UUID  `json:"patientUserId"`
	SourceDocumentID *uuid.UUID `json:"sourceDocumentId,omitempty"`
	MedicationName   string     `json:"medicationName"`
	Dose             *string    `json:"dose"`
	Frequency        *string    `json:"frequency"`
	Active           bool       `json:"active"`
	NotedAt          time.Time  `json:"notedAt"`
}

type Condition struct {
	ID               uuid.UUID  `json:"id"`
	PatientUserID    uuid.UUID  `json:"patientUserId"`
	SourceDocumentID *uuid.UUID `json:"sourceDocumentId,omitempty"`
	ConditionName    string     `json:"conditionName"`
	Status           *string    `json:"status"`
	NotedAt          time.Time  `json:"notedAt"`
}

// CreatedRecords is the set of rows produced by one consolidation.
type CreatedRecords struct {
	Vitals      []Vital      `json:"vitals"`
	Labs        []Lab        `json:"labs"`
	Medications []Medication `json:"medications"`
	Conditions  []Condition  `json:"conditions"`
}

func (c CreatedRecords) Total() int {
	return len(c.Vitals) + len(c.Labs) + len(c.Medications) + len(c.Conditions)
}

type DailyDashboard struct {
	ID            uuid.UUID        `json:"id"`
	PatientUserID uuid.UUID        `json:"patientUserId"`
	Date          string           `json:"date"` // server UTC calendar day, YYYY-MM-DD
	Model         string           `json:"model"`
	DashboardJSON DashboardContent `json:"dashboardJson"`
	Status        string           `json:"status"`
	CreatedAt     time.Time        `json:"createdAt"`
}

type DashboardContent struct {
	Overview           string   `json:"overview"`
	Insights           []string `json:"insights"`
	Recommendations    []string `json:"recommendations"`
	RedFlags           []string `json:"redFlags"`
	SuggestedFollowUps []string `json:"suggestedFollowUps"`
}

type PatientProfile struct {
	PatientUserID            uuid.UUID `json:"patientUserId"`
	AgeYears                 *int      `json:"ageYears"`
	Gender                   string    `json:"gender"`
	HistoryOfPresentIllness  *string   `json:"historyOfPresentIllness"`
	SymptomOnset             *string   `json:"symptomOnset"`
	SymptomDuration          *string   `json:"symptomDuration"`
	SmokingStatus            string    `json:"smokingStatus"`
	AlcoholConsumption       string    `json:"alcoholConsumption"`
	PhysicalActivityLevel    string    `json:"physicalActivityLevel"`
	UpdatedAt                time.Time `json:"updatedAt"`
}

// PatientSnapshot is the read-only clinical picture handed to the
// summarization service when generating a daily dashboard.
type PatientSnapshot struct {
	PatientUserID uuid.UUID       `json:"patientUserId"`
	Date          string          `json:"date"`
	Profile       *PatientProfile `json:"profile,omitempty"`
	Vitals        []Vital         `json:"vitals"`
	Labs          []Lab           `json:"labs"`
	Medications   []Medication    `json:"medications"`
	Conditions    []Condition     `json:"conditions"`
	FlaggedLabs   int             `json:"flaggedLabs"`
}

// Read model views.
type DocumentInsights struct {
	Document                Document       `json:"document"`
	Extraction              *Extraction    `json:"extraction"`
	Created                 CreatedRecords `json:"created"`
	Counts                  InsightCounts  `json:"counts"`
	HistoryOfPresentIllness *string        `json:"historyOfPresentIllness,omitempty"`
}

type InsightCounts struct {
	Vitals      int `json:"vitals"`
	Labs        int `json:"labs"`
	Medications int `json:"medications"`
	Conditions  int `json:"conditions"`
	FlaggedLabs int `json:"flaggedLabs"`
}

type PatientOverview struct {
	PatientUserID   uuid.UUID       `json:"patientUserId"`
	Date            string          `json:"date"`
	Dashboard       *DailyDashboard `json:"dashboard"`
	RecentDocuments []Document      `json:"recentDocuments"`
	Counts          InsightCounts   `json:"counts"`
}

// Write requests for manual data entry. Manual entries bypass the
// consolidator but land in the same tables.
type CreateVitalRequest struct {
	Systolic     *int `json:"systolic"`
	Diastolic    *int `json:"diastolic"`
	HeartRate    *int `json:"heartRate"`
	TemperatureC *int `json:"temperatureC"`
}

type CreateLabRequest struct {
	TestName       string  `json:"testName"`
	ValueText      string  `json:"valueText"`
	Unit           *string `json:"unit"`
	ReferenceRange *string `json:"referenceRange"`
	Flag           *string `json:"flag"`
}

type CreateMedicationRequest struct {
	MedicationName string  `json:"medicationName"`
	Dose           *string `json:"dose"`
	Frequency      *string `json:"frequency"`
	Active         *bool   `json:"active"`
}

type CreateConditionRequest struct {
	ConditionName string  `json:"conditionName"`
	Status        *string `json:"status"`
}

type UpsertProfileRequest struct {
	AgeYears                *int    `json:"ageYears"`
	Gender                  string  `json:"gender"`
	HistoryOfPresentIllness *string `json:"historyOfPresentIllness"`
	SymptomOnset            *string `json:"symptomOnset"`
	SymptomDuration         *string `json:"symptomDuration"`
	SmokingStatus           string  `json:"smokingStatus"`
	AlcoholConsumption      string  `json:"alcoholConsumption"`
	PhysicalActivityLevel   string  `json:"physicalActivityLevel"`
}

type GenerateDashboardRequest struct {
	PatientUserID uuid.UUID `json:"patientUserId"`
	Force         bool      `json:"force"`
}
