// Package consolidate maps an extraction payload into validated clinical
// record rows. The mapping is deliberately schema-tolerant: candidates
// missing required fields are dropped and counted, numeric fields are
// coerced leniently, and unknown JSON fields are ignored so that extraction
// model drift does not break the pipeline.
package consolidate

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/medichat/platform/pkg/common/models"
	"github.com/medichat/platform/pkg/terminology"
)

// Drop records one discarded candidate, for observability. Drops never fail
// the overall consolidation.
type Drop struct {
	Kind   string `json:"kind"`
	Index  int    `json:"index"`
	Reason string `json:"reason"`
}

type Result struct {
	Vitals      []models.Vital
	Labs        []models.Lab
	Medications []models.Medication
	Conditions  []models.Condition
	HPI         string
	Dropped     []Drop
}

func (r Result) Created() models.CreatedRecords {
	return models.CreatedRecords{
		Vitals:      r.Vitals,
		Labs:        r.Labs,
		Medications: r.Medications,
		Conditions:  r.Conditions,
	}
}

type Consolidator struct {
	catalog terminology.Catalog
}

func New(catalog terminology.Catalog) *Consolidator {
	return &Consolidator{catalog: catalog}
}

// Consolidate is pure: the same payload, patient, and timestamp context
// always produce the same rows (row IDs are assigned at persistence time).
// It returns an error only when the payload is not a JSON object; individual
// bad candidates are dropped, not fatal.
func (c *Consolidator) Consolidate(payload json.RawMessage, patientUserID uuid.UUID, now time.Time) (Result, error) {
	var doc map[string]interface{}
	if err := json.Unmarshal(payload, &doc); err != nil {
		return Result{}, fmt.Errorf("extraction payload is not a JSON object: %w", err)
	}

	res := Result{}
	res.HPI = extractHPI(doc)

	for i, raw := range asSlice(doc["vitals"]) {
		cand, ok := raw.(map[string]interface{})
		if !ok {
			res.drop("vital", i, "candidate is not an object")
			continue
		}
		res.Vitals = append(res.Vitals, models.Vital{
			PatientUserID: patientUserID,
			MeasuredAt:    parseTimeOr(getString(cand["measuredAt"]), now),
			Systolic:      coerceInt(cand["systolic"]),
			Diastolic:     coerceInt(cand["diastolic"]),
			HeartRate:     coerceInt(cand["heartRate"]),
			TemperatureC:  coerceInt(cand["temperatureC"]),
		})
	}

	for i, raw := range asSlice(doc["labs"]) {
		cand, ok := raw.(map[string]interface{})
		if !ok {
			res.drop("lab", i, "candidate is not an object")
			continue
		}
		testName := strings.TrimSpace(getString(cand["testName"]))
		valueText := strings.TrimSpace(getString(cand["valueText"]))
		if testName == "" {
			res.drop("lab", i, "missing testName")
			continue
		}
		if valueText == "" {
			res.drop("lab", i, "missing valueText")
			continue
		}
		res.Labs = append(res.Labs, models.Lab{
			PatientUserID:  patientUserID,
			CollectedAt:    parseTimeOr(getString(cand["collectedAt"]), now),
			TestName:       testName,
			ValueText:      valueText,
			Unit:           optionalString(c.catalog.NormalizeUnit(getString(cand["unit"]))),
			ReferenceRange: optionalString(strings.TrimSpace(getString(cand["referenceRange"]))),
			Flag:           optionalString(c.catalog.NormalizeFlag(getString(cand["flag"]))),
		})
	}

	for i, raw := range asSlice(doc["medications"]) {
		cand, ok := raw.(map[string]interface{})
		if !ok {
			res.drop("medication", i, "candidate is not an object")
			continue
		}
		name := strings.TrimSpace(getString(cand["medicationName"]))
		if name == "" {
			res.drop("medication", i, "missing medicationName")
			continue
		}
		res.Medications = append(res.Medications, models.Medication{
			PatientUserID:  patientUserID,
			MedicationName: name,
			Dose:           optionalString(strings.TrimSpace(getString(cand["dose"]))),
			Frequency:      optionalString(strings.TrimSpace(getString(cand["frequency"]))),
			Active:         coerceBool(cand["active"], true),
			NotedAt:        now,
		})
	}

	for i, raw := range asSlice(doc["conditions"]) {
		cand, ok := raw.(map[string]interface{})
		if !ok {
			res.drop("condition", i, "candidate is not an object")
			continue
		}
		name := strings.TrimSpace(getString(cand["conditionName"]))
		if name == "" {
			res.drop("condition", i, "missing conditionName")
			continue
		}
		res.Conditions = append(res.Conditions, models.Condition{
			PatientUserID: patientUserID,
			ConditionName: name,
			Status:        optionalString(strings.TrimSpace(getString(cand["status"]))),
			NotedAt:       now,
		})
	}

	return res, nil
}

func (r *Result) drop(kind string, index int, reason string) {
	r.Dropped = append(r.Dropped, Drop{Kind: kind, Index: index, Reason: reason})
}

func extractHPI(doc map[string]interface{}) string {
	hpi, ok := doc["hpi"].(map[string]interface{})
	if !ok {
		return ""
	}
	return strings.TrimSpace(getString(hpi["historyOfPresentIllness"]))
}

func asSlice(v interface{}) []interface{} {
	s, _ := v.([]interface{})
	return s
}

func getString(v interface{}) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	default:
		return ""
	}
}

// coerceInt accepts JSON numbers and numeric strings; anything else is null.
func coerceInt(v interface{}) *int {
	switch t := v.(type) {
	case float64:
		if math.IsNaN(t) || math.IsInf(t, 0) {
			return nil
		}
		n := int(math.Round(t))
		return &n
	case string:
		trimmed := strings.TrimSpace(t)
		if trimmed == "" {
			return nil
		}
		if f, err := strconv.ParseFloat(trimmed, 64); err == nil {
			n := int(math.Round(f))
			return &n
		}
		return nil
	default:
		return nil
	}
}

func coerceBool(v interface{}, fallback bool) bool {
	switch t := v.(type) {
	case bool:
		return t
	case string:
		if b, err := strconv.ParseBool(strings.TrimSpace(t)); err == nil {
			return b
		}
		return fallback
	default:
		return fallback
	}
}

func optionalString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// parseTimeOr accepts RFC3339 timestamps and bare dates; anything else
// falls back to the extraction time so provenance stays derivable.
func parseTimeOr(raw string, fallback time.Time) time.Time {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return fallback
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t.UTC()
	}
	if t, err := time.Parse("2006-01-02", raw); err == nil {
		return t.UTC()
	}
	return fallback
}
