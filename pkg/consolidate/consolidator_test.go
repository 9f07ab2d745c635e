package consolidate

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/medichat/platform/pkg/terminology"
	"github.com/stretchr/testify/assert"
)

var testNow = time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC)

func consolidateJSON(t *testing.T, payload string) Result {
	t.Helper()
	c := New(terminology.DefaultCatalog())
	res, err := c.Consolidate(json.RawMessage(payload), uuid.New(), testNow)
	if err != nil {
		t.Fatalf("consolidate failed: %v", err)
	}
	return res
}

func TestConsolidateFullPayload(t *testing.T) {
	res := consolidateJSON(t, `{
		"vitals": [{"measuredAt": "2024-01-10T08:00:00Z", "systolic": "120", "diastolic": 80, "heartRate": 72.4, "temperatureC": 37}],
		"labs": [{"collectedAt": "2024-01-10", "testName": "Hemoglobin A1c", "valueText": 7.2, "unit": "%", "referenceRange": "4.0-5.6", "flag": "high"}],
		"medications": [{"medicationName": "Metformin", "dose": "500mg", "frequency": "BID"}],
		"conditions": [{"conditionName": "Type 2 Diabetes", "status": "active"}],
		"hpi": {"historyOfPresentIllness": "Three weeks of fatigue."}
	}`)

	assert.Len(t, res.Vitals, 1)
	assert.Len(t, res.Labs, 1)
	assert.Len(t, res.Medications, 1)
	assert.Len(t, res.Conditions, 1)
	assert.Empty(t, res.Dropped)

	v := res.Vitals[0]
	assert.Equal(t, 120, *v.Systolic)
	assert.Equal(t, 80, *v.Diastolic)
	assert.Equal(t, 72, *v.HeartRate)
	assert.Equal(t, 37, *v.TemperatureC)
	assert.Equal(t, time.Date(2024, 1, 10, 8, 0, 0, 0, time.UTC), v.MeasuredAt)

	l := res.Labs[0]
	assert.Equal(t, "Hemoglobin A1c", l.TestName)
	assert.Equal(t, "7.2", l.ValueText)
	assert.Equal(t, "H", *l.Flag)
	assert.Equal(t, time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC), l.CollectedAt)

	m := res.Medications[0]
	assert.True(t, m.Active, "active defaults to true when absent")
	assert.Equal(t, testNow, m.NotedAt)

	assert.Equal(t, "Three weeks of fatigue.", res.HPI)
}

func TestConsolidateDropsLabMissingValueText(t *testing.T) {
	res := consolidateJSON(t, `{
		"labs": [
			{"testName": "Glucose", "valueText": "98"},
			{"testName": "Sodium"},
			{"valueText": "140"}
		]
	}`)

	assert.Len(t, res.Labs, 1)
	assert.Len(t, res.Dropped, 2)
	assert.Equal(t, "missing valueText", res.Dropped[0].Reason)
	assert.Equal(t, "missing testName", res.Dropped[1].Reason)
}

func TestConsolidateDropsUnnamedMedicationsAndConditions(t *testing.T) {
	res := consolidateJSON(t, `{
		"medications": [{"dose": "10mg"}, {"medicationName": "  "}],
		"conditions": [{"status": "active"}]
	}`)

	assert.Empty(t, res.Medications)
	assert.Empty(t, res.Conditions)
	assert.Len(t, res.Dropped, 3)
}

func TestConsolidateCoercesNumericsLeniently(t *testing.T) {
	res := consolidateJSON(t, `{
		"vitals": [{"systolic": "not a number", "diastolic": " 85 ", "heartRate": null}]
	}`)

	assert.Len(t, res.Vitals, 1)
	v := res.Vitals[0]
	assert.Nil(t, v.Systolic, "non-numeric strings become null, never an error")
	assert.Equal(t, 85, *v.Diastolic)
	assert.Nil(t, v.HeartRate)
	assert.Equal(t, testNow, v.MeasuredAt, "missing measuredAt falls back to extraction time")
}

func TestConsolidateIgnoresUnknownFields(t *testing.T) {
	res := consolidateJSON(t, `{
		"labs": [{"testName": "TSH", "valueText": "2.1", "futureField": {"nested": true}}],
		"imaging": [{"modality": "CT"}],
		"schemaVersion": 9
	}`)

	assert.Len(t, res.Labs, 1)
	assert.Empty(t, res.Dropped)
}

func TestConsolidateEmptyPayloadIsNotAnError(t *testing.T) {
	res := consolidateJSON(t, `{}`)

	assert.Equal(t, 0, res.Created().Total())
	assert.Empty(t, res.Dropped)
}

func TestConsolidateRejectsNonObjectPayload(t *testing.T) {
	c := New(terminology.DefaultCatalog())
	_, err := c.Consolidate(json.RawMessage(`[1,2,3]`), uuid.New(), testNow)
	assert.Error(t, err)
}

func TestConsolidateDropsNonObjectCandidates(t *testing.T) {
	res := consolidateJSON(t, `{"vitals": ["120/80", {"systolic": 118}]}`)

	assert.Len(t, res.Vitals, 1)
	assert.Len(t, res.Dropped, 1)
	assert.Equal(t, "vital", res.Dropped[0].Kind)
}

func TestConsolidateNormalizesFlagsAndUnits(t *testing.T) {
	res := consolidateJSON(t, `{
		"labs": [
			{"testName": "Potassium", "valueText": "6.8", "unit": "MEQ/L", "flag": "panic"},
			{"testName": "LDL", "valueText": "160", "unit": "mg/dl", "flag": "H"}
		]
	}`)

	assert.Equal(t, "critical", *res.Labs[0].Flag)
	assert.Equal(t, "mEq/L", *res.Labs[0].Unit)
	assert.Equal(t, "H", *res.Labs[1].Flag)
	assert.Equal(t, "mg/dL", *res.Labs[1].Unit)
}
