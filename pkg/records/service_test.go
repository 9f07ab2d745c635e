package records

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/medichat/platform/pkg/common/faults"
	"github.com/medichat/platform/pkg/common/logger"
	"github.com/medichat/platform/pkg/common/models"
	"github.com/stretchr/testify/assert"
)

var _ Store = (*mockStore)(nil)

type mockStore struct {
	vitals      []models.Vital
	labs        []models.Lab
	medications []models.Medication
	conditions  []models.Condition
}

func (m *mockStore) InsertVital(ctx context.Context, v models.Vital) (models.Vital, error) {
	v.ID = uuid.New()
	m.vitals = append(m.vitals, v)
	return v, nil
}

func (m *mockStore) InsertLab(ctx context.Context, l models.Lab) (models.Lab, error) {
	l.ID = uuid.New()
	m.labs = append(m.labs, l)
	return l, nil
}

func (m *mockStore) InsertMedication(ctx context.Context, med models.Medication) (models.Medication, error) {
	med.ID = uuid.New()
	m.medications = append(m.medications, med)
	return med, nil
}

func (m *mockStore) InsertCondition(ctx context.Context, c models.Condition) (models.Condition, error) {
	c.ID = uuid.New()
	m.conditions = append(m.conditions, c)
	return c, nil
}

func (m *mockStore) Counts(ctx context.Context, patientUserID uuid.UUID) (models.InsightCounts, error) {
	flagged := 0
	for _, l := range m.labs {
		if l.Flag != nil {
			flagged++
		}
	}
	return models.InsightCounts{
		Vitals:      len(m.vitals),
		Labs:        len(m.labs),
		Medications: len(m.medications),
		Conditions:  len(m.conditions),
		FlaggedLabs: flagged,
	}, nil
}

func intp(n int) *int { return &n }

func TestMain(m *testing.M) {
	logger.Init()
	m.Run()
}

func TestAddVitalRoundTripsThroughCounts(t *testing.T) {
	store := &mockStore{}
	svc := NewService(store)
	patient := uuid.New()

	before, err := svc.Counts(context.Background(), patient)
	assert.NoError(t, err)

	vital, err := svc.AddVital(context.Background(), patient, models.CreateVitalRequest{
		Systolic:     intp(120),
		Diastolic:    intp(80),
		HeartRate:    intp(72),
		TemperatureC: intp(37),
	})
	assert.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, vital.ID)
	assert.Equal(t, 120, *vital.Systolic)
	assert.Equal(t, 80, *vital.Diastolic)
	assert.Equal(t, 72, *vital.HeartRate)
	assert.Equal(t, 37, *vital.TemperatureC)
	assert.Nil(t, vital.SourceDocumentID, "manual entries carry no document provenance")

	after, err := svc.Counts(context.Background(), patient)
	assert.NoError(t, err)
	assert.Equal(t, before.Vitals+1, after.Vitals)
}

func TestAddLabRequiresNameAndValue(t *testing.T) {
	svc := NewService(&mockStore{})

	_, err := svc.AddLab(context.Background(), uuid.New(), models.CreateLabRequest{TestName: "Glucose"})
	var verr *faults.ValidationError
	assert.ErrorAs(t, err, &verr)

	_, err = svc.AddLab(context.Background(), uuid.New(), models.CreateLabRequest{ValueText: "98"})
	assert.ErrorAs(t, err, &verr)
}

func TestAddMedicationDefaultsActive(t *testing.T) {
	svc := NewService(&mockStore{})

	med, err := svc.AddMedication(context.Background(), uuid.New(), models.CreateMedicationRequest{
		MedicationName: "Lisinopril",
	})
	assert.NoError(t, err)
	assert.True(t, med.Active)

	inactive := false
	med, err = svc.AddMedication(context.Background(), uuid.New(), models.CreateMedicationRequest{
		MedicationName: "Amoxicillin",
		Active:         &inactive,
	})
	assert.NoError(t, err)
	assert.False(t, med.Active)
}

func TestAddConditionRequiresName(t *testing.T) {
	svc := NewService(&mockStore{})

	_, err := svc.AddCondition(context.Background(), uuid.New(), models.CreateConditionRequest{})
	var verr *faults.ValidationError
	assert.ErrorAs(t, err, &verr)

	cond, err := svc.AddCondition(context.Background(), uuid.New(), models.CreateConditionRequest{
		ConditionName: "Hypertension",
	})
	assert.NoError(t, err)
	assert.Equal(t, "Hypertension", cond.ConditionName)
}

func TestFlaggedLabsCounted(t *testing.T) {
	store := &mockStore{}
	svc := NewService(store)
	patient := uuid.New()

	flag := "H"
	_, err := svc.AddLab(context.Background(), patient, models.CreateLabRequest{TestName: "LDL", ValueText: "180", Flag: &flag})
	assert.NoError(t, err)
	_, err = svc.AddLab(context.Background(), patient, models.CreateLabRequest{TestName: "HDL", ValueText: "55"})
	assert.NoError(t, err)

	counts, err := svc.Counts(context.Background(), patient)
	assert.NoError(t, err)
	assert.Equal(t, 2, counts.Labs)
	assert.Equal(t, 1, counts.FlaggedLabs)
}
