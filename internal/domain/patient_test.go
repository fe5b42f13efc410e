package domain

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPatientApplyDerivedFields(t *testing.T) {
	p := Patient{PatientID: "p1", Height: 180, Weight: 81, DateOfBirth: "1990-06-15"}
	p.ApplyDerivedFields(time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC))

	assert.Equal(t, 25.0, p.BMI)
	assert.Equal(t, 36, p.Age)
}

func TestPatientApplyDerivedFieldsSkipsMissingInputs(t *testing.T) {
	p := Patient{PatientID: "p1", Height: 170}
	p.ApplyDerivedFields(time.Now())
	assert.Zero(t, p.BMI)
	assert.Zero(t, p.Age)
}

func TestPatientValidate(t *testing.T) {
	cases := []struct {
		name    string
		patient Patient
		wantErr bool
	}{
		{"valid", Patient{PatientID: "p1", Email: "ann@example.com"}, false},
		{"missing id", Patient{FirstName: "Ann"}, true},
		{"bad email", Patient{PatientID: "p1", Email: "ann"}, true},
		{"negative weight", Patient{PatientID: "p1", Weight: -1}, true},
		{"bad date", Patient{PatientID: "p1", DateOfBirth: "15/06/1990"}, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.patient.Validate()
			if tc.wantErr {
				require.Error(t, err)
				assert.True(t, IsValidation(err))
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestHashPasswordNeverDoubleHashes(t *testing.T) {
	hashed, err := HashPassword("correct-horse")
	require.NoError(t, err)
	assert.NotEqual(t, "correct-horse", hashed)

	again, err := HashPassword(hashed)
	require.NoError(t, err)
	assert.Equal(t, hashed, again)

	p := Patient{Password: again}
	assert.True(t, p.CheckPassword("correct-horse"))
	assert.False(t, p.CheckPassword("wrong-horse"))
}

func TestHashPasswordRejectsShortPasswords(t *testing.T) {
	_, err := HashPassword("short")
	assert.True(t, IsValidation(err))
}

func TestPatientSanitizedDropsPassword(t *testing.T) {
	p := Patient{PatientID: "p1", Password: "secret-hash"}
	raw, err := json.Marshal(p.Sanitized())
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "password")
	assert.Equal(t, "secret-hash", p.Password)
}

func TestPatientMergeKeepsIdentity(t *testing.T) {
	created := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	p := Patient{PatientID: "p1", FirstName: "Ann", LastName: "Lee", CreatedAt: created}

	merged, err := p.Merge(PatientUpdate{"lastName": "Smith", "phone": "555", "patientId": "other"})
	require.NoError(t, err)

	assert.Equal(t, "p1", merged.PatientID)
	assert.Equal(t, "Ann", merged.FirstName)
	assert.Equal(t, "Smith", merged.LastName)
	assert.Equal(t, "555", merged.Phone)
	assert.True(t, created.Equal(merged.CreatedAt))
}

func TestPatientMergeRejectsUnknownFields(t *testing.T) {
	_, err := Patient{PatientID: "p1"}.Merge(PatientUpdate{"shoeSize": 42})
	assert.True(t, IsValidation(err))
}

func TestPatientUpdateNormalize(t *testing.T) {
	out, err := PatientUpdate{"patientId": "x", "createdAt": "2020-01-01T00:00:00Z", "password": "long-enough", "weight": 70}.Normalize()
	require.NoError(t, err)

	assert.NotContains(t, out, "patientId")
	assert.NotContains(t, out, "createdAt")
	assert.NotEqual(t, "long-enough", out["password"])
	assert.Equal(t, 70, out["weight"])

	_, err = PatientUpdate{"weight": "heavy"}.Normalize()
	assert.True(t, IsValidation(err))
}
