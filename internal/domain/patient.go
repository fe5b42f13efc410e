// File: internal/domain/patient.go
package domain

import (
	"encoding/json"
	"math"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"
)

// DateOfBirthLayout is the accepted dateOfBirth format.
const DateOfBirthLayout = "2006-01-02"

// Patient is the profile record for one person using the service.
type Patient struct {
	PatientID   string `json:"patientId" bson:"patientId"`
	FirstName   string `json:"firstName,omitempty" bson:"firstName,omitempty"`
	LastName    string `json:"lastName,omitempty" bson:"lastName,omitempty"`
	Email       string `json:"email,omitempty" bson:"email,omitempty"`
	Password    string `json:"password,omitempty" bson:"password,omitempty"`
	Phone       string `json:"phone,omitempty" bson:"phone,omitempty"`
	DateOfBirth string `json:"dateOfBirth,omitempty" bson:"dateOfBirth,omitempty"`
	Age         int    `json:"age,omitempty" bson:"age,omitempty"`
	Gender      string `json:"gender,omitempty" bson:"gender,omitempty"`
	Address     string `json:"address,omitempty" bson:"address,omitempty"`

	// Height in centimetres, weight in kilograms.
	Height float64 `json:"height,omitempty" bson:"height,omitempty"`
	Weight float64 `json:"weight,omitempty" bson:"weight,omitempty"`
	BMI    float64 `json:"bmi,omitempty" bson:"bmi,omitempty"`

	BloodType      string `json:"bloodType,omitempty" bson:"bloodType,omitempty"`
	Allergies      string `json:"allergies,omitempty" bson:"allergies,omitempty"`
	Medications    string `json:"medications,omitempty" bson:"medications,omitempty"`
	MedicalHistory string `json:"medicalHistory,omitempty" bson:"medicalHistory,omitempty"`

	EmergencyName     string `json:"emergencyName,omitempty" bson:"emergencyName,omitempty"`
	EmergencyPhone    string `json:"emergencyPhone,omitempty" bson:"emergencyPhone,omitempty"`
	EmergencyRelation string `json:"emergencyRelation,omitempty" bson:"emergencyRelation,omitempty"`

	CreatedAt time.Time `json:"createdAt" bson:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt" bson:"updatedAt"`
}

func (p Patient) Collection() Collection { return CollectionPatients }
func (p Patient) NaturalID() string      { return p.PatientID }
func (p Patient) PatientRef() string     { return p.PatientID }
func (p Patient) SortTime() time.Time    { return p.UpdatedAt }

func (p Patient) Validate() error {
	if strings.TrimSpace(p.PatientID) == "" {
		return NewValidationError(CollectionPatients, "patientId", "is required")
	}
	if p.Email != "" && !strings.Contains(p.Email, "@") {
		return NewValidationError(CollectionPatients, "email", "is not a valid address")
	}
	if p.Height < 0 || p.Weight < 0 || p.Age < 0 {
		return NewValidationError(CollectionPatients, "", "height, weight and age cannot be negative")
	}
	if p.DateOfBirth != "" {
		if _, err := time.Parse(DateOfBirthLayout, p.DateOfBirth); err != nil {
			return NewValidationError(CollectionPatients, "dateOfBirth", "must use YYYY-MM-DD")
		}
	}
	return nil
}

// ApplyDerivedFields fills bmi from height and weight, and age from dateOfBirth.
func (p *Patient) ApplyDerivedFields(now time.Time) {
	if p.Height > 0 && p.Weight > 0 {
		heightM := p.Height / 100
		p.BMI = math.Round(p.Weight/(heightM*heightM)*10) / 10
	}
	if p.DateOfBirth != "" {
		if dob, err := time.Parse(DateOfBirthLayout, p.DateOfBirth); err == nil {
			p.Age = now.Year() - dob.Year()
		}
	}
}

// Sanitized returns a copy safe to hand back to callers.
func (p Patient) Sanitized() Patient {
	p.Password = ""
	return p
}

// HashPassword replaces a plain-text password with its bcrypt hash. Values
// that are already hashed are left alone so a record can cross several
// write boundaries without being hashed twice.
func (p *Patient) HashPassword() error {
	hashed, err := HashPassword(p.Password)
	if err != nil {
		return err
	}
	p.Password = hashed
	return nil
}

// CheckPassword compares a plain-text password with the stored hash.
func (p Patient) CheckPassword(password string) bool {
	if p.Password == "" || password == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(p.Password), []byte(password)) == nil
}

// HashPassword hashes password unless it is empty or already a bcrypt hash.
func HashPassword(password string) (string, error) {
	if password == "" || isBcryptHash(password) {
		return password, nil
	}
	if len(password) < 8 {
		return "", NewValidationError(CollectionPatients, "password", "must be at least 8 characters")
	}
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hashed), nil
}

func isBcryptHash(s string) bool {
	if len(s) != 60 {
		return false
	}
	return strings.HasPrefix(s, "$2a$") || strings.HasPrefix(s, "$2b$") || strings.HasPrefix(s, "$2y$")
}

// PatientUpdate is a partial patient payload keyed by JSON field name.
type PatientUpdate map[string]any

// Normalize drops identity fields, hashes any new password and checks that
// every key belongs to the patient schema.
func (u PatientUpdate) Normalize() (PatientUpdate, error) {
	out := make(PatientUpdate, len(u))
	for k, v := range u {
		if k == "patientId" || k == "createdAt" {
			continue
		}
		out[k] = v
	}
	if pw, ok := out["password"].(string); ok {
		hashed, err := HashPassword(pw)
		if err != nil {
			return nil, err
		}
		out["password"] = hashed
	}
	raw, err := json.Marshal(out)
	if err != nil {
		return nil, NewValidationError(CollectionPatients, "", err.Error())
	}
	var probe Patient
	if err := DecodeStrict(CollectionPatients, raw, &probe); err != nil {
		return nil, err
	}
	return out, nil
}

// Merge shallow-merges update onto p. Identity and creation time survive.
func (p Patient) Merge(update PatientUpdate) (Patient, error) {
	base, err := json.Marshal(p)
	if err != nil {
		return Patient{}, err
	}
	merged := map[string]any{}
	if err := json.Unmarshal(base, &merged); err != nil {
		return Patient{}, err
	}
	for k, v := range update {
		merged[k] = v
	}
	raw, err := json.Marshal(merged)
	if err != nil {
		return Patient{}, NewValidationError(CollectionPatients, "", err.Error())
	}
	var out Patient
	if err := DecodeStrict(CollectionPatients, raw, &out); err != nil {
		return Patient{}, err
	}
	out.PatientID = p.PatientID
	out.CreatedAt = p.CreatedAt
	return out, nil
}
