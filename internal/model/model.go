// Package model holds the records shared by the scoring, analysis and storage layers.
package model

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")
)

type ZoneType string

const (
	ZoneUrban       ZoneType = "urban"
	ZonePeriurban   ZoneType = "periurban"
	ZoneRural       ZoneType = "rural"
	ZoneHardToReach ZoneType = "hard_to_reach"
)

type EconomicSituation string

const (
	EconomicLimited     EconomicSituation = "limited"
	EconomicModerate    EconomicSituation = "moderate"
	EconomicStable      EconomicSituation = "stable"
	EconomicUndisclosed EconomicSituation = "undisclosed"
)

type HealthcareAccess string

const (
	AccessVeryDifficult HealthcareAccess = "very_difficult"
	AccessDifficult     HealthcareAccess = "difficult"
	AccessModerate      HealthcareAccess = "moderate"
	AccessEasy          HealthcareAccess = "easy"
	AccessPrivate       HealthcareAccess = "private"
)

// Tier is a vulnerability level. Priority values use the same set.
type Tier string

const (
	TierHigh          Tier = "HIGH"
	TierMedium        Tier = "MEDIUM"
	TierLow           Tier = "LOW"
	TierNotRegistered Tier = "NOT_REGISTERED"
	TierUnavailable   Tier = "UNAVAILABLE"
)

type Diagnosis string

const (
	DiagnosisNormal    Diagnosis = "NORMAL"
	DiagnosisPneumonia Diagnosis = "PNEUMONIA"
)

// Labels is the classifier's output order.
var Labels = [2]Diagnosis{DiagnosisNormal, DiagnosisPneumonia}

type Person struct {
	ID           uuid.UUID `json:"id"`
	Email        string    `json:"email"`
	FullName     string    `json:"full_name"`
	Phone        string    `json:"phone"`
	Address      string    `json:"address"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

type CovidExperience struct {
	Diagnosed           bool `json:"diagnosed"`
	Hospitalized        bool `json:"hospitalized"`
	RespiratorySequelae bool `json:"respiratory_sequelae"`
	JobLoss             bool `json:"job_loss"`
	NoCovid             bool `json:"no_covid"`
}

// HealthProfile is the onboarding questionnaire of a person. VulnerabilityTier and
// Priority are computed when the profile is created.
type HealthProfile struct {
	PersonID          uuid.UUID         `json:"person_id"`
	BirthDate         time.Time         `json:"birth_date"`
	ZoneType          ZoneType          `json:"zone_type"`
	EconomicSituation EconomicSituation `json:"economic_situation"`
	HealthcareAccess  HealthcareAccess  `json:"healthcare_access"`
	CovidExperience   CovidExperience   `json:"covid_experience"`
	VulnerabilityTier Tier              `json:"vulnerability_tier"`
	Priority          Tier              `json:"priority"`
	CreatedAt         time.Time         `json:"created_at"`
	UpdatedAt         time.Time         `json:"updated_at"`
}

type Probabilities struct {
	Normal    float64 `json:"normal"`
	Pneumonia float64 `json:"pneumonia"`
}

// AnalysisRecord is immutable once saved.
type AnalysisRecord struct {
	ID                       uuid.UUID     `json:"id"`
	PersonID                 uuid.UUID     `json:"person_id"`
	ImageURL                 string        `json:"image_url"`
	ImagePath                string        `json:"image_path"`
	Diagnosis                Diagnosis     `json:"diagnosis"`
	Confidence               float64       `json:"confidence"`
	Probabilities            Probabilities `json:"probabilities"`
	CreatedAt                time.Time     `json:"created_at"`
	VulnerabilityTier        Tier          `json:"vulnerability_tier"`
	Priority                 Tier          `json:"priority"`
	VulnerabilityExplanation string        `json:"vulnerability_explanation"`
	DetailedExplanation      string        `json:"detailed_explanation"`
}
