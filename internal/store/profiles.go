package store

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/Skufu/pneumoscan/internal/model"
)

func insertProfile(ctx context.Context, q querier, hp *model.HealthProfile) error {
	c := hp.CovidExperience
	_, err := q.Exec(ctx, `
		INSERT INTO health_profiles (
			person_id, birth_date, zone_type, economic_situation, healthcare_access,
			covid_diagnosed, covid_hospitalized, covid_sequelae, covid_job_loss, covid_none,
			vulnerability_tier, priority, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
		hp.PersonID, nullableDate(hp.BirthDate), hp.ZoneType, hp.EconomicSituation, hp.HealthcareAccess,
		c.Diagnosed, c.Hospitalized, c.RespiratorySequelae, c.JobLoss, c.NoCovid,
		hp.VulnerabilityTier, hp.Priority, hp.CreatedAt, hp.UpdatedAt)
	return err
}

// FindProfile returns model.ErrNotFound when the person has no profile.
func (s *Store) FindProfile(ctx context.Context, personID uuid.UUID) (*model.HealthProfile, error) {
	var (
		hp    model.HealthProfile
		birth *time.Time
	)
	err := s.pool.QueryRow(ctx, `
		SELECT person_id, birth_date, zone_type, economic_situation, healthcare_access,
			covid_diagnosed, covid_hospitalized, covid_sequelae, covid_job_loss, covid_none,
			vulnerability_tier, priority, created_at, updated_at
		FROM health_profiles WHERE person_id = $1`, personID).Scan(
		&hp.PersonID, &birth, &hp.ZoneType, &hp.EconomicSituation, &hp.HealthcareAccess,
		&hp.CovidExperience.Diagnosed, &hp.CovidExperience.Hospitalized,
		&hp.CovidExperience.RespiratorySequelae, &hp.CovidExperience.JobLoss, &hp.CovidExperience.NoCovid,
		&hp.VulnerabilityTier, &hp.Priority, &hp.CreatedAt, &hp.UpdatedAt)
	if err != nil {
		return nil, notFound(err)
	}
	if birth != nil {
		hp.BirthDate = *birth
	}
	return &hp, nil
}

func nullableDate(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	d := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	return &d
}
