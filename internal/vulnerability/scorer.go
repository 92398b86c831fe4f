// Package vulnerability scores how exposed a patient is to complications from a
// respiratory infection, based on the onboarding health profile.
package vulnerability

import (
	"fmt"
	"time"

	"github.com/Skufu/pneumoscan/internal/model"
)

// AgeThreshold is the age above which a patient counts one critical factor.
const AgeThreshold = 56

// Assessment is the outcome of scoring a profile.
type Assessment struct {
	Tier           model.Tier `json:"tier"`
	Priority       model.Tier `json:"priority"`
	CriticalFactor int        `json:"critical_factor_count"`
	Reasons        []string   `json:"reasons"`
	// Age is nil when the birth date is unknown.
	Age *int `json:"age,omitempty"`
}

// NotRegistered is the assessment used when a person has no health profile.
func NotRegistered() Assessment {
	return Assessment{
		Tier:     model.TierNotRegistered,
		Priority: model.TierMedium,
		Reasons:  []string{},
	}
}

// Score counts critical factors in profile as of now. A nil profile yields
// NotRegistered. Each factor contributes at most one point.
func Score(profile *model.HealthProfile, now time.Time) Assessment {
	if profile == nil {
		return NotRegistered()
	}

	factors := 0
	reasons := []string{}
	var agePtr *int

	if age, ok := ageAt(profile.BirthDate, now); ok {
		agePtr = &age
		if age > AgeThreshold {
			factors++
			reasons = append(reasons, fmt.Sprintf("age > %d (current age: %d)", AgeThreshold, age))
		}
	}

	switch profile.ZoneType {
	case model.ZoneRural, model.ZoneHardToReach:
		factors++
		reasons = append(reasons, fmt.Sprintf("zone %s", profile.ZoneType))
	}

	if profile.EconomicSituation == model.EconomicLimited {
		factors++
		reasons = append(reasons, "limited income")
	}

	if profile.CovidExperience.Hospitalized {
		factors++
		reasons = append(reasons, "COVID-19 hospitalization")
	}

	tier := TierFor(factors)
	return Assessment{
		Tier:           tier,
		Priority:       tier,
		CriticalFactor: factors,
		Reasons:        reasons,
		Age:            agePtr,
	}
}

// TierFor maps a critical factor count to a tier.
func TierFor(factors int) model.Tier {
	switch {
	case factors >= 3:
		return model.TierHigh
	case factors >= 1:
		return model.TierMedium
	default:
		return model.TierLow
	}
}

// ageAt returns completed years between birth and now. Zero or future birth
// dates are treated as unknown.
func ageAt(birth, now time.Time) (int, bool) {
	if birth.IsZero() || birth.After(now) {
		return 0, false
	}
	age := now.Year() - birth.Year()
	if now.Month() < birth.Month() || (now.Month() == birth.Month() && now.Day() < birth.Day()) {
		age--
	}
	return age, true
}
