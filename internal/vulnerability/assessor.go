package vulnerability

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Skufu/pneumoscan/internal/model"
)

// ProfileFinder looks up a person's health profile. It returns model.ErrNotFound
// when the person never completed onboarding.
type ProfileFinder interface {
	FindProfile(ctx context.Context, personID uuid.UUID) (*model.HealthProfile, error)
}

// Info is an assessment plus what the explanation layer needs to describe it.
type Info struct {
	Assessment
	HasProfile  bool   `json:"has_profile"`
	Explanation string `json:"explanation"`
}

// Assessor scores a person's stored profile at request time.
type Assessor struct {
	profiles ProfileFinder
	logger   *zap.Logger
	now      func() time.Time
}

func NewAssessor(profiles ProfileFinder, logger *zap.Logger) *Assessor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Assessor{profiles: profiles, logger: logger, now: time.Now}
}

// Assess never fails: a missing profile degrades to NOT_REGISTERED and a lookup
// error degrades to UNAVAILABLE, both with MEDIUM priority.
func (a *Assessor) Assess(ctx context.Context, personID uuid.UUID) Info {
	profile, err := a.profiles.FindProfile(ctx, personID)
	switch {
	case errors.Is(err, model.ErrNotFound) || (err == nil && profile == nil):
		return Info{
			Assessment:  NotRegistered(),
			Explanation: "No registered health profile was found for this patient.",
		}
	case err != nil:
		a.logger.Warn("vulnerability lookup failed",
			zap.String("person_id", personID.String()),
			zap.Error(err))
		return Info{
			Assessment: Assessment{
				Tier:     model.TierUnavailable,
				Priority: model.TierMedium,
				Reasons:  []string{"vulnerability lookup failed"},
			},
			Explanation: "Vulnerability information could not be retrieved.",
		}
	}

	assessment := Score(profile, a.now())
	return Info{
		Assessment:  assessment,
		HasProfile:  true,
		Explanation: describe(assessment),
	}
}

func describe(a Assessment) string {
	msg := fmt.Sprintf("Patient with %s vulnerability according to the registered health profile", strings.ToLower(string(a.Tier)))
	if len(a.Reasons) == 0 {
		return msg + "."
	}
	return msg + " (" + strings.Join(a.Reasons, "; ") + ")."
}
