package explain

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/Skufu/pneumoscan/internal/model"
	"github.com/Skufu/pneumoscan/internal/vulnerability"
)

func infoFor(tier model.Tier) vulnerability.Info {
	switch tier {
	case model.TierNotRegistered:
		return vulnerability.Info{
			Assessment:  vulnerability.NotRegistered(),
			Explanation: "No registered health profile was found for this patient.",
		}
	case model.TierUnavailable:
		return vulnerability.Info{
			Assessment:  vulnerability.Assessment{Tier: tier, Priority: model.TierMedium, Reasons: []string{"vulnerability lookup failed"}},
			Explanation: "Vulnerability information could not be retrieved.",
		}
	}
	return vulnerability.Info{
		Assessment:  vulnerability.Assessment{Tier: tier, Priority: tier, Reasons: []string{"zone rural"}},
		HasProfile:  true,
		Explanation: "Patient with registered profile.",
	}
}

var allTiers = []model.Tier{
	model.TierHigh, model.TierMedium, model.TierLow, model.TierNotRegistered, model.TierUnavailable, model.Tier("SOMETHING_ELSE"),
}

func TestCompose_TotalOverAllPairs(t *testing.T) {
	for _, d := range model.Labels {
		for _, tier := range allTiers {
			e := Compose(d, 91.5, infoFor(tier))
			assert.NotEmpty(t, e.ShortMessage, "%s/%s", d, tier)
			assert.NotEmpty(t, e.Urgency, "%s/%s", d, tier)
			assert.Contains(t, e.Detailed, DiagnosisMarker)
			assert.Contains(t, e.Detailed, VulnerabilityMarker)
			assert.Contains(t, e.Detailed, ConfidenceMarker)
			assert.Contains(t, e.Detailed, RecommendationMarker)
			assert.Contains(t, e.Detailed, e.Recommendation)
			assert.Contains(t, e.Detailed, "does NOT change with vulnerability")
			assert.Contains(t, e.Detailed, "urgency of care IS")
		}
	}
}

func TestCompose_DecisionTable(t *testing.T) {
	cases := []struct {
		diagnosis model.Diagnosis
		tier      model.Tier
		urgency   Urgency
		short     string
	}{
		{model.DiagnosisNormal, model.TierLow, UrgencyRoutine, "Normal X-ray. Continue routine checkups."},
		{model.DiagnosisNormal, model.TierMedium, UrgencyRoutine, "Normal X-ray. Continue routine checkups."},
		{model.DiagnosisNormal, model.TierNotRegistered, UrgencyRoutine, "Normal X-ray. Continue routine checkups."},
		{model.DiagnosisPneumonia, model.TierHigh, UrgencyUrgent, "Pneumonia detected in HIGH-vulnerability patient. URGENT care required."},
		{model.DiagnosisPneumonia, model.TierMedium, UrgencyPrompt, "Pneumonia detected, MEDIUM vulnerability. See a doctor PROMPTLY."},
		{model.DiagnosisPneumonia, model.TierLow, UrgencyConsult, "Pneumonia detected. Medical consultation necessary."},
		{model.DiagnosisPneumonia, model.TierNotRegistered, UrgencyConsult, "Pneumonia detected. Medical consultation necessary."},
		{model.DiagnosisPneumonia, model.TierUnavailable, UrgencyConsult, "Pneumonia detected. Medical consultation necessary."},
	}
	for _, tc := range cases {
		t.Run(string(tc.diagnosis)+"/"+string(tc.tier), func(t *testing.T) {
			e := Compose(tc.diagnosis, 88, infoFor(tc.tier))
			assert.Equal(t, tc.urgency, e.Urgency)
			assert.Equal(t, tc.short, e.ShortMessage)
		})
	}
}

func TestCompose_NormalHighAddsCaution(t *testing.T) {
	e := Compose(model.DiagnosisNormal, 97.1, infoFor(model.TierHigh))
	assert.Equal(t, UrgencyRoutine, e.Urgency)
	assert.True(t, strings.HasPrefix(e.ShortMessage, "Normal X-ray. Continue routine checkups."))
	assert.Contains(t, e.ShortMessage, "HIGH vulnerability")
	assert.Contains(t, e.Recommendation, "HIGH vulnerability profile")
}

func TestCompose_PneumoniaHighIsUrgent(t *testing.T) {
	e := Compose(model.DiagnosisPneumonia, 72.4, infoFor(model.TierHigh))
	assert.Contains(t, e.ShortMessage, "URGENT")
	assert.Contains(t, e.Recommendation, "PRIORITY: HIGH - URGENT CARE REQUIRED")
}

func TestCompose_SectionsAreIndependent(t *testing.T) {
	// The diagnosis section must read the same whatever the tier.
	low := Compose(model.DiagnosisPneumonia, 81.25, infoFor(model.TierLow))
	high := Compose(model.DiagnosisPneumonia, 81.25, infoFor(model.TierHigh))
	assert.Equal(t, diagnosisOf(low.Detailed), diagnosisOf(high.Detailed))
	assert.Contains(t, diagnosisOf(low.Detailed), "Model confidence: 81.25%")

	// And the vulnerability section the same whatever the diagnosis.
	normal := Compose(model.DiagnosisNormal, 81.25, infoFor(model.TierHigh))
	assert.Equal(t, vulnerabilityOf(normal.Detailed), vulnerabilityOf(high.Detailed))
}

func TestCompose_ConfidenceCaveat(t *testing.T) {
	e := Compose(model.DiagnosisNormal, 64, infoFor(model.TierLow))
	assert.Contains(t, e.Detailed, "below 80% does NOT mean the diagnosis is incorrect")
}

func diagnosisOf(detailed string) string {
	end := strings.Index(detailed, VulnerabilityMarker)
	return detailed[:end]
}

func vulnerabilityOf(detailed string) string {
	start := strings.Index(detailed, VulnerabilityMarker)
	end := strings.Index(detailed, ConfidenceMarker)
	return detailed[start:end]
}
