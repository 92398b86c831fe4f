// Package explain turns a diagnosis and a vulnerability assessment into the text
// shown to the patient. The diagnosis text never depends on vulnerability and the
// vulnerability text never depends on the diagnosis; only the recommendation
// combines both.
package explain

import (
	"fmt"
	"strings"

	"github.com/Skufu/pneumoscan/internal/model"
	"github.com/Skufu/pneumoscan/internal/vulnerability"
)

// Urgency is how soon the patient should seek care.
type Urgency string

const (
	UrgencyRoutine Urgency = "ROUTINE"
	UrgencyUrgent  Urgency = "URGENT"
	UrgencyPrompt  Urgency = "PROMPT"
	UrgencyConsult Urgency = "CONSULT"
)

// Section markers present in every detailed explanation.
const (
	DiagnosisMarker      = "X-RAY DIAGNOSIS:"
	VulnerabilityMarker  = "PATIENT VULNERABILITY PROFILE:"
	ConfidenceMarker     = "WHAT DOES THE CONFIDENCE LEVEL MEAN?"
	RecommendationMarker = "RECOMMENDATION"
)

// ConfidenceThreshold is the informal clinical reference mentioned in the caveat.
const ConfidenceThreshold = 80

// AnonymousExplanation is returned to callers without a session.
const AnonymousExplanation = "Standard analysis without health profile"

type Explanation struct {
	Detailed       string  `json:"detailed"`
	ShortMessage   string  `json:"short_message"`
	Recommendation string  `json:"recommendation"`
	Urgency        Urgency `json:"urgency"`
}

type outcome struct {
	urgency        Urgency
	short          string
	recommendation string
}

// Compose is total over every diagnosis and tier: unknown diagnoses are treated
// as pneumonia so that an unexpected label never downgrades urgency.
func Compose(diagnosis model.Diagnosis, confidence float64, info vulnerability.Info) Explanation {
	out := decide(diagnosis, info.Tier)

	var b strings.Builder
	b.WriteString(diagnosisSection(diagnosis, confidence))
	b.WriteString("\n\n")
	b.WriteString(vulnerabilitySection(info))
	b.WriteString("\n\n")
	b.WriteString(confidenceSection())
	b.WriteString("\n\n")
	b.WriteString(out.recommendation)
	b.WriteString("\n\n")
	b.WriteString(closingNote)

	return Explanation{
		Detailed:       b.String(),
		ShortMessage:   out.short,
		Recommendation: out.recommendation,
		Urgency:        out.urgency,
	}
}

func decide(diagnosis model.Diagnosis, tier model.Tier) outcome {
	if diagnosis == model.DiagnosisNormal {
		if tier == model.TierHigh {
			return outcome{
				urgency: UrgencyRoutine,
				short:   "Normal X-ray. Continue routine checkups. Given your HIGH vulnerability, watch closely for respiratory symptoms.",
				recommendation: `RECOMMENDATION:
- The X-ray shows normal patterns.
- Given your HIGH vulnerability profile, however:
  - Keep regular medical checkups
  - Watch for any respiratory symptom
  - Seek care early if symptoms appear
  - Follow preventive respiratory health measures`,
			}
		}
		return outcome{
			urgency: UrgencyRoutine,
			short:   "Normal X-ray. Continue routine checkups.",
			recommendation: `RECOMMENDATION:
- The X-ray shows normal patterns.
- Continue routine medical checkups as advised by your doctor.`,
		}
	}

	switch tier {
	case model.TierHigh:
		return outcome{
			urgency: UrgencyUrgent,
			short:   "Pneumonia detected in HIGH-vulnerability patient. URGENT care required.",
			recommendation: `RECOMMENDATION (URGENT):
- PNEUMONIA DETECTED + HIGH VULNERABILITY
- This combination requires IMMEDIATE medical attention:
  - Go to an emergency room or health center AS SOON AS POSSIBLE
  - A high vulnerability profile increases the risk of complications
  - Do NOT wait for symptoms to get worse
  - Bring this report to the attending physician

PRIORITY: HIGH - URGENT CARE REQUIRED`,
		}
	case model.TierMedium:
		return outcome{
			urgency: UrgencyPrompt,
			short:   "Pneumonia detected, MEDIUM vulnerability. See a doctor PROMPTLY.",
			recommendation: `RECOMMENDATION (PRIORITY):
- PNEUMONIA DETECTED + MEDIUM VULNERABILITY
- PROMPT medical attention is required:
  - See a doctor within the next 24-48 hours
  - A medium vulnerability profile needs close follow-up
  - Monitor symptoms (fever, shortness of breath, chest pain)
  - Bring this report to the attending physician

PRIORITY: MEDIUM - SEE A DOCTOR PROMPTLY`,
		}
	default:
		return outcome{
			urgency: UrgencyConsult,
			short:   "Pneumonia detected. Medical consultation necessary.",
			recommendation: `RECOMMENDATION:
- PNEUMONIA DETECTED
- A MEDICAL EVALUATION is required:
  - Consult a medical professional
  - Confirm the diagnosis with additional studies
  - Start treatment only as prescribed by a doctor
  - Bring this report to the attending physician

PRIORITY: MEDICAL CONSULTATION NECESSARY`,
		}
	}
}

func diagnosisSection(diagnosis model.Diagnosis, confidence float64) string {
	if diagnosis == model.DiagnosisNormal {
		return fmt.Sprintf(`%s NORMAL
- Model confidence: %.2f%%
- The AI model found no patterns associated with pneumonia in this X-ray.
- Lung structures appear within normal parameters according to the automated analysis.`, DiagnosisMarker, confidence)
	}
	return fmt.Sprintf(`%s PNEUMONIA DETECTED
- Model confidence: %.2f%%
- The AI model identified patterns consistent with pneumonia in this X-ray.
- Opacities or consolidations suggesting a pulmonary infection were detected.
- IMPORTANT: this is a preliminary analysis and requires professional medical confirmation.`, DiagnosisMarker, confidence)
}

func vulnerabilitySection(info vulnerability.Info) string {
	if !info.HasProfile {
		return fmt.Sprintf(`%s NOT AVAILABLE
- Vulnerability level: %s
- Suggested care priority: %s
- %s
- Completing the health profile enables a more personalised assessment.`,
			VulnerabilityMarker, info.Tier, info.Priority, info.Explanation)
	}

	reasons := "none"
	if len(info.Reasons) > 0 {
		reasons = strings.Join(info.Reasons, "; ")
	}
	return fmt.Sprintf(`%s %s
- Vulnerability level: %s
- Suggested care priority: %s
- Critical factors: %s
- %s

This assessment is based on:
  - Age and demographics
  - Socioeconomic situation
  - Access to health services
  - COVID-19 history and sequelae`,
		VulnerabilityMarker, info.Tier, info.Tier, info.Priority, reasons, info.Explanation)
}

func confidenceSection() string {
	return fmt.Sprintf(`%s
- Confidence is how sure the model is when comparing the possible classes (NORMAL vs PNEUMONIA).
- A value below %d%% does NOT mean the diagnosis is incorrect.
- It indicates the image shares features of both classes or shows subtle patterns.
- The model selects the class with the highest relative probability, even when the margin is small.
- Correct diagnoses with moderate confidence (60-75%%) are common in clinical and medical AI testing.

The result is the most likely option according to the automated analysis and must ALWAYS be
read as support for a medical decision, never as a final verdict.`, ConfidenceMarker, ConfidenceThreshold)
}

const closingNote = `IMPORTANT NOTE:
This analysis combines:
1. An automated diagnosis of the X-ray (AI model)
2. A vulnerability assessment from the patient's health profile

They are INDEPENDENT factors considered together to give a contextual recommendation.
The X-ray diagnosis does NOT change with vulnerability, but the urgency of care IS
adjusted according to the patient's profile.

Always consult a qualified medical professional.`
