package api

import (
	"bytes"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/Skufu/pneumoscan/internal/analysis"
	"github.com/Skufu/pneumoscan/internal/explain"
	"github.com/Skufu/pneumoscan/internal/model"
	"github.com/Skufu/pneumoscan/internal/vulnerability"
)

const imageField = "image"

type vulnerabilitySummary struct {
	Tier        model.Tier `json:"tier"`
	Priority    model.Tier `json:"priority"`
	Explanation string     `json:"explanation"`
	Reasons     []string   `json:"reasons"`
}

type predictResponse struct {
	Diagnosis     model.Diagnosis       `json:"diagnosis"`
	Confidence    float64               `json:"confidence"`
	Probabilities model.Probabilities   `json:"probabilities"`
	Authenticated bool                  `json:"authenticated"`
	Explanation   string                `json:"explanation"`
	Details       string                `json:"analysis_details,omitempty"`
	Urgency       explain.Urgency       `json:"urgency,omitempty"`
	Vulnerability *vulnerabilitySummary `json:"vulnerability,omitempty"`
	AnalysisID    *uuid.UUID            `json:"analysis_id,omitempty"`
	ImageURL      string                `json:"image_url,omitempty"`
}

type analysisData struct {
	ID                       uuid.UUID           `json:"id"`
	Diagnosis                model.Diagnosis     `json:"diagnosis"`
	Confidence               float64             `json:"confidence"`
	Probabilities            model.Probabilities `json:"probabilities"`
	Vulnerability            vulnerability.Info  `json:"vulnerability"`
	AnalysisDetails          string              `json:"analysis_details"`
	VulnerabilityTier        model.Tier          `json:"vulnerability_tier"`
	Priority                 model.Tier          `json:"priority"`
	VulnerabilityExplanation string              `json:"vulnerability_explanation"`
	Recommendation           string              `json:"recommendation"`
	Urgency                  explain.Urgency     `json:"urgency"`
	ImageURL                 string              `json:"image_url"`
}

type analysisResponse struct {
	Success bool         `json:"success"`
	Message string       `json:"message"`
	Data    analysisData `json:"data"`
}

// Predict diagnoses the uploaded image. Authenticated callers get the enriched,
// persisted analysis; everyone else gets the bare diagnosis.
func (h *Handler) Predict(c *gin.Context) {
	up, ok := h.readUpload(c)
	if !ok {
		return
	}

	out, err := h.analyzer.Analyze(c.Request.Context(), up, currentPerson(c))
	if err != nil {
		h.fail(c, err)
		return
	}

	resp := predictResponse{
		Diagnosis:     out.Result.Label,
		Confidence:    out.Result.Confidence,
		Probabilities: out.Result.Probabilities,
		Authenticated: out.Authenticated,
		Explanation:   explain.AnonymousExplanation,
	}
	if out.Authenticated {
		resp.Explanation = out.Explanation.ShortMessage
		resp.Details = out.Explanation.Detailed
		resp.Urgency = out.Explanation.Urgency
		resp.Vulnerability = &vulnerabilitySummary{
			Tier:        out.Vulnerability.Tier,
			Priority:    out.Vulnerability.Priority,
			Explanation: out.Vulnerability.Explanation,
			Reasons:     out.Vulnerability.Reasons,
		}
		resp.AnalysisID = &out.Record.ID
		resp.ImageURL = out.Record.ImageURL
	}
	c.JSON(http.StatusOK, resp)
}

// CreateAnalysis is the authenticated-only form of Predict.
func (h *Handler) CreateAnalysis(c *gin.Context) {
	up, ok := h.readUpload(c)
	if !ok {
		return
	}

	out, err := h.analyzer.Analyze(c.Request.Context(), up, currentPerson(c))
	if err != nil {
		h.fail(c, err)
		return
	}
	if !out.Authenticated {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
		return
	}

	c.JSON(http.StatusOK, analysisResponse{
		Success: true,
		Message: out.Explanation.ShortMessage,
		Data: analysisData{
			ID:                       out.Record.ID,
			Diagnosis:                out.Result.Label,
			Confidence:               out.Result.Confidence,
			Probabilities:            out.Result.Probabilities,
			Vulnerability:            *out.Vulnerability,
			AnalysisDetails:          out.Explanation.Detailed,
			VulnerabilityTier:        out.Record.VulnerabilityTier,
			Priority:                 out.Record.Priority,
			VulnerabilityExplanation: out.Record.VulnerabilityExplanation,
			Recommendation:           out.Explanation.Recommendation,
			Urgency:                  out.Explanation.Urgency,
			ImageURL:                 out.Record.ImageURL,
		},
	})
}

func (h *Handler) ListAnalyses(c *gin.Context) {
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			badRequest(c, "limit must be a positive integer")
			return
		}
		limit = n
	}

	records, err := h.persons.ListAnalyses(c.Request.Context(), currentPerson(c).ID, limit)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"analyses": records, "count": len(records)})
}

func (h *Handler) readUpload(c *gin.Context) (analysis.Upload, bool) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxUpload)

	file, err := c.FormFile(imageField)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.fail(c, err)
			return analysis.Upload{}, false
		}
		badRequest(c, "multipart field \"image\" is required")
		return analysis.Upload{}, false
	}

	f, err := file.Open()
	if err != nil {
		h.fail(c, err)
		return analysis.Upload{}, false
	}
	defer f.Close()

	var buf bytes.Buffer
	if _, err := io.Copy(&buf, f); err != nil {
		h.fail(c, err)
		return analysis.Upload{}, false
	}

	return analysis.Upload{
		Data:        buf.Bytes(),
		ContentType: file.Header.Get("Content-Type"),
	}, true
}
