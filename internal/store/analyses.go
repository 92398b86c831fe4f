package store

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/Skufu/pneumoscan/internal/model"
)

const (
	DefaultHistoryLimit = 50
	MaxHistoryLimit     = 200
)

func (s *Store) SaveAnalysis(ctx context.Context, rec *model.AnalysisRecord) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO analyses (
			id, person_id, image_url, image_path, diagnosis, confidence,
			probability_normal, probability_pneumonia, vulnerability_tier, priority,
			vulnerability_explanation, detailed_explanation, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		rec.ID, rec.PersonID, rec.ImageURL, rec.ImagePath, rec.Diagnosis, rec.Confidence,
		rec.Probabilities.Normal, rec.Probabilities.Pneumonia, rec.VulnerabilityTier, rec.Priority,
		rec.VulnerabilityExplanation, rec.DetailedExplanation, rec.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert analysis: %w", err)
	}
	return nil
}

// ListAnalyses returns the person's analyses, newest first.
func (s *Store) ListAnalyses(ctx context.Context, personID uuid.UUID, limit int) ([]model.AnalysisRecord, error) {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	if limit > MaxHistoryLimit {
		limit = MaxHistoryLimit
	}

	rows, err := s.pool.Query(ctx, `
		SELECT id, person_id, image_url, image_path, diagnosis, confidence,
			probability_normal, probability_pneumonia, vulnerability_tier, priority,
			vulnerability_explanation, detailed_explanation, created_at
		FROM analyses
		WHERE person_id = $1
		ORDER BY created_at DESC, id
		LIMIT $2`, personID, limit)
	if err != nil {
		return nil, fmt.Errorf("list analyses: %w", err)
	}
	defer rows.Close()

	records := []model.AnalysisRecord{}
	for rows.Next() {
		var r model.AnalysisRecord
		if err := rows.Scan(&r.ID, &r.PersonID, &r.ImageURL, &r.ImagePath, &r.Diagnosis, &r.Confidence,
			&r.Probabilities.Normal, &r.Probabilities.Pneumonia, &r.VulnerabilityTier, &r.Priority,
			&r.VulnerabilityExplanation, &r.DetailedExplanation, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan analysis: %w", err)
		}
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list analyses: %w", err)
	}
	return records, nil
}
