package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"walkscore_service/internal/domain/model"

	"github.com/jmoiron/sqlx"
	"github.com/paulmach/orb"
)

type PostgresScoreRecorder struct {
	db *sqlx.DB
}

func NewPostgresScoreRecorder(db *sqlx.DB) *PostgresScoreRecorder {
	return &PostgresScoreRecorder{db: db}
}

// RecordScore stores one computed result. The chart data and the classified
// amenities go into JSONB columns.
func (r *PostgresScoreRecorder) RecordScore(ctx context.Context, origin orb.Point, result model.WalkabilityResult) error {
	const query = `
		INSERT INTO walkability_scores (
			longitude, latitude,
			score, total_pois,
			radar_data, pie_data, categories,
			recorded_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, NOW()
		)`

	// Сериализация графиков и категорий в JSON
	radarJSON, err := json.Marshal(result.RadarData)
	if err != nil {
		return fmt.Errorf("failed to marshal radar data: %w", err)
	}
	pieJSON, err := json.Marshal(result.PieData)
	if err != nil {
		return fmt.Errorf("failed to marshal pie data: %w", err)
	}
	categoriesJSON, err := json.Marshal(result.Categories)
	if err != nil {
		return fmt.Errorf("failed to marshal categories: %w", err)
	}

	_, err = r.db.ExecContext(ctx, query,
		origin.Lon(), origin.Lat(),
		result.Score, result.TotalPOIs,
		radarJSON, pieJSON, categoriesJSON,
	)
	if err != nil {
		return fmt.Errorf("failed to insert walkability score: %w", err)
	}
	return nil
}
