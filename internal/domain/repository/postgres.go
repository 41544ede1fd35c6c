package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"walkscore_service/internal/domain/model"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

// NoFloodRisk is reported when the location lies outside every flood overlay.
const NoFloodRisk = "None"

// PostGISRepository answers point lookups against the hazard and
// socio-economic layers loaded into PostGIS.
type PostGISRepository struct {
	db *sqlx.DB
}

// OpenPostgres connects with the lib/pq driver and pings the database.
func OpenPostgres(ctx context.Context, connStr string) (*sqlx.DB, error) {
	db, err := sqlx.ConnectContext(ctx, "postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}
	return db, nil
}

func NewPostGISRepository(db *sqlx.DB) *PostGISRepository {
	return &PostGISRepository{db: db}
}

// FloodRisk returns the flood risk class at the given point, or NoFloodRisk.
func (r *PostGISRepository) FloodRisk(ctx context.Context, lon, lat float64) (string, error) {
	if err := validateCoordinates(lon, lat); err != nil {
		return "", err
	}

	const query = `SELECT flood_risk FROM get_flood_risk($1, $2)`

	var risk sql.NullString
	err := r.db.GetContext(ctx, &risk, query, lon, lat)
	if errors.Is(err, sql.ErrNoRows) {
		return NoFloodRisk, nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to query flood risk: %w", err)
	}
	if !risk.Valid || risk.String == "" {
		return NoFloodRisk, nil
	}

	return risk.String, nil
}

// Seifa returns the SEIFA 2021 record of the suburb containing the point,
// or nil when the point is outside every suburb.
func (r *PostGISRepository) Seifa(ctx context.Context, lon, lat float64) (*model.SeifaRecord, error) {
	if err := validateCoordinates(lon, lat); err != nil {
		return nil, err
	}

	const query = `
		SELECT
			sal_name_2021,
			irsad_score,
			irsad_decile
		FROM get_seifa_2021($1, $2)`

	var record model.SeifaRecord
	err := r.db.GetContext(ctx, &record, query, lon, lat)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query seifa: %w", err)
	}

	return &record, nil
}

// HazardReport runs every lookup for a single point.
func (r *PostGISRepository) HazardReport(ctx context.Context, lon, lat float64) (model.HazardReport, error) {
	risk, err := r.FloodRisk(ctx, lon, lat)
	if err != nil {
		return model.HazardReport{}, err
	}
	seifa, err := r.Seifa(ctx, lon, lat)
	if err != nil {
		return model.HazardReport{}, err
	}
	return model.HazardReport{
		Longitude: lon,
		Latitude:  lat,
		FloodRisk: risk,
		Seifa:     seifa,
	}, nil
}

func validateCoordinates(lon, lat float64) error {
	if lat < -90 || lat > 90 {
		return fmt.Errorf("%w: latitude %v out of range [-90, 90]", model.ErrInvalidCoordinates, lat)
	}
	if lon < -180 || lon > 180 {
		return fmt.Errorf("%w: longitude %v out of range [-180, 180]", model.ErrInvalidCoordinates, lon)
	}
	return nil
}
