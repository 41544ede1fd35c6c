package repository

import (
	"context"
	"database/sql"
	"errors"
	"io/fs"
	"regexp"
	"testing"
	"walkscore_service/internal/domain/model"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockDB(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return sqlx.NewDb(db, "sqlmock"), mock
}

var (
	floodQuery = regexp.QuoteMeta(`SELECT flood_risk FROM get_flood_risk($1, $2)`)
	seifaQuery = `SELECT\s+sal_name_2021,\s+irsad_score,\s+irsad_decile\s+FROM get_seifa_2021`
)

func TestPostGISRepository_FloodRisk(t *testing.T) {
	tests := []struct {
		name     string
		rows     *sqlmock.Rows
		expected string
	}{
		{
			name:     "risk class",
			rows:     sqlmock.NewRows([]string{"flood_risk"}).AddRow("High"),
			expected: "High",
		},
		{
			name:     "no overlay",
			rows:     sqlmock.NewRows([]string{"flood_risk"}),
			expected: NoFloodRisk,
		},
		{
			name:     "null class",
			rows:     sqlmock.NewRows([]string{"flood_risk"}).AddRow(nil),
			expected: NoFloodRisk,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db, mock := newMockDB(t)
			mock.ExpectQuery(floodQuery).WithArgs(153.02, -27.47).WillReturnRows(tt.rows)

			repo := NewPostGISRepository(db)
			risk, err := repo.FloodRisk(context.Background(), 153.02, -27.47)

			require.NoError(t, err)
			assert.Equal(t, tt.expected, risk)
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestPostGISRepository_FloodRiskQueryError(t *testing.T) {
	db, mock := newMockDB(t)
	mock.ExpectQuery(floodQuery).WillReturnError(errors.New("connection reset"))

	repo := NewPostGISRepository(db)
	_, err := repo.FloodRisk(context.Background(), 153.02, -27.47)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection reset")
}

func TestPostGISRepository_Seifa(t *testing.T) {
	db, mock := newMockDB(t)
	mock.ExpectQuery(seifaQuery).WithArgs(153.02, -27.47).WillReturnRows(
		sqlmock.NewRows([]string{"sal_name_2021", "irsad_score", "irsad_decile"}).
			AddRow("South Brisbane", 1043.5, 8),
	)

	repo := NewPostGISRepository(db)
	record, err := repo.Seifa(context.Background(), 153.02, -27.47)

	require.NoError(t, err)
	require.NotNil(t, record)
	require.NotNil(t, record.SalName)
	assert.Equal(t, "South Brisbane", *record.SalName)
	require.NotNil(t, record.IRSADScore)
	assert.InDelta(t, 1043.5, *record.IRSADScore, 1e-9)
	require.NotNil(t, record.IRSADDecile)
	assert.Equal(t, 8, *record.IRSADDecile)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostGISRepository_SeifaNullColumns(t *testing.T) {
	db, mock := newMockDB(t)
	mock.ExpectQuery(seifaQuery).WillReturnRows(
		sqlmock.NewRows([]string{"sal_name_2021", "irsad_score", "irsad_decile"}).
			AddRow(nil, nil, nil),
	)

	repo := NewPostGISRepository(db)
	record, err := repo.Seifa(context.Background(), 153.02, -27.47)

	require.NoError(t, err)
	require.NotNil(t, record)
	assert.Nil(t, record.SalName)
	assert.Nil(t, record.IRSADScore)
	assert.Nil(t, record.IRSADDecile)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostGISRepository_SeifaOutsideSuburbs(t *testing.T) {
	db, mock := newMockDB(t)
	mock.ExpectQuery(seifaQuery).WillReturnRows(
		sqlmock.NewRows([]string{"sal_name_2021", "irsad_score", "irsad_decile"}),
	)

	repo := NewPostGISRepository(db)
	record, err := repo.Seifa(context.Background(), 153.02, -27.47)

	require.NoError(t, err)
	assert.Nil(t, record)
}

func TestPostGISRepository_InvalidCoordinates(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewPostGISRepository(db)

	_, err := repo.FloodRisk(context.Background(), 200, 0)
	assert.ErrorIs(t, err, model.ErrInvalidCoordinates)

	_, err = repo.Seifa(context.Background(), 0, -91)
	assert.ErrorIs(t, err, model.ErrInvalidCoordinates)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostGISRepository_HazardReport(t *testing.T) {
	db, mock := newMockDB(t)
	mock.ExpectQuery(floodQuery).WillReturnRows(sqlmock.NewRows([]string{"flood_risk"}).AddRow("Low"))
	mock.ExpectQuery(seifaQuery).WillReturnRows(
		sqlmock.NewRows([]string{"sal_name_2021", "irsad_score", "irsad_decile"}).AddRow("Paddington", nil, nil),
	)

	repo := NewPostGISRepository(db)
	report, err := repo.HazardReport(context.Background(), 153.0, -27.46)

	require.NoError(t, err)
	assert.Equal(t, "Low", report.FloodRisk)
	assert.Equal(t, 153.0, report.Longitude)
	assert.Equal(t, -27.46, report.Latitude)
	require.NotNil(t, report.Seifa)
	require.NotNil(t, report.Seifa.SalName)
	assert.Equal(t, "Paddington", *report.Seifa.SalName)
	assert.Nil(t, report.Seifa.IRSADScore)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresScoreRecorder_RecordScore(t *testing.T) {
	db, mock := newMockDB(t)
	result := model.WalkabilityResult{
		Score:      42,
		TotalPOIs:  17,
		RadarData:  []model.ChartDatum{{Name: "Grocery", Value: 12}},
		PieData:    []model.ChartDatum{{Name: "Grocery", Value: 3}},
		Categories: map[string][]model.ClassifiedAmenity{"grocery": {}},
	}

	mock.ExpectExec("INSERT INTO walkability_scores").
		WithArgs(153.02, -27.47, 42, 17,
			[]byte(`[{"name":"Grocery","value":12}]`),
			[]byte(`[{"name":"Grocery","value":3}]`),
			[]byte(`{"grocery":[]}`)).
		WillReturnResult(sqlmock.NewResult(1, 1))

	recorder := NewPostgresScoreRecorder(db)
	err := recorder.RecordScore(context.Background(), orb.Point{153.02, -27.47}, result)

	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresScoreRecorder_ExecError(t *testing.T) {
	db, mock := newMockDB(t)
	mock.ExpectExec("INSERT INTO walkability_scores").WillReturnError(sql.ErrConnDone)

	recorder := NewPostgresScoreRecorder(db)
	err := recorder.RecordScore(context.Background(), orb.Point{0, 0}, model.EmptyWalkabilityResult())

	assert.ErrorIs(t, err, sql.ErrConnDone)
}

func TestMigrationsEmbedded(t *testing.T) {
	entries, err := fs.ReadDir(migrations, "migrations")
	require.NoError(t, err)
	require.NotEmpty(t, entries)
	assert.Equal(t, "00001_create_walkability_scores.sql", entries[0].Name())
}
