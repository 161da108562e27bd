package cluster

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/permit-intel/internal/permit"
)

func TestSaveRun_Success(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store := NewStore(mock)
	params := DefaultParams()
	rec := RunRecord{RunID: params.RunID(), Params: params, ClustersFound: 1, Duplicates: 1}

	assignments := []*Assignment{
		{Permit: parcelPermit("a", "P1", permit.StatusFinaled, 500_000), ClusterID: 0},
		{Permit: parcelPermit("b", "P1", permit.StatusApplied, 500_000), ClusterID: 0, IsDuplicate: true, DuplicateOf: "a"},
	}
	projects := []Project{{RunID: rec.RunID, ClusterID: 0, PermitsCount: 1, DuplicatesCount: 1}}

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO permit.clustering_runs").
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec("DELETE FROM permit.cluster_assignments").
		WithArgs(rec.RunID).
		WillReturnResult(pgxmock.NewResult("DELETE", 0))
	mock.ExpectExec("DELETE FROM permit.projects").
		WithArgs(rec.RunID).
		WillReturnResult(pgxmock.NewResult("DELETE", 0))
	mock.ExpectCopyFrom(pgx.Identifier{"permit", "cluster_assignments"}, assignmentColumns).
		WillReturnResult(2)
	mock.ExpectCopyFrom(pgx.Identifier{"permit", "projects"}, projectColumns).
		WillReturnResult(1)
	mock.ExpectCommit()
	mock.ExpectRollback()

	err = store.SaveRun(context.Background(), rec, assignments, projects)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSaveRun_EmptyRunStillRecorded(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store := NewStore(mock)
	rec := RunRecord{RunID: "empty", Params: DefaultParams()}

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO permit.clustering_runs").
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec("DELETE FROM permit.cluster_assignments").
		WithArgs("empty").
		WillReturnResult(pgxmock.NewResult("DELETE", 0))
	mock.ExpectExec("DELETE FROM permit.projects").
		WithArgs("empty").
		WillReturnResult(pgxmock.NewResult("DELETE", 0))
	mock.ExpectCommit()
	mock.ExpectRollback()

	err = store.SaveRun(context.Background(), rec, nil, nil)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSaveRun_RollbackOnError(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store := NewStore(mock)
	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO permit.clustering_runs").
		WillReturnError(fmt.Errorf("connection reset"))
	mock.ExpectRollback()

	err = store.SaveRun(context.Background(), RunRecord{RunID: "r", Params: DefaultParams()}, nil, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "save run")
}

func TestListProjects(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store := NewStore(mock)
	first := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	last := time.Date(2025, 3, 2, 0, 0, 0, 0, time.UTC)

	rows := pgxmock.NewRows([]string{
		"run_id", "cluster_id", "permits_count", "duplicates_count",
		"centroid_lat", "centroid_lon", "extent_meters",
		"first_permit_date", "last_permit_date", "duration_days",
		"total_estimated_cost", "avg_weighted_cost", "max_estimated_cost",
		"total_units_proposed", "net_units_change",
		"parcel_ids", "council_districts", "primary_corridor",
		"is_assembly", "assembly_parcel_count", "is_megaproject", "avg_status_weight",
	}).AddRow(
		"run1", 0, 2, 1,
		30.2672, -97.7431, 42.5,
		&first, &last, 60,
		700_000.0, 350_000.0, 500_000.0,
		6, 4,
		[]string{"P1", "P2"}, []string{"9"}, "East Riverside",
		false, 0, false, 0.875,
	)

	mock.ExpectQuery("FROM permit.projects").WithArgs("run1").WillReturnRows(rows)

	projects, err := store.ListProjects(context.Background(), "run1")
	require.NoError(t, err)
	require.Len(t, projects, 1)
	assert.Equal(t, 2, projects[0].PermitsCount)
	assert.Equal(t, "East Riverside", projects[0].PrimaryCorridor)
	assert.Equal(t, []string{"P1", "P2"}, projects[0].ParcelIDs)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListRuns(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store := NewStore(mock)
	params := DefaultParams()
	paramsJSON, err := json.Marshal(params)
	require.NoError(t, err)

	rows := pgxmock.NewRows([]string{
		"run_id", "params", "clusters_found", "noise_points", "megaprojects", "duplicates", "created_at",
	}).AddRow(
		params.RunID(), paramsJSON, 3, 2, 1, 4, time.Now().UTC(),
	)

	mock.ExpectQuery("FROM permit.clustering_runs").WithArgs(20).WillReturnRows(rows)

	recs, err := store.ListRuns(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, params.RunID(), recs[0].RunID)
	assert.Equal(t, 3, recs[0].ClustersFound)
	assert.InDelta(t, params.SpatialRadiusMeters, recs[0].Params.SpatialRadiusMeters, 1e-9)
	assert.NoError(t, mock.ExpectationsWereMet())
}
