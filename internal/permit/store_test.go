package permit

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStoreUpsert_Success(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store := NewStore(mock)
	issued := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	p := &Permit{
		Key:        NaturalKey("BP-2025-001", &issued),
		Number:     "BP-2025-001",
		Status:     StatusIssued,
		IssueDate:  &issued,
		Source:     "socrata",
		IngestedAt: time.Now().UTC(),
	}

	mock.ExpectBegin()
	mock.ExpectExec("CREATE TEMP TABLE").
		WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectCopyFrom(pgx.Identifier{"_tmp_upsert_permit_permits"}, permitColumns).
		WillReturnResult(1)
	mock.ExpectExec("INSERT INTO \"permit\".\"permits\"").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()
	mock.ExpectRollback()

	n, err := store.Upsert(context.Background(), []*Permit{p})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStoreUpsert_EmptyBatchNoop(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store := NewStore(mock)
	n, err := store.Upsert(context.Background(), nil)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStoreUpsert_Error(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store := NewStore(mock)
	mock.ExpectBegin()
	mock.ExpectExec("CREATE TEMP TABLE").
		WillReturnError(fmt.Errorf("connection refused"))
	mock.ExpectRollback()

	_, err = store.Upsert(context.Background(), []*Permit{{Key: "k", Number: "n", Source: "s"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "upsert")
}

func TestListGeocoded(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store := NewStore(mock)
	issued := time.Date(2025, 1, 15, 0, 0, 0, 0, time.UTC)
	lat, lon := 30.2672, -97.7431
	ingested := time.Now().UTC()

	rows := pgxmock.NewRows([]string{
		"permit_key", "permit_number", "permit_type", "permit_subtype",
		"status", "issue_date", "status_date", "estimated_cost", "units_proposed",
		"raw_address", "address", "parcel_id", "council_district",
		"latitude", "longitude", "geocode_quality", "geocode_source",
		"source", "source_query", "ingested_at",
	}).AddRow(
		"abc123", "BP-1", "Building", "New Construction",
		"Issued", &issued, (*time.Time)(nil), 250000.0, (*int)(nil),
		"100 MAIN ST", "100 Main St, Austin, TX", "0204050711", "9",
		&lat, &lon, "exact", "source",
		"socrata", "", ingested,
	)

	mock.ExpectQuery("FROM permit.permits").WillReturnRows(rows)

	permits, err := store.ListGeocoded(context.Background())
	require.NoError(t, err)
	require.Len(t, permits, 1)
	assert.Equal(t, "abc123", permits[0].Key)
	assert.Equal(t, StatusIssued, permits[0].Status)
	assert.True(t, permits[0].HasCoordinates())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCount(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store := NewStore(mock)
	mock.ExpectQuery("SELECT count").
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(int64(42)))

	n, err := store.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(42), n)
}
