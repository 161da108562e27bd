package extract

import (
	"context"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunLogStart(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectExec("INSERT INTO permit.run_audit").
		WithArgs(pgxmock.AnyArg(), PipelineName).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	l := NewRunLog(mock)
	id, err := l.Start(context.Background(), PipelineName)
	require.NoError(t, err)
	assert.NotEmpty(t, id)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRunLogComplete(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectExec("UPDATE permit.run_audit").
		WithArgs(int64(120), pgxmock.AnyArg(), "run-1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	l := NewRunLog(mock)
	err = l.Complete(context.Background(), "run-1", &RunResult{
		RecordCount: 120,
		Metadata:    map[string]any{"cursor": "2025-06-15T00:00:00Z"},
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRunLogFail_RecordsPartialCount(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectExec("UPDATE permit.run_audit").
		WithArgs(int64(37), "circuit breaker is open", "run-2").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	l := NewRunLog(mock)
	err = l.Fail(context.Background(), "run-2", "circuit breaker is open", 37)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRunLogLastSuccess(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	started := time.Date(2025, 6, 1, 2, 0, 0, 0, time.UTC)
	completed := started.Add(5 * time.Minute)
	secs := 300.0
	rows := pgxmock.NewRows([]string{
		"id", "pipeline", "status", "started_at", "completed_at",
		"record_count", "duration_secs", "error", "metadata",
	}).AddRow(
		"run-1", PipelineName, RunComplete, started, &completed,
		int64(500), &secs, (*string)(nil), []byte(`{"cursor":"2025-06-01T00:00:00Z"}`),
	)
	mock.ExpectQuery("FROM permit.run_audit").
		WithArgs(PipelineName).
		WillReturnRows(rows)

	l := NewRunLog(mock)
	e, err := l.LastSuccess(context.Background(), PipelineName)
	require.NoError(t, err)
	require.NotNil(t, e)
	assert.Equal(t, "run-1", e.ID)
	assert.Equal(t, "2025-06-01T00:00:00Z", e.Metadata["cursor"])
}

func TestRunLogLastSuccess_NeverRan(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery("FROM permit.run_audit").
		WithArgs(PipelineName).
		WillReturnRows(pgxmock.NewRows([]string{
			"id", "pipeline", "status", "started_at", "completed_at",
			"record_count", "duration_secs", "error", "metadata",
		}))

	l := NewRunLog(mock)
	e, err := l.LastSuccess(context.Background(), PipelineName)
	require.NoError(t, err)
	assert.Nil(t, e)
}

func TestRunLogList(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	started := time.Date(2025, 6, 1, 2, 0, 0, 0, time.UTC)
	rows := pgxmock.NewRows([]string{
		"id", "pipeline", "status", "started_at", "completed_at",
		"record_count", "duration_secs", "error", "metadata",
	}).AddRow(
		"run-2", PipelineName, RunFailed, started, (*time.Time)(nil),
		int64(0), (*float64)(nil), strPtr("boom"), []byte(nil),
	).AddRow(
		"run-1", PipelineName, RunComplete, started.Add(-time.Hour), (*time.Time)(nil),
		int64(500), (*float64)(nil), (*string)(nil), []byte(nil),
	)
	mock.ExpectQuery("FROM permit.run_audit").
		WithArgs(10).
		WillReturnRows(rows)

	l := NewRunLog(mock)
	entries, err := l.List(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "boom", entries[0].Error)
	assert.Equal(t, RunComplete, entries[1].Status)
}

func strPtr(s string) *string { return &s }
