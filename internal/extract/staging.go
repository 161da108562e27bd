package extract

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite" // database/sql driver

	"github.com/sells-group/permit-intel/internal/permit"
)

// Staging manages per-run staging artifacts: one SQLite file per run with
// a typed staged_permits table. A finished stage is immutable; the loader
// reads it back for the all-or-nothing upsert, and a crashed run leaves
// the file on disk for inspection or reload.
type Staging struct {
	dir string
}

func NewStaging(dir string) *Staging {
	return &Staging{dir: dir}
}

const stagingSchema = `
CREATE TABLE staged_permits (
    permit_key       TEXT PRIMARY KEY,
    permit_number    TEXT NOT NULL,
    permit_type      TEXT,
    permit_subtype   TEXT,
    status           TEXT NOT NULL,
    issue_date       TEXT,
    status_date      TEXT,
    estimated_cost   REAL NOT NULL DEFAULT 0,
    units_proposed   INTEGER,
    raw_address      TEXT,
    address          TEXT,
    parcel_id        TEXT,
    council_district TEXT,
    latitude         REAL,
    longitude        REAL,
    geocode_quality  TEXT,
    geocode_source   TEXT,
    source           TEXT NOT NULL,
    source_query     TEXT,
    ingested_at      TEXT NOT NULL
)`

// StageWriter accumulates permits for one run. Not safe for concurrent use.
type StageWriter struct {
	db    *sql.DB
	path  string
	count int64
}

// Create opens a new staging file for the given run.
func (s *Staging) Create(runID string) (*StageWriter, error) {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return nil, eris.Wrapf(err, "staging: create dir %s", s.dir)
	}

	name := fmt.Sprintf("%s_%s.db", runID, time.Now().UTC().Format("20060102T150405"))
	path := filepath.Join(s.dir, name)

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, eris.Wrapf(err, "staging: open %s", path)
	}
	if _, err := db.Exec(stagingSchema); err != nil {
		db.Close() //nolint:errcheck
		return nil, eris.Wrapf(err, "staging: create schema in %s", path)
	}

	return &StageWriter{db: db, path: path}, nil
}

// Path returns the staging file location.
func (w *StageWriter) Path() string { return w.path }

// Count returns the number of permits staged so far.
func (w *StageWriter) Count() int64 { return w.count }

const stageInsertSQL = `
INSERT OR REPLACE INTO staged_permits (
    permit_key, permit_number, permit_type, permit_subtype, status,
    issue_date, status_date, estimated_cost, units_proposed,
    raw_address, address, parcel_id, council_district,
    latitude, longitude, geocode_quality, geocode_source,
    source, source_query, ingested_at
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

// Add stages a batch of permits inside one transaction.
func (w *StageWriter) Add(ctx context.Context, permits []*permit.Permit) error {
	if len(permits) == 0 {
		return nil
	}

	tx, err := w.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "staging: begin tx")
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx, stageInsertSQL)
	if err != nil {
		return eris.Wrap(err, "staging: prepare insert")
	}
	defer stmt.Close() //nolint:errcheck

	for _, p := range permits {
		if _, err := stmt.ExecContext(ctx,
			p.Key, p.Number, p.Type, p.Subtype, string(p.Status),
			timeStr(p.IssueDate), timeStr(p.StatusDate), p.EstimatedCost, p.UnitsProposed,
			p.RawAddress, p.Address, p.ParcelID, p.CouncilDistrict,
			p.Latitude, p.Longitude, p.GeocodeQuality, p.GeocodeSource,
			p.Source, p.SourceQuery, p.IngestedAt.Format(time.RFC3339Nano),
		); err != nil {
			return eris.Wrapf(err, "staging: insert %s", p.Key)
		}
	}

	if err := tx.Commit(); err != nil {
		return eris.Wrap(err, "staging: commit tx")
	}
	w.count += int64(len(permits))
	return nil
}

// Close finishes the stage. The file is immutable afterwards.
func (w *StageWriter) Close() error {
	if err := w.db.Close(); err != nil {
		return eris.Wrapf(err, "staging: close %s", w.path)
	}
	return nil
}

// ReadStage loads every permit from a finished staging file.
func ReadStage(ctx context.Context, path string) ([]*permit.Permit, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, eris.Wrapf(err, "staging: open %s", path)
	}
	defer db.Close() //nolint:errcheck

	rows, err := db.QueryContext(ctx, `
		SELECT permit_key, permit_number, permit_type, permit_subtype, status,
		       issue_date, status_date, estimated_cost, units_proposed,
		       raw_address, address, parcel_id, council_district,
		       latitude, longitude, geocode_quality, geocode_source,
		       source, source_query, ingested_at
		FROM staged_permits ORDER BY permit_key`)
	if err != nil {
		return nil, eris.Wrapf(err, "staging: read %s", path)
	}
	defer rows.Close() //nolint:errcheck

	var permits []*permit.Permit
	for rows.Next() {
		p := &permit.Permit{}
		var status, issueDate, statusDate, ingestedAt string
		if err := rows.Scan(
			&p.Key, &p.Number, &p.Type, &p.Subtype, &status,
			&issueDate, &statusDate, &p.EstimatedCost, &p.UnitsProposed,
			&p.RawAddress, &p.Address, &p.ParcelID, &p.CouncilDistrict,
			&p.Latitude, &p.Longitude, &p.GeocodeQuality, &p.GeocodeSource,
			&p.Source, &p.SourceQuery, &ingestedAt,
		); err != nil {
			return nil, eris.Wrap(err, "staging: scan row")
		}
		p.Status = permit.Status(status)
		p.IssueDate = parseTimeStr(issueDate)
		p.StatusDate = parseTimeStr(statusDate)
		if t := parseTimeStr(ingestedAt); t != nil {
			p.IngestedAt = *t
		}
		permits = append(permits, p)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "staging: iterate rows")
	}
	return permits, nil
}

func timeStr(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTimeStr(s string) *time.Time {
	if s == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return nil
	}
	return &t
}
