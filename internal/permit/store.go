package permit

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/permit-intel/internal/db"
)

const permitsTable = "permit.permits"

var permitColumns = []string{
	"permit_key", "permit_number", "permit_type", "permit_subtype", "status",
	"issue_date", "status_date", "estimated_cost", "units_proposed",
	"raw_address", "address", "parcel_id", "council_district",
	"latitude", "longitude", "geocode_quality", "geocode_source",
	"source", "source_query", "ingested_at",
}

// Store persists permits in Postgres, upserting by natural key.
type Store struct {
	pool db.Pool
	log  *zap.Logger
}

func NewStore(pool db.Pool) *Store {
	return &Store{
		pool: pool,
		log:  zap.L().With(zap.String("component", "permit_store")),
	}
}

// Upsert writes a batch of permits, replacing any existing row with the
// same permit_key. Returns the number of rows written.
func (s *Store) Upsert(ctx context.Context, permits []*Permit) (int64, error) {
	if len(permits) == 0 {
		return 0, nil
	}

	rows := make([][]any, 0, len(permits))
	for _, p := range permits {
		rows = append(rows, []any{
			p.Key, p.Number, nullStr(p.Type), nullStr(p.Subtype), string(p.Status),
			p.IssueDate, p.StatusDate, p.EstimatedCost, p.UnitsProposed,
			nullStr(p.RawAddress), nullStr(p.Address), nullStr(p.ParcelID), nullStr(p.CouncilDistrict),
			p.Latitude, p.Longitude, nullStr(p.GeocodeQuality), nullStr(p.GeocodeSource),
			p.Source, nullStr(p.SourceQuery), p.IngestedAt,
		})
	}

	n, err := db.BulkUpsert(ctx, s.pool, db.UpsertConfig{
		Table:        permitsTable,
		Columns:      permitColumns,
		ConflictKeys: []string{"permit_key"},
	}, rows)
	if err != nil {
		return 0, eris.Wrap(err, "permit: upsert batch")
	}

	s.log.Debug("upserted permits", zap.Int64("rows", n))
	return n, nil
}

const listGeocodedSQL = `
SELECT permit_key, permit_number, COALESCE(permit_type, ''), COALESCE(permit_subtype, ''),
       status, issue_date, status_date, estimated_cost, units_proposed,
       COALESCE(raw_address, ''), COALESCE(address, ''), COALESCE(parcel_id, ''),
       COALESCE(council_district, ''), latitude, longitude,
       COALESCE(geocode_quality, ''), COALESCE(geocode_source, ''),
       source, COALESCE(source_query, ''), ingested_at
FROM permit.permits
WHERE latitude IS NOT NULL AND longitude IS NOT NULL
ORDER BY permit_key`

// ListGeocoded returns every permit with usable coordinates, ordered by key
// so clustering input is deterministic.
func (s *Store) ListGeocoded(ctx context.Context) ([]*Permit, error) {
	rows, err := s.pool.Query(ctx, listGeocodedSQL)
	if err != nil {
		return nil, eris.Wrap(err, "permit: list geocoded")
	}
	defer rows.Close()

	var permits []*Permit
	for rows.Next() {
		p := &Permit{}
		var status string
		if err := rows.Scan(
			&p.Key, &p.Number, &p.Type, &p.Subtype,
			&status, &p.IssueDate, &p.StatusDate, &p.EstimatedCost, &p.UnitsProposed,
			&p.RawAddress, &p.Address, &p.ParcelID,
			&p.CouncilDistrict, &p.Latitude, &p.Longitude,
			&p.GeocodeQuality, &p.GeocodeSource,
			&p.Source, &p.SourceQuery, &p.IngestedAt,
		); err != nil {
			return nil, eris.Wrap(err, "permit: scan row")
		}
		p.Status = Status(status)
		permits = append(permits, p)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "permit: iterate rows")
	}
	return permits, nil
}

const countSQL = `SELECT count(*) FROM permit.permits`

// Count returns the total number of stored permits.
func (s *Store) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := s.pool.QueryRow(ctx, countSQL).Scan(&n); err != nil {
		return 0, eris.Wrap(err, "permit: count")
	}
	return n, nil
}

func nullStr(s string) any {
	if s == "" {
		return nil
	}
	return s
}
