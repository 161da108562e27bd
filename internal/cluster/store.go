package cluster

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/permit-intel/internal/db"
)

// RunRecord is one row of permit.clustering_runs.
type RunRecord struct {
	RunID         string    `json:"run_id"`
	Params        Params    `json:"params"`
	ClustersFound int       `json:"clusters_found"`
	NoisePoints   int       `json:"noise_points"`
	Megaprojects  int       `json:"megaprojects"`
	Duplicates    int       `json:"duplicates"`
	CreatedAt     time.Time `json:"created_at"`
}

// Store persists clustering output. All writes for one run happen in a
// single transaction keyed by run id, so a re-run with identical
// parameters atomically replaces its previous rows.
type Store struct {
	pool db.Pool
	log  *zap.Logger
}

func NewStore(pool db.Pool) *Store {
	return &Store{
		pool: pool,
		log:  zap.L().With(zap.String("component", "cluster_store")),
	}
}

var assignmentColumns = []string{
	"permit_key", "run_id", "cluster_id", "is_duplicate", "duplicate_of",
	"corridor", "corridor_confidence", "assembly_parcels", "assembly_value",
}

var projectColumns = []string{
	"run_id", "cluster_id", "permits_count", "duplicates_count",
	"centroid_lat", "centroid_lon", "extent_meters",
	"first_permit_date", "last_permit_date", "duration_days",
	"total_estimated_cost", "avg_weighted_cost", "max_estimated_cost",
	"total_units_proposed", "net_units_change",
	"parcel_ids", "council_districts", "primary_corridor",
	"is_assembly", "assembly_parcel_count", "is_megaproject", "avg_status_weight",
}

// SaveRun writes the run metadata, assignments, and projects in one
// transaction, replacing any previous output with the same run id.
func (s *Store) SaveRun(ctx context.Context, rec RunRecord, assignments []*Assignment, projects []Project) error {
	paramsJSON, err := json.Marshal(rec.Params)
	if err != nil {
		return eris.Wrap(err, "cluster: marshal params")
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "cluster: begin tx")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if _, err := tx.Exec(ctx,
		`INSERT INTO permit.clustering_runs (run_id, params, clusters_found, noise_points, megaprojects, duplicates, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, now())
		 ON CONFLICT (run_id) DO UPDATE SET
		     params = EXCLUDED.params,
		     clusters_found = EXCLUDED.clusters_found,
		     noise_points = EXCLUDED.noise_points,
		     megaprojects = EXCLUDED.megaprojects,
		     duplicates = EXCLUDED.duplicates,
		     created_at = now()`,
		rec.RunID, paramsJSON, rec.ClustersFound, rec.NoisePoints, rec.Megaprojects, rec.Duplicates,
	); err != nil {
		return eris.Wrapf(err, "cluster: save run %s", rec.RunID)
	}

	if _, err := tx.Exec(ctx,
		`DELETE FROM permit.cluster_assignments WHERE run_id = $1`, rec.RunID); err != nil {
		return eris.Wrap(err, "cluster: clear assignments")
	}
	if _, err := tx.Exec(ctx,
		`DELETE FROM permit.projects WHERE run_id = $1`, rec.RunID); err != nil {
		return eris.Wrap(err, "cluster: clear projects")
	}

	if len(assignments) > 0 {
		rows := make([][]any, 0, len(assignments))
		for _, a := range assignments {
			rows = append(rows, []any{
				a.Permit.Key, rec.RunID, a.ClusterID, a.IsDuplicate, nullable(a.DuplicateOf),
				nullable(a.Corridor), a.CorridorConfidence, a.AssemblyParcels, a.AssemblyValue,
			})
		}
		if _, err := db.CopyFromSchema(ctx, tx, "permit", "cluster_assignments", assignmentColumns, rows); err != nil {
			return eris.Wrap(err, "cluster: copy assignments")
		}
	}

	if len(projects) > 0 {
		rows := make([][]any, 0, len(projects))
		for _, p := range projects {
			rows = append(rows, []any{
				p.RunID, p.ClusterID, p.PermitsCount, p.DuplicatesCount,
				p.CentroidLat, p.CentroidLon, p.ExtentMeters,
				p.FirstPermitDate, p.LastPermitDate, p.DurationDays,
				p.TotalEstimatedCost, p.AvgWeightedCost, p.MaxEstimatedCost,
				p.TotalUnitsProposed, p.NetUnitsChange,
				p.ParcelIDs, p.CouncilDistricts, nullable(p.PrimaryCorridor),
				p.IsAssembly, p.AssemblyParcelCount, p.IsMegaproject, p.AvgStatusWeight,
			})
		}
		if _, err := db.CopyFromSchema(ctx, tx, "permit", "projects", projectColumns, rows); err != nil {
			return eris.Wrap(err, "cluster: copy projects")
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return eris.Wrap(err, "cluster: commit tx")
	}

	s.log.Debug("saved clustering run",
		zap.String("run_id", rec.RunID),
		zap.Int("assignments", len(assignments)),
		zap.Int("projects", len(projects)),
	)
	return nil
}

// ListProjects returns a run's projects ordered by cluster id.
func (s *Store) ListProjects(ctx context.Context, runID string) ([]Project, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT run_id, cluster_id, permits_count, duplicates_count,
		        centroid_lat, centroid_lon, extent_meters,
		        first_permit_date, last_permit_date, duration_days,
		        total_estimated_cost, avg_weighted_cost, max_estimated_cost,
		        total_units_proposed, net_units_change,
		        parcel_ids, council_districts, COALESCE(primary_corridor, ''),
		        is_assembly, assembly_parcel_count, is_megaproject, avg_status_weight
		 FROM permit.projects WHERE run_id = $1 ORDER BY cluster_id`,
		runID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "cluster: list projects for %s", runID)
	}
	defer rows.Close()

	var projects []Project
	for rows.Next() {
		var p Project
		if err := rows.Scan(
			&p.RunID, &p.ClusterID, &p.PermitsCount, &p.DuplicatesCount,
			&p.CentroidLat, &p.CentroidLon, &p.ExtentMeters,
			&p.FirstPermitDate, &p.LastPermitDate, &p.DurationDays,
			&p.TotalEstimatedCost, &p.AvgWeightedCost, &p.MaxEstimatedCost,
			&p.TotalUnitsProposed, &p.NetUnitsChange,
			&p.ParcelIDs, &p.CouncilDistricts, &p.PrimaryCorridor,
			&p.IsAssembly, &p.AssemblyParcelCount, &p.IsMegaproject, &p.AvgStatusWeight,
		); err != nil {
			return nil, eris.Wrap(err, "cluster: scan project")
		}
		projects = append(projects, p)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "cluster: iterate projects")
	}
	return projects, nil
}

// ListRuns returns run metadata, newest first.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]RunRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.pool.Query(ctx,
		`SELECT run_id, params, clusters_found, noise_points, megaprojects, duplicates, created_at
		 FROM permit.clustering_runs ORDER BY created_at DESC LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "cluster: list runs")
	}
	defer rows.Close()

	var recs []RunRecord
	for rows.Next() {
		var rec RunRecord
		var paramsJSON []byte
		if err := rows.Scan(
			&rec.RunID, &paramsJSON, &rec.ClustersFound, &rec.NoisePoints,
			&rec.Megaprojects, &rec.Duplicates, &rec.CreatedAt,
		); err != nil {
			return nil, eris.Wrap(err, "cluster: scan run")
		}
		if err := json.Unmarshal(paramsJSON, &rec.Params); err != nil {
			return nil, eris.Wrap(err, "cluster: unmarshal params")
		}
		recs = append(recs, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "cluster: iterate runs")
	}
	return recs, nil
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
