package cluster

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/permit-intel/internal/permit"
)

// PermitSource supplies the geocoded permits a run clusters over.
type PermitSource interface {
	ListGeocoded(ctx context.Context) ([]*permit.Permit, error)
}

// Engine orchestrates one clustering run end to end. All computation is
// in-memory over the fetched batch; only the initial read and final save
// touch the store.
type Engine struct {
	source    PermitSource
	store     *Store
	params    Params
	corridors []Corridor
	log       *zap.Logger
}

// EngineOption configures the Engine.
type EngineOption func(*Engine)

// WithCorridors overrides the corridor table.
func WithCorridors(corridors []Corridor) EngineOption {
	return func(e *Engine) {
		e.corridors = corridors
	}
}

func NewEngine(source PermitSource, store *Store, params Params, opts ...EngineOption) *Engine {
	e := &Engine{
		source:    source,
		store:     store,
		params:    params,
		corridors: DefaultCorridors(),
		log:       zap.L().With(zap.String("component", "cluster_engine")),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Summary reports the outcome of a clustering run.
type Summary struct {
	RunID        string
	Permits      int
	Clustered    int
	Clusters     int
	NoisePoints  int
	Duplicates   int
	Megaprojects int
	Projects     []Project
}

// Run executes one clustering run. Empty input is a valid outcome: the
// run metadata is still recorded with zero clusters.
func (e *Engine) Run(ctx context.Context) (*Summary, error) {
	runID := e.params.RunID()
	sum := &Summary{RunID: runID}

	permits, err := e.source.ListGeocoded(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "cluster: load permits")
	}
	sum.Permits = len(permits)

	assignments, projects := e.compute(permits, sum)

	rec := RunRecord{
		RunID:         runID,
		Params:        e.params,
		ClustersFound: sum.Clusters,
		NoisePoints:   sum.NoisePoints,
		Megaprojects:  sum.Megaprojects,
		Duplicates:    sum.Duplicates,
	}
	if err := e.store.SaveRun(ctx, rec, assignments, projects); err != nil {
		return nil, err
	}

	e.log.Info("clustering run complete",
		zap.String("run_id", runID),
		zap.Int("permits", sum.Permits),
		zap.Int("clusters", sum.Clusters),
		zap.Int("noise", sum.NoisePoints),
		zap.Int("duplicates", sum.Duplicates),
		zap.Int("megaprojects", sum.Megaprojects),
	)
	sum.Projects = projects
	return sum, nil
}

// compute runs the pure in-memory pipeline: features, density clustering,
// dedup, corridor and assembly tagging, aggregation.
func (e *Engine) compute(permits []*permit.Permit, sum *Summary) ([]*Assignment, []Project) {
	points := BuildFeatures(permits, e.params)
	sum.Clustered = len(points)
	if len(points) == 0 {
		return nil, nil
	}

	labels := dbscan(points, e.params.SpatialRadiusMeters, e.params.MinPoints)

	assignments := make([]*Assignment, len(points))
	clusterSet := make(map[int]bool)
	for i, pt := range points {
		assignments[i] = &Assignment{Permit: pt.Permit, ClusterID: labels[i]}
		if labels[i] == Noise {
			sum.NoisePoints++
			continue
		}
		clusterSet[labels[i]] = true
	}
	sum.Clusters = len(clusterSet)

	sum.Duplicates = dedupe(assignments, e.params.statusWeights())
	tagCorridors(assignments, e.corridors, e.params.CorridorProximityMeters)
	detectAssemblies(assignments, e.params.AssemblyRadiusMeters)

	projects := aggregate(sum.RunID, assignments, e.params)
	for _, p := range projects {
		if p.IsMegaproject {
			sum.Megaprojects++
		}
	}
	return assignments, projects
}
