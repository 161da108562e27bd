package extract

import (
	"context"
	"fmt"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/permit-intel/internal/permit"
	"github.com/sells-group/permit-intel/internal/resilience"
	"github.com/sells-group/permit-intel/pkg/geocode"
)

// PipelineName identifies extraction runs in the audit log.
const PipelineName = "extract"

// cursorLayout is the floating-timestamp literal the source query language
// accepts in $where predicates.
const cursorLayout = "2006-01-02T15:04:05"

// Source is the paginated permit listing the extractor pulls from.
type Source interface {
	FetchPage(ctx context.Context, where string, offset int) ([]permit.RawRecord, error)
	PageSize() int
}

// PermitWriter loads normalized permits into the warehouse.
type PermitWriter interface {
	Upsert(ctx context.Context, permits []*permit.Permit) (int64, error)
}

// Extractor runs one incremental extraction: resolve the cursor from the
// last successful run, page through everything newer, normalize and
// geocode, stage to a local artifact, then load the whole stage in one
// transactional upsert. Every run leaves an audit row.
type Extractor struct {
	source     Source
	store      PermitWriter
	runlog     *RunLog
	staging    *Staging
	normalizer *permit.Normalizer
	geocoder   geocode.Provider
	geoWorkers int

	breaker      *resilience.CircuitBreaker
	retryCfg     resilience.RetryConfig
	lookbackDays int

	log     *zap.Logger
	nowFunc func() time.Time
}

// ExtractorOption configures the Extractor.
type ExtractorOption func(*Extractor)

// WithGeocoder enables best-effort coordinate fallback for permits the
// source returns without a location.
func WithGeocoder(p geocode.Provider, workers int) ExtractorOption {
	return func(e *Extractor) {
		e.geocoder = p
		if workers > 0 {
			e.geoWorkers = workers
		}
	}
}

// WithLookbackDays sets the first-run cursor window. Default 30.
func WithLookbackDays(days int) ExtractorOption {
	return func(e *Extractor) {
		if days > 0 {
			e.lookbackDays = days
		}
	}
}

// WithRetryConfig overrides the per-page retry policy.
func WithRetryConfig(cfg resilience.RetryConfig) ExtractorOption {
	return func(e *Extractor) {
		e.retryCfg = cfg
	}
}

// WithBreaker overrides the page-fetch circuit breaker.
func WithBreaker(cb *resilience.CircuitBreaker) ExtractorOption {
	return func(e *Extractor) {
		e.breaker = cb
	}
}

// NewExtractor wires an Extractor from its collaborators.
func NewExtractor(source Source, store PermitWriter, runlog *RunLog, staging *Staging, normalizer *permit.Normalizer, opts ...ExtractorOption) *Extractor {
	e := &Extractor{
		source:       source,
		store:        store,
		runlog:       runlog,
		staging:      staging,
		normalizer:   normalizer,
		geoWorkers:   10,
		breaker:      resilience.NewCircuitBreaker(resilience.DefaultCircuitBreakerConfig()),
		retryCfg:     resilience.DefaultRetryConfig(),
		lookbackDays: 30,
		log:          zap.L().With(zap.String("component", "extractor")),
		nowFunc:      time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Result summarizes a completed extraction run.
type Result struct {
	RunID       string
	Pages       int
	Fetched     int
	Loaded      int64
	Skipped     int
	Geocoded    int
	Cursor      time.Time
	NextCursor  time.Time
	StagingPath string
}

// Run executes one extraction. The audit row is written before any work
// and finalized on both success and failure; a failure after partial
// progress records the partial count.
func (e *Extractor) Run(ctx context.Context) (*Result, error) {
	runID, err := e.runlog.Start(ctx, PipelineName)
	if err != nil {
		return nil, eris.Wrap(err, "extract: start audit")
	}

	res, runErr := e.run(ctx, runID)
	if runErr != nil {
		var partial int64
		if res != nil {
			partial = int64(res.Fetched)
		}
		if failErr := e.runlog.Fail(ctx, runID, runErr.Error(), partial); failErr != nil {
			e.log.Error("failed to record run failure", zap.Error(failErr))
		}
		return nil, runErr
	}

	meta := map[string]any{
		"cursor":       res.NextCursor.UTC().Format(time.RFC3339),
		"staging_path": res.StagingPath,
		"pages":        res.Pages,
		"skipped":      res.Skipped,
		"geocoded":     res.Geocoded,
	}
	if err := e.runlog.Complete(ctx, runID, &RunResult{RecordCount: res.Loaded, Metadata: meta}); err != nil {
		return nil, eris.Wrap(err, "extract: complete audit")
	}

	e.log.Info("extraction complete",
		zap.String("run_id", runID),
		zap.Int("pages", res.Pages),
		zap.Int("fetched", res.Fetched),
		zap.Int64("loaded", res.Loaded),
		zap.Int("skipped", res.Skipped),
		zap.Int("geocoded", res.Geocoded),
		zap.Time("next_cursor", res.NextCursor),
	)
	return res, nil
}

func (e *Extractor) run(ctx context.Context, runID string) (*Result, error) {
	cursor, err := e.resolveCursor(ctx)
	if err != nil {
		return nil, err
	}

	res := &Result{RunID: runID, Cursor: cursor, NextCursor: cursor}
	where := fmt.Sprintf("status_date > '%s'", cursor.UTC().Format(cursorLayout))

	writer, err := e.staging.Create(runID)
	if err != nil {
		return res, err
	}
	defer writer.Close() //nolint:errcheck
	res.StagingPath = writer.Path()

	e.log.Info("starting extraction",
		zap.String("run_id", runID),
		zap.Time("cursor", cursor),
		zap.String("staging", writer.Path()),
	)

	pageSize := e.source.PageSize()
	for offset := 0; ; offset += pageSize {
		records, err := e.fetchPage(ctx, where, offset)
		if err != nil {
			return res, eris.Wrapf(err, "extract: page at offset %d", offset)
		}
		if len(records) == 0 {
			break
		}
		res.Pages++
		res.Fetched += len(records)

		batch := e.normalizeBatch(records, where, res)
		if e.geocoder != nil {
			res.Geocoded += e.geocodeBatch(ctx, batch)
		}
		if err := writer.Add(ctx, batch); err != nil {
			return res, err
		}

		for _, p := range batch {
			if t := recordTime(p); t.After(res.NextCursor) {
				res.NextCursor = t
			}
		}

		if len(records) < pageSize {
			break
		}
	}

	if err := writer.Close(); err != nil {
		return res, err
	}

	// Load the whole stage in one upsert so a failed load leaves the
	// warehouse untouched and the stage reloadable.
	staged, err := ReadStage(ctx, writer.Path())
	if err != nil {
		return res, err
	}
	loaded, err := e.store.Upsert(ctx, staged)
	if err != nil {
		return res, eris.Wrap(err, "extract: load staged permits")
	}
	res.Loaded = loaded
	return res, nil
}

// resolveCursor finds the incremental watermark: the cursor stored by the
// last successful run, or a lookback window on the first run.
func (e *Extractor) resolveCursor(ctx context.Context) (time.Time, error) {
	last, err := e.runlog.LastSuccess(ctx, PipelineName)
	if err != nil {
		return time.Time{}, eris.Wrap(err, "extract: resolve cursor")
	}
	if last != nil {
		if raw, ok := last.Metadata["cursor"].(string); ok {
			if t, err := time.Parse(time.RFC3339, raw); err == nil {
				return t.UTC(), nil
			}
			e.log.Warn("unparseable cursor in last run, falling back to lookback",
				zap.String("cursor", raw))
		}
	}
	return e.nowFunc().UTC().AddDate(0, 0, -e.lookbackDays), nil
}

// fetchPage retrieves one page through the breaker and retry policy. The
// breaker sits inside the retry loop so each attempt re-checks it; once
// open, the retry aborts immediately because ErrCircuitOpen is not
// transient.
func (e *Extractor) fetchPage(ctx context.Context, where string, offset int) ([]permit.RawRecord, error) {
	return resilience.DoVal(ctx, e.retryCfg, func(ctx context.Context) ([]permit.RawRecord, error) {
		return resilience.ExecuteVal(ctx, e.breaker, func(ctx context.Context) ([]permit.RawRecord, error) {
			return e.source.FetchPage(ctx, where, offset)
		})
	})
}

// normalizeBatch converts raw records, counting and skipping the malformed
// ones rather than failing the run.
func (e *Extractor) normalizeBatch(records []permit.RawRecord, query string, res *Result) []*permit.Permit {
	batch := make([]*permit.Permit, 0, len(records))
	for _, raw := range records {
		p, err := e.normalizer.Normalize(raw)
		if err != nil {
			res.Skipped++
			e.log.Debug("skipping malformed record",
				zap.String("permit_number", raw.PermitNumber),
				zap.Error(err),
			)
			continue
		}
		p.SourceQuery = query
		batch = append(batch, p)
	}
	return batch
}

// geocodeBatch fills in coordinates for permits the source left without
// one. Best-effort: failures leave the permit ungeocoded.
func (e *Extractor) geocodeBatch(ctx context.Context, batch []*permit.Permit) int {
	var targets []*permit.Permit
	var addrs []geocode.AddressInput
	for _, p := range batch {
		if p.NeedsGeocode() {
			targets = append(targets, p)
			addrs = append(addrs, geocode.AddressInput{Street: p.Address})
		}
	}
	if len(targets) == 0 {
		return 0
	}

	results, err := geocode.BatchGeocode(ctx, e.geocoder, addrs, e.geoWorkers)
	if err != nil {
		e.log.Warn("geocode batch aborted", zap.Error(err))
		return 0
	}

	matched := 0
	for i, r := range results {
		if !r.Matched {
			continue
		}
		lat, lon := r.Latitude, r.Longitude
		targets[i].Latitude = &lat
		targets[i].Longitude = &lon
		targets[i].GeocodeQuality = r.Quality
		targets[i].GeocodeSource = r.Source
		matched++
	}
	return matched
}

// recordTime is the watermark timestamp for a permit: status date when
// present, else issue date.
func recordTime(p *permit.Permit) time.Time {
	if p.StatusDate != nil {
		return *p.StatusDate
	}
	if p.IssueDate != nil {
		return *p.IssueDate
	}
	return time.Time{}
}
