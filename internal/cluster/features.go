package cluster

import (
	"math"
	"sort"
	"time"

	"github.com/sells-group/permit-intel/internal/permit"
)

const earthRadiusMeters = 6_371_000

// temporalEpoch anchors the days-since-epoch coordinate.
var temporalEpoch = time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC)

// Point is one permit projected into the unified feature space: meters
// east/north of the reference point, days since the epoch, and the
// temporal scale that converts day deltas into meter-equivalents for
// this point's neighborhood queries.
type Point struct {
	Permit *permit.Permit
	X      float64 // meters east of reference
	Y      float64 // meters north of reference
	Days   float64 // days since epoch
	Scale  float64 // meters per day for this point's neighborhood
}

// haversineMeters is the great-circle distance between two coordinates.
func haversineMeters(lat1, lon1, lat2, lon2 float64) float64 {
	const deg = math.Pi / 180
	dLat := (lat2 - lat1) * deg
	dLon := (lon2 - lon1) * deg
	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1*deg)*math.Cos(lat2*deg)*math.Sin(dLon/2)*math.Sin(dLon/2)
	return 2 * earthRadiusMeters * math.Asin(math.Min(1, math.Sqrt(a)))
}

// BuildFeatures projects clusterable permits into feature space. Permits
// failing validity checks (no coordinates, non-positive valuation, no
// usable date) are excluded entirely, not labeled noise.
//
// Each point carries its own temporal scale: within the configured
// window, a full window of days equals one spatial radius of distance.
// Megaprojects get the extended window, so a megaproject's neighborhood
// reaches further back and forward in time than a normal permit's. The
// asymmetry is intentional: it lets long-running high-value projects
// absorb permits a normal project would not.
func BuildFeatures(permits []*permit.Permit, p Params) []Point {
	var valid []*permit.Permit
	for _, pm := range permits {
		if !pm.HasCoordinates() || pm.EstimatedCost <= 0 || permitDate(pm) == nil {
			continue
		}
		valid = append(valid, pm)
	}
	if len(valid) == 0 {
		return nil
	}

	// Deterministic ordering regardless of input order.
	sort.Slice(valid, func(i, j int) bool { return valid[i].Key < valid[j].Key })

	// Reference point: centroid of the valid set.
	var refLat, refLon float64
	for _, pm := range valid {
		refLat += *pm.Latitude
		refLon += *pm.Longitude
	}
	refLat /= float64(len(valid))
	refLon /= float64(len(valid))

	points := make([]Point, len(valid))
	for i, pm := range valid {
		// Per-axis Haversine offsets from the reference point, signed.
		x := haversineMeters(refLat, refLon, refLat, *pm.Longitude)
		if *pm.Longitude < refLon {
			x = -x
		}
		y := haversineMeters(refLat, refLon, *pm.Latitude, refLon)
		if *pm.Latitude < refLat {
			y = -y
		}

		window := p.TemporalWindowDays
		if pm.EstimatedCost > p.MegaprojectThreshold {
			window = p.ExtendedWindowDays
		}

		points[i] = Point{
			Permit: pm,
			X:      x,
			Y:      y,
			Days:   permitDate(pm).Sub(temporalEpoch).Hours() / 24,
			Scale:  p.SpatialRadiusMeters / window,
		}
	}
	return points
}

// permitDate is the temporal anchor for clustering: issue date when
// present, else status date.
func permitDate(p *permit.Permit) *time.Time {
	if p.IssueDate != nil {
		return p.IssueDate
	}
	return p.StatusDate
}
