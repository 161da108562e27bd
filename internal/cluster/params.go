// Package cluster groups geocoded permits into development projects:
// spatio-temporal density clustering, per-parcel deduplication, corridor
// tagging, assembly detection, and per-cluster aggregation.
package cluster

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"

	"github.com/sells-group/permit-intel/internal/permit"
)

// Params is the full parameter set of one clustering run. The run id is a
// hash of this struct, so identical parameters always reproduce the same
// run id and overwrite the same rows.
type Params struct {
	SpatialRadiusMeters     float64            `json:"spatial_radius_meters"`
	TemporalWindowDays      float64            `json:"temporal_window_days"`
	ExtendedWindowDays      float64            `json:"extended_window_days"`
	MegaprojectThreshold    float64            `json:"megaproject_threshold"`
	MinPoints               int                `json:"min_points"`
	AssemblyRadiusMeters    float64            `json:"assembly_radius_meters"`
	CorridorProximityMeters float64            `json:"corridor_proximity_meters"`
	StatusWeights           map[string]float64 `json:"status_weights"`
}

// DefaultParams returns the standard clustering configuration.
func DefaultParams() Params {
	weights := make(map[string]float64, len(permit.DefaultStatusWeights))
	for s, w := range permit.DefaultStatusWeights {
		weights[string(s)] = w
	}
	return Params{
		SpatialRadiusMeters:     150,
		TemporalWindowDays:      365,
		ExtendedWindowDays:      1095,
		MegaprojectThreshold:    1_000_000,
		MinPoints:               2,
		AssemblyRadiusMeters:    75,
		CorridorProximityMeters: 500,
		StatusWeights:           weights,
	}
}

// RunID derives the deterministic run identifier from the parameter set.
// encoding/json sorts map keys, so the serialization is canonical.
func (p Params) RunID() string {
	data, err := json.Marshal(p)
	if err != nil {
		// Params contains only marshalable types.
		panic(err)
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// statusWeights converts the serialized weight table back to the typed map.
func (p Params) statusWeights() map[permit.Status]float64 {
	if len(p.StatusWeights) == 0 {
		return permit.DefaultStatusWeights
	}
	out := make(map[permit.Status]float64, len(p.StatusWeights))
	for s, w := range p.StatusWeights {
		out[permit.Status(s)] = w
	}
	return out
}
