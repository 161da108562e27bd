package cluster

import (
	"sort"

	"github.com/sells-group/permit-intel/internal/permit"
)

// Assignment is one permit's membership in a clustering run, plus the
// annotations the later passes attach (dedup, corridor, assembly).
type Assignment struct {
	Permit             *permit.Permit
	ClusterID          int
	IsDuplicate        bool
	DuplicateOf        string
	Corridor           string
	CorridorConfidence float64
	AssemblyParcels    int
	AssemblyValue      float64
}

// dedupe marks duplicate permits within each non-noise cluster: per
// parcel, the permit with the highest statusWeight × valuation score
// stays primary and the rest link to it. Permits without a parcel id are
// always primary. Ties break on permit key for determinism.
func dedupe(assignments []*Assignment, weights map[permit.Status]float64) int {
	type groupKey struct {
		cluster int
		parcel  string
	}
	groups := make(map[groupKey][]*Assignment)
	for _, a := range assignments {
		if a.ClusterID == Noise || a.Permit.ParcelID == "" {
			continue
		}
		k := groupKey{a.ClusterID, a.Permit.ParcelID}
		groups[k] = append(groups[k], a)
	}

	duplicates := 0
	for _, group := range groups {
		if len(group) < 2 {
			continue
		}
		sort.Slice(group, func(i, j int) bool {
			si := dedupeScore(group[i].Permit, weights)
			sj := dedupeScore(group[j].Permit, weights)
			if si != sj {
				return si > sj
			}
			return group[i].Permit.Key < group[j].Permit.Key
		})
		primary := group[0]
		for _, a := range group[1:] {
			a.IsDuplicate = true
			a.DuplicateOf = primary.Permit.Key
			duplicates++
		}
	}
	return duplicates
}

func dedupeScore(p *permit.Permit, weights map[permit.Status]float64) float64 {
	return permit.StatusWeight(weights, p.Status) * p.EstimatedCost
}
