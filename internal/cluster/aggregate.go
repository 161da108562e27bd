package cluster

import (
	"sort"
	"strings"
	"time"

	"github.com/sells-group/permit-intel/internal/permit"
)

// Project is the rolled-up record for one cluster in one run. Totals come
// from primary permits only; duplicates contribute nothing but a count.
type Project struct {
	RunID               string     `json:"run_id"`
	ClusterID           int        `json:"cluster_id"`
	PermitsCount        int        `json:"permits_count"`
	DuplicatesCount     int        `json:"duplicates_count"`
	CentroidLat         float64    `json:"centroid_lat"`
	CentroidLon         float64    `json:"centroid_lon"`
	ExtentMeters        float64    `json:"extent_meters"`
	FirstPermitDate     *time.Time `json:"first_permit_date,omitempty"`
	LastPermitDate      *time.Time `json:"last_permit_date,omitempty"`
	DurationDays        int        `json:"duration_days"`
	TotalEstimatedCost  float64    `json:"total_estimated_cost"`
	AvgWeightedCost     float64    `json:"avg_weighted_cost"`
	MaxEstimatedCost    float64    `json:"max_estimated_cost"`
	TotalUnitsProposed  int        `json:"total_units_proposed"`
	NetUnitsChange      int        `json:"net_units_change"`
	ParcelIDs           []string   `json:"parcel_ids"`
	CouncilDistricts    []string   `json:"council_districts"`
	PrimaryCorridor     string     `json:"primary_corridor,omitempty"`
	IsAssembly          bool       `json:"is_assembly"`
	AssemblyParcelCount int        `json:"assembly_parcel_count"`
	IsMegaproject       bool       `json:"is_megaproject"`
	AvgStatusWeight     float64    `json:"avg_status_weight"`
}

// aggregate rolls every non-noise cluster into a Project. Clusters whose
// primaries were all deduplicated away cannot occur (each parcel keeps
// one primary), so every cluster yields a project.
func aggregate(runID string, assignments []*Assignment, p Params) []Project {
	byCluster := make(map[int][]*Assignment)
	for _, a := range assignments {
		if a.ClusterID == Noise {
			continue
		}
		byCluster[a.ClusterID] = append(byCluster[a.ClusterID], a)
	}

	clusterIDs := make([]int, 0, len(byCluster))
	for id := range byCluster {
		clusterIDs = append(clusterIDs, id)
	}
	sort.Ints(clusterIDs)

	weights := p.statusWeights()
	projects := make([]Project, 0, len(clusterIDs))
	for _, id := range clusterIDs {
		projects = append(projects, buildProject(runID, id, byCluster[id], weights, p.MegaprojectThreshold))
	}
	return projects
}

func buildProject(runID string, clusterID int, members []*Assignment, weights map[permit.Status]float64, megaThreshold float64) Project {
	pr := Project{RunID: runID, ClusterID: clusterID}

	var primaries []*permit.Permit
	corridorCounts := make(map[string]int)
	for _, a := range members {
		if a.Corridor != "" {
			corridorCounts[a.Corridor]++
		}
		if a.IsDuplicate {
			pr.DuplicatesCount++
			continue
		}
		primaries = append(primaries, a.Permit)
		if a.AssemblyParcels >= 2 {
			pr.IsAssembly = true
			if a.AssemblyParcels > pr.AssemblyParcelCount {
				pr.AssemblyParcelCount = a.AssemblyParcels
			}
		}
	}
	pr.PermitsCount = len(primaries)

	parcels := make(map[string]bool)
	districts := make(map[string]bool)
	var weightSum float64
	var latSum, lonSum float64
	for _, pm := range primaries {
		pr.TotalEstimatedCost += pm.EstimatedCost
		if pm.EstimatedCost > pr.MaxEstimatedCost {
			pr.MaxEstimatedCost = pm.EstimatedCost
		}
		if pm.EstimatedCost > megaThreshold {
			pr.IsMegaproject = true
		}
		w := permit.StatusWeight(weights, pm.Status)
		weightSum += w
		pr.AvgWeightedCost += w * pm.EstimatedCost

		if pm.UnitsProposed != nil {
			pr.NetUnitsChange += *pm.UnitsProposed
			if *pm.UnitsProposed > 0 {
				pr.TotalUnitsProposed += *pm.UnitsProposed
			}
		}
		if pm.ParcelID != "" {
			parcels[pm.ParcelID] = true
		}
		if pm.CouncilDistrict != "" {
			districts[pm.CouncilDistrict] = true
		}
		latSum += *pm.Latitude
		lonSum += *pm.Longitude

		if d := permitDate(pm); d != nil {
			if pr.FirstPermitDate == nil || d.Before(*pr.FirstPermitDate) {
				pr.FirstPermitDate = d
			}
			if pr.LastPermitDate == nil || d.After(*pr.LastPermitDate) {
				pr.LastPermitDate = d
			}
		}
	}

	if n := float64(len(primaries)); n > 0 {
		pr.CentroidLat = latSum / n
		pr.CentroidLon = lonSum / n
		pr.AvgWeightedCost /= n
		pr.AvgStatusWeight = weightSum / n
	}
	if pr.FirstPermitDate != nil && pr.LastPermitDate != nil {
		pr.DurationDays = int(pr.LastPermitDate.Sub(*pr.FirstPermitDate).Hours() / 24)
	}

	// Max pairwise distance among primaries.
	for i := 0; i < len(primaries); i++ {
		for j := i + 1; j < len(primaries); j++ {
			d := haversineMeters(
				*primaries[i].Latitude, *primaries[i].Longitude,
				*primaries[j].Latitude, *primaries[j].Longitude,
			)
			if d > pr.ExtentMeters {
				pr.ExtentMeters = d
			}
		}
	}

	pr.ParcelIDs = sortedKeys(parcels)
	pr.CouncilDistricts = sortedKeys(districts)
	pr.PrimaryCorridor = dominantCorridor(corridorCounts)
	return pr
}

// dominantCorridor picks the most frequent corridor tag, breaking ties
// alphabetically for determinism.
func dominantCorridor(counts map[string]int) string {
	var best string
	bestCount := 0
	for name, c := range counts {
		if c > bestCount || (c == bestCount && (best == "" || strings.Compare(name, best) < 0)) {
			best = name
			bestCount = c
		}
	}
	return best
}

func sortedKeys(set map[string]bool) []string {
	if len(set) == 0 {
		return nil
	}
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
