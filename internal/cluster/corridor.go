package cluster

import (
	"fmt"

	geom "github.com/twpayne/go-geom"
)

// Corridor is a named development corridor with its bounding box
// (lon/lat order, matching go-geom's XY layout).
type Corridor struct {
	Name   string
	Bounds *geom.Bounds
}

// NewCorridor builds a corridor from its bounding coordinates.
func NewCorridor(name string, minLon, minLat, maxLon, maxLat float64) Corridor {
	return Corridor{
		Name:   name,
		Bounds: geom.NewBounds(geom.XY).Set(minLon, minLat, maxLon, maxLat),
	}
}

// DefaultCorridors is the standard corridor table for the Austin dataset.
func DefaultCorridors() []Corridor {
	return []Corridor{
		NewCorridor("East Riverside", -97.7320, 30.2280, -97.6940, 30.2470),
		NewCorridor("South Lamar", -97.7800, 30.2260, -97.7620, 30.2570),
		NewCorridor("North Burnet", -97.7330, 30.3860, -97.7030, 30.4180),
		NewCorridor("East 7th Street", -97.7280, 30.2560, -97.6870, 30.2680),
		NewCorridor("South Congress", -97.7560, 30.2280, -97.7420, 30.2530),
		NewCorridor("Airport Boulevard", -97.7200, 30.2890, -97.6850, 30.3290),
	}
}

const (
	corridorConfidenceInside   = 0.9
	corridorConfidenceAdjacent = 0.6
)

// tagCorridors annotates each assignment with the corridor containing its
// coordinates, or the nearest corridor within proximityMeters of a box
// center as "<name> (Adjacent)" at lower confidence.
func tagCorridors(assignments []*Assignment, corridors []Corridor, proximityMeters float64) {
	for _, a := range assignments {
		if !a.Permit.HasCoordinates() {
			continue
		}
		lat, lon := *a.Permit.Latitude, *a.Permit.Longitude

		tagged := false
		for _, c := range corridors {
			if c.Bounds.OverlapsPoint(geom.XY, geom.Coord{lon, lat}) {
				a.Corridor = c.Name
				a.CorridorConfidence = corridorConfidenceInside
				tagged = true
				break
			}
		}
		if tagged {
			continue
		}

		bestDist := proximityMeters
		for _, c := range corridors {
			cLon := (c.Bounds.Min(0) + c.Bounds.Max(0)) / 2
			cLat := (c.Bounds.Min(1) + c.Bounds.Max(1)) / 2
			if d := haversineMeters(lat, lon, cLat, cLon); d <= bestDist {
				bestDist = d
				a.Corridor = fmt.Sprintf("%s (Adjacent)", c.Name)
				a.CorridorConfidence = corridorConfidenceAdjacent
			}
		}
	}
}

// detectAssemblies finds multi-parcel assembly opportunities per cluster:
// parcel centroids within assemblyRadiusMeters of each other are linked,
// and every permit on a linked group of two or more parcels is annotated
// with the group's combined parcel count and primary valuation.
func detectAssemblies(assignments []*Assignment, assemblyRadiusMeters float64) {
	byCluster := make(map[int][]*Assignment)
	for _, a := range assignments {
		if a.ClusterID == Noise || a.Permit.ParcelID == "" || !a.Permit.HasCoordinates() {
			continue
		}
		byCluster[a.ClusterID] = append(byCluster[a.ClusterID], a)
	}

	for _, members := range byCluster {
		// Parcel centroids from member permit coordinates.
		parcelIdx := make(map[string]int)
		var parcels []string
		sums := make(map[string][3]float64) // latSum, lonSum, count
		for _, a := range members {
			id := a.Permit.ParcelID
			if _, ok := parcelIdx[id]; !ok {
				parcelIdx[id] = len(parcels)
				parcels = append(parcels, id)
			}
			s := sums[id]
			s[0] += *a.Permit.Latitude
			s[1] += *a.Permit.Longitude
			s[2]++
			sums[id] = s
		}
		if len(parcels) < 2 {
			continue
		}

		centroids := make([][2]float64, len(parcels))
		for id, idx := range parcelIdx {
			s := sums[id]
			centroids[idx] = [2]float64{s[0] / s[2], s[1] / s[2]}
		}

		// Union-find over parcels within the assembly radius.
		uf := newUnionFind(len(parcels))
		for i := 0; i < len(parcels); i++ {
			for j := i + 1; j < len(parcels); j++ {
				d := haversineMeters(centroids[i][0], centroids[i][1], centroids[j][0], centroids[j][1])
				if d <= assemblyRadiusMeters {
					uf.union(i, j)
				}
			}
		}

		groupSize := make(map[int]int)
		for i := range parcels {
			groupSize[uf.find(i)]++
		}

		groupValue := make(map[int]float64)
		for _, a := range members {
			if a.IsDuplicate {
				continue
			}
			root := uf.find(parcelIdx[a.Permit.ParcelID])
			groupValue[root] += a.Permit.EstimatedCost
		}

		for _, a := range members {
			root := uf.find(parcelIdx[a.Permit.ParcelID])
			if groupSize[root] < 2 {
				continue
			}
			a.AssemblyParcels = groupSize[root]
			a.AssemblyValue = groupValue[root]
		}
	}
}

type unionFind struct {
	parent []int
}

func newUnionFind(n int) *unionFind {
	uf := &unionFind{parent: make([]int, n)}
	for i := range uf.parent {
		uf.parent[i] = i
	}
	return uf
}

func (uf *unionFind) find(x int) int {
	for uf.parent[x] != x {
		uf.parent[x] = uf.parent[uf.parent[x]]
		x = uf.parent[x]
	}
	return x
}

func (uf *unionFind) union(a, b int) {
	ra, rb := uf.find(a), uf.find(b)
	if ra != rb {
		uf.parent[rb] = ra
	}
}
