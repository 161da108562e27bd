package cluster

import "math"

// Noise is the label for points that belong to no dense neighborhood.
const Noise = -1

// distanceFrom measures feature-space distance from a query point to
// another point. The temporal delta is scaled by the query point's own
// meters-per-day factor, so a megaproject's neighborhood is wider in
// time than a normal permit's.
func distanceFrom(query, other Point) float64 {
	dx := query.X - other.X
	dy := query.Y - other.Y
	dt := (query.Days - other.Days) * query.Scale
	return math.Sqrt(dx*dx + dy*dy + dt*dt)
}

// dbscan labels each point with a cluster id, or Noise. The neighborhood
// radius equals the configured spatial radius: one radius of space, or
// one temporal window of days, or any Euclidean mix of the two. O(n²)
// neighborhood queries; permit batches are small enough that a spatial
// index would not pay for itself.
func dbscan(points []Point, eps float64, minPts int) []int {
	n := len(points)
	labels := make([]int, n)
	for i := range labels {
		labels[i] = Noise
	}
	visited := make([]bool, n)

	clusterID := 0
	for i := 0; i < n; i++ {
		if visited[i] {
			continue
		}
		visited[i] = true

		neighbors := regionQuery(points, i, eps)
		if len(neighbors) < minPts {
			continue
		}

		labels[i] = clusterID
		// Expand the cluster breadth-first through density-reachable points.
		for qi := 0; qi < len(neighbors); qi++ {
			j := neighbors[qi]
			if !visited[j] {
				visited[j] = true
				jNeighbors := regionQuery(points, j, eps)
				if len(jNeighbors) >= minPts {
					neighbors = append(neighbors, jNeighbors...)
				}
			}
			if labels[j] == Noise {
				labels[j] = clusterID
			}
		}
		clusterID++
	}
	return labels
}

// regionQuery returns the indices within eps of points[i], including i.
func regionQuery(points []Point, i int, eps float64) []int {
	var neighbors []int
	for j := range points {
		if distanceFrom(points[i], points[j]) <= eps {
			neighbors = append(neighbors, j)
		}
	}
	return neighbors
}
