// Package permit defines the normalized building-permit model and the
// transformations from raw source records into it.
package permit

import (
	"time"
)

// Status is a canonical permit status.
type Status string

const (
	StatusApplied        Status = "Applied"
	StatusIssued         Status = "Issued"
	StatusFinaled        Status = "Finaled"
	StatusCofOIssued     Status = "CofO Issued"
	StatusCofOInProgress Status = "CofO In Progress"
	StatusApproved       Status = "Approved"
	StatusPending        Status = "Pending"
	StatusCancelled      Status = "Cancelled"
	StatusExpired        Status = "Expired"
)

// DefaultStatusWeights reflect how certain each status is to become actual
// development. A finaled permit is built; an applied one may never be.
var DefaultStatusWeights = map[Status]float64{
	StatusApplied:        0.5,
	StatusIssued:         1.0,
	StatusFinaled:        1.25,
	StatusCofOIssued:     1.25,
	StatusCofOInProgress: 1.1,
	StatusApproved:       0.8,
	StatusPending:        0.3,
	StatusCancelled:      0.1,
	StatusExpired:        0.1,
}

// StatusWeight returns the weight for a status from the given table, falling
// back to the Applied weight for statuses the table does not know.
func StatusWeight(weights map[Status]float64, s Status) float64 {
	if w, ok := weights[s]; ok {
		return w
	}
	return DefaultStatusWeights[StatusApplied]
}

// Permit is one government-issued building permit, keyed by a natural-key
// hash of (permit number, issue date). Re-extraction upserts by key;
// last write wins.
type Permit struct {
	Key             string     `json:"key"`
	Number          string     `json:"number"`
	Type            string     `json:"type,omitempty"`
	Subtype         string     `json:"subtype,omitempty"`
	Status          Status     `json:"status"`
	IssueDate       *time.Time `json:"issue_date,omitempty"`
	StatusDate      *time.Time `json:"status_date,omitempty"`
	EstimatedCost   float64    `json:"estimated_cost"`
	UnitsProposed   *int       `json:"units_proposed,omitempty"`
	RawAddress      string     `json:"raw_address,omitempty"`
	Address         string     `json:"address,omitempty"`
	ParcelID        string     `json:"parcel_id,omitempty"`
	CouncilDistrict string     `json:"council_district,omitempty"`
	Latitude        *float64   `json:"latitude,omitempty"`
	Longitude       *float64   `json:"longitude,omitempty"`
	GeocodeQuality  string     `json:"geocode_quality,omitempty"`
	GeocodeSource   string     `json:"geocode_source,omitempty"`
	Source          string     `json:"source"`
	SourceQuery     string     `json:"source_query,omitempty"`
	IngestedAt      time.Time  `json:"ingested_at"`
}

// HasCoordinates reports whether the permit carries a usable location.
func (p *Permit) HasCoordinates() bool {
	return p.Latitude != nil && p.Longitude != nil
}

// NeedsGeocode reports whether the permit should be sent to the geocoding
// collaborator: it has an address but no coordinates yet.
func (p *Permit) NeedsGeocode() bool {
	return !p.HasCoordinates() && p.Address != ""
}

// CanonicalStatus maps a raw source status string onto the Status enum.
// Unknown statuses pass through title-cased so they are preserved verbatim.
func CanonicalStatus(raw string) Status {
	switch normalizeStatusKey(raw) {
	case "applied", "application", "in review", "plan check":
		return StatusApplied
	case "issued", "permit issued", "active":
		return StatusIssued
	case "finaled", "final", "completed", "closed":
		return StatusFinaled
	case "cofo issued", "certificate of occupancy issued":
		return StatusCofOIssued
	case "cofo in progress", "certificate of occupancy in progress":
		return StatusCofOInProgress
	case "approved":
		return StatusApproved
	case "pending", "on hold":
		return StatusPending
	case "cancelled", "canceled", "withdrawn", "void":
		return StatusCancelled
	case "expired", "lapsed":
		return StatusExpired
	}
	return Status(titleCase(raw))
}
