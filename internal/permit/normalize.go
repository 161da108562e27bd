package permit

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// ErrMissingRequired marks a raw record that cannot be normalized. The
// extractor skips and counts such records; they never abort a run.
var ErrMissingRequired = eris.New("permit: missing required field")

// RawRecord is one permit as returned by the source listing API.
// All fields arrive as strings; normalization owns the parsing.
type RawRecord struct {
	PermitNumber    string `json:"permit_number"`
	PermitType      string `json:"permit_type"`
	PermitSubtype   string `json:"permit_subtype"`
	Status          string `json:"status_current"`
	IssueDate       string `json:"issued_date"`
	StatusDate      string `json:"status_date"`
	EstimatedCost   string `json:"estimated_cost"`
	Description     string `json:"description"`
	OriginalAddress string `json:"original_address"`
	ParcelID        string `json:"parcel_number"`
	CouncilDistrict string `json:"council_district"`
	Latitude        string `json:"latitude"`
	Longitude       string `json:"longitude"`
}

// Normalizer maps raw source records onto the internal permit schema.
type Normalizer struct {
	Source string // provenance tag written to every permit
	City   string // appended to addresses that lack it
	State  string

	// nowFunc allows test injection of the ingest timestamp.
	nowFunc func() time.Time
}

// NewNormalizer creates a Normalizer for one source dataset.
func NewNormalizer(source, city, state string) *Normalizer {
	return &Normalizer{
		Source:  source,
		City:    city,
		State:   state,
		nowFunc: time.Now,
	}
}

// Normalize converts a raw record into a Permit. Returns ErrMissingRequired
// (wrapped) when the record lacks a permit number or status.
func (n *Normalizer) Normalize(raw RawRecord) (*Permit, error) {
	number := strings.TrimSpace(raw.PermitNumber)
	if number == "" {
		return nil, eris.Wrap(ErrMissingRequired, "permit_number")
	}
	if strings.TrimSpace(raw.Status) == "" {
		return nil, eris.Wrap(ErrMissingRequired, "status_current")
	}

	issueDate := parseDate(raw.IssueDate)
	statusDate := parseDate(raw.StatusDate)

	p := &Permit{
		Key:             NaturalKey(number, issueDate),
		Number:          number,
		Type:            titleCase(raw.PermitType),
		Subtype:         titleCase(raw.PermitSubtype),
		Status:          CanonicalStatus(raw.Status),
		IssueDate:       issueDate,
		StatusDate:      statusDate,
		EstimatedCost:   parseCost(raw.EstimatedCost),
		UnitsProposed:   EstimateUnits(raw.Description),
		RawAddress:      strings.TrimSpace(raw.OriginalAddress),
		Address:         n.NormalizeAddress(raw.OriginalAddress),
		ParcelID:        strings.TrimSpace(raw.ParcelID),
		CouncilDistrict: strings.TrimSpace(raw.CouncilDistrict),
		Latitude:        parseCoord(raw.Latitude, 90),
		Longitude:       parseCoord(raw.Longitude, 180),
		Source:          n.Source,
		IngestedAt:      n.nowFunc().UTC(),
	}

	// Reject null-island and half-missing coordinate pairs.
	if p.Latitude == nil || p.Longitude == nil ||
		(*p.Latitude == 0 && *p.Longitude == 0) {
		p.Latitude = nil
		p.Longitude = nil
	}

	return p, nil
}

var (
	unitRangeRe  = regexp.MustCompile(`(\d+)\s+-\s+(\d+)`)
	stateSuffixRe = regexp.MustCompile(`,\s*[A-Za-z]{2}\s*$`)
)

// NormalizeAddress cleans a raw source address: collapses whitespace and
// malformed unit ranges ("12 - 14" becomes "12-14"), title-cases the street
// text, and appends city/state when the source omits them.
func (n *Normalizer) NormalizeAddress(raw string) string {
	addr := strings.Join(strings.Fields(raw), " ")
	if addr == "" {
		return ""
	}

	addr = unitRangeRe.ReplaceAllString(addr, "$1-$2")
	addr = titleCase(addr)

	if n.City != "" && !strings.Contains(strings.ToUpper(addr), strings.ToUpper(n.City)) {
		addr += ", " + titleCase(n.City)
	}
	if n.State != "" && !stateSuffixRe.MatchString(addr) {
		addr += ", " + strings.ToUpper(n.State)
	}
	return addr
}

var titleCaser = cases.Title(language.AmericanEnglish)

func titleCase(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	return titleCaser.String(strings.ToLower(s))
}

func lowerTrim(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func normalizeStatusKey(s string) string {
	s = lowerTrim(s)
	s = strings.ReplaceAll(s, "c of o", "cofo")
	s = strings.ReplaceAll(s, "c.o.", "cofo")
	s = strings.Join(strings.Fields(s), " ")
	return s
}

var dateLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05.000",
	"2006-01-02T15:04:05",
	"2006-01-02",
	"01/02/2006",
}

func parseDate(s string) *time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			t = t.UTC()
			return &t
		}
	}
	return nil
}

func parseCost(s string) float64 {
	s = strings.TrimSpace(s)
	s = strings.NewReplacer("$", "", ",", "", " ", "").Replace(s)
	if s == "" {
		return 0
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || v < 0 {
		return 0
	}
	return v
}

func parseCoord(s string, bound float64) *float64 {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || v < -bound || v > bound {
		return nil
	}
	return &v
}
