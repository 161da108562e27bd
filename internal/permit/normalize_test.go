package permit

import (
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testNormalizer() *Normalizer {
	n := NewNormalizer("socrata", "Austin", "TX")
	n.nowFunc = func() time.Time {
		return time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC)
	}
	return n
}

func TestNormalize_FullRecord(t *testing.T) {
	raw := RawRecord{
		PermitNumber:    " BP-2025-0042 ",
		PermitType:      "BUILDING",
		PermitSubtype:   "NEW CONSTRUCTION",
		Status:          "permit issued",
		IssueDate:       "2025-03-01T00:00:00.000",
		StatusDate:      "2025-06-15T00:00:00.000",
		EstimatedCost:   "$1,250,000.00",
		Description:     "New construction of 24 units",
		OriginalAddress: "100  MAIN ST",
		ParcelID:        "0204050711",
		CouncilDistrict: "9",
		Latitude:        "30.2672",
		Longitude:       "-97.7431",
	}

	p, err := testNormalizer().Normalize(raw)
	require.NoError(t, err)

	assert.Equal(t, "BP-2025-0042", p.Number)
	assert.Equal(t, StatusIssued, p.Status)
	assert.Equal(t, "Building", p.Type)
	assert.Equal(t, 1250000.0, p.EstimatedCost)
	require.NotNil(t, p.UnitsProposed)
	assert.Equal(t, 24, *p.UnitsProposed)
	assert.Equal(t, "100 Main St, Austin, TX", p.Address)
	assert.Equal(t, "100  MAIN ST", p.RawAddress)
	require.NotNil(t, p.IssueDate)
	assert.Equal(t, 2025, p.IssueDate.Year())
	assert.True(t, p.HasCoordinates())
	assert.False(t, p.NeedsGeocode())
	assert.Equal(t, "socrata", p.Source)
	assert.Equal(t, NaturalKey("BP-2025-0042", p.IssueDate), p.Key)
}

func TestNormalize_MissingRequiredFields(t *testing.T) {
	n := testNormalizer()

	_, err := n.Normalize(RawRecord{Status: "Issued"})
	require.Error(t, err)
	assert.True(t, eris.Is(err, ErrMissingRequired))

	_, err = n.Normalize(RawRecord{PermitNumber: "BP-1"})
	require.Error(t, err)
	assert.True(t, eris.Is(err, ErrMissingRequired))
}

func TestNormalize_BadCostDefaultsZero(t *testing.T) {
	tests := []string{"", "n/a", "-500", "$-1,000"}
	for _, cost := range tests {
		p, err := testNormalizer().Normalize(RawRecord{
			PermitNumber: "BP-1", Status: "Issued", EstimatedCost: cost,
		})
		require.NoError(t, err)
		assert.Zero(t, p.EstimatedCost, "cost %q", cost)
	}
}

func TestNormalize_CoordinateValidation(t *testing.T) {
	tests := []struct {
		name     string
		lat, lon string
		hasCoord bool
	}{
		{"valid", "30.2672", "-97.7431", true},
		{"null island", "0", "0", false},
		{"out of range lat", "91.5", "-97.7", false},
		{"out of range lon", "30.2", "-181.0", false},
		{"missing lat", "", "-97.7", false},
		{"garbage", "abc", "-97.7", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := testNormalizer().Normalize(RawRecord{
				PermitNumber: "BP-1", Status: "Issued",
				Latitude: tt.lat, Longitude: tt.lon,
			})
			require.NoError(t, err)
			assert.Equal(t, tt.hasCoord, p.HasCoordinates())
		})
	}
}

func TestNormalize_DateLayouts(t *testing.T) {
	layouts := []string{
		"2025-03-01T00:00:00.000",
		"2025-03-01T00:00:00Z",
		"2025-03-01",
		"03/01/2025",
	}
	for _, s := range layouts {
		p, err := testNormalizer().Normalize(RawRecord{
			PermitNumber: "BP-1", Status: "Issued", IssueDate: s,
		})
		require.NoError(t, err)
		require.NotNil(t, p.IssueDate, "layout %q", s)
		assert.Equal(t, time.March, p.IssueDate.Month())
		assert.Equal(t, 1, p.IssueDate.Day())
	}
}

func TestNormalize_UnparseableDateNil(t *testing.T) {
	p, err := testNormalizer().Normalize(RawRecord{
		PermitNumber: "BP-1", Status: "Issued", IssueDate: "sometime in march",
	})
	require.NoError(t, err)
	assert.Nil(t, p.IssueDate)
}

func TestNormalizeAddress(t *testing.T) {
	n := testNormalizer()
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"empty", "", ""},
		{"basic", "100 MAIN ST", "100 Main St, Austin, TX"},
		{"collapse whitespace", "100   MAIN   ST", "100 Main St, Austin, TX"},
		{"unit range", "1200 - 1204 EAST AVE", "1200-1204 East Ave, Austin, TX"},
		{"already has city", "100 Main St, Austin", "100 Main St, Austin, TX"},
		{"already has state", "100 MAIN ST, AUSTIN, TX", "100 Main St, Austin, Tx"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, n.NormalizeAddress(tt.in))
		})
	}
}

func TestCanonicalStatus(t *testing.T) {
	tests := []struct {
		raw  string
		want Status
	}{
		{"issued", StatusIssued},
		{"PERMIT ISSUED", StatusIssued},
		{"Active", StatusIssued},
		{"final", StatusFinaled},
		{"Completed", StatusFinaled},
		{"C of O Issued", StatusCofOIssued},
		{"certificate of occupancy issued", StatusCofOIssued},
		{"withdrawn", StatusCancelled},
		{"canceled", StatusCancelled},
		{"on hold", StatusPending},
		{"lapsed", StatusExpired},
		{"plan check", StatusApplied},
		{"Some Unknown Thing", Status("Some Unknown Thing")},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			assert.Equal(t, tt.want, CanonicalStatus(tt.raw))
		})
	}
}

func TestStatusWeight_Fallback(t *testing.T) {
	assert.Equal(t, 1.25, StatusWeight(DefaultStatusWeights, StatusFinaled))
	assert.Equal(t, 0.5, StatusWeight(DefaultStatusWeights, Status("Mystery")))
}
