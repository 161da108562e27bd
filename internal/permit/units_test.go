package permit

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func intPtr(n int) *int { return &n }

func TestEstimateUnits(t *testing.T) {
	tests := []struct {
		name string
		desc string
		want *int
	}{
		{"empty", "", nil},
		{"no units mentioned", "electrical service upgrade 200A", nil},
		{"numeric units", "new construction of 24 units", intPtr(24)},
		{"numeric dwelling units", "construct 6 dwelling units over retail", intPtr(6)},
		{"hyphenated numeric", "new 3-unit residential building", intPtr(3)},
		{"apartments", "12 apartments with ground floor commercial", intPtr(12)},
		{"condos", "8 condos phase one", intPtr(8)},
		{"duplex", "new duplex with attached garages", intPtr(2)},
		{"triplex", "construct triplex on vacant lot", intPtr(3)},
		{"fourplex", "fourplex conversion", intPtr(4)},
		{"adu bare", "detached ADU in rear yard", intPtr(1)},
		{"adu counted", "build 2 ADUs behind existing residence", intPtr(2)},
		{"granny flat", "new granny flat above garage", intPtr(1)},
		{"spelled", "construct four units total", intPtr(4)},
		{"spelled hyphen", "two-unit addition", intPtr(2)},
		{"max across rules", "duplex plus 6 units in main structure", intPtr(6)},
		{"conversion delta", "convert from 2 units to 6 units", intPtr(4)},
		{"conversion shrink", "remodel from 4 units to 1 unit", intPtr(-3)},
		{"delta beats numeric", "change of use from 1 unit to 10 units", intPtr(9)},
		{"demolition suppressed", "demolish 12 unit apartment building", nil},
		{"demo abbreviation", "demo existing duplex", nil},
		{"tear down", "tear down 4-plex and clear lot", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := EstimateUnits(tt.desc)
			if tt.want == nil {
				assert.Nil(t, got)
				return
			}
			require.NotNil(t, got)
			assert.Equal(t, *tt.want, *got)
		})
	}
}

func TestEstimateUnits_Pure(t *testing.T) {
	desc := "new construction of 24 units"
	first := EstimateUnits(desc)
	second := EstimateUnits(desc)
	require.NotNil(t, first)
	require.NotNil(t, second)
	assert.Equal(t, *first, *second)
}
