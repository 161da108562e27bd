package permit

import (
	"regexp"
	"strconv"
)

// Unit-count extraction from free-text work descriptions. Each matcher is
// independent and returns a count or nil; EstimateUnits combines them.
var (
	demolitionRe = regexp.MustCompile(`\b(demolish|demolition|demo\b|wreck|raze|tear\s*down)`)
	deltaRe      = regexp.MustCompile(`from\s+(\d{1,4})\s+(?:(?:dwelling\s+)?units?\s+)?to\s+(\d{1,4})\s+(?:dwelling\s+)?units?`)
	numericRe    = regexp.MustCompile(`\b(\d{1,4})[\s-]*(?:new\s+)?(?:dwelling\s+units?|residential\s+units?|units?|apartments?|dwellings?|condominiums?|condos?)\b`)
	namedRe      = regexp.MustCompile(`\b(duplex|triplex|fourplex|quadplex|quadruplex|4-plex|3-plex)\b`)
	aduCountRe   = regexp.MustCompile(`\b(\d{1,2})\s*(?:adus?|accessory\s+dwelling\s+units?)\b`)
	aduRe        = regexp.MustCompile(`\b(?:adus?|accessory\s+dwelling\s+units?|granny\s+flats?)\b`)
	spelledRe    = regexp.MustCompile(`\b(one|two|three|four|five|six|seven|eight|nine|ten)[\s-]+(?:new\s+)?(?:dwelling\s+units?|units?|apartments?|dwellings?)\b`)
)

var spelledNumbers = map[string]int{
	"one": 1, "two": 2, "three": 3, "four": 4, "five": 5,
	"six": 6, "seven": 7, "eight": 8, "nine": 9, "ten": 10,
}

var namedMultiFamily = map[string]int{
	"duplex": 2, "triplex": 3, "3-plex": 3,
	"fourplex": 4, "quadplex": 4, "quadruplex": 4, "4-plex": 4,
}

// EstimateUnits extracts a unit-count estimate from a work description.
// Returns nil when no rule matches or when demolition phrasing suppresses
// the count. A "from X to Y units" conversion returns the signed difference;
// otherwise the maximum across all matching rules wins. Pure function.
func EstimateUnits(desc string) *int {
	s := lowerTrim(desc)
	if s == "" {
		return nil
	}

	// Demolition descriptions mention unit counts of what is being torn
	// down; suppress rather than count them (negative supply is handled
	// by explicit conversion deltas only).
	if demolitionRe.MatchString(s) {
		return nil
	}

	// Conversion deltas are the most specific rule and win outright, since
	// the plain numeric rule would otherwise pick up the "to Y units" half.
	if m := deltaRe.FindStringSubmatch(s); m != nil {
		fromN, err1 := strconv.Atoi(m[1])
		toN, err2 := strconv.Atoi(m[2])
		if err1 == nil && err2 == nil {
			delta := toN - fromN
			return &delta
		}
	}

	matchers := []func(string) *int{
		matchNumericUnits,
		matchNamedMultiFamily,
		matchADU,
		matchSpelledUnits,
	}

	var best *int
	for _, match := range matchers {
		if v := match(s); v != nil && (best == nil || *v > *best) {
			best = v
		}
	}
	return best
}

func matchNumericUnits(s string) *int {
	best := 0
	found := false
	for _, m := range numericRe.FindAllStringSubmatch(s, -1) {
		if n, err := strconv.Atoi(m[1]); err == nil && n > 0 {
			found = true
			if n > best {
				best = n
			}
		}
	}
	if !found {
		return nil
	}
	return &best
}

func matchNamedMultiFamily(s string) *int {
	var best *int
	for _, m := range namedRe.FindAllStringSubmatch(s, -1) {
		if n, ok := namedMultiFamily[m[1]]; ok && (best == nil || n > *best) {
			v := n
			best = &v
		}
	}
	return best
}

func matchADU(s string) *int {
	if m := aduCountRe.FindStringSubmatch(s); m != nil {
		if n, err := strconv.Atoi(m[1]); err == nil && n > 0 {
			return &n
		}
	}
	if aduRe.MatchString(s) {
		one := 1
		return &one
	}
	return nil
}

func matchSpelledUnits(s string) *int {
	var best *int
	for _, m := range spelledRe.FindAllStringSubmatch(s, -1) {
		if n, ok := spelledNumbers[m[1]]; ok && (best == nil || n > *best) {
			v := n
			best = &v
		}
	}
	return best
}
