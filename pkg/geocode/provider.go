// Package geocode resolves street addresses to coordinates. Geocoding is
// best-effort: an unmatched address is a normal result, not an error.
package geocode

import (
	"context"
	"strconv"

	"golang.org/x/sync/errgroup"
)

// AddressInput is an address to geocode.
type AddressInput struct {
	ID      string // optional identifier for batch correlation
	Street  string
	City    string
	State   string
	ZipCode string
}

// Result holds the geocoding output for one address.
type Result struct {
	Latitude  float64
	Longitude float64
	Source    string // provider that produced the match
	Quality   string // "rooftop", "range", "approximate"
	Matched   bool
}

// Provider is a single geocoding backend.
type Provider interface {
	Name() string
	Geocode(ctx context.Context, addr AddressInput) (*Result, error)
	Available() bool
}

// BatchGeocode resolves addresses in parallel, at most concurrency in
// flight. Individual failures produce unmatched results rather than
// failing the batch; only context cancellation aborts it.
func BatchGeocode(ctx context.Context, p Provider, addrs []AddressInput, concurrency int) ([]Result, error) {
	if len(addrs) == 0 {
		return nil, nil
	}
	if concurrency <= 0 {
		concurrency = 10
	}

	for i := range addrs {
		if addrs[i].ID == "" {
			addrs[i].ID = strconv.Itoa(i)
		}
	}

	results := make([]Result, len(addrs))

	eg, gCtx := errgroup.WithContext(ctx)
	eg.SetLimit(concurrency)

	for i, addr := range addrs {
		eg.Go(func() error {
			if err := gCtx.Err(); err != nil {
				return err
			}
			r, err := p.Geocode(gCtx, addr)
			if err != nil || r == nil {
				results[i] = Result{Matched: false, Source: p.Name()}
				return nil //nolint:nilerr // individual misses don't fail the batch
			}
			results[i] = *r
			return nil
		})
	}

	if err := eg.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}
