package geocode

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"
)

const (
	defaultCensusBaseURL = "https://geocoding.geo.census.gov/geocoder/locations/onelineaddress"
	censusBenchmark      = "Public_AR_Current"
)

// CensusProvider geocodes via the Census one-line address API. Free,
// keyless, rate-limited client-side.
type CensusProvider struct {
	httpClient *http.Client
	limiter    *rate.Limiter
	baseURL    string
}

// CensusOption configures the CensusProvider.
type CensusOption func(*CensusProvider)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) CensusOption {
	return func(p *CensusProvider) {
		p.httpClient = hc
	}
}

// WithRateLimit sets the requests-per-second limit for API calls.
func WithRateLimit(rps float64) CensusOption {
	return func(p *CensusProvider) {
		if rps > 0 {
			p.limiter = rate.NewLimiter(rate.Limit(rps), int(rps))
		}
	}
}

// WithBaseURL overrides the API endpoint.
func WithBaseURL(u string) CensusOption {
	return func(p *CensusProvider) {
		if u != "" {
			p.baseURL = u
		}
	}
}

// NewCensusProvider creates a CensusProvider with the given options.
func NewCensusProvider(opts ...CensusOption) *CensusProvider {
	p := &CensusProvider{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		limiter:    rate.NewLimiter(10, 10),
		baseURL:    defaultCensusBaseURL,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Name implements Provider.
func (p *CensusProvider) Name() string { return "census" }

// Available implements Provider.
func (p *CensusProvider) Available() bool { return true }

type censusResponse struct {
	Result struct {
		AddressMatches []struct {
			Coordinates struct {
				X float64 `json:"x"` // longitude
				Y float64 `json:"y"` // latitude
			} `json:"coordinates"`
			MatchedAddress string `json:"matchedAddress"`
		} `json:"addressMatches"`
	} `json:"result"`
}

// Geocode implements Provider using the one-line address endpoint.
func (p *CensusProvider) Geocode(ctx context.Context, addr AddressInput) (*Result, error) {
	oneLine := formatOneLine(addr)
	if oneLine == "" {
		return &Result{Matched: false, Source: p.Name()}, nil
	}

	if err := p.limiter.Wait(ctx); err != nil {
		return nil, eris.Wrap(err, "geocode: census rate limit")
	}

	params := url.Values{
		"address":   {oneLine},
		"benchmark": {censusBenchmark},
		"format":    {"json"},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, eris.Wrap(err, "geocode: census build request")
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "geocode: census request")
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		return nil, eris.Errorf("geocode: census returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "geocode: census read body")
	}

	var censusResp censusResponse
	if err := json.Unmarshal(body, &censusResp); err != nil {
		return nil, eris.Wrap(err, "geocode: census parse response")
	}

	if len(censusResp.Result.AddressMatches) == 0 {
		return &Result{Matched: false, Source: p.Name()}, nil
	}

	match := censusResp.Result.AddressMatches[0]
	return &Result{
		Latitude:  match.Coordinates.Y,
		Longitude: match.Coordinates.X,
		Source:    p.Name(),
		Quality:   "rooftop", // one-line matches are exact
		Matched:   true,
	}, nil
}

// formatOneLine joins non-empty address parts for the one-line endpoint.
func formatOneLine(addr AddressInput) string {
	parts := []string{addr.Street, addr.City, addr.State, addr.ZipCode}
	var nonEmpty []string
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			nonEmpty = append(nonEmpty, p)
		}
	}
	return strings.Join(nonEmpty, ", ")
}
