package geocode

import (
	"context"
	"errors"
	"strconv"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubProvider struct {
	calls   atomic.Int64
	geocode func(addr AddressInput) (*Result, error)
}

func (s *stubProvider) Name() string    { return "stub" }
func (s *stubProvider) Available() bool { return true }

func (s *stubProvider) Geocode(_ context.Context, addr AddressInput) (*Result, error) {
	s.calls.Add(1)
	return s.geocode(addr)
}

func TestBatchGeocode_PreservesOrder(t *testing.T) {
	stub := &stubProvider{geocode: func(addr AddressInput) (*Result, error) {
		n, _ := strconv.Atoi(addr.ID)
		return &Result{Latitude: float64(n), Matched: true, Source: "stub"}, nil
	}}

	addrs := make([]AddressInput, 20)
	for i := range addrs {
		addrs[i] = AddressInput{Street: "somewhere"}
	}

	results, err := BatchGeocode(context.Background(), stub, addrs, 4)
	require.NoError(t, err)
	require.Len(t, results, 20)
	for i, r := range results {
		assert.Equal(t, float64(i), r.Latitude)
		assert.True(t, r.Matched)
	}
	assert.Equal(t, int64(20), stub.calls.Load())
}

func TestBatchGeocode_FailuresBecomeUnmatched(t *testing.T) {
	stub := &stubProvider{geocode: func(addr AddressInput) (*Result, error) {
		if addr.ID == "1" {
			return nil, errors.New("upstream down")
		}
		return &Result{Matched: true, Source: "stub"}, nil
	}}

	results, err := BatchGeocode(context.Background(), stub, []AddressInput{
		{Street: "a"}, {Street: "b"}, {Street: "c"},
	}, 2)
	require.NoError(t, err)
	require.Len(t, results, 3)
	assert.True(t, results[0].Matched)
	assert.False(t, results[1].Matched)
	assert.True(t, results[2].Matched)
}

func TestBatchGeocode_Empty(t *testing.T) {
	results, err := BatchGeocode(context.Background(), &stubProvider{}, nil, 4)
	require.NoError(t, err)
	assert.Nil(t, results)
}

func TestBatchGeocode_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	stub := &stubProvider{geocode: func(_ AddressInput) (*Result, error) {
		return &Result{Matched: true}, nil
	}}

	_, err := BatchGeocode(ctx, stub, []AddressInput{{Street: "a"}}, 1)
	require.Error(t, err)
}
