package domain

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewPayoffCurve_Valid(t *testing.T) {
	now := time.Now()
	curve, err := NewPayoffCurve(PayoffMessage{
		Type: PayoffUpdateType, HasData: true,
		X: []float64{1, 2, 3}, Y: []float64{-1, 0, 1},
	}, now)

	require.NoError(t, err)
	require.Len(t, curve.Points, 3)
	assert.Equal(t, PayoffPoint{X: 2, Y: 0}, curve.Points[1])
	assert.Equal(t, now, curve.FetchedAt)

	xs, ys := curve.XY()
	assert.Equal(t, []float64{1, 2, 3}, xs)
	assert.Equal(t, []float64{-1, 0, 1}, ys)
}

func TestNewPayoffCurve_Rejects(t *testing.T) {
	cases := map[string]PayoffMessage{
		"wrong type":      {Type: "confirmation", HasData: true},
		"missing data":    {Type: PayoffUpdateType},
		"length mismatch": {Type: PayoffUpdateType, HasData: true, X: []float64{1}, Y: nil},
		"nan":             {Type: PayoffUpdateType, HasData: true, X: []float64{math.NaN()}, Y: []float64{1}},
	}
	for name, msg := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := NewPayoffCurve(msg, time.Now())
			assert.Error(t, err)
		})
	}
}

func TestPayoffCurve_Stats(t *testing.T) {
	// Long straddle: pierde en el centro, gana a los lados.
	curve := PayoffCurve{Points: []PayoffPoint{
		{X: 80, Y: 10}, {X: 90, Y: 0}, {X: 100, Y: -10}, {X: 110, Y: -5}, {X: 120, Y: 5},
	}}

	assert.Equal(t, 10.0, curve.MaxProfit())
	assert.Equal(t, -10.0, curve.MaxLoss())

	be := curve.Breakevens()
	require.Len(t, be, 2)
	assert.InDelta(t, 90, be[0], 1e-9)
	assert.InDelta(t, 115, be[1], 1e-9)
}

func TestPayoffCurve_EmptyStats(t *testing.T) {
	var curve PayoffCurve
	assert.True(t, curve.IsEmpty())
	assert.Zero(t, curve.MaxProfit())
	assert.Zero(t, curve.MaxLoss())
	assert.Empty(t, curve.Breakevens())
}
