package audio

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRMS_BasicCases(t *testing.T) {
	tests := []struct {
		name     string
		samples  []float64
		expected float64
	}{
		{name: "all_zeros", samples: []float64{0, 0, 0, 0}, expected: 0},
		{name: "single_positive", samples: []float64{1.0}, expected: 1.0},
		{name: "single_negative", samples: []float64{-1.0}, expected: 1.0},
		{name: "opposite_samples", samples: []float64{1.0, -1.0}, expected: 1.0},
		{name: "identical_samples", samples: []float64{0.5, 0.5, 0.5, 0.5}, expected: 0.5},
		{
			name:     "mixed_values",
			samples:  []float64{0.3, -0.4, 0.5, -0.6},
			expected: math.Sqrt((0.09 + 0.16 + 0.25 + 0.36) / 4),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := RMS(tt.samples)
			require.NoError(t, err)
			assert.InDelta(t, tt.expected, result, 1e-10)
			assert.GreaterOrEqual(t, result, 0.0)
		})
	}
}

func TestRMS_SineWave(t *testing.T) {
	// For a pure sine wave, RMS = amplitude / sqrt(2).
	for _, amplitude := range []float64{0.1, 0.5, 1.0} {
		samples := make([]float64, 44100)
		for i := range samples {
			samples[i] = amplitude * math.Sin(2*math.Pi*440*float64(i)/44100)
		}

		result, err := RMS(samples)
		require.NoError(t, err)
		assert.InDelta(t, amplitude/math.Sqrt2, result, amplitude*0.001)
	}
}

func TestRMS_EmptyBlock(t *testing.T) {
	_, err := RMS(nil)
	require.ErrorIs(t, err, ErrEmptyBlock)

	_, err = RMS([]float64{})
	require.ErrorIs(t, err, ErrEmptyBlock)

	// Any non-empty block is valid regardless of amplitude.
	_, err = RMS([]float64{1e6})
	require.NoError(t, err)
}

func TestRMS_ZeroOnlyForSilence(t *testing.T) {
	result, err := RMS(make([]float64, 1000))
	require.NoError(t, err)
	assert.Zero(t, result)

	quiet := make([]float64, 1000)
	quiet[500] = 1e-6
	result, err = RMS(quiet)
	require.NoError(t, err)
	assert.Positive(t, result)
}
