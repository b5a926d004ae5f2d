package embed

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalize_UnitLength(t *testing.T) {
	tests := []struct {
		name string
		in   []float32
	}{
		{"axis", []float32{3, 0, 0}},
		{"pythagorean", []float32{3, 4}},
		{"negative", []float32{-1, -2, 2}},
		{"tiny", []float32{1e-20, 1e-20}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := Normalize(tt.in)

			require.NoError(t, err)
			assert.InDelta(t, 1.0, Norm(out), 1e-5)
		})
	}
}

func TestNormalize_DoesNotMutateInput(t *testing.T) {
	in := []float32{3, 4}

	_, err := Normalize(in)

	require.NoError(t, err)
	assert.Equal(t, []float32{3, 4}, in)
}

func TestNormalize_ZeroVector(t *testing.T) {
	_, err := Normalize(make([]float32, 8))
	assert.ErrorIs(t, err, ErrZeroVector)

	_, err = Normalize(nil)
	assert.ErrorIs(t, err, ErrZeroVector)

	_, err = Normalize([]float32{float32(math.NaN()), 1})
	assert.ErrorIs(t, err, ErrZeroVector)
}
