package sample

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDownsample_NoDownsampling(t *testing.T) {
	values := []float64{0.1, 0.2, 0.3, 0.4, 0.5}

	// Test with nil dst
	result := Downsample(nil, values, 10)
	require.Equal(t, 5, len(result))
	assert.Equal(t, values, result)

	// Test with sufficient capacity dst
	dst := make([]float64, 0, 10)
	result = Downsample(dst, values, 10)
	require.Equal(t, 5, len(result))
	assert.Equal(t, values, result)
	// Should reuse dst
	assert.Equal(t, cap(dst), cap(result))
}

func TestDownsample_WithDownsampling(t *testing.T) {
	values := make([]float64, 100)
	for i := range values {
		values[i] = float64(i) * 0.01
	}

	// Downsample to 10 points
	dst := make([]float64, 0, 20)
	result := Downsample(dst, values, 10)
	require.Equal(t, 10, len(result))

	// Should always include first value
	assert.Equal(t, values[0], result[0])

	// Check that we got values from across the range
	assert.GreaterOrEqual(t, result[len(result)-1], 0.8)

	// Should reuse dst if capacity sufficient
	assert.Equal(t, cap(dst), cap(result))
}

func TestDownsample_Records(t *testing.T) {
	records := make([]Record, 30)
	for i := range records {
		records[i].Spec = string(rune('a' + i%26))
	}

	result := Downsample(nil, records, 3)
	require.Len(t, result, 3)
	assert.Equal(t, records[0], result[0])
	assert.Equal(t, records[10], result[1])
	assert.Equal(t, records[20], result[2])
}

func TestDownsample_DestinationReuse(t *testing.T) {
	// First call
	dst := make([]float64, 0, 10)
	result1 := Downsample(dst, []float64{0.1, 0.2}, 10)
	require.Equal(t, 2, len(result1))

	// Second call - should reuse dst
	result2 := Downsample(result1, []float64{0.3, 0.4, 0.5}, 10)
	require.Equal(t, 3, len(result2))

	// Should reuse same underlying array
	assert.Equal(t, cap(result1), cap(result2))
}

func TestDownsample_EmptyInput(t *testing.T) {
	result := Downsample(nil, []float64{}, 10)
	require.Equal(t, 0, len(result))
}

func TestDownsample_ZeroPoints(t *testing.T) {
	result := Downsample(nil, []float64{1, 2, 3}, 0)
	assert.Empty(t, result)
}

func TestDownsample_ExactMaxPoints(t *testing.T) {
	values := make([]float64, 10)
	for i := range values {
		values[i] = float64(i) * 0.01
	}

	// Downsample to exactly 10 points (same as input)
	result := Downsample(nil, values, 10)
	require.Equal(t, 10, len(result))
	assert.Equal(t, values, result)
}
