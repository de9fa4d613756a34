package similarity

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCosine(t *testing.T) {
	tests := []struct {
		name string
		a, b []float32
		want float64
	}{
		{"identical", []float32{1, 2, 3}, []float32{1, 2, 3}, 1},
		{"orthogonal", []float32{1, 0}, []float32{0, 1}, 0},
		{"opposite clamps to zero", []float32{1, 0}, []float32{-1, 0}, 0},
		{"zero norm", []float32{0, 0}, []float32{1, 1}, 0},
		{"scaled", []float32{1, 1}, []float32{3, 3}, 1},
		{"partial", []float32{1, 0}, []float32{1, 1}, 1 / math.Sqrt2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Cosine(tt.a, tt.b)
			require.NoError(t, err)
			assert.InDelta(t, tt.want, got, 1e-6)
		})
	}
}

func TestCosineDimensionMismatch(t *testing.T) {
	_, err := Cosine([]float32{1, 2}, []float32{1, 2, 3})
	assert.True(t, errors.Is(err, ErrDimensionMismatch))
}

func TestTopKOrderingAndThreshold(t *testing.T) {
	query := []float32{1, 0}
	pool := []Candidate{
		{ID: "weak", Vector: []float32{1, 2}},    // ~0.447
		{ID: "exact", Vector: []float32{2, 0}},   // 1
		{ID: "close", Vector: []float32{1, 0.2}}, // ~0.98
		{ID: "none", Vector: []float32{0, 1}},    // 0
	}

	got, err := TopK(query, pool, 5, 0.4)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, "exact", got[0].ID)
	assert.Equal(t, "close", got[1].ID)
	assert.Equal(t, "weak", got[2].ID)
	for _, m := range got {
		assert.GreaterOrEqual(t, m.Score, 0.4)
	}
}

func TestTopKLimitsResults(t *testing.T) {
	query := []float32{1, 1}
	pool := []Candidate{
		{ID: "a", Vector: []float32{1, 1}},
		{ID: "b", Vector: []float32{1, 0.9}},
		{ID: "c", Vector: []float32{1, 0.8}},
	}

	got, err := TopK(query, pool, 2, 0)
	require.NoError(t, err)
	assert.Len(t, got, 2)

	all, err := TopK(query, pool, 0, 0)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestTopKTiesKeepPoolOrder(t *testing.T) {
	query := []float32{1, 0}
	pool := []Candidate{
		{ID: "first", Vector: []float32{1, 0}},
		{ID: "second", Vector: []float32{5, 0}},
		{ID: "third", Vector: []float32{2, 0}},
	}

	for i := 0; i < 10; i++ {
		got, err := TopK(query, pool, 0, 0.5)
		require.NoError(t, err)
		require.Len(t, got, 3)
		assert.Equal(t, []string{"first", "second", "third"}, []string{got[0].ID, got[1].ID, got[2].ID})
	}
}

func TestTopKDimensionMismatchFailsWholeCall(t *testing.T) {
	pool := []Candidate{
		{ID: "ok", Vector: []float32{1, 0, 0}},
		{ID: "bad", Vector: []float32{1, 0}},
	}

	got, err := TopK([]float32{1, 0, 0}, pool, 5, 0)
	assert.Nil(t, got)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrDimensionMismatch))

	var dimErr *DimensionMismatchError
	require.True(t, errors.As(err, &dimErr))
	assert.Equal(t, "bad", dimErr.ID)
	assert.Equal(t, 3, dimErr.Want)
	assert.Equal(t, 2, dimErr.Got)
}

func TestTopKEmptyPool(t *testing.T) {
	got, err := TopK([]float32{1}, nil, 5, 0.7)
	require.NoError(t, err)
	assert.Empty(t, got)
}
