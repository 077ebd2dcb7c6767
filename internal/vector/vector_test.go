package vector

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSortMatches(t *testing.T) {
	ms := []Match{
		{ChunkIndex: 3, Score: 0.5},
		{ChunkIndex: 0, Score: 0.9},
		{ChunkIndex: 2, Score: 0.5},
		{ChunkIndex: 1, Score: 0.7},
	}
	SortMatches(ms)

	var order []int
	for _, m := range ms {
		order = append(order, m.ChunkIndex)
	}
	assert.Equal(t, []int{0, 1, 2, 3}, order)
}

func TestCosine(t *testing.T) {
	assert.InDelta(t, 1.0, Cosine([]float32{1, 2}, []float32{2, 4}), 1e-9)
	assert.InDelta(t, 0.0, Cosine([]float32{1, 0}, []float32{0, 1}), 1e-9)
	assert.InDelta(t, -1.0, Cosine([]float32{1, 0}, []float32{-3, 0}), 1e-9)
	assert.Equal(t, 0.0, Cosine([]float32{0, 0}, []float32{1, 1}))
	assert.Equal(t, 0.0, Cosine([]float32{1}, []float32{1, 1}))
}
