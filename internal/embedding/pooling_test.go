package embedding

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMeanPool(t *testing.T) {
	hidden := []float32{
		1, 2, // [CLS]
		3, 4, // token
		100, 100, // padding
	}
	got := meanPool(hidden, []int64{1, 1, 0}, 2)
	assert.Equal(t, []float32{2, 3}, got)
}

func TestMeanPool_EmptyMask(t *testing.T) {
	got := meanPool([]float32{1, 2}, []int64{0}, 2)
	assert.Equal(t, []float32{0, 0}, got)
}

func TestMeanPool_ShortHidden(t *testing.T) {
	got := meanPool([]float32{4, 6}, []int64{1, 1}, 2)
	assert.Equal(t, []float32{4, 6}, got)
}
