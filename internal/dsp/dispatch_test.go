package dsp

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBatchWidthIsPowerOfTwoAndPositive(t *testing.T) {
	w := BatchWidth()
	assert.Greater(t, w, 0)
	assert.Equal(t, 0, w&(w-1), "BatchWidth should be a power of two")
}
