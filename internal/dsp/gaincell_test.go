package dsp

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGainCellPublishLoad(t *testing.T) {
	c := NewGainCell([4]float32{0, 0, 0, 0})
	assert.Equal(t, [4]float32{0, 0, 0, 0}, c.Load())

	c.Publish([4]float32{1, 0.5, 0.25, 0})
	assert.Equal(t, [4]float32{1, 0.5, 0.25, 0}, c.Load())
}

func TestInterpolatedGainsRampsEndpoints(t *testing.T) {
	old := [4]float32{0, 0, 0, 0}
	next := [4]float32{1, 1, 1, 1}
	out := make([][4]float32, 4)

	InterpolatedGains(old, next, 4, out)

	assert.InDelta(t, 0.25, out[0][0], 1e-6)
	assert.InDelta(t, 0.5, out[1][0], 1e-6)
	assert.InDelta(t, 0.75, out[2][0], 1e-6)
	assert.InDelta(t, 1.0, out[3][0], 1e-6)
}

func TestInterpolatedGainsNoFrames(t *testing.T) {
	out := make([][4]float32, 4)
	InterpolatedGains([4]float32{}, [4]float32{1, 1, 1, 1}, 0, out)
	assert.Equal(t, [4]float32{}, out[0])
}

func TestInterpolatedGainsShortOutputIsNoop(t *testing.T) {
	out := make([][4]float32, 2)
	InterpolatedGains([4]float32{}, [4]float32{1, 1, 1, 1}, 4, out)
	assert.Equal(t, [4]float32{}, out[0])
	assert.Equal(t, [4]float32{}, out[1])
}
