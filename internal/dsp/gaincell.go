package dsp

import "sync/atomic"

// GainCell is a lock-free, wait-free, realtime-safe publication cell for a
// small fixed-size gain vector: one non-realtime writer (the audio thread's
// control-rate update) and one realtime reader (the device callback).
//
// The writer publishes a fully-built snapshot; the reader always observes a
// complete, consistent vector, never a partially-written one. There is no
// blocking on either side.
type GainCell struct {
	snapshot atomic.Pointer[[4]float32]
}

// NewGainCell creates a cell seeded with the given initial gains.
func NewGainCell(initial [4]float32) *GainCell {
	c := &GainCell{}
	c.snapshot.Store(&initial)
	return c
}

// Publish stores a new gain snapshot. Called from the control-rate thread.
func (c *GainCell) Publish(gains [4]float32) {
	c.snapshot.Store(&gains)
}

// Load returns the most recently published snapshot. Never blocks; safe to
// call from the realtime device callback.
func (c *GainCell) Load() [4]float32 {
	p := c.snapshot.Load()
	if p == nil {
		return [4]float32{}
	}
	return *p
}

// InterpolatedGains produces per-sample interpolated gains across a block of
// frameCount frames, ramping from old to new with no zipper noise. out must
// have at least frameCount entries, one [4]float32 per frame.
func InterpolatedGains(old, next [4]float32, frameCount int, out [][4]float32) {
	if frameCount <= 0 {
		return
	}
	if len(out) < frameCount {
		return
	}
	step := 1.0 / float32(frameCount)
	for i := 0; i < frameCount; i++ {
		t := step * float32(i+1)
		var g [4]float32
		for ch := 0; ch < 4; ch++ {
			g[ch] = old[ch] + (next[ch]-old[ch])*t
		}
		out[i] = g
	}
}
