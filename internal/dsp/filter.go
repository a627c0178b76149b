package dsp

import (
	"context"
	"encoding/binary"
	"math"
	"sync/atomic"

	"github.com/emberforge/audiocore/internal/audiocore"
	"github.com/emberforge/audiocore/internal/errors"
)

const (
	filterMinHz = 20.0
	filterMaxHz = 22000.0
	filterQ     = 0.70710678 // Butterworth Q, -3dB at cutoff
)

// CutoffHz maps a normalized control value v in [0,1] to a cutoff frequency
// with a logarithmic sweep from 20 Hz to 22 kHz: f(v) = 20 * 2^(v*log2(22000/20)).
func CutoffHz(v float64) float64 {
	if v < 0 {
		v = 0
	} else if v > 1 {
		v = 1
	}
	return filterMinHz * math.Pow(2, v*math.Log2(filterMaxHz/filterMinHz))
}

// biquadCoeffs holds a Direct Form I biquad's normalized coefficients.
type biquadCoeffs struct {
	b0, b1, b2 float64
	a1, a2     float64
}

func lowPassCoeffs(sampleRate, cutoffHz float64) biquadCoeffs {
	w0 := 2 * math.Pi * cutoffHz / sampleRate
	cosW0, sinW0 := math.Cos(w0), math.Sin(w0)
	alpha := sinW0 / (2 * filterQ)

	b0 := (1 - cosW0) / 2
	b1 := 1 - cosW0
	b2 := (1 - cosW0) / 2
	a0 := 1 + alpha
	a1 := -2 * cosW0
	a2 := 1 - alpha

	return biquadCoeffs{b0: b0 / a0, b1: b1 / a0, b2: b2 / a0, a1: a1 / a0, a2: a2 / a0}
}

func highPassCoeffs(sampleRate, cutoffHz float64) biquadCoeffs {
	w0 := 2 * math.Pi * cutoffHz / sampleRate
	cosW0, sinW0 := math.Cos(w0), math.Sin(w0)
	alpha := sinW0 / (2 * filterQ)

	b0 := (1 + cosW0) / 2
	b1 := -(1 + cosW0)
	b2 := (1 + cosW0) / 2
	a0 := 1 + alpha
	a1 := -2 * cosW0
	a2 := 1 - alpha

	return biquadCoeffs{b0: b0 / a0, b1: b1 / a0, b2: b2 / a0, a1: a1 / a0, a2: a2 / a0}
}

// channelState carries one channel's two-sample history for a single biquad.
type channelState struct {
	x1, x2, y1, y2 float64
}

func (c *channelState) run(coef biquadCoeffs, x float64) float64 {
	y := coef.b0*x + coef.b1*c.x1 + coef.b2*c.x2 - coef.a1*c.y1 - coef.a2*c.y2
	c.x2, c.x1 = c.x1, x
	c.y2, c.y1 = c.y1, y
	return y
}

// FilterNode is the per-voice low-pass/high-pass biquad pair described in
// the source manager's DSP chain. Control values are published from a
// non-realtime caller (SetLowPass/SetHighPass) and picked up at the start of
// the next Process call on the audio thread; the coefficient recompute is
// cheap enough to not require realtime-cell indirection, unlike the
// spatializer's per-sample gains.
type FilterNode struct {
	id         string
	sampleRate float64

	lpValue atomic.Uint64 // float64 bits, control value in [0,1]
	hpValue atomic.Uint64

	lpStates []channelState
	hpStates []channelState
}

// NewFilterNode creates a filter node with both stages initially wide open
// (LP at 1.0 == 22kHz passthrough-ish, HP at 0.0 == 20Hz passthrough-ish).
func NewFilterNode(id string, sampleRate float64) *FilterNode {
	f := &FilterNode{id: id, sampleRate: sampleRate}
	f.lpValue.Store(math.Float64bits(1.0))
	f.hpValue.Store(math.Float64bits(0.0))
	return f
}

// SetLowPass publishes a new low-pass control value in [0,1].
func (f *FilterNode) SetLowPass(v float64) {
	f.lpValue.Store(math.Float64bits(clamp01(v)))
}

// SetHighPass publishes a new high-pass control value in [0,1].
//
// This is the node that the original engine's setHighPassFilterValueObj
// mis-routed into the low-pass stage; here the two stages are distinct
// atomics and this method only ever touches hpValue.
func (f *FilterNode) SetHighPass(v float64) {
	f.hpValue.Store(math.Float64bits(clamp01(v)))
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func (f *FilterNode) ID() string { return f.id }

func (f *FilterNode) GetRequiredFormat() *audiocore.AudioFormat { return nil }

func (f *FilterNode) GetOutputFormat(in audiocore.AudioFormat) audiocore.AudioFormat { return in }

// Process runs both biquad stages in series over interleaved f32le samples.
func (f *FilterNode) Process(ctx context.Context, input *audiocore.AudioData) (*audiocore.AudioData, error) {
	if input == nil {
		return nil, errors.New(nil).
			Component("audiocore.dsp").
			Category(errors.CategoryValidation).
			Context("error", "input audio data is nil").
			Build()
	}
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}
	if input.Format.Encoding != "pcm_f32le" {
		return nil, errors.New(audiocore.ErrInvalidAudioFormat).
			Component("audiocore.dsp").
			Context("encoding", input.Format.Encoding).
			Context("error", "filter node requires pcm_f32le").
			Build()
	}

	channels := input.Format.Channels
	if channels <= 0 {
		channels = 1
	}
	if len(f.lpStates) != channels {
		f.lpStates = make([]channelState, channels)
		f.hpStates = make([]channelState, channels)
	}

	lpCoef := lowPassCoeffs(f.sampleRate, CutoffHz(math.Float64frombits(f.lpValue.Load())))
	hpCoef := highPassCoeffs(f.sampleRate, CutoffHz(math.Float64frombits(f.hpValue.Load())))

	output := &audiocore.AudioData{
		Buffer:    make([]byte, len(input.Buffer)),
		Format:    input.Format,
		Timestamp: input.Timestamp,
		Duration:  input.Duration,
		SourceID:  input.SourceID,
	}

	frameBytes := channels * 4
	frames := len(input.Buffer) / frameBytes
	for i := 0; i < frames; i++ {
		base := i * frameBytes
		for ch := 0; ch < channels; ch++ {
			off := base + ch*4
			bits := binary.LittleEndian.Uint32(input.Buffer[off : off+4])
			sample := float64(math.Float32frombits(bits))

			sample = f.lpStates[ch].run(lpCoef, sample)
			sample = f.hpStates[ch].run(hpCoef, sample)

			binary.LittleEndian.PutUint32(output.Buffer[off:off+4], math.Float32bits(float32(sample)))
		}
	}

	return output, nil
}
