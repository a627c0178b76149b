package dsp

import (
	"context"
	"encoding/binary"
	"math"
	"sync"
	"sync/atomic"

	"github.com/smallnest/ringbuffer"

	"github.com/emberforge/audiocore/internal/audiocore"
	"github.com/emberforge/audiocore/internal/errors"
)

// Reference (44.1kHz) Freeverb tuning lengths, left channel. Right channel
// uses each length plus stereoSpread.
var combTuningL = [8]int{1116, 1188, 1277, 1356, 1422, 1491, 1557, 1617}
var allpassTuningL = [4]int{556, 441, 341, 225}

const (
	stereoSpread  = 23
	fixedGain     = 0.015
	scaleWet      = 3.0
	scaleDamp     = 0.4
	scaleRoom     = 0.28
	offsetRoom    = 0.7
	allpassFeedback = 0.5
	freezeThreshold = 0.5
)

// comb is a single Freeverb comb filter with damping in the feedback path.
type comb struct {
	buf                []float32
	pos                int
	feedback, damp1, damp2 float64
	filterStore        float64
}

func newComb(length int) *comb {
	return &comb{buf: make([]float32, length)}
}

func (c *comb) setDamp(val float64) {
	c.damp1 = val
	c.damp2 = 1 - val
}

func (c *comb) process(input float64) float64 {
	output := float64(c.buf[c.pos])
	c.filterStore = output*c.damp2 + c.filterStore*c.damp1
	c.buf[c.pos] = float32(input + c.filterStore*c.feedback)
	c.pos++
	if c.pos >= len(c.buf) {
		c.pos = 0
	}
	return output
}

// allpass is a Schroeder all-pass diffusion filter.
type allpass struct {
	buf []float32
	pos int
	feedback float64
}

func newAllpass(length int) *allpass {
	return &allpass{buf: make([]float32, length), feedback: allpassFeedback}
}

func (a *allpass) process(input float64) float64 {
	bufOut := float64(a.buf[a.pos])
	output := -input + bufOut
	a.buf[a.pos] = float32(input + bufOut*a.feedback)
	a.pos++
	if a.pos >= len(a.buf) {
		a.pos = 0
	}
	return output
}

// channelBank holds one channel's 8 combs and 4 series all-passes.
type channelBank struct {
	combs    [8]*comb
	allpasses [4]*allpass
}

func newChannelBank(sampleRate float64, spread int) *channelBank {
	scale := sampleRate / 44100.0
	cb := &channelBank{}
	for i, l := range combTuningL {
		cb.combs[i] = newComb(int(float64(l+spread)*scale) + 1)
	}
	for i, l := range allpassTuningL {
		cb.allpasses[i] = newAllpass(int(float64(l+spread)*scale) + 1)
	}
	return cb
}

func (cb *channelBank) process(input float64) float64 {
	var out float64
	for _, c := range cb.combs {
		out += c.process(input)
	}
	for _, a := range cb.allpasses {
		out = a.process(out)
	}
	return out
}

func (cb *channelBank) setFeedback(roomSize float64) {
	for _, c := range cb.combs {
		c.feedback = roomSize
	}
}

func (cb *channelBank) setDamp(damp float64) {
	for _, c := range cb.combs {
		c.setDamp(damp)
	}
}

// ReverbParams are the externally-published, control-rate reverb knobs.
type ReverbParams struct {
	PreDelayMs float64 // 0-1000
	Mode       float64 // freeze when >= 0.5
	RoomSize   float64
	Damp       float64
	Width      float64
	Wet        float64
	Dry        float64
}

// ReverbBus is the single global Schroeder/Freeverb-style stereo reverb:
// 8 parallel combs and 4 series all-passes per channel, fed through a
// pre-delay FIFO. Buffer lengths are the reference 44.1kHz tunings scaled by
// SR/44100. Muted for its first block to clear uninitialized delay-line
// contents, except when starting in freeze mode.
type ReverbBus struct {
	sampleRate float64

	mu        sync.Mutex
	params    ReverbParams
	dirty     bool
	firstBlock bool

	left, right *channelBank
	preDelay    *ringbuffer.RingBuffer
	preDelayCap int

	gain atomic.Uint64 // float64 bits, derived fixed gain for current room/wet
}

// NewReverbBus constructs a reverb tuned for sampleRate with the given
// initial parameters.
func NewReverbBus(sampleRate float64, params ReverbParams) *ReverbBus {
	r := &ReverbBus{
		sampleRate: sampleRate,
		params:     params,
		left:       newChannelBank(sampleRate, 0),
		right:      newChannelBank(sampleRate, stereoSpread),
		firstBlock: params.Mode < freezeThreshold,
	}
	r.applyParamsLocked()
	r.resizePreDelay(params.PreDelayMs)
	return r
}

// SetParams publishes new reverb parameters, applied at the start of the
// next Process call.
func (r *ReverbBus) SetParams(p ReverbParams) {
	r.mu.Lock()
	defer r.mu.Unlock()
	prevPreDelay := r.params.PreDelayMs
	r.params = p
	r.dirty = true
	if p.PreDelayMs != prevPreDelay {
		r.resizePreDelay(p.PreDelayMs)
	}
}

func (r *ReverbBus) resizePreDelay(ms float64) {
	if ms < 0 {
		ms = 0
	} else if ms > 1000 {
		ms = 1000
	}
	frames := int(ms / 1000.0 * r.sampleRate)
	if frames < 1 {
		frames = 1
	}
	r.preDelayCap = frames * 8 // stereo f32 frame = 8 bytes
	r.preDelay = ringbuffer.New(r.preDelayCap)
}

func (r *ReverbBus) applyParamsLocked() {
	p := r.params
	wet := p.Wet * scaleWet
	roomSize := p.RoomSize*scaleRoom + offsetRoom
	if p.Mode >= freezeThreshold {
		roomSize = 1.0
	}
	damp := p.Damp * scaleDamp

	r.left.setFeedback(roomSize)
	r.right.setFeedback(roomSize)
	r.left.setDamp(damp)
	r.right.setDamp(damp)

	r.gain.Store(math.Float64bits(wet))
	r.dirty = false
}

// pushPreDelay feeds one stereo frame through the pre-delay FIFO and
// returns the delayed frame (silence until the FIFO has filled once).
func (r *ReverbBus) pushPreDelay(l, rr float32) (float32, float32) {
	in := make([]byte, 8)
	binary.LittleEndian.PutUint32(in[0:4], math.Float32bits(l))
	binary.LittleEndian.PutUint32(in[4:8], math.Float32bits(rr))

	var dl, dr float32
	if r.preDelay.IsFull() {
		out := make([]byte, 8)
		if n, err := r.preDelay.Read(out); err == nil && n == 8 {
			dl = math.Float32frombits(binary.LittleEndian.Uint32(out[0:4]))
			dr = math.Float32frombits(binary.LittleEndian.Uint32(out[4:8]))
		}
	}

	_, _ = r.preDelay.Write(in)
	return dl, dr
}

// ProcessMix accumulates the reverb's wet output into an existing stereo
// f32le output buffer (does not overwrite it). Used for the normal per-block
// reverb-send accumulation.
func (r *ReverbBus) ProcessMix(send, output *audiocore.AudioData) error {
	return r.process(send, output, false)
}

// ProcessReplace overwrites the output buffer with the reverb's wet signal.
func (r *ReverbBus) ProcessReplace(send, output *audiocore.AudioData) error {
	return r.process(send, output, true)
}

func (r *ReverbBus) process(send, output *audiocore.AudioData, replace bool) error {
	if send == nil || output == nil {
		return errors.New(nil).
			Component("audiocore.dsp").
			Category(errors.CategoryValidation).
			Context("error", "reverb send or output buffer is nil").
			Build()
	}
	r.mu.Lock()
	if r.dirty {
		r.applyParamsLocked()
	}
	params := r.params
	muteFirst := r.firstBlock && params.Mode < freezeThreshold
	r.firstBlock = false
	r.mu.Unlock()

	frameBytes := 8 // stereo f32
	frames := len(send.Buffer) / frameBytes
	if len(output.Buffer) < frames*frameBytes {
		return errors.New(nil).
			Component("audiocore.dsp").
			Category(errors.CategoryValidation).
			Context("error", "output buffer smaller than send buffer").
			Build()
	}

	wetGain := math.Float64frombits(r.gain.Load())
	wet1 := wetGain * (params.Width/2 + 0.5)
	wet2 := wetGain * ((1 - params.Width) / 2)
	dry := params.Dry

	for i := 0; i < frames; i++ {
		base := i * frameBytes
		lBits := binary.LittleEndian.Uint32(send.Buffer[base : base+4])
		rBits := binary.LittleEndian.Uint32(send.Buffer[base+4 : base+8])
		l, rr := math.Float32frombits(lBits), math.Float32frombits(rBits)

		if muteFirst {
			l, rr = 0, 0
		}

		dl, dr := r.pushPreDelay(l, rr)
		mono := (float64(dl) + float64(dr)) * fixedGain

		outL := r.left.process(mono)
		outR := r.right.process(mono)

		wetL := outL*wet1 + outR*wet2
		wetR := outR*wet1 + outL*wet2

		dryL := float64(0)
		dryR := float64(0)
		existL := math.Float32frombits(binary.LittleEndian.Uint32(output.Buffer[base : base+4]))
		existR := math.Float32frombits(binary.LittleEndian.Uint32(output.Buffer[base+4 : base+8]))
		if !replace {
			dryL = float64(existL)
			dryR = float64(existR)
		} else {
			dryL = float64(l) * dry
			dryR = float64(rr) * dry
		}

		binary.LittleEndian.PutUint32(output.Buffer[base:base+4], math.Float32bits(float32(dryL+wetL)))
		binary.LittleEndian.PutUint32(output.Buffer[base+4:base+8], math.Float32bits(float32(dryR+wetR)))
	}

	return nil
}
