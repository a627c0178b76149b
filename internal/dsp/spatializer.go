package dsp

import (
	"context"
	"encoding/binary"
	"math"
	"sync"

	"github.com/emberforge/audiocore/internal/audiocore"
	"github.com/emberforge/audiocore/internal/errors"
)

// speedOfSound is c in the Doppler formula, metres/second.
const speedOfSound = 343.3

// AttenuationModel selects the distance-attenuation curve.
type AttenuationModel int

const (
	AttenuationNone AttenuationModel = iota
	AttenuationInverse
	AttenuationLinear
	AttenuationExponential
)

// Vec3 is a world-space metre vector: position, velocity, or a basis axis.
type Vec3 [3]float32

// Transform is an entity's world-space pose: position, forward orientation,
// and up vector.
type Transform struct {
	Position    Vec3
	Orientation Vec3
	Up          Vec3
}

// SpatialParams mirrors the engine's SpatializationConfig, expressed in
// terms this package can compute with directly (no dependency on the
// engine package, to avoid an import cycle).
type SpatialParams struct {
	AttenuationModel AttenuationModel
	MinDistance      float64
	MaxDistance      float64
	Rolloff          float64
	ConeInnerRad     float64
	ConeOuterRad     float64
	ConeOuterGain    float64
	MinGain          float64
	MaxGain          float64
	DopplerFactor    float64
	Spread           float64
	Focus            float64
}

// ListenerState is the subset of listener state the spatializer needs.
type ListenerState struct {
	Transform     Transform
	Velocity      Vec3
	ConeInnerRad  float64
	ConeOuterRad  float64
	ConeOuterGain float64
}

func clampf(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func dot(a, b Vec3) float64 {
	return float64(a[0])*float64(b[0]) + float64(a[1])*float64(b[1]) + float64(a[2])*float64(b[2])
}

func sub(a, b Vec3) Vec3 {
	return Vec3{a[0] - b[0], a[1] - b[1], a[2] - b[2]}
}

func length(v Vec3) float64 {
	return math.Sqrt(dot(v, v))
}

func normalize(v Vec3) Vec3 {
	l := length(v)
	if l < 1e-9 {
		return Vec3{0, 0, 0}
	}
	inv := float32(1.0 / l)
	return Vec3{v[0] * inv, v[1] * inv, v[2] * inv}
}

// DistanceAttenuation computes per-spec distance attenuation gain.
func DistanceAttenuation(model AttenuationModel, d, minDist, maxDist, rolloff float64) float64 {
	if minDist >= maxDist {
		return 1.0
	}
	clamped := clampf(d, minDist, maxDist)
	switch model {
	case AttenuationNone:
		return 1.0
	case AttenuationInverse:
		return minDist / (minDist + rolloff*(clamped-minDist))
	case AttenuationLinear:
		return 1 - rolloff*(clamped-minDist)/(maxDist-minDist)
	case AttenuationExponential:
		return math.Pow(clamped/minDist, -rolloff)
	default:
		return 1.0
	}
}

// ConeAttenuation computes the angular cone gain for an angle (radians)
// between the forward axis and the direction to the other party.
func ConeAttenuation(angle, innerRad, outerRad, outerGain float64) float64 {
	if innerRad >= 2*math.Pi {
		return 1.0
	}
	absAngle := math.Abs(angle)
	switch {
	case absAngle <= innerRad/2:
		return 1.0
	case absAngle >= outerRad/2:
		return outerGain
	default:
		cosInner := math.Cos(innerRad / 2)
		cosOuter := math.Cos(outerRad / 2)
		cosAngle := math.Cos(absAngle)
		if cosInner == cosOuter {
			return outerGain
		}
		t := (cosAngle - cosOuter) / (cosInner - cosOuter)
		return outerGain + t*(1-outerGain)
	}
}

// DopplerPitch computes the Doppler pitch multiplier: (c - f*v_l)/(c - f*v_s),
// where v_l, v_s are the listener/source velocity projections onto the unit
// axis pointing from the source toward the listener, each capped at c/f.
func DopplerPitch(listenerPos, sourcePos, listenerVel, sourceVel Vec3, dopplerFactor float64) float64 {
	if dopplerFactor == 0 {
		return 1.0
	}
	axis := normalize(sub(listenerPos, sourcePos))
	vCap := speedOfSound / dopplerFactor

	vl := dot(listenerVel, axis)
	vs := dot(sourceVel, axis)
	vl = clampf(vl, -vCap, vCap)
	vs = clampf(vs, -vCap, vCap)

	denom := speedOfSound - dopplerFactor*vs
	if math.Abs(denom) < 1e-6 {
		return 1.0
	}
	return (speedOfSound - dopplerFactor*vl) / denom
}

// quadSpeakerAzimuths places the internal quad bus at front-left,
// front-right, rear-right, rear-left, in radians, 0 = forward.
var quadSpeakerAzimuths = [4]float64{
	-math.Pi / 4, math.Pi / 4, 3 * math.Pi / 4, -3 * math.Pi / 4,
}

// VBAPGains distributes a single virtual source at the given azimuth (radians,
// 0 = forward, increasing clockwise) across the quad bus. It finds the pair
// of adjacent speakers bracketing the azimuth and solves gains (g1,g2) from
// the inverse of their 2x2 direction matrix, normalized so g1^2+g2^2=1.
// spread widens the active arc (distributes energy to neighboring pairs);
// focus biases energy concentration within that arc. Both in [0,1].
func VBAPGains(azimuth, spread, focus float64) [4]float64 {
	azimuth = math.Mod(azimuth, 2*math.Pi)
	if azimuth < 0 {
		azimuth += 2 * math.Pi
	}

	var gains [4]float64
	// locate bracketing pair
	n := len(quadSpeakerAzimuths)
	for i := 0; i < n; i++ {
		a0 := normalizeAngle(quadSpeakerAzimuths[i])
		a1 := normalizeAngle(quadSpeakerAzimuths[(i+1)%n])
		if angleBetween(azimuth, a0, a1) {
			g1, g2 := pairGains(azimuth, a0, a1)
			gains[i] = g1
			gains[(i+1)%n] = g2
			break
		}
	}

	if spread > 0 {
		// redistribute a fraction of the energy to the two non-active
		// speakers, widening the perceived arc.
		var energy float64
		for _, g := range gains {
			energy += g * g
		}
		bleed := spread * 0.5
		for i := range gains {
			if gains[i] == 0 {
				gains[i] = math.Sqrt(energy) * bleed / 2
			} else {
				gains[i] *= math.Sqrt(1 - bleed)
			}
		}
	}

	if focus > 0 {
		// bias toward the dominant speaker within the active pair
		maxIdx := 0
		for i := 1; i < 4; i++ {
			if gains[i] > gains[maxIdx] {
				maxIdx = i
			}
		}
		for i := range gains {
			if i == maxIdx {
				gains[i] = gains[i] + (1-gains[i])*focus
			} else {
				gains[i] = gains[i] * (1 - focus)
			}
		}
	}

	normalizeEnergy(&gains)
	return gains
}

func normalizeAngle(a float64) float64 {
	a = math.Mod(a, 2*math.Pi)
	if a < 0 {
		a += 2 * math.Pi
	}
	return a
}

func angleBetween(a, lo, hi float64) bool {
	if lo <= hi {
		return a >= lo && a <= hi
	}
	return a >= lo || a <= hi
}

func pairGains(azimuth, a0, a1 float64) (float64, float64) {
	span := a1 - a0
	if span < 0 {
		span += 2 * math.Pi
	}
	if span == 0 {
		return 1, 0
	}
	t := azimuth - a0
	if t < 0 {
		t += 2 * math.Pi
	}
	frac := t / span
	g1 := math.Cos(frac * math.Pi / 2)
	g2 := math.Sin(frac * math.Pi / 2)
	return g1, g2
}

func normalizeEnergy(gains *[4]float64) {
	var sumSq float64
	for _, g := range gains {
		sumSq += g * g
	}
	if sumSq < 1e-12 {
		return
	}
	norm := 1.0 / math.Sqrt(sumSq)
	for i := range gains {
		gains[i] *= norm
	}
}

// spatializerState tracks whether the node has received its first
// position update (the spec requires no audible output until then).
type spatializerState int

const (
	spatializerStopped spatializerState = iota
	spatializerStarted
)

// SpatializerNode is the per-voice VBAP panner with distance/cone
// attenuation and Doppler pitch. Gains are computed on the control thread
// (UpdateSourcePosition) and published through a GainCell for the realtime
// Process call to read without blocking.
type SpatializerNode struct {
	id         string
	params     SpatialParams
	cell       *GainCell
	prevGains  [4]float32

	mu       sync.Mutex
	state    spatializerState
	pitch    float64
}

// NewSpatializerNode creates a spatializer in the Stopped state; it will not
// produce audible output until UpdateSourcePosition is called at least once.
func NewSpatializerNode(id string, params SpatialParams) *SpatializerNode {
	return &SpatializerNode{
		id:     id,
		params: params,
		cell:   NewGainCell([4]float32{}),
		pitch:  1.0,
	}
}

// UpdateParams publishes new spatialization parameters.
func (s *SpatializerNode) UpdateParams(p SpatialParams) {
	s.mu.Lock()
	s.params = p
	s.mu.Unlock()
}

// UpdateSourcePosition recomputes distance/cone/VBAP/Doppler gains for a new
// source transform+velocity against the current listener state, and
// publishes them to the realtime cell. Called from the audio thread's
// control-rate update, never from the device callback.
func (s *SpatializerNode) UpdateSourcePosition(source Transform, sourceVel Vec3, listener ListenerState) {
	s.mu.Lock()
	p := s.params
	s.state = spatializerStarted
	s.mu.Unlock()

	toSource := sub(source.Position, listener.Transform.Position)
	d := length(toSource)

	distGain := DistanceAttenuation(p.AttenuationModel, d, p.MinDistance, p.MaxDistance, p.Rolloff)

	axis := normalize(toSource)
	forward := normalize(listener.Transform.Orientation)
	cosAngle := dot(axis, forward)
	cosAngle = clampf(cosAngle, -1, 1)
	listenerAngle := math.Acos(cosAngle)
	coneGain := ConeAttenuation(listenerAngle, p.ConeInnerRad, p.ConeOuterRad, p.ConeOuterGain)

	sourceForward := normalize(source.Orientation)
	cosSrcAngle := clampf(dot(normalize(Vec3{-axis[0], -axis[1], -axis[2]}), sourceForward), -1, 1)
	srcAngle := math.Acos(cosSrcAngle)
	srcConeGain := ConeAttenuation(srcAngle, p.ConeInnerRad, p.ConeOuterRad, p.ConeOuterGain)

	gain := clampf(distGain*coneGain*srcConeGain, p.MinGain, p.MaxGain)

	pitch := DopplerPitch(listener.Transform.Position, source.Position, listener.Velocity, sourceVel, p.DopplerFactor)

	// azimuth in listener's horizontal plane: angle between forward and the
	// projection of toSource onto the plane perpendicular to Up.
	right := normalize(Vec3{
		listener.Transform.Up[1]*forward[2] - listener.Transform.Up[2]*forward[1],
		listener.Transform.Up[2]*forward[0] - listener.Transform.Up[0]*forward[2],
		listener.Transform.Up[0]*forward[1] - listener.Transform.Up[1]*forward[0],
	})
	x := dot(axis, right)
	z := dot(axis, forward)
	azimuth := math.Atan2(x, z)

	vbap := VBAPGains(azimuth, p.Spread, p.Focus)
	var published [4]float32
	for i := range published {
		published[i] = float32(vbap[i] * gain)
	}

	s.cell.Publish(published)
	s.mu.Lock()
	s.pitch = pitch
	s.mu.Unlock()
}

func (s *SpatializerNode) ID() string { return s.id }

func (s *SpatializerNode) GetRequiredFormat() *audiocore.AudioFormat { return nil }

func (s *SpatializerNode) GetOutputFormat(in audiocore.AudioFormat) audiocore.AudioFormat {
	out := in
	out.Channels = 4
	return out
}

// Pitch returns the most recently computed Doppler pitch multiplier.
func (s *SpatializerNode) Pitch() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pitch
}

// Process distributes the (mono or stereo, downmixed to mono) input across
// the quad bus using the published per-channel gains, interpolated
// sample-by-sample across the block to avoid zipper noise.
func (s *SpatializerNode) Process(ctx context.Context, input *audiocore.AudioData) (*audiocore.AudioData, error) {
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

	s.mu.Lock()
	started := s.state == spatializerStarted
	s.mu.Unlock()
	if !started {
		// must not produce audible output before the first position update
		out := &audiocore.AudioData{
			Buffer:    make([]byte, len(input.Buffer)/max1(input.Format.Channels)*4),
			Format:    audiocore.AudioFormat{SampleRate: input.Format.SampleRate, Channels: 4, BitDepth: 32, Encoding: "pcm_f32le"},
			Timestamp: input.Timestamp,
			Duration:  input.Duration,
			SourceID:  input.SourceID,
		}
		return out, nil
	}

	channels := max1(input.Format.Channels)
	frameBytes := channels * 4
	frames := len(input.Buffer) / frameBytes

	newGains := s.cell.Load()
	oldGains := s.prevGains
	s.prevGains = newGains

	interp := make([][4]float32, frames)
	InterpolatedGains(oldGains, newGains, frames, interp)

	out := &audiocore.AudioData{
		Buffer:    make([]byte, frames*4*4),
		Format:    audiocore.AudioFormat{SampleRate: input.Format.SampleRate, Channels: 4, BitDepth: 32, Encoding: "pcm_f32le"},
		Timestamp: input.Timestamp,
		Duration:  input.Duration,
		SourceID:  input.SourceID,
	}

	for i := 0; i < frames; i++ {
		inBase := i * frameBytes
		var mono float32
		for ch := 0; ch < channels; ch++ {
			bits := binary.LittleEndian.Uint32(input.Buffer[inBase+ch*4 : inBase+ch*4+4])
			mono += math.Float32frombits(bits)
		}
		mono /= float32(channels)

		outBase := i * 16
		g := interp[i]
		for ch := 0; ch < 4; ch++ {
			sample := mono * g[ch]
			binary.LittleEndian.PutUint32(out.Buffer[outBase+ch*4:outBase+ch*4+4], math.Float32bits(sample))
		}
	}

	return out, nil
}

func max1(c int) int {
	if c < 1 {
		return 1
	}
	return c
}
