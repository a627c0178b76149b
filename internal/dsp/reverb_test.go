package dsp

import (
	"encoding/binary"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/emberforge/audiocore/internal/audiocore"
)

func encodeStereoF32(frames [][2]float32) []byte {
	buf := make([]byte, len(frames)*8)
	for i, f := range frames {
		binary.LittleEndian.PutUint32(buf[i*8:], math.Float32bits(f[0]))
		binary.LittleEndian.PutUint32(buf[i*8+4:], math.Float32bits(f[1]))
	}
	return buf
}

func decodeStereoF32(buf []byte) [][2]float32 {
	out := make([][2]float32, len(buf)/8)
	for i := range out {
		out[i][0] = math.Float32frombits(binary.LittleEndian.Uint32(buf[i*8:]))
		out[i][1] = math.Float32frombits(binary.LittleEndian.Uint32(buf[i*8+4:]))
	}
	return out
}

func newTestReverb() *ReverbBus {
	return NewReverbBus(48000, ReverbParams{
		PreDelayMs: 0,
		Mode:       0,
		RoomSize:   0.5,
		Damp:       0.5,
		Width:      1.0,
		Wet:        1.0,
		Dry:        1.0,
	})
}

func TestReverbBusProcessMixAccumulates(t *testing.T) {
	r := newTestReverb()

	// The first block after construction is muted; run a silent block
	// through so the impulse below is not discarded.
	silence := make([]byte, 512*8)
	require.NoError(t, r.ProcessMix(
		&audiocore.AudioData{Buffer: silence, Format: audiocore.AudioFormat{SampleRate: 48000, Channels: 2, Encoding: "pcm_f32le"}},
		&audiocore.AudioData{Buffer: make([]byte, len(silence))},
	))

	// The shortest comb is about 1215 samples at 48kHz, so the block must be
	// longer than that for the impulse to reach the output.
	frames := make([][2]float32, 2048)
	frames[0] = [2]float32{1, 1}
	send := &audiocore.AudioData{
		Buffer: encodeStereoF32(frames),
		Format: audiocore.AudioFormat{SampleRate: 48000, Channels: 2, Encoding: "pcm_f32le"},
	}
	output := &audiocore.AudioData{
		Buffer: make([]byte, len(send.Buffer)),
		Format: send.Format,
	}

	err := r.ProcessMix(send, output)
	require.NoError(t, err)

	// The impulse should eventually produce nonzero wet output somewhere in
	// the block once it propagates through the comb/allpass banks.
	var energy float64
	for _, f := range decodeStereoF32(output.Buffer) {
		energy += float64(f[0])*float64(f[0]) + float64(f[1])*float64(f[1])
	}
	assert.Greater(t, energy, 0.0)
}

func TestReverbBusFirstBlockIsMuted(t *testing.T) {
	r := newTestReverb()

	// A single-frame impulse on the very first block should not appear in
	// the dry-mixed output (muteFirst silences the input before the comb
	// banks see it), though the comb banks themselves still start from zero
	// so the observed output is silence either way; this exercises the
	// muteFirst branch without asserting on filter internals.
	frames := [][2]float32{{1, 1}}
	send := &audiocore.AudioData{
		Buffer: encodeStereoF32(frames),
		Format: audiocore.AudioFormat{SampleRate: 48000, Channels: 2, Encoding: "pcm_f32le"},
	}
	output := &audiocore.AudioData{
		Buffer: make([]byte, len(send.Buffer)),
		Format: send.Format,
	}

	err := r.ProcessMix(send, output)
	require.NoError(t, err)

	got := decodeStereoF32(output.Buffer)
	assert.Equal(t, float32(0), got[0][0])
	assert.Equal(t, float32(0), got[0][1])
}

func TestReverbBusFreezeModeForcesFullRoomSize(t *testing.T) {
	r := NewReverbBus(48000, ReverbParams{RoomSize: 0, Mode: 0.9, Wet: 1, Dry: 1, Width: 1})
	gain := r.left.combs[0].feedback
	assert.Equal(t, 1.0, gain)
}

func TestReverbBusProcessReplaceOverwritesDry(t *testing.T) {
	r := newTestReverb()

	frames := make([][2]float32, 64)
	send := &audiocore.AudioData{
		Buffer: encodeStereoF32(frames),
		Format: audiocore.AudioFormat{SampleRate: 48000, Channels: 2, Encoding: "pcm_f32le"},
	}
	output := &audiocore.AudioData{
		Buffer: encodeStereoF32([][2]float32{{99, 99}}),
		Format: send.Format,
	}
	// pad output to match send length
	output.Buffer = append(output.Buffer, make([]byte, len(send.Buffer)-len(output.Buffer))...)

	err := r.ProcessReplace(send, output)
	require.NoError(t, err)
	// first frame's pre-existing 99,99 should have been overwritten, not
	// accumulated into.
	got := decodeStereoF32(output.Buffer)
	assert.Less(t, math.Abs(float64(got[0][0])), 99.0)
}

func TestReverbBusRejectsNilBuffers(t *testing.T) {
	r := newTestReverb()
	err := r.ProcessMix(nil, &audiocore.AudioData{})
	require.Error(t, err)
}

func TestReverbBusRejectsUndersizedOutput(t *testing.T) {
	r := newTestReverb()
	send := &audiocore.AudioData{Buffer: make([]byte, 16)}
	output := &audiocore.AudioData{Buffer: make([]byte, 8)}
	err := r.ProcessMix(send, output)
	require.Error(t, err)
}

func TestReverbBusSetParamsResizesPreDelay(t *testing.T) {
	r := newTestReverb()
	before := r.preDelayCap
	r.SetParams(ReverbParams{PreDelayMs: 100, RoomSize: 0.5, Wet: 1, Dry: 1, Width: 1})
	assert.NotEqual(t, before, r.preDelayCap)
}
