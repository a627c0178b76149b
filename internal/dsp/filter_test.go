package dsp

import (
	"context"
	"encoding/binary"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/emberforge/audiocore/internal/audiocore"
)

func TestCutoffHz(t *testing.T) {
	tests := []struct {
		name string
		v    float64
		want float64
	}{
		{"zero maps to 20Hz", 0, 20},
		{"one maps to 22kHz", 1, 22000},
		{"clamps below zero", -5, 20},
		{"clamps above one", 5, 22000},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := CutoffHz(tt.v)
			assert.InDelta(t, tt.want, got, 0.01)
		})
	}
}

func TestCutoffHzMonotonic(t *testing.T) {
	prev := CutoffHz(0)
	for _, v := range []float64{0.1, 0.25, 0.5, 0.75, 0.9, 1.0} {
		cur := CutoffHz(v)
		assert.Greater(t, cur, prev)
		prev = cur
	}
}

func encodeMonoF32(samples []float32) []byte {
	buf := make([]byte, len(samples)*4)
	for i, s := range samples {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(s))
	}
	return buf
}

func decodeMonoF32(buf []byte) []float32 {
	out := make([]float32, len(buf)/4)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[i*4:]))
	}
	return out
}

func TestFilterNodeWideOpenIsNearIdentity(t *testing.T) {
	f := NewFilterNode("filter-1", 48000)

	samples := make([]float32, 256)
	samples[0] = 1.0 // impulse

	input := &audiocore.AudioData{
		Buffer: encodeMonoF32(samples),
		Format: audiocore.AudioFormat{SampleRate: 48000, Channels: 1, Encoding: "pcm_f32le"},
	}

	out, err := f.Process(context.Background(), input)
	require.NoError(t, err)
	require.Len(t, out.Buffer, len(input.Buffer))

	result := decodeMonoF32(out.Buffer)
	// Wide-open LP (22kHz) + wide-open HP (20Hz) should barely attenuate
	// the impulse's initial energy.
	assert.Greater(t, math.Abs(float64(result[0])), 0.5)
}

func TestFilterNodeRejectsNilInput(t *testing.T) {
	f := NewFilterNode("filter-1", 48000)
	_, err := f.Process(context.Background(), nil)
	require.Error(t, err)
}

func TestFilterNodeRejectsWrongEncoding(t *testing.T) {
	f := NewFilterNode("filter-1", 48000)
	input := &audiocore.AudioData{
		Buffer: make([]byte, 16),
		Format: audiocore.AudioFormat{SampleRate: 48000, Channels: 1, Encoding: "pcm_s16le"},
	}
	_, err := f.Process(context.Background(), input)
	require.Error(t, err)
}

func TestFilterNodeLowPassAttenuatesHighFrequency(t *testing.T) {
	const sampleRate = 48000.0
	f := NewFilterNode("filter-1", sampleRate)
	f.SetLowPass(0.0) // cutoff near 20Hz, should heavily attenuate a high tone
	f.SetHighPass(0.0)

	n := 2048
	samples := make([]float32, n)
	for i := range samples {
		// 8kHz tone, well above the 20Hz low-pass cutoff.
		samples[i] = float32(math.Sin(2 * math.Pi * 8000 * float64(i) / sampleRate))
	}
	input := &audiocore.AudioData{
		Buffer: encodeMonoF32(samples),
		Format: audiocore.AudioFormat{SampleRate: sampleRate, Channels: 1, Encoding: "pcm_f32le"},
	}

	out, err := f.Process(context.Background(), input)
	require.NoError(t, err)
	result := decodeMonoF32(out.Buffer)

	var inEnergy, outEnergy float64
	for i := range samples {
		inEnergy += float64(samples[i]) * float64(samples[i])
		outEnergy += float64(result[i]) * float64(result[i])
	}
	assert.Less(t, outEnergy, inEnergy*0.1)
}

func TestFilterNodeSetHighPassDoesNotAliasLowPass(t *testing.T) {
	f := NewFilterNode("filter-1", 48000)
	f.SetLowPass(1.0)
	f.SetHighPass(0.3)

	assert.Equal(t, 1.0, math.Float64frombits(f.lpValue.Load()))
	assert.Equal(t, 0.3, math.Float64frombits(f.hpValue.Load()))
}
