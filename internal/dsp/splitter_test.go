package dsp

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/emberforge/audiocore/internal/audiocore"
)

func TestSplitterNodeDryPassthrough(t *testing.T) {
	s := NewSplitterNode("splitter-1", 0.5)
	samples := []float32{1, -1, 0.5, -0.5}
	input := &audiocore.AudioData{
		Buffer: encodeMonoF32(samples),
		Format: audiocore.AudioFormat{SampleRate: 48000, Channels: 1, Encoding: "pcm_f32le"},
	}

	out, err := s.Process(context.Background(), input)
	require.NoError(t, err)
	assert.Same(t, input, out)
}

func TestSplitterNodeReverbSendScaling(t *testing.T) {
	s := NewSplitterNode("splitter-1", 0.5)
	samples := []float32{1, -1, 0.5, -0.5}
	input := &audiocore.AudioData{
		Buffer: encodeMonoF32(samples),
		Format: audiocore.AudioFormat{SampleRate: 48000, Channels: 1, Encoding: "pcm_f32le"},
	}

	_, err := s.Process(context.Background(), input)
	require.NoError(t, err)

	send := s.ReverbSend()
	require.NotNil(t, send)
	got := decodeMonoF32(send.Buffer)
	for i, sample := range samples {
		assert.InDelta(t, float64(sample)*0.5, float64(got[i]), 1e-6)
	}
}

func TestSplitterNodeReverbSendClearsAfterPull(t *testing.T) {
	s := NewSplitterNode("splitter-1", 0.5)
	input := &audiocore.AudioData{
		Buffer: encodeMonoF32([]float32{1}),
		Format: audiocore.AudioFormat{SampleRate: 48000, Channels: 1, Encoding: "pcm_f32le"},
	}
	_, err := s.Process(context.Background(), input)
	require.NoError(t, err)

	first := s.ReverbSend()
	require.NotNil(t, first)
	second := s.ReverbSend()
	assert.Nil(t, second)
}

func TestSplitterNodeZeroSendLevelProducesSilence(t *testing.T) {
	s := NewSplitterNode("splitter-1", 0)
	input := &audiocore.AudioData{
		Buffer: encodeMonoF32([]float32{1, 1, 1}),
		Format: audiocore.AudioFormat{SampleRate: 48000, Channels: 1, Encoding: "pcm_f32le"},
	}
	_, err := s.Process(context.Background(), input)
	require.NoError(t, err)

	send := s.ReverbSend()
	require.NotNil(t, send)
	for _, sample := range decodeMonoF32(send.Buffer) {
		assert.Equal(t, float32(0), sample)
	}
}

func TestSplitterNodeRejectsNilInput(t *testing.T) {
	s := NewSplitterNode("splitter-1", 0.5)
	_, err := s.Process(context.Background(), nil)
	require.Error(t, err)
}
