package dsp

import (
	"context"
	"encoding/binary"
	"math"
	"sync"
	"sync/atomic"

	"github.com/emberforge/audiocore/internal/audiocore"
	"github.com/emberforge/audiocore/internal/errors"
)

// SplitterNode is a one-input/two-output DSP node: output 0 is the dry path
// (volume 1, passed through unchanged as the chain's Process return value),
// output 1 is the reverb send, scaled by sendLevel and made available via
// ReverbSend for the master reverb bus to pull once per block.
type SplitterNode struct {
	id        string
	sendLevel atomic.Uint64 // float64 bits

	mu   sync.Mutex
	send *audiocore.AudioData
}

// NewSplitterNode creates a splitter with the given initial reverb send
// level (the sound config's masterReverbSend).
func NewSplitterNode(id string, sendLevel float64) *SplitterNode {
	s := &SplitterNode{id: id}
	s.sendLevel.Store(math.Float64bits(sendLevel))
	return s
}

// SetSendLevel updates the reverb send volume.
func (s *SplitterNode) SetSendLevel(level float64) {
	s.sendLevel.Store(math.Float64bits(level))
}

func (s *SplitterNode) ID() string { return s.id }

func (s *SplitterNode) GetRequiredFormat() *audiocore.AudioFormat { return nil }

func (s *SplitterNode) GetOutputFormat(in audiocore.AudioFormat) audiocore.AudioFormat { return in }

// Process passes the dry path through unchanged and stashes a gain-scaled
// copy for the reverb bus to collect via ReverbSend.
func (s *SplitterNode) Process(ctx context.Context, input *audiocore.AudioData) (*audiocore.AudioData, error) {
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

	level := math.Float64frombits(s.sendLevel.Load())

	sendBuf := make([]byte, len(input.Buffer))
	if level == 0 {
		// silence; nothing for the reverb bus to add this block
	} else if input.Format.Encoding == "pcm_f32le" {
		for i := 0; i+3 < len(input.Buffer); i += 4 {
			bits := binary.LittleEndian.Uint32(input.Buffer[i : i+4])
			sample := float64(math.Float32frombits(bits)) * level
			binary.LittleEndian.PutUint32(sendBuf[i:i+4], math.Float32bits(float32(sample)))
		}
	} else {
		copy(sendBuf, input.Buffer)
	}

	send := &audiocore.AudioData{
		Buffer:    sendBuf,
		Format:    input.Format,
		Timestamp: input.Timestamp,
		Duration:  input.Duration,
		SourceID:  input.SourceID,
	}

	s.mu.Lock()
	s.send = send
	s.mu.Unlock()

	return input, nil
}

// ReverbSend returns (and clears) the most recently produced reverb-send
// buffer, for the master reverb bus to pull once per block.
func (s *SplitterNode) ReverbSend() *audiocore.AudioData {
	s.mu.Lock()
	defer s.mu.Unlock()
	send := s.send
	s.send = nil
	return send
}
