package engine

import (
	"context"
	"encoding/binary"
	"io"
	"math"

	"github.com/emberforge/audiocore/internal/audiocore"
)

const mixerChannels = 2

// Render pulls frameCount frames from every active voice, runs each through
// its DSP chain, accumulates the first two channels of each chain's output
// (mono is duplicated to both) plus the reverb send, mixes in the reverb
// return, and writes interleaved f32le stereo into out. out must be at
// least frameCount*2*4 bytes. This is the function a playback device
// callback calls once per block. It is not allocation-free: the send
// accumulator is allocated per call and the DSP nodes allocate per voice;
// only the raw read and send byte buffers come from the BufferPool.
func (e *Engine) Render(out []byte, frameCount int) error {
	need := frameCount * mixerChannels * 4
	if len(out) < need {
		return stateError("render buffer too small for frame count")
	}
	for i := range out[:need] {
		out[i] = 0
	}

	sendBuf := make([]float32, frameCount*mixerChannels)

	for _, sid := range e.voices.ActiveIds() {
		v := e.voices.Voice(sid)
		if v == nil || v.PlayState != StatePlaying || v.chain == nil {
			continue
		}
		e.renderVoice(v, frameCount, out, sendBuf)
	}

	reverbOut := &audiocore.AudioData{
		Buffer: out[:need],
		Format: audiocore.AudioFormat{SampleRate: int(e.cfg.SampleRate), Channels: mixerChannels, Encoding: "pcm_f32le"},
	}
	sendBuffer := e.buffers.Get(len(sendBuf) * 4)
	defer sendBuffer.Release()
	sendBytes := sendBuffer.Data()
	for i, s := range sendBuf {
		binary.LittleEndian.PutUint32(sendBytes[i*4:], math.Float32bits(s))
	}
	sendData := &audiocore.AudioData{Buffer: sendBytes, Format: reverbOut.Format}
	e.reverb.ProcessMix(sendData, reverbOut)

	return nil
}

// renderVoice reads one block from a voice's data source, runs it through
// the voice's chain, and additively mixes the dry output (first two
// channels, see frameSample) plus the reverb send into out/sendBuf.
func (e *Engine) renderVoice(v *Voice, frameCount int, out []byte, sendBuf []float32) {
	vc := v.chain
	rawBuffer := e.buffers.Get(frameCount * mixerChannels * 4)
	defer rawBuffer.Release()
	raw := rawBuffer.Data()
	n, err := io.ReadFull(vc.reader, raw)
	if n == 0 {
		if err != nil {
			v.Finished = true
		}
		return
	}
	if err != nil {
		v.Finished = true
	}
	raw = raw[:n-(n%((mixerChannels)*4))]

	input := &audiocore.AudioData{
		Buffer: raw,
		Format: audiocore.AudioFormat{SampleRate: int(e.cfg.SampleRate), Channels: mixerChannels, Encoding: "pcm_f32le"},
	}

	processed, perr := vc.chain.Process(context.Background(), input)
	if perr != nil {
		e.logger.Warn("voice chain process error", "source_id", v.SourceId, "error", perr)
		return
	}

	frames := len(processed.Buffer) / 4 / processed.Format.Channels
	vol := float32(v.CurrentVolume)

	for f := 0; f < frames && f < frameCount; f++ {
		l, r := frameSample(processed, f)
		mixAdd(out, f, 0, l*vol)
		mixAdd(out, f, 1, r*vol)
	}

	if vc.splitter != nil {
		if send := vc.splitter.ReverbSend(); send != nil {
			sf := len(send.Buffer) / 4 / send.Format.Channels
			for f := 0; f < sf && f < frameCount; f++ {
				l, r := frameSample(send, f)
				idx := f * mixerChannels
				sendBuf[idx] += l
				sendBuf[idx+1] += r
			}
		}
	}
}

// frameSample reads frame f as (left, right) float32, downmixing mono or
// taking the first two channels of a wider bus (e.g. the spatializer's
// quad output, pre-downmix — a full quad-to-stereo pan is left to the
// device backend per §9's deliberately narrow internal bus scope).
func frameSample(data *audiocore.AudioData, f int) (float32, float32) {
	ch := data.Format.Channels
	base := f * ch * 4
	if base+4 > len(data.Buffer) {
		return 0, 0
	}
	l := math.Float32frombits(binary.LittleEndian.Uint32(data.Buffer[base:]))
	if ch < 2 {
		return l, l
	}
	r := math.Float32frombits(binary.LittleEndian.Uint32(data.Buffer[base+4:]))
	return l, r
}

func mixAdd(out []byte, frame, channel int, sample float32) {
	idx := (frame*mixerChannels + channel) * 4
	if idx+4 > len(out) {
		return
	}
	existing := math.Float32frombits(binary.LittleEndian.Uint32(out[idx:]))
	binary.LittleEndian.PutUint32(out[idx:], math.Float32bits(existing+sample))
}
