package engine

import (
	"bytes"
	"encoding/binary"
	"io"
	"os"

	"github.com/go-audio/wav"
	flacdec "github.com/tphakala/flac"

	"github.com/emberforge/audiocore/internal/errors"
)

// BankEntry is one table-of-contents record in a sound bank file (§6).
type BankEntry struct {
	AssetHandle uint64
	Offset      uint64
	FileSize    uint64
	Duration    float64
	SampleRate  uint32
	Channels    uint16
}

// SoundBank is a single packaged blob combining a TOC and a concatenated
// data section, read into memory once at Open.
type SoundBank struct {
	toc  map[uint64]BankEntry
	data []byte
}

const hsbMagic = "HSB1"

// OpenSoundBank parses path (conventionally "SoundBank.hsb") and validates
// that the TOC parses and every offset is in-range, per §6.
func OpenSoundBank(path string) (*SoundBank, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, resourceError(0, "sound bank file not readable: "+err.Error())
	}
	return parseSoundBank(raw)
}

func parseSoundBank(raw []byte) (*SoundBank, error) {
	r := bytes.NewReader(raw)

	magic := make([]byte, 4)
	if _, err := io.ReadFull(r, magic); err != nil || string(magic) != hsbMagic {
		return nil, resourceError(0, "sound bank magic mismatch or truncated header")
	}

	var count uint32
	if err := binary.Read(r, binary.LittleEndian, &count); err != nil {
		return nil, resourceError(0, "sound bank TOC count truncated")
	}

	toc := make(map[uint64]BankEntry, count)
	for i := uint32(0); i < count; i++ {
		var entry struct {
			AssetHandle uint64
			Offset      uint64
			FileSize    uint64
			Duration    float64
			SampleRate  uint32
			Channels    uint16
		}
		if err := binary.Read(r, binary.LittleEndian, &entry); err != nil {
			return nil, resourceError(0, "sound bank TOC record truncated")
		}
		if entry.Offset+entry.FileSize > uint64(len(raw)) {
			return nil, resourceError(entry.AssetHandle, "sound bank TOC entry offset out of range")
		}
		toc[entry.AssetHandle] = BankEntry{
			AssetHandle: entry.AssetHandle,
			Offset:      entry.Offset,
			FileSize:    entry.FileSize,
			Duration:    entry.Duration,
			SampleRate:  entry.SampleRate,
			Channels:    entry.Channels,
		}
	}

	return &SoundBank{toc: toc, data: raw}, nil
}

// Lookup returns the TOC entry for an asset handle.
func (b *SoundBank) Lookup(assetHandle uint64) (BankEntry, bool) {
	entry, ok := b.toc[assetHandle]
	return entry, ok
}

// Blob returns the raw encoded bytes for an asset handle.
func (b *SoundBank) Blob(assetHandle uint64) ([]byte, bool) {
	entry, ok := b.toc[assetHandle]
	if !ok {
		return nil, false
	}
	return b.data[entry.Offset : entry.Offset+entry.FileSize], true
}

// decodedPCM holds fully-decoded interleaved float32 PCM plus its format,
// produced by decodeBlob for preloaded (non-streaming) assets.
type decodedPCM struct {
	samples    []float32
	sampleRate int
	channels   int
}

// decodeBlob sniffs a bank blob's container and decodes it to interleaved
// float32 PCM via go-audio/wav or tphakala/flac.
func decodeBlob(blob []byte) (*decodedPCM, error) {
	if len(blob) >= 4 && string(blob[0:4]) == "RIFF" {
		dec := wav.NewDecoder(bytes.NewReader(blob))
		buf, err := dec.FullPCMBuffer()
		if err != nil {
			return nil, errors.New(err).
				Component(ComponentResource).
				Category(errors.CategoryFileParsing).
				Context("container", "wav").
				Build()
		}
		samples := make([]float32, len(buf.Data))
		for i, s := range buf.Data {
			samples[i] = float32(s) / 32768.0
		}
		return &decodedPCM{
			samples:    samples,
			sampleRate: buf.Format.SampleRate,
			channels:   buf.Format.NumChannels,
		}, nil
	}

	if len(blob) >= 4 && string(blob[0:4]) == "fLaC" {
		stream, err := flacdec.New(bytes.NewReader(blob))
		if err != nil {
			return nil, errors.New(err).
				Component(ComponentResource).
				Category(errors.CategoryFileParsing).
				Context("container", "flac").
				Build()
		}
		var samples []float32
		channels := int(stream.Info.NChannels)
		for {
			frame, err := stream.ParseNext()
			if err == io.EOF {
				break
			}
			if err != nil {
				return nil, errors.New(err).
					Component(ComponentResource).
					Category(errors.CategoryFileParsing).
					Context("container", "flac").
					Context("error", "frame decode failed").
					Build()
			}
			for i := 0; i < int(frame.BlockSize); i++ {
				for ch := 0; ch < channels; ch++ {
					samples = append(samples, float32(frame.Subframes[ch].Samples[i])/float32(int32(1)<<uint(stream.Info.BitsPerSample-1)))
				}
			}
		}
		return &decodedPCM{samples: samples, sampleRate: int(stream.Info.SampleRate), channels: channels}, nil
	}

	return nil, errors.New(nil).
		Component(ComponentResource).
		Category(errors.CategoryFileParsing).
		Context("error", "unrecognized audio container (expected RIFF/WAV or fLaC)").
		Build()
}
