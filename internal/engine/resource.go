package engine

import (
	"bytes"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"github.com/emberforge/audiocore/internal/audiocore"
	"github.com/emberforge/audiocore/internal/logging"
)

// preloadedAsset is a fully-decoded, in-memory asset registered with the
// decoder layer under its stringified handle.
type preloadedAsset struct {
	pcm *decodedPCM
}

// ResourceManager owns at most one SoundBank at a time and decides, per
// asset, whether it is preloaded into memory or streamed (§4.4). All
// operations are audio-thread only unless noted.
type ResourceManager struct {
	mu sync.Mutex

	bank                     *SoundBank
	bankPath                 string
	editorMode               bool
	streamingThresholdSecs   float64
	assetRoot                string // filesystem fallback root, editor mode only
	backend                  AssetBackend

	preloaded map[uint64]*preloadedAsset
	tracker   *audiocore.ResourceTracker

	logger *slog.Logger
}

// NewResourceManager creates a resource manager. backend is the host's
// AssetBackend fallback (used in editor mode, or when the bank lacks an
// entry and filesystem fallback is available); it may be nil in pure
// runtime-bank deployments.
func NewResourceManager(bankPath string, editorMode bool, streamingThresholdSecs float64, backend AssetBackend) *ResourceManager {
	logger := logging.ForService("audiocore")
	if logger == nil {
		logger = slog.Default()
	}
	if streamingThresholdSecs <= 0 {
		streamingThresholdSecs = DefaultStreamingThresholdSeconds
	}
	return &ResourceManager{
		bankPath:               bankPath,
		editorMode:             editorMode,
		streamingThresholdSecs: streamingThresholdSecs,
		backend:                backend,
		preloaded:              make(map[uint64]*preloadedAsset),
		tracker:                audiocore.NewResourceTracker(),
		logger:                 logger.With("component", "resource_manager"),
	}
}

// Initialize opens the current project's bank if present. A missing bank
// file in editor mode is not an error (the filesystem fallback covers it);
// in runtime mode it is a FatalError.
func (rm *ResourceManager) Initialize() error {
	rm.mu.Lock()
	defer rm.mu.Unlock()

	if rm.bankPath == "" {
		return nil
	}
	if _, err := os.Stat(rm.bankPath); err != nil {
		if rm.editorMode {
			rm.logger.Warn("sound bank not found, continuing in editor filesystem mode", "path", rm.bankPath)
			return nil
		}
		return fatalError(err, "sound bank not found")
	}

	bank, err := OpenSoundBank(rm.bankPath)
	if err != nil {
		return fatalError(err, "sound bank failed to parse")
	}
	rm.bank = bank
	rm.assetRoot = filepath.Dir(rm.bankPath)
	rm.logger.Info("sound bank opened", "path", rm.bankPath)
	return nil
}

// Release unregisters all preloaded blobs and drops the bank.
func (rm *ResourceManager) Release() {
	rm.mu.Lock()
	defer rm.mu.Unlock()
	rm.preloaded = make(map[uint64]*preloadedAsset)
	rm.bank = nil
	if err := rm.tracker.Close(); err != nil {
		rm.logger.Warn("resource tracker close reported leaks", "error", err)
	}
}

// IsStreaming reports duration >= streamingThreshold for the given handle.
// A handle absent from the bank is treated as streaming (nothing to
// preload).
func (rm *ResourceManager) IsStreaming(assetHandle uint64) bool {
	rm.mu.Lock()
	defer rm.mu.Unlock()
	if rm.bank == nil {
		return true
	}
	entry, ok := rm.bank.Lookup(assetHandle)
	if !ok {
		return true
	}
	return entry.Duration >= rm.streamingThresholdSecs
}

// PreloadAudioFile reads the whole blob into memory and registers it under
// the stringified handle when its duration is below streamingThreshold;
// returns false without side effects if the handle is absent from the bank
// or is a streaming asset.
func (rm *ResourceManager) PreloadAudioFile(assetHandle uint64) (bool, error) {
	rm.mu.Lock()
	defer rm.mu.Unlock()

	if rm.bank == nil {
		return false, nil
	}
	entry, ok := rm.bank.Lookup(assetHandle)
	if !ok {
		return false, nil
	}
	if entry.Duration >= rm.streamingThresholdSecs {
		return false, nil
	}

	blob, ok := rm.bank.Blob(assetHandle)
	if !ok {
		return false, nil
	}
	pcm, err := decodeBlob(blob)
	if err != nil {
		return false, err
	}
	rm.preloaded[assetHandle] = &preloadedAsset{pcm: pcm}
	trackID := strconv.FormatUint(assetHandle, 10)
	rm.tracker.Track(trackID, "preloaded_asset", func() {
		rm.mu.Lock()
		delete(rm.preloaded, assetHandle)
		rm.mu.Unlock()
	})
	return true, nil
}

// ReleaseAudioFile is PreloadAudioFile's inverse.
func (rm *ResourceManager) ReleaseAudioFile(assetHandle uint64) {
	rm.mu.Lock()
	delete(rm.preloaded, assetHandle)
	rm.mu.Unlock()

	trackID := strconv.FormatUint(assetHandle, 10)
	if err := rm.tracker.Release(trackID); err != nil {
		rm.logger.Debug("release of untracked asset", "asset_handle", assetHandle, "error", err)
	}
}

// assetReader adapts an in-memory decoded PCM buffer (or a raw blob) to the
// StreamReader interface for playback.
type assetReader struct {
	*bytes.Reader
}

func (r *assetReader) Seek(offset int64, origin SeekOrigin) (int64, error) {
	var whence int
	switch origin {
	case SeekStart:
		whence = 0
	case SeekCurrent:
		whence = 1
	case SeekEnd:
		whence = 2
	}
	return r.Reader.Seek(offset, whence)
}

func (r *assetReader) Tell() (int64, error) {
	return r.Reader.Seek(0, 1)
}

func (r *assetReader) StreamLength() (int64, error) {
	return int64(r.Reader.Len()), nil
}

func (r *assetReader) Close() error { return nil }

// CreateReaderFor returns a reader over preloaded PCM or the bank blob, or
// in editor mode a reader from the host AssetBackend. Returns (nil, nil) for
// a handle that is not present anywhere (§4.4: "a missing handle yields a
// null reader").
func (rm *ResourceManager) CreateReaderFor(assetHandle uint64) (StreamReader, error) {
	rm.mu.Lock()
	defer rm.mu.Unlock()

	if pre, ok := rm.preloaded[assetHandle]; ok {
		buf := pcmToBytes(pre.pcm)
		return &assetReader{bytes.NewReader(buf)}, nil
	}

	if rm.bank != nil {
		if blob, ok := rm.bank.Blob(assetHandle); ok {
			return &assetReader{bytes.NewReader(blob)}, nil
		}
	}

	if rm.editorMode && rm.backend != nil {
		reader, err := rm.backend.CreateReader(assetHandle)
		if err != nil {
			return nil, nil
		}
		return reader, nil
	}

	return nil, nil
}

// pcmToBytes re-serializes decoded float32 PCM back to raw little-endian
// bytes for StreamReader consumers that expect a byte stream.
func pcmToBytes(pcm *decodedPCM) []byte {
	out := make([]byte, len(pcm.samples)*4)
	for i, s := range pcm.samples {
		bits := math.Float32bits(s)
		out[i*4+0] = byte(bits)
		out[i*4+1] = byte(bits >> 8)
		out[i*4+2] = byte(bits >> 16)
		out[i*4+3] = byte(bits >> 24)
	}
	return out
}
