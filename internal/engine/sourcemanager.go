package engine

import (
	"log/slog"
	"strconv"
	"sync"

	"github.com/emberforge/audiocore/internal/audiocore"
	"github.com/emberforge/audiocore/internal/dsp"
	"github.com/emberforge/audiocore/internal/logging"
)

// voiceChain is a voice's complete per-instance DSP chain: the decoded/
// streaming data source feeding a filter stage, a splitter for the reverb
// send, and (when spatialization is enabled) a VBAP spatializer node
// between the dry output and wherever that output was previously routed.
type voiceChain struct {
	reader      StreamReader
	filter      *dsp.FilterNode
	splitter    *dsp.SplitterNode
	spatializer *dsp.SpatializerNode // nil unless spatializationEnabled
	chain       audiocore.ProcessorChain
}

// SourceManager creates and tears down the per-voice DSP chain (§4.8). It
// owns a free-id queue isomorphic to the voice pool's, but in this
// implementation the voice pool's SourceId is reused directly as the
// source manager's key, since both are dense [0,N) slot spaces over the
// same pool.
type SourceManager struct {
	mu         sync.Mutex
	resources  *ResourceManager
	sampleRate float64

	chains map[SourceId]*voiceChain

	logger *slog.Logger
}

// NewSourceManager creates a source manager backed by the given resource
// manager and running at sampleRate.
func NewSourceManager(resources *ResourceManager, sampleRate float64) *SourceManager {
	logger := logging.ForService("audiocore")
	if logger == nil {
		logger = slog.Default()
	}
	return &SourceManager{
		resources:  resources,
		sampleRate: sampleRate,
		chains:     make(map[SourceId]*voiceChain),
		logger:     logger.With("component", "source_manager"),
	}
}

// InitializeSource builds sourceId's DSP chain from soundConfig. Returns
// false (no error) if the data source fails to open — per §4.11, the
// caller must release the source and mark the Play Action handled (not
// live) with no retry.
func (sm *SourceManager) InitializeSource(sourceId SourceId, config SoundConfig) (bool, error) {
	reader, err := sm.resources.CreateReaderFor(config.AssetHandle)
	if err != nil {
		return false, err
	}
	if reader == nil {
		return false, nil
	}

	filter := dsp.NewFilterNode(chainNodeID(sourceId, "filter"), sm.sampleRate)
	filter.SetLowPass(config.LPFilterValue)
	filter.SetHighPass(config.HPFilterValue)

	splitter := dsp.NewSplitterNode(chainNodeID(sourceId, "splitter"), config.MasterReverbSend)

	chain := audiocore.NewProcessorChain()
	_ = chain.AddProcessor(filter)
	_ = chain.AddProcessor(splitter)

	vc := &voiceChain{
		reader:   reader,
		filter:   filter,
		splitter: splitter,
		chain:    chain,
	}

	if config.SpatializationEnabled {
		spat := dsp.NewSpatializerNode(chainNodeID(sourceId, "spatializer"), config.Spatialization.toDSP())
		_ = chain.AddProcessor(spat)
		vc.spatializer = spat
	}

	sm.mu.Lock()
	sm.chains[sourceId] = vc
	sm.mu.Unlock()

	return true, nil
}

// ReleaseSource tears down sourceId's chain in reverse order.
func (sm *SourceManager) ReleaseSource(sourceId SourceId) {
	sm.mu.Lock()
	vc, ok := sm.chains[sourceId]
	delete(sm.chains, sourceId)
	sm.mu.Unlock()

	if !ok {
		return
	}
	if vc.reader != nil {
		_ = vc.reader.Close()
	}
}

// Chain returns sourceId's voice chain, or nil if none is initialized.
func (sm *SourceManager) Chain(sourceId SourceId) *voiceChain {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	return sm.chains[sourceId]
}

func chainNodeID(sourceId SourceId, stage string) string {
	return "voice-" + strconv.Itoa(int(sourceId)) + "-" + stage
}
