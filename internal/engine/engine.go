package engine

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/emberforge/audiocore/internal/audiocore"
	"github.com/emberforge/audiocore/internal/dsp"
	"github.com/emberforge/audiocore/internal/logging"
)

// Config bundles the construction-time parameters for an Engine.
type Config struct {
	VoicePoolSize          int
	SampleRate             float64
	BankPath               string
	EditorMode             bool
	StreamingThresholdSecs float64
	AssetBackend           AssetBackend
	Registry               prometheus.Registerer // nil disables prometheus export
	ReverbParams           dsp.ReverbParams
	BufferPoolConfig       audiocore.BufferPoolConfig // zero value gets render-block-sized defaults
}

// defaultBufferPoolConfig sizes the mixer's recycled scratch buffers for
// typical block lengths: small covers one voice's per-block read buffer,
// medium covers the master send/mix scratch at larger block sizes.
func defaultBufferPoolConfig() audiocore.BufferPoolConfig {
	return audiocore.BufferPoolConfig{
		SmallBufferSize:   16 * 1024,
		MediumBufferSize:  64 * 1024,
		LargeBufferSize:   256 * 1024,
		MaxBuffersPerSize: 64,
	}
}

// Engine is the audio engine hub (§4.10): it owns the resource manager,
// source manager, events manager, voice pool, listener, object-data
// snapshot, and reverb bus, and runs on the audio thread.
type Engine struct {
	cfg Config

	thread    *AudioThread
	registry  *CommandRegistry
	voices    *VoicePool
	resources *ResourceManager
	sources   *SourceManager
	events    *EventsManager
	listener  *Listener
	reverb    *dsp.ReverbBus
	stats     *statsCollector
	buffers   audiocore.BufferPool

	// snapshot is the ObjectState publication point: producer = game
	// thread, consumer = audio thread, guarded by snapshotMu (§5).
	snapshotMu sync.Mutex
	snapshot   map[ObjectId]ObjectState
	pending    bool

	// objectEvents tracks which events are active per object, for
	// hasActiveEvents / stopActiveSound / pauseActiveSound / resume.
	objectEvents map[ObjectId]map[EventId]struct{}
	bookkeepMu   sync.Mutex

	voiceFinishedMu sync.Mutex
	voiceFinished   []func(sourceId SourceId)

	logger *slog.Logger
}

// NewEngine constructs an engine with all subsystems wired together; call
// Initialize before Start to open the sound bank.
func NewEngine(cfg Config) *Engine {
	if cfg.VoicePoolSize <= 0 {
		cfg.VoicePoolSize = DefaultVoicePoolSize
	}
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = DefaultSampleRate
	}
	if cfg.BufferPoolConfig.SmallBufferSize == 0 {
		cfg.BufferPoolConfig = defaultBufferPoolConfig()
	}

	logger := logging.ForService("audiocore")
	if logger == nil {
		logger = slog.Default()
	}

	e := &Engine{
		cfg:          cfg,
		registry:     NewCommandRegistry(),
		voices:       NewVoicePool(cfg.VoicePoolSize),
		resources:    NewResourceManager(cfg.BankPath, cfg.EditorMode, cfg.StreamingThresholdSecs, cfg.AssetBackend),
		listener:     newListener(),
		reverb:       dsp.NewReverbBus(cfg.SampleRate, cfg.ReverbParams),
		stats:        newStatsCollector(cfg.Registry),
		buffers:      audiocore.NewBufferPool(cfg.BufferPoolConfig),
		snapshot:     make(map[ObjectId]ObjectState),
		objectEvents: make(map[ObjectId]map[EventId]struct{}),
		logger:       logger.With("component", "engine"),
	}
	e.sources = NewSourceManager(e.resources, cfg.SampleRate)
	e.events = NewEventsManager(e.buildActionHandlers(), e.onEventFinished)
	e.thread = NewAudioThread(e.update)
	return e
}

// Initialize opens the sound bank. Returns a FatalError on device/bank
// failure per §7; the caller decides whether to continue without audio.
func (e *Engine) Initialize() error {
	return e.resources.Initialize()
}

// Start launches the audio thread at the given fixed tick interval
// (typically the device's natural block period).
func (e *Engine) Start(tickInterval time.Duration) {
	e.thread.Start(tickInterval)
}

// Stop drains the job queue once and joins the audio thread (§5).
func (e *Engine) Stop() {
	e.thread.Stop()
	e.resources.Release()
}

// RegisterCommand adds a Trigger/Switch/State/Parameter definition to the
// command registry.
func (e *Engine) RegisterCommand(name string, def CommandDefinition) (CommandId, error) {
	return e.registry.Add(name, def)
}

// --- Public playback API (callable from any thread; marshals to the audio thread) ---

// PostTrigger resolves commandId, registers a new event, and schedules its
// processing on the audio thread. Returns InvalidEventId on an
// AuthoringError (unknown commandId, or objectId==0).
func (e *Engine) PostTrigger(commandId CommandId, objectId ObjectId) EventId {
	if objectId == InvalidObjectId {
		e.logger.Error("PostTrigger with objectId==0", "command_id", commandId)
		return InvalidEventId
	}
	if commandId == InvalidCommandId {
		e.logger.Error("PostTrigger with commandId==0")
		return InvalidEventId
	}

	def, ok := e.registry.Lookup(commandId)
	if !ok {
		e.logger.Error("PostTrigger with unknown commandId", "command_id", commandId)
		return InvalidEventId
	}
	if def.Kind != CommandTrigger {
		e.registry.logNotImplemented(def.Kind, def.Name)
		return InvalidEventId
	}

	// each posted execution gets its own Action slice copy so concurrent
	// executions of the same Trigger don't share mutable handled state.
	actions := make([]Action, len(def.Trigger.Actions))
	copy(actions, def.Trigger.Actions)
	cmd := &TriggerCommand{Name: def.Trigger.Name, Actions: actions}

	info := e.events.RegisterEvent(commandId, objectId, cmd)

	e.bookkeepMu.Lock()
	if e.objectEvents[objectId] == nil {
		e.objectEvents[objectId] = make(map[EventId]struct{})
	}
	e.objectEvents[objectId][info.EventId] = struct{}{}
	e.bookkeepMu.Unlock()

	e.thread.PostJob(func() {
		e.events.EnqueuePostTrigger(info)
	}, "post_trigger")

	return info.EventId
}

// HasActiveEvents reports whether objectId currently owns any registered
// event.
func (e *Engine) HasActiveEvents(objectId ObjectId) bool {
	e.bookkeepMu.Lock()
	defer e.bookkeepMu.Unlock()
	return len(e.objectEvents[objectId]) > 0
}

// StopActiveSound stops every event owned by objectId.
func (e *Engine) StopActiveSound(objectId ObjectId) {
	for _, id := range e.objectEventIds(objectId) {
		e.StopEvent(id)
	}
}

// PauseActiveSound pauses every event owned by objectId.
func (e *Engine) PauseActiveSound(objectId ObjectId) {
	for _, id := range e.objectEventIds(objectId) {
		e.PauseEvent(id)
	}
}

// ResumeActiveSound resumes every event owned by objectId.
func (e *Engine) ResumeActiveSound(objectId ObjectId) {
	for _, id := range e.objectEventIds(objectId) {
		e.ResumeEvent(id)
	}
}

func (e *Engine) objectEventIds(objectId ObjectId) []EventId {
	e.bookkeepMu.Lock()
	defer e.bookkeepMu.Unlock()
	ids := make([]EventId, 0, len(e.objectEvents[objectId]))
	for id := range e.objectEvents[objectId] {
		ids = append(ids, id)
	}
	return ids
}

// StopEvent stops the given event's voices.
func (e *Engine) StopEvent(eventId EventId) {
	e.thread.PostJob(func() {
		info, ok := e.events.Lookup(eventId)
		if !ok {
			return
		}
		e.handlers().StopAll(info.ObjectId, false)
	}, "stop_event")
}

// PauseEvent pauses the given event's voices.
func (e *Engine) PauseEvent(eventId EventId) {
	e.thread.PostJob(func() {
		info, ok := e.events.Lookup(eventId)
		if !ok {
			return
		}
		e.handlers().PauseAll(info.ObjectId, false)
	}, "pause_event")
}

// ResumeEvent resumes the given event's voices.
func (e *Engine) ResumeEvent(eventId EventId) {
	e.thread.PostJob(func() {
		info, ok := e.events.Lookup(eventId)
		if !ok {
			return
		}
		e.handlers().ResumeAll(info.ObjectId, false)
	}, "resume_event")
}

// SetLowPassFilter/SetHighPassFilter update a single voice's filter stage.
// target selects by object (every active voice owned by objectId) when
// eventId==InvalidEventId, otherwise by the event's active sources.
func (e *Engine) SetLowPassFilter(objectId ObjectId, eventId EventId, v float64) {
	e.forEachTargetVoice(objectId, eventId, func(vc *voiceChain) {
		if vc != nil && vc.filter != nil {
			vc.filter.SetLowPass(v)
		}
	})
}

// SetHighPassFilter is the high-pass counterpart; unlike the flagged source
// bug (§9), this always routes to the high-pass stage.
func (e *Engine) SetHighPassFilter(objectId ObjectId, eventId EventId, v float64) {
	e.forEachTargetVoice(objectId, eventId, func(vc *voiceChain) {
		if vc != nil && vc.filter != nil {
			vc.filter.SetHighPass(v)
		}
	})
}

func (e *Engine) forEachTargetVoice(objectId ObjectId, eventId EventId, fn func(*voiceChain)) {
	e.thread.PostJob(func() {
		if eventId != InvalidEventId {
			info, ok := e.events.Lookup(eventId)
			if !ok {
				return
			}
			for _, sid := range info.ActiveSources {
				fn(e.sources.Chain(sid))
			}
			return
		}
		for _, sid := range e.voices.ActiveIds() {
			v := e.voices.Voice(sid)
			if v != nil && v.OwningObject == objectId {
				fn(e.sources.Chain(sid))
			}
		}
	}, "set_filter")
}

// UpdateListenerPosition/Velocity/ConeAttenuation publish new listener state,
// consumed at the start of the next tick (§4.10 step 3).
func (e *Engine) UpdateListenerPosition(t Transform) { e.listener.setPosition(t) }
func (e *Engine) UpdateListenerVelocity(v Vec3)      { e.listener.setVelocity(v) }
func (e *Engine) UpdateListenerConeAttenuation(inner, outer, outerGain float64) {
	e.listener.setConeAttenuation(inner, outer, outerGain)
}

// SubmitSourceUpdateData bulk-publishes per-object transforms, velocities,
// and volume/pitch multipliers for the next audio tick.
func (e *Engine) SubmitSourceUpdateData(updates []SourceUpdateData) {
	snap := make(map[ObjectId]ObjectState, len(updates))
	for _, u := range updates {
		snap[u.ObjectId] = ObjectState{
			Transform: u.Transform,
			Velocity:  u.Velocity,
			Volume:    u.VolumeMultiplier,
			Pitch:     u.PitchMultiplier,
		}
	}
	e.snapshotMu.Lock()
	e.snapshot = snap
	e.pending = true
	e.snapshotMu.Unlock()
}

// OnVoiceFinished registers a diagnostic hook invoked for every voice that
// naturally ends, supplementing the per-event onSourceFinished dispatch.
func (e *Engine) OnVoiceFinished(fn func(sourceId SourceId)) {
	e.voiceFinishedMu.Lock()
	e.voiceFinished = append(e.voiceFinished, fn)
	e.voiceFinishedMu.Unlock()
}

// Stats returns the most recently published telemetry snapshot.
func (e *Engine) Stats() Stats { return e.stats.snapshot() }

// Fence blocks until every job enqueued before this call has executed.
func (e *Engine) Fence(ctx context.Context) error { return e.thread.Fence(ctx) }

func (e *Engine) onEventFinished(eventId EventId, objectId ObjectId) {
	e.bookkeepMu.Lock()
	if m, ok := e.objectEvents[objectId]; ok {
		delete(m, eventId)
		if len(m) == 0 {
			delete(e.objectEvents, objectId)
		}
	}
	e.bookkeepMu.Unlock()
}

func (e *Engine) handlers() ActionHandlers { return e.events.handlers }

// --- per-tick update (§4.10) ---

func (e *Engine) update(dt time.Duration) {
	e.events.Update(dt)
	e.updateListener()
	e.updateSources()
	e.startPendingVoices()
	e.tickVoices(dt)
	e.releaseFinishedVoices()
	e.publishStats(dt)
}

func (e *Engine) updateListener() {
	if _, changed := e.listener.consumeIfChanged(); !changed {
		return
	}
	listenerState := e.listener.snapshot()
	for _, sid := range e.voices.ActiveIds() {
		v := e.voices.Voice(sid)
		if v == nil || v.chain == nil || v.chain.spatializer == nil {
			continue
		}
		objState, ok := e.snapshot[v.OwningObject]
		if !ok {
			continue
		}
		v.chain.spatializer.UpdateSourcePosition(objState.Transform, objState.Velocity, listenerState)
	}
}

func (e *Engine) updateSources() {
	e.snapshotMu.Lock()
	if !e.pending {
		e.snapshotMu.Unlock()
		return
	}
	snap := e.snapshot
	e.pending = false
	e.snapshotMu.Unlock()

	listenerState := e.listener.snapshot()
	for _, sid := range e.voices.ActiveIds() {
		v := e.voices.Voice(sid)
		if v == nil {
			continue
		}
		objState, ok := snap[v.OwningObject]
		if !ok {
			continue
		}
		v.CurrentVolume = v.SoundConfig.VolumeMultiplier * objState.Volume
		v.CurrentPitch = v.SoundConfig.PitchMultiplier * objState.Pitch
		if v.chain != nil && v.chain.spatializer != nil {
			v.chain.spatializer.UpdateSourcePosition(objState.Transform, objState.Velocity, listenerState)
		}
	}
}

func (e *Engine) startPendingVoices() {
	for _, sid := range e.voices.ActiveIds() {
		v := e.voices.Voice(sid)
		if v != nil && v.PlayState == StateStarting {
			v.PlayState = StatePlaying
		}
	}
}

func (e *Engine) tickVoices(dt time.Duration) {
	for _, sid := range e.voices.ActiveIds() {
		v := e.voices.Voice(sid)
		if v == nil {
			continue
		}
		e.tickVoiceFade(v, dt)
	}
}

func (e *Engine) tickVoiceFade(v *Voice, dt time.Duration) {
	switch v.PlayState {
	case StateStopping, StatePausing:
		v.StopFadeRemaining -= dt
		if v.StopFadeRemaining <= 0 {
			if v.PlayState == StatePausing {
				v.PlayState = StatePaused
			} else {
				v.PlayState = StateStopped
				v.Finished = true
			}
		}
	}
}

func (e *Engine) releaseFinishedVoices() {
	for _, sid := range e.voices.ActiveIds() {
		v := e.voices.Voice(sid)
		if v == nil || !v.Finished {
			continue
		}
		eventId, sourceId := v.InvokerEvent, v.SourceId
		e.sources.ReleaseSource(sourceId)
		e.voices.Release(sourceId)
		e.events.OnSourceFinished(eventId, sourceId)
		e.notifyVoiceFinished(sourceId)
	}
}

func (e *Engine) notifyVoiceFinished(sourceId SourceId) {
	e.voiceFinishedMu.Lock()
	hooks := append([]func(SourceId){}, e.voiceFinished...)
	e.voiceFinishedMu.Unlock()
	for _, h := range hooks {
		h(sourceId)
	}
}

func (e *Engine) publishStats(dt time.Duration) {
	e.bookkeepMu.Lock()
	objCount := len(e.objectEvents)
	evtCount := 0
	for _, m := range e.objectEvents {
		evtCount += len(m)
	}
	e.bookkeepMu.Unlock()

	e.stats.publish(Stats{
		AudioObjects: objCount,
		ActiveEvents: evtCount,
		ActiveSounds: e.voices.ActiveCount(),
		TotalSources: e.voices.Size(),
		FrameTime:    e.thread.LastTickDuration(),
	})
}

// buildActionHandlers wires the action dispatch table to this engine's own
// subsystems (§9: delegates owned by the hub, passed by reference).
func (e *Engine) buildActionHandlers() ActionHandlers {
	return ActionHandlers{
		StartPlayback: e.startPlayback,
		Pause:         e.pauseTargeted,
		Resume:        e.resumeTargeted,
		Stop:          e.stopTargeted,
		PauseAll:      e.pauseAllTargeted,
		ResumeAll:     e.resumeAllTargeted,
		StopAll:       e.stopAllTargeted,
		Break:         e.breakEvent,
		ReleaseEnvelope: e.releaseEnvelope,
	}
}

// startPlayback implements the Play action handler (§4.9, §4.11). It always
// allocates a new voice (evicting if necessary) and initializes its DSP
// chain; a voice already playing for the same object+config is neither
// stopped nor restarted.
func (e *Engine) startPlayback(objectId ObjectId, eventId EventId, target *SoundConfig) (SourceId, bool) {
	sourceId, err := e.voices.Allocate()
	if err != nil {
		e.logger.Warn("Play action failed: no free slot", "object_id", objectId, "error", err)
		return InvalidSourceId, false
	}

	ok, ierr := e.sources.InitializeSource(sourceId, *target)
	if ierr != nil || !ok {
		e.voices.Release(sourceId)
		e.logger.Warn("Play action failed: data source did not open", "object_id", objectId, "asset_handle", target.AssetHandle)
		return InvalidSourceId, false
	}

	v := e.voices.Voice(sourceId)
	v.OwningObject = objectId
	v.InvokerEvent = eventId
	v.SoundConfig = *target
	v.PlayState = StateStarting
	v.CurrentVolume = target.VolumeMultiplier
	v.CurrentPitch = target.PitchMultiplier
	v.Priority = target.Priority
	v.chain = e.sources.Chain(sourceId)

	return sourceId, true
}

func (e *Engine) voicesForTarget(objectId ObjectId, global bool, target *SoundConfig) []*Voice {
	var out []*Voice
	for _, sid := range e.voices.ActiveIds() {
		v := e.voices.Voice(sid)
		if v == nil {
			continue
		}
		if !global && v.OwningObject != objectId {
			continue
		}
		if target != nil && v.SoundConfig.AssetHandle != target.AssetHandle {
			continue
		}
		out = append(out, v)
	}
	return out
}

func (e *Engine) stopTargeted(objectId ObjectId, ctx ActionContext, target *SoundConfig) {
	for _, v := range e.voicesForTarget(objectId, ctx == ContextGlobal, target) {
		e.beginStop(v)
	}
}

func (e *Engine) stopAllTargeted(objectId ObjectId, global bool) {
	for _, v := range e.voicesForTarget(objectId, global, nil) {
		e.beginStop(v)
	}
}

func (e *Engine) beginStop(v *Voice) {
	switch v.PlayState {
	case StateStarting:
		v.PlayState = StateStopping
		v.StopFadeRemaining = 0
	case StatePlaying:
		v.PlayState = StateStopping
		v.StopFadeRemaining = StopPauseFadeDuration
	}
}

func (e *Engine) pauseTargeted(objectId ObjectId, ctx ActionContext, target *SoundConfig) {
	for _, v := range e.voicesForTarget(objectId, ctx == ContextGlobal, target) {
		e.beginPause(v)
	}
}

func (e *Engine) pauseAllTargeted(objectId ObjectId, global bool) {
	for _, v := range e.voicesForTarget(objectId, global, nil) {
		e.beginPause(v)
	}
}

func (e *Engine) beginPause(v *Voice) {
	if v.PlayState == StatePlaying {
		v.PlayState = StatePausing
		v.StopFadeRemaining = StopPauseFadeDuration
	}
}

// resumeTargeted resumes matched voices; returns true if any matched voice
// is still mid-pause-fade (Pausing), signalling the caller to retry next
// tick per §4.9.
func (e *Engine) resumeTargeted(objectId ObjectId, ctx ActionContext, target *SoundConfig) bool {
	return e.resumeVoices(e.voicesForTarget(objectId, ctx == ContextGlobal, target))
}

func (e *Engine) resumeAllTargeted(objectId ObjectId, global bool) bool {
	return e.resumeVoices(e.voicesForTarget(objectId, global, nil))
}

func (e *Engine) resumeVoices(voices []*Voice) bool {
	stillPausing := false
	for _, v := range voices {
		switch v.PlayState {
		case StatePausing:
			// Resume during the 28ms pause-fade: the voice is left
			// fading and reported, so the caller retries once it is
			// Paused.
			stillPausing = true
		case StatePaused:
			v.PlayState = StateStarting
		}
	}
	return stillPausing
}

func (e *Engine) breakEvent(eventId EventId) {
	info, ok := e.events.Lookup(eventId)
	if !ok {
		return
	}
	for _, sid := range info.ActiveSources {
		v := e.voices.Voice(sid)
		if v != nil {
			e.beginStop(v)
		}
	}
}

func (e *Engine) releaseEnvelope(eventId EventId) {
	// Envelope-release semantics live on the voice's amplitude envelope,
	// outside this package's scope (§4.9); nothing further to do here
	// beyond having dispatched the action.
}
