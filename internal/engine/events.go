package engine

import (
	"log/slog"
	"sync"
	"time"

	"github.com/emberforge/audiocore/internal/logging"
)

// ActionHandlers is the function-pointer table the events manager calls
// into to perform real work; it is built once by the engine hub at
// construction and breaks the engine-hub/events-manager/source-manager
// cyclic reference (§9) by routing upward calls through delegates instead
// of back-pointers.
type ActionHandlers struct {
	StartPlayback func(objectId ObjectId, eventId EventId, target *SoundConfig) (SourceId, bool)

	// Pause/Resume/Stop with Context==Object act on objectId's voices for
	// target; Context==Global acts on every object's voices for target.
	Pause func(objectId ObjectId, ctx ActionContext, target *SoundConfig)
	Resume func(objectId ObjectId, ctx ActionContext, target *SoundConfig) (stillPausing bool)
	Stop   func(objectId ObjectId, ctx ActionContext, target *SoundConfig)

	PauseAll  func(objectId ObjectId, global bool)
	ResumeAll func(objectId ObjectId, global bool) (stillPausing bool)
	StopAll   func(objectId ObjectId, global bool)

	Break            func(eventId EventId)
	ReleaseEnvelope  func(eventId EventId)
}

type queuedCommand struct {
	kind CommandKind
	info *EventInfo
}

// EventsManager is single-threaded (audio thread). It holds the pending
// command FIFO and the event registry (§4.9).
type EventsManager struct {
	// registryMu guards eventRegistry and the allocator only; they are the
	// only pieces touched from outside the audio thread (registerEvent).
	registryMu sync.Mutex
	allocator  *eventIdAllocator
	registry   map[EventId]*EventInfo

	// queue is audio-thread only.
	queue []queuedCommand

	handlers ActionHandlers
	logger   *slog.Logger

	onEventFinished func(eventId EventId, objectId ObjectId)
}

// NewEventsManager creates an empty events manager. onEventFinished lets
// the engine hub drop its per-object bookkeeping once an event's last
// action is handled and it owns no more active voices.
func NewEventsManager(handlers ActionHandlers, onEventFinished func(EventId, ObjectId)) *EventsManager {
	logger := logging.ForService("audiocore")
	if logger == nil {
		logger = slog.Default()
	}
	return &EventsManager{
		allocator:       newEventIdAllocator(),
		registry:        make(map[EventId]*EventInfo),
		handlers:        handlers,
		onEventFinished: onEventFinished,
		logger:          logger.With("component", "events_manager"),
	}
}

// RegisterEvent allocates an EventId, installs info in the registry, and
// returns it. Callable from any thread (game thread posting a trigger);
// the caller is responsible for enqueueing the resulting postTrigger via
// EnqueuePostTrigger, which the audio thread drains during Update.
func (em *EventsManager) RegisterEvent(commandId CommandId, objectId ObjectId, cmd *TriggerCommand) *EventInfo {
	em.registryMu.Lock()
	defer em.registryMu.Unlock()

	id := em.allocator.allocate()
	info := &EventInfo{
		EventId:   id,
		CommandId: commandId,
		ObjectId:  objectId,
		Command:   cmd,
	}
	em.registry[id] = info
	return info
}

// EnqueuePostTrigger enqueues the Trigger command for processing on the
// next Update. Audio-thread-safe to call only from PostJob (the caller is
// expected to route through the audio thread, per §4.1).
func (em *EventsManager) EnqueuePostTrigger(info *EventInfo) {
	em.queue = append(em.queue, queuedCommand{kind: CommandTrigger, info: info})
}

// Lookup returns an event's info by id.
func (em *EventsManager) Lookup(id EventId) (*EventInfo, bool) {
	em.registryMu.Lock()
	defer em.registryMu.Unlock()
	info, ok := em.registry[id]
	return info, ok
}

// Update drains the command queue for one tick, processing each queued
// command per §4.9's procedure.
func (em *EventsManager) Update(dt time.Duration) {
	pending := em.queue
	em.queue = nil

	for _, qc := range pending {
		if qc.kind != CommandTrigger {
			em.logger.Warn("command kind accepted but not implemented", "kind", qc.kind.String())
			continue
		}
		em.processTrigger(qc)
	}
}

func (em *EventsManager) processTrigger(qc queuedCommand) {
	info := qc.info
	cmd := info.Command

	for i := range cmd.Actions {
		action := &cmd.Actions[i]
		if action.Handled {
			continue
		}
		delay := cmd.DelayExecution
		em.dispatchAction(info, action)
		if delay || cmd.DelayExecution {
			break
		}
	}

	if em.fullyHandled(cmd) {
		em.removeEvent(info.EventId, info.ObjectId)
		return
	}

	// re-enqueue to the tail, preserving relative order among
	// un-completable commands (§5).
	em.queue = append(em.queue, qc)
}

func (em *EventsManager) dispatchAction(info *EventInfo, action *Action) {
	switch action.Kind {
	case ActionPlay:
		if action.Target == nil {
			em.logger.Error("Play action with nil target", "event_id", info.EventId)
			action.Handled = true
			return
		}
		sourceId, ok := em.handlers.StartPlayback(info.ObjectId, info.EventId, action.Target)
		if !ok {
			// resource/capacity failure: action marked handled (no live
			// source), no retry (§4.11).
			action.Handled = true
			return
		}
		info.ActiveSources = append(info.ActiveSources, sourceId)
		// Play's Action stays "live" (unhandled) until the source
		// finishes; see fullyHandled.

	case ActionStop:
		em.handlers.Stop(info.ObjectId, action.Context, action.Target)
		action.Handled = true

	case ActionPause:
		em.handlers.Pause(info.ObjectId, action.Context, action.Target)
		action.Handled = true

	case ActionResume:
		stillPausing := em.handlers.Resume(info.ObjectId, action.Context, action.Target)
		if stillPausing {
			info.Command.DelayExecution = true
			action.Handled = false
			return
		}
		action.Handled = true

	case ActionStopAll:
		em.handlers.StopAll(info.ObjectId, action.Context == ContextGlobal)
		action.Handled = true

	case ActionPauseAll:
		em.handlers.PauseAll(info.ObjectId, action.Context == ContextGlobal)
		action.Handled = true

	case ActionResumeAll:
		stillPausing := em.handlers.ResumeAll(info.ObjectId, action.Context == ContextGlobal)
		if stillPausing {
			info.Command.DelayExecution = true
			action.Handled = false
			return
		}
		action.Handled = true

	case ActionBreak:
		em.handlers.Break(info.EventId)
		action.Handled = true

	case ActionReleaseEnvelope:
		em.handlers.ReleaseEnvelope(info.EventId)
		action.Handled = true

	case ActionSeek, ActionSeekAll, ActionPostTrigger:
		em.logger.Warn("action kind not implemented", "kind", action.Kind.String())
		action.Handled = true
	}

	info.Command.DelayExecution = false
}

// fullyHandled implements §4.9 step 3: a command is fully handled iff every
// Action is handled. A Play Action counts as handled once it was rejected
// or its source has finished; while its source plays it stays unhandled.
func (em *EventsManager) fullyHandled(cmd *TriggerCommand) bool {
	for _, a := range cmd.Actions {
		if a.Kind == ActionPlay {
			if a.Handled {
				continue // Play was rejected (no source); not live
			}
			return false
		}
		if !a.Handled {
			return false
		}
	}
	return true
}

func (em *EventsManager) removeEvent(id EventId, objectId ObjectId) {
	em.registryMu.Lock()
	delete(em.registry, id)
	em.registryMu.Unlock()
	if em.onEventFinished != nil {
		em.onEventFinished(id, objectId)
	}
}

// OnSourceFinished removes sourceId from its owning event's active list; if
// the event's Play Action was the last pending action, the event is
// removed and onEventFinished fires.
func (em *EventsManager) OnSourceFinished(eventId EventId, sourceId SourceId) {
	em.registryMu.Lock()
	info, ok := em.registry[eventId]
	em.registryMu.Unlock()
	if !ok {
		return
	}

	for i, sid := range info.ActiveSources {
		if sid == sourceId {
			info.ActiveSources = append(info.ActiveSources[:i], info.ActiveSources[i+1:]...)
			break
		}
	}

	for i := range info.Command.Actions {
		a := &info.Command.Actions[i]
		if a.Kind == ActionPlay && len(info.ActiveSources) == 0 {
			a.Handled = true
		}
	}

	if em.fullyHandled(info.Command) && len(info.ActiveSources) == 0 {
		em.removeEvent(eventId, info.ObjectId)
	}
}
