package engine

import (
	"log/slog"

	"github.com/emberforge/audiocore/internal/logging"
)

// VoicePool is the fixed-size array of N Voice slots plus a FIFO free-slot
// queue described in §4.3. All public operations are audio-thread only; no
// internal synchronization is performed.
type VoicePool struct {
	voices []Voice
	free   []SourceId // FIFO: front of slice is next to hand out
	active map[SourceId]struct{}

	logger *slog.Logger
}

// NewVoicePool creates a pool with n slots, all initially free.
func NewVoicePool(n int) *VoicePool {
	logger := logging.ForService("audiocore")
	if logger == nil {
		logger = slog.Default()
	}

	p := &VoicePool{
		voices: make([]Voice, n),
		free:   make([]SourceId, n),
		active: make(map[SourceId]struct{}, n),
		logger: logger.With("component", "voice_pool"),
	}
	for i := 0; i < n; i++ {
		p.voices[i].SourceId = SourceId(i)
		p.free[i] = SourceId(i)
	}
	return p
}

// Size returns N.
func (p *VoicePool) Size() int { return len(p.voices) }

// ActiveCount returns the number of voices currently active or queued to
// start, maintaining the invariant |active| + |queued-to-start| <= N.
func (p *VoicePool) ActiveCount() int { return len(p.active) }

// Allocate pops a free slot, or evicts the lowest-priority voice if none is
// free. Returns InvalidSourceId with a CapacityError if even eviction
// cannot produce a slot (every slot is in Starting, per §7).
func (p *VoicePool) Allocate() (SourceId, error) {
	if len(p.free) > 0 {
		id := p.free[0]
		p.free = p.free[1:]
		p.active[id] = struct{}{}
		return id, nil
	}

	id, ok := p.evictLowest()
	if !ok {
		return InvalidSourceId, capacityError("no free slot and eviction produced none (all slots Starting)")
	}
	// evictLowest released the slot back onto the free queue; take it off
	// again so it is not handed out twice.
	p.free = p.free[:len(p.free)-1]
	p.active[id] = struct{}{}
	return id, nil
}

// Release tears down the voice's DSP chain and returns its slot to the free
// queue.
func (p *VoicePool) Release(id SourceId) {
	if int(id) < 0 || int(id) >= len(p.voices) {
		return
	}
	v := &p.voices[id]
	v.chain = nil
	v.PlayState = StateStopped
	v.Finished = false
	v.SoundConfig = SoundConfig{}
	v.OwningObject = InvalidObjectId
	v.InvokerEvent = InvalidEventId
	v.CurrentVolume = 0
	v.CurrentPitch = 1
	v.Priority = 0
	v.PlaybackProgress = 0

	delete(p.active, id)
	p.free = append(p.free, id)
}

// Voice returns a pointer to the slot's Voice state.
func (p *VoicePool) Voice(id SourceId) *Voice {
	if int(id) < 0 || int(id) >= len(p.voices) {
		return nil
	}
	return &p.voices[id]
}

// ActiveIds returns the SourceIds currently active or queued-to-start, in
// no particular order.
func (p *VoicePool) ActiveIds() []SourceId {
	ids := make([]SourceId, 0, len(p.active))
	for id := range p.active {
		ids = append(ids, id)
	}
	return ids
}

// evictLowest implements the §4.3 eviction algorithm:
//  1. the lowest-priority voice whose state is Stopping,
//  2. else the lowest-priority non-looping voice, tie-broken by
//     playbackProgress (farther along wins),
//  3. else the lowest-priority voice overall.
//
// A voice in Starting has not yet produced a device-confirmed Playing
// state and is never a candidate in any tier — it is excluded up front,
// not ranked and then vetoed. Per §7, CapacityError ("no slot can be
// produced") is reachable only when every active voice is Starting,
// which this makes the sole path to the false return.
//
// Tie-breaks beyond these rules are unspecified (§9: "treat order as
// unspecified") — range order over the active map decides ties here.
// The chosen voice is hard-stopped (StopNow) and its slot freed.
func (p *VoicePool) evictLowest() (SourceId, bool) {
	var stoppingBest, nonLoopBest, anyBest *Voice
	var stoppingBestID, nonLoopBestID, anyBestID SourceId

	for id := range p.active {
		v := &p.voices[id]
		if v.PlayState == StateStarting {
			continue
		}
		pr := v.evictionPriority()

		if v.PlayState == StateStopping {
			if stoppingBest == nil || pr < stoppingBest.evictionPriority() {
				stoppingBest, stoppingBestID = v, id
			}
		}
		if !v.SoundConfig.Looping {
			if nonLoopBest == nil {
				nonLoopBest, nonLoopBestID = v, id
			} else {
				bp := nonLoopBest.evictionPriority()
				switch {
				case pr < bp:
					nonLoopBest, nonLoopBestID = v, id
				case pr == bp && v.PlaybackProgress > nonLoopBest.PlaybackProgress:
					nonLoopBest, nonLoopBestID = v, id
				}
			}
		}
		if anyBest == nil || pr < anyBest.evictionPriority() {
			anyBest, anyBestID = v, id
		}
	}

	var chosen SourceId
	switch {
	case stoppingBest != nil:
		chosen = stoppingBestID
	case nonLoopBest != nil:
		chosen = nonLoopBestID
	case anyBest != nil:
		chosen = anyBestID
	default:
		// No active voice qualified: either the pool is empty or every
		// active voice is Starting.
		return InvalidSourceId, false
	}

	v := &p.voices[chosen]
	p.logger.Debug("evicting voice", "source_id", chosen, "state", v.PlayState.String(), "priority", v.Priority)
	v.PlayState = StateStopped
	v.chain = nil
	delete(p.active, chosen)
	p.free = append(p.free, chosen)
	return chosen, true
}
