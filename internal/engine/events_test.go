package engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestHandlers() (ActionHandlers, *[]string) {
	var calls []string
	h := ActionHandlers{
		StartPlayback: func(objectId ObjectId, eventId EventId, target *SoundConfig) (SourceId, bool) {
			calls = append(calls, "StartPlayback")
			return SourceId(1), true
		},
		Pause: func(objectId ObjectId, ctx ActionContext, target *SoundConfig) {
			calls = append(calls, "Pause")
		},
		Resume: func(objectId ObjectId, ctx ActionContext, target *SoundConfig) bool {
			calls = append(calls, "Resume")
			return false
		},
		Stop: func(objectId ObjectId, ctx ActionContext, target *SoundConfig) {
			calls = append(calls, "Stop")
		},
		PauseAll: func(objectId ObjectId, global bool) {
			calls = append(calls, "PauseAll")
		},
		ResumeAll: func(objectId ObjectId, global bool) bool {
			calls = append(calls, "ResumeAll")
			return false
		},
		StopAll: func(objectId ObjectId, global bool) {
			calls = append(calls, "StopAll")
		},
		Break:           func(eventId EventId) { calls = append(calls, "Break") },
		ReleaseEnvelope: func(eventId EventId) { calls = append(calls, "ReleaseEnvelope") },
	}
	return h, &calls
}

func TestEventsManagerPlayActionStaysLiveUntilSourceFinishes(t *testing.T) {
	h, calls := newTestHandlers()
	var finished []EventId
	em := NewEventsManager(h, func(id EventId, objectId ObjectId) { finished = append(finished, id) })

	cmd := &TriggerCommand{
		Name:    "Play_X",
		Actions: []Action{{Kind: ActionPlay, Target: &SoundConfig{AssetHandle: 1}}},
	}
	info := em.RegisterEvent(NewCommandId("Play_X"), ObjectId(1), cmd)
	em.EnqueuePostTrigger(info)

	em.Update(time.Millisecond)
	assert.Equal(t, []string{"StartPlayback"}, *calls)

	// Event should still be registered; the Play action is live until the
	// source finishes.
	_, ok := em.Lookup(info.EventId)
	assert.True(t, ok)
	assert.Empty(t, finished)

	em.OnSourceFinished(info.EventId, SourceId(1))
	assert.Equal(t, []EventId{info.EventId}, finished)

	_, ok = em.Lookup(info.EventId)
	assert.False(t, ok)
}

func TestEventsManagerStopActionCompletesImmediately(t *testing.T) {
	h, calls := newTestHandlers()
	var finished []EventId
	em := NewEventsManager(h, func(id EventId, objectId ObjectId) { finished = append(finished, id) })

	cmd := &TriggerCommand{
		Name:    "Stop_X",
		Actions: []Action{{Kind: ActionStop, Context: ContextObject}},
	}
	info := em.RegisterEvent(NewCommandId("Stop_X"), ObjectId(1), cmd)
	em.EnqueuePostTrigger(info)

	em.Update(time.Millisecond)
	assert.Equal(t, []string{"Stop"}, *calls)
	assert.Equal(t, []EventId{info.EventId}, finished)
}

func TestEventsManagerResumeStillPausingReenqueues(t *testing.T) {
	h, calls := newTestHandlers()
	callCount := 0
	h.Resume = func(objectId ObjectId, ctx ActionContext, target *SoundConfig) bool {
		callCount++
		*calls = append(*calls, "Resume")
		return callCount < 2 // still pausing on the first tick, done on the second
	}

	var finished []EventId
	em := NewEventsManager(h, func(id EventId, objectId ObjectId) { finished = append(finished, id) })

	cmd := &TriggerCommand{
		Name:    "Resume_X",
		Actions: []Action{{Kind: ActionResume, Context: ContextObject}},
	}
	info := em.RegisterEvent(NewCommandId("Resume_X"), ObjectId(1), cmd)
	em.EnqueuePostTrigger(info)

	em.Update(time.Millisecond)
	assert.Empty(t, finished)
	_, ok := em.Lookup(info.EventId)
	assert.True(t, ok)

	em.Update(time.Millisecond)
	assert.Equal(t, []EventId{info.EventId}, finished)
	assert.Equal(t, 2, callCount)
}

func TestEventsManagerPlayWithNilTargetIsHandledImmediately(t *testing.T) {
	h, _ := newTestHandlers()
	var finished []EventId
	em := NewEventsManager(h, func(id EventId, objectId ObjectId) { finished = append(finished, id) })

	cmd := &TriggerCommand{
		Name:    "Play_Broken",
		Actions: []Action{{Kind: ActionPlay, Target: nil}},
	}
	info := em.RegisterEvent(NewCommandId("Play_Broken"), ObjectId(1), cmd)
	em.EnqueuePostTrigger(info)

	em.Update(time.Millisecond)
	assert.Equal(t, []EventId{info.EventId}, finished)
}

func TestEventsManagerDelayExecutionOnlyRunsFirstUnhandledAction(t *testing.T) {
	h, calls := newTestHandlers()
	em := NewEventsManager(h, nil)

	cmd := &TriggerCommand{
		Name:           "Multi",
		DelayExecution: true,
		Actions: []Action{
			{Kind: ActionStop, Context: ContextObject},
			{Kind: ActionPauseAll},
		},
	}
	info := em.RegisterEvent(NewCommandId("Multi"), ObjectId(1), cmd)
	em.EnqueuePostTrigger(info)

	em.Update(time.Millisecond)
	assert.Equal(t, []string{"Stop"}, *calls)

	em.Update(time.Millisecond)
	assert.Equal(t, []string{"Stop", "PauseAll"}, *calls)
}

func TestRegisterEventAllocatesUniqueIds(t *testing.T) {
	h, _ := newTestHandlers()
	em := NewEventsManager(h, nil)

	cmd := &TriggerCommand{Name: "A"}
	info1 := em.RegisterEvent(NewCommandId("A"), ObjectId(1), cmd)
	info2 := em.RegisterEvent(NewCommandId("A"), ObjectId(1), cmd)

	require.NotEqual(t, info1.EventId, info2.EventId)
}
