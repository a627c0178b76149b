package engine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestEngine(t *testing.T, handles map[uint64][]byte) *Engine {
	t.Helper()
	_, backend := newEditorResourceManager(handles)
	eng := NewEngine(Config{
		VoicePoolSize: 4,
		SampleRate:    48000,
		EditorMode:    true,
		AssetBackend:  backend,
	})
	require.NoError(t, eng.Initialize())
	return eng
}

func registerPlayCommand(t *testing.T, eng *Engine, name string, assetHandle uint64) CommandId {
	t.Helper()
	id, err := eng.RegisterCommand(name, CommandDefinition{
		Kind: CommandTrigger,
		Trigger: &TriggerCommand{
			Name: name,
			Actions: []Action{
				{Kind: ActionPlay, Target: &SoundConfig{
					AssetHandle:      assetHandle,
					VolumeMultiplier: 1.0,
					PitchMultiplier:  1.0,
					Priority:         128,
					LPFilterValue:    1.0,
				}},
			},
		},
	})
	require.NoError(t, err)
	return id
}

func TestPostTriggerRejectsZeroObjectId(t *testing.T) {
	eng := newTestEngine(t, nil)
	cmdID := registerPlayCommand(t, eng, "Play_X", 1)
	got := eng.PostTrigger(cmdID, InvalidObjectId)
	assert.Equal(t, InvalidEventId, got)
}

func TestPostTriggerRejectsZeroCommandId(t *testing.T) {
	eng := newTestEngine(t, nil)
	got := eng.PostTrigger(InvalidCommandId, ObjectId(1))
	assert.Equal(t, InvalidEventId, got)
}

func TestPostTriggerRejectsUnknownCommand(t *testing.T) {
	eng := newTestEngine(t, nil)
	got := eng.PostTrigger(CommandId(99999), ObjectId(1))
	assert.Equal(t, InvalidEventId, got)
}

func TestEnginePlaybackLifecycle(t *testing.T) {
	eng := newTestEngine(t, map[uint64][]byte{1: make([]byte, 256)})
	cmdID := registerPlayCommand(t, eng, "Play_Footsteps", 1)

	eng.Start(2 * time.Millisecond)
	defer eng.Stop()

	eventID := eng.PostTrigger(cmdID, ObjectId(42))
	require.NotEqual(t, InvalidEventId, eventID)

	assert.Eventually(t, func() bool {
		return eng.Stats().ActiveSounds == 1
	}, time.Second, 2*time.Millisecond)

	assert.True(t, eng.HasActiveEvents(ObjectId(42)))

	eng.StopActiveSound(ObjectId(42))

	assert.Eventually(t, func() bool {
		return eng.Stats().ActiveSounds == 0
	}, time.Second, 2*time.Millisecond)

	assert.Eventually(t, func() bool {
		return !eng.HasActiveEvents(ObjectId(42))
	}, time.Second, 2*time.Millisecond)
}

func TestEnginePlaybackFailsWithMissingAsset(t *testing.T) {
	eng := newTestEngine(t, nil)
	cmdID := registerPlayCommand(t, eng, "Play_Missing", 999)

	eng.Start(2 * time.Millisecond)
	defer eng.Stop()

	eventID := eng.PostTrigger(cmdID, ObjectId(1))
	require.NotEqual(t, InvalidEventId, eventID)

	// A Play action against a missing asset is handled (rejected) immediately
	// and the event is cleaned up without ever going active.
	assert.Eventually(t, func() bool {
		return !eng.HasActiveEvents(ObjectId(1))
	}, time.Second, 2*time.Millisecond)
	assert.Equal(t, 0, eng.Stats().ActiveSounds)
}

func TestEngineVoicePoolEvictsLowPriorityVoice(t *testing.T) {
	_, backend := newEditorResourceManager(map[uint64][]byte{1: make([]byte, 256)})
	eng := NewEngine(Config{VoicePoolSize: 1, SampleRate: 48000, EditorMode: true, AssetBackend: backend})
	require.NoError(t, eng.Initialize())

	lowCmd, err := eng.RegisterCommand("Play_Low", CommandDefinition{
		Kind: CommandTrigger,
		Trigger: &TriggerCommand{Name: "Play_Low", Actions: []Action{
			{Kind: ActionPlay, Target: &SoundConfig{AssetHandle: 1, VolumeMultiplier: 1, PitchMultiplier: 1, Priority: 1}},
		}},
	})
	require.NoError(t, err)
	highCmd, err := eng.RegisterCommand("Play_High", CommandDefinition{
		Kind: CommandTrigger,
		Trigger: &TriggerCommand{Name: "Play_High", Actions: []Action{
			{Kind: ActionPlay, Target: &SoundConfig{AssetHandle: 1, VolumeMultiplier: 1, PitchMultiplier: 1, Priority: 255}},
		}},
	})
	require.NoError(t, err)

	eng.Start(2 * time.Millisecond)
	defer eng.Stop()

	eng.PostTrigger(lowCmd, ObjectId(1))
	require.Eventually(t, func() bool { return eng.Stats().ActiveSounds == 1 }, time.Second, 2*time.Millisecond)

	require.NoError(t, eng.Fence(context.Background()))
	for _, sid := range eng.voices.ActiveIds() {
		eng.voices.Voice(sid).PlayState = StatePlaying
	}

	eng.PostTrigger(highCmd, ObjectId(2))

	assert.Eventually(t, func() bool {
		for _, sid := range eng.voices.ActiveIds() {
			if eng.voices.Voice(sid).OwningObject == ObjectId(2) {
				return true
			}
		}
		return false
	}, time.Second, 2*time.Millisecond)
}

func TestEngineSubmitSourceUpdateDataAppliesVolumeAndPitch(t *testing.T) {
	eng := newTestEngine(t, map[uint64][]byte{1: make([]byte, 256)})
	cmdID := registerPlayCommand(t, eng, "Play_X", 1)

	eng.Start(2 * time.Millisecond)
	defer eng.Stop()

	eng.PostTrigger(cmdID, ObjectId(7))
	require.Eventually(t, func() bool { return eng.Stats().ActiveSounds == 1 }, time.Second, 2*time.Millisecond)

	eng.SubmitSourceUpdateData([]SourceUpdateData{
		{ObjectId: ObjectId(7), VolumeMultiplier: 0.5, PitchMultiplier: 2.0},
	})

	require.NoError(t, eng.Fence(context.Background()))
	// allow one more tick for updateSources to consume the snapshot
	time.Sleep(10 * time.Millisecond)

	var found bool
	for _, sid := range eng.voices.ActiveIds() {
		v := eng.voices.Voice(sid)
		if v.OwningObject == ObjectId(7) {
			found = true
			assert.InDelta(t, 0.5, v.CurrentVolume, 1e-9)
			assert.InDelta(t, 2.0, v.CurrentPitch, 1e-9)
		}
	}
	assert.True(t, found)
}

func TestEngineOnVoiceFinishedHookFires(t *testing.T) {
	eng := newTestEngine(t, map[uint64][]byte{1: make([]byte, 256)})
	cmdID := registerPlayCommand(t, eng, "Play_X", 1)

	finished := make(chan SourceId, 1)
	eng.OnVoiceFinished(func(sourceId SourceId) { finished <- sourceId })

	eng.Start(2 * time.Millisecond)
	defer eng.Stop()

	eventID := eng.PostTrigger(cmdID, ObjectId(1))
	require.NotEqual(t, InvalidEventId, eventID)
	require.Eventually(t, func() bool { return eng.Stats().ActiveSounds == 1 }, time.Second, 2*time.Millisecond)

	eng.StopEvent(eventID)

	select {
	case <-finished:
	case <-time.After(time.Second):
		t.Fatal("voice finished hook never fired")
	}
}
