package engine

import "time"

const (
	// DefaultVoicePoolSize is N, the default number of Voice slots.
	DefaultVoicePoolSize = 32

	// StopPauseFadeDuration is the fixed stop/pause fade ramp length (§4.11).
	StopPauseFadeDuration = 28 * time.Millisecond

	// DefaultStreamingThresholdSeconds is the default UserConfig
	// fileStreamingDurationThreshold (§6).
	DefaultStreamingThresholdSeconds = 30.0

	// DefaultBlockFrames approximates the device's natural period at 48kHz
	// (≈10ms), used only where no real device has reported one yet (tests,
	// the demo host).
	DefaultBlockFrames = 480

	// DefaultSampleRate is used when no device has reported its own rate.
	DefaultSampleRate = 48000

	// jobQueueCapacity bounds the audio thread's job channel; posting beyond
	// this blocks the caller (game threads never block on audio work per
	// §5, so callers should keep their closures cheap to enqueue, not
	// expect instant capacity).
	jobQueueCapacity = 1024
)
