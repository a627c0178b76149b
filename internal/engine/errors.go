package engine

import "github.com/emberforge/audiocore/internal/errors"

// Component names registered against internal/errors for auto-detected
// component tagging.
const (
	ComponentEngine    = "audiocore.engine"
	ComponentVoicePool = "audiocore.voicepool"
	ComponentEvents    = "audiocore.events"
	ComponentResource  = "audiocore.resource"
	ComponentThread    = "audiocore.thread"
)

// authoringError builds a spec §7 AuthoringError: an unknown commandId, or a
// Trigger Action with a null target on a non-All kind.
func authoringError(reason string, ctx ...any) *errors.EnhancedError {
	b := errors.New(nil).Component(ComponentEngine).Category(errors.CategoryValidation).Context("error", reason)
	for i := 0; i+1 < len(ctx); i += 2 {
		if key, ok := ctx[i].(string); ok {
			b = b.Context(key, ctx[i+1])
		}
	}
	return b.Build()
}

// resourceError builds a spec §7 ResourceError: missing asset handle with no
// filesystem fallback available.
func resourceError(assetHandle uint64, reason string) *errors.EnhancedError {
	return errors.New(nil).
		Component(ComponentResource).
		Category(errors.CategorySoundBank).
		Context("asset_handle", assetHandle).
		Context("error", reason).
		Build()
}

// capacityError builds a spec §7 CapacityError: allocate found no free slot
// even after eviction.
func capacityError(reason string) *errors.EnhancedError {
	return errors.New(nil).
		Component(ComponentVoicePool).
		Category(errors.CategoryLimit).
		Context("error", reason).
		Build()
}

// stateError builds a spec §7 StateError: a public API call with a zero
// objectId or commandId.
func stateError(reason string) *errors.EnhancedError {
	return errors.New(nil).
		Component(ComponentEngine).
		Category(errors.CategoryState).
		Context("error", reason).
		Build()
}

// fatalError builds a spec §7 FatalError: device init failure or bank
// corruption, surfaced from Engine.Initialize.
func fatalError(err error, reason string) *errors.EnhancedError {
	return errors.New(err).
		Component(ComponentEngine).
		Category(errors.CategorySystem).
		Context("error", reason).
		Build()
}
