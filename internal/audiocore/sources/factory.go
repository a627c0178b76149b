// Package sources provides audio source implementations
package sources

import (
	"fmt"

	"github.com/emberforge/audiocore/internal/audiocore"
	"github.com/emberforge/audiocore/internal/audiocore/sources/malgo"
	"github.com/emberforge/audiocore/internal/errors"
	rawmalgo "github.com/tphakala/malgo"
)

// CreateSource creates an audio source based on the provided configuration.
// render is the engine (or engine stub) that produces the PCM a "device"
// source plays out; it is ignored for source types that don't render audio.
func CreateSource(config audiocore.SourceConfig, render malgo.Renderer) (audiocore.AudioSource, error) {
	switch config.Type {
	case "device":
		playbackConfig := malgo.PlaybackConfig{
			DeviceName:   config.Device,
			SampleRate:   uint32(config.Format.SampleRate),
			Channels:     uint8(config.Format.Channels),
			BufferFrames: 512, // Default buffer frames
			Gain:         config.Gain,
		}

		if frames, ok := config.ExtraConfig["buffer_frames"].(uint32); ok {
			playbackConfig.BufferFrames = frames
		} else if frames, ok := config.ExtraConfig["buffer_frames"].(int); ok {
			playbackConfig.BufferFrames = uint32(frames)
		}

		return malgo.NewPlaybackSource(config.ID, playbackConfig, render)

	case "asset":
		// Decoded sound bank asset streams are constructed by the resource
		// manager, which already has the decoded PCM in hand; it does not
		// go through CreateSource.
		return nil, errors.New(nil).
			Component("audiocore").
			Category(errors.CategoryValidation).
			Context("source_type", config.Type).
			Context("error", "asset sources are constructed directly by the resource manager").
			Build()

	default:
		return nil, errors.New(nil).
			Component("audiocore").
			Category(errors.CategoryValidation).
			Context("source_type", config.Type).
			Context("error", fmt.Sprintf("unknown source type: %s", config.Type)).
			Build()
	}
}

// ListAvailableDevices returns a list of available playback devices.
func ListAvailableDevices() ([]malgo.AudioDeviceInfo, error) {
	return malgo.EnumerateDevices(rawmalgo.Playback)
}

// GetDefaultDevice returns the system default playback device.
func GetDefaultDevice() (*malgo.AudioDeviceInfo, error) {
	return malgo.GetDefaultDevice(rawmalgo.Playback)
}
