// Package malgo provides a malgo-based audio source implementation that
// drives device playback directly from the engine's renderer.
package malgo

import (
	"context"
	"math"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/emberforge/audiocore/internal/audiocore"
	"github.com/emberforge/audiocore/internal/engine"
	"github.com/emberforge/audiocore/internal/errors"
	"github.com/tphakala/malgo"
)

// Renderer is the subset of *engine.Engine the playback device callback
// needs. Mirrors (*engine.Engine).Render so tests can stub it.
type Renderer interface {
	Render(out []byte, frameCount int) error
}

var _ Renderer = (*engine.Engine)(nil)

// PlaybackSource implements audiocore.AudioSource by opening a real output
// device and pulling its samples from an engine renderer rather than
// capturing them from hardware. Every Data callback both writes the block
// to the device and republishes a copy on AudioOutput so it composes with
// AudioManager's processor-chain and metrics machinery like any other
// source.
type PlaybackSource struct {
	id     string
	name   string
	config PlaybackConfig
	render Renderer

	ctx    *malgo.AllocatedContext
	device *malgo.Device

	outputChan chan audiocore.AudioData
	errorChan  chan error

	mu      sync.RWMutex
	running atomic.Bool
	cancel  context.CancelFunc

	formatType malgo.FormatType
	actualRate uint32
	gain       atomic.Value // stores float64
}

// PlaybackConfig contains configuration for the playback device.
type PlaybackConfig struct {
	DeviceID     string
	DeviceName   string
	SampleRate   uint32
	Channels     uint8
	BufferFrames uint32
	Gain         float64
}

// NewPlaybackSource creates a playback source that renders audio through
// render (typically an *engine.Engine) into a real output device.
func NewPlaybackSource(id string, config PlaybackConfig, render Renderer) (*PlaybackSource, error) {
	if config.SampleRate == 0 {
		config.SampleRate = 48000
	}
	if config.Channels == 0 {
		config.Channels = 2
	}
	if config.BufferFrames == 0 {
		config.BufferFrames = 512
	}
	if config.Gain == 0 {
		config.Gain = 1.0
	}

	source := &PlaybackSource{
		id:         id,
		name:       config.DeviceName,
		config:     config,
		render:     render,
		outputChan: make(chan audiocore.AudioData, 10),
		errorChan:  make(chan error, 10),
	}
	source.gain.Store(config.Gain)

	return source, nil
}

// ID returns a unique identifier for this source.
func (s *PlaybackSource) ID() string {
	return s.id
}

// Name returns a human-readable name for this source.
func (s *PlaybackSource) Name() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.name
}

// Start opens the playback device and begins pulling rendered audio from
// the engine once per device callback.
func (s *PlaybackSource) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running.Load() {
		return errors.New(nil).
			Component("audiocore").
			Category(errors.CategoryState).
			Context("source_id", s.id).
			Context("error", "source already running").
			Build()
	}

	backend := s.getBackend()
	malgoCtx, err := malgo.InitContext([]malgo.Backend{backend}, malgo.ContextConfig{}, nil)
	if err != nil {
		return errors.New(err).
			Component("audiocore").
			Category(errors.CategoryAudio).
			Context("source_id", s.id).
			Context("backend", runtime.GOOS).
			Context("operation", "init_context").
			Build()
	}
	s.ctx = malgoCtx

	deviceInfo, err := s.findDevice()
	if err != nil {
		_ = malgoCtx.Uninit()
		return err
	}

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Playback)
	deviceConfig.Playback.Channels = uint32(s.config.Channels)
	deviceConfig.Playback.DeviceID = deviceInfo.ID.Pointer()
	deviceConfig.Playback.Format = malgo.FormatF32
	deviceConfig.SampleRate = s.config.SampleRate
	deviceConfig.Alsa.NoMMap = 1

	playbackCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	deviceCallbacks := malgo.DeviceCallbacks{
		Data: s.onDeviceData,
		Stop: s.onDeviceStop,
	}

	device, err := malgo.InitDevice(s.ctx.Context, deviceConfig, deviceCallbacks)
	if err != nil {
		s.cancel()
		_ = malgoCtx.Uninit()
		return errors.New(err).
			Component("audiocore").
			Category(errors.CategoryAudio).
			Context("source_id", s.id).
			Context("device_name", s.config.DeviceName).
			Context("operation", "init_device").
			Build()
	}
	s.device = device

	s.formatType = device.PlaybackFormat()
	s.actualRate = device.SampleRate()

	if err := device.Start(); err != nil {
		device.Uninit()
		s.cancel()
		_ = malgoCtx.Uninit()
		return errors.New(err).
			Component("audiocore").
			Category(errors.CategoryAudio).
			Context("source_id", s.id).
			Context("operation", "start_device").
			Build()
	}

	s.running.Store(true)

	go s.monitor(playbackCtx)

	return nil
}

// Stop halts playback.
func (s *PlaybackSource) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running.Load() {
		return errors.New(nil).
			Component("audiocore").
			Category(errors.CategoryState).
			Context("source_id", s.id).
			Context("error", "source not running").
			Build()
	}

	if s.cancel != nil {
		s.cancel()
	}

	if s.device != nil {
		_ = s.device.Stop()
		s.device.Uninit()
		s.device = nil
	}

	if s.ctx != nil {
		_ = s.ctx.Uninit()
		s.ctx = nil
	}

	s.running.Store(false)

	close(s.outputChan)
	close(s.errorChan)

	return nil
}

// AudioOutput returns a channel that republishes every rendered block.
func (s *PlaybackSource) AudioOutput() <-chan audiocore.AudioData {
	return s.outputChan
}

// Errors returns a channel for error reporting.
func (s *PlaybackSource) Errors() <-chan error {
	return s.errorChan
}

// IsActive returns true if the device is currently running.
func (s *PlaybackSource) IsActive() bool {
	return s.running.Load()
}

// GetFormat returns the audio format this source renders.
func (s *PlaybackSource) GetFormat() audiocore.AudioFormat {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return audiocore.AudioFormat{
		SampleRate: int(s.config.SampleRate),
		Channels:   int(s.config.Channels),
		BitDepth:   32,
		Encoding:   "pcm_f32le",
	}
}

// GetConfig returns the source configuration.
func (s *PlaybackSource) GetConfig() audiocore.SourceConfig {
	format := s.GetFormat()
	s.mu.RLock()
	defer s.mu.RUnlock()
	return audiocore.SourceConfig{
		ID: s.id, Name: s.name, Type: "device", Device: s.config.DeviceID,
		Format: format, BufferSize: int(s.config.BufferFrames), Gain: s.gain.Load().(float64),
	}
}

// SetGain sets the master output gain (0.0 to 2.0).
func (s *PlaybackSource) SetGain(gain float64) error {
	if gain < 0.0 || gain > 2.0 {
		return errors.New(nil).
			Component("audiocore").
			Category(errors.CategoryValidation).
			Context("gain", gain).
			Context("error", "gain must be between 0.0 and 2.0").
			Build()
	}

	s.gain.Store(gain)
	return nil
}

// onDeviceData is malgo's Data callback: it renders directly into the
// device's output buffer, then republishes a copy for any processor chain
// or metrics collection hung off this source via AudioManager.
func (s *PlaybackSource) onDeviceData(pOutputSample, _ []byte, framecount uint32) {
	if err := s.render.Render(pOutputSample, int(framecount)); err != nil {
		select {
		case s.errorChan <- err:
		default:
		}
		return
	}

	gain := s.gain.Load().(float64)
	if gain != 1.0 {
		applyGainF32(pOutputSample, gain)
	}

	var out []byte
	if s.formatType == malgo.FormatF32 {
		out = make([]byte, len(pOutputSample))
		copy(out, pOutputSample)
	} else {
		converted, err := ConvertFromF32(pOutputSample, s.formatType)
		if err != nil {
			select {
			case s.errorChan <- err:
			default:
			}
			return
		}
		out = converted
	}

	duration := time.Duration(float64(framecount) / float64(s.actualRate) * float64(time.Second))
	data := audiocore.AudioData{
		Buffer:    out,
		Format:    s.GetFormat(),
		Timestamp: time.Now(),
		Duration:  duration,
		SourceID:  s.id,
	}

	select {
	case s.outputChan <- data:
	default:
		err := errors.New(nil).
			Component("audiocore").
			Category(errors.CategoryResource).
			Context("source_id", s.id).
			Context("error", "audio output channel full, dropping frame").
			Build()
		select {
		case s.errorChan <- err:
		default:
		}
	}
}

// onDeviceStop is called when the device stops unexpectedly.
func (s *PlaybackSource) onDeviceStop() {
	err := errors.New(nil).
		Component("audiocore").
		Category(errors.CategoryAudio).
		Context("source_id", s.id).
		Context("error", "audio device stopped unexpectedly").
		Build()

	select {
	case s.errorChan <- err:
	default:
	}

	go func() {
		time.Sleep(1 * time.Second)
		if s.running.Load() && s.device != nil {
			if err := s.device.Start(); err != nil {
				restartErr := errors.New(err).
					Component("audiocore").
					Category(errors.CategoryAudio).
					Context("source_id", s.id).
					Context("operation", "restart_device").
					Build()
				select {
				case s.errorChan <- restartErr:
				default:
				}
			}
		}
	}()
}

// monitor tears the device down when ctx is cancelled.
func (s *PlaybackSource) monitor(ctx context.Context) {
	<-ctx.Done()
	_ = s.Stop()
}

// getBackend returns the appropriate backend for the current platform.
func (s *PlaybackSource) getBackend() malgo.Backend {
	switch runtime.GOOS {
	case "linux":
		return malgo.BackendAlsa
	case "windows":
		return malgo.BackendWasapi
	case "darwin":
		return malgo.BackendCoreaudio
	default:
		return malgo.BackendNull
	}
}

// applyGainF32 scales interleaved little-endian f32 samples in place.
func applyGainF32(buffer []byte, gain float64) {
	for i := 0; i+4 <= len(buffer); i += 4 {
		bits := uint32(buffer[i]) | uint32(buffer[i+1])<<8 | uint32(buffer[i+2])<<16 | uint32(buffer[i+3])<<24
		sample := float64(math.Float32frombits(bits)) * gain
		out := math.Float32bits(float32(sample))
		buffer[i] = byte(out)
		buffer[i+1] = byte(out >> 8)
		buffer[i+2] = byte(out >> 16)
		buffer[i+3] = byte(out >> 24)
	}
}

// findDevice finds the requested playback device.
func (s *PlaybackSource) findDevice() (*malgo.DeviceInfo, error) {
	devices, err := s.ctx.Devices(malgo.Playback)
	if err != nil {
		return nil, errors.New(err).
			Component("audiocore").
			Category(errors.CategoryAudio).
			Context("source_id", s.id).
			Context("operation", "enumerate_devices").
			Build()
	}

	if s.config.DeviceName == "" || s.config.DeviceName == "default" {
		for i := range devices {
			if devices[i].IsDefault == 1 {
				return &devices[i], nil
			}
		}
		if len(devices) > 0 {
			return &devices[0], nil
		}
	}

	deviceInfo, err := SelectDevice(devices, s.config.DeviceName)
	if err != nil {
		return nil, errors.New(err).
			Component("audiocore").
			Category(errors.CategoryAudio).
			Context("source_id", s.id).
			Context("device_name", s.config.DeviceName).
			Build()
	}

	return deviceInfo, nil
}
