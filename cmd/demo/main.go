// Command demo exercises the audio engine end to end: it loads settings,
// boots an Engine against a sound bank, registers one Trigger command, and
// posts an event against a demo object, then runs until interrupted or
// until --duration elapses.
package main

import (
	"context"
	"encoding/binary"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/emberforge/audiocore/internal/audiocore"
	"github.com/emberforge/audiocore/internal/audiocore/sources"
	"github.com/emberforge/audiocore/internal/conf"
	"github.com/emberforge/audiocore/internal/engine"
	"github.com/emberforge/audiocore/internal/logging"
)

// demoObjectID derives a stable ObjectId from a fresh random UUID, since
// this demo has no real game-object registry to draw ids from.
func demoObjectID() engine.ObjectId {
	id := uuid.New()
	return engine.ObjectId(binary.BigEndian.Uint64(id[:8]))
}

// startPlaybackDevice opens the configured output device and registers it
// with an AudioManager, so eng.Render is driven by real device callbacks
// rather than sitting unreached.
func startPlaybackDevice(eng *engine.Engine, settings *conf.Settings) (audiocore.AudioManager, error) {
	manager := audiocore.NewAudioManager(&audiocore.ManagerConfig{EnableMetrics: true})

	source, err := sources.CreateSource(audiocore.SourceConfig{
		ID:     "default-output",
		Name:   "default playback device",
		Type:   "device",
		Device: settings.DeviceName,
		Format: audiocore.AudioFormat{
			SampleRate: int(settings.SampleRate),
			Channels:   int(settings.Channels),
		},
		Gain: 1.0,
	}, eng)
	if err != nil {
		return nil, fmt.Errorf("creating playback source: %w", err)
	}

	if err := manager.AddSource(source); err != nil {
		return nil, fmt.Errorf("adding playback source: %w", err)
	}

	if err := manager.Start(context.Background()); err != nil {
		return nil, fmt.Errorf("starting audio manager: %w", err)
	}

	return manager, nil
}

func main() {
	root := rootCommand()
	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCommand() *cobra.Command {
	var bankPath string
	var editorMode bool
	var duration time.Duration

	cmd := &cobra.Command{
		Use:   "demo",
		Short: "Run the audio engine against a demo sound bank",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDemo(bankPath, editorMode, duration)
		},
	}

	cmd.Flags().StringVar(&bankPath, "bank", "", "path to a .hsb sound bank (overrides config)")
	cmd.Flags().BoolVar(&editorMode, "editor", false, "run in editor mode (filesystem asset fallback)")
	cmd.Flags().DurationVar(&duration, "duration", 30*time.Second, "how long to run before exiting")

	return cmd
}

func runDemo(bankOverride string, editorMode bool, duration time.Duration) error {
	logging.Init()

	settings, err := conf.Load()
	if err != nil {
		return fmt.Errorf("loading settings: %w", err)
	}
	if bankOverride != "" {
		settings.SoundBankPath = bankOverride
	}
	if editorMode {
		settings.EditorMode = true
	}

	eng := engine.NewEngine(engine.Config{
		VoicePoolSize:          settings.VoicePoolSize,
		SampleRate:             float64(settings.SampleRate),
		BankPath:               settings.SoundBankPath,
		EditorMode:             settings.EditorMode,
		StreamingThresholdSecs: settings.FileStreamingDurationThreshold,
	})

	if err := eng.Initialize(); err != nil {
		return fmt.Errorf("initializing engine: %w", err)
	}

	playFootsteps, err := eng.RegisterCommand("Play_Footsteps", engine.CommandDefinition{
		Kind: engine.CommandTrigger,
		Trigger: &engine.TriggerCommand{
			Name: "Play_Footsteps",
			Actions: []engine.Action{
				{
					Kind: engine.ActionPlay,
					Target: &engine.SoundConfig{
						AssetHandle:      1,
						VolumeMultiplier: 1.0,
						PitchMultiplier:  1.0,
						Priority:         128,
					},
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("registering demo command: %w", err)
	}

	eng.Start(10 * time.Millisecond)
	defer eng.Stop()

	manager, err := startPlaybackDevice(eng, settings)
	if err != nil {
		return fmt.Errorf("starting playback device: %w", err)
	}
	defer func() { _ = manager.Stop() }()

	eng.PostTrigger(playFootsteps, demoObjectID())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()
	deadline := time.After(duration)

	for {
		select {
		case <-sigCh:
			fmt.Println("shutting down")
			return nil
		case <-deadline:
			fmt.Println("demo duration elapsed")
			return nil
		case <-ticker.C:
			stats := eng.Stats()
			fmt.Printf("objects=%d events=%d sounds=%d frame_time=%s\n",
				stats.AudioObjects, stats.ActiveEvents, stats.ActiveSounds, stats.FrameTime)
		}
	}
}
