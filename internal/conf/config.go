// Package conf loads engine.Config-shaped settings from a YAML file plus
// environment overrides, following the same viper-based layering the rest
// of the stack uses for its own configuration.
package conf

import (
	"embed"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"

	"github.com/spf13/viper"

	"github.com/emberforge/audiocore/internal/logging"
)

//go:embed config.yaml
var defaultConfigFiles embed.FS

// LogConfig mirrors logging.RotationConfig in a viper-unmarshalable shape.
type LogConfig struct {
	Enabled  bool
	Path     string
	Rotation string // "size", "daily", "weekly"
	MaxSize  int64
}

// ToRotationConfig converts the on-disk rotation policy name to the
// logging package's RotationConfig.
func (c LogConfig) ToRotationConfig() logging.RotationConfig {
	rc := logging.RotationConfig{MaxSize: c.MaxSize}
	switch strings.ToLower(c.Rotation) {
	case "daily":
		rc.Rotation = logging.RotationDaily
	case "weekly":
		rc.Rotation = logging.RotationWeekly
	default:
		rc.Rotation = logging.RotationSize
	}
	return rc
}

// Settings is the engine's full configuration surface (SPEC_FULL §7b).
type Settings struct {
	SoundBankPath                  string
	EditorMode                     bool
	FileStreamingDurationThreshold float64

	DeviceName    string
	SampleRate    uint32
	Channels      uint8
	BlockFrames   uint32
	VoicePoolSize int

	Log LogConfig
}

var (
	instance   *Settings
	instanceMu sync.RWMutex
)

// Load reads config.yaml (creating a default copy on first run) plus
// AUDIOCORE_-prefixed environment overrides into a Settings value.
func Load() (*Settings, error) {
	instanceMu.Lock()
	defer instanceMu.Unlock()

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.SetEnvPrefix("AUDIOCORE")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	paths, err := defaultConfigPaths()
	if err != nil {
		return nil, fmt.Errorf("resolving config search paths: %w", err)
	}
	for _, p := range paths {
		v.AddConfigPath(p)
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			if err := writeDefaultConfig(paths[0]); err != nil {
				return nil, fmt.Errorf("writing default config: %w", err)
			}
			v.AddConfigPath(paths[0])
			if err := v.ReadInConfig(); err != nil {
				return nil, fmt.Errorf("reading freshly written default config: %w", err)
			}
		} else {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	settings := &Settings{}
	if err := v.Unmarshal(settings); err != nil {
		return nil, fmt.Errorf("unmarshaling settings: %w", err)
	}

	instance = settings
	return settings, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("soundbankpath", "soundbank.hsb")
	v.SetDefault("editormode", false)
	v.SetDefault("filestreamingdurationthreshold", 30.0)
	v.SetDefault("samplerate", 48000)
	v.SetDefault("channels", 2)
	v.SetDefault("blockframes", 480)
	v.SetDefault("voicepoolsize", 32)
	v.SetDefault("log.enabled", true)
	v.SetDefault("log.path", "audiocore.log")
	v.SetDefault("log.rotation", "size")
	v.SetDefault("log.maxsize", 10*1024*1024)
}

func defaultConfigPaths() ([]string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("fetching user home directory: %w", err)
	}

	if runtime.GOOS == "windows" {
		return []string{filepath.Join(homeDir, "AppData", "Roaming", "audiocore")}, nil
	}
	return []string{
		filepath.Join(homeDir, ".config", "audiocore"),
		"/etc/audiocore",
	}, nil
}

func writeDefaultConfig(dir string) error {
	data, err := fs.ReadFile(defaultConfigFiles, "config.yaml")
	if err != nil {
		return fmt.Errorf("reading embedded default config: %w", err)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	return os.WriteFile(filepath.Join(dir, "config.yaml"), data, 0o644)
}

// Current returns the most recently Loaded settings, or nil if Load has
// never succeeded.
func Current() *Settings {
	instanceMu.RLock()
	defer instanceMu.RUnlock()
	return instance
}
