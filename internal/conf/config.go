// Package conf loads and validates the bridge configuration from YAML and
// environment variables through viper. A missing config file is not an
// error: defaults are written out so the user has something to edit.
package conf

import (
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/spf13/viper"
)

//go:embed config.yaml
var configFiles embed.FS

// LogConfig controls the optional file log.
type LogConfig struct {
	Enabled    bool   `yaml:"enabled"`
	Path       string `yaml:"path"`
	MaxSize    int    `yaml:"maxsize"` // megabytes
	MaxBackups int    `yaml:"maxbackups"`
	MaxAge     int    `yaml:"maxage"` // days
}

// MainSettings holds application-wide basics.
type MainSettings struct {
	Name string    `yaml:"name"`
	Log  LogConfig `yaml:"log"`
}

// DeviceFormatSettings describes one hardware endpoint's sample layout.
// Samples are host-order interleaved; width is bytes per sample (2 for
// s16, 4 for f32).
type DeviceFormatSettings struct {
	Channels    int `yaml:"channels"`
	SampleWidth int `yaml:"samplewidth"`
}

// AudioSettings describes the audio path shared by both directions.
type AudioSettings struct {
	SampleRate      int                  `yaml:"samplerate"`
	FrameSize       int                  `yaml:"framesize"` // samples per codec frame
	BufferMs        int                  `yaml:"bufferms"`  // ring depth per direction
	LevelIntervalMs int                  `yaml:"levelintervalms"`
	Output          DeviceFormatSettings `yaml:"output"`
	Input           DeviceFormatSettings `yaml:"input"`
}

// CodecSettings selects the wire codec.
type CodecSettings struct {
	Type        string `yaml:"type"`        // opus, pcm-stereo-float, pcm16-mono
	Channels    int    `yaml:"channels"`    // opus wire channels, 1 or 2
	Bitrate     int    `yaml:"bitrate"`     // opus target bitrate, bits/s
	Concealment string `yaml:"concealment"` // silence, repeat
}

// NetworkSettings holds the datagram endpoints.
type NetworkSettings struct {
	Listen string `yaml:"listen"` // ingest bind address
	Peer   string `yaml:"peer"`   // egress destination
}

// ExportSettings controls the WAV debug dump of outgoing audio.
type ExportSettings struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// WebServerSettings controls the monitoring API.
type WebServerSettings struct {
	Enabled bool   `yaml:"enabled"`
	Listen  string `yaml:"listen"`
}

// Settings is the root configuration.
type Settings struct {
	Debug     bool              `yaml:"debug"`
	Main      MainSettings      `yaml:"main"`
	Audio     AudioSettings     `yaml:"audio"`
	Codec     CodecSettings     `yaml:"codec"`
	Network   NetworkSettings   `yaml:"network"`
	Export    ExportSettings    `yaml:"export"`
	WebServer WebServerSettings `yaml:"webserver"`
}

var settingsMutex sync.Mutex

// Load reads the configuration file and environment into a Settings value.
func Load() (*Settings, error) {
	settingsMutex.Lock()
	defer settingsMutex.Unlock()

	if err := initViper(); err != nil {
		return nil, fmt.Errorf("error initializing viper: %w", err)
	}

	settings := &Settings{}
	if err := viper.Unmarshal(settings); err != nil {
		return nil, fmt.Errorf("error unmarshaling config into struct: %w", err)
	}

	if err := ValidateSettings(settings); err != nil {
		return nil, fmt.Errorf("error validating settings: %w", err)
	}
	return settings, nil
}

func initViper() error {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.SetEnvPrefix("AUDIOBRIDGE")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	configPaths, err := GetDefaultConfigPaths()
	if err != nil {
		return fmt.Errorf("error getting default config paths: %w", err)
	}
	for _, path := range configPaths {
		viper.AddConfigPath(path)
	}

	setDefaultConfig()

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return createDefaultConfig()
		}
		return fmt.Errorf("fatal error reading config file: %w", err)
	}
	return nil
}

// createDefaultConfig writes the embedded default config to the first
// config path, then re-reads it.
func createDefaultConfig() error {
	configPaths, err := GetDefaultConfigPaths()
	if err != nil {
		return fmt.Errorf("error getting default config paths: %w", err)
	}
	configPath := filepath.Join(configPaths[0], "config.yaml")

	defaultConfig, err := configFiles.ReadFile("config.yaml")
	if err != nil {
		return fmt.Errorf("error reading embedded config: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(configPath), 0o755); err != nil {
		return fmt.Errorf("error creating config directory: %w", err)
	}
	if err := os.WriteFile(configPath, defaultConfig, 0o644); err != nil {
		return fmt.Errorf("error writing default config file: %w", err)
	}

	fmt.Println("Created default config file at:", configPath)
	return viper.ReadInConfig()
}

// GetDefaultConfigPaths returns the directories searched for config.yaml,
// in priority order: working directory first, then the user config dir.
func GetDefaultConfigPaths() ([]string, error) {
	paths := []string{"."}
	if dir, err := os.UserConfigDir(); err == nil {
		paths = append(paths, filepath.Join(dir, "audiobridge"))
	}
	return paths, nil
}
