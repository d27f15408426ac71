// Package config loads DualLink's CLI/environment configuration using
// viper, mirroring the layered config-file-then-env-override approach the
// teacher agent uses.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"github.com/spf13/viper"

	"github.com/duallink/duallink/internal/wire"
)

// Config holds the settings common to both the sender and receiver CLIs.
// Not every field applies to both roles; unused fields are simply ignored
// by the role that doesn't need them.
type Config struct {
	DeviceName    string `mapstructure:"device_name"`
	DisplayCount  int    `mapstructure:"display_count"`
	SignalingPort int    `mapstructure:"signaling_port"`

	StreamWidth      int    `mapstructure:"stream_width"`
	StreamHeight     int    `mapstructure:"stream_height"`
	StreamTargetFPS  int    `mapstructure:"stream_target_fps"`
	StreamBitrateBPS int    `mapstructure:"stream_max_bitrate_bps"`
	StreamCodec      string `mapstructure:"stream_codec"`
	StreamLowLatency bool   `mapstructure:"stream_low_latency"`

	PeerHost        string `mapstructure:"peer_host"`
	PeerPort        int    `mapstructure:"peer_port"`
	PeerFingerprint string `mapstructure:"peer_fingerprint"`
	PairingPIN      string `mapstructure:"pairing_pin"`

	LogLevel      string `mapstructure:"log_level"`
	LogFormat     string `mapstructure:"log_format"`
	LogFile       string `mapstructure:"log_file"`
	LogMaxSizeMB  int    `mapstructure:"log_max_size_mb"`
	LogMaxBackups int    `mapstructure:"log_max_backups"`
}

// Default returns a Config populated with the spec's recommended defaults.
func Default() *Config {
	return &Config{
		DisplayCount:     1,
		SignalingPort:    7879,
		StreamWidth:      1920,
		StreamHeight:     1080,
		StreamTargetFPS:  30,
		StreamBitrateBPS: 8_000_000,
		StreamCodec:      "h264",
		StreamLowLatency: true,
		LogLevel:         "info",
		LogFormat:        "text",
		LogMaxSizeMB:     50,
		LogMaxBackups:    3,
	}
}

// Load reads configuration from cfgFile (or the platform config directory
// and current directory if empty), then applies DUALLINK_-prefixed
// environment overrides.
func Load(cfgFile string) (*Config, error) {
	cfg := Default()

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("duallink")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(configDir())
		viper.AddConfigPath(".")
	}

	viper.AutomaticEnv()
	viper.SetEnvPrefix("DUALLINK")

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("config: read config: %w", err)
		}
	}

	if err := viper.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// StreamConfig renders the subset of Config relevant to a sender's stream
// config announcement.
func (c *Config) StreamConfig(displayIndex int) wire.StreamConfig {
	return wire.StreamConfig{
		Width:         c.StreamWidth,
		Height:        c.StreamHeight,
		TargetFPS:     c.StreamTargetFPS,
		MaxBitrateBPS: c.StreamBitrateBPS,
		Codec:         wire.Codec(c.StreamCodec),
		LowLatency:    c.StreamLowLatency,
		DisplayIndex:  displayIndex,
	}
}

// Validate checks the configuration-boundary invariants from §7: invalid
// stream config is refused here rather than surfacing deep in the pipeline.
func (c *Config) Validate() error {
	if c.DisplayCount < 1 || c.DisplayCount > 8 {
		return fmt.Errorf("config: display_count must be in [1,8], got %d", c.DisplayCount)
	}
	return c.StreamConfig(0).Validate()
}

func configDir() string {
	switch runtime.GOOS {
	case "windows":
		return filepath.Join(os.Getenv("ProgramData"), "DualLink")
	case "darwin":
		return "/Library/Application Support/DualLink"
	default:
		return "/etc/duallink"
	}
}
