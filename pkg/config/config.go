// Package config loads gateway settings from TOML, falling back to the embedded example.
package config

import (
	_ "embed"
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
)

//go:embed config.example.toml
var exampleConf []byte

// Config represents the configuration for gateway initialization.
type Config struct {
	Server    ServerConfig    `toml:"server"`
	HTTP      HTTPConfig      `toml:"http"`
	Converter ConverterConfig `toml:"converter"`
	Lyrics    LyricsConfig    `toml:"lyrics"`
	Audio     AudioConfig     `toml:"audio"`
	Log       LogConfig       `toml:"log"`
}

type ServerConfig struct {
	Port            int      `toml:"port"`
	RateLimit       float64  `toml:"rate_limit"`
	RateBurst       int      `toml:"rate_burst"`
	ShutdownTimeout Duration `toml:"shutdown_timeout"`
}

type HTTPConfig struct {
	TimeoutSec         int  `toml:"timeout_sec"`
	InsecureSkipVerify bool `toml:"insecure_skip_verify"`
}

type ConverterConfig struct {
	InitURL      string   `toml:"init_url"`
	Referer      string   `toml:"referer"`
	PollInterval Duration `toml:"poll_interval"`
	MaxAttempts  int      `toml:"max_attempts"`
	MaxElapsed   Duration `toml:"max_elapsed"`
}

type LyricsConfig struct {
	BaseURL string `toml:"base_url"`
}

type AudioConfig struct {
	// FFmpegPath is the path to the ffmpeg executable (downloaded when missing).
	FFmpegPath string `toml:"ffmpeg_path"`
	// YTDLPPath is the yt-dlp executable; empty means resolve from PATH.
	YTDLPPath string `toml:"ytdlp_path"`
	Bitrate   string `toml:"bitrate"`
}

type LogConfig struct {
	Debug bool `toml:"debug"`
	JSON  bool `toml:"json"`
}

// Duration lets TOML carry values like "1s" or "5m".
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", text, err)
	}
	d.Duration = v
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Default returns the embedded example configuration.
func Default() *Config {
	var cfg Config
	if err := toml.Unmarshal(exampleConf, &cfg); err != nil {
		panic(fmt.Sprintf("failed to parse embedded default config: %v", err))
	}
	return &cfg
}

// Load reads a TOML file on top of the defaults, so partial files are fine.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := Default()
	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	cfg.ApplyDefaults()
	return cfg, nil
}

// ApplyDefaults fills zero values a user may have blanked out.
func (c *Config) ApplyDefaults() {
	if c.Server.Port <= 0 {
		c.Server.Port = 3000
	}
	if c.Server.ShutdownTimeout.Duration <= 0 {
		c.Server.ShutdownTimeout.Duration = 15 * time.Second
	}
	if c.HTTP.TimeoutSec <= 0 {
		c.HTTP.TimeoutSec = 60
	}
	if c.Converter.PollInterval.Duration <= 0 {
		c.Converter.PollInterval.Duration = time.Second
	}
	if c.Audio.FFmpegPath == "" {
		c.Audio.FFmpegPath = "ffmpeg"
	}
	if c.Audio.Bitrate == "" {
		c.Audio.Bitrate = "192k"
	}
	if c.Lyrics.BaseURL == "" {
		c.Lyrics.BaseURL = "https://genius.com"
	}
}

// WriteExample writes the embedded example config to path, refusing to overwrite.
func WriteExample(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}
	if err := os.WriteFile(path, exampleConf, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}
