// Package config provides application configuration management.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sync"

	"github.com/oszuidwest/zwfm-noisewatch/internal/types"
	"github.com/oszuidwest/zwfm-noisewatch/internal/util"
)

// Configuration defaults are used when values are not specified.
const (
	DefaultWebPort           = 8080
	DefaultSampleRate        = 44100
	DefaultBlockSeconds      = 1.0
	DefaultThreshold         = 0.05
	DefaultCooldownSeconds   = 2.0
	DefaultStationName       = "ZuidWest FM"
	DefaultStationColorLight = "#E6007E"
	DefaultStationColorDark  = "#E6007E"
	DefaultClipRetentionDays = 14
)

// Validation patterns define regular expressions for configuration value validation.
var (
	// Station name: any printable characters except control chars (blocks CRLF injection in emails)
	stationNamePattern  = regexp.MustCompile(`^[^\x00-\x1F\x7F]+$`)
	stationColorPattern = regexp.MustCompile(`^#[0-9A-Fa-f]{6}$`)
)

// SystemConfig holds system-level settings that require restart.
type SystemConfig struct {
	Port    int    `json:"port"`     // HTTP server port
	LogPath string `json:"log_path"` // Event log file path (empty = platform default)
}

// WebConfig holds station branding settings.
type WebConfig struct {
	StationName string `json:"station_name"` // Station display name
	ColorLight  string `json:"color_light"`  // Theme color for light mode (#RRGGBB)
	ColorDark   string `json:"color_dark"`   // Theme color for dark mode (#RRGGBB)
}

// AudioConfig holds audio capture settings.
type AudioConfig struct {
	Input        string  `json:"input"`         // Capture device ID or name (empty = default)
	SampleRate   int     `json:"sample_rate"`   // Samples per second
	BlockSeconds float64 `json:"block_seconds"` // Duration of one metering block
}

// AlarmConfig holds the alarm threshold and alert timing parameters.
type AlarmConfig struct {
	Threshold       float64 `json:"threshold"`        // RMS level above which a block alarms
	CooldownSeconds float64 `json:"cooldown_seconds"` // Minimum spacing between audible alerts
}

// WebhookConfig holds webhook notification settings.
type WebhookConfig struct {
	URL string `json:"url"` // Webhook URL for alarm notifications
}

// NotificationsConfig holds all notification channel settings.
type NotificationsConfig struct {
	Webhook WebhookConfig     `json:"webhook"` // Webhook settings
	Email   types.GraphConfig `json:"email"`   // Microsoft Graph email settings
}

// ClipsConfig holds alert clip capture settings.
type ClipsConfig struct {
	Enabled       bool               `json:"enabled"`        // Write the offending block as a WAV clip on alert
	Directory     string             `json:"directory"`      // Local clip directory
	RetentionDays int                `json:"retention_days"` // Days to keep local clips
	S3            types.ClipS3Config `json:"s3"`             // Optional S3-compatible upload target
}

// Config holds all application configuration. It is safe for concurrent use.
type Config struct {
	System        SystemConfig        `json:"system"`
	Web           WebConfig           `json:"web"`
	Audio         AudioConfig         `json:"audio"`
	Alarm         AlarmConfig         `json:"alarm"`
	Notifications NotificationsConfig `json:"notifications"`
	Clips         ClipsConfig         `json:"clips"`

	mu       sync.RWMutex
	filePath string
}

// New creates a new Config with default values.
func New(filePath string) *Config {
	return &Config{
		System: SystemConfig{
			Port: DefaultWebPort,
		},
		Web: WebConfig{
			StationName: DefaultStationName,
			ColorLight:  DefaultStationColorLight,
			ColorDark:   DefaultStationColorDark,
		},
		Audio: AudioConfig{
			SampleRate:   DefaultSampleRate,
			BlockSeconds: DefaultBlockSeconds,
		},
		Alarm: AlarmConfig{
			Threshold:       DefaultThreshold,
			CooldownSeconds: DefaultCooldownSeconds,
		},
		Clips: ClipsConfig{
			RetentionDays: DefaultClipRetentionDays,
		},
		filePath: filePath,
	}
}

// Load reads config from file, creating a default if none exists.
func (c *Config) Load() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	data, err := os.ReadFile(c.filePath)
	if os.IsNotExist(err) {
		return c.saveLocked()
	}
	if err != nil {
		return fmt.Errorf("failed to read config: %w", err)
	}

	if err := json.Unmarshal(data, c); err != nil {
		return util.WrapError("parse config", err)
	}

	c.applyDefaults()

	return c.validate()
}

// validate checks all configuration fields for correctness.
func (c *Config) validate() error {
	if c.System.Port < 1 || c.System.Port > 65535 {
		return fmt.Errorf("invalid port %d: must be 1-65535", c.System.Port)
	}

	name := c.Web.StationName
	if name == "" || len(name) > 30 || !stationNamePattern.MatchString(name) {
		return fmt.Errorf("invalid station_name %q: must be 1-30 printable characters", name)
	}
	if !stationColorPattern.MatchString(c.Web.ColorLight) {
		return fmt.Errorf("invalid color_light %q: must be hex format (#RRGGBB)", c.Web.ColorLight)
	}
	if !stationColorPattern.MatchString(c.Web.ColorDark) {
		return fmt.Errorf("invalid color_dark %q: must be hex format (#RRGGBB)", c.Web.ColorDark)
	}

	if c.Audio.SampleRate < 8000 || c.Audio.SampleRate > 192000 {
		return fmt.Errorf("invalid sample_rate %d: must be 8000-192000", c.Audio.SampleRate)
	}
	if c.Audio.BlockSeconds < 0.05 || c.Audio.BlockSeconds > 10 {
		return fmt.Errorf("invalid block_seconds %g: must be 0.05-10", c.Audio.BlockSeconds)
	}

	if c.Alarm.Threshold <= 0 || c.Alarm.Threshold >= 1 {
		return fmt.Errorf("invalid alarm threshold %g: must be between 0 and 1 (normalized RMS)", c.Alarm.Threshold)
	}
	if c.Alarm.CooldownSeconds < 0 {
		return fmt.Errorf("invalid cooldown_seconds %g: must not be negative", c.Alarm.CooldownSeconds)
	}

	if c.Clips.Enabled {
		if err := util.ValidatePath("clips.directory", c.Clips.Directory); err != nil {
			return err
		}
		if c.Clips.RetentionDays < 1 {
			return fmt.Errorf("invalid clips retention_days %d: must be at least 1", c.Clips.RetentionDays)
		}
	}

	return nil
}

// applyDefaults sets default values for zero-value fields.
func (c *Config) applyDefaults() {
	if c.System.Port == 0 {
		c.System.Port = DefaultWebPort
	}
	if c.Web.StationName == "" {
		c.Web.StationName = DefaultStationName
	}
	if c.Web.ColorLight == "" {
		c.Web.ColorLight = DefaultStationColorLight
	}
	if c.Web.ColorDark == "" {
		c.Web.ColorDark = DefaultStationColorDark
	}
	if c.Audio.SampleRate == 0 {
		c.Audio.SampleRate = DefaultSampleRate
	}
	if c.Audio.BlockSeconds == 0 {
		c.Audio.BlockSeconds = DefaultBlockSeconds
	}
	if c.Alarm.Threshold == 0 {
		c.Alarm.Threshold = DefaultThreshold
	}
	if c.Alarm.CooldownSeconds == 0 {
		c.Alarm.CooldownSeconds = DefaultCooldownSeconds
	}
	if c.Clips.RetentionDays == 0 {
		c.Clips.RetentionDays = DefaultClipRetentionDays
	}
}

// saveLocked persists configuration. Caller must hold c.mu.
func (c *Config) saveLocked() error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return util.WrapError("marshal config", err)
	}

	dir := filepath.Dir(c.filePath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return util.WrapError("create config directory", err)
	}

	if err := os.WriteFile(c.filePath, data, 0o600); err != nil {
		return util.WrapError("write config", err)
	}

	return nil
}

// Save persists the configuration to disk.
func (c *Config) Save() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.saveLocked()
}

// Snapshot is a point-in-time copy of all configuration values.
type Snapshot struct {
	// System
	WebPort int
	LogPath string

	// Web/Branding
	StationName       string
	StationColorLight string
	StationColorDark  string

	// Audio
	AudioInput   string
	SampleRate   int
	BlockSeconds float64

	// Alarm
	Threshold       float64
	CooldownSeconds float64

	// Notifications
	WebhookURL string
	Graph      types.GraphConfig

	// Clips
	ClipsEnabled       bool
	ClipsDirectory     string
	ClipsRetentionDays int
	ClipsS3            types.ClipS3Config
}

// Snapshot returns a point-in-time copy of all configuration values.
func (c *Config) Snapshot() Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return Snapshot{
		WebPort:            c.System.Port,
		LogPath:            c.System.LogPath,
		StationName:        c.Web.StationName,
		StationColorLight:  c.Web.ColorLight,
		StationColorDark:   c.Web.ColorDark,
		AudioInput:         c.Audio.Input,
		SampleRate:         c.Audio.SampleRate,
		BlockSeconds:       c.Audio.BlockSeconds,
		Threshold:          c.Alarm.Threshold,
		CooldownSeconds:    c.Alarm.CooldownSeconds,
		WebhookURL:         c.Notifications.Webhook.URL,
		Graph:              c.Notifications.Email,
		ClipsEnabled:       c.Clips.Enabled,
		ClipsDirectory:     c.Clips.Directory,
		ClipsRetentionDays: c.Clips.RetentionDays,
		ClipsS3:            c.Clips.S3,
	}
}

// HasWebhook reports whether a webhook URL is configured.
func (s *Snapshot) HasWebhook() bool {
	return util.IsConfigured(s.WebhookURL)
}

// HasGraph reports whether email notifications are fully configured.
func (s *Snapshot) HasGraph() bool {
	return util.IsConfigured(s.Graph.TenantID, s.Graph.ClientID,
		s.Graph.ClientSecret, s.Graph.FromAddress, s.Graph.Recipients)
}
