// Package types provides shared type definitions used across the monitor.
package types

import (
	"time"
)

// MonitorState represents the current state of the monitoring pipeline.
type MonitorState string

const (
	// StateIdle indicates the monitor has not been started yet.
	StateIdle MonitorState = "idle"
	// StateStarting indicates the capture device is being opened.
	StateStarting MonitorState = "starting"
	// StateRunning indicates blocks are being captured and processed.
	StateRunning MonitorState = "running"
	// StateStopping indicates the monitor is shutting down.
	StateStopping MonitorState = "stopping"
	// StateStopped indicates the monitor is not running.
	StateStopped MonitorState = "stopped"
	// StateFaulted indicates the capture stream failed mid-run.
	StateFaulted MonitorState = "faulted"
)

// Sample is one processed audio block as delivered to subscribers.
type Sample struct {
	// Loudness is the RMS level of the block, normalized 0..1.
	Loudness float64 `json:"loudness"`
	// Alarm reports whether the block exceeded the configured threshold.
	Alarm bool `json:"alarm"`
	// Timestamp is seconds since the Unix epoch at block completion.
	Timestamp float64 `json:"timestamp"`
}

// Device represents an available audio capture device.
type Device struct {
	// ID is the device identifier.
	ID string `json:"id"`
	// Name is the device display name.
	Name string `json:"name"`
	// Default reports whether this is the system default capture device.
	Default bool `json:"default,omitzero"`
}

// MonitorStatus contains runtime status for the monitoring pipeline.
type MonitorStatus struct {
	State        MonitorState `json:"state"`                // Current pipeline state
	Device       string       `json:"device,omitempty"`     // Resolved capture device name
	Uptime       float64      `json:"uptime,omitempty"`     // Seconds since the first block
	Loudness     float64      `json:"loudness"`             // RMS of the most recent block
	PeakLoudness float64      `json:"peak_loudness"`        // Held peak loudness for meters
	Alarm        bool         `json:"alarm"`                // Most recent block exceeded threshold
	AlarmBlocks  int64        `json:"alarm_blocks"`         // Total blocks above threshold
	AlertCount   int64        `json:"alert_count"`          // Total triggered alert sequences
	LastAlert    string       `json:"last_alert,omitempty"` // RFC3339 time of the last alert
	LastError    string       `json:"last_error,omitempty"` // Error that faulted the pipeline
	Subscribers  int          `json:"subscribers"`          // Currently connected feed subscribers
}

// GraphConfig is the Microsoft Graph credential set for email notifications.
type GraphConfig struct {
	TenantID     string `json:"tenant_id"`
	ClientID     string `json:"client_id"`
	ClientSecret string `json:"client_secret"`
	FromAddress  string `json:"from_address"`
	Recipients   string `json:"recipients"`
}

// ClipS3Config holds S3-compatible storage settings for alert clip upload.
type ClipS3Config struct {
	Endpoint        string `json:"endpoint"`          // Custom endpoint (empty = AWS)
	Bucket          string `json:"bucket"`            // Target bucket
	AccessKeyID     string `json:"access_key_id"`     // Access key
	SecretAccessKey string `json:"secret_access_key"` // Secret key
	Prefix          string `json:"prefix"`            // Key prefix for uploaded clips
}

// IsConfigured reports whether the S3 settings are complete enough to upload.
func (c *ClipS3Config) IsConfigured() bool {
	return c.Bucket != "" && c.AccessKeyID != "" && c.SecretAccessKey != ""
}

const (
	// InitialUploadRetryDelay is the starting delay between clip upload attempts.
	InitialUploadRetryDelay = 3000 * time.Millisecond
	// MaxUploadRetryDelay is the maximum delay between clip upload attempts.
	MaxUploadRetryDelay = 60000 * time.Millisecond
	// MaxUploadRetries is the maximum number of clip upload attempts.
	MaxUploadRetries = 5
)
