// Package eventlog provides unified event logging for the noise monitor.
// It captures monitor lifecycle events (started, stopped, faulted), alarm
// events (alert triggered) and clip events (saved, uploaded, cleaned up)
// in a single JSON lines file.
package eventlog

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"time"
)

// EventType represents the type of event.
type EventType string

// Monitor event types.
const (
	MonitorStarted EventType = "monitor_started"
	MonitorStopped EventType = "monitor_stopped"
	MonitorFaulted EventType = "monitor_faulted"
)

// Alarm event types.
const (
	AlertTriggered EventType = "alert_triggered"
)

// Clip event types.
const (
	ClipSaved        EventType = "clip_saved"
	ClipError        EventType = "clip_error"
	UploadQueued     EventType = "upload_queued"
	UploadCompleted  EventType = "upload_completed"
	UploadFailed     EventType = "upload_failed"
	CleanupCompleted EventType = "cleanup_completed"
)

// Event represents a single log entry with type-specific details.
type Event struct {
	Timestamp time.Time `json:"ts"`
	Type      EventType `json:"type"`
	Message   string    `json:"msg,omitempty"`
	Details   any       `json:"details,omitempty"`
}

// MonitorDetails contains monitor lifecycle event details.
type MonitorDetails struct {
	Device string `json:"device,omitempty"`
	Error  string `json:"error,omitempty"`
}

// AlertDetails contains alarm alert event details.
type AlertDetails struct {
	Loudness  float64 `json:"loudness"`
	Threshold float64 `json:"threshold"`
	Block     int64   `json:"block"`
}

// ClipDetails contains clip and upload event details.
type ClipDetails struct {
	Filename     string `json:"filename,omitempty"`
	S3Key        string `json:"s3_key,omitempty"`
	SizeBytes    int64  `json:"size_bytes,omitempty"`
	Error        string `json:"error,omitempty"`
	RetryCount   int    `json:"retry,omitempty"`
	FilesDeleted int    `json:"files_deleted,omitempty"`
}

// Logger writes events to a JSON lines file.
type Logger struct {
	mu       sync.Mutex
	filePath string
	file     *os.File
	encoder  *json.Encoder
}

// DefaultLogPath returns the platform-specific log file path.
func DefaultLogPath(port int) string {
	switch runtime.GOOS {
	case "windows":
		// %PROGRAMDATA% is typically C:\ProgramData
		programData := os.Getenv("PROGRAMDATA")
		if programData == "" {
			programData = `C:\ProgramData`
		}
		return filepath.Join(programData, "noisewatch", "logs", fmt.Sprintf("%d", port), "noisewatch.jsonl")
	default: // linux, darwin
		//nolint:gocritic // Intentional absolute path for Unix systems
		return filepath.Join("/var/log/noisewatch", fmt.Sprintf("%d", port), "noisewatch.jsonl")
	}
}

// NewLogger creates a new event logger at the specified path.
func NewLogger(filePath string) (*Logger, error) {
	// Ensure directory exists
	dir := filepath.Dir(filePath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create log directory: %w", err)
	}

	// Open file for appending
	file, err := os.OpenFile(filePath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}

	return &Logger{
		filePath: filePath,
		file:     file,
		encoder:  json.NewEncoder(file),
	}, nil
}

// Log writes an event to the log file.
func (l *Logger) Log(event *Event) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	return l.encoder.Encode(event)
}

// LogMonitor logs a monitor lifecycle event.
func (l *Logger) LogMonitor(eventType EventType, device, message, errMsg string) error {
	return l.Log(&Event{
		Timestamp: time.Now(),
		Type:      eventType,
		Message:   message,
		Details: &MonitorDetails{
			Device: device,
			Error:  errMsg,
		},
	})
}

// LogAlert logs a triggered alarm alert.
func (l *Logger) LogAlert(loudness, threshold float64, block int64) error {
	return l.Log(&Event{
		Timestamp: time.Now(),
		Type:      AlertTriggered,
		Details: &AlertDetails{
			Loudness:  loudness,
			Threshold: threshold,
			Block:     block,
		},
	})
}

// LogClip logs a clip or upload event.
func (l *Logger) LogClip(eventType EventType, filename, s3Key string, sizeBytes int64, errMsg string, retryCount, filesDeleted int) error {
	return l.Log(&Event{
		Timestamp: time.Now(),
		Type:      eventType,
		Details: &ClipDetails{
			Filename:     filename,
			S3Key:        s3Key,
			SizeBytes:    sizeBytes,
			Error:        errMsg,
			RetryCount:   retryCount,
			FilesDeleted: filesDeleted,
		},
	})
}

// Close closes the log file.
func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file != nil {
		return l.file.Close()
	}
	return nil
}

// Path returns the path to the log file.
func (l *Logger) Path() string {
	return l.filePath
}

// TypeFilter specifies which event types to include when reading.
type TypeFilter string

// Filter constants for ReadLast.
const (
	FilterAll     TypeFilter = ""
	FilterMonitor TypeFilter = "monitor"
	FilterAlarm   TypeFilter = "alarm"
	FilterClip    TypeFilter = "clip"
)

// MaxReadLimit is the maximum number of events that can be read at once.
// This prevents denial-of-service via excessive memory allocation.
const MaxReadLimit = 500

// matchesFilter returns true if the event type belongs to the filter family.
func matchesFilter(t EventType, filter TypeFilter) bool {
	switch filter {
	case FilterAll:
		return true
	case FilterMonitor:
		return IsMonitorEvent(t)
	case FilterAlarm:
		return IsAlarmEvent(t)
	case FilterClip:
		return IsClipEvent(t)
	default:
		return false
	}
}

// ReadLast reads events from the log file with pagination support.
// Returns up to n events starting from offset, filtered by type.
// Events are returned in reverse chronological order (newest first).
// The n parameter is capped at MaxReadLimit to prevent excessive memory allocation.
func ReadLast(filePath string, n, offset int, filter TypeFilter) ([]Event, bool, error) {
	if n > MaxReadLimit {
		n = MaxReadLimit
	}
	if n <= 0 {
		return []Event{}, false, nil
	}

	file, err := os.Open(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return []Event{}, false, nil
		}
		return nil, false, err
	}
	defer file.Close() //nolint:errcheck // Read-only operation, close error not critical

	// Read all lines
	var lines []string
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return nil, false, err
	}

	// Parse events in reverse order (newest first), applying filter
	events := make([]Event, 0, n)
	skipped := 0
	hasMore := false
	for i := len(lines) - 1; i >= 0; i-- {
		var event Event
		if err := json.Unmarshal([]byte(lines[i]), &event); err != nil {
			continue // Skip malformed lines
		}

		if !matchesFilter(event.Type, filter) {
			continue
		}

		// Skip events until we reach the offset
		if skipped < offset {
			skipped++
			continue
		}

		if len(events) >= n {
			// One more matching event exists beyond the requested page.
			hasMore = true
			break
		}

		events = append(events, event)
	}

	return events, hasMore, nil
}

// IsMonitorEvent returns true if the event type is a monitor lifecycle event.
func IsMonitorEvent(t EventType) bool {
	return t == MonitorStarted || t == MonitorStopped || t == MonitorFaulted
}

// IsAlarmEvent returns true if the event type is an alarm event.
func IsAlarmEvent(t EventType) bool {
	return t == AlertTriggered
}

// IsClipEvent returns true if the event type is a clip or upload event.
func IsClipEvent(t EventType) bool {
	return t == ClipSaved || t == ClipError || t == UploadQueued ||
		t == UploadCompleted || t == UploadFailed || t == CleanupCompleted
}
