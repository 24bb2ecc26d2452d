package clip

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/oszuidwest/zwfm-noisewatch/internal/config"
	"github.com/oszuidwest/zwfm-noisewatch/internal/eventlog"
	"github.com/oszuidwest/zwfm-noisewatch/internal/monitor"
)

// uploadQueueSize bounds the number of clips waiting for upload.
const uploadQueueSize = 16

// Manager writes alert clips to disk and coordinates upload and cleanup.
// Clip writing happens off the monitor goroutine so a slow disk or network
// never stalls the pipeline.
type Manager struct {
	cfg         *config.Config
	eventLogger *eventlog.Logger

	uploadQueue chan uploadRequest
	uploadWg    sync.WaitGroup
	stopCh      chan struct{}
	stopOnce    sync.Once

	mu       sync.Mutex
	s3Client s3API
}

// NewManager creates a clip manager. The clip directory is created if clips
// are enabled.
func NewManager(cfg *config.Config, eventLogger *eventlog.Logger) (*Manager, error) {
	snap := cfg.Snapshot()
	if snap.ClipsEnabled {
		if err := os.MkdirAll(snap.ClipsDirectory, 0o755); err != nil { //nolint:gosec // Clip directory needs to be readable
			return nil, fmt.Errorf("create clip directory: %w", err)
		}
	}

	m := &Manager{
		cfg:         cfg,
		eventLogger: eventLogger,
		uploadQueue: make(chan uploadRequest, uploadQueueSize),
		stopCh:      make(chan struct{}),
	}

	m.uploadWg.Add(1)
	go m.uploadWorker()
	go m.cleanupScheduler()

	return m, nil
}

// HandleAlert persists the offending block of a triggered alert. Safe to call
// from the monitor goroutine; the write happens in the background.
func (m *Manager) HandleAlert(event monitor.AlertEvent) {
	snap := m.cfg.Snapshot()
	if !snap.ClipsEnabled {
		return
	}

	go m.saveClip(snap, event)
}

//nolint:gocritic // hugeParam: copy is acceptable for infrequent alert events
func (m *Manager) saveClip(snap config.Snapshot, event monitor.AlertEvent) {
	filename := Filename(event.Time)
	path := filepath.Join(snap.ClipsDirectory, filename)

	size, err := WriteWAV(path, event.Block, snap.SampleRate)
	if err != nil {
		slog.Error("failed to write alert clip", "file", filename, "error", err)
		m.logClipEvent(eventlog.ClipError, filename, "", 0, err.Error(), 0)
		return
	}

	slog.Info("alert clip saved", "file", filename, "bytes", size)
	m.logClipEvent(eventlog.ClipSaved, filename, "", size, "", 0)

	if snap.ClipsS3.IsConfigured() {
		m.queueForUpload(path, filename, size, snap.ClipsS3.Prefix)
	}
}

func (m *Manager) logClipEvent(eventType eventlog.EventType, filename, s3Key string, size int64, errMsg string, retries int) {
	if m.eventLogger == nil {
		return
	}
	if err := m.eventLogger.LogClip(eventType, filename, s3Key, size, errMsg, retries, 0); err != nil {
		slog.Warn("failed to log clip event", "type", eventType, "error", err)
	}
}

// Close stops the upload worker after draining queued uploads, and stops the
// cleanup scheduler.
func (m *Manager) Close() {
	m.stopOnce.Do(func() { close(m.stopCh) })
	m.uploadWg.Wait()
}
