// Package monitor wires the capture source, loudness metric, alarm decider,
// alert actuator and distribution hub into a single processing pipeline.
//
// The pipeline goroutine is the only place blocks are consumed and the only
// place decider state is mutated. Alert playback, notifications and clip
// capture all run off the capture path.
package monitor

import (
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/oszuidwest/zwfm-noisewatch/internal/alarm"
	"github.com/oszuidwest/zwfm-noisewatch/internal/audio"
	"github.com/oszuidwest/zwfm-noisewatch/internal/hub"
	"github.com/oszuidwest/zwfm-noisewatch/internal/types"
)

// Sentinel errors for monitor operations.
var (
	ErrAlreadyRunning = errors.New("monitor already running")
	ErrNotRunning     = errors.New("monitor not running")
)

// Source produces a real-time sequence of audio blocks. audio.Capture is the
// production implementation; tests substitute their own.
type Source interface {
	// Start opens the device and returns the block channel. The channel is
	// closed when the sequence ends.
	Start() (<-chan []float64, error)
	// Stop ends the sequence promptly and releases the device.
	Stop()
	// Err reports the terminal stream error, or nil after a deliberate stop.
	Err() error
	// DeviceName returns the resolved device name after Start.
	DeviceName() string
}

// SourceFactory creates a fresh capture source for each monitoring session.
type SourceFactory func() Source

// Actuator triggers the audible alert sequence.
type Actuator interface {
	Trigger() bool
}

// AlertEvent describes one triggered alert for downstream handlers.
type AlertEvent struct {
	Loudness  float64   // RMS of the offending block
	Threshold float64   // Configured alarm threshold
	Index     int64     // Sequence number of the block within the session
	Block     []float64 // The offending block's samples
	Time      time.Time // Decision instant
}

// Config holds the pipeline parameters, immutable for a session.
type Config struct {
	Threshold float64       // Alarm threshold, same units as RMS output
	Cooldown  time.Duration // Minimum spacing between triggered alerts
}

// Monitor owns the processing pipeline and its lifecycle:
// idle → starting → running → stopping → stopped, with running → faulted →
// stopped when the capture stream fails. No block is processed once the
// state leaves running.
type Monitor struct {
	cfg       Config
	newSource SourceFactory
	actuator  Actuator
	hub       *hub.Hub
	peak      *audio.PeakHolder

	// onAlert is invoked on the pipeline goroutine for each triggered
	// alert; handlers must hand slow work to their own goroutines.
	onAlert func(AlertEvent)
	// onFault is invoked once when the capture stream fails mid-run.
	onFault func(error)
	clock   func() time.Time

	mu          sync.RWMutex
	state       types.MonitorState
	source      Source
	decider     *alarm.Decider
	stop        chan struct{}
	stopOnce    *sync.Once
	done        chan struct{}
	startTime   time.Time
	device      string
	loudness    float64
	alarmed     bool
	blockIndex  int64
	alarmBlocks int64
	alertCount  int64
	lastAlert   time.Time
	lastError   string
}

// New creates a Monitor in the idle state.
func New(cfg Config, newSource SourceFactory, actuator Actuator, h *hub.Hub) *Monitor {
	return &Monitor{
		cfg:       cfg,
		newSource: newSource,
		actuator:  actuator,
		hub:       h,
		peak:      audio.NewPeakHolder(),
		clock:     time.Now,
		state:     types.StateIdle,
	}
}

// SetAlertHandler registers a handler for triggered alerts. Call before Start.
func (m *Monitor) SetAlertHandler(fn func(AlertEvent)) {
	m.onAlert = fn
}

// SetFaultHandler registers a handler for fatal capture errors. Call before Start.
func (m *Monitor) SetFaultHandler(fn func(error)) {
	m.onFault = fn
}

// Start opens the capture source and launches the pipeline goroutine.
// It returns audio.ErrDeviceUnavailable (wrapped) if the device cannot be
// opened, and ErrAlreadyRunning if a session is active.
func (m *Monitor) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch m.state {
	case types.StateIdle, types.StateStopped, types.StateFaulted:
	default:
		return ErrAlreadyRunning
	}

	m.state = types.StateStarting
	m.lastError = ""

	source := m.newSource()
	blocks, err := source.Start()
	if err != nil {
		m.state = types.StateStopped
		m.lastError = err.Error()
		return err
	}

	m.source = source
	m.device = source.DeviceName()
	m.decider = alarm.NewDecider(m.cfg.Threshold, m.cfg.Cooldown)
	m.loudness = 0
	m.alarmed = false
	m.blockIndex = 0
	m.alarmBlocks = 0
	m.alertCount = 0
	m.lastAlert = time.Time{}
	m.startTime = time.Time{}
	m.peak.Reset()
	m.stop = make(chan struct{})
	m.stopOnce = &sync.Once{}
	m.done = make(chan struct{})

	slog.Info("monitor starting", "device", m.device,
		"threshold", m.cfg.Threshold, "cooldown", m.cfg.Cooldown)

	go m.run(source, blocks, m.stop, m.done)
	return nil
}

// Stop requests an orderly shutdown and waits for the pipeline goroutine to
// drain. An in-flight alert sequence is left to finish on its own.
func (m *Monitor) Stop() error {
	m.mu.Lock()
	switch m.state {
	case types.StateStarting, types.StateRunning:
	default:
		m.mu.Unlock()
		return ErrNotRunning
	}
	stop, done, stopOnce := m.stop, m.done, m.stopOnce
	m.mu.Unlock()

	stopOnce.Do(func() { close(stop) })
	<-done
	return nil
}

// run is the pipeline goroutine: capture → compute → decide → (actuate | broadcast).
func (m *Monitor) run(source Source, blocks <-chan []float64, stop <-chan struct{}, done chan struct{}) {
	defer close(done)

	for {
		select {
		case <-stop:
			m.setState(types.StateStopping)
			source.Stop()
			// Discard blocks still in flight; nothing is processed once
			// the state leaves running.
			for range blocks {
			}
			m.finish(nil)
			return

		case block, ok := <-blocks:
			if !ok {
				// The source ended on its own: fatal capture error.
				err := source.Err()
				if err == nil {
					err = audio.ErrCaptureInterrupted
				}
				m.setState(types.StateFaulted)
				slog.Error("capture stream failed", "error", err)
				source.Stop()
				if m.onFault != nil {
					m.onFault(err)
				}
				m.finish(err)
				return
			}
			select {
			case <-stop:
				// Stop raced with a delivered block; do not process it.
				continue
			default:
			}
			m.process(block)
		}
	}
}

// process handles exactly one captured block.
func (m *Monitor) process(block []float64) {
	loudness, err := audio.RMS(block)
	if err != nil {
		// Contract violation by the capture source, not a runtime
		// condition to recover from.
		slog.Error("skipping invalid audio block", "error", err)
		return
	}

	now := m.clock()
	decision := m.decider.Decide(loudness, now)

	m.mu.Lock()
	if m.state == types.StateStarting {
		m.state = types.StateRunning
		m.startTime = now
		slog.Info("monitor running", "device", m.device)
	}
	index := m.blockIndex
	m.blockIndex++
	m.loudness = loudness
	m.alarmed = decision.Alarm
	if decision.Alarm {
		m.alarmBlocks++
	}
	if decision.Alert {
		m.alertCount++
		m.lastAlert = now
	}
	m.mu.Unlock()

	m.peak.Update(loudness, now)

	if decision.Alert {
		slog.Warn("loud sound detected", "loudness", loudness,
			"threshold", m.cfg.Threshold)
		m.actuator.Trigger()
		if m.onAlert != nil {
			m.onAlert(AlertEvent{
				Loudness:  loudness,
				Threshold: m.cfg.Threshold,
				Index:     index,
				Block:     block,
				Time:      now,
			})
		}
	}

	m.hub.Publish(types.Sample{
		Loudness:  loudness,
		Alarm:     decision.Alarm,
		Timestamp: float64(now.UnixNano()) / float64(time.Second),
	})
}

func (m *Monitor) setState(state types.MonitorState) {
	m.mu.Lock()
	m.state = state
	m.mu.Unlock()
}

// finish records the terminal state of a session.
func (m *Monitor) finish(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state = types.StateStopped
	m.source = nil
	if err != nil {
		m.lastError = err.Error()
	}
	slog.Info("monitor stopped", "error", m.lastError)
}

// State returns the current pipeline state.
func (m *Monitor) State() types.MonitorState {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// IsRunning reports whether the pipeline is processing blocks.
func (m *Monitor) IsRunning() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state == types.StateRunning || m.state == types.StateStarting
}

// Threshold returns the configured alarm threshold.
func (m *Monitor) Threshold() float64 {
	return m.cfg.Threshold
}

// Status returns a snapshot of the pipeline's runtime status.
func (m *Monitor) Status() types.MonitorStatus {
	m.mu.RLock()
	defer m.mu.RUnlock()

	status := types.MonitorStatus{
		State:        m.state,
		Device:       m.device,
		Loudness:     m.loudness,
		PeakLoudness: m.peak.Update(m.loudness, m.clock()),
		Alarm:        m.alarmed,
		AlarmBlocks:  m.alarmBlocks,
		AlertCount:   m.alertCount,
		LastError:    m.lastError,
		Subscribers:  m.hub.Count(),
	}
	if m.state == types.StateRunning && !m.startTime.IsZero() {
		status.Uptime = m.clock().Sub(m.startTime).Seconds()
	}
	if !m.lastAlert.IsZero() {
		status.LastAlert = m.lastAlert.Format(time.RFC3339)
	}
	return status
}
