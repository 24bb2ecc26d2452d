package monitor

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oszuidwest/zwfm-noisewatch/internal/audio"
	"github.com/oszuidwest/zwfm-noisewatch/internal/hub"
	"github.com/oszuidwest/zwfm-noisewatch/internal/types"
)

// fakeSource feeds blocks from a channel under test control.
type fakeSource struct {
	ch      chan []float64
	openErr error
	mu      sync.Mutex
	termErr error
	stopped bool
	once    sync.Once
}

func newFakeSource() *fakeSource {
	return &fakeSource{ch: make(chan []float64)}
}

func (s *fakeSource) Start() (<-chan []float64, error) {
	if s.openErr != nil {
		return nil, s.openErr
	}
	return s.ch, nil
}

func (s *fakeSource) Stop() {
	s.mu.Lock()
	s.stopped = true
	s.mu.Unlock()
	s.once.Do(func() { close(s.ch) })
}

func (s *fakeSource) interrupt(err error) {
	s.mu.Lock()
	s.termErr = err
	s.mu.Unlock()
	s.once.Do(func() { close(s.ch) })
}

func (s *fakeSource) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.termErr
}

func (s *fakeSource) wasStopped() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopped
}

func (s *fakeSource) DeviceName() string { return "fake input" }

// fakeActuator counts triggered alert sequences.
type fakeActuator struct {
	triggers atomic.Int64
}

func (a *fakeActuator) Trigger() bool {
	a.triggers.Add(1)
	return true
}

// fakeClock returns strictly advancing instants, one step per call. The
// step is slightly over the block duration, mirroring real capture cadence
// where each block lands a hair later than the nominal period.
type fakeClock struct {
	mu   sync.Mutex
	now  time.Time
	step time.Duration
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := c.now
	c.now = c.now.Add(c.step)
	return t
}

// constantBlock returns a block whose RMS equals level.
func constantBlock(level float64, n int) []float64 {
	block := make([]float64, n)
	for i := range block {
		block[i] = level
	}
	return block
}

func newTestMonitor(t *testing.T, cfg Config) (*Monitor, *fakeSource, *fakeActuator, *hub.Hub) {
	t.Helper()
	src := newFakeSource()
	act := &fakeActuator{}
	h := hub.New()
	m := New(cfg, func() Source { return src }, act, h)
	m.clock = (&fakeClock{now: time.Unix(1000, 0), step: 1001 * time.Millisecond}).Now
	return m, src, act, h
}

func collect(t *testing.T, sub *hub.Subscriber, n int) []types.Sample {
	t.Helper()
	samples := make([]types.Sample, 0, n)
	for range n {
		select {
		case s := <-sub.Samples():
			samples = append(samples, s)
		case <-time.After(5 * time.Second):
			t.Fatalf("timed out after %d samples", len(samples))
		}
	}
	return samples
}

func TestMonitor_SustainedLoudInput(t *testing.T) {
	m, src, act, h := newTestMonitor(t, Config{Threshold: 0.05, Cooldown: 2 * time.Second})

	var alerts []AlertEvent
	m.SetAlertHandler(func(ev AlertEvent) { alerts = append(alerts, ev) })

	sub := h.Subscribe()
	require.NoError(t, m.Start())

	for range 10 {
		src.ch <- constantBlock(0.10, 100)
	}
	samples := collect(t, sub, 10)
	require.NoError(t, m.Stop())

	// Every excursion above threshold is visible on the feed.
	for i, s := range samples {
		assert.True(t, s.Alarm, "sample %d", i)
		assert.InDelta(t, 0.10, s.Loudness, 1e-10, "sample %d", i)
	}

	// With a 1s block and 2s cooldown the alert fires on blocks 1 and 3
	// (not 2), then every other block.
	require.Len(t, alerts, 5)
	base := alerts[0].Time
	assert.Equal(t, 2*time.Second+2*time.Millisecond, alerts[1].Time.Sub(base))
	assert.Equal(t, int64(0), alerts[0].Index)
	assert.Equal(t, int64(2), alerts[1].Index)
	assert.Equal(t, int64(5), act.triggers.Load())

	status := m.Status()
	assert.Equal(t, types.StateStopped, status.State)
	assert.Equal(t, int64(10), status.AlarmBlocks)
	assert.Equal(t, int64(5), status.AlertCount)
	assert.Empty(t, status.LastError)
}

func TestMonitor_QuietInput(t *testing.T) {
	m, src, act, h := newTestMonitor(t, Config{Threshold: 0.05, Cooldown: 2 * time.Second})

	sub := h.Subscribe()
	require.NoError(t, m.Start())

	for range 5 {
		src.ch <- constantBlock(0.01, 100)
	}
	samples := collect(t, sub, 5)
	require.NoError(t, m.Stop())

	for i, s := range samples {
		assert.False(t, s.Alarm, "sample %d", i)
	}
	assert.Zero(t, act.triggers.Load())
	assert.Zero(t, m.Status().AlertCount)
}

func TestMonitor_SubscriberDisconnectMidStream(t *testing.T) {
	m, src, _, h := newTestMonitor(t, Config{Threshold: 0.05, Cooldown: time.Second})

	leaving := h.Subscribe()
	staying := h.Subscribe()
	require.NoError(t, m.Start())

	src.ch <- constantBlock(0.01, 100)
	src.ch <- constantBlock(0.01, 100)
	collect(t, leaving, 2)
	collect(t, staying, 2)

	h.Unsubscribe(leaving)

	// Publishing continues unaffected for the remaining subscriber.
	for range 3 {
		src.ch <- constantBlock(0.01, 100)
	}
	collect(t, staying, 3)

	require.NoError(t, m.Stop())
}

func TestMonitor_CaptureInterruptFaultsPipeline(t *testing.T) {
	m, src, _, h := newTestMonitor(t, Config{Threshold: 0.05, Cooldown: time.Second})

	var faulted atomic.Bool
	m.SetFaultHandler(func(err error) {
		assert.ErrorIs(t, err, audio.ErrCaptureInterrupted)
		faulted.Store(true)
	})

	sub := h.Subscribe()
	require.NoError(t, m.Start())

	src.ch <- constantBlock(0.01, 100)
	collect(t, sub, 1)
	assert.Equal(t, types.StateRunning, m.State())

	src.interrupt(audio.ErrCaptureInterrupted)

	require.Eventually(t, func() bool {
		return m.State() == types.StateStopped
	}, 5*time.Second, time.Millisecond)

	assert.True(t, faulted.Load())
	assert.True(t, src.wasStopped())
	assert.Contains(t, m.Status().LastError, "interrupted")

	// Stopping a faulted monitor reports it is not running.
	assert.ErrorIs(t, m.Stop(), ErrNotRunning)
}

func TestMonitor_StartErrors(t *testing.T) {
	m, src, _, _ := newTestMonitor(t, Config{Threshold: 0.05, Cooldown: time.Second})

	require.NoError(t, m.Start())
	assert.ErrorIs(t, m.Start(), ErrAlreadyRunning)
	require.NoError(t, m.Stop())

	src.openErr = audio.ErrDeviceUnavailable
	src.once = sync.Once{}
	src.ch = make(chan []float64)
	err := m.Start()
	require.ErrorIs(t, err, audio.ErrDeviceUnavailable)
	assert.Equal(t, types.StateStopped, m.State())
	assert.NotEmpty(t, m.Status().LastError)
}

func TestMonitor_StopWhenIdle(t *testing.T) {
	m, _, _, _ := newTestMonitor(t, Config{Threshold: 0.05, Cooldown: time.Second})
	assert.ErrorIs(t, m.Stop(), ErrNotRunning)
	assert.Equal(t, types.StateIdle, m.State())
}

func TestMonitor_InvalidBlockIsSkipped(t *testing.T) {
	m, src, _, h := newTestMonitor(t, Config{Threshold: 0.05, Cooldown: time.Second})

	sub := h.Subscribe()
	require.NoError(t, m.Start())

	// An empty block violates the capture contract: logged and skipped,
	// never published and never fatal.
	src.ch <- []float64{}
	src.ch <- constantBlock(0.01, 100)

	samples := collect(t, sub, 1)
	assert.False(t, samples[0].Alarm)
	require.NoError(t, m.Stop())
	assert.Empty(t, m.Status().LastError)
}
