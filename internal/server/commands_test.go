package server

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oszuidwest/zwfm-noisewatch/internal/config"
	"github.com/oszuidwest/zwfm-noisewatch/internal/eventlog"
	"github.com/oszuidwest/zwfm-noisewatch/internal/types"
)

type fakeController struct {
	started   bool
	stopped   bool
	restarted bool
	beeped    bool
	running   bool
	startErr  error
}

func (f *fakeController) StartMonitor() error { f.started = true; return f.startErr }
func (f *fakeController) StopMonitor() error { f.stopped = true; return nil }
func (f *fakeController) RestartMonitor() error { f.restarted = true; return nil }
func (f *fakeController) MonitorRunning() bool { return f.running }
func (f *fakeController) TestBeep() error { f.beeped = true; return nil }
func (f *fakeController) TestWebhook() error { return nil }
func (f *fakeController) TestEmail() error { return nil }
func (f *fakeController) TestClipS3(*types.ClipS3Config) error { return nil }
func (f *fakeController) GraphConfigChanged() {}
func (f *fakeController) ClipS3ConfigChanged() {}

func newTestHandler(t *testing.T) (*CommandHandler, *fakeController, *config.Config) {
	t.Helper()
	cfg := config.New(filepath.Join(t.TempDir(), "config.json"))
	ctrl := &fakeController{}
	return NewCommandHandler(cfg, ctrl, nil), ctrl, cfg
}

// receive waits for one message of the map-result shape and returns it.
func receive(t *testing.T, send chan any) map[string]any {
	t.Helper()
	select {
	case msg := <-send:
		result, ok := msg.(map[string]any)
		require.True(t, ok, "unexpected message type %T", msg)
		return result
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for response")
		return nil
	}
}

func TestHandle_MonitorStart(t *testing.T) {
	h, ctrl, _ := newTestHandler(t)
	send := make(chan any, 8)

	h.Handle(WSCommand{Type: "monitor/start"}, send, func() {})

	result := receive(t, send)
	assert.Equal(t, "monitor/start_result", result["type"])
	assert.Equal(t, true, result["success"])
	assert.True(t, ctrl.started)
}

func TestHandle_AlarmUpdatePersistsAndRestarts(t *testing.T) {
	h, ctrl, cfg := newTestHandler(t)
	ctrl.running = true
	send := make(chan any, 8)

	h.Handle(WSCommand{
		Type: "alarm/update",
		Data: json.RawMessage(`{"threshold": 0.08}`),
	}, send, func() {})

	result := receive(t, send)
	assert.Equal(t, true, result["success"])

	snap := cfg.Snapshot()
	assert.InDelta(t, 0.08, snap.Threshold, 1e-10)
	// Cooldown untouched.
	assert.InDelta(t, config.DefaultCooldownSeconds, snap.CooldownSeconds, 1e-10)

	assert.Eventually(t, func() bool { return ctrl.restarted },
		time.Second, 10*time.Millisecond)
}

func TestHandle_AlarmUpdateRejectsInvalidThreshold(t *testing.T) {
	h, _, cfg := newTestHandler(t)
	send := make(chan any, 8)

	h.Handle(WSCommand{
		Type: "alarm/update",
		Data: json.RawMessage(`{"threshold": 1.5}`),
	}, send, func() {})

	result := receive(t, send)
	assert.Equal(t, false, result["success"])
	assert.InDelta(t, config.DefaultThreshold, cfg.Snapshot().Threshold, 1e-10)
}

func TestHandle_TestBeep(t *testing.T) {
	h, ctrl, _ := newTestHandler(t)
	send := make(chan any, 8)

	h.Handle(WSCommand{Type: "alarm/test"}, send, func() {})

	select {
	case msg := <-send:
		result, ok := msg.(types.WSTestResult)
		require.True(t, ok, "unexpected message type %T", msg)
		assert.Equal(t, "test_result", result.Type)
		assert.Equal(t, "beep", result.TestType)
		assert.True(t, result.Success)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for test result")
	}
	assert.True(t, ctrl.beeped)
}

func TestHandle_EventsGet(t *testing.T) {
	cfg := config.New(filepath.Join(t.TempDir(), "config.json"))
	logger, err := eventlog.NewLogger(filepath.Join(t.TempDir(), "events.jsonl"))
	require.NoError(t, err)
	defer logger.Close() //nolint:errcheck // test cleanup

	require.NoError(t, logger.LogAlert(0.2, 0.05, 3))
	require.NoError(t, logger.LogMonitor(eventlog.MonitorStarted, "dev", "", ""))

	h := NewCommandHandler(cfg, &fakeController{}, logger)
	send := make(chan any, 8)

	h.Handle(WSCommand{
		Type: "events/get",
		Data: json.RawMessage(`{"filter": "alarm"}`),
	}, send, func() {})

	result := receive(t, send)
	require.Equal(t, true, result["success"])
	data, ok := result["data"].(map[string]any)
	require.True(t, ok)
	events, ok := data["events"].([]eventlog.Event)
	require.True(t, ok)
	require.Len(t, events, 1)
	assert.Equal(t, eventlog.AlertTriggered, events[0].Type)
}

func TestHandle_StatusTriggerAndUnknown(t *testing.T) {
	h, _, _ := newTestHandler(t)
	send := make(chan any, 8)

	var triggered int
	h.Handle(WSCommand{Type: "status/get"}, send, func() { triggered++ })
	h.Handle(WSCommand{Type: "bogus/none"}, send, func() { triggered++ })

	assert.Equal(t, 2, triggered)
	assert.Empty(t, send)
}

// A slow async action may finish after the client stopped reading. The
// response has to be dropped, never block, and never crash the process.
func TestHandleActionAsync_NoReaderLeft(t *testing.T) {
	send := make(chan any, 1)
	send <- "unread" // fill the buffer; nothing will ever drain it

	release := make(chan struct{})
	ran := make(chan struct{})
	HandleActionAsync(WSCommand{Type: "clips/test-s3"}, send, func() (any, error) {
		<-release
		close(ran)
		return nil, nil
	})

	close(release)
	select {
	case <-ran:
	case <-time.After(2 * time.Second):
		t.Fatal("async action did not run")
	}

	// Give the response path time to misbehave if it is going to.
	time.Sleep(50 * time.Millisecond)
	assert.Len(t, send, 1, "late response should be dropped, not delivered")
}

func TestHandle_ClipsUpdateRejectsUnwritableDirectory(t *testing.T) {
	h, _, cfg := newTestHandler(t)
	send := make(chan any, 8)

	// A path under a regular file can never become a directory.
	blocker := filepath.Join(t.TempDir(), "blocker")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0o600))
	badDir := filepath.Join(blocker, "clips")

	h.Handle(WSCommand{
		Type: "clips/update",
		Data: json.RawMessage(`{"enabled": true, "directory": ` + strconv.Quote(badDir) + `}`),
	}, send, func() {})

	result := receive(t, send)
	require.Equal(t, false, result["success"])
	assert.Equal(t, "", cfg.Snapshot().ClipsDirectory, "rejected directory must not be saved")
}
