package main

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/oszuidwest/zwfm-noisewatch/internal/config"
	"github.com/oszuidwest/zwfm-noisewatch/internal/hub"
	"github.com/oszuidwest/zwfm-noisewatch/internal/notify"
	"github.com/oszuidwest/zwfm-noisewatch/internal/server"
	"github.com/oszuidwest/zwfm-noisewatch/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	cfg := config.New(filepath.Join(t.TempDir(), "config.json"))
	require.NoError(t, cfg.Load())
	srv := NewServer(cfg, hub.New(), nil, nil, notify.NewAlarmNotifier(cfg))
	t.Cleanup(srv.version.Stop)
	return srv
}

// A command handler may respond after the client has already disconnected.
// The connection's send channel must tolerate that without panicking.
func TestWebSocketEventLoop_LateResponseAfterDisconnect(t *testing.T) {
	srv := newTestServer(t)

	send := make(chan any, 16)
	done := make(chan struct{})
	statusUpdate := make(chan struct{}, 1)

	loopDone := make(chan struct{})
	go func() {
		srv.runWebSocketEventLoop(send, done, statusUpdate)
		close(loopDone)
	}()

	// Client disconnects while a slow command is still in flight.
	close(done)
	select {
	case <-loopDone:
	case <-time.After(2 * time.Second):
		t.Fatal("event loop did not stop on disconnect")
	}

	// The in-flight command's response arrives now. It is dropped, not a
	// crash: this process hosts the monitoring pipeline.
	server.SendSuccess(send, "clips/test-s3", nil)
	server.SendError(send, "monitor/start", assert.AnError)
}

func TestWebSocketEventLoop_KeepsStatusAfterHubEviction(t *testing.T) {
	srv := newTestServer(t)

	send := make(chan any, 16)
	done := make(chan struct{})
	statusUpdate := make(chan struct{}, 1)

	go srv.runWebSocketEventLoop(send, done, statusUpdate)

	// Initial status comes first.
	select {
	case msg := <-send:
		status, ok := msg.(types.WSStatusResponse)
		require.True(t, ok)
		assert.Equal(t, types.StateIdle, status.Monitor.State)
	case <-time.After(2 * time.Second):
		t.Fatal("no initial status")
	}

	// Evict every subscriber. The loop must survive and still answer
	// status requests rather than tearing the connection down.
	srv.hub.Close()
	statusUpdate <- struct{}{}

	select {
	case msg := <-send:
		_, ok := msg.(types.WSStatusResponse)
		assert.True(t, ok)
	case <-time.After(2 * time.Second):
		t.Fatal("no status after eviction")
	}

	close(done)
}
