package main

import (
	"errors"
	"fmt"
	"html/template"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/oszuidwest/zwfm-noisewatch/internal/alarm"
	"github.com/oszuidwest/zwfm-noisewatch/internal/audio"
	"github.com/oszuidwest/zwfm-noisewatch/internal/clip"
	"github.com/oszuidwest/zwfm-noisewatch/internal/config"
	"github.com/oszuidwest/zwfm-noisewatch/internal/eventlog"
	"github.com/oszuidwest/zwfm-noisewatch/internal/hub"
	"github.com/oszuidwest/zwfm-noisewatch/internal/monitor"
	"github.com/oszuidwest/zwfm-noisewatch/internal/notify"
	"github.com/oszuidwest/zwfm-noisewatch/internal/server"
	"github.com/oszuidwest/zwfm-noisewatch/internal/types"
	"github.com/oszuidwest/zwfm-noisewatch/internal/util"
)

var indexTmpl = template.Must(template.New("index").Parse(indexHTML))
var faviconTmpl = template.Must(template.New("favicon").Parse(faviconSVG))

type indexData struct {
	Version     string
	Year        int
	StationName string
	PrimaryCSS  template.CSS
}

// portScanRange is how many ports above the configured one are tried when
// the configured port is already taken.
const portScanRange = 10

// Server is the HTTP server that provides the web interface and the live
// sample feed, and owns the monitoring pipeline lifecycle.
type Server struct {
	config      *config.Config
	hub         *hub.Hub
	eventLogger *eventlog.Logger
	clips       *clip.Manager
	notifier    *notify.AlarmNotifier
	beeper      *alarm.Beeper
	commands    *server.CommandHandler
	version     *VersionChecker

	mu      sync.Mutex
	monitor *monitor.Monitor
}

// NewServer returns a new Server wired to the provided components.
func NewServer(cfg *config.Config, h *hub.Hub, eventLogger *eventlog.Logger, clips *clip.Manager, notifier *notify.AlarmNotifier) *Server {
	s := &Server{
		config:      cfg,
		hub:         h,
		eventLogger: eventLogger,
		clips:       clips,
		notifier:    notifier,
		beeper:      alarm.NewBeeper(alarm.DefaultBeepConfig(), audio.PlayTone),
		version:     NewVersionChecker(),
	}
	s.commands = server.NewCommandHandler(cfg, s, eventLogger)
	return s
}

// StartMonitor builds a fresh pipeline from the current configuration and
// starts it. Returns an error if a pipeline is already running.
func (s *Server) StartMonitor() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.monitor != nil && s.monitor.IsRunning() {
		return monitor.ErrAlreadyRunning
	}

	snap := s.config.Snapshot()
	captureCfg := audio.CaptureConfig{
		Device:       snap.AudioInput,
		SampleRate:   snap.SampleRate,
		BlockSeconds: snap.BlockSeconds,
	}

	m := monitor.New(
		monitor.Config{
			Threshold: snap.Threshold,
			Cooldown:  time.Duration(snap.CooldownSeconds * float64(time.Second)),
		},
		func() monitor.Source { return audio.NewCapture(captureCfg) },
		s.beeper,
		s.hub,
	)
	m.SetAlertHandler(s.handleAlert)
	m.SetFaultHandler(func(err error) {
		s.logMonitorEvent(eventlog.MonitorFaulted, m, err.Error())
	})

	if err := m.Start(); err != nil {
		s.logMonitorEvent(eventlog.MonitorFaulted, m, err.Error())
		return err
	}

	s.monitor = m
	s.logMonitorEvent(eventlog.MonitorStarted, m, "")
	return nil
}

// StopMonitor stops the running pipeline. Stopping an already stopped
// pipeline is not an error.
func (s *Server) StopMonitor() error {
	s.mu.Lock()
	m := s.monitor
	s.mu.Unlock()

	if m == nil {
		return nil
	}
	if err := m.Stop(); err != nil {
		if errors.Is(err, monitor.ErrNotRunning) {
			return nil
		}
		return err
	}
	s.logMonitorEvent(eventlog.MonitorStopped, m, "")
	return nil
}

// RestartMonitor stops the pipeline and starts a new one from the current
// configuration. Used after settings changes that the pipeline reads at start.
func (s *Server) RestartMonitor() error {
	if err := s.StopMonitor(); err != nil {
		return err
	}
	return s.StartMonitor()
}

// MonitorRunning reports whether the pipeline is currently active.
func (s *Server) MonitorRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.monitor != nil && s.monitor.IsRunning()
}

// handleAlert fans one triggered alert out to the event log, the notifiers
// and the clip writer. Runs on the pipeline goroutine, so everything slow
// is handed off inside the handlers.
func (s *Server) handleAlert(event monitor.AlertEvent) {
	if s.eventLogger != nil {
		if err := s.eventLogger.LogAlert(event.Loudness, event.Threshold, event.Index); err != nil {
			slog.Error("failed to log alert", "error", err)
		}
	}
	s.notifier.HandleAlert(event)
	if s.clips != nil {
		s.clips.HandleAlert(event)
	}
}

func (s *Server) logMonitorEvent(eventType eventlog.EventType, m *monitor.Monitor, errMsg string) {
	if s.eventLogger == nil {
		return
	}
	device := ""
	if m != nil {
		device = m.Status().Device
	}
	message := ""
	switch eventType {
	case eventlog.MonitorStarted:
		message = "monitoring started"
	case eventlog.MonitorStopped:
		message = "monitoring stopped"
	case eventlog.MonitorFaulted:
		message = "monitoring faulted"
	}
	if err := s.eventLogger.LogMonitor(eventType, device, message, errMsg); err != nil {
		slog.Error("failed to log monitor event", "error", err)
	}
}

// TestBeep plays the audible alert sequence once.
func (s *Server) TestBeep() error {
	if !s.beeper.Trigger() {
		return errors.New("alert sequence already playing")
	}
	return nil
}

// TestWebhook sends a test notification to the configured webhook.
func (s *Server) TestWebhook() error {
	snap := s.config.Snapshot()
	if !snap.HasWebhook() {
		return errors.New("webhook URL not configured")
	}
	return notify.SendTestWebhook(snap.WebhookURL, snap.StationName)
}

// TestEmail validates the Graph credentials and sends a test email.
func (s *Server) TestEmail() error {
	snap := s.config.Snapshot()
	if !snap.HasGraph() {
		return errors.New("email notifications not configured")
	}
	return notify.SendTestEmail(&snap.Graph, snap.StationName)
}

// TestClipS3 verifies that the given S3 settings allow object writes.
func (s *Server) TestClipS3(cfg *types.ClipS3Config) error {
	return clip.TestS3Connection(cfg)
}

// GraphConfigChanged drops the cached Graph client so the next notification
// authenticates with the new credentials.
func (s *Server) GraphConfigChanged() {
	s.notifier.InvalidateGraphClient()
}

// ClipS3ConfigChanged drops the cached S3 client so the next upload uses the
// new settings.
func (s *Server) ClipS3ConfigChanged() {
	if s.clips != nil {
		s.clips.InvalidateS3Client()
	}
}

// handleWebSocket handles bidirectional WebSocket communication for real-time updates.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := server.UpgradeConnection(w, r)
	if err != nil {
		slog.Error("WebSocket upgrade failed", "error", err)
		return
	}

	// Create buffered send channel for thread-safe writes.
	// Only the writer goroutine writes to the connection, preventing race
	// conditions. The channel is never closed: command handlers respond
	// asynchronously and may send after the client is gone, so late sends
	// must hit a live (if unread) channel rather than a closed one.
	send := make(chan any, 16)
	done := make(chan struct{})
	statusUpdate := make(chan struct{}, 1)

	// Writer goroutine - sole writer to the connection
	go s.runWebSocketWriter(conn, send, done)

	// Reader goroutine - handles incoming commands
	go s.runWebSocketReader(conn, send, done, statusUpdate)

	s.runWebSocketEventLoop(send, done, statusUpdate)
}

// runWebSocketWriter writes messages from the send channel to the connection
// until the reader signals disconnect.
func (s *Server) runWebSocketWriter(conn server.WebSocketConn, send <-chan any, done <-chan struct{}) {
	defer func() {
		if err := conn.Close(); err != nil {
			slog.Debug("WebSocket close error", "error", err)
		}
	}()
	for {
		select {
		case msg := <-send:
			if err := conn.WriteJSON(msg); err != nil {
				return
			}
		case <-done:
			return
		}
	}
}

// runWebSocketReader reads commands from the connection and dispatches them.
func (s *Server) runWebSocketReader(conn server.WebSocketConn, send chan<- any, done, statusUpdate chan<- struct{}) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("panic in WebSocket reader", "panic", r)
		}
		close(done)
	}()

	for {
		var cmd server.WSCommand
		if err := conn.ReadJSON(&cmd); err != nil {
			return
		}
		s.commands.Handle(cmd, send, func() {
			select {
			case statusUpdate <- struct{}{}:
			default:
			}
		})
	}
}

// runWebSocketEventLoop forwards live samples from the feed hub and sends
// periodic status updates until the connection goes away.
func (s *Server) runWebSocketEventLoop(send chan any, done, statusUpdate <-chan struct{}) {
	sub := s.hub.Subscribe()
	defer s.hub.Unsubscribe(sub)
	samples := sub.Samples()

	statusTicker := time.NewTicker(3000 * time.Millisecond) // Status updates every 3s
	defer statusTicker.Stop()

	// trySend attempts to send a message, returning false if done is closed
	trySend := func(msg any) bool {
		select {
		case send <- msg:
			return true
		case <-done:
			return false
		}
	}

	// Send initial status
	if !trySend(s.buildWSStatus()) {
		return
	}

	for {
		select {
		case <-done:
			return
		case <-statusUpdate:
			if !trySend(s.buildWSStatus()) {
				return
			}
		case sample, ok := <-samples:
			if !ok {
				// Evicted by the hub for falling behind. Stop forwarding
				// samples but keep status updates until the client leaves.
				samples = nil
				continue
			}
			if !trySend(types.WSSampleResponse{
				Type:      "sample",
				Sample:    sample,
				Threshold: s.config.Snapshot().Threshold,
			}) {
				return
			}
		case <-statusTicker.C:
			if !trySend(s.buildWSStatus()) {
				return
			}
		}
	}
}

// buildWSStatus returns the current WebSocket status response.
func (s *Server) buildWSStatus() types.WSStatusResponse {
	cfg := s.config.Snapshot()

	s.mu.Lock()
	m := s.monitor
	s.mu.Unlock()

	var status types.MonitorStatus
	if m != nil {
		status = m.Status()
	} else {
		status = types.MonitorStatus{State: types.StateIdle, Subscribers: s.hub.Count()}
	}

	return types.WSStatusResponse{
		Type:            "status",
		Monitor:         status,
		Devices:         audio.Devices(),
		Threshold:       cfg.Threshold,
		CooldownSeconds: cfg.CooldownSeconds,
		BlockSeconds:    cfg.BlockSeconds,
		StationName:     cfg.StationName,
		Version:         s.version.Info(),
	}
}

// SetupRoutes returns an [http.Handler] configured with all application routes.
func (s *Server) SetupRoutes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/ws", s.handleWebSocket)
	mux.HandleFunc("/favicon.svg", s.handleFavicon)

	// REST API for scripted access
	mux.HandleFunc("/api/health", s.handleAPIHealth)
	mux.HandleFunc("/api/status", s.handleAPIStatus)
	mux.HandleFunc("/api/devices", s.handleAPIDevices)
	mux.HandleFunc("/api/events", s.handleAPIEvents)
	mux.HandleFunc("/api/monitor/start", s.handleAPIMonitorStart)
	mux.HandleFunc("/api/monitor/stop", s.handleAPIMonitorStop)

	mux.HandleFunc("/", s.handleStatic)

	return securityHeaders(mux)
}

// securityHeaders returns middleware that wraps handlers with security headers.
func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		next.ServeHTTP(w, r)
	})
}

// handleFavicon serves the favicon with the configured station color.
func (s *Server) handleFavicon(w http.ResponseWriter, _ *http.Request) {
	cfg := s.config.Snapshot()
	w.Header().Set("Content-Type", "image/svg+xml")
	if err := faviconTmpl.Execute(w, struct{ Color string }{Color: cfg.StationColorLight}); err != nil {
		slog.Error("failed to render favicon", "error", err)
	}
}

// staticFile is an embedded static file with content type and data.
type staticFile struct {
	contentType string
	content     string
	name        string
}

// staticFiles is a map from URL paths to static file definitions.
var staticFiles = map[string]staticFile{
	"/style.css": {
		contentType: "text/css",
		content:     styleCSS,
		name:        "style.css",
	},
	"/app.js": {
		contentType: "application/javascript",
		content:     appJS,
		name:        "app.js",
	},
	// favicon.svg is served dynamically via handleFavicon
}

// serveStaticFile serves a static file by path and reports whether it was found.
func serveStaticFile(w http.ResponseWriter, path string) bool {
	file, ok := staticFiles[path]
	if !ok {
		return false
	}
	w.Header().Set("Content-Type", file.contentType)
	if _, err := w.Write([]byte(file.content)); err != nil {
		slog.Error("failed to write static file", "file", file.name, "error", err)
	}
	return true
}

// handleStatic handles requests for embedded static web interface files.
func (s *Server) handleStatic(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Path
	if path == "/" {
		path = "/index.html"
	}

	// Serve index.html with dynamic placeholders.
	if path == "/index.html" {
		cfg := s.config.Snapshot()
		w.Header().Set("Content-Type", "text/html")
		if err := indexTmpl.Execute(w, indexData{
			Version:     Version,
			Year:        time.Now().Year(),
			StationName: cfg.StationName,
			PrimaryCSS:  template.CSS(util.GenerateBrandCSS(cfg.StationColorLight, cfg.StationColorDark)),
		}); err != nil {
			slog.Error("failed to write index.html", "error", err)
		}
		return
	}

	if serveStaticFile(w, path) {
		return
	}

	http.NotFound(w, r)
}

// Start begins the HTTP server. If the configured port is taken, the next
// ports up to portScanRange above it are tried so a second instance on the
// same machine comes up without manual intervention.
// Returns an *http.Server that can be used for graceful shutdown.
func (s *Server) Start() (*http.Server, error) {
	port := s.config.Snapshot().WebPort

	var listener net.Listener
	var err error
	for candidate := port; candidate < port+portScanRange; candidate++ {
		listener, err = net.Listen("tcp", fmt.Sprintf(":%d", candidate))
		if err == nil {
			if candidate != port {
				slog.Warn("configured port in use, picked a free one", "configured", port, "port", candidate)
			}
			break
		}
	}
	if listener == nil {
		return nil, util.WrapError("listen", err)
	}

	slog.Info("starting web server", "addr", listener.Addr().String())

	srv := &http.Server{
		Handler: s.SetupRoutes(),
	}

	go func() {
		if err := srv.Serve(listener); err != nil && err != http.ErrServerClosed {
			slog.Error("HTTP server error", "error", err)
		}
	}()

	return srv, nil
}
