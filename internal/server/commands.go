package server

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/oszuidwest/zwfm-noisewatch/internal/audio"
	"github.com/oszuidwest/zwfm-noisewatch/internal/config"
	"github.com/oszuidwest/zwfm-noisewatch/internal/eventlog"
	"github.com/oszuidwest/zwfm-noisewatch/internal/types"
	"github.com/oszuidwest/zwfm-noisewatch/internal/util"
)

// DefaultEventPageSize is the events/get page size when none is requested.
const DefaultEventPageSize = 50

// WSCommand is a command received from a WebSocket client.
type WSCommand struct {
	Type string          `json:"type"`
	ID   string          `json:"id,omitempty"`
	Data json.RawMessage `json:"data,omitempty"`
}

// Controller is the application surface the command handler drives. The root
// application implements it; keeping it an interface lets handler tests fake
// the whole pipeline.
type Controller interface {
	StartMonitor() error
	StopMonitor() error
	RestartMonitor() error
	MonitorRunning() bool
	TestBeep() error
	TestWebhook() error
	TestEmail() error
	TestClipS3(cfg *types.ClipS3Config) error
	GraphConfigChanged()
	ClipS3ConfigChanged()
}

// CommandHandler processes WebSocket commands.
type CommandHandler struct {
	cfg         *config.Config
	ctrl        Controller
	eventLogger *eventlog.Logger
}

// NewCommandHandler creates a new command handler.
func NewCommandHandler(cfg *config.Config, ctrl Controller, eventLogger *eventlog.Logger) *CommandHandler {
	return &CommandHandler{
		cfg:         cfg,
		ctrl:        ctrl,
		eventLogger: eventLogger,
	}
}

// Handle processes a WebSocket command and performs the requested action.
// Commands use slash-style format: namespace/action (e.g., "monitor/start",
// "notifications/webhook/test").
func (h *CommandHandler) Handle(cmd WSCommand, send chan<- any, triggerStatusUpdate func()) {
	parts := strings.SplitN(cmd.Type, "/", 3)
	namespace := parts[0]
	action := ""
	if len(parts) > 1 {
		action = parts[1]
	}
	subaction := ""
	if len(parts) > 2 {
		subaction = parts[2]
	}

	switch namespace {
	case "monitor":
		h.handleMonitor(action, cmd, send)
	case "audio":
		h.handleAudio(action, cmd, send)
	case "alarm":
		h.handleAlarm(action, cmd, send)
	case "notifications":
		h.handleNotifications(action, subaction, cmd, send)
	case "clips":
		h.handleClips(action, cmd, send)
	case "events":
		h.handleEvents(action, cmd, send)
	case "status":
		h.handleStatus(action, send)
	default:
		slog.Warn("unknown WebSocket command", "type", cmd.Type)
	}

	triggerStatusUpdate()
}

// --- Namespace handlers ---

// handleMonitor routes monitor/* commands
func (h *CommandHandler) handleMonitor(action string, cmd WSCommand, send chan<- any) {
	switch action {
	case "start":
		HandleActionAsync(cmd, send, func() (any, error) {
			return nil, h.ctrl.StartMonitor()
		})
	case "stop":
		HandleActionAsync(cmd, send, func() (any, error) {
			return nil, h.ctrl.StopMonitor()
		})
	default:
		slog.Warn("unknown monitor action", "action", action)
	}
}

// handleAudio routes audio/* commands
func (h *CommandHandler) handleAudio(action string, cmd WSCommand, send chan<- any) {
	switch action {
	case "update":
		h.handleAudioUpdate(cmd, send)
	case "devices":
		HandleActionAsync(cmd, send, func() (any, error) {
			return map[string]any{"devices": audio.Devices()}, nil
		})
	case "get":
		snap := h.cfg.Snapshot()
		SendSuccess(send, cmd.Type, map[string]any{
			"input":         snap.AudioInput,
			"sample_rate":   snap.SampleRate,
			"block_seconds": snap.BlockSeconds,
		})
	default:
		slog.Warn("unknown audio action", "action", action)
	}
}

// handleAlarm routes alarm/* commands
func (h *CommandHandler) handleAlarm(action string, cmd WSCommand, send chan<- any) {
	switch action {
	case "update":
		h.handleAlarmUpdate(cmd, send)
	case "test":
		h.handleTest(send, "test_beep")
	case "get":
		snap := h.cfg.Snapshot()
		SendSuccess(send, cmd.Type, map[string]any{
			"threshold":        snap.Threshold,
			"cooldown_seconds": snap.CooldownSeconds,
		})
	default:
		slog.Warn("unknown alarm action", "action", action)
	}
}

// handleNotifications routes notifications/*/* commands
func (h *CommandHandler) handleNotifications(action, subaction string, cmd WSCommand, send chan<- any) {
	switch action {
	case "webhook":
		switch subaction {
		case "update":
			h.handleWebhookUpdate(cmd, send)
		case "test":
			h.handleTest(send, "test_webhook")
		case "get":
			SendSuccess(send, cmd.Type, map[string]any{"url": h.cfg.Snapshot().WebhookURL})
		default:
			slog.Warn("unknown webhook action", "subaction", subaction)
		}
	case "email":
		switch subaction {
		case "update":
			h.handleEmailUpdate(cmd, send)
		case "test":
			h.handleTest(send, "test_email")
		case "get":
			h.handleEmailGet(cmd, send)
		default:
			slog.Warn("unknown email action", "subaction", subaction)
		}
	default:
		slog.Warn("unknown notifications action", "action", action)
	}
}

// handleClips routes clips/* commands
func (h *CommandHandler) handleClips(action string, cmd WSCommand, send chan<- any) {
	switch action {
	case "update":
		h.handleClipsUpdate(cmd, send)
	case "s3-update":
		h.handleClipsS3Update(cmd, send)
	case "test-s3":
		h.handleTestClipS3(cmd, send)
	case "get":
		h.handleClipsGet(cmd, send)
	default:
		slog.Warn("unknown clips action", "action", action)
	}
}

// handleEvents routes events/* commands
func (h *CommandHandler) handleEvents(action string, cmd WSCommand, send chan<- any) {
	switch action {
	case "get":
		h.handleEventsGet(cmd, send)
	default:
		slog.Warn("unknown events action", "action", action)
	}
}

// handleStatus routes status/* commands
func (h *CommandHandler) handleStatus(action string, _ chan<- any) {
	switch action {
	case "get":
		// Status is sent automatically, but explicit get triggers an
		// immediate update via triggerStatusUpdate in Handle.
		slog.Debug("status/get received, status update will be triggered")
	default:
		slog.Warn("unknown status action", "action", action)
	}
}

// --- Settings handlers ---

// handleAudioUpdate processes an audio/update command.
func (h *CommandHandler) handleAudioUpdate(cmd WSCommand, send chan<- any) {
	HandleCommand(cmd, send, func(req *AudioUpdateRequest) error {
		if err := h.cfg.SetAudioInput(req.Input); err != nil {
			return err
		}
		slog.Info("audio/update: capture device changed", "input", req.Input)

		// Reopen the device if the pipeline is running
		if h.ctrl.MonitorRunning() {
			go func() {
				if err := h.ctrl.RestartMonitor(); err != nil {
					slog.Error("audio/update: monitor restart failed", "error", err)
				}
			}()
		}
		return nil
	})
}

// handleAlarmUpdate processes an alarm/update command.
func (h *CommandHandler) handleAlarmUpdate(cmd WSCommand, send chan<- any) {
	HandleCommand(cmd, send, func(req *AlarmUpdateRequest) error {
		snap := h.cfg.Snapshot()

		threshold := snap.Threshold
		cooldown := snap.CooldownSeconds
		if req.Threshold != nil {
			threshold = *req.Threshold
		}
		if req.CooldownSeconds != nil {
			cooldown = *req.CooldownSeconds
		}

		if err := h.cfg.SetAlarm(threshold, cooldown); err != nil {
			return err
		}
		slog.Info("alarm/update: settings changed", "threshold", threshold, "cooldown_seconds", cooldown)

		// A running session keeps its parameters until restarted
		if h.ctrl.MonitorRunning() {
			go func() {
				if err := h.ctrl.RestartMonitor(); err != nil {
					slog.Error("alarm/update: monitor restart failed", "error", err)
				}
			}()
		}
		return nil
	})
}

// handleWebhookUpdate processes a notifications/webhook/update command.
func (h *CommandHandler) handleWebhookUpdate(cmd WSCommand, send chan<- any) {
	HandleCommand(cmd, send, func(req *WebhookUpdateRequest) error {
		return h.cfg.SetWebhookURL(req.URL)
	})
}

// handleEmailUpdate processes a notifications/email/update command.
func (h *CommandHandler) handleEmailUpdate(cmd WSCommand, send chan<- any) {
	HandleCommand(cmd, send, func(req *EmailUpdateRequest) error {
		if err := h.cfg.SetGraphConfig(
			req.TenantID,
			req.ClientID,
			req.ClientSecret,
			req.FromAddress,
			req.Recipients,
		); err != nil {
			return err
		}
		h.ctrl.GraphConfigChanged()
		return nil
	})
}

// handleEmailGet processes a notifications/email/get command.
// The client secret is never echoed back.
func (h *CommandHandler) handleEmailGet(cmd WSCommand, send chan<- any) {
	graph := h.cfg.Snapshot().Graph
	SendSuccess(send, cmd.Type, map[string]any{
		"tenant_id":    graph.TenantID,
		"client_id":    graph.ClientID,
		"from_address": graph.FromAddress,
		"recipients":   graph.Recipients,
		"configured":   graph.ClientSecret != "",
	})
}

// handleClipsUpdate processes a clips/update command.
func (h *CommandHandler) handleClipsUpdate(cmd WSCommand, send chan<- any) {
	HandleCommand(cmd, send, func(req *ClipsUpdateRequest) error {
		snap := h.cfg.Snapshot()

		enabled := snap.ClipsEnabled
		directory := snap.ClipsDirectory
		retentionDays := snap.ClipsRetentionDays
		if req.Enabled != nil {
			enabled = *req.Enabled
		}
		if req.Directory != "" {
			directory = req.Directory
		}
		if req.RetentionDays != nil {
			retentionDays = *req.RetentionDays
		}

		// Catch unwritable directories at save time, not at the first alert.
		if enabled && directory != "" {
			if err := util.CheckPathWritable(directory); err != nil {
				return fmt.Errorf("clip directory: %w", err)
			}
		}

		return h.cfg.SetClips(enabled, directory, retentionDays)
	})
}

// handleClipsS3Update processes a clips/s3-update command.
func (h *CommandHandler) handleClipsS3Update(cmd WSCommand, send chan<- any) {
	HandleCommand(cmd, send, func(req *ClipsS3UpdateRequest) error {
		if err := h.cfg.SetClipsS3(
			req.Endpoint,
			req.Bucket,
			req.AccessKeyID,
			req.SecretAccessKey,
			req.Prefix,
		); err != nil {
			return err
		}
		h.ctrl.ClipS3ConfigChanged()
		return nil
	})
}

// handleClipsGet processes a clips/get command.
// The S3 secret key is never echoed back.
func (h *CommandHandler) handleClipsGet(cmd WSCommand, send chan<- any) {
	snap := h.cfg.Snapshot()
	SendSuccess(send, cmd.Type, map[string]any{
		"enabled":        snap.ClipsEnabled,
		"directory":      snap.ClipsDirectory,
		"retention_days": snap.ClipsRetentionDays,
		"s3": map[string]any{
			"endpoint":      snap.ClipsS3.Endpoint,
			"bucket":        snap.ClipsS3.Bucket,
			"access_key_id": snap.ClipsS3.AccessKeyID,
			"prefix":        snap.ClipsS3.Prefix,
			"configured":    snap.ClipsS3.IsConfigured(),
		},
	})
}

// handleTestClipS3 processes a clips/test-s3 command.
func (h *CommandHandler) handleTestClipS3(cmd WSCommand, send chan<- any) {
	var req S3TestRequest
	if !DecodeAndValidate(cmd, send, &req) {
		return
	}

	HandleActionAsync(cmd, send, func() (any, error) {
		err := h.ctrl.TestClipS3(&types.ClipS3Config{
			Endpoint:        req.Endpoint,
			Bucket:          req.Bucket,
			AccessKeyID:     req.AccessKey,
			SecretAccessKey: req.SecretKey,
		})
		return nil, err
	})
}

// handleEventsGet processes an events/get command.
func (h *CommandHandler) handleEventsGet(cmd WSCommand, send chan<- any) {
	var req EventsGetRequest
	if !DecodeAndValidate(cmd, send, &req) {
		return
	}
	if req.Limit == 0 {
		req.Limit = DefaultEventPageSize
	}

	HandleActionAsync(cmd, send, func() (any, error) {
		if h.eventLogger == nil {
			return nil, fmt.Errorf("event log not available")
		}

		events, hasMore, err := eventlog.ReadLast(
			h.eventLogger.Path(), req.Limit, req.Offset, eventlog.TypeFilter(req.Filter))
		if err != nil {
			return nil, fmt.Errorf("read event log: %w", err)
		}

		return map[string]any{
			"events":   events,
			"has_more": hasMore,
			"offset":   req.Offset,
		}, nil
	})
}

// --- Test handlers ---

// runTest dispatches to the appropriate test on the controller.
func (h *CommandHandler) runTest(testType string) error {
	switch testType {
	case "beep":
		return h.ctrl.TestBeep()
	case "webhook":
		return h.ctrl.TestWebhook()
	case "email":
		return h.ctrl.TestEmail()
	default:
		return fmt.Errorf("unknown test type: %s", testType)
	}
}

// handleTest executes a test and sends the result to the client.
// testCmd should be in format "test_<type>" (e.g., "test_email", "test_beep").
func (h *CommandHandler) handleTest(send chan<- any, testCmd string) {
	testType := strings.TrimPrefix(testCmd, "test_")

	go func() {
		defer func() {
			if r := recover(); r != nil {
				slog.Error("panic in test handler", "command", testCmd, "panic", r)
			}
		}()

		result := types.WSTestResult{
			Type:     "test_result",
			TestType: testType,
			Success:  true,
		}

		if err := h.runTest(testType); err != nil {
			slog.Error("test failed", "command", testCmd, "error", err)
			result.Success = false
			result.Error = err.Error()
		} else {
			slog.Info("test succeeded", "command", testCmd)
		}

		// Non-blocking to prevent a goroutine leak if the channel is closed
		select {
		case send <- result:
		default:
			slog.Warn("failed to send test response: channel full or closed", "command", testCmd)
		}
	}()
}
