package notify

import (
	"fmt"
	"sync"

	"github.com/oszuidwest/zwfm-noisewatch/internal/config"
	"github.com/oszuidwest/zwfm-noisewatch/internal/monitor"
	"github.com/oszuidwest/zwfm-noisewatch/internal/util"
)

// AlarmNotifier fans a triggered alert out to the configured notification
// channels. Alerts are already debounced by the monitor's cooldown, so every
// call results in at most one webhook and one email.
type AlarmNotifier struct {
	cfg *config.Config

	// mu protects the cached Graph client
	mu          sync.Mutex
	graphClient *GraphClient
}

// NewAlarmNotifier returns an AlarmNotifier configured with the given config.
func NewAlarmNotifier(cfg *config.Config) *AlarmNotifier {
	return &AlarmNotifier{cfg: cfg}
}

// InvalidateGraphClient clears the cached Graph client.
// Call this when Graph configuration changes.
func (n *AlarmNotifier) InvalidateGraphClient() {
	n.mu.Lock()
	n.graphClient = nil
	n.mu.Unlock()
}

// getOrCreateGraphClient returns the cached Graph client, creating it if needed.
func (n *AlarmNotifier) getOrCreateGraphClient(cfg *GraphConfig) (*GraphClient, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.graphClient != nil {
		return n.graphClient, nil
	}

	client, err := NewGraphClient(cfg)
	if err != nil {
		return nil, err
	}
	n.graphClient = client
	return client, nil
}

// HandleAlert dispatches notifications for a triggered alert. Delivery runs
// in the background so the monitor loop is never blocked on network I/O.
func (n *AlarmNotifier) HandleAlert(event monitor.AlertEvent) {
	cfg := n.cfg.Snapshot()

	if cfg.HasWebhook() {
		go n.sendAlarmWebhook(cfg, event)
	}
	if cfg.HasGraph() {
		go n.sendAlarmEmail(cfg, event)
	}
}

//nolint:gocritic // hugeParam: copy is acceptable for infrequent notification events
func (n *AlarmNotifier) sendAlarmWebhook(cfg config.Snapshot, event monitor.AlertEvent) {
	util.LogNotifyResult(
		func() error {
			return SendAlarmWebhook(cfg.WebhookURL, cfg.StationName, event.Loudness, event.Threshold, event.Index)
		},
		"Alarm webhook",
	)
}

//nolint:gocritic // hugeParam: copy is acceptable for infrequent notification events
func (n *AlarmNotifier) sendAlarmEmail(cfg config.Snapshot, event monitor.AlertEvent) {
	util.LogNotifyResult(
		func() error { return n.sendAlarmEmailWithClient(&cfg.Graph, cfg.StationName, event) },
		"Alarm email",
	)
}

// sendAlarmEmailWithClient sends an alarm email using the cached Graph client.
func (n *AlarmNotifier) sendAlarmEmailWithClient(cfg *GraphConfig, stationName string, event monitor.AlertEvent) error {
	if !IsConfigured(cfg) {
		return nil
	}

	client, err := n.getOrCreateGraphClient(cfg)
	if err != nil {
		return util.WrapError("create Graph client", err)
	}

	subject := "[ALERT] Noise Detected - " + stationName
	body := fmt.Sprintf(
		"Loud audio detected by the noise monitor.\n\n"+
			"Loudness:  %.4f (RMS)\n"+
			"Threshold: %.4f\n"+
			"Block:     %d\n"+
			"Time:      %s\n\n"+
			"An audible alarm was played on the monitoring machine.",
		event.Loudness, event.Threshold, event.Index, util.HumanTime(),
	)

	recipients := ParseRecipients(cfg.Recipients)
	if len(recipients) == 0 {
		return fmt.Errorf("no valid recipients")
	}

	if err := client.SendMail(recipients, subject, body); err != nil {
		return util.WrapError("send email via Graph", err)
	}

	return nil
}
