package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfig_LoadCreatesDefaultFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")

	cfg := New(path)
	require.NoError(t, cfg.Load())

	// A default file was written.
	_, err := os.Stat(path)
	require.NoError(t, err)

	snap := cfg.Snapshot()
	assert.Equal(t, DefaultWebPort, snap.WebPort)
	assert.Equal(t, DefaultSampleRate, snap.SampleRate)
	assert.InDelta(t, DefaultBlockSeconds, snap.BlockSeconds, 1e-10)
	assert.InDelta(t, DefaultThreshold, snap.Threshold, 1e-10)
	assert.InDelta(t, DefaultCooldownSeconds, snap.CooldownSeconds, 1e-10)
	assert.Equal(t, DefaultStationName, snap.StationName)
	assert.False(t, snap.ClipsEnabled)
}

func TestConfig_LoadAppliesDefaultsToPartialFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"alarm":{"threshold":0.2}}`), 0o600))

	cfg := New(path)
	require.NoError(t, cfg.Load())

	snap := cfg.Snapshot()
	assert.InDelta(t, 0.2, snap.Threshold, 1e-10)
	assert.Equal(t, DefaultSampleRate, snap.SampleRate)
	assert.InDelta(t, DefaultCooldownSeconds, snap.CooldownSeconds, 1e-10)
}

func TestConfig_Validation(t *testing.T) {
	tests := []struct {
		name string
		json string
	}{
		{name: "bad_port", json: `{"system":{"port":70000}}`},
		{name: "bad_color", json: `{"web":{"color_light":"pink"}}`},
		{name: "bad_sample_rate", json: `{"audio":{"sample_rate":100}}`},
		{name: "bad_block_seconds", json: `{"audio":{"block_seconds":60}}`},
		{name: "bad_threshold", json: `{"alarm":{"threshold":1.5}}`},
		{name: "negative_cooldown", json: `{"alarm":{"cooldown_seconds":-1}}`},
		{name: "clips_traversal", json: `{"clips":{"enabled":true,"directory":"../../etc"}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "config.json")
			require.NoError(t, os.WriteFile(path, []byte(tt.json), 0o600))
			assert.Error(t, New(path).Load())
		})
	}
}

func TestConfig_NotificationFlags(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	content := `{
		"notifications": {
			"webhook": {"url": "https://example.com/hook"},
			"email": {"tenant_id": "t", "client_id": "c", "client_secret": "s",
				"from_address": "alarm@example.com", "recipients": "ops@example.com"}
		}
	}`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg := New(path)
	require.NoError(t, cfg.Load())

	snap := cfg.Snapshot()
	assert.True(t, snap.HasWebhook())
	assert.True(t, snap.HasGraph())

	empty := Snapshot{}
	assert.False(t, empty.HasWebhook())
	assert.False(t, empty.HasGraph())
}

func TestConfig_SaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")

	cfg := New(path)
	cfg.Audio.Input = "USB Microphone"
	cfg.Alarm.Threshold = 0.08
	require.NoError(t, cfg.Save())

	reloaded := New(path)
	require.NoError(t, reloaded.Load())
	snap := reloaded.Snapshot()
	assert.Equal(t, "USB Microphone", snap.AudioInput)
	assert.InDelta(t, 0.08, snap.Threshold, 1e-10)
}
