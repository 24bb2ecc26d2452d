package notify

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSendAlarmWebhook(t *testing.T) {
	var received WebhookPayload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		require.NoError(t, json.Unmarshal(body, &received))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	err := SendAlarmWebhook(srv.URL, "ZuidWest FM", 0.12, 0.05, 7)
	require.NoError(t, err)

	assert.Equal(t, "alarm_triggered", received.Event)
	assert.InDelta(t, 0.12, received.Loudness, 1e-10)
	assert.InDelta(t, 0.05, received.Threshold, 1e-10)
	assert.Equal(t, int64(7), received.Block)
	assert.Equal(t, "ZuidWest FM", received.Station)
	assert.NotEmpty(t, received.Timestamp)
}

func TestSendAlarmWebhook_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	err := SendAlarmWebhook(srv.URL, "ZuidWest FM", 0.12, 0.05, 7)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "500")
}

func TestSendAlarmWebhook_UnconfiguredIsNoop(t *testing.T) {
	assert.NoError(t, SendAlarmWebhook("", "ZuidWest FM", 0.12, 0.05, 7))
}

func TestSendTestWebhook_RequiresURL(t *testing.T) {
	assert.Error(t, SendTestWebhook("", "ZuidWest FM"))
}

func TestParseRecipients(t *testing.T) {
	assert.Equal(t, []string{"a@example.com", "b@example.com"},
		ParseRecipients(" a@example.com, b@example.com ,"))
	assert.Nil(t, ParseRecipients(""))
}
