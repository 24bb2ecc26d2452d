package alarm

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecider_AlarmTracksThreshold(t *testing.T) {
	d := NewDecider(0.05, 2*time.Second)
	now := time.Unix(1000, 0)

	assert.False(t, d.Decide(0.05, now).Alarm, "threshold is exclusive")
	assert.True(t, d.Decide(0.0501, now).Alarm)
	assert.False(t, d.Decide(0.01, now).Alarm)
	assert.True(t, d.Decide(1.0, now).Alarm)
}

func TestDecider_AlarmIndependentOfCooldown(t *testing.T) {
	d := NewDecider(0.05, time.Hour)
	now := time.Unix(1000, 0)

	// Every block above threshold reports Alarm, even while the cooldown
	// suppresses further alerts.
	for i := range 10 {
		decision := d.Decide(0.1, now.Add(time.Duration(i)*time.Second))
		assert.True(t, decision.Alarm, "block %d", i)
		assert.Equal(t, i == 0, decision.Alert, "block %d", i)
	}
}

func TestDecider_CooldownSpacing(t *testing.T) {
	cooldown := 2 * time.Second
	d := NewDecider(0.05, cooldown)
	start := time.Unix(1000, 0)

	// Fire loud blocks every 100ms for 10 seconds; triggered alerts must
	// never be closer than the cooldown, no matter how many blocks exceed
	// the threshold in between.
	var alerts []time.Time
	for i := range 100 {
		now := start.Add(time.Duration(i) * 100 * time.Millisecond)
		if d.Decide(0.2, now).Alert {
			alerts = append(alerts, now)
		}
	}

	require.NotEmpty(t, alerts)
	for i := 1; i < len(alerts); i++ {
		assert.Greater(t, alerts[i].Sub(alerts[i-1]), cooldown)
	}
}

func TestDecider_CooldownFromLastAlertNotLastAlarm(t *testing.T) {
	d := NewDecider(0.05, 2*time.Second)
	start := time.Unix(1000, 0)

	require.True(t, d.Decide(0.1, start).Alert)

	// Alarm conditions during the cooldown do not push the window forward.
	assert.False(t, d.Decide(0.1, start.Add(1*time.Second)).Alert)
	assert.False(t, d.Decide(0.1, start.Add(1900*time.Millisecond)).Alert)

	// Just past the cooldown from the *alert*, a new alert triggers.
	assert.True(t, d.Decide(0.1, start.Add(2100*time.Millisecond)).Alert)
	assert.Equal(t, start.Add(2100*time.Millisecond), d.LastAlert())
}

func TestDecider_NoAlertBelowThreshold(t *testing.T) {
	d := NewDecider(0.05, time.Second)
	now := time.Unix(1000, 0)

	for i := range 100 {
		decision := d.Decide(0.01, now.Add(time.Duration(i)*time.Second))
		assert.False(t, decision.Alarm)
		assert.False(t, decision.Alert)
	}
	assert.True(t, d.LastAlert().IsZero())
}

func TestDecider_LastAlertMonotonic(t *testing.T) {
	d := NewDecider(0.05, time.Second)
	start := time.Unix(1000, 0)

	var prev time.Time
	for i := range 50 {
		d.Decide(0.5, start.Add(time.Duration(i)*700*time.Millisecond))
		last := d.LastAlert()
		assert.False(t, last.Before(prev), "last alert instant went backwards")
		prev = last
	}
}
