// Package alarm implements threshold decisioning and the audible alert
// actuator for the loudness monitor.
package alarm

import (
	"time"
)

// Decision is the outcome of evaluating one block's loudness.
type Decision struct {
	// Alarm reports whether the loudness exceeded the threshold. It drives
	// the streamed signal and is set for every excursion above threshold.
	Alarm bool
	// Alert reports whether an audible alert sequence should be triggered
	// now. It is gated by the cooldown so a sustained loud event produces
	// one alert burst per cooldown interval, not one per block.
	Alert bool
}

// Decider applies the alarm threshold and enforces the minimum spacing
// between triggered alerts. The threshold and cooldown are fixed at
// construction. Decide must be called from a single goroutine; the last
// alert instant is owned exclusively by that goroutine.
type Decider struct {
	threshold float64
	cooldown  time.Duration
	lastAlert time.Time
}

// NewDecider returns a Decider with the given threshold and alert cooldown.
func NewDecider(threshold float64, cooldown time.Duration) *Decider {
	return &Decider{
		threshold: threshold,
		cooldown:  cooldown,
	}
}

// Decide evaluates one loudness value at the given instant.
// The cooldown is measured from the last triggered alert, not from the last
// alarm condition, so a continuous loud sound re-alerts once per cooldown
// interval.
func (d *Decider) Decide(loudness float64, now time.Time) Decision {
	decision := Decision{Alarm: loudness > d.threshold}

	if decision.Alarm && now.Sub(d.lastAlert) > d.cooldown {
		d.lastAlert = now
		decision.Alert = true
	}

	return decision
}

// Threshold returns the configured alarm threshold.
func (d *Decider) Threshold() float64 {
	return d.threshold
}

// LastAlert returns the instant of the most recently triggered alert, or the
// zero time if none has triggered.
func (d *Decider) LastAlert() time.Time {
	return d.lastAlert
}
