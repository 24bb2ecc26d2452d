package audio

import (
	"sync"
	"time"
)

// DefaultPeakHoldDuration is the default duration that the peak loudness is
// held before decaying to the current value.
const DefaultPeakHoldDuration = 3000 * time.Millisecond

// PeakHolder tracks peak-hold state for the loudness meter.
// It is safe for concurrent use.
type PeakHolder struct {
	mu           sync.Mutex
	held         float64
	peakHoldTime time.Time
	holdDuration time.Duration
}

// NewPeakHolder creates a new peak holder with the default hold duration.
func NewPeakHolder() *PeakHolder {
	return &PeakHolder{
		holdDuration: DefaultPeakHoldDuration,
	}
}

// Update updates the peak hold state with a new loudness value and returns
// the held peak.
func (p *PeakHolder) Update(loudness float64, now time.Time) float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	if loudness >= p.held || now.Sub(p.peakHoldTime) > p.holdDuration {
		p.held = loudness
		p.peakHoldTime = now
	}
	return p.held
}

// SetHoldDuration updates the peak hold duration.
func (p *PeakHolder) SetHoldDuration(d time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.holdDuration = d
}

// Reset clears the held peak.
func (p *PeakHolder) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.held = 0
	p.peakHoldTime = time.Time{}
}
