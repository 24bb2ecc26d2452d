package alarm

import (
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// Beep sequence defaults, matching the classic studio alarm: three
// repetitions of a half-second 800 Hz square wave with a short gap.
const (
	DefaultBeepFrequency   = 800.0
	DefaultBeepDuration    = 500 * time.Millisecond
	DefaultBeepGap         = 100 * time.Millisecond
	DefaultBeepRepeats     = 3
	DefaultBeepSampleRate  = 44100
)

// TonePlayer plays a mono S16 PCM buffer to completion.
type TonePlayer func(pcm []int16, sampleRate int) error

// BeepConfig holds the alert sequence parameters.
type BeepConfig struct {
	Frequency  float64       // Tone frequency in Hz
	Duration   time.Duration // Duration of one tone
	Gap        time.Duration // Silence between repetitions
	Repeats    int           // Number of tone repetitions
	SampleRate int           // Playback sample rate
}

// DefaultBeepConfig returns the default alert sequence parameters.
func DefaultBeepConfig() BeepConfig {
	return BeepConfig{
		Frequency:  DefaultBeepFrequency,
		Duration:   DefaultBeepDuration,
		Gap:        DefaultBeepGap,
		Repeats:    DefaultBeepRepeats,
		SampleRate: DefaultBeepSampleRate,
	}
}

// Beeper plays the audible alert sequence. It is single-flight: a trigger
// arriving while a sequence is in progress is dropped, not queued. Playback
// runs on its own goroutine so alert latency never delays block processing.
type Beeper struct {
	cfg    BeepConfig
	tone   []int16
	player TonePlayer
	busy   atomic.Bool
	wg     sync.WaitGroup
}

// NewBeeper returns a Beeper that plays its sequence through player.
func NewBeeper(cfg BeepConfig, player TonePlayer) *Beeper {
	return &Beeper{
		cfg:    cfg,
		tone:   SquareWave(cfg.Frequency, cfg.Duration, cfg.SampleRate),
		player: player,
	}
}

// Trigger starts the alert sequence unless one is already playing.
// It reports whether a new sequence was started.
func (b *Beeper) Trigger() bool {
	if !b.busy.CompareAndSwap(false, true) {
		return false
	}

	b.wg.Add(1)
	go b.run()
	return true
}

// run plays the sequence. The busy flag is cleared unconditionally so a
// failing playback device can never leave the beeper stuck.
func (b *Beeper) run() {
	defer b.wg.Done()
	defer b.busy.Store(false)

	for i := range b.cfg.Repeats {
		if err := b.player(b.tone, b.cfg.SampleRate); err != nil {
			slog.Error("alert beep failed", "error", err)
			return
		}
		if i < b.cfg.Repeats-1 {
			time.Sleep(b.cfg.Gap)
		}
	}
}

// Busy reports whether an alert sequence is currently playing.
func (b *Beeper) Busy() bool {
	return b.busy.Load()
}

// Wait blocks until any in-flight alert sequence finishes. An in-flight
// sequence is allowed to complete rather than being cut off mid-tone.
func (b *Beeper) Wait() {
	b.wg.Wait()
}
