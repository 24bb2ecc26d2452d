package audio

import (
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/gen2brain/malgo"
)

// Capture errors.
var (
	// ErrDeviceUnavailable is returned when the capture device cannot be opened.
	ErrDeviceUnavailable = errors.New("capture device unavailable")
	// ErrCaptureInterrupted is returned when the capture stream stops unexpectedly.
	ErrCaptureInterrupted = errors.New("capture stream interrupted")
)

// blockQueueDepth bounds the block channel. The pipeline normally drains a
// block well within one block duration, so a small buffer absorbs jitter
// without letting a stalled consumer wedge the device callback.
const blockQueueDepth = 4

// CaptureConfig holds the capture source parameters, fixed at start.
type CaptureConfig struct {
	Device       string  // Device ID or name substring, empty for system default
	SampleRate   int     // Samples per second
	BlockSeconds float64 // Duration of one block
}

// BlockSize returns the number of samples per block.
func (c *CaptureConfig) BlockSize() int {
	return int(float64(c.SampleRate) * c.BlockSeconds)
}

// Capture produces a real-time sequence of fixed-duration audio blocks from
// a system capture device. Blocks arrive on the channel returned by Start in
// capture order, exactly once each; a block is dropped (and logged) only if
// the consumer falls more than blockQueueDepth blocks behind.
type Capture struct {
	cfg CaptureConfig

	blocks   chan []float64
	ctx      *malgo.AllocatedContext
	device   *malgo.Device
	name     string
	stopping atomic.Bool
	closed   sync.Once

	mu  sync.Mutex
	err error
}

// NewCapture returns an unstarted capture source for the given configuration.
func NewCapture(cfg CaptureConfig) *Capture {
	return &Capture{
		cfg:    cfg,
		blocks: make(chan []float64, blockQueueDepth),
	}
}

// defaultBackend picks the native audio backend for the current platform,
// leaving miniaudio to auto-select elsewhere.
func defaultBackend() []malgo.Backend {
	switch runtime.GOOS {
	case "linux":
		return []malgo.Backend{malgo.BackendAlsa}
	case "windows":
		return []malgo.Backend{malgo.BackendWasapi}
	case "darwin":
		return []malgo.Backend{malgo.BackendCoreaudio}
	default:
		return nil
	}
}

// Start opens the capture device and begins block delivery.
// It returns ErrDeviceUnavailable (wrapped) if the device cannot be opened.
// The returned channel is closed when the source stops, either via Stop or
// on a mid-run stream failure; Err reports the terminal error in the latter
// case.
func (c *Capture) Start() (<-chan []float64, error) {
	ctx, err := malgo.InitContext(defaultBackend(), malgo.ContextConfig{}, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: init context: %v", ErrDeviceUnavailable, err)
	}

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Capture)
	deviceConfig.Capture.Format = malgo.FormatS16
	deviceConfig.Capture.Channels = 1
	deviceConfig.SampleRate = uint32(c.cfg.SampleRate)
	deviceConfig.Alsa.NoMMap = 1

	if c.cfg.Device != "" {
		infos, err := ctx.Devices(malgo.Capture)
		if err != nil {
			uninitContext(ctx)
			return nil, fmt.Errorf("%w: list devices: %v", ErrDeviceUnavailable, err)
		}
		found := false
		for i := range infos {
			if matchesDevice(&infos[i], c.cfg.Device) {
				deviceConfig.Capture.DeviceID = infos[i].ID.Pointer()
				c.name = infos[i].Name()
				found = true
				break
			}
		}
		if !found {
			uninitContext(ctx)
			return nil, fmt.Errorf("%w: no device matches %q", ErrDeviceUnavailable, c.cfg.Device)
		}
	} else {
		c.name = "default"
	}

	assembler := NewAssembler(c.cfg.BlockSize(), c.deliver)

	callbacks := malgo.DeviceCallbacks{
		Data: func(_, input []byte, _ uint32) {
			assembler.Write(input)
		},
		Stop: func() {
			// Fires on Stop/Uninit too; only an unexpected stop is a fault.
			if c.stopping.Load() {
				return
			}
			c.fail(ErrCaptureInterrupted)
		},
	}

	device, err := malgo.InitDevice(ctx.Context, deviceConfig, callbacks)
	if err != nil {
		uninitContext(ctx)
		return nil, fmt.Errorf("%w: init device: %v", ErrDeviceUnavailable, err)
	}

	if err := device.Start(); err != nil {
		device.Uninit()
		uninitContext(ctx)
		return nil, fmt.Errorf("%w: start device: %v", ErrDeviceUnavailable, err)
	}

	c.ctx = ctx
	c.device = device
	return c.blocks, nil
}

// deliver hands a completed block to the consumer without ever blocking the
// device callback.
func (c *Capture) deliver(block []float64) {
	if c.stopping.Load() {
		return
	}
	select {
	case c.blocks <- block:
	default:
		slog.Warn("dropping audio block: pipeline is falling behind",
			"queue_depth", blockQueueDepth)
	}
}

// fail records a terminal error and ends the block sequence.
func (c *Capture) fail(err error) {
	c.mu.Lock()
	if c.err == nil {
		c.err = err
	}
	c.mu.Unlock()
	c.closed.Do(func() { close(c.blocks) })
}

// Stop ends the block sequence and releases the device. Safe to call more
// than once. The capture wait is interrupted promptly; any partially
// assembled block is discarded.
func (c *Capture) Stop() {
	if !c.stopping.CompareAndSwap(false, true) {
		return
	}

	if c.device != nil {
		c.device.Uninit()
		c.device = nil
	}
	if c.ctx != nil {
		uninitContext(c.ctx)
		c.ctx = nil
	}
	c.closed.Do(func() { close(c.blocks) })
}

// Err returns the terminal error after the block channel closes, or nil if
// the source was stopped deliberately.
func (c *Capture) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

// DeviceName returns the resolved capture device name after Start.
func (c *Capture) DeviceName() string {
	return c.name
}

// matchesDevice reports whether a device matches a user-supplied selector,
// by decoded ID or name substring.
func matchesDevice(info *malgo.DeviceInfo, selector string) bool {
	return decodeDeviceID(info.ID.String()) == selector ||
		strings.Contains(info.Name(), selector)
}

func uninitContext(ctx *malgo.AllocatedContext) {
	if err := ctx.Uninit(); err != nil {
		slog.Debug("failed to uninit audio context", "error", err)
	}
	ctx.Free()
}
