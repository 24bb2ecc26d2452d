package audio

import (
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/gen2brain/malgo"
)

// PlayTone plays a mono S16 PCM buffer on the default playback device and
// blocks until the buffer has been consumed. It is used by the alert beeper
// and never runs on the capture path.
func PlayTone(pcm []int16, sampleRate int) error {
	ctx, err := malgo.InitContext(defaultBackend(), malgo.ContextConfig{}, nil)
	if err != nil {
		return fmt.Errorf("init playback context: %w", err)
	}
	defer uninitContext(ctx)

	// Pre-encode once so the device callback only copies bytes.
	encoded := make([]byte, len(pcm)*2)
	for i, s := range pcm {
		binary.LittleEndian.PutUint16(encoded[i*2:], uint16(s))
	}

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Playback)
	deviceConfig.Playback.Format = malgo.FormatS16
	deviceConfig.Playback.Channels = 1
	deviceConfig.SampleRate = uint32(sampleRate)
	deviceConfig.Alsa.NoMMap = 1

	var (
		pos  int
		once sync.Once
		done = make(chan struct{})
	)

	callbacks := malgo.DeviceCallbacks{
		Data: func(output, _ []byte, _ uint32) {
			n := copy(output, encoded[pos:])
			pos += n
			if pos >= len(encoded) {
				// Zero-fill the remainder so the device plays out silence.
				for i := n; i < len(output); i++ {
					output[i] = 0
				}
				once.Do(func() { close(done) })
			}
		},
	}

	device, err := malgo.InitDevice(ctx.Context, deviceConfig, callbacks)
	if err != nil {
		return fmt.Errorf("init playback device: %w", err)
	}
	defer device.Uninit()

	if err := device.Start(); err != nil {
		return fmt.Errorf("start playback device: %w", err)
	}

	<-done
	return nil
}
