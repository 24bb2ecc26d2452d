// Package clip persists the audio that triggered an alert as a WAV file,
// with optional upload to S3-compatible storage and retention cleanup.
package clip

import (
	"fmt"
	"os"
	"time"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"github.com/oszuidwest/zwfm-noisewatch/internal/util"
)

// sampleScale converts normalized float samples back to signed 16-bit.
const sampleScale = 32767.0

// Filename returns the date-stamped name for a clip triggered at t.
func Filename(t time.Time) string {
	return "alert-" + t.Format("2006-01-02-15-04-05") + ".wav"
}

// WriteWAV writes mono float64 samples to path as 16-bit PCM WAV.
// Samples outside [-1, 1] are clamped. Returns the file size in bytes.
func WriteWAV(path string, samples []float64, sampleRate int) (int64, error) {
	if len(samples) == 0 {
		return 0, fmt.Errorf("no samples to write")
	}

	f, err := os.Create(path) //nolint:gosec // Path is derived from validated config
	if err != nil {
		return 0, util.WrapError("create clip file", err)
	}

	enc := wav.NewEncoder(f, sampleRate, 16, 1, 1)

	buf := &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: 1, SampleRate: sampleRate},
		Data:           make([]int, len(samples)),
		SourceBitDepth: 16,
	}
	for i, s := range samples {
		if s > 1 {
			s = 1
		} else if s < -1 {
			s = -1
		}
		buf.Data[i] = int(s * sampleScale)
	}

	if err := enc.Write(buf); err != nil {
		_ = enc.Close()
		_ = f.Close()
		_ = os.Remove(path)
		return 0, util.WrapError("write clip samples", err)
	}
	if err := enc.Close(); err != nil {
		_ = f.Close()
		_ = os.Remove(path)
		return 0, util.WrapError("finalize clip", err)
	}
	if err := f.Close(); err != nil {
		return 0, util.WrapError("close clip file", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		return 0, util.WrapError("stat clip file", err)
	}
	return info.Size(), nil
}
