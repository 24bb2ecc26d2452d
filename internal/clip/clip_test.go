package clip

import (
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-audio/wav"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oszuidwest/zwfm-noisewatch/internal/config"
	"github.com/oszuidwest/zwfm-noisewatch/internal/monitor"
	"github.com/oszuidwest/zwfm-noisewatch/internal/util"
)

func TestFilename(t *testing.T) {
	ts := time.Date(2026, 8, 30, 14, 5, 9, 0, time.UTC)
	name := Filename(ts)
	assert.Equal(t, "alert-2026-08-30-14-05-09.wav", name)

	// Cleanup relies on the embedded date being extractable.
	date, ok := util.ExtractDateFromFilename(name)
	require.True(t, ok)
	assert.Equal(t, time.Date(2026, 8, 30, 0, 0, 0, 0, time.UTC), date)
}

func TestWriteWAV_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "clip.wav")

	samples := make([]float64, 441)
	for i := range samples {
		samples[i] = 0.5 * math.Sin(2*math.Pi*float64(i)/100)
	}

	size, err := WriteWAV(path, samples, 44100)
	require.NoError(t, err)
	assert.Positive(t, size)

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close() //nolint:errcheck // test cleanup

	dec := wav.NewDecoder(f)
	buf, err := dec.FullPCMBuffer()
	require.NoError(t, err)

	assert.Equal(t, 1, buf.Format.NumChannels)
	assert.Equal(t, 44100, buf.Format.SampleRate)
	require.Len(t, buf.Data, len(samples))

	// Spot-check amplitude survives the int16 round trip.
	for i := range 10 {
		got := float64(buf.Data[i]) / sampleScale
		assert.InDelta(t, samples[i], got, 1.0/sampleScale, "sample %d", i)
	}
}

func TestWriteWAV_ClampsAndRejectsEmpty(t *testing.T) {
	dir := t.TempDir()

	_, err := WriteWAV(filepath.Join(dir, "empty.wav"), nil, 44100)
	require.Error(t, err)

	path := filepath.Join(dir, "hot.wav")
	_, err = WriteWAV(path, []float64{2.0, -2.0}, 44100)
	require.NoError(t, err)

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close() //nolint:errcheck // test cleanup

	buf, err := wav.NewDecoder(f).FullPCMBuffer()
	require.NoError(t, err)
	require.Len(t, buf.Data, 2)
	assert.Equal(t, int(sampleScale), buf.Data[0])
	assert.Equal(t, -int(sampleScale), buf.Data[1])
}

func newTestManager(t *testing.T, dir string) (*Manager, *config.Config) {
	t.Helper()
	cfg := config.New(filepath.Join(t.TempDir(), "config.json"))
	cfg.Clips.Enabled = true
	cfg.Clips.Directory = dir
	cfg.Clips.RetentionDays = 14

	m, err := NewManager(cfg, nil)
	require.NoError(t, err)
	t.Cleanup(m.Close)
	return m, cfg
}

func TestManager_HandleAlertWritesClip(t *testing.T) {
	dir := t.TempDir()
	m, _ := newTestManager(t, dir)

	m.HandleAlert(monitor.AlertEvent{
		Loudness:  0.12,
		Threshold: 0.05,
		Block:     []float64{0.1, 0.2, -0.1},
		Time:      time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC),
	})

	expected := filepath.Join(dir, "alert-2026-08-30-12-00-00.wav")
	assert.Eventually(t, func() bool {
		info, err := os.Stat(expected)
		return err == nil && info.Size() > 0
	}, 2*time.Second, 10*time.Millisecond)
}

func TestManager_HandleAlertDisabledIsNoop(t *testing.T) {
	dir := t.TempDir()
	m, cfg := newTestManager(t, dir)
	cfg.Clips.Enabled = false

	m.HandleAlert(monitor.AlertEvent{
		Block: []float64{0.1},
		Time:  time.Now(),
	})

	time.Sleep(50 * time.Millisecond)
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestManager_CleanupLocalRespectsRetention(t *testing.T) {
	dir := t.TempDir()
	m, _ := newTestManager(t, dir)

	old := Filename(time.Now().AddDate(0, 0, -30))
	recent := Filename(time.Now())
	unrelated := "notes.txt"
	for _, name := range []string{old, recent, unrelated} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o600))
	}

	m.RunCleanup()

	_, err := os.Stat(filepath.Join(dir, old))
	assert.True(t, os.IsNotExist(err), "expired clip should be deleted")
	_, err = os.Stat(filepath.Join(dir, recent))
	assert.NoError(t, err, "recent clip should survive")
	_, err = os.Stat(filepath.Join(dir, unrelated))
	assert.NoError(t, err, "unrelated files are left alone")
}
