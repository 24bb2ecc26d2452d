package audio

import (
	"encoding/binary"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// pcmBytes encodes int16 samples as S16LE.
func pcmBytes(samples ...int16) []byte {
	buf := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(buf[i*2:], uint16(s))
	}
	return buf
}

func TestAssembler_EmitsFixedLengthBlocks(t *testing.T) {
	var blocks [][]float64
	a := NewAssembler(4, func(block []float64) {
		blocks = append(blocks, block)
	})

	a.Write(pcmBytes(0, 16384, -16384, 32767, 0, 0))
	require.Len(t, blocks, 1)
	assert.Equal(t, 2, a.Pending())

	a.Write(pcmBytes(0, 0))
	require.Len(t, blocks, 2)
	assert.Zero(t, a.Pending())

	require.Len(t, blocks[0], 4)
	assert.InDelta(t, 0.0, blocks[0][0], 1e-10)
	assert.InDelta(t, 0.5, blocks[0][1], 1e-10)
	assert.InDelta(t, -0.5, blocks[0][2], 1e-10)
	assert.InDelta(t, 1.0, blocks[0][3], 1e-4)
}

func TestAssembler_PreservesSampleOrder(t *testing.T) {
	var blocks [][]float64
	a := NewAssembler(3, func(block []float64) {
		blocks = append(blocks, block)
	})

	// Feed one sample at a time across writes; blocks must come out in
	// input order with no duplication.
	for i := int16(1); i <= 9; i++ {
		a.Write(pcmBytes(i * 1000))
	}

	require.Len(t, blocks, 3)
	prev := 0.0
	for _, block := range blocks {
		for _, s := range block {
			assert.Greater(t, s, prev)
			prev = s
		}
	}
}

func TestAssembler_EmittedBlockIsDetached(t *testing.T) {
	var first []float64
	a := NewAssembler(2, func(block []float64) {
		if first == nil {
			first = block
		}
	})

	a.Write(pcmBytes(16384, 16384))
	snapshot := append([]float64(nil), first...)

	// Later writes must not mutate the previously emitted block.
	a.Write(pcmBytes(-16384, -16384))
	assert.Equal(t, snapshot, first)
}

func TestAssembler_IgnoresTrailingOddByte(t *testing.T) {
	emitted := 0
	a := NewAssembler(1, func([]float64) { emitted++ })

	a.Write([]byte{0x00, 0x40, 0xFF})
	assert.Equal(t, 1, emitted)
	assert.Zero(t, a.Pending())
}

func TestCaptureConfig_BlockSize(t *testing.T) {
	cfg := CaptureConfig{SampleRate: 44100, BlockSeconds: 1}
	assert.Equal(t, 44100, cfg.BlockSize())

	cfg = CaptureConfig{SampleRate: 48000, BlockSeconds: 0.5}
	assert.Equal(t, 24000, cfg.BlockSize())
}

func TestPeakHolder_HoldsAndDecays(t *testing.T) {
	p := NewPeakHolder()
	p.SetHoldDuration(time.Second)

	now := time.Unix(1000, 0)
	assert.InDelta(t, 0.8, p.Update(0.8, now), 1e-10)

	// A quieter value within the hold window keeps the peak.
	assert.InDelta(t, 0.8, p.Update(0.1, now.Add(500*time.Millisecond)), 1e-10)

	// After the hold window, the peak decays to the current value.
	assert.InDelta(t, 0.1, p.Update(0.1, now.Add(2*time.Second)), 1e-10)

	p.Reset()
	assert.InDelta(t, 0.05, p.Update(0.05, now.Add(3*time.Second)), 1e-10)
}
