package audio

import (
	"encoding/binary"
)

// sampleScale converts 16-bit signed PCM to the normalized -1..1 range.
const sampleScale = 32768.0

// Assembler accumulates raw S16LE mono PCM into fixed-length blocks of
// normalized float64 samples. It is not safe for concurrent use; the
// capture callback is the only writer.
type Assembler struct {
	blockSize int
	buf       []float64
	emit      func(block []float64)
}

// NewAssembler returns an Assembler that emits blocks of blockSize samples.
// Each emitted slice is freshly allocated, so the consumer may retain it.
func NewAssembler(blockSize int, emit func(block []float64)) *Assembler {
	return &Assembler{
		blockSize: blockSize,
		buf:       make([]float64, 0, blockSize),
		emit:      emit,
	}
}

// Write parses PCM bytes and emits completed blocks in input order.
// A trailing odd byte is ignored.
func (a *Assembler) Write(pcm []byte) {
	for i := 0; i+1 < len(pcm); i += 2 {
		sample := int16(binary.LittleEndian.Uint16(pcm[i:]))
		a.buf = append(a.buf, float64(sample)/sampleScale)

		if len(a.buf) == a.blockSize {
			block := make([]float64, a.blockSize)
			copy(block, a.buf)
			a.buf = a.buf[:0]
			a.emit(block)
		}
	}
}

// Pending returns how many samples are buffered toward the next block.
func (a *Assembler) Pending() int {
	return len(a.buf)
}
