// Package audio provides audio block acquisition and loudness metering.
package audio

import (
	"errors"
	"math"
)

// ErrEmptyBlock is returned when a loudness metric is requested for a
// zero-length block. RMS is undefined for an empty block; a correctly
// behaving capture source never produces one.
var ErrEmptyBlock = errors.New("empty audio block")

// RMS computes the root-mean-square loudness of a block of normalized
// samples. The result is always >= 0 and is 0 exactly when every sample
// is 0.
func RMS(block []float64) (float64, error) {
	if len(block) == 0 {
		return 0, ErrEmptyBlock
	}

	var sumSquares float64
	for _, s := range block {
		sumSquares += s * s
	}

	return math.Sqrt(sumSquares / float64(len(block))), nil
}
