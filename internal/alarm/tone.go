package alarm

import (
	"math"
	"time"
)

// toneAmplitude is just below full scale so the square wave is piercing
// without clipping on output chains that apply gain.
const toneAmplitude = 32000

// SquareWave synthesizes a mono square-wave tone as S16 PCM.
func SquareWave(frequency float64, duration time.Duration, sampleRate int) []int16 {
	n := int(float64(sampleRate) * duration.Seconds())
	pcm := make([]int16, n)

	for i := range pcm {
		if math.Sin(2*math.Pi*frequency*float64(i)/float64(sampleRate)) >= 0 {
			pcm[i] = toneAmplitude
		} else {
			pcm[i] = -toneAmplitude
		}
	}

	return pcm
}
