// Package audio provides PCM analysis for voice activity detection and
// the WAV container codec used on the synthesis path. All analysis
// assumes 16-bit signed little-endian mono samples.
package audio

import (
	"encoding/binary"
	"math"
)

const (
	// BytesPerSample is the width of one signed-16 PCM sample.
	BytesPerSample = 2

	// maxAmplitude is the full-scale amplitude of signed-16 audio.
	maxAmplitude = 32768.0
)

// DurationMS estimates chunk duration from byte count at 16 kHz mono
// signed-16: 32 bytes per millisecond.
func DurationMS(pcm []byte) int {
	return len(pcm) / 32
}

// RMS computes the root-mean-square energy of raw int16 samples. The
// result is on the raw sample scale (0..32768), not normalized; typical
// speech lands around 2000-10000 and room silence below 500.
func RMS(pcm []byte) float64 {
	numSamples := len(pcm) / BytesPerSample
	if numSamples == 0 {
		return 0
	}

	var sumSquares float64
	for i := 0; i < numSamples; i++ {
		// #nosec G115 -- overflow is intentional for signed PCM conversion
		sample := int16(binary.LittleEndian.Uint16(pcm[i*BytesPerSample:]))
		sumSquares += float64(sample) * float64(sample)
	}

	return math.Sqrt(sumSquares / float64(numSamples))
}

// ToFloat32 normalizes int16 samples to [-1, 1] by dividing by 32768,
// the input format expected by neural recognizers.
func ToFloat32(pcm []byte) []float32 {
	numSamples := len(pcm) / BytesPerSample
	out := make([]float32, numSamples)
	for i := 0; i < numSamples; i++ {
		// #nosec G115 -- overflow is intentional for signed PCM conversion
		sample := int16(binary.LittleEndian.Uint16(pcm[i*BytesPerSample:]))
		out[i] = float32(sample) / maxAmplitude
	}
	return out
}

// Silence returns durationMS of silent PCM at the given sample rate.
func Silence(durationMS, sampleRate int) []byte {
	numSamples := sampleRate * durationMS / 1000
	return make([]byte, numSamples*BytesPerSample)
}
