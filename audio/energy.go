package audio

import "context"

const (
	// energySpeechRMS is the raw RMS above which a chunk counts as
	// speech. Sized for typical close-range microphone capture.
	energySpeechRMS = 800.0

	// energyFullScaleRMS normalizes raw RMS into a probability; speech
	// around this level or louder reports 1.0.
	energyFullScaleRMS = 5000.0
)

// EnergyAnalyzer is the RMS-threshold fallback detector, used when no
// neural VAD model is reachable. It is stateless.
type EnergyAnalyzer struct{}

// NewEnergyAnalyzer creates the RMS energy detector.
func NewEnergyAnalyzer() *EnergyAnalyzer {
	return &EnergyAnalyzer{}
}

// Name returns the analyzer identifier.
func (a *EnergyAnalyzer) Name() string {
	return "energy-rms"
}

// Analyze thresholds the chunk's RMS energy. The reported probability
// is min(rms/5000, 1.0).
func (a *EnergyAnalyzer) Analyze(_ context.Context, pcm []byte) (Detection, error) {
	rms := RMS(pcm)

	probability := rms / energyFullScaleRMS
	if probability > 1.0 {
		probability = 1.0
	}

	return Detection{
		Speech:      rms > energySpeechRMS,
		Probability: probability,
	}, nil
}

// Reset is a no-op; the energy detector holds no state.
func (a *EnergyAnalyzer) Reset() {}
