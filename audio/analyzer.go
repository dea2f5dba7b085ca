package audio

import "context"

// DefaultThreshold is the speech probability above which a chunk counts
// as speech.
const DefaultThreshold = 0.5

// Detection is the per-chunk result of voice activity analysis.
type Detection struct {
	// Speech reports whether the chunk cleared the analyzer's threshold.
	Speech bool

	// Probability is the analyzer's speech confidence in [0, 1].
	Probability float64
}

// Analyzer analyzes one PCM chunk for voice activity. Implementations
// must be safe for use from a single consumer goroutine; they are not
// required to be safe for concurrent use.
type Analyzer interface {
	// Name returns the analyzer identifier for logs and health metrics.
	Name() string

	// Analyze returns the speech detection for a chunk of 16 kHz
	// signed-16 mono PCM.
	Analyze(ctx context.Context, pcm []byte) (Detection, error)

	// Reset clears any accumulated model state between audio streams.
	Reset()
}
