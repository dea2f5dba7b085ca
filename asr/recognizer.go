// Package asr turns segmented utterances into text. Recognition is
// delegated to an external engine over HTTP; the worker consumes
// utterances from the bus and publishes transcripts.
package asr

import "context"

// Result is one recognition outcome. Confidence is the mean exp of the
// engine's per-segment average log probabilities, in [0, 1].
type Result struct {
	Text       string
	Confidence float64
	Language   string
}

// Recognizer transcribes one utterance of 16 kHz mono signed-16 PCM.
type Recognizer interface {
	Name() string
	Transcribe(ctx context.Context, pcm []byte) (Result, error)
	HealthCheck(ctx context.Context) error
}
