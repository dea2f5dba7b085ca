// Package tts turns response sentences into speech. Synthesis is
// delegated to a piper HTTP server; when no voice model is reachable
// the worker falls back to timed silence so the device-facing contract
// (a valid WAV per sentence) always holds.
package tts

import (
	"context"

	"github.com/AltairaLabs/hearth/audio"
	"github.com/AltairaLabs/hearth/types"
)

// silenceMSPerChar sizes the fallback clip so the device-side pacing
// roughly matches what real speech would have taken.
const silenceMSPerChar = 50

// Synthesizer produces mono signed-16 PCM for a sentence of text.
type Synthesizer interface {
	Name() string
	Synthesize(ctx context.Context, text string) (pcm []byte, err error)
	SampleRate() int
	HealthCheck(ctx context.Context) error
}

// silenceSynthesizer is the development and outage fallback: a silent
// clip of 50 ms per character at the standard synthesis rate.
type silenceSynthesizer struct{}

// NewSilenceSynthesizer returns the fallback synthesizer.
func NewSilenceSynthesizer() Synthesizer {
	return silenceSynthesizer{}
}

func (silenceSynthesizer) Name() string { return "silence" }

func (silenceSynthesizer) SampleRate() int { return types.SynthesisSampleRate }

func (silenceSynthesizer) Synthesize(_ context.Context, text string) ([]byte, error) {
	durationMS := len(text) * silenceMSPerChar
	if durationMS == 0 {
		durationMS = silenceMSPerChar
	}
	return audio.Silence(durationMS, types.SynthesisSampleRate), nil
}

func (silenceSynthesizer) HealthCheck(context.Context) error { return nil }
