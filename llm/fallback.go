package llm

import "sync"

// FallbackModel is the model label stamped on canned responses.
const FallbackModel = "static_fallback"

// fallbackPhrases are short reassurances served round-robin when every
// backend path has failed. A companion that responds generically beats
// one that goes silent.
var fallbackPhrases = []string{
	"I'm here with you.",
	"I'm listening.",
	"Tell me more about that.",
	"I understand.",
	"That sounds important.",
}

// Fallback serves the static phrase pool round-robin. Safe for
// concurrent use.
type Fallback struct {
	mu    sync.Mutex
	index int
}

// NewFallback returns a pool positioned at the first phrase.
func NewFallback() *Fallback {
	return &Fallback{}
}

// Next returns the next phrase in rotation.
func (f *Fallback) Next() string {
	f.mu.Lock()
	defer f.mu.Unlock()

	phrase := fallbackPhrases[f.index]
	f.index = (f.index + 1) % len(fallbackPhrases)
	return phrase
}
