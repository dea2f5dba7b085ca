package llm

import (
	"regexp"
	"strings"
)

// sentenceBoundary matches sentence-ending punctuation followed by
// whitespace. Punctuation at end of buffer is not a boundary yet: the
// next delta may continue the token (an abbreviation, a decimal).
var sentenceBoundary = regexp.MustCompile(`([.!?])\s+`)

// SentenceSplitter accumulates streamed token deltas and yields
// complete sentences as boundaries appear. The trailing fragment stays
// buffered until Flush.
type SentenceSplitter struct {
	buffer string
}

// NewSentenceSplitter returns an empty splitter.
func NewSentenceSplitter() *SentenceSplitter {
	return &SentenceSplitter{}
}

// Feed appends delta to the buffer and returns any sentences completed
// by it, trimmed, in order.
func (s *SentenceSplitter) Feed(delta string) []string {
	s.buffer += delta

	var sentences []string
	for {
		loc := sentenceBoundary.FindStringIndex(s.buffer)
		if loc == nil {
			return sentences
		}

		// loc[0]+1 is just past the punctuation character.
		sentence := strings.TrimSpace(s.buffer[:loc[0]+1])
		if sentence != "" {
			sentences = append(sentences, sentence)
		}
		s.buffer = s.buffer[loc[1]:]
	}
}

// Flush returns the trailing fragment, trimmed, and empties the buffer.
func (s *SentenceSplitter) Flush() string {
	fragment := strings.TrimSpace(s.buffer)
	s.buffer = ""
	return fragment
}

// Pending reports whether unflushed text remains buffered.
func (s *SentenceSplitter) Pending() bool {
	return strings.TrimSpace(s.buffer) != ""
}
