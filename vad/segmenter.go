// Package vad segments streamed microphone audio into utterances. A
// per-session state machine watches per-chunk speech detections and
// declares utterance boundaries from runs of consecutive speech and
// silence, sized for 100 ms client chunks.
package vad

import (
	"github.com/AltairaLabs/hearth/audio"
	"github.com/AltairaLabs/hearth/logger"
)

// Boundary constants, sized to 100 ms client chunks.
const (
	// SpeechStartChunks is the run of consecutive speech chunks that
	// latches "speaking" (about 200 ms).
	SpeechStartChunks = 2

	// SilenceEndChunks is the run of consecutive silence chunks that
	// declares end of speech (about 1 s).
	SilenceEndChunks = 10

	// MinSpeechChunks is the minimum buffered chunk count for an
	// utterance to be emitted rather than discarded (about 300 ms).
	MinSpeechChunks = 3

	// MaxUtteranceMS caps a single utterance; when buffered audio
	// reaches it the segmenter force-emits rather than buffer forever.
	MaxUtteranceMS = 30000
)

// Emission outcomes, used as the label on the utterance counter.
const (
	OutcomeEmitted     = "emitted"
	OutcomeForced      = "forced"
	OutcomeTooShort    = "too_short"
	OutcomePassthrough = "passthrough"
	OutcomeDropped     = "dropped"
)

// sessionState is the boundary state machine for one session.
type sessionState struct {
	isSpeaking bool
	speechRun  int
	silenceRun int
	buffer     [][]byte
	bufferedMS int
	peakProb   float64
}

// Result reports what Feed decided for one chunk. When Emit is set,
// PCM holds the concatenated utterance and the session state has been
// reset.
type Result struct {
	Emit        bool
	Forced      bool
	PCM         []byte
	DurationMS  int
	Probability float64
}

// Segmenter runs one state machine per session. It is owned by a
// single consumer goroutine and is not safe for concurrent use.
type Segmenter struct {
	sessions map[string]*sessionState
}

// NewSegmenter returns an empty segmenter.
func NewSegmenter() *Segmenter {
	return &Segmenter{sessions: make(map[string]*sessionState)}
}

// Feed advances the session's state machine with one detected chunk.
func (s *Segmenter) Feed(sessionID string, pcm []byte, det audio.Detection) Result {
	state, ok := s.sessions[sessionID]
	if !ok {
		state = &sessionState{}
		s.sessions[sessionID] = state
	}

	if det.Speech {
		state.speechRun++
		state.silenceRun = 0
		state.append(pcm, det.Probability)

		if !state.isSpeaking && state.speechRun >= SpeechStartChunks {
			state.isSpeaking = true
			logger.Info("speech_started", "session_id", sessionID)
		}
	} else {
		state.silenceRun++
		state.speechRun = 0
		if state.isSpeaking {
			// Trailing silence belongs to the utterance.
			state.append(pcm, det.Probability)
		}

		if state.isSpeaking && state.silenceRun >= SilenceEndChunks {
			if len(state.buffer) >= MinSpeechChunks {
				return s.emit(sessionID, state, false)
			}
			logger.Info("too_short", "session_id", sessionID, "chunks", len(state.buffer))
			s.reset(sessionID)
			return Result{}
		}
	}

	if state.isSpeaking && state.bufferedMS >= MaxUtteranceMS {
		logger.Warn("utterance_forced", "session_id", sessionID, "buffered_ms", state.bufferedMS)
		return s.emit(sessionID, state, true)
	}

	return Result{}
}

// Reset clears the session's state, discarding any buffered audio.
func (s *Segmenter) Reset(sessionID string) {
	s.reset(sessionID)
}

func (s *Segmenter) reset(sessionID string) {
	delete(s.sessions, sessionID)
}

func (s *Segmenter) emit(sessionID string, state *sessionState, forced bool) Result {
	total := 0
	for _, chunk := range state.buffer {
		total += len(chunk)
	}
	pcm := make([]byte, 0, total)
	for _, chunk := range state.buffer {
		pcm = append(pcm, chunk...)
	}

	res := Result{
		Emit:        true,
		Forced:      forced,
		PCM:         pcm,
		DurationMS:  state.bufferedMS,
		Probability: state.peakProb,
	}
	s.reset(sessionID)
	return res
}

func (st *sessionState) append(pcm []byte, probability float64) {
	st.buffer = append(st.buffer, pcm)
	st.bufferedMS += audio.DurationMS(pcm)
	if probability > st.peakProb {
		st.peakProb = probability
	}
}
