package vad

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AltairaLabs/hearth/audio"
)

const chunkMS = 100

// chunk is 100 ms of 16 kHz mono signed-16 PCM (all zero; detections
// are injected directly so content does not matter here).
func chunk() []byte {
	return make([]byte, chunkMS*32)
}

var (
	speech  = audio.Detection{Speech: true, Probability: 0.9}
	silence = audio.Detection{Speech: false, Probability: 0.1}
)

func feedRun(t *testing.T, seg *Segmenter, session string, det audio.Detection, n int) []Result {
	t.Helper()
	results := make([]Result, 0, n)
	for i := 0; i < n; i++ {
		results = append(results, seg.Feed(session, chunk(), det))
	}
	return results
}

func TestEmitAfterSpeechThenSilence(t *testing.T) {
	seg := NewSegmenter()

	for _, res := range feedRun(t, seg, "s1", speech, 3) {
		assert.False(t, res.Emit)
	}

	results := feedRun(t, seg, "s1", silence, SilenceEndChunks)
	for _, res := range results[:SilenceEndChunks-1] {
		assert.False(t, res.Emit)
	}

	final := results[SilenceEndChunks-1]
	require.True(t, final.Emit)
	assert.False(t, final.Forced)

	// 3 speech chunks plus trailing silence all belong to the utterance.
	wantChunks := 3 + SilenceEndChunks
	assert.Len(t, final.PCM, wantChunks*chunkMS*32)
	assert.Equal(t, wantChunks*chunkMS, final.DurationMS)
	assert.InDelta(t, 0.9, final.Probability, 0.001)
}

func TestOneFewerSilenceChunkDoesNotEmit(t *testing.T) {
	seg := NewSegmenter()

	feedRun(t, seg, "s1", speech, 3)
	for _, res := range feedRun(t, seg, "s1", silence, SilenceEndChunks-1) {
		assert.False(t, res.Emit)
	}

	// The very next silence chunk closes the utterance.
	res := seg.Feed("s1", chunk(), silence)
	assert.True(t, res.Emit)
}

func TestSingleSpeechChunkNeverLatches(t *testing.T) {
	seg := NewSegmenter()

	// One speech chunk is below SpeechStartChunks; the machine never
	// enters speaking, so silence runs cannot close anything.
	seg.Feed("s1", chunk(), speech)
	for _, res := range feedRun(t, seg, "s1", silence, SilenceEndChunks*2) {
		assert.False(t, res.Emit)
	}
}

func TestSpeechRunOfExactlyStartChunksLatches(t *testing.T) {
	seg := NewSegmenter()

	feedRun(t, seg, "s1", speech, SpeechStartChunks)
	res := feedRun(t, seg, "s1", silence, SilenceEndChunks)

	assert.True(t, res[SilenceEndChunks-1].Emit)
}

func TestInterruptedSpeechRunResets(t *testing.T) {
	seg := NewSegmenter()

	// speech, silence, speech: the run counter resets on the silence
	// chunk, so speaking is not latched until two consecutive again.
	seg.Feed("s1", chunk(), speech)
	seg.Feed("s1", chunk(), silence)
	seg.Feed("s1", chunk(), speech)

	// A full silence run emits nothing because we never latched.
	for _, res := range feedRun(t, seg, "s1", silence, SilenceEndChunks) {
		assert.False(t, res.Emit)
	}

	// Two consecutive speech chunks latch, then silence closes.
	feedRun(t, seg, "s1", speech, SpeechStartChunks)
	res := feedRun(t, seg, "s1", silence, SilenceEndChunks)
	assert.True(t, res[SilenceEndChunks-1].Emit)
}

func TestSilenceDuringSpeechIsCaptured(t *testing.T) {
	seg := NewSegmenter()

	feedRun(t, seg, "s1", speech, 2)
	feedRun(t, seg, "s1", silence, 4) // pause mid-utterance
	feedRun(t, seg, "s1", speech, 2)
	results := feedRun(t, seg, "s1", silence, SilenceEndChunks)

	final := results[SilenceEndChunks-1]
	require.True(t, final.Emit)
	// 2 speech + 4 pause + 2 speech + 10 trailing silence.
	assert.Equal(t, (2+4+2+SilenceEndChunks)*chunkMS, final.DurationMS)
}

func TestEmitResetsSession(t *testing.T) {
	seg := NewSegmenter()

	feedRun(t, seg, "s1", speech, 3)
	feedRun(t, seg, "s1", silence, SilenceEndChunks)

	// Next cycle starts from scratch: identical inputs, identical emit.
	feedRun(t, seg, "s1", speech, 3)
	results := feedRun(t, seg, "s1", silence, SilenceEndChunks)
	final := results[SilenceEndChunks-1]
	require.True(t, final.Emit)
	assert.Equal(t, (3+SilenceEndChunks)*chunkMS, final.DurationMS)
}

func TestSessionsAreIndependent(t *testing.T) {
	seg := NewSegmenter()

	feedRun(t, seg, "a", speech, 3)
	feedRun(t, seg, "b", speech, 1)

	resA := feedRun(t, seg, "a", silence, SilenceEndChunks)
	resB := feedRun(t, seg, "b", silence, SilenceEndChunks)

	assert.True(t, resA[SilenceEndChunks-1].Emit)
	for _, res := range resB {
		assert.False(t, res.Emit)
	}
}

func TestForcedEmitAtMaxUtterance(t *testing.T) {
	seg := NewSegmenter()

	needed := MaxUtteranceMS / chunkMS
	var forced *Result
	for i := 0; i < needed+5; i++ {
		res := seg.Feed("s1", chunk(), speech)
		if res.Emit {
			forced = &res
			break
		}
	}

	require.NotNil(t, forced, "segmenter never force-emitted")
	assert.True(t, forced.Forced)
	assert.GreaterOrEqual(t, forced.DurationMS, MaxUtteranceMS)

	// State was reset: a fresh short utterance still works.
	feedRun(t, seg, "s1", speech, 3)
	res := feedRun(t, seg, "s1", silence, SilenceEndChunks)
	assert.True(t, res[SilenceEndChunks-1].Emit)
	assert.False(t, res[SilenceEndChunks-1].Forced)
}

func TestResetDiscardsBuffer(t *testing.T) {
	seg := NewSegmenter()

	feedRun(t, seg, "s1", speech, 5)
	seg.Reset("s1")

	for _, res := range feedRun(t, seg, "s1", silence, SilenceEndChunks) {
		assert.False(t, res.Emit)
	}
}
