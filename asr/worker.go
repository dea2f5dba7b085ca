package asr

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/AltairaLabs/hearth/bus"
	"github.com/AltairaLabs/hearth/logger"
	"github.com/AltairaLabs/hearth/metrics"
	"github.com/AltairaLabs/hearth/types"
)

// Worker consumes utterances from audio.segments, recognizes them, and
// publishes transcripts. Empty recognition results are dropped
// silently; engine errors are logged and the message is still acked so
// a bad utterance cannot wedge the group.
type Worker struct {
	bus        *bus.Client
	recognizer Recognizer
	consumer   string
}

// NewWorker builds an ASR worker on the given bus and engine.
func NewWorker(b *bus.Client, recognizer Recognizer) *Worker {
	return &Worker{
		bus:        b,
		recognizer: recognizer,
		consumer:   bus.ConsumerName("asr"),
	}
}

// Run consumes audio.segments until ctx is canceled.
func (w *Worker) Run(ctx context.Context) error {
	logger.Info("asr_worker_started", "engine", w.recognizer.Name())
	return w.bus.Consume(ctx, types.StreamAudioSegments, types.GroupASR, w.consumer, w.handle)
}

func (w *Worker) handle(ctx context.Context, _ string, data []byte) error {
	start := time.Now()

	var utt types.Utterance
	if err := json.Unmarshal(data, &utt); err != nil {
		return fmt.Errorf("decode utterance: %w", err)
	}

	res, err := w.recognizer.Transcribe(ctx, utt.PCM)
	if err != nil {
		logger.Error("transcription_failed", "session_id", utt.SessionID, "error", err)
		return nil
	}

	processingMS := time.Since(start).Milliseconds()
	metrics.RecordStageLatency("asr", float64(processingMS))

	text := strings.TrimSpace(res.Text)
	if text == "" {
		logger.Debug("empty_transcript_dropped",
			"session_id", utt.SessionID, "duration_ms", utt.DurationMS)
		return nil
	}

	metrics.RecordASRConfidence(res.Confidence)

	transcript := types.Transcript{
		DeviceID:     utt.DeviceID,
		SessionID:    utt.SessionID,
		Text:         text,
		Confidence:   res.Confidence,
		Language:     res.Language,
		ProcessingMS: processingMS,
		Timestamp:    time.Now().UTC(),
	}

	if _, err := w.bus.Publish(ctx, types.StreamTranscripts, transcript); err != nil {
		logger.Error("transcript_publish_failed", "session_id", utt.SessionID, "error", err)
		return nil
	}

	logger.Info("transcript_published",
		"session_id", utt.SessionID,
		"confidence", res.Confidence,
		"processing_ms", processingMS,
		"chars", len(text))
	return nil
}
