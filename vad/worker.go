package vad

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/AltairaLabs/hearth/audio"
	"github.com/AltairaLabs/hearth/bus"
	"github.com/AltairaLabs/hearth/logger"
	"github.com/AltairaLabs/hearth/metrics"
	"github.com/AltairaLabs/hearth/types"
)

// Worker consumes raw audio chunks, runs speech detection, and
// publishes segmented utterances. Chunks flagged is_streaming=false
// bypass the state machine: the client already segmented the utterance
// and the worker only gates on the detector.
type Worker struct {
	bus      *bus.Client
	analyzer audio.Analyzer
	seg      *Segmenter
	consumer string
}

// NewWorker builds a VAD worker on the given bus and detector.
func NewWorker(b *bus.Client, analyzer audio.Analyzer) *Worker {
	return &Worker{
		bus:      b,
		analyzer: analyzer,
		seg:      NewSegmenter(),
		consumer: bus.ConsumerName("vad"),
	}
}

// Run consumes audio.inbound until ctx is canceled.
func (w *Worker) Run(ctx context.Context) error {
	logger.Info("vad_worker_started", "detector", w.analyzer.Name())
	return w.bus.Consume(ctx, types.StreamAudioInbound, types.GroupVAD, w.consumer, w.handle)
}

func (w *Worker) handle(ctx context.Context, _ string, data []byte) error {
	start := time.Now()

	var chunk types.AudioChunk
	if err := json.Unmarshal(data, &chunk); err != nil {
		return fmt.Errorf("decode audio chunk: %w", err)
	}

	det, err := w.analyzer.Analyze(ctx, chunk.PCM)
	if err != nil {
		// Degrade to silence rather than stall the session.
		logger.Warn("vad_detector_error", "session_id", chunk.SessionID, "error", err)
		det = audio.Detection{}
	}

	if chunk.IsStreaming {
		w.handleStreaming(ctx, &chunk, det)
	} else {
		w.handlePassthrough(ctx, &chunk, det)
	}

	metrics.RecordStageLatency("vad", float64(time.Since(start).Milliseconds()))
	return nil
}

// handlePassthrough treats the whole chunk as one utterance and gates
// it on the detector.
func (w *Worker) handlePassthrough(ctx context.Context, chunk *types.AudioChunk, det audio.Detection) {
	if !det.Speech {
		metrics.RecordUtterance(OutcomeDropped)
		logger.Debug("passthrough_dropped",
			"session_id", chunk.SessionID, "probability", det.Probability)
		return
	}

	w.publish(ctx, chunk, Result{
		PCM:         chunk.PCM,
		DurationMS:  audio.DurationMS(chunk.PCM),
		Probability: det.Probability,
	}, OutcomePassthrough)
}

func (w *Worker) handleStreaming(ctx context.Context, chunk *types.AudioChunk, det audio.Detection) {
	res := w.seg.Feed(chunk.SessionID, chunk.PCM, det)
	if !res.Emit {
		return
	}

	outcome := OutcomeEmitted
	if res.Forced {
		outcome = OutcomeForced
	}
	w.publish(ctx, chunk, res, outcome)
}

func (w *Worker) publish(ctx context.Context, chunk *types.AudioChunk, res Result, outcome string) {
	utt := types.Utterance{
		DeviceID:    chunk.DeviceID,
		SessionID:   chunk.SessionID,
		PCM:         res.PCM,
		DurationMS:  res.DurationMS,
		Probability: res.Probability,
		EmittedAt:   time.Now().UTC(),
	}

	if _, err := w.bus.Publish(ctx, types.StreamAudioSegments, utt); err != nil {
		logger.Error("utterance_publish_failed", "session_id", chunk.SessionID, "error", err)
		return
	}

	metrics.RecordUtterance(outcome)
	logger.Info("utterance_emitted",
		"session_id", chunk.SessionID,
		"duration_ms", res.DurationMS,
		"outcome", outcome)
}
