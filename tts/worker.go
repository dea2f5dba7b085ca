package tts

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

// Worker consumes sentence synthesis requests and publishes WAV
// results. When the primary engine fails the worker degrades to the
// silence fallback for that request, so every request still yields a
// playable result downstream.
type Worker struct {
	bus      *bus.Client
	engine   Synthesizer
	fallback Synthesizer
	consumer string
}

// NewWorker builds a TTS worker on the given bus and engine.
func NewWorker(b *bus.Client, engine Synthesizer) *Worker {
	return &Worker{
		bus:      b,
		engine:   engine,
		fallback: NewSilenceSynthesizer(),
		consumer: bus.ConsumerName("tts"),
	}
}

// Run consumes tts.requests until ctx is canceled.
func (w *Worker) Run(ctx context.Context) error {
	logger.Info("tts_worker_started", "engine", w.engine.Name())
	return w.bus.Consume(ctx, types.StreamTTSRequests, types.GroupTTS, w.consumer, w.handle)
}

func (w *Worker) handle(ctx context.Context, _ string, data []byte) error {
	start := time.Now()

	var req types.TTSRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return fmt.Errorf("decode tts request: %w", err)
	}

	pcm, rate := w.synthesize(ctx, &req)

	result := types.TTSResult{
		RequestID:  req.RequestID,
		DeviceID:   req.DeviceID,
		SessionID:  req.SessionID,
		Timestamp:  time.Now().UTC(),
		WAV:        audio.EncodeWAV(pcm, rate),
		DurationMS: audio.WAVDurationMS(pcm, rate),
		LatencyMS:  time.Since(start).Milliseconds(),
		Text:       req.Text,
		UIHints:    types.UIHints{ShowText: true, Mood: "neutral"},
	}

	if _, err := w.bus.Publish(ctx, types.StreamAudioOutbound, result); err != nil {
		logger.Error("tts_publish_failed", "request_id", req.RequestID, "error", err)
		return nil
	}

	metrics.RecordStageLatency("tts", float64(result.LatencyMS))
	logger.Info("speech_synthesized",
		"request_id", req.RequestID,
		"duration_ms", result.DurationMS,
		"latency_ms", result.LatencyMS)
	return nil
}

// synthesize runs the primary engine and falls back to silence when it
// fails, returning PCM and its sample rate.
func (w *Worker) synthesize(ctx context.Context, req *types.TTSRequest) ([]byte, int) {
	pcm, err := w.engine.Synthesize(ctx, req.Text)
	if err == nil {
		return pcm, w.engine.SampleRate()
	}

	logger.Warn("synthesis_failed_using_fallback",
		"request_id", req.RequestID, "engine", w.engine.Name(), "error", err)
	metrics.RecordFallback("tts_engine")

	pcm, _ = w.fallback.Synthesize(ctx, req.Text)
	return pcm, w.fallback.SampleRate()
}
