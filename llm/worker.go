package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/AltairaLabs/hearth/bus"
	"github.com/AltairaLabs/hearth/logger"
	"github.com/AltairaLabs/hearth/metrics"
	"github.com/AltairaLabs/hearth/types"
)

// errEmptyGeneration marks a generation that produced no text at all;
// the worker treats it like a backend failure.
var errEmptyGeneration = errors.New("backend produced no text")

// Worker consumes generation requests, streams model output through
// the sentence splitter, and fans each sentence out to synthesis the
// moment its boundary appears. The full response is published once
// after streaming concludes.
type Worker struct {
	bus      *bus.Client
	backend  Backend
	fallback *Fallback
	consumer string
}

// NewWorker builds an LLM worker on the given bus and backend.
func NewWorker(b *bus.Client, backend Backend) *Worker {
	return &Worker{
		bus:      b,
		backend:  backend,
		fallback: NewFallback(),
		consumer: bus.ConsumerName("llm"),
	}
}

// Run health-checks the backend, then consumes llm.requests until ctx
// is canceled. A failed startup health check is fatal; mid-session
// failures degrade to the static fallback instead.
func (w *Worker) Run(ctx context.Context) error {
	if err := w.backend.HealthCheck(ctx); err != nil {
		return fmt.Errorf("llm backend %s unhealthy: %w", w.backend.Name(), err)
	}
	logger.Info("llm_worker_started", "backend", w.backend.Name(), "model", w.backend.Model())

	return w.bus.Consume(ctx, types.StreamLLMRequests, types.GroupLLM, w.consumer, w.handle)
}

func (w *Worker) handle(ctx context.Context, _ string, data []byte) error {
	start := time.Now()

	var req types.LLMRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return fmt.Errorf("decode llm request: %w", err)
	}

	logger.LLMCall(w.backend.Name(), len(req.ConversationHistory)+2, req.Temperature,
		"request_id", req.RequestID)

	text, tokens, err := w.generate(ctx, &req, start)
	isFallback := false
	model := w.backend.Model()
	if err != nil {
		logger.LLMError(w.backend.Name(), err, "request_id", req.RequestID)
		metrics.RecordFallback("backend_error")

		text = w.fallback.Next()
		tokens = 0
		isFallback = true
		model = FallbackModel
		w.publishTTS(ctx, &req, 0, text)
	}

	latencyMS := time.Since(start).Milliseconds()
	response := types.LLMResponse{
		RequestID:      req.RequestID,
		DeviceID:       req.DeviceID,
		SessionID:      req.SessionID,
		Timestamp:      time.Now().UTC(),
		Text:           text,
		DetectedIntent: types.IntentUnknown,
		Model:          model,
		LatencyMS:      latencyMS,
		TokensUsed:     tokens,
		IsFallback:     isFallback,
	}

	if _, err := w.bus.Publish(ctx, types.StreamLLMResponses, response); err != nil {
		logger.Error("llm_response_publish_failed", "request_id", req.RequestID, "error", err)
		return nil
	}

	metrics.RecordTokensUsed(model, tokens)
	metrics.RecordStageLatency("llm", float64(latencyMS))
	logger.LLMResult(w.backend.Name(), tokens, latencyMS, isFallback,
		"request_id", req.RequestID)
	return nil
}

// generate runs the backend, fanning out sentences as they complete,
// and returns the joined text and token count.
func (w *Worker) generate(ctx context.Context, req *types.LLMRequest, start time.Time) (string, int, error) {
	if sb, ok := w.backend.(StreamingBackend); ok {
		return w.generateStreaming(ctx, sb, req, start)
	}
	return w.generateBatch(ctx, req, start)
}

func (w *Worker) generateStreaming(
	ctx context.Context,
	sb StreamingBackend,
	req *types.LLMRequest,
	start time.Time,
) (string, int, error) {
	chunks, err := sb.GenerateStreaming(ctx, req)
	if err != nil {
		return "", 0, err
	}

	var sentences []string
	tokens := 0
	sawFirst := false

	for chunk := range chunks {
		if chunk.Sentence != "" {
			if !sawFirst {
				sawFirst = true
				ttft := time.Since(start).Milliseconds()
				logger.FirstToken(w.backend.Name(), req.RequestID, ttft)
				metrics.RecordFirstToken(w.backend.Name(), float64(ttft))
			}
			w.publishTTS(ctx, req, len(sentences), chunk.Sentence)
			sentences = append(sentences, chunk.Sentence)
		}
		if chunk.IsFinal {
			tokens = chunk.TokensUsed
		}
	}

	if len(sentences) == 0 {
		return "", 0, errEmptyGeneration
	}
	return strings.Join(sentences, " "), tokens, nil
}

func (w *Worker) generateBatch(ctx context.Context, req *types.LLMRequest, start time.Time) (string, int, error) {
	result, err := w.backend.GenerateBatch(ctx, req)
	if err != nil {
		return "", 0, err
	}

	splitter := NewSentenceSplitter()
	sentences := splitter.Feed(result.Text)
	if tail := splitter.Flush(); tail != "" {
		sentences = append(sentences, tail)
	}
	if len(sentences) == 0 {
		return "", 0, errEmptyGeneration
	}

	ttft := time.Since(start).Milliseconds()
	logger.FirstToken(w.backend.Name(), req.RequestID, ttft)
	metrics.RecordFirstToken(w.backend.Name(), float64(ttft))

	for i, sentence := range sentences {
		w.publishTTS(ctx, req, i, sentence)
	}
	return strings.Join(sentences, " "), result.TokensUsed, nil
}

// publishTTS fans one sentence out for synthesis, correlated to its
// parent request by "<parent>-<index>".
func (w *Worker) publishTTS(ctx context.Context, req *types.LLMRequest, index int, sentence string) {
	ttsReq := types.TTSRequest{
		RequestID: fmt.Sprintf("%s-%d", req.RequestID, index),
		DeviceID:  req.DeviceID,
		SessionID: req.SessionID,
		Timestamp: time.Now().UTC(),
		Text:      sentence,
	}
	if _, err := w.bus.Publish(ctx, types.StreamTTSRequests, ttsReq); err != nil {
		logger.Error("tts_fanout_failed", "request_id", ttsReq.RequestID, "error", err)
	}
}
