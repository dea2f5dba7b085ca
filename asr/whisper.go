package asr

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/AltairaLabs/hearth/audio"
	"github.com/AltairaLabs/hearth/telemetry"
	"github.com/AltairaLabs/hearth/types"
)

const (
	whisperTimeout       = 30 * time.Second
	transcriptionsPath   = "/v1/audio/transcriptions"
	whisperHealthPath    = "/health"
	beamSize             = "5"
	vadMinSilenceMS      = "500"
	vadSpeechPadMS       = "200"
	recognitionLanguage  = "en"
)

// WhisperClient talks to a faster-whisper server over its OpenAI-style
// transcription endpoint. PCM is wrapped in a WAV container per
// request; verbose_json responses carry per-segment avg_logprob, from
// which confidence is derived as mean(exp(avg_logprob)).
type WhisperClient struct {
	baseURL string
	model   string
	client  *http.Client
}

// NewWhisperClient builds a client for the server at baseURL using the
// given model size (tiny.en, base.en, small.en, ...).
func NewWhisperClient(baseURL, model string) *WhisperClient {
	return &WhisperClient{
		baseURL: baseURL,
		model:   model,
		client: &http.Client{
			Timeout:   whisperTimeout,
			Transport: telemetry.WrapTransport(nil),
		},
	}
}

// Name returns the engine identifier including the model size.
func (w *WhisperClient) Name() string {
	return "whisper-" + w.model
}

// verboseTranscription is the verbose_json response shape. Only the
// fields the pipeline needs are decoded.
type verboseTranscription struct {
	Text     string `json:"text"`
	Language string `json:"language"`
	Segments []struct {
		Text       string  `json:"text"`
		AvgLogprob float64 `json:"avg_logprob"`
	} `json:"segments"`
}

// Transcribe posts the utterance and returns recognized text with a
// confidence score. Empty engine output yields an empty Result, not an
// error.
func (w *WhisperClient) Transcribe(ctx context.Context, pcm []byte) (Result, error) {
	body, contentType, err := w.buildForm(pcm)
	if err != nil {
		return Result{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		w.baseURL+transcriptionsPath, body)
	if err != nil {
		return Result{}, fmt.Errorf("whisper request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := w.client.Do(req)
	if err != nil {
		return Result{}, fmt.Errorf("whisper call failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return Result{}, fmt.Errorf("whisper returned status %d: %s", resp.StatusCode, msg)
	}

	var decoded verboseTranscription
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return Result{}, fmt.Errorf("decode whisper response: %w", err)
	}

	return Result{
		Text:       decoded.Text,
		Confidence: meanConfidence(decoded),
		Language:   decoded.Language,
	}, nil
}

// buildForm assembles the multipart transcription request: the WAV
// payload plus the decoding parameters the engine expects as fields.
func (w *WhisperClient) buildForm(pcm []byte) (*bytes.Buffer, string, error) {
	body := &bytes.Buffer{}
	mw := multipart.NewWriter(body)

	part, err := mw.CreateFormFile("file", "utterance.wav")
	if err != nil {
		return nil, "", fmt.Errorf("build whisper form: %w", err)
	}
	if _, err := part.Write(audio.EncodeWAV(pcm, types.CaptureSampleRate)); err != nil {
		return nil, "", fmt.Errorf("build whisper form: %w", err)
	}

	fields := map[string]string{
		"model":                   w.model,
		"response_format":         "verbose_json",
		"language":                recognitionLanguage,
		"beam_size":               beamSize,
		"vad_filter":              "true",
		"min_silence_duration_ms": vadMinSilenceMS,
		"speech_pad_ms":           vadSpeechPadMS,
	}
	for name, value := range fields {
		if err := mw.WriteField(name, value); err != nil {
			return nil, "", fmt.Errorf("build whisper form: %w", err)
		}
	}

	if err := mw.Close(); err != nil {
		return nil, "", fmt.Errorf("build whisper form: %w", err)
	}
	return body, mw.FormDataContentType(), nil
}

// meanConfidence converts per-segment average log probabilities to a
// single confidence in [0, 1].
func meanConfidence(tr verboseTranscription) float64 {
	if len(tr.Segments) == 0 {
		return 0
	}
	sum := 0.0
	for _, seg := range tr.Segments {
		sum += math.Exp(seg.AvgLogprob)
	}
	return sum / float64(len(tr.Segments))
}

// HealthCheck probes the engine's health endpoint.
func (w *WhisperClient) HealthCheck(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, w.baseURL+whisperHealthPath, nil)
	if err != nil {
		return err
	}
	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("whisper unreachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("whisper health returned status %d", resp.StatusCode)
	}
	return nil
}
