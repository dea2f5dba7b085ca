package audio

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/AltairaLabs/hearth/telemetry"
)

const (
	modelHTTPTimeout = 5 * time.Second
	modelDetectPath  = "/v1/detect"
	modelHealthPath  = "/health"
)

// ModelAnalyzer queries a neural VAD sidecar over HTTP. The sidecar
// accepts raw PCM and returns a speech probability; chunks at or above
// the threshold count as speech.
type ModelAnalyzer struct {
	baseURL   string
	threshold float64
	client    *http.Client
}

// NewModelAnalyzer probes the sidecar at baseURL and returns an
// analyzer bound to it. A probe failure is returned as an error so the
// caller can fall back to energy detection; it is never fatal.
func NewModelAnalyzer(ctx context.Context, baseURL string) (*ModelAnalyzer, error) {
	a := &ModelAnalyzer{
		baseURL:   baseURL,
		threshold: DefaultThreshold,
		client: &http.Client{
			Timeout:   modelHTTPTimeout,
			Transport: telemetry.WrapTransport(nil),
		},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL+modelHealthPath, nil)
	if err != nil {
		return nil, fmt.Errorf("vad model probe: %w", err)
	}
	resp, err := a.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("vad model unreachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("vad model probe returned status %d", resp.StatusCode)
	}
	return a, nil
}

// Name returns the analyzer identifier.
func (a *ModelAnalyzer) Name() string {
	return "neural-vad"
}

// modelResponse is the sidecar's detection result.
type modelResponse struct {
	Probability float64 `json:"probability"`
}

// Analyze posts the chunk to the sidecar and thresholds the returned
// probability.
func (a *ModelAnalyzer) Analyze(ctx context.Context, pcm []byte) (Detection, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		a.baseURL+modelDetectPath, bytes.NewReader(pcm))
	if err != nil {
		return Detection{}, fmt.Errorf("vad model request: %w", err)
	}
	req.Header.Set("Content-Type", "application/octet-stream")

	resp, err := a.client.Do(req)
	if err != nil {
		return Detection{}, fmt.Errorf("vad model call failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return Detection{}, fmt.Errorf("vad model returned status %d: %s", resp.StatusCode, body)
	}

	var result modelResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return Detection{}, fmt.Errorf("decode vad model response: %w", err)
	}

	return Detection{
		Speech:      result.Probability >= a.threshold,
		Probability: result.Probability,
	}, nil
}

// Reset is a no-op; the sidecar holds state per request only.
func (a *ModelAnalyzer) Reset() {}
