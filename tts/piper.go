package tts

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/AltairaLabs/hearth/telemetry"
	"github.com/AltairaLabs/hearth/types"
)

const piperTimeout = 30 * time.Second

// PiperClient talks to a piper HTTP server. The server takes the text
// as a query parameter and answers with raw mono signed-16 PCM at
// 22.05 kHz.
type PiperClient struct {
	baseURL string
	voice   string
	client  *http.Client
}

// NewPiperClient builds a client for the piper server at baseURL using
// the given voice identifier (e.g. en_US-lessac-medium).
func NewPiperClient(baseURL, voice string) *PiperClient {
	return &PiperClient{
		baseURL: baseURL,
		voice:   voice,
		client: &http.Client{
			Timeout:   piperTimeout,
			Transport: telemetry.WrapTransport(nil),
		},
	}
}

// Name returns the engine identifier including the voice.
func (p *PiperClient) Name() string {
	return "piper-" + p.voice
}

// SampleRate returns piper's output rate.
func (p *PiperClient) SampleRate() int {
	return types.SynthesisSampleRate
}

// Synthesize requests speech for text and returns the raw PCM.
func (p *PiperClient) Synthesize(ctx context.Context, text string) ([]byte, error) {
	query := url.Values{}
	query.Set("text", text)
	if p.voice != "" {
		query.Set("voice", p.voice)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		p.baseURL+"/?"+query.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("piper request: %w", err)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("piper call failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("piper returned status %d: %s", resp.StatusCode, msg)
	}

	pcm, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read piper response: %w", err)
	}
	if len(pcm) == 0 {
		return nil, fmt.Errorf("piper returned no audio for %q", truncate(text, 40))
	}
	return pcm, nil
}

// HealthCheck issues a minimal synthesis to verify the voice model is
// loaded; piper has no dedicated health endpoint.
func (p *PiperClient) HealthCheck(ctx context.Context) error {
	_, err := p.Synthesize(ctx, "ok")
	return err
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return strings.TrimSpace(s[:n]) + "..."
}
