package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/AltairaLabs/hearth/logger"
	"github.com/AltairaLabs/hearth/telemetry"
	"github.com/AltairaLabs/hearth/types"
)

const (
	// ollamaOpTimeout bounds a whole generation; local inference on
	// small models is fast but cold loads are not.
	ollamaOpTimeout = 60 * time.Second

	// ollamaConnectTimeout bounds dialing, so a down server fails fast.
	ollamaConnectTimeout = 10 * time.Second

	ollamaChatPath = "/api/chat"
	ollamaTagsPath = "/api/tags"
)

// OllamaBackend generates with a local Ollama server over its native
// chat API. NDJSON streaming; no authentication.
type OllamaBackend struct {
	baseURL string
	model   string
	client  *http.Client
}

// NewOllamaBackend builds a backend for the server at baseURL.
func NewOllamaBackend(baseURL, model string) *OllamaBackend {
	dialer := &net.Dialer{Timeout: ollamaConnectTimeout}
	transport := &http.Transport{DialContext: dialer.DialContext}

	return &OllamaBackend{
		baseURL: strings.TrimRight(baseURL, "/"),
		model:   model,
		client: &http.Client{
			Timeout:   ollamaOpTimeout,
			Transport: telemetry.WrapTransport(transport),
		},
	}
}

// Name returns "ollama".
func (o *OllamaBackend) Name() string { return "ollama" }

// Model returns the configured model identifier.
func (o *OllamaBackend) Model() string { return o.model }

// ollamaChatRequest is the native chat API request body.
type ollamaChatRequest struct {
	Model    string              `json:"model"`
	Messages []types.ChatMessage `json:"messages"`
	Stream   bool                `json:"stream"`
	Options  ollamaOptions       `json:"options"`
}

type ollamaOptions struct {
	NumPredict  int     `json:"num_predict"`
	Temperature float64 `json:"temperature"`
}

// ollamaChatResponse is one response object; in streaming mode one of
// these arrives per NDJSON line, with EvalCount only on the done line.
type ollamaChatResponse struct {
	Message struct {
		Content string `json:"content"`
	} `json:"message"`
	Done      bool   `json:"done"`
	EvalCount int    `json:"eval_count"`
	Error     string `json:"error"`
}

// GenerateBatch issues one blocking chat call.
func (o *OllamaBackend) GenerateBatch(ctx context.Context, req *types.LLMRequest) (BatchResult, error) {
	resp, err := o.chat(ctx, req, false)
	if err != nil {
		return BatchResult{}, err
	}
	defer resp.Body.Close()

	var decoded ollamaChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return BatchResult{}, fmt.Errorf("decode ollama response: %w", err)
	}
	if decoded.Error != "" {
		return BatchResult{}, fmt.Errorf("ollama error: %s", decoded.Error)
	}

	return BatchResult{
		Text:       decoded.Message.Content,
		TokensUsed: decoded.EvalCount,
	}, nil
}

// GenerateStreaming streams NDJSON deltas through the sentence
// splitter. The channel closes after the final chunk.
func (o *OllamaBackend) GenerateStreaming(ctx context.Context, req *types.LLMRequest) (<-chan SentenceChunk, error) {
	resp, err := o.chat(ctx, req, true)
	if err != nil {
		return nil, err
	}

	out := make(chan SentenceChunk)
	go o.streamChat(ctx, resp.Body, out)
	return out, nil
}

func (o *OllamaBackend) streamChat(ctx context.Context, body io.ReadCloser, out chan<- SentenceChunk) {
	defer close(out)
	defer body.Close()

	splitter := NewSentenceSplitter()
	tokens := 0

	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return
		}

		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}

		var chunk ollamaChatResponse
		if err := json.Unmarshal(line, &chunk); err != nil {
			logger.Warn("ollama_stream_decode_error", "error", err)
			continue
		}
		if chunk.Error != "" {
			logger.Error("ollama_stream_error", "error", chunk.Error)
			break
		}

		for _, sentence := range splitter.Feed(chunk.Message.Content) {
			out <- SentenceChunk{Sentence: sentence}
		}
		if chunk.Done {
			tokens = chunk.EvalCount
			break
		}
	}

	out <- SentenceChunk{Sentence: splitter.Flush(), IsFinal: true, TokensUsed: tokens}
}

func (o *OllamaBackend) chat(ctx context.Context, req *types.LLMRequest, stream bool) (*http.Response, error) {
	body, err := json.Marshal(ollamaChatRequest{
		Model:    o.model,
		Messages: buildMessages(req),
		Stream:   stream,
		Options: ollamaOptions{
			NumPredict:  req.MaxTokens,
			Temperature: req.Temperature,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("marshal ollama request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		o.baseURL+ollamaChatPath, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("ollama request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := o.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("ollama call failed: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		resp.Body.Close()
		return nil, fmt.Errorf("ollama returned status %d: %s", resp.StatusCode, msg)
	}
	return resp, nil
}

// ollamaTags is the /api/tags model list.
type ollamaTags struct {
	Models []struct {
		Name string `json:"name"`
	} `json:"models"`
}

// HealthCheck verifies the server is reachable and the model is
// present. A missing model is an error so startup fails loudly instead
// of falling back forever.
func (o *OllamaBackend) HealthCheck(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, o.baseURL+ollamaTagsPath, nil)
	if err != nil {
		return err
	}
	resp, err := o.client.Do(req)
	if err != nil {
		return fmt.Errorf("ollama unreachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("ollama tags returned status %d", resp.StatusCode)
	}

	var tags ollamaTags
	if err := json.NewDecoder(resp.Body).Decode(&tags); err != nil {
		return fmt.Errorf("decode ollama tags: %w", err)
	}
	for _, model := range tags.Models {
		if model.Name == o.model || strings.Contains(model.Name, o.model) {
			return nil
		}
	}
	return fmt.Errorf("model %q not loaded on ollama", o.model)
}
