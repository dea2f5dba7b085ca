package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/AltairaLabs/hearth/credentials"
	"github.com/AltairaLabs/hearth/logger"
	"github.com/AltairaLabs/hearth/telemetry"
	"github.com/AltairaLabs/hearth/types"
)

const (
	azureOpTimeout   = 60 * time.Second
	azureAPIVersion  = "2024-02-15-preview"
	azureDoneMarker  = "[DONE]"
	azureKeyHeader   = "api-key"
)

// AzureBackend generates with an Azure OpenAI deployment over the chat
// completions API with SSE streaming. Authentication is an api-key
// header when a key is configured, otherwise Azure AD bearer tokens
// from the default credential chain.
type AzureBackend struct {
	endpoint   string
	deployment string
	cred       credentials.Credential
	client     *http.Client
}

// NewAzureBackend builds a backend for the given resource endpoint and
// deployment. apiKey may be empty to use managed identity.
func NewAzureBackend(ctx context.Context, endpoint, deployment, apiKey string) (*AzureBackend, error) {
	if endpoint == "" || deployment == "" {
		return nil, fmt.Errorf("azure backend requires endpoint and deployment")
	}

	var cred credentials.Credential
	if apiKey != "" {
		cred = credentials.NewAPIKeyCredential(apiKey,
			credentials.WithHeaderName(azureKeyHeader), credentials.WithPrefix(""))
	} else {
		azCred, err := credentials.NewAzureCredential(ctx, endpoint)
		if err != nil {
			return nil, fmt.Errorf("azure credentials: %w", err)
		}
		cred = azCred
	}

	return &AzureBackend{
		endpoint:   endpoint,
		deployment: deployment,
		cred:       cred,
		client: &http.Client{
			Timeout:   azureOpTimeout,
			Transport: telemetry.WrapTransport(nil),
		},
	}, nil
}

// Name returns "azure".
func (a *AzureBackend) Name() string { return "azure" }

// Model returns the deployment name.
func (a *AzureBackend) Model() string { return a.deployment }

// azureChatRequest is the chat completions request body.
type azureChatRequest struct {
	Messages    []types.ChatMessage `json:"messages"`
	MaxTokens   int                 `json:"max_tokens"`
	Temperature float64             `json:"temperature"`
	Stream      bool                `json:"stream"`
}

// azureChatResponse is the non-streaming completion.
type azureChatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Usage struct {
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
}

// azureStreamChunk is one SSE data payload.
type azureStreamChunk struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
		FinishReason *string `json:"finish_reason"`
	} `json:"choices"`
	Usage *struct {
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
}

// GenerateBatch issues one blocking chat completion.
func (a *AzureBackend) GenerateBatch(ctx context.Context, req *types.LLMRequest) (BatchResult, error) {
	resp, err := a.complete(ctx, req, false)
	if err != nil {
		return BatchResult{}, err
	}
	defer resp.Body.Close()

	var decoded azureChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return BatchResult{}, fmt.Errorf("decode azure response: %w", err)
	}
	if len(decoded.Choices) == 0 {
		return BatchResult{}, fmt.Errorf("azure returned no choices")
	}

	return BatchResult{
		Text:       decoded.Choices[0].Message.Content,
		TokensUsed: decoded.Usage.CompletionTokens,
	}, nil
}

// GenerateStreaming streams SSE deltas through the sentence splitter.
func (a *AzureBackend) GenerateStreaming(ctx context.Context, req *types.LLMRequest) (<-chan SentenceChunk, error) {
	resp, err := a.complete(ctx, req, true)
	if err != nil {
		return nil, err
	}

	out := make(chan SentenceChunk)
	go a.streamCompletions(ctx, resp.Body, out)
	return out, nil
}

func (a *AzureBackend) streamCompletions(ctx context.Context, body io.ReadCloser, out chan<- SentenceChunk) {
	defer close(out)
	defer body.Close()

	splitter := NewSentenceSplitter()
	tokens := 0

	scanner := newSSEScanner(body)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return
		}
		if scanner.Data() == azureDoneMarker {
			break
		}

		var chunk azureStreamChunk
		if err := json.Unmarshal([]byte(scanner.Data()), &chunk); err != nil {
			continue
		}
		if chunk.Usage != nil {
			tokens = chunk.Usage.CompletionTokens
		}
		if len(chunk.Choices) == 0 {
			continue
		}

		for _, sentence := range splitter.Feed(chunk.Choices[0].Delta.Content) {
			out <- SentenceChunk{Sentence: sentence}
		}
	}
	if err := scanner.Err(); err != nil {
		logger.Error("azure_stream_error", "error", err)
	}

	out <- SentenceChunk{Sentence: splitter.Flush(), IsFinal: true, TokensUsed: tokens}
}

func (a *AzureBackend) complete(ctx context.Context, req *types.LLMRequest, stream bool) (*http.Response, error) {
	body, err := json.Marshal(azureChatRequest{
		Messages:    buildMessages(req),
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
		Stream:      stream,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal azure request: %w", err)
	}

	url := fmt.Sprintf("%s/openai/deployments/%s/chat/completions?api-version=%s",
		a.endpoint, a.deployment, azureAPIVersion)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("azure request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if stream {
		httpReq.Header.Set("Accept", "text/event-stream")
	}

	if err := a.cred.Apply(ctx, httpReq); err != nil {
		return nil, fmt.Errorf("authenticate azure request: %w", err)
	}

	resp, err := a.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("azure call failed: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		resp.Body.Close()
		return nil, fmt.Errorf("azure returned status %d: %s", resp.StatusCode, msg)
	}
	return resp, nil
}

// HealthCheck verifies credentials are usable. A full completion is
// too expensive for a liveness probe; an auth failure here is the
// dominant misconfiguration.
func (a *AzureBackend) HealthCheck(ctx context.Context) error {
	probe, err := http.NewRequestWithContext(ctx, http.MethodGet, a.endpoint, nil)
	if err != nil {
		return err
	}
	if err := a.cred.Apply(ctx, probe); err != nil {
		return fmt.Errorf("azure credentials unresolved: %w", err)
	}
	return nil
}
