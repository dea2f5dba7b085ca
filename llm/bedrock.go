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
	bedrockOpTimeout        = 60 * time.Second
	bedrockAnthropicVersion = "bedrock-2023-05-31"
)

// bedrockModelIDs maps Anthropic model names to Bedrock model IDs.
// Names not listed here are passed through as-is.
var bedrockModelIDs = map[string]string{
	"claude-3-5-sonnet-20241022": "anthropic.claude-3-5-sonnet-20241022-v2:0",
	"claude-3-5-sonnet-20240620": "anthropic.claude-3-5-sonnet-20240620-v1:0",
	"claude-3-opus-20240229":     "anthropic.claude-3-opus-20240229-v1:0",
	"claude-3-sonnet-20240229":   "anthropic.claude-3-sonnet-20240229-v1:0",
	"claude-3-haiku-20240307":    "anthropic.claude-3-haiku-20240307-v1:0",
	"claude-3-5-haiku-20241022":  "anthropic.claude-3-5-haiku-20241022-v1:0",
}

// BedrockBackend generates with Anthropic models on AWS Bedrock,
// speaking the Anthropic messages API over SigV4-signed HTTP. Streaming
// uses the binary event-stream envelope of invoke-with-response-stream.
type BedrockBackend struct {
	cred     *credentials.AWSCredential
	endpoint string
	model    string
	modelID  string
	client   *http.Client
}

// NewBedrockBackend builds a backend using the default AWS credential
// chain for region, assuming roleARN first when it is non-empty.
func NewBedrockBackend(ctx context.Context, region, model, roleARN string) (*BedrockBackend, error) {
	var opts []credentials.AWSOption
	if roleARN != "" {
		opts = append(opts, credentials.WithAssumedRole(roleARN))
	}
	cred, err := credentials.NewAWSCredential(ctx, region, opts...)
	if err != nil {
		return nil, fmt.Errorf("bedrock credentials: %w", err)
	}

	modelID, ok := bedrockModelIDs[model]
	if !ok {
		modelID = model
	}

	return &BedrockBackend{
		cred:     cred,
		endpoint: fmt.Sprintf("https://bedrock-runtime.%s.amazonaws.com", cred.Region()),
		model:    model,
		modelID:  modelID,
		client: &http.Client{
			Timeout:   bedrockOpTimeout,
			Transport: telemetry.WrapTransport(nil),
		},
	}, nil
}

// Name returns "bedrock".
func (b *BedrockBackend) Name() string { return "bedrock" }

// Model returns the configured model name.
func (b *BedrockBackend) Model() string { return b.model }

// anthropicRequest is the messages-API request body.
type anthropicRequest struct {
	AnthropicVersion string              `json:"anthropic_version"`
	MaxTokens        int                 `json:"max_tokens"`
	System           string              `json:"system,omitempty"`
	Messages         []types.ChatMessage `json:"messages"`
	Temperature      float64             `json:"temperature"`
}

// anthropicEvent covers the streaming event types the worker consumes.
type anthropicEvent struct {
	Type  string `json:"type"`
	Delta struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"delta"`
	Usage struct {
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

// anthropicResponse is the non-streaming invoke response.
type anthropicResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	Usage struct {
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

// GenerateBatch issues one blocking invoke call.
func (b *BedrockBackend) GenerateBatch(ctx context.Context, req *types.LLMRequest) (BatchResult, error) {
	url := fmt.Sprintf("%s/model/%s/invoke", b.endpoint, b.modelID)
	resp, err := b.invoke(ctx, url, req)
	if err != nil {
		return BatchResult{}, err
	}
	defer resp.Body.Close()

	var decoded anthropicResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return BatchResult{}, fmt.Errorf("decode bedrock response: %w", err)
	}

	text := ""
	for _, block := range decoded.Content {
		if block.Type == "text" {
			text += block.Text
		}
	}
	return BatchResult{Text: text, TokensUsed: decoded.Usage.OutputTokens}, nil
}

// GenerateStreaming streams event-stream frames through the sentence
// splitter.
func (b *BedrockBackend) GenerateStreaming(ctx context.Context, req *types.LLMRequest) (<-chan SentenceChunk, error) {
	url := fmt.Sprintf("%s/model/%s/invoke-with-response-stream", b.endpoint, b.modelID)
	resp, err := b.invoke(ctx, url, req)
	if err != nil {
		return nil, err
	}

	out := make(chan SentenceChunk)
	go b.streamEvents(ctx, resp.Body, out)
	return out, nil
}

func (b *BedrockBackend) streamEvents(ctx context.Context, body io.ReadCloser, out chan<- SentenceChunk) {
	defer close(out)
	defer body.Close()

	splitter := NewSentenceSplitter()
	tokens := 0

	scanner := newBedrockEventScanner(body)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return
		}

		var event anthropicEvent
		if err := json.Unmarshal([]byte(scanner.Data()), &event); err != nil {
			continue
		}

		switch event.Type {
		case "content_block_delta":
			for _, sentence := range splitter.Feed(event.Delta.Text) {
				out <- SentenceChunk{Sentence: sentence}
			}
		case "message_delta":
			if event.Usage.OutputTokens > 0 {
				tokens = event.Usage.OutputTokens
			}
		}
	}
	if err := scanner.Err(); err != nil {
		logger.Error("bedrock_stream_error", "error", err)
	}

	out <- SentenceChunk{Sentence: splitter.Flush(), IsFinal: true, TokensUsed: tokens}
}

func (b *BedrockBackend) invoke(ctx context.Context, url string, req *types.LLMRequest) (*http.Response, error) {
	messages := buildMessages(req)
	system := ""
	if len(messages) > 0 && messages[0].Role == types.RoleSystem {
		system = messages[0].Content
		messages = messages[1:]
	}

	body, err := json.Marshal(anthropicRequest{
		AnthropicVersion: bedrockAnthropicVersion,
		MaxTokens:        req.MaxTokens,
		System:           system,
		Messages:         messages,
		Temperature:      req.Temperature,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal bedrock request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("bedrock request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")

	if err := b.cred.Apply(ctx, httpReq); err != nil {
		return nil, fmt.Errorf("sign bedrock request: %w", err)
	}

	resp, err := b.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("bedrock call failed: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		resp.Body.Close()
		return nil, fmt.Errorf("bedrock returned status %d: %s", resp.StatusCode, msg)
	}
	return resp, nil
}

// HealthCheck verifies credentials resolve; Bedrock has no cheap
// liveness endpoint, and a failed credential chain is the common
// misconfiguration.
func (b *BedrockBackend) HealthCheck(ctx context.Context) error {
	return b.cred.Resolve(ctx)
}
