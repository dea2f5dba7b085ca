// Command hearth-llm generates companion responses, streaming
// sentences to TTS as they complete.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/AltairaLabs/hearth/config"
	"github.com/AltairaLabs/hearth/llm"
	"github.com/AltairaLabs/hearth/service"
)

func main() {
	os.Exit(service.Main("llm", run))
}

func run(ctx context.Context, rt *service.Runtime) error {
	backend, err := buildBackend(ctx, rt.Settings)
	if err != nil {
		return err
	}
	return llm.NewWorker(rt.Bus, backend).Run(ctx)
}

func buildBackend(ctx context.Context, s *config.Settings) (llm.Backend, error) {
	switch s.LLMBackend {
	case "ollama":
		return llm.NewOllamaBackend(s.OllamaURL, s.LLMModel), nil
	case "bedrock":
		return llm.NewBedrockBackend(ctx, s.AWSRegion, s.BedrockModel, s.BedrockRoleARN)
	case "azure":
		return llm.NewAzureBackend(ctx,
			s.AzureOpenAIEndpoint, s.AzureOpenAIDeployment, s.AzureOpenAIAPIKey)
	default:
		return nil, fmt.Errorf("unknown llm_backend %q", s.LLMBackend)
	}
}
