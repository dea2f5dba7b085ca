// Command hearth-vad segments inbound audio into utterances.
package main

import (
	"context"
	"os"

	"github.com/AltairaLabs/hearth/audio"
	"github.com/AltairaLabs/hearth/logger"
	"github.com/AltairaLabs/hearth/service"
	"github.com/AltairaLabs/hearth/vad"
)

func main() {
	os.Exit(service.Main("vad", run))
}

func run(ctx context.Context, rt *service.Runtime) error {
	analyzer := buildAnalyzer(ctx, rt)
	return vad.NewWorker(rt.Bus, analyzer).Run(ctx)
}

// buildAnalyzer prefers the neural sidecar when configured; any
// failure to reach it falls back to energy detection rather than
// refusing to start.
func buildAnalyzer(ctx context.Context, rt *service.Runtime) audio.Analyzer {
	if url := rt.Settings.VADModelURL; url != "" {
		model, err := audio.NewModelAnalyzer(ctx, url)
		if err == nil {
			logger.Info("vad_model_loaded", "url", url)
			return model
		}
		logger.Warn("vad_model_unavailable_using_energy", "url", url, "error", err)
	}
	return audio.NewEnergyAnalyzer()
}
