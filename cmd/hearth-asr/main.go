// Command hearth-asr transcribes segmented utterances.
package main

import (
	"context"
	"os"

	"github.com/AltairaLabs/hearth/asr"
	"github.com/AltairaLabs/hearth/service"
)

func main() {
	os.Exit(service.Main("asr", run))
}

func run(ctx context.Context, rt *service.Runtime) error {
	engine := asr.NewWhisperClient(rt.Settings.WhisperURL, rt.Settings.WhisperModel)
	return asr.NewWorker(rt.Bus, engine).Run(ctx)
}
