// Command hearth-tts synthesizes speech for generated sentences.
package main

import (
	"context"
	"os"

	"github.com/AltairaLabs/hearth/service"
	"github.com/AltairaLabs/hearth/tts"
)

func main() {
	os.Exit(service.Main("tts", run))
}

func run(ctx context.Context, rt *service.Runtime) error {
	engine := tts.NewPiperClient(rt.Settings.PiperURL, rt.Settings.PiperVoice)
	return tts.NewWorker(rt.Bus, engine).Run(ctx)
}
