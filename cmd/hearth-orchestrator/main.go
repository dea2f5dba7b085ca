// Command hearth-orchestrator runs the conversation brain: transcript
// handling, persistence, and the proactive rules engine.
package main

import (
	"context"
	"os"

	"github.com/AltairaLabs/hearth/metrics"
	"github.com/AltairaLabs/hearth/orchestrator"
	"github.com/AltairaLabs/hearth/service"
)

func main() {
	os.Exit(service.Main("orchestrator", run))
}

func run(ctx context.Context, rt *service.Runtime) error {
	store, err := orchestrator.OpenStore(rt.Settings.DatabasePath)
	if err != nil {
		return err
	}
	defer store.Close()
	metrics.SetComponentHealth("database", true)

	rules, err := orchestrator.LoadRules(rt.Settings.RulesConfigPath)
	if err != nil {
		return err
	}

	worker := orchestrator.NewWorker(rt.Bus, store, rules, orchestrator.Config{
		DefaultDeviceID:      rt.Settings.DefaultDeviceID,
		EnableProactive:      rt.Settings.EnableProactiveRules,
		ProactiveRatePerHour: rt.Settings.ProactiveRatePerHour,
	})
	return worker.Run(ctx)
}
