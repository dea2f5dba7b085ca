// Command hearth-admin loads declarative YAML manifests (CarePlan,
// UserProfile) into the conversation store. It takes the store's
// single-writer lock, so run it while the orchestrator is stopped.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/joho/godotenv"

	"github.com/AltairaLabs/hearth/config"
	"github.com/AltairaLabs/hearth/logger"
	"github.com/AltairaLabs/hearth/orchestrator"
)

func main() {
	os.Exit(run())
}

func run() int {
	_ = godotenv.Load()

	settings, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "hearth-admin: %v\n", err)
		return 1
	}

	dbPath := flag.String("db", settings.DatabasePath, "path to the conversation store")
	validateOnly := flag.Bool("validate", false, "validate manifests without applying them")
	flag.Parse()

	files := flag.Args()
	if len(files) == 0 {
		fmt.Fprintln(os.Stderr, "usage: hearth-admin [-db path] [-validate] manifest.yaml ...")
		return 2
	}

	logger.Setup("admin", settings.LogLevel, false)

	manifests := make([]*orchestrator.Manifest, 0, len(files))
	for _, file := range files {
		m, err := orchestrator.LoadManifest(file)
		if err != nil {
			fmt.Fprintf(os.Stderr, "hearth-admin: %s: %v\n", file, err)
			return 1
		}
		manifests = append(manifests, m)
		fmt.Printf("%s: %s/%s ok\n", file, m.Kind, m.Metadata.Name)
	}

	if *validateOnly {
		return 0
	}

	store, err := orchestrator.OpenStore(*dbPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "hearth-admin: %v\n", err)
		return 1
	}
	defer store.Close()

	ctx := context.Background()
	for i, m := range manifests {
		if err := store.ApplyManifest(ctx, m); err != nil {
			fmt.Fprintf(os.Stderr, "hearth-admin: %s: %v\n", files[i], err)
			return 1
		}
		fmt.Printf("%s: %s/%s applied\n", files[i], m.Kind, m.Metadata.Name)
	}
	return 0
}
