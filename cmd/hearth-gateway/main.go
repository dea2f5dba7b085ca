// Command hearth-gateway terminates the companion device's WebSocket
// and bridges it onto the stream bus.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/AltairaLabs/hearth/gateway"
	"github.com/AltairaLabs/hearth/logger"
	"github.com/AltairaLabs/hearth/service"
)

func main() {
	os.Exit(service.Main("gateway", run))
}

func run(ctx context.Context, rt *service.Runtime) error {
	gw := gateway.NewServer(rt.Bus, rt.Settings.DefaultDeviceID, rt.Exporter.Handler())

	server := &http.Server{
		Addr:              rt.Settings.GatewayAddr(),
		Handler:           gw.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("gateway_listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})
	g.Go(func() error {
		return gw.Run(ctx)
	})
	return g.Wait()
}
