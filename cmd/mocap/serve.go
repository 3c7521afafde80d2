package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/OCAP2/mocap/internal/api"
	"github.com/OCAP2/mocap/internal/config"
	"github.com/OCAP2/mocap/internal/monitor"
)

func newServeCmd(a *app) *cobra.Command {
	var listen string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the recording catalog over HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := a.openStorage()
			if err != nil {
				return err
			}

			apiCfg := config.GetAPIConfig()
			if listen != "" {
				apiCfg.Listen = listen
			}

			mc := config.GetMonitorConfig()
			mon := monitor.NewService(monitor.Config{Interval: mc.Interval, StatusPath: mc.StatusPath},
				monitor.Dependencies{Storage: store, Metrics: a.otel, Logger: a.log})
			mon.Start()
			defer mon.Stop()

			srv := &http.Server{
				Addr: apiCfg.Listen,
				Handler: api.NewServer(api.ServerConfig{
					APIKey:    apiCfg.APIKey,
					RateLimit: apiCfg.RateLimit,
				}, api.ServerDependencies{Storage: store, Logger: a.log}),
				ReadHeaderTimeout: 10 * time.Second,
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return serve(ctx, srv, a)
		},
	}
	cmd.Flags().StringVar(&listen, "listen", "", "address to listen on (overrides api.listen)")
	return cmd
}

// serve runs srv until ctx is done, then shuts it down gracefully.
func serve(ctx context.Context, srv *http.Server, a *app) error {
	errCh := make(chan error, 1)
	go func() {
		a.log.Info("Catalog server listening", "addr", srv.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("catalog server: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("catalog server shutdown: %w", err)
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	a.log.Info("Catalog server stopped")
	return nil
}
