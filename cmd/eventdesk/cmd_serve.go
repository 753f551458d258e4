package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"

	httpadapter "github.com/couchcryptid/community-events/internal/adapter/http"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

func newServeCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the read-only desk API on HTTP_ADDR",
		Long: `Serves /healthz, /readyz, /metrics and the read-only /api routes on
HTTP_ADDR (default 127.0.0.1:8080) until interrupted. Libraries are loaded
once at startup.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			locs, orgs, err := a.libraries()
			if err != nil {
				return err
			}
			contexts, err := a.reviewContexts()
			if err != nil {
				return err
			}
			a.geocoder() // publishes the geocode_enabled gauge

			srv := httpadapter.NewServer(a.cfg.HTTPAddr, httpadapter.Backend{
				Ready:      httpadapter.ReadinessFunc(func(context.Context) error { return dataDirReady(a.files.Dir()) }),
				Locations:  locs,
				Organizers: orgs,
				Review:     contexts,
				Gatherer:   a.registry,
			}, a.logger)

			g, ctx := errgroup.WithContext(cmd.Context())
			g.Go(func() error {
				if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				return nil
			})
			g.Go(func() error {
				<-ctx.Done()
				a.logger.Info("shutting down")
				shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout)
				defer cancel()
				if err := srv.Shutdown(shutdownCtx); err != nil {
					return fmt.Errorf("http server shutdown: %w", err)
				}
				a.logger.Info("shutdown complete")
				return nil
			})
			return g.Wait()
		},
	}
}

func dataDirReady(dir string) error {
	info, err := os.Stat(dir)
	if err != nil {
		return fmt.Errorf("data directory: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("data directory %s is not a directory", dir)
	}
	return nil
}
