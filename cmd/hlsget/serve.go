package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v5"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/datallboy/hlsget/internal/api"
	"github.com/datallboy/hlsget/internal/engine"
	"github.com/datallboy/hlsget/internal/platform"
)

const shutdownTimeout = 10 * time.Second

func newServeCommand(ctx *commandContext) *cobra.Command {
	var port string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the download queue behind an HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("port") {
				cfg.Port = port
			}

			if err := platform.ValidateDependencies(cfg.Mux); err != nil {
				return err
			}

			appCtx, closeApp, err := buildApp(cfg)
			if err != nil {
				return err
			}
			defer closeApp()

			queue := engine.NewQueueManager(engine.NewDownloader(appCtx), appCtx.Store, appCtx.Logger)
			if err := queue.RecoverInterrupted(cmd.Context()); err != nil {
				return err
			}
			appCtx.Queue = queue

			e := echo.New()
			api.RegisterRoutes(e, appCtx)

			srv := &http.Server{
				Addr:              net.JoinHostPort("", cfg.Port),
				Handler:           e,
				ReadHeaderTimeout: 10 * time.Second,
			}

			sigCtx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			g, gctx := errgroup.WithContext(sigCtx)

			g.Go(func() error {
				queue.Start(gctx)
				return nil
			})

			g.Go(func() error {
				appCtx.Logger.Info("Listening on %s", srv.Addr)
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				return nil
			})

			g.Go(func() error {
				<-gctx.Done()
				shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
				defer cancel()
				return srv.Shutdown(shutdownCtx)
			})

			err = g.Wait()
			appCtx.Logger.Info("Server stopped")
			return err
		},
	}

	cmd.Flags().StringVarP(&port, "port", "p", "", "Port to listen on (overrides config)")

	return cmd
}
