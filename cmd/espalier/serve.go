package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/aretw0/espalier"
	httpAdapter "github.com/aretw0/espalier/pkg/adapters/http"
	"github.com/aretw0/espalier/pkg/domain"
	"github.com/aretw0/espalier/pkg/observability"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API server",
	Long:  `Loads the graphs and serves the workflow API over HTTP until interrupted.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Flags().Changed("addr") {
			cfg.HTTP.Addr, _ = cmd.Flags().GetString("addr")
		}
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		return runServe(ctx)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringP("addr", "a", ":8080", "Address to listen on")
}

func runServe(ctx context.Context) error {
	if cfg.Tracing.Enabled {
		tp, err := observability.NewTracerProvider(ctx, cfg.Tracing.ServiceName)
		if err != nil {
			return fmt.Errorf("failed to start tracing: %w", err)
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := tp.Shutdown(shutdownCtx); err != nil {
				logger.Warn("Tracer shutdown failed", "err", err)
			}
		}()
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	recorder, err := observability.NewRecorder(reg)
	if err != nil {
		return err
	}

	hooks := []domain.LifecycleHooks{observability.LoggingHooks(logger), recorder.NodeHooks()}
	var handlerOpts []httpAdapter.Option
	handlerOpts = append(handlerOpts, httpAdapter.WithLogger(logger))
	if cfg.HTTP.Events {
		streams := httpAdapter.NewStreamManager()
		hooks = append(hooks, streams.Hooks())
		handlerOpts = append(handlerOpts, httpAdapter.WithStreams(streams))
	}
	if cfg.HTTP.Metrics {
		handlerOpts = append(handlerOpts, httpAdapter.WithMetrics(reg, reg))
	}
	if cfg.HTTP.CORS {
		handlerOpts = append(handlerOpts, httpAdapter.WithCORS())
	}

	eng, err := newEngine(ctx,
		espalier.WithObserver(recorder),
		espalier.WithLifecycleHooks(observability.MergeHooks(hooks...)),
	)
	if err != nil {
		return err
	}
	defer eng.Close()

	srv := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           httpAdapter.NewHandler(eng.Executor(), eng.Catalog(), handlerOpts...),
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Channel to listen for errors coming from the listener.
	serverErrors := make(chan error, 1)
	go func() {
		logger.Info("Starting espalier server", "addr", srv.Addr, "graphs", len(eng.Catalog().Graphs()), "store", cfg.Store.Driver)
		serverErrors <- srv.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server error: %w", err)

	case <-ctx.Done():
		logger.Info("Start shutdown")

		// Give outstanding requests a deadline for completion.
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Warn("Graceful shutdown did not complete", "timeout", 5*time.Second, "err", err)
			if err := srv.Close(); err != nil {
				return fmt.Errorf("could not stop server: %w", err)
			}
		}
		logger.Info("espalier server stopped gracefully")
		return nil
	}
}
