package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/mikey/guild-sentinel/internal/adapters/store"
	"github.com/mikey/guild-sentinel/internal/config"
	"github.com/mikey/guild-sentinel/internal/core"
	"github.com/mikey/guild-sentinel/internal/di"
	"github.com/mikey/guild-sentinel/internal/ports"
)

func main() {
	// Build the dependency injection container
	container, err := di.BuildContainer()
	if err != nil {
		fmt.Printf("Failed to build dependency container: %v\n", err)
		os.Exit(1)
	}

	// Run the application
	if err := container.Invoke(run); err != nil {
		fmt.Printf("Application error: %v\n", err)
		os.Exit(1)
	}
}

// run is the main application function that gets all dependencies injected
func run(
	cfg *config.Config,
	logger *zap.Logger,
	source ports.EventSource,
	sweeper *core.Sweeper,
	st store.Store,
) error {
	defer logger.Sync()

	// Handle graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

	metricsCfg := cfg.GetMetrics()
	if metricsCfg.Enabled {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		srv := &http.Server{
			Addr:              metricsCfg.ListenAddress,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		}
		g.Go(func() error {
			logger.Info("Serving metrics", zap.String("address", metricsCfg.ListenAddress))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("metrics server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	// Start the event source
	if err := source.Start(); err != nil {
		logger.Error("Failed to start event source", zap.Error(err))
		stop()
		_ = g.Wait()
		st.Stop()
		return err
	}
	sweeper.Start(ctx)
	logger.Info("Guild sentinel running")

	<-ctx.Done()
	logger.Info("Shutting down...")

	// Stop taking events before the sweep and the store go away
	if err := source.Stop(); err != nil {
		logger.Error("Failed to stop event source", zap.Error(err))
	}
	sweeper.Stop()

	err := g.Wait()
	st.Stop()

	logger.Info("Shutdown complete")
	return err
}
