package main

import (
	"context"
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/mikey/guild-sentinel/internal/adapters/console"
	"github.com/mikey/guild-sentinel/internal/adapters/store"
	"github.com/mikey/guild-sentinel/internal/di"
)

func main() {
	flags := di.ParseFlags()

	// Build the dependency injection container
	container, err := di.BuildCLIContainer(flags, os.Stdout)
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

// run replays the input through the engine and prints what it would have done
func run(
	flags *di.CLIFlags,
	logger *zap.Logger,
	source *console.ReplaySource,
	platform *console.DryRunPlatform,
	st store.Store,
) error {
	defer logger.Sync()
	defer st.Stop()
	defer func() {
		if err := source.Stop(); err != nil {
			logger.Warn("Failed to close replay input", zap.Error(err))
		}
	}()

	ctx := context.Background()
	if err := source.Run(ctx); err != nil {
		return err
	}
	source.Drain(ctx, flags.Drain)

	return console.WriteReport(ctx, os.Stdout, source, platform, st, flags.Events)
}
