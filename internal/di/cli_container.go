package di

import (
	"flag"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
	"go.uber.org/dig"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/mikey/guild-sentinel/internal/adapters/console"
	"github.com/mikey/guild-sentinel/internal/config"
	"github.com/mikey/guild-sentinel/internal/core"
	"github.com/mikey/guild-sentinel/internal/factory"
	"github.com/mikey/guild-sentinel/internal/logging"
)

// CLIFlags contains all command line flags for the replay application
type CLIFlags struct {
	// Engine flags
	RaidThreshold int
	SpamThreshold int
	RaidAction    string
	Channels      string
	Drain         time.Duration
	Events        int

	// Input flags
	InputFile  string
	Verbose    bool
	JSONLog    bool
	ConfigFile string
}

// ParseFlags parses command line flags and returns a CLIFlags struct
func ParseFlags() *CLIFlags {
	flags := &CLIFlags{}

	// Engine flags
	flag.IntVar(&flags.RaidThreshold, "raid-threshold", 0, "Override raid_threshold for every guild")
	flag.IntVar(&flags.SpamThreshold, "spam-threshold", 0, "Override spam_threshold for every guild")
	flag.StringVar(&flags.RaidAction, "raid-action", "", "Override raid_action for every guild (mute, timeout, kick, ban)")
	flag.StringVar(&flags.Channels, "channels", "general", "Comma-separated text channels every replayed guild reports")
	flag.DurationVar(&flags.Drain, "drain", 10*time.Minute, "Virtual time to keep sweeping after the last event")
	flag.IntVar(&flags.Events, "events", 20, "Recent security events to print per guild (0 disables)")

	// Input flags
	flag.StringVar(&flags.InputFile, "file", "", "Input JSON lines file (use stdin if not specified)")
	flag.BoolVar(&flags.Verbose, "verbose", false, "Enable verbose logging")
	flag.BoolVar(&flags.JSONLog, "json-log", false, "Output logs in JSON format")
	flag.StringVar(&flags.ConfigFile, "config", "", "Path to config file")

	flag.Parse()
	return flags
}

// BuildCLIContainer creates and configures a dependency injection container
// for the replay application. Moderation actions go to a dry-run platform.
func BuildCLIContainer(flags *CLIFlags, out io.Writer) (*dig.Container, error) {
	container := dig.New()
	clock := console.NewClock(time.Time{})

	// Register flags
	if err := container.Provide(func() *CLIFlags { return flags }); err != nil {
		return nil, err
	}

	// Register logger
	if err := container.Provide(func(flags *CLIFlags) (*zap.Logger, error) {
		return logging.InitConsoleLogger(flags.Verbose, flags.JSONLog)
	}); err != nil {
		return nil, err
	}

	// Register configuration
	if err := container.Provide(func(flags *CLIFlags, logger *zap.Logger) (*config.Config, error) {
		if flags.ConfigFile != "" {
			cfg, err := config.NewFromFile(flags.ConfigFile)
			if err != nil {
				return nil, err
			}
			logger.Info("Loaded configuration from file", zap.String("file", flags.ConfigFile))
			applyFlagOverrides(cfg.GetViper(), flags)
			return cfg, nil
		}

		// Create config from command line flags
		return createConfigFromFlags(flags), nil
	}); err != nil {
		return nil, err
	}

	// Register replay clock
	if err := container.Provide(func() *console.Clock { return clock }); err != nil {
		return nil, err
	}

	// Register dry-run platform
	if err := container.Provide(func(flags *CLIFlags, logger *zap.Logger) *console.DryRunPlatform {
		return console.NewDryRunPlatform(splitList(flags.Channels), logger)
	}); err != nil {
		return nil, err
	}
	if err := container.Provide(func(p *console.DryRunPlatform) core.Platform {
		return p
	}); err != nil {
		return nil, err
	}
	if err := container.Provide(func() core.Notifier {
		return console.NewNotifier(out)
	}); err != nil {
		return nil, err
	}

	// No outbound throttle for a dry run
	if err := container.Provide(func() *rate.Limiter { return nil }); err != nil {
		return nil, err
	}

	if err := container.Provide(factory.NewStoreFactory); err != nil {
		return nil, err
	}

	// Register engine with the replay clock
	if err := provideEngine(container, clock.Now); err != nil {
		return nil, err
	}

	// Register replay source
	if err := container.Provide(func(
		flags *CLIFlags,
		service *core.SentinelService,
		sweeper *core.Sweeper,
		f *factory.EngineFactory,
		logger *zap.Logger,
	) (*console.ReplaySource, error) {
		in, err := openInput(flags.InputFile, logger)
		if err != nil {
			return nil, err
		}
		interval, err := f.CreateSweepInterval()
		if err != nil {
			return nil, err
		}
		return console.NewReplaySource(in, service, sweeper, clock, interval, logger), nil
	}); err != nil {
		return nil, err
	}

	return container, nil
}

func openInput(path string, logger *zap.Logger) (io.ReadCloser, error) {
	if path == "" {
		logger.Info("Reading events from stdin")
		return io.NopCloser(os.Stdin), nil
	}
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	logger.Info("Reading events from file", zap.String("file", path))
	return file, nil
}

// createConfigFromFlags creates a configuration from command line flags
func createConfigFromFlags(flags *CLIFlags) *config.Config {
	v := config.NewEmptyViper()

	// Replays never touch the production database
	v.Set("store.type", "memory")
	v.Set("store.event_retention", "0s")

	applyFlagOverrides(v, flags)
	return config.NewFromViper(v)
}

func applyFlagOverrides(v *viper.Viper, flags *CLIFlags) {
	if flags.RaidThreshold > 0 {
		v.Set("guild_defaults."+core.SettingRaidThreshold, flags.RaidThreshold)
	}
	if flags.SpamThreshold > 0 {
		v.Set("guild_defaults."+core.SettingSpamThreshold, flags.SpamThreshold)
	}
	if flags.RaidAction != "" {
		v.Set("guild_defaults."+core.SettingRaidAction, flags.RaidAction)
	}
	// Log channels so notifications are printed
	v.Set("guild_defaults."+core.SettingRaidLogChannel, "raid-log")
	v.Set("guild_defaults."+core.SettingSpamLogChannel, "spam-log")
}

func splitList(raw string) []string {
	var out []string
	for _, item := range strings.Split(raw, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
