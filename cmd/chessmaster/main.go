package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"chessmaster/internal/config"
)

// Set by the linker.
var version = "dev"

var (
	// Global flags
	verbose     bool
	configPath  string
	dataDir     string
	topicSet    string
	speed       int
	headless    bool
	metricsAddr string

	logger = zap.NewNop()
)

var rootCmd = &cobra.Command{
	Use:   "chessmaster",
	Short: "Continuous chess lesson slideshow",
	Long: `chessmaster searches the web for chess material, turns it into short
lessons and plays them as a paced slideshow in the terminal.

Lessons are built in the background while earlier ones are shown; fetched
content is cached so later sessions start immediately.

Keys: space pause, ←/→ speed ∓10, ↑/↓ speed ±25, n skip, q quit.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		zcfg := zap.NewProductionConfig()
		zcfg.OutputPaths = []string{"stderr"}
		if verbose {
			zcfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		} else {
			zcfg.Level = zap.NewAtomicLevelAt(zapcore.WarnLevel)
		}
		l, err := zcfg.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		logger = l
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = logger.Sync()
	},
	RunE: runSlideshow,
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	pf.StringVar(&configPath, "config", "", "Config file (default: <data-dir>/config.yaml)")
	pf.StringVar(&dataDir, "data-dir", "", "Directory for the cache, media and logs (default: ~/.chessmaster)")
	pf.StringVar(&topicSet, "topics", "", "Topic set: lessons or history")

	f := rootCmd.Flags()
	f.IntVar(&speed, "speed", config.DefaultSpeed, "Presentation speed, 1 (slowest) to 200 (fastest)")
	f.BoolVar(&headless, "headless", false, "Print slides as plain lines instead of the full-screen display")
	f.StringVar(&metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address")

	rootCmd.AddCommand(statsCmd, historyCmd, fetchCmd, versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// loadConfig layers flags over the config file and environment.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path := configPath
	if path == "" {
		dir := dataDir
		if dir == "" {
			dir = config.DefaultDataDir()
		}
		path = filepath.Join(dir, "config.yaml")
	}

	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if dataDir != "" {
		cfg.DataDir = dataDir
	}
	if topicSet != "" {
		cfg.Builder.TopicSet = topicSet
	}
	if f := cmd.Flags().Lookup("speed"); f != nil && f.Changed {
		clamped := config.ClampSpeed(speed)
		if clamped != speed {
			logger.Warn("speed clamped", zap.Int("requested", speed), zap.Int("speed", clamped))
		}
		cfg.Presentation.Speed = clamped
	}
	if f := cmd.Flags().Lookup("headless"); f != nil && f.Changed {
		cfg.Presentation.Headless = headless
	}
	if metricsAddr != "" {
		cfg.Metrics.Enabled = true
		cfg.Metrics.Addr = metricsAddr
	}
	logger.Debug("configuration loaded",
		zap.String("path", path),
		zap.String("data_dir", cfg.DataDir),
		zap.String("topic_set", cfg.Builder.TopicSet),
		zap.Int("speed", cfg.Presentation.Speed))
	return cfg, nil
}
