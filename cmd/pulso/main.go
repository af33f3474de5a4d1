package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/TobiSchelling/pulso/internal/config"
	"github.com/TobiSchelling/pulso/internal/logging"
	"github.com/TobiSchelling/pulso/internal/scheduler"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var version = "dev"

var (
	verbose    bool
	configPath string
	cfg        *config.Config
	logger     *zap.Logger
)

func main() {
	err := rootCmd.Execute()
	if logger != nil {
		logger.Sync()
	}
	if err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:          "pulso",
	Short:        "Hourly normalization and daily aggregation of source metrics",
	Long:         "pulso rescales each source's hourly raw volumes to 0-100 and triggers the daily aggregation procedure.",
	Version:      version,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Skip config loading for init and version
		if cmd.Name() == "init" || cmd.Name() == "version" {
			return nil
		}

		path, err := config.ResolveConfigPath(configPath)
		if err != nil {
			return err
		}
		cfg, err = config.Load(path)
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}

		logger, err = logging.New(logging.Options{
			Level:   cfg.Logging.Level,
			File:    cfg.Logging.File,
			Verbose: verbose,
		})
		if err != nil {
			return fmt.Errorf("configuring logging: %w", err)
		}
		if path != "" {
			logger.Debug("loaded config", zap.String("path", path))
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to config file")

	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(normalizeCmd)
	rootCmd.AddCommand(aggregateCmd)
	rootCmd.AddCommand(scheduleCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("pulso", version)
	},
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration in ~/.config/pulso/",
	RunE: func(cmd *cobra.Command, args []string) error {
		target := filepath.Join(config.ConfigDir(), "config.yaml")
		if _, err := os.Stat(target); err == nil {
			fmt.Printf("Config already exists: %s\n", target)
			return nil
		}

		if err := os.MkdirAll(config.ConfigDir(), 0o755); err != nil {
			return fmt.Errorf("creating config directory: %w", err)
		}

		if err := os.WriteFile(target, config.DefaultConfigYAML, 0o644); err != nil {
			return fmt.Errorf("writing config: %w", err)
		}

		fmt.Printf("Created config: %s\n", target)
		fmt.Println("Set SUPABASE_URL and SUPABASE_SERVICE_KEY, or edit it to choose another store backend.")
		return nil
	},
}

// --- normalize command ---

var (
	bucketFlag string
	dryRun     bool
)

var normalizeCmd = &cobra.Command{
	Use:   "normalize",
	Short: "Normalize the previous hour's metrics for every active source",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		st, err := openStore(cfg, logger)
		if err != nil {
			return err
		}
		defer st.Close()

		return runNormalize(ctx, os.Stdout, cfg, st, logger, normalizeOptions{
			Bucket: bucketFlag,
			DryRun: dryRun,
		})
	},
}

func init() {
	normalizeCmd.Flags().StringVar(&bucketFlag, "bucket", "", `Bucket start to normalize, "YYYY-MM-DD HH:00:00" UTC (default: previous hour)`)
	normalizeCmd.Flags().BoolVar(&dryRun, "dry-run", false, "Compute normalized values without writing them")
}

// --- aggregate command ---

var dayFlag string

var aggregateCmd = &cobra.Command{
	Use:   "aggregate",
	Short: "Run the daily aggregation procedure",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		st, err := openStore(cfg, logger)
		if err != nil {
			return err
		}
		defer st.Close()

		return runAggregate(ctx, os.Stdout, cfg, st, logger, dayFlag)
	},
}

func init() {
	aggregateCmd.Flags().StringVar(&dayFlag, "day", "", "Day to aggregate, YYYY-MM-DD UTC (default: today)")
}

// --- schedule command ---

var scheduleCmd = &cobra.Command{
	Use:   "schedule",
	Short: "Run both jobs in-process on their cron schedules (UTC)",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		sched := scheduler.New(logger)
		// Each activation opens its own store so a run stays short-lived and stateless.
		err := sched.Add(ctx, "normalize", cfg.Jobs.HourlyCron, func(ctx context.Context) error {
			st, err := openStore(cfg, logger)
			if err != nil {
				return err
			}
			defer st.Close()
			return runNormalize(ctx, os.Stdout, cfg, st, logger, normalizeOptions{})
		})
		if err != nil {
			return err
		}
		err = sched.Add(ctx, "aggregate", cfg.Jobs.DailyCron, func(ctx context.Context) error {
			st, err := openStore(cfg, logger)
			if err != nil {
				return err
			}
			defer st.Close()
			return runAggregate(ctx, os.Stdout, cfg, st, logger, "")
		})
		if err != nil {
			return err
		}

		for _, a := range sched.Next(time.Now()) {
			logger.Info("next activation", zap.String("task", a.Task), zap.Time("at", a.At))
		}
		fmt.Println("Scheduler running. Press Ctrl+C to stop")
		sched.Run(ctx)
		return nil
	},
}
