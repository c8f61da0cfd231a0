package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"erpcounter/internal/bootstrap"
	"erpcounter/internal/config"
	appctx "erpcounter/internal/core/context"
	"erpcounter/pkg/logger"
)

var (
	configFile string
	dbURL      string
	logLevel   string
)

var rootCmd = &cobra.Command{
	Use:          "counterctl",
	Short:        "Document counter administration",
	Long:         `counterctl issues document numbers, inspects and adjusts counters, seeds counter definitions and migrates the schema.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "config file path")
	rootCmd.PersistentFlags().StringVar(&dbURL, "db-url", "", "database connection URL (sqlite://path or postgres://...)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "log level (debug, info, warn, error)")
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// loadConfig reads the config file and applies the --db-url override.
// The driver follows the URL scheme when --db-url is given.
func loadConfig() (*config.Config, error) {
	v, err := config.New(configFile)
	if err != nil {
		return nil, err
	}
	if dbURL != "" {
		v.Set("database.url", dbURL)
		if strings.HasPrefix(dbURL, "sqlite://") {
			v.Set("database.driver", config.DriverSQLite)
		} else {
			v.Set("database.driver", config.DriverPostgres)
		}
	}
	cfg, err := config.FromViper(v)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, nil
}

func newLogger() (*logger.Logger, error) {
	return logger.New(logger.Config{Level: logLevel, Development: true})
}

// withBackend opens the stores, runs fn and closes them. The definition
// cache is bypassed: every command is a single short-lived process.
func withBackend(ctx context.Context, fn func(ctx context.Context, b *bootstrap.Backend, cfg *config.Config) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	cfg.Counter.DefinitionCache = false

	log, err := newLogger()
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	ctx = appctx.WithTrace(ctx, appctx.NewTraceContext())
	ctx = logger.WithLogger(ctx, log.WithContext(ctx))

	backend, err := bootstrap.Open(ctx, cfg, log)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer backend.Close()

	return fn(ctx, backend, cfg)
}
