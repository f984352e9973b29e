package main

import (
	"context"
	"fmt"

	"site_watcher/internal/config"
	"site_watcher/internal/logger"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	cfgFile string
	debug   bool

	rootCmd = &cobra.Command{
		Use:   "site_watcher",
		Short: "Watch a site and its member talk page for updates",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
		SilenceUsage: true,
	}
)

func Execute() error {
	// .env is optional; real environment variables take precedence.
	_ = godotenv.Load()
	return rootCmd.ExecuteContext(context.Background())
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "config.yaml", "config file")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")

	rootCmd.AddCommand(watchCommand())
	rootCmd.AddCommand(checkCommand())
	rootCmd.AddCommand(showCommand())
}

func loadDeps() (*config.WatcherConfig, *zap.Logger, error) {
	cfg, err := config.LoadConfig(cfgFile)
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	log, err := logger.New(logger.Config{
		Level:    cfg.Log.Level,
		Encoding: cfg.Log.Encoding,
		Debug:    debug,
	})
	if err != nil {
		return nil, nil, err
	}
	return cfg, log, nil
}
