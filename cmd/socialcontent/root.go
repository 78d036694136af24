package main

import (
	"log/slog"

	"github.com/spf13/cobra"
	"github.com/tendant/social-content/internal/logging"
	"github.com/tendant/social-content/pkg/socialcontent/config"
)

type rootOptions struct {
	configFile string
	jsonOutput bool
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:           "socialcontent",
		Short:         "Social publishing content pipeline: uploads, attachments and feeds",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.Version = version
	cmd.PersistentFlags().StringVar(&opts.configFile, "config", "", "yaml, json or toml config file (environment variables still apply)")
	cmd.PersistentFlags().BoolVar(&opts.jsonOutput, "json", false, "output JSON")

	cmd.AddCommand(
		newServeCmd(opts),
		newMigrateCmd(opts),
		newSweepCmd(opts),
	)
	return cmd
}

// load reads configuration and builds the process logger from it.
func (o *rootOptions) load() (*config.ServerConfig, *slog.Logger, error) {
	source := config.WithEnv()
	if o.configFile != "" {
		source = config.WithConfigFile(o.configFile)
	}
	cfg, err := config.Load(source)
	if err != nil {
		return nil, nil, err
	}
	logger := logging.New(cfg.LogLevel, cfg.LogFormat)
	slog.SetDefault(logger)
	return cfg, logger, nil
}
