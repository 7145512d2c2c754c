package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mijorus/collector/cli/helpers"
	"github.com/mijorus/collector/pkg/config"
	"github.com/mijorus/collector/pkg/logger"
)

// SetupGlobalConfig loads the layered configuration, configures logging from
// it and stores both in the command context.
func SetupGlobalConfig(cmd *cobra.Command) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	if _, err := loadEnvFile(cmd); err != nil {
		return helpers.WrapCliError(helpers.CodeConfig, "Failed to load environment file", err)
	}
	sources, err := configSources(cmd)
	if err != nil {
		return err
	}
	manager := config.NewManager(config.NewService())
	cfg, err := manager.Load(ctx, sources...)
	if err != nil {
		return helpers.WrapCliError(helpers.CodeConfig, "Failed to load configuration", err)
	}
	logger.SetupLogger(cfg.Runtime.LogLevel, cfg.Runtime.LogJSON, cfg.Runtime.LogSource)
	ctx = logger.ContextWithLogger(ctx, logger.GetDefault())
	ctx = config.ContextWithManager(ctx, manager)
	cmd.SetContext(ctx)
	logger.FromContext(ctx).Debug("Configuration loaded",
		"cache_dir", cfg.Storage.CacheDir, "download_images", cfg.Drops.DownloadImages)
	return nil
}

func configSources(cmd *cobra.Command) ([]config.Source, error) {
	var sources []config.Source
	configFile, err := cmd.Flags().GetString("config")
	if err != nil {
		return nil, fmt.Errorf("failed to get config flag: %w", err)
	}
	if configFile != "" {
		sources = append(sources, config.NewYAMLProvider(configFile))
	}
	cliFlags := make(map[string]any)
	extractCLIFlags(cmd, cliFlags)
	if len(cliFlags) > 0 {
		sources = append(sources, config.NewCLIProvider(cliFlags))
	}
	return sources, nil
}
