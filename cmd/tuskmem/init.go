package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/sandevgo/tuskmem/internal/config"
	"github.com/sandevgo/tuskmem/internal/providers/mcp"
	"github.com/sandevgo/tuskmem/pkg/env"
	"github.com/spf13/cobra"
)

var initForce bool

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a .env with the current settings into the runtime directory",
	Long:  `Collects the effective configuration (defaults plus environment) into <runtime>/.env and creates an empty mcp_config.json when none exists.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, flushLog := setupLogger(cmd.Context())
		defer flushLog()

		if err := initEnv(ctx, config.GetRuntimePath()); err != nil {
			return err
		}
		appCfg := config.NewAppConfig(ctx)
		if err := os.MkdirAll(appCfg.RuntimePath, 0755); err != nil {
			return fmt.Errorf("failed to create runtime directory: %w", err)
		}

		envPath := filepath.Join(appCfg.RuntimePath, ".env")
		if _, err := os.Stat(envPath); err == nil && !initForce {
			return fmt.Errorf(".env file already exists at %s (use --force to overwrite)", envPath)
		}

		content, err := env.Marshal(
			appCfg,
			config.NewProviderConfig(ctx),
			config.NewEmbeddingConfig(ctx),
			config.NewMemoryConfig(ctx),
			config.NewToolsConfig(ctx),
		)
		if err != nil {
			return fmt.Errorf("failed to render config: %w", err)
		}
		if err := os.WriteFile(envPath, []byte(content), 0600); err != nil {
			return fmt.Errorf("failed to write .env: %w", err)
		}

		if _, err := mcp.NewFileStorage(appCfg.GetMCPConfigPath()).Load(ctx); err != nil {
			return err
		}

		fmt.Fprintf(cmd.OutOrStdout(), "configuration written to %s\n", envPath)
		return nil
	},
}

func init() {
	initCmd.Flags().BoolVarP(&initForce, "force", "f", false, "overwrite an existing .env")
	rootCmd.AddCommand(initCmd)
}
