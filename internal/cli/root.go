package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/supaquiz/server/internal/config"
	"github.com/supaquiz/server/internal/server"
)

var configPath string

// Execute runs the CLI.
func Execute() error {
	return newRootCmd().Execute()
}

func newRootCmd() *cobra.Command {
	envConfig := os.Getenv("CONFIG_PATH")
	if envConfig == "" {
		envConfig = "config/config.yaml"
	}

	cmd := &cobra.Command{
		Use:   "supaquiz",
		Short: "Quiz backend: sessions, scores, achievements, game rooms",
	}

	cmd.PersistentFlags().StringVar(&configPath, "config", envConfig, "path to YAML config")
	cmd.AddCommand(newServerCmd())
	cmd.AddCommand(newMigrateCmd())
	cmd.AddCommand(newReconcileCmd())
	return cmd
}

func loadConfig() (server.Config, error) {
	var c server.Config
	if err := config.Load(configPath, &c); err != nil {
		return c, fmt.Errorf("load config: %w", err)
	}
	return c, nil
}
