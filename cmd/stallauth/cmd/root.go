package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/stallpos/auth-service/internal/pkg/config"
	"github.com/stallpos/auth-service/pkg/logger"
)

var (
	envFile string
	cfg     *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "stallauth",
	Short: "Authentication service and offline credential tools for stall POS terminals",
	Long: `stallauth runs the authentication API (sessions, password changes and
account recovery) and manages the offline credential mirror used by
terminals that lose connectivity.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := loadEnvFile(envFile); err != nil {
			return err
		}
		loaded, err := config.Load(cmd.Context())
		if err != nil {
			return err
		}
		cfg = loaded
		logger.Init(logger.Options{
			Level:  cfg.LogLevel,
			Pretty: !cfg.IsProduction(),
			Output: os.Stderr,
		})
		return nil
	},
}

func Execute() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "Optional .env file loaded before reading the environment")
}

// loadEnvFile loads path when it exists. Variables already set in the
// environment are not overridden.
func loadEnvFile(path string) error {
	if path == "" {
		return nil
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("loading %s: %w", path, err)
	}
	return nil
}
