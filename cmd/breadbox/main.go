package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/modestbitboard/breadbox/config"
)

var version = "dev"

var rootCmd = &cobra.Command{
	Version: version,
	Use:     "breadbox",
	Short:   "Archive server with signed-URL delivery and tiered access",
	Long: `Breadbox serves collections of archived items and their files over
a REST API, gated by API keys, permission groups, rate limits, and
HMAC-signed capability URLs.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		files, err := cmd.Flags().GetStringSlice("config")
		if err != nil {
			return err
		}

		cfg, err := config.Load(files, cmd.Flags())
		if err != nil {
			return err
		}

		cmd.SetContext(config.WithContext(cmd.Context(), cfg))
		setupLogging(cfg)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringSlice("config", nil, "config file path, repeatable (default: ./config.yaml)")
	rootCmd.PersistentFlags().String("users-type", "", "user database type: sqlite, postgres (env: BREADBOX_USERS_TYPE)")
	rootCmd.PersistentFlags().String("users-dsn", "", "user database connection string (env: BREADBOX_USERS_DSN)")
	rootCmd.PersistentFlags().String("log-level", "", "log level: debug, info, warn, error")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
