package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/modestbitboard/breadbox/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Configuration helpers",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a stock configuration file",
	Long: `Write a stock configuration file with the default settings and a
short comment block explaining the knobs. Refuses to replace an
existing file unless --force is given.`,
	RunE: runConfigInit,
}

var (
	configInitForce  bool
	configInitOutput string
)

func init() {
	configInitCmd.Flags().BoolVarP(&configInitForce, "force", "f", false, "overwrite an existing file")
	configInitCmd.Flags().StringVarP(&configInitOutput, "output", "o", "config.yaml", "output path")

	configCmd.AddCommand(configInitCmd)
	rootCmd.AddCommand(configCmd)
}

func runConfigInit(cmd *cobra.Command, args []string) error {
	if !configInitForce {
		if _, err := os.Stat(configInitOutput); err == nil {
			return fmt.Errorf("%s already exists (use --force to overwrite)", configInitOutput)
		}
	}

	f, err := os.Create(configInitOutput)
	if err != nil {
		return fmt.Errorf("create %s: %w", configInitOutput, err)
	}
	defer func() { _ = f.Close() }()

	if err := config.WriteDefault(f); err != nil {
		return err
	}

	fmt.Printf("Wrote %s\n", configInitOutput)
	return nil
}
