package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/smartexam/reval/internal/config"
	"github.com/smartexam/reval/internal/output"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage reval configuration",
}

var configForce bool

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write the default config to the home directory",
	Long: `Write the default configuration to ~/.reval/config.yaml (or --home).

Secrets reference environment variables with ${VAR} syntax. Put them in
~/.reval/.env or a .env file in the working directory.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		h, err := getHome()
		if err != nil {
			return err
		}
		path := h.ConfigPath()
		if h.ConfigExists() && !configForce {
			return fmt.Errorf("%s already exists (use --force to overwrite)", path)
		}
		if err := config.WriteDefault(path); err != nil {
			return err
		}
		output.Notice("wrote %s", path)
		return nil
	},
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration",
	Long: `Print the configuration after defaults, the config file and REVAL_*
environment overrides are merged. ${VAR} references are shown unresolved.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		h, err := getHome()
		if err != nil {
			return err
		}
		mgr, err := loadConfig(h)
		if err != nil {
			return err
		}
		if f := mgr.ConfigFile(); f != "" {
			output.Notice("config file: %s", f)
		}
		return output.Print(mgr.Get())
	},
}

func init() {
	configInitCmd.Flags().BoolVar(&configForce, "force", false, "overwrite an existing config file")

	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configShowCmd)
	rootCmd.AddCommand(configCmd)
}
