package main

import (
	"github.com/spf13/cobra"

	"github.com/smartexam/reval/internal/output"
	"github.com/smartexam/reval/version"
)

var (
	cfgFile      string
	homeDir      string
	outputFormat string
	debug        bool
	logFormat    string
)

var rootCmd = &cobra.Command{
	Use:   "reval",
	Short: "Asynchronous exam revaluation pipeline",
	Long: `Reval grades revaluation requests in the background.

Three queue-driven stages run against Redis:
  - answer-key: extract the text of uploaded answer keys
  - script-ocr: OCR the pages of a student's answer script
  - grading:    grade the script against the latest completed key

Results land in the database for evaluator review.`,
	Version:      version.GitRelease,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(
		&cfgFile, "config", "", "config file (default: ./config.yaml or ~/.reval/config.yaml)",
	)
	rootCmd.PersistentFlags().StringVar(
		&homeDir, "home", "", "reval home directory (default: ~/.reval)",
	)
	rootCmd.PersistentFlags().StringVarP(
		&outputFormat, "output", "o", "yaml", "output format: yaml or json",
	)
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")
	rootCmd.PersistentFlags().StringVar(
		&logFormat, "log-format", "", "log format: text or json (default from config)",
	)

	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		return output.SetFormat(outputFormat)
	}

	rootCmd.AddCommand(versionCmd)
}
