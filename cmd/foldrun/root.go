package main

import (
	"fmt"
	"os"

	"fold-orchestrator/config"
	"fold-orchestrator/logger"

	"github.com/spf13/cobra"
)

// Version is the current release
const Version = "0.1.0"

var (
	cfgFile string
	debug   bool
)

var rootCmd = &cobra.Command{
	Use:   "foldrun",
	Short: "Resumable structure prediction runs",
	Long: `foldrun drives structure prediction jobs to completion. Every model
slot is committed to the job directory as it finishes, so an interrupted
run picks up where it stopped when started again.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command and exits non-zero on failure
func Execute() {
	err := rootCmd.Execute()
	logger.Sync()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "settings file (defaults to $FOLD_CONFIG)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")

	rootCmd.CompletionOptions.DisableDefaultCmd = true
}

// loadSettings reads the settings file and installs the process logger
func loadSettings() (*config.Config, error) {
	path := cfgFile
	if path == "" {
		path = os.Getenv("FOLD_CONFIG")
	}
	cfg, err := config.LoadFile(path)
	if err != nil {
		return nil, err
	}
	if debug {
		cfg.Log.Level = "debug"
	}
	logger.Init(&cfg.Log)
	return cfg, nil
}
