// Package cmd - Command line interface: live sessions, offline classification
// and asset management.
package cmd

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/nvr-ai/facematch/config"
	"github.com/nvr-ai/facematch/logging"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

var (
	configPath string
	logLevel   string

	cfg    *config.Config
	logger zerolog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "facematch",
	Short: "Detect faces in a camera feed and match them against a reference face",
	Long: `facematch reads frames from a camera, video file or directory of frames,
outlines every detected face, and compares the first face against a single
reference image, reporting "Face match found" or "Face not matched".`,
	SilenceUsage:      true,
	PersistentPreRunE: setup,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initEnv)
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "YAML configuration file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level override (debug, info, warn, error)")
}

func initEnv() {
	// .env file is optional, don't fail if not found
	_ = godotenv.Load()
}

func setup(cmd *cobra.Command, args []string) error {
	loaded, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if logLevel != "" {
		loaded.Log.Level = logLevel
	}

	l, err := logging.New(os.Stderr, loaded.Log.Level, loaded.Log.Format)
	if err != nil {
		return err
	}

	cfg, logger = loaded, l
	return nil
}
