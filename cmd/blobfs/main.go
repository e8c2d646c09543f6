package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/mediastore/blobfs/internal/config"
	"github.com/mediastore/blobfs/internal/events"
)

var (
	cfgPath  string
	logLevel string

	cfg    *config.Config
	loader *config.Loader
	logger *events.Logger
)

var rootCmd = &cobra.Command{
	Use:   "blobfs",
	Short: "Serve a blob-storage container as a media file system",
	Long: `blobfs maps request paths like /media/1234/photo.jpg onto blobs in a
remote object-storage container and serves them over HTTP with full
byte-range, caching and conditional-request support.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loader = config.NewLoader(cfgPath)

		var err error
		cfg, err = loader.Load()
		if err != nil {
			return err
		}

		if logLevel != "" {
			cfg.Log.Level = logLevel
		}
		logger = events.NewLogger(cfg.Log.Level, cfg.Log.Format, os.Stdout)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "",
		"Config file path (default: blobfs.yaml in search path)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "",
		"Override configured log level")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
