// Package cmd provides the command-line interface for the toolkit asset
// pipeline.
//
// Configuration System:
//
//	Settings are merged from several sources, highest priority first:
//	1. Command-line flags (--config, --log-level, --profile, ...)
//	2. TOOLKIT_CONFIG_FILE environment variable - custom config file path
//	3. Individual environment variables (TOOLKIT_WATCH_LIVERELOAD, ...)
//	4. Configuration file (.toolkit.yml in the working directory)
//
// Environment Variables:
//
//	TOOLKIT_CONFIG_FILE: Path to custom configuration file
//	TOOLKIT_ROOT: Project root
//	TOOLKIT_LOG_LEVEL: Override log level
//	And the rest following the TOOLKIT_<SECTION>_<OPTION> pattern
package cmd

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/conneroisu/toolkit/internal/config"
	"github.com/conneroisu/toolkit/internal/logging"
)

var cfgFile string

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "toolkit",
	Short: "Build and publish the component library's assets",
	Long: `toolkit compiles the component library's stylesheets and scripts,
generates component fixtures, copies static assets and produces versioned
release bundles.

Profiles:
  preview    Review application assets with source maps (default)
  package    The npm package layout: per-file scripts, sources and fixtures
  release    Minified, versioned bundles for direct download

Quick Start:
  toolkit build                     Build the preview profile
  toolkit build --profile release   Build release bundles
  toolkit watch                     Rebuild on change with live reload

Command Aliases (for faster typing):
  build (b), watch (w)`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	err := rootCmd.Execute()
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
	}
	return err
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is .toolkit.yml, can also use TOOLKIT_CONFIG_FILE env var)")
	rootCmd.PersistentFlags().StringP("log-level", "l", "", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log-format", "", "log format (auto, json, text)")
	_ = viper.BindPFlag("log.level", rootCmd.PersistentFlags().Lookup("log-level"))
	_ = viper.BindPFlag("log.format", rootCmd.PersistentFlags().Lookup("log-format"))
}

// initConfig selects the config file and enables TOOLKIT_ environment
// overrides. A missing file is not an error; defaults apply.
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else if envConfigFile := os.Getenv("TOOLKIT_CONFIG_FILE"); envConfigFile != "" {
		viper.SetConfigFile(envConfigFile)
	} else {
		viper.AddConfigPath(".")
		viper.SetConfigType("yaml")
		viper.SetConfigName(".toolkit")
	}

	viper.SetEnvPrefix("TOOLKIT")
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}

// loadConfig loads the configuration and builds the logger it describes.
func loadConfig() (*config.Config, logging.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}

	level, err := logging.ParseLevel(cfg.Log.Level)
	if err != nil {
		return nil, nil, err
	}

	logger := logging.NewLogger(&logging.LoggerConfig{
		Level:      level,
		Format:     cfg.Log.Format,
		Output:     os.Stderr,
		TimeFormat: time.Kitchen,
	})
	return cfg, logger, nil
}
