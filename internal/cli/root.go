// Package cli wires the labdigest commands: process, batch, config and
// version.
package cli

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/labdigest/labdigest/internal/model"
)

var (
	cfgFile string
	verbose bool
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "labdigest",
	Short: "Labdigest - plain-language lab report digests (non-diagnostic)",
	Long: `Labdigest turns noisy lab report text or report photos into structured,
validated test records plus a plain-language summary a patient can read.

It does not diagnose, treat, or replace a healthcare provider.

Labdigest extracts test candidates from the input, normalizes them to
canonical names, units, statuses and reference ranges, then generates an
educational summary that is checked against a content-safety filter
before it is returned.`,
	SilenceErrors: true,
	SilenceUsage:  true,
}

// ExitCodeError carries a process exit code for completed runs whose
// report did not reach status ok
type ExitCodeError struct {
	Code   int
	Status model.ReportStatus
}

func (e *ExitCodeError) Error() string {
	return fmt.Sprintf("report status: %s", e.Status)
}

// exitCodeFor maps a report status to the process exit code
func exitCodeFor(status model.ReportStatus) int {
	switch status {
	case model.StatusOK:
		return 0
	case model.StatusUnprocessed:
		return 2
	default:
		return 1
	}
}

// Execute runs the root command and returns the process exit code
func Execute() int {
	if err := rootCmd.Execute(); err != nil {
		var exitErr *ExitCodeError
		if errors.As(err, &exitErr) {
			return exitErr.Code
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

// versionCmd represents the version command
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Long:  `Display the version number and build information for Labdigest.`,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("labdigest v0.1.0")
	},
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: $HOME/.labdigest/config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")

	// Bind flags to viper
	_ = viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))

	// Add subcommands
	rootCmd.AddCommand(versionCmd)
}

// initConfig reads in config file and ENV variables
func initConfig() {
	if cfgFile != "" {
		// Use config file from the flag
		viper.SetConfigFile(cfgFile)
	} else {
		// Find home directory
		home, err := os.UserHomeDir()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error finding home directory: %v\n", err)
			return
		}

		// Search for config in home directory
		viper.AddConfigPath(home + "/.labdigest")
		viper.SetConfigType("yaml")
		viper.SetConfigName("config")
	}

	// Read in environment variables that match LABDIGEST_*
	viper.SetEnvPrefix("LABDIGEST")
	viper.AutomaticEnv()

	// If a config file is found, read it in
	if err := viper.ReadInConfig(); err == nil && verbose {
		fmt.Fprintf(os.Stderr, "Using config file: %s\n", viper.ConfigFileUsed())
	}
}

// loadConfig builds the effective configuration: defaults, then config
// file values, then environment overrides, then the provider API key
func loadConfig() (*model.Config, error) {
	cfg := model.DefaultConfig()

	if configFile := viper.ConfigFileUsed(); configFile != "" {
		data, err := os.ReadFile(configFile)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	}

	// Selected LABDIGEST_* overrides on top of the file
	if v := viper.GetString("llm_provider"); v != "" {
		cfg.LLM.Provider = v
	}
	if v := viper.GetString("llm_model"); v != "" {
		cfg.LLM.Model = v
	}
	if v := viper.GetFloat64("ocr_confidence_threshold"); v > 0 {
		cfg.OCR.ConfidenceThreshold = v
	}

	if cfg.LLM.Provider != "" && cfg.LLM.APIKey == "" {
		switch cfg.LLM.Provider {
		case "openai":
			cfg.LLM.APIKey = os.Getenv("OPENAI_API_KEY")
			if cfg.LLM.APIKey == "" {
				return nil, fmt.Errorf("OPENAI_API_KEY environment variable not set")
			}
		case "gemini", "google":
			cfg.LLM.APIKey = os.Getenv("GEMINI_API_KEY")
			if cfg.LLM.APIKey == "" {
				cfg.LLM.APIKey = os.Getenv("GOOGLE_API_KEY")
			}
			if cfg.LLM.APIKey == "" {
				return nil, fmt.Errorf("GEMINI_API_KEY environment variable not set")
			}
		}
	}

	return cfg, nil
}

// newLogger builds the process logger; verbose mode switches to the
// human-readable development encoder at debug level
func newLogger() (*zap.Logger, error) {
	if verbose {
		return zap.NewDevelopment()
	}
	cfg := zap.NewProductionConfig()
	cfg.OutputPaths = []string{"stderr"}
	return cfg.Build()
}
