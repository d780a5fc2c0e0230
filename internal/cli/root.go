// Package cli implements the convo command line.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/tOgg1/convo/internal/config"
	"github.com/tOgg1/convo/internal/logging"
)

var (
	cfgFile        string
	logLevel       string
	jsonOutput     bool
	jsonlOutput    bool
	nonInteractive bool

	appConfig *config.Config
	logFile   *os.File
)

var rootCmd = &cobra.Command{
	Use:           "convo",
	Short:         "Direct-message inbox for Mastodon-compatible servers",
	Long:          "convo lists, pages through and live-watches the conversations inbox of one or more accounts.",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return initConfig(cmd)
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logFile != nil {
			_ = logFile.Close()
			logFile = nil
		}
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		if hasTTY() && !nonInteractive {
			return runTUI(cmd.Context())
		}
		return cmd.Help()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default ~/.config/convo/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level override (debug, info, warn, error)")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output JSON")
	rootCmd.PersistentFlags().BoolVar(&jsonlOutput, "jsonl", false, "output JSON lines")
	rootCmd.PersistentFlags().BoolVar(&nonInteractive, "non-interactive", false, "never open the TUI")
}

// Execute runs the root command.
func Execute(version string) error {
	rootCmd.Version = version
	return rootCmd.Execute()
}

func initConfig(cmd *cobra.Command) error {
	loader := config.NewLoader()
	if cfgFile != "" {
		loader.SetConfigFile(cfgFile)
	}
	if flag := cmd.Flags().Lookup("log-level"); flag != nil {
		if err := loader.Viper().BindPFlag("logging.level", flag); err != nil {
			return err
		}
	}

	cfg, err := loader.Load()
	if err != nil {
		return err
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return err
	}

	logCfg := logging.Config{
		Level:        cfg.Logging.Level,
		Format:       cfg.Logging.Format,
		EnableCaller: cfg.Logging.EnableCaller,
	}
	file, err := logging.Open(cfg.Logging.File)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	if file != nil {
		logFile = file
		logCfg.Output = file
	}
	logging.Init(logCfg)

	if used := loader.ConfigFileUsed(); used != "" {
		logging.Logger.Debug().Str("file", used).Msg("config loaded")
	}

	appConfig = cfg
	return nil
}

// GetConfig returns the loaded configuration, falling back to defaults.
func GetConfig() *config.Config {
	if appConfig == nil {
		return config.DefaultConfig()
	}
	return appConfig
}

// IsJSONOutput reports --json.
func IsJSONOutput() bool { return jsonOutput }

// IsJSONLOutput reports --jsonl.
func IsJSONLOutput() bool { return jsonlOutput }

// IsNonInteractive reports --non-interactive.
func IsNonInteractive() bool { return nonInteractive }

// WriteOutput writes v as indented JSON, or as one JSON value per line when
// --jsonl is set and v is a slice.
func WriteOutput(out io.Writer, v any) error {
	if IsJSONLOutput() {
		return writeJSONL(out, v)
	}
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func writeJSONL(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if !strings.HasPrefix(strings.TrimSpace(string(data)), "[") {
		return enc.Encode(v)
	}
	var items []json.RawMessage
	if err := json.Unmarshal(data, &items); err != nil {
		return err
	}
	for _, item := range items {
		if err := enc.Encode(item); err != nil {
			return err
		}
	}
	return nil
}
