package main

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/JonMunkholm/synthgen/internal/config"
	"github.com/JonMunkholm/synthgen/internal/core"
	"github.com/JonMunkholm/synthgen/internal/generator"
	"github.com/JonMunkholm/synthgen/internal/logging"
)

// app carries what subcommands share. It is filled in by the root command's
// PersistentPreRunE.
type app struct {
	cfg      *config.Config
	registry *core.Registry
	logger   *slog.Logger
	prompter prompter

	baseURL    string
	modelsFile string
	timeout    time.Duration
	logLevel   string
}

func newApp() *app {
	return &app{prompter: surveyPrompter{}}
}

// generator returns a client for the configured generation service.
func (a *app) generator() core.Generator {
	return generator.New(a.baseURL, a.timeout)
}

// NewRootCmd creates the root command.
func NewRootCmd(a *app) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:          "synthgen",
		Short:        "Generate synthetic CSV data from a theme or a seed file",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.init(cmd)
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&a.baseURL, "base-url", "", "generation service URL (default: $GENERATOR_BASE_URL)")
	flags.StringVar(&a.modelsFile, "models", "", "YAML model roster (default: $GENERATOR_MODELS_FILE or built-in)")
	flags.DurationVar(&a.timeout, "timeout", 0, "request deadline (default: $GENERATOR_TIMEOUT)")
	flags.StringVar(&a.logLevel, "log-level", "", "debug, info, warn or error (default: $LOG_LEVEL)")

	rootCmd.AddCommand(NewModelsCmd(a))
	rootCmd.AddCommand(NewPromptsCmd())
	rootCmd.AddCommand(NewGenerateCmd(a))

	return rootCmd
}

// init loads configuration and applies flag overrides.
func (a *app) init(cmd *cobra.Command) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	a.cfg = cfg

	if a.baseURL == "" {
		a.baseURL = cfg.Generator.BaseURL
	}
	if a.timeout <= 0 {
		a.timeout = cfg.Generator.Timeout
	}
	if a.modelsFile == "" {
		a.modelsFile = cfg.Generator.ModelsFile
	}
	if a.logLevel == "" {
		a.logLevel = cfg.Logging.Level
	}

	a.logger = logging.New(cmd.ErrOrStderr(), a.logLevel, cfg.Logging.Format)

	if a.modelsFile == "" {
		a.registry = core.DefaultRegistry()
		return nil
	}
	reg, err := core.LoadRegistryFile(a.modelsFile)
	if err != nil {
		return fmt.Errorf("load models: %w", err)
	}
	a.registry = reg
	return nil
}
