// Package cli implements the voicepool command line.
package cli

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/ineyio/voicepool"
	"github.com/ineyio/voicepool/internal/logging"
)

// app carries the state shared by every subcommand.
type app struct {
	configPath string
	envFile    string

	cfg       voicepool.Config
	logger    *slog.Logger
	logCloser io.Closer
}

// NewRootCommand builds the voicepool command tree.
func NewRootCommand() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:           "voicepool",
		Short:         "Text-to-speech front end over a pool of quota-limited API keys",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.init()
		},
		PersistentPostRun: func(cmd *cobra.Command, _ []string) {
			if a.logCloser != nil {
				_ = a.logCloser.Close()
			}
		},
	}

	root.PersistentFlags().StringVarP(&a.configPath, "config", "c", "", "path to the YAML config file")
	root.PersistentFlags().StringVar(&a.envFile, "env-file", ".env", "dotenv file loaded before the config")

	root.AddCommand(
		newServeCommand(a),
		newKeysCommand(a),
		newSyncCommand(a),
		newSplitCommand(a),
		newSummaryCommand(a),
	)
	return root
}

// Execute runs the root command and exits non-zero on error.
func Execute() {
	if err := NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func (a *app) init() error {
	if a.envFile != "" {
		if err := godotenv.Load(a.envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("load %s: %w", a.envFile, err)
		}
	}

	if a.configPath == "" {
		a.cfg = voicepool.DefaultConfig()
		if err := a.cfg.Validate(); err != nil {
			return err
		}
	} else {
		cfg, err := voicepool.LoadConfig(a.configPath)
		if err != nil {
			return err
		}
		a.cfg = cfg
	}

	logger, closer, err := logging.New(a.cfg.Log)
	if err != nil {
		return err
	}
	a.logger, a.logCloser = logger, closer
	slog.SetDefault(logger)
	return nil
}
