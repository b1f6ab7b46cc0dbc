// Package cli implements the evraw command line interface.
package cli

import (
	"context"
	"evraw/pkg/config"
	"evraw/pkg/history"
	"evraw/pkg/log"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/spf13/cobra"
)

// RootOptions holds global flags and the shared state every command
// needs after setup.
type RootOptions struct {
	Verbose bool
	Config  string

	Env    *config.Env
	Logger *log.Logger

	wg           *sync.WaitGroup
	cancelLogger context.CancelFunc
}

// NewRootCommand creates the root command.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{wg: &sync.WaitGroup{}}

	cmd := &cobra.Command{
		Use:   "evraw",
		Short: "Event camera stream toolkit",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return opts.setup(cmd)
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			opts.shutdown()
		},
	}

	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "print debug logs")
	cmd.PersistentFlags().StringVar(&opts.Config, "config", "", "path to config.yaml")

	cmd.AddCommand(NewConvertCommand(opts))
	cmd.AddCommand(NewSimulateCommand(opts))
	cmd.AddCommand(NewInfoCommand(opts))
	cmd.AddCommand(NewBatchCommand(opts))
	cmd.AddCommand(NewRunsCommand(opts))
	cmd.AddCommand(NewServeCommand(opts))

	return cmd
}

func (opts *RootOptions) setup(cmd *cobra.Command) error {
	var envYAML []byte
	if opts.Config != "" {
		configPath, err := filepath.Abs(opts.Config)
		if err != nil {
			return fmt.Errorf("could not get absolute path of config: %w", err)
		}
		opts.Config = configPath

		envYAML, err = os.ReadFile(configPath)
		if err != nil {
			return fmt.Errorf("read config: %w", err)
		}
	}

	env, err := config.NewEnv(opts.Config, envYAML)
	if err != nil {
		return err
	}
	opts.Env = env

	ctx, cancel := context.WithCancel(cmd.Context())
	opts.cancelLogger = cancel

	opts.Logger = log.NewLogger(opts.wg)
	opts.Logger.Start(ctx)

	maxLevel := log.LevelInfo
	if opts.Verbose {
		maxLevel = log.LevelDebug
	}
	go opts.Logger.LogToStdout(ctx, maxLevel)

	return nil
}

func (opts *RootOptions) shutdown() {
	if opts.cancelLogger != nil {
		opts.cancelLogger()
		opts.wg.Wait()
	}
}

// openHistory opens the run record store. Commands that only write
// records treat an unavailable store as a warning, not a failure.
func (opts *RootOptions) openHistory() *history.Store {
	store := history.New(opts.Env.HistoryDB)
	if err := store.Open(); err != nil {
		opts.Logger.Warn().Src("history").Msgf("open store: %v", err)
		return nil
	}
	return store
}

func (opts *RootOptions) saveRecord(store *history.Store, rec history.Record) {
	if store == nil {
		return
	}
	if err := store.Save(rec); err != nil {
		opts.Logger.Warn().Src("history").Msgf("save record: %v", err)
	}
}
