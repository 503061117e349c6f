package cli

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/wesleyorama2/bookload/internal/logging"
)

var version = "0.1.0"

// ErrRunFailed is returned when a run completed but a threshold failed or
// the run was aborted. The summary has already been printed.
var ErrRunFailed = errors.New("load test failed")

// globalOptions are the persistent flags shared by every command.
type globalOptions struct {
	logLevel  string
	logFormat string
	noColor   bool

	logger *zap.Logger
}

// NewRootCmd builds the command tree.
func NewRootCmd() *cobra.Command {
	opts := &globalOptions{logger: zap.NewNop()}

	root := &cobra.Command{
		Use:     "bookload",
		Short:   "Load testing and metrics evaluation for the booking API",
		Version: version,
		Long: `bookload drives a ramping population of virtual users against the booking
HTTP API, records k6-style metrics and evaluates pass/fail thresholds.

Run summaries can be archived locally and compared across runs.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			logger, err := logging.NewWithSink(opts.logLevel, opts.logFormat, zapcore.AddSync(cmd.ErrOrStderr()))
			if err != nil {
				return err
			}
			opts.logger = logger
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			_ = opts.logger.Sync()
		},
		Run: func(cmd *cobra.Command, args []string) {
			// If no subcommand is provided, print help
			cmd.Help()
		},
	}

	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "warn", "Log level: debug, info, warn, error")
	root.PersistentFlags().StringVar(&opts.logFormat, "log-format", logging.FormatConsole, "Log format: console, json")
	root.PersistentFlags().BoolVar(&opts.noColor, "no-color", false, "Disable colored output")

	root.AddCommand(newRunCmd(opts))
	root.AddCommand(newHistoryCmd(opts))
	root.AddCommand(newPresetsCmd())
	return root
}

// Execute runs the root command with the process arguments.
func Execute() error {
	err := NewRootCmd().Execute()
	if err != nil && !errors.Is(err, ErrRunFailed) {
		fmt.Fprintln(os.Stderr, "Error:", err)
	}
	return err
}
