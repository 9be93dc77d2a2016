// Package cli defines the windrose command tree.
package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/vk/windrose/internal/app"
	"github.com/vk/windrose/internal/hclconfig"
)

// ExitError is a custom error type that includes a specific exit code.
type ExitError struct {
	Code    int
	Message string
}

// Error implements the error interface for ExitError.
func (e *ExitError) Error() string {
	return e.Message
}

// NewRootCmd builds the command tree. All commands write to out; the
// application instance is built lazily so persistent flags are already
// parsed.
func NewRootCmd(out io.Writer) *cobra.Command {
	var cfg app.Config

	root := &cobra.Command{
		Use:   "windrose",
		Short: "Compile declarative workflow definitions into task graphs and drive them on a batch scheduler",
		Long: `Windrose turns a declarative, cyclic workflow definition into a concrete
graph of scheduler jobs and data items, submits a bounded window of task
generations to the batch scheduler and resumes itself from persisted state
records after every round.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg.LogFormat = strings.ToLower(cfg.LogFormat)
			if cfg.LogFormat != "text" && cfg.LogFormat != "json" {
				return &ExitError{Code: 2, Message: "invalid log-format: must be 'text' or 'json'"}
			}
			cfg.LogLevel = strings.ToLower(cfg.LogLevel)
			switch cfg.LogLevel {
			case "debug", "info", "warn", "error":
			default:
				return &ExitError{Code: 2, Message: "invalid log-level: must be 'debug', 'info', 'warn', or 'error'"}
			}
			return nil
		},
	}

	root.PersistentFlags().StringVar(&cfg.LogLevel, "log-level", "info", "Logging level: 'debug', 'info', 'warn' or 'error'.")
	root.PersistentFlags().StringVar(&cfg.LogFormat, "log-format", "text", "Log output format: 'text' or 'json'.")

	newApp := func() *app.App {
		return app.New(out, cfg, hclconfig.NewLoader())
	}

	root.AddCommand(
		newVerifyCmd(newApp),
		newStartCmd(newApp),
		newContinueCmd(newApp),
		newRestartCmd(newApp),
		newStopCmd(newApp),
		newStatusCmd(newApp),
	)
	return root
}

func newVerifyCmd(newApp func() *app.App) *cobra.Command {
	return &cobra.Command{
		Use:   "verify CONFIG",
		Short: "Compile the workflow definition and print the resulting graph without submitting anything",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return newApp().Verify(cmd.Context(), args[0])
		},
	}
}

func newStartCmd(newApp func() *app.App) *cobra.Command {
	return &cobra.Command{
		Use:   "start CONFIG",
		Short: "Start a fresh run of the workflow",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return newApp().Start(cmd.Context(), args[0])
		},
	}
}

// newContinueCmd is invoked by the self-continuation scheduler job, not by
// operators; it stays hidden from help output.
func newContinueCmd(newApp func() *app.App) *cobra.Command {
	return &cobra.Command{
		Use:    "continue CONFIG",
		Short:  "Perform one propagation step of an existing run",
		Hidden: true,
		Args:   cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return newApp().Continue(cmd.Context(), args[0])
		},
	}
}

func newRestartCmd(newApp func() *app.App) *cobra.Command {
	return &cobra.Command{
		Use:   "restart CONFIG",
		Short: "Resume a stopped run from its persisted state records",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return newApp().Restart(cmd.Context(), args[0])
		},
	}
}

func newStopCmd(newApp func() *app.App) *cobra.Command {
	var coolDown bool
	cmd := &cobra.Command{
		Use:   "stop CONFIG",
		Short: "Halt an existing run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return newApp().Stop(cmd.Context(), args[0], coolDown)
		},
	}
	cmd.Flags().BoolVar(&coolDown, "cool-down", false,
		"Let already committed first-generation jobs finish instead of canceling them.")
	return cmd
}

func newStatusCmd(newApp func() *app.App) *cobra.Command {
	return &cobra.Command{
		Use:   "status CONFIG",
		Short: "Show the scheduler status of every task currently in flight",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return newApp().Status(cmd.Context(), args[0])
		},
	}
}

// Run executes the command tree against the given arguments and returns the
// process exit code.
func Run(args []string, out, errW io.Writer) int {
	root := NewRootCmd(out)
	root.SetArgs(args)
	root.SetOut(out)
	root.SetErr(errW)
	if err := root.Execute(); err != nil {
		fmt.Fprintln(errW, err)
		if exitErr, ok := err.(*ExitError); ok {
			return exitErr.Code
		}
		return 1
	}
	return 0
}
