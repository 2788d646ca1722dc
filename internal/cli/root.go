package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"fintrack/internal/core"
)

// RootOptions holds global flags available to all commands.
type RootOptions struct {
	Verbose bool
	Format  string
}

// ValidFormats lists allowed values for --format.
var ValidFormats = []string{"json", "text"}

// NewRootCommand creates the fintrack command tree.
func NewRootCommand() *cobra.Command {
	cmd, _ := newRootCommand()
	return cmd
}

func newRootCommand() (*cobra.Command, *RootOptions) {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "fintrack",
		Short: "Keep a local copy of your tickets and expenses in sync with the backend",
		Long: `fintrack imports receipt photos and PDFs, lists and deletes records,
and caches every collection locally so the last known data survives
restarts and offline use.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			for _, f := range ValidFormats {
				if opts.Format == f {
					return nil
				}
			}
			return NewExitError(ExitCommandError,
				fmt.Sprintf("invalid format %q: must be one of %s", opts.Format, strings.Join(ValidFormats, ", ")))
		},
	}

	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "Enable verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "Output format (json|text)")

	cmd.AddCommand(newLoginCommand(opts))
	cmd.AddCommand(newLogoutCommand(opts))
	cmd.AddCommand(newTicketsCommand(opts))
	cmd.AddCommand(newExpensesCommand(opts))
	cmd.AddCommand(newRevenuesCommand(opts))
	cmd.AddCommand(newCategoriesCommand(opts))
	cmd.AddCommand(newWatchCommand(opts))
	cmd.AddCommand(newEventsCommand(opts))
	cmd.AddCommand(newFakeAPICommand(opts))

	return cmd, opts
}

// Execute runs the command tree with args and returns the process exit
// code. Errors are rendered in the selected output format.
func Execute(args []string) int {
	cmd, opts := newRootCommand()
	return execute(cmd, opts, args)
}

func execute(cmd *cobra.Command, opts *RootOptions, args []string) int {
	cmd.SetArgs(args)
	err := cmd.Execute()
	if err == nil {
		return ExitSuccess
	}

	format := opts.Format
	if format != "json" {
		format = "text"
	}
	f := &OutputFormatter{Format: format, Writer: cmd.ErrOrStderr()}
	if format == "json" {
		f.Writer = cmd.OutOrStdout()
	}
	_ = f.Error(errorCode(err), err.Error())
	return GetExitCode(err)
}

func errorCode(err error) string {
	switch GetExitCode(err) {
	case ExitAuth:
		return core.KindAuth
	case ExitCommandError:
		if kind := core.ErrorKind(err); kind != core.KindInternal {
			return kind
		}
		return "command_error"
	default:
		return core.ErrorKind(err)
	}
}
