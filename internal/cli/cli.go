// Package cli contains the jobdigest commands.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/FranksOps/jobdigest/internal/config"
	"github.com/FranksOps/jobdigest/internal/mailer"
)

// Process exit codes.
const (
	ExitOK       = 0
	ExitConfig   = 1
	ExitDelivery = 2
	ExitRuntime  = 3
)

// Deps are the process-level collaborators of the CLI. Zero values are
// replaced with the real implementations.
type Deps struct {
	Stdout  io.Writer
	Stderr  io.Writer
	Version string
	// NewSender builds the mail sender from the resolved SMTP settings.
	NewSender func(cfg config.SMTPConfig, logger *slog.Logger) mailer.Sender
}

func (d Deps) withDefaults() Deps {
	if d.Stdout == nil {
		d.Stdout = os.Stdout
	}
	if d.Stderr == nil {
		d.Stderr = os.Stderr
	}
	if d.Version == "" {
		d.Version = "dev"
	}
	if d.NewSender == nil {
		d.NewSender = func(cfg config.SMTPConfig, logger *slog.Logger) mailer.Sender {
			return mailer.NewSMTPSender(mailer.SMTPConfig{
				Host:     cfg.Host,
				Port:     cfg.Port,
				Username: cfg.User,
				Password: cfg.Pass,
				StartTLS: cfg.StartTLS,
				Logger:   logger,
			})
		}
	}
	return d
}

// exitError carries a process exit code through cobra.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string {
	if e.err == nil {
		return fmt.Sprintf("exit %d", e.code)
	}
	return e.err.Error()
}

func (e *exitError) Unwrap() error { return e.err }

func exitWith(code int, err error) error {
	return &exitError{code: code, err: err}
}

// Execute runs the CLI with args and returns the process exit code.
func Execute(ctx context.Context, args []string, deps Deps) int {
	deps = deps.withDefaults()

	root := newRootCmd(deps)
	root.SetArgs(args)
	root.SetOut(deps.Stdout)
	root.SetErr(deps.Stderr)

	err := root.ExecuteContext(ctx)
	if err == nil {
		return ExitOK
	}

	code := ExitConfig
	var ee *exitError
	if errors.As(err, &ee) {
		code = ee.code
		err = ee.err
	}
	if err != nil {
		color.New(color.FgRed).Fprintf(deps.Stderr, "Error: %v\n", err)
	}
	return code
}

func newRootCmd(deps Deps) *cobra.Command {
	var noColor bool

	root := &cobra.Command{
		Use:   "jobdigest",
		Short: "Daily job search digest",
		Long: `jobdigest searches for entry-level job listings across a fixed set of
roles and locations, flags listings on official career sites and entry-level
wording, and mails the deduplicated list as an HTML report with a CSV
attachment.

Example usage:
  jobdigest run                      # search and email today's digest
  jobdigest run --dry-run            # search and print the results
  jobdigest run --export-dir ./out   # search and write html/csv/ndjson files
  jobdigest queries                  # show the query plan`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if noColor {
				color.NoColor = true
			}
		},
	}
	root.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored output")

	root.AddCommand(
		newRunCmd(deps),
		newQueriesCmd(deps),
		newVersionCmd(deps),
	)
	return root
}

func newVersionCmd(deps Deps) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "jobdigest %s\n", deps.Version)
		},
	}
}
