package cli

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"traceverify/internal/verify"
)

// VerifyOptions holds flags for the verify command.
type VerifyOptions struct {
	*RootOptions
	ExpectedFile   string
	MaxRetryTimes  int
	TargetPath     string
	ServiceURL     string
	CollectorURL   string
	RetryInterval  time.Duration
	RequestTimeout time.Duration
	Schema         string
}

// NewVerifyCommand creates the verify command.
func NewVerifyCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &VerifyOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Probe the topology and compare captured segments",
		Long: `Probe the system under test and compare the captured trace segments
against the expectation document, retrying up to --max_retry_times.

Each attempt triggers the target path, fetches the collector's captured
document, and runs a tolerant structural comparison. Transient probe
failures (connection refused, timeout, 5xx) consume an attempt and the
loop continues; the first match terminates the run.

Exit codes:
  0 - Observed document matched the expectation
  1 - Retry budget exhausted without a match, or unrecoverable probe error
  2 - Command error (bad flags, missing or invalid expectation file)

Examples:
  traceverify verify --expected_file=expected.yaml --max_retry_times=3 --target_path=/ping
  traceverify verify --expected_file=expected.yaml --max_retry_times=20 --target_path=/ping \
    --service_url=http://producer:8081 --collector_url=http://collector:12800/receiveData
  traceverify verify --expected_file=expected.yaml --max_retry_times=5 --target_path=/ping --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runVerify(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.ExpectedFile, "expected_file", "", "path to the expectation document (required)")
	cmd.Flags().IntVar(&opts.MaxRetryTimes, "max_retry_times", 3, "upper bound on probe attempts (>= 1)")
	cmd.Flags().StringVar(&opts.TargetPath, "target_path", "/ping", "route to probe on the system under test")
	cmd.Flags().StringVar(&opts.ServiceURL, "service_url", "http://127.0.0.1:8081", "base URL of the system under test")
	cmd.Flags().StringVar(&opts.CollectorURL, "collector_url", "http://127.0.0.1:12800/receiveData", "endpoint serving the captured segment document")
	cmd.Flags().DurationVar(&opts.RetryInterval, "retry_interval", 0, "fixed wait between attempts (0 = exponential backoff)")
	cmd.Flags().DurationVar(&opts.RequestTimeout, "request_timeout", verify.DefaultRequestTimeout, "per-request timeout")
	cmd.Flags().StringVar(&opts.Schema, "schema", "", "optional CUE schema the expectation must satisfy")
	_ = cmd.MarkFlagRequired("expected_file")

	return cmd
}

func runVerify(opts *VerifyOptions, cmd *cobra.Command) error {
	logger := newLogger(cmd, opts.Verbose)

	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	cfg := verify.Config{
		ExpectedFile:   opts.ExpectedFile,
		MaxRetryTimes:  opts.MaxRetryTimes,
		TargetPath:     opts.TargetPath,
		ServiceURL:     opts.ServiceURL,
		CollectorURL:   opts.CollectorURL,
		RetryInterval:  opts.RetryInterval,
		RequestTimeout: opts.RequestTimeout,
		SchemaFile:     opts.Schema,
	}

	runner, err := verify.New(cfg, verify.Options{Logger: logger})
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid configuration", err)
	}

	ctx := signalContext(cmd)
	report, err := runner.Run(ctx)

	switch {
	case err == nil:
		return renderReport(formatter, report, nil)

	case verify.IsConfigError(err):
		return WrapExitError(ExitCommandError, "configuration error", err)

	default:
		if report != nil {
			_ = renderReport(formatter, report, err)
		}
		return WrapExitError(ExitFailure, "verification failed", err)
	}
}

// renderReport writes the report in the configured format. JSON output
// carries the structured report; text output uses its summary rendering.
func renderReport(f *OutputFormatter, report *verify.Report, runErr error) error {
	var payload interface{} = report
	if f.Format != "json" {
		payload = strings.TrimRight(report.Summary(), "\n")
	}
	if runErr == nil {
		return f.Success(payload)
	}
	return f.Failure(errorCode(runErr), runErr.Error(), payload)
}

func errorCode(err error) string {
	var me *verify.MismatchError
	if errors.As(err, &me) {
		return "E_EXHAUSTED"
	}
	return "E_PROBE"
}

// newLogger builds the slog logger for a command run. Verbose enables
// debug level; logs always go to stderr so JSON output stays clean.
func newLogger(cmd *cobra.Command, verbose bool) *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{
		Level: level,
	}))
}

// signalContext derives a context cancelled on SIGINT/SIGTERM, so an
// external CI timeout killing the process interrupts a blocking wait.
func signalContext(cmd *cobra.Command) context.Context {
	parent := cmd.Context()
	if parent == nil {
		parent = context.Background()
	}
	ctx, _ := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	return ctx
}
