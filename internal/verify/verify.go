// Package verify drives a verification run end to end: load the
// expectation once, then probe the system under test under a retry budget
// until the observed document matches or the budget is exhausted.
//
// The run loop owns all side effects (network, sleeps, logging); the
// structural comparison itself is the pure function in internal/compare.
// A run terminates in exactly one of two states: MATCHED or EXHAUSTED.
package verify

import (
	"context"
	"io"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"

	"traceverify/internal/compare"
	"traceverify/internal/expect"
	"traceverify/internal/probe"
)

// Default timing applied when the config leaves the corresponding field zero.
const (
	DefaultRequestTimeout  = 5 * time.Second
	defaultInitialInterval = 500 * time.Millisecond
	defaultMaxInterval     = 5 * time.Second
)

// Config is the complete, explicit configuration of one verification run.
// It is threaded through the run loop as a value; there is no ambient
// process-wide state, so the runner can be embedded in other programs and
// unit-tested with a fake prober.
type Config struct {
	// ExpectedFile is the path to the expectation document.
	ExpectedFile string

	// MaxRetryTimes is the retry budget: the upper bound on probe cycles.
	// Must be at least 1.
	MaxRetryTimes int

	// TargetPath is the route probed on the system under test to provoke
	// a trace, e.g. "/ping".
	TargetPath string

	// ServiceURL is the base URL of the system under test.
	ServiceURL string

	// CollectorURL is the endpoint serving the captured segment document.
	CollectorURL string

	// RetryInterval, when positive, fixes the wait between attempts.
	// When zero, waits follow an exponential backoff instead.
	RetryInterval time.Duration

	// RequestTimeout bounds each individual probe request.
	// Zero means DefaultRequestTimeout.
	RequestTimeout time.Duration

	// SchemaFile optionally names a CUE schema the expectation document
	// must satisfy before any probing starts.
	SchemaFile string
}

// Validate checks the configuration, returning a ConfigError on the first
// invalid field. It runs before any probe is attempted.
func (c *Config) Validate() error {
	if c.ExpectedFile == "" {
		return &ConfigError{Field: "expected_file", Message: "path is required"}
	}
	if c.MaxRetryTimes < 1 {
		return &ConfigError{Field: "max_retry_times", Message: "must be at least 1"}
	}
	if c.TargetPath == "" {
		return &ConfigError{Field: "target_path", Message: "path is required"}
	}
	if c.ServiceURL == "" {
		return &ConfigError{Field: "service_url", Message: "URL is required"}
	}
	if c.CollectorURL == "" {
		return &ConfigError{Field: "collector_url", Message: "URL is required"}
	}
	if c.RetryInterval < 0 {
		return &ConfigError{Field: "retry_interval", Message: "must not be negative"}
	}
	return nil
}

// Sleeper blocks between attempts. The default implementation sleeps on
// the wall clock; tests inject a manual sleeper for instant, recorded waits.
type Sleeper interface {
	// Sleep blocks for d or until ctx is done, returning ctx.Err() in the
	// latter case.
	Sleep(ctx context.Context, d time.Duration) error
}

type realSleeper struct{}

func (realSleeper) Sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Options carries injectable collaborators for a Runner.
// Zero values select production defaults.
type Options struct {
	// Prober overrides the HTTP prober built from the config (for testing).
	Prober probe.Prober

	// Sleeper overrides real inter-attempt sleeps (for testing).
	Sleeper Sleeper

	// Logger receives per-attempt progress. Nil discards logs.
	Logger *slog.Logger
}

// Runner executes verification runs. A Runner is single-threaded and
// synchronous: one probe cycle at a time, blocking on each network call.
type Runner struct {
	cfg     Config
	prober  probe.Prober
	sleeper Sleeper
	logger  *slog.Logger
}

// New validates cfg and builds a Runner.
func New(cfg Config, opts Options) (*Runner, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = DefaultRequestTimeout
	}

	prober := opts.Prober
	if prober == nil {
		p, err := probe.NewHTTPProber(cfg.ServiceURL, cfg.TargetPath, cfg.CollectorURL, cfg.RequestTimeout)
		if err != nil {
			return nil, &ConfigError{Message: "building prober", Err: err}
		}
		prober = p
	}

	sleeper := opts.Sleeper
	if sleeper == nil {
		sleeper = realSleeper{}
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	return &Runner{cfg: cfg, prober: prober, sleeper: sleeper, logger: logger}, nil
}

// Run executes the verification loop.
//
// The expectation document is loaded exactly once; each attempt fetches a
// fresh observed document. Transient probe errors consume an attempt and
// the loop continues; a malformed response body aborts immediately since
// it is not expected to self-heal. The first successful comparison
// terminates the run.
//
// On EXHAUSTED the returned Report is paired with a *MismatchError; the
// Report is also returned alongside fatal probe errors that occur
// mid-run, so callers can still render the attempts performed.
func (r *Runner) Run(ctx context.Context) (*Report, error) {
	doc, err := expect.Load(r.cfg.ExpectedFile)
	if err != nil {
		return nil, &ConfigError{Message: "loading expectation", Err: err}
	}
	if err := expect.ValidateSchema(doc, r.cfg.SchemaFile); err != nil {
		return nil, &ConfigError{Message: "validating expectation", Err: err}
	}

	report := &Report{
		RunID:        uuid.NewString(),
		ExpectedFile: r.cfg.ExpectedFile,
		State:        StateExhausted,
	}
	r.logger.Info("verification started",
		"run_id", report.RunID,
		"expected_file", r.cfg.ExpectedFile,
		"max_retry_times", r.cfg.MaxRetryTimes,
	)

	policy := r.backoffPolicy()

	var lastResult *compare.Result
	var lastErr error

	for attempt := 1; attempt <= r.cfg.MaxRetryTimes; attempt++ {
		result, err := r.attempt(ctx, doc)
		switch {
		case err != nil && !probe.IsTransient(err):
			// Malformed response or a status that will not self-heal.
			report.addAttempt(OutcomeProbeError, err.Error())
			r.logger.Error("fatal probe error", "run_id", report.RunID, "attempt", attempt, "error", err)
			return report, err

		case err != nil:
			report.addAttempt(OutcomeProbeError, err.Error())
			lastErr = err
			r.logger.Warn("probe failed, will retry",
				"run_id", report.RunID, "attempt", attempt, "error", err)

		case result.Match:
			report.addAttempt(OutcomeMatched, "")
			report.State = StateMatched
			r.logger.Info("matched", "run_id", report.RunID, "attempt", attempt)
			return report, nil

		default:
			first := result.First()
			report.addAttempt(OutcomeMismatch, first.String())
			lastResult = result
			lastErr = nil
			r.logger.Warn("comparison mismatch, will retry",
				"run_id", report.RunID, "attempt", attempt, "path", first.Path)
		}

		if attempt < r.cfg.MaxRetryTimes {
			wait := policy.NextBackOff()
			if wait < 0 {
				wait = defaultMaxInterval
			}
			if err := r.sleeper.Sleep(ctx, wait); err != nil {
				return report, err
			}
		}
	}

	mismatchErr := &MismatchError{Attempts: r.cfg.MaxRetryTimes, LastErr: lastErr}
	if lastResult != nil {
		report.Mismatches = lastResult.Mismatches
		mismatchErr.Mismatch = lastResult.First()
	}
	r.logger.Error("retry budget exhausted", "run_id", report.RunID, "attempts", r.cfg.MaxRetryTimes)
	return report, mismatchErr
}

// attempt performs one probe cycle: trigger, fetch, parse, compare.
func (r *Runner) attempt(ctx context.Context, doc *expect.Document) (*compare.Result, error) {
	if err := r.prober.Trigger(ctx); err != nil {
		return nil, err
	}

	body, err := r.prober.Fetch(ctx)
	if err != nil {
		return nil, err
	}

	observed, err := expect.Parse(body)
	if err != nil {
		return nil, &probe.ProbeError{Op: "decode", URL: r.cfg.CollectorURL, Err: err}
	}

	return compare.Compare(doc.Root, observed), nil
}

// backoffPolicy builds the inter-attempt wait policy: a constant interval
// when one is configured, exponential backoff otherwise.
func (r *Runner) backoffPolicy() backoff.BackOff {
	if r.cfg.RetryInterval > 0 {
		return backoff.NewConstantBackOff(r.cfg.RetryInterval)
	}
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = defaultInitialInterval
	policy.MaxInterval = defaultMaxInterval
	policy.MaxElapsedTime = 0
	return policy
}
