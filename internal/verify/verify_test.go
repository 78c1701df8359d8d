package verify

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"traceverify/internal/probe"
	"traceverify/internal/testutil"
)

const expectedPing = `
segmentItems:
  - serviceName: producer
    segmentSize: 1
    segments:
      - segmentId: not null
        spans:
          - operationName: /ping
            spanId: 0
            parentSpanId: -1
`

const matchingBody = `
segmentItems:
  - serviceName: producer
    segmentSize: 1
    segments:
      - segmentId: 8a2b9f6e.43.17234
        spans:
          - operationName: /ping
            spanId: 0
            parentSpanId: -1
            startTime: 1625374218000
`

const mismatchingBody = `
segmentItems:
  - serviceName: producer
    segmentSize: 1
    segments:
      - segmentId: 8a2b9f6e.43.17234
        spans:
          - operationName: /pong
            spanId: 0
            parentSpanId: -1
`

// step scripts one probe cycle of a fakeProber.
type step struct {
	triggerErr error
	fetchErr   error
	body       string
}

// fakeProber replays a scripted sequence of probe cycles. The last step
// repeats if the runner probes more often than scripted.
type fakeProber struct {
	steps    []step
	triggers int
	fetches  int
}

func (f *fakeProber) current() step {
	i := f.triggers - 1
	if i >= len(f.steps) {
		i = len(f.steps) - 1
	}
	return f.steps[i]
}

func (f *fakeProber) Trigger(ctx context.Context) error {
	f.triggers++
	return f.current().triggerErr
}

func (f *fakeProber) Fetch(ctx context.Context) ([]byte, error) {
	f.fetches++
	s := f.current()
	if s.fetchErr != nil {
		return nil, s.fetchErr
	}
	return []byte(s.body), nil
}

func writeExpectation(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "expected.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func testConfig(expectedFile string, maxRetry int) Config {
	return Config{
		ExpectedFile:  expectedFile,
		MaxRetryTimes: maxRetry,
		TargetPath:    "/ping",
		ServiceURL:    "http://producer:8081",
		CollectorURL:  "http://collector:12800/receiveData",
	}
}

func newTestRunner(t *testing.T, cfg Config, p probe.Prober) (*Runner, *testutil.ManualSleeper) {
	t.Helper()
	sleeper := testutil.NewManualSleeper()
	runner, err := New(cfg, Options{Prober: p, Sleeper: sleeper})
	require.NoError(t, err)
	return runner, sleeper
}

func TestRun_MatchOnFirstAttempt(t *testing.T) {
	path := writeExpectation(t, expectedPing)
	prober := &fakeProber{steps: []step{{body: matchingBody}}}
	runner, sleeper := newTestRunner(t, testConfig(path, 5), prober)

	report, err := runner.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, StateMatched, report.State)
	require.Len(t, report.Attempts, 1)
	assert.Equal(t, OutcomeMatched, report.Attempts[0].Outcome)
	assert.Equal(t, 1, prober.triggers, "first match must stop probing")
	assert.Empty(t, sleeper.Waits(), "no wait after a terminal attempt")
	assert.NotEmpty(t, report.RunID)
}

func TestRun_ExhaustsExactlyMaxRetryTimes(t *testing.T) {
	path := writeExpectation(t, expectedPing)
	prober := &fakeProber{steps: []step{{body: mismatchingBody}}}
	runner, sleeper := newTestRunner(t, testConfig(path, 4), prober)

	report, err := runner.Run(context.Background())
	require.Error(t, err)

	var me *MismatchError
	require.ErrorAs(t, err, &me)
	assert.Equal(t, 4, me.Attempts)
	require.NotNil(t, me.Mismatch)
	assert.Equal(t, "segmentItems[0].segments[0].spans[0].operationName", me.Mismatch.Path)

	assert.Equal(t, StateExhausted, report.State)
	assert.Len(t, report.Attempts, 4, "exactly N attempts, never N+1")
	assert.Equal(t, 4, prober.triggers)
	assert.Len(t, sleeper.Waits(), 3, "waits only between attempts")
	assert.NotEmpty(t, report.Mismatches)
}

func TestRun_TransientErrorsThenMatch(t *testing.T) {
	path := writeExpectation(t, expectedPing)
	unavailable := &probe.ProbeError{Op: "trigger", Status: 503, Transient: true}
	prober := &fakeProber{steps: []step{
		{triggerErr: unavailable},
		{triggerErr: unavailable},
		{body: matchingBody},
	}}
	runner, _ := newTestRunner(t, testConfig(path, 3), prober)

	report, err := runner.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, StateMatched, report.State)
	assert.Equal(t, 3, prober.triggers, "exactly 3 probe calls")
	require.Len(t, report.Attempts, 3)
	assert.Equal(t, OutcomeProbeError, report.Attempts[0].Outcome)
	assert.Equal(t, OutcomeProbeError, report.Attempts[1].Outcome)
	assert.Equal(t, OutcomeMatched, report.Attempts[2].Outcome)
}

func TestRun_TransientFetchErrorConsumesAttempt(t *testing.T) {
	path := writeExpectation(t, expectedPing)
	prober := &fakeProber{steps: []step{
		{fetchErr: &probe.ProbeError{Op: "fetch", Transient: true}},
		{body: matchingBody},
	}}
	runner, _ := newTestRunner(t, testConfig(path, 2), prober)

	report, err := runner.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StateMatched, report.State)
	assert.Equal(t, 2, prober.fetches)
}

func TestRun_MalformedBodyFailsFast(t *testing.T) {
	path := writeExpectation(t, expectedPing)
	prober := &fakeProber{steps: []step{{body: "][ not yaml {"}}}
	runner, _ := newTestRunner(t, testConfig(path, 10), prober)

	report, err := runner.Run(context.Background())
	require.Error(t, err)
	assert.False(t, probe.IsTransient(err))
	assert.Equal(t, 1, prober.triggers, "malformed responses are not retried")
	require.NotNil(t, report)
	assert.Len(t, report.Attempts, 1)
}

func TestRun_FatalProbeErrorFailsFast(t *testing.T) {
	path := writeExpectation(t, expectedPing)
	notFound := &probe.ProbeError{Op: "trigger", Status: 404}
	prober := &fakeProber{steps: []step{{triggerErr: notFound}}}
	runner, _ := newTestRunner(t, testConfig(path, 10), prober)

	_, err := runner.Run(context.Background())
	require.Error(t, err)
	assert.Equal(t, 1, prober.triggers)

	var pe *probe.ProbeError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, 404, pe.Status)
}

func TestRun_AllTransientReportsLastProbeError(t *testing.T) {
	path := writeExpectation(t, expectedPing)
	unavailable := &probe.ProbeError{Op: "trigger", Status: 503, Transient: true}
	prober := &fakeProber{steps: []step{{triggerErr: unavailable}}}
	runner, _ := newTestRunner(t, testConfig(path, 3), prober)

	report, err := runner.Run(context.Background())
	require.Error(t, err)

	var me *MismatchError
	require.ErrorAs(t, err, &me)
	assert.Nil(t, me.Mismatch, "no comparison ever happened")
	assert.ErrorIs(t, me, unavailable)
	assert.Equal(t, StateExhausted, report.State)
	assert.Empty(t, report.Mismatches)
}

func TestRun_MissingExpectationFileProbesNothing(t *testing.T) {
	prober := &fakeProber{steps: []step{{body: matchingBody}}}
	cfg := testConfig(filepath.Join(t.TempDir(), "nope.yaml"), 3)
	runner, _ := newTestRunner(t, cfg, prober)

	_, err := runner.Run(context.Background())
	require.Error(t, err)
	assert.True(t, IsConfigError(err))
	assert.Equal(t, 0, prober.triggers, "config errors surface before any probe")
}

func TestRun_ConstantRetryInterval(t *testing.T) {
	path := writeExpectation(t, expectedPing)
	prober := &fakeProber{steps: []step{{body: mismatchingBody}}}
	cfg := testConfig(path, 3)
	cfg.RetryInterval = 250 * time.Millisecond
	runner, sleeper := newTestRunner(t, cfg, prober)

	_, err := runner.Run(context.Background())
	require.Error(t, err)

	waits := sleeper.Waits()
	require.Len(t, waits, 2)
	assert.Equal(t, 250*time.Millisecond, waits[0])
	assert.Equal(t, 250*time.Millisecond, waits[1])
}

func TestRun_ExponentialBackoffStaysBounded(t *testing.T) {
	path := writeExpectation(t, expectedPing)
	prober := &fakeProber{steps: []step{{body: mismatchingBody}}}
	runner, sleeper := newTestRunner(t, testConfig(path, 4), prober)

	_, err := runner.Run(context.Background())
	require.Error(t, err)

	waits := sleeper.Waits()
	require.Len(t, waits, 3)
	for _, w := range waits {
		assert.Greater(t, w, time.Duration(0))
		assert.LessOrEqual(t, w, defaultMaxInterval)
	}
}

func TestRun_ContextCancellationStopsLoop(t *testing.T) {
	path := writeExpectation(t, expectedPing)
	prober := &fakeProber{steps: []step{{body: mismatchingBody}}}
	sleeper := testutil.NewManualSleeper()
	runner, err := New(testConfig(path, 5), Options{Prober: prober, Sleeper: sleeper})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	report, err := runner.Run(ctx)
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, prober.triggers, "cancellation interrupts the inter-attempt wait")
	require.NotNil(t, report)
}

func TestConfig_Validate(t *testing.T) {
	valid := testConfig("expected.yaml", 1)
	assert.NoError(t, valid.Validate())

	cases := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{"missing expected_file", func(c *Config) { c.ExpectedFile = "" }, "expected_file"},
		{"zero max_retry_times", func(c *Config) { c.MaxRetryTimes = 0 }, "max_retry_times"},
		{"negative max_retry_times", func(c *Config) { c.MaxRetryTimes = -2 }, "max_retry_times"},
		{"missing target_path", func(c *Config) { c.TargetPath = "" }, "target_path"},
		{"missing service_url", func(c *Config) { c.ServiceURL = "" }, "service_url"},
		{"missing collector_url", func(c *Config) { c.CollectorURL = "" }, "collector_url"},
		{"negative retry_interval", func(c *Config) { c.RetryInterval = -time.Second }, "retry_interval"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := testConfig("expected.yaml", 1)
			tc.mutate(&cfg)

			err := cfg.Validate()
			require.Error(t, err)

			var ce *ConfigError
			require.ErrorAs(t, err, &ce)
			assert.Equal(t, tc.field, ce.Field)
		})
	}
}

func TestNew_InvalidConfigRejected(t *testing.T) {
	_, err := New(Config{}, Options{})
	require.Error(t, err)
	assert.True(t, IsConfigError(err))
}
