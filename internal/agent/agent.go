package agent

import (
	"context"
	"errors"
	"log"
	"os"
	"time"

	ledger "solarshare/internal/ledger/domain"
	"solarshare/internal/metering"
	"solarshare/internal/observability/metrics"
)

// Clock returns the current time.
type Clock interface {
	Now() time.Time
}

// SystemClock uses time.Now.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now().UTC() }

// Fetcher obtains the current counter reading for a meter.
type Fetcher interface {
	Fetch(ctx context.Context, meterID string) (metering.Reading, error)
}

// Reporter submits a participant's period amount to the ledger.
type Reporter interface {
	Report(ctx context.Context, identity string, amount int64) error
}

// Agent reports one participant's consumption or production every period.
// Periods are aligned to wall-clock multiples of the period length, so every
// agent in a community targets the same boundaries without coordination.
//
// The agent reports the delta between consecutive counter readings. Both the
// measurement fetch and the report submission retry without bound: a missing
// report wedges the whole round, so giving up is worse than being late.
type Agent struct {
	identity string
	meterID  string
	period   time.Duration
	retry    time.Duration

	fetcher  Fetcher
	reporter Reporter
	clock    Clock
	logger   *log.Logger

	// wait is replaced in tests.
	wait func(ctx context.Context, until time.Time) error

	baselineSet bool
	baseline    int64
	lastAt      time.Time
}

// Config configures one agent.
type Config struct {
	Identity string
	MeterID  string
	Period   time.Duration
	Retry    time.Duration
	Fetcher  Fetcher
	Reporter Reporter
	Clock    Clock
	Logger   *log.Logger
}

// New constructs an agent.
func New(cfg Config) (*Agent, error) {
	if cfg.Identity == "" {
		return nil, errors.New("agent: empty identity")
	}
	if cfg.MeterID == "" {
		return nil, errors.New("agent: empty meter id")
	}
	if cfg.Period <= 0 {
		return nil, errors.New("agent: period must be positive")
	}
	if cfg.Fetcher == nil || cfg.Reporter == nil {
		return nil, errors.New("agent: fetcher and reporter required")
	}
	if cfg.Retry <= 0 {
		cfg.Retry = 5 * time.Second
	}
	if cfg.Clock == nil {
		cfg.Clock = SystemClock{}
	}
	if cfg.Logger == nil {
		cfg.Logger = log.New(os.Stderr, "", log.LstdFlags)
	}
	a := &Agent{
		identity: cfg.Identity,
		meterID:  cfg.MeterID,
		period:   cfg.Period,
		retry:    cfg.Retry,
		fetcher:  cfg.Fetcher,
		reporter: cfg.Reporter,
		clock:    cfg.Clock,
		logger:   cfg.Logger,
	}
	a.wait = a.sleepUntil
	return a, nil
}

// Run drives the agent until the context is cancelled.
func (a *Agent) Run(ctx context.Context) error {
	a.logger.Printf("agent %s: starting, meter=%s period=%s", a.identity, a.meterID, a.period)
	for {
		boundary := NextBoundary(a.clock.Now(), a.period)
		if err := a.wait(ctx, boundary); err != nil {
			return err
		}
		if err := a.RunPeriod(ctx); err != nil {
			return err
		}
	}
}

// RunPeriod executes one full period: fetch, delta, submit. It only returns
// an error when the context is cancelled.
func (a *Agent) RunPeriod(ctx context.Context) error {
	started := a.clock.Now()

	reading, err := a.fetchWithRetry(ctx)
	if err != nil {
		return err
	}

	amount, report := a.advance(reading)
	if !report {
		// First reading only establishes the baseline.
		metrics.ObserveAgentPeriod("baseline", a.clock.Now().Sub(started))
		return nil
	}

	if err := a.submitWithRetry(ctx, amount); err != nil {
		return err
	}
	metrics.ObserveAgentPeriod(metrics.ResultSuccess, a.clock.Now().Sub(started))
	return nil
}

// advance folds a new reading into the baseline and returns the amount to
// report. The first reading sets the baseline without producing a report.
func (a *Agent) advance(reading metering.Reading) (int64, bool) {
	if !a.baselineSet {
		a.baselineSet = true
		a.baseline = reading.Value
		a.lastAt = reading.At
		return 0, false
	}

	if !reading.At.After(a.lastAt) {
		a.logger.Printf("agent %s: meter %s returned a stale sample (ts %s, previous %s)",
			a.identity, a.meterID, reading.At.Format(time.RFC3339), a.lastAt.Format(time.RFC3339))
	}

	delta := reading.Value - a.baseline
	if delta < 0 {
		// Counter reset at the source.
		a.logger.Printf("agent %s: meter %s counter went backwards by %d, reporting zero",
			a.identity, a.meterID, -delta)
		delta = 0
	}
	a.baseline = reading.Value
	a.lastAt = reading.At
	return delta, true
}

func (a *Agent) fetchWithRetry(ctx context.Context) (metering.Reading, error) {
	for {
		reading, err := a.fetcher.Fetch(ctx, a.meterID)
		if err == nil {
			return reading, nil
		}
		if ctx.Err() != nil {
			return metering.Reading{}, ctx.Err()
		}
		metrics.IncMeasurementError(fetchFailureReason(err))
		a.logger.Printf("agent %s: fetch from meter %s failed, retrying in %s: %v", a.identity, a.meterID, a.retry, err)
		if err := a.wait(ctx, a.clock.Now().Add(a.retry)); err != nil {
			return metering.Reading{}, err
		}
	}
}

func (a *Agent) submitWithRetry(ctx context.Context, amount int64) error {
	for {
		err := a.reporter.Report(ctx, a.identity, amount)
		if err == nil {
			return nil
		}
		if errors.Is(err, ledger.ErrAlreadyReported) {
			// A retried submission whose first attempt actually landed.
			a.logger.Printf("agent %s: report already recorded this round", a.identity)
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		metrics.IncSubmissionRetry()
		a.logger.Printf("agent %s: report of %d rejected, retrying in %s: %v", a.identity, amount, a.retry, err)
		if err := a.wait(ctx, a.clock.Now().Add(a.retry)); err != nil {
			return err
		}
	}
}

func (a *Agent) sleepUntil(ctx context.Context, until time.Time) error {
	d := until.Sub(a.clock.Now())
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func fetchFailureReason(err error) string {
	switch {
	case errors.Is(err, metering.ErrTransportTimeout):
		return "timeout"
	case errors.Is(err, metering.ErrInvalidResponse):
		return "invalid_response"
	default:
		return "transport"
	}
}

// NextBoundary returns the first wall-clock multiple of period strictly
// after now. Periods divide the day evenly because the arithmetic runs on
// Unix seconds.
func NextBoundary(now time.Time, period time.Duration) time.Time {
	sec := int64(period / time.Second)
	if sec <= 0 {
		sec = 1
	}
	next := (now.Unix()/sec + 1) * sec
	return time.Unix(next, 0).UTC()
}
