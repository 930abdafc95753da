// Package build drives oracle evaluations across a grid and persists the
// results into a sample store.
package build

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/banshee-data/ilut/internal/grid"
	"github.com/banshee-data/ilut/internal/lut"
	"github.com/banshee-data/ilut/internal/lutstore"
	"github.com/banshee-data/ilut/internal/monitoring"
	"github.com/banshee-data/ilut/internal/oracle"
	"github.com/banshee-data/ilut/internal/timeutil"
)

var logf = monitoring.Prefixed("[build]")

// Store is the subset of the sample store the orchestrator writes to.
type Store interface {
	Config() lut.Config
	Keys(ctx context.Context) (map[lut.SampleKey]struct{}, error)
	Put(ctx context.Context, rec lut.SampleRecord) error
	BeginRun(ctx context.Context, run *lutstore.Run) error
	FinishRun(ctx context.Context, run *lutstore.Run) error
	RecordFailure(ctx context.Context, runID string, f lutstore.Failure) error
}

// Progress is reported after every finished sample.
type Progress struct {
	Done   int // evaluated or failed in this run
	Failed int
	Total  int // samples that were missing at the start of the run
}

// Options tune an Orchestrator. Zero values select defaults.
type Options struct {
	// Workers is the number of concurrent oracle calls. Defaults to the
	// number of CPUs.
	Workers int
	// Timeout bounds a single oracle call. Zero disables the bound.
	Timeout time.Duration
	// Retries is the number of additional attempts after a failed call.
	Retries int
	// RetryBackoff is the delay before the first retry; it doubles on
	// each further retry. Defaults to 500ms.
	RetryBackoff time.Duration
	// Clock is used for timestamps and backoff. Defaults to the real clock.
	Clock timeutil.Clock
	// OnProgress, if set, is called from a single goroutine.
	OnProgress func(Progress)
}

func (o Options) withDefaults() Options {
	if o.Workers <= 0 {
		o.Workers = runtime.NumCPU()
	}
	if o.Retries < 0 {
		o.Retries = 0
	}
	if o.RetryBackoff <= 0 {
		o.RetryBackoff = 500 * time.Millisecond
	}
	if o.Clock == nil {
		o.Clock = timeutil.RealClock{}
	}
	return o
}

// Orchestrator fills a sample store by evaluating the oracle on every grid
// point that is not stored yet.
type Orchestrator struct {
	store  Store
	oracle oracle.Oracle
	opts   Options
}

// New returns an Orchestrator writing to store.
func New(store Store, o oracle.Oracle, opts Options) *Orchestrator {
	return &Orchestrator{store: store, oracle: o, opts: opts.withDefaults()}
}

type result struct {
	key      lut.SampleKey
	attempts int
	err      error
}

// Build evaluates every sample of spec that is missing from the store.
// Individual failures are recorded in the report and do not stop the build.
// When ctx is cancelled no new evaluations start, in-flight ones are
// abandoned, and the partial report is returned together with ctx.Err().
func (o *Orchestrator) Build(ctx context.Context, spec *grid.Spec) (*Report, error) {
	if spec.Config != o.store.Config() {
		return nil, &lut.ConfigurationError{
			Field:  "config",
			Value:  spec.Config.Key(),
			Reason: fmt.Sprintf("store belongs to %s", o.store.Config().Key()),
		}
	}
	bands := make(map[string]lut.Band, len(spec.Bands))
	for _, b := range spec.Bands {
		bands[b.Name] = b
	}

	existing, err := o.store.Keys(ctx)
	if err != nil {
		return nil, fmt.Errorf("load existing samples: %w", err)
	}
	all := spec.Keys()
	missing := make([]lut.SampleKey, 0, len(all))
	for _, k := range all {
		if _, ok := existing[k]; !ok {
			missing = append(missing, k)
		}
	}

	report := &Report{
		Config:    spec.Config,
		Requested: len(all),
		Existing:  len(all) - len(missing),
		StartedAt: o.opts.Clock.Now(),
	}
	run := &lutstore.Run{
		Requested: report.Requested,
		Existing:  report.Existing,
		Workers:   o.opts.Workers,
		StartedAt: report.StartedAt,
	}
	if err := o.store.BeginRun(ctx, run); err != nil {
		return nil, err
	}
	report.RunID = run.RunID
	logf("run %s: %s, %d samples, %d already stored, %d to evaluate with %d workers",
		run.RunID, spec.Config.Key(), report.Requested, report.Existing, len(missing), o.opts.Workers)

	stored := o.dispatch(ctx, spec.Config, bands, missing, report)

	for _, k := range missing {
		if !stored[k] {
			report.Gaps = append(report.Gaps, k)
		}
	}
	report.Cancelled = ctx.Err() != nil
	report.FinishedAt = o.opts.Clock.Now()

	run.Evaluated = report.Evaluated
	run.Failed = len(report.Failures)
	run.Status = report.status()
	if err := o.store.FinishRun(context.WithoutCancel(ctx), run); err != nil {
		logf("run %s: failed to record completion: %v", run.RunID, err)
	}
	logf("run %s: %s", run.RunID, report.Summary())

	if report.Cancelled {
		return report, ctx.Err()
	}
	return report, nil
}

// dispatch runs the worker pool and returns the set of keys stored.
func (o *Orchestrator) dispatch(ctx context.Context, cfg lut.Config, bands map[string]lut.Band, missing []lut.SampleKey, report *Report) map[lut.SampleKey]bool {
	stored := make(map[lut.SampleKey]bool, len(missing))
	if len(missing) == 0 {
		return stored
	}

	jobs := make(chan lut.SampleKey)
	results := make(chan result)

	go func() {
		defer close(jobs)
		for _, k := range missing {
			select {
			case <-ctx.Done():
				return
			case jobs <- k:
			}
		}
	}()

	var wg sync.WaitGroup
	for i := 0; i < o.opts.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for k := range jobs {
				results <- o.produce(ctx, cfg, bands[k.Band], k)
			}
		}()
	}
	go func() {
		wg.Wait()
		close(results)
	}()

	var progress Progress
	progress.Total = len(missing)
	for res := range results {
		switch {
		case res.err == nil:
			stored[res.key] = true
			report.Evaluated++
		case ctx.Err() != nil && errors.Is(res.err, ctx.Err()):
			// Abandoned by cancellation; remains a gap.
			continue
		default:
			f := Failure{Key: res.key, Attempts: res.attempts, Reason: res.err.Error()}
			report.Failures = append(report.Failures, f)
			progress.Failed++
			logf("warning: %s: %v", res.key, res.err)
			if err := o.store.RecordFailure(context.WithoutCancel(ctx), report.RunID, lutstore.Failure{
				Key: f.Key, Attempts: f.Attempts, Reason: f.Reason, RecordedAt: o.opts.Clock.Now(),
			}); err != nil {
				logf("warning: failed to record failure for %s: %v", res.key, err)
			}
		}
		progress.Done++
		if o.opts.OnProgress != nil {
			o.opts.OnProgress(progress)
		}
	}
	return stored
}

// produce evaluates and stores one sample.
func (o *Orchestrator) produce(ctx context.Context, cfg lut.Config, band lut.Band, key lut.SampleKey) result {
	out, attempts, err := o.evaluate(ctx, oracle.NewRequest(cfg, band, key.Point))
	if err != nil {
		return result{key: key, attempts: attempts, err: err}
	}
	if err := o.store.Put(ctx, lut.SampleRecord{Key: key, Outputs: out}); err != nil {
		if ctx.Err() != nil {
			return result{key: key, attempts: attempts, err: ctx.Err()}
		}
		return result{key: key, attempts: attempts, err: fmt.Errorf("store sample: %w", err)}
	}
	return result{key: key, attempts: attempts}
}

// evaluate calls the oracle with the per-call timeout, validates the
// outputs and retries with exponential backoff.
func (o *Orchestrator) evaluate(ctx context.Context, req oracle.Request) (lut.Outputs, int, error) {
	var lastErr error
	backoff := o.opts.RetryBackoff
	maxAttempts := o.opts.Retries + 1

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		callCtx, cancel := ctx, context.CancelFunc(func() {})
		if o.opts.Timeout > 0 {
			callCtx, cancel = context.WithTimeout(ctx, o.opts.Timeout)
		}
		out, err := o.oracle.Evaluate(callCtx, req)
		timedOut := errors.Is(callCtx.Err(), context.DeadlineExceeded)
		cancel()

		if ctx.Err() != nil {
			return lut.Outputs{}, attempt, ctx.Err()
		}
		if err == nil {
			if verr := out.Validate(); verr != nil {
				err = fmt.Errorf("implausible outputs: %w", verr)
			} else {
				return out, attempt, nil
			}
		} else if timedOut {
			err = fmt.Errorf("timed out after %s: %w", o.opts.Timeout, err)
		}
		lastErr = err

		if attempt < maxAttempts {
			if err := o.opts.Clock.SleepContext(ctx, backoff); err != nil {
				return lut.Outputs{}, attempt, err
			}
			backoff *= 2
		}
	}
	return lut.Outputs{}, maxAttempts, &lut.OracleEvaluationError{Key: req.Key(), Attempts: maxAttempts, Err: lastErr}
}
