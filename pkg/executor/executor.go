// Package executor runs a plan's eligible entries against their providers:
// a bounded-concurrency batch pool, per-case retry/backoff, scope
// isolation, and incremental checkpointing/results persistence (§4.D).
package executor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/sdamache/memorybench/pkg/benchmark"
	"github.com/sdamache/memorybench/pkg/config"
	"github.com/sdamache/memorybench/pkg/durability"
	"github.com/sdamache/memorybench/pkg/plan"
	"github.com/sdamache/memorybench/pkg/provider"
	"github.com/sdamache/memorybench/pkg/registry"
)

// Executor runs a Plan to completion, writing results and checkpoints as it
// goes. One Executor instance is scoped to one run.
type Executor struct {
	Providers       *registry.Providers
	Benchmarks      *registry.Benchmarks
	CheckpointStore durability.CheckpointStore
	ResultsStore    durability.ResultsStore
	Retry           config.RetryConfig
	RateLimitQPS    float64
	Metrics         *Metrics
	Progress        *Progress

	limiter *rate.Limiter
	once    sync.Once
}

// Run executes every eligible entry of p in plan order, skipping case keys
// already present in completedKeys (resume). It writes the manifest before
// starting, appends one result per case as it completes, persists the
// checkpoint after each case, and writes the final summary once all
// entries have been attempted. A run-scoped cancellation of ctx stops
// dispatch of new cases; in-flight cases are allowed to finish. A whole-entry
// execution exception (e.g. a Cases() enumeration failure) is logged and
// skipped; a persistence error (failed checkpoint or results write) instead
// aborts the run immediately, since durable state can no longer be trusted
// to reflect what has actually executed (§7 "persistence errors").
func (ex *Executor) Run(ctx context.Context, p *plan.Plan, manifest *durability.RunManifest, cp *durability.Checkpoint, completedKeys map[string]bool) (*durability.MetricsSummary, error) {
	ex.once.Do(func() {
		if ex.RateLimitQPS > 0 {
			ex.limiter = rate.NewLimiter(rate.Limit(ex.RateLimitQPS), 1)
		}
	})

	if err := ex.ResultsStore.WriteManifest(ctx, manifest); err != nil {
		return nil, fmt.Errorf("executor: writing manifest: %w", err)
	}

	retryer := newRetryer(ex.Retry)
	var allResults []durability.RunCaseResult
	currentCheckpoint := cp

	for _, entry := range p.Entries {
		log := slog.With("run_id", p.RunID, "provider", entry.ProviderName, "benchmark", entry.BenchmarkName)

		if ctx.Err() != nil {
			log.Info("run cancelled, skipping remaining entries")
			break
		}
		if !entry.Eligible {
			log.Info("entry ineligible, skipping", "reason", entry.SkipReason.Message)
			continue
		}

		results, updated, err := ex.runEntry(ctx, p, entry, retryer, currentCheckpoint, completedKeys)
		currentCheckpoint = updated
		allResults = append(allResults, results...)
		if err != nil {
			var persistErr *persistenceError
			if errors.As(err, &persistErr) {
				// Persistence errors halt the run: the last successfully
				// saved checkpoint remains the durable state, and the
				// caller must not treat a dirty run as a success (§7).
				log.Error("persistence failure, halting run", "error", err)
				return nil, fmt.Errorf("executor: %w", err)
			}
			// Whole-entry execution exception: log and move on, never
			// abort the run (§4.D "Failure semantics").
			log.Error("entry execution failed, skipping", "error", err)
			continue
		}
	}

	summary := durability.BuildSummary(p.RunID, allResults)
	if err := ex.ResultsStore.WriteSummary(ctx, summary); err != nil {
		return nil, fmt.Errorf("executor: writing summary: %w", err)
	}
	return summary, nil
}

// runEntry dispatches one (provider, benchmark) entry's cases in fixed
// batches of size p.Concurrency, each batch completing before the next
// begins (§4.D "Scheduling model").
func (ex *Executor) runEntry(ctx context.Context, p *plan.Plan, entry plan.Entry, retryer *retryer, cp *durability.Checkpoint, completedKeys map[string]bool) ([]durability.RunCaseResult, *durability.Checkpoint, error) {
	providerEntry, ok := ex.Providers.Lookup(entry.ProviderName)
	if !ok {
		return nil, cp, fmt.Errorf("executor: provider %q vanished from registry mid-run", entry.ProviderName)
	}
	benchmarkEntry, ok := ex.Benchmarks.Lookup(entry.BenchmarkName)
	if !ok {
		return nil, cp, fmt.Errorf("executor: benchmark %q vanished from registry mid-run", entry.BenchmarkName)
	}

	cases, err := benchmarkEntry.Benchmark.Cases(ctx)
	if err != nil {
		return nil, cp, fmt.Errorf("executor: enumerating cases: %w", err)
	}
	if ex.Progress != nil {
		ex.Progress.SetTotal(entry.ProviderName, entry.BenchmarkName, len(cases))
	}

	var pending []benchmark.Case
	for _, c := range cases {
		key := durability.BuildCaseKey(entry.ProviderName, entry.BenchmarkName, c.ID)
		if completedKeys[key] {
			continue
		}
		pending = append(pending, c)
	}

	width := p.Concurrency
	if width < 1 {
		width = 1
	}

	// Cancellation of ctx only stops new batches from being dispatched; a
	// batch already dispatched, and the persistence of its results, run on a
	// context that ignores that cancellation so in-flight cases finish.
	inFlightCtx := context.WithoutCancel(ctx)

	var results []durability.RunCaseResult
	for start := 0; start < len(pending); start += width {
		if ctx.Err() != nil {
			break
		}
		end := start + width
		if end > len(pending) {
			end = len(pending)
		}
		batch := pending[start:end]

		batchResults := ex.runBatch(inFlightCtx, p.RunID, entry, providerEntry.Provider, retryer, batch)
		// Case order within a batch is launch order when N=1, but with N>1
		// goroutines may finish out of order; runBatch already restores
		// launch order so checkpoint updates and the results log stay
		// deterministic (§4.D "Ordering guarantees").
		for _, r := range batchResults {
			cp = cp.RecordCompletion(durability.BuildCaseKey(entry.ProviderName, entry.BenchmarkName, r.CaseID), r.Status)
			if err := ex.CheckpointStore.Save(inFlightCtx, cp); err != nil {
				return results, cp, &persistenceError{err: fmt.Errorf("executor: saving checkpoint: %w", err)}
			}
			if err := ex.ResultsStore.AppendResult(inFlightCtx, r); err != nil {
				return results, cp, &persistenceError{err: fmt.Errorf("executor: appending result: %w", err)}
			}
			if ex.Progress != nil {
				ex.Progress.RecordResult(entry.ProviderName, entry.BenchmarkName, benchmark.Status(r.Status))
			}
			results = append(results, r)
		}
	}

	return results, cp, nil
}

// persistenceError marks a failed durable write (checkpoint or results),
// distinguishing it from a whole-entry execution exception so Run can tell
// the two apart and halt on the former (§7).
type persistenceError struct {
	err error
}

func (e *persistenceError) Error() string { return e.err.Error() }
func (e *persistenceError) Unwrap() error { return e.err }

type indexedResult struct {
	index  int
	result durability.RunCaseResult
}

// runBatch dispatches up to len(batch) cases concurrently and returns their
// results in launch order.
func (ex *Executor) runBatch(ctx context.Context, runID string, entry plan.Entry, p provider.Provider, retryer *retryer, batch []benchmark.Case) []durability.RunCaseResult {
	out := make(chan indexedResult, len(batch))
	var wg sync.WaitGroup

	for i, c := range batch {
		wg.Add(1)
		go func(i int, c benchmark.Case) {
			defer wg.Done()
			out <- indexedResult{index: i, result: ex.runCase(ctx, runID, entry, p, retryer, c)}
		}(i, c)
	}

	wg.Wait()
	close(out)

	collected := make([]indexedResult, 0, len(batch))
	for r := range out {
		collected = append(collected, r)
	}
	sort.Slice(collected, func(i, j int) bool { return collected[i].index < collected[j].index })

	results := make([]durability.RunCaseResult, len(collected))
	for i, r := range collected {
		results[i] = r.result
	}
	return results
}

// runCase builds the isolated scope, waits on the optional rate limiter,
// runs the retry-wrapped invocation, and assembles the durable result
// record (§4.D "Scope isolation", "Per-case invocation").
func (ex *Executor) runCase(ctx context.Context, runID string, entry plan.Entry, p provider.Provider, retryer *retryer, c benchmark.Case) durability.RunCaseResult {
	scope := provider.ScopeContext{
		UserID:    "user_" + runID,
		RunID:     runID,
		SessionID: fmt.Sprintf("%s_%s_%s", entry.ProviderName, entry.BenchmarkName, c.ID),
		Namespace: "runner_" + runID,
	}

	if ex.limiter != nil {
		if err := ex.limiter.Wait(ctx); err != nil {
			return durability.RunCaseResult{
				RunID: runID, ProviderName: entry.ProviderName, BenchmarkName: entry.BenchmarkName,
				CaseID: c.ID, Status: string(benchmark.StatusError), Error: err.Error(),
				CompletedAt: time.Now().UTC(),
			}
		}
	}

	benchmarkEntry, _ := ex.Benchmarks.Lookup(entry.BenchmarkName)

	start := time.Now()
	res, history, err := retryer.run(ctx, func(ctx context.Context) (benchmark.Result, error) {
		return benchmarkEntry.Benchmark.RunCase(ctx, p, scope, c)
	})
	durationMs := time.Since(start).Milliseconds()

	attemptRecords := make([]durability.AttemptRecord, len(history))
	copy(attemptRecords, history)

	status := string(benchmark.StatusError)
	var scores map[string]float64
	var errMsg string
	if err != nil {
		errMsg = err.Error()
	} else {
		status = string(res.Status)
		scores = res.Scores
		errMsg = res.Error
	}

	if ex.Metrics != nil {
		ex.Metrics.observe(entry.ProviderName, entry.BenchmarkName, status, durationMs)
	}

	return durability.RunCaseResult{
		RunID:         runID,
		ProviderName:  entry.ProviderName,
		BenchmarkName: entry.BenchmarkName,
		CaseID:        c.ID,
		Status:        status,
		Scores:        scores,
		DurationMs:    durationMs,
		Error:         errMsg,
		RetryHistory:  attemptRecords,
		CompletedAt:   time.Now().UTC(),
	}
}
