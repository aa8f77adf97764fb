// Package durability implements the crash-safe run record: atomic JSON
// writes, an append-only results log, checkpoint/resume validation, and
// aggregate summarization (§4.E).
package durability

import (
	"fmt"
	"strings"
	"time"
)

// Selections is the (providers, benchmarks) pair a run was invoked with;
// used both in the manifest and for resume's set-equality check.
type Selections struct {
	Providers  []string `json:"providers"`
	Benchmarks []string `json:"benchmarks"`
}

// CompletedEntry records the terminal status of one finished case.
type CompletedEntry struct {
	Status      string    `json:"status"`
	CompletedAt time.Time `json:"completed_at"`
}

// Checkpoint is the v1 resumable progress snapshot (§3 "Checkpoint v1").
type Checkpoint struct {
	Version        int                       `json:"version"`
	RunID          string                    `json:"run_id"`
	CreatedAt      time.Time                 `json:"created_at"`
	UpdatedAt      time.Time                 `json:"updated_at"`
	Selections     Selections                `json:"selections"`
	Completed      map[string]CompletedEntry `json:"completed"`
	TotalCases     int                       `json:"total_cases"`
	CompletedCount int                       `json:"completed_count"`
}

// NewCheckpoint builds the initial checkpoint for a fresh run (§4.E "create").
func NewCheckpoint(runID string, selections Selections, totalCases int) *Checkpoint {
	now := time.Now().UTC()
	return &Checkpoint{
		Version:        1,
		RunID:          runID,
		CreatedAt:      now,
		UpdatedAt:      now,
		Selections:     selections,
		Completed:      make(map[string]CompletedEntry),
		TotalCases:     totalCases,
		CompletedCount: 0,
	}
}

// RecordCompletion returns a copy of the checkpoint with case_key marked
// complete (§4.E "recordCompletion"). The receiver is not mutated so callers
// can persist the returned snapshot atomically before swapping it in.
func (c *Checkpoint) RecordCompletion(caseKey, status string) *Checkpoint {
	next := *c
	completed := make(map[string]CompletedEntry, len(c.Completed)+1)
	for k, v := range c.Completed {
		completed[k] = v
	}
	completed[caseKey] = CompletedEntry{Status: status, CompletedAt: time.Now().UTC()}
	next.Completed = completed
	next.CompletedCount = len(completed)
	next.UpdatedAt = time.Now().UTC()
	return &next
}

// CompletedKeys returns the set of case keys already recorded, used by the
// executor to skip finished cases on resume (§4.E "getCompletedKeys").
func (c *Checkpoint) CompletedKeys() map[string]bool {
	out := make(map[string]bool, len(c.Completed))
	for k := range c.Completed {
		out[k] = true
	}
	return out
}

// Validate checks the checkpoint invariants of §8 property 1: version=1 and
// completed_count == |completed|.
func (c *Checkpoint) Validate() error {
	if c.Version != 1 {
		return fmt.Errorf("durability: unsupported checkpoint version %d", c.Version)
	}
	if c.CompletedCount != len(c.Completed) {
		return fmt.Errorf("durability: completed_count (%d) does not match |completed| (%d)", c.CompletedCount, len(c.Completed))
	}
	return nil
}

// SelectionDiff is the four-way diff §4.E's validateSelections returns.
type SelectionDiff struct {
	MissingProviders  []string
	ExtraProviders    []string
	MissingBenchmarks []string
	ExtraBenchmarks   []string
}

// Equal reports whether the diff represents an exact set match on both
// dimensions (resume requires this).
func (d SelectionDiff) Equal() bool {
	return len(d.MissingProviders) == 0 && len(d.ExtraProviders) == 0 &&
		len(d.MissingBenchmarks) == 0 && len(d.ExtraBenchmarks) == 0
}

// ValidateSelections computes the four-way diff between the checkpoint's
// recorded selection and the one supplied for a resume attempt.
func (c *Checkpoint) ValidateSelections(current Selections) SelectionDiff {
	return SelectionDiff{
		MissingProviders:  setDiff(c.Selections.Providers, current.Providers),
		ExtraProviders:    setDiff(current.Providers, c.Selections.Providers),
		MissingBenchmarks: setDiff(c.Selections.Benchmarks, current.Benchmarks),
		ExtraBenchmarks:   setDiff(current.Benchmarks, c.Selections.Benchmarks),
	}
}

func setDiff(a, b []string) []string {
	inB := make(map[string]bool, len(b))
	for _, v := range b {
		inB[v] = true
	}
	var out []string
	for _, v := range a {
		if !inB[v] {
			out = append(out, v)
		}
	}
	return out
}

// BuildCaseKey joins (provider, benchmark, case) into the checkpoint/results
// key "{provider}|{benchmark}|{case_id}" (§3 "Checkpoint v1").
func BuildCaseKey(provider, benchmark, caseID string) string {
	return provider + "|" + benchmark + "|" + caseID
}

// ParseCaseKey is BuildCaseKey's inverse (§8 round-trip law 6). It assumes
// none of the three components contains "|".
func ParseCaseKey(key string) (provider, benchmark, caseID string, err error) {
	parts := strings.SplitN(key, "|", 3)
	if len(parts) != 3 {
		return "", "", "", fmt.Errorf("durability: malformed case key %q", key)
	}
	return parts[0], parts[1], parts[2], nil
}

// ProviderProvenance is one entry of RunManifest.Providers.
type ProviderProvenance struct {
	Name         string `json:"name"`
	Version      string `json:"version"`
	ManifestHash string `json:"manifest_hash"`
}

// BenchmarkProvenance is one entry of RunManifest.Benchmarks.
type BenchmarkProvenance struct {
	Name      string `json:"name"`
	Version   string `json:"version"`
	CaseCount int    `json:"case_count"`
}

// Environment captures the runtime the run executed under.
type Environment struct {
	RuntimeName    string `json:"runtime_name"`
	RuntimeVersion string `json:"runtime_version"`
	OS             string `json:"os"`
	Arch           string `json:"arch"`
}

// RunManifest is the v1 provenance document written once at run start
// (§3 "RunManifest v1").
type RunManifest struct {
	Version     int                   `json:"version"`
	RunID       string                `json:"run_id"`
	Timestamp   string                `json:"timestamp"`
	GitCommit   string                `json:"git_commit,omitempty"`
	GitBranch   string                `json:"git_branch,omitempty"`
	Selections  Selections            `json:"selections"`
	Providers   []ProviderProvenance  `json:"providers"`
	Benchmarks  []BenchmarkProvenance `json:"benchmarks"`
	Environment Environment           `json:"environment"`
	CLIArgs     []string              `json:"cli_args"`
}

// StatusCounts tallies case outcomes.
type StatusCounts struct {
	Cases   int `json:"cases"`
	Passed  int `json:"passed"`
	Failed  int `json:"failed"`
	Skipped int `json:"skipped"`
	Errors  int `json:"errors"`
}

// CombinationSummary is the per-(provider,benchmark) aggregate (§3
// "MetricsSummary v1").
type CombinationSummary struct {
	Provider      string             `json:"provider"`
	Benchmark     string             `json:"benchmark"`
	Counts        StatusCounts       `json:"counts"`
	DurationMs    int64              `json:"duration_ms"`
	ScoreAverages map[string]float64 `json:"score_averages"`
}

// MetricsSummary is the v1 aggregate document written once the run completes
// (§3 "MetricsSummary v1").
type MetricsSummary struct {
	Version       int                  `json:"version"`
	RunID         string               `json:"run_id"`
	GeneratedAt   time.Time            `json:"generated_at"`
	Totals        StatusCounts         `json:"totals"`
	TotalDuration int64                `json:"total_duration_ms"`
	ByCombination []CombinationSummary `json:"by_combination"`
}

// RunCaseResult is a benchmark.Result augmented with run-level context
// (§3 "RunCaseResult").
type RunCaseResult struct {
	RunID             string             `json:"run_id"`
	ProviderName      string             `json:"provider_name"`
	BenchmarkName     string             `json:"benchmark_name"`
	CaseID            string             `json:"case_id"`
	Status            string             `json:"status"`
	Scores            map[string]float64 `json:"scores,omitempty"`
	DurationMs        int64              `json:"duration_ms"`
	Error             string             `json:"error,omitempty"`
	OperationTimings  map[string]int64   `json:"operation_timings,omitempty"`
	RetryHistory      []AttemptRecord    `json:"retry_history,omitempty"`
	CompletedAt       time.Time          `json:"completed_at"`
}

// AttemptRecord is one retry attempt logged by the executor's backoff policy
// (§4.D "Attempt records").
type AttemptRecord struct {
	Attempt   int    `json:"attempt"`
	Category  string `json:"category"`
	Message   string `json:"message"`
	Timestamp string `json:"timestamp"`
	DelayMs   int64  `json:"delay_ms"`
}
