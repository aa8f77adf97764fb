package durability

import (
	"context"
	"log/slog"
	"os/exec"
	"runtime"
	"sort"
	"strings"
	"time"
)

// BuildSummary groups results by (provider, benchmark) and computes the
// aggregate statistics of §4.E "Summary builder": per-group counts,
// summed duration, and per-score-key means (a metric missing from some
// records does not reduce the denominator of other metrics).
func BuildSummary(runID string, results []RunCaseResult) *MetricsSummary {
	type acc struct {
		counts     StatusCounts
		durationMs int64
		sums       map[string]float64
		counted    map[string]int
	}
	groups := make(map[string]*acc)
	var order []string

	for _, r := range results {
		key := r.ProviderName + "|" + r.BenchmarkName
		g, ok := groups[key]
		if !ok {
			g = &acc{sums: make(map[string]float64), counted: make(map[string]int)}
			groups[key] = g
			order = append(order, key)
		}

		g.counts.Cases++
		switch r.Status {
		case "pass":
			g.counts.Passed++
		case "fail":
			g.counts.Failed++
		case "skip":
			g.counts.Skipped++
		case "error":
			g.counts.Errors++
		}
		g.durationMs += r.DurationMs

		for k, v := range r.Scores {
			g.sums[k] += v
			g.counted[k]++
		}
	}

	sort.Strings(order)

	var totals StatusCounts
	var totalDuration int64
	combos := make([]CombinationSummary, 0, len(order))
	for _, key := range order {
		g := groups[key]
		parts := strings.SplitN(key, "|", 2)

		averages := make(map[string]float64, len(g.sums))
		for k, sum := range g.sums {
			averages[k] = sum / float64(g.counted[k])
		}

		combos = append(combos, CombinationSummary{
			Provider:      parts[0],
			Benchmark:     parts[1],
			Counts:        g.counts,
			DurationMs:    g.durationMs,
			ScoreAverages: averages,
		})

		totals.Cases += g.counts.Cases
		totals.Passed += g.counts.Passed
		totals.Failed += g.counts.Failed
		totals.Skipped += g.counts.Skipped
		totals.Errors += g.counts.Errors
		totalDuration += g.durationMs
	}

	return &MetricsSummary{
		Version:       1,
		RunID:         runID,
		GeneratedAt:   time.Now().UTC(),
		Totals:        totals,
		TotalDuration: totalDuration,
		ByCombination: combos,
	}
}

// CaptureEnvironment records the runtime/OS/arch triple for the manifest.
func CaptureEnvironment(runtimeName, runtimeVersion string) Environment {
	return Environment{
		RuntimeName:    runtimeName,
		RuntimeVersion: runtimeVersion,
		OS:             runtime.GOOS,
		Arch:           runtime.GOARCH,
	}
}

// GitProvenance shells out to git for the current commit and branch.
// Best-effort: failures leave both fields empty and are never fatal to the
// run (§4.E "Git provenance capture ... best-effort").
func GitProvenance(ctx context.Context) (commit, branch string) {
	commit = gitOutput(ctx, "rev-parse", "HEAD")
	branch = gitOutput(ctx, "rev-parse", "--abbrev-ref", "HEAD")
	return commit, branch
}

func gitOutput(ctx context.Context, args ...string) string {
	cmd := exec.CommandContext(ctx, "git", args...)
	out, err := cmd.Output()
	if err != nil {
		slog.Debug("git provenance capture failed, leaving field empty", "args", args, "error", err)
		return ""
	}
	return strings.TrimSpace(string(out))
}
