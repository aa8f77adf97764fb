package executor

import (
	"sync"

	"github.com/sdamache/memorybench/pkg/benchmark"
	"github.com/sdamache/memorybench/pkg/plan"
)

// EntryProgress is the live counter set for one plan entry, exposed by the
// optional status server's GET /status (§4.F).
type EntryProgress struct {
	ProviderName  string `json:"provider_name"`
	BenchmarkName string `json:"benchmark_name"`
	Eligible      bool   `json:"eligible"`
	TotalCases    int    `json:"total_cases"`
	Completed     int    `json:"completed"`
	Passed        int    `json:"passed"`
	Failed        int    `json:"failed"`
	Skipped       int    `json:"skipped"`
	Errors        int    `json:"errors"`
}

// Progress tracks live per-entry counters for a run, safe for concurrent
// updates from case-dispatch goroutines and concurrent reads from an HTTP
// handler.
type Progress struct {
	mu      sync.RWMutex
	runID   string
	entries []EntryProgress
	index   map[string]int // "provider|benchmark" -> index into entries
}

// NewProgress seeds one EntryProgress per plan entry, with TotalCases left
// at zero until the executor knows each benchmark's actual case count.
func NewProgress(runID string, p *plan.Plan) *Progress {
	pr := &Progress{
		runID: runID,
		index: make(map[string]int, len(p.Entries)),
	}
	for _, e := range p.Entries {
		pr.index[e.ProviderName+"|"+e.BenchmarkName] = len(pr.entries)
		pr.entries = append(pr.entries, EntryProgress{
			ProviderName:  e.ProviderName,
			BenchmarkName: e.BenchmarkName,
			Eligible:      e.Eligible,
		})
	}
	return pr
}

// SetTotal records how many cases an entry will run, once known.
func (p *Progress) SetTotal(providerName, benchmarkName string, total int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if i, ok := p.index[providerName+"|"+benchmarkName]; ok {
		p.entries[i].TotalCases = total
	}
}

// RecordResult increments the appropriate counters for one finished case.
func (p *Progress) RecordResult(providerName, benchmarkName string, status benchmark.Status) {
	p.mu.Lock()
	defer p.mu.Unlock()
	i, ok := p.index[providerName+"|"+benchmarkName]
	if !ok {
		return
	}
	e := &p.entries[i]
	e.Completed++
	switch status {
	case benchmark.StatusPass:
		e.Passed++
	case benchmark.StatusFail:
		e.Failed++
	case benchmark.StatusSkip:
		e.Skipped++
	case benchmark.StatusError:
		e.Errors++
	}
}

// Snapshot returns a deep copy of the current per-entry counters, safe to
// serialize by a concurrent HTTP handler.
func (p *Progress) Snapshot() []EntryProgress {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]EntryProgress, len(p.entries))
	copy(out, p.entries)
	return out
}

// RunID returns the run this progress tracker belongs to.
func (p *Progress) RunID() string {
	return p.runID
}
