// Package plan resolves a CLI/programmatic selection against the registries
// into a deterministic RunPlan (§4.C).
package plan

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/sdamache/memorybench/pkg/registry"
)

// Selection is the user's choice of providers, benchmarks, and run
// parameters (§6 "CLI surface").
type Selection struct {
	Providers   []string
	Benchmarks  []string
	Concurrency int
}

// SkipReason explains why a plan entry was marked ineligible (§3).
type SkipReason struct {
	MissingCapabilities []string
	Message             string
}

// Entry is one (provider, benchmark) pair in a RunPlan (§3 RunPlanEntry).
type Entry struct {
	ProviderName string
	BenchmarkName string
	Eligible     bool
	SkipReason   *SkipReason
}

// Plan is the deterministic output of Build (§3 RunPlan).
type Plan struct {
	RunID         string
	Timestamp     string
	Entries       []Entry
	EligibleCount int
	SkippedCount  int
	Concurrency   int
}

// UnknownNameError reports a selection of a name absent from the registry,
// enumerating known names so the caller can render a precise message
// (§7 "Unknown names produce an enumerated list of known names").
type UnknownNameError struct {
	Kind  string // "provider" or "benchmark"
	Name  string
	Known []string
}

func (e *UnknownNameError) Error() string {
	return fmt.Sprintf("plan: unknown %s %q (known: %s)", e.Kind, e.Name, strings.Join(e.Known, ", "))
}

// Build resolves a selection against the registries into a RunPlan
// (§4.C steps 1-7). It is pure with respect to registry state: identical
// inputs yield an identical entries sequence (§8 invariant 2), aside from
// the freshly minted run_id/timestamp.
func Build(ctx context.Context, sel Selection, providers *registry.Providers, benchmarks *registry.Benchmarks, defaultConcurrency int) (*Plan, error) {
	if len(sel.Providers) == 0 {
		return nil, fmt.Errorf("plan: selection must name at least one provider")
	}
	if len(sel.Benchmarks) == 0 {
		return nil, fmt.Errorf("plan: selection must name at least one benchmark")
	}

	for _, name := range sel.Providers {
		if _, ok := providers.Lookup(name); !ok {
			return nil, &UnknownNameError{Kind: "provider", Name: name, Known: providers.Names()}
		}
	}
	for _, name := range sel.Benchmarks {
		if _, ok := benchmarks.Lookup(name); !ok {
			return nil, &UnknownNameError{Kind: "benchmark", Name: name, Known: benchmarks.Names()}
		}
	}

	providerNames := append([]string(nil), sel.Providers...)
	benchmarkNames := append([]string(nil), sel.Benchmarks...)
	sort.Strings(providerNames)
	sort.Strings(benchmarkNames)

	concurrency := sel.Concurrency
	if concurrency <= 0 {
		concurrency = defaultConcurrency
	}
	if concurrency <= 0 {
		concurrency = 1
	}

	var entries []Entry
	eligible, skipped := 0, 0
	for _, pname := range providerNames {
		pEntry, _ := providers.Lookup(pname)
		caps, err := pEntry.Provider.GetCapabilities(ctx)
		if err != nil {
			return nil, fmt.Errorf("plan: getting capabilities for provider %q: %w", pname, err)
		}

		for _, bname := range benchmarkNames {
			bEntry, _ := benchmarks.Lookup(bname)
			meta := bEntry.Benchmark.Meta()

			var missing []string
			for _, reqCap := range meta.RequiredCapabilities {
				if !caps.Has(reqCap) {
					missing = append(missing, reqCap)
				}
			}

			entry := Entry{ProviderName: pname, BenchmarkName: bname, Eligible: len(missing) == 0}
			if len(missing) > 0 {
				entry.SkipReason = &SkipReason{
					MissingCapabilities: missing,
					Message:             fmt.Sprintf("Provider '%s' lacks required capability: %s", pname, strings.Join(missing, ", ")),
				}
				skipped++
			} else {
				eligible++
			}
			entries = append(entries, entry)
		}
	}

	return &Plan{
		RunID:         uuid.NewString(),
		Timestamp:     time.Now().UTC().Format(time.RFC3339),
		Entries:       entries,
		EligibleCount: eligible,
		SkippedCount:  skipped,
		Concurrency:   concurrency,
	}, nil
}
