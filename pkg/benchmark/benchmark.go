// Package benchmark defines the Benchmark contract the engine runs against,
// plus the manifest-driven factory (§4.B) that builds one from a JSON
// manifest + data file.
package benchmark

import (
	"context"

	"github.com/sdamache/memorybench/pkg/provider"
)

// Case is one unit of work inside a benchmark: a question plus the inputs to
// ingest and the expected answer.
type Case struct {
	ID          string
	Description string
	Input       map[string]any
	Expected    any
	Metadata    map[string]any
}

// Status is the outcome of running a single case.
type Status string

const (
	StatusPass  Status = "pass"
	StatusFail  Status = "fail"
	StatusSkip  Status = "skip"
	StatusError Status = "error"
)

// Result is the per-case outcome a Benchmark's RunCase returns.
type Result struct {
	CaseID     string
	Status     Status
	Scores     map[string]float64
	DurationMs int64
	Error      string
	Artifacts  map[string]any
}

// Meta describes a benchmark's identity and declared requirements.
type Meta struct {
	Name                 string
	Version              string
	Description          string
	RequiredCapabilities []string
}

// Benchmark is the interface the engine consumes. Cases() must be finite and
// restartable: calling it twice yields two independent iterations in the
// same order.
type Benchmark interface {
	Meta() Meta
	Cases(ctx context.Context) ([]Case, error)
	RunCase(ctx context.Context, p provider.Provider, scope provider.ScopeContext, c Case) (Result, error)
}
