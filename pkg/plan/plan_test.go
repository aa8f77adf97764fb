package plan_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sdamache/memorybench/pkg/benchmark"
	"github.com/sdamache/memorybench/pkg/plan"
	"github.com/sdamache/memorybench/pkg/provider"
	"github.com/sdamache/memorybench/pkg/registry"
)

type stubProvider struct {
	caps provider.Capabilities
}

func (s *stubProvider) AddMemory(context.Context, provider.ScopeContext, string, map[string]any) (provider.MemoryRecord, error) {
	return provider.MemoryRecord{}, nil
}
func (s *stubProvider) RetrieveMemory(context.Context, provider.ScopeContext, string, int) ([]provider.RetrievalItem, error) {
	return nil, nil
}
func (s *stubProvider) DeleteMemory(context.Context, provider.ScopeContext, string) (bool, error) {
	return true, nil
}
func (s *stubProvider) UpdateMemory(context.Context, provider.ScopeContext, string, string, map[string]any) (provider.MemoryRecord, error) {
	return provider.MemoryRecord{}, provider.ErrUnsupported
}
func (s *stubProvider) ListMemories(context.Context, provider.ScopeContext) ([]provider.MemoryRecord, error) {
	return nil, provider.ErrUnsupported
}
func (s *stubProvider) ResetScope(context.Context, provider.ScopeContext) error { return nil }
func (s *stubProvider) GetCapabilities(context.Context) (provider.Capabilities, error) {
	return s.caps, nil
}

type stubBenchmark struct {
	name     string
	required []string
}

func (b *stubBenchmark) Meta() benchmark.Meta {
	return benchmark.Meta{Name: b.name, Version: "1.0.0", RequiredCapabilities: b.required}
}
func (b *stubBenchmark) Cases(context.Context) ([]benchmark.Case, error) { return nil, nil }
func (b *stubBenchmark) RunCase(context.Context, provider.Provider, provider.ScopeContext, benchmark.Case) (benchmark.Result, error) {
	return benchmark.Result{}, nil
}

func fullCapabilities() provider.Capabilities {
	return provider.Capabilities{CoreOperations: provider.CoreOperations{AddMemory: true, RetrieveMemory: true, DeleteMemory: true}}
}

func TestBuild_CartesianExpansionIsSortedAndDeterministic(t *testing.T) {
	providers := registry.NewProviders()
	require.NoError(t, providers.Register("zeta", &stubProvider{caps: fullCapabilities()}, fullCapabilities()))
	require.NoError(t, providers.Register("alpha", &stubProvider{caps: fullCapabilities()}, fullCapabilities()))

	benchmarks := registry.NewBenchmarks()
	require.NoError(t, benchmarks.Register("bravo", &stubBenchmark{name: "bravo"}, benchmark.Meta{Name: "bravo"}))
	require.NoError(t, benchmarks.Register("yankee", &stubBenchmark{name: "yankee"}, benchmark.Meta{Name: "yankee"}))

	p, err := plan.Build(context.Background(), plan.Selection{
		Providers:  []string{"zeta", "alpha"},
		Benchmarks: []string{"yankee", "bravo"},
	}, providers, benchmarks, 4)
	require.NoError(t, err)

	require.Len(t, p.Entries, 4)
	assert.Equal(t, "alpha", p.Entries[0].ProviderName)
	assert.Equal(t, "bravo", p.Entries[0].BenchmarkName)
	assert.Equal(t, "alpha", p.Entries[1].ProviderName)
	assert.Equal(t, "yankee", p.Entries[1].BenchmarkName)
	assert.Equal(t, "zeta", p.Entries[2].ProviderName)
	assert.Equal(t, "bravo", p.Entries[2].BenchmarkName)
	assert.Equal(t, "zeta", p.Entries[3].ProviderName)
	assert.Equal(t, "yankee", p.Entries[3].BenchmarkName)
	assert.Equal(t, 4, p.EligibleCount)
	assert.Equal(t, 0, p.SkippedCount)
	assert.NotEmpty(t, p.RunID)
	assert.NotEmpty(t, p.Timestamp)
}

func TestBuild_GatesOnMissingCapability(t *testing.T) {
	providers := registry.NewProviders()
	require.NoError(t, providers.Register("alpha", &stubProvider{caps: fullCapabilities()}, fullCapabilities()))

	benchmarks := registry.NewBenchmarks()
	require.NoError(t, benchmarks.Register("needs-graph", &stubBenchmark{name: "needs-graph", required: []string{"graph_support"}}, benchmark.Meta{}))

	p, err := plan.Build(context.Background(), plan.Selection{
		Providers: []string{"alpha"}, Benchmarks: []string{"needs-graph"},
	}, providers, benchmarks, 1)
	require.NoError(t, err)

	require.Len(t, p.Entries, 1)
	assert.False(t, p.Entries[0].Eligible)
	require.NotNil(t, p.Entries[0].SkipReason)
	assert.Contains(t, p.Entries[0].SkipReason.MissingCapabilities, "graph_support")
	assert.Equal(t, 0, p.EligibleCount)
	assert.Equal(t, 1, p.SkippedCount)
}

func TestBuild_UnknownProviderReturnsEnumeratedError(t *testing.T) {
	providers := registry.NewProviders()
	require.NoError(t, providers.Register("alpha", &stubProvider{caps: fullCapabilities()}, fullCapabilities()))
	benchmarks := registry.NewBenchmarks()
	require.NoError(t, benchmarks.Register("bravo", &stubBenchmark{name: "bravo"}, benchmark.Meta{}))

	_, err := plan.Build(context.Background(), plan.Selection{
		Providers: []string{"ghost"}, Benchmarks: []string{"bravo"},
	}, providers, benchmarks, 1)
	require.Error(t, err)

	var unknown *plan.UnknownNameError
	require.ErrorAs(t, err, &unknown)
	assert.Equal(t, "provider", unknown.Kind)
	assert.Equal(t, "ghost", unknown.Name)
	assert.Equal(t, []string{"alpha"}, unknown.Known)
}

func TestBuild_ConcurrencyDefaultsAndOverrides(t *testing.T) {
	providers := registry.NewProviders()
	require.NoError(t, providers.Register("alpha", &stubProvider{caps: fullCapabilities()}, fullCapabilities()))
	benchmarks := registry.NewBenchmarks()
	require.NoError(t, benchmarks.Register("bravo", &stubBenchmark{name: "bravo"}, benchmark.Meta{}))

	p, err := plan.Build(context.Background(), plan.Selection{
		Providers: []string{"alpha"}, Benchmarks: []string{"bravo"}, Concurrency: 0,
	}, providers, benchmarks, 7)
	require.NoError(t, err)
	assert.Equal(t, 7, p.Concurrency)

	p2, err := plan.Build(context.Background(), plan.Selection{
		Providers: []string{"alpha"}, Benchmarks: []string{"bravo"}, Concurrency: 3,
	}, providers, benchmarks, 7)
	require.NoError(t, err)
	assert.Equal(t, 3, p2.Concurrency)
}

func TestBuild_RequiresAtLeastOneProviderAndBenchmark(t *testing.T) {
	providers := registry.NewProviders()
	benchmarks := registry.NewBenchmarks()

	_, err := plan.Build(context.Background(), plan.Selection{Benchmarks: []string{"bravo"}}, providers, benchmarks, 1)
	assert.Error(t, err)

	_, err = plan.Build(context.Background(), plan.Selection{Providers: []string{"alpha"}}, providers, benchmarks, 1)
	assert.Error(t, err)
}
