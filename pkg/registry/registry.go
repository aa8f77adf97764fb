// Package registry holds the process-scoped provider and benchmark
// registries (§4.A). Each is an immutable-after-init lookup table keyed by
// name; listing is lexicographic so selection/gating error messages are
// deterministic.
package registry

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/sdamache/memorybench/pkg/benchmark"
	"github.com/sdamache/memorybench/pkg/provider"
)

// ProviderEntry pairs a registered Provider with its provenance.
type ProviderEntry struct {
	Name         string
	Provider     provider.Provider
	ManifestHash string
}

// BenchmarkEntry pairs a registered Benchmark with its provenance.
type BenchmarkEntry struct {
	Name         string
	Benchmark    benchmark.Benchmark
	ManifestHash string
}

// Providers is the process-wide provider registry.
type Providers struct {
	mu      sync.RWMutex
	entries map[string]ProviderEntry
}

// NewProviders creates an empty provider registry.
func NewProviders() *Providers {
	return &Providers{entries: make(map[string]ProviderEntry)}
}

// Register adds a provider under name, computing its manifest hash from an
// arbitrary provenance document (typically its declared capabilities or
// config). Registration is expected to happen once at startup; it is not
// safe to call concurrently with Lookup/Names in a way that races init, but
// the mutex makes individual calls safe.
func (r *Providers) Register(name string, p provider.Provider, provenance any) error {
	hash, err := CanonicalHash(provenance)
	if err != nil {
		return fmt.Errorf("registry: hashing provenance for provider %q: %w", name, err)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[name] = ProviderEntry{Name: name, Provider: p, ManifestHash: hash}
	return nil
}

// Lookup returns the entry for name, or ok=false on miss. Callers treat a
// miss as a fatal selection error (§4.A).
func (r *Providers) Lookup(name string) (ProviderEntry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[name]
	return e, ok
}

// Names returns all registered provider names in lexicographic order.
func (r *Providers) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.entries))
	for n := range r.entries {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Benchmarks is the process-wide benchmark registry.
type Benchmarks struct {
	mu      sync.RWMutex
	entries map[string]BenchmarkEntry
}

// NewBenchmarks creates an empty benchmark registry.
func NewBenchmarks() *Benchmarks {
	return &Benchmarks{entries: make(map[string]BenchmarkEntry)}
}

// Register adds a benchmark under name with a manifest-hash provenance
// document (typically the parsed benchmark.Manifest).
func (r *Benchmarks) Register(name string, b benchmark.Benchmark, provenance any) error {
	hash, err := CanonicalHash(provenance)
	if err != nil {
		return fmt.Errorf("registry: hashing provenance for benchmark %q: %w", name, err)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[name] = BenchmarkEntry{Name: name, Benchmark: b, ManifestHash: hash}
	return nil
}

// Lookup returns the entry for name, or ok=false on miss.
func (r *Benchmarks) Lookup(name string) (BenchmarkEntry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[name]
	return e, ok
}

// Names returns all registered benchmark names in lexicographic order.
func (r *Benchmarks) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.entries))
	for n := range r.entries {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// CanonicalHash computes a SHA-256 hash over the canonical-JSON encoding of
// v (object keys sorted), giving manifests a stable provenance fingerprint
// for the run manifest (§4.A).
func CanonicalHash(v any) (string, error) {
	canonical, err := canonicalize(v)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(canonical)
	return fmt.Sprintf("%x", sum), nil
}

// canonicalize round-trips v through encoding/json into a map[string]any (or
// passes through scalars/slices) and re-marshals it; Go's encoding/json
// already sorts map keys on marshal, so the round trip is sufficient to
// normalize field order regardless of the source struct's declaration order.
func canonicalize(v any) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var generic any
	if err := json.Unmarshal(raw, &generic); err != nil {
		return nil, err
	}
	return json.Marshal(generic)
}
