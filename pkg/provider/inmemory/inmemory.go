// Package inmemory is a reference Provider backed by an in-process map,
// standing in for a real memory-system adapter (vector stores, hosted
// APIs, graph memories) so the reference binary and the test suite have
// something concrete to register without depending on any external
// service. Retrieval scoring is a plain token-overlap heuristic, not a
// production ranking function.
package inmemory

import (
	"context"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/sdamache/memorybench/pkg/provider"
)

// Version identifies this adapter's behavior for run manifests; bump it
// whenever the scoring heuristic or capability declaration changes.
const Version = "1.0.0"

// Provider stores memories per scope key ("userID/runID/sessionID") in a
// plain map guarded by a mutex. It declares every optional operation
// supported, so it exercises the engine's full capability surface.
type Provider struct {
	mu      sync.Mutex
	byScope map[string]map[string]provider.MemoryRecord
	nextID  int
}

// New returns an empty in-memory provider.
func New() *Provider {
	return &Provider{byScope: make(map[string]map[string]provider.MemoryRecord)}
}

func scopeKey(s provider.ScopeContext) string {
	return s.UserID + "/" + s.RunID + "/" + s.SessionID
}

func (p *Provider) bucket(key string) map[string]provider.MemoryRecord {
	b, ok := p.byScope[key]
	if !ok {
		b = make(map[string]provider.MemoryRecord)
		p.byScope[key] = b
	}
	return b
}

// AddMemory stores content under a new ID scoped to scope.
func (p *Provider) AddMemory(_ context.Context, scope provider.ScopeContext, content string, metadata map[string]any) (provider.MemoryRecord, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.nextID++
	rec := provider.MemoryRecord{
		ID:        "mem-" + strconv.Itoa(p.nextID),
		Context:   content,
		Metadata:  metadata,
		Timestamp: time.Now().UnixMilli(),
	}
	p.bucket(scopeKey(scope))[rec.ID] = rec
	return rec, nil
}

// RetrieveMemory ranks stored memories in scope by token overlap with query
// and returns the top `limit`.
func (p *Provider) RetrieveMemory(_ context.Context, scope provider.ScopeContext, query string, limit int) ([]provider.RetrievalItem, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	queryTokens := tokenize(query)
	bucket := p.bucket(scopeKey(scope))

	items := make([]provider.RetrievalItem, 0, len(bucket))
	for _, rec := range bucket {
		score := overlapScore(queryTokens, tokenize(rec.Context))
		items = append(items, provider.RetrievalItem{Record: rec, Score: score, MatchContext: rec.Context})
	}

	sort.Slice(items, func(i, j int) bool {
		if items[i].Score != items[j].Score {
			return items[i].Score > items[j].Score
		}
		return items[i].Record.ID < items[j].Record.ID
	})

	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}
	return items, nil
}

// DeleteMemory removes id from scope, reporting whether it existed.
func (p *Provider) DeleteMemory(_ context.Context, scope provider.ScopeContext, id string) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	bucket := p.bucket(scopeKey(scope))
	if _, ok := bucket[id]; !ok {
		return false, nil
	}
	delete(bucket, id)
	return true, nil
}

// UpdateMemory overwrites id's content/metadata, leaving its timestamp
// refreshed.
func (p *Provider) UpdateMemory(_ context.Context, scope provider.ScopeContext, id, content string, metadata map[string]any) (provider.MemoryRecord, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	bucket := p.bucket(scopeKey(scope))
	rec, ok := bucket[id]
	if !ok {
		return provider.MemoryRecord{}, provider.ErrUnsupported
	}
	rec.Context = content
	rec.Metadata = metadata
	rec.Timestamp = time.Now().UnixMilli()
	bucket[id] = rec
	return rec, nil
}

// ListMemories returns every record currently stored in scope, sorted by ID
// for deterministic test output.
func (p *Provider) ListMemories(_ context.Context, scope provider.ScopeContext) ([]provider.MemoryRecord, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	bucket := p.bucket(scopeKey(scope))
	out := make([]provider.MemoryRecord, 0, len(bucket))
	for _, rec := range bucket {
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// ResetScope discards every memory recorded under scope.
func (p *Provider) ResetScope(_ context.Context, scope provider.ScopeContext) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.byScope, scopeKey(scope))
	return nil
}

// GetCapabilities declares every core and optional operation; the system and
// intelligence flags are left false.
func (p *Provider) GetCapabilities(_ context.Context) (provider.Capabilities, error) {
	return provider.Capabilities{
		CoreOperations: provider.CoreOperations{
			AddMemory:      true,
			RetrieveMemory: true,
			DeleteMemory:   true,
		},
		OptionalOperations: provider.OptionalOperations{
			UpdateMemory:    true,
			ListMemories:    true,
			ResetScope:      true,
			GetCapabilities: true,
		},
	}, nil
}

func tokenize(s string) map[string]bool {
	out := make(map[string]bool)
	for _, f := range strings.Fields(strings.ToLower(s)) {
		out[strings.Trim(f, ".,!?;:\"'")] = true
	}
	return out
}

func overlapScore(query, candidate map[string]bool) float64 {
	if len(query) == 0 {
		return 0
	}
	hits := 0
	for tok := range query {
		if candidate[tok] {
			hits++
		}
	}
	return float64(hits) / float64(len(query))
}
