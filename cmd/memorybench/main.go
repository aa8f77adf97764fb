// Command memorybench is the reference binary wiring configuration,
// registries, plan construction, the executor, and the durability layer
// into a runnable evaluation. It is minimal wiring, not a feature-complete
// CLI: a host embedding the engine programmatically would register its own
// provider adapters instead of the in-memory reference one below.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/sdamache/memorybench/pkg/benchmark"
	"github.com/sdamache/memorybench/pkg/benchmark/judge/httpjudge"
	"github.com/sdamache/memorybench/pkg/benchmark/synth/staticsynth"
	"github.com/sdamache/memorybench/pkg/config"
	"github.com/sdamache/memorybench/pkg/durability"
	"github.com/sdamache/memorybench/pkg/durability/pgstore"
	"github.com/sdamache/memorybench/pkg/executor"
	"github.com/sdamache/memorybench/pkg/plan"
	"github.com/sdamache/memorybench/pkg/provider/inmemory"
	"github.com/sdamache/memorybench/pkg/registry"
	"github.com/sdamache/memorybench/pkg/statusserver"
	"github.com/sdamache/memorybench/pkg/version"
)

func getEnv(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

func main() {
	configDir := flag.String("config-dir", getEnv("CONFIG_DIR", "./deploy/config"), "Path to configuration directory")
	providersFlag := flag.String("providers", "", "comma-separated provider names to evaluate (registers one in-memory reference instance per name)")
	benchmarksFlag := flag.String("benchmarks", "", "comma-separated benchmark names to evaluate (default: all discovered)")
	concurrency := flag.Int("concurrency", 0, "override the configured default concurrency (0 = use config)")
	resume := flag.String("resume", "", "run_id of a previous run to resume")
	flag.Parse()

	log.Printf("Starting %s", version.Full())

	envPath := filepath.Join(*configDir, ".env")
	if err := godotenv.Load(envPath); err != nil {
		log.Printf("Warning: could not load %s: %v", envPath, err)
		log.Printf("Continuing with existing environment variables...")
	} else {
		log.Printf("Loaded environment from %s", envPath)
	}

	cfg, err := config.Load(filepath.Join(*configDir, "config.yaml"))
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if *concurrency > 0 {
		cfg.ConcurrencyDefault = *concurrency
	}

	if *providersFlag == "" {
		log.Fatalf("-providers is required (comma-separated names)")
	}
	providerNames := splitNonEmpty(*providersFlag)

	ctx := context.Background()

	providers := registry.NewProviders()
	for _, name := range providerNames {
		p := inmemory.New()
		caps, err := p.GetCapabilities(ctx)
		if err != nil {
			log.Fatalf("Failed to read capabilities for provider %s: %v", name, err)
		}
		if err := providers.Register(name, p, caps); err != nil {
			log.Fatalf("Failed to register provider %s: %v", name, err)
		}
	}

	benchmarks := registry.NewBenchmarks()
	discovered, err := discoverBenchmarks(cfg.SearchRoots, cfg.Judge.TypeInstructionsDir)
	if err != nil {
		log.Fatalf("Failed to discover benchmarks: %v", err)
	}
	for name, b := range discovered {
		meta := b.Meta()
		if err := benchmarks.Register(name, b, meta); err != nil {
			log.Fatalf("Failed to register benchmark %s: %v", name, err)
		}
	}

	benchmarkNames := splitNonEmpty(*benchmarksFlag)
	if len(benchmarkNames) == 0 {
		benchmarkNames = benchmarks.Names()
	}
	if len(benchmarkNames) == 0 {
		log.Fatalf("No benchmarks discovered under search_roots %v and none given via -benchmarks", cfg.SearchRoots)
	}

	sel := plan.Selection{
		Providers:   providerNames,
		Benchmarks:  benchmarkNames,
		Concurrency: cfg.ConcurrencyDefault,
	}

	runPlan, err := plan.Build(ctx, sel, providers, benchmarks, cfg.ConcurrencyDefault)
	if err != nil {
		log.Fatalf("Failed to build run plan: %v", err)
	}
	if *resume != "" {
		// A resumed run keeps its original run_id, so results land in the
		// same run directory / rows as the interrupted run.
		runPlan.RunID = *resume
	}

	checkpointStore, resultsStore, closeStores, err := openDurability(ctx, cfg, runPlan.RunID)
	if err != nil {
		log.Fatalf("Failed to open durability backend: %v", err)
	}
	defer closeStores()

	durabilitySel := durability.Selections{Providers: providerNames, Benchmarks: benchmarkNames}

	var cp *durability.Checkpoint
	completed := map[string]bool{}
	if *resume != "" {
		cp, err = durability.Resume(ctx, checkpointStore, *resume, durabilitySel)
		if err != nil {
			log.Fatalf("Failed to resume run %s: %v", *resume, err)
		}
		runPlan.Timestamp = cp.CreatedAt.UTC().Format(time.RFC3339)
		completed = cp.CompletedKeys()
		log.Printf("Resuming run %s (%d cases already complete)", *resume, cp.CompletedCount)
	} else {
		totalCases, err := countEligibleCases(ctx, runPlan, providers, benchmarks)
		if err != nil {
			log.Fatalf("Failed to enumerate cases: %v", err)
		}
		cp = durability.NewCheckpoint(runPlan.RunID, durabilitySel, totalCases)
		if err := checkpointStore.Save(ctx, cp); err != nil {
			log.Fatalf("Failed to save initial checkpoint: %v", err)
		}
	}

	gitCommit, gitBranch := durability.GitProvenance(ctx)
	manifest := &durability.RunManifest{
		Version:     1,
		RunID:       runPlan.RunID,
		Timestamp:   runPlan.Timestamp,
		GitCommit:   gitCommit,
		GitBranch:   gitBranch,
		Selections:  durabilitySel,
		Environment: durability.CaptureEnvironment("go", strings.TrimPrefix(runtime.Version(), "go")),
		CLIArgs:     os.Args[1:],
	}
	for _, name := range providerNames {
		entry, _ := providers.Lookup(name)
		manifest.Providers = append(manifest.Providers, durability.ProviderProvenance{Name: name, Version: inmemory.Version, ManifestHash: entry.ManifestHash})
	}
	for _, name := range benchmarkNames {
		entry, ok := benchmarks.Lookup(name)
		if !ok {
			continue
		}
		cases, err := entry.Benchmark.Cases(ctx)
		if err != nil {
			log.Fatalf("Failed to enumerate cases for %s: %v", name, err)
		}
		manifest.Benchmarks = append(manifest.Benchmarks, durability.BenchmarkProvenance{
			Name:      name,
			Version:   entry.Benchmark.Meta().Version,
			CaseCount: len(cases),
		})
	}

	reg := prometheus.NewRegistry()
	metrics := executor.NewMetrics(reg)
	progress := executor.NewProgress(runPlan.RunID, runPlan)

	var statusSrv *statusserver.Server
	if cfg.StatusServer.Enabled {
		statusSrv = statusserver.New(cfg.StatusServer.Addr, runPlan, progress, reg)
		statusSrv.Start()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := statusSrv.Shutdown(shutdownCtx); err != nil {
				slog.Error("status server shutdown failed", "error", err)
			}
		}()
	}

	ex := &executor.Executor{
		Providers:       providers,
		Benchmarks:      benchmarks,
		CheckpointStore: checkpointStore,
		ResultsStore:    resultsStore,
		Retry:           cfg.Retry,
		RateLimitQPS:    cfg.ProviderRateLimitQPS,
		Metrics:         metrics,
		Progress:        progress,
	}

	log.Printf("Starting run %s: %d eligible, %d skipped", runPlan.RunID, runPlan.EligibleCount, runPlan.SkippedCount)

	summary, err := ex.Run(ctx, runPlan, manifest, cp, completed)
	if err != nil {
		log.Fatalf("Run failed: %v", err)
	}

	log.Printf("Run %s complete: %d cases, %d passed, %d failed, %d skipped, %d errors",
		runPlan.RunID, summary.Totals.Cases, summary.Totals.Passed, summary.Totals.Failed, summary.Totals.Skipped, summary.Totals.Errors)
}

func splitNonEmpty(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}

// discoverBenchmarks loads every *.benchmark.json manifest under roots,
// building a ManifestBenchmark for each (§4.A "filesystem discovery").
func discoverBenchmarks(roots []string, judgeTypeInstructionsDir string) (map[string]benchmark.Benchmark, error) {
	out := make(map[string]benchmark.Benchmark)
	judge := httpjudge.New(getEnv("JUDGE_ENDPOINT", ""), getEnv("JUDGE_API_KEY", ""))
	synth := staticsynth.Synthesizer{}

	for _, root := range roots {
		entries, err := os.ReadDir(root)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, fmt.Errorf("reading search root %s: %w", root, err)
		}
		for _, e := range entries {
			if e.IsDir() || !strings.HasSuffix(e.Name(), ".benchmark.json") {
				continue
			}
			path := filepath.Join(root, e.Name())
			m, err := benchmark.LoadManifestFile(path)
			if err != nil {
				return nil, fmt.Errorf("loading manifest %s: %w", path, err)
			}
			if m.Evaluation.TypeInstructionsFile != "" && judgeTypeInstructionsDir != "" && !filepath.IsAbs(m.Evaluation.TypeInstructionsFile) {
				m.Evaluation.TypeInstructionsFile = filepath.Join(judgeTypeInstructionsDir, m.Evaluation.TypeInstructionsFile)
			}
			b, err := benchmark.NewManifestBenchmark(m, root, judge, synth)
			if err != nil {
				return nil, fmt.Errorf("constructing benchmark %s: %w", m.Name, err)
			}
			out[m.Name] = b
		}
	}
	return out, nil
}

func countEligibleCases(ctx context.Context, p *plan.Plan, providers *registry.Providers, benchmarks *registry.Benchmarks) (int, error) {
	total := 0
	for _, entry := range p.Entries {
		if !entry.Eligible {
			continue
		}
		be, ok := benchmarks.Lookup(entry.BenchmarkName)
		if !ok {
			return 0, fmt.Errorf("benchmark %s vanished from registry mid-run", entry.BenchmarkName)
		}
		cases, err := be.Benchmark.Cases(ctx)
		if err != nil {
			return 0, fmt.Errorf("enumerating cases for %s: %w", entry.BenchmarkName, err)
		}
		total += len(cases)
	}
	return total, nil
}

func openDurability(ctx context.Context, cfg *config.RunnerConfig, runID string) (durability.CheckpointStore, durability.ResultsStore, func(), error) {
	if cfg.PostgresBackend.Enabled {
		store, err := pgstore.Open(ctx, cfg.PostgresBackend.DSN, cfg.PostgresBackend.MigrationsTable)
		if err != nil {
			return nil, nil, nil, err
		}
		return store, store, func() {
			if err := store.Close(); err != nil {
				slog.Error("closing postgres durability backend", "error", err)
			}
		}, nil
	}

	checkpoints, err := durability.NewFSCheckpointStore(cfg.RunsDir)
	if err != nil {
		return nil, nil, nil, err
	}
	results, err := durability.NewFSResultsStore(cfg.RunsDir, runID)
	if err != nil {
		return nil, nil, nil, err
	}
	return checkpoints, results, func() {
		if err := results.Close(); err != nil {
			slog.Error("closing filesystem results store", "error", err)
		}
	}, nil
}
