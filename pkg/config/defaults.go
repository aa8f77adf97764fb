package config

// DefaultRunnerConfig returns the compiled-in baseline that user YAML is
// merged over (§4.F, mirrors the teacher's built-in-config-first layering).
func DefaultRunnerConfig() *RunnerConfig {
	return &RunnerConfig{
		ConcurrencyDefault:   4,
		ProviderRateLimitQPS: 0,
		RunsDir:              "./runs",
		Retry: RetryConfig{
			BaseDelayMs:  1000,
			MaxDelayMs:   30000,
			MaxRetries:   3,
			JitterFactor: 0.5,
		},
		StatusServer: StatusServerConfig{
			Enabled: false,
			Addr:    ":8090",
		},
		PostgresBackend: PostgresConfig{
			Enabled:         false,
			MigrationsTable: "memorybench_schema_migrations",
		},
	}
}
