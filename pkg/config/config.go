// Package config loads the process-wide RunnerConfig: YAML files merged over
// compiled-in defaults, environment-variable expansion for secret references,
// and struct-tag validation (§3 "RunnerConfig", §4.F).
package config

import "time"

// RunnerConfig is the umbrella tunables object threaded through plan
// construction, the executor, and the durability layer.
type RunnerConfig struct {
	ConcurrencyDefault   int                `yaml:"concurrency_default" validate:"min=1"`
	Retry                RetryConfig        `yaml:"retry"`
	ProviderRateLimitQPS float64            `yaml:"provider_rate_limit_qps" validate:"min=0"`
	RunsDir              string             `yaml:"runs_dir" validate:"required"`
	SearchRoots          []string           `yaml:"search_roots"`
	StatusServer         StatusServerConfig `yaml:"status_server"`
	PostgresBackend      PostgresConfig     `yaml:"postgres_backend"`
	Judge                JudgeConfig        `yaml:"judge"`
}

// RetryConfig parameterizes the executor's backoff policy (§4.D).
type RetryConfig struct {
	BaseDelayMs  int     `yaml:"base_delay_ms" validate:"min=1"`
	MaxDelayMs   int     `yaml:"max_delay_ms" validate:"min=1"`
	MaxRetries   int     `yaml:"max_retries" validate:"min=0"`
	JitterFactor float64 `yaml:"jitter_factor" validate:"min=0,max=1"`
}

// Delay returns the nominal (pre-jitter) delay for the given retry attempt
// (0-indexed), capped at MaxDelayMs.
func (r RetryConfig) Delay(attempt int) time.Duration {
	base := r.BaseDelayMs
	for i := 0; i < attempt; i++ {
		base *= 2
		if base >= r.MaxDelayMs {
			base = r.MaxDelayMs
			break
		}
	}
	if base > r.MaxDelayMs {
		base = r.MaxDelayMs
	}
	return time.Duration(base) * time.Millisecond
}

// StatusServerConfig toggles the optional gin-based control surface (§4.F).
type StatusServerConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}

// PostgresConfig toggles the pgstore durability backend (§4.E).
type PostgresConfig struct {
	Enabled         bool   `yaml:"enabled"`
	DSN             string `yaml:"dsn"`
	MigrationsTable string `yaml:"migrations_table"`
}

// JudgeConfig names the directory against which a manifest's relative
// type-specific judge instructions file path is resolved for the
// llm-as-judge evaluation protocol (§4.B).
type JudgeConfig struct {
	TypeInstructionsDir string `yaml:"type_instructions_dir"`
}
