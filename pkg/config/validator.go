package config

import "fmt"

// validateCrossField checks invariants the struct tags in config.go can't
// express on their own (relationships between fields), mirroring the
// teacher's hand-rolled cross-field checks in its own validator.go.
func validateCrossField(cfg *RunnerConfig) error {
	if cfg.Retry.MaxDelayMs < cfg.Retry.BaseDelayMs {
		return fmt.Errorf("retry.max_delay_ms (%d) must be >= retry.base_delay_ms (%d)", cfg.Retry.MaxDelayMs, cfg.Retry.BaseDelayMs)
	}
	if cfg.PostgresBackend.Enabled && cfg.PostgresBackend.DSN == "" {
		return fmt.Errorf("postgres_backend.dsn is required when postgres_backend.enabled is true")
	}
	if cfg.StatusServer.Enabled && cfg.StatusServer.Addr == "" {
		return fmt.Errorf("status_server.addr is required when status_server.enabled is true")
	}
	return nil
}
