package config

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Load reads configPath (if non-empty and present), expands environment
// variable references, merges onto the compiled-in defaults, and validates
// the result. A missing configPath is not an error — the defaults apply
// unchanged, matching the teacher's "config directory is optional" posture
// for local/dev runs.
func Load(configPath string) (*RunnerConfig, error) {
	log := slog.With("config_path", configPath)

	var user RunnerConfig
	if configPath != "" {
		data, err := os.ReadFile(configPath)
		if err != nil {
			if os.IsNotExist(err) {
				log.Debug("no config file found, using built-in defaults")
				return finish(&user, false)
			}
			return nil, NewLoadError(configPath, err)
		}

		data = ExpandEnv(data)

		if err := yaml.Unmarshal(data, &user); err != nil {
			return nil, NewLoadError(configPath, fmt.Errorf("%w: %v", ErrInvalidYAML, err))
		}
		return finish(&user, true)
	}

	return finish(&user, false)
}

func finish(user *RunnerConfig, loaded bool) (*RunnerConfig, error) {
	cfg, err := mergeOverDefaults(user)
	if err != nil {
		return nil, fmt.Errorf("merging configuration onto defaults: %w", err)
	}

	if err := validateStruct(cfg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidationFailed, err)
	}
	if err := validateCrossField(cfg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidationFailed, err)
	}

	slog.Debug("runner configuration ready",
		"loaded_from_file", loaded,
		"concurrency_default", cfg.ConcurrencyDefault,
		"runs_dir", cfg.RunsDir,
		"postgres_backend_enabled", cfg.PostgresBackend.Enabled,
		"status_server_enabled", cfg.StatusServer.Enabled)

	return cfg, nil
}

var structValidator = validator.New(validator.WithRequiredStructEnabled())

func validateStruct(cfg *RunnerConfig) error {
	return structValidator.Struct(cfg)
}
