package config

import "dario.cat/mergo"

// mergeOverDefaults merges user-provided YAML config onto the compiled-in
// defaults, with non-zero user fields taking precedence (§4.F, mirrors the
// teacher's queue-config merge in loader.go).
func mergeOverDefaults(user *RunnerConfig) (*RunnerConfig, error) {
	merged := DefaultRunnerConfig()
	if user == nil {
		return merged, nil
	}
	if err := mergo.Merge(merged, user, mergo.WithOverride); err != nil {
		return nil, err
	}
	return merged, nil
}
