package app

import "fmt"

// Config holds the validated runtime configuration for one invocation.
type Config struct {
	// MeshPath points at a single .hcl mesh file or a directory of them.
	MeshPath string

	// MaxParallel overrides the mesh's concurrency ceiling when > 0.
	MaxParallel int

	// CancelOnFailure withholds later waves once any task has failed.
	CancelOnFailure bool

	// DryRun prints the resolved execution plan without dispatching.
	DryRun bool

	// SummaryOut, when set, is a path to write the final summary as JSON.
	SummaryOut string

	LogFormat string
	LogLevel  string
}

// NewConfig validates a raw config and applies defaults.
func NewConfig(cfg Config) (*Config, error) {
	if cfg.MeshPath == "" {
		return nil, fmt.Errorf("mesh path is required")
	}
	if cfg.MaxParallel < 0 {
		return nil, fmt.Errorf("max-parallel must be >= 1, got %d", cfg.MaxParallel)
	}
	if cfg.LogFormat == "" {
		cfg.LogFormat = "json"
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	return &cfg, nil
}
