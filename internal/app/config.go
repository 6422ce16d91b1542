package app

import "errors"

// Config holds everything the CLI resolved for one invocation.
type Config struct {
	// Workspace is the path to the workspace root.
	Workspace string
	// ConfigPath locates crane.hcl, relative to the workspace.
	ConfigPath string

	// Goal names the product to build.
	Goal string
	// TargetAddress, TargetKind, Sources and Meta describe the target
	// the goal runs against.
	TargetAddress string
	TargetKind    string
	Sources       []string
	Meta          map[string]string

	// OutDir is where artifacts are materialized, relative to the
	// workspace.
	OutDir string
	// Watch keeps the session alive, rebuilding on filesystem changes.
	Watch bool

	HealthcheckPort int
	// LogFormat and LogLevel override the config file when non-empty.
	LogFormat string
	LogLevel  string
	// Workers overrides the config file when positive.
	Workers int
}

// NewConfig validates an invocation config.
func NewConfig(cfg Config) (*Config, error) {
	if cfg.Goal == "" {
		return nil, errors.New("a goal is required")
	}
	if cfg.Workspace == "" {
		return nil, errors.New("workspace must not be empty")
	}
	if len(cfg.Sources) == 0 {
		return nil, errors.New("at least one source glob is required")
	}
	if cfg.Meta == nil {
		cfg.Meta = map[string]string{}
	}
	// The pack goal dispatches on the declared format; default it so the
	// plain invocation works out of the box.
	if cfg.Goal == "pack" {
		if _, ok := cfg.Meta["format"]; !ok {
			cfg.Meta["format"] = "tar"
		}
	}
	return &cfg, nil
}
