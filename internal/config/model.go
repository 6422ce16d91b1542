package config

import "fmt"

// Model is the resolved runtime configuration for one session.
type Model struct {
	// Workers bounds how many rule bodies execute concurrently.
	Workers int
	Log     Log
	Cache   Cache
	Watch   Watch
}

// Log configures the session logger.
type Log struct {
	// Level is one of "debug", "info", "warn", "error".
	Level string
	// Format is "text" or "json".
	Format string
}

// Cache configures the memoization layer.
type Cache struct {
	// MaxEntries caps retained memo entries; 0 means unbounded.
	MaxEntries int
	// StateDir holds the CAS and the per-file digest cache, relative to
	// the workspace root unless absolute.
	StateDir string
}

// Watch configures the filesystem watch service.
type Watch struct {
	Enabled bool
	// DebounceMS batches change events arriving within this window.
	DebounceMS int
	// Ignore lists workspace-relative directories the watcher skips.
	Ignore []string
}

// Default returns the configuration used when no crane.hcl exists.
func Default() *Model {
	return &Model{
		Workers: 8,
		Log:     Log{Level: "info", Format: "text"},
		Cache:   Cache{MaxEntries: 0, StateDir: ".crane"},
		Watch:   Watch{Enabled: false, DebounceMS: 250, Ignore: []string{".git", ".crane"}},
	}
}

// Validate reports the first invalid setting.
func (m *Model) Validate() error {
	if m.Workers < 1 {
		return fmt.Errorf("workers must be at least 1, got %d", m.Workers)
	}
	switch m.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log level must be 'debug', 'info', 'warn', or 'error', got %q", m.Log.Level)
	}
	switch m.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("log format must be 'text' or 'json', got %q", m.Log.Format)
	}
	if m.Cache.MaxEntries < 0 {
		return fmt.Errorf("cache max_entries must not be negative, got %d", m.Cache.MaxEntries)
	}
	if m.Cache.StateDir == "" {
		return fmt.Errorf("cache state_dir must not be empty")
	}
	if m.Watch.DebounceMS < 0 {
		return fmt.Errorf("watch debounce_ms must not be negative, got %d", m.Watch.DebounceMS)
	}
	return nil
}
