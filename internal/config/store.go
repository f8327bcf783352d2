package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"sigs.k8s.io/yaml"

	"github.com/openlact/lactd/api"
	"github.com/openlact/lactd/internal/log"
)

// DefaultPath resolves the config file location per spec.md §6: system
// path when running as root, XDG user path otherwise.
func DefaultPath(daemonName string, uid int) string {
	if uid == 0 {
		return filepath.Join("/etc", daemonName, "config.yaml")
	}
	base := os.Getenv("XDG_CONFIG_HOME")
	if base == "" {
		base = filepath.Join(os.Getenv("HOME"), ".config")
	}
	return filepath.Join(base, daemonName, "config.yaml")
}

// Store owns the on-disk Config file: loading with migration, atomic
// saving, and (via Watch) a filesystem watcher that notices external
// edits.
type Store struct {
	path string
}

// NewStore returns a Store bound to path. It does not load or create
// anything yet.
func NewStore(path string) *Store {
	return &Store{path: path}
}

// Path returns the bound config file path.
func (s *Store) Path() string { return s.path }

// Load reads and migrates the config file. If the file doesn't exist,
// it returns a fresh Default() config without touching disk — the
// caller is expected to Save it once devices are discovered.
func (s *Store) Load() (*Config, error) {
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return Default(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading config %s: %w", s.path, err)
	}

	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", s.path, err)
	}

	migrated, err := Migrate(raw)
	if err != nil {
		return nil, fmt.Errorf("migrating config %s: %w", s.path, err)
	}

	normalized, err := yaml.Marshal(migrated)
	if err != nil {
		return nil, fmt.Errorf("normalizing migrated config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(normalized, &cfg); err != nil {
		return nil, fmt.Errorf("decoding migrated config: %w", err)
	}
	if cfg.Gpus == nil {
		cfg.Gpus = map[api.DeviceID]api.GpuConfig{}
	}
	if cfg.Profiles == nil {
		cfg.Profiles = map[string]api.Profile{}
	}
	reconcileProfileOrder(&cfg)
	return &cfg, nil
}

// reconcileProfileOrder appends any profile present in Profiles but
// missing from ProfileOrder (sorted for determinism), and drops any
// stale ProfileOrder entry whose profile no longer exists. This covers
// configs edited by hand, or saved before profile_order existed, where
// Profiles and ProfileOrder have drifted apart — profile rule
// evaluation walks ProfileOrder only, so a name missing from it would
// otherwise never activate.
func reconcileProfileOrder(cfg *Config) {
	known := make(map[string]bool, len(cfg.ProfileOrder))
	kept := cfg.ProfileOrder[:0]
	for _, name := range cfg.ProfileOrder {
		if _, ok := cfg.Profiles[name]; ok && !known[name] {
			kept = append(kept, name)
			known[name] = true
		}
	}
	cfg.ProfileOrder = kept

	var missing []string
	for name := range cfg.Profiles {
		if !known[name] {
			missing = append(missing, name)
		}
	}
	sort.Strings(missing)
	cfg.ProfileOrder = append(cfg.ProfileOrder, missing...)
}

// Save writes cfg atomically: temp file in the same directory,
// chmod 0644, then rename over the target path (spec.md §3, §6). The
// in-memory LastSavedAt is stamped so Watch can recognize this write
// as its own.
func (s *Store) Save(cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	cfg.LastSavedAt = time.Now()
	cfg.Version = CurrentVersion

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".config-*.yaml.tmp")
	if err != nil {
		return fmt.Errorf("creating temp config file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath) // no-op once the rename below succeeds

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("writing temp config file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing temp config file: %w", err)
	}
	if err := os.Chmod(tmpPath, 0o644); err != nil {
		return fmt.Errorf("chmod temp config file: %w", err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		return fmt.Errorf("renaming config into place: %w", err)
	}

	log.Logger.Debugw("saved config", "path", s.path, "version", cfg.Version)
	return nil
}
