// Package config holds the persisted configuration tree (spec.md §3,
// §6): the top-level Config, its daemon settings, the GPU mapping,
// named profiles, and the migration/atomic-save/filesystem-watch
// machinery around it.
package config

import (
	"fmt"
	"time"

	"github.com/openlact/lactd/api"
)

// CurrentVersion is the schema version new configs are written at.
// Migrate walks any older on-disk version up to this one.
const CurrentVersion = 3

// Config is the top-level persisted structure (spec.md §3).
type Config struct {
	Version int           `json:"version"`
	Daemon  DaemonConfig  `json:"daemon"`

	ApplySettingsTimerSeconds uint64 `json:"apply_settings_timer_seconds"`

	Gpus    map[api.DeviceID]api.GpuConfig `json:"gpus"`
	Profiles map[string]api.Profile        `json:"profiles,omitempty"`

	// ProfileOrder is the declaration order rule evaluation walks
	// (spec.md §4.6): "iterate profiles in declaration order". A plain
	// map can't carry this, and move_profile (spec.md §4.5) exists
	// specifically to let a client reorder it.
	ProfileOrder []string `json:"profile_order,omitempty"`

	// CurrentProfile selects profiles[*]; empty selects the top-level
	// Gpus mapping (spec.md §3 invariant 1).
	CurrentProfile string `json:"current_profile,omitempty"`

	AutoSwitchProfiles bool `json:"auto_switch_profiles"`

	// LastSavedAt is recorded on every atomic write so the filesystem
	// watcher can tell a self-write from an external edit within the
	// 1000ms ignore window (spec.md §5 Timeouts).
	LastSavedAt time.Time `json:"-"`
}

// DaemonConfig is the daemon-wide settings subtree (spec.md §3).
type DaemonConfig struct {
	LogLevel             string   `json:"log_level"`
	AdminGroups          []string `json:"admin_groups"`
	DisableClocksCleanup bool     `json:"disable_clocks_cleanup"`
	TcpListenAddress     string   `json:"tcp_listen_address,omitempty"`
	ExporterListenAddress string  `json:"exporter_listen_address,omitempty"`
}

// DefaultDaemonConfig matches spec.md §6's default socket group policy.
func DefaultDaemonConfig() DaemonConfig {
	return DaemonConfig{
		LogLevel:    "info",
		AdminGroups: []string{"wheel", "sudo"},
	}
}

// Default builds a fresh Config with no devices configured yet; the
// caller populates Gpus once controllers are discovered.
func Default() *Config {
	return &Config{
		Version:                   CurrentVersion,
		Daemon:                    DefaultDaemonConfig(),
		ApplySettingsTimerSeconds: 5,
		Gpus:                      map[api.DeviceID]api.GpuConfig{},
		Profiles:                  map[string]api.Profile{},
	}
}

// ActiveGpus resolves the currently-active GPU mapping (spec.md §3
// invariant 1): the named profile's Gpus when CurrentProfile is set and
// known, otherwise the top-level Gpus.
func (c *Config) ActiveGpus() map[api.DeviceID]api.GpuConfig {
	if c.CurrentProfile != "" {
		if p, ok := c.Profiles[c.CurrentProfile]; ok {
			return p.Gpus
		}
	}
	return c.Gpus
}

// ActiveGpuConfig resolves the currently-active GpuConfig for one
// device, if any is configured for it.
func (c *Config) ActiveGpuConfig(id api.DeviceID) (api.GpuConfig, bool) {
	g, ok := c.ActiveGpus()[id]
	return g, ok
}

// Clone deep-copies the config. The handler clones into a local value
// on every read so no borrow is held across an await (spec.md §5
// Shared resources).
func (c *Config) Clone() *Config {
	out := *c
	out.Gpus = cloneGpuMap(c.Gpus)
	out.Profiles = make(map[string]api.Profile, len(c.Profiles))
	for name, p := range c.Profiles {
		np := p
		np.Gpus = cloneGpuMap(p.Gpus)
		out.Profiles[name] = np
	}
	out.Daemon.AdminGroups = append([]string(nil), c.Daemon.AdminGroups...)
	out.ProfileOrder = append([]string(nil), c.ProfileOrder...)
	return &out
}

// AddProfile inserts a new empty profile at the end of ProfileOrder.
func (c *Config) AddProfile(name string) {
	c.Profiles[name] = api.Profile{Gpus: map[api.DeviceID]api.GpuConfig{}}
	c.ProfileOrder = append(c.ProfileOrder, name)
}

// RemoveProfile deletes a profile and its ProfileOrder entry.
func (c *Config) RemoveProfile(name string) {
	delete(c.Profiles, name)
	for i, n := range c.ProfileOrder {
		if n == name {
			c.ProfileOrder = append(c.ProfileOrder[:i], c.ProfileOrder[i+1:]...)
			break
		}
	}
}

// MoveProfile relocates name to newIndex within ProfileOrder, the
// move_profile operation (spec.md §4.5). newIndex is clamped to the
// valid range rather than erroring on an out-of-bounds request.
func (c *Config) MoveProfile(name string, newIndex int) error {
	from := -1
	for i, n := range c.ProfileOrder {
		if n == name {
			from = i
			break
		}
	}
	if from == -1 {
		return fmt.Errorf("unknown profile %q", name)
	}
	if newIndex < 0 {
		newIndex = 0
	}
	if newIndex >= len(c.ProfileOrder) {
		newIndex = len(c.ProfileOrder) - 1
	}
	order := append([]string(nil), c.ProfileOrder...)
	order = append(order[:from], order[from+1:]...)
	order = append(order[:newIndex], append([]string{name}, order[newIndex:]...)...)
	c.ProfileOrder = order
	return nil
}

func cloneGpuMap(m map[api.DeviceID]api.GpuConfig) map[api.DeviceID]api.GpuConfig {
	out := make(map[api.DeviceID]api.GpuConfig, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
