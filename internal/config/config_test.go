package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openlact/lactd/api"
)

func TestActiveGpus_DefaultsToTopLevel(t *testing.T) {
	cfg := Default()
	cfg.Gpus["dev1"] = api.GpuConfig{FanControlEnabled: true}

	active := cfg.ActiveGpus()
	assert.Len(t, active, 1)
	_, ok := active["dev1"]
	assert.True(t, ok)
}

func TestActiveGpus_ProfileOverride(t *testing.T) {
	cfg := Default()
	cfg.Gpus["dev1"] = api.GpuConfig{FanControlEnabled: false}
	cfg.Profiles["gaming"] = api.Profile{
		Gpus: map[api.DeviceID]api.GpuConfig{"dev1": {FanControlEnabled: true}},
	}
	cfg.CurrentProfile = "gaming"

	active := cfg.ActiveGpus()
	g := active["dev1"]
	assert.True(t, g.FanControlEnabled)
}

func TestActiveGpus_UnknownProfileFallsBackToTopLevel(t *testing.T) {
	cfg := Default()
	cfg.Gpus["dev1"] = api.GpuConfig{FanControlEnabled: true}
	cfg.CurrentProfile = "does-not-exist"

	active := cfg.ActiveGpus()
	assert.True(t, active["dev1"].FanControlEnabled)
}

func TestCloneIsIndependent(t *testing.T) {
	cfg := Default()
	cfg.Gpus["dev1"] = api.GpuConfig{FanControlEnabled: true}

	clone := cfg.Clone()
	clone.Gpus["dev1"] = api.GpuConfig{FanControlEnabled: false}

	assert.True(t, cfg.Gpus["dev1"].FanControlEnabled, "mutating the clone must not affect the original")
}

func TestStoreSaveLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	store := NewStore(path)

	cfg := Default()
	cfg.Daemon.TcpListenAddress = "127.0.0.1:12346"
	cfg.Gpus["1002:73BF-1002:0123-0000:03:00.0"] = api.GpuConfig{
		FanControlEnabled: true,
		FanControlSettings: &api.FanControlSettings{
			Mode:           api.FanModeCurve,
			TemperatureKey: "edge",
			IntervalMs:     1000,
			Curve:          api.DefaultFanCurve(),
		},
	}

	require.NoError(t, store.Save(cfg))

	loaded, err := store.Load()
	require.NoError(t, err)

	assert.Equal(t, cfg.Daemon.TcpListenAddress, loaded.Daemon.TcpListenAddress)
	assert.Equal(t, CurrentVersion, loaded.Version)
	require.Contains(t, loaded.Gpus, api.DeviceID("1002:73BF-1002:0123-0000:03:00.0"))
	gpu := loaded.Gpus["1002:73BF-1002:0123-0000:03:00.0"]
	assert.True(t, gpu.FanControlEnabled)
	require.NotNil(t, gpu.FanControlSettings)
	assert.Equal(t, "edge", gpu.FanControlSettings.TemperatureKey)
}

func TestStoreLoadMissingFileReturnsDefault(t *testing.T) {
	store := NewStore(filepath.Join(t.TempDir(), "missing.yaml"))
	cfg, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, CurrentVersion, cfg.Version)
	assert.Empty(t, cfg.Gpus)
}

func TestStoreLoadReconcilesProfileOrderAgainstProfiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	store := NewStore(path)

	cfg := Default()
	cfg.Profiles["gaming"] = api.Profile{Gpus: map[api.DeviceID]api.GpuConfig{}}
	cfg.Profiles["quiet"] = api.Profile{Gpus: map[api.DeviceID]api.GpuConfig{}}
	cfg.ProfileOrder = []string{"stale-profile"} // no matching entry in Profiles
	require.NoError(t, store.Save(cfg))

	loaded, err := store.Load()
	require.NoError(t, err)

	assert.NotContains(t, loaded.ProfileOrder, "stale-profile")
	assert.ElementsMatch(t, []string{"gaming", "quiet"}, loaded.ProfileOrder)
}

func TestStoreSaveIsAtomic(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	store := NewStore(path)
	require.NoError(t, store.Save(Default()))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	// Only the final config file should remain; no leftover temp file.
	assert.Len(t, entries, 1)
	assert.Equal(t, "config.yaml", entries[0].Name())
}
