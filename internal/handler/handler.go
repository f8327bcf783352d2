// Package handler implements every RPC operation (spec.md §4.5) against
// the live controller set, the config store, and the confirm/rollback
// watchdog. It is the one place that knows how those three pieces fit
// together; internal/rpc only knows how to frame bytes onto it.
package handler

import (
	"context"
	"fmt"
	"maps"
	"os/exec"
	"strings"
	"sync"

	"github.com/openlact/lactd/api"
	"github.com/openlact/lactd/internal/config"
	"github.com/openlact/lactd/internal/controller"
	"github.com/openlact/lactd/internal/controller/amd"
	"github.com/openlact/lactd/internal/errdefs"
	"github.com/openlact/lactd/internal/log"
	"github.com/openlact/lactd/internal/profiles"
	"github.com/openlact/lactd/internal/version"
	"github.com/openlact/lactd/internal/watchdog"
)

// Handler owns the single in-memory Config and the live Controller set,
// and is the only writer of either. Mutation methods hold mu only to
// look up the controller and to read or write cfg; the mutation itself
// and ApplyConfig, including its clock-down wait, run with mu released
// on a copy of the active GpuConfig (spec.md §5 Shared resources).
type Handler struct {
	mu           sync.Mutex
	cfg          *config.Config
	store        *config.Store
	controllers  map[api.DeviceID]controller.Controller
	wd           *watchdog.Watchdog
	overdrive    *amd.OverdriveManager
	daemonName   string
	profileState func() *profiles.State
}

// New builds a Handler. controllers must already be populated by
// discovery; cfg is the just-loaded (and migrated) persisted config.
// daemonName is used only to name the overdrive modprobe.d file.
func New(cfg *config.Config, store *config.Store, controllers map[api.DeviceID]controller.Controller, wd *watchdog.Watchdog, daemonName string) *Handler {
	return &Handler{
		cfg:         cfg,
		store:       store,
		controllers: controllers,
		wd:          wd,
		overdrive:   amd.NewOverdriveManager(),
		daemonName:  daemonName,
	}
}

// EnableOverdrive writes the ppfeaturemask modprobe override and
// regenerates the initramfs (spec.md §6); a reboot is required for it
// to take effect.
func (h *Handler) EnableOverdrive(ctx context.Context) error {
	return h.overdrive.Enable(ctx, h.daemonName)
}

// DisableOverdrive removes the override and regenerates the initramfs.
func (h *Handler) DisableOverdrive(ctx context.Context) error {
	return h.overdrive.Disable(ctx, h.daemonName)
}

// Ping answers the liveness check.
func (h *Handler) Ping() string { return "pong" }

// SystemInfo reports the daemon's build identity and host kernel
// version (spec.md §4.5 system_info), grounded on system.rs's info().
func (h *Handler) SystemInfo() api.SystemInfo {
	info := api.SystemInfo{
		Version: version.Version,
		Profile: version.Profile,
	}
	if out, err := exec.Command("uname", "-r").Output(); err == nil {
		info.KernelVersion = strings.TrimSpace(string(out))
	}
	if enabled, err := h.overdrive.IsOverdriveEnabled(); err == nil {
		info.AmdgpuOverdriveEnabled = &enabled
	}
	return info
}

// ListDevices returns the stable identity of every discovered controller.
func (h *Handler) ListDevices() []api.CommonControllerInfo {
	h.mu.Lock()
	defer h.mu.Unlock()

	out := make([]api.CommonControllerInfo, 0, len(h.controllers))
	for _, c := range h.controllers {
		out = append(out, c.Info())
	}
	return out
}

func (h *Handler) lookup(id api.DeviceID) (controller.Controller, error) {
	c, ok := h.controllers[id]
	if !ok {
		return nil, errdefs.NotSupportedf("unknown device %q", id)
	}
	return c, nil
}

// ReapplyActiveConfig re-asserts every device's active GpuConfig against
// its controller. It is used after a drm uevent (GPU reset or hot
// (re)plug can both reset clocks/fan/power state in hardware) rather
// than on any client-driven path, so it bypasses the confirm/rollback
// watchdog entirely and only logs per-device failures.
func (h *Handler) ReapplyActiveConfig(ctx context.Context) {
	h.mu.Lock()
	type job struct {
		id  api.DeviceID
		c   controller.Controller
		cfg api.GpuConfig
	}
	jobs := make([]job, 0, len(h.controllers))
	for id, c := range h.controllers {
		cfg, ok := h.cfg.ActiveGpuConfig(id)
		if !ok {
			continue
		}
		jobs = append(jobs, job{id: id, c: c, cfg: cfg})
	}
	h.mu.Unlock()

	for _, j := range jobs {
		if err := j.c.ApplyConfig(ctx, j.cfg); err != nil {
			log.Logger.Warnw("failed to re-apply config after drm event", "device", j.id, "error", err)
		}
	}
}

// DeviceInfo returns one device's read-only identity/link/drm info.
func (h *Handler) DeviceInfo(id api.DeviceID) (api.DeviceInfo, error) {
	h.mu.Lock()
	c, err := h.lookup(id)
	h.mu.Unlock()
	if err != nil {
		return api.DeviceInfo{}, err
	}
	return c.DeviceInfo()
}

// DeviceStats returns one device's live telemetry, annotated with its
// user-configured fan settings if any (never driving a physical read).
func (h *Handler) DeviceStats(id api.DeviceID) (api.DeviceStats, error) {
	h.mu.Lock()
	c, err := h.lookup(id)
	if err != nil {
		h.mu.Unlock()
		return api.DeviceStats{}, err
	}
	active, _ := h.cfg.ActiveGpuConfig(id)
	h.mu.Unlock()
	return c.Stats(&active)
}

// ClocksInfo returns a device's clocks table shape.
func (h *Handler) ClocksInfo(id api.DeviceID) (api.ClocksInfo, error) {
	h.mu.Lock()
	c, err := h.lookup(id)
	h.mu.Unlock()
	if err != nil {
		return api.ClocksInfo{}, err
	}
	return c.ClocksInfo()
}

// PowerProfileModes returns a device's named power-profile modes.
func (h *Handler) PowerProfileModes(id api.DeviceID) (api.PowerProfileModesTable, error) {
	h.mu.Lock()
	c, err := h.lookup(id)
	h.mu.Unlock()
	if err != nil {
		return api.PowerProfileModesTable{}, err
	}
	return c.PowerProfileModes()
}

// PowerStates returns a device's dpm table, reflecting any configured
// enabled-state intent.
func (h *Handler) PowerStates(id api.DeviceID) (api.PowerStatesInfo, error) {
	h.mu.Lock()
	c, err := h.lookup(id)
	if err != nil {
		h.mu.Unlock()
		return api.PowerStatesInfo{}, err
	}
	active, _ := h.cfg.ActiveGpuConfig(id)
	h.mu.Unlock()
	return c.PowerStates(&active)
}

// VbiosDump returns a device's raw VBIOS image.
func (h *Handler) VbiosDump(id api.DeviceID) ([]byte, error) {
	h.mu.Lock()
	c, err := h.lookup(id)
	h.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return c.VbiosDump()
}

// ResetPmfwSettings best-effort resets a device's PMFW fields.
func (h *Handler) ResetPmfwSettings(id api.DeviceID) error {
	h.mu.Lock()
	c, err := h.lookup(id)
	h.mu.Unlock()
	if err != nil {
		return err
	}
	return c.ResetPmfwSettings()
}

// mutate runs a config-mutating RPC end to end (spec.md §4.4): reject
// if another apply is pending, apply the mutated config through the
// shared apply_config algorithm, then start the confirm watchdog if the
// apply came from a client (confirmFromClient=true). mutateFn receives
// a copy of the currently-active GpuConfig for id, with its clocks
// configuration and power-state map copied too so they may be changed
// in place, and returns the next desired GpuConfig.
func (h *Handler) mutate(ctx context.Context, id api.DeviceID, confirmFromClient bool, mutateFn func(api.GpuConfig) (api.GpuConfig, error)) error {
	if h.wd.Pending() {
		return errdefs.ErrPendingConfirmation
	}

	h.mu.Lock()
	c, err := h.lookup(id)
	if err != nil {
		h.mu.Unlock()
		return err
	}
	previous, _ := h.cfg.ActiveGpuConfig(id)
	h.mu.Unlock()

	draft := previous
	if previous.ClocksConfiguration != nil {
		cc := *previous.ClocksConfiguration
		cc.GpuClockOffsetsMhz = maps.Clone(cc.GpuClockOffsetsMhz)
		cc.MemClockOffsetsMhz = maps.Clone(cc.MemClockOffsetsMhz)
		draft.ClocksConfiguration = &cc
	}
	draft.PowerStates = maps.Clone(previous.PowerStates)

	next, err := mutateFn(draft)
	if err != nil {
		return err
	}

	// Controller.ApplyConfig is the single mutation entry point (spec.md
	// §4.2): each vendor controller tracks its own last-applied GpuConfig
	// internally and calls the shared controller.Apply(ctx, backend,
	// previous, next) with its own Backend, so the handler never touches
	// a vendor Backend directly.
	if err := c.ApplyConfig(ctx, next); err != nil {
		return err
	}

	if !confirmFromClient {
		h.commitGpuConfig(id, next)
		return nil
	}

	return h.wd.Start(func(revertCtx context.Context) error {
		return c.ApplyConfig(revertCtx, previous)
	})
}

// commitGpuConfig writes next into the active profile (or top-level)
// mapping and persists it to disk.
func (h *Handler) commitGpuConfig(id api.DeviceID, next api.GpuConfig) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.cfg.CurrentProfile != "" {
		if p, ok := h.cfg.Profiles[h.cfg.CurrentProfile]; ok {
			p.Gpus[id] = next
			h.cfg.Profiles[h.cfg.CurrentProfile] = p
		}
	} else {
		h.cfg.Gpus[id] = next
	}

	if err := h.store.Save(h.cfg); err != nil {
		log.Logger.Errorw("failed to persist committed config", "device", id, "error", err)
	}
}

// SetFanControl applies fan_control_settings for a device, going
// through the client-confirm path.
func (h *Handler) SetFanControl(ctx context.Context, id api.DeviceID, enabled bool, settings *api.FanControlSettings) error {
	return h.mutate(ctx, id, true, func(cfg api.GpuConfig) (api.GpuConfig, error) {
		cfg.FanControlEnabled = enabled
		cfg.FanControlSettings = settings
		return cfg, nil
	})
}

// SetPowerCap applies power_cap_watts for a device.
func (h *Handler) SetPowerCap(ctx context.Context, id api.DeviceID, watts *float64) error {
	return h.mutate(ctx, id, true, func(cfg api.GpuConfig) (api.GpuConfig, error) {
		cfg.PowerCapWatts = watts
		return cfg, nil
	})
}

// SetPerformanceLevel applies performance_level for a device.
func (h *Handler) SetPerformanceLevel(ctx context.Context, id api.DeviceID, level api.PerformanceLevel) error {
	return h.mutate(ctx, id, true, func(cfg api.GpuConfig) (api.GpuConfig, error) {
		cfg.PerformanceLevel = &level
		return cfg, nil
	})
}

// SetClocksValue overlays one clocks_configuration field for a device.
func (h *Handler) SetClocksValue(ctx context.Context, id api.DeviceID, apply func(*api.ClocksConfiguration)) error {
	return h.mutate(ctx, id, true, func(cfg api.GpuConfig) (api.GpuConfig, error) {
		if cfg.ClocksConfiguration == nil {
			cfg.ClocksConfiguration = &api.ClocksConfiguration{}
		}
		apply(cfg.ClocksConfiguration)
		return cfg, nil
	})
}

// ResetClocksValue clears a device's entire clocks configuration back
// to vendor defaults (the SetClocksCommand::Reset variant).
func (h *Handler) ResetClocksValue(ctx context.Context, id api.DeviceID) error {
	return h.mutate(ctx, id, true, func(cfg api.GpuConfig) (api.GpuConfig, error) {
		cfg.ClocksConfiguration = nil
		return cfg, nil
	})
}

// BatchSetClocksValue overlays every field of cc onto a device's clocks
// configuration in one apply/confirm cycle, rather than one per field
// (spec.md §4.5 batch_set_clocks_value).
func (h *Handler) BatchSetClocksValue(ctx context.Context, id api.DeviceID, cc api.ClocksConfiguration) error {
	return h.mutate(ctx, id, true, func(cfg api.GpuConfig) (api.GpuConfig, error) {
		cfg.ClocksConfiguration = &cc
		return cfg, nil
	})
}

// SetPowerProfileMode selects a named power-profile mode by index, or
// installs a custom heuristics table (mutually exclusive, spec.md §3).
func (h *Handler) SetPowerProfileMode(ctx context.Context, id api.DeviceID, index *int, heuristics [][]int64) error {
	return h.mutate(ctx, id, true, func(cfg api.GpuConfig) (api.GpuConfig, error) {
		cfg.PowerProfileModeIndex = index
		cfg.CustomPowerProfileModeHeuristics = heuristics
		return cfg, nil
	})
}

// SetEnabledPowerStates overlays one dpm kind's enabled-indices list.
func (h *Handler) SetEnabledPowerStates(ctx context.Context, id api.DeviceID, kind api.PowerStateKind, indices []int) error {
	return h.mutate(ctx, id, true, func(cfg api.GpuConfig) (api.GpuConfig, error) {
		if cfg.PowerStates == nil {
			cfg.PowerStates = map[api.PowerStateKind][]int{}
		}
		cfg.PowerStates[kind] = indices
		return cfg, nil
	})
}

// ConfirmPendingConfig resolves the watchdog as Confirm (spec.md §4.4).
func (h *Handler) ConfirmPendingConfig() error {
	return h.wd.Confirm()
}

// RevertPendingConfig resolves the watchdog as Revert.
func (h *Handler) RevertPendingConfig() error {
	return h.wd.Revert()
}

// ResetConfig discards the current persisted config, replacing it with
// api defaults for every currently discovered device, and applies the
// reset to hardware immediately (no confirm step: a reset is already
// the safe direction).
func (h *Handler) ResetConfig(ctx context.Context) error {
	if h.wd.Pending() {
		return errdefs.ErrPendingConfirmation
	}

	h.mu.Lock()
	ids := make([]api.DeviceID, 0, len(h.controllers))
	controllers := make(map[api.DeviceID]controller.Controller, len(h.controllers))
	for id, c := range h.controllers {
		ids = append(ids, id)
		controllers[id] = c
	}
	h.mu.Unlock()

	for _, id := range ids {
		c := controllers[id]
		if err := c.ApplyConfig(ctx, api.GpuConfig{}); err != nil {
			return fmt.Errorf("resetting device %s: %w", id, err)
		}
		h.commitGpuConfig(id, api.GpuConfig{})
	}
	return nil
}

// ListProfiles returns the name of every named profile, in no
// particular order, and the currently active one ("" when the
// top-level default is active).
func (h *Handler) ListProfiles() (names []string, current string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	names = make([]string, 0, len(h.cfg.Profiles))
	for name := range h.cfg.Profiles {
		names = append(names, name)
	}
	return names, h.cfg.CurrentProfile
}

// SetProfile switches the active profile (empty name selects the
// top-level config) and applies every device's resulting GpuConfig.
// Profile switches never use the confirm watchdog (spec.md §4.6: "no
// client to acknowledge").
func (h *Handler) SetProfile(ctx context.Context, name string) error {
	h.mu.Lock()
	if name != "" {
		if _, ok := h.cfg.Profiles[name]; !ok {
			h.mu.Unlock()
			return errdefs.InvalidArgumentf("unknown profile %q", name)
		}
	}
	h.cfg.CurrentProfile = name
	nextActive := h.cfg.ActiveGpus()
	controllers := make(map[api.DeviceID]controller.Controller, len(h.controllers))
	for id, c := range h.controllers {
		controllers[id] = c
	}
	h.mu.Unlock()

	for id, c := range controllers {
		next := nextActive[id]
		if err := c.ApplyConfig(ctx, next); err != nil {
			log.Logger.Errorw("failed to apply config for device during profile switch", "device", id, "profile", name, "error", err)
		}
	}

	h.mu.Lock()
	err := h.store.Save(h.cfg)
	h.mu.Unlock()
	return err
}

// CreateProfile adds a new empty profile.
func (h *Handler) CreateProfile(name string) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.cfg.Profiles[name]; ok {
		return errdefs.InvalidArgumentf("profile %q already exists", name)
	}
	h.cfg.AddProfile(name)
	return h.store.Save(h.cfg)
}

// DeleteProfile removes a profile; switching away from it first if it
// is currently active.
func (h *Handler) DeleteProfile(ctx context.Context, name string) error {
	h.mu.Lock()
	if _, ok := h.cfg.Profiles[name]; !ok {
		h.mu.Unlock()
		return errdefs.InvalidArgumentf("unknown profile %q", name)
	}
	wasActive := h.cfg.CurrentProfile == name
	h.cfg.RemoveProfile(name)
	h.mu.Unlock()

	if wasActive {
		return h.SetProfile(ctx, "")
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.store.Save(h.cfg)
}

// MoveProfile relocates a profile to newIndex in the declaration order
// rule evaluation walks (spec.md §4.5, §4.6).
func (h *Handler) MoveProfile(name string, newIndex int) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if err := h.cfg.MoveProfile(name, newIndex); err != nil {
		return errdefs.InvalidArgumentf("%s", err)
	}
	return h.store.Save(h.cfg)
}

// SetProfileRule installs or clears a profile's activation rule.
func (h *Handler) SetProfileRule(name string, rule *api.ProfileRule) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	p, ok := h.cfg.Profiles[name]
	if !ok {
		return errdefs.InvalidArgumentf("unknown profile %q", name)
	}
	p.Rule = rule
	h.cfg.Profiles[name] = p
	return h.store.Save(h.cfg)
}

// EvaluateProfileRule dry-runs a rule against the watcher's live
// process state without switching anything, for the GUI's "test rule"
// button (spec.md §4.5 evaluate_profile_rule).
func (h *Handler) EvaluateProfileRule(rule api.ProfileRule) bool {
	h.mu.Lock()
	getState := h.profileState
	h.mu.Unlock()
	if getState == nil {
		return false
	}
	return profiles.Matches(getState(), rule)
}

// SetProfileStateFunc wires an accessor for the watcher's live,
// thread-safe process-state snapshot, so EvaluateProfileRule can dry-run
// against real process data. Called once by cmd/lactd after the
// watcher starts.
func (h *Handler) SetProfileStateFunc(getState func() *profiles.State) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.profileState = getState
}
