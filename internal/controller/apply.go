package controller

import (
	"context"
	"fmt"
	"time"

	"github.com/openlact/lactd/api"
	"github.com/openlact/lactd/internal/errdefs"
	"github.com/openlact/lactd/internal/fancontrol"
	"github.com/openlact/lactd/internal/log"
)

// Backend is the set of low-level, vendor-specific primitives the
// generic Apply orchestration (spec.md §4.2) drives. Each vendor
// package (controller/amd, controller/nvidia, controller/intel)
// implements Backend once and calls controller.Apply from its own
// ApplyConfig — this is the "keep HOW, replace WHAT" generalization:
// the ordering and quirks below are shared, only the primitives differ
// per vendor.
type Backend interface {
	// Power cap (step 1).
	CurrentPowerCapWatts() (watts float64, supported bool, err error)
	DefaultPowerCapWatts() (watts float64, supported bool, err error)
	SetPowerCapWatts(watts float64) error
	CurrentUsageWatts() (float64, error)
	// CorePstateIsZero polls whether the core clock has settled to its
	// lowest pstate, used by the clock-down wait.
	CorePstateIsZero() (bool, error)

	// Performance level (steps 2, 4).
	PerformanceLevel() (api.PerformanceLevel, error)
	SetPerformanceLevel(api.PerformanceLevel) error
	// IsLockedManualPart reports Van Gogh/Sephiroth-style parts that
	// require performance_level=manual rather than auto after a clocks
	// reset (step 2).
	IsLockedManualPart() bool

	// Clocks (steps 2, 3).
	ResetClocksTable() error
	ApplyClocksConfiguration(api.ClocksConfiguration) error

	// Power profile mode (step 5); only called when cfg.IsManual().
	SetPowerProfileModeIndex(idx int) error
	SetPowerProfileModeHeuristics(table [][]int64) error

	// Power states (step 6); only called when cfg.IsManual().
	SetEnabledPowerStates(kind api.PowerStateKind, indices []int) error

	// Fan control (step 7).
	FanEngine() *fancontrol.Engine
	RestoreAutoFan() error

	// PMFW standalone options (step 8).
	ApplyPmfwOptions(*api.PmfwOptions) error

	// Commit flushes any batched kernel-side writes (step 9).
	Commit() error
}

// clockDownPollInterval and clockDownTimeout bound the wait for the
// core clock to settle to pstate 0 before a lowered power cap is
// written (spec.md §4.2 step 1, §5 Timeouts: 250ms poll, 3s cap).
const (
	clockDownPollInterval = 250 * time.Millisecond
	clockDownTimeout      = 3 * time.Second
)

// Apply runs the shared apply_config algorithm (spec.md §4.2) against
// b, transitioning from previous to next. On failure it attempts a
// best-effort rollback to previous and returns the original error with
// the rollback outcome attached as context.
func Apply(ctx context.Context, b Backend, previous, next api.GpuConfig) error {
	if err := validate(next); err != nil {
		return err
	}

	if err := apply(ctx, b, next); err != nil {
		log.Logger.Errorw("apply_config failed, rolling back", "error", err)
		if rbErr := apply(ctx, b, previous); rbErr != nil {
			return fmt.Errorf("apply failed: %w (rollback also failed: %v)", err, rbErr)
		}
		return fmt.Errorf("apply failed, rolled back to previous config: %w", err)
	}
	return nil
}

// validate enforces spec.md §3 invariant 3 ahead of any write: manual-
// only fields are rejected outright when performance_level != manual.
func validate(cfg api.GpuConfig) error {
	if cfg.IsManual() {
		return nil
	}
	if cfg.PowerProfileModeIndex != nil || cfg.CustomPowerProfileModeHeuristics != nil {
		return errdefs.InvalidArgumentf("power_profile_mode_index requires performance_level=manual")
	}
	if len(cfg.PowerStates) > 0 {
		return errdefs.InvalidArgumentf("power_states requires performance_level=manual")
	}
	return nil
}

func apply(ctx context.Context, b Backend, cfg api.GpuConfig) error {
	// Step 1: power cap.
	if err := applyPowerCap(ctx, b, cfg); err != nil {
		return fmt.Errorf("power cap: %w", err)
	}

	// Step 2: clocks baseline.
	if err := b.ResetClocksTable(); err != nil && !errdefs.IsNotSupported(err) {
		return fmt.Errorf("clocks baseline reset: %w", err)
	}
	if b.IsLockedManualPart() {
		if err := b.SetPerformanceLevel(api.PerformanceLevelManual); err != nil {
			return fmt.Errorf("forcing manual performance level on locked part: %w", err)
		}
	} else {
		if err := b.SetPerformanceLevel(api.PerformanceLevelAuto); err != nil && !errdefs.IsNotSupported(err) {
			return fmt.Errorf("cycling performance level to auto: %w", err)
		}
	}

	// Step 3: clocks table.
	if cfg.ClocksConfiguration != nil {
		if err := b.ApplyClocksConfiguration(*cfg.ClocksConfiguration); err != nil {
			return fmt.Errorf("clocks table: %w", err)
		}
	}

	// Step 4: explicit performance level (overrides step 2's cycle).
	if cfg.PerformanceLevel != nil {
		if err := b.SetPerformanceLevel(*cfg.PerformanceLevel); err != nil {
			return fmt.Errorf("performance level: %w", err)
		}
	}

	// Step 5: power profile mode (manual only, validated above).
	if cfg.IsManual() {
		switch {
		case cfg.CustomPowerProfileModeHeuristics != nil:
			if err := b.SetPowerProfileModeHeuristics(cfg.CustomPowerProfileModeHeuristics); err != nil {
				return fmt.Errorf("power profile mode heuristics: %w", err)
			}
		case cfg.PowerProfileModeIndex != nil:
			if err := b.SetPowerProfileModeIndex(*cfg.PowerProfileModeIndex); err != nil {
				return fmt.Errorf("power profile mode index: %w", err)
			}
		}

		// Step 6: power states (manual only).
		for kind, indices := range cfg.PowerStates {
			if err := b.SetEnabledPowerStates(kind, indices); err != nil {
				return fmt.Errorf("power states %s: %w", kind, err)
			}
		}
	}

	// Step 7: fan control.
	if cfg.FanControlEnabled && cfg.FanControlSettings != nil {
		if err := b.FanEngine().Reconfigure(ctx, *cfg.FanControlSettings); err != nil {
			return fmt.Errorf("fan control: %w", err)
		}
	} else {
		b.FanEngine().Stop(ctx)
		if err := b.RestoreAutoFan(); err != nil && !errdefs.IsNotSupported(err) {
			return fmt.Errorf("restoring automatic fan control: %w", err)
		}
	}

	// Step 8: PMFW standalone options (orthogonal to curve/static mode).
	if cfg.PmfwOptions != nil {
		if err := b.ApplyPmfwOptions(cfg.PmfwOptions); err != nil {
			return fmt.Errorf("pmfw options: %w", err)
		}
	}

	// Step 9: commit handles.
	if err := b.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func applyPowerCap(ctx context.Context, b Backend, cfg api.GpuConfig) error {
	if cfg.PowerCapWatts != nil {
		usage, err := b.CurrentUsageWatts()
		if err == nil && usage > *cfg.PowerCapWatts {
			prevLevel, lerr := b.PerformanceLevel()
			if lerr == nil {
				if err := b.SetPerformanceLevel(api.PerformanceLevelLow); err != nil {
					return fmt.Errorf("forcing low performance level before cap: %w", err)
				}
				if err := waitForClockDown(ctx, b); err != nil {
					return err
				}
				defer func() {
					if err := b.SetPerformanceLevel(prevLevel); err != nil {
						log.Logger.Warnw("failed to restore performance level after power cap change", "error", err)
					}
				}()
			}
		}

		current, supported, err := b.CurrentPowerCapWatts()
		if err != nil {
			return err
		}
		if !supported || current != *cfg.PowerCapWatts {
			if err := b.SetPowerCapWatts(*cfg.PowerCapWatts); err != nil {
				return err
			}
		}
		return nil
	}

	// No cap requested: restore the vendor default, same skip-if-equal rule.
	def, supported, err := b.DefaultPowerCapWatts()
	if err != nil || !supported {
		return nil
	}
	current, _, err := b.CurrentPowerCapWatts()
	if err != nil {
		return err
	}
	if current == def {
		return nil
	}
	return b.SetPowerCapWatts(def)
}

// waitForClockDown polls CorePstateIsZero every 250ms for up to 3s,
// guarding against the driver pathology where lowering the cap at high
// load hangs the device (spec.md §4.2 step 1, §8 scenario 3).
func waitForClockDown(ctx context.Context, b Backend) error {
	deadline := time.Now().Add(clockDownTimeout)
	ticker := time.NewTicker(clockDownPollInterval)
	defer ticker.Stop()

	for {
		ok, err := b.CorePstateIsZero()
		if err == nil && ok {
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("%w: gpu did not clock down within %s", errdefs.ErrDeviceBusy, clockDownTimeout)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
