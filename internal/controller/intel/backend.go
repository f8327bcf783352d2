package intel

import (
	"github.com/openlact/lactd/api"
	"github.com/openlact/lactd/internal/errdefs"
	"github.com/openlact/lactd/internal/fancontrol"
)

// CurrentPowerCapWatts: intel.rs implements no power cap control.
func (c *Controller) CurrentPowerCapWatts() (float64, bool, error) { return 0, false, nil }

// DefaultPowerCapWatts: see CurrentPowerCapWatts.
func (c *Controller) DefaultPowerCapWatts() (float64, bool, error) { return 0, false, nil }

// SetPowerCapWatts: see CurrentPowerCapWatts.
func (c *Controller) SetPowerCapWatts(float64) error {
	return errdefs.NotSupportedf("intel has no power cap control")
}

// CurrentUsageWatts: no power sensor is read by intel.rs.
func (c *Controller) CurrentUsageWatts() (float64, error) {
	return 0, errdefs.NotSupportedf("intel exposes no power usage sensor")
}

// CorePstateIsZero is unreachable: PerformanceLevel always reports
// unsupported, so the shared algorithm's clock-down wait never gates
// on it.
func (c *Controller) CorePstateIsZero() (bool, error) { return true, nil }

// PerformanceLevel: i915/xe have no power_dpm_force_performance_level
// analogue.
func (c *Controller) PerformanceLevel() (api.PerformanceLevel, error) {
	return "", errdefs.NotSupportedf("intel has no performance level control")
}

// SetPerformanceLevel: see PerformanceLevel.
func (c *Controller) SetPerformanceLevel(api.PerformanceLevel) error {
	return errdefs.NotSupportedf("intel has no performance level control")
}

// IsLockedManualPart: no Intel part needs the Van Gogh/Sephiroth dance.
func (c *Controller) IsLockedManualPart() bool { return false }

// ResetClocksTable: intel.rs's cleanup_clocks is a no-op; there is no
// separate "reset" distinct from writing an explicit min/max again.
func (c *Controller) ResetClocksTable() error {
	return errdefs.NotSupportedf("intel has no clocks table to reset")
}

// ApplyClocksConfiguration writes the GT min/max frequency files,
// dispatching on driver type exactly as intel.rs's apply_config does.
// Memory clock, voltage, and per-pstate offset fields have no Intel
// GT-frequency equivalent and are reported unsupported.
func (c *Controller) ApplyClocksConfiguration(cc api.ClocksConfiguration) error {
	if cc.MinMemoryClockMhz != nil || cc.MaxMemoryClockMhz != nil ||
		cc.MinVoltageMv != nil || cc.MaxVoltageMv != nil || cc.VoltageOffsetMv != nil ||
		len(cc.GpuClockOffsetsMhz) > 0 || len(cc.MemClockOffsetsMhz) > 0 {
		return errdefs.NotSupportedf("intel only supports core clock min/max")
	}

	gt := c.firstGt()
	if gt == nil {
		return errdefs.NotSupportedf("device has no gt available")
	}
	if cc.MaxCoreClockMhz != nil {
		if err := gt.SetMaxFreq(*cc.MaxCoreClockMhz); err != nil {
			return err
		}
	}
	if cc.MinCoreClockMhz != nil {
		if err := gt.SetMinFreq(*cc.MinCoreClockMhz); err != nil {
			return err
		}
	}
	return nil
}

// SetPowerProfileModeIndex: intel.rs's get_power_profile_modes returns
// an error unconditionally; there is no mode table to select from.
func (c *Controller) SetPowerProfileModeIndex(int) error {
	return errdefs.NotSupportedf("intel has no power profile modes")
}

// SetPowerProfileModeHeuristics: see SetPowerProfileModeIndex.
func (c *Controller) SetPowerProfileModeHeuristics([][]int64) error {
	return errdefs.NotSupportedf("intel has no power profile modes")
}

// SetEnabledPowerStates: intel.rs's get_power_states always returns the
// default (empty) table.
func (c *Controller) SetEnabledPowerStates(api.PowerStateKind, []int) error {
	return errdefs.NotSupportedf("intel has no maskable power states")
}

// FanEngine returns this controller's (always-idle) fan-control engine.
func (c *Controller) FanEngine() *fancontrol.Engine { return c.fanEngine }

// RestoreAutoFan: no fan control exists to restore.
func (c *Controller) RestoreAutoFan() error {
	return errdefs.NotSupportedf("intel has no fan control")
}

// ApplyPmfwOptions: PMFW fan firmware settings are an AMD-only concept.
func (c *Controller) ApplyPmfwOptions(*api.PmfwOptions) error {
	return errdefs.NotSupportedf("intel has no pmfw fan settings")
}

// Commit: every write above lands directly on sysfs.
func (c *Controller) Commit() error { return nil }
