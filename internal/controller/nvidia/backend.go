package nvidia

import (
	"maps"
	"slices"

	"github.com/NVIDIA/go-nvml/pkg/nvml"

	"github.com/openlact/lactd/api"
	"github.com/openlact/lactd/internal/drm/nvmlpool"
	"github.com/openlact/lactd/internal/errdefs"
	"github.com/openlact/lactd/internal/fancontrol"
)

const milliwattsPerWatt = 1000.0

// CurrentPowerCapWatts reads nvmlDeviceGetPowerManagementLimit.
func (c *Controller) CurrentPowerCapWatts() (float64, bool, error) {
	mw, ret := c.dev.GetPowerManagementLimit()
	if ret == nvml.ERROR_NOT_SUPPORTED {
		return 0, false, nil
	}
	if ret != nvml.SUCCESS {
		return 0, false, nvmlpool.Wrap("GetPowerManagementLimit", ret)
	}
	return float64(mw) / milliwattsPerWatt, true, nil
}

// DefaultPowerCapWatts reads nvmlDeviceGetPowerManagementDefaultLimit.
func (c *Controller) DefaultPowerCapWatts() (float64, bool, error) {
	mw, ret := c.dev.GetPowerManagementDefaultLimit()
	if ret == nvml.ERROR_NOT_SUPPORTED {
		return 0, false, nil
	}
	if ret != nvml.SUCCESS {
		return 0, false, nvmlpool.Wrap("GetPowerManagementDefaultLimit", ret)
	}
	return float64(mw) / milliwattsPerWatt, true, nil
}

// SetPowerCapWatts writes nvmlDeviceSetPowerManagementLimit; the
// constraint range (GetPowerManagementLimitConstraints) is left for the
// driver itself to enforce, same as the amd backend leaves pp_od range
// enforcement to the kernel.
func (c *Controller) SetPowerCapWatts(watts float64) error {
	ret := c.dev.SetPowerManagementLimit(uint32(watts * milliwattsPerWatt))
	return nvmlpool.Wrap("SetPowerManagementLimit", ret)
}

// CurrentUsageWatts reads nvmlDeviceGetPowerUsage.
func (c *Controller) CurrentUsageWatts() (float64, error) {
	mw, ret := c.dev.GetPowerUsage()
	if ret != nvml.SUCCESS {
		return 0, nvmlpool.Wrap("GetPowerUsage", ret)
	}
	return float64(mw) / milliwattsPerWatt, nil
}

// CorePstateIsZero is unreachable through the shared apply algorithm
// (PerformanceLevel always reports NotSupported here, so
// waitForClockDown's gate never fires), but is implemented faithfully
// against nvmlDeviceGetPerformanceState for completeness.
func (c *Controller) CorePstateIsZero() (bool, error) {
	ps, ret := c.dev.GetPerformanceState()
	if ret != nvml.SUCCESS {
		return false, nvmlpool.Wrap("GetPerformanceState", ret)
	}
	return ps == nvml.PSTATE_0, nil
}

// PerformanceLevel: Nvidia has no power_dpm_force_performance_level
// analogue exposed through NVML; requests are reported unsupported
// rather than mapped onto an unrelated knob.
func (c *Controller) PerformanceLevel() (api.PerformanceLevel, error) {
	return "", errdefs.NotSupportedf("nvidia has no performance level control")
}

// SetPerformanceLevel is unsupported, see PerformanceLevel.
func (c *Controller) SetPerformanceLevel(api.PerformanceLevel) error {
	return errdefs.NotSupportedf("nvidia has no performance level control")
}

// IsLockedManualPart: the Steam Deck allow-list is an AMD APU quirk; no
// Nvidia part requires it.
func (c *Controller) IsLockedManualPart() bool { return false }

// ResetClocksTable clears both locked-clock ranges and VF offsets.
func (c *Controller) ResetClocksTable() error {
	if ret := c.dev.ResetGpuLockedClocks(); ret != nvml.SUCCESS && ret != nvml.ERROR_NOT_SUPPORTED {
		return nvmlpool.Wrap("ResetGpuLockedClocks", ret)
	}
	if ret := c.dev.ResetMemoryLockedClocks(); ret != nvml.SUCCESS && ret != nvml.ERROR_NOT_SUPPORTED {
		return nvmlpool.Wrap("ResetMemoryLockedClocks", ret)
	}
	if ret := c.dev.SetGpcClkVfOffset(0); ret != nvml.SUCCESS && ret != nvml.ERROR_NOT_SUPPORTED {
		return nvmlpool.Wrap("SetGpcClkVfOffset", ret)
	}
	if ret := c.dev.SetMemClkVfOffset(0); ret != nvml.SUCCESS && ret != nvml.ERROR_NOT_SUPPORTED {
		return nvmlpool.Wrap("SetMemClkVfOffset", ret)
	}
	return nil
}

// ApplyClocksConfiguration maps the min/max core and memory clock
// fields onto nvmlDeviceSetGpuLockedClocks/SetMemoryLockedClocks, and
// the offset maps onto nvmlDeviceSetGpcClkVfOffset/SetMemClkVfOffset.
// Those VF-offset calls are process-wide, not per-pstate-index like
// AMD's pp_od_clk_voltage table, so every entry of the offset map is
// applied in ascending pstate-index order and the last one wins. Voltage fields have no NVML
// equivalent and are reported unsupported rather than silently
// dropped.
func (c *Controller) ApplyClocksConfiguration(cc api.ClocksConfiguration) error {
	if cc.MinVoltageMv != nil || cc.MaxVoltageMv != nil || cc.VoltageOffsetMv != nil {
		return errdefs.NotSupportedf("nvidia has no voltage control")
	}

	if cc.MinCoreClockMhz != nil && cc.MaxCoreClockMhz != nil {
		ret := c.dev.SetGpuLockedClocks(uint32(*cc.MinCoreClockMhz), uint32(*cc.MaxCoreClockMhz))
		if ret != nvml.SUCCESS {
			return nvmlpool.Wrap("SetGpuLockedClocks", ret)
		}
	}
	if cc.MinMemoryClockMhz != nil && cc.MaxMemoryClockMhz != nil {
		ret := c.dev.SetMemoryLockedClocks(uint32(*cc.MinMemoryClockMhz), uint32(*cc.MaxMemoryClockMhz))
		if ret != nvml.SUCCESS {
			return nvmlpool.Wrap("SetMemoryLockedClocks", ret)
		}
	}
	for _, idx := range slices.Sorted(maps.Keys(cc.GpuClockOffsetsMhz)) {
		offset := cc.GpuClockOffsetsMhz[idx]
		if ret := c.dev.SetGpcClkVfOffset(int(offset)); ret != nvml.SUCCESS {
			return nvmlpool.Wrap("SetGpcClkVfOffset", ret)
		}
	}
	for _, idx := range slices.Sorted(maps.Keys(cc.MemClockOffsetsMhz)) {
		offset := cc.MemClockOffsetsMhz[idx]
		if ret := c.dev.SetMemClkVfOffset(int(offset)); ret != nvml.SUCCESS {
			return nvmlpool.Wrap("SetMemClkVfOffset", ret)
		}
	}
	return nil
}

// SetPowerProfileModeIndex: Nvidia has no pp_power_profile_mode
// analogue through NVML.
func (c *Controller) SetPowerProfileModeIndex(int) error {
	return errdefs.NotSupportedf("nvidia has no power profile modes")
}

// SetPowerProfileModeHeuristics: see SetPowerProfileModeIndex.
func (c *Controller) SetPowerProfileModeHeuristics([][]int64) error {
	return errdefs.NotSupportedf("nvidia has no power profile modes")
}

// SetEnabledPowerStates: Nvidia exposes no dpm-style enable/disable
// mask through NVML, only the read-only supported-clocks lists.
func (c *Controller) SetEnabledPowerStates(api.PowerStateKind, []int) error {
	return errdefs.NotSupportedf("nvidia has no maskable power states")
}

// FanEngine returns this controller's fan-control engine.
func (c *Controller) FanEngine() *fancontrol.Engine { return c.fanEngine }

// RestoreAutoFan hands every fan back to the card's built-in control
// via nvmlDeviceSetDefaultFanSpeed_v2.
func (c *Controller) RestoreAutoFan() error {
	n, ret := c.dev.GetNumFans()
	if ret == nvml.ERROR_NOT_SUPPORTED {
		return nil
	}
	if ret != nvml.SUCCESS {
		return nvmlpool.Wrap("GetNumFans", ret)
	}
	for i := 0; i < n; i++ {
		if ret := c.dev.SetDefaultFanSpeed_v2(i); ret != nvml.SUCCESS && ret != nvml.ERROR_NOT_SUPPORTED {
			return nvmlpool.Wrap("SetDefaultFanSpeed_v2", ret)
		}
	}
	return nil
}

// ApplyPmfwOptions: the PMFW acoustic/zero-rpm fields are AMD-only.
func (c *Controller) ApplyPmfwOptions(*api.PmfwOptions) error {
	return errdefs.NotSupportedf("nvidia has no pmfw fan settings")
}

// Commit is a no-op: every NVML call above takes effect immediately.
func (c *Controller) Commit() error { return nil }
