package nvidia

import (
	"context"
	"fmt"
	"sort"

	"github.com/NVIDIA/go-nvml/pkg/nvml"

	"github.com/openlact/lactd/api"
	"github.com/openlact/lactd/internal/controller"
	"github.com/openlact/lactd/internal/errdefs"
)

func i32ptr(v int32) *int32     { return &v }
func f64ptr(v float64) *float64 { return &v }

// DeviceInfo builds the read-only device description from NVML and the
// PCI ID database (spec.md §3); DrmInfo is left nil since NVML covers
// the same topology ground libdrm_amdgpu/i915 sysfs cover for the
// other two vendors.
func (c *Controller) DeviceInfo() (api.DeviceInfo, error) {
	info := api.DeviceInfo{
		ID:     c.ID(),
		Vendor: api.VendorNvidia,
		Driver: c.info.Driver,
	}

	if c.pciDB != nil {
		if name, ok := c.pciDB.VendorName(c.info.PciDevice.VendorID); ok {
			info.PciVendorName = name
		}
		if name, ok := c.pciDB.DeviceName(c.info.PciDevice.VendorID, c.info.PciDevice.DeviceID); ok {
			info.PciModelName = name
		}
	}

	if v, ret := c.dev.GetVbiosVersion(); ret == nvml.SUCCESS {
		info.VbiosVersion = v
	}

	if gen, ret := c.dev.GetCurrPcieLinkGeneration(); ret == nvml.SUCCESS {
		info.Link.CurrentSpeed = fmt.Sprintf("Gen%d", gen)
	}
	if width, ret := c.dev.GetCurrPcieLinkWidth(); ret == nvml.SUCCESS {
		info.Link.CurrentWidth = fmt.Sprintf("x%d", width)
	}
	if gen, ret := c.dev.GetMaxPcieLinkGeneration(); ret == nvml.SUCCESS {
		info.Link.MaxSpeed = fmt.Sprintf("Gen%d", gen)
	}
	if width, ret := c.dev.GetMaxPcieLinkWidth(); ret == nvml.SUCCESS {
		info.Link.MaxWidth = fmt.Sprintf("x%d", width)
	}

	return info, nil
}

// Stats reads live telemetry (spec.md §3); activeGpuConfig only
// annotates the fan subtree, never drives a physical read.
func (c *Controller) Stats(activeGpuConfig *api.GpuConfig) (api.DeviceStats, error) {
	var stats api.DeviceStats
	stats.Temps = map[string]api.TempSensor{}

	if t, ret := c.dev.GetTemperature(nvml.TEMPERATURE_GPU); ret == nvml.SUCCESS {
		sensor := api.TempSensor{Current: float64(t)}
		if thr, ret := c.dev.GetTemperatureThreshold(nvml.TEMPERATURE_THRESHOLD_SHUTDOWN); ret == nvml.SUCCESS {
			sensor.Crit = f64ptr(float64(thr))
		}
		stats.Temps["gpu"] = sensor
	}

	if pct, ret := c.dev.GetFanSpeed(); ret == nvml.SUCCESS {
		stats.Fan.PwmCurrent = u8ptrFromPercent(pct)
	}
	if activeGpuConfig != nil && activeGpuConfig.FanControlSettings != nil {
		stats.Fan.ControlEnabled = activeGpuConfig.FanControlEnabled
		mode := activeGpuConfig.FanControlSettings.Mode
		stats.Fan.Mode = &mode
		speed := activeGpuConfig.FanControlSettings.StaticSpeed
		stats.Fan.StaticSpeed = &speed
		curve := activeGpuConfig.FanControlSettings.Curve
		stats.Fan.Curve = &curve
	}

	if v, ret := c.dev.GetClockInfo(nvml.CLOCK_GRAPHICS); ret == nvml.SUCCESS {
		stats.Clockspeed.GpuMhz = f64ptr(float64(v))
	}
	if v, ret := c.dev.GetClockInfo(nvml.CLOCK_MEM); ret == nvml.SUCCESS {
		stats.Clockspeed.VramMhz = f64ptr(float64(v))
	}

	if mem, ret := c.dev.GetMemoryInfo(); ret == nvml.SUCCESS {
		stats.Vram.UsedBytes = mem.Used
		stats.Vram.TotalBytes = mem.Total
	}

	if mw, ret := c.dev.GetPowerUsage(); ret == nvml.SUCCESS {
		stats.Power.CurrentWatts = f64ptr(float64(mw) / milliwattsPerWatt)
	}
	if cap, ok, err := c.CurrentPowerCapWatts(); err == nil && ok {
		stats.Power.CapCurrent = f64ptr(cap)
	}
	if def, ok, err := c.DefaultPowerCapWatts(); err == nil && ok {
		stats.Power.CapDefault = f64ptr(def)
	}
	if minW, maxW, ret := c.dev.GetPowerManagementLimitConstraints(); ret == nvml.SUCCESS {
		stats.Power.CapMin = f64ptr(float64(minW) / milliwattsPerWatt)
		stats.Power.CapMax = f64ptr(float64(maxW) / milliwattsPerWatt)
	}

	if util, ret := c.dev.GetUtilizationRates(); ret == nvml.SUCCESS {
		stats.BusyPercent = f64ptr(float64(util.Gpu))
	}

	if ps, ret := c.dev.GetPerformanceState(); ret == nvml.SUCCESS {
		stats.CorePowerState = i32ptr(int32(ps))
	}

	if reasons, ret := c.dev.GetCurrentClocksEventReasons(); ret == nvml.SUCCESS && reasons != 0 {
		stats.ThrottleInfo = map[string][]string{"clocks": decodeClockEventReasons(reasons)}
	}

	return stats, nil
}

// ClocksInfo reports the maximum core and memory clocks from
// nvmlDeviceGetMaxClockInfo; none of the *Range fields are filled.
func (c *Controller) ClocksInfo() (api.ClocksInfo, error) {
	var info api.ClocksInfo
	if v, ret := c.dev.GetMaxClockInfo(nvml.CLOCK_GRAPHICS); ret == nvml.SUCCESS {
		info.MaxCoreClockMhz = i64ptr(int64(v))
	}
	if v, ret := c.dev.GetMaxClockInfo(nvml.CLOCK_MEM); ret == nvml.SUCCESS {
		info.MaxMemoryClockMhz = i64ptr(int64(v))
	}
	return info, nil
}

// PowerProfileModes: Nvidia exposes no named power-profile modes
// through NVML.
func (c *Controller) PowerProfileModes() (api.PowerProfileModesTable, error) {
	return api.PowerProfileModesTable{}, errdefs.NotSupportedf("nvidia has no power profile modes")
}

// PowerStates: Nvidia exposes no maskable dpm table through NVML.
func (c *Controller) PowerStates(*api.GpuConfig) (api.PowerStatesInfo, error) {
	return api.PowerStatesInfo{}, nil
}

// ApplyConfig runs the shared apply algorithm against this controller's
// own Backend implementation, tracking the last-applied config for
// rollback the same way controller/amd does.
func (c *Controller) ApplyConfig(ctx context.Context, cfg api.GpuConfig) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := controller.Apply(ctx, c, c.previous, cfg); err != nil {
		return err
	}
	c.previous = cfg
	return nil
}

// ResetPmfwSettings is a no-op: Nvidia has no PMFW fan fields.
func (c *Controller) ResetPmfwSettings() error { return nil }

// CleanupClocks resets the locked-clock ranges and VF offsets.
func (c *Controller) CleanupClocks() error { return c.ResetClocksTable() }

// VbiosDump: NVML exposes only the VBIOS version string, not the raw
// image (no sysfs/debugfs equivalent to amdgpu_vbios is exposed for
// Nvidia devices bound to the nvidia driver).
func (c *Controller) VbiosDump() ([]byte, error) {
	return nil, errdefs.NotSupportedf("nvidia driver does not expose a raw vbios image")
}

func i64ptr(v int64) *int64 { return &v }

func u8ptrFromPercent(pct uint32) *uint8 {
	v := uint8(pct * 255 / 100)
	return &v
}

// clockEventReasonBits mirrors a subset of the NVML clock event reason
// bitmask (nvmlClocksEventReasons), named the way the teacher names
// them in its own clock-events decoder.
var clockEventReasonBits = []struct {
	bit  uint64
	name string
}{
	{0x0000000000000001, "gpu_idle"},
	{0x0000000000000002, "applications_clocks_setting"},
	{0x0000000000000004, "sw_power_cap"},
	{0x0000000000000008, "hw_slowdown"},
	{0x0000000000000010, "sync_boost"},
	{0x0000000000000020, "sw_thermal_slowdown"},
	{0x0000000000000040, "hw_thermal_slowdown"},
	{0x0000000000000080, "hw_power_brake_slowdown"},
	{0x0000000000000100, "display_clock_setting"},
}

func decodeClockEventReasons(reasons uint64) []string {
	var names []string
	for _, b := range clockEventReasonBits {
		if reasons&b.bit != 0 {
			names = append(names, b.name)
		}
	}
	sort.Strings(names)
	return names
}
