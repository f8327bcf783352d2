package intel

import (
	"context"

	"github.com/openlact/lactd/api"
	"github.com/openlact/lactd/internal/controller"
	"github.com/openlact/lactd/internal/errdefs"
)

// DeviceInfo mirrors intel.rs's get_info: no vbios_version, no link
// info, no drm_info — i915/xe expose none of those through sysfs in
// the original controller, so they're left at their zero values rather
// than invented.
func (c *Controller) DeviceInfo() (api.DeviceInfo, error) {
	info := api.DeviceInfo{
		ID:     c.ID(),
		Vendor: api.VendorIntel,
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
	return info, nil
}

// Stats mirrors intel.rs's get_stats: only the Xe driver's first GT
// tile exposes a current/actual clock file; i915 stats are left empty,
// matching the original's behavior (its read_gt_file helper only
// resolves against tile_gts, which are only populated for Xe).
func (c *Controller) Stats(*api.GpuConfig) (api.DeviceStats, error) {
	var stats api.DeviceStats
	stats.Temps = map[string]api.TempSensor{}

	if c.isXe {
		if gt := c.firstGt(); gt != nil {
			if act, err := gt.ActFreq(); err == nil && act != 0 {
				v := float64(act)
				stats.Clockspeed.GpuMhz = &v
			} else if cur, err := gt.CurFreq(); err == nil {
				v := float64(cur)
				stats.Clockspeed.GpuMhz = &v
			}
		}
	}
	return stats, nil
}

// ClocksInfo mirrors intel.rs's get_clocks_info, reading each driver's
// min/max/rp0/rpe/rpn frequency files into the shared ClocksInfo shape.
func (c *Controller) ClocksInfo() (api.ClocksInfo, error) {
	var info api.ClocksInfo

	gt := c.firstGt()
	if gt == nil {
		return info, nil
	}
	min, minErr := gt.MinFreq()
	max, maxErr := gt.MaxFreq()
	if minErr == nil && maxErr == nil {
		info.CoreClockRangeMhz = &api.Range{Min: min, Max: max}
	}
	if rp0, err := gt.RP0Freq(); err == nil {
		info.MaxCoreClockMhz = &rp0
	}
	return info, nil
}

// PowerProfileModes: intel.rs's get_power_profile_modes always errors.
func (c *Controller) PowerProfileModes() (api.PowerProfileModesTable, error) {
	return api.PowerProfileModesTable{}, errdefs.NotSupportedf("intel has no power profile modes")
}

// PowerStates: intel.rs's get_power_states always returns the default
// (empty) table.
func (c *Controller) PowerStates(*api.GpuConfig) (api.PowerStatesInfo, error) {
	return api.PowerStatesInfo{}, nil
}

// ApplyConfig runs the shared apply algorithm against this controller's
// own Backend implementation.
func (c *Controller) ApplyConfig(ctx context.Context, cfg api.GpuConfig) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := controller.Apply(ctx, c, c.previous, cfg); err != nil {
		return err
	}
	c.previous = cfg
	return nil
}

// ResetPmfwSettings: intel.rs's reset_pmfw_settings is a no-op.
func (c *Controller) ResetPmfwSettings() error { return nil }

// CleanupClocks: intel.rs's cleanup_clocks is a no-op.
func (c *Controller) CleanupClocks() error { return nil }

// VbiosDump: intel.rs's vbios_dump always errors.
func (c *Controller) VbiosDump() ([]byte, error) {
	return nil, errdefs.NotSupportedf("intel vbios dump is not supported")
}
