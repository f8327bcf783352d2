package amd

import (
	"context"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/openlact/lactd/api"
	"github.com/openlact/lactd/internal/controller"
	"github.com/openlact/lactd/internal/errdefs"
	"github.com/openlact/lactd/internal/log"
)

// DeviceInfo assembles the read-only device description from pci.ids
// lookups, the PCIe link sysfs files, and the DRM render node
// (spec.md §3, §4.1).
func (c *Controller) DeviceInfo() (api.DeviceInfo, error) {
	info := api.DeviceInfo{
		ID:     c.ID(),
		Vendor: api.VendorAMD,
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

	if v, err := c.sysfsPath.ReadString("vbios_version"); err == nil {
		info.VbiosVersion = v
	}

	info.Link = api.LinkInfo{
		CurrentSpeed: readOptString(c.sysfsPath, "current_link_speed"),
		CurrentWidth: readOptString(c.sysfsPath, "current_link_width"),
		MaxSpeed:     readOptString(c.sysfsPath, "max_link_speed"),
		MaxWidth:     readOptString(c.sysfsPath, "max_link_width"),
	}

	if dev, vram, err := c.renderNode(); err == nil {
		drm := &api.DrmInfo{
			FamilyName:   strconv.FormatUint(uint64(dev.FamilyID), 10),
			ComputeUnits: int(dev.CuActiveNumber),
			VramType:     dev.VramType,
			VramBitWidth: int(dev.VramBitWidth),
		}
		if vram != nil {
			used, _ := c.sysfsPath.ReadUint64("mem_info_vis_vram_used")
			drm.Memory = &api.DrmMemory{
				CpuAccessibleTotalBytes: vram.VisibleTotalBytes,
				CpuAccessibleUsedBytes:  used,
			}
		}
		info.Drm = drm
	}

	return info, nil
}

func readOptString(h interface{ ReadString(string) (string, error) }, name string) string {
	s, err := h.ReadString(name)
	if err != nil {
		return ""
	}
	return s
}

// Stats reads live sensor/clock/power data (spec.md §3, §4.1).
func (c *Controller) Stats(activeGpuConfig *api.GpuConfig) (api.DeviceStats, error) {
	var stats api.DeviceStats

	if c.hwmon != nil {
		stats.Temps = map[string]api.TempSensor{}
		for name, idx := range c.hwmon.TempSensorNames() {
			if cur, crit, hyst, err := c.hwmon.Temperature(idx); err == nil {
				stats.Temps[name] = api.TempSensor{Current: cur, Crit: crit, CritHyst: hyst}
			}
		}

		if rpm, err := c.hwmon.FanInputRpm(); err == nil {
			stats.Fan.SpeedCurrentRpm = u32ptr(rpm)
		}
		if rpm, err := c.hwmon.FanMinRpm(); err == nil {
			stats.Fan.SpeedMinRpm = u32ptr(rpm)
		}
		if rpm, err := c.hwmon.FanMaxRpm(); err == nil {
			stats.Fan.SpeedMaxRpm = u32ptr(rpm)
		}
		if pwm, err := c.hwmon.Pwm(); err == nil {
			stats.Fan.PwmCurrent = u8ptr(pwm)
		}

		if watts, err := c.hwmon.PowerInputWatts(); err == nil {
			stats.Power.CurrentWatts = f64ptr(watts)
			stats.Power.AverageWatts = f64ptr(watts)
		}
		if watts, err := c.hwmon.PowerCapWatts(); err == nil {
			stats.Power.CapCurrent = f64ptr(watts)
		}
		if watts, err := c.hwmon.PowerCapMinWatts(); err == nil {
			stats.Power.CapMin = f64ptr(watts)
		}
		if watts, err := c.hwmon.PowerCapMaxWatts(); err == nil {
			stats.Power.CapMax = f64ptr(watts)
		}
		if watts, err := c.hwmon.PowerCapDefaultWatts(); err == nil {
			stats.Power.CapDefault = f64ptr(watts)
		}
	}

	if level, err := c.PerformanceLevel(); err == nil {
		stats.PerformanceLevel = string(level)
	}

	if used, err := c.sysfsPath.ReadUint64("mem_info_vram_used"); err == nil {
		stats.Vram.UsedBytes = used
	}
	if total, err := c.sysfsPath.ReadUint64("mem_info_vram_total"); err == nil {
		stats.Vram.TotalBytes = total
	}

	if pct, err := c.sysfsPath.ReadUint64("gpu_busy_percent"); err == nil {
		stats.BusyPercent = f64ptr(float64(pct))
	}

	stats.Fan.ControlEnabled = activeGpuConfig != nil && activeGpuConfig.FanControlEnabled
	if activeGpuConfig != nil && activeGpuConfig.FanControlSettings != nil {
		settings := activeGpuConfig.FanControlSettings
		mode := settings.Mode
		stats.Fan.Mode = &mode
		if mode == api.FanModeStatic {
			stats.Fan.StaticSpeed = f64ptr(settings.StaticSpeed)
		} else {
			curve := settings.Curve
			stats.Fan.Curve = &curve
		}
	}

	return stats, nil
}

func u32ptr(v uint32) *uint32   { return &v }
func u8ptr(v uint8) *uint8      { return &v }
func f64ptr(v float64) *float64 { return &v }

// ClocksInfo reports the overclocking table's bounds (spec.md §3,
// §4.1), read from pp_od_clk_voltage's "OD_RANGE" section.
func (c *Controller) ClocksInfo() (api.ClocksInfo, error) {
	var info api.ClocksInfo
	lines, err := c.sysfsPath.ReadLines("pp_od_clk_voltage")
	if err != nil {
		return info, errdefs.NotSupportedf("device has no overclocking table")
	}

	inRange := false
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if trimmed == "OD_RANGE:" {
			inRange = true
			continue
		}
		if !inRange {
			continue
		}
		fields := strings.Fields(trimmed)
		if len(fields) < 3 {
			continue
		}
		lo, hi := parseMhzBound(fields[1]), parseMhzBound(fields[2])
		switch fields[0] {
		case "SCLK:":
			info.CoreClockRangeMhz = &api.Range{Min: lo, Max: hi}
		case "MCLK:":
			info.MemoryClockRangeMhz = &api.Range{Min: lo, Max: hi}
		case "VDDC_CURVE_SCLK[0]:", "VDDGFX_OFFSET:":
			info.VoltageRangeMv = &api.Range{Min: lo, Max: hi}
		}
	}
	return info, nil
}

func parseMhzBound(field string) int64 {
	s := strings.TrimSuffix(strings.TrimSuffix(field, "mV"), "Mhz")
	v, _ := strconv.ParseInt(s, 10, 64)
	return v
}

// PowerProfileModes parses pp_power_profile_mode's mode list and
// heuristics table (spec.md §3, §4.1). Each mode line is "<idx> <name>
// [column headers and values for the active row]"; the table's column
// headers are read off the header line once.
func (c *Controller) PowerProfileModes() (api.PowerProfileModesTable, error) {
	lines, err := c.sysfsPath.ReadLines("pp_power_profile_mode")
	if err != nil {
		return api.PowerProfileModesTable{}, errdefs.NotSupportedf("device has no power profile modes")
	}

	var table api.PowerProfileModesTable
	for i, line := range lines {
		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}
		if i == 0 && !isDigitPrefixed(fields[0]) {
			table.HeuristicsNames = fields[1:]
			continue
		}
		idxField := strings.TrimSuffix(fields[0], "*")
		idx, err := strconv.Atoi(idxField)
		if err != nil {
			continue
		}
		table.Modes = append(table.Modes, fields[1])
		if strings.HasSuffix(fields[0], "*") {
			table.ActiveIndex = idx
		}
		if len(fields) > 2 {
			row := make([]int64, 0, len(fields)-2)
			for _, v := range fields[2:] {
				n, err := strconv.ParseInt(v, 10, 64)
				if err != nil {
					continue
				}
				row = append(row, n)
			}
			if len(row) > 0 {
				table.Heuristics = append(table.Heuristics, row)
			}
		}
	}
	return table, nil
}

func isDigitPrefixed(s string) bool {
	return len(s) > 0 && s[0] >= '0' && s[0] <= '9'
}

// PowerStates reads the pp_dpm_{sclk,mclk} tables, marking each entry
// enabled/disabled from activeGpuConfig.PowerStates when the caller has
// a manual selection in effect, defaulting to enabled otherwise (spec.md
// §3, §4.1, grounded on get_power_states_kind's enabled_states lookup).
func (c *Controller) PowerStates(activeGpuConfig *api.GpuConfig) (api.PowerStatesInfo, error) {
	return api.PowerStatesInfo{
		Core: c.readPowerStateTable("pp_dpm_sclk", api.PowerStateKindCore, activeGpuConfig),
		Vram: c.readPowerStateTable("pp_dpm_mclk", api.PowerStateKindMemory, activeGpuConfig),
	}, nil
}

func (c *Controller) readPowerStateTable(file string, kind api.PowerStateKind, cfg *api.GpuConfig) []api.PowerStateEntry {
	lines, err := c.sysfsPath.ReadPstateTableFuzzy(file)
	if err != nil {
		return nil
	}

	var enabled map[int]bool
	if cfg != nil {
		if indices, ok := cfg.PowerStates[kind]; ok {
			enabled = map[int]bool{}
			for _, idx := range indices {
				enabled[idx] = true
			}
		}
	}

	entries := make([]api.PowerStateEntry, 0, len(lines))
	for _, line := range lines {
		fields := strings.Fields(line)
		if len(fields) < 2 {
			continue
		}
		idxField := strings.TrimSuffix(fields[0], ":")
		idx, err := strconv.Atoi(idxField)
		if err != nil {
			continue
		}
		isEnabled := true
		if enabled != nil {
			isEnabled = enabled[idx]
		}
		entries = append(entries, api.PowerStateEntry{
			Index:   idx,
			Value:   strings.TrimSuffix(fields[1], "*"),
			Enabled: isEnabled,
		})
	}
	return entries
}

// ApplyConfig drives the shared apply algorithm against this
// controller's own Backend implementation, tracking the previously
// applied config for rollback (spec.md §4.2).
func (c *Controller) ApplyConfig(ctx context.Context, cfg api.GpuConfig) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := controller.Apply(ctx, c, c.previous, cfg); err != nil {
		return err
	}
	c.previous = cfg
	return nil
}

// ResetPmfwSettings best-effort resets each PMFW field the hardware
// currently reports a value for, skipping fields it doesn't support
// (spec.md §7, grounded on amd.rs's reset_pmfw_settings).
func (c *Controller) ResetPmfwSettings() error {
	fanCtrl := c.sysfsPath.Join("gpu_od", "fan_ctrl")
	for _, file := range []string{
		"fan_target_temperature",
		"acoustic_target_rpm_threshold",
		"acoustic_limit_rpm_threshold",
		"fan_minimum_pwm",
	} {
		if fanCtrl.Exists(file) {
			if err := fanCtrl.WriteString(file, "r\n"); err != nil {
				log.Logger.Warnw("resetting pmfw setting failed", "file", file, "error", err)
			}
		}
	}
	return nil
}

// CleanupClocks resets the overclocking table to hardware defaults.
func (c *Controller) CleanupClocks() error {
	if !c.sysfsPath.Exists("pp_od_clk_voltage") {
		return nil
	}
	return c.sysfsPath.WriteString("pp_od_clk_voltage", "r\n")
}

// VbiosDump reads the raw VBIOS image from debugfs: the kernel only
// exposes it under /sys/kernel/debug/dri/<N>/amdgpu_vbios, where N is
// discovered by matching this device's PCI slot against each debugfs
// dri directory's "name" file (spec.md §3, grounded on amd.rs's
// debugfs_path/vbios_dump).
func (c *Controller) VbiosDump() ([]byte, error) {
	debugfs, err := findDebugfsDir(c.info.PciSlot.String())
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(filepath.Join(debugfs, "amdgpu_vbios"))
	if err != nil {
		return nil, errdefs.WithPath(err, filepath.Join(debugfs, "amdgpu_vbios"))
	}
	return data, nil
}

func findDebugfsDir(slot string) (string, error) {
	const root = "/sys/kernel/debug/dri"
	entries, err := os.ReadDir(root)
	if err != nil {
		return "", errdefs.NotSupportedf("debugfs not available: %v", err)
	}
	needle := "dev=" + slot
	for _, e := range entries {
		namePath := filepath.Join(root, e.Name(), "name")
		data, err := os.ReadFile(namePath)
		if err != nil {
			continue
		}
		if strings.Contains(string(data), needle) {
			return filepath.Join(root, e.Name()), nil
		}
	}
	return "", errdefs.NotSupportedf("no debugfs directory found for pci slot %s", slot)
}
