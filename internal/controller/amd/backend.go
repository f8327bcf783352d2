package amd

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/openlact/lactd/api"
	"github.com/openlact/lactd/internal/errdefs"
	"github.com/openlact/lactd/internal/fancontrol"
)

var errNoRenderNode = errors.New("no drm render node for this device")

// CurrentPowerCapWatts reads power1_cap.
func (c *Controller) CurrentPowerCapWatts() (float64, bool, error) {
	if c.hwmon == nil {
		return 0, false, nil
	}
	v, err := c.hwmon.PowerCapWatts()
	if err != nil {
		return 0, false, err
	}
	return v, true, nil
}

// DefaultPowerCapWatts reads power1_cap_default.
func (c *Controller) DefaultPowerCapWatts() (float64, bool, error) {
	if c.hwmon == nil {
		return 0, false, nil
	}
	v, err := c.hwmon.PowerCapDefaultWatts()
	if err != nil {
		return 0, false, err
	}
	return v, true, nil
}

// SetPowerCapWatts writes power1_cap.
func (c *Controller) SetPowerCapWatts(watts float64) error {
	if c.hwmon == nil {
		return errdefs.NotSupportedf("device has no hwmon directory")
	}
	return c.hwmon.SetPowerCapWatts(watts)
}

// CurrentUsageWatts reads power1_average, falling back to power1_input.
func (c *Controller) CurrentUsageWatts() (float64, error) {
	if c.hwmon == nil {
		return 0, errdefs.NotSupportedf("device has no hwmon directory")
	}
	return c.hwmon.PowerInputWatts()
}

// CorePstateIsZero reports whether pp_dpm_sclk's active ("*"-marked)
// entry is index 0, the lowest core pstate (spec.md §4.2 step 1).
func (c *Controller) CorePstateIsZero() (bool, error) {
	lines, err := c.sysfsPath.ReadPstateTableFuzzy("pp_dpm_sclk")
	if err != nil {
		return false, err
	}
	for i, line := range lines {
		if strings.Contains(line, "*") {
			return i == 0, nil
		}
	}
	return false, errdefs.NotSupportedf("pp_dpm_sclk has no active entry")
}

// PerformanceLevel reads power_dpm_force_performance_level.
func (c *Controller) PerformanceLevel() (api.PerformanceLevel, error) {
	s, err := c.sysfsPath.ReadString("power_dpm_force_performance_level")
	if err != nil {
		return "", err
	}
	return api.PerformanceLevel(s), nil
}

// SetPerformanceLevel writes power_dpm_force_performance_level.
func (c *Controller) SetPerformanceLevel(level api.PerformanceLevel) error {
	return c.sysfsPath.WriteString("power_dpm_force_performance_level", string(level))
}

// IsLockedManualPart reports Van Gogh/Sephiroth APUs (spec.md §4.2
// step 2), which reject performance_level=auto whenever a clocks
// override is active.
func (c *Controller) IsLockedManualPart() bool {
	return steamDeckDeviceIDs[c.info.PciDevice.DeviceID]
}

// ResetClocksTable writes the "r" reset command to pp_od_clk_voltage
// (spec.md §4.2 step 2), clearing any prior clock/voltage overrides.
func (c *Controller) ResetClocksTable() error {
	if !c.sysfsPath.Exists("pp_od_clk_voltage") {
		return errdefs.NotSupportedf("device has no overclocking table")
	}
	return c.sysfsPath.WriteString("pp_od_clk_voltage", "r\n")
}

// ApplyClocksConfiguration overlays cc onto the pp_od_clk_voltage table
// using its documented command protocol: "s <state> <mhz>" (sclk),
// "m <state> <mhz>" (mclk), "vo <mv>" (voltage offset), then a trailing
// "c" commit (spec.md §4.2 step 3).
func (c *Controller) ApplyClocksConfiguration(cc api.ClocksConfiguration) error {
	if !c.sysfsPath.Exists("pp_od_clk_voltage") {
		return errdefs.NotSupportedf("device has no overclocking table")
	}

	var cmds []string
	if cc.MinCoreClockMhz != nil {
		cmds = append(cmds, fmt.Sprintf("s 0 %d", *cc.MinCoreClockMhz))
	}
	if cc.MaxCoreClockMhz != nil {
		cmds = append(cmds, fmt.Sprintf("s 1 %d", *cc.MaxCoreClockMhz))
	}
	if cc.MinMemoryClockMhz != nil {
		cmds = append(cmds, fmt.Sprintf("m 0 %d", *cc.MinMemoryClockMhz))
	}
	if cc.MaxMemoryClockMhz != nil {
		cmds = append(cmds, fmt.Sprintf("m 1 %d", *cc.MaxMemoryClockMhz))
	}
	if cc.VoltageOffsetMv != nil {
		cmds = append(cmds, fmt.Sprintf("vo %d", *cc.VoltageOffsetMv))
	}
	if cc.MinVoltageMv != nil {
		cmds = append(cmds, fmt.Sprintf("vc 0 0 %d", *cc.MinVoltageMv))
	}
	if cc.MaxVoltageMv != nil {
		cmds = append(cmds, fmt.Sprintf("vc 0 1 %d", *cc.MaxVoltageMv))
	}

	for _, cmd := range cmds {
		if err := c.sysfsPath.WriteString("pp_od_clk_voltage", cmd+"\n"); err != nil {
			return fmt.Errorf("writing %q: %w", cmd, err)
		}
	}
	return c.sysfsPath.WriteString("pp_od_clk_voltage", "c\n")
}

// SetPowerProfileModeIndex selects a named power-profile mode.
func (c *Controller) SetPowerProfileModeIndex(idx int) error {
	return c.sysfsPath.WriteString("pp_power_profile_mode", strconv.Itoa(idx))
}

// SetPowerProfileModeHeuristics installs a custom heuristics table, one
// write per row addressed by its 0-based clock-type index (the
// pp_power_profile_mode custom-mode protocol).
func (c *Controller) SetPowerProfileModeHeuristics(table [][]int64) error {
	for row, values := range table {
		fields := make([]string, 0, len(values)+1)
		fields = append(fields, strconv.Itoa(row))
		for _, v := range values {
			fields = append(fields, strconv.FormatInt(v, 10))
		}
		if err := c.sysfsPath.WriteString("pp_power_profile_mode", strings.Join(fields, " ")); err != nil {
			return fmt.Errorf("writing heuristics row %d: %w", row, err)
		}
	}
	return nil
}

var powerStateFiles = map[api.PowerStateKind]string{
	api.PowerStateKindCore:   "pp_dpm_sclk",
	api.PowerStateKindMemory: "pp_dpm_mclk",
	api.PowerStateKindPcie:   "pp_dpm_pcie",
}

// SetEnabledPowerStates writes the enabled pstate index list to the
// matching pp_dpm_* file: writing a space-separated index list masks
// dpm to only those states.
func (c *Controller) SetEnabledPowerStates(kind api.PowerStateKind, indices []int) error {
	file, ok := powerStateFiles[kind]
	if !ok {
		return errdefs.InvalidArgumentf("unknown power state kind %q", kind)
	}
	fields := make([]string, len(indices))
	for i, idx := range indices {
		fields[i] = strconv.Itoa(idx)
	}
	return c.sysfsPath.WriteString(file, strings.Join(fields, " "))
}

// FanEngine returns this controller's fan-control engine.
func (c *Controller) FanEngine() *fancontrol.Engine { return c.fanEngine }

// RestoreAutoFan switches pwm1_enable back to automatic (2).
func (c *Controller) RestoreAutoFan() error {
	if c.hwmon == nil {
		return errdefs.NotSupportedf("device has no hwmon directory")
	}
	return c.hwmon.SetPwmEnable(2)
}

// ApplyPmfwOptions writes recent-PMFW fan fields under gpu_od/fan_ctrl,
// skipping any field the hardware doesn't expose (spec.md §4.2 step 8).
func (c *Controller) ApplyPmfwOptions(opts *api.PmfwOptions) error {
	fanCtrl := c.sysfsPath.Join("gpu_od", "fan_ctrl")

	write := func(file string, value uint32) error {
		if !fanCtrl.Exists(file) {
			return nil
		}
		return fanCtrl.WriteInt64(file, int64(value))
	}

	if opts.AcousticLimit != nil {
		if err := write("acoustic_limit_rpm_threshold", *opts.AcousticLimit); err != nil {
			return fmt.Errorf("acoustic limit: %w", err)
		}
	}
	if opts.AcousticTarget != nil {
		if err := write("acoustic_target_rpm_threshold", *opts.AcousticTarget); err != nil {
			return fmt.Errorf("acoustic target: %w", err)
		}
	}
	if opts.TargetTemperature != nil {
		if err := write("fan_target_temperature", *opts.TargetTemperature); err != nil {
			return fmt.Errorf("target temperature: %w", err)
		}
	}
	if opts.MinimumPwm != nil {
		if err := write("fan_minimum_pwm", *opts.MinimumPwm); err != nil {
			return fmt.Errorf("minimum pwm: %w", err)
		}
	}
	if opts.ZeroRpm != nil {
		v := uint32(0)
		if *opts.ZeroRpm {
			v = 1
		}
		if err := write("fan_zero_rpm_enable", v); err != nil {
			return fmt.Errorf("zero rpm: %w", err)
		}
	}
	if opts.ZeroRpmThreshold != nil {
		if err := write("fan_zero_rpm_stop_temperature", *opts.ZeroRpmThreshold); err != nil {
			return fmt.Errorf("zero rpm threshold: %w", err)
		}
	}
	return nil
}

// Commit is a no-op: every write above lands directly on its sysfs
// file, unlike the original amdgpu_sysfs crate's deferred CommitHandle.
func (c *Controller) Commit() error { return nil }
