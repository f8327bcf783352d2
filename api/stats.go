package api

// DeviceStats is read-only, computed on demand (spec.md §3). Physical
// readings are always live; active_gpu_config is only consulted to
// surface user-configured fan settings back to the caller.
type DeviceStats struct {
	Fan         FanStats               `json:"fan"`
	Clockspeed  ClockspeedStats        `json:"clockspeed"`
	Voltage     VoltageStats           `json:"voltage"`
	Vram        VramStats              `json:"vram"`
	Power       PowerStats             `json:"power"`
	Temps       map[string]TempSensor  `json:"temps"`
	BusyPercent *float64               `json:"busy_percent,omitempty"`

	PerformanceLevel string `json:"performance_level,omitempty"`

	CorePowerState   *int32 `json:"core_power_state,omitempty"`
	MemoryPowerState *int32 `json:"memory_power_state,omitempty"`
	PciePowerState   *int32 `json:"pcie_power_state,omitempty"`

	// ThrottleInfo maps a throttle class (e.g. "power", "thermal") to the
	// list of bit names currently asserted in that class.
	ThrottleInfo map[string][]string `json:"throttle_info,omitempty"`
}

// TempSensor is one entry of DeviceStats.Temps.
type TempSensor struct {
	Current  float64  `json:"current"`
	Crit     *float64 `json:"crit,omitempty"`
	CritHyst *float64 `json:"crit_hyst,omitempty"`
}

// FanStats mirrors the fan subtree of DeviceStats (spec.md §3).
type FanStats struct {
	ControlEnabled bool      `json:"control_enabled"`
	Mode           *FanMode  `json:"mode,omitempty"`
	StaticSpeed    *float64  `json:"static_speed,omitempty"`
	Curve          *FanCurve `json:"curve,omitempty"`

	SpeedCurrentRpm *uint32 `json:"speed_current_rpm,omitempty"`
	SpeedMinRpm     *uint32 `json:"speed_min_rpm,omitempty"`
	SpeedMaxRpm     *uint32 `json:"speed_max_rpm,omitempty"`
	PwmCurrent      *uint8  `json:"pwm_current,omitempty"`

	PmfwInfo *PmfwInfo `json:"pmfw_info,omitempty"`
}

// PmfwInfo reports the current PMFW (power management firmware) fan
// settings, when the hardware exposes them.
type PmfwInfo struct {
	AcousticLimit    *uint32 `json:"acoustic_limit,omitempty"`
	AcousticTarget   *uint32 `json:"acoustic_target,omitempty"`
	TargetTemperature *uint32 `json:"target_temperature,omitempty"`
	MinimumPwm       *uint32 `json:"minimum_pwm,omitempty"`
	ZeroRpm          *bool   `json:"zero_rpm,omitempty"`
	ZeroRpmThreshold *uint32 `json:"zero_rpm_threshold,omitempty"`
}

// ClockspeedStats is the clockspeed subtree of DeviceStats.
type ClockspeedStats struct {
	GpuMhz         *float64 `json:"gpu_clockspeed_mhz,omitempty"`
	TargetGfxclkMhz *float64 `json:"target_gfxclk_mhz,omitempty"`
	VramMhz        *float64 `json:"vram_clockspeed_mhz,omitempty"`
}

// VoltageStats is the voltage subtree of DeviceStats.
type VoltageStats struct {
	GpuMillivolts         *float64 `json:"gpu_millivolts,omitempty"`
	NorthbridgeMillivolts *float64 `json:"northbridge_millivolts,omitempty"`
}

// VramStats is the vram subtree of DeviceStats.
type VramStats struct {
	UsedBytes  uint64 `json:"used_bytes"`
	TotalBytes uint64 `json:"total_bytes"`
}

// PowerStats is the power subtree of DeviceStats.
type PowerStats struct {
	AverageWatts *float64 `json:"average_watts,omitempty"`
	CurrentWatts *float64 `json:"current_watts,omitempty"`
	CapCurrent   *float64 `json:"cap_current_watts,omitempty"`
	CapMin       *float64 `json:"cap_min_watts,omitempty"`
	CapMax       *float64 `json:"cap_max_watts,omitempty"`
	CapDefault   *float64 `json:"cap_default_watts,omitempty"`
}
