package api

// PerformanceLevel mirrors the AMD/generic power_dpm_force_performance_level
// states (spec.md §3).
type PerformanceLevel string

const (
	PerformanceLevelAuto   PerformanceLevel = "auto"
	PerformanceLevelLow    PerformanceLevel = "low"
	PerformanceLevelHigh   PerformanceLevel = "high"
	PerformanceLevelManual PerformanceLevel = "manual"
)

// PowerStateKind distinguishes the dpm tables a GpuConfig's PowerStates
// can target.
type PowerStateKind string

const (
	PowerStateKindCore   PowerStateKind = "core"
	PowerStateKindMemory PowerStateKind = "memory"
	PowerStateKindPcie   PowerStateKind = "pcie"
)

// GpuConfig is the single mutation surface of the daemon (spec.md §3).
// Every field besides FanControlEnabled is optional; nil/zero means
// "leave this alone" rather than "reset to zero".
type GpuConfig struct {
	FanControlEnabled   bool                  `json:"fan_control_enabled"`
	FanControlSettings  *FanControlSettings   `json:"fan_control_settings,omitempty"`
	PmfwOptions         *PmfwOptions          `json:"pmfw_options,omitempty"`
	PowerCapWatts       *float64              `json:"power_cap_watts,omitempty"`
	PerformanceLevel    *PerformanceLevel     `json:"performance_level,omitempty"`
	ClocksConfiguration *ClocksConfiguration  `json:"clocks_configuration,omitempty"`

	PowerProfileModeIndex     *int      `json:"power_profile_mode_index,omitempty"`
	CustomPowerProfileModeHeuristics [][]int64 `json:"custom_power_profile_mode_heuristics,omitempty"`

	// PowerStates maps a kind to the ordered list of pstate indices that
	// should remain enabled; indices absent from the list are disabled.
	PowerStates map[PowerStateKind][]int `json:"power_states,omitempty"`
}

// FanControlSettings configures the fan-control engine for a device
// (spec.md §3, §4.3).
type FanControlSettings struct {
	Mode              FanMode  `json:"mode"`
	StaticSpeed       float64  `json:"static_speed"`
	TemperatureKey    string   `json:"temperature_key"`
	IntervalMs        uint64   `json:"interval_ms"`
	Curve             FanCurve `json:"curve"`
	SpindownDelayMs   *uint64  `json:"spindown_delay_ms,omitempty"`
	ChangeThreshold   *float64 `json:"change_threshold,omitempty"`
	AutoThresholdC    *int     `json:"auto_threshold,omitempty"`
}

// PmfwOptions configures recent-AMD power-management-firmware fan
// settings that are applied independently of the curve/static dispatch
// (spec.md §3, §4.2 step 8).
type PmfwOptions struct {
	AcousticLimit     *uint32 `json:"acoustic_limit,omitempty"`
	AcousticTarget    *uint32 `json:"acoustic_target,omitempty"`
	TargetTemperature *uint32 `json:"target_temperature,omitempty"`
	MinimumPwm        *uint32 `json:"minimum_pwm,omitempty"`
	ZeroRpm           *bool   `json:"zero_rpm,omitempty"`
	ZeroRpmThreshold  *uint32 `json:"zero_rpm_threshold,omitempty"`
}

// ClocksConfiguration is the user-specified subset of the clocks table
// to overlay onto the vendor's current table (spec.md §3, §4.2 step 3).
type ClocksConfiguration struct {
	MinCoreClockMhz   *int64 `json:"min_core_clock_mhz,omitempty"`
	MaxCoreClockMhz   *int64 `json:"max_core_clock_mhz,omitempty"`
	MinMemoryClockMhz *int64 `json:"min_memory_clock_mhz,omitempty"`
	MaxMemoryClockMhz *int64 `json:"max_memory_clock_mhz,omitempty"`
	MinVoltageMv      *int64 `json:"min_voltage_mv,omitempty"`
	MaxVoltageMv      *int64 `json:"max_voltage_mv,omitempty"`
	VoltageOffsetMv   *int64 `json:"voltage_offset_mv,omitempty"`

	// GpuClockOffsetsMhz/MemClockOffsetsMhz map a pstate index to an
	// offset in MHz (Nvidia-style offset clocks).
	GpuClockOffsetsMhz map[int]int64 `json:"gpu_clock_offsets_mhz,omitempty"`
	MemClockOffsetsMhz map[int]int64 `json:"mem_clock_offsets_mhz,omitempty"`
}

// IsManual reports whether a GpuConfig's PerformanceLevel is explicitly
// "manual" (the gate for PowerProfileModeIndex/PowerStates, spec.md §3
// invariant 3).
func (g GpuConfig) IsManual() bool {
	return g.PerformanceLevel != nil && *g.PerformanceLevel == PerformanceLevelManual
}

// ClocksInfo is the vendor's clocks table shape, returned by
// Controller.ClocksInfo. Each backend fills only the fields it can
// report; the rest stay nil.
type ClocksInfo struct {
	MaxCoreClockMhz   *int64 `json:"max_core_clock_mhz,omitempty"`
	MaxMemoryClockMhz *int64 `json:"max_memory_clock_mhz,omitempty"`
	MaxVoltageMv      *int64 `json:"max_voltage_mv,omitempty"`

	// The *Range fields, when non-nil, bound the valid [min,max] user
	// overrides the vendor will accept for core clock, memory clock, and
	// voltage respectively.
	CoreClockRangeMhz   *Range `json:"core_clock_range_mhz,omitempty"`
	MemoryClockRangeMhz *Range `json:"memory_clock_range_mhz,omitempty"`
	VoltageRangeMv      *Range `json:"voltage_range_mv,omitempty"`
}

// Range is an inclusive [Min, Max] bound.
type Range struct {
	Min int64 `json:"min"`
	Max int64 `json:"max"`
}

// PowerProfileModesTable is the 2-D heuristics table a vendor exposes
// for its named power-profile modes.
type PowerProfileModesTable struct {
	Modes       []string `json:"modes"`
	ActiveIndex int      `json:"active_index"`
	Heuristics  [][]int64 `json:"heuristics,omitempty"`
	HeuristicsNames []string `json:"heuristics_names,omitempty"`
}

// PowerStateEntry is one entry of Controller.PowerStates' result.
type PowerStateEntry struct {
	Index   int    `json:"index"`
	Value   string `json:"value"`
	Enabled bool   `json:"enabled"`
}

// PowerStatesInfo groups the entries of the core and vram dpm tables.
type PowerStatesInfo struct {
	Core []PowerStateEntry `json:"core"`
	Vram []PowerStateEntry `json:"vram"`
}
