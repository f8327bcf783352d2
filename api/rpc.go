package api

import "encoding/json"

// Method names the RPC dispatches on (spec.md §4.5). Kept as typed
// constants rather than bare strings so handler/client call sites get
// compile-time checked method names.
type Method string

const (
	MethodPing                  Method = "ping"
	MethodSystemInfo             Method = "system_info"
	MethodListDevices            Method = "list_devices"
	MethodDeviceInfo             Method = "device_info"
	MethodDeviceStats            Method = "device_stats"
	MethodDeviceClocksInfo       Method = "device_clocks_info"
	MethodPowerProfileModes      Method = "power_profile_modes"
	MethodSetFanControl          Method = "set_fan_control"
	MethodResetPmfw              Method = "reset_pmfw"
	MethodSetPowerCap            Method = "set_power_cap"
	MethodSetPerformanceLevel    Method = "set_performance_level"
	MethodSetClocksValue         Method = "set_clocks_value"
	MethodBatchSetClocksValue    Method = "batch_set_clocks_value"
	MethodSetPowerProfileMode    Method = "set_power_profile_mode"
	MethodGetPowerStates         Method = "get_power_states"
	MethodSetEnabledPowerStates  Method = "set_enabled_power_states"
	MethodVbiosDump              Method = "vbios_dump"
	MethodListProfiles           Method = "list_profiles"
	MethodSetProfile             Method = "set_profile"
	MethodCreateProfile          Method = "create_profile"
	MethodDeleteProfile          Method = "delete_profile"
	MethodMoveProfile            Method = "move_profile"
	MethodEvaluateProfileRule    Method = "evaluate_profile_rule"
	MethodSetProfileRule         Method = "set_profile_rule"
	MethodEnableOverdrive        Method = "enable_overdrive"
	MethodDisableOverdrive       Method = "disable_overdrive"
	MethodGenerateSnapshot       Method = "generate_snapshot"
	MethodConfirmPendingConfig   Method = "confirm_pending_config"
	MethodResetConfig            Method = "reset_config"
)

// ClocksCommandKind tags which single field of a ClocksConfiguration a
// ClocksCommand overlays (spec.md §4.5 set_clocks_value/
// batch_set_clocks_value); Reset clears ClocksConfiguration entirely
// rather than touching one field.
type ClocksCommandKind string

const (
	ClocksCommandReset           ClocksCommandKind = "reset"
	ClocksCommandMinCoreClock    ClocksCommandKind = "min_core_clock"
	ClocksCommandMaxCoreClock    ClocksCommandKind = "max_core_clock"
	ClocksCommandMinMemoryClock  ClocksCommandKind = "min_memory_clock"
	ClocksCommandMaxMemoryClock  ClocksCommandKind = "max_memory_clock"
	ClocksCommandMinVoltage      ClocksCommandKind = "min_voltage"
	ClocksCommandMaxVoltage      ClocksCommandKind = "max_voltage"
	ClocksCommandVoltageOffset   ClocksCommandKind = "voltage_offset"
	ClocksCommandGpuClockOffset  ClocksCommandKind = "gpu_clock_offset"
	ClocksCommandMemClockOffset  ClocksCommandKind = "mem_clock_offset"
)

// ClocksCommand is one overlay onto a device's ClocksConfiguration.
// Value is meaningful for every kind except Reset; PstateIndex is only
// meaningful for the two *ClockOffset kinds, which key their target
// ClocksConfiguration map by it.
type ClocksCommand struct {
	Kind        ClocksCommandKind `json:"kind"`
	Value       int64             `json:"value,omitempty"`
	PstateIndex int               `json:"pstate_index,omitempty"`
}

// Apply overlays this command onto cc in place.
func (cmd ClocksCommand) Apply(cc *ClocksConfiguration) {
	v := cmd.Value
	switch cmd.Kind {
	case ClocksCommandMinCoreClock:
		cc.MinCoreClockMhz = &v
	case ClocksCommandMaxCoreClock:
		cc.MaxCoreClockMhz = &v
	case ClocksCommandMinMemoryClock:
		cc.MinMemoryClockMhz = &v
	case ClocksCommandMaxMemoryClock:
		cc.MaxMemoryClockMhz = &v
	case ClocksCommandMinVoltage:
		cc.MinVoltageMv = &v
	case ClocksCommandMaxVoltage:
		cc.MaxVoltageMv = &v
	case ClocksCommandVoltageOffset:
		cc.VoltageOffsetMv = &v
	case ClocksCommandGpuClockOffset:
		if cc.GpuClockOffsetsMhz == nil {
			cc.GpuClockOffsetsMhz = map[int]int64{}
		}
		cc.GpuClockOffsetsMhz[cmd.PstateIndex] = v
	case ClocksCommandMemClockOffset:
		if cc.MemClockOffsetsMhz == nil {
			cc.MemClockOffsetsMhz = map[int]int64{}
		}
		cc.MemClockOffsetsMhz[cmd.PstateIndex] = v
	}
}

// Request is one line of client->server traffic: a method name plus an
// arbitrary, method-specific params payload.
type Request struct {
	ID     uint64          `json:"id"`
	Method Method          `json:"method"`
	Params json.RawMessage `json:"params,omitempty"`
}

// ErrorPayload is the error shape carried by a Response (spec.md §4.5, §7).
type ErrorPayload struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// Response is one line of server->client traffic: either Ok holds the
// method-specific result, or Error is set — never both.
type Response struct {
	ID    uint64          `json:"id"`
	Ok    json.RawMessage `json:"ok,omitempty"`
	Error *ErrorPayload   `json:"error,omitempty"`
}

// NewOkResponse marshals payload into an Ok response. A marshal
// failure here indicates a bug in a handler's result type, not a
// client-facing condition, so it's surfaced as an Internal error
// response rather than returned to the caller.
func NewOkResponse(id uint64, payload any) Response {
	b, err := json.Marshal(payload)
	if err != nil {
		return Response{ID: id, Error: &ErrorPayload{Kind: "internal", Message: err.Error()}}
	}
	return Response{ID: id, Ok: b}
}

// NewErrorResponse builds an error Response.
func NewErrorResponse(id uint64, kind, message string) Response {
	return Response{ID: id, Error: &ErrorPayload{Kind: kind, Message: message}}
}
