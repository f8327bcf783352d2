package sysfs

import (
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/openlact/lactd/internal/errdefs"
)

// HwMon wraps a Handle bound to one hwmonN directory with the typed
// accessors spec.md §6 names: fan speed/limits, pwm control, per-sensor
// temperature triples, and power rail readings.
type HwMon struct {
	*Handle
}

// NewHwMon binds a HwMon to an hwmon directory path.
func NewHwMon(path string) *HwMon { return &HwMon{Handle: New(path)} }

// FanInputRpm reads fan1_input.
func (m *HwMon) FanInputRpm() (uint32, error) {
	v, err := m.ReadUint64("fan1_input")
	return uint32(v), err
}

// FanMaxRpm reads fan1_max, if present.
func (m *HwMon) FanMaxRpm() (uint32, error) {
	v, err := m.ReadUint64("fan1_max")
	return uint32(v), err
}

// FanMinRpm reads fan1_min, if present.
func (m *HwMon) FanMinRpm() (uint32, error) {
	v, err := m.ReadUint64("fan1_min")
	return uint32(v), err
}

// PwmAutoEnabled reports whether pwm1_enable is currently in automatic
// mode (2) rather than manual (1).
func (m *HwMon) PwmAutoEnabled() (bool, error) {
	v, err := m.ReadInt64("pwm1_enable")
	if err != nil {
		return false, err
	}
	return v == 2, nil
}

// SetPwmEnable writes pwm1_enable. mode 1 = manual, 2 = auto.
func (m *HwMon) SetPwmEnable(mode int64) error {
	return m.WriteInt64("pwm1_enable", mode)
}

// Pwm reads the current pwm1 value (0-255).
func (m *HwMon) Pwm() (uint8, error) {
	v, err := m.ReadInt64("pwm1")
	return uint8(v), err
}

// SetPwm writes pwm1 (0-255).
func (m *HwMon) SetPwm(value uint8) error {
	return m.WriteInt64("pwm1", int64(value))
}

// Temperature reads a sensorN_{input,crit,crit_hyst} triple in
// millidegrees and returns it in degrees Celsius. crit and crit_hyst
// are nil if their files don't exist on this sensor.
func (m *HwMon) Temperature(sensorIndex int) (current float64, crit, critHyst *float64, err error) {
	prefix := "temp" + strconv.Itoa(sensorIndex)
	raw, err := m.ReadInt64(prefix + "_input")
	if err != nil {
		return 0, nil, nil, err
	}
	current = float64(raw) / 1000.0

	if m.Exists(prefix + "_crit") {
		if v, cerr := m.ReadInt64(prefix + "_crit"); cerr == nil {
			c := float64(v) / 1000.0
			crit = &c
		}
	}
	if m.Exists(prefix + "_crit_hyst") {
		if v, cerr := m.ReadInt64(prefix + "_crit_hyst"); cerr == nil {
			c := float64(v) / 1000.0
			critHyst = &c
		}
	}
	return current, crit, critHyst, nil
}

// TempSensorNames lists the sensor indices present, by reading the
// tempN_label files when present, falling back to "tempN".
func (m *HwMon) TempSensorNames() map[string]int {
	out := map[string]int{}
	for i := 1; i <= 8; i++ {
		if !m.Exists("temp" + strconv.Itoa(i) + "_input") {
			continue
		}
		name := "temp" + strconv.Itoa(i)
		if label, err := m.ReadString("temp" + strconv.Itoa(i) + "_label"); err == nil && label != "" {
			name = strings.ToLower(label)
		}
		out[name] = i
	}
	return out
}

// PowerCapWatts reads power1_cap (microwatts) in watts.
func (m *HwMon) PowerCapWatts() (float64, error) {
	v, err := m.ReadUint64("power1_cap")
	return float64(v) / 1_000_000, err
}

// SetPowerCapWatts writes power1_cap from a watt value.
func (m *HwMon) SetPowerCapWatts(watts float64) error {
	return m.WriteInt64("power1_cap", int64(watts*1_000_000))
}

// PowerCapMaxWatts reads power1_cap_max in watts.
func (m *HwMon) PowerCapMaxWatts() (float64, error) {
	v, err := m.ReadUint64("power1_cap_max")
	return float64(v) / 1_000_000, err
}

// PowerCapMinWatts reads power1_cap_min in watts.
func (m *HwMon) PowerCapMinWatts() (float64, error) {
	v, err := m.ReadUint64("power1_cap_min")
	return float64(v) / 1_000_000, err
}

// PowerCapDefaultWatts reads power1_cap_default in watts.
func (m *HwMon) PowerCapDefaultWatts() (float64, error) {
	v, err := m.ReadUint64("power1_cap_default")
	return float64(v) / 1_000_000, err
}

// PowerInputWatts reads power1_average or power1_input (whichever is
// present) in watts, for the device's current draw.
func (m *HwMon) PowerInputWatts() (float64, error) {
	if m.Exists("power1_average") {
		v, err := m.ReadUint64("power1_average")
		return float64(v) / 1_000_000, err
	}
	v, err := m.ReadUint64("power1_input")
	return float64(v) / 1_000_000, err
}

// retryFuzzyRead tries a flaky sysfs read up to 5 times (the first
// attempt plus 4 retries), spaced out with a constant backoff, to tolerate the kernel's
// momentarily-inconsistent pstate table reads during a clock
// transition (spec.md §5 Shared resources: "retries up to 5 attempts
// for fuzzy pstate readings").
func retryFuzzyRead[T any](read func() (T, error)) (T, error) {
	var result T
	var lastErr error

	b := backoff.WithMaxRetries(backoff.NewConstantBackOff(50*time.Millisecond), 4)
	err := backoff.Retry(func() error {
		v, err := read()
		if err != nil {
			lastErr = err
			return err
		}
		result = v
		return nil
	}, b)
	if err != nil {
		return result, lastErr
	}
	return result, nil
}

// ReadPstateTableFuzzy reads a pp_dpm_* style table (one "N: value
// [*]" line per pstate) with the retry policy above, since the kernel
// can return a transiently truncated read mid-transition.
func (h *Handle) ReadPstateTableFuzzy(name string) ([]string, error) {
	return retryFuzzyRead(func() ([]string, error) {
		lines, err := h.ReadLines(name)
		if err != nil {
			return nil, err
		}
		if len(lines) == 0 {
			return nil, errdefs.WithPath(errdefs.ErrParse, name)
		}
		return lines, nil
	})
}
