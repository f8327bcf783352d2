package api

import (
	"sort"

	"github.com/openlact/lactd/internal/errdefs"
)

// FanMode selects how fan_control_settings is interpreted.
type FanMode string

const (
	FanModeStatic FanMode = "static"
	FanModeCurve  FanMode = "curve"
)

// FanCurve is an ordered temperature(°C) -> speed-ratio([0,1]) mapping
// (spec.md §3). Stored as a slice of points rather than a map so that
// YAML/JSON round-trips preserve declaration order (a map with integer
// keys re-orders on every encode/decode cycle in most Go codecs).
type FanCurve struct {
	Points []FanCurvePoint `json:"points"`
}

// FanCurvePoint is one (temperature, speed ratio) pair of a FanCurve.
type FanCurvePoint struct {
	TempC int     `json:"temp_c"`
	Ratio float64 `json:"ratio"`
}

// DefaultFanCurve mirrors the original daemon's built-in default curve,
// a gentle ramp from idle to full speed across the AMD comfort range.
func DefaultFanCurve() FanCurve {
	return FanCurve{Points: []FanCurvePoint{
		{30, 0.15},
		{40, 0.2},
		{50, 0.3},
		{60, 0.5},
		{70, 0.75},
		{80, 1.0},
	}}
}

// Validate checks every ratio lies within [0,1] (spec.md §8 invariant,
// the FanCurve.validate() of the original implementation).
func (c FanCurve) Validate() error {
	if len(c.Points) == 0 {
		return errdefs.InvalidArgumentf("fan curve must have at least one point")
	}
	for _, p := range c.Points {
		if p.Ratio < 0 || p.Ratio > 1 {
			return errdefs.InvalidArgumentf("fan speed ratio must be between 0 and 1, got %v at %d°C", p.Ratio, p.TempC)
		}
	}
	return nil
}

// sorted returns a copy of the curve's points sorted by temperature,
// the shape pwmAt and IntoPmfwCurve both depend on.
func (c FanCurve) sorted() []FanCurvePoint {
	pts := make([]FanCurvePoint, len(c.Points))
	copy(pts, c.Points)
	sort.Slice(pts, func(i, j int) bool { return pts[i].TempC < pts[j].TempC })
	return pts
}

// PwmAt evaluates the curve at the given sensor reading and returns a
// PWM byte in [0,255] (spec.md §4.3, §8 invariants 1-3):
//
//   - below the first point, the first point's ratio is used;
//   - above the last point, the last point's ratio is used;
//   - between two points, the ratio is linearly interpolated;
//   - if current > crit, or current < crit_hyst (each check applies
//     whenever that value is known), the curve returns 255 regardless
//     of its own content.
func (c FanCurve) PwmAt(current float64, crit, critHyst *float64) uint8 {
	if crit != nil && current > *crit {
		return 255
	}
	if critHyst != nil && current < *critHyst {
		return 255
	}

	pts := c.sorted()
	if len(pts) == 0 {
		return 0
	}

	t := int(current)
	if t <= pts[0].TempC {
		return ratioToPwm(pts[0].Ratio)
	}
	last := pts[len(pts)-1]
	if t >= last.TempC {
		return ratioToPwm(last.Ratio)
	}

	for i := 0; i < len(pts)-1; i++ {
		lower, upper := pts[i], pts[i+1]
		if t >= lower.TempC && t <= upper.TempC {
			if upper.TempC == lower.TempC {
				return ratioToPwm(lower.Ratio)
			}
			span := float64(upper.TempC - lower.TempC)
			frac := (current - float64(lower.TempC)) / span
			ratio := lower.Ratio + (upper.Ratio-lower.Ratio)*frac
			return ratioToPwm(ratio)
		}
	}
	// Unreachable given the bracketing above, but fail safe to full speed
	// rather than silently under-cooling the device.
	return 255
}

func ratioToPwm(ratio float64) uint8 {
	if ratio < 0 {
		ratio = 0
	}
	if ratio > 1 {
		ratio = 1
	}
	v := ratio * 255.0
	return uint8(v) // truncates, matching `as u8` in the original (round down)
}

// PmfwCurvePoint is one point of the hardware's fixed-size fan curve
// format (recent AMD PMFW), expressed as an integer PWM rather than a
// ratio.
type PmfwCurvePoint struct {
	TempC int
	Pwm   uint8
}

// IntoPmfwCurve translates this curve into the hardware's fixed-size
// PMFW curve format. slotCount is the number of points the hardware
// exposes; minPwm/maxPwm bound the allowed PWM range for each point.
// Returns ErrInvalidArgument if the point count doesn't match the
// hardware's slot count exactly (spec.md §4.3, §8 scenario 6).
func (c FanCurve) IntoPmfwCurve(slotCount int, minPwm, maxPwm uint8) ([]PmfwCurvePoint, error) {
	pts := c.sorted()
	if len(pts) != slotCount {
		return nil, errdefs.InvalidArgumentf("hardware requires %d points, got %d", slotCount, len(pts))
	}

	out := make([]PmfwCurvePoint, len(pts))
	for i, p := range pts {
		pwm := uint8(float64(maxPwm) * p.Ratio)
		if pwm < minPwm {
			pwm = minPwm
		}
		out[i] = PmfwCurvePoint{TempC: p.TempC, Pwm: pwm}
	}
	return out, nil
}
