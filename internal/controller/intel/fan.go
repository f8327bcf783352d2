package intel

import (
	"github.com/openlact/lactd/api"
	"github.com/openlact/lactd/internal/errdefs"
)

// fanDevice is a fancontrol.Device stub: neither i915 nor xe expose a
// GPU fan through sysfs (intel.rs has no fan control code at all), so
// every capability reports unsupported or no-ops.
type fanDevice struct{}

func (fanDevice) ReadTemperature(string) (current float64, crit, critHyst *float64, err error) {
	return 0, nil, nil, errdefs.NotSupportedf("intel has no fan sensor")
}

func (fanDevice) WritePwm(uint8) error {
	return errdefs.NotSupportedf("intel has no fan control")
}

func (fanDevice) SupportsNativeCurve() (slots int, minPwm, maxPwm uint8, ok bool) {
	return 0, 0, 0, false
}

func (fanDevice) WriteNativeCurve([]api.PmfwCurvePoint) error {
	return errdefs.NotSupportedf("intel has no fan control")
}

func (fanDevice) SetAutoMode(bool) error { return nil }
