package nvidia

import (
	"github.com/NVIDIA/go-nvml/pkg/nvml"

	"github.com/openlact/lactd/api"
	"github.com/openlact/lactd/internal/drm/nvmlpool"
)

// fanDevice adapts a Controller to fancontrol.Device. Nvidia has no
// PMFW-style fixed curve table, so SupportsNativeCurve always reports
// false and every curve/static request drives the manual-PWM loop.
type fanDevice struct{ c *Controller }

func (d fanDevice) ReadTemperature(string) (current float64, crit, critHyst *float64, err error) {
	t, ret := d.c.dev.GetTemperature(nvml.TEMPERATURE_GPU)
	if ret != nvml.SUCCESS {
		return 0, nil, nil, nvmlpool.Wrap("GetTemperature", ret)
	}
	current = float64(t)

	if shutdown, ret := d.c.dev.GetTemperatureThreshold(nvml.TEMPERATURE_THRESHOLD_SHUTDOWN); ret == nvml.SUCCESS {
		v := float64(shutdown)
		crit = &v
	}
	return current, crit, nil, nil
}

// WritePwm converts the [0,255] PWM byte into NVML's [0,100] fan speed
// percent and applies it to every fan the card reports.
func (d fanDevice) WritePwm(v uint8) error {
	n, ret := d.c.dev.GetNumFans()
	if ret != nvml.SUCCESS {
		return nvmlpool.Wrap("GetNumFans", ret)
	}
	pct := int(v) * 100 / 255
	for i := 0; i < n; i++ {
		if ret := d.c.dev.SetFanSpeed_v2(i, pct); ret != nvml.SUCCESS {
			return nvmlpool.Wrap("SetFanSpeed_v2", ret)
		}
	}
	return nil
}

func (d fanDevice) SupportsNativeCurve() (slots int, minPwm, maxPwm uint8, ok bool) {
	return 0, 0, 0, false
}

func (d fanDevice) WriteNativeCurve([]api.PmfwCurvePoint) error {
	return nvmlpool.Wrap("WriteNativeCurve", nvml.ERROR_NOT_SUPPORTED)
}

// SetAutoMode implements the auto-threshold dance (fancontrol.Device):
// handing fans back to nvmlDeviceSetDefaultFanSpeed_v2 when the
// configured auto_threshold temperature is satisfied, and leaving them
// in manual mode (the default once WritePwm has been called once)
// otherwise.
func (d fanDevice) SetAutoMode(enabled bool) error {
	if !enabled {
		return nil
	}
	return d.c.RestoreAutoFan()
}
