package amd

import (
	"errors"
	"fmt"

	"github.com/openlact/lactd/api"
)

var (
	errNoHwmon       = errors.New("device has no hwmon directory")
	errNoNativeCurve = errors.New("device has no native fan curve table")
)

// fanDevice adapts a Controller to fancontrol.Device. Native curve
// support is detected from the presence of gpu_od/fan_ctrl/fan_curve,
// whose text format is "<index>: <temp>C <pwm>%\n" per line, the
// recent-PMFW curve table the original daemon drives through
// amdgpu_sysfs's get_fan_curve/set_fan_curve.
type fanDevice struct{ c *Controller }

func (d fanDevice) ReadTemperature(key string) (current float64, crit, critHyst *float64, err error) {
	if d.c.hwmon == nil {
		return 0, nil, nil, errNoHwmon
	}
	names := d.c.hwmon.TempSensorNames()
	idx, ok := names[key]
	if !ok {
		idx = 1
	}
	return d.c.hwmon.Temperature(idx)
}

func (d fanDevice) WritePwm(v uint8) error {
	if d.c.hwmon == nil {
		return errNoHwmon
	}
	if enabled, err := d.c.hwmon.PwmAutoEnabled(); err == nil && enabled {
		if err := d.c.hwmon.SetPwmEnable(1); err != nil {
			return err
		}
	}
	return d.c.hwmon.SetPwm(v)
}

func (d fanDevice) fanCurveHandle() (*fanCurveFile, bool) {
	fanCtrl := d.c.sysfsPath.Join("gpu_od", "fan_ctrl")
	if !fanCtrl.Exists("fan_curve") {
		return nil, false
	}
	return &fanCurveFile{h: fanCtrl}, true
}

func (d fanDevice) SupportsNativeCurve() (slots int, minPwm, maxPwm uint8, ok bool) {
	fc, ok := d.fanCurveHandle()
	if !ok {
		return 0, 0, 0, false
	}
	n, err := fc.slotCount()
	if err != nil || n == 0 {
		return 0, 0, 0, false
	}
	return n, 0, 255, true
}

func (d fanDevice) WriteNativeCurve(points []api.PmfwCurvePoint) error {
	fc, ok := d.fanCurveHandle()
	if !ok {
		return errNoNativeCurve
	}
	return fc.write(points)
}

// SetAutoMode is a no-op on AMD: the auto-threshold dance
// (fancontrol.Device.SetAutoMode) only applies to Nvidia, whose backend
// hands fans back through nvmlDeviceSetDefaultFanSpeed_v2.
func (d fanDevice) SetAutoMode(enabled bool) error { return nil }

// fanCurveFile wraps the gpu_od/fan_ctrl directory's fan_curve table.
type fanCurveFile struct{ h interface {
	ReadLines(string) ([]string, error)
	WriteString(string, string) error
} }

func (f *fanCurveFile) slotCount() (int, error) {
	lines, err := f.h.ReadLines("fan_curve")
	if err != nil {
		return 0, err
	}
	return len(lines), nil
}

// write overwrites every slot of the curve, one "<index> <temp>C
// <pwm*100/255>%" line per write.
func (f *fanCurveFile) write(points []api.PmfwCurvePoint) error {
	for i, p := range points {
		pct := int(p.Pwm) * 100 / 255
		line := fmt.Sprintf("%d %dC %d%%", i, p.TempC, pct)
		if err := f.h.WriteString("fan_curve", line); err != nil {
			return fmt.Errorf("writing fan curve slot %d: %w", i, err)
		}
	}
	return nil
}
