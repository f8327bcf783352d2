package fancontrol

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openlact/lactd/api"
)

type fakeDevice struct {
	temp         float64
	crit         *float64
	critHyst     *float64
	writes       []uint8
	writeErr     error
	nativeOk     bool
	nativeSlots  int
	nativeMinPwm uint8
	nativeMaxPwm uint8
	nativePoints []api.PmfwCurvePoint
	autoCalls    []bool
}

func (f *fakeDevice) ReadTemperature(key string) (float64, *float64, *float64, error) {
	return f.temp, f.crit, f.critHyst, nil
}

func (f *fakeDevice) WritePwm(v uint8) error {
	if f.writeErr != nil {
		return f.writeErr
	}
	f.writes = append(f.writes, v)
	return nil
}

func (f *fakeDevice) SupportsNativeCurve() (int, uint8, uint8, bool) {
	return f.nativeSlots, f.nativeMinPwm, f.nativeMaxPwm, f.nativeOk
}

func (f *fakeDevice) WriteNativeCurve(points []api.PmfwCurvePoint) error {
	f.nativePoints = points
	return nil
}

func (f *fakeDevice) SetAutoMode(enabled bool) error {
	f.autoCalls = append(f.autoCalls, enabled)
	return nil
}

func TestEngine_TickSimpleInterpolation(t *testing.T) {
	dev := &fakeDevice{temp: 50, crit: fptr(90)}
	e := New(dev, "test")
	e.now = func() time.Time { return time.Unix(0, 0) }

	settings := api.FanControlSettings{
		Mode:  api.FanModeCurve,
		Curve: api.FanCurve{Points: []api.FanCurvePoint{{40, 0.2}, {60, 0.5}, {80, 1.0}}},
	}
	ok := e.tick(settings)
	require.True(t, ok)
	require.Len(t, dev.writes, 1)
	assert.Equal(t, uint8(89), dev.writes[0]) // 255 * 0.35 = 89.25, rounded down
}

func TestEngine_SpindownDelaySkipsRampDown(t *testing.T) {
	dev := &fakeDevice{temp: 80, crit: fptr(90)}
	e := New(dev, "test")

	clock := time.Unix(0, 0)
	e.now = func() time.Time { return clock }

	delay := uint64(5000)
	settings := api.FanControlSettings{
		Mode:            api.FanModeCurve,
		Curve:           api.FanCurve{Points: []api.FanCurvePoint{{40, 200.0 / 255}, {80, 100.0 / 255}}},
		SpindownDelayMs: &delay,
	}

	// t=0: ramp up to ~200 first (force lastPwm via direct tick at low temp).
	dev.temp = 40
	require.True(t, e.tick(settings))
	require.Len(t, dev.writes, 1)

	// t=1s: temperature implies a lower target; spindown delay not yet
	// elapsed, so no write should occur (spec.md §8 scenario 2).
	dev.temp = 80
	clock = time.Unix(1, 0)
	require.True(t, e.tick(settings))
	assert.Len(t, dev.writes, 1, "expected no write before spindown delay elapses")

	// t=6s: delay has elapsed, the lower target is now written.
	clock = time.Unix(6, 0)
	require.True(t, e.tick(settings))
	require.Len(t, dev.writes, 2)
	assert.Less(t, dev.writes[1], dev.writes[0])
}

func TestEngine_ChangeThresholdSkipsSmallDelta(t *testing.T) {
	dev := &fakeDevice{temp: 50, crit: fptr(90)}
	e := New(dev, "test")
	e.now = func() time.Time { return time.Unix(0, 0) }

	threshold := 3.0
	settings := api.FanControlSettings{
		Mode:            api.FanModeCurve,
		Curve:           api.FanCurve{Points: []api.FanCurvePoint{{40, 0.2}, {60, 0.6}}},
		ChangeThreshold: &threshold,
	}
	require.True(t, e.tick(settings))
	require.Len(t, dev.writes, 1)

	dev.temp = 51 // delta 1 < threshold 3
	require.True(t, e.tick(settings))
	assert.Len(t, dev.writes, 1, "small temperature delta must not trigger a write")

	dev.temp = 55 // delta 5 >= threshold
	require.True(t, e.tick(settings))
	assert.Len(t, dev.writes, 2)
}

func TestEngine_CritOverridesToFullSpeed(t *testing.T) {
	dev := &fakeDevice{temp: 95, crit: fptr(90)}
	e := New(dev, "test")
	e.now = func() time.Time { return time.Unix(0, 0) }

	settings := api.FanControlSettings{
		Mode:  api.FanModeCurve,
		Curve: api.FanCurve{Points: []api.FanCurvePoint{{40, 0.2}, {60, 0.5}}},
	}
	require.True(t, e.tick(settings))
	require.Len(t, dev.writes, 1)
	assert.Equal(t, uint8(255), dev.writes[0])
}

func TestEngine_FirstWriteFailureDisablesLoop(t *testing.T) {
	dev := &fakeDevice{temp: 50, crit: fptr(90), writeErr: assertErr{}}
	e := New(dev, "test")
	e.now = func() time.Time { return time.Unix(0, 0) }

	settings := api.FanControlSettings{
		Mode:  api.FanModeCurve,
		Curve: api.FanCurve{Points: []api.FanCurvePoint{{40, 0.2}, {60, 0.5}}},
	}
	ok := e.tick(settings)
	assert.False(t, ok, "first failed write must exit the loop")
}

func TestEngine_TransientFailureAfterSuccessContinues(t *testing.T) {
	dev := &fakeDevice{temp: 50, crit: fptr(90)}
	e := New(dev, "test")
	e.now = func() time.Time { return time.Unix(0, 0) }

	settings := api.FanControlSettings{
		Mode:  api.FanModeCurve,
		Curve: api.FanCurve{Points: []api.FanCurvePoint{{40, 0.2}, {60, 0.5}}},
	}
	require.True(t, e.tick(settings))

	dev.writeErr = assertErr{}
	dev.temp = 55
	ok := e.tick(settings)
	assert.True(t, ok, "a transient failure after a prior success must not exit the loop")
}

func TestEngine_AutoThresholdSwitchesNvidiaBuiltinControl(t *testing.T) {
	dev := &fakeDevice{temp: 30, crit: fptr(90)}
	e := New(dev, "test")
	e.now = func() time.Time { return time.Unix(0, 0) }

	threshold := 40
	settings := api.FanControlSettings{
		Mode:           api.FanModeCurve,
		Curve:          api.FanCurve{Points: []api.FanCurvePoint{{40, 0.2}, {80, 1.0}}},
		AutoThresholdC: &threshold,
	}
	require.True(t, e.tick(settings))
	assert.Empty(t, dev.writes, "below auto threshold, no manual pwm write should occur")
	require.Len(t, dev.autoCalls, 1)
	assert.True(t, dev.autoCalls[0])

	dev.temp = 50
	require.True(t, e.tick(settings))
	require.Len(t, dev.autoCalls, 2)
	assert.False(t, dev.autoCalls[1])
	assert.Len(t, dev.writes, 1)
}

func TestEngine_ReconfigureUsesNativeCurveWhenSupported(t *testing.T) {
	dev := &fakeDevice{nativeOk: true, nativeSlots: 2, nativeMinPwm: 20, nativeMaxPwm: 255}
	e := New(dev, "test")

	settings := api.FanControlSettings{
		Mode:  api.FanModeCurve,
		Curve: api.FanCurve{Points: []api.FanCurvePoint{{40, 0.0}, {80, 1.0}}},
	}
	require.NoError(t, e.Reconfigure(context.Background(), settings))
	assert.False(t, e.Running(), "native curve dispatch must not start a userspace loop")
	require.Len(t, dev.nativePoints, 2)
}

func TestEngine_ReconfigureRejectsMismatchedNativeCurve(t *testing.T) {
	dev := &fakeDevice{nativeOk: true, nativeSlots: 5}
	e := New(dev, "test")

	settings := api.FanControlSettings{
		Mode:  api.FanModeCurve,
		Curve: api.FanCurve{Points: []api.FanCurvePoint{{40, 0.0}, {80, 1.0}}},
	}
	err := e.Reconfigure(context.Background(), settings)
	assert.Error(t, err)
}

type assertErr struct{}

func (assertErr) Error() string { return "simulated write failure" }

func fptr(f float64) *float64 { return &f }
