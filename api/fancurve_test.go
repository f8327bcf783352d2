package api

import "testing"

func ptr(f float64) *float64 { return &f }

func TestFanCurvePwmAt_SinglePoint(t *testing.T) {
	c := FanCurve{Points: []FanCurvePoint{{TempC: 50, Ratio: 0.4}}}
	crit := ptr(90)
	for _, temp := range []float64{10, 49, 50, 89} {
		got := c.PwmAt(temp, crit, nil)
		want := uint8(0.4 * 255)
		if got != want {
			t.Errorf("PwmAt(%v) = %d, want %d", temp, got, want)
		}
	}
}

func TestFanCurvePwmAt_Interpolation(t *testing.T) {
	c := FanCurve{Points: []FanCurvePoint{{40, 0.2}, {60, 0.5}, {80, 1.0}}}
	crit := ptr(90.0)
	got := c.PwmAt(50, crit, nil)
	want := uint8(89) // 255 * 0.35 = 89.25, rounded down
	if got != want {
		t.Errorf("PwmAt(50) = %d, want %d", got, want)
	}
}

func TestFanCurvePwmAt_CritOverride(t *testing.T) {
	c := FanCurve{Points: []FanCurvePoint{{20, 0}, {80, 1}}}
	crit := ptr(90.0)
	got := c.PwmAt(95, crit, nil)
	if got != 255 {
		t.Errorf("PwmAt above crit = %d, want 255", got)
	}
}

func TestFanCurvePwmAt_CritHystOverride(t *testing.T) {
	c := FanCurve{Points: []FanCurvePoint{{20, 0.5}, {80, 1}}}
	critHyst := ptr(10.0)
	got := c.PwmAt(5, nil, critHyst)
	if got != 255 {
		t.Errorf("PwmAt below crit_hyst = %d, want 255", got)
	}
}

func TestFanCurvePwmAt_BelowFirstUsesFirst(t *testing.T) {
	c := FanCurve{Points: []FanCurvePoint{{40, 0.2}, {80, 1.0}}}
	got := c.PwmAt(0, nil, nil)
	want := uint8(0.2 * 255)
	if got != want {
		t.Errorf("PwmAt(0) = %d, want %d", got, want)
	}
}

func TestFanCurvePwmAt_AboveLastUsesLast(t *testing.T) {
	c := FanCurve{Points: []FanCurvePoint{{40, 0.2}, {80, 1.0}}}
	got := c.PwmAt(200, nil, nil)
	if got != 255 {
		t.Errorf("PwmAt(200) = %d, want 255", got)
	}
}

func TestFanCurveValidate(t *testing.T) {
	valid := FanCurve{Points: []FanCurvePoint{{40, 0.2}, {80, 1.0}}}
	if err := valid.Validate(); err != nil {
		t.Errorf("unexpected error: %v", err)
	}

	invalid := FanCurve{Points: []FanCurvePoint{{40, 1.5}}}
	if err := invalid.Validate(); err == nil {
		t.Error("expected error for ratio > 1")
	}

	empty := FanCurve{}
	if err := empty.Validate(); err == nil {
		t.Error("expected error for empty curve")
	}
}

func TestFanCurveIntoPmfwCurve_MismatchedLength(t *testing.T) {
	c := FanCurve{Points: []FanCurvePoint{{40, 0.2}, {60, 0.5}, {80, 1.0}, {90, 1.0}}}
	_, err := c.IntoPmfwCurve(5, 20, 255)
	if err == nil {
		t.Fatal("expected error for mismatched slot count")
	}
}

func TestFanCurveIntoPmfwCurve_RespectsMinPwm(t *testing.T) {
	c := FanCurve{Points: []FanCurvePoint{{40, 0.0}, {80, 1.0}}}
	pts, err := c.IntoPmfwCurve(2, 20, 255)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if pts[0].Pwm != 20 {
		t.Errorf("first point pwm = %d, want clamp to min 20", pts[0].Pwm)
	}
	if pts[1].Pwm != 255 {
		t.Errorf("last point pwm = %d, want 255", pts[1].Pwm)
	}
}
