// Package fancontrol implements the per-device fan-control loop
// (spec.md §4.3): PMFW-native curve dispatch where the hardware
// supports it, otherwise a cooperative manual-PWM loop with
// temperature-change threshold, spindown delay, and (Nvidia only) an
// auto-threshold fallback to the card's built-in fan control.
package fancontrol

import (
	"context"
	"sync"
	"time"

	"github.com/openlact/lactd/api"
	"github.com/openlact/lactd/internal/errdefs"
	"github.com/openlact/lactd/internal/log"
)

// Device is what the fan-control engine needs from a vendor backend.
// SupportsNativeCurve, when it returns ok=true, lets Reconfigure skip
// the userspace loop entirely for curve mode (recent AMD PMFW).
type Device interface {
	ReadTemperature(key string) (current float64, crit, critHyst *float64, err error)
	WritePwm(v uint8) error
	SupportsNativeCurve() (slots int, minPwm, maxPwm uint8, ok bool)
	WriteNativeCurve(points []api.PmfwCurvePoint) error
	// SetAutoMode switches the card's built-in (non-PWM-loop) fan
	// control on or off. Only meaningful on backends that implement
	// the Nvidia auto-threshold dance; others can no-op.
	SetAutoMode(enabled bool) error
}

// Engine owns one device's fan-control lifecycle: at most one manual
// loop goroutine at a time, explicit notify + join on every transition
// (spec.md §5 Cancellation).
type Engine struct {
	dev Device
	tag string // for log context, e.g. the device ID

	mu       sync.Mutex
	cancel   context.CancelFunc
	loopDone chan struct{}

	controlAvailable bool
	lastPwm          *uint8
	lastWriteAt      time.Time
	lastTemp         *float64
	autoMode         bool

	now func() time.Time
}

// New builds an Engine for dev. tag is used only for log lines.
func New(dev Device, tag string) *Engine {
	return &Engine{dev: dev, tag: tag, now: time.Now}
}

// Reconfigure stops any running loop, validates settings, and starts
// the appropriate dispatch: native PMFW curve write (no loop) or a
// fresh manual-PWM loop goroutine. It awaits the previous loop's exit
// before starting the new one (spec.md §4.3).
func (e *Engine) Reconfigure(ctx context.Context, settings api.FanControlSettings) error {
	e.Stop(ctx)

	if settings.Mode == api.FanModeCurve {
		if err := settings.Curve.Validate(); err != nil {
			return err
		}
	} else if settings.StaticSpeed < 0 || settings.StaticSpeed > 1 {
		return errdefs.InvalidArgumentf("static fan speed must be between 0 and 1, got %v", settings.StaticSpeed)
	}

	if settings.Mode == api.FanModeCurve {
		if slots, minPwm, maxPwm, ok := e.dev.SupportsNativeCurve(); ok {
			points, err := settings.Curve.IntoPmfwCurve(slots, minPwm, maxPwm)
			if err != nil {
				return err
			}
			if err := e.dev.WriteNativeCurve(points); err != nil {
				return err
			}
			log.Logger.Infow("applied native fan curve", "tag", e.tag, "points", len(points))
			return nil
		}
	}

	loopCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})

	e.mu.Lock()
	e.cancel = cancel
	e.loopDone = done
	e.controlAvailable = false
	e.lastPwm = nil
	e.lastTemp = nil
	e.mu.Unlock()

	go e.runLoop(loopCtx, done, settings)
	return nil
}

// Stop cancels any running loop and waits for it to exit. It is safe
// to call when no loop is running.
func (e *Engine) Stop(ctx context.Context) {
	e.mu.Lock()
	cancel := e.cancel
	done := e.loopDone
	e.cancel = nil
	e.loopDone = nil
	e.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	select {
	case <-done:
	case <-ctx.Done():
	}
}

// Running reports whether a manual loop is currently active.
func (e *Engine) Running() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.loopDone != nil
}

func (e *Engine) runLoop(ctx context.Context, done chan struct{}, settings api.FanControlSettings) {
	defer close(done)

	interval := time.Duration(settings.IntervalMs) * time.Millisecond
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	log.Logger.Infow("fan control loop started", "tag", e.tag, "mode", settings.Mode, "interval", interval)

	for {
		select {
		case <-ctx.Done():
			log.Logger.Debugw("fan control loop cancelled", "tag", e.tag)
			return
		case <-ticker.C:
			if !e.tick(settings) {
				log.Logger.Warnw("fan control loop exiting after unrecoverable write failure", "tag", e.tag)
				return
			}
		}
	}
}

// tick runs one evaluation/write cycle. It returns false when the loop
// must exit entirely (no write has ever succeeded, and this attempt
// failed too — spec.md §4.3 Error tolerance).
func (e *Engine) tick(settings api.FanControlSettings) bool {
	current, crit, critHyst, err := e.dev.ReadTemperature(settings.TemperatureKey)
	if err != nil {
		log.Logger.Warnw("failed to read temperature for fan control", "tag", e.tag, "error", err)
		return true // transient read failure; keep the loop alive
	}

	if settings.AutoThresholdC != nil {
		below := current < float64(*settings.AutoThresholdC)
		if below != e.autoMode {
			if err := e.dev.SetAutoMode(below); err != nil {
				log.Logger.Warnw("failed to switch automatic fan mode", "tag", e.tag, "error", err)
			} else {
				e.autoMode = below
			}
		}
		if e.autoMode {
			e.lastTemp = &current
			return true
		}
	}

	target := targetPwm(settings, current, crit, critHyst)

	if e.lastTemp != nil && settings.ChangeThreshold != nil {
		if absFloat(current-*e.lastTemp) < *settings.ChangeThreshold {
			return true
		}
	}

	if e.lastPwm != nil && target < *e.lastPwm && settings.SpindownDelayMs != nil {
		elapsed := e.now().Sub(e.lastWriteAt)
		if elapsed < time.Duration(*settings.SpindownDelayMs)*time.Millisecond {
			return true
		}
	}

	if e.lastPwm != nil && target == *e.lastPwm {
		e.lastTemp = &current
		return true
	}

	if err := e.dev.WritePwm(target); err != nil {
		if !e.controlAvailable {
			log.Logger.Errorw("first fan pwm write failed, disabling fan control", "tag", e.tag, "error", err)
			return false
		}
		log.Logger.Warnw("transient fan pwm write failure", "tag", e.tag, "error", err)
		return true
	}

	e.controlAvailable = true
	e.lastPwm = &target
	e.lastWriteAt = e.now()
	e.lastTemp = &current
	return true
}

func targetPwm(settings api.FanControlSettings, current float64, crit, critHyst *float64) uint8 {
	if settings.Mode == api.FanModeCurve {
		return settings.Curve.PwmAt(current, crit, critHyst)
	}
	// Static mode still honors the crit/crit_hyst safety override.
	staticCurve := api.FanCurve{Points: []api.FanCurvePoint{{TempC: 0, Ratio: settings.StaticSpeed}}}
	return staticCurve.PwmAt(current, crit, critHyst)
}

func absFloat(f float64) float64 {
	if f < 0 {
		return -f
	}
	return f
}
