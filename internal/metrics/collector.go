// Package metrics exposes the daemon's live device state as a
// Prometheus exporter (spec.md §6 "Prometheus exporter (optional)"),
// grounded on the teacher's per-component metrics.go files (e.g.
// components/accelerator/nvidia/clock-speed/metrics.go): GaugeVec
// families registered on a dedicated *prometheus.Registry. Unlike the
// teacher's components, which Set() their gauges from a background
// poll loop and persist samples to sqlite, this exporter has no
// persistent metrics storage (an explicit non-goal) and no separate
// poll loop: Collector.Collect reads the live controller set directly
// at scrape time, so a gauge is never stale between polls.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/openlact/lactd/api"
)

// deviceSource is the subset of *handler.Handler this package depends
// on, kept narrow so tests can fake it without building a whole Handler.
type deviceSource interface {
	ListDevices() []api.CommonControllerInfo
	DeviceInfo(id api.DeviceID) (api.DeviceInfo, error)
	DeviceStats(id api.DeviceID) (api.DeviceStats, error)
}

var (
	usagePercent = prometheus.NewDesc("gpu_usage_percent", "GPU busy percentage", labelNames, nil)
	powerUsage   = prometheus.NewDesc("gpu_power_usage_watts", "Current GPU power draw in watts", labelNames, nil)
	powerCap     = prometheus.NewDesc("gpu_power_cap_watts", "Configured GPU power cap in watts", labelNames, nil)
	temperature  = prometheus.NewDesc("gpu_temperature_celsius", "GPU temperature sensor reading in Celsius", append(labelNames, "sensor"), nil)
	clockHertz   = prometheus.NewDesc("gpu_clock_hertz", "GPU clock frequency in Hz", append(labelNames, "type"), nil)
	voltageVolts = prometheus.NewDesc("gpu_voltage_volts", "GPU core voltage in volts", labelNames, nil)
	fanRpm       = prometheus.NewDesc("gpu_fan_speed_rpm", "GPU fan speed in RPM", labelNames, nil)
	fanPercent   = prometheus.NewDesc("gpu_fan_percent", "GPU fan duty cycle percentage", labelNames, nil)
	vramUsed     = prometheus.NewDesc("gpu_vram_used_bytes", "VRAM currently in use, in bytes", labelNames, nil)
	vramTotal    = prometheus.NewDesc("gpu_vram_total_bytes", "Total VRAM, in bytes", labelNames, nil)
)

// labelNames is shared by every metric family (spec.md §6 "Labels
// include gpu_id and gpu_name").
var labelNames = []string{"gpu_id", "gpu_name"}

// Collector implements prometheus.Collector by pulling every
// discovered device's live stats at scrape time.
type Collector struct {
	src deviceSource
}

// NewCollector builds a Collector over src.
func NewCollector(src deviceSource) *Collector {
	return &Collector{src: src}
}

// Describe sends every metric family's descriptor, satisfying
// prometheus.Collector's contract that Describe is safe to call before
// any Collect.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	for _, d := range []*prometheus.Desc{
		usagePercent, powerUsage, powerCap, temperature, clockHertz,
		voltageVolts, fanRpm, fanPercent, vramUsed, vramTotal,
	} {
		ch <- d
	}
}

// Collect reads every discovered device's DeviceInfo (for its display
// name) and DeviceStats (for the live readings) and emits the metric
// set spec.md §6 names. A device whose read fails is skipped rather
// than failing the whole scrape.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	for _, info := range c.src.ListDevices() {
		id := info.ID()
		stats, err := c.src.DeviceStats(id)
		if err != nil {
			continue
		}
		name := deviceName(c.src, id)
		labels := []string{string(id), name}

		if stats.BusyPercent != nil {
			ch <- prometheus.MustNewConstMetric(usagePercent, prometheus.GaugeValue, *stats.BusyPercent, labels...)
		}
		if stats.Power.CurrentWatts != nil {
			ch <- prometheus.MustNewConstMetric(powerUsage, prometheus.GaugeValue, *stats.Power.CurrentWatts, labels...)
		}
		if stats.Power.CapCurrent != nil {
			ch <- prometheus.MustNewConstMetric(powerCap, prometheus.GaugeValue, *stats.Power.CapCurrent, labels...)
		}
		for sensor, temp := range stats.Temps {
			ch <- prometheus.MustNewConstMetric(temperature, prometheus.GaugeValue, temp.Current, append(append([]string{}, labels...), sensor)...)
		}
		if stats.Clockspeed.GpuMhz != nil {
			ch <- prometheus.MustNewConstMetric(clockHertz, prometheus.GaugeValue, mhzToHz(*stats.Clockspeed.GpuMhz), append(append([]string{}, labels...), "gpu_current")...)
		}
		if stats.Clockspeed.TargetGfxclkMhz != nil {
			ch <- prometheus.MustNewConstMetric(clockHertz, prometheus.GaugeValue, mhzToHz(*stats.Clockspeed.TargetGfxclkMhz), append(append([]string{}, labels...), "gpu_target")...)
		}
		if stats.Clockspeed.VramMhz != nil {
			ch <- prometheus.MustNewConstMetric(clockHertz, prometheus.GaugeValue, mhzToHz(*stats.Clockspeed.VramMhz), append(append([]string{}, labels...), "memory")...)
		}
		if stats.Voltage.GpuMillivolts != nil {
			ch <- prometheus.MustNewConstMetric(voltageVolts, prometheus.GaugeValue, *stats.Voltage.GpuMillivolts/1000, labels...)
		}
		if stats.Fan.SpeedCurrentRpm != nil {
			ch <- prometheus.MustNewConstMetric(fanRpm, prometheus.GaugeValue, float64(*stats.Fan.SpeedCurrentRpm), labels...)
		}
		if stats.Fan.PwmCurrent != nil {
			ch <- prometheus.MustNewConstMetric(fanPercent, prometheus.GaugeValue, float64(*stats.Fan.PwmCurrent)/255*100, labels...)
		}
		ch <- prometheus.MustNewConstMetric(vramUsed, prometheus.GaugeValue, float64(stats.Vram.UsedBytes), labels...)
		ch <- prometheus.MustNewConstMetric(vramTotal, prometheus.GaugeValue, float64(stats.Vram.TotalBytes), labels...)
	}
}

// deviceName resolves a device's display name from DeviceInfo, falling
// back to its id when the read fails or the vendor exposes no model
// name, so a label is never empty.
func deviceName(src deviceSource, id api.DeviceID) string {
	info, err := src.DeviceInfo(id)
	if err != nil || info.PciModelName == "" {
		return string(id)
	}
	return info.PciModelName
}

func mhzToHz(mhz float64) float64 { return mhz * 1e6 }

// Register builds a fresh registry with process/Go runtime collectors
// (the same baseline prometheus/client_golang apps always expose) plus
// this exporter's device Collector.
func Register(src deviceSource) *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(prometheus.NewGoCollector())
	reg.MustRegister(prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}))
	reg.MustRegister(NewCollector(src))
	return reg
}
