package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openlact/lactd/api"
)

type fakeSource struct {
	devices []api.CommonControllerInfo
	infos   map[api.DeviceID]api.DeviceInfo
	stats   map[api.DeviceID]api.DeviceStats
}

func (f *fakeSource) ListDevices() []api.CommonControllerInfo { return f.devices }
func (f *fakeSource) DeviceInfo(id api.DeviceID) (api.DeviceInfo, error) {
	return f.infos[id], nil
}
func (f *fakeSource) DeviceStats(id api.DeviceID) (api.DeviceStats, error) {
	return f.stats[id], nil
}

func busyPercent(v float64) *float64 { return &v }

func TestCollector_EmitsUsageAndVram(t *testing.T) {
	info := api.CommonControllerInfo{
		PciDevice: api.PciIdentity{VendorID: 0x1002, DeviceID: 0x7448},
		PciSubsys: api.PciIdentity{VendorID: 0x1002, DeviceID: 0x0e3c},
		PciSlot:   api.PciSlot{Domain: 0, Bus: 1, Device: 0, Function: 0},
	}
	id := info.ID()
	src := &fakeSource{
		devices: []api.CommonControllerInfo{info},
		infos:   map[api.DeviceID]api.DeviceInfo{id: {PciModelName: "Radeon RX 7900"}},
		stats: map[api.DeviceID]api.DeviceStats{
			id: {
				BusyPercent: busyPercent(42.5),
				Vram:        api.VramStats{UsedBytes: 1024, TotalBytes: 4096},
			},
		},
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(NewCollector(src))

	families, err := reg.Gather()
	require.NoError(t, err)

	got := map[string]*dto.MetricFamily{}
	for _, f := range families {
		got[f.GetName()] = f
	}

	require.Contains(t, got, "gpu_usage_percent")
	assert.Equal(t, 42.5, got["gpu_usage_percent"].Metric[0].GetGauge().GetValue())

	require.Contains(t, got, "gpu_vram_used_bytes")
	assert.Equal(t, float64(1024), got["gpu_vram_used_bytes"].Metric[0].GetGauge().GetValue())
}
