// Package amd implements the AMD vendor backend (spec.md §4.1, §6):
// sysfs/hwmon reads and writes plus the pp_od_clk_voltage overclocking
// protocol, grounded on original_source/lact-daemon/src/server/gpu_controller/amd.rs
// and the public amdgpu kernel ABI it wraps.
package amd

import (
	"context"
	"sync"

	"github.com/openlact/lactd/api"
	"github.com/openlact/lactd/internal/drm/amdgpu"
	"github.com/openlact/lactd/internal/fancontrol"
	"github.com/openlact/lactd/internal/pciids"
	"github.com/openlact/lactd/internal/sysfs"
)

// steamDeckDeviceIDs are the Van Gogh/Sephiroth APU PCI device IDs that
// only accept clock overrides with performance_level=manual (spec.md
// §4.2 step 2), per the original daemon's is_steam_deck check.
var steamDeckDeviceIDs = map[uint16]bool{
	0x163F: true,
	0x1435: true,
}

// Controller is the AMD implementation of both controller.Controller
// (the public surface the handler calls) and controller.Backend (the
// primitives controller.Apply drives); ApplyConfig tracks its own
// previously-applied GpuConfig and calls controller.Apply with itself
// as the Backend.
type Controller struct {
	info       api.CommonControllerInfo
	sysfsPath  *sysfs.Handle
	hwmon      *sysfs.HwMon
	renderPath string
	pciDB      *pciids.Database

	fanEngine *fancontrol.Engine

	mu       sync.Mutex
	previous api.GpuConfig
}

// New builds an AMD Controller bound to a discovered device's sysfs
// directory. hwmon is nil if the device has no hwmon directory yet
// (early boot race); renderPath is empty if no /dev/dri render node
// was matched.
func New(info api.CommonControllerInfo, hwmonPath, renderPath string, pciDB *pciids.Database) *Controller {
	c := &Controller{
		info:       info,
		sysfsPath:  sysfs.New(info.SysfsPath),
		renderPath: renderPath,
		pciDB:      pciDB,
	}
	if hwmonPath != "" {
		c.hwmon = sysfs.NewHwMon(hwmonPath)
	}
	c.fanEngine = fancontrol.New(fanDevice{c: c}, string(info.ID()))
	return c
}

// Info returns this controller's immutable identity.
func (c *Controller) Info() api.CommonControllerInfo { return c.info }

// ID computes the canonical DeviceID.
func (c *Controller) ID() api.DeviceID { return c.info.ID() }

// Vendor identifies this controller as AMD.
func (c *Controller) Vendor() api.Vendor { return api.VendorAMD }

// Close stops the fan-control loop.
func (c *Controller) Close() error {
	c.fanEngine.Stop(context.Background())
	return nil
}

func (c *Controller) renderNode() (*amdgpu.DeviceInfo, *amdgpu.VramUsage, error) {
	if c.renderPath == "" {
		return nil, nil, errNoRenderNode
	}
	h, err := amdgpu.Open(c.renderPath)
	if err != nil {
		return nil, nil, err
	}
	defer h.Close()

	dev, err := h.DeviceInfo()
	if err != nil {
		return nil, nil, err
	}
	vram, err := h.VramUsage()
	if err != nil {
		return &dev, nil, nil
	}
	return &dev, &vram, nil
}
