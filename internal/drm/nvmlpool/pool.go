// Package nvmlpool owns the process-wide NVML lifecycle and the
// PCI-slot-to-device-handle lookup controller/nvidia needs, the Nvidia
// equivalent of internal/drm/amdgpu's render-node handle: rather than
// opening a /dev/dri node per device, NVML is initialized once for the
// whole process and handles are looked up by PCI bus ID, grounded on
// the teacher's components/accelerator/nvidia/query/nvml package
// (nvml.New/Init, device.New, nvml.ErrorString wrapping).
package nvmlpool

import (
	"fmt"
	"sync"

	"github.com/NVIDIA/go-nvlib/pkg/nvlib/device"
	"github.com/NVIDIA/go-nvml/pkg/nvml"

	"github.com/openlact/lactd/internal/errdefs"
)

// Pool holds the single process-wide NVML init and the device.Interface
// wrapper used to enumerate and look up handles.
type Pool struct {
	mu        sync.Mutex
	lib       nvml.Interface
	deviceLib device.Interface
	refs      int
}

var (
	global   Pool
	globalMu sync.Mutex
)

// Acquire initializes NVML if this is the first caller and returns the
// shared Pool; every controller/nvidia.Controller acquires it once at
// discovery and releases it on Close.
func Acquire() (*Pool, error) {
	globalMu.Lock()
	defer globalMu.Unlock()

	if global.refs == 0 {
		lib := nvml.New()
		if ret := lib.Init(); ret != nvml.SUCCESS {
			return nil, fmt.Errorf("initializing NVML: %v: %w", nvml.ErrorString(ret), errdefs.ErrNotSupported)
		}
		global.lib = lib
		global.deviceLib = device.New(lib)
	}
	global.refs++
	return &global, nil
}

// Release decrements the pool's reference count, shutting NVML down
// once the last controller releases it.
func (p *Pool) Release() error {
	globalMu.Lock()
	defer globalMu.Unlock()

	p.refs--
	if p.refs > 0 {
		return nil
	}
	lib := p.lib
	p.lib = nil
	p.deviceLib = nil
	if lib == nil {
		return nil
	}
	if ret := lib.Shutdown(); ret != nvml.SUCCESS {
		return fmt.Errorf("shutting down NVML: %v", nvml.ErrorString(ret))
	}
	return nil
}

// Devices enumerates every NVML-visible device.
func (p *Pool) Devices() ([]device.Device, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.deviceLib.GetDevices()
}

// DeviceByPciBusID looks up the handle for a device by its PCI bus ID
// string, in the "0000:03:00.0" form NVML expects.
func (p *Pool) DeviceByPciBusID(busID string) (device.Device, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	nvmlDev, ret := p.lib.DeviceGetHandleByPciBusId(busID)
	if ret != nvml.SUCCESS {
		return nil, fmt.Errorf("no NVML device for PCI bus id %s: %v: %w", busID, nvml.ErrorString(ret), errdefs.ErrNotSupported)
	}
	return p.deviceLib.NewDevice(nvmlDev)
}

// Wrap wraps ret into a Go error classified as errdefs.ErrNotSupported
// when NVML itself reports the call unsupported, so Backend methods can
// propagate it without each one re-deriving the mapping.
func Wrap(call string, ret nvml.Return) error {
	if ret == nvml.SUCCESS {
		return nil
	}
	if ret == nvml.ERROR_NOT_SUPPORTED {
		return errdefs.NotSupportedf("%s: %s", call, nvml.ErrorString(ret))
	}
	return fmt.Errorf("%s: %w: %s", call, errdefs.ErrIO, nvml.ErrorString(ret))
}
