// Package discovery enumerates /sys/class/drm/card* directories into a
// fleet of vendor controllers (spec.md §3 "Lifecycles"), grounded on
// original_source/lact-daemon/src/server/gpu_controller.rs's
// init_controller driver dispatch and
// original_source/lact-daemon/src/server/handler.rs's card* walk and
// boot-race retry loop.
package discovery

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/openlact/lactd/api"
	"github.com/openlact/lactd/internal/controller"
	"github.com/openlact/lactd/internal/controller/amd"
	"github.com/openlact/lactd/internal/controller/intel"
	"github.com/openlact/lactd/internal/controller/nvidia"
	"github.com/openlact/lactd/internal/drm/nvmlpool"
	"github.com/openlact/lactd/internal/log"
	"github.com/openlact/lactd/internal/pciids"
	"github.com/openlact/lactd/internal/sysfs"
)

// maxAttempts and retryInterval bound the boot-race retry loop: sysfs
// can come up before every GPU's drm entry exists.
const (
	maxAttempts   = 5
	retryInterval = 3 * time.Second
)

// Discover scans base (conventionally sysfs.DefaultDrmRoot()) and
// returns one Controller per discovered GPU, keyed by its canonical
// DeviceID. It retries up to maxAttempts times, 3s apart, when a PCI
// device bound to amdgpu or radeon is present under /sys/bus/pci/devices
// without a matching drm entry yet (a boot-ordering race, not a missing
// GPU).
func Discover(base string) (map[api.DeviceID]controller.Controller, error) {
	pciDB := pciids.Load()

	var controllers map[api.DeviceID]controller.Controller
	var scanErr error

	bo := backoff.NewConstantBackOff(retryInterval)
	attempt := 0
	_ = backoff.Retry(func() error {
		attempt++
		controllers, scanErr = scanOnce(base, pciDB)
		if scanErr != nil {
			return backoff.Permanent(scanErr)
		}
		if missing := missingDrmEntries(controllers); len(missing) > 0 {
			if attempt >= maxAttempts {
				log.Logger.Warnw("giving up waiting for drm entries", "missing_pci_slots", missing, "attempt", attempt)
				return nil
			}
			log.Logger.Infow("some PCI GPUs have no drm entry yet, retrying", "missing_pci_slots", missing, "attempt", attempt)
			return fmt.Errorf("drm entries missing for %v", missing)
		}
		return nil
	}, backoff.WithMaxRetries(bo, maxAttempts-1))

	if scanErr != nil {
		return nil, scanErr
	}
	log.Logger.Infow("initialized GPUs", "count", len(controllers))
	return controllers, nil
}

// missingDrmEntries returns the PCI slot names of amdgpu/radeon devices
// under /sys/bus/pci/devices with no corresponding controller yet.
func missingDrmEntries(controllers map[api.DeviceID]controller.Controller) []string {
	entries, err := os.ReadDir("/sys/bus/pci/devices")
	if err != nil {
		return nil
	}
	known := make(map[string]bool, len(controllers))
	for _, c := range controllers {
		known[c.Info().PciSlot.String()] = true
	}
	var missing []string
	for _, e := range entries {
		uevent, err := os.ReadFile(filepath.Join("/sys/bus/pci/devices", e.Name(), "uevent"))
		if err != nil {
			continue
		}
		s := strings.ReplaceAll(string(uevent), "\x00", "")
		if !strings.Contains(s, "amdgpu") && !strings.Contains(s, "radeon") {
			continue
		}
		if !known[e.Name()] {
			missing = append(missing, e.Name())
		}
	}
	return missing
}

// scanOnce walks base's card* entries once, building one controller per
// recognized drm device.
func scanOnce(base string, pciDB *pciids.Database) (map[api.DeviceID]controller.Controller, error) {
	entries, err := os.ReadDir(base)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", base, err)
	}

	// This probe reference only proves NVML is available and is used to
	// look up device handles during the scan; each constructed Nvidia
	// controller acquires its own separate reference for its lifetime.
	nvmlPool, nvmlErr := nvmlpool.Acquire()
	if nvmlErr != nil {
		log.Logger.Infow("nvidia support disabled", "error", nvmlErr)
		nvmlPool = nil
	}

	controllers := make(map[api.DeviceID]controller.Controller)
	for _, e := range entries {
		name := e.Name()
		if !strings.HasPrefix(name, "card") || strings.Contains(name, "-") {
			continue
		}
		devicePath := filepath.Join(base, name, "device")
		c, err := newController(devicePath, name, pciDB, nvmlPool)
		if err != nil {
			log.Logger.Warnw("failed to initialize gpu controller", "path", devicePath, "error", err)
			continue
		}
		if c == nil {
			continue
		}
		if existing, ok := controllers[c.ID()]; ok {
			// card0/card1 aliasing the same underlying PCI device
			// (a second drm minor, e.g. a render-only duplicate);
			// keep whichever was discovered first.
			log.Logger.Debugw("duplicate drm entry for device", "id", c.ID(), "path", devicePath, "kept", existing.Info().SysfsPath)
			c.Close()
			continue
		}
		controllers[c.ID()] = c
		log.Logger.Infow("initialized gpu controller", "id", c.ID(), "vendor", c.Vendor(), "path", devicePath)
	}

	if nvmlPool != nil {
		nvmlPool.Release()
	}
	return controllers, nil
}

// newController reads one card's uevent file and dispatches to the
// matching vendor constructor, per init_controller's driver switch.
// nvmlPool may be nil (NVML unavailable); a "nvidia" driver then falls
// through to the generic AMD sysfs-only fallback, same as a PCI slot
// NVML doesn't recognize.
func newController(devicePath, cardName string, pciDB *pciids.Database, nvmlPool *nvmlpool.Pool) (controller.Controller, error) {
	uevent, err := parseUevent(filepath.Join(devicePath, "uevent"))
	if err != nil {
		return nil, err
	}

	driver := uevent["DRIVER"]
	slotName := uevent["PCI_SLOT_NAME"]
	vendorID, deviceID, err := splitHexPair(uevent["PCI_ID"])
	if err != nil {
		return nil, fmt.Errorf("PCI_ID entry missing or malformed in uevent: %w", err)
	}
	subsysVendorID, subsysDeviceID, _ := splitHexPair(uevent["PCI_SUBSYS_ID"])
	slot, err := parsePciSlotName(slotName)
	if err != nil {
		return nil, fmt.Errorf("PCI_SLOT_NAME entry missing or malformed in uevent: %w", err)
	}

	info := api.CommonControllerInfo{
		SysfsPath: devicePath,
		PciDevice: api.PciIdentity{VendorID: vendorID, DeviceID: deviceID},
		PciSubsys: api.PciIdentity{VendorID: subsysVendorID, DeviceID: subsysDeviceID},
		PciSlot:   slot,
		Driver:    driver,
	}

	switch driver {
	case "amdgpu", "radeon":
		renderPath := findRenderNode(filepath.Dir(devicePath), cardName)
		hwmonPath := ""
		if h, err := sysfs.New(devicePath).FirstHwmon(); err == nil {
			hwmonPath = h.Path
		}
		return amd.New(info, hwmonPath, renderPath, pciDB), nil

	case "i915", "xe":
		return intel.New(info, driver, pciDB), nil

	case "nvidia":
		if nvmlPool != nil {
			if dev, err := nvmlPool.DeviceByPciBusID(slot.String()); err == nil {
				// This controller's own Close() releases NVML once,
				// so it needs its own reference distinct from the
				// scan-wide probe held by nvmlPool.
				devPool, acqErr := nvmlpool.Acquire()
				if acqErr == nil {
					return nvidia.New(info, devPool, dev, pciDB), nil
				}
			}
		}
		log.Logger.Warnw("NVML unavailable for nvidia device, falling back to generic sysfs info", "pci_slot", slotName)
		return amd.New(info, "", "", pciDB), nil

	default:
		log.Logger.Warnw("unsupported drm driver, functionality will be limited", "driver", driver, "path", devicePath)
		return amd.New(info, "", "", pciDB), nil
	}
}

// findRenderNode locates the /dev/dri/renderDNN node matching card*'s
// device, by resolving each renderD* drm class entry's "device" symlink
// alongside card*'s and comparing them.
func findRenderNode(drmRoot, cardName string) string {
	cardDevice, err := filepath.EvalSymlinks(filepath.Join(drmRoot, cardName, "device"))
	if err != nil {
		return ""
	}
	entries, err := os.ReadDir(drmRoot)
	if err != nil {
		return ""
	}
	for _, e := range entries {
		if !strings.HasPrefix(e.Name(), "renderD") {
			continue
		}
		renderDevice, err := filepath.EvalSymlinks(filepath.Join(drmRoot, e.Name(), "device"))
		if err != nil || renderDevice != cardDevice {
			continue
		}
		return filepath.Join("/dev/dri", e.Name())
	}
	return ""
}

// parseUevent reads a sysfs uevent file into its KEY=VALUE pairs.
func parseUevent(path string) (map[string]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("could not read uevent: %w", err)
	}
	defer f.Close()

	m := map[string]string{}
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		k, v, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		m[k] = v
	}
	return m, scanner.Err()
}

// splitHexPair parses a "VVVV:DDDD" uevent field into its two uint16s.
func splitHexPair(s string) (uint16, uint16, error) {
	a, b, ok := strings.Cut(s, ":")
	if !ok {
		return 0, 0, fmt.Errorf("malformed id pair %q", s)
	}
	av, err := strconv.ParseUint(a, 16, 16)
	if err != nil {
		return 0, 0, err
	}
	bv, err := strconv.ParseUint(b, 16, 16)
	if err != nil {
		return 0, 0, err
	}
	return uint16(av), uint16(bv), nil
}

// parsePciSlotName parses a "DOMAIN:BUS:DEV.FN" PCI_SLOT_NAME value.
func parsePciSlotName(s string) (api.PciSlot, error) {
	var slot api.PciSlot
	domain, rest, ok := strings.Cut(s, ":")
	if !ok {
		return slot, fmt.Errorf("malformed pci slot name %q", s)
	}
	bus, devFn, ok := strings.Cut(rest, ":")
	if !ok {
		return slot, fmt.Errorf("malformed pci slot name %q", s)
	}
	dev, fn, ok := strings.Cut(devFn, ".")
	if !ok {
		return slot, fmt.Errorf("malformed pci slot name %q", s)
	}

	domainV, err := strconv.ParseUint(domain, 16, 16)
	if err != nil {
		return slot, err
	}
	busV, err := strconv.ParseUint(bus, 16, 8)
	if err != nil {
		return slot, err
	}
	devV, err := strconv.ParseUint(dev, 16, 8)
	if err != nil {
		return slot, err
	}
	fnV, err := strconv.ParseUint(fn, 16, 8)
	if err != nil {
		return slot, err
	}
	return api.PciSlot{
		Domain:   uint16(domainV),
		Bus:      uint8(busV),
		Device:   uint8(devV),
		Function: uint8(fnV),
	}, nil
}
