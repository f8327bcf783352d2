// Package api holds the wire and value types shared between the
// daemon's internal packages and its RPC clients: device identity,
// read-only info/stats, and the GpuConfig mutation surface. Everything
// here round-trips through encoding/json (the RPC framing) and
// sigs.k8s.io/yaml (the config file), so field tags double as both.
package api

import "fmt"

// DeviceID is the canonical, stable key used throughout the
// configuration mapping and RPC responses:
//
//	VVVV:DDDD-SVVV:SDDD-DOMAIN:BUS:DEV.FN
//
// derived from the PCI vendor/device IDs, subsystem IDs, and PCI slot
// name (spec.md §3).
type DeviceID string

// PciSlot is the DOMAIN:BUS:DEV.FN component of a DeviceID.
type PciSlot struct {
	Domain   uint16
	Bus      uint8
	Device   uint8
	Function uint8
}

func (s PciSlot) String() string {
	return fmt.Sprintf("%04x:%02x:%02x.%x", s.Domain, s.Bus, s.Device, s.Function)
}

// PciIdentity is a vendor:device pair, used for both the device's own
// PCI ID and its subsystem ID.
type PciIdentity struct {
	VendorID uint16
	DeviceID uint16
}

func (p PciIdentity) String() string {
	return fmt.Sprintf("%04X:%04X", p.VendorID, p.DeviceID)
}

// NewDeviceID composes the canonical device identifier from its parts.
func NewDeviceID(device, subsystem PciIdentity, slot PciSlot) DeviceID {
	return DeviceID(fmt.Sprintf("%s-%s-%s", device, subsystem, slot))
}

// CommonControllerInfo is the immutable identity a controller is built
// with at discovery time (spec.md §3). It never changes after
// construction; the handler only ever borrows it.
type CommonControllerInfo struct {
	SysfsPath string      `json:"sysfs_path"`
	PciDevice PciIdentity `json:"pci_device"`
	PciSubsys PciIdentity `json:"pci_subsystem"`
	PciSlot   PciSlot     `json:"pci_slot"`
	Driver    string      `json:"driver"`
}

// ID computes this controller's canonical DeviceID.
func (c CommonControllerInfo) ID() DeviceID {
	return NewDeviceID(c.PciDevice, c.PciSubsys, c.PciSlot)
}

// Vendor identifies which of the three backend implementations a
// controller is. The contract (internal/controller.Controller) is the
// same for all three; only the backend differs.
type Vendor string

const (
	VendorAMD    Vendor = "amd"
	VendorNvidia Vendor = "nvidia"
	VendorIntel  Vendor = "intel"
)

// knownPciVendorIDs maps a PCI vendor ID onto the backend that handles it.
var knownPciVendorIDs = map[uint16]Vendor{
	0x1002: VendorAMD,
	0x10de: VendorNvidia,
	0x8086: VendorIntel,
}

// VendorForPciID returns the backend responsible for a given PCI vendor
// ID, and false if it's not one lactd knows how to drive.
func VendorForPciID(vendorID uint16) (Vendor, bool) {
	v, ok := knownPciVendorIDs[vendorID]
	return v, ok
}
