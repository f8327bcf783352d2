package api

// SystemInfo is host-wide, not tied to any one device (spec.md §4.5
// system_info): daemon build identity, kernel version, and whether the
// AMD overdrive ppfeaturemask bit is currently set.
type SystemInfo struct {
	Version       string `json:"version"`
	Profile       string `json:"profile"`
	KernelVersion string `json:"kernel_version"`

	// AmdgpuOverdriveEnabled is nil when the ppfeaturemask file couldn't
	// be read (no amdgpu module loaded, or not running as root).
	AmdgpuOverdriveEnabled *bool `json:"amdgpu_overdrive_enabled,omitempty"`
}

// DeviceInfo is read-only, computed on demand from the controller
// (spec.md §3). Every optional field is nil when the vendor/driver
// doesn't expose it, rather than carrying a fabricated zero value.
type DeviceInfo struct {
	ID     DeviceID `json:"id"`
	Vendor Vendor   `json:"vendor"`

	PciVendorName string `json:"pci_vendor_name,omitempty"`
	PciModelName  string `json:"pci_model_name,omitempty"`

	Driver       string `json:"driver"`
	VbiosVersion string `json:"vbios_version,omitempty"`

	Link LinkInfo `json:"link"`

	Drm    *DrmInfo    `json:"drm_info,omitempty"`
	Vulkan *VulkanInfo `json:"vulkan_info,omitempty"`
}

// LinkInfo is the PCIe link state: current negotiated speed/width and
// the link's maximum capability.
type LinkInfo struct {
	CurrentSpeed string `json:"current_speed,omitempty"`
	CurrentWidth string `json:"current_width,omitempty"`
	MaxSpeed     string `json:"max_speed,omitempty"`
	MaxWidth     string `json:"max_width,omitempty"`
}

// DrmInfo is the DRM/DRI-derived device description (AMD: libdrm_amdgpu,
// Intel: i915/xe sysfs, absent on Nvidia where NVML covers the same ground).
type DrmInfo struct {
	FamilyName    string     `json:"family_name,omitempty"`
	AsicName      string     `json:"asic_name,omitempty"`
	ChipClass     string     `json:"chip_class,omitempty"`
	ComputeUnits  int        `json:"compute_units,omitempty"`
	VramType      string     `json:"vram_type,omitempty"`
	VramBitWidth  int        `json:"vram_bit_width,omitempty"`
	VramMaxBwGbps string     `json:"vram_max_bw_gbps,omitempty"`
	L2CacheBytes  uint64     `json:"l2_cache_bytes,omitempty"`
	Memory        *DrmMemory `json:"memory_info,omitempty"`
}

// DrmMemory reports CPU-accessible VRAM usage, the portion of VRAM
// reachable without a PCIe BAR remap.
type DrmMemory struct {
	CpuAccessibleUsedBytes  uint64 `json:"cpu_accessible_used_bytes"`
	CpuAccessibleTotalBytes uint64 `json:"cpu_accessible_total_bytes"`
}

// VulkanInfo describes the Vulkan driver/device pairing associated
// with this PCI device, when a Vulkan ICD is present on the host.
type VulkanInfo struct {
	DeviceName    string `json:"device_name"`
	ApiVersion    string `json:"api_version"`
	DriverName    string `json:"driver_name,omitempty"`
	DriverVersion string `json:"driver_version,omitempty"`
}
