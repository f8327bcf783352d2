// Package sysfs provides typed, read/write-checked access to attribute
// files under a device's sysfs directory, and hwmon discovery within
// it (spec.md §2 "Sysfs bindings", §6 "Sysfs paths read/written").
package sysfs

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/openlact/lactd/internal/errdefs"
)

// sysfsRootEnv overrides the device root, used by tests and by the
// flatpak sandbox rewrite described in spec.md §6.
const sysfsRootEnv = "_LACT_DRM_SYSFS_PATH"

// DefaultDrmRoot is where AMDGPU/Intel DRM device directories live.
func DefaultDrmRoot() string {
	if v := os.Getenv(sysfsRootEnv); v != "" {
		return v
	}
	return "/sys/class/drm"
}

// Handle is a typed accessor bound to one device's sysfs directory
// (e.g. /sys/class/drm/card0/device).
type Handle struct {
	Path string
}

// New binds a Handle to path. It does not validate the path exists;
// reads/writes fail individually with IoError context instead, so a
// device that disappears mid-session degrades gracefully.
func New(path string) *Handle {
	return &Handle{Path: path}
}

func (h *Handle) attrPath(name string) string {
	return filepath.Join(h.Path, name)
}

// ReadString reads an attribute file and trims surrounding whitespace,
// as sysfs attribute files are conventionally newline-terminated.
func (h *Handle) ReadString(name string) (string, error) {
	p := h.attrPath(name)
	data, err := os.ReadFile(p)
	if err != nil {
		return "", errdefs.WithPath(fmt.Errorf("%w: %v", errdefs.ErrIO, err), p)
	}
	return strings.TrimSpace(string(data)), nil
}

// ReadLines reads an attribute file and splits it into non-empty,
// trimmed lines — the shape most multi-line sysfs tables use
// (pp_dpm_sclk, pp_od_clk_voltage, ...).
func (h *Handle) ReadLines(name string) ([]string, error) {
	s, err := h.ReadString(name)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, line := range strings.Split(s, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		out = append(out, line)
	}
	return out, nil
}

// ReadInt64 reads an attribute file and parses it as a base-10 integer.
func (h *Handle) ReadInt64(name string) (int64, error) {
	s, err := h.ReadString(name)
	if err != nil {
		return 0, err
	}
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, errdefs.WithLine(fmt.Errorf("%w: %v", errdefs.ErrParse, err), h.attrPath(name), 1)
	}
	return v, nil
}

// ReadUint64 reads an attribute file and parses it as a base-10
// unsigned integer.
func (h *Handle) ReadUint64(name string) (uint64, error) {
	s, err := h.ReadString(name)
	if err != nil {
		return 0, err
	}
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, errdefs.WithLine(fmt.Errorf("%w: %v", errdefs.ErrParse, err), h.attrPath(name), 1)
	}
	return v, nil
}

// WriteString writes value to an attribute file as-is. Most sysfs
// control files accept a bare value with no trailing newline required,
// but the kernel tolerates one either way.
func (h *Handle) WriteString(name, value string) error {
	p := h.attrPath(name)
	if err := os.WriteFile(p, []byte(value), 0o644); err != nil {
		return errdefs.WithPath(fmt.Errorf("%w: %v", errdefs.ErrIO, err), p)
	}
	return nil
}

// WriteInt64 formats and writes an integer attribute.
func (h *Handle) WriteInt64(name string, value int64) error {
	return h.WriteString(name, strconv.FormatInt(value, 10))
}

// Exists reports whether the named attribute file is present, without
// classifying a missing file as an error — many attributes are
// conditionally present depending on driver/generation.
func (h *Handle) Exists(name string) bool {
	_, err := os.Stat(h.attrPath(name))
	return err == nil
}

// Join returns a Handle for a subdirectory of this one (e.g. a
// specific hwmonN directory, or gpu_od/fan_ctrl).
func (h *Handle) Join(parts ...string) *Handle {
	return New(filepath.Join(append([]string{h.Path}, parts...)...))
}

// HwmonDirs lists the hwmon* subdirectories under this device's
// sysfs path, in discovery order. A device can have zero or more;
// the first is conventionally the primary one.
func (h *Handle) HwmonDirs() ([]string, error) {
	entries, err := os.ReadDir(filepath.Join(h.Path, "hwmon"))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errdefs.WithPath(fmt.Errorf("%w: %v", errdefs.ErrIO, err), h.Path)
	}
	var dirs []string
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), "hwmon") {
			dirs = append(dirs, filepath.Join(h.Path, "hwmon", e.Name()))
		}
	}
	return dirs, nil
}

// FirstHwmon returns a Handle bound to the first discovered hwmon
// directory, or ErrNotSupported if the device has none.
func (h *Handle) FirstHwmon() (*Handle, error) {
	dirs, err := h.HwmonDirs()
	if err != nil {
		return nil, err
	}
	if len(dirs) == 0 {
		return nil, errdefs.NotSupportedf("device has no hwmon directory")
	}
	return New(dirs[0]), nil
}
