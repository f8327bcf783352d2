// Package inteldrm is the Intel "DRM/DRI adapter" layer (spec.md §2's
// "Intel DRM freq files"): unlike AMD and Nvidia, Intel's i915/xe
// drivers expose GT frequency control as plain sysfs files rather than
// an ioctl or a vendor library, so this adapter is a typed wrapper
// around those files rather than a syscall binding. Grounded directly
// on original_source/lact-daemon/src/server/gpu_controller/intel.rs,
// whose two driver-specific file layouts this package's two GT
// implementations mirror.
package inteldrm

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/openlact/lactd/internal/sysfs"
)

// GT is one graphics-tile frequency control surface: the read/write
// min/max bounds plus the read-only current/actual/characteristic
// frequencies (RP0 = max non-turbo, RPe = efficient, RPn = minimum).
type GT interface {
	MinFreq() (int64, error)
	MaxFreq() (int64, error)
	SetMinFreq(mhz int64) error
	SetMaxFreq(mhz int64) error
	ActFreq() (int64, error)
	CurFreq() (int64, error)
	RP0Freq() (int64, error)
	RPeFreq() (int64, error)
	RPnFreq() (int64, error)
}

// xeGT is a tile*/gt* directory's freq0/ subtree (the Xe driver).
type xeGT struct{ freq *sysfs.Handle }

func (g xeGT) MinFreq() (int64, error)        { return g.freq.ReadInt64("min_freq") }
func (g xeGT) MaxFreq() (int64, error)        { return g.freq.ReadInt64("max_freq") }
func (g xeGT) SetMinFreq(mhz int64) error     { return g.freq.WriteInt64("min_freq", mhz) }
func (g xeGT) SetMaxFreq(mhz int64) error     { return g.freq.WriteInt64("max_freq", mhz) }
func (g xeGT) ActFreq() (int64, error)        { return g.freq.ReadInt64("act_freq") }
func (g xeGT) CurFreq() (int64, error)        { return g.freq.ReadInt64("cur_freq") }
func (g xeGT) RP0Freq() (int64, error)        { return g.freq.ReadInt64("rp0_freq") }
func (g xeGT) RPeFreq() (int64, error)        { return g.freq.ReadInt64("rpe_freq") }
func (g xeGT) RPnFreq() (int64, error)        { return g.freq.ReadInt64("rpn_freq") }

// i915GT is the legacy i915 driver's flat gt_*_freq_mhz files, one
// level above the device's own sysfs directory.
type i915GT struct{ device *sysfs.Handle }

func (g i915GT) MinFreq() (int64, error)    { return g.device.ReadInt64("../gt_min_freq_mhz") }
func (g i915GT) MaxFreq() (int64, error)    { return g.device.ReadInt64("../gt_max_freq_mhz") }
func (g i915GT) SetMinFreq(mhz int64) error { return g.device.WriteInt64("../gt_min_freq_mhz", mhz) }
func (g i915GT) SetMaxFreq(mhz int64) error { return g.device.WriteInt64("../gt_max_freq_mhz", mhz) }
func (g i915GT) ActFreq() (int64, error)    { return g.device.ReadInt64("../gt_act_freq_mhz") }
func (g i915GT) CurFreq() (int64, error)    { return g.device.ReadInt64("../gt_cur_freq_mhz") }
func (g i915GT) RP0Freq() (int64, error)    { return g.device.ReadInt64("../gt_RP0_freq_mhz") }
func (g i915GT) RPeFreq() (int64, error)    { return g.device.ReadInt64("../gt_RP1_freq_mhz") }
func (g i915GT) RPnFreq() (int64, error)    { return g.device.ReadInt64("../gt_RPn_freq_mhz") }

// NewI915 wraps a device's own sysfs directory as its single (legacy)
// GT; i915 has no per-tile enumeration.
func NewI915(devicePath *sysfs.Handle) GT { return i915GT{device: devicePath} }

// DiscoverXeTiles walks tile*/gt* directories under sysfsPath, the Xe
// driver's per-tile GT layout (intel.rs's constructor loop), and
// returns one GT per discovered directory in discovery order.
func DiscoverXeTiles(sysfsPath string) []GT {
	var gts []GT
	tileEntries, err := os.ReadDir(sysfsPath)
	if err != nil {
		return nil
	}
	for _, tile := range tileEntries {
		if !strings.HasPrefix(tile.Name(), "tile") {
			continue
		}
		gtEntries, err := os.ReadDir(filepath.Join(sysfsPath, tile.Name()))
		if err != nil {
			continue
		}
		for _, gt := range gtEntries {
			if strings.HasPrefix(gt.Name(), "gt") {
				freq := sysfs.New(filepath.Join(sysfsPath, tile.Name(), gt.Name(), "freq0"))
				gts = append(gts, xeGT{freq: freq})
			}
		}
	}
	return gts
}
