package amd

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/openlact/lactd/internal/errdefs"
	"github.com/openlact/lactd/internal/log"
)

// overdriveMask is the ppfeaturemask bit PP_OVERDRIVE_MASK enables
// (spec.md §6): `current | 0x4000`.
const overdriveMask = 0x4000

const ppfeaturemaskPath = "/sys/module/amdgpu/parameters/ppfeaturemask"

// OverdriveManager enables/disables the amdgpu overdrive kernel module
// parameter (spec.md §6 "Overdrive enablement"). A reboot is required
// for the change to take effect, and a second enable within the same
// daemon run is refused rather than silently regenerating the
// initramfs twice.
type OverdriveManager struct {
	mu                 sync.Mutex
	enabledThisSession bool
}

// NewOverdriveManager builds an OverdriveManager.
func NewOverdriveManager() *OverdriveManager {
	return &OverdriveManager{}
}

// Enable writes /etc/modprobe.d/99-<name>-overdrive.conf with the
// current ppfeaturemask OR'd with overdriveMask, then regenerates the
// initramfs for the host distro (spec.md §6). name identifies the
// daemon (used only in the generated filename).
func (m *OverdriveManager) Enable(ctx context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.enabledThisSession {
		return errdefs.InvalidArgumentf("overdrive was already enabled this session; reboot to apply it, then re-check")
	}

	current, err := readPpfeaturemask()
	if err != nil {
		return err
	}
	next := current | overdriveMask

	confPath := filepath.Join("/etc/modprobe.d", fmt.Sprintf("99-%s-overdrive.conf", name))
	line := fmt.Sprintf("options amdgpu ppfeaturemask=0x%x\n", next)
	if err := os.WriteFile(confPath, []byte(line), 0o644); err != nil {
		return errdefs.WithPath(fmt.Errorf("%w: %v", errdefs.ErrIO, err), confPath)
	}

	if err := regenerateInitramfs(ctx); err != nil {
		return err
	}

	m.enabledThisSession = true
	log.Logger.Infow("overdrive enabled, reboot required", "ppfeaturemask", fmt.Sprintf("0x%x", next))
	return nil
}

// Disable removes the modprobe.d override and regenerates the
// initramfs, reverting to the kernel's compiled-in default mask on
// next boot.
func (m *OverdriveManager) Disable(ctx context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	confPath := filepath.Join("/etc/modprobe.d", fmt.Sprintf("99-%s-overdrive.conf", name))
	if err := os.Remove(confPath); err != nil && !os.IsNotExist(err) {
		return errdefs.WithPath(fmt.Errorf("%w: %v", errdefs.ErrIO, err), confPath)
	}

	if err := regenerateInitramfs(ctx); err != nil {
		return err
	}

	m.enabledThisSession = false
	log.Logger.Infow("overdrive disabled, reboot required")
	return nil
}

// IsOverdriveEnabled reports whether the live ppfeaturemask has the
// overdrive bit set (spec.md §4.5 system_info), or false with a
// non-nil error if the mask couldn't be read at all.
func (m *OverdriveManager) IsOverdriveEnabled() (bool, error) {
	mask, err := readPpfeaturemask()
	if err != nil {
		return false, err
	}
	return mask&overdriveMask != 0, nil
}

func readPpfeaturemask() (uint64, error) {
	data, err := os.ReadFile(ppfeaturemaskPath)
	if err != nil {
		// Absent means the module hasn't loaded with any mask override
		// yet; treat it as the all-default-features-off baseline.
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, errdefs.WithPath(fmt.Errorf("%w: %v", errdefs.ErrIO, err), ppfeaturemaskPath)
	}
	s := strings.TrimSpace(string(data))
	s = strings.TrimPrefix(s, "0x")
	v, err := strconv.ParseUint(s, 16, 64)
	if err != nil {
		return 0, errdefs.WithLine(fmt.Errorf("%w: %v", errdefs.ErrParse, err), ppfeaturemaskPath, 1)
	}
	return v, nil
}

// regenerateInitramfs detects the host distro from /etc/os-release and
// runs the matching initramfs regeneration command (spec.md §6).
func regenerateInitramfs(ctx context.Context) error {
	idLike, err := osReleaseIDLike()
	if err != nil {
		return err
	}

	var name string
	var args []string
	switch {
	case containsAny(idLike, "debian", "ubuntu"):
		name, args = "update-initramfs", []string{"-u"}
	case containsAny(idLike, "arch") && commandExists("mkinitcpio"):
		name, args = "mkinitcpio", []string{"-P"}
	case containsAny(idLike, "fedora", "rhel") && commandExists("dracut"):
		name, args = "dracut", []string{"--regenerate-all", "--force"}
	default:
		return errdefs.NotSupportedf("could not determine how to regenerate the initramfs for this distro")
	}

	path, err := exec.LookPath(name)
	if err != nil {
		return errdefs.NotSupportedf("%s not found: %v", name, err)
	}
	out, err := exec.CommandContext(ctx, path, args...).CombinedOutput()
	if err != nil {
		return fmt.Errorf("%s %s: %w: %s", name, strings.Join(args, " "), err, string(out))
	}
	return nil
}

func commandExists(name string) bool {
	_, err := exec.LookPath(name)
	return err == nil
}

func containsAny(haystack []string, needles ...string) bool {
	for _, h := range haystack {
		for _, n := range needles {
			if strings.Contains(h, n) {
				return true
			}
		}
	}
	return false
}

// osReleaseIDLike reads /etc/os-release's ID and ID_LIKE fields,
// lower-cased, for distro-family detection.
func osReleaseIDLike() ([]string, error) {
	data, err := os.ReadFile("/etc/os-release")
	if err != nil {
		return nil, errdefs.WithPath(fmt.Errorf("%w: %v", errdefs.ErrIO, err), "/etc/os-release")
	}

	var out []string
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		var key, val string
		if idx := strings.IndexByte(line, '='); idx >= 0 {
			key, val = line[:idx], line[idx+1:]
		} else {
			continue
		}
		val = strings.Trim(val, `"`)
		if key == "ID" || key == "ID_LIKE" {
			out = append(out, strings.ToLower(val))
		}
	}
	return out, nil
}
