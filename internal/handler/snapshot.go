package handler

import (
	"archive/tar"
	"compress/gzip"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/openlact/lactd/internal/log"
)

// snapshotGlobalFiles mirrors the original daemon's bug-report snapshot
// (spec.md §4.5 generate_snapshot): host-wide files that aren't tied to
// any one device.
var snapshotGlobalFiles = []string{
	"/sys/module/amdgpu/parameters/ppfeaturemask",
	"/proc/version",
}

// snapshotDeviceFiles are read relative to each controller's sysfs path.
var snapshotDeviceFiles = []string{
	"uevent",
	"vendor",
	"pp_cur_state",
	"pp_dpm_mclk",
	"pp_dpm_pcie",
	"pp_dpm_sclk",
	"pp_dpm_socclk",
	"pp_od_clk_voltage",
	"pp_power_profile_mode",
	"power_dpm_force_performance_level",
}

// GenerateSnapshot archives global and per-device sysfs state plus the
// active config file into a gzip'd tar under /tmp, for attaching to bug
// reports, and returns its path.
func (h *Handler) GenerateSnapshot(now time.Time) (string, error) {
	outPath := filepath.Join(os.TempDir(), fmt.Sprintf("lactd-sysfs-snapshot-%s.tar.gz", now.Format("20060102-150405")))

	outFile, err := os.Create(outPath)
	if err != nil {
		return "", fmt.Errorf("creating snapshot file: %w", err)
	}
	defer outFile.Close()

	gz := gzip.NewWriter(outFile)
	defer gz.Close()

	tw := tar.NewWriter(gz)
	defer tw.Close()

	for _, path := range snapshotGlobalFiles {
		addFileToArchive(tw, path, path)
	}
	if configPath := h.store.Path(); configPath != "" {
		addFileToArchive(tw, configPath, "config.yaml")
	}

	h.mu.Lock()
	paths := make(map[string]string, len(h.controllers))
	for id, c := range h.controllers {
		paths[string(id)] = c.Info().SysfsPath
	}
	h.mu.Unlock()

	for id, sysfsPath := range paths {
		for _, name := range snapshotDeviceFiles {
			full := filepath.Join(sysfsPath, name)
			addFileToArchive(tw, full, filepath.Join(id, name))
		}
	}

	return outPath, nil
}

// addFileToArchive copies one file into the archive at arcName. Missing
// or unreadable sysfs files are skipped and logged rather than failing
// the whole snapshot — most devices don't expose every listed file.
func addFileToArchive(tw *tar.Writer, srcPath, arcName string) {
	// sysfs files report a stat size of 0 regardless of their actual
	// content length, so the header size must come from what was
	// actually read, not from os.Stat — otherwise tar.Writer rejects
	// the overrun once more bytes are copied than the header declared.
	data, err := os.ReadFile(srcPath)
	if err != nil {
		log.Logger.Debugw("skipping unreadable snapshot file", "path", srcPath, "error", err)
		return
	}

	header := &tar.Header{
		Name: filepath.ToSlash(arcName),
		Mode: 0o644,
		Size: int64(len(data)),
	}
	if err := tw.WriteHeader(header); err != nil {
		return
	}
	if _, err := tw.Write(data); err != nil {
		log.Logger.Debugw("failed to write snapshot file contents", "path", srcPath, "error", err)
	}
}
