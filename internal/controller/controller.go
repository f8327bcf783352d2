// Package controller defines the vendor-polymorphic device contract
// (spec.md §4.1) and the shared apply_config algorithm skeleton
// (spec.md §4.2) that every vendor controller plugs into.
package controller

import (
	"context"

	"github.com/openlact/lactd/api"
)

// Controller is the capability set every vendor backend implements
// (spec.md §4.1, §9 "use a capability set... dispatched via a tagged
// variant"). Where a feature is absent, an operation returns a
// NotSupported-classified error rather than fabricating a value.
type Controller interface {
	// Info identifies this controller (immutable since discovery).
	Info() api.CommonControllerInfo
	ID() api.DeviceID
	Vendor() api.Vendor

	// DeviceInfo is a pure read.
	DeviceInfo() (api.DeviceInfo, error)

	// Stats is a pure read; activeGpuConfig (nil if none configured) is
	// used only to surface user-configured fan settings, never to drive
	// a physical read.
	Stats(activeGpuConfig *api.GpuConfig) (api.DeviceStats, error)

	// ClocksInfo returns the vendor's clocks table shape.
	ClocksInfo() (api.ClocksInfo, error)

	// PowerProfileModes returns the vendor's named power-profile modes
	// and heuristics table.
	PowerProfileModes() (api.PowerProfileModesTable, error)

	// PowerStates returns the core/vram dpm table, reflecting config
	// intent in Enabled when activeGpuConfig.PowerStates is set.
	PowerStates(activeGpuConfig *api.GpuConfig) (api.PowerStatesInfo, error)

	// ApplyConfig is the single mutation entry point (spec.md §4.2).
	ApplyConfig(ctx context.Context, cfg api.GpuConfig) error

	// ResetPmfwSettings best-effort resets each PMFW field currently
	// supported; per-field failures are logged and skipped rather than
	// aborting the whole reset (spec.md §7).
	ResetPmfwSettings() error

	// CleanupClocks restores the clocks table to hardware defaults; a
	// no-op, not an error, when the vendor has no overridable table.
	CleanupClocks() error

	// VbiosDump returns the raw VBIOS image bytes.
	VbiosDump() ([]byte, error)

	// Close stops any background task owned by the controller (the fan
	// loop) and releases backend handles.
	Close() error
}
