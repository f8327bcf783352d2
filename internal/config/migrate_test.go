package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMigrate_FromScratchReachesCurrentVersion(t *testing.T) {
	doc := map[string]any{}
	out, err := Migrate(doc)
	require.NoError(t, err)
	assert.Equal(t, CurrentVersion, out["version"])

	daemon, ok := out["daemon"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, []any{"wheel", "sudo"}, daemon["admin_groups"])
	assert.Equal(t, 5, out["apply_settings_timer_seconds"])
}

func TestMigrate_IsIdempotent(t *testing.T) {
	doc := map[string]any{}
	first, err := Migrate(doc)
	require.NoError(t, err)

	second, err := Migrate(first)
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestMigrate_RejectsFutureVersion(t *testing.T) {
	doc := map[string]any{"version": CurrentVersion + 1}
	_, err := Migrate(doc)
	assert.Error(t, err)
}

func TestMigrate_V1CurveRename(t *testing.T) {
	doc := map[string]any{
		"version": 1,
		"gpus": map[string]any{
			"dev1": map[string]any{
				"fan_control_curve": map[string]any{"40": 0.2, "80": 1.0},
			},
		},
	}
	out, err := Migrate(doc)
	require.NoError(t, err)

	gpus := out["gpus"].(map[string]any)
	dev1 := gpus["dev1"].(map[string]any)
	_, hasLegacy := dev1["fan_control_curve"]
	assert.False(t, hasLegacy)

	settings, ok := dev1["fan_control_settings"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "curve", settings["mode"])
	assert.Equal(t, true, dev1["fan_control_enabled"])
}

func TestMigrate_StepsAreIdempotentIndividually(t *testing.T) {
	doc := map[string]any{
		"version": 0,
		"gpus": map[string]any{
			"dev1": map[string]any{
				"fan_control_curve": map[string]any{"40": 0.2},
			},
		},
	}
	migrateV0toV1(doc)
	migrateV1toV2(doc)
	before := map[string]any{}
	for k, v := range doc {
		before[k] = v
	}
	migrateV1toV2(doc)
	assert.Equal(t, before, doc)
}
