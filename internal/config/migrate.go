package config

import (
	"fmt"
	"strconv"
)

// migration advances a raw, untyped config document from one version
// to the next. Each step must be idempotent: applying it twice to its
// own output is a no-op, which is what lets Migrate re-run safely on
// every startup rather than tracking "has this host migrated" state.
type migration func(doc map[string]any)

// migrations is indexed by source version: migrations[0] takes v0 to
// v1, migrations[1] takes v1 to v2, and so on (spec.md §8 invariant 4:
// linear v0->v1->v2->..., idempotent, reaching target_version in
// finite steps).
var migrations = []migration{
	migrateV0toV1,
	migrateV1toV2,
	migrateV2toV3,
}

// Migrate walks doc from whatever version it declares (0 if absent) up
// to CurrentVersion, applying each step exactly once, and stamps the
// final version field.
func Migrate(doc map[string]any) (map[string]any, error) {
	version := docVersion(doc)
	if version > CurrentVersion {
		return nil, fmt.Errorf("config version %d is newer than supported version %d", version, CurrentVersion)
	}

	for v := version; v < CurrentVersion; v++ {
		if v >= len(migrations) {
			return nil, fmt.Errorf("no migration registered for version %d", v)
		}
		migrations[v](doc)
	}
	doc["version"] = CurrentVersion
	return doc, nil
}

func docVersion(doc map[string]any) int {
	v, ok := doc["version"]
	if !ok {
		return 0
	}
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	default:
		return 0
	}
}

// migrateV0toV1 introduces daemon.admin_groups, defaulting to the
// original hard-coded "wheel"/"sudo" pair for hosts upgrading from the
// admin-group-less first release.
func migrateV0toV1(doc map[string]any) {
	daemon, _ := doc["daemon"].(map[string]any)
	if daemon == nil {
		daemon = map[string]any{}
	}
	if _, ok := daemon["admin_groups"]; !ok {
		daemon["admin_groups"] = []any{"wheel", "sudo"}
	}
	doc["daemon"] = daemon
}

// migrateV1toV2 renames the legacy single `fan_control_curve` field
// (temperature->speed map) into the current `fan_control_settings`
// shape with mode=curve, carrying the points across unchanged.
func migrateV1toV2(doc map[string]any) {
	gpus, _ := doc["gpus"].(map[string]any)
	for id, raw := range gpus {
		g, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		legacy, ok := g["fan_control_curve"]
		if !ok {
			continue
		}
		delete(g, "fan_control_curve")
		if _, exists := g["fan_control_settings"]; exists {
			continue // already migrated
		}

		points := []any{}
		if m, ok := legacy.(map[string]any); ok {
			for tempStr, ratio := range m {
				temp, err := strconv.Atoi(tempStr)
				if err != nil {
					continue
				}
				points = append(points, map[string]any{"temp_c": temp, "ratio": ratio})
			}
		}
		g["fan_control_settings"] = map[string]any{
			"mode":  "curve",
			"curve": map[string]any{"points": points},
		}
		g["fan_control_enabled"] = true
		gpus[id] = g
	}
	doc["gpus"] = gpus
}

// migrateV2toV3 introduces apply_settings_timer_seconds, defaulting to
// the original hard-coded 5 second confirm window.
func migrateV2toV3(doc map[string]any) {
	if _, ok := doc["apply_settings_timer_seconds"]; !ok {
		doc["apply_settings_timer_seconds"] = 5
	}
	if _, ok := doc["auto_switch_profiles"]; !ok {
		doc["auto_switch_profiles"] = true
	}
}
