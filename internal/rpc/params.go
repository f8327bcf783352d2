package rpc

import "github.com/openlact/lactd/api"

// deviceParams is the common shape of every per-device read (spec.md
// §4.5): the requests that take nothing but a device id.
type deviceParams struct {
	ID api.DeviceID `json:"id"`
}

type setFanControlParams struct {
	ID       api.DeviceID            `json:"id"`
	Enabled  bool                    `json:"enabled"`
	Settings *api.FanControlSettings `json:"settings,omitempty"`
}

type setPowerCapParams struct {
	ID    api.DeviceID `json:"id"`
	Watts *float64     `json:"watts,omitempty"`
}

type setPerformanceLevelParams struct {
	ID    api.DeviceID        `json:"id"`
	Level api.PerformanceLevel `json:"level"`
}

type setClocksValueParams struct {
	ID      api.DeviceID      `json:"id"`
	Command api.ClocksCommand `json:"command"`
}

type batchSetClocksValueParams struct {
	ID       api.DeviceID        `json:"id"`
	Commands []api.ClocksCommand `json:"commands"`
}

type setPowerProfileModeParams struct {
	ID         api.DeviceID `json:"id"`
	Index      *int         `json:"index,omitempty"`
	Heuristics [][]int64    `json:"heuristics,omitempty"`
}

type setEnabledPowerStatesParams struct {
	ID      api.DeviceID      `json:"id"`
	Kind    api.PowerStateKind `json:"kind"`
	Indices []int             `json:"indices"`
}

type profileNameParams struct {
	Name string `json:"name"`
}

type moveProfileParams struct {
	Name     string `json:"name"`
	NewIndex int    `json:"new_index"`
}

type setProfileRuleParams struct {
	Name string           `json:"name"`
	Rule *api.ProfileRule `json:"rule,omitempty"`
}

type evaluateProfileRuleParams struct {
	Rule api.ProfileRule `json:"rule"`
}

type listProfilesResult struct {
	Names   []string `json:"names"`
	Current string   `json:"current"`
}

type generateSnapshotResult struct {
	Path string `json:"path"`
}
