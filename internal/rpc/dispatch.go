package rpc

import (
	"context"
	"encoding/json"
	"time"

	"github.com/openlact/lactd/api"
	"github.com/openlact/lactd/internal/errdefs"
	"github.com/openlact/lactd/internal/handler"
)

// Dispatch runs one decoded Request against h and builds its Response,
// translating any returned error through errdefs.ClassifyKind into the
// {kind, message} shape spec.md §7 defines. It never panics on a
// malformed params payload: a json.Unmarshal failure classifies as
// invalid_argument, same as any other caller mistake.
func Dispatch(ctx context.Context, h *handler.Handler, req api.Request) api.Response {
	result, err := dispatch(ctx, h, req)
	if err != nil {
		return errorResponse(req.ID, err)
	}
	if result == nil {
		return api.Response{ID: req.ID, Ok: json.RawMessage("null")}
	}
	return api.NewOkResponse(req.ID, result)
}

func errorResponse(id uint64, err error) api.Response {
	kind := errdefs.ClassifyKind(err)
	if kind == "" {
		kind = errdefs.KindUnknown
	}
	return api.NewErrorResponse(id, string(kind), err.Error())
}

// dispatch is the method switch itself; it returns (nil, nil) for
// methods whose result is always empty.
func dispatch(ctx context.Context, h *handler.Handler, req api.Request) (any, error) {
	switch req.Method {
	case api.MethodPing:
		return h.Ping(), nil

	case api.MethodSystemInfo:
		return h.SystemInfo(), nil

	case api.MethodListDevices:
		return h.ListDevices(), nil

	case api.MethodDeviceInfo:
		p, err := decode[deviceParams](req.Params)
		if err != nil {
			return nil, err
		}
		return h.DeviceInfo(p.ID)

	case api.MethodDeviceStats:
		p, err := decode[deviceParams](req.Params)
		if err != nil {
			return nil, err
		}
		return h.DeviceStats(p.ID)

	case api.MethodDeviceClocksInfo:
		p, err := decode[deviceParams](req.Params)
		if err != nil {
			return nil, err
		}
		return h.ClocksInfo(p.ID)

	case api.MethodPowerProfileModes:
		p, err := decode[deviceParams](req.Params)
		if err != nil {
			return nil, err
		}
		return h.PowerProfileModes(p.ID)

	case api.MethodGetPowerStates:
		p, err := decode[deviceParams](req.Params)
		if err != nil {
			return nil, err
		}
		return h.PowerStates(p.ID)

	case api.MethodVbiosDump:
		p, err := decode[deviceParams](req.Params)
		if err != nil {
			return nil, err
		}
		return h.VbiosDump(p.ID)

	case api.MethodResetPmfw:
		p, err := decode[deviceParams](req.Params)
		if err != nil {
			return nil, err
		}
		return nil, h.ResetPmfwSettings(p.ID)

	case api.MethodSetFanControl:
		p, err := decode[setFanControlParams](req.Params)
		if err != nil {
			return nil, err
		}
		return nil, h.SetFanControl(ctx, p.ID, p.Enabled, p.Settings)

	case api.MethodSetPowerCap:
		p, err := decode[setPowerCapParams](req.Params)
		if err != nil {
			return nil, err
		}
		return nil, h.SetPowerCap(ctx, p.ID, p.Watts)

	case api.MethodSetPerformanceLevel:
		p, err := decode[setPerformanceLevelParams](req.Params)
		if err != nil {
			return nil, err
		}
		return nil, h.SetPerformanceLevel(ctx, p.ID, p.Level)

	case api.MethodSetClocksValue:
		p, err := decode[setClocksValueParams](req.Params)
		if err != nil {
			return nil, err
		}
		if p.Command.Kind == api.ClocksCommandReset {
			return nil, h.ResetClocksValue(ctx, p.ID)
		}
		cmd := p.Command
		return nil, h.SetClocksValue(ctx, p.ID, func(cc *api.ClocksConfiguration) { cmd.Apply(cc) })

	case api.MethodBatchSetClocksValue:
		p, err := decode[batchSetClocksValueParams](req.Params)
		if err != nil {
			return nil, err
		}
		var cc api.ClocksConfiguration
		for _, cmd := range p.Commands {
			if cmd.Kind == api.ClocksCommandReset {
				cc = api.ClocksConfiguration{}
				continue
			}
			cmd.Apply(&cc)
		}
		return nil, h.BatchSetClocksValue(ctx, p.ID, cc)

	case api.MethodSetPowerProfileMode:
		p, err := decode[setPowerProfileModeParams](req.Params)
		if err != nil {
			return nil, err
		}
		return nil, h.SetPowerProfileMode(ctx, p.ID, p.Index, p.Heuristics)

	case api.MethodSetEnabledPowerStates:
		p, err := decode[setEnabledPowerStatesParams](req.Params)
		if err != nil {
			return nil, err
		}
		return nil, h.SetEnabledPowerStates(ctx, p.ID, p.Kind, p.Indices)

	case api.MethodListProfiles:
		names, current := h.ListProfiles()
		return listProfilesResult{Names: names, Current: current}, nil

	case api.MethodSetProfile:
		p, err := decode[profileNameParams](req.Params)
		if err != nil {
			return nil, err
		}
		return nil, h.SetProfile(ctx, p.Name)

	case api.MethodCreateProfile:
		p, err := decode[profileNameParams](req.Params)
		if err != nil {
			return nil, err
		}
		return nil, h.CreateProfile(p.Name)

	case api.MethodDeleteProfile:
		p, err := decode[profileNameParams](req.Params)
		if err != nil {
			return nil, err
		}
		return nil, h.DeleteProfile(ctx, p.Name)

	case api.MethodMoveProfile:
		p, err := decode[moveProfileParams](req.Params)
		if err != nil {
			return nil, err
		}
		return nil, h.MoveProfile(p.Name, p.NewIndex)

	case api.MethodSetProfileRule:
		p, err := decode[setProfileRuleParams](req.Params)
		if err != nil {
			return nil, err
		}
		return nil, h.SetProfileRule(p.Name, p.Rule)

	case api.MethodEvaluateProfileRule:
		p, err := decode[evaluateProfileRuleParams](req.Params)
		if err != nil {
			return nil, err
		}
		return h.EvaluateProfileRule(p.Rule), nil

	case api.MethodEnableOverdrive:
		return nil, h.EnableOverdrive(ctx)

	case api.MethodDisableOverdrive:
		return nil, h.DisableOverdrive(ctx)

	case api.MethodGenerateSnapshot:
		path, err := h.GenerateSnapshot(snapshotTime())
		if err != nil {
			return nil, err
		}
		return generateSnapshotResult{Path: path}, nil

	case api.MethodConfirmPendingConfig:
		return nil, h.ConfirmPendingConfig()

	case api.MethodResetConfig:
		return nil, h.ResetConfig(ctx)

	default:
		return nil, errdefs.NotSupportedf("unknown method %q", req.Method)
	}
}

// snapshotTime is a seam so generate_snapshot's filename timestamp
// comes from one place; it is the only caller of time.Now in this
// package; everything else is pure request/response translation.
func snapshotTime() time.Time { return time.Now() }

func decode[T any](raw json.RawMessage) (T, error) {
	var v T
	if len(raw) == 0 {
		return v, nil
	}
	if err := json.Unmarshal(raw, &v); err != nil {
		return v, errdefs.InvalidArgumentf("invalid params: %v", err)
	}
	return v, nil
}
