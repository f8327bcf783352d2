package rpc

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openlact/lactd/api"
	"github.com/openlact/lactd/internal/config"
	"github.com/openlact/lactd/internal/controller"
	"github.com/openlact/lactd/internal/handler"
	"github.com/openlact/lactd/internal/watchdog"
)

// fakeController is the minimal controller.Controller fake used to
// exercise Dispatch without touching real hardware.
type fakeController struct {
	id      api.DeviceID
	applied []api.GpuConfig
}

func (f *fakeController) Info() api.CommonControllerInfo {
	return api.CommonControllerInfo{}
}
func (f *fakeController) ID() api.DeviceID   { return f.id }
func (f *fakeController) Vendor() api.Vendor { return api.VendorAMD }
func (f *fakeController) DeviceInfo() (api.DeviceInfo, error) {
	return api.DeviceInfo{ID: f.id, Vendor: api.VendorAMD}, nil
}
func (f *fakeController) Stats(*api.GpuConfig) (api.DeviceStats, error) { return api.DeviceStats{}, nil }
func (f *fakeController) ClocksInfo() (api.ClocksInfo, error)          { return api.ClocksInfo{}, nil }
func (f *fakeController) PowerProfileModes() (api.PowerProfileModesTable, error) {
	return api.PowerProfileModesTable{}, nil
}
func (f *fakeController) PowerStates(*api.GpuConfig) (api.PowerStatesInfo, error) {
	return api.PowerStatesInfo{}, nil
}
func (f *fakeController) ApplyConfig(ctx context.Context, cfg api.GpuConfig) error {
	f.applied = append(f.applied, cfg)
	return nil
}
func (f *fakeController) ResetPmfwSettings() error  { return nil }
func (f *fakeController) CleanupClocks() error      { return nil }
func (f *fakeController) VbiosDump() ([]byte, error) { return []byte{0xAA}, nil }
func (f *fakeController) Close() error              { return nil }

func newTestHandler(t *testing.T) (*handler.Handler, *fakeController) {
	t.Helper()
	cfg := config.Default()
	store := config.NewStore(filepath.Join(t.TempDir(), "config.json"))
	fc := &fakeController{id: "0000:01:00.0"}
	controllers := map[api.DeviceID]controller.Controller{fc.id: fc}
	h := handler.New(cfg, store, controllers, watchdog.New(time.Hour), "lactd-test")
	return h, fc
}

func TestDispatch_Ping(t *testing.T) {
	h, _ := newTestHandler(t)
	resp := Dispatch(context.Background(), h, api.Request{ID: 1, Method: api.MethodPing})
	require.Nil(t, resp.Error)
	var result string
	require.NoError(t, json.Unmarshal(resp.Ok, &result))
	assert.Equal(t, "pong", result)
	assert.EqualValues(t, 1, resp.ID)
}

func TestDispatch_UnknownDeviceIsNotSupported(t *testing.T) {
	h, _ := newTestHandler(t)
	params, _ := json.Marshal(deviceParams{ID: "missing"})
	resp := Dispatch(context.Background(), h, api.Request{ID: 2, Method: api.MethodDeviceInfo, Params: params})
	require.NotNil(t, resp.Error)
	assert.Equal(t, "not_supported", resp.Error.Kind)
}

func TestDispatch_MalformedParamsIsInvalidArgument(t *testing.T) {
	h, _ := newTestHandler(t)
	resp := Dispatch(context.Background(), h, api.Request{ID: 3, Method: api.MethodDeviceInfo, Params: json.RawMessage(`{"id":`)})
	require.NotNil(t, resp.Error)
	assert.Equal(t, "invalid_argument", resp.Error.Kind)
}

func TestDispatch_SetClocksValueResetRoutesToResetClocksValue(t *testing.T) {
	h, fc := newTestHandler(t)
	params, _ := json.Marshal(setClocksValueParams{
		ID:      fc.id,
		Command: api.ClocksCommand{Kind: api.ClocksCommandReset},
	})
	resp := Dispatch(context.Background(), h, api.Request{ID: 4, Method: api.MethodSetClocksValue, Params: params})
	require.Nil(t, resp.Error)
	require.Len(t, fc.applied, 1)
	assert.Nil(t, fc.applied[0].ClocksConfiguration)
}

func TestDispatch_UnknownMethod(t *testing.T) {
	h, _ := newTestHandler(t)
	resp := Dispatch(context.Background(), h, api.Request{ID: 5, Method: api.Method("bogus")})
	require.NotNil(t, resp.Error)
	assert.Equal(t, "not_supported", resp.Error.Kind)
}
