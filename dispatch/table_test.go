package dispatch

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"temctl/config"
	"temctl/device"
	"temctl/message"
	"temctl/simulate"
)

func newTable(t *testing.T) (*Table, *simulate.Microscope) {
	t.Helper()
	dev, err := simulate.New(config.Default().Simulation)
	require.NoError(t, err)
	table, err := New(dev)
	require.NoError(t, err)
	return table, dev
}

func request(t *testing.T, op string, args []any, kwargs map[string]any) *message.Request {
	t.Helper()
	req, err := message.NewRequest(op, args, kwargs)
	require.NoError(t, err)
	return req
}

func TestTableCoversOperations(t *testing.T) {
	table, _ := newTable(t)
	require.Equal(t, len(device.Operations), table.Len())
	for _, name := range device.OperationNames() {
		require.True(t, table.Has(name), name)
	}
	require.False(t, table.Has("selfDestruct"))
}

func TestCallResults(t *testing.T) {
	table, dev := newTable(t)

	res, err := table.Call(request(t, "setBrightness", []any{42}, nil))
	require.NoError(t, err)
	require.Nil(t, res)

	res, err = table.Call(request(t, "getBrightness", nil, nil))
	require.NoError(t, err)
	require.Equal(t, 42, res)

	res, err = table.Call(request(t, "getBeamShift", nil, nil))
	require.NoError(t, err)
	x, y, err := dev.GetBeamShift()
	require.NoError(t, err)
	require.Equal(t, []any{x, y}, res)

	res, err = table.Call(request(t, "getStagePosition", nil, nil))
	require.NoError(t, err)
	require.Len(t, res, 5)
}

func TestCallKeywordArguments(t *testing.T) {
	table, dev := newTable(t)

	x0, y0, z0, _, _, err := dev.GetStagePosition()
	require.NoError(t, err)

	_, err = table.Call(request(t, "setStagePosition", nil, map[string]any{"z": z0 + 5000, "wait": false}))
	require.NoError(t, err)
	moving, err := dev.IsStageMoving()
	require.NoError(t, err)
	require.True(t, moving)

	_, err = table.Call(request(t, "stopStage", nil, nil))
	require.NoError(t, err)

	// positional x, keyword wait, y defaults to null (left alone)
	_, err = table.Call(request(t, "setStagePosition", []any{x0}, map[string]any{"wait": true}))
	require.NoError(t, err)
	x, y, _, _, _, err := dev.GetStagePosition()
	require.NoError(t, err)
	require.Equal(t, x0, x)
	require.Equal(t, y0, y)
}

func TestCallBindingErrors(t *testing.T) {
	table, _ := newTable(t)

	tests := []struct {
		name   string
		req    *message.Request
		target error
	}{
		{"unknown", request(t, "selfDestruct", nil, nil), device.ErrUnknownOperation},
		{"too many", request(t, "getBrightness", []any{1}, nil), device.ErrType},
		{"missing", request(t, "setBrightness", nil, nil), device.ErrType},
		{"unexpected keyword", request(t, "setBrightness", nil, map[string]any{"level": 1}), device.ErrType},
		{"duplicate", request(t, "setBrightness", []any{1}, map[string]any{"value": 2}), device.ErrType},
		{"wrong type", request(t, "setBrightness", []any{"bright"}, nil), device.ErrType},
		{"fraction for int", request(t, "setBrightness", []any{1.5}, nil), device.ErrType},
		{"null for int", request(t, "setBrightness", []any{nil}, nil), device.ErrType},
		{"domain", request(t, "setBrightness", []any{70000}, nil), device.ErrValue},
		{"index", request(t, "setMagnificationIndex", []any{-1}, nil), device.ErrIndex},
		{"diff only", request(t, "setDiffFocus", []any{1}, nil), device.ErrValue},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := table.Call(tt.req)
			require.ErrorIs(t, err, tt.target)
		})
	}
}

func TestCallRawJSON(t *testing.T) {
	table, _ := newTable(t)

	req := &message.Request{
		Operation: "setFunctionMode",
		Kwargs:    map[string]json.RawMessage{"value": json.RawMessage(`"diff"`)},
	}
	_, err := table.Call(req)
	require.NoError(t, err)

	res, err := table.Call(&message.Request{Operation: "getFunctionMode"})
	require.NoError(t, err)
	require.Equal(t, device.ModeDiff, res)
}

type brokenMicroscope struct{ device.Microscope }

func TestCallRecoversPanic(t *testing.T) {
	table, err := New(brokenMicroscope{})
	require.NoError(t, err)

	_, err = table.Call(&message.Request{Operation: "getBrightness"})
	require.ErrorIs(t, err, device.ErrInternal)

	// the table stays usable
	_, err = table.Call(&message.Request{Operation: "getSpotSize"})
	require.ErrorIs(t, err, device.ErrInternal)
}

func TestNewRejectsNil(t *testing.T) {
	_, err := New(nil)
	require.Error(t, err)
}
