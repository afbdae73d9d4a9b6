package simulate

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"temctl/config"
	"temctl/device"
)

func newTestMicroscope(t *testing.T) (*Microscope, *manualClock) {
	t.Helper()
	clock := newManualClock()
	m, err := New(config.Default().Simulation, WithClock(clock))
	require.NoError(t, err)
	return m, clock
}

func TestStageConvergence(t *testing.T) {
	m, clock := newTestMicroscope(t)

	x0, _, _, _, _, err := m.GetStagePosition()
	require.NoError(t, err)

	target := x0 + 100_000 // 2s at 50000 nm/s
	require.NoError(t, m.SetStageX(target, false))
	require.Equal(t, Moving, m.Motion(AxisX))

	clock.Advance(time.Second)
	x, _, _, _, _, err := m.GetStagePosition()
	require.NoError(t, err)
	require.Greater(t, x, x0)
	require.Less(t, x, target)
	require.InDelta(t, x0+50_000, x, 1e-6)

	moving, err := m.IsStageMoving()
	require.NoError(t, err)
	require.True(t, moving)

	clock.Advance(time.Second)
	x, _, _, _, _, err = m.GetStagePosition()
	require.NoError(t, err)
	require.Equal(t, target, x)
	require.Equal(t, Idle, m.Motion(AxisX))

	moving, err = m.IsStageMoving()
	require.NoError(t, err)
	require.False(t, moving)
}

func TestStageNegativeDirection(t *testing.T) {
	m, clock := newTestMicroscope(t)

	_, _, z0, _, _, err := m.GetStagePosition()
	require.NoError(t, err)

	target := z0 - 5_000 // 0.5s at 10000 nm/s
	require.NoError(t, m.SetStageZ(target, false))

	clock.Advance(250 * time.Millisecond)
	_, _, z, _, _, err := m.GetStagePosition()
	require.NoError(t, err)
	require.InDelta(t, z0-2_500, z, 1e-6)

	clock.Advance(time.Hour)
	_, _, z, _, _, err = m.GetStagePosition()
	require.NoError(t, err)
	require.Equal(t, target, z)
}

func TestStageZeroDisplacementIsIdle(t *testing.T) {
	m, _ := newTestMicroscope(t)

	_, y0, _, _, _, err := m.GetStagePosition()
	require.NoError(t, err)
	require.NoError(t, m.SetStageY(y0, false))
	require.Equal(t, Idle, m.Motion(AxisY))
}

func TestWaitForStage(t *testing.T) {
	m, clock := newTestMicroscope(t)

	_, _, _, a0, _, err := m.GetStagePosition()
	require.NoError(t, err)

	// 10 degrees at 10 deg/s, default poll interval of 100ms
	require.NoError(t, m.SetStageA(a0+10, true))
	_, _, _, a, _, err := m.GetStagePosition()
	require.NoError(t, err)
	require.Equal(t, a0+10, a)
	require.Equal(t, 10, clock.sleeps)

	moving, err := m.IsStageMoving()
	require.NoError(t, err)
	require.False(t, moving)
}

func TestWaitForStageDelay(t *testing.T) {
	m, clock := newTestMicroscope(t)

	_, _, _, _, b0, err := m.GetStagePosition()
	require.NoError(t, err)
	require.NoError(t, m.SetStageB(b0-10, false))
	require.NoError(t, m.WaitForStage(0.5))
	require.Equal(t, 2, clock.sleeps)

	// already idle: no sleep at all
	require.NoError(t, m.WaitForStage(0.5))
	require.Equal(t, 2, clock.sleeps)
}

func TestWaitForStageDelayBounds(t *testing.T) {
	m, clock := newTestMicroscope(t)

	for _, delay := range []float64{math.NaN(), math.Inf(1), math.Inf(-1), 1e11, MaxPollDelay + 1} {
		require.ErrorIs(t, m.WaitForStage(delay), device.ErrValue, "delay %v", delay)
	}
	require.Zero(t, clock.sleeps)

	// 1 degree at 10 deg/s takes 100ms, polled every 1ms
	_, _, _, _, b0, err := m.GetStagePosition()
	require.NoError(t, err)
	require.NoError(t, m.SetStageB(b0-1, false))
	require.NoError(t, m.WaitForStage(1e-12))
	require.Equal(t, time.Millisecond, clock.last)
	require.Equal(t, 100, clock.sleeps)
}

func TestStopStage(t *testing.T) {
	m, clock := newTestMicroscope(t)

	x0, y0, _, _, _, err := m.GetStagePosition()
	require.NoError(t, err)
	require.NoError(t, m.SetStageXY(x0+100_000, y0-100_000, false))

	clock.Advance(time.Second)
	require.NoError(t, m.StopStage())

	moving, err := m.IsStageMoving()
	require.NoError(t, err)
	require.False(t, moving)

	clock.Advance(time.Hour)
	x, y, _, _, _, err := m.GetStagePosition()
	require.NoError(t, err)
	require.InDelta(t, x0+50_000, x, 1e-6)
	require.InDelta(t, y0-50_000, y, 1e-6)
}

func TestStageRetargetMidFlight(t *testing.T) {
	m, clock := newTestMicroscope(t)

	x0, _, _, _, _, err := m.GetStagePosition()
	require.NoError(t, err)
	require.NoError(t, m.SetStageX(x0+100_000, false))

	clock.Advance(time.Second)
	// reverse from the interpolated midpoint back to the start
	require.NoError(t, m.SetStageX(x0, false))

	clock.Advance(500 * time.Millisecond)
	x, _, _, _, _, err := m.GetStagePosition()
	require.NoError(t, err)
	require.InDelta(t, x0+25_000, x, 1e-6)

	clock.Advance(500 * time.Millisecond)
	x, _, _, _, _, err = m.GetStagePosition()
	require.NoError(t, err)
	require.Equal(t, x0, x)
}

func TestSetStagePositionPartial(t *testing.T) {
	m, clock := newTestMicroscope(t)

	x0, y0, z0, a0, b0, err := m.GetStagePosition()
	require.NoError(t, err)

	z := z0 + 1_000
	b := b0 + 1
	require.NoError(t, m.SetStagePosition(nil, nil, &z, nil, &b, false))
	require.Equal(t, Idle, m.Motion(AxisX))
	require.Equal(t, Moving, m.Motion(AxisZ))

	clock.Advance(time.Minute)
	x, y, gotZ, a, gotB, err := m.GetStagePosition()
	require.NoError(t, err)
	require.Equal(t, []float64{x0, y0, z, a0, b}, []float64{x, y, gotZ, a, gotB})
}

func TestStageRejectsNonFinite(t *testing.T) {
	m, _ := newTestMicroscope(t)

	require.ErrorIs(t, m.SetStageX(math.NaN(), false), device.ErrValue)
	require.ErrorIs(t, m.SetStageXY(0, math.Inf(1), false), device.ErrValue)

	moving, err := m.IsStageMoving()
	require.NoError(t, err)
	require.False(t, moving)
}
