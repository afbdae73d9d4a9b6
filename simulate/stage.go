package simulate

import (
	"math"
	"time"

	"temctl/device"
)

// Axis identifies one stage degree of freedom.
type Axis int

const (
	AxisX Axis = iota
	AxisY
	AxisZ
	AxisA
	AxisB
	numAxes
)

var axisNames = [numAxes]string{"x", "y", "z", "a", "b"}

func (a Axis) String() string {
	if a < 0 || a >= numAxes {
		return "axis(?)"
	}
	return axisNames[a]
}

// MotionState is the state of a single axis.
type MotionState string

const (
	Idle   MotionState = "idle"
	Moving MotionState = "moving"
)

// axis models a motorized axis with finite speed. While moving, the position
// is a pure function of the elapsed time since the move started; it is only
// materialized when a read observes that the target has been reached.
type axis struct {
	position  float64 // stored position, authoritative while idle
	start     float64
	target    float64
	speed     float64 // units per second, always positive
	direction float64 // -1, 0 or +1
	t0        time.Time
	state     MotionState
}

func newAxis(position, speed float64) axis {
	return axis{position: position, target: position, speed: speed, state: Idle}
}

// read returns the position at now, settling the axis to idle once the
// travelled distance covers the requested displacement.
func (a *axis) read(now time.Time) float64 {
	if a.state == Idle {
		return a.position
	}

	elapsed := now.Sub(a.t0).Seconds()
	if elapsed < 0 {
		elapsed = 0
	}
	travelled := a.speed * elapsed
	if travelled >= math.Abs(a.target-a.start) {
		a.position = a.target
		a.state = Idle
		return a.target
	}
	return a.start + a.direction*travelled
}

// moveTo starts a move from wherever the axis is at now. A move requested
// while another is in flight starts from the interpolated position.
func (a *axis) moveTo(target float64, now time.Time) {
	current := a.read(now)

	a.start = current
	a.target = target
	a.t0 = now
	switch {
	case target > current:
		a.direction = 1
	case target < current:
		a.direction = -1
	default:
		a.direction = 0
	}

	if a.direction == 0 {
		a.position = target
		a.state = Idle
		return
	}
	a.state = Moving
}

// halt freezes the axis where it is at now.
func (a *axis) halt(now time.Time) {
	current := a.read(now)
	a.position = current
	a.target = current
	a.direction = 0
	a.state = Idle
}

func checkStageTarget(ax Axis, v float64) error {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return device.Errorf(device.KindValue, "stage %s target must be finite, got %v", ax, v)
	}
	return nil
}

// Motion reports the state of one axis after settling it against the clock.
func (m *Microscope) Motion(ax Axis) MotionState {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stage[ax].read(m.clock.Now())
	return m.stage[ax].state
}

func (m *Microscope) GetStagePosition() (x, y, z, a, b float64, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.clock.Now()
	var p [numAxes]float64
	for i := range m.stage {
		p[i] = m.stage[i].read(now)
	}
	return p[AxisX], p[AxisY], p[AxisZ], p[AxisA], p[AxisB], nil
}

// IsStageMoving reads every axis first so finished moves settle to idle.
func (m *Microscope) IsStageMoving() (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stageMovingLocked(), nil
}

func (m *Microscope) stageMovingLocked() bool {
	now := m.clock.Now()
	moving := false
	for i := range m.stage {
		m.stage[i].read(now)
		if m.stage[i].state == Moving {
			moving = true
		}
	}
	return moving
}

// Bounds of the waitForStage poll delay, in seconds.
const (
	MinPollDelay = 0.001
	MaxPollDelay = 60.0
)

// WaitForStage polls until every axis is idle. A positive delay replaces the
// configured poll interval; delays below MinPollDelay are raised to it.
func (m *Microscope) WaitForStage(delay float64) error {
	if math.IsNaN(delay) || math.IsInf(delay, 0) || delay > MaxPollDelay {
		return device.Errorf(device.KindValue, "stage poll delay must be at most %gs, got %v", MaxPollDelay, delay)
	}
	interval := m.pollInterval
	if delay > 0 {
		interval = time.Duration(max(delay, MinPollDelay) * float64(time.Second))
	}

	for {
		moving, err := m.IsStageMoving()
		if err != nil {
			return err
		}
		if !moving {
			return nil
		}
		m.clock.Sleep(interval)
	}
}

// moveAxes starts every requested move under one lock, then optionally waits.
func (m *Microscope) moveAxes(targets map[Axis]float64, wait bool) error {
	for ax, v := range targets {
		if err := checkStageTarget(ax, v); err != nil {
			return err
		}
	}

	m.mu.Lock()
	now := m.clock.Now()
	for ax, v := range targets {
		m.stage[ax].moveTo(v, now)
	}
	m.mu.Unlock()

	if wait {
		return m.WaitForStage(0)
	}
	return nil
}

func (m *Microscope) SetStageX(value float64, wait bool) error {
	return m.moveAxes(map[Axis]float64{AxisX: value}, wait)
}

func (m *Microscope) SetStageY(value float64, wait bool) error {
	return m.moveAxes(map[Axis]float64{AxisY: value}, wait)
}

func (m *Microscope) SetStageZ(value float64, wait bool) error {
	return m.moveAxes(map[Axis]float64{AxisZ: value}, wait)
}

func (m *Microscope) SetStageA(value float64, wait bool) error {
	return m.moveAxes(map[Axis]float64{AxisA: value}, wait)
}

func (m *Microscope) SetStageB(value float64, wait bool) error {
	return m.moveAxes(map[Axis]float64{AxisB: value}, wait)
}

func (m *Microscope) SetStageXY(x, y float64, wait bool) error {
	return m.moveAxes(map[Axis]float64{AxisX: x, AxisY: y}, wait)
}

// SetStagePosition moves all given axes at once; nil axes keep their motion.
func (m *Microscope) SetStagePosition(x, y, z, a, b *float64, wait bool) error {
	targets := make(map[Axis]float64, numAxes)
	for ax, v := range map[Axis]*float64{AxisX: x, AxisY: y, AxisZ: z, AxisA: a, AxisB: b} {
		if v != nil {
			targets[ax] = *v
		}
	}
	return m.moveAxes(targets, wait)
}

func (m *Microscope) StopStage() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.clock.Now()
	for i := range m.stage {
		m.stage[i].halt(now)
	}
	return nil
}
