// Package simulate provides an in-process microscope that stands in for real
// hardware. Lens and deflector settings are plain stored values; the stage is
// modelled as five motorized axes that travel at a configured speed, so code
// polling the stage observes the same convergence it would on an instrument.
package simulate

import (
	"math/rand/v2"
	"sync"
	"time"

	"github.com/tliron/commonlog"

	"temctl/config"
	"temctl/device"
)

// Name is the registry name of the simulator.
const Name = "simulate"

// 16-bit DAC range of lens and deflector settings.
const (
	MinWord = 0
	MaxWord = 65535
)

var log = commonlog.GetLogger("temctl.simulate")

func init() {
	device.Register(Name, func(cfg config.Config) (device.Microscope, error) {
		return New(cfg.Simulation)
	})
}

type pair struct{ x, y int }

// Microscope is the simulated device. All methods are safe for concurrent use;
// each one holds the state lock for its own duration only.
type Microscope struct {
	mu           sync.Mutex
	clock        Clock
	pollInterval time.Duration

	brightness  int
	gunShift    pair
	gunTilt     pair
	beamShift   pair
	beamTilt    pair
	imageShift1 pair
	imageShift2 pair
	diffShift   pair
	diffFocus   int

	condensorStigmator    pair
	intermediateStigmator pair
	objectiveStigmator    pair

	functionMode  string
	tables        map[string][]int
	magnification map[string]int // per function mode

	beamBlank      bool
	spotSize       int
	screenPosition string

	condensorLens1      int
	condensorLens2      int
	condensorMiniLens   int
	objectiveLensCoarse int
	objectiveLensFine   int
	objectiveMiniLens   int

	stage [numAxes]axis
}

var _ device.Microscope = (*Microscope)(nil)

// Option customizes a simulator.
type Option func(*Microscope)

// WithClock replaces the wall clock.
func WithClock(c Clock) Option {
	return func(m *Microscope) { m.clock = c }
}

// New builds a simulator whose initial settings are drawn from cfg.Seed, so two
// simulators built from the same configuration start out identical.
func New(cfg config.SimulationConfig, opts ...Option) (*Microscope, error) {
	if err := config.ValidateMagnifications(cfg.Magnifications); err != nil {
		return nil, err
	}
	speeds := [numAxes]float64{cfg.StageSpeed.X, cfg.StageSpeed.Y, cfg.StageSpeed.Z, cfg.StageSpeed.A, cfg.StageSpeed.B}
	for i, v := range speeds {
		if v <= 0 {
			return nil, device.Errorf(device.KindValue, "stage speed for %s must be positive", Axis(i))
		}
	}

	r := rand.New(rand.NewPCG(uint64(cfg.Seed), 0x74656d))
	word := func() int { return r.IntN(MaxWord + 1) }
	pos := func(limit int) float64 { return float64(r.IntN(2*limit+1) - limit) }
	twoWords := func() pair { return pair{word(), word()} }

	m := &Microscope{
		clock:        realClock{},
		pollInterval: cfg.PollInterval,

		brightness:  word(),
		gunShift:    twoWords(),
		gunTilt:     twoWords(),
		beamShift:   twoWords(),
		beamTilt:    twoWords(),
		imageShift1: twoWords(),
		imageShift2: twoWords(),
		diffShift:   twoWords(),
		diffFocus:   word(),

		condensorStigmator:    twoWords(),
		intermediateStigmator: twoWords(),
		objectiveStigmator:    twoWords(),

		functionMode:   device.ModeMag1,
		tables:         make(map[string][]int, len(cfg.Magnifications)),
		magnification:  make(map[string]int, len(cfg.Magnifications)),
		spotSize:       1,
		screenPosition: device.ScreenUp,

		condensorLens1:      word(),
		condensorLens2:      word(),
		condensorMiniLens:   word(),
		objectiveLensCoarse: word(),
		objectiveLensFine:   word(),
		objectiveMiniLens:   word(),
	}
	if m.pollInterval <= 0 {
		m.pollInterval = 100 * time.Millisecond
	}

	m.stage[AxisX] = newAxis(pos(100_000), speeds[AxisX])
	m.stage[AxisY] = newAxis(pos(100_000), speeds[AxisY])
	m.stage[AxisZ] = newAxis(pos(10_000), speeds[AxisZ])
	m.stage[AxisA] = newAxis(pos(40), speeds[AxisA])
	m.stage[AxisB] = newAxis(pos(40), speeds[AxisB])

	for mode, table := range cfg.Magnifications {
		m.tables[mode] = append([]int(nil), table...)
		start := 2500
		if mode == device.ModeDiff {
			start = 300
		}
		m.magnification[mode] = nearest(table, start)
	}

	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

func checkWord(name string, v int) error {
	if v < MinWord || v > MaxWord {
		return device.Errorf(device.KindValue, "%s value %d outside %d..%d", name, v, MinWord, MaxWord)
	}
	return nil
}

func (m *Microscope) getPair(p *pair) (int, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return p.x, p.y, nil
}

func (m *Microscope) setPair(name string, p *pair, x, y int) error {
	if err := checkWord(name+" x", x); err != nil {
		return err
	}
	if err := checkWord(name+" y", y); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	*p = pair{x, y}
	return nil
}

func (m *Microscope) getWord(v *int) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return *v, nil
}

func (m *Microscope) GetBrightness() (int, error) { return m.getWord(&m.brightness) }

func (m *Microscope) SetBrightness(value int) error {
	if err := checkWord("brightness", value); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.brightness = value
	return nil
}

func (m *Microscope) GetGunShift() (int, int, error) { return m.getPair(&m.gunShift) }

func (m *Microscope) SetGunShift(x, y int) error {
	return m.setPair("gun shift", &m.gunShift, x, y)
}

func (m *Microscope) GetGunTilt() (int, int, error) { return m.getPair(&m.gunTilt) }

func (m *Microscope) SetGunTilt(x, y int) error {
	return m.setPair("gun tilt", &m.gunTilt, x, y)
}

func (m *Microscope) GetBeamShift() (int, int, error) { return m.getPair(&m.beamShift) }

func (m *Microscope) SetBeamShift(x, y int) error {
	return m.setPair("beam shift", &m.beamShift, x, y)
}

func (m *Microscope) GetBeamTilt() (int, int, error) { return m.getPair(&m.beamTilt) }

func (m *Microscope) SetBeamTilt(x, y int) error {
	return m.setPair("beam tilt", &m.beamTilt, x, y)
}

func (m *Microscope) GetImageShift1() (int, int, error) { return m.getPair(&m.imageShift1) }

func (m *Microscope) SetImageShift1(x, y int) error {
	return m.setPair("image shift 1", &m.imageShift1, x, y)
}

func (m *Microscope) GetImageShift2() (int, int, error) { return m.getPair(&m.imageShift2) }

func (m *Microscope) SetImageShift2(x, y int) error {
	return m.setPair("image shift 2", &m.imageShift2, x, y)
}

func (m *Microscope) GetDiffShift() (int, int, error) { return m.getPair(&m.diffShift) }

func (m *Microscope) SetDiffShift(x, y int) error {
	return m.setPair("diffraction shift", &m.diffShift, x, y)
}

// GetDiffFocus is only meaningful with the intermediate lens in diffraction.
func (m *Microscope) GetDiffFocus() (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.functionMode != device.ModeDiff {
		return 0, device.Errorf(device.KindValue, "must be in 'diff' mode to get DiffFocus")
	}
	return m.diffFocus, nil
}

func (m *Microscope) SetDiffFocus(value int) error {
	if err := checkWord("diffraction focus", value); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.functionMode != device.ModeDiff {
		return device.Errorf(device.KindValue, "must be in 'diff' mode to set DiffFocus")
	}
	m.diffFocus = value
	return nil
}

func (m *Microscope) GetCondensorLensStigmator() (int, int, error) {
	return m.getPair(&m.condensorStigmator)
}

func (m *Microscope) SetCondensorLensStigmator(x, y int) error {
	return m.setPair("condensor lens stigmator", &m.condensorStigmator, x, y)
}

func (m *Microscope) GetIntermediateLensStigmator() (int, int, error) {
	return m.getPair(&m.intermediateStigmator)
}

func (m *Microscope) SetIntermediateLensStigmator(x, y int) error {
	return m.setPair("intermediate lens stigmator", &m.intermediateStigmator, x, y)
}

func (m *Microscope) GetObjectiveLensStigmator() (int, int, error) {
	return m.getPair(&m.objectiveStigmator)
}

func (m *Microscope) SetObjectiveLensStigmator(x, y int) error {
	return m.setPair("objective lens stigmator", &m.objectiveStigmator, x, y)
}

func (m *Microscope) ReleaseConnection() error {
	log.Info("connection to microscope released")
	return nil
}

func (m *Microscope) IsBeamBlanked() (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.beamBlank, nil
}

func (m *Microscope) SetBeamBlank(blank bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.beamBlank = blank
	return nil
}

func (m *Microscope) GetSpotSize() (int, error) { return m.getWord(&m.spotSize) }

func (m *Microscope) SetSpotSize(value int) error {
	if value < 1 || value > 5 {
		return device.Errorf(device.KindValue, "spot size %d outside 1..5", value)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.spotSize = value
	return nil
}

func (m *Microscope) GetScreenPosition() (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.screenPosition, nil
}

func (m *Microscope) SetScreenPosition(value string) error {
	if value != device.ScreenUp && value != device.ScreenDown {
		return device.Errorf(device.KindValue, "screen position must be %q or %q, got %q", device.ScreenUp, device.ScreenDown, value)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.screenPosition = value
	return nil
}

func (m *Microscope) GetCondensorLens1() (int, error)      { return m.getWord(&m.condensorLens1) }
func (m *Microscope) GetCondensorLens2() (int, error)      { return m.getWord(&m.condensorLens2) }
func (m *Microscope) GetCondensorMiniLens() (int, error)   { return m.getWord(&m.condensorMiniLens) }
func (m *Microscope) GetObjectiveLensCoarse() (int, error) { return m.getWord(&m.objectiveLensCoarse) }
func (m *Microscope) GetObjectiveLensFine() (int, error)   { return m.getWord(&m.objectiveLensFine) }
func (m *Microscope) GetObjectiveMiniLens() (int, error)   { return m.getWord(&m.objectiveMiniLens) }
