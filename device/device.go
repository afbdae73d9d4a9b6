// Package device declares what a microscope can do.
//
// Microscope is the statically declared operation set every driver implements
// (the simulator included). Operations lists the same set by wire name together
// with parameter names and defaults, which lets the server bind keyword
// arguments and lets a client reject undeclared names without a connection.
package device

// Function modes, in the order the hardware enumerates them.
const (
	ModeMag1   = "mag1"
	ModeMag2   = "mag2"
	ModeLowMag = "lowmag"
	ModeSAMag  = "samag"
	ModeDiff   = "diff"
)

// FunctionModes lists every optical regime.
var FunctionModes = []string{ModeMag1, ModeMag2, ModeLowMag, ModeSAMag, ModeDiff}

// ParseFunctionMode validates a function mode name.
func ParseFunctionMode(s string) (string, error) {
	for _, m := range FunctionModes {
		if m == s {
			return m, nil
		}
	}
	return "", Errorf(KindValue, "unrecognized function mode: %q", s)
}

// Screen positions.
const (
	ScreenUp   = "up"
	ScreenDown = "down"
)

// Microscope is the flat set of hardware-control operations.
// Pairs are (x, y) deflector or stigmator DAC words; stage positions are in
// nanometres for x, y, z and degrees for a, b.
type Microscope interface {
	GetBrightness() (int, error)
	SetBrightness(value int) error

	GetMagnification() (int, error)
	SetMagnification(value int) error
	GetMagnificationIndex() (int, error)
	SetMagnificationIndex(index int) error
	GetMagnificationRange() ([]int, error)

	GetGunShift() (x, y int, err error)
	SetGunShift(x, y int) error
	GetGunTilt() (x, y int, err error)
	SetGunTilt(x, y int) error
	GetBeamShift() (x, y int, err error)
	SetBeamShift(x, y int) error
	GetBeamTilt() (x, y int, err error)
	SetBeamTilt(x, y int) error
	GetImageShift1() (x, y int, err error)
	SetImageShift1(x, y int) error
	GetImageShift2() (x, y int, err error)
	SetImageShift2(x, y int) error

	GetStagePosition() (x, y, z, a, b float64, err error)
	IsStageMoving() (bool, error)
	// WaitForStage blocks until no axis is moving, polling every delay seconds.
	// A non-positive delay selects the device's default poll interval.
	WaitForStage(delay float64) error
	SetStageX(value float64, wait bool) error
	SetStageY(value float64, wait bool) error
	SetStageZ(value float64, wait bool) error
	SetStageA(value float64, wait bool) error
	SetStageB(value float64, wait bool) error
	SetStageXY(x, y float64, wait bool) error
	StopStage() error
	// SetStagePosition moves every non-nil axis.
	SetStagePosition(x, y, z, a, b *float64, wait bool) error

	GetFunctionMode() (string, error)
	SetFunctionMode(mode string) error

	GetDiffFocus() (int, error)
	SetDiffFocus(value int) error
	GetDiffShift() (x, y int, err error)
	SetDiffShift(x, y int) error

	ReleaseConnection() error

	IsBeamBlanked() (bool, error)
	SetBeamBlank(blank bool) error

	GetCondensorLensStigmator() (x, y int, err error)
	SetCondensorLensStigmator(x, y int) error
	GetIntermediateLensStigmator() (x, y int, err error)
	SetIntermediateLensStigmator(x, y int) error
	GetObjectiveLensStigmator() (x, y int, err error)
	SetObjectiveLensStigmator(x, y int) error

	GetSpotSize() (int, error)
	SetSpotSize(value int) error
	GetScreenPosition() (string, error)
	SetScreenPosition(value string) error

	GetCondensorLens1() (int, error)
	GetCondensorLens2() (int, error)
	GetCondensorMiniLens() (int, error)
	GetObjectiveLensCoarse() (int, error)
	GetObjectiveLensFine() (int, error)
	GetObjectiveMiniLens() (int, error)
}
