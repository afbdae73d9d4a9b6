package device

import (
	"sort"
	"strings"
)

// Param is one declared operation parameter.
type Param struct {
	Name     string
	Optional bool
	Default  any // used when Optional and the caller omits the argument
}

// Operation is one entry of the declared operation set.
type Operation struct {
	Name   string // wire name, e.g. "setStageX"
	Params []Param
}

// MethodName is the Go method implementing the operation.
func (o Operation) MethodName() string {
	if o.Name == "" {
		return ""
	}
	return strings.ToUpper(o.Name[:1]) + o.Name[1:]
}

func arg(name string) Param                     { return Param{Name: name} }
func opt(name string, def any) Param            { return Param{Name: name, Optional: true, Default: def} }
func op(name string, params ...Param) Operation { return Operation{Name: name, Params: params} }

// Operations is the declared operation set of Microscope, by wire name.
var Operations = []Operation{
	op("getBrightness"),
	op("setBrightness", arg("value")),

	op("getMagnification"),
	op("setMagnification", arg("value")),
	op("getMagnificationIndex"),
	op("setMagnificationIndex", arg("index")),
	op("getMagnificationRange"),

	op("getGunShift"),
	op("setGunShift", arg("x"), arg("y")),
	op("getGunTilt"),
	op("setGunTilt", arg("x"), arg("y")),
	op("getBeamShift"),
	op("setBeamShift", arg("x"), arg("y")),
	op("getBeamTilt"),
	op("setBeamTilt", arg("x"), arg("y")),
	op("getImageShift1"),
	op("setImageShift1", arg("x"), arg("y")),
	op("getImageShift2"),
	op("setImageShift2", arg("x"), arg("y")),

	op("getStagePosition"),
	op("isStageMoving"),
	op("waitForStage", opt("delay", 0.0)),
	op("setStageX", arg("value"), opt("wait", true)),
	op("setStageY", arg("value"), opt("wait", true)),
	op("setStageZ", arg("value"), opt("wait", true)),
	op("setStageA", arg("value"), opt("wait", true)),
	op("setStageB", arg("value"), opt("wait", true)),
	op("setStageXY", arg("x"), arg("y"), opt("wait", true)),
	op("stopStage"),
	op("setStagePosition", opt("x", nil), opt("y", nil), opt("z", nil), opt("a", nil), opt("b", nil), opt("wait", true)),

	op("getFunctionMode"),
	op("setFunctionMode", arg("value")),

	op("getDiffFocus"),
	op("setDiffFocus", arg("value")),
	op("getDiffShift"),
	op("setDiffShift", arg("x"), arg("y")),

	op("releaseConnection"),

	op("isBeamBlanked"),
	op("setBeamBlank", arg("mode")),

	op("getCondensorLensStigmator"),
	op("setCondensorLensStigmator", arg("x"), arg("y")),
	op("getIntermediateLensStigmator"),
	op("setIntermediateLensStigmator", arg("x"), arg("y")),
	op("getObjectiveLensStigmator"),
	op("setObjectiveLensStigmator", arg("x"), arg("y")),

	op("getSpotSize"),
	op("setSpotSize", arg("value")),
	op("getScreenPosition"),
	op("setScreenPosition", arg("value")),

	op("getCondensorLens1"),
	op("getCondensorLens2"),
	op("getCondensorMiniLens"),
	op("getObjectiveLensCoarse"),
	op("getObjectiveLensFine"),
	op("getObjectiveMiniLens"),
}

var operationIndex = func() map[string]Operation {
	m := make(map[string]Operation, len(Operations))
	for _, o := range Operations {
		m[o.Name] = o
	}
	return m
}()

// LookupOperation returns the declared operation with the given wire name.
func LookupOperation(name string) (Operation, bool) {
	o, ok := operationIndex[name]
	return o, ok
}

// OperationNames returns every declared wire name, sorted.
func OperationNames() []string {
	names := make([]string, 0, len(Operations))
	for _, o := range Operations {
		names = append(names, o.Name)
	}
	sort.Strings(names)
	return names
}
