package client

import "temctl/device"

// One forwarding method per declared operation, so a *Client can stand in
// for a local device.
var _ device.Microscope = (*Client)(nil)

func (c *Client) getInt(op string) (int, error) {
	var v int
	err := c.callInto(&v, op)
	return v, err
}

func (c *Client) getPair(op string) (int, int, error) {
	var v [2]int
	err := c.callInto(&v, op)
	return v[0], v[1], err
}

func (c *Client) getString(op string) (string, error) {
	var v string
	err := c.callInto(&v, op)
	return v, err
}

func (c *Client) getBool(op string) (bool, error) {
	var v bool
	err := c.callInto(&v, op)
	return v, err
}

func (c *Client) do(op string, args ...any) error {
	_, err := c.Call(op, args...)
	return err
}

func (c *Client) GetBrightness() (int, error)   { return c.getInt("getBrightness") }
func (c *Client) SetBrightness(value int) error { return c.do("setBrightness", value) }

func (c *Client) GetMagnification() (int, error)      { return c.getInt("getMagnification") }
func (c *Client) SetMagnification(value int) error    { return c.do("setMagnification", value) }
func (c *Client) GetMagnificationIndex() (int, error) { return c.getInt("getMagnificationIndex") }
func (c *Client) SetMagnificationIndex(index int) error {
	return c.do("setMagnificationIndex", index)
}

func (c *Client) GetMagnificationRange() ([]int, error) {
	var v []int
	err := c.callInto(&v, "getMagnificationRange")
	return v, err
}

func (c *Client) GetGunShift() (int, int, error)     { return c.getPair("getGunShift") }
func (c *Client) SetGunShift(x, y int) error         { return c.do("setGunShift", x, y) }
func (c *Client) GetGunTilt() (int, int, error)      { return c.getPair("getGunTilt") }
func (c *Client) SetGunTilt(x, y int) error          { return c.do("setGunTilt", x, y) }
func (c *Client) GetBeamShift() (int, int, error)    { return c.getPair("getBeamShift") }
func (c *Client) SetBeamShift(x, y int) error        { return c.do("setBeamShift", x, y) }
func (c *Client) GetBeamTilt() (int, int, error)     { return c.getPair("getBeamTilt") }
func (c *Client) SetBeamTilt(x, y int) error         { return c.do("setBeamTilt", x, y) }
func (c *Client) GetImageShift1() (int, int, error)  { return c.getPair("getImageShift1") }
func (c *Client) SetImageShift1(x, y int) error      { return c.do("setImageShift1", x, y) }
func (c *Client) GetImageShift2() (int, int, error)  { return c.getPair("getImageShift2") }
func (c *Client) SetImageShift2(x, y int) error      { return c.do("setImageShift2", x, y) }
func (c *Client) GetDiffShift() (int, int, error)    { return c.getPair("getDiffShift") }
func (c *Client) SetDiffShift(x, y int) error        { return c.do("setDiffShift", x, y) }
func (c *Client) GetDiffFocus() (int, error)         { return c.getInt("getDiffFocus") }
func (c *Client) SetDiffFocus(value int) error       { return c.do("setDiffFocus", value) }
func (c *Client) GetFunctionMode() (string, error)   { return c.getString("getFunctionMode") }
func (c *Client) SetFunctionMode(mode string) error  { return c.do("setFunctionMode", mode) }
func (c *Client) IsBeamBlanked() (bool, error)       { return c.getBool("isBeamBlanked") }
func (c *Client) SetBeamBlank(blank bool) error      { return c.do("setBeamBlank", blank) }
func (c *Client) GetSpotSize() (int, error)          { return c.getInt("getSpotSize") }
func (c *Client) SetSpotSize(value int) error        { return c.do("setSpotSize", value) }
func (c *Client) GetScreenPosition() (string, error) { return c.getString("getScreenPosition") }
func (c *Client) SetScreenPosition(value string) error {
	return c.do("setScreenPosition", value)
}

func (c *Client) GetStagePosition() (x, y, z, a, b float64, err error) {
	var v [5]float64
	err = c.callInto(&v, "getStagePosition")
	return v[0], v[1], v[2], v[3], v[4], err
}

func (c *Client) IsStageMoving() (bool, error)     { return c.getBool("isStageMoving") }
func (c *Client) WaitForStage(delay float64) error { return c.do("waitForStage", delay) }
func (c *Client) StopStage() error                 { return c.do("stopStage") }

func (c *Client) SetStageX(value float64, wait bool) error { return c.do("setStageX", value, wait) }
func (c *Client) SetStageY(value float64, wait bool) error { return c.do("setStageY", value, wait) }
func (c *Client) SetStageZ(value float64, wait bool) error { return c.do("setStageZ", value, wait) }
func (c *Client) SetStageA(value float64, wait bool) error { return c.do("setStageA", value, wait) }
func (c *Client) SetStageB(value float64, wait bool) error { return c.do("setStageB", value, wait) }

func (c *Client) SetStageXY(x, y float64, wait bool) error {
	return c.do("setStageXY", x, y, wait)
}

// SetStagePosition sends only the axes that are set, by name.
func (c *Client) SetStagePosition(x, y, z, a, b *float64, wait bool) error {
	kwargs := map[string]any{"wait": wait}
	for name, v := range map[string]*float64{"x": x, "y": y, "z": z, "a": a, "b": b} {
		if v != nil {
			kwargs[name] = *v
		}
	}
	_, err := c.CallKw("setStagePosition", nil, kwargs)
	return err
}

func (c *Client) ReleaseConnection() error { return c.do("releaseConnection") }

func (c *Client) GetCondensorLensStigmator() (int, int, error) {
	return c.getPair("getCondensorLensStigmator")
}

func (c *Client) SetCondensorLensStigmator(x, y int) error {
	return c.do("setCondensorLensStigmator", x, y)
}

func (c *Client) GetIntermediateLensStigmator() (int, int, error) {
	return c.getPair("getIntermediateLensStigmator")
}

func (c *Client) SetIntermediateLensStigmator(x, y int) error {
	return c.do("setIntermediateLensStigmator", x, y)
}

func (c *Client) GetObjectiveLensStigmator() (int, int, error) {
	return c.getPair("getObjectiveLensStigmator")
}

func (c *Client) SetObjectiveLensStigmator(x, y int) error {
	return c.do("setObjectiveLensStigmator", x, y)
}

func (c *Client) GetCondensorLens1() (int, error)      { return c.getInt("getCondensorLens1") }
func (c *Client) GetCondensorLens2() (int, error)      { return c.getInt("getCondensorLens2") }
func (c *Client) GetCondensorMiniLens() (int, error)   { return c.getInt("getCondensorMiniLens") }
func (c *Client) GetObjectiveLensCoarse() (int, error) { return c.getInt("getObjectiveLensCoarse") }
func (c *Client) GetObjectiveLensFine() (int, error)   { return c.getInt("getObjectiveLensFine") }
func (c *Client) GetObjectiveMiniLens() (int, error)   { return c.getInt("getObjectiveMiniLens") }
