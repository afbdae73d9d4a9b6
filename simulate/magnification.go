package simulate

import (
	"sort"

	"temctl/device"
)

// nearest returns the entry of an ascending table closest to value; ties go
// to the smaller entry.
func nearest(table []int, value int) int {
	i := sort.SearchInts(table, value)
	switch {
	case i == 0:
		return table[0]
	case i == len(table):
		return table[len(table)-1]
	}
	below, above := table[i-1], table[i]
	if value-below <= above-value {
		return below
	}
	return above
}

func (m *Microscope) activeTable() []int {
	return m.tables[m.functionMode]
}

func (m *Microscope) GetMagnification() (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.magnification[m.functionMode], nil
}

// SetMagnification snaps value to the nearest entry of the active mode's table.
func (m *Microscope) SetMagnification(value int) error {
	if value <= 0 {
		return device.Errorf(device.KindValue, "magnification must be positive, got %d", value)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.magnification[m.functionMode] = nearest(m.activeTable(), value)
	return nil
}

func (m *Microscope) GetMagnificationIndex() (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	table := m.activeTable()
	value := m.magnification[m.functionMode]
	i := sort.SearchInts(table, value)
	if i == len(table) || table[i] != value {
		return 0, device.Errorf(device.KindInternal, "magnification %d not in %s table", value, m.functionMode)
	}
	return i, nil
}

func (m *Microscope) SetMagnificationIndex(index int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	table := m.activeTable()
	if index < 0 {
		return device.Errorf(device.KindIndex, "magnification index must not be negative, got %d", index)
	}
	if index >= len(table) {
		return device.Errorf(device.KindIndex, "magnification index %d out of range for %s (0..%d)", index, m.functionMode, len(table)-1)
	}
	m.magnification[m.functionMode] = table[index]
	return nil
}

// GetMagnificationRange returns a copy of the active mode's table.
func (m *Microscope) GetMagnificationRange() ([]int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]int(nil), m.activeTable()...), nil
}

func (m *Microscope) GetFunctionMode() (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.functionMode, nil
}

// SetFunctionMode switches optical regime. Stage motion and the per-mode
// magnification values are left untouched.
func (m *Microscope) SetFunctionMode(mode string) error {
	parsed, err := device.ParseFunctionMode(mode)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.functionMode = parsed
	return nil
}
