package simulate

import "time"

// Clock is the time source of the simulator. Tests substitute a manual clock
// so motion and polling are deterministic.
type Clock interface {
	Now() time.Time
	Sleep(d time.Duration)
}

type realClock struct{}

func (realClock) Now() time.Time        { return time.Now() }
func (realClock) Sleep(d time.Duration) { time.Sleep(d) }
