// Package trace samples a value periodically, for example a stage coordinate
// or a lens current while an experiment runs.
package trace

import (
	"errors"
	"sync"
	"time"

	"github.com/tliron/commonlog"
)

var log = commonlog.GetLogger("temctl.trace")

// Sample is one observation. Err is set instead of Value when the read failed.
type Sample struct {
	Time  time.Time `json:"time"`
	Value any       `json:"value,omitempty"`
	Err   string    `json:"error,omitempty"`
}

// Sink receives every sample as it is taken.
type Sink interface {
	Record(name string, s Sample) error
}

// Tracer calls Func once at Start and then once per Interval until Stop.
// Samples are kept in memory and also passed to Sink when one is set.
type Tracer struct {
	Name     string
	Func     func() (any, error)
	Interval time.Duration
	Sink     Sink

	mu      sync.Mutex
	samples []Sample
	stop    chan struct{}
	done    chan struct{}
}

var ErrRunning = errors.New("trace: already running")

// Start records the first sample synchronously, then keeps sampling in the
// background.
func (t *Tracer) Start() error {
	if t.Func == nil || t.Interval <= 0 {
		return errors.New("trace: Func and a positive Interval are required")
	}

	t.mu.Lock()
	if t.stop != nil {
		t.mu.Unlock()
		return ErrRunning
	}
	t.stop = make(chan struct{})
	t.done = make(chan struct{})
	stop, done := t.stop, t.done
	t.mu.Unlock()

	log.Infof("trace started: %s every %s", t.Name, t.Interval)
	t.update()

	go func() {
		defer close(done)
		ticker := time.NewTicker(t.Interval)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				t.update()
			}
		}
	}()
	return nil
}

func (t *Tracer) update() {
	s := Sample{Time: time.Now()}
	v, err := t.Func()
	if err != nil {
		s.Err = err.Error()
		log.Warningf("trace %s: %s", t.Name, err)
	} else {
		s.Value = v
	}

	t.mu.Lock()
	t.samples = append(t.samples, s)
	t.mu.Unlock()

	if t.Sink != nil {
		if err := t.Sink.Record(t.Name, s); err != nil {
			log.Errorf("trace %s: record sample: %s", t.Name, err)
		}
	}
}

// Stop ends sampling, waits for an in-progress sample and returns everything
// recorded so far. Stopping a tracer that is not running only returns the samples.
func (t *Tracer) Stop() []Sample {
	t.mu.Lock()
	stop, done := t.stop, t.done
	t.stop, t.done = nil, nil
	t.mu.Unlock()

	if stop != nil {
		close(stop)
		<-done
		log.Infof("trace stopped: %s", t.Name)
	}
	return t.Samples()
}

// Samples returns a copy of the samples recorded so far.
func (t *Tracer) Samples() []Sample {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]Sample(nil), t.samples...)
}
