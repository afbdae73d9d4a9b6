// Package exithook runs cleanup functions once when the process is about to
// exit, whether main returns normally or a signal arrives.
package exithook

import (
	"sync"
)

type hook struct {
	id   int
	name string
	fn   func()
}

var (
	mu     sync.Mutex
	nextID int
	hooks  []hook
)

// Register adds fn to the hooks run by Run. The returned function removes
// the hook again, for owners that clean up early.
func Register(name string, fn func()) (remove func()) {
	mu.Lock()
	defer mu.Unlock()
	nextID++
	id := nextID
	hooks = append(hooks, hook{id: id, name: name, fn: fn})

	return func() {
		mu.Lock()
		defer mu.Unlock()
		for i, h := range hooks {
			if h.id == id {
				hooks = append(hooks[:i], hooks[i+1:]...)
				return
			}
		}
	}
}

// Run calls every registered hook in reverse registration order and clears
// the list, so a second Run does nothing. A panicking hook does not stop the
// others.
func Run() {
	mu.Lock()
	pending := hooks
	hooks = nil
	mu.Unlock()

	for i := len(pending) - 1; i >= 0; i-- {
		call(pending[i])
	}
}

func call(h hook) {
	defer func() {
		if r := recover(); r != nil {
			log.Errorf("exit hook %s panicked: %v", h.name, r)
		}
	}()
	log.Debugf("running exit hook %s", h.name)
	h.fn()
}

// Len returns the number of registered hooks.
func Len() int {
	mu.Lock()
	defer mu.Unlock()
	return len(hooks)
}
