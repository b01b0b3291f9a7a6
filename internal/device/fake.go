package device

import (
	"maps"
	"sync"
)

// Fake records pin writes in memory.
type Fake struct {
	mu     sync.Mutex
	levels map[int]bool
	writes int
	err    error
	closed bool
}

func NewFake() *Fake {
	return &Fake{levels: make(map[int]bool)}
}

func (f *Fake) Set(pin int, high bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.levels[pin] = high
	f.writes++
	return nil
}

// Close leaves every written pin at idleHigh, as a pull resistor would.
func (f *Fake) Close(idleHigh bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for pin := range f.levels {
		f.levels[pin] = idleHigh
	}
	f.closed = true
	return nil
}

// Fail makes subsequent writes return err; nil restores normal writes.
func (f *Fake) Fail(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
}

func (f *Fake) Levels() map[int]bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return maps.Clone(f.levels)
}

func (f *Fake) Writes() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.writes
}

func (f *Fake) Closed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}
