package device

import (
	"fmt"
	"sync"

	"github.com/stianeikeland/go-rpio"
)

// RPIO drives relays through memory-mapped Raspberry Pi GPIO.
type RPIO struct {
	mu   sync.Mutex
	pins map[int]rpio.Pin
}

func NewRPIO() (*RPIO, error) {
	if err := rpio.Open(); err != nil {
		return nil, fmt.Errorf("open rpio: %w", err)
	}
	return &RPIO{pins: make(map[int]rpio.Pin)}, nil
}

func (r *RPIO) Set(pin int, high bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.pins[pin]
	if !ok {
		p = rpio.Pin(pin)
		p.Mode(rpio.Output)
		r.pins[pin] = p
	}
	if high {
		p.High()
	} else {
		p.Low()
	}
	return nil
}

func (r *RPIO) Close(idleHigh bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range r.pins {
		p.Input()
		if idleHigh {
			p.PullUp()
		} else {
			p.PullDown()
		}
	}
	return rpio.Close()
}
