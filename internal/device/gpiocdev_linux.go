//go:build linux

package device

import (
	"errors"
	"fmt"
	"sync"

	"github.com/warthog618/go-gpiocdev"
)

// GPIOCDev drives relays through the Linux GPIO character device. Lines are
// requested as outputs on first use.
type GPIOCDev struct {
	mu    sync.Mutex
	chip  *gpiocdev.Chip
	lines map[int]*gpiocdev.Line
}

func NewGPIOCDev(chip string) (*GPIOCDev, error) {
	if chip == "" {
		chip = "gpiochip0"
	}
	c, err := gpiocdev.NewChip(chip)
	if err != nil {
		return nil, fmt.Errorf("open gpio chip: %w", err)
	}
	return &GPIOCDev{chip: c, lines: make(map[int]*gpiocdev.Line)}, nil
}

func (g *GPIOCDev) Set(pin int, high bool) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	v := 0
	if high {
		v = 1
	}
	if l, ok := g.lines[pin]; ok {
		return l.SetValue(v)
	}
	l, err := g.chip.RequestLine(pin, gpiocdev.AsOutput(v), gpiocdev.WithConsumer("heatpumpctl"))
	if err != nil {
		return fmt.Errorf("request pin %d: %w", pin, err)
	}
	g.lines[pin] = l
	return nil
}

// Close returns every line to an input biased toward idleHigh.
func (g *GPIOCDev) Close(idleHigh bool) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	bias := gpiocdev.WithPullDown
	if idleHigh {
		bias = gpiocdev.WithPullUp
	}
	var errs []error
	for pin, l := range g.lines {
		if err := l.Reconfigure(gpiocdev.AsInput, bias); err != nil {
			errs = append(errs, fmt.Errorf("reconfigure pin %d: %w", pin, err))
		}
		if err := l.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close pin %d: %w", pin, err))
		}
	}
	g.lines = map[int]*gpiocdev.Line{}
	if err := g.chip.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close chip: %w", err))
	}
	return errors.Join(errs...)
}
