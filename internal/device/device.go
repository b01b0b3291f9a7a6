// Package device drives the relays behind each heating channel.
package device

import (
	"errors"
	"fmt"
	"maps"
	"sync"

	"github.com/Agrid-Dev/heatpumpctl/internal/heating"
)

var (
	ErrUnknownChannel = errors.New("unknown relay channel")
	ErrDuplicatePin   = errors.New("pin assigned to more than one channel")
	ErrInvalidPin     = errors.New("pin must be greater or equal to zero")
	ErrUnknownDriver  = errors.New("unknown relay driver")
	ErrUnsupported    = errors.New("relay driver not supported on this platform")
)

// Driver switches a single output pin. high is the electrical level, the
// Board takes care of active-low wiring. Close releases every pin biased
// toward idleHigh, the level that keeps a relay off.
type Driver interface {
	Set(pin int, high bool) error
	Close(idleHigh bool) error
}

// Board maps heating channels to relay pins. Channels without a pin are
// ignored.
type Board struct {
	ID string

	mu        sync.Mutex
	driver    Driver
	pins      map[heating.Channel]int
	activeLow bool
	state     map[heating.Channel]bool
	written   map[heating.Channel]bool
}

func NewBoard(id string, d Driver, pins map[string]int, activeLow bool) (*Board, error) {
	byName := make(map[string]heating.Channel, len(heating.Channels))
	for _, ch := range heating.Channels {
		byName[ch.String()] = ch
	}

	b := &Board{
		ID:        id,
		driver:    d,
		pins:      make(map[heating.Channel]int, len(pins)),
		activeLow: activeLow,
		state:     make(map[heating.Channel]bool),
		written:   make(map[heating.Channel]bool),
	}
	used := make(map[int]string, len(pins))
	for name, pin := range pins {
		ch, ok := byName[name]
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrUnknownChannel, name)
		}
		if pin < 0 {
			return nil, fmt.Errorf("%w: %s=%d", ErrInvalidPin, name, pin)
		}
		if other, dup := used[pin]; dup {
			return nil, fmt.Errorf("%w: %d (%s, %s)", ErrDuplicatePin, pin, other, name)
		}
		used[pin] = name
		b.pins[ch] = pin
	}
	return b, nil
}

// Apply drives every mapped channel to the command's intent. Only channels
// whose output differs from the last successful write are touched.
func (b *Board) Apply(cmd heating.Command) ([]heating.Channel, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	var (
		changed []heating.Channel
		errs    []error
	)
	for _, ch := range heating.Channels {
		on := cmd.Get(ch).On
		if err := b.write(ch, on); err != nil {
			errs = append(errs, err)
			continue
		}
		if b.written[ch] {
			changed = append(changed, ch)
			b.written[ch] = false
		}
	}
	return changed, errors.Join(errs...)
}

// AllOff switches every mapped channel off.
func (b *Board) AllOff() error {
	_, err := b.Apply(heating.Command{})
	return err
}

func (b *Board) write(ch heating.Channel, on bool) error {
	pin, ok := b.pins[ch]
	if !ok {
		return nil
	}
	if cur, known := b.state[ch]; known && cur == on {
		return nil
	}
	if err := b.driver.Set(pin, on != b.activeLow); err != nil {
		return fmt.Errorf("set %s (pin %d): %w", ch, pin, err)
	}
	b.state[ch] = on
	b.written[ch] = true
	return nil
}

// Outputs returns the last written logical state of each mapped channel.
func (b *Board) Outputs() map[heating.Channel]bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return maps.Clone(b.state)
}

// Close switches everything off and releases the driver with the pins
// resting at the off level.
func (b *Board) Close() error {
	offErr := b.AllOff()
	return errors.Join(offErr, b.driver.Close(b.activeLow))
}

// NewDriver builds the named driver: "gpiocdev", "rpio" or "fake".
func NewDriver(name, chip string) (Driver, error) {
	switch name {
	case "gpiocdev":
		return NewGPIOCDev(chip)
	case "rpio":
		return NewRPIO()
	case "fake", "":
		return NewFake(), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownDriver, name)
	}
}
