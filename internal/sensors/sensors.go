// Package sensors provides the temperature readings fed to the heating engine.
package sensors

import (
	"context"
	"errors"
	"maps"
	"sync"

	"github.com/Agrid-Dev/heatpumpctl/internal/heating"
)

var (
	ErrNoReadings            = errors.New("no sensor readings")
	ErrNegativeLossCoeff     = errors.New("loss coefficient must be greater or equal to zero")
	ErrNegativeHeatRate      = errors.New("heat rate must be greater or equal to zero")
	ErrNegativeMaxAge        = errors.New("max age must be greater or equal to zero")
)

// Source yields the latest reading of each sensor it knows about. Sensors
// without a usable reading are left out of the map.
type Source interface {
	Read(ctx context.Context) (map[heating.Sensor]heating.Reading, error)
}

// Fake is a Source returning fixed readings.
type Fake struct {
	mu       sync.Mutex
	readings map[heating.Sensor]heating.Reading
	err      error
	calls    int
}

func NewFake(readings map[heating.Sensor]heating.Reading) *Fake {
	return &Fake{readings: maps.Clone(readings)}
}

func (f *Fake) Read(context.Context) (map[heating.Sensor]heating.Reading, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return maps.Clone(f.readings), nil
}

// Set replaces one reading.
func (f *Fake) Set(s heating.Sensor, r heating.Reading) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.readings == nil {
		f.readings = make(map[heating.Sensor]heating.Reading)
	}
	f.readings[s] = r
}

// Fail makes subsequent reads return err; nil restores normal reads.
func (f *Fake) Fail(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
}

func (f *Fake) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}
