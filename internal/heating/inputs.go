package heating

import (
	"fmt"
	"time"
)

// Reading is one sensor sample.
type Reading struct {
	Value float64
	At    time.Time
}

// Inputs is the complete snapshot handed to a tick.
type Inputs struct {
	Now        time.Time
	Readings   map[Sensor]Reading
	HeatDemand bool
	// Forecast is the outside temperature forecast. Nil when unavailable.
	Forecast *float64
}

func (in Inputs) validate() error {
	for s := range in.Readings {
		if !s.Valid() {
			return fmt.Errorf("%w: %d", ErrUnknownSensor, int(s))
		}
	}
	return nil
}

// value returns the reading of s. ok is false when the reading is missing or
// not finite; err is set only when s is not a known sensor.
func (in Inputs) value(s Sensor) (v float64, ok bool, err error) {
	if !s.Valid() {
		return 0, false, fmt.Errorf("%w: %d", ErrUnknownSensor, int(s))
	}
	r, found := in.Readings[s]
	if !found || !finite(r.Value) {
		return 0, false, nil
	}
	return r.Value, true, nil
}

// values looks up several sensors at once; ok is true only if all are usable.
func (in Inputs) values(sensors ...Sensor) ([]float64, bool, error) {
	out := make([]float64, len(sensors))
	all := true
	for i, s := range sensors {
		v, ok, err := in.value(s)
		if err != nil {
			return nil, false, err
		}
		out[i] = v
		all = all && ok
	}
	return out, all, nil
}
