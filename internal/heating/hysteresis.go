package heating

import "math"

// Direction selects which side of a Band engages.
type Direction int

const (
	// Rising engages when v >= Start and holds while v > Stop. Start >= Stop.
	Rising Direction = iota
	// Falling engages when v < Start and holds while v < Stop. Start <= Stop.
	Falling
)

// Band is a start/stop threshold pair applied to a latched boolean.
type Band struct {
	Start     float64
	Stop      float64
	Direction Direction
}

func (b Band) Validate() error {
	if math.IsNaN(b.Start) || math.IsNaN(b.Stop) || math.IsInf(b.Start, 0) || math.IsInf(b.Stop, 0) {
		return ErrInvalidInput
	}
	switch b.Direction {
	case Rising:
		if b.Start < b.Stop {
			return ErrInvalidHysteresis
		}
	case Falling:
		if b.Start > b.Stop {
			return ErrInvalidHysteresis
		}
	default:
		return ErrInvalidHysteresis
	}
	return nil
}

// Engages reports whether v crosses the start threshold.
func (b Band) Engages(v float64) bool {
	if b.Direction == Falling {
		return v < b.Start
	}
	return v >= b.Start
}

// Holds reports whether an engaged latch stays engaged at v.
func (b Band) Holds(v float64) bool {
	if b.Direction == Falling {
		return v < b.Stop
	}
	return v > b.Stop
}

// Next returns the latch value after observing v. A reading that is missing
// (ok == false) or not finite always releases the latch.
func (b Band) Next(engaged bool, v float64, ok bool) bool {
	if !ok || !finite(v) {
		return false
	}
	if engaged {
		return b.Holds(v)
	}
	return b.Engages(v)
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
