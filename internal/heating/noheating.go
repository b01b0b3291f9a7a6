package heating

import "time"

// NoHeatingGuard reports blackout windows during which nothing may heat.
type NoHeatingGuard struct {
	Slots    []TimeSlot
	Location *time.Location
}

// Forbidden reports whether now falls in any blackout slot.
func (g NoHeatingGuard) Forbidden(now time.Time) bool {
	for _, s := range g.Slots {
		if s.Contains(now, g.Location) {
			return true
		}
	}
	return false
}
