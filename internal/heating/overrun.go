package heating

import (
	"math"
	"time"
)

// OverrunResult is the outcome of one overrun evaluation.
type OverrunResult struct {
	Active  bool
	Latches []bool
	// SlotMargin is the smallest reading-minus-min among slots containing now
	// with a usable reading. Valid only when HasMargin.
	SlotMargin float64
	HasMargin  bool
}

// OverrunScheduler evaluates the configured overrun slots.
type OverrunScheduler struct {
	Slots    []OverrunSlot
	Location *time.Location
}

// Evaluate is pure: latches is read, never written. A latches slice of the
// wrong length is treated as all released.
func (o OverrunScheduler) Evaluate(now time.Time, in Inputs, latches []bool) (OverrunResult, error) {
	if len(latches) != len(o.Slots) {
		latches = nil
	}
	res := OverrunResult{Latches: make([]bool, len(o.Slots)), SlotMargin: math.Inf(1)}
	for i, slot := range o.Slots {
		v, ok, err := in.value(slot.Sensor)
		if err != nil {
			return OverrunResult{}, err
		}
		if !slot.Slot.Contains(now, o.Location) {
			continue
		}
		if !ok {
			continue
		}
		if margin := v - slot.Min; margin < res.SlotMargin {
			res.SlotMargin = margin
			res.HasMargin = true
		}
		was := latches != nil && latches[i]
		band := Band{Start: slot.Min, Stop: slot.Max, Direction: Falling}
		res.Latches[i] = band.Next(was, v, true)
		res.Active = res.Active || res.Latches[i]
	}
	if !res.HasMargin {
		res.SlotMargin = 0
	}
	return res, nil
}
