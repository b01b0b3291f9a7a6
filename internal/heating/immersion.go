package heating

import "time"

// ImmersionScheduler picks the first part whose window contains now.
type ImmersionScheduler struct {
	Parts    []ImmersionPart
	Location *time.Location
}

// ImmersionResult reports the matched part, if any.
type ImmersionResult struct {
	On     bool
	Part   int // -1 when no part matched
	Target float64
}

func (s ImmersionScheduler) Evaluate(now time.Time, in Inputs) (ImmersionResult, error) {
	for i, p := range s.Parts {
		if !p.Slot.Contains(now, s.Location) {
			continue
		}
		target := p.target(now, s.Location)
		v, ok, err := in.value(p.Sensor)
		if err != nil {
			return ImmersionResult{}, err
		}
		return ImmersionResult{On: ok && v < target, Part: i, Target: target}, nil
	}
	return ImmersionResult{Part: -1}, nil
}

func (p ImmersionPart) target(now time.Time, loc *time.Location) float64 {
	if p.EndTemp == nil {
		return p.Temp
	}
	return p.Temp + (*p.EndTemp-p.Temp)*p.Slot.Progress(now, loc)
}
