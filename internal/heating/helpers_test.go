package heating

import (
	"math"
	"time"
)

func readingsAt(now time.Time, values map[Sensor]float64) map[Sensor]Reading {
	out := make(map[Sensor]Reading, len(values))
	for s, v := range values {
		out[s] = Reading{Value: v, At: now}
	}
	return out
}

func inputsAt(now time.Time, values map[Sensor]float64) Inputs {
	return Inputs{Now: now, Readings: readingsAt(now, values)}
}

func ptr[T any](v T) *T { return &v }

func mathNaN() float64 { return math.NaN() }
