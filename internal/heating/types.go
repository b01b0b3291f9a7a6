package heating

import (
	"fmt"
	"strings"
)

// Sensor is an integer enum naming one of the installation's temperature probes.
type Sensor int

const (
	SensorUnknown Sensor = iota
	SensorTKTP           // tank top
	SensorTKEN           // tank enclosure
	SensorTKEX           // tank exchanger
	SensorTKBT           // tank bottom
	SensorHPFL           // heat pump flow
	SensorHPRT           // heat pump return
	SensorTKFL           // tank flow
	SensorTKRT           // tank return
	SensorHXOF           // heat exchanger output flow
	SensorHXOR           // heat exchanger output return
	SensorHXIF           // heat exchanger input flow
	SensorHXIR           // heat exchanger input return
)

var sensorNames = [...]string{
	SensorTKTP: "TKTP",
	SensorTKEN: "TKEN",
	SensorTKEX: "TKEX",
	SensorTKBT: "TKBT",
	SensorHPFL: "HPFL",
	SensorHPRT: "HPRT",
	SensorTKFL: "TKFL",
	SensorTKRT: "TKRT",
	SensorHXOF: "HXOF",
	SensorHXOR: "HXOR",
	SensorHXIF: "HXIF",
	SensorHXIR: "HXIR",
}

// Sensors lists every known sensor in declaration order.
func Sensors() []Sensor {
	out := make([]Sensor, 0, len(sensorNames)-1)
	for s := SensorTKTP; s <= SensorHXIR; s++ {
		out = append(out, s)
	}
	return out
}

func (s Sensor) Valid() bool {
	return s >= SensorTKTP && s <= SensorHXIR
}

func (s Sensor) String() string {
	if !s.Valid() {
		return "unknown"
	}
	return sensorNames[s]
}

// ParseSensor matches names exactly; "tktp" is not a sensor.
func ParseSensor(name string) (Sensor, error) {
	for s := SensorTKTP; s <= SensorHXIR; s++ {
		if sensorNames[s] == name {
			return s, nil
		}
	}
	return SensorUnknown, fmt.Errorf("%w: %q", ErrUnknownSensor, name)
}

func (s Sensor) MarshalText() ([]byte, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrUnknownSensor, int(s))
	}
	return []byte(s.String()), nil
}

func (s *Sensor) UnmarshalText(b []byte) error {
	v, err := ParseSensor(string(b))
	if err != nil {
		return err
	}
	*s = v
	return nil
}

// HeatingState is an integer enum. Off, CirculateMixed, CirculateBoost and
// NoHeatingBlackout are primary states; Overrun and ImmersionOverrun name the
// two independent flag channels.
type HeatingState int

const (
	StateUnknown HeatingState = iota
	StateOff
	StateCirculateMixed
	StateCirculateBoost
	StateOverrun
	StateImmersionOverrun
	StateNoHeatingBlackout
)

func (h HeatingState) Valid() bool {
	return h >= StateOff && h <= StateNoHeatingBlackout
}

// IsPrimary reports whether h can be the primary state of a tick.
func (h HeatingState) IsPrimary() bool {
	switch h {
	case StateOff, StateCirculateMixed, StateCirculateBoost, StateNoHeatingBlackout:
		return true
	default:
		return false
	}
}

func (h HeatingState) String() string {
	switch h {
	case StateOff:
		return "off"
	case StateCirculateMixed:
		return "circulate_mixed"
	case StateCirculateBoost:
		return "circulate_boost"
	case StateOverrun:
		return "overrun"
	case StateImmersionOverrun:
		return "immersion_overrun"
	case StateNoHeatingBlackout:
		return "no_heating_blackout"
	default:
		return "unknown"
	}
}

func ParseHeatingState(s string) (HeatingState, error) {
	for h := StateOff; h <= StateNoHeatingBlackout; h++ {
		if h.String() == strings.ToLower(s) {
			return h, nil
		}
	}
	return StateUnknown, fmt.Errorf("%w: %q", ErrInvalidState, s)
}

// Submode is the circulation decision of a tick.
type Submode int

const (
	SubmodeNone Submode = iota
	SubmodeMixed
	SubmodeBoost
)

func (m Submode) String() string {
	switch m {
	case SubmodeNone:
		return "none"
	case SubmodeMixed:
		return "mixed"
	case SubmodeBoost:
		return "boost"
	default:
		return "unknown"
	}
}

// Phase is the pump duty-cycle position while circulating.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseInitialSleep
	PhasePumpOn
	PhasePumpOff
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseInitialSleep:
		return "initial_sleep"
	case PhasePumpOn:
		return "pump_on"
	case PhasePumpOff:
		return "pump_off"
	default:
		return "unknown"
	}
}

func (h HeatingState) MarshalText() ([]byte, error) { return []byte(h.String()), nil }

func (m Submode) MarshalText() ([]byte, error) { return []byte(m.String()), nil }

func (p Phase) MarshalText() ([]byte, error) { return []byte(p.String()), nil }
