package heating

import (
	"fmt"
	"strings"
	"time"
)

const secondsPerDay = 24 * 60 * 60

// TimeOfDay counts seconds since midnight.
type TimeOfDay int

// ParseTimeOfDay accepts HH:MM:SS and HH:MM. The whole string must match.
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	layout := time.TimeOnly
	if strings.Count(s, ":") == 1 {
		layout = "15:04"
	}
	t, err := time.Parse(layout, s)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidTimeOfDay, s)
	}
	return timeOfDayOf(t), nil
}

// MustTimeOfDay panics on malformed input. Intended for tests and literals.
func MustTimeOfDay(s string) TimeOfDay {
	t, err := ParseTimeOfDay(s)
	if err != nil {
		panic(err)
	}
	return t
}

func timeOfDayOf(t time.Time) TimeOfDay {
	h, m, s := t.Clock()
	return TimeOfDay(h*3600 + m*60 + s)
}

func (t TimeOfDay) Valid() bool { return t >= 0 && t < secondsPerDay }

func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d:%02d", int(t)/3600, int(t)%3600/60, int(t)%60)
}

func (t TimeOfDay) MarshalText() ([]byte, error) { return []byte(t.String()), nil }

func (t *TimeOfDay) UnmarshalText(b []byte) error {
	v, err := ParseTimeOfDay(string(b))
	if err != nil {
		return err
	}
	*t = v
	return nil
}

// Zone selects the clock a TimeSlot is read against.
type Zone int

const (
	ZoneUTC Zone = iota
	ZoneLocal
)

func (z Zone) String() string {
	if z == ZoneLocal {
		return "local"
	}
	return "utc"
}

func ParseZone(s string) (Zone, error) {
	switch strings.ToLower(s) {
	case "utc", "":
		return ZoneUTC, nil
	case "local":
		return ZoneLocal, nil
	default:
		return ZoneUTC, fmt.Errorf("%w: %q", ErrInvalidZone, s)
	}
}

func (z Zone) MarshalText() ([]byte, error) { return []byte(z.String()), nil }

func (z *Zone) UnmarshalText(b []byte) error {
	v, err := ParseZone(string(b))
	if err != nil {
		return err
	}
	*z = v
	return nil
}

// TimeSlot is the half-open window [Start, End). End before Start wraps
// midnight; Start equal to End is empty.
type TimeSlot struct {
	Zone  Zone
	Start TimeOfDay
	End   TimeOfDay
}

func (s TimeSlot) Validate() error {
	if !s.Start.Valid() || !s.End.Valid() {
		return ErrInvalidTimeOfDay
	}
	if s.Zone != ZoneUTC && s.Zone != ZoneLocal {
		return ErrInvalidZone
	}
	return nil
}

// ContainsTime applies the slot to a wall-clock time of day.
func (s TimeSlot) ContainsTime(t TimeOfDay) bool {
	switch {
	case s.Start < s.End:
		return t >= s.Start && t < s.End
	case s.Start > s.End:
		return t >= s.Start || t < s.End
	default:
		return false
	}
}

// Contains converts now into the slot's zone. loc is used for local slots
// and defaults to time.Local.
func (s TimeSlot) Contains(now time.Time, loc *time.Location) bool {
	return s.ContainsTime(s.clock(now, loc))
}

// Progress returns how far through the slot now is, in [0, 1).
func (s TimeSlot) Progress(now time.Time, loc *time.Location) float64 {
	t := s.clock(now, loc)
	length := s.length()
	if length == 0 || !s.ContainsTime(t) {
		return 0
	}
	offset := (int(t) - int(s.Start) + secondsPerDay) % secondsPerDay
	return float64(offset) / float64(length)
}

func (s TimeSlot) length() int {
	return (int(s.End) - int(s.Start) + secondsPerDay) % secondsPerDay
}

func (s TimeSlot) clock(now time.Time, loc *time.Location) TimeOfDay {
	if s.Zone == ZoneLocal {
		if loc == nil {
			loc = time.Local
		}
		return timeOfDayOf(now.In(loc))
	}
	return timeOfDayOf(now.UTC())
}

func (s TimeSlot) String() string {
	return fmt.Sprintf("%s-%s %s", s.Start, s.End, strings.ToUpper(s.Zone.String()))
}
