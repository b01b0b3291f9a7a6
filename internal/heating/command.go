package heating

import "time"

// Channel names a physical output driven by a Command.
type Channel int

const (
	ChannelHeatPump Channel = iota
	ChannelCirculationPump
	ChannelBoost
	ChannelOverrun
	ChannelImmersion
)

// Channels lists every output channel.
var Channels = []Channel{ChannelHeatPump, ChannelCirculationPump, ChannelBoost, ChannelOverrun, ChannelImmersion}

func (c Channel) String() string {
	switch c {
	case ChannelHeatPump:
		return "heat_pump"
	case ChannelCirculationPump:
		return "circulation_pump"
	case ChannelBoost:
		return "boost"
	case ChannelOverrun:
		return "overrun"
	case ChannelImmersion:
		return "immersion"
	default:
		return "unknown"
	}
}

func (c Channel) MarshalText() ([]byte, error) { return []byte(c.String()), nil }

// Intent is the desired output of one channel and when it took that value.
type Intent struct {
	On    bool
	Since time.Time
}

// Command carries one intent per channel.
type Command struct {
	HeatPump        Intent
	CirculationPump Intent
	Boost           Intent
	Overrun         Intent
	Immersion       Intent
}

// Get returns the intent for ch.
func (c Command) Get(ch Channel) Intent {
	switch ch {
	case ChannelHeatPump:
		return c.HeatPump
	case ChannelCirculationPump:
		return c.CirculationPump
	case ChannelBoost:
		return c.Boost
	case ChannelOverrun:
		return c.Overrun
	case ChannelImmersion:
		return c.Immersion
	default:
		return Intent{}
	}
}

// Off returns a command with every channel off since now.
func Off(now time.Time) Command {
	off := Intent{Since: now}
	return Command{HeatPump: off, CirculationPump: off, Boost: off, Overrun: off, Immersion: off}
}

func nextIntent(prev Intent, on bool, now time.Time) Intent {
	if prev.On == on && !prev.Since.IsZero() {
		return prev
	}
	return Intent{On: on, Since: now}
}
