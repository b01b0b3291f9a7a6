package heating

import (
	"fmt"
	"slices"
	"time"
)

// State is everything the engine carries from one tick to the next.
type State struct {
	Primary        HeatingState
	EngagedAt      time.Time
	BoostSince     time.Time
	OverrunLatches []bool
	Command        Command
}

// InitialState is the state at startup.
func InitialState() State {
	return State{Primary: StateOff}
}

// Decision is the timestamped result of one tick.
type Decision struct {
	At              time.Time
	State           HeatingState
	Overrun         bool
	Immersion       bool
	Submode         Submode
	Phase           Phase
	HeatPumpReady   bool
	Command         Command
	WorkingRange    WorkingRange
	HeatPct         float64
	TankPct         float64
	ImmersionTarget float64
	Warnings        []string
}

// Tick maps (previous state, inputs) to the next state and its decision. It
// performs no I/O and does not modify prev.
func Tick(cfg Config, prev State, in Inputs) (State, Decision, error) {
	previous, err := circulatingIn(prev.Primary)
	if err != nil {
		return prev, Decision{}, err
	}
	if err := in.validate(); err != nil {
		return prev, Decision{}, err
	}

	d := Decision{At: in.Now}
	next := State{}

	guard := NoHeatingGuard{Slots: cfg.NoHeating, Location: cfg.Location}
	if guard.Forbidden(in.Now) {
		next.Primary = StateNoHeatingBlackout
		d.State = StateNoHeatingBlackout
		d.Phase = PhaseIdle
		next.Command = command(prev.Command, false, false, false, false, false, in.Now)
		d.Command = next.Command
		return next, d, nil
	}

	d.WorkingRange, d.Warnings = cfg.workingRange(in.Forecast)

	overrun, err := OverrunScheduler{Slots: cfg.Overrun, Location: cfg.Location}.Evaluate(in.Now, in, prev.OverrunLatches)
	if err != nil {
		return prev, Decision{}, err
	}
	immersion, err := ImmersionScheduler{Parts: cfg.Immersion, Location: cfg.Location}.Evaluate(in.Now, in)
	if err != nil {
		return prev, Decision{}, err
	}
	next.OverrunLatches = overrun.Latches
	d.Overrun = overrun.Active
	d.Immersion = immersion.On
	d.ImmersionTarget = immersion.Target

	var circ CirculationResult
	if in.HeatDemand || overrun.Active || immersion.On {
		circ, err = CirculationScheduler{Config: cfg.HPCirculation, HPEnableTime: cfg.HPEnableTime}.Decide(in, CirculationInput{
			Previous:   previous,
			EngagedAt:  prev.EngagedAt,
			BoostSince: prev.BoostSince,
			Range:      d.WorkingRange,
			SlotMargin: overrun.SlotMargin,
			HasMargin:  overrun.HasMargin,
		})
		if err != nil {
			return prev, Decision{}, err
		}
	}

	switch circ.Submode {
	case SubmodeMixed:
		next.Primary = StateCirculateMixed
	case SubmodeBoost:
		next.Primary = StateCirculateBoost
	default:
		next.Primary = StateOff
	}
	next.EngagedAt = circ.EngagedAt
	next.BoostSince = circ.BoostSince

	d.State = next.Primary
	d.Submode = circ.Submode
	d.Phase = circ.Phase
	d.HeatPumpReady = circ.HeatPumpReady
	d.HeatPct = circ.HeatPct
	d.TankPct = circ.TankPct
	if circ.Submode != SubmodeNone && !circ.HeatPctOK {
		d.Warnings = append(d.Warnings, "heat forecast unavailable")
	}

	next.Command = command(prev.Command,
		circ.Submode != SubmodeNone,
		circ.PumpOn,
		circ.Submode == SubmodeBoost,
		overrun.Active,
		immersion.On,
		in.Now,
	)
	d.Command = next.Command
	return next, d, nil
}

// circulatingIn maps a previous state to the circulation submode latched in it.
func circulatingIn(h HeatingState) (Submode, error) {
	switch h {
	case StateOff:
		return SubmodeNone, nil
	case StateCirculateMixed:
		return SubmodeMixed, nil
	case StateCirculateBoost:
		return SubmodeBoost, nil
	case StateOverrun:
		return SubmodeNone, nil
	case StateImmersionOverrun:
		return SubmodeNone, nil
	case StateNoHeatingBlackout:
		return SubmodeNone, nil
	}
	return SubmodeNone, fmt.Errorf("%w: %d", ErrInvalidState, int(h))
}

func command(prev Command, heatPump, pump, boost, overrun, immersion bool, now time.Time) Command {
	return Command{
		HeatPump:        nextIntent(prev.HeatPump, heatPump, now),
		CirculationPump: nextIntent(prev.CirculationPump, pump, now),
		Boost:           nextIntent(prev.Boost, boost, now),
		Overrun:         nextIntent(prev.Overrun, overrun, now),
		Immersion:       nextIntent(prev.Immersion, immersion, now),
	}
}

func (c Config) workingRange(forecast *float64) (WorkingRange, []string) {
	if forecast == nil {
		return c.DefaultWorkingRange, []string{"no forecast, using default working range"}
	}
	r, clamped, err := c.WorkingTempModel.Range(*forecast)
	if err != nil {
		return c.DefaultWorkingRange, []string{fmt.Sprintf("%v, using default working range", err)}
	}
	if clamped {
		return r, []string{fmt.Sprintf("working temp model min %.2f above max, max clamped", r.Min)}
	}
	return r, nil
}

// Machine holds engine state between ticks. It is not safe for concurrent
// use; callers serialize Step and Reload.
type Machine struct {
	cfg   Config
	state State
	last  Decision
}

func NewMachine(cfg Config) (*Machine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Machine{cfg: cfg, state: InitialState()}, nil
}

// Step runs one tick. On error the state is left unchanged.
func (m *Machine) Step(in Inputs) (Decision, error) {
	next, d, err := Tick(m.cfg, m.state, in)
	if err != nil {
		return Decision{}, err
	}
	m.state = next
	m.last = d
	return d, nil
}

// Reload swaps the configuration between ticks. Overrun latches are reset
// since slot indices may have changed.
func (m *Machine) Reload(cfg Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	m.cfg = cfg
	m.state.OverrunLatches = nil
	return nil
}

func (m *Machine) State() State {
	s := m.state
	s.OverrunLatches = slices.Clone(s.OverrunLatches)
	return s
}

func (m *Machine) Config() Config { return m.cfg }

// Last returns the most recent decision.
func (m *Machine) Last() Decision { return m.last }
