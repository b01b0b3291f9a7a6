package heating

import "time"

// maxForecastDrop bounds the expected exchanger input drop.
const maxForecastDrop = 25.0

// CirculationScheduler decides the heat-pump circulation submode and the
// pump duty-cycle phase. It is pure; actuation happens elsewhere.
type CirculationScheduler struct {
	Config       HPCirculationConfig
	HPEnableTime time.Duration
}

// CirculationInput carries what the scheduler remembers between ticks plus
// the values computed earlier in the same tick.
type CirculationInput struct {
	Previous   Submode
	EngagedAt  time.Time
	BoostSince time.Time
	Range      WorkingRange
	SlotMargin float64
	HasMargin  bool
}

type CirculationResult struct {
	Submode       Submode
	Phase         Phase
	EngagedAt     time.Time
	BoostSince    time.Time
	HeatPct       float64
	HeatPctOK     bool
	TankPct       float64
	TankPctOK     bool
	HeatPumpReady bool
	PumpOn        bool
}

func (c CirculationScheduler) Decide(in Inputs, ci CirculationInput) (CirculationResult, error) {
	var res CirculationResult
	var err error
	if res.HeatPct, res.HeatPctOK, err = c.Config.heatPct(in, ci.Range); err != nil {
		return CirculationResult{}, err
	}
	if res.TankPct, res.TankPctOK, err = c.Config.tankPct(in, ci.Range); err != nil {
		return CirculationResult{}, err
	}
	gate, err := c.sourceWarm(in)
	if err != nil {
		return CirculationResult{}, err
	}

	res.Submode = SubmodeNone
	if gate {
		boost, err := c.boost(in, ci, res)
		if err != nil {
			return CirculationResult{}, err
		}
		switch {
		case boost:
			res.Submode = SubmodeBoost
		case c.Config.Mixed.band().Next(ci.Previous == SubmodeMixed, res.HeatPct, res.HeatPctOK):
			res.Submode = SubmodeMixed
		}
	}

	if res.Submode == SubmodeNone {
		res.Phase = PhaseIdle
		return res, nil
	}

	res.EngagedAt = ci.EngagedAt
	if ci.Previous == SubmodeNone || res.EngagedAt.IsZero() {
		res.EngagedAt = in.Now
	}
	if res.Submode == SubmodeBoost {
		res.BoostSince = ci.BoostSince
		if ci.Previous != SubmodeBoost || res.BoostSince.IsZero() {
			res.BoostSince = in.Now
		}
	}
	res.Phase = c.Config.phaseAt(res.EngagedAt, in.Now)
	res.HeatPumpReady = in.Now.Sub(res.EngagedAt) >= c.HPEnableTime
	res.PumpOn = res.Phase == PhasePumpOn && res.HeatPumpReady
	return res, nil
}

// sourceWarm is the hard pre-circulation gate on HXOR.
func (c CirculationScheduler) sourceWarm(in Inputs) (bool, error) {
	hxor, ok, err := in.value(SensorHXOR)
	if err != nil || !ok {
		return false, err
	}
	return hxor >= c.Config.PreCirculateTempRequired, nil
}

// boost engages only when every start gate passes and the tank forecast is
// above forecast_start_above_percent. Once engaged, any failing stop gate
// releases it. The TKFL-HPFL stop gate is skipped for SampleTankTime.
func (c CirculationScheduler) boost(in Inputs, ci CirculationInput, res CirculationResult) (bool, error) {
	cfg := c.Config.Boost
	flows, flowsOK, err := in.values(SensorTKFL, SensorHPFL)
	if err != nil {
		return false, err
	}
	diff := flows[0] - flows[1]

	if ci.Previous == SubmodeBoost {
		if !cfg.heatBand().Next(true, res.HeatPct, res.HeatPctOK) {
			return false, nil
		}
		sampling := !ci.BoostSince.IsZero() && in.Now.Sub(ci.BoostSince) < c.Config.SampleTankTime
		// The flow gate holds at its stop value, unlike the other two.
		if !sampling && !(flowsOK && finite(diff) && diff >= cfg.StopTKFLHPFLDiff) {
			return false, nil
		}
		return cfg.slotBand().Next(true, ci.SlotMargin, ci.HasMargin), nil
	}

	return cfg.heatBand().Next(false, res.HeatPct, res.HeatPctOK) &&
		cfg.diffBand().Next(false, diff, flowsOK) &&
		cfg.slotBand().Next(false, ci.SlotMargin, ci.HasMargin) &&
		res.TankPctOK && res.TankPct >= c.Config.ForecastStartAbovePercent, nil
}

func (c HPCirculationConfig) forecast(hxia, hxor float64) float64 {
	drop := ((hxia - hxor) - c.ForecastDiffOffset) * c.ForecastDiffProportion
	return hxia - min(max(drop, 0), maxForecastDrop)
}

// heatPct forecasts the exchanger input temperature and places it in r.
func (c HPCirculationConfig) heatPct(in Inputs, r WorkingRange) (float64, bool, error) {
	v, ok, err := in.values(SensorHXIF, SensorHXIR, SensorHXOR)
	if err != nil || !ok {
		return 0, false, err
	}
	hxia := (v[0] + v[1]) / 2
	pct, ok := r.Position(c.forecast(hxia, v[2]))
	return pct, ok, nil
}

// tankPct is heatPct as if the exchanger were fed from the tank bottom.
func (c HPCirculationConfig) tankPct(in Inputs, r WorkingRange) (float64, bool, error) {
	v, ok, err := in.values(SensorTKBT, SensorHXOR)
	if err != nil || !ok {
		return 0, false, err
	}
	hxia := v[0] - c.ForecastTKBTHXIADrop
	pct, ok := r.Position(min(max(c.forecast(hxia, v[1]), 0), 100))
	return pct, ok, nil
}

// phaseAt derives the duty-cycle phase from the engagement time alone, so
// the same (engagedAt, now) always gives the same phase.
func (c HPCirculationConfig) phaseAt(engagedAt, now time.Time) Phase {
	elapsed := now.Sub(engagedAt)
	if elapsed < c.InitialSleep {
		return PhaseInitialSleep
	}
	period := c.PumpOnTime + c.PumpOffTime
	if period <= 0 || c.PumpOffTime == 0 {
		return PhasePumpOn
	}
	if (elapsed-c.InitialSleep)%period < c.PumpOnTime {
		return PhasePumpOn
	}
	return PhasePumpOff
}
