package heating

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testRange = WorkingRange{Min: 40, Max: 50}

func testScheduler() CirculationScheduler {
	cfg := DefaultConfig()
	return CirculationScheduler{Config: cfg.HPCirculation, HPEnableTime: cfg.HPEnableTime}
}

// exchangerAt sets HXIF/HXIR to hxia with HXOR two degrees below, which keeps
// the forecast drop at zero so heat pct is (hxia-40)/10.
func exchangerAt(hxia float64) map[Sensor]float64 {
	return map[Sensor]float64{
		SensorHXIF: hxia,
		SensorHXIR: hxia,
		SensorHXOR: hxia - 2,
		SensorTKBT: 50,
		SensorTKFL: 50,
		SensorHPFL: 44,
	}
}

func decide(t *testing.T, now time.Time, values map[Sensor]float64, ci CirculationInput) CirculationResult {
	t.Helper()
	if ci.Range == (WorkingRange{}) {
		ci.Range = testRange
	}
	res, err := testScheduler().Decide(inputsAt(now, values), ci)
	require.NoError(t, err)
	return res
}

func TestCirculation_HeatPctForecast(t *testing.T) {
	cfg := DefaultConfig().HPCirculation
	now := at("10:00:00")

	pct, ok, err := cfg.heatPct(inputsAt(now, exchangerAt(47)), testRange)
	require.NoError(t, err)
	require.True(t, ok)
	assert.InDelta(t, 0.7, pct, 1e-9)

	// hxia 48, HXOR 30: drop = ((48-30)-5)*0.33 = 4.29
	pct, ok, err = cfg.heatPct(inputsAt(now, map[Sensor]float64{SensorHXIF: 47, SensorHXIR: 49, SensorHXOR: 30}), testRange)
	require.NoError(t, err)
	require.True(t, ok)
	assert.InDelta(t, (48-4.29-40)/10, pct, 1e-9)

	_, ok, err = cfg.heatPct(inputsAt(now, map[Sensor]float64{SensorHXIF: 47}), testRange)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCirculation_TankPctForecast(t *testing.T) {
	cfg := DefaultConfig().HPCirculation
	// hxia = 50-3 = 47, drop = ((47-38.5)-5)*0.33 = 1.155
	pct, ok, err := cfg.tankPct(inputsAt(at("10:00:00"), map[Sensor]float64{SensorTKBT: 50, SensorHXOR: 38.5}), testRange)
	require.NoError(t, err)
	require.True(t, ok)
	assert.InDelta(t, (47-1.155-40)/10, pct, 1e-9)
}

func TestCirculation_MixedHysteresis(t *testing.T) {
	now := at("10:00:00")
	tests := []struct {
		name     string
		hxia     float64
		previous Submode
		want     Submode
	}{
		{"below start from idle", 46.9, SubmodeNone, SubmodeNone},
		{"at start from idle", 47, SubmodeNone, SubmodeMixed},
		{"between thresholds while mixed", 45, SubmodeMixed, SubmodeMixed},
		{"at stop while mixed", 43, SubmodeMixed, SubmodeNone},
		{"between thresholds from idle", 45, SubmodeNone, SubmodeNone},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := decide(t, now, exchangerAt(tt.hxia), CirculationInput{Previous: tt.previous, EngagedAt: now.Add(-time.Hour)})
			assert.Equal(t, tt.want, res.Submode)
		})
	}
}

func TestCirculation_PreCirculateGate(t *testing.T) {
	values := exchangerAt(48)
	values[SensorHXOR] = 34.9
	res := decide(t, at("10:00:00"), values, CirculationInput{Previous: SubmodeMixed})
	assert.Equal(t, SubmodeNone, res.Submode)
	assert.Equal(t, PhaseIdle, res.Phase)

	delete(values, SensorHXOR)
	res = decide(t, at("10:00:00"), values, CirculationInput{Previous: SubmodeMixed})
	assert.Equal(t, SubmodeNone, res.Submode)
}

func boostValues(hxia float64) map[Sensor]float64 {
	v := exchangerAt(hxia)
	v[SensorHXOR] = 38.5
	v[SensorHXIF] = hxia
	v[SensorHXIR] = hxia
	return v
}

func TestCirculation_BoostEngagesWhenAllGatesPass(t *testing.T) {
	now := at("02:00:00")
	res := decide(t, now, boostValues(40.5), CirculationInput{SlotMargin: 6, HasMargin: true})
	assert.Equal(t, SubmodeBoost, res.Submode)
	assert.Equal(t, now, res.BoostSince)
	assert.Equal(t, now, res.EngagedAt)
}

func TestCirculation_BoostStartGates(t *testing.T) {
	now := at("02:00:00")
	tests := []struct {
		name   string
		mutate func(map[Sensor]float64, *CirculationInput)
	}{
		{"flow difference too small", func(v map[Sensor]float64, _ *CirculationInput) { v[SensorHPFL] = 46 }},
		{"slot margin too small", func(_ map[Sensor]float64, ci *CirculationInput) { ci.SlotMargin = 4 }},
		{"no active slot", func(_ map[Sensor]float64, ci *CirculationInput) { ci.HasMargin = false }},
		{"tank forecast too low", func(v map[Sensor]float64, _ *CirculationInput) { v[SensorTKBT] = 43 }},
		{"tank flow missing", func(v map[Sensor]float64, _ *CirculationInput) { delete(v, SensorTKFL) }},
		{"heat not low enough", func(v map[Sensor]float64, _ *CirculationInput) { v[SensorHXIF], v[SensorHXIR] = 41.5, 41.5 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := boostValues(40.5)
			ci := CirculationInput{SlotMargin: 6, HasMargin: true}
			tt.mutate(v, &ci)
			res := decide(t, now, v, ci)
			assert.NotEqual(t, SubmodeBoost, res.Submode)
		})
	}
}

func TestCirculation_BoostHoldAndRelease(t *testing.T) {
	now := at("02:00:00")
	engaged := now.Add(-10 * time.Minute)
	base := CirculationInput{Previous: SubmodeBoost, EngagedAt: engaged, BoostSince: engaged, SlotMargin: 4, HasMargin: true}

	// Heat 0.15 is above start but below stop; margin 4 is below start but above stop.
	v := boostValues(41.5)
	v[SensorHPFL] = 46
	res := decide(t, now, v, base)
	assert.Equal(t, SubmodeBoost, res.Submode)
	assert.Equal(t, engaged, res.BoostSince)
	assert.Equal(t, engaged, res.EngagedAt)

	// Any single stop gate releases.
	released := decide(t, now, boostValues(42.5), base)
	assert.Equal(t, SubmodeNone, released.Submode, "heat above stop")

	v = boostValues(41.5)
	v[SensorHPFL] = 47
	held := decide(t, now, v, base)
	assert.Equal(t, SubmodeBoost, held.Submode, "flow difference at stop holds")

	v[SensorHPFL] = 47.5
	released = decide(t, now, v, base)
	assert.Equal(t, SubmodeNone, released.Submode, "flow difference below stop")

	ci := base
	ci.SlotMargin = 3
	released = decide(t, now, boostValues(41.5), ci)
	assert.Equal(t, SubmodeNone, released.Submode, "slot margin at stop")
}

func TestCirculation_BoostIgnoresFlowGateWhileSampling(t *testing.T) {
	now := at("02:00:00")
	v := boostValues(41.5)
	v[SensorHPFL] = 50

	sampling := CirculationInput{Previous: SubmodeBoost, EngagedAt: now.Add(-time.Hour), BoostSince: now.Add(-10 * time.Second), SlotMargin: 6, HasMargin: true}
	assert.Equal(t, SubmodeBoost, decide(t, now, v, sampling).Submode)

	sampled := sampling
	sampled.BoostSince = now.Add(-time.Minute)
	assert.Equal(t, SubmodeNone, decide(t, now, v, sampled).Submode)
}

func TestCirculation_LeavingBoostUsesMixedStart(t *testing.T) {
	now := at("02:00:00")
	// Heat around 0.45 releases boost and is below the mixed start threshold.
	res := decide(t, now, boostValues(45), CirculationInput{Previous: SubmodeBoost, BoostSince: now.Add(-time.Hour), SlotMargin: 6, HasMargin: true})
	assert.Equal(t, SubmodeNone, res.Submode)
}

func TestCirculation_MixedToBoostKeepsPhase(t *testing.T) {
	now := at("02:00:00")
	engaged := now.Add(-6 * time.Minute)
	res := decide(t, now, boostValues(40.5), CirculationInput{Previous: SubmodeMixed, EngagedAt: engaged, SlotMargin: 6, HasMargin: true})
	assert.Equal(t, SubmodeBoost, res.Submode)
	assert.Equal(t, engaged, res.EngagedAt)
	assert.Equal(t, now, res.BoostSince)
}

func TestCirculation_PhaseAt(t *testing.T) {
	cfg := DefaultConfig().HPCirculation
	engaged := at("10:00:00")
	tests := []struct {
		after time.Duration
		want  Phase
	}{
		{0, PhaseInitialSleep},
		{299 * time.Second, PhaseInitialSleep},
		{300 * time.Second, PhasePumpOn},
		{369 * time.Second, PhasePumpOn},
		{370 * time.Second, PhasePumpOff},
		{399 * time.Second, PhasePumpOff},
		{400 * time.Second, PhasePumpOn},
		{-time.Minute, PhaseInitialSleep},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, cfg.phaseAt(engaged, engaged.Add(tt.after)), "after %v", tt.after)
	}

	cfg.PumpOffTime = 0
	assert.Equal(t, PhasePumpOn, cfg.phaseAt(engaged, engaged.Add(time.Hour)))
}

func TestCirculation_PumpFollowsPhaseAndReadiness(t *testing.T) {
	now := at("10:00:00")

	fresh := decide(t, now, exchangerAt(48), CirculationInput{})
	assert.Equal(t, SubmodeMixed, fresh.Submode)
	assert.Equal(t, PhaseInitialSleep, fresh.Phase)
	assert.False(t, fresh.HeatPumpReady)
	assert.False(t, fresh.PumpOn)

	running := decide(t, now, exchangerAt(48), CirculationInput{Previous: SubmodeMixed, EngagedAt: now.Add(-310 * time.Second)})
	assert.Equal(t, PhasePumpOn, running.Phase)
	assert.True(t, running.HeatPumpReady)
	assert.True(t, running.PumpOn)
}
