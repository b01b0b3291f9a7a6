package heating

import (
	"errors"
	"fmt"
	"time"
)

type MixedModeConfig struct {
	StartHeatPct float64
	StopHeatPct  float64
}

func (m MixedModeConfig) band() Band {
	return Band{Start: m.StartHeatPct, Stop: m.StopHeatPct, Direction: Rising}
}

type BoostModeConfig struct {
	StartHeatPct      float64
	StopHeatPct       float64
	StartTKFLHPFLDiff float64
	StopTKFLHPFLDiff  float64
	StartSlotMinDiff  float64
	StopSlotMinDiff   float64
}

func (b BoostModeConfig) heatBand() Band {
	return Band{Start: b.StartHeatPct, Stop: b.StopHeatPct, Direction: Falling}
}

func (b BoostModeConfig) diffBand() Band {
	return Band{Start: b.StartTKFLHPFLDiff, Stop: b.StopTKFLHPFLDiff, Direction: Rising}
}

func (b BoostModeConfig) slotBand() Band {
	return Band{Start: b.StartSlotMinDiff, Stop: b.StopSlotMinDiff, Direction: Rising}
}

// HPCirculationConfig tunes the circulation scheduler. Heat percentages are
// fractions of the working range width (0 at min, 1 at max).
type HPCirculationConfig struct {
	PumpOnTime   time.Duration
	PumpOffTime  time.Duration
	InitialSleep time.Duration

	// PreCirculateTempRequired is the minimum HXOR reading before any circulation.
	PreCirculateTempRequired float64

	ForecastDiffOffset        float64
	ForecastDiffProportion    float64
	ForecastStartAbovePercent float64
	ForecastTKBTHXIADrop      float64

	Mixed MixedModeConfig
	Boost BoostModeConfig

	// SampleTankTime is how long boost runs before the TKFL-HPFL stop gate is consulted.
	SampleTankTime time.Duration
}

// OverrunSlot forces heating while Sensor reads below Min inside Slot, until
// it reaches Max or the slot ends.
type OverrunSlot struct {
	Slot   TimeSlot
	Sensor Sensor
	Min    float64
	Max    float64
}

// ImmersionPart targets Temp on Sensor during Slot. With EndTemp set the
// target moves linearly from Temp to EndTemp across the slot.
type ImmersionPart struct {
	Slot    TimeSlot
	Sensor  Sensor
	Temp    float64
	EndTemp *float64
}

// Config is the immutable engine configuration shared by every tick.
type Config struct {
	HPEnableTime        time.Duration
	DefaultWorkingRange WorkingRange
	WorkingTempModel    WorkingTempModel
	HPCirculation       HPCirculationConfig
	Immersion           []ImmersionPart
	Overrun             []OverrunSlot
	NoHeating           []TimeSlot

	// Location is used for local-zone slots. Nil means time.Local.
	Location *time.Location
}

// DefaultConfig mirrors the stock installation settings.
func DefaultConfig() Config {
	return Config{
		HPEnableTime:        70 * time.Second,
		DefaultWorkingRange: WorkingRange{Min: 42, Max: 45},
		WorkingTempModel: WorkingTempModel{
			Min: CurveParams{Sharpness: -0.3, TurningPoint: 5, Multiplier: 10, Offset: 38},
			Max: CurveParams{Sharpness: -0.3, TurningPoint: 5, Multiplier: 10, Offset: 41},
		},
		HPCirculation: HPCirculationConfig{
			PumpOnTime:                70 * time.Second,
			PumpOffTime:               30 * time.Second,
			InitialSleep:              5 * time.Minute,
			PreCirculateTempRequired:  35.0,
			ForecastDiffOffset:        5.0,
			ForecastDiffProportion:    0.33,
			ForecastStartAbovePercent: 0.10,
			ForecastTKBTHXIADrop:      3.0,
			Mixed:                     MixedModeConfig{StartHeatPct: 0.70, StopHeatPct: 0.30},
			Boost: BoostModeConfig{
				StartHeatPct:      0.10,
				StopHeatPct:       0.20,
				StartTKFLHPFLDiff: 5.0,
				StopTKFLHPFLDiff:  3.0,
				StartSlotMinDiff:  5.0,
				StopSlotMinDiff:   3.0,
			},
			SampleTankTime: 30 * time.Second,
		},
	}
}

// Validate rejects configurations the engine cannot run with. Curve crossover
// is not an error here; it is clamped per tick.
func (c Config) Validate() error {
	var errs []error
	add := func(field string, err error) {
		if err != nil {
			errs = append(errs, configErr(field, err))
		}
	}

	if c.HPEnableTime < 0 {
		add("hp_enable_time", ErrInvalidDuration)
	}
	r := c.DefaultWorkingRange
	if !finite(r.Min) || !finite(r.Max) || r.Min >= r.Max {
		add("default_working_range", ErrInvalidRange)
	}
	add("working_temp_model", c.WorkingTempModel.Validate())

	hp := c.HPCirculation
	if hp.PumpOnTime < 0 || hp.PumpOffTime < 0 || hp.InitialSleep < 0 || hp.SampleTankTime < 0 {
		add("hp_circulation", ErrInvalidDuration)
	}
	for _, f := range []struct {
		name string
		v    float64
	}{
		{"pre_circulate_temp_required", hp.PreCirculateTempRequired},
		{"forecast_diff_offset", hp.ForecastDiffOffset},
		{"forecast_diff_proportion", hp.ForecastDiffProportion},
		{"forecast_start_above_percent", hp.ForecastStartAbovePercent},
		{"forecast_tkbt_hxia_drop", hp.ForecastTKBTHXIADrop},
	} {
		if !finite(f.v) {
			add("hp_circulation."+f.name, ErrInvalidInput)
		}
	}
	add("hp_circulation.mixed_mode", hp.Mixed.band().Validate())
	add("hp_circulation.boost_mode.heat_pct", hp.Boost.heatBand().Validate())
	add("hp_circulation.boost_mode.tkfl_hpfl_diff", hp.Boost.diffBand().Validate())
	add("hp_circulation.boost_mode.slot_min_diff", hp.Boost.slotBand().Validate())

	for i, s := range c.Overrun {
		field := fmt.Sprintf("overrun_during.slots[%d]", i)
		add(field+".slot", s.Slot.Validate())
		if !s.Sensor.Valid() {
			add(field+".temps.sensor", ErrUnknownSensor)
		}
		if !finite(s.Min) || !finite(s.Max) || s.Min >= s.Max {
			add(field+".temps", ErrInvalidTemperature)
		}
	}
	for i, p := range c.Immersion {
		field := fmt.Sprintf("immersion_heater_model.parts[%d]", i)
		add(field, p.Slot.Validate())
		if !p.Sensor.Valid() {
			add(field+".sensor", ErrUnknownSensor)
		}
		if !finite(p.Temp) || (p.EndTemp != nil && !finite(*p.EndTemp)) {
			add(field+".temp", ErrInvalidTemperature)
		}
	}
	for i, s := range c.NoHeating {
		add(fmt.Sprintf("no_heating[%d]", i), s.Validate())
	}
	return errors.Join(errs...)
}
