package sensors

import (
	"context"
	"sync"
	"time"

	"github.com/Agrid-Dev/heatpumpctl/internal/heating"
)

const (
	heatPumpFlowTarget = 55.0
	heatPumpRiseRate   = 0.01  // 1/s, flow approach toward the target
	circuitFlowTarget  = 60.0  // house heating circuit while the hub calls for heat
	circuitRiseRate    = 0.005 // 1/s, circuit approach toward its target
	immersionRate      = 0.002 // °C/s added to the tank while the element is on
	maxSimulationStep  = 10 * time.Second
)

type SimulatorParams struct {
	Ambient         float64
	LossCoefficient float64 // >= 0, 1/s. 0 for no loss.
	HeatRate        float64 // >= 0, 1/s, tank approach toward the flow while circulating
	Initial         float64 // starting tank temperature
}

func (p SimulatorParams) Validate() error {
	if p.LossCoefficient < 0 {
		return ErrNegativeLossCoeff
	}
	if p.HeatRate < 0 {
		return ErrNegativeHeatRate
	}
	return nil
}

// Simulator is a three-node model: the tank, the heat pump loop and the house
// heating circuit feeding the exchanger. The circuit warms while the house
// calls for heat, independently of the heat pump. The model advances on every
// Read by the time elapsed since the previous one, using the last command it
// observed.
type Simulator struct {
	mu     sync.Mutex
	params SimulatorParams
	now    func() time.Time

	tank      float64
	flow      float64
	circuit   float64
	last      time.Time
	cmd       heating.Command
	heatingOn bool
}

func NewSimulator(params SimulatorParams, now func() time.Time) (*Simulator, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	if now == nil {
		now = time.Now
	}
	return &Simulator{
		params:  params,
		now:     now,
		tank:    params.Initial,
		flow:    params.Ambient,
		circuit: params.Ambient,
	}, nil
}

// DeltaLoss is the temperature change of a body at temp over dt.
func (s *Simulator) DeltaLoss(temp float64, dt time.Duration) float64 {
	return s.params.LossCoefficient * (s.params.Ambient - temp) * dt.Seconds()
}

// Observe records the command and the house heating call driving the model
// from now on.
func (s *Simulator) Observe(cmd heating.Command, heatingOn bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cmd = cmd
	s.heatingOn = heatingOn
}

// Advance moves the model forward by dt.
func (s *Simulator) Advance(dt time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.advance(dt)
}

func (s *Simulator) advance(dt time.Duration) {
	for dt > 0 {
		step := min(dt, maxSimulationStep)
		dt -= step
		sec := step.Seconds()

		if s.heatingOn {
			s.circuit += (circuitFlowTarget - s.circuit) * min(1, circuitRiseRate*sec)
		} else {
			s.circuit += s.DeltaLoss(s.circuit, step) * 10
		}

		if s.cmd.HeatPump.On {
			s.flow += (heatPumpFlowTarget - s.flow) * min(1, heatPumpRiseRate*sec)
		} else {
			s.flow += s.DeltaLoss(s.flow, step) * 10
		}

		s.tank += s.DeltaLoss(s.tank, step)
		if s.cmd.CirculationPump.On && s.flow > s.tank {
			s.tank += (s.flow - s.tank) * min(1, s.params.HeatRate*sec)
		}
		if s.cmd.Immersion.On {
			s.tank += immersionRate * sec
		}
	}
}

func (s *Simulator) Read(context.Context) (map[heating.Sensor]heating.Reading, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if !s.last.IsZero() && now.After(s.last) {
		s.advance(now.Sub(s.last))
	}
	s.last = now

	values := map[heating.Sensor]float64{
		heating.SensorTKTP: s.tank,
		heating.SensorTKEN: s.tank - 1,
		heating.SensorTKEX: s.tank - 2,
		heating.SensorTKBT: s.tank - 4,
		heating.SensorHPFL: s.flow,
		heating.SensorHPRT: s.flow - 5,
		heating.SensorTKFL: s.tank - 1,
		heating.SensorTKRT: s.tank - 6,
		heating.SensorHXIF: s.circuit,
		heating.SensorHXIR: s.circuit - 2,
		heating.SensorHXOF: s.circuit - 3,
		heating.SensorHXOR: s.circuit - 4,
	}
	out := make(map[heating.Sensor]heating.Reading, len(values))
	for sensor, v := range values {
		out[sensor] = heating.Reading{Value: v, At: now}
	}
	return out, nil
}

// Tank returns the current top-of-tank temperature.
func (s *Simulator) Tank() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tank
}

// Circuit returns the current house heating circuit temperature.
func (s *Simulator) Circuit() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.circuit
}
