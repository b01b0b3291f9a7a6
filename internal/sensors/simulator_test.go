package sensors

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Agrid-Dev/heatpumpctl/internal/heating"
)

func TestSimulatorParamsValidate(t *testing.T) {
	tests := []struct {
		name   string
		params SimulatorParams
		want   error
	}{
		{"valid", SimulatorParams{Ambient: 10, LossCoefficient: 1e-4, HeatRate: 1e-3}, nil},
		{"no loss", SimulatorParams{Ambient: 10}, nil},
		{"negative loss", SimulatorParams{LossCoefficient: -1}, ErrNegativeLossCoeff},
		{"negative heat rate", SimulatorParams{HeatRate: -1}, ErrNegativeHeatRate},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.params.Validate(); got != tt.want {
				t.Errorf("Got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestSimulatorDeltaLoss(t *testing.T) {
	sim, err := NewSimulator(SimulatorParams{Ambient: 10, LossCoefficient: 0.01}, nil)
	require.NoError(t, err)

	assert.Less(t, sim.DeltaLoss(50, time.Second), 0.0)
	assert.Greater(t, sim.DeltaLoss(5, time.Second), 0.0)
	assert.InDelta(t, -0.4, sim.DeltaLoss(50, time.Second), 1e-9)
	assert.Zero(t, sim.DeltaLoss(10, time.Hour))
}

func newSim(t *testing.T) *Simulator {
	t.Helper()
	sim, err := NewSimulator(SimulatorParams{
		Ambient:         15,
		LossCoefficient: 1e-5,
		HeatRate:        2e-3,
		Initial:         40,
	}, nil)
	require.NoError(t, err)
	return sim
}

func TestSimulatorIdleTankCools(t *testing.T) {
	sim := newSim(t)
	sim.Advance(time.Hour)
	assert.Less(t, sim.Tank(), 40.0)
	assert.Greater(t, sim.Tank(), 15.0)
}

func TestSimulatorHeatPumpHeatsTank(t *testing.T) {
	sim := newSim(t)
	on := heating.Intent{On: true}
	sim.Observe(heating.Command{HeatPump: on, CirculationPump: on}, false)
	sim.Advance(time.Hour)
	assert.Greater(t, sim.Tank(), 45.0)
	assert.Less(t, sim.Tank(), heatPumpFlowTarget)
}

func TestSimulatorHeatPumpWithoutCirculation(t *testing.T) {
	sim := newSim(t)
	sim.Observe(heating.Command{HeatPump: heating.Intent{On: true}}, false)
	sim.Advance(time.Hour)
	assert.Less(t, sim.Tank(), 40.0)
}

func TestSimulatorImmersion(t *testing.T) {
	sim := newSim(t)
	sim.Observe(heating.Command{Immersion: heating.Intent{On: true}}, false)
	sim.Advance(30 * time.Minute)
	assert.InDelta(t, 40+immersionRate*1800, sim.Tank(), 1)
}

func TestSimulatorHeatingCallWarmsExchanger(t *testing.T) {
	now := time.Date(2024, 1, 15, 6, 0, 0, 0, time.UTC)
	sim, err := NewSimulator(SimulatorParams{Ambient: 12, LossCoefficient: 1e-5, Initial: 38}, func() time.Time { return now })
	require.NoError(t, err)

	cold, err := sim.Read(context.Background())
	require.NoError(t, err)
	assert.Less(t, cold[heating.SensorHXOR].Value, heating.DefaultConfig().HPCirculation.PreCirculateTempRequired)

	// The heat pump stays off; only the house calls for heat.
	sim.Observe(heating.Command{}, true)
	now = now.Add(15 * time.Minute)
	warm, err := sim.Read(context.Background())
	require.NoError(t, err)
	assert.GreaterOrEqual(t, warm[heating.SensorHXOR].Value, heating.DefaultConfig().HPCirculation.PreCirculateTempRequired)
	assert.Greater(t, sim.Circuit(), 50.0)

	sim.Observe(heating.Command{}, false)
	sim.Advance(3 * time.Hour)
	assert.Less(t, sim.Circuit(), warm[heating.SensorHXIF].Value)
}

func TestSimulatorReadAdvancesWithClock(t *testing.T) {
	now := time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)
	sim, err := NewSimulator(SimulatorParams{Ambient: 15, LossCoefficient: 1e-4, Initial: 40}, func() time.Time { return now })
	require.NoError(t, err)

	first, err := sim.Read(context.Background())
	require.NoError(t, err)
	assert.Len(t, first, len(heating.Sensors()))
	assert.InDelta(t, 40.0, first[heating.SensorTKTP].Value, 1e-9)
	assert.Equal(t, now, first[heating.SensorTKTP].At)

	now = now.Add(time.Hour)
	second, err := sim.Read(context.Background())
	require.NoError(t, err)
	assert.Less(t, second[heating.SensorTKTP].Value, 40.0)
	assert.Equal(t, now, second[heating.SensorHXOR].At)

	// Clock going backwards does not move the model.
	now = now.Add(-time.Minute)
	third, err := sim.Read(context.Background())
	require.NoError(t, err)
	assert.Equal(t, second[heating.SensorTKTP].Value, third[heating.SensorTKTP].Value)
}
