package testutil

import (
	"sync"
	"time"

	"github.com/Agrid-Dev/heatpumpctl/internal/heating"
	"github.com/Agrid-Dev/heatpumpctl/internal/service"
)

// FakeControlService is a reusable fake implementing ports.ControlService.
// Put ONLY what multiple test packages need here.
type FakeControlService struct {
	mu sync.Mutex
	S  service.Snapshot

	SetEnabledCalled bool
	SetEnabledArg    bool
}

func NewFakeControlService() *FakeControlService {
	at := time.Date(2024, 1, 15, 1, 0, 0, 0, time.UTC)
	return &FakeControlService{
		S: service.Snapshot{
			DeviceID:      "dev-1",
			RunID:         "run-1",
			Enabled:       true,
			Ticks:         3,
			At:            at,
			State:         heating.StateCirculateMixed,
			Submode:       heating.SubmodeMixed,
			Phase:         heating.PhasePumpOn,
			HeatPumpReady: true,
			HeatDemand:    true,
			WorkingRange:  service.WorkingRange{Min: 42, Max: 45},
			HeatPct:       0.9,
			TankPct:       0.25,
			Channels: map[heating.Channel]bool{
				heating.ChannelHeatPump:        true,
				heating.ChannelCirculationPump: true,
				heating.ChannelBoost:           false,
				heating.ChannelOverrun:         false,
				heating.ChannelImmersion:       false,
			},
			Readings: map[heating.Sensor]float64{
				heating.SensorTKTP: 47.25,
				heating.SensorHXOR: 43,
			},
		},
	}
}

func (f *FakeControlService) Get() service.Snapshot {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.S
}

func (f *FakeControlService) SetEnabled(b bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.SetEnabledCalled = true
	f.SetEnabledArg = b
	f.S.Enabled = b
}

// Update mutates the snapshot under the fake's lock.
func (f *FakeControlService) Update(fn func(*service.Snapshot)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	fn(&f.S)
}

func (f *FakeControlService) Enabled() (called, arg bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.SetEnabledCalled, f.SetEnabledArg
}
