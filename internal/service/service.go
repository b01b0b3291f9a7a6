// Package service runs the heating engine against live inputs and relays.
package service

import (
	"context"
	"errors"
	"log/slog"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Agrid-Dev/heatpumpctl/internal/heating"
	"github.com/Agrid-Dev/heatpumpctl/internal/hub"
	"github.com/Agrid-Dev/heatpumpctl/internal/metrics"
	"github.com/Agrid-Dev/heatpumpctl/internal/sensors"
)

var ErrNotConfigured = errors.New("service dependency missing")

// Relays drives the physical outputs.
type Relays interface {
	Apply(cmd heating.Command) ([]heating.Channel, error)
	AllOff() error
}

// Recorder receives per-tick observations.
type Recorder interface {
	ObserveTick(result string, took time.Duration)
	ObserveDecision(d heating.Decision, readings map[heating.Sensor]heating.Reading)
	ObserveCommand(cmd heating.Command)
	SetEnabled(on bool)
}

// commandObserver is implemented by sources that react to the outputs and
// to the house heating call, such as the tank simulator.
type commandObserver interface {
	Observe(cmd heating.Command, heatingOn bool)
}

type Deps struct {
	Sensors sensors.Source
	Hub     hub.Source
	Relays  Relays
	Metrics Recorder
	Logger  *slog.Logger
	Now     func() time.Time
}

type WorkingRange struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

// Snapshot is the externally visible state after the last tick.
type Snapshot struct {
	DeviceID        string                     `json:"device_id"`
	RunID           string                     `json:"run_id"`
	Enabled         bool                       `json:"enabled"`
	Ticks           uint64                     `json:"ticks"`
	At              time.Time                  `json:"at"`
	State           heating.HeatingState       `json:"state"`
	Submode         heating.Submode            `json:"submode"`
	Phase           heating.Phase              `json:"phase"`
	Overrun         bool                       `json:"overrun"`
	Immersion       bool                       `json:"immersion"`
	HeatPumpReady   bool                       `json:"heat_pump_ready"`
	HeatDemand      bool                       `json:"heat_demand"`
	Forecast        *float64                   `json:"forecast,omitempty"`
	WorkingRange    WorkingRange               `json:"working_range"`
	HeatPct         float64                    `json:"heat_pct"`
	TankPct         float64                    `json:"tank_pct"`
	ImmersionTarget float64                    `json:"immersion_target,omitempty"`
	Channels        map[heating.Channel]bool   `json:"channels"`
	Readings        map[heating.Sensor]float64 `json:"readings"`
	Warnings        []string                   `json:"warnings,omitempty"`
	LastError       string                     `json:"last_error,omitempty"`
}

func (s Snapshot) clone() Snapshot {
	s.Channels = maps.Clone(s.Channels)
	s.Readings = maps.Clone(s.Readings)
	s.Warnings = slices.Clone(s.Warnings)
	if s.Forecast != nil {
		f := *s.Forecast
		s.Forecast = &f
	}
	return s
}

type Service struct {
	mu   sync.RWMutex
	snap Snapshot

	// step serializes ticks, reloads and kill-switch changes.
	step    sync.Mutex
	machine *heating.Machine
	enabled bool

	deps Deps
	log  *slog.Logger
}

func New(deviceID string, machine *heating.Machine, deps Deps) (*Service, error) {
	if machine == nil || deps.Sensors == nil || deps.Hub == nil || deps.Relays == nil {
		return nil, ErrNotConfigured
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	runID := uuid.NewString()
	s := &Service{
		machine: machine,
		enabled: true,
		deps:    deps,
		log:     deps.Logger.With("device_id", deviceID, "run_id", runID),
		snap: Snapshot{
			DeviceID: deviceID,
			RunID:    runID,
			Enabled:  true,
			State:    heating.StateOff,
			Channels: map[heating.Channel]bool{},
			Readings: map[heating.Sensor]float64{},
		},
	}
	if deps.Metrics != nil {
		deps.Metrics.SetEnabled(true)
	}
	return s, nil
}

func (s *Service) Get() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snap.clone()
}

// SetEnabled is the operator kill switch. Disabling switches every relay off
// at once and keeps them off while the engine keeps deciding.
func (s *Service) SetEnabled(on bool) {
	s.step.Lock()
	defer s.step.Unlock()

	if s.enabled == on {
		return
	}
	s.enabled = on
	s.log.Info("kill switch changed", "enabled", on)

	if !on {
		if err := s.deps.Relays.AllOff(); err != nil {
			s.log.Error("switching relays off", "err", err)
		}
		if s.deps.Metrics != nil {
			s.deps.Metrics.ObserveCommand(heating.Command{})
		}
	}
	if s.deps.Metrics != nil {
		s.deps.Metrics.SetEnabled(on)
	}

	s.mu.Lock()
	s.snap.Enabled = on
	if !on {
		for ch := range s.snap.Channels {
			s.snap.Channels[ch] = false
		}
	}
	s.mu.Unlock()
}

// Reload replaces the engine configuration between ticks.
func (s *Service) Reload(cfg heating.Config) error {
	s.step.Lock()
	defer s.step.Unlock()
	if err := s.machine.Reload(cfg); err != nil {
		return err
	}
	s.log.Info("configuration reloaded")
	return nil
}

// Run ticks once immediately and then every interval until ctx is done.
func (s *Service) Run(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	_ = s.Tick(ctx)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			_ = s.Tick(ctx)
		}
	}
}

// Tick reads inputs, runs the engine and drives the relays. When sensors,
// hub or engine fail the relays keep their previous outputs.
func (s *Service) Tick(ctx context.Context) error {
	s.step.Lock()
	defer s.step.Unlock()

	start := s.deps.Now()

	readings, err := s.deps.Sensors.Read(ctx)
	if err != nil {
		return s.fail(metrics.ResultSensorError, "reading sensors", err, start)
	}
	hs, err := s.deps.Hub.State(ctx)
	if err != nil {
		return s.fail(metrics.ResultHubError, "reading hub", err, start)
	}

	d, err := s.machine.Step(heating.Inputs{
		Now:        start,
		Readings:   readings,
		HeatDemand: hs.HeatingOn,
		Forecast:   hs.Forecast,
	})
	if err != nil {
		return s.fail(metrics.ResultEngineError, "engine step", err, start)
	}
	for _, w := range d.Warnings {
		s.log.Warn(w)
	}

	cmd := d.Command
	if !s.enabled {
		cmd = heating.Command{}
	}
	changed, relayErr := s.deps.Relays.Apply(cmd)
	for _, ch := range changed {
		s.log.Info("relay switched", "channel", ch, "on", cmd.Get(ch).On, "state", d.State)
	}
	if obs, ok := s.deps.Sensors.(commandObserver); ok {
		obs.Observe(cmd, hs.HeatingOn)
	}

	result := metrics.ResultOK
	if relayErr != nil {
		result = metrics.ResultRelayError
		s.log.Error("driving relays", "err", relayErr)
	}
	if s.deps.Metrics != nil {
		s.deps.Metrics.ObserveDecision(d, readings)
		s.deps.Metrics.ObserveCommand(cmd)
		s.deps.Metrics.ObserveTick(result, s.deps.Now().Sub(start))
	}

	s.store(d, cmd, hs, readings, relayErr)
	s.log.Debug("tick",
		"state", d.State, "submode", d.Submode, "phase", d.Phase,
		"heat_pct", d.HeatPct, "tank_pct", d.TankPct,
	)
	return relayErr
}

func (s *Service) fail(result, what string, err error, start time.Time) error {
	s.log.Error(what, "err", err)
	if s.deps.Metrics != nil {
		s.deps.Metrics.ObserveTick(result, s.deps.Now().Sub(start))
	}
	s.mu.Lock()
	s.snap.LastError = what + ": " + err.Error()
	s.mu.Unlock()
	return err
}

func (s *Service) store(d heating.Decision, cmd heating.Command, hs hub.State, readings map[heating.Sensor]heating.Reading, relayErr error) {
	channels := make(map[heating.Channel]bool, len(heating.Channels))
	for _, ch := range heating.Channels {
		channels[ch] = cmd.Get(ch).On
	}
	values := make(map[heating.Sensor]float64, len(readings))
	for sensor, r := range readings {
		values[sensor] = r.Value
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.snap = Snapshot{
		DeviceID:        s.snap.DeviceID,
		RunID:           s.snap.RunID,
		Enabled:         s.enabled,
		Ticks:           s.snap.Ticks + 1,
		At:              d.At,
		State:           d.State,
		Submode:         d.Submode,
		Phase:           d.Phase,
		Overrun:         d.Overrun,
		Immersion:       d.Immersion,
		HeatPumpReady:   d.HeatPumpReady,
		HeatDemand:      hs.HeatingOn,
		Forecast:        hs.Forecast,
		WorkingRange:    WorkingRange{Min: d.WorkingRange.Min, Max: d.WorkingRange.Max},
		HeatPct:         d.HeatPct,
		TankPct:         d.TankPct,
		ImmersionTarget: d.ImmersionTarget,
		Channels:        channels,
		Readings:        values,
		Warnings:        slices.Clone(d.Warnings),
	}
	if relayErr != nil {
		s.snap.LastError = "driving relays: " + relayErr.Error()
	}
}
