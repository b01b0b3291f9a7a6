package main

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/Agrid-Dev/heatpumpctl/internal/device"
	"github.com/Agrid-Dev/heatpumpctl/internal/heating"
	"github.com/Agrid-Dev/heatpumpctl/internal/hub"
	"github.com/Agrid-Dev/heatpumpctl/internal/sensors"
	"github.com/Agrid-Dev/heatpumpctl/internal/service"
)

// HubChange sets the hub state from At (offset from midnight) on.
type HubChange struct {
	At        time.Duration
	HeatingOn bool
	Forecast  float64
}

func pins() map[string]int {
	p := make(map[string]int, len(heating.Channels))
	for i, ch := range heating.Channels {
		p[ch.String()] = i + 1
	}
	return p
}

// SimulateDay runs the control service against the tank simulator for one day
// starting at midnight UTC and writes one CSV row per tick.
func SimulateDay(interval time.Duration, filename string, changes []HubChange) error {
	day := time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)
	now := day
	clock := func() time.Time { return now }

	sim, err := sensors.NewSimulator(sensors.SimulatorParams{
		Ambient:         12,
		LossCoefficient: 1e-5,
		HeatRate:        2e-3,
		Initial:         38,
	}, clock)
	if err != nil {
		return fmt.Errorf("failed to create simulator: %v", err)
	}

	hs := hub.NewStatic(hub.State{})
	board, err := device.NewBoard("sim", device.NewFake(), pins(), false)
	if err != nil {
		return fmt.Errorf("failed to create board: %v", err)
	}
	defer board.Close()

	cfg := heating.DefaultConfig()
	cfg.Location = time.UTC
	machine, err := heating.NewMachine(cfg)
	if err != nil {
		return fmt.Errorf("failed to create machine: %v", err)
	}
	svc, err := service.New("sim", machine, service.Deps{Sensors: sim, Hub: hs, Relays: board, Now: clock})
	if err != nil {
		return fmt.Errorf("failed to create service: %v", err)
	}

	file, err := os.Create(filename)
	if err != nil {
		return fmt.Errorf("failed to create CSV file: %v", err)
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	header := []string{"Time", "HeatingOn", "State", "Submode", "Phase", "RangeMin", "RangeMax", "HeatPct", "TankPct", "TKTP", "HXOR"}
	for _, ch := range heating.Channels {
		header = append(header, ch.String())
	}
	if err := writer.Write(header); err != nil {
		return fmt.Errorf("failed to write CSV header: %v", err)
	}

	ctx := context.Background()
	for now.Before(day.Add(24 * time.Hour)) {
		for _, c := range changes {
			if now.Equal(day.Add(c.At)) {
				v := c.Forecast
				hs.Set(hub.State{HeatingOn: c.HeatingOn, Forecast: &v})
			}
		}

		// Source errors hold the outputs and are visible in the snapshot.
		_ = svc.Tick(ctx)
		s := svc.Get()

		row := []string{
			now.Format(time.TimeOnly),
			strconv.FormatBool(s.HeatDemand),
			s.State.String(),
			s.Submode.String(),
			s.Phase.String(),
			fmt.Sprintf("%.2f", s.WorkingRange.Min),
			fmt.Sprintf("%.2f", s.WorkingRange.Max),
			fmt.Sprintf("%.2f", s.HeatPct),
			fmt.Sprintf("%.2f", s.TankPct),
			fmt.Sprintf("%.2f", s.Readings[heating.SensorTKTP]),
			fmt.Sprintf("%.2f", s.Readings[heating.SensorHXOR]),
		}
		for _, ch := range heating.Channels {
			row = append(row, strconv.FormatBool(s.Channels[ch]))
		}
		if err := writer.Write(row); err != nil {
			return fmt.Errorf("failed to write CSV record: %v", err)
		}

		now = now.Add(interval)
	}

	return nil
}

func main() {
	changes := []HubChange{
		{At: 0, HeatingOn: false, Forecast: 4},
		{At: 6 * time.Hour, HeatingOn: true, Forecast: 4},
		{At: 12 * time.Hour, HeatingOn: true, Forecast: 11},
		{At: 22 * time.Hour, HeatingOn: false, Forecast: 8},
	}
	if err := SimulateDay(10*time.Second, "heatpumpctl.csv", changes); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
