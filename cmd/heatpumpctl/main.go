package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/Agrid-Dev/heatpumpctl/cmd/app"
	httpctrl "github.com/Agrid-Dev/heatpumpctl/internal/controllers/http"
	modbusctrl "github.com/Agrid-Dev/heatpumpctl/internal/controllers/modbus"
	mqttctrl "github.com/Agrid-Dev/heatpumpctl/internal/controllers/mqtt"
	"github.com/Agrid-Dev/heatpumpctl/internal/device"
	"github.com/Agrid-Dev/heatpumpctl/internal/heating"
	"github.com/Agrid-Dev/heatpumpctl/internal/hub"
	"github.com/Agrid-Dev/heatpumpctl/internal/metrics"
	"github.com/Agrid-Dev/heatpumpctl/internal/sensors"
	"github.com/Agrid-Dev/heatpumpctl/internal/service"
)

func main() {
	var configPath string
	var printConfig bool
	flag.StringVar(&configPath, "config", "config.yaml", "path to config file (.yaml/.yml/.json)")
	flag.BoolVar(&printConfig, "print-config", false, "print the effective config as YAML and exit")
	flag.Parse()

	cfg, k, err := app.LoadConfig(configPath)
	if err != nil {
		fatal(slog.Default(), "load config", err)
	}
	if printConfig {
		out, err := app.DumpYAML(k)
		if err != nil {
			fatal(slog.Default(), "dump config", err)
		}
		os.Stdout.Write(out)
		return
	}

	logger := newLogger(cfg.Log)
	slog.SetDefault(logger)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, cfg, configPath, logger); err != nil && !errors.Is(err, context.Canceled) {
		fatal(logger, "exited", err)
	}
}

func fatal(logger *slog.Logger, msg string, err error) {
	logger.Error(msg, "err", err)
	os.Exit(1)
}

func newLogger(c app.LogConfig) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.Level)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(c.Format, "json") {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}

func run(ctx context.Context, cfg app.Config, configPath string, logger *slog.Logger) error {
	hc, err := cfg.Heating()
	if err != nil {
		return err
	}
	machine, err := heating.NewMachine(hc)
	if err != nil {
		return err
	}

	var db *sql.DB
	openDB := func() (*sql.DB, error) {
		if db != nil {
			return db, nil
		}
		d, err := sensors.OpenDB(sensors.DBConfig(cfg.Database))
		if err != nil {
			return nil, err
		}
		db = d
		return db, nil
	}
	defer func() {
		if db != nil {
			_ = db.Close()
		}
	}()

	src, err := newSensors(cfg.Sensors, openDB, logger.With("component", "sensors"))
	if err != nil {
		return err
	}
	hs, err := newHub(cfg.Hub, openDB)
	if err != nil {
		return err
	}

	driver, err := device.NewDriver(cfg.Relays.Driver, cfg.Relays.Chip)
	if err != nil {
		return err
	}
	board, err := device.NewBoard(cfg.DeviceID, driver, cfg.Relays.Pins, cfg.Relays.ActiveLow)
	if err != nil {
		_ = driver.Close(cfg.Relays.ActiveLow)
		return err
	}
	defer func() {
		if err := board.Close(); err != nil {
			logger.Error("close relays", "err", err)
		}
	}()

	reg := prometheus.NewRegistry()
	collector, err := metrics.New(reg)
	if err != nil {
		return err
	}

	svc, err := service.New(cfg.DeviceID, machine, service.Deps{
		Sensors: src,
		Hub:     hs,
		Relays:  board,
		Metrics: collector,
		Logger:  logger.With("component", "service"),
	})
	if err != nil {
		return err
	}

	go reloadOnHangup(ctx, svc, configPath, logger)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	errs := make(chan error, 4)
	start := func(name string, fn func(context.Context) error) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := fn(ctx)
			if err != nil && !errors.Is(err, context.Canceled) {
				errs <- fmt.Errorf("%s: %w", name, err)
				cancel()
			}
		}()
	}

	start("service", func(ctx context.Context) error { return svc.Run(ctx, cfg.Interval) })

	if c := cfg.Controllers.HTTP; c.Enabled {
		srv := httpctrl.New(svc, c.Addr, cfg.DeviceID, metrics.Handler(reg))
		logger.Info("http listening", "addr", c.Addr)
		start("http", srv.Run)
	}
	if c := cfg.Controllers.MQTT; c.Enabled {
		ctrl, err := mqttctrl.New(svc, mqttctrl.Config{
			DeviceID:        cfg.DeviceID,
			BrokerURL:       c.BrokerURL,
			ClientID:        c.ClientID,
			BaseTopic:       c.BaseTopic,
			QoS:             c.QoS,
			RetainSnapshot:  c.RetainSnapshot,
			PublishInterval: c.PublishInterval,
			Username:        c.Username,
			Password:        c.Password,
			Logger:          logger.With("component", "mqtt"),
		})
		if err != nil {
			return err
		}
		start("mqtt", ctrl.Run)
	}
	if c := cfg.Controllers.MODBUS; c.Enabled {
		ctrl, err := modbusctrl.New(svc, modbusctrl.Config{
			DeviceID: cfg.DeviceID,
			Addr:     c.Addr,
			UnitID:   c.UnitID,
		})
		if err != nil {
			return err
		}
		logger.Info("modbus listening", "addr", c.Addr, "unit_id", c.UnitID)
		start("modbus", ctrl.Run)
	}

	wg.Wait()
	close(errs)
	return errors.Join(collect(errs)...)
}

func collect(errs <-chan error) []error {
	var out []error
	for err := range errs {
		out = append(out, err)
	}
	return out
}

func newSensors(c app.SensorsConfig, openDB func() (*sql.DB, error), logger *slog.Logger) (sensors.Source, error) {
	switch c.Backend {
	case "mysql":
		db, err := openDB()
		if err != nil {
			return nil, err
		}
		return sensors.NewMySQL(db, c.MaxAge, logger)
	case "simulator", "":
		return sensors.NewSimulator(sensors.SimulatorParams(c.Simulator), nil)
	}
	return nil, fmt.Errorf("unknown sensors backend %q", c.Backend)
}

func newHub(c app.HubConfig, openDB func() (*sql.DB, error)) (hub.Source, error) {
	switch c.Backend {
	case "http":
		return hub.NewHTTP(hub.HTTPConfig{URL: c.URL, Secret: c.Secret, Timeout: c.Timeout})
	case "mysql":
		db, err := openDB()
		if err != nil {
			return nil, err
		}
		return hub.NewMySQL(db, c.HeatingStateSensorID), nil
	case "static", "":
		return hub.NewStatic(hub.State{HeatingOn: c.HeatingOn}), nil
	}
	return nil, fmt.Errorf("unknown hub backend %q", c.Backend)
}

// reloadOnHangup re-reads the config file on SIGHUP and swaps the engine
// config between ticks. Transport and device settings need a restart.
func reloadOnHangup(ctx context.Context, svc *service.Service, path string, logger *slog.Logger) {
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)

	for {
		select {
		case <-ctx.Done():
			return
		case <-hup:
			start := time.Now()
			cfg, _, err := app.LoadConfig(path)
			if err == nil {
				var hc heating.Config
				if hc, err = cfg.Heating(); err == nil {
					err = svc.Reload(hc)
				}
			}
			if err != nil {
				logger.Error("reload failed, keeping current config", "err", err)
				continue
			}
			logger.Info("config reloaded", "path", path, "took", time.Since(start))
		}
	}
}
