package mqttctrl

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/Agrid-Dev/heatpumpctl/internal/heating"
	"github.com/Agrid-Dev/heatpumpctl/internal/ports"
	"github.com/Agrid-Dev/heatpumpctl/internal/service"
)

type Config struct {
	// Identity
	DeviceID string

	// MQTT connection
	BrokerURL string
	ClientID  string

	// Topics
	BaseTopic string

	// Behavior
	QoS             byte
	RetainSnapshot  bool
	PublishInterval time.Duration

	Username string
	Password string

	Logger *slog.Logger
}

type Controller struct {
	svc ports.ControlService
	cfg Config
	log *slog.Logger

	client mqtt.Client

	last      service.Snapshot
	published bool
}

func New(svc ports.ControlService, cfg Config) (*Controller, error) {
	// ---- defaults ----

	if cfg.BrokerURL == "" {
		cfg.BrokerURL = "tcp://localhost:1883"
	}

	if cfg.DeviceID == "" {
		return nil, errors.New("mqtt: DeviceID is required")
	}
	if cfg.BaseTopic == "" {
		cfg.BaseTopic = "heatpumpctl/" + cfg.DeviceID
	}
	if cfg.ClientID == "" {
		cfg.ClientID = "heatpumpctl-" + cfg.DeviceID
	}
	if cfg.PublishInterval <= 0 {
		cfg.PublishInterval = 1 * time.Second
	}
	if cfg.QoS > 1 {
		return nil, errors.New("mqtt: QoS must be 0 or 1")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Controller{
		svc: svc,
		cfg: cfg,
		log: cfg.Logger.With("controller", "mqtt"),
	}, nil
}

func (c *Controller) Run(ctx context.Context) error {
	opts := mqtt.NewClientOptions().
		AddBroker(c.cfg.BrokerURL).
		SetClientID(c.cfg.ClientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(2 * time.Second)

	if c.cfg.Username != "" {
		opts.SetUsername(c.cfg.Username)
		opts.SetPassword(c.cfg.Password)
	}

	// Subscribe when connected/reconnected.
	opts.OnConnect = func(cl mqtt.Client) {
		topic := c.topic("set/+")
		token := cl.Subscribe(topic, c.cfg.QoS, c.onMessage)
		token.Wait()
		if err := token.Error(); err != nil {
			c.log.Error("subscribe failed", "topic", topic, "err", err)
		}
	}

	c.client = mqtt.NewClient(opts)
	tok := c.client.Connect()
	tok.Wait()
	if err := tok.Error(); err != nil {
		return fmt.Errorf("mqtt connect: %w", err)
	}

	// Publish loop: publish snapshot on interval, and only when changed.
	ticker := time.NewTicker(c.cfg.PublishInterval)
	defer ticker.Stop()

	c.publishIfChanged()

	for {
		select {
		case <-ctx.Done():
			c.client.Disconnect(250)
			return ctx.Err()

		case <-ticker.C:
			c.publishIfChanged()
		}
	}
}

// withoutClock strips the fields that move on every tick without a change in
// decisions.
func withoutClock(s service.Snapshot) service.Snapshot {
	s.At = time.Time{}
	s.Ticks = 0
	return s
}

// publishIfChanged publishes when the decision-relevant part of the snapshot
// differs from the last one sent.
func (c *Controller) publishIfChanged() bool {
	cur := c.svc.Get()
	if c.published && reflect.DeepEqual(withoutClock(cur), withoutClock(c.last)) {
		return false
	}
	c.publish(cur)
	c.last = cur
	c.published = true
	return true
}

func (c *Controller) publish(s service.Snapshot) {
	dto := snapshotDTO{
		DeviceID:      c.cfg.DeviceID,
		Enabled:       s.Enabled,
		At:            s.At,
		State:         s.State.String(),
		Submode:       s.Submode.String(),
		Phase:         s.Phase.String(),
		HeatPumpReady: s.HeatPumpReady,
		HeatDemand:    s.HeatDemand,
		WorkingRange:  [2]float64{s.WorkingRange.Min, s.WorkingRange.Max},
		HeatPct:       s.HeatPct,
		TankPct:       s.TankPct,
		Channels:      make(map[string]bool, len(s.Channels)),
		Readings:      make(map[string]float64, len(s.Readings)),
		Warnings:      s.Warnings,
	}
	for ch, on := range s.Channels {
		dto.Channels[ch.String()] = on
	}
	for sensor, v := range s.Readings {
		dto.Readings[sensor.String()] = v
	}
	b, _ := json.Marshal(dto)
	c.client.Publish(c.topic("snapshot"), c.cfg.QoS, c.cfg.RetainSnapshot, b)
	c.client.Publish(c.topic("state"), c.cfg.QoS, c.cfg.RetainSnapshot, s.State.String())

	for _, ch := range heating.Channels {
		v := "off"
		if s.Channels[ch] {
			v = "on"
		}
		c.client.Publish(c.topic("channels/"+ch.String()), c.cfg.QoS, c.cfg.RetainSnapshot, v)
	}
}

type snapshotDTO struct {
	DeviceID      string             `json:"device_id"`
	Enabled       bool               `json:"enabled"`
	At            time.Time          `json:"at"`
	State         string             `json:"state"`
	Submode       string             `json:"submode"`
	Phase         string             `json:"phase"`
	HeatPumpReady bool               `json:"heat_pump_ready"`
	HeatDemand    bool               `json:"heat_demand"`
	WorkingRange  [2]float64         `json:"working_range"`
	HeatPct       float64            `json:"heat_pct"`
	TankPct       float64            `json:"tank_pct"`
	Channels      map[string]bool    `json:"channels"`
	Readings      map[string]float64 `json:"readings"`
	Warnings      []string           `json:"warnings,omitempty"`
}

// Command payload format: {"value": ...}
type valueReq[T any] struct {
	Value *T `json:"value"`
}

func (c *Controller) onMessage(_ mqtt.Client, msg mqtt.Message) {
	// topic format: <base>/set/<field>
	t := msg.Topic()
	prefix := c.cfg.BaseTopic + "/set/"
	if !strings.HasPrefix(t, prefix) {
		return
	}
	field := strings.TrimPrefix(t, prefix)

	payload := msg.Payload()

	switch field {
	case "enabled":
		v, err := decodeValueStrict[bool](payload)
		if err != nil {
			c.log.Warn("invalid command payload", "field", field, "err", err)
			return
		}
		c.svc.SetEnabled(v)
	default:
		c.log.Debug("unknown command", "field", field)
	}
}

func (c *Controller) topic(suffix string) string {
	return strings.TrimRight(c.cfg.BaseTopic, "/") + "/" + suffix
}

func decodeValueStrict[T any](b []byte) (T, error) {
	var zero T
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.DisallowUnknownFields()
	var req valueReq[T]
	if err := dec.Decode(&req); err != nil {
		return zero, err
	}
	if req.Value == nil {
		return zero, errors.New("missing field 'value'")
	}
	return *req.Value, nil
}
