// Package metrics exports engine decisions as Prometheus metrics.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Agrid-Dev/heatpumpctl/internal/heating"
)

const namespace = "heatpumpctl"

const (
	ResultOK          = "ok"
	ResultSensorError = "sensor_error"
	ResultHubError    = "hub_error"
	ResultEngineError = "engine_error"
	ResultRelayError  = "relay_error"
)

type Collector struct {
	ticks       *prometheus.CounterVec
	tickLatency prometheus.Histogram
	warnings    prometheus.Counter

	state   *prometheus.GaugeVec
	channel *prometheus.GaugeVec
	sensor  *prometheus.GaugeVec

	rangeMin prometheus.Gauge
	rangeMax prometheus.Gauge
	heatPct  prometheus.Gauge
	tankPct  prometheus.Gauge
	enabled  prometheus.Gauge
}

// New registers the collector's metrics on reg.
func New(reg prometheus.Registerer) (*Collector, error) {
	c := &Collector{
		ticks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ticks_total",
			Help:      "Control ticks by result",
		}, []string{"result"}),
		tickLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "tick_duration_seconds",
			Help:      "Time spent reading inputs, deciding and driving relays",
			Buckets:   prometheus.DefBuckets,
		}),
		warnings: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "warnings_total",
			Help:      "Engine warnings emitted",
		}),
		state: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "state",
			Help:      "1 for the current primary heating state",
		}, []string{"state"}),
		channel: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "channel_on",
			Help:      "Commanded output per relay channel",
		}, []string{"channel"}),
		sensor: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sensor_celsius",
			Help:      "Latest usable sensor reading",
		}, []string{"sensor"}),
		rangeMin: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "working_range_min_celsius",
			Help:      "Lower bound of the working temperature range",
		}),
		rangeMax: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "working_range_max_celsius",
			Help:      "Upper bound of the working temperature range",
		}),
		heatPct: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "heat_needed_ratio",
			Help:      "Heat-needed position within the working range",
		}),
		tankPct: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "tank_needed_ratio",
			Help:      "Tank-needed position within the working range",
		}),
		enabled: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "enabled",
			Help:      "1 unless the operator kill switch is engaged",
		}),
	}

	for _, m := range []prometheus.Collector{
		c.ticks, c.tickLatency, c.warnings, c.state, c.channel, c.sensor,
		c.rangeMin, c.rangeMax, c.heatPct, c.tankPct, c.enabled,
	} {
		if err := reg.Register(m); err != nil {
			return nil, err
		}
	}
	for _, r := range []string{ResultOK, ResultSensorError, ResultHubError, ResultEngineError, ResultRelayError} {
		c.ticks.WithLabelValues(r)
	}
	return c, nil
}

// ObserveTick counts one tick and its duration.
func (c *Collector) ObserveTick(result string, took time.Duration) {
	c.ticks.WithLabelValues(result).Inc()
	c.tickLatency.Observe(took.Seconds())
}

// ObserveDecision records what the engine decided and on which readings.
func (c *Collector) ObserveDecision(d heating.Decision, readings map[heating.Sensor]heating.Reading) {
	for h := heating.StateOff; h <= heating.StateNoHeatingBlackout; h++ {
		v := 0.0
		if h == d.State {
			v = 1
		}
		c.state.WithLabelValues(h.String()).Set(v)
	}
	c.ObserveCommand(d.Command)

	c.sensor.Reset()
	for s, r := range readings {
		c.sensor.WithLabelValues(s.String()).Set(r.Value)
	}

	c.rangeMin.Set(d.WorkingRange.Min)
	c.rangeMax.Set(d.WorkingRange.Max)
	c.heatPct.Set(d.HeatPct)
	c.tankPct.Set(d.TankPct)
	c.warnings.Add(float64(len(d.Warnings)))
}

// ObserveCommand records the outputs actually driven.
func (c *Collector) ObserveCommand(cmd heating.Command) {
	for _, ch := range heating.Channels {
		v := 0.0
		if cmd.Get(ch).On {
			v = 1
		}
		c.channel.WithLabelValues(ch.String()).Set(v)
	}
}

func (c *Collector) SetEnabled(on bool) {
	if on {
		c.enabled.Set(1)
	} else {
		c.enabled.Set(0)
	}
}

// Handler serves the metrics gathered by g.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
