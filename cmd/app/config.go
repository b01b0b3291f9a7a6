package app

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"slices"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env/v2"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
	yamlv3 "gopkg.in/yaml.v3"

	"github.com/Agrid-Dev/heatpumpctl/internal/heating"
)

// EnvPrefix is stripped from environment variables before key mapping.
const EnvPrefix = "HEATPUMPCTL_"

type Config struct {
	DeviceID                 string        `koanf:"device_id"`
	Interval                 time.Duration `koanf:"interval"`
	Timezone                 string        `koanf:"timezone"`
	IncludeConfigDirectories []string      `koanf:"include_config_directories"`

	Log         LogConfig `koanf:"log"`
	Controllers struct {
		HTTP   HTTPConfig   `koanf:"http"`
		MQTT   MQTTConfig   `koanf:"mqtt"`
		MODBUS ModbusConfig `koanf:"modbus"`
	} `koanf:"controllers"`
	Database DatabaseConfig `koanf:"database"`
	Sensors  SensorsConfig  `koanf:"sensors"`
	Hub      HubConfig      `koanf:"hub"`
	Relays   RelaysConfig   `koanf:"relays"`

	HPEnableTime         time.Duration          `koanf:"hp_enable_time"`
	DefaultWorkingRange  RangeConfig            `koanf:"default_working_range"`
	WorkingTempModel     WorkingTempModelConfig `koanf:"working_temp_model"`
	HPCirculation        HPCirculationConfig    `koanf:"hp_circulation"`
	ImmersionHeaterModel ImmersionConfig        `koanf:"immersion_heater_model"`
	OverrunDuring        OverrunConfig          `koanf:"overrun_during"`
	NoHeating            []SlotConfig           `koanf:"no_heating"`
}

type LogConfig struct {
	Level  string `koanf:"level"`  // "debug" | "info" | "warn" | "error"
	Format string `koanf:"format"` // "text" | "json"
}

type HTTPConfig struct {
	Enabled bool   `koanf:"enabled"`
	Addr    string `koanf:"addr"`
}

type MQTTConfig struct {
	Enabled         bool          `koanf:"enabled"`
	BrokerURL       string        `koanf:"broker_url"`
	ClientID        string        `koanf:"client_id"`
	BaseTopic       string        `koanf:"base_topic"`
	QoS             byte          `koanf:"qos"`
	RetainSnapshot  bool          `koanf:"retain_snapshot"`
	PublishInterval time.Duration `koanf:"publish_interval"`
	Username        string        `koanf:"username"`
	Password        string        `koanf:"password"`
}

type ModbusConfig struct {
	Enabled bool   `koanf:"enabled"`
	Addr    string `koanf:"addr"`
	UnitID  byte   `koanf:"unit_id"`
}

type DatabaseConfig struct {
	User     string `koanf:"user"`
	Password string `koanf:"password"`
	Host     string `koanf:"host"`
	Port     int    `koanf:"port"`
	Name     string `koanf:"name"`
}

type SensorsConfig struct {
	Backend   string          `koanf:"backend"` // "mysql" | "simulator"
	MaxAge    time.Duration   `koanf:"max_age"`
	Simulator SimulatorConfig `koanf:"simulator"`
}

type SimulatorConfig struct {
	Ambient         float64 `koanf:"ambient"`
	LossCoefficient float64 `koanf:"loss_coefficient"`
	HeatRate        float64 `koanf:"heat_rate"`
	Initial         float64 `koanf:"initial"`
}

type HubConfig struct {
	Backend              string        `koanf:"backend"` // "http" | "mysql" | "static"
	HeatingOn            bool          `koanf:"heating_on"`
	URL                  string        `koanf:"url"`
	Secret               string        `koanf:"secret"`
	Timeout              time.Duration `koanf:"timeout"`
	HeatingStateSensorID int           `koanf:"heating_state_sensor_id"`
}

type RelaysConfig struct {
	Driver    string         `koanf:"driver"` // "gpiocdev" | "rpio" | "fake"
	Chip      string         `koanf:"chip"`
	ActiveLow bool           `koanf:"active_low"`
	Pins      map[string]int `koanf:"pins"`
}

type RangeConfig struct {
	Min float64 `koanf:"min"`
	Max float64 `koanf:"max"`
}

type CurveConfig struct {
	Sharpness    float64 `koanf:"sharpness"`
	TurningPoint float64 `koanf:"turning_point"`
	Multiplier   float64 `koanf:"multiplier"`
	Offset       float64 `koanf:"offset"`
}

type WorkingTempModelConfig struct {
	Min CurveConfig `koanf:"min"`
	Max CurveConfig `koanf:"max"`
}

type MixedModeConfig struct {
	StartHeatPct float64 `koanf:"start_heat_pct"`
	StopHeatPct  float64 `koanf:"stop_heat_pct"`
}

type BoostModeConfig struct {
	StartHeatPct      float64 `koanf:"start_heat_pct"`
	StopHeatPct       float64 `koanf:"stop_heat_pct"`
	StartTKFLHPFLDiff float64 `koanf:"start_tkfl_hpfl_diff"`
	StopTKFLHPFLDiff  float64 `koanf:"stop_tkfl_hpfl_diff"`
	StartSlotMinDiff  float64 `koanf:"start_slot_min_diff"`
	StopSlotMinDiff   float64 `koanf:"stop_slot_min_diff"`
}

type HPCirculationConfig struct {
	PumpOnTime                time.Duration   `koanf:"hp_pump_on_time"`
	PumpOffTime               time.Duration   `koanf:"hp_pump_off_time"`
	InitialSleep              time.Duration   `koanf:"initial_hp_sleep"`
	PreCirculateTempRequired  float64         `koanf:"pre_circulate_temp_required"`
	ForecastDiffOffset        float64         `koanf:"forecast_diff_offset"`
	ForecastDiffProportion    float64         `koanf:"forecast_diff_proportion"`
	ForecastStartAbovePercent float64         `koanf:"forecast_start_above_percent"`
	ForecastTKBTHXIADrop      float64         `koanf:"forecast_tkbt_hxia_drop"`
	MixedMode                 MixedModeConfig `koanf:"mixed_mode"`
	BoostMode                 BoostModeConfig `koanf:"boost_mode"`
	SampleTankTime            time.Duration   `koanf:"sample_tank_time"`
}

type SlotConfig struct {
	Type  heating.Zone      `koanf:"type"`
	Start heating.TimeOfDay `koanf:"start"`
	End   heating.TimeOfDay `koanf:"end"`
}

func (s SlotConfig) slot() heating.TimeSlot {
	return heating.TimeSlot{Zone: s.Type, Start: s.Start, End: s.End}
}

type ImmersionPartConfig struct {
	Type    heating.Zone      `koanf:"type"`
	Start   heating.TimeOfDay `koanf:"start"`
	End     heating.TimeOfDay `koanf:"end"`
	Temp    float64           `koanf:"temp"`
	EndTemp *float64          `koanf:"end_temp"`
	Sensor  heating.Sensor    `koanf:"sensor"`
}

type ImmersionConfig struct {
	Parts []ImmersionPartConfig `koanf:"parts"`
}

type OverrunSlotConfig struct {
	Slot  SlotConfig `koanf:"slot"`
	Temps struct {
		Sensor heating.Sensor `koanf:"sensor"`
		Min    float64        `koanf:"min"`
		Max    float64        `koanf:"max"`
	} `koanf:"temps"`
}

type OverrunConfig struct {
	Slots []OverrunSlotConfig `koanf:"slots"`
}

// includeConfig is the part of a file in an include directory that is
// appended to the main configuration.
type includeConfig struct {
	ImmersionHeaterModel ImmersionConfig `koanf:"immersion_heater_model"`
	OverrunDuring        OverrunConfig   `koanf:"overrun_during"`
	NoHeating            []SlotConfig    `koanf:"no_heating"`
}

// DefaultConfig is the configuration used when no file is given.
func DefaultConfig() Config {
	h := heating.DefaultConfig()
	hp := h.HPCirculation

	var cfg Config
	cfg.DeviceID = "default"
	cfg.Interval = 10 * time.Second
	cfg.Log = LogConfig{Level: "info", Format: "text"}
	cfg.Controllers.HTTP = HTTPConfig{Enabled: true, Addr: ":8080"}
	cfg.Controllers.MQTT = MQTTConfig{PublishInterval: time.Second}
	cfg.Controllers.MODBUS = ModbusConfig{Addr: "127.0.0.1:1502", UnitID: 1}
	cfg.Database = DatabaseConfig{Host: "localhost", Port: 3306, Name: "heating"}
	cfg.Sensors = SensorsConfig{
		Backend: "simulator",
		MaxAge:  5 * time.Minute,
		Simulator: SimulatorConfig{
			Ambient:         15,
			LossCoefficient: 1e-5,
			HeatRate:        2e-3,
			Initial:         40,
		},
	}
	cfg.Hub = HubConfig{Backend: "static", HeatingOn: true, Timeout: 5 * time.Second, HeatingStateSensorID: 17}
	cfg.Relays = RelaysConfig{
		Driver: "fake",
		Chip:   "gpiochip0",
		Pins: map[string]int{
			heating.ChannelHeatPump.String():        17,
			heating.ChannelCirculationPump.String(): 27,
			heating.ChannelBoost.String():           22,
			heating.ChannelOverrun.String():         23,
			heating.ChannelImmersion.String():       24,
		},
	}

	cfg.HPEnableTime = h.HPEnableTime
	cfg.DefaultWorkingRange = RangeConfig{Min: h.DefaultWorkingRange.Min, Max: h.DefaultWorkingRange.Max}
	cfg.WorkingTempModel = WorkingTempModelConfig{
		Min: CurveConfig(h.WorkingTempModel.Min),
		Max: CurveConfig(h.WorkingTempModel.Max),
	}
	cfg.HPCirculation = HPCirculationConfig{
		PumpOnTime:                hp.PumpOnTime,
		PumpOffTime:               hp.PumpOffTime,
		InitialSleep:              hp.InitialSleep,
		PreCirculateTempRequired:  hp.PreCirculateTempRequired,
		ForecastDiffOffset:        hp.ForecastDiffOffset,
		ForecastDiffProportion:    hp.ForecastDiffProportion,
		ForecastStartAbovePercent: hp.ForecastStartAbovePercent,
		ForecastTKBTHXIADrop:      hp.ForecastTKBTHXIADrop,
		MixedMode:                 MixedModeConfig(hp.Mixed),
		BoostMode:                 BoostModeConfig(hp.Boost),
		SampleTankTime:            hp.SampleTankTime,
	}
	return cfg
}

// LoadConfig layers defaults, the config file and HEATPUMPCTL_* environment
// variables, then appends entries from include_config_directories.
// A missing file is not an error.
func LoadConfig(path string) (Config, *koanf.Koanf, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(DefaultConfig(), "koanf"), nil); err != nil {
		return Config{}, nil, fmt.Errorf("load defaults: %w", err)
	}

	if path != "" {
		if err := loadFile(k, path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return Config{}, nil, err
		}
	}

	envProvider := env.Provider(".", env.Opt{
		Prefix: EnvPrefix,
		TransformFunc: func(key, value string) (string, any) {
			return envKeyTransform(strings.TrimPrefix(key, EnvPrefix)), value
		},
	})
	if err := k.Load(envProvider, nil); err != nil {
		return Config{}, nil, fmt.Errorf("load env: %w", err)
	}

	var cfg Config
	if err := unmarshal(k, &cfg); err != nil {
		return Config{}, nil, err
	}

	for _, dir := range cfg.IncludeConfigDirectories {
		if err := cfg.include(dir); err != nil {
			return Config{}, nil, err
		}
	}
	return cfg, k, nil
}

func loadFile(k *koanf.Koanf, path string) error {
	if _, err := os.Stat(path); err != nil {
		return err
	}
	var parser koanf.Parser
	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".yaml", ".yml":
		parser = yaml.Parser()
	case ".json":
		parser = json.Parser()
	default:
		return fmt.Errorf("unsupported config extension %q", ext)
	}
	if err := k.Load(file.Provider(path), parser); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	return nil
}

func (c *Config) include(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("include directory: %w", err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		switch strings.ToLower(filepath.Ext(e.Name())) {
		case ".yaml", ".yml", ".json":
			if !e.IsDir() {
				names = append(names, e.Name())
			}
		}
	}
	slices.Sort(names)

	for _, name := range names {
		k := koanf.New(".")
		path := filepath.Join(dir, name)
		if err := loadFile(k, path); err != nil {
			return err
		}
		var inc includeConfig
		if err := unmarshal(k, &inc); err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
		c.ImmersionHeaterModel.Parts = append(c.ImmersionHeaterModel.Parts, inc.ImmersionHeaterModel.Parts...)
		c.OverrunDuring.Slots = append(c.OverrunDuring.Slots, inc.OverrunDuring.Slots...)
		c.NoHeating = append(c.NoHeating, inc.NoHeating...)
	}
	return nil
}

func unmarshal(k *koanf.Koanf, out any) error {
	err := k.UnmarshalWithConf("", out, koanf.UnmarshalConf{
		Tag: "koanf",
		DecoderConfig: &mapstructure.DecoderConfig{
			DecodeHook: mapstructure.ComposeDecodeHookFunc(
				durationHook,
				mapstructure.TextUnmarshallerHookFunc(),
				mapstructure.StringToSliceHookFunc(","),
			),
			Metadata:         nil,
			Result:           out,
			WeaklyTypedInput: true,
			TagName:          "koanf",
		},
	})
	if err != nil {
		return fmt.Errorf("decode config: %w", err)
	}
	return nil
}

var durationType = reflect.TypeOf(time.Duration(0))

// durationHook accepts Go duration strings ("70s") and bare numbers, which
// are read as seconds. Values that already are durations pass through.
func durationHook(from, to reflect.Type, data any) (any, error) {
	if to != durationType || from == durationType {
		return data, nil
	}
	switch v := data.(type) {
	case string:
		if d, err := time.ParseDuration(v); err == nil {
			return d, nil
		}
		var secs float64
		if _, err := fmt.Sscanf(v, "%g", &secs); err != nil {
			return nil, fmt.Errorf("invalid duration %q", v)
		}
		return time.Duration(secs * float64(time.Second)), nil
	case int:
		return time.Duration(v) * time.Second, nil
	case int64:
		return time.Duration(v) * time.Second, nil
	case uint64:
		return time.Duration(v) * time.Second, nil
	case float64:
		return time.Duration(v * float64(time.Second)), nil
	}
	return data, nil
}

// Heating converts the loaded file into a validated engine configuration.
func (c Config) Heating() (heating.Config, error) {
	hp := c.HPCirculation
	out := heating.Config{
		HPEnableTime:        c.HPEnableTime,
		DefaultWorkingRange: heating.WorkingRange{Min: c.DefaultWorkingRange.Min, Max: c.DefaultWorkingRange.Max},
		WorkingTempModel: heating.WorkingTempModel{
			Min: heating.CurveParams(c.WorkingTempModel.Min),
			Max: heating.CurveParams(c.WorkingTempModel.Max),
		},
		HPCirculation: heating.HPCirculationConfig{
			PumpOnTime:                hp.PumpOnTime,
			PumpOffTime:               hp.PumpOffTime,
			InitialSleep:              hp.InitialSleep,
			PreCirculateTempRequired:  hp.PreCirculateTempRequired,
			ForecastDiffOffset:        hp.ForecastDiffOffset,
			ForecastDiffProportion:    hp.ForecastDiffProportion,
			ForecastStartAbovePercent: hp.ForecastStartAbovePercent,
			ForecastTKBTHXIADrop:      hp.ForecastTKBTHXIADrop,
			Mixed:                     heating.MixedModeConfig(hp.MixedMode),
			Boost:                     heating.BoostModeConfig(hp.BoostMode),
			SampleTankTime:            hp.SampleTankTime,
		},
	}
	if c.Timezone != "" {
		loc, err := time.LoadLocation(c.Timezone)
		if err != nil {
			return heating.Config{}, fmt.Errorf("timezone: %w", err)
		}
		out.Location = loc
	}
	for _, p := range c.ImmersionHeaterModel.Parts {
		out.Immersion = append(out.Immersion, heating.ImmersionPart{
			Slot:    heating.TimeSlot{Zone: p.Type, Start: p.Start, End: p.End},
			Sensor:  p.Sensor,
			Temp:    p.Temp,
			EndTemp: p.EndTemp,
		})
	}
	for _, s := range c.OverrunDuring.Slots {
		out.Overrun = append(out.Overrun, heating.OverrunSlot{
			Slot:   s.Slot.slot(),
			Sensor: s.Temps.Sensor,
			Min:    s.Temps.Min,
			Max:    s.Temps.Max,
		})
	}
	for _, s := range c.NoHeating {
		out.NoHeating = append(out.NoHeating, s.slot())
	}
	if err := out.Validate(); err != nil {
		return heating.Config{}, err
	}
	return out, nil
}

// envSections are the dotted paths recognised in environment variable
// names, longest first so nested sections win over their parents.
var envSections = func() []string {
	s := []string{
		"hp_circulation.mixed_mode",
		"hp_circulation.boost_mode",
		"hp_circulation",
		"working_temp_model.min",
		"working_temp_model.max",
		"default_working_range",
		"sensors.simulator",
		"sensors",
		"relays.pins",
		"relays",
		"database",
		"hub",
		"log",
	}
	slices.SortStableFunc(s, func(a, b string) int { return len(b) - len(a) })
	return s
}()

// envKeyTransform maps SECTION_SUB_KEY to section.sub.key. Unknown keys and
// keys with nothing after their section are lower-cased unchanged.
func envKeyTransform(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return ""
	}

	if rest, ok := strings.CutPrefix(s, "controllers_"); ok {
		sub, key, found := strings.Cut(rest, "_")
		if !found || key == "" {
			return s
		}
		return "controllers." + sub + "." + key
	}

	for _, path := range envSections {
		prefix := strings.ReplaceAll(path, ".", "_") + "_"
		if rest, ok := strings.CutPrefix(s, prefix); ok && rest != "" {
			return path + "." + rest
		}
	}
	return s
}

// DumpYAML renders the merged configuration. Durations are written in Go
// notation so the output can be loaded back.
func DumpYAML(k *koanf.Koanf) ([]byte, error) {
	return yamlv3.Marshal(printable(k.Raw()))
}

func printable(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for key, val := range t {
			out[key] = printable(val)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = printable(val)
		}
		return out
	case time.Duration:
		return t.String()
	case fmt.Stringer:
		return t.String()
	}
	return v
}
