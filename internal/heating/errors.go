package heating

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidInput       = errors.New("invalid input")
	ErrUnknownSensor      = errors.New("unknown sensor")
	ErrInvalidState       = errors.New("invalid heating state")
	ErrInvalidHysteresis  = errors.New("invalid hysteresis ordering")
	ErrInvalidTimeOfDay   = errors.New("invalid time of day")
	ErrInvalidZone        = errors.New("invalid time slot zone")
	ErrInvalidDuration    = errors.New("durations must be greater or equal to zero")
	ErrInvalidRange       = errors.New("working range min must be below max")
	ErrInvalidCurve       = errors.New("curve parameters must be finite")
	ErrInvalidTemperature = errors.New("invalid temperature band")
)

// ConfigError locates a load-time validation failure.
type ConfigError struct {
	Field string
	Err   error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config %s: %v", e.Field, e.Err)
}

func (e *ConfigError) Unwrap() error { return e.Err }

func configErr(field string, err error) error {
	return &ConfigError{Field: field, Err: err}
}
