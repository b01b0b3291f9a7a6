package device

import (
	"errors"
	"testing"

	"github.com/Agrid-Dev/heatpumpctl/internal/heating"
)

func testPins() map[string]int {
	return map[string]int{
		"heat_pump":        17,
		"circulation_pump": 27,
		"boost":            22,
		"overrun":          23,
		"immersion":        24,
	}
}

func newTestBoard(t *testing.T, activeLow bool) (*Board, *Fake) {
	t.Helper()
	f := NewFake()
	b, err := NewBoard("test-id", f, testPins(), activeLow)
	if err != nil {
		t.Fatalf("NewBoard: %v", err)
	}
	return b, f
}

func on() heating.Intent { return heating.Intent{On: true} }

func TestNewBoard(t *testing.T) {
	b, _ := newTestBoard(t, false)
	if b.ID != "test-id" {
		t.Errorf("Expected board ID to be %s, got %s", "test-id", b.ID)
	}
}

func TestNewBoardErrors(t *testing.T) {
	tests := []struct {
		name string
		pins map[string]int
		want error
	}{
		{"unknown channel", map[string]int{"kettle": 5}, ErrUnknownChannel},
		{"duplicate pin", map[string]int{"heat_pump": 5, "boost": 5}, ErrDuplicatePin},
		{"negative pin", map[string]int{"boost": -1}, ErrInvalidPin},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewBoard("x", NewFake(), tt.pins, false)
			if !errors.Is(err, tt.want) {
				t.Fatalf("got %v, want %v", err, tt.want)
			}
		})
	}
}

func TestApplyWritesOnlyChanges(t *testing.T) {
	b, f := newTestBoard(t, false)

	changed, err := b.Apply(heating.Command{HeatPump: on()})
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if len(changed) != 5 || f.Writes() != 5 {
		t.Fatalf("first apply: changed=%v writes=%d, want all 5", changed, f.Writes())
	}
	if !f.Levels()[17] || f.Levels()[27] {
		t.Fatalf("unexpected levels %v", f.Levels())
	}

	changed, err = b.Apply(heating.Command{HeatPump: on()})
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if len(changed) != 0 || f.Writes() != 5 {
		t.Fatalf("repeat apply: changed=%v writes=%d", changed, f.Writes())
	}

	changed, _ = b.Apply(heating.Command{HeatPump: on(), CirculationPump: on()})
	if len(changed) != 1 || changed[0] != heating.ChannelCirculationPump {
		t.Fatalf("changed = %v, want [circulation_pump]", changed)
	}
	if f.Writes() != 6 {
		t.Fatalf("writes = %d, want 6", f.Writes())
	}

	outputs := b.Outputs()
	if !outputs[heating.ChannelHeatPump] || !outputs[heating.ChannelCirculationPump] || outputs[heating.ChannelBoost] {
		t.Fatalf("unexpected outputs %v", outputs)
	}
}

func TestApplyActiveLow(t *testing.T) {
	b, f := newTestBoard(t, true)

	if _, err := b.Apply(heating.Command{Immersion: on()}); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	levels := f.Levels()
	if levels[24] {
		t.Errorf("immersion on should drive pin low")
	}
	if !levels[17] {
		t.Errorf("heat pump off should drive pin high")
	}
}

func TestApplyUnmappedChannelsIgnored(t *testing.T) {
	f := NewFake()
	b, err := NewBoard("x", f, map[string]int{"immersion": 4}, false)
	if err != nil {
		t.Fatalf("NewBoard: %v", err)
	}
	changed, err := b.Apply(heating.Command{HeatPump: on(), Immersion: on()})
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if len(changed) != 1 || f.Writes() != 1 {
		t.Fatalf("changed=%v writes=%d", changed, f.Writes())
	}
}

func TestApplyDriverErrorRetries(t *testing.T) {
	b, f := newTestBoard(t, false)
	boom := errors.New("boom")
	f.Fail(boom)

	if _, err := b.Apply(heating.Command{Boost: on()}); !errors.Is(err, boom) {
		t.Fatalf("got %v, want %v", err, boom)
	}

	f.Fail(nil)
	changed, err := b.Apply(heating.Command{Boost: on()})
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if len(changed) != 5 {
		t.Fatalf("failed writes must be retried, changed = %v", changed)
	}
}

func TestCloseSwitchesOff(t *testing.T) {
	b, f := newTestBoard(t, false)
	if _, err := b.Apply(heating.Command{HeatPump: on(), Overrun: on()}); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if err := b.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	for pin, high := range f.Levels() {
		if high {
			t.Errorf("pin %d still high after Close", pin)
		}
	}
	if !f.Closed() {
		t.Error("driver not closed")
	}
}

func TestCloseActiveLowLeavesPinsHigh(t *testing.T) {
	b, f := newTestBoard(t, true)
	if _, err := b.Apply(heating.Command{HeatPump: on(), Immersion: on()}); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if err := b.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	levels := f.Levels()
	if len(levels) != len(heating.Channels) {
		t.Fatalf("expected %d pins, got %v", len(heating.Channels), levels)
	}
	for pin, high := range levels {
		if !high {
			t.Errorf("pin %d low after Close, relay would be on", pin)
		}
	}
}

func TestNewDriver(t *testing.T) {
	d, err := NewDriver("fake", "")
	if err != nil {
		t.Fatalf("NewDriver: %v", err)
	}
	if _, ok := d.(*Fake); !ok {
		t.Fatalf("got %T, want *Fake", d)
	}
	if _, err := NewDriver("relayboard9000", ""); !errors.Is(err, ErrUnknownDriver) {
		t.Fatalf("got %v, want %v", err, ErrUnknownDriver)
	}
}
