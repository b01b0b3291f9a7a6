package modbusctrl

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	mbserver "github.com/tbrandon/mbserver"

	"github.com/Agrid-Dev/heatpumpctl/internal/heating"
	"github.com/Agrid-Dev/heatpumpctl/internal/ports"
	"github.com/Agrid-Dev/heatpumpctl/internal/service"
)

// Register map.
//
//	Coils            0 enabled (rw), 1..5 channel outputs (ro) in heating.Channels order
//	Holding (ro)     0 state, 1 submode, 2 phase, 3 range min, 4 range max, 5 heat pct, 6 tank pct
//	Input            0..11 sensor readings in heating.Sensors order
//
// Temperatures and percentages are scaled by TemperatureScale. A missing
// reading reads as NotAvailable.
const (
	CoilEnabled  = 0
	coilChannels = 1

	HRState      = 0
	HRSubmode    = 1
	HRPhase      = 2
	HRRangeMin   = 3
	HRRangeMax   = 4
	HRHeatPct    = 5
	HRTankPct    = 6
	holdingCount = 7

	NotAvailable = 0x8000

	maxReadCoils  = 2000
	maxReadRegQty = 125
	coilOn        = 0xFF00
	coilOff       = 0x0000
)

// Config for the Modbus controller.
type Config struct {
	DeviceID string
	Addr     string
	UnitID   byte // UnitID (Modbus slave/unit ID). Use an integer 1..247.
}

type Controller struct {
	svc ports.ControlService
	cfg Config

	serv *mbserver.Server
}

func New(svc ports.ControlService, cfg Config) (*Controller, error) {
	if cfg.UnitID == 0 {
		return nil, errors.New("modbus: UnitID is required (non-zero)")
	}
	if cfg.Addr == "" {
		cfg.Addr = "127.0.0.1:1502"
	}
	return &Controller{svc: svc, cfg: cfg}, nil
}

// Run starts the Modbus server. Reads are served straight from the service
// snapshot. It blocks until ctx is canceled.
func (c *Controller) Run(ctx context.Context) error {
	serv := mbserver.NewServer()
	c.serv = serv

	// Register handlers BEFORE starting the TCP listener to avoid races inside mbserver
	// between handler registration and the server's goroutines.
	serv.RegisterFunctionHandler(1, c.readCoils)
	serv.RegisterFunctionHandler(3, func(_ *mbserver.Server, frame mbserver.Framer) ([]byte, *mbserver.Exception) {
		return readRegisters(frame, holdingCount, holdingRegister, c.svc)
	})
	serv.RegisterFunctionHandler(4, func(_ *mbserver.Server, frame mbserver.Framer) ([]byte, *mbserver.Exception) {
		return readRegisters(frame, len(heating.Sensors()), inputRegister, c.svc)
	})
	serv.RegisterFunctionHandler(5, c.writeSingleCoil)
	// Holding registers are read-only.
	readOnly := func(_ *mbserver.Server, _ mbserver.Framer) ([]byte, *mbserver.Exception) {
		return []byte{}, &mbserver.IllegalDataAddress
	}
	serv.RegisterFunctionHandler(6, readOnly)
	serv.RegisterFunctionHandler(15, readOnly)
	serv.RegisterFunctionHandler(16, readOnly)

	// Now start listening after all handlers are registered.
	if err := serv.ListenTCP(c.cfg.Addr); err != nil {
		return fmt.Errorf("mbserver listen tcp %s: %w", c.cfg.Addr, err)
	}

	// Block until ctx.Done()
	<-ctx.Done()
	serv.Close()
	return ctx.Err()
}

// coil returns the value of coil addr.
func coil(snap service.Snapshot, addr int) bool {
	if addr == CoilEnabled {
		return snap.Enabled
	}
	return snap.Channels[heating.Channels[addr-coilChannels]]
}

func (c *Controller) readCoils(_ *mbserver.Server, frame mbserver.Framer) ([]byte, *mbserver.Exception) {
	data := frame.GetData()
	if len(data) < 4 {
		return []byte{}, &mbserver.IllegalDataValue
	}
	start := int(binary.BigEndian.Uint16(data[0:2]))
	qty := int(binary.BigEndian.Uint16(data[2:4]))
	if qty == 0 || qty > maxReadCoils {
		return []byte{}, &mbserver.IllegalDataValue
	}
	if start+qty > coilChannels+len(heating.Channels) {
		return []byte{}, &mbserver.IllegalDataAddress
	}

	snap := c.svc.Get()
	n := (qty + 7) / 8
	resp := make([]byte, 1+n)
	resp[0] = byte(n)
	for i := 0; i < qty; i++ {
		if coil(snap, start+i) {
			resp[1+i/8] |= 1 << (i % 8)
		}
	}
	return resp, &mbserver.Success
}

func (c *Controller) writeSingleCoil(_ *mbserver.Server, frame mbserver.Framer) ([]byte, *mbserver.Exception) {
	data := frame.GetData()
	if len(data) < 4 {
		return []byte{}, &mbserver.IllegalDataValue
	}
	addr := binary.BigEndian.Uint16(data[0:2])
	value := binary.BigEndian.Uint16(data[2:4])

	// Channel coils mirror engine decisions and cannot be forced.
	if addr != CoilEnabled {
		return []byte{}, &mbserver.IllegalDataAddress
	}

	var enabled bool
	switch value {
	case coilOff:
		enabled = false
	case coilOn:
		enabled = true
	default:
		return []byte{}, &mbserver.IllegalDataValue
	}

	c.svc.SetEnabled(enabled)

	// echo request (address + value)
	resp := make([]byte, 4)
	copy(resp, data[0:4])
	return resp, &mbserver.Success
}

func holdingRegister(snap service.Snapshot, addr int) uint16 {
	switch addr {
	case HRState:
		return uint16(snap.State)
	case HRSubmode:
		return uint16(snap.Submode)
	case HRPhase:
		return uint16(snap.Phase)
	case HRRangeMin:
		return encodeTemp(snap.WorkingRange.Min)
	case HRRangeMax:
		return encodeTemp(snap.WorkingRange.Max)
	case HRHeatPct:
		return encodeTemp(snap.HeatPct * 100)
	case HRTankPct:
		return encodeTemp(snap.TankPct * 100)
	}
	return NotAvailable
}

func inputRegister(snap service.Snapshot, addr int) uint16 {
	v, ok := snap.Readings[heating.Sensors()[addr]]
	if !ok {
		return NotAvailable
	}
	return encodeTemp(v)
}

func readRegisters(frame mbserver.Framer, count int, get func(service.Snapshot, int) uint16, svc ports.ControlService) ([]byte, *mbserver.Exception) {
	data := frame.GetData()
	if len(data) < 4 {
		return []byte{}, &mbserver.IllegalDataValue
	}
	start := int(binary.BigEndian.Uint16(data[0:2]))
	qty := int(binary.BigEndian.Uint16(data[2:4]))
	if qty == 0 || qty > maxReadRegQty {
		return []byte{}, &mbserver.IllegalDataValue
	}
	if start+qty > count {
		return []byte{}, &mbserver.IllegalDataAddress
	}

	snap := svc.Get()
	// Build response: byte count + register bytes
	byteCount := qty * 2
	resp := make([]byte, 1+byteCount)
	resp[0] = byte(byteCount)
	for i := 0; i < qty; i++ {
		binary.BigEndian.PutUint16(resp[1+i*2:1+i*2+2], get(snap, start+i))
	}
	return resp, &mbserver.Success
}

const TemperatureScale int = 100

func encodeTemp(v float64) uint16 {
	if math.IsNaN(v) {
		return NotAvailable
	}
	// NotAvailable is reserved, clamp one above it.
	r := min(max(int(math.Round(v*float64(TemperatureScale))), math.MinInt16+1), math.MaxInt16)
	return uint16(int16(r))
}
