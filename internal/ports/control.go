package ports

import "github.com/Agrid-Dev/heatpumpctl/internal/service"

// ControlService is the control-plane port used by controllers (HTTP/MQTT/Modbus).
type ControlService interface {
	Get() service.Snapshot
	SetEnabled(bool)
}
