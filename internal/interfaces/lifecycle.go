package interfaces

import (
	"context"

	"github.com/Wideyedwonderer/buscuit-maker/internal/config"
	"github.com/Wideyedwonderer/buscuit-maker/internal/events"
	"github.com/Wideyedwonderer/buscuit-maker/internal/machine"
	"github.com/Wideyedwonderer/buscuit-maker/internal/storage"
)

// SystemStatus represents the current system state
type SystemStatus struct {
	State            string `json:"state"`
	MachineState     string `json:"machine_state"`
	ConnectedClients int    `json:"connected_clients"`
	Journal          bool   `json:"journal"`
	MQTT             bool   `json:"mqtt"`
	Telemetry        bool   `json:"telemetry"`
	StartedAt        int64  `json:"started_at,omitempty"`
	Error            string `json:"error,omitempty"`
}

// Machine is what the outer surfaces need from the controller.
type Machine interface {
	ExecuteCommand(ctx context.Context, cmd machine.Command) error
	GetStatus() machine.MachineStatus
	InitialConfig() events.InitialConfig
}

type Journal interface {
	Recent(ctx context.Context, limit int) ([]storage.Entry, error)
}

type LifecycleManager interface {
	Config() *config.Config
	MachineController() Machine
	// Journal returns nil when journaling is disabled.
	Journal() Journal
	GetCurrentStatus() SystemStatus
	Shutdown(ctx context.Context) error
}
