package machine

import (
	"fmt"
	"time"

	"github.com/Wideyedwonderer/buscuit-maker/internal/events"
)

type State string

const (
	StateOff    State = "OFF"
	StateOn     State = "ON"
	StatePaused State = "PAUSED"
)

type MotorState string

const (
	MotorOff MotorState = "OFF"
	MotorOn  MotorState = "ON"
)

type Command string

const (
	CommandTurnOn  Command = "TURN_ON_MACHINE"
	CommandTurnOff Command = "TURN_OFF_MACHINE"
	CommandPause   Command = "PAUSE_MACHINE"
)

// ParseCommand accepts the wire name of a command.
func ParseCommand(s string) (Command, error) {
	switch cmd := Command(s); cmd {
	case CommandTurnOn, CommandTurnOff, CommandPause:
		return cmd, nil
	default:
		return "", fmt.Errorf("unknown command: %s", s)
	}
}

// CommandForState maps a requested target state to the command reaching it.
func CommandForState(s State) (Command, error) {
	switch s {
	case StateOn:
		return CommandTurnOn, nil
	case StateOff:
		return CommandTurnOff, nil
	case StatePaused:
		return CommandPause, nil
	default:
		return "", fmt.Errorf("unknown state: %s", s)
	}
}

type MachineStatus struct {
	State           State                  `json:"state"`
	Motor           MotorState             `json:"motor"`
	TurningOn       bool                   `json:"turning_on"`
	TurningOff      bool                   `json:"turning_off"`
	Pausing         bool                   `json:"pausing"`
	OvenTemperature float64                `json:"oven_temperature"`
	OvenHeating     bool                   `json:"oven_heating"`
	OvenCooling     bool                   `json:"oven_cooling"`
	Cookies         events.CookiePositions `json:"cookies"`
	CookiesCooked   int                    `json:"cookies_cooked"`
	Escalating      bool                   `json:"escalating"`
	LastStateChange time.Time              `json:"last_state_change"`
}
