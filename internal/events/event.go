package events

import (
	"fmt"
	"time"
)

// Name identifies an event emitted by the machine.
type Name string

const (
	MachineOn             Name = "MACHINE_ON"
	MachinePaused         Name = "MACHINE_PAUSED"
	MotorOn               Name = "MOTOR_ON"
	OvenTemperatureChange Name = "OVEN_TEMPERATURE_CHANGE"
	OvenHeated            Name = "OVEN_HEATED"
	CookieCooked          Name = "COOKIE_COOKED"
	CookiesMoved          Name = "COOKIES_MOVED"
	Error                 Name = "ERROR"
	Warning               Name = "WARNING"
	InitialConfigName     Name = "INITIAL_CONFIG"
)

var known = map[Name]struct{}{
	MachineOn:             {},
	MachinePaused:         {},
	MotorOn:               {},
	OvenTemperatureChange: {},
	OvenHeated:            {},
	CookieCooked:          {},
	CookiesMoved:          {},
	Error:                 {},
	Warning:               {},
	InitialConfigName:     {},
}

// Transient events are delivered live only and never replayed.
func (n Name) Transient() bool {
	return n == Error || n == Warning
}

// Validate returns an error if n is not a registered event name.
func (n Name) Validate() error {
	if _, ok := known[n]; !ok {
		return fmt.Errorf("unknown event: %q", string(n))
	}
	return nil
}

type Event struct {
	Name      Name      `json:"event"`
	Data      any       `json:"data"`
	Timestamp time.Time `json:"timestamp"`
}

func New(name Name, data any) Event {
	return Event{
		Name:      name,
		Data:      data,
		Timestamp: time.Now().UTC(),
	}
}

// CookiePositions is the payload of COOKIES_MOVED. A value of -1 means the
// arc is empty.
type CookiePositions struct {
	FirstCookiePosition       int `json:"firstCookiePosition"`
	LastCookiePosition        int `json:"lastCookiePosition"`
	FirstBurnedCookiePosition int `json:"firstBurnedCookiePosition"`
	LastBurnedCookiePosition  int `json:"lastBurnedCookiePosition"`
}

// InitialConfig is sent to every observer when it connects.
type InitialConfig struct {
	OvenLength                int     `json:"ovenLength"`
	ConveyorLength            int     `json:"conveyorLength"`
	OvenPosition              int     `json:"ovenPosition"`
	MotorPulseDurationSeconds float64 `json:"motorPulseDurationSeconds"`
}
