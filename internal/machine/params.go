package machine

import (
	"time"

	"github.com/Wideyedwonderer/buscuit-maker/internal/config"
	"github.com/Wideyedwonderer/buscuit-maker/internal/events"
)

// Params is the static layout and timing of the line, derived from a
// validated MachineConfig.
type Params struct {
	ConveyorLength int
	OvenLength     int
	OvenPosition   int

	WarmupDegrees   float64
	CoolDownDegrees float64
	MinTemperature  float64
	MaxTemperature  float64

	MotorPulse time.Duration
	OvenPeriod time.Duration
}

func NewParams(cfg config.MachineConfig) Params {
	return Params{
		ConveyorLength:  cfg.ConveyorLength,
		OvenLength:      cfg.OvenLength,
		OvenPosition:    cfg.OvenPosition,
		WarmupDegrees:   cfg.OvenWarmupDegreesPerPeriod,
		CoolDownDegrees: cfg.OvenCoolDownDegreesPerPeriod,
		MinTemperature:  cfg.DesiredMinimumOvenTemperature,
		MaxTemperature:  cfg.DesiredMaximumOvenTemperature,
		MotorPulse:      cfg.MotorPulse(),
		OvenPeriod:      cfg.OvenPeriod(),
	}
}

// OvenStart is the first belt slot inside the oven.
func (p Params) OvenStart() int {
	return p.OvenPosition - 1
}

// OvenEnd is the last belt slot inside the oven.
func (p Params) OvenEnd() int {
	return p.OvenPosition - 1 + p.OvenLength - 1
}

func (p Params) beltEnd() int {
	return p.ConveyorLength - 1
}

func (p Params) InitialConfig() events.InitialConfig {
	return events.InitialConfig{
		OvenLength:                p.OvenLength,
		ConveyorLength:            p.ConveyorLength,
		OvenPosition:              p.OvenPosition,
		MotorPulseDurationSeconds: p.MotorPulse.Seconds(),
	}
}
