package machine

import (
	"github.com/Wideyedwonderer/buscuit-maker/internal/events"
	"go.uber.org/zap"
)

// startMotor switches the motor on and starts the pulse loop as its own task.
func (c *Controller) startMotor() {
	c.motor = MotorOn
	c.motorGen++
	gen := c.motorGen

	c.publish(events.MotorOn, true)
	c.spawn(func() { c.runMotor(gen) })
}

// runMotor pulses every MotorPulse. Each cycle is split in two halves so a
// stop request takes effect within half a pulse.
func (c *Controller) runMotor(gen uint64) {
	half := c.params.MotorPulse / 2

	for c.shouldPulse(gen) {
		if err := c.sleep(c.ctx, half); err != nil {
			return
		}
		if !c.shouldPulse(gen) {
			break
		}

		c.extrude()
		c.moveConveyor()

		if err := c.sleep(c.ctx, c.params.MotorPulse-half); err != nil {
			return
		}
	}

	c.logger.Debug("Motor loop stopped", zap.Uint64("generation", gen))
}

func (c *Controller) shouldPulse(gen uint64) bool {
	return c.motor == MotorOn && !c.turningOff && gen == c.motorGen
}

// stopMotor switches the motor off, draining the belt first when terminate is
// set. MOTOR_ON=false is reported one pulse later so a committed pulse can
// finish visibly.
func (c *Controller) stopMotor(terminate bool) error {
	if terminate {
		if err := c.drainConveyor(); err != nil {
			return err
		}
	}

	c.motor = MotorOff
	if err := c.sleep(c.ctx, c.params.MotorPulse); err != nil {
		return err
	}
	c.publish(events.MotorOn, false)
	return nil
}
