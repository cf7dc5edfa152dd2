package machine

import (
	"context"

	"github.com/Wideyedwonderer/buscuit-maker/internal/events"
	"go.uber.org/zap"
)

// startEscalation launches the burn-safety ladder for dough left in the oven
// during a pause. A running ladder is superseded.
func (c *Controller) startEscalation() {
	c.cancelEscalation()

	ctx, cancel := context.WithCancel(c.ctx)
	c.escalationGen++
	c.escalationCancel = cancel
	gen := c.escalationGen

	c.logger.Warn("Dough paused inside the oven, escalation started",
		zap.Int("first", c.dough.First),
		zap.Int("last", c.dough.Last))

	c.spawn(func() {
		defer func() {
			cancel()
			if gen == c.escalationGen {
				c.escalationCancel = nil
			}
		}()
		c.escalate(ctx, gen)
	})
}

func (c *Controller) cancelEscalation() {
	if c.escalationCancel != nil {
		c.escalationCancel()
		c.escalationCancel = nil
	}
}

// escalate warns three times, two oven periods apart, then marks the dough
// inside the oven as burnt and turns the machine off. It stops silently at
// any stage once the machine is no longer paused.
func (c *Controller) escalate(ctx context.Context, gen uint64) {
	stage := 2 * c.params.OvenPeriod

	for _, warning := range burnWarnings {
		if err := c.sleep(ctx, stage); err != nil || !c.escalationEligible(ctx, gen) {
			return
		}
		c.logger.Warn("Burn warning", zap.String("message", warning))
		c.publish(events.Warning, warning)
	}

	if err := c.sleep(ctx, stage); err != nil || !c.escalationEligible(ctx, gen) {
		return
	}

	c.logger.Error("Emergency turn-off", zap.Int("oven_start", c.params.OvenStart()), zap.Int("oven_end", c.params.OvenEnd()))
	c.publish(events.Error, emergencyTurnOff)

	c.burnt = Arc{
		First: min(c.params.OvenEnd(), c.dough.First),
		Last:  max(c.params.OvenStart(), c.dough.Last),
	}
	c.publish(events.CookiesMoved, c.positions())

	if err := c.sleep(ctx, c.params.OvenPeriod); err != nil || !c.escalationEligible(ctx, gen) {
		return
	}

	if err := c.turnOff(); err != nil {
		c.logger.Debug("Emergency turn-off ended early", zap.Error(err))
	}
}

func (c *Controller) escalationEligible(ctx context.Context, gen uint64) bool {
	return ctx.Err() == nil &&
		gen == c.escalationGen &&
		c.state == StatePaused &&
		!c.turningOff
}
