package machine

import (
	"math"

	"github.com/Wideyedwonderer/buscuit-maker/internal/events"
)

type oven struct {
	temperature float64
	heating     bool
	cooling     bool

	// cooldowns counts cool-down starts. A warm-up that sees it change was
	// preempted, even if the cool-down has already finished.
	cooldowns uint64
}

// heatOven raises the temperature once per oven period until the desired
// minimum is reached. It reports false when a cool-down started while it was
// warming up; the warm-up is abandoned then and never resumes.
func (c *Controller) heatOven() (bool, error) {
	if c.oven.temperature >= c.params.MinTemperature {
		return true, nil
	}

	c.oven.heating = true
	defer func() { c.oven.heating = false }()

	cooldowns := c.oven.cooldowns
	preempted := func() bool {
		return c.oven.cooling || c.oven.cooldowns != cooldowns
	}

	for c.oven.temperature < c.params.MinTemperature {
		if err := c.sleep(c.ctx, c.params.OvenPeriod); err != nil {
			return false, err
		}
		if preempted() {
			return false, nil
		}
		c.oven.temperature = math.Min(c.params.MaxTemperature, c.oven.temperature+c.params.WarmupDegrees)
		c.publish(events.OvenTemperatureChange, c.oven.temperature)
	}

	c.publish(events.OvenHeated, true)
	return true, nil
}

// coolOven lowers the temperature to zero. An in-flight warm-up step is given
// one period to settle first.
func (c *Controller) coolOven() error {
	c.oven.cooling = true
	c.oven.cooldowns++
	defer func() { c.oven.cooling = false }()

	if c.oven.heating {
		if err := c.sleep(c.ctx, c.params.OvenPeriod); err != nil {
			return err
		}
	}

	for c.oven.temperature > 0 {
		if err := c.sleep(c.ctx, c.params.OvenPeriod); err != nil {
			return err
		}
		c.oven.temperature = math.Max(0, c.oven.temperature-c.params.CoolDownDegrees)
		c.publish(events.OvenTemperatureChange, c.oven.temperature)
	}

	c.publish(events.OvenHeated, false)
	return nil
}
