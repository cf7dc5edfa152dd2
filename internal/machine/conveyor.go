package machine

import (
	"github.com/Wideyedwonderer/buscuit-maker/internal/events"
	"go.uber.org/zap"
)

// Arc is a contiguous span of belt slots. First is the leading edge (furthest
// along the belt) and Last the trailing edge, so a populated arc covers
// Last..First. Both are -1 when the arc is empty.
type Arc struct {
	First int
	Last  int
}

var emptyArc = Arc{First: -1, Last: -1}

func (a Arc) Empty() bool {
	return a.Last == -1
}

// Overlaps reports whether any slot of a lies in [start, end].
func (a Arc) Overlaps(start, end int) bool {
	return !a.Empty() && a.Last <= end && a.First >= start
}

// advance shifts the arc one slot towards end. It returns true when the
// leading edge was already at end, i.e. the cookie there left the belt.
func (a *Arc) advance(end int) bool {
	if a.Empty() {
		return false
	}

	exited := a.First == end
	if !exited {
		a.First++
	}

	if a.Last == end {
		*a = emptyArc
	} else {
		a.Last++
	}
	return exited
}

func (c *Controller) positions() events.CookiePositions {
	return events.CookiePositions{
		FirstCookiePosition:       c.dough.First,
		LastCookiePosition:        c.dough.Last,
		FirstBurnedCookiePosition: c.burnt.First,
		LastBurnedCookiePosition:  c.burnt.Last,
	}
}

// extrude puts fresh dough on slot 0.
func (c *Controller) extrude() {
	if c.dough.Empty() {
		c.dough = Arc{First: 0, Last: 0}
	} else {
		c.dough.Last = 0
	}
	c.publish(events.CookiesMoved, c.positions())
}

// moveConveyor advances the dough and burnt arcs by one slot and counts the
// cookie leaving the belt unless it is burnt.
func (c *Controller) moveConveyor() {
	if c.dough.Empty() {
		return
	}

	end := c.params.beltEnd()
	burntAtExit := !c.burnt.Empty() && c.burnt.First == end

	if c.dough.advance(end) && !burntAtExit {
		c.cooked++
		c.publish(events.CookieCooked, c.cooked)
	}
	c.burnt.advance(end)

	c.logger.Debug("Conveyor moved",
		zap.Int("first", c.dough.First),
		zap.Int("last", c.dough.Last),
		zap.Int("cooked", c.cooked))

	c.publish(events.CookiesMoved, c.positions())
}

// drainConveyor moves the belt once per pulse, without extruding, until all
// dough has left it.
func (c *Controller) drainConveyor() error {
	for !c.dough.Empty() {
		c.moveConveyor()
		if err := c.sleep(c.ctx, c.params.MotorPulse); err != nil {
			return err
		}
	}
	return nil
}
