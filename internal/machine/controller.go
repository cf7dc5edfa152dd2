package machine

import (
	"context"
	"fmt"
	"time"

	"github.com/Wideyedwonderer/buscuit-maker/internal/events"
	"go.uber.org/zap"
)

// Publisher receives every event the machine emits.
type Publisher interface {
	Publish(e events.Event)
}

// Controller is the biscuit line: oven, motor, conveyor and the lifecycle
// that sequences them. All state below is guarded by the embedded scheduler
// and only touched by the task currently holding it.
type Controller struct {
	scheduler

	logger    *zap.Logger
	params    Params
	publisher Publisher

	ctx    context.Context
	cancel context.CancelFunc
	closed bool

	state           State
	lastStateChange time.Time

	turningOn  bool
	turningOff bool
	pausing    bool

	oven     oven
	motor    MotorState
	motorGen uint64

	dough  Arc
	burnt  Arc
	cooked int

	escalationGen    uint64
	escalationCancel context.CancelFunc
}

func NewController(logger *zap.Logger, params Params, publisher Publisher) *Controller {
	ctx, cancel := context.WithCancel(context.Background())

	return &Controller{
		logger:          logger,
		params:          params,
		publisher:       publisher,
		ctx:             ctx,
		cancel:          cancel,
		state:           StateOff,
		lastStateChange: time.Now(),
		motor:           MotorOff,
		dough:           emptyArc,
		burnt:           emptyArc,
	}
}

// ExecuteCommand dispatches cmd as a background task and returns at once.
// Commands start in the order they were received. Rejections are reported as
// ERROR events, not returned.
func (c *Controller) ExecuteCommand(ctx context.Context, cmd Command) error {
	op, err := c.operation(cmd)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrClosed
	}

	c.logger.Info("Machine command received",
		zap.String("command", string(cmd)),
		zap.String("current_state", string(c.state)))

	c.enqueue(func() {
		if c.closed {
			return
		}
		_ = op()
	})
	return nil
}

func (c *Controller) operation(cmd Command) (func() error, error) {
	switch cmd {
	case CommandTurnOn:
		return c.turnOn, nil
	case CommandTurnOff:
		return c.turnOff, nil
	case CommandPause:
		return c.pause, nil
	default:
		return nil, fmt.Errorf("unknown command: %s", cmd)
	}
}

// TurnOn heats the oven and starts the motor. It blocks until the machine is
// on or the attempt was rejected or interrupted by a turn-off.
func (c *Controller) TurnOn() error {
	return c.run(c.turnOn)
}

// TurnOff drains the belt, cools the oven and blocks until the machine is off.
func (c *Controller) TurnOff() error {
	return c.run(c.turnOff)
}

// Pause stops the motor without draining and blocks until the machine is
// paused. A burn escalation it starts keeps running in the background.
func (c *Controller) Pause() error {
	return c.run(c.pause)
}

// run executes op in the command queue and waits for it to return.
func (c *Controller) run(op func() error) error {
	c.mu.Lock()
	prev, started := c.ticket()
	c.mu.Unlock()

	c.acquire(prev, started)
	defer c.mu.Unlock()

	if c.closed {
		return ErrClosed
	}
	return op()
}

func (c *Controller) turnOn() error {
	if c.turningOn {
		return c.reject(ErrAlreadyTurningOn)
	}
	if c.turningOff {
		return c.reject(ErrCantTurnOnWhileTurningOff)
	}
	if c.state == StateOn {
		return c.reject(ErrAlreadyTurnedOn)
	}

	c.turningOn = true
	defer func() { c.turningOn = false }()

	c.cancelEscalation()

	heated, err := c.heatOven()
	if err != nil {
		return err
	}
	if !heated || c.turningOff {
		c.logger.Info("Turn-on interrupted by turn-off")
		return nil
	}

	if c.motor != MotorOn {
		c.startMotor()
	}
	c.publish(events.MachinePaused, false)
	c.setState(StateOn)
	c.publish(events.MachineOn, true)
	return nil
}

func (c *Controller) turnOff() error {
	if c.turningOff {
		return c.reject(ErrAlreadyTurningOff)
	}
	if c.state == StateOff && !c.oven.heating {
		return c.reject(ErrAlreadyOff)
	}

	c.turningOff = true
	defer func() { c.turningOff = false }()

	c.cancelEscalation()

	if c.state != StateOff {
		if err := c.stopMotor(true); err != nil {
			return err
		}
	}
	if err := c.coolOven(); err != nil {
		return err
	}

	c.setState(StateOff)
	c.publish(events.MachineOn, false)
	c.publish(events.MachinePaused, false)
	return nil
}

func (c *Controller) pause() error {
	if c.pausing {
		return c.reject(ErrAlreadyPausing)
	}
	if c.state != StateOn {
		return c.reject(ErrCantPauseNotOn)
	}
	if c.turningOff {
		return c.reject(ErrCantPauseWhileTurningOff)
	}

	c.pausing = true
	defer func() { c.pausing = false }()

	if err := c.stopMotor(false); err != nil {
		return err
	}
	if c.turningOff {
		// A turn-off started while the motor was winding down and owns the
		// machine from here.
		return nil
	}

	c.setState(StatePaused)
	c.publish(events.MachineOn, false)
	c.publish(events.MachinePaused, true)

	// Any overlap with the oven zone counts. The trailing edge is back at
	// slot 1 after every pulse, before the oven starts, so the dough is never
	// entirely inside it.
	if c.dough.Overlaps(c.params.OvenStart(), c.params.OvenEnd()) {
		c.startEscalation()
	}
	return nil
}

// reject reports err as an ERROR event and returns it.
func (c *Controller) reject(err error) error {
	c.logger.Warn("Machine command rejected",
		zap.String("state", string(c.state)),
		zap.Error(err))
	c.publish(events.Error, err.Error())
	return err
}

func (c *Controller) setState(state State) {
	previous := c.state
	c.state = state
	c.lastStateChange = time.Now()

	c.logger.Info("Machine state changed",
		zap.String("state", string(state)),
		zap.String("previous", string(previous)))
}

func (c *Controller) publish(name events.Name, data any) {
	if c.publisher != nil {
		c.publisher.Publish(events.New(name, data))
	}
}

// GetStatus returns a snapshot of the machine. It waits for the running task
// to reach its next suspension point.
func (c *Controller) GetStatus() MachineStatus {
	c.mu.Lock()
	defer c.mu.Unlock()

	return MachineStatus{
		State:           c.state,
		Motor:           c.motor,
		TurningOn:       c.turningOn,
		TurningOff:      c.turningOff,
		Pausing:         c.pausing,
		OvenTemperature: c.oven.temperature,
		OvenHeating:     c.oven.heating,
		OvenCooling:     c.oven.cooling,
		Cookies:         c.positions(),
		CookiesCooked:   c.cooked,
		Escalating:      c.escalationCancel != nil,
		LastStateChange: c.lastStateChange,
	}
}

func (c *Controller) InitialConfig() events.InitialConfig {
	return c.params.InitialConfig()
}

// Close cancels every running task and waits for them to return. Machine
// state is not persisted.
func (c *Controller) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.cancel()
	c.mu.Unlock()

	c.wg.Wait()
	c.logger.Info("Machine controller closed")
}
