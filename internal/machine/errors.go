package machine

import "errors"

// Rejections reported when a command conflicts with the machine's state or
// with an operation already in flight. The message is the ERROR payload.
var (
	ErrAlreadyTurningOn          = errors.New("machine is already turning on")
	ErrCantTurnOnWhileTurningOff = errors.New("can't turn on during turning off phase")
	ErrAlreadyTurnedOn           = errors.New("machine is already turned on")
	ErrAlreadyTurningOff         = errors.New("machine is already turning off")
	ErrAlreadyOff                = errors.New("machine is already turned off")
	ErrAlreadyPausing            = errors.New("machine is already pausing")
	ErrCantPauseNotOn            = errors.New("machine should be on in order to pause")
	ErrCantPauseWhileTurningOff  = errors.New("can't pause during turning off phase")
)

// ErrClosed is returned for commands issued after Close.
var ErrClosed = errors.New("machine controller closed")

var rejections = []error{
	ErrAlreadyTurningOn,
	ErrCantTurnOnWhileTurningOff,
	ErrAlreadyTurnedOn,
	ErrAlreadyTurningOff,
	ErrAlreadyOff,
	ErrAlreadyPausing,
	ErrCantPauseNotOn,
	ErrCantPauseWhileTurningOff,
}

// IsRejection reports whether err is one of the command rejections above.
func IsRejection(err error) bool {
	for _, r := range rejections {
		if errors.Is(err, r) {
			return true
		}
	}
	return false
}

const (
	emergencyTurnOff = "emergency turn-off initiated"
)

var burnWarnings = []string{
	"cookies will burn",
	"cookies will become bricks soon",
	"last warning, cookies will burn",
}
