package hal

import (
	"github.com/warthog618/go-gpiocdev"
)

// GPIOTrigger decorates a Board so the external trigger DIO pin is backed by
// a real Linux GPIO character device line instead of the underlying board's
// own DIO registers. Everything else is delegated unchanged.
type GPIOTrigger struct {
	Board
	line       *gpiocdev.Line
	triggerPin int
}

// NewGPIOTrigger requests chipDevice's offset line as an output and wraps
// board so DioSetDirection/DioSet calls for triggerPin go to that gpiochar
// line; calls for any other pin fall through to board.
func NewGPIOTrigger(board Board, chipDevice string, offset, triggerPin int) (*GPIOTrigger, error) {
	line, err := gpiocdev.RequestLine(chipDevice, offset, gpiocdev.AsOutput(0))
	if err != nil {
		return nil, &InitErr{Err: err}
	}
	return &GPIOTrigger{Board: board, line: line, triggerPin: triggerPin}, nil
}

func (g *GPIOTrigger) DioSetDirection(pin int, dir PinDirection) error {
	if pin != g.triggerPin {
		return g.Board.DioSetDirection(pin, dir)
	}
	// The line was already requested as an output; reconfiguring direction
	// on the fly isn't needed for the trigger pin's single use.
	return nil
}

func (g *GPIOTrigger) DioSet(pin int, high bool) error {
	if pin != g.triggerPin {
		return g.Board.DioSet(pin, high)
	}
	v := 0
	if high {
		v = 1
	}
	if err := g.line.SetValue(v); err != nil {
		return &Err{Op: "gpio.SetValue", Err: err}
	}
	return nil
}

// Close releases the underlying gpiochar line.
func (g *GPIOTrigger) Close() error {
	return g.line.Close()
}
