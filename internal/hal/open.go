package hal

import (
	"fmt"

	"github.com/jochenvg/go-udev"
)

// Open enumerates the udev device tree for devicePath (the board's bus node,
// e.g. "/dev/rfacq0") and returns a concrete Board for it. A production
// implementation would construct the vendor-driver-backed Board here; since
// that driver is an external collaborator, Open only verifies the node is
// present and otherwise wires up Sim so rfacqd has something to run against
// on a bench without the real board attached.
//
// If gpioChip is non-empty, the returned Board's trigger pin is backed by a
// real gpiochar line on that chip (see GPIOTrigger) instead of the board's
// own DIO registers.
func Open(devicePath, gpioChip string, gpioOffset, triggerPin int) (Board, error) {
	var board Board = NewSim()

	if devicePath != "" {
		u := udev.Udev{}
		e := u.NewEnumerate()
		e.AddMatchProperty("DEVNAME", devicePath)
		devices, err := e.Devices()
		if err != nil {
			return nil, &InitErr{Err: fmt.Errorf("udev enumerate: %w", err)}
		}
		if len(devices) == 0 {
			return nil, &InitErr{Err: fmt.Errorf("board device %q not present in udev tree", devicePath)}
		}
		// The vendor driver binding for devices[0] lives outside this spec;
		// a real deployment substitutes its Board implementation here.
	}

	if gpioChip != "" {
		triggered, err := NewGPIOTrigger(board, gpioChip, gpioOffset, triggerPin)
		if err != nil {
			return nil, err
		}
		board = triggered
	}

	return board, nil
}
