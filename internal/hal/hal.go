// Package hal isolates every vendor DAQ board call behind a stable interface.
//
// Purpose: the board driver itself (reset, generator, ADC decimation/trigger,
// digital and analog I/O) is an external collaborator and out of scope here;
// this package only defines the shape callers depend on and a couple of
// concrete adapters (an in-memory simulator for tests, a GPIO-backed trigger
// line for real hardware).
package hal

import "context"

// TriggerState mirrors the board's acquisition trigger state machine.
type TriggerState int

const (
	TriggerIdle TriggerState = iota
	TriggerTriggered
)

// TriggerSource selects what arms the acquisition trigger.
type TriggerSource int

const (
	TriggerSrcExtPositiveEdge TriggerSource = iota
	TriggerSrcNow
)

// Channel identifies one of the two input channels.
type Channel int

const (
	ChannelMeasurement Channel = iota
	ChannelReference
)

// PinDirection is a DIO pin direction.
type PinDirection int

const (
	DirIn PinDirection = iota
	DirOut
)

// HWRing is the hardware DMA ring's sample capacity per channel. A real board
// reports this from its driver; the figure here matches the simulator and the
// board this spec targets.
const HWRing = 16 * 1024 * 1024

// Board is the full HAL surface. Every method is synchronous; the only
// blocking operation is AcqGetTriggerState, which callers poll in a loop (the
// interface itself never blocks internally).
type Board interface {
	GenReset() error
	GenSetWaveform(samples []float32) error
	GenSetFreq(hz float64) error
	GenSetAmp(volts float64) error
	GenSetPhaseDeg(deg float64) error
	GenEnable() error
	GenDisable() error

	AcqReset() error
	AcqSetDecimation(d int) error
	AcqSetTriggerDelay(n int) error
	AcqSetTriggerSrc(src TriggerSource) error
	AcqStart() error
	AcqStop() error
	AcqGetWritePointer() (uint32, error)
	AcqGetTriggerState() (TriggerState, error)
	// AcqReadRaw copies count samples per channel starting at start_pos in the
	// hardware ring. Fails if count exceeds HWRing.
	AcqReadRaw(ch Channel, startPos uint32, count int) ([]int16, error)

	DioSetDirection(pin int, dir PinDirection) error
	DioSet(pin int, high bool) error
	AoSet(channel int, volts float64) error
}

// Err is the error type for any failed Board call.
type Err struct {
	Op  string
	Err error
}

func (e *Err) Error() string { return "hal: " + e.Op + ": " + e.Err.Error() }
func (e *Err) Unwrap() error { return e.Err }

// InitErr marks a failure to initialise the board at process start. It is fatal to the process, not just a session.
type InitErr struct {
	Err error
}

func (e *InitErr) Error() string { return "hal: init: " + e.Err.Error() }
func (e *InitErr) Unwrap() error { return e.Err }

// WaitTriggered busy-polls AcqGetTriggerState until the board reports
// triggered or ctx is cancelled; ctx gives the caller a way to unblock it on
// session teardown.
func WaitTriggered(ctx context.Context, b Board) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		state, err := b.AcqGetTriggerState()
		if err != nil {
			return &Err{Op: "AcqGetTriggerState", Err: err}
		}
		if state == TriggerTriggered {
			return nil
		}
	}
}

// Arm drives the external trigger DIO pin low, selects the external
// positive-edge trigger source, then drives it high and waits for the board
// to report triggered.
func Arm(ctx context.Context, b Board, triggerPin int) error {
	if err := b.DioSetDirection(triggerPin, DirOut); err != nil {
		return &Err{Op: "DioSetDirection", Err: err}
	}
	if err := b.DioSet(triggerPin, false); err != nil {
		return &Err{Op: "DioSet(low)", Err: err}
	}
	if err := b.AcqSetTriggerSrc(TriggerSrcExtPositiveEdge); err != nil {
		return &Err{Op: "AcqSetTriggerSrc", Err: err}
	}
	if err := b.DioSet(triggerPin, true); err != nil {
		return &Err{Op: "DioSet(high)", Err: err}
	}
	return WaitTriggered(ctx, b)
}
