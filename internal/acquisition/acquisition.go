// Package acquisition implements the single long-lived task that keeps the
// memory ring in lock-step with the hardware ADC ring and notifies the
// sequencer at each frame boundary. Cancellation is cooperative: a shared
// running flag and the context are both checked every iteration, and the
// context also unblocks the trigger wait.
package acquisition

import (
	"context"
	"fmt"
	"io"
	"sync/atomic"
	"time"

	"rfacq/internal/hal"
	"rfacq/internal/ring"
	"rfacq/internal/rflog"
	"rfacq/internal/sequencer"
)

// Params configures one acquisition run.
type Params struct {
	SamplesPerPeriod int
	TriggerPin       int
	Decimation       int
	TriggerDelay     int
}

// Engine owns the per-session acquisition task.
type Engine struct {
	board   hal.Board
	ring    *ring.Ring
	seq     sequencer.Sequencer
	params  Params
	running *atomic.Bool
	trace   io.Writer

	// measBuf/refBuf accumulate one poll's worth of samples across the
	// wraparound split in readBoth. They grow on demand and are reused on
	// every subsequent poll instead of being reallocated.
	measBuf []int16
	refBuf  []int16
}

// SetTrace attaches an optional per-session diagnostic trace sink (see
// rflog.CaptureFile); frame-loss events are appended to it in addition to
// the ambient logger. A nil writer (the default) disables this.
func (e *Engine) SetTrace(w io.Writer) { e.trace = w }

// New constructs an Engine. running is the shared cooperative-cancellation
// flag; the session server flips it to stop the task.
func New(board hal.Board, r *ring.Ring, seq sequencer.Sequencer, params Params, running *atomic.Bool) *Engine {
	return &Engine{board: board, ring: r, seq: seq, params: params, running: running}
}

// Run drives the trigger, then loops until ctx is cancelled or running
// becomes false. It returns only on cancellation or a fatal HAL error.
func (e *Engine) Run(ctx context.Context) error {
	if err := e.board.AcqSetDecimation(e.params.Decimation); err != nil {
		return &hal.Err{Op: "AcqSetDecimation", Err: err}
	}
	if err := e.board.AcqSetTriggerDelay(e.params.TriggerDelay); err != nil {
		return &hal.Err{Op: "AcqSetTriggerDelay", Err: err}
	}
	if err := hal.Arm(ctx, e.board, e.params.TriggerPin); err != nil {
		return err
	}
	if err := e.board.AcqStart(); err != nil {
		return &hal.Err{Op: "AcqStart", Err: err}
	}

	wpOld, err := e.board.AcqGetWritePointer()
	if err != nil {
		return &hal.Err{Op: "AcqGetWritePointer", Err: err}
	}

	var previous int64 = -1

	for e.running.Load() {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		wp, err := e.board.AcqGetWritePointer()
		if err != nil {
			return &hal.Err{Op: "AcqGetWritePointer", Err: err}
		}

		available := distance(wpOld, wp, hal.HWRing) - 1
		if available <= 0 {
			time.Sleep(100 * time.Microsecond)
			continue
		}

		if err := e.drain(wpOld, available); err != nil {
			return err
		}
		wpOld = wp

		current := e.ring.CurrentFrame()
		if current > previous {
			if current-previous > 1 {
				rflog.Logger.Warn("frame(s) lost between polls", "previous", previous, "current", current)
				if e.trace != nil {
					fmt.Fprintf(e.trace, "frame-lost previous=%d current=%d\n", previous, current)
				}
			}
			// Invoke exactly once for every frame that completed since the
			// last poll, oldest first.
			for f := previous + 1; f <= current; f++ {
				e.seq.OnFrameComplete(f)
			}
			previous = current
		}
	}
	return nil
}

// drain reads `available` hardware-ring samples starting at hwPos, split
// across at most two extents at the hardware ring's wrap point, and appends
// them to the memory ring for both channels.
func (e *Engine) drain(hwPos uint32, available int) error {
	size1 := available
	wrapAt := int(hal.HWRing - hwPos)
	if size1 > wrapAt {
		size1 = wrapAt
	}
	size2 := available - size1

	if err := e.readBoth(&e.measBuf, hal.ChannelMeasurement, hwPos, size1, size2); err != nil {
		return err
	}
	if err := e.readBoth(&e.refBuf, hal.ChannelReference, hwPos, size1, size2); err != nil {
		return err
	}
	// Append copies into the ring's own storage, so measBuf/refBuf are free
	// to be overwritten on the next poll.
	return e.ring.Append(e.measBuf, e.refBuf)
}

// readBoth fills *buf with size1+size2 samples for ch, reusing the backing
// array across calls instead of allocating one every poll.
func (e *Engine) readBoth(buf *[]int16, ch hal.Channel, hwPos uint32, size1, size2 int) error {
	total := size1 + size2
	if cap(*buf) < total {
		*buf = make([]int16, total)
	} else {
		*buf = (*buf)[:total]
	}

	part1, err := e.board.AcqReadRaw(ch, hwPos, size1)
	if err != nil {
		return &hal.Err{Op: "AcqReadRaw", Err: err}
	}
	copy(*buf, part1)
	if size2 > 0 {
		part2, err := e.board.AcqReadRaw(ch, 0, size2)
		if err != nil {
			return &hal.Err{Op: "AcqReadRaw", Err: err}
		}
		copy((*buf)[size1:], part2)
	}
	return nil
}

func distance(a, b uint32, ring uint32) int {
	return int((b - a + ring) % ring)
}
