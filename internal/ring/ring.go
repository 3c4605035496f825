// Package ring implements the dual in-memory sample ring the acquisition
// engine writes into and the session server reads from: two parallel
// fixed-capacity arrays with a monotonic append cursor and no allocation
// after construction.
package ring

import (
	"errors"
	"fmt"
	"sync/atomic"
)

// Channel selects which of the two parallel arrays an operation targets.
type Channel int

const (
	Measurement Channel = iota
	Reference
)

// ErrStale is returned by ReadFrames when the requested frame has already
// been overwritten by the producer.
var ErrStale = errors.New("ring: requested frame has been overwritten")

// Ring owns two parallel int16 arrays and the monotonic sample counter.
// Capacity is fixed at construction; the ring never allocates again after
// that.
type Ring struct {
	meas, ref      []int16
	samplesPerUnit int // samples_per_period, stored but not read by any method
	frameSize      int // samples_per_period * periods_per_frame; the addressing unit
	capacity       int // total samples per channel, a multiple of frameSize
	samplesWritten atomic.Uint64
}

// New allocates a ring sized for framesInMemory frames of frameSize samples
// each. samplesPerPeriod is stored but no method reads it; it does not affect
// storage layout.
func New(samplesPerPeriod, frameSize, framesInMemory int) *Ring {
	capacity := frameSize * framesInMemory
	return &Ring{
		meas:           make([]int16, capacity),
		ref:            make([]int16, capacity),
		samplesPerUnit: samplesPerPeriod,
		frameSize:      frameSize,
		capacity:       capacity,
	}
}

// Capacity returns the ring's size in samples per channel.
func (r *Ring) Capacity() int { return r.capacity }

// FrameSize returns the frame addressing unit in samples.
func (r *Ring) FrameSize() int { return r.frameSize }

// SamplesWritten returns the monotonic publication counter.
func (r *Ring) SamplesWritten() uint64 { return r.samplesWritten.Load() }

// CurrentFrame returns the index of the latest fully-written frame, or -1 if
// fewer than frameSize samples have been written yet.
func (r *Ring) CurrentFrame() int64 {
	written := r.samplesWritten.Load()
	if written < uint64(r.frameSize) {
		return -1
	}
	return int64(written/uint64(r.frameSize)) - 1
}

// Append writes meas and ref (equal length, no longer than Capacity) starting
// at the ring's current tail, splitting across the wrap point into at most
// two contiguous extents if necessary, and publishes the new
// samples_written. The caller is responsible for never appending more
// samples in one call than fit before lapping unread data it still needs.
func (r *Ring) Append(meas, ref []int16) error {
	if len(meas) != len(ref) {
		return fmt.Errorf("ring: append: channel length mismatch (%d vs %d)", len(meas), len(ref))
	}
	n := len(meas)
	if n == 0 {
		return nil
	}
	if n > r.capacity {
		return fmt.Errorf("ring: append: %d samples exceeds capacity %d", n, r.capacity)
	}

	start := int(r.samplesWritten.Load() % uint64(r.capacity))
	first := r.capacity - start
	if first > n {
		first = n
	}
	copy(r.meas[start:start+first], meas[:first])
	copy(r.ref[start:start+first], ref[:first])
	if first < n {
		rest := n - first
		copy(r.meas[0:rest], meas[first:])
		copy(r.ref[0:rest], ref[first:])
	}

	r.samplesWritten.Add(uint64(n))
	return nil
}

// ReadFrames copies count*FrameSize() samples per channel starting at frame
// index frameIdx, wrapping transparently, and returns ErrStale if any of the
// requested range has already been overwritten by the producer.
func (r *Ring) ReadFrames(frameIdx, count int64, ch Channel) ([]int16, error) {
	if count == 0 {
		return nil, nil
	}
	if count < 0 || frameIdx < 0 {
		return nil, fmt.Errorf("ring: read_frames: negative frame_idx/count")
	}

	current := r.CurrentFrame()
	if current < 0 {
		return nil, ErrStale
	}
	// Samples before samples_written - capacity have been overwritten, so a
	// frame starting before that point is at least partly lost.
	startSample := frameIdx * int64(r.frameSize)
	oldestSample := int64(r.samplesWritten.Load()) - int64(r.capacity)
	lastRequested := frameIdx + count - 1
	if startSample < oldestSample || lastRequested > current {
		return nil, ErrStale
	}

	n := int(count) * r.frameSize
	start := int(startSample % int64(r.capacity))

	src := r.meas
	if ch == Reference {
		src = r.ref
	}

	out := make([]int16, n)
	first := r.capacity - start
	if first > n {
		first = n
	}
	copy(out[:first], src[start:start+first])
	if first < n {
		copy(out[first:], src[0:n-first])
	}

	// Re-check staleness after the copy: a producer could have lapped the
	// range while we were reading it, so a torn read is reported as an error
	// rather than returned silently.
	if startSample < int64(r.samplesWritten.Load())-int64(r.capacity) {
		return nil, ErrStale
	}

	return out, nil
}

// LastPeriod copies the most recent samplesPerPeriod samples of channel ch
// that were written as part of frame frameIdx (i.e. the period immediately
// preceding that frame's boundary), for the PI sequencer's per-frame
// correlation. Returns ErrStale on the same terms as ReadFrames.
func (r *Ring) LastPeriod(frameIdx int64, samplesPerPeriod int, ch Channel) ([]int16, error) {
	if frameIdx < 0 || samplesPerPeriod <= 0 {
		return nil, fmt.Errorf("ring: last_period: invalid arguments")
	}
	endSample := (frameIdx + 1) * int64(r.frameSize)
	startSample := endSample - int64(samplesPerPeriod)
	if startSample < 0 {
		return nil, ErrStale
	}

	written := int64(r.samplesWritten.Load())
	oldestAvailable := written - int64(r.capacity)
	if oldestAvailable < 0 {
		oldestAvailable = 0
	}
	if startSample < oldestAvailable || endSample > written {
		return nil, ErrStale
	}

	start := int(startSample % int64(r.capacity))
	n := samplesPerPeriod
	src := r.meas
	if ch == Reference {
		src = r.ref
	}
	out := make([]int16, n)
	first := r.capacity - start
	if first > n {
		first = n
	}
	copy(out[:first], src[start:start+first])
	if first < n {
		copy(out[first:], src[0:n-first])
	}

	writtenAfter := int64(r.samplesWritten.Load())
	oldestAfter := writtenAfter - int64(r.capacity)
	if oldestAfter < 0 {
		oldestAfter = 0
	}
	if startSample < oldestAfter {
		return nil, ErrStale
	}
	return out, nil
}
