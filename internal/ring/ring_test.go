package ring

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func makeIdentifiable(n int, offset int16) []int16 {
	out := make([]int16, n)
	for i := range out {
		out[i] = offset + int16(i)
	}
	return out
}

func TestAppendThenReadIsIdentity(t *testing.T) {
	r := New(4, 4, 3) // samples_per_period=4, periods_per_frame=1, 3 frames
	meas := makeIdentifiable(4, 100)
	ref := makeIdentifiable(4, 200)
	require.NoError(t, r.Append(meas, ref))

	got, err := r.ReadFrames(0, 1, Measurement)
	require.NoError(t, err)
	assert.Equal(t, meas, got)

	got, err = r.ReadFrames(0, 1, Reference)
	require.NoError(t, err)
	assert.Equal(t, ref, got)
}

func TestFrameFetchWithWrap(t *testing.T) {
	// samples_per_period=4, periods_per_frame=1, frames_in_memory=3.
	r := New(4, 4, 3)
	for f := 0; f < 5; f++ {
		meas := makeIdentifiable(4, int16(f*100))
		ref := makeIdentifiable(4, int16(f*100+10000))
		require.NoError(t, r.Append(meas, ref))
	}

	data, err := r.ReadFrames(3, 2, Reference)
	require.NoError(t, err)

	expected := append(makeIdentifiable(4, 3*100+10000), makeIdentifiable(4, 4*100+10000)...)
	assert.Equal(t, expected, data)
}

func TestStaleReadRejected(t *testing.T) {
	// Same sizing, feed 6 frames, request frame=0 -> stale.
	r := New(4, 4, 3)
	for f := 0; f < 6; f++ {
		require.NoError(t, r.Append(makeIdentifiable(4, 0), makeIdentifiable(4, 0)))
	}
	_, err := r.ReadFrames(0, 1, Measurement)
	assert.ErrorIs(t, err, ErrStale)
}

func TestEmptyRequestReturnsNoBytes(t *testing.T) {
	r := New(4, 4, 3)
	require.NoError(t, r.Append(makeIdentifiable(4, 0), makeIdentifiable(4, 0)))
	data, err := r.ReadFrames(0, 0, Measurement)
	require.NoError(t, err)
	assert.Empty(t, data)
}

func TestCurrentFrameBeforeAnyWrite(t *testing.T) {
	r := New(4, 4, 3)
	assert.Equal(t, int64(-1), r.CurrentFrame())
}

func TestCurrentFrameFormula(t *testing.T) {
	r := New(4, 8, 3) // frame = 2 periods of 4 samples each
	require.NoError(t, r.Append(makeIdentifiable(8, 0), makeIdentifiable(8, 0)))
	assert.Equal(t, int64(0), r.CurrentFrame())
	require.NoError(t, r.Append(makeIdentifiable(8, 0), makeIdentifiable(8, 0)))
	assert.Equal(t, int64(1), r.CurrentFrame())
}

func TestSamplesWrittenNonDecreasing(t *testing.T) {
	// samples_written must never decrease, however many times Append runs.
	rapid.Check(t, func(t *rapid.T) {
		frameSize := rapid.IntRange(1, 16).Draw(t, "frameSize")
		frames := rapid.IntRange(2, 8).Draw(t, "frames")
		r := New(frameSize, frameSize, frames)
		var last uint64
		steps := rapid.IntRange(1, 20).Draw(t, "steps")
		for i := 0; i < steps; i++ {
			require.NoError(t, r.Append(make([]int16, frameSize), make([]int16, frameSize)))
			cur := r.SamplesWritten()
			assert.GreaterOrEqual(t, cur, last)
			last = cur
		}
	})
}

func TestAppendAcrossWrapLandsAtRightOffsets(t *testing.T) {
	// Boundary: a span crossing capacity splits into two halves at the right offsets.
	r := New(4, 4, 2) // capacity = 8 samples
	require.NoError(t, r.Append(makeIdentifiable(4, 0), makeIdentifiable(4, 0)))
	require.NoError(t, r.Append(makeIdentifiable(4, 100), makeIdentifiable(4, 100)))
	// Tail is now at 8 (wrapped to 0). Next append of 4 samples starts at
	// offset 0 again, overwriting frame 0 - read frame 1 (still valid) and
	// confirm it is untouched by the wrap.
	require.NoError(t, r.Append(makeIdentifiable(4, 200), makeIdentifiable(4, 200)))
	got, err := r.ReadFrames(1, 1, Measurement)
	require.NoError(t, err)
	assert.Equal(t, makeIdentifiable(4, 100), got)
}
