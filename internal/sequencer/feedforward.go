package sequencer

import (
	"rfacq/internal/hal"
	"rfacq/internal/rflog"
)

// FeedForward writes a dense table of precomputed DC levels to the analog
// outputs once per frame, cycling through periods_per_frame rows.
type FeedForward struct {
	board          hal.Board
	table          []float32 // dense periodsPerFrame x numFFChannels, row-major
	periodsPerFrame int
	numFFChannels   int
}

// NewFeedForward constructs a FeedForward sequencer. table must have exactly
// periodsPerFrame*numFFChannels entries.
func NewFeedForward(board hal.Board, table []float32, periodsPerFrame, numFFChannels int) *FeedForward {
	return &FeedForward{board: board, table: table, periodsPerFrame: periodsPerFrame, numFFChannels: numFFChannels}
}

// OnFrameComplete writes ff_table[step*numFFChannels+i] to AO[i] for every
// configured channel. AO write errors are logged and swallowed:
// retrying past the frame boundary would land the value a period late,
// which is worse than skipping it.
func (f *FeedForward) OnFrameComplete(frameIdx int64) {
	if f.periodsPerFrame <= 0 {
		return
	}
	step := int(frameIdx % int64(f.periodsPerFrame))
	for i := 0; i < f.numFFChannels; i++ {
		v := f.table[step*f.numFFChannels+i]
		if err := f.board.AoSet(i, float64(v)); err != nil {
			rflog.Logger.Warn("feed-forward AO write failed", "channel", i, "frame", frameIdx, "err", err)
		}
	}
}
