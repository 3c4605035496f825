package sequencer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rfacq/internal/hal"
)

// TestFeedForwardCyclesTable checks a periods_per_frame=4, num_ff_channels=2
// table writes AO[0] in order 0, 0.25, 0.5, 0.75, 0, 0.25, ... across 10
// frames.
func TestFeedForwardCyclesTable(t *testing.T) {
	board := hal.NewSim()
	table := []float32{
		0.0, 0.0,
		0.25, 0.5,
		0.5, 1.0,
		0.75, 1.5,
	}
	ff := NewFeedForward(board, table, 4, 2)

	want := []float64{0, 0.25, 0.5, 0.75, 0, 0.25, 0.5, 0.75, 0, 0.25}
	for f := int64(0); f < 10; f++ {
		ff.OnFrameComplete(f)
		got := board.AOValue(0)
		require.InDelta(t, want[f], got, 1e-9, "frame %d", f)
	}
	assert.InDelta(t, 0.5, board.AOValue(1), 1e-9)
}
