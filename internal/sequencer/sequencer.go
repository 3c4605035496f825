// Package sequencer implements the two frame-boundary side-effect variants:
// feed-forward AO table playback and the PI reference-channel lock.
// Exactly one variant runs per session.
package sequencer

// Sequencer is invoked once per newly-completed frame by the acquisition
// engine.
type Sequencer interface {
	OnFrameComplete(frameIdx int64)
}
