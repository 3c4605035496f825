package sequencer

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rfacq/internal/config"
	"rfacq/internal/hal"
	"rfacq/internal/ring"
	"rfacq/internal/txstate"
)

const n = 32 // samples_per_period

func refPeriod(amplitudeCounts, phaseDeg float64) []int16 {
	out := make([]int16, n)
	for k := 0; k < n; k++ {
		theta := 2*math.Pi*float64(k)/float64(n) + phaseDeg*math.Pi/180
		out[k] = int16(amplitudeCounts * math.Sin(theta))
	}
	return out
}

func newTestPI(cal config.Calibration) (*PI, *ring.Ring, *hal.Sim) {
	r := ring.New(n, n, 64) // periods_per_frame=1, frame == period
	board := hal.NewSim()
	tx := txstate.New(0, 0)
	p := NewPI(r, board, tx, cal, n, n)
	return p, r, board
}

// TestPILocksOnExactSetpoint confirms the controller enters LOCKED without
// any HAL write when the reference channel already matches the setpoint.
func TestPILocksOnExactSetpoint(t *testing.T) {
	cal := config.Defaults()
	p, r, _ := newTestPI(cal)

	// Per-sample amplitude in counts that maps to exactly target_amp_v via
	// int_to_volt: the correlation magnitude sqrt(a^2+b^2) of an N-sample sine
	// of per-sample amplitude C is C*N/2, not C, so C must be scaled down by
	// N/2 to land the recovered amplitude on the setpoint. Phase exactly at
	// target_phase_deg=0; atan2(a,b) with b (the sine correlation) dominant
	// at phase 0 reproduces phi=0.
	targetCounts := cal.TargetAmpV / cal.IntToVolt / (float64(n) / 2)
	samples := refPeriod(targetCounts, cal.TargetPhaseDeg)
	require.NoError(t, r.Append(make([]int16, n), samples))

	p.correct(0)
	assert.Equal(t, Locked, p.State())
}

// TestPICorrectsOutOfBandSignal exercises the correction path: an
// off-target reference drives the controller to SEARCHING and issues a
// gen_set_amp/gen_set_waveform pair.
func TestPICorrectsOutOfBandSignal(t *testing.T) {
	cal := config.Defaults()
	p, r, _ := newTestPI(cal)

	offTargetCounts := (0.3) / cal.IntToVolt / (float64(n) / 2)
	samples := refPeriod(offTargetCounts, 10)
	require.NoError(t, r.Append(make([]int16, n), samples))

	p.correct(0)
	assert.Equal(t, Searching, p.State())

	amp, phase := func() (float64, float64) {
		p.mu.Lock()
		defer p.mu.Unlock()
		return p.esum, p.epsum
	}()
	assert.NotZero(t, amp)
	assert.NotZero(t, phase)
}

// TestOnFrameCompleteDoesNotBlockOnSlowRun checks OnFrameComplete returns
// immediately even before a Run goroutine has picked up the previous frame,
// and that Run still eventually processes the newest one.
func TestOnFrameCompleteDoesNotBlockOnSlowRun(t *testing.T) {
	cal := config.Defaults()
	p, r, _ := newTestPI(cal)

	targetCounts := cal.TargetAmpV / cal.IntToVolt / (float64(n) / 2)
	samples := refPeriod(targetCounts, cal.TargetPhaseDeg)
	require.NoError(t, r.Append(make([]int16, n), samples))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan struct{})
	go func() {
		p.Run(ctx)
		close(done)
	}()

	// Two back-to-back calls must not block the acquisition hot loop even
	// though only one frame index can be in flight at a time.
	p.OnFrameComplete(0)
	p.OnFrameComplete(0)

	require.Eventually(t, func() bool {
		return p.State() == Locked
	}, time.Second, time.Millisecond)

	cancel()
	<-done
}

// TestAtan2ConventionPinned pins the swapped atan2(a, b) argument order so a
// future cleanup pass doesn't silently "fix" it to atan2(b, a).
func TestAtan2ConventionPinned(t *testing.T) {
	cal := config.Defaults()
	p, r, _ := newTestPI(cal)

	// A reference at phase 90 degrees is a pure cosine, so a = C*N/2 and
	// b = 0: atan2(a, b) reads +90 degrees, atan2(b, a) would read 0. The
	// first correction leaves epsum = target_phase_deg - phi.
	counts := cal.TargetAmpV / cal.IntToVolt / (float64(n) / 2)
	require.NoError(t, r.Append(make([]int16, n), refPeriod(counts, 90)))

	p.correct(0)
	p.mu.Lock()
	got := cal.TargetPhaseDeg - p.epsum
	p.mu.Unlock()
	assert.InDelta(t, 90.0, got, 0.01)
}
