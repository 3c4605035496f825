package sequencer

import (
	"context"
	"fmt"
	"io"
	"math"
	"sync"
	"time"

	"rfacq/internal/config"
	"rfacq/internal/hal"
	"rfacq/internal/ring"
	"rfacq/internal/rflog"
	"rfacq/internal/txstate"
)

// LockState is the PI controller's two-state machine.
type LockState int

const (
	Searching LockState = iota
	Locked
)

// PI is the reference-channel lock-in controller: it correlates the
// reference channel against precomputed sin/cos lookup tables once per
// completed frame, over that frame's last period, and feeds the
// amplitude/phase error into two independent
// PI loops driving the transmit amplitude and phase.
type PI struct {
	ring             *ring.Ring
	board            hal.Board
	tx               *txstate.TxState
	cal              config.Calibration
	samplesPerPeriod int
	txBufSize        int

	cosTab, sinTab []float64
	txBuf          []float32

	mu    sync.Mutex
	state LockState
	esum  float64
	epsum float64
	trace io.Writer

	frames chan int64
}

// SetTrace attaches an optional per-session diagnostic trace sink (see
// rflog.CaptureFile); lock/search transitions are appended to it in addition
// to the ambient logger. A nil writer (the default) disables this.
func (p *PI) SetTrace(w io.Writer) { p.trace = w }

// NewPI builds a PI sequencer. txBufSize is the length of the arbitrary
// waveform buffer rebuilt on every correction.
func NewPI(r *ring.Ring, board hal.Board, tx *txstate.TxState, cal config.Calibration, samplesPerPeriod, txBufSize int) *PI {
	p := &PI{
		ring:             r,
		board:            board,
		tx:               tx,
		cal:              cal,
		samplesPerPeriod: samplesPerPeriod,
		txBufSize:        txBufSize,
		cosTab:           make([]float64, samplesPerPeriod),
		sinTab:           make([]float64, samplesPerPeriod),
		txBuf:            make([]float32, txBufSize),
		state:            Searching,
		frames:           make(chan int64, 1),
	}
	for k := 0; k < samplesPerPeriod; k++ {
		theta := 2 * math.Pi * float64(k) / float64(samplesPerPeriod)
		p.cosTab[k] = math.Cos(theta)
		p.sinTab[k] = math.Sin(theta)
	}
	return p
}

// State returns the controller's current lock state, for command 0.
func (p *PI) State() LockState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Run drains frame-complete notifications and performs the lock-in
// correction on its own goroutine, so the settle sleep after each generator
// write never stalls the acquisition hot loop that feeds OnFrameComplete.
// It returns when ctx is cancelled.
func (p *PI) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case frameIdx := <-p.frames:
			p.correct(frameIdx)
		}
	}
}

// OnFrameComplete is called from the acquisition hot loop; it only hands the
// newest completed frame index to the goroutine started by Run and never
// blocks. If Run is still correcting a previous frame when a new one
// arrives, the stale index is replaced rather than queued, since only the
// most recent reference period matters.
func (p *PI) OnFrameComplete(frameIdx int64) {
	select {
	case p.frames <- frameIdx:
		return
	default:
	}
	select {
	case <-p.frames:
	default:
	}
	select {
	case p.frames <- frameIdx:
	default:
	}
}

// correct re-locks transmit amplitude/phase using the most recently
// completed period of the reference channel.
func (p *PI) correct(frameIdx int64) {
	samples, err := p.ring.LastPeriod(frameIdx, p.samplesPerPeriod, ring.Reference)
	if err != nil {
		rflog.Logger.Warn("PI sequencer: could not read reference period", "frame", frameIdx, "err", err)
		return
	}

	var a, b float64
	for k, s := range samples {
		a += float64(s) * p.cosTab[k]
		b += float64(s) * p.sinTab[k]
	}

	amplitude := math.Sqrt(a*a + b*b)
	amplitudeV := amplitude * p.cal.IntToVolt
	// Argument order is swapped relative to the usual atan2(y, x); this
	// selects the cosine-leading phase convention the rest of the protocol
	// expects and must not be "corrected" to atan2(b, a).
	phaseDeg := math.Atan2(a, b) * 180 / math.Pi

	e := p.cal.TargetAmpV - amplitudeV
	ep := p.cal.TargetPhaseDeg - phaseDeg

	p.mu.Lock()
	inBand := math.Abs(e)/p.cal.TargetAmpV <= p.cal.EpsAmplitude && math.Abs(ep) <= p.cal.EpsPhase
	prev := p.state
	if inBand {
		p.state = Locked
		p.mu.Unlock()
		if prev != Locked && p.trace != nil {
			fmt.Fprintf(p.trace, "locked frame=%d amp_v=%.6f phase_deg=%.3f\n", frameIdx, amplitudeV, phaseDeg)
		}
		return
	}
	p.state = Searching
	if prev == Locked && p.trace != nil {
		fmt.Fprintf(p.trace, "lock-lost frame=%d amp_v=%.6f phase_deg=%.3f\n", frameIdx, amplitudeV, phaseDeg)
	}

	ampTx := p.cal.KP*e + p.cal.KI*p.esum
	p.esum += e

	phaseTx := p.cal.KPPhase*ep + p.cal.KIPhase*p.epsum
	p.epsum += ep

	// phase_tx wraps (folds back into range); epsum below clamps (saturates)
	// instead, which is deliberately a different shape of correction.
	for phaseTx > 180 {
		phaseTx -= 360
	}
	for phaseTx < -180 {
		phaseTx += 360
	}
	// Anti-windup: bound epsum using the phase loop's own integral gain so
	// the clamp and the wrap threshold above stay consistent with each other.
	clampBound := 180 / p.cal.KIPhase
	if p.epsum > clampBound {
		p.epsum = clampBound
	}
	if p.epsum < -clampBound {
		p.epsum = -clampBound
	}
	p.mu.Unlock()

	p.tx.Set(ampTx, phaseTx)

	if err := p.board.GenSetAmp(ampTx); err != nil {
		rflog.Logger.Error("PI sequencer: gen_set_amp failed", "err", err)
		return
	}
	for i := range p.txBuf {
		p.txBuf[i] = float32(math.Sin(2*math.Pi/float64(p.txBufSize)*float64(i) + phaseTx/180*math.Pi))
	}
	if err := p.board.GenSetWaveform(p.txBuf); err != nil {
		rflog.Logger.Error("PI sequencer: gen_set_waveform failed", "err", err)
		return
	}
	time.Sleep(5 * time.Millisecond)
}
