package session

import (
	"context"
	"encoding/binary"
	"fmt"
	"net"
	"sync/atomic"
	"syscall"

	"github.com/brutella/dnssd"
	"golang.org/x/sys/unix"

	"rfacq/internal/acquisition"
	"rfacq/internal/config"
	"rfacq/internal/hal"
	"rfacq/internal/ring"
	"rfacq/internal/rflog"
	"rfacq/internal/sequencer"
	"rfacq/internal/txstate"
)

// Server owns the accept loop: one session at a time.
type Server struct {
	Listen       string
	Board        hal.Board
	TriggerPin   int
	Calibration  config.Calibration
	AnnounceMDNS bool

	// DataDir, if set, receives one lost-frame/lock-transition trace file per
	// session (rflog.CaptureFile). Empty disables capture.
	DataDir string
}

// ListenAndServe binds Listen with SO_REUSEADDR and runs sessions one after
// another until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context) error {
	lc := net.ListenConfig{Control: setReuseAddr}
	ln, err := lc.Listen(ctx, "tcp", s.Listen)
	if err != nil {
		return fmt.Errorf("session: listen %s: %w", s.Listen, err)
	}
	defer ln.Close()

	if s.AnnounceMDNS {
		if err := s.announce(ctx, ln); err != nil {
			rflog.Logger.Warn("mDNS announcement failed", "err", err)
		}
	}

	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("session: accept: %w", err)
		}
		s.runSession(ctx, conn)
	}
}

// setReuseAddr sets SO_REUSEADDR on the listening socket via its raw file
// descriptor, so a restarted process can rebind the port immediately.
func setReuseAddr(network, address string, c syscall.RawConn) error {
	var sockErr error
	err := c.Control(func(fd uintptr) {
		sockErr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEADDR, 1)
	})
	if err != nil {
		return err
	}
	return sockErr
}

func (s *Server) announce(ctx context.Context, ln net.Listener) error {
	addr, ok := ln.Addr().(*net.TCPAddr)
	if !ok {
		return fmt.Errorf("unexpected listener address type")
	}
	cfg := dnssd.Config{
		Name: "rfacqd",
		Type: "_rfacq._tcp",
		Port: addr.Port,
	}
	sv, err := dnssd.NewService(cfg)
	if err != nil {
		return err
	}
	rp, err := dnssd.NewResponder()
	if err != nil {
		return err
	}
	if _, err := rp.Add(sv); err != nil {
		return err
	}
	go rp.Respond(ctx)
	return nil
}

// runSession drives one client connection end to end: handshake, setup,
// command loop, teardown. Any session-fatal error closes the socket and
// returns control to the accept loop.
func (s *Server) runSession(ctx context.Context, conn net.Conn) {
	defer conn.Close()

	params, err := readHandshake(conn)
	if err != nil {
		rflog.Logger.Error("handshake failed", "err", err)
		return
	}

	trace, err := rflog.CaptureFile(s.DataDir)
	if err != nil {
		rflog.Logger.Warn("could not open session trace file", "err", err)
	}
	if trace != nil {
		defer trace.Close()
	}

	frameSize := params.SamplesPerPeriod * params.PeriodsPerFrame
	framesInMemory := (64 * 1024 * 1024) / frameSize / 2
	if framesInMemory < 1 {
		framesInMemory = 1
	}
	r := ring.New(params.SamplesPerPeriod, frameSize, framesInMemory)
	tx := txstate.New(0, 0)

	if params.TxEnabled {
		decimation := 64
		txBufSize := decimation * params.SamplesPerTxPeriod
		carrierHz := 125e6 / float64(decimation) / 256
		if err := s.Board.GenReset(); err != nil {
			rflog.Logger.Error("gen reset failed", "err", err)
			return
		}
		buf := make([]float32, txBufSize)
		if err := s.Board.GenSetWaveform(buf); err != nil {
			rflog.Logger.Error("gen set waveform failed", "err", err)
			return
		}
		if err := s.Board.GenSetFreq(carrierHz); err != nil {
			rflog.Logger.Error("gen set freq failed", "err", err)
			return
		}
		if err := s.Board.GenEnable(); err != nil {
			rflog.Logger.Error("gen enable failed", "err", err)
			return
		}
	}

	var seq sequencer.Sequencer
	var piSeq *sequencer.PI
	switch {
	case params.FFEnabled:
		seq = sequencer.NewFeedForward(s.Board, params.FFTable, params.PeriodsPerFrame, params.NumFFChannels)
	default:
		txBufSize := 64 * params.SamplesPerTxPeriod
		piSeq = sequencer.NewPI(r, s.Board, tx, s.Calibration, params.SamplesPerPeriod, txBufSize)
		if trace != nil {
			piSeq.SetTrace(trace)
		}
		seq = piSeq
	}

	var running atomic.Bool
	running.Store(true)

	acqParams := acquisition.Params{
		SamplesPerPeriod: params.SamplesPerPeriod,
		TriggerPin:       s.TriggerPin,
		Decimation:       64,
		TriggerDelay:     0,
	}
	engine := acquisition.New(s.Board, r, seq, acqParams, &running)
	if trace != nil {
		engine.SetTrace(trace)
	}

	sessionCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	acqErr := make(chan error, 1)
	go func() { acqErr <- engine.Run(sessionCtx) }()

	var piDone chan struct{}
	if piSeq != nil {
		piDone = make(chan struct{})
		go func() {
			piSeq.Run(sessionCtx)
			close(piDone)
		}()
	}

	s.commandLoop(conn, r, tx, piSeq)

	running.Store(false)
	cancel()
	<-acqErr
	if piDone != nil {
		<-piDone
	}

	if params.TxEnabled {
		if err := s.Board.GenDisable(); err != nil {
			rflog.Logger.Warn("gen disable failed", "err", err)
		}
	}
	if err := s.Board.AcqStop(); err != nil {
		rflog.Logger.Warn("acq stop failed", "err", err)
	}
}

// commandLoop services the four-command table until the socket closes, a
// short read/write occurs, or an unknown command code is seen.
func (s *Server) commandLoop(conn net.Conn, r *ring.Ring, tx *txstate.TxState, pi *sequencer.PI) {
	for {
		code, err := readCommandCode(conn)
		if err != nil {
			return
		}
		switch code {
		case CmdQueryLock:
			searching := int32(0)
			if pi != nil && pi.State() == sequencer.Searching {
				searching = 1
			}
			if err := binary.Write(conn, binary.LittleEndian, searching); err != nil {
				return
			}
		case CmdCurrentFrame:
			if err := binary.Write(conn, binary.LittleEndian, r.CurrentFrame()); err != nil {
				return
			}
		case CmdReadFrames:
			var req readFramesRequest
			if err := binary.Read(conn, binary.LittleEndian, &req); err != nil {
				return
			}
			if req.NumFrames == 0 {
				continue
			}
			ch := ring.Measurement
			if req.Channel == int64(ring.Reference) {
				ch = ring.Reference
			}
			data, err := r.ReadFrames(req.Frame, req.NumFrames, ch)
			if err != nil {
				return
			}
			if err := binary.Write(conn, binary.LittleEndian, data); err != nil {
				return
			}
		case CmdUpdateTx:
			var req updateTxRequest
			if err := binary.Read(conn, binary.LittleEndian, &req); err != nil {
				return
			}
			tx.Set(req.Amplitude, req.PhaseDeg)
			if err := s.Board.GenSetAmp(req.Amplitude); err != nil {
				rflog.Logger.Warn("gen_set_amp failed", "err", err)
			}
			if err := s.Board.GenSetPhaseDeg(req.PhaseDeg); err != nil {
				rflog.Logger.Warn("gen_set_phase_deg failed", "err", err)
			}
		default:
			// Unknown command: graceful shutdown, not a protocol fault that
			// propagates an error.
			return
		}
	}
}
