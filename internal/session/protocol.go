// Package session implements the TCP session server: handshake decode and
// the four-command dispatch loop, one client at a time.
package session

import (
	"encoding/binary"
	"fmt"
	"io"
)

// handshakeWire is the exact on-wire layout of the handshake record.
type handshakeWire struct {
	SamplesPerPeriod   uint32
	SamplesPerTxPeriod uint32
	PeriodsPerFrame    uint32
	NumFFChannels      uint32
	TxEnabled          uint8
	FFEnabled          uint8
	IsMaster           uint8
	Padding            uint8
}

// Params is the decoded, Go-friendly form of SessionParams.
type Params struct {
	SamplesPerPeriod   int
	SamplesPerTxPeriod int
	PeriodsPerFrame    int
	NumFFChannels      int
	TxEnabled          bool
	FFEnabled          bool
	IsMaster           bool // decoded but unused; reserved for a future master/slave board pairing
	FFTable            []float32
}

// readHandshake decodes the fixed handshake record and, if FFEnabled, the
// FF table that immediately follows it.
func readHandshake(r io.Reader) (Params, error) {
	var w handshakeWire
	if err := binary.Read(r, binary.LittleEndian, &w); err != nil {
		return Params{}, &SocketError{Op: "read handshake", Err: err}
	}
	if w.SamplesPerPeriod == 0 || w.PeriodsPerFrame == 0 {
		return Params{}, &ProtocolError{Reason: "samples_per_period/periods_per_frame must be > 0"}
	}

	p := Params{
		SamplesPerPeriod:   int(w.SamplesPerPeriod),
		SamplesPerTxPeriod: int(w.SamplesPerTxPeriod),
		PeriodsPerFrame:    int(w.PeriodsPerFrame),
		NumFFChannels:      int(w.NumFFChannels),
		TxEnabled:          w.TxEnabled != 0,
		FFEnabled:          w.FFEnabled != 0,
		IsMaster:           w.IsMaster != 0,
	}

	if p.FFEnabled {
		n := p.NumFFChannels * p.PeriodsPerFrame
		table := make([]float32, n)
		if err := binary.Read(r, binary.LittleEndian, &table); err != nil {
			return Params{}, &SocketError{Op: "read FF table", Err: err}
		}
		p.FFTable = table
	}

	return p, nil
}

// writeHandshake encodes Params back to wire form; used only by tests to
// confirm round-trip identity.
func writeHandshake(w io.Writer, p Params) error {
	hw := handshakeWire{
		SamplesPerPeriod:   uint32(p.SamplesPerPeriod),
		SamplesPerTxPeriod: uint32(p.SamplesPerTxPeriod),
		PeriodsPerFrame:    uint32(p.PeriodsPerFrame),
		NumFFChannels:      uint32(p.NumFFChannels),
	}
	if p.TxEnabled {
		hw.TxEnabled = 1
	}
	if p.FFEnabled {
		hw.FFEnabled = 1
	}
	if p.IsMaster {
		hw.IsMaster = 1
	}
	if err := binary.Write(w, binary.LittleEndian, &hw); err != nil {
		return err
	}
	if p.FFEnabled {
		if err := binary.Write(w, binary.LittleEndian, p.FFTable); err != nil {
			return err
		}
	}
	return nil
}

// Command codes.
const (
	CmdQueryLock    int32 = 0
	CmdCurrentFrame int32 = 1
	CmdReadFrames   int32 = 2
	CmdUpdateTx     int32 = 3
)

type readFramesRequest struct {
	Frame     int64
	NumFrames int64
	_         int64
	Channel   int64
}

type updateTxRequest struct {
	Amplitude float64
	PhaseDeg  float64
}

func readCommandCode(r io.Reader) (int32, error) {
	var code int32
	if err := binary.Read(r, binary.LittleEndian, &code); err != nil {
		return 0, &SocketError{Op: "read command code", Err: err}
	}
	return code, nil
}

// SocketError wraps any short read/write or peer reset.
type SocketError struct {
	Op  string
	Err error
}

func (e *SocketError) Error() string { return fmt.Sprintf("session: socket error during %s: %v", e.Op, e.Err) }
func (e *SocketError) Unwrap() error { return e.Err }

// ProtocolError marks a handshake record with invalid values (zero
// samples_per_period or periods_per_frame). An unknown command code does not
// produce one: the command loop simply returns, which ends the session the
// same way a deliberate teardown does.
type ProtocolError struct {
	Reason string
}

func (e *ProtocolError) Error() string { return "session: protocol error: " + e.Reason }
