package session

import (
	"encoding/binary"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rfacq/internal/hal"
	"rfacq/internal/ring"
	"rfacq/internal/txstate"
)

func makeIdentifiable(n int, offset int16) []int16 {
	out := make([]int16, n)
	for i := range out {
		out[i] = offset + int16(i)
	}
	return out
}

// TestCommandLoopReadFrames checks command 2 returns the requested frame
// range byte-for-byte and wraps transparently.
func TestCommandLoopReadFrames(t *testing.T) {
	r := ring.New(4, 4, 3)
	for f := 0; f < 5; f++ {
		require.NoError(t, r.Append(makeIdentifiable(4, int16(f*100)), makeIdentifiable(4, int16(f*100+10000))))
	}

	client, serverConn := net.Pipe()
	defer client.Close()

	srv := &Server{Board: hal.NewSim()}
	tx := txstate.New(0, 0)

	done := make(chan struct{})
	go func() {
		srv.commandLoop(serverConn, r, tx, nil)
		close(done)
	}()

	require.NoError(t, binary.Write(client, binary.LittleEndian, CmdReadFrames))
	req := readFramesRequest{Frame: 3, NumFrames: 2, Channel: int64(ring.Reference)}
	require.NoError(t, binary.Write(client, binary.LittleEndian, req))

	want := append(makeIdentifiable(4, 3*100+10000), makeIdentifiable(4, 4*100+10000)...)
	got := make([]int16, 8)
	require.NoError(t, binary.Read(client, binary.LittleEndian, &got))
	assert.Equal(t, want, got)

	// Unknown command code ends the session gracefully.
	require.NoError(t, binary.Write(client, binary.LittleEndian, int32(0xFF)))
	<-done
}

// TestCommandLoopUpdateTx checks command 3 updates TxState and pushes the
// new amplitude/phase to the generator.
func TestCommandLoopUpdateTx(t *testing.T) {
	r := ring.New(4, 4, 3)
	require.NoError(t, r.Append(makeIdentifiable(4, 0), makeIdentifiable(4, 0)))

	client, serverConn := net.Pipe()
	defer client.Close()

	board := hal.NewSim()
	srv := &Server{Board: board}
	tx := txstate.New(0, 0)

	done := make(chan struct{})
	go func() {
		srv.commandLoop(serverConn, r, tx, nil)
		close(done)
	}()

	require.NoError(t, binary.Write(client, binary.LittleEndian, CmdUpdateTx))
	require.NoError(t, binary.Write(client, binary.LittleEndian, updateTxRequest{Amplitude: 0.2, PhaseDeg: 45}))
	require.NoError(t, binary.Write(client, binary.LittleEndian, int32(0xFF)))
	<-done

	amp, phase := tx.Get()
	assert.Equal(t, 0.2, amp)
	assert.Equal(t, 45.0, phase)
	assert.Equal(t, 0.2, board.GenAmp())
	assert.Equal(t, 45.0, board.GenPhaseDeg())
}
