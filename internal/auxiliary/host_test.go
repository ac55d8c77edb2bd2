package auxiliary

import (
	"encoding/json"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// The host bridge is exercised over in-memory pipes: same wire protocol as
// the real subprocess, no child binary required.
func TestRunHostBridgesQueuePair(t *testing.T) {
	inR, inW := io.Pipe()
	outR, outW := io.Pipe()

	h := &mockHandler{}
	hostDone := make(chan error, 1)
	go func() {
		hostDone <- RunHost("dut", h, inR, outW)
	}()

	enc := json.NewEncoder(inW)
	dec := json.NewDecoder(outR)

	// Create.
	require.NoError(t, enc.Encode(Request{ID: "1", Op: OpCreate}))
	var rep Reply
	require.NoError(t, dec.Decode(&rep))
	assert.Equal(t, ReplyBool, rep.Kind)
	assert.True(t, rep.OK)

	// Run a command.
	require.NoError(t, enc.Encode(Request{ID: "2", Op: OpRun, Name: "ping", Data: []byte("x")}))
	require.NoError(t, dec.Decode(&rep))
	assert.Equal(t, ReplyMessage, rep.Kind)
	require.NotNil(t, rep.Report)
	assert.Equal(t, []byte("ping"), rep.Report.Payload)

	// Delete: ack flows back, then the host exits.
	require.NoError(t, enc.Encode(Request{ID: "3", Op: OpDelete}))
	require.NoError(t, dec.Decode(&rep))
	assert.Equal(t, ReplyBool, rep.Kind)
	assert.True(t, rep.OK)

	select {
	case err := <-hostDone:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("host did not exit after delete sentinel")
	}

	creates, deletes, created := h.snapshot()
	assert.Equal(t, 1, creates)
	assert.Equal(t, 1, deletes)
	assert.False(t, created)

	inW.Close()
	outR.Close()
}

// Closing the request stream without a delete sentinel must still stop the
// host (parent crash / kill path).
func TestRunHostStopsOnEOF(t *testing.T) {
	inR, inW := io.Pipe()
	outR, outW := io.Pipe()

	h := &mockHandler{}
	hostDone := make(chan error, 1)
	go func() {
		hostDone <- RunHost("dut", h, inR, outW)
	}()

	// Drain replies in the background so the pump never blocks on the pipe.
	go func() {
		dec := json.NewDecoder(outR)
		for {
			var rep Reply
			if dec.Decode(&rep) != nil {
				return
			}
		}
	}()

	enc := json.NewEncoder(inW)
	require.NoError(t, enc.Encode(Request{ID: "1", Op: OpCreate}))
	time.Sleep(50 * time.Millisecond)
	require.NoError(t, inW.Close())

	select {
	case err := <-hostDone:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("host did not exit on EOF")
	}
	outW.Close()
}
