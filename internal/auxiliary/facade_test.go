package auxiliary

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockHandler is a scriptable Handler for facade and worker tests.
type mockHandler struct {
	mu        sync.Mutex
	created   bool
	creates   int
	deletes   int
	aborts    int
	createErr error
	runFn     func(name string, data []byte) (*Report, error)
}

func (m *mockHandler) CreateInstance() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.creates++
	if m.createErr != nil {
		return m.createErr
	}
	m.created = true
	return nil
}

func (m *mockHandler) DeleteInstance() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deletes++
	m.created = false
	return nil
}

func (m *mockHandler) RunCommand(name string, data []byte) (*Report, error) {
	m.mu.Lock()
	fn := m.runFn
	m.mu.Unlock()
	if fn != nil {
		return fn(name, data)
	}
	return &Report{Payload: []byte(name)}, nil
}

func (m *mockHandler) AbortCommand() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.aborts++
	return nil
}

func (m *mockHandler) snapshot() (creates, deletes int, created bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.creates, m.deletes, m.created
}

// receivingHandler adds a scriptable receive hook on top of mockHandler.
type receivingHandler struct {
	mockHandler
	inbound chan *Report
}

func (r *receivingHandler) ReceiveMessage(timeout time.Duration) (*Report, error) {
	select {
	case rep := <-r.inbound:
		return rep, nil
	case <-time.After(timeout):
		return nil, nil
	}
}

func TestCreateDeleteRoundTrip(t *testing.T) {
	h := &mockHandler{}
	f := NewFacade("dut", h)

	for i := 0; i < 3; i++ {
		require.NoError(t, f.CreateInstance(), "cycle %d", i)
		assert.Equal(t, Running, f.State())
		assert.True(t, f.IsInstance())

		require.NoError(t, f.DeleteInstance(), "cycle %d", i)
		assert.Equal(t, Uninstantiated, f.State())
		assert.False(t, f.IsInstance())
	}

	creates, deletes, created := h.snapshot()
	assert.Equal(t, 3, creates)
	assert.Equal(t, 3, deletes)
	assert.False(t, created, "channel must end closed")
}

func TestCreateInstanceIdempotent(t *testing.T) {
	h := &mockHandler{}
	f := NewFacade("dut", h)

	require.NoError(t, f.CreateInstance())
	require.NoError(t, f.CreateInstance(), "second create must be a no-op")

	creates, _, _ := h.snapshot()
	assert.Equal(t, 1, creates, "worker must not be restarted")
	require.NoError(t, f.DeleteInstance())
}

func TestDeleteInstanceIdempotent(t *testing.T) {
	h := &mockHandler{}
	f := NewFacade("dut", h)

	require.NoError(t, f.DeleteInstance(), "delete before create is a no-op")

	require.NoError(t, f.CreateInstance())
	require.NoError(t, f.DeleteInstance())
	require.NoError(t, f.DeleteInstance())

	_, deletes, _ := h.snapshot()
	assert.Equal(t, 1, deletes)
}

func TestCreateInstanceFailure(t *testing.T) {
	h := &mockHandler{createErr: errors.New("flash failed")}
	f := NewFacade("dut", h)

	err := f.CreateInstance()
	require.Error(t, err)
	assert.Equal(t, Uninstantiated, f.State())
	assert.False(t, f.IsInstance())

	// A later attempt with a healthy handler succeeds.
	h.mu.Lock()
	h.createErr = nil
	h.mu.Unlock()
	require.NoError(t, f.CreateInstance())
	require.NoError(t, f.DeleteInstance())
}

func TestRunCommandNotRunning(t *testing.T) {
	h := &mockHandler{}
	f := NewFacade("dut", h)

	t.Run("before create", func(t *testing.T) {
		_, err := f.RunCommand("ping", nil, time.Second)
		assert.ErrorIs(t, err, ErrNotRunning)
	})

	t.Run("after delete", func(t *testing.T) {
		require.NoError(t, f.CreateInstance())
		require.NoError(t, f.DeleteInstance())
		_, err := f.RunCommand("ping", nil, time.Second)
		assert.ErrorIs(t, err, ErrNotRunning)
	})

	t.Run("send and abort too", func(t *testing.T) {
		assert.ErrorIs(t, f.SendCommand("ping", nil), ErrNotRunning)
		assert.ErrorIs(t, f.AbortCommand(), ErrNotRunning)
	})
}

func TestRunCommandReply(t *testing.T) {
	h := &mockHandler{}
	f := NewFacade("dut", h)
	require.NoError(t, f.CreateInstance())
	defer f.DeleteInstance()

	report, err := f.RunCommand("ping", []byte("x"), time.Second)
	require.NoError(t, err)
	require.NotNil(t, report)
	assert.Equal(t, []byte("ping"), report.Payload)
}

func TestReplyOrderingFIFO(t *testing.T) {
	h := &mockHandler{}
	f := NewFacade("dut", h)
	require.NoError(t, f.CreateInstance())
	defer f.DeleteInstance()

	for i := 0; i < 5; i++ {
		require.NoError(t, f.SendCommand(fmt.Sprintf("cmd-%d", i), nil))
	}

	for i := 0; i < 5; i++ {
		report, err := f.WaitAndGetReport(time.Second)
		require.NoError(t, err)
		require.NotNil(t, report)
		assert.Equal(t, fmt.Sprintf("cmd-%d", i), string(report.Payload))
	}
}

func TestRunCommandTimeoutIsDistinctFromEmptyReply(t *testing.T) {
	h := &mockHandler{}
	f := NewFacade("dut", h)
	require.NoError(t, f.CreateInstance())
	defer f.DeleteInstance()

	t.Run("slow handler yields ErrNoReport", func(t *testing.T) {
		h.mu.Lock()
		h.runFn = func(string, []byte) (*Report, error) {
			time.Sleep(150 * time.Millisecond)
			return &Report{Payload: []byte("late")}, nil
		}
		h.mu.Unlock()

		_, err := f.RunCommand("slow", nil, 20*time.Millisecond)
		assert.ErrorIs(t, err, ErrNoReport)

		// The timeout gave up waiting; it did not cancel the command.
		// The late result is still retrievable.
		report, err := f.WaitAndGetReport(time.Second)
		require.NoError(t, err)
		assert.Equal(t, []byte("late"), report.Payload)
	})

	t.Run("explicit empty reply is a report, not an error", func(t *testing.T) {
		h.mu.Lock()
		h.runFn = func(string, []byte) (*Report, error) { return nil, nil }
		h.mu.Unlock()

		report, err := f.RunCommand("empty", nil, time.Second)
		require.NoError(t, err)
		require.NotNil(t, report)
		assert.Nil(t, report.Payload)
	})
}

func TestSendCommandNeverBlocks(t *testing.T) {
	h := &mockHandler{}
	h.runFn = func(string, []byte) (*Report, error) {
		time.Sleep(300 * time.Millisecond)
		return nil, nil
	}
	f := NewFacade("dut", h)
	require.NoError(t, f.CreateInstance())
	defer f.DeleteInstance()

	start := time.Now()
	require.NoError(t, f.SendCommand("slow", nil))
	assert.Less(t, time.Since(start), 50*time.Millisecond)
}

func TestHandlerFailureContained(t *testing.T) {
	h := &mockHandler{}
	f := NewFacade("dut", h)
	require.NoError(t, f.CreateInstance())
	defer f.DeleteInstance()

	t.Run("error", func(t *testing.T) {
		h.mu.Lock()
		h.runFn = func(string, []byte) (*Report, error) { return nil, errors.New("bus error") }
		h.mu.Unlock()

		_, err := f.RunCommand("bad", nil, time.Second)
		require.Error(t, err)
		assert.NotErrorIs(t, err, ErrNoReport, "a failed command is not a timeout")
	})

	t.Run("panic", func(t *testing.T) {
		h.mu.Lock()
		h.runFn = func(string, []byte) (*Report, error) { panic("boom") }
		h.mu.Unlock()

		_, err := f.RunCommand("worse", nil, time.Second)
		require.Error(t, err)
	})

	t.Run("worker survives", func(t *testing.T) {
		h.mu.Lock()
		h.runFn = nil
		h.mu.Unlock()

		report, err := f.RunCommand("ping", nil, time.Second)
		require.NoError(t, err)
		assert.Equal(t, []byte("ping"), report.Payload)
	})
}

func TestAbortKeepsWorkerAlive(t *testing.T) {
	h := &mockHandler{}
	h.runFn = func(string, []byte) (*Report, error) {
		time.Sleep(100 * time.Millisecond)
		return &Report{Payload: []byte("done")}, nil
	}
	f := NewFacade("dut", h)
	require.NoError(t, f.CreateInstance())

	require.NoError(t, f.SendCommand("long", nil))
	require.NoError(t, f.AbortCommand())

	h.mu.Lock()
	h.runFn = nil
	h.mu.Unlock()

	// The worker is still alive and a full cycle still works.
	report, err := f.RunCommand("ping", nil, time.Second)
	require.NoError(t, err)
	assert.Equal(t, []byte("ping"), report.Payload)

	require.NoError(t, f.DeleteInstance())
	require.NoError(t, f.CreateInstance())
	require.NoError(t, f.DeleteInstance())
}

func TestSuspendResume(t *testing.T) {
	h := &mockHandler{}
	f := NewFacade("dut", h)

	assert.ErrorIs(t, f.Suspend(), ErrNotRunning)

	require.NoError(t, f.CreateInstance())
	require.NoError(t, f.Suspend())
	assert.Equal(t, Suspended, f.State())
	assert.False(t, f.IsInstance())

	_, err := f.RunCommand("ping", nil, time.Second)
	assert.ErrorIs(t, err, ErrNotRunning)

	require.NoError(t, f.Resume())
	assert.True(t, f.IsInstance())

	report, err := f.RunCommand("ping", nil, time.Second)
	require.NoError(t, err)
	assert.Equal(t, []byte("ping"), report.Payload)

	require.NoError(t, f.DeleteInstance())
	creates, deletes, _ := h.snapshot()
	assert.Equal(t, 2, creates)
	assert.Equal(t, 2, deletes)
}

func TestReceiveLoopSurfacesInboundMessages(t *testing.T) {
	h := &receivingHandler{inbound: make(chan *Report, 4)}
	f := NewFacade("dut", h)
	require.NoError(t, f.CreateInstance())
	defer f.DeleteInstance()

	h.inbound <- &Report{Payload: []byte("unsolicited")}

	report, err := f.WaitAndGetReport(time.Second)
	require.NoError(t, err)
	assert.Equal(t, []byte("unsolicited"), report.Payload)

	// Idle medium: polling returns the no-report sentinel.
	_, err = f.WaitAndGetReport(30 * time.Millisecond)
	assert.ErrorIs(t, err, ErrNoReport)
}

func TestConcurrentFacadeCallsSerialize(t *testing.T) {
	h := &mockHandler{}
	f := NewFacade("dut", h)
	require.NoError(t, f.CreateInstance())
	defer f.DeleteInstance()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			report, err := f.RunCommand(fmt.Sprintf("cmd-%d", i), nil, time.Second)
			assert.NoError(t, err)
			if assert.NotNil(t, report) {
				// The lock pairs each reply with its own request.
				assert.Equal(t, fmt.Sprintf("cmd-%d", i), string(report.Payload))
			}
		}(i)
	}
	wg.Wait()
}
