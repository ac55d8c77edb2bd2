package proxy

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Strategy selects how the trace file is rotated across a session.
type Strategy string

const (
	// StrategyRun keeps one file for the whole session.
	StrategyRun Strategy = "run"
	// StrategyTest opens a new file per test method.
	StrategyTest Strategy = "test"
	// StrategyTestCase opens a new file per test-case grouping.
	StrategyTestCase Strategy = "testCase"
)

// Validate rejects unknown strategies.
func (s Strategy) Validate() error {
	switch s {
	case StrategyRun, StrategyTest, StrategyTestCase:
		return nil
	default:
		return fmt.Errorf("invalid trace strategy: %q (must be 'run', 'test' or 'testCase')", s)
	}
}

// Boundary is a test-execution boundary signalled by the coordinator's
// reporting hooks.
type Boundary string

const (
	// BoundaryTest marks the start of one test method.
	BoundaryTest Boundary = "test"
	// BoundaryTestCase marks the start of one test-case grouping.
	BoundaryTestCase Boundary = "testCase"
)

// TraceSink is the append-only log of raw physical receives: one entry
// per message with a timestamp prefix, independent of whether any
// subscriber consumed it. It is the observability channel of last resort
// for connectors without native logging.
type TraceSink struct {
	dir      string
	name     string
	strategy Strategy

	mu      sync.Mutex
	f       *os.File
	seq     int
	entries int
}

// NewTraceSink creates the sink and opens the first file.
func NewTraceSink(dir, name string, strategy Strategy) (*TraceSink, error) {
	if err := strategy.Validate(); err != nil {
		return nil, err
	}
	if name == "" {
		name = "trace"
	}
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create trace dir: %w", err)
	}

	t := &TraceSink{dir: dir, name: name, strategy: strategy}
	if err := t.openNext("run"); err != nil {
		return nil, err
	}
	return t, nil
}

// openNext closes the current file, if any, and opens the next one.
// Caller holds mu (or is the constructor).
func (t *TraceSink) openNext(label string) error {
	if t.f != nil {
		t.f.Close()
		t.f = nil
	}
	t.seq++
	path := filepath.Join(t.dir, fmt.Sprintf("%s_%03d_%s.trc", t.name, t.seq, label))
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open trace file %s: %w", path, err)
	}
	t.f = f
	return nil
}

// Record appends one raw receive with a timestamp prefix.
func (t *TraceSink) Record(payload []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.f == nil {
		return fmt.Errorf("trace sink is closed")
	}
	line := fmt.Sprintf("%s %X\n", time.Now().UTC().Format("2006-01-02T15:04:05.000"), payload)
	if _, err := t.f.WriteString(line); err != nil {
		return fmt.Errorf("trace write failed: %w", err)
	}
	t.entries++
	return nil
}

// Entries returns how many receives were recorded since the sink opened.
func (t *TraceSink) Entries() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.entries
}

// NotifyBoundary rotates the file when the boundary matches the
// configured strategy. StrategyRun never rotates; StrategyTestCase also
// rotates on test-case boundaries reported as tests' parents.
func (t *TraceSink) NotifyBoundary(kind Boundary, label string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.f == nil {
		return nil
	}

	rotate := false
	switch t.strategy {
	case StrategyTest:
		rotate = kind == BoundaryTest
	case StrategyTestCase:
		rotate = kind == BoundaryTestCase
	}
	if !rotate {
		return nil
	}
	if label == "" {
		label = string(kind)
	}
	return t.openNext(sanitizeLabel(label))
}

// Close flushes and closes the current file. Further records fail.
func (t *TraceSink) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.f == nil {
		return nil
	}
	err := t.f.Close()
	t.f = nil
	return err
}

// sanitizeLabel keeps trace file names filesystem-safe.
func sanitizeLabel(label string) string {
	out := make([]rune, 0, len(label))
	for _, r := range label {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			out = append(out, r)
		default:
			out = append(out, '_')
		}
	}
	return string(out)
}
