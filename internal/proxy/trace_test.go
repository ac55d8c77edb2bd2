package proxy

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func traceFiles(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}

func TestStrategyValidate(t *testing.T) {
	assert.NoError(t, StrategyRun.Validate())
	assert.NoError(t, StrategyTest.Validate())
	assert.NoError(t, StrategyTestCase.Validate())
	assert.Error(t, Strategy("whenever").Validate())
	assert.Error(t, Strategy("").Validate())
}

func TestTraceSinkRecord(t *testing.T) {
	dir := t.TempDir()
	sink, err := NewTraceSink(dir, "bus", StrategyRun)
	require.NoError(t, err)

	require.NoError(t, sink.Record([]byte{0xDE, 0xAD}))
	require.NoError(t, sink.Record([]byte{0xBE, 0xEF}))
	assert.Equal(t, 2, sink.Entries())
	require.NoError(t, sink.Close())

	files := traceFiles(t, dir)
	require.Len(t, files, 1)

	data, err := os.ReadFile(filepath.Join(dir, files[0]))
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 2)
	assert.True(t, strings.HasSuffix(lines[0], " DEAD"), "line: %s", lines[0])
	assert.True(t, strings.HasSuffix(lines[1], " BEEF"), "line: %s", lines[1])
}

func TestTraceSinkRotation(t *testing.T) {
	t.Run("run strategy never rotates", func(t *testing.T) {
		dir := t.TempDir()
		sink, err := NewTraceSink(dir, "bus", StrategyRun)
		require.NoError(t, err)

		require.NoError(t, sink.NotifyBoundary(BoundaryTest, "TestFoo"))
		require.NoError(t, sink.NotifyBoundary(BoundaryTestCase, "SuiteBar"))
		require.NoError(t, sink.Close())
		assert.Len(t, traceFiles(t, dir), 1)
	})

	t.Run("test strategy rotates per test method", func(t *testing.T) {
		dir := t.TempDir()
		sink, err := NewTraceSink(dir, "bus", StrategyTest)
		require.NoError(t, err)

		require.NoError(t, sink.Record([]byte{0x01}))
		require.NoError(t, sink.NotifyBoundary(BoundaryTest, "TestFoo"))
		require.NoError(t, sink.Record([]byte{0x02}))
		require.NoError(t, sink.NotifyBoundary(BoundaryTestCase, "SuiteBar"))
		require.NoError(t, sink.Close())

		// Two files: the initial one plus one rotation; the test-case
		// boundary is ignored by this strategy.
		assert.Len(t, traceFiles(t, dir), 2)
	})

	t.Run("testCase strategy rotates per grouping", func(t *testing.T) {
		dir := t.TempDir()
		sink, err := NewTraceSink(dir, "bus", StrategyTestCase)
		require.NoError(t, err)

		require.NoError(t, sink.NotifyBoundary(BoundaryTest, "TestFoo"))
		require.NoError(t, sink.NotifyBoundary(BoundaryTestCase, "SuiteBar"))
		require.NoError(t, sink.Close())
		assert.Len(t, traceFiles(t, dir), 2)
	})
}

func TestTraceSinkClosed(t *testing.T) {
	sink, err := NewTraceSink(t.TempDir(), "bus", StrategyRun)
	require.NoError(t, err)
	require.NoError(t, sink.Close())

	assert.Error(t, sink.Record([]byte{0x01}))
	assert.NoError(t, sink.NotifyBoundary(BoundaryTest, "x"), "boundary after close is a no-op")
	assert.NoError(t, sink.Close(), "double close is a no-op")
}

func TestTraceFileNamesAreSanitized(t *testing.T) {
	dir := t.TempDir()
	sink, err := NewTraceSink(dir, "bus", StrategyTest)
	require.NoError(t, err)
	require.NoError(t, sink.NotifyBoundary(BoundaryTest, "Test Foo/Bar"))
	require.NoError(t, sink.Close())

	for _, name := range traceFiles(t, dir) {
		assert.NotContains(t, name, "/")
		assert.NotContains(t, name, " ")
	}
}
