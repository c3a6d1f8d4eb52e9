package hooks

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAddAndCallRunsConfiguredCommand(t *testing.T) {
	dir := t.TempDir()
	marker := filepath.Join(dir, "marker")

	runner := NewRunner(map[string][]string{
		"set_http_challenge": {"touch " + marker},
	})

	runner.Add("set_http_challenge", map[string]string{"domain": "example.com"})
	runner.Call()

	_, err := os.Stat(marker)
	require.NoError(t, err, "expected hook command to run and create marker")
}

func TestAddSubstitutesPlaceholders(t *testing.T) {
	dir := t.TempDir()

	runner := NewRunner(map[string][]string{
		"write": {"cp {src} {dst}"},
	})

	src := filepath.Join(dir, "src.txt")
	require.NoError(t, os.WriteFile(src, []byte("hello"), 0o644))
	dst := filepath.Join(dir, "dst.txt")

	runner.Add("write", map[string]string{"src": src, "dst": dst})
	runner.Call()

	data, err := os.ReadFile(dst)
	require.NoError(t, err)
	require.Equal(t, "hello", string(data))
}

func TestAddUnknownHookNameIsNoop(t *testing.T) {
	runner := NewRunner(map[string][]string{})
	runner.Add("nonexistent", map[string]string{"domain": "example.com"})
	// Call must not panic or block on an empty queue.
	runner.Call()
}

func TestAddSkipsCommandWithUnknownPlaceholder(t *testing.T) {
	dir := t.TempDir()
	marker := filepath.Join(dir, "marker")

	runner := NewRunner(map[string][]string{
		"clear": {"touch {missing}", "touch " + marker},
	})

	runner.Add("clear", map[string]string{"domain": "example.com"})
	runner.Call()

	_, err := os.Stat(marker)
	require.NoError(t, err, "expected the second, valid command to still run")
}

func TestCallEmptiesQueue(t *testing.T) {
	dir := t.TempDir()
	marker := filepath.Join(dir, "marker")

	runner := NewRunner(map[string][]string{
		"once": {"touch " + marker},
	})

	runner.Add("once", nil)
	runner.Call()
	require.NoError(t, os.Remove(marker))

	// Second Call with nothing queued must not recreate the marker.
	runner.Call()
	_, err := os.Stat(marker)
	require.Error(t, err, "expected queue to be empty after the first Call")
}

func TestCallOrdersByNameInsertionThenQueueOrder(t *testing.T) {
	runner := NewRunner(map[string][]string{
		"b": {"true"},
		"a": {"true"},
	})

	runner.Add("b", nil)
	runner.Add("a", nil)

	// Re-derive expected ordering from the runner's own bookkeeping: "b"
	// was queued first, so it must run first even though "a" sorts first
	// alphabetically.
	require.Equal(t, []string{"b", "a"}, runner.names)

	runner.Call()
}
