package launcher

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/taskmasterd/taskmasterd/internal/program"
)

func TestSpawnDiscard(t *testing.T) {
	l := New(os.Environ())
	spec := program.Default()
	spec.Name = "t"
	spec.Cmd = "/bin/true"
	spec.Stdout = program.OutputSpec{Discard: true}
	spec.Stderr = program.OutputSpec{Discard: true}

	in, err := l.Spawn(spec, 1)
	require.NoError(t, err)
	require.NotZero(t, in.PID)
	_, err = in.Cmd.Process.Wait()
	require.NoError(t, err)
	in.CloseDescriptors()
}

func TestSpawnFileOutput(t *testing.T) {
	dir := t.TempDir()
	outPath := filepath.Join(dir, "out.log")

	l := New(os.Environ())
	spec := program.Default()
	spec.Name = "t"
	spec.Cmd = "/bin/echo hello"
	spec.Stdout = program.OutputSpec{Path: outPath}
	spec.Stderr = program.OutputSpec{Discard: true}

	in, err := l.Spawn(spec, 1)
	require.NoError(t, err)
	_, err = in.Cmd.Process.Wait()
	require.NoError(t, err)
	in.CloseDescriptors()

	time.Sleep(20 * time.Millisecond)
	b, err := os.ReadFile(outPath)
	require.NoError(t, err)
	require.Contains(t, string(b), "hello")
}

func TestSpawnEnvOverlay(t *testing.T) {
	dir := t.TempDir()
	outPath := filepath.Join(dir, "out.log")

	l := New([]string{"PATH=/usr/bin:/bin", "UNRELATED=1"})
	spec := program.Default()
	spec.Name = "t"
	spec.Cmd = "/bin/sh -c 'echo $FOO'"
	spec.Env = map[string]string{"FOO": "bar"}
	spec.Stdout = program.OutputSpec{Path: outPath}
	spec.Stderr = program.OutputSpec{Discard: true}

	in, err := l.Spawn(spec, 1)
	require.NoError(t, err)
	_, err = in.Cmd.Process.Wait()
	require.NoError(t, err)
	in.CloseDescriptors()

	time.Sleep(20 * time.Millisecond)
	b, err := os.ReadFile(outPath)
	require.NoError(t, err)
	require.Contains(t, string(b), "bar")
}
