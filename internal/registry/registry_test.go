package registry

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/taskmasterd/taskmasterd/internal/instance"
	"github.com/taskmasterd/taskmasterd/internal/program"
)

func TestRecomputeCreatedUntilFirstInstance(t *testing.T) {
	spec := program.Default()
	spec.Name = "web"
	e := newEntry(spec)
	require.Equal(t, Created, e.Status)

	e.Recompute()
	require.Equal(t, Created, e.Status)

	e.Instances[1] = &instance.Instance{Index: 1}
	e.Recompute()
	require.Equal(t, Started, e.Status)

	delete(e.Instances, 1)
	e.Recompute()
	require.Equal(t, Stopped, e.Status)
}

func TestRegistryPutGetDeleteNames(t *testing.T) {
	r := New()
	r.Lock()
	defer r.Unlock()

	a := program.Default()
	a.Name = "a"
	b := program.Default()
	b.Name = "b"
	r.Put(a)
	r.Put(b)

	require.Equal(t, []string{"a", "b"}, r.Names())
	require.Equal(t, 2, r.Len())

	r.Delete("a")
	require.Nil(t, r.Get("a"))
	require.Equal(t, []string{"b"}, r.Names())
}

func TestEntryAliveCount(t *testing.T) {
	spec := program.Default()
	spec.Name = "x"
	e := newEntry(spec)
	e.Instances[1] = &instance.Instance{Index: 1}
	e.Instances[2] = &instance.Instance{Index: 2}
	// Neither has a Cmd, so Alive() reports false for both.
	require.Equal(t, 0, e.AliveCount())
}
