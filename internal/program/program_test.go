package program

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseAutoRestart(t *testing.T) {
	cases := map[string]AutoRestart{
		"":             AutoRestartNever,
		"never":        AutoRestartNever,
		"false":        AutoRestartNever,
		"always":       AutoRestartAlways,
		"true":         AutoRestartAlways,
		"unexpected":   AutoRestartUnexpected,
		"on-unexpected": AutoRestartUnexpected,
	}
	for in, want := range cases {
		got, err := ParseAutoRestart(in)
		require.NoError(t, err)
		require.Equal(t, want, got)
	}
	_, err := ParseAutoRestart("maybe")
	require.Error(t, err)
}

func TestSignatureStableAcrossMapOrdering(t *testing.T) {
	a := Default()
	a.Name = "web"
	a.Cmd = "sleep 100"
	a.Env = map[string]string{"B": "2", "A": "1"}
	a.ExitCodes = map[int]struct{}{2: {}, 0: {}}

	b := a
	b.Env = map[string]string{"A": "1", "B": "2"}
	b.ExitCodes = map[int]struct{}{0: {}, 2: {}}

	require.Equal(t, a.Signature(), b.Signature())
}

func TestSignatureChangesOnCmd(t *testing.T) {
	a := Default()
	a.Cmd = "sleep 100"
	b := a
	b.Cmd = "sleep 50"
	require.NotEqual(t, a.Signature(), b.Signature())
}

func TestBuildCommandPlain(t *testing.T) {
	s := Spec{Cmd: "/bin/echo hello world"}
	cmd := s.BuildCommand()
	require.Equal(t, "/bin/echo", cmd.Path)
	require.Equal(t, []string{"/bin/echo", "hello", "world"}, cmd.Args)
}

func TestBuildCommandQuoted(t *testing.T) {
	s := Spec{Cmd: `/bin/echo "hello world"`}
	cmd := s.BuildCommand()
	require.Equal(t, []string{"/bin/echo", "hello world"}, cmd.Args)
}

func TestBuildCommandExplicitShell(t *testing.T) {
	s := Spec{Cmd: `sh -c 'exit 1'`}
	cmd := s.BuildCommand()
	require.Equal(t, []string{"/bin/sh", "-c", "exit 1"}, cmd.Args)
}

func TestShouldRestartPolicy(t *testing.T) {
	never := Spec{AutoRestart: AutoRestartNever, ExitCodes: map[int]struct{}{0: {}}}
	require.False(t, never.ShouldRestart(1))

	always := Spec{AutoRestart: AutoRestartAlways, ExitCodes: map[int]struct{}{0: {}}}
	require.True(t, always.ShouldRestart(0))

	unexpected := Spec{AutoRestart: AutoRestartUnexpected, ExitCodes: map[int]struct{}{0: {}}}
	require.False(t, unexpected.ShouldRestart(0))
	require.True(t, unexpected.ShouldRestart(1))
}

func TestParseUmask(t *testing.T) {
	v, set, err := ParseUmask("027")
	require.NoError(t, err)
	require.True(t, set)
	require.Equal(t, 0o27, v)

	_, set, err = ParseUmask("")
	require.NoError(t, err)
	require.False(t, set)

	_, _, err = ParseUmask("999")
	require.Error(t, err)
}

func TestResolveSignal(t *testing.T) {
	sig, err := ResolveSignal("TERM")
	require.NoError(t, err)
	require.Equal(t, "terminated", sig.String())

	_, err = ResolveSignal("BOGUS")
	require.Error(t, err)
}
