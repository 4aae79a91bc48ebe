package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, dir, body string) string {
	t.Helper()
	p := filepath.Join(dir, "taskmaster.yaml")
	require.NoError(t, os.WriteFile(p, []byte(body), 0o644))
	return p
}

func TestLoadAppliesDefaults(t *testing.T) {
	dir := t.TempDir()
	p := writeConfig(t, dir, `
programs:
  sleeper:
    cmd: /bin/sleep 60
`)
	doc, err := Load(p)
	require.NoError(t, err)
	sp := doc.Programs["sleeper"]
	require.Equal(t, 1, sp.NumProcs)
	require.False(t, sp.AutoStart)
	require.Equal(t, "TERM", sp.StopSignal)
	require.Equal(t, 10, sp.StopTime)
	require.Contains(t, sp.ExitCodes, 0)
}

func TestLoadMissingCmdFails(t *testing.T) {
	dir := t.TempDir()
	p := writeConfig(t, dir, `
programs:
  broken:
    numprocs: 2
`)
	_, err := Load(p)
	require.Error(t, err)
}

func TestLoadInvalidNumProcs(t *testing.T) {
	dir := t.TempDir()
	p := writeConfig(t, dir, `
programs:
  broken:
    cmd: /bin/true
    numprocs: 0
`)
	_, err := Load(p)
	require.NoError(t, err) // 0 means "unset", defaults to 1

	p2 := writeConfig(t, dir, `
programs:
  broken:
    cmd: /bin/true
    numprocs: -1
`)
	_, err = Load(p2)
	require.Error(t, err)
}

func TestLoadExitCodesScalarAndSequence(t *testing.T) {
	dir := t.TempDir()
	p := writeConfig(t, dir, `
programs:
  a:
    cmd: /bin/true
    exitcodes: 3
  b:
    cmd: /bin/true
    exitcodes: [0, 2]
`)
	doc, err := Load(p)
	require.NoError(t, err)
	require.Contains(t, doc.Programs["a"].ExitCodes, 3)
	require.Contains(t, doc.Programs["b"].ExitCodes, 0)
	require.Contains(t, doc.Programs["b"].ExitCodes, 2)
}

func TestLoadEnvExpansion(t *testing.T) {
	t.Setenv("APP_ENV", "prod")
	dir := t.TempDir()
	p := writeConfig(t, dir, `
programs:
  web:
    cmd: /bin/true
    workingdir: /srv/$APP_ENV
    env:
      MODE: "${APP_ENV}-mode"
`)
	doc, err := Load(p)
	require.NoError(t, err)
	require.Equal(t, "/srv/prod", doc.Programs["web"].WorkingDir)
	require.Equal(t, "prod-mode", doc.Programs["web"].Env["MODE"])
}

func TestLoadUnknownSignal(t *testing.T) {
	dir := t.TempDir()
	p := writeConfig(t, dir, `
programs:
  a:
    cmd: /bin/true
    stopsignal: BOGUS
`)
	_, err := Load(p)
	require.Error(t, err)
}

func TestLoadAlerts(t *testing.T) {
	dir := t.TempDir()
	p := writeConfig(t, dir, `
programs:
  a:
    cmd: /bin/true
alerts:
  email:
    enabled: true
    smtp_host: smtp.local
    from: tm@x
    to: op@x
`)
	doc, err := Load(p)
	require.NoError(t, err)
	require.True(t, doc.Alerts.Email.Enabled)
	require.Equal(t, "smtp.local", doc.Alerts.Email.SMTPHost)
}
