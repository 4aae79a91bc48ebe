//go:build !windows

package launcher

import (
	"io"
	"os"
	"os/exec"

	"github.com/creack/pty"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/taskmasterd/taskmasterd/internal/program"
)

// wireOutput implements spec.md §4.2 step 4: when console is set, a
// pseudo-terminal's slave end is bound to all three standard streams and
// the master end is kept by the daemon; otherwise stdout/stderr are each
// routed to an append-mode file (optionally rotated via lumberjack, see
// SPEC_FULL.md §10) or discarded.
func wireOutput(cmd *exec.Cmd, spec program.Spec) (stdout, stderr io.Closer, ptyMaster *os.File, err error) {
	if spec.Console {
		master, slave, perr := pty.Open()
		if perr != nil {
			return nil, nil, nil, perr
		}
		cmd.Stdin, cmd.Stdout, cmd.Stderr = slave, slave, slave
		sysProcAttr(cmd).Setsid = true
		cmd.ExtraFiles = nil
		// The parent keeps its copy of the slave fd for the instance's
		// lifetime; it is closed once, through the stdout closer, when
		// the instance's descriptors are closed. The stderr closer is a
		// no-op so the shared slave is not closed twice.
		return &closeAfterStart{f: slave}, &closeAfterStart{f: slave, noop: true}, master, nil
	}

	out, err := openOutput(spec.Stdout)
	if err != nil {
		return nil, nil, nil, err
	}
	cmd.Stdout = out

	errOut, err := openOutput(spec.Stderr)
	if err != nil {
		if out != nil {
			_ = out.Close()
		}
		return nil, nil, nil, err
	}
	cmd.Stderr = errOut

	return wrapCloser(out), wrapCloser(errOut), nil, nil
}

// closeAfterStart wraps the parent's copy of the pty slave so that
// Instance.CloseDescriptors closes it (unless noop is set) along with
// the pty master.
type closeAfterStart struct {
	f    *os.File
	noop bool
}

func (c *closeAfterStart) Close() error {
	if c.noop {
		return nil
	}
	return c.f.Close()
}

func openOutput(spec program.OutputSpec) (io.Writer, error) {
	if spec.Discard {
		return nil, nil
	}
	if spec.Rotation.Enabled {
		return &lumberjack.Logger{
			Filename:   spec.Path,
			MaxSize:    maxInt(spec.Rotation.MaxSizeMB, 1),
			MaxBackups: spec.Rotation.MaxBackups,
			MaxAge:     spec.Rotation.MaxAgeDays,
			Compress:   spec.Rotation.Compress,
		}, nil
	}
	return os.OpenFile(spec.Path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
}

func wrapCloser(w io.Writer) io.Closer {
	if c, ok := w.(io.Closer); ok {
		return c
	}
	return nopCloser{}
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
