//go:build windows

package launcher

import (
	"fmt"
	"io"
	"os"
	"os/exec"

	"github.com/taskmasterd/taskmasterd/internal/program"
)

// wireOutput on windows never allocates a pseudo-terminal; console: true
// is rejected at config load time (see config.PtySupported), so reaching
// here with Console set would be a programming error.
func wireOutput(cmd *exec.Cmd, spec program.Spec) (stdout, stderr io.Closer, ptyMaster *os.File, err error) {
	if spec.Console {
		return nil, nil, nil, fmt.Errorf("console mode is not supported on windows")
	}
	out, err := openOutput(spec.Stdout)
	if err != nil {
		return nil, nil, nil, err
	}
	cmd.Stdout = out
	errOut, err := openOutput(spec.Stderr)
	if err != nil {
		return nil, nil, nil, err
	}
	cmd.Stderr = errOut
	return wrapCloser(out), wrapCloser(errOut), nil, nil
}

func openOutput(spec program.OutputSpec) (io.Writer, error) {
	if spec.Discard {
		return nil, nil
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
