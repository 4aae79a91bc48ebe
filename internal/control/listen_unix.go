//go:build !windows

package control

import (
	"fmt"
	"net"
	"os"
)

// RequiresPeerCheck is true on platforms where the listener is a real
// filesystem-bound unix socket and peer-uid enforcement applies
// (spec.md §4.6 "On POSIX, the server extracts the peer's effective
// user id...").
const RequiresPeerCheck = true

// Listen opens the control socket at path, mode 0600, removing any
// stale socket file left over from an unclean shutdown.
func Listen(path string) (net.Listener, error) {
	if _, err := os.Stat(path); err == nil {
		_ = os.Remove(path)
	}
	l, err := net.Listen("unix", path)
	if err != nil {
		return nil, fmt.Errorf("taskmasterd: listening on %s: %w", path, err)
	}
	if err := os.Chmod(path, 0o600); err != nil {
		_ = l.Close()
		return nil, fmt.Errorf("taskmasterd: chmod %s: %w", path, err)
	}
	return l, nil
}

// Cleanup unlinks the listener socket path, per spec.md §5 "the
// listener socket is cleaned up (filesystem path unlinked) on exit."
func Cleanup(path string) {
	_ = os.Remove(path)
}
