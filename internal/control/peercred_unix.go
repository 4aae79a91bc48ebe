//go:build !windows

package control

import (
	"fmt"
	"net"

	"golang.org/x/sys/unix"
)

// checkSuperuser extracts the connecting peer's effective uid via
// SO_PEERCRED and rejects anyone but root (spec.md §4.6), grounded in
// golang.org/x/sys/unix's Ucred/GetsockoptUcred wrapper around the raw
// getsockopt(2) call.
func checkSuperuser(conn net.Conn) error {
	uc, ok := conn.(*net.UnixConn)
	if !ok {
		// TCP fallback path: peer credentials are not available over
		// the network, so the check does not apply.
		return nil
	}
	raw, err := uc.SyscallConn()
	if err != nil {
		return fmt.Errorf("taskmasterd: inspecting control connection: %w", err)
	}
	var cred *unix.Ucred
	var sockErr error
	err = raw.Control(func(fd uintptr) {
		cred, sockErr = unix.GetsockoptUcred(int(fd), unix.SOL_SOCKET, unix.SO_PEERCRED)
	})
	if err != nil {
		return fmt.Errorf("taskmasterd: reading peer credentials: %w", err)
	}
	if sockErr != nil {
		return fmt.Errorf("taskmasterd: reading peer credentials: %w", sockErr)
	}
	if cred.Uid != 0 {
		return fmt.Errorf("taskmasterd: rejecting non-superuser control client (uid %d)", cred.Uid)
	}
	return nil
}
