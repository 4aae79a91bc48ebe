//go:build !windows

package launcher

import (
	"fmt"
	"os/exec"
	"os/user"
	"strconv"
	"sync"
	"syscall"

	"github.com/taskmasterd/taskmasterd/internal/program"
)

// configureCredential resolves spec.User/spec.Group to numeric ids and
// attaches them to cmd.SysProcAttr.Credential. The Go runtime's fork/exec
// path applies setgid before setuid internally, matching the ordering
// spec.md §4.2 step 3 requires ("the group-then-user order matters").
func configureCredential(cmd *exec.Cmd, spec program.Spec) error {
	if spec.User == "" && spec.Group == "" {
		return nil
	}
	attrs := sysProcAttr(cmd)

	var uid, gid uint32
	var haveUID, haveGID bool

	if spec.Group != "" {
		g, err := user.LookupGroup(spec.Group)
		if err != nil {
			return fmt.Errorf("resolving group %q: %w", spec.Group, err)
		}
		n, err := strconv.ParseUint(g.Gid, 10, 32)
		if err != nil {
			return fmt.Errorf("resolving group %q: %w", spec.Group, err)
		}
		gid, haveGID = uint32(n), true
	}

	if spec.User != "" {
		u, err := user.Lookup(spec.User)
		if err != nil {
			return fmt.Errorf("resolving user %q: %w", spec.User, err)
		}
		n, err := strconv.ParseUint(u.Uid, 10, 32)
		if err != nil {
			return fmt.Errorf("resolving user %q: %w", spec.User, err)
		}
		uid, haveUID = uint32(n), true
		if !haveGID {
			gn, err := strconv.ParseUint(u.Gid, 10, 32)
			if err == nil {
				gid, haveGID = uint32(gn), true
			}
		}
	}

	attrs.Credential = &syscall.Credential{}
	if haveUID {
		attrs.Credential.Uid = uid
	}
	if haveGID {
		attrs.Credential.Gid = gid
	}
	return nil
}

// configureProcessGroup places the child in its own process group so a
// stop signal can be delivered to the whole group; console sessions use
// Setsid instead (wireOutput in output_unix.go sets it before this runs).
func configureProcessGroup(cmd *exec.Cmd) {
	attrs := sysProcAttr(cmd)
	if !attrs.Setsid {
		attrs.Setpgid = true
	}
}

func sysProcAttr(cmd *exec.Cmd) *syscall.SysProcAttr {
	if cmd.SysProcAttr == nil {
		cmd.SysProcAttr = &syscall.SysProcAttr{}
	}
	return cmd.SysProcAttr
}

// umaskMu serializes the umask-set/fork/umask-restore window across
// concurrent spawns; Go's os/exec has no per-child umask hook (unlike
// the original's preexec_fn), so we fall back to the parent-thread trick
// of setting the process umask immediately around fork+exec. Spawns run
// without the registry mutex held, so umaskMu is what keeps concurrent
// spawns from seeing each other's umask; files created elsewhere in the
// daemon during that window are not guarded by it.
var umaskMu sync.Mutex

func startWithUmask(cmd *exec.Cmd, spec program.Spec) error {
	if !spec.UmaskSet {
		return cmd.Start()
	}
	umaskMu.Lock()
	defer umaskMu.Unlock()
	old := syscall.Umask(spec.Umask)
	defer syscall.Umask(old)
	return cmd.Start()
}
