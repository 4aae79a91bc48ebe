//go:build !windows

package launcher

import (
	"fmt"
	"os/user"
	"strconv"
	"syscall"

	"golang.org/x/sys/unix"
)

// DropPrivileges implements spec.md §6's TASKMASTER_RUN_AS_USER /
// TASKMASTER_RUN_AS_GROUP: if set and the daemon is currently running as
// superuser, it permanently drops to that identity before the control
// listener and monitor start serving. Child spawns that require
// elevated ids then fail, as the spec documents.
func DropPrivileges(user_, group string) (uid, gid int, dropped bool, err error) {
	if user_ == "" && group == "" {
		return 0, 0, false, nil
	}
	if unix.Getuid() != 0 {
		return 0, 0, false, nil
	}

	targetUID, targetGID := -1, -1
	if group != "" {
		g, lerr := osLookupGroup(group)
		if lerr != nil {
			return 0, 0, false, fmt.Errorf("taskmasterd: resolving run-as group %q: %w", group, lerr)
		}
		targetGID = g
	}
	if user_ != "" {
		u, lerr := osLookupUser(user_)
		if lerr != nil {
			return 0, 0, false, fmt.Errorf("taskmasterd: resolving run-as user %q: %w", user_, lerr)
		}
		targetUID = u.uid
		if targetGID == -1 {
			targetGID = u.gid
		}
	}

	if targetGID != -1 {
		if err := syscall.Setgid(targetGID); err != nil {
			return 0, 0, false, fmt.Errorf("taskmasterd: setgid(%d): %w", targetGID, err)
		}
	}
	if targetUID != -1 {
		if err := syscall.Setuid(targetUID); err != nil {
			return 0, 0, false, fmt.Errorf("taskmasterd: setuid(%d): %w", targetUID, err)
		}
	}
	return targetUID, targetGID, true, nil
}

type resolvedUser struct{ uid, gid int }

func osLookupUser(name string) (resolvedUser, error) {
	u, err := user.Lookup(name)
	if err != nil {
		return resolvedUser{}, err
	}
	uid, err := strconv.Atoi(u.Uid)
	if err != nil {
		return resolvedUser{}, err
	}
	gid, err := strconv.Atoi(u.Gid)
	if err != nil {
		return resolvedUser{}, err
	}
	return resolvedUser{uid: uid, gid: gid}, nil
}

func osLookupGroup(name string) (int, error) {
	g, err := user.LookupGroup(name)
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(g.Gid)
}
