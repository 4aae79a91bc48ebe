//go:build windows

package launcher

import "fmt"

// DropPrivileges is a no-op on Windows: there is no POSIX uid/gid model
// to drop to, matching spec.md §9's "Pseudo-terminal handling is
// POSIX-only" precedent of scoping POSIX-only features out of Windows
// builds rather than faking them.
func DropPrivileges(user, group string) (uid, gid int, dropped bool, err error) {
	if user != "" || group != "" {
		return 0, 0, false, fmt.Errorf("taskmasterd: TASKMASTER_RUN_AS_USER/GROUP is unsupported on windows")
	}
	return 0, 0, false, nil
}
