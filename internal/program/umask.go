package program

import (
	"fmt"
	"strconv"
	"strings"
)

// ParseUmask parses an octal umask string such as "027" or "0o027". An
// empty string means "unset" (inherit the daemon's umask).
func ParseUmask(v string) (value int, set bool, err error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0, false, nil
	}
	v = strings.TrimPrefix(v, "0o")
	v = strings.TrimPrefix(v, "0O")
	n, perr := strconv.ParseInt(v, 8, 32)
	if perr != nil {
		return 0, false, fmt.Errorf("taskmasterd: invalid umask %q: %w", v, perr)
	}
	return int(n), true, nil
}

// ParseExitCodes normalizes the "exitcodes" field, which may be a scalar
// or a sequence in the source document, into a set.
func ParseExitCodes(values []int) map[int]struct{} {
	if len(values) == 0 {
		return map[int]struct{}{0: {}}
	}
	set := make(map[int]struct{}, len(values))
	for _, v := range values {
		set[v] = struct{}{}
	}
	return set
}
