//go:build windows

package main

import (
	"os"
	"os/signal"
)

// notifySignals on Windows only has an interrupt equivalent to SIGINT;
// there is no SIGHUP, so reload stays control-socket-only on this
// platform (spec.md §9's precedent of scoping POSIX-only signal
// semantics out of Windows builds rather than faking them).
func notifySignals() (chan os.Signal, func()) {
	ch := make(chan os.Signal, 4)
	signal.Notify(ch, os.Interrupt)
	return ch, func() { signal.Stop(ch) }
}

func isReloadSignal(sig os.Signal) bool {
	return false
}
