//go:build windows

package config

// PtySupported gates `console: true` at load time (spec.md §9: "Pseudo-
// terminal handling is POSIX-only"); refused with a ConfigError here.
const PtySupported = false
