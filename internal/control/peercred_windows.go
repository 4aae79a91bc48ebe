//go:build windows

package control

import "net"

func checkSuperuser(conn net.Conn) error { return nil }
