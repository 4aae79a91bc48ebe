package control

import (
	"bytes"
	"net"
	"os"
	"sync"
)

// hub fans a single program's pseudo-terminal master out to every
// attached client and multiplexes their input back in (spec.md §4.6
// "multiple clients may attach the same program; they receive
// identical output streams and all their input is multiplexed to the
// child"). Attach targets the first instance's master only; programs
// with numprocs > 1 expose just one pty, a documented simplification
// since spec.md's console mode is meant for single-instance programs.
type hub struct {
	mu      sync.Mutex
	master  *os.File
	clients map[net.Conn]struct{}
}

func newHub(master *os.File) *hub {
	h := &hub{master: master, clients: map[net.Conn]struct{}{}}
	go h.pump()
	return h
}

// pump copies master output to every attached client until the master
// closes, which happens when the instance is reaped or stopped — this
// is what forces every attached client to disconnect on program stop.
func (h *hub) pump() {
	buf := make([]byte, 4096)
	for {
		n, err := h.master.Read(buf)
		if n > 0 {
			h.broadcast(buf[:n])
		}
		if err != nil {
			h.closeAll()
			return
		}
	}
}

func (h *hub) broadcast(b []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		_, _ = c.Write(b)
	}
}

func (h *hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		_ = c.Close()
	}
	h.clients = map[net.Conn]struct{}{}
}

func (h *hub) add(c net.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[c] = struct{}{}
}

func (h *hub) remove(c net.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.clients, c)
}

func (h *hub) count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// bridge reads from conn and writes to the hub's master verbatim,
// except that the byte 0x1D (Ctrl-]) terminates the bridge without
// being forwarded (spec.md §4.6).
func (h *hub) bridge(conn net.Conn) {
	h.add(conn)
	defer h.remove(conn)

	buf := make([]byte, 4096)
	for {
		n, err := conn.Read(buf)
		if n > 0 {
			chunk := buf[:n]
			if idx := bytes.IndexByte(chunk, 0x1D); idx >= 0 {
				if idx > 0 {
					_, _ = h.master.Write(chunk[:idx])
				}
				return
			}
			if _, werr := h.master.Write(chunk); werr != nil {
				return
			}
		}
		if err != nil {
			return
		}
	}
}
