package control

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"sync"

	"github.com/taskmasterd/taskmasterd/internal/registry"
	"github.com/taskmasterd/taskmasterd/internal/reload"
	"github.com/taskmasterd/taskmasterd/internal/supervisor"
)

// Server accepts control connections and dispatches the seven verbs of
// spec.md §4.6. One worker goroutine handles each connection, matching
// spec.md §5's "per-connection worker threads" model.
type Server struct {
	Registry   *registry.Registry
	Supervisor *supervisor.Supervisor
	Reload     *reload.Coordinator
	ConfigPath string
	SocketPath string

	listener net.Listener

	huMu sync.Mutex
	hubs map[string]*hub

	quitOnce sync.Once
	quitCh   chan struct{}
}

// testSkipPeerCheck lets this package's own tests exercise the dispatch
// logic without requiring the test binary to run as root; it is never
// set outside _test.go files.
var testSkipPeerCheck = false

func New(reg *registry.Registry, sup *supervisor.Supervisor, rc *reload.Coordinator, configPath, socketPath string) *Server {
	return &Server{
		Registry:   reg,
		Supervisor: sup,
		Reload:     rc,
		ConfigPath: configPath,
		SocketPath: socketPath,
		hubs:       map[string]*hub{},
		quitCh:     make(chan struct{}),
	}
}

// QuitRequested is closed once a "quit" verb has been handled, signaling
// the daemon entrypoint to begin shutdown.
func (s *Server) QuitRequested() <-chan struct{} { return s.quitCh }

// ListenAndServe opens the control socket and accepts connections until
// ctx is canceled.
func (s *Server) ListenAndServe(ctx context.Context) error {
	l, err := Listen(s.SocketPath)
	if err != nil {
		return err
	}
	s.listener = l
	defer Cleanup(s.SocketPath)

	go func() {
		<-ctx.Done()
		_ = l.Close()
	}()

	for {
		conn, err := l.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
				return err
			}
		}
		go s.handleConn(ctx, conn)
	}
}

func (s *Server) handleConn(ctx context.Context, conn net.Conn) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("control: connection worker panic", "panic", r)
		}
	}()
	defer conn.Close()

	if RequiresPeerCheck && !testSkipPeerCheck {
		if err := checkSuperuser(conn); err != nil {
			s.writeLine(conn, Response{OK: false, Message: err.Error()})
			return
		}
	}

	reader := bufio.NewScanner(conn)
	reader.Buffer(make([]byte, 0, 4096), 1<<20)
	for reader.Scan() {
		var req Request
		if err := json.Unmarshal(reader.Bytes(), &req); err != nil {
			s.writeLine(conn, Response{OK: false, Message: "malformed request: " + err.Error()})
			continue
		}

		resp, attachTarget := s.dispatch(ctx, req)
		s.writeLine(conn, resp)

		if attachTarget != "" {
			s.runAttach(attachTarget, conn)
			return
		}
		if resp.Shutdown {
			s.quitOnce.Do(func() { close(s.quitCh) })
			return
		}
	}
}

func (s *Server) writeLine(conn net.Conn, resp Response) {
	b, err := json.Marshal(resp)
	if err != nil {
		slog.Error("control: encoding response", "error", err)
		return
	}
	b = append(b, '\n')
	if _, err := conn.Write(b); err != nil {
		slog.Debug("control: writing response", "error", err)
	}
}

// dispatch handles a single request and returns the reply plus, for a
// successful attach, the program name to bridge into after the reply
// is written.
func (s *Server) dispatch(ctx context.Context, req Request) (Response, string) {
	switch req.Cmd {
	case "status":
		return Response{OK: true, Data: s.statusSnapshot()}, ""

	case "start":
		name, err := requireTarget(req)
		if err != nil {
			return errResponse(err), ""
		}
		if err := s.Supervisor.Start(ctx, name); err != nil {
			return errResponse(err), ""
		}
		return Response{OK: true}, ""

	case "stop":
		name, err := requireTarget(req)
		if err != nil {
			return errResponse(err), ""
		}
		if err := s.Supervisor.Stop(ctx, name); err != nil {
			return errResponse(err), ""
		}
		return Response{OK: true}, ""

	case "restart":
		name, err := requireTarget(req)
		if err != nil {
			return errResponse(err), ""
		}
		if err := s.Supervisor.Restart(ctx, name); err != nil {
			return errResponse(err), ""
		}
		return Response{OK: true}, ""

	case "reload":
		changed, err := s.Reload.Apply(ctx, s.ConfigPath)
		if err != nil {
			return errResponse(err), ""
		}
		return Response{OK: true, Message: reloadMessage(changed)}, ""

	case "attach":
		name, err := requireTarget(req)
		if err != nil {
			return errResponse(err), ""
		}
		if !s.canAttach(name) {
			return Response{OK: false, Message: "program has no attachable console"}, ""
		}
		return Response{OK: true, Attach: true, Target: name}, name

	case "quit":
		return Response{OK: true, Shutdown: true}, ""

	default:
		return Response{OK: false, Message: "unknown command " + req.Cmd}, ""
	}
}

func reloadMessage(changed bool) string {
	if changed {
		return "reloaded with changes"
	}
	return "reloaded, no changes"
}

func requireTarget(req Request) (string, error) {
	if req.Target == nil || *req.Target == "" {
		return "", errors.New("target is required")
	}
	return *req.Target, nil
}

func errResponse(err error) Response {
	return Response{OK: false, Message: err.Error()}
}

func (s *Server) statusSnapshot() []ProgramStatus {
	s.Registry.Lock()
	defer s.Registry.Unlock()

	names := s.Registry.Names()
	out := make([]ProgramStatus, 0, len(names))
	for _, name := range names {
		e := s.Registry.Get(name)
		if e == nil {
			continue
		}
		pid := 0
		if in, ok := e.Instances[1]; ok {
			pid = in.PID
		}
		out = append(out, ProgramStatus{
			Name:     name,
			PID:      pid,
			Status:   e.Status.String(),
			Cmd:      e.Spec.Cmd,
			Attached: s.hubAttachCount(name),
		})
	}
	return out
}

func (s *Server) hubAttachCount(name string) int {
	s.huMu.Lock()
	defer s.huMu.Unlock()
	if h, ok := s.hubs[name]; ok {
		return h.count()
	}
	return 0
}

func (s *Server) canAttach(name string) bool {
	s.Registry.Lock()
	defer s.Registry.Unlock()
	e := s.Registry.Get(name)
	if e == nil || e.Status != registry.Started {
		return false
	}
	in, ok := e.Instances[1]
	return ok && in.PTYMaster != nil
}

// runAttach bridges conn into the program's hub, creating it on first
// attach. Blocks until the bridge terminates (client EOF, Ctrl-], or
// the program's pty master closing).
//
// A cached hub is only reused if it still wraps the instance's current
// pty master: a stop/restart spawns a new instance with a new master
// (internal/launcher/output_unix.go), and the old hub's pump already
// exited and closed out its clients the moment the old master closed.
// Comparing the master pointer catches that rather than bridging a new
// client into a dead hub.
func (s *Server) runAttach(name string, conn net.Conn) {
	s.Registry.Lock()
	e := s.Registry.Get(name)
	if e == nil {
		s.Registry.Unlock()
		return
	}
	in, hasInstance := e.Instances[1]
	s.Registry.Unlock()
	if !hasInstance || in.PTYMaster == nil {
		return
	}

	s.huMu.Lock()
	h, ok := s.hubs[name]
	if ok && h.master != in.PTYMaster {
		ok = false
	}
	if !ok {
		h = newHub(in.PTYMaster)
		s.hubs[name] = h
	}
	s.huMu.Unlock()

	h.bridge(conn)
}
