// Package ctlsocket is the control surface (spec §2): a unix-socket,
// line-based exit/pause/resume/is-paused protocol, grounded on the
// teacher's preference for hand-rolled control loops over a framing
// library for small local-admin protocols.
package ctlsocket

import (
	"bufio"
	"fmt"
	"net"
	"os"
	"strings"
	"sync"

	"k8s.io/klog/v2"
)

// Server accepts control connections on a unix socket and dispatches
// single-line commands (spec §2 "exit/pause/resume/is-paused").
type Server struct {
	mu       sync.Mutex
	paused   bool
	listener net.Listener
	onExit   func()
}

// New binds path, removing any stale socket left behind by a previous
// run. onExit is called once when "exit" is received.
func New(path string, onExit func()) (*Server, error) {
	_ = os.Remove(path)
	l, err := net.Listen("unix", path)
	if err != nil {
		return nil, fmt.Errorf("binding control socket %s: %w", path, err)
	}
	return &Server{listener: l, onExit: onExit}, nil
}

// IsPaused reports whether "pause" was the most recently accepted command
// (the engine's RunLoop polls this once per leading iteration and skips
// only the commit step while it is set; fetch and the cycle still run).
func (s *Server) IsPaused() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.paused
}

// Serve blocks accepting connections until the listener is closed.
func (s *Server) Serve() {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			klog.V(4).Infof("control socket closed: %v", err)
			return
		}
		go s.handle(conn)
	}
}

func (s *Server) Close() error {
	return s.listener.Close()
}

func (s *Server) handle(conn net.Conn) {
	defer conn.Close()
	scanner := bufio.NewScanner(conn)
	for scanner.Scan() {
		cmd := strings.TrimSpace(scanner.Text())
		reply := s.dispatch(cmd)
		if _, err := fmt.Fprintln(conn, reply); err != nil {
			klog.V(5).Infof("control socket write failed: %v", err)
			return
		}
	}
}

func (s *Server) dispatch(cmd string) string {
	switch cmd {
	case "pause":
		s.mu.Lock()
		s.paused = true
		s.mu.Unlock()
		klog.Info("control socket: paused")
		return "ok"
	case "resume":
		s.mu.Lock()
		s.paused = false
		s.mu.Unlock()
		klog.Info("control socket: resumed")
		return "ok"
	case "is-paused":
		if s.IsPaused() {
			return "paused"
		}
		return "running"
	case "exit":
		klog.Info("control socket: exit requested")
		if s.onExit != nil {
			go s.onExit()
		}
		return "ok"
	default:
		return "unknown command: " + cmd
	}
}
