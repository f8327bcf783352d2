// Package rpc frames the daemon's control-plane protocol (spec.md §4.5):
// newline-delimited JSON requests and responses over a Unix-domain
// socket, plus an optional TCP listener for remote access
// (daemon.tcp_listen_address). No example in the surrounding corpus
// implements a raw socket server of this shape, so the listener/framing
// code here is grounded directly on the standard library's net, bufio,
// and encoding/json rather than on any one teacher file; the dispatch
// table above it reuses the already-established api/handler/errdefs
// conventions.
package rpc

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"os"
	"os/user"
	"path/filepath"
	"strconv"
	"sync"

	"github.com/openlact/lactd/api"
	"github.com/openlact/lactd/internal/handler"
	"github.com/openlact/lactd/internal/log"
)

// maxLineBytes bounds a single request/response line, guarding against
// a runaway client filling server memory one unterminated line at a time.
const maxLineBytes = 16 << 20

// Server accepts connections on a Unix-domain socket and, optionally, a
// TCP address, and dispatches every decoded line through Dispatch.
type Server struct {
	h           *handler.Handler
	socketPath  string
	adminGroups []string
	tcpAddr     string

	mu        sync.Mutex
	listeners []net.Listener
	wg        sync.WaitGroup
}

// New builds a Server. socketPath and tcpAddr are resolved by the
// caller (cmd/lactd) from config.DaemonConfig; tcpAddr empty disables
// the TCP listener entirely.
func New(h *handler.Handler, socketPath string, adminGroups []string, tcpAddr string) *Server {
	return &Server{h: h, socketPath: socketPath, adminGroups: adminGroups, tcpAddr: tcpAddr}
}

// DefaultSocketPath picks /run/<name>.sock for root or
// /run/user/<uid>/<name>.sock otherwise (spec.md §6).
func DefaultSocketPath(name string) string {
	if os.Geteuid() == 0 {
		return filepath.Join("/run", name+".sock")
	}
	return filepath.Join("/run/user", strconv.Itoa(os.Getuid()), name+".sock")
}

// Serve opens the configured listeners and blocks, accepting
// connections until ctx is canceled. It always returns a non-nil error
// on the way out; context.Canceled after a clean shutdown is expected
// and not itself logged as a failure by the caller.
func (s *Server) Serve(ctx context.Context) error {
	unixLn, err := s.listenUnix()
	if err != nil {
		return fmt.Errorf("listening on %s: %w", s.socketPath, err)
	}
	s.addListener(unixLn)

	if s.tcpAddr != "" {
		tcpLn, err := net.Listen("tcp", s.tcpAddr)
		if err != nil {
			unixLn.Close()
			return fmt.Errorf("listening on %s: %w", s.tcpAddr, err)
		}
		s.addListener(tcpLn)
		log.Logger.Infow("rpc tcp listener started", "address", s.tcpAddr)
	}

	go func() {
		<-ctx.Done()
		s.closeListeners()
	}()

	errs := make(chan error, len(s.listeners))
	for _, ln := range s.listeners {
		ln := ln
		go func() { errs <- s.acceptLoop(ctx, ln) }()
	}

	var first error
	for range s.listeners {
		if err := <-errs; err != nil && first == nil && ctx.Err() == nil {
			first = err
		}
	}
	s.wg.Wait()

	if first != nil {
		return first
	}
	return ctx.Err()
}

func (s *Server) listenUnix() (net.Listener, error) {
	if err := os.Remove(s.socketPath); err != nil && !os.IsNotExist(err) {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(s.socketPath), 0o755); err != nil {
		return nil, err
	}

	ln, err := net.Listen("unix", s.socketPath)
	if err != nil {
		return nil, err
	}

	if err := applySocketPermissions(s.socketPath, s.adminGroups); err != nil {
		ln.Close()
		return nil, err
	}
	log.Logger.Infow("rpc unix listener started", "path", s.socketPath, "admin_groups", s.adminGroups)
	return ln, nil
}

// applySocketPermissions sets the socket's owning group to the first
// resolvable name in adminGroups and its mode to 0660 (spec.md §6):
// owner root, group admin, no world access.
func applySocketPermissions(path string, adminGroups []string) error {
	if err := os.Chmod(path, 0o660); err != nil {
		return err
	}
	for _, name := range adminGroups {
		grp, err := user.LookupGroup(name)
		if err != nil {
			continue
		}
		gid, err := strconv.Atoi(grp.Gid)
		if err != nil {
			continue
		}
		return os.Chown(path, -1, gid)
	}
	log.Logger.Warnw("no configured admin group could be resolved; socket left at root-only group", "admin_groups", adminGroups)
	return nil
}

func (s *Server) addListener(ln net.Listener) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, ln)
}

func (s *Server) closeListeners() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ln := range s.listeners {
		ln.Close()
	}
}

func (s *Server) acceptLoop(ctx context.Context, ln net.Listener) error {
	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.handleConn(ctx, conn)
		}()
	}
}

// handleConn reads newline-delimited JSON requests off conn, dispatches
// each, and writes back its newline-delimited JSON response in order.
// One connection handles requests sequentially: the daemon's mutating
// RPCs already serialize through Handler's own lock, so pipelining adds
// complexity without real concurrency to exploit.
func (s *Server) handleConn(ctx context.Context, conn net.Conn) {
	defer conn.Close()

	reader := bufio.NewReaderSize(conn, 4096)
	enc := json.NewEncoder(conn)

	for {
		line, err := readLine(reader)
		if err != nil {
			if err != io.EOF {
				log.Logger.Debugw("rpc connection read error", "error", err)
			}
			return
		}
		if len(line) == 0 {
			continue
		}

		resp := s.dispatchLine(ctx, line)
		if err := enc.Encode(resp); err != nil {
			log.Logger.Debugw("rpc connection write error", "error", err)
			return
		}
	}
}

// dispatchLine decodes one request line and runs it through Dispatch. A
// malformed line (bad JSON, or valid JSON missing an id) still gets an
// error response where possible so the client's request/response
// correlation doesn't silently stall.
func (s *Server) dispatchLine(ctx context.Context, line []byte) api.Response {
	var req api.Request
	if err := json.Unmarshal(line, &req); err != nil {
		return api.NewErrorResponse(0, "invalid_argument", fmt.Sprintf("malformed request: %v", err))
	}
	return Dispatch(ctx, s.h, req)
}

// readLine reads one '\n'-terminated line, stripping a trailing '\r',
// and bounds it at maxLineBytes to guard against an unterminated
// client flooding server memory.
func readLine(r *bufio.Reader) ([]byte, error) {
	line, err := r.ReadBytes('\n')
	if err != nil {
		if len(line) == 0 {
			return nil, err
		}
		if err != io.EOF {
			return nil, err
		}
	}
	if len(line) > maxLineBytes {
		return nil, fmt.Errorf("request line exceeds %d bytes", maxLineBytes)
	}
	line = bytes.TrimRight(line, "\r\n")
	return line, nil
}
