// Package ingest runs the loopback TCP line server that external text
// emitters connect to: injected instrumentation agents, delegate helper
// processes, and anything else that can write newline-delimited lines.
package ingest

import (
	"bytes"
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"pkt.systems/pslog"

	"github.com/textgrab/textgrab/internal/wire"
)

const (
	// readTimeout bounds every socket wait so the loops notice shutdown
	// promptly without depending on connection traffic.
	readTimeout = 500 * time.Millisecond
	// maxLineBytes drops absurd lines instead of buffering them.
	maxLineBytes = 64 * 1024
)

// Server accepts line-protocol connections and forwards parsed lines.
// A failing or misbehaving connection is dropped in isolation; the server
// and its other connections keep running.
type Server struct {
	host string
	port uint16
	pid  uint32

	// OnText receives text lines that pass the pid filter.
	OnText func(text, label string)
	// OnStatus receives status lines from connected emitters.
	OnStatus func(message string)

	mu       sync.Mutex
	listener net.Listener
	conns    map[net.Conn]struct{}
	closed   bool
	wg       sync.WaitGroup
}

// NewServer creates a server for the given loopback endpoint. pid is the
// capture target; lines claiming a different pid are discarded.
func NewServer(host string, port uint16, pid uint32) *Server {
	return &Server{
		host:  host,
		port:  port,
		pid:   pid,
		conns: make(map[net.Conn]struct{}),
	}
}

// Start binds the listener and begins accepting. A bind failure (typically
// the port being taken by another capture session) is returned to the caller
// rather than retried; the rest of the session keeps running without the
// socket channel.
func (s *Server) Start(ctx context.Context) error {
	if s.OnText == nil || s.OnStatus == nil {
		return fmt.Errorf("ingest: sink callbacks are required")
	}

	l, err := net.Listen("tcp", fmt.Sprintf("%s:%d", s.host, s.port))
	if err != nil {
		return fmt.Errorf("bind %s:%d: %w", s.host, s.port, err)
	}

	s.mu.Lock()
	s.listener = l
	s.closed = false
	s.mu.Unlock()

	go func() {
		<-ctx.Done()
		s.Close()
	}()

	s.wg.Add(1)
	go s.acceptLoop(ctx, l)

	pslog.Ctx(ctx).Debug("ingest listening", "addr", l.Addr().String())
	return nil
}

// Addr returns the bound address, useful when port 0 was requested.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Close shuts the listener and all live connections, then waits for the
// loops to drain.
func (s *Server) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	if s.listener != nil {
		_ = s.listener.Close()
	}
	for c := range s.conns {
		_ = c.Close()
	}
	s.mu.Unlock()
	s.wg.Wait()
}

func (s *Server) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *Server) acceptLoop(ctx context.Context, l net.Listener) {
	defer s.wg.Done()
	log := pslog.Ctx(ctx)
	for {
		if tl, ok := l.(*net.TCPListener); ok {
			_ = tl.SetDeadline(time.Now().Add(readTimeout))
		}
		conn, err := l.Accept()
		if err != nil {
			if s.isClosed() {
				return
			}
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				continue
			}
			log.Warn("ingest accept failed", "error", err.Error())
			continue
		}

		s.mu.Lock()
		if s.closed {
			s.mu.Unlock()
			_ = conn.Close()
			return
		}
		s.conns[conn] = struct{}{}
		s.mu.Unlock()

		s.wg.Add(1)
		go s.readLoop(ctx, conn)
	}
}

// readLoop consumes one connection. Partial lines survive read timeouts; a
// line only has to arrive eventually, not within one timeout window.
func (s *Server) readLoop(ctx context.Context, conn net.Conn) {
	defer s.wg.Done()
	defer func() {
		s.mu.Lock()
		delete(s.conns, conn)
		s.mu.Unlock()
		_ = conn.Close()
	}()

	log := pslog.Ctx(ctx)
	buf := make([]byte, 4096)
	var acc []byte
	for {
		_ = conn.SetReadDeadline(time.Now().Add(readTimeout))
		n, err := conn.Read(buf)
		if n > 0 {
			acc = append(acc, buf[:n]...)
			acc = s.drainLines(acc)
			if len(acc) > maxLineBytes {
				log.Warn("ingest line too long, dropping connection",
					"remote", conn.RemoteAddr().String())
				return
			}
		}
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() && !s.isClosed() {
				continue
			}
			// EOF or a real error: flush any unterminated tail and drop
			// just this connection.
			if tail := bytes.TrimSpace(acc); len(tail) > 0 {
				s.handleLine(string(tail))
			}
			return
		}
	}
}

// drainLines processes every complete line in acc and returns the remainder.
func (s *Server) drainLines(acc []byte) []byte {
	for {
		i := bytes.IndexByte(acc, '\n')
		if i < 0 {
			return acc
		}
		s.handleLine(string(bytes.TrimSpace(acc[:i])))
		acc = acc[i+1:]
	}
}

func (s *Server) handleLine(raw string) {
	l := wire.ParseLine(raw)
	if l.Empty() {
		return
	}
	if !l.MatchesPID(s.pid) {
		// The emitter is pointed at some other process.
		return
	}
	if l.Status != "" {
		s.OnStatus(l.Status)
	}
	if l.Text != "" {
		s.OnText(l.Text, l.Label)
	}
}
