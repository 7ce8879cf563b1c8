package sync

import (
	"bufio"
	"context"
	"errors"
	"net"
	"sync"
	"time"

	"go.uber.org/zap"
)

const writeTimeout = 2 * time.Second

// Server accepts newline-delimited JSON sessions over TCP.
type Server struct {
	Addr string
	Hub  *Hub

	mu     sync.Mutex
	ln     net.Listener
	cancel context.CancelFunc
	closed bool
	conns  map[net.Conn]struct{}
	wg     sync.WaitGroup
}

func NewServer(addr string, hub *Hub) *Server {
	return &Server{Addr: addr, Hub: hub}
}

func (s *Server) Run() error {
	ln, err := net.Listen("tcp", s.Addr)
	if err != nil {
		return err
	}
	return s.Serve(ln)
}

// Serve accepts on ln until Close.
func (s *Server) Serve(ln net.Listener) error {
	ctx, cancel := context.WithCancel(context.Background())
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		cancel()
		return ln.Close()
	}
	s.ln = ln
	s.cancel = cancel
	s.mu.Unlock()

	log := s.Hub.Logger.With(zap.String("listener", "tcp"))
	log.Info("listening", zap.String("addr", ln.Addr().String()))

	for {
		conn, err := ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			log.Warn("accept failed", zap.Error(err))
			continue
		}

		if !s.track(conn) {
			_ = conn.Close()
			return nil
		}
		s.wg.Add(1)
		go func(c net.Conn) {
			defer s.untrack(c)
			defer s.wg.Done()
			s.serveConn(ctx, c)
		}(conn)
	}
}

func (s *Server) track(c net.Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	if s.conns == nil {
		s.conns = make(map[net.Conn]struct{})
	}
	s.conns[c] = struct{}{}
	return true
}

func (s *Server) untrack(c net.Conn) {
	s.mu.Lock()
	delete(s.conns, c)
	s.mu.Unlock()
}

func (s *Server) serveConn(ctx context.Context, c net.Conn) {
	write := func(b []byte) error {
		_ = c.SetWriteDeadline(time.Now().Add(writeTimeout))
		w := bufio.NewWriter(c)
		if _, err := w.Write(b); err != nil {
			return err
		}
		return w.Flush()
	}
	sess := s.Hub.Open(TransportTCP, write, c.Close)
	defer s.Hub.Close(sess)

	sc := bufio.NewScanner(c)
	sc.Buffer(make([]byte, 0, 4096), 64*1024)
	for sc.Scan() {
		line := sc.Bytes()
		if len(line) == 0 {
			continue
		}
		s.Hub.Handle(ctx, sess, line)
	}
}

// Close stops accepting, drops every connection and waits for the
// connection goroutines.
func (s *Server) Close() error {
	s.mu.Lock()
	s.closed = true
	ln, cancel := s.ln, s.cancel
	conns := make([]net.Conn, 0, len(s.conns))
	for c := range s.conns {
		conns = append(conns, c)
	}
	s.mu.Unlock()
	if ln == nil {
		return nil
	}

	err := ln.Close()
	cancel()
	for _, c := range conns {
		_ = c.Close()
	}
	s.wg.Wait()
	return err
}
