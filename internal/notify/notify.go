// Package notify pushes dataset change notices to UDP subscribers.
package notify

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"sync"
	"time"

	"go.uber.org/zap"
)

const (
	SubscribeMessageType   = "subscribe"
	UnsubscribeMessageType = "unsubscribe"
	ChangedMessageType     = "dataset.changed"
)

type SubscribeMessage struct {
	Type     string `json:"type"`
	ClientID string `json:"client_id"`
}

type ChangedMessage struct {
	Type       string    `json:"type"`
	Source     string    `json:"source"`
	Categories []string  `json:"categories"`
	At         time.Time `json:"at"`
}

type Client struct {
	ID   string
	Addr *net.UDPAddr
}

type Registry struct {
	mu      sync.RWMutex
	clients map[string]Client
}

func NewRegistry() *Registry {
	return &Registry{clients: make(map[string]Client)}
}

func (r *Registry) Register(id string, addr *net.UDPAddr) {
	if id == "" || addr == nil {
		return
	}
	r.mu.Lock()
	r.clients[id] = Client{ID: id, Addr: addr}
	r.mu.Unlock()
}

func (r *Registry) Remove(id string) {
	r.mu.Lock()
	delete(r.clients, id)
	r.mu.Unlock()
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.clients)
}

func (r *Registry) Snapshot() []Client {
	r.mu.RLock()
	defer r.mu.RUnlock()
	clients := make([]Client, 0, len(r.clients))
	for _, client := range r.clients {
		clients = append(clients, client)
	}
	return clients
}

// Server accepts subscribe/unsubscribe datagrams and sends every subscriber
// a ChangedMessage when a dataset changes.
type Server struct {
	Addr     string
	Registry *Registry
	logger   *zap.Logger

	mu     sync.Mutex
	conn   *net.UDPConn
	closed bool
}

func NewServer(addr string, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{Addr: addr, Registry: NewRegistry(), logger: logger.Named("notify")}
}

// Run listens on Addr and serves until Close.
func (s *Server) Run() error {
	udpAddr, err := net.ResolveUDPAddr("udp", s.Addr)
	if err != nil {
		return err
	}
	conn, err := net.ListenUDP("udp", udpAddr)
	if err != nil {
		return err
	}
	return s.Serve(conn)
}

// Serve reads subscriptions from conn until it is closed. A closed conn is
// a clean stop.
func (s *Server) Serve(conn *net.UDPConn) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return conn.Close()
	}
	s.conn = conn
	s.mu.Unlock()
	defer conn.Close()

	s.logger.Info("UDP notify server listening", zap.String("addr", conn.LocalAddr().String()))

	buffer := make([]byte, 2048)
	for {
		n, addr, err := conn.ReadFromUDP(buffer)
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			return err
		}
		msg, err := parseSubscribeMessage(buffer[:n])
		if err != nil {
			s.logger.Debug("invalid UDP message", zap.Stringer("from", addr), zap.Error(err))
			continue
		}
		switch msg.Type {
		case SubscribeMessageType:
			s.Registry.Register(msg.ClientID, addr)
			s.logger.Info("subscribed", zap.String("client", msg.ClientID), zap.Stringer("addr", addr))
		case UnsubscribeMessageType:
			s.Registry.Remove(msg.ClientID)
		}
	}
}

func (s *Server) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	if s.conn == nil {
		return nil
	}
	return s.conn.Close()
}

// DatasetChanged sends one notice to every subscriber. A subscriber that
// fails twice in a row is dropped.
func (s *Server) DatasetChanged(_ context.Context, source string, categories []string) {
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()
	if conn == nil {
		s.logger.Warn("UDP notify server not running")
		return
	}

	payload, err := json.Marshal(ChangedMessage{
		Type:       ChangedMessageType,
		Source:     source,
		Categories: categories,
		At:         time.Now().UTC(),
	})
	if err != nil {
		s.logger.Error("failed to marshal notice", zap.Error(err))
		return
	}

	for _, client := range s.Registry.Snapshot() {
		s.sendWithRetry(conn, client, payload)
	}
}

func (s *Server) sendWithRetry(conn *net.UDPConn, client Client, payload []byte) {
	if err := sendOnce(conn, client, payload); err == nil {
		return
	}
	if err := sendOnce(conn, client, payload); err != nil {
		s.logger.Warn("dropping subscriber", zap.String("client", client.ID), zap.Stringer("addr", client.Addr), zap.Error(err))
		s.Registry.Remove(client.ID)
	}
}

func sendOnce(conn *net.UDPConn, client Client, payload []byte) error {
	if client.Addr == nil {
		return errors.New("missing client address")
	}
	_, err := conn.WriteToUDP(payload, client.Addr)
	return err
}

func parseSubscribeMessage(data []byte) (SubscribeMessage, error) {
	var msg SubscribeMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return msg, err
	}
	if msg.ClientID == "" || msg.Type == "" {
		return msg, errors.New("missing required fields")
	}
	return msg, nil
}
