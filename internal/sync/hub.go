package sync

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"oncostats/internal/dispatch"
)

const (
	TransportTCP = "tcp"
	TransportWS  = "websocket"
)

// Selector is the part of dispatch.Dispatcher sessions use.
type Selector interface {
	Categories() []string
	Dispatch(ctx context.Context, id string) (*dispatch.Result, error)
}

// Session is one connected client. Writes are serialized; the current
// selection is re-dispatched when its dataset changes.
type Session struct {
	ID        string
	Transport string

	mu       sync.Mutex
	selected string
	write    func([]byte) error
	close    func() error
}

func (s *Session) Send(ev Event) error {
	if ev.At.IsZero() {
		ev.At = time.Now().UTC()
	}
	b, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	b = append(b, '\n')

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.write(b)
}

// Selected returns the category the session last selected successfully.
func (s *Session) Selected() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.selected
}

func (s *Session) setSelected(id string) {
	s.mu.Lock()
	s.selected = id
	s.mu.Unlock()
}

type Hub struct {
	mu       sync.Mutex
	sessions map[string]*Session

	Selector Selector
	Logger   *zap.Logger
}

type Stats struct {
	TCPClients int `json:"tcp_clients"`
	WSClients  int `json:"ws_clients"`
}

func NewHub(sel Selector, logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		sessions: make(map[string]*Session),
		Selector: sel,
		Logger:   logger.Named("sync"),
	}
}

// Open registers a session and greets it with the category list.
func (h *Hub) Open(transport string, write func([]byte) error, closeFn func() error) *Session {
	s := &Session{ID: uuid.NewString(), Transport: transport, write: write, close: closeFn}

	h.mu.Lock()
	h.sessions[s.ID] = s
	h.mu.Unlock()

	h.Logger.Info("session opened", zap.String("session_id", s.ID), zap.String("transport", transport))
	_ = s.Send(Event{
		Type:       EventWelcome,
		SessionID:  s.ID,
		Transport:  transport,
		Categories: h.Selector.Categories(),
	})
	return s
}

func (h *Hub) Close(s *Session) {
	h.mu.Lock()
	_, ok := h.sessions[s.ID]
	delete(h.sessions, s.ID)
	h.mu.Unlock()

	if ok {
		_ = s.close()
		h.Logger.Info("session closed", zap.String("session_id", s.ID))
	}
}

// CloseAll ends every session, used on shutdown.
func (h *Hub) CloseAll() {
	for _, s := range h.snapshot() {
		h.Close(s)
	}
}

// Handle answers one client request on s.
func (h *Hub) Handle(ctx context.Context, s *Session, raw []byte) {
	var req Request
	if err := json.Unmarshal(raw, &req); err != nil {
		_ = s.Send(Event{Type: EventError, Code: "bad_request", Error: fmt.Sprintf("invalid request: %v", err)})
		return
	}

	switch req.Type {
	case RequestSelect:
		h.selectCategory(ctx, s, req.Category, false)
	case RequestList:
		_ = s.Send(Event{Type: EventCategories, Categories: h.Selector.Categories()})
	case RequestPing:
		_ = s.Send(Event{Type: EventPong})
	default:
		_ = s.Send(Event{Type: EventError, Code: "bad_request", Error: fmt.Sprintf("unknown request type %q", req.Type)})
	}
}

func (h *Hub) selectCategory(ctx context.Context, s *Session, id string, refresh bool) {
	res, err := h.Selector.Dispatch(ctx, id)
	if err != nil {
		h.Logger.Debug("select failed", zap.String("session_id", s.ID), zap.String("category", id), zap.Error(err))
		_ = s.Send(Event{Type: EventError, Category: id, Refresh: refresh, Code: dispatch.ErrorCode(err), Error: err.Error()})
		return
	}
	s.setSelected(res.Category)
	if err := s.Send(Event{Type: EventResult, Category: res.Category, Refresh: refresh, Result: res}); err != nil {
		h.Logger.Warn("send failed", zap.String("session_id", s.ID), zap.Error(err))
		h.Close(s)
	}
}

// DatasetChanged tells every session that source changed and re-dispatches
// the selection of sessions viewing one of categories.
func (h *Hub) DatasetChanged(ctx context.Context, source string, categories []string) {
	ev := Event{Type: EventDatasetChanged, Source: source, Categories: categories}
	for _, s := range h.snapshot() {
		if err := s.Send(ev); err != nil {
			h.Close(s)
			continue
		}
		if sel := s.Selected(); sel != "" && slices.Contains(categories, sel) {
			h.selectCategory(ctx, s, sel, true)
		}
	}
}

func (h *Hub) snapshot() []*Session {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]*Session, 0, len(h.sessions))
	for _, s := range h.sessions {
		out = append(out, s)
	}
	return out
}

func (h *Hub) Stats() Stats {
	h.mu.Lock()
	defer h.mu.Unlock()
	var st Stats
	for _, s := range h.sessions {
		switch s.Transport {
		case TransportTCP:
			st.TCPClients++
		case TransportWS:
			st.WSClients++
		}
	}
	return st
}
