package sync

import (
	"time"

	"oncostats/internal/dispatch"
)

// Client request types.
const (
	RequestSelect = "select"
	RequestList   = "list"
	RequestPing   = "ping"
)

// Server event types.
const (
	EventWelcome        = "welcome"
	EventCategories     = "categories"
	EventResult         = "result"
	EventError          = "error"
	EventPong           = "pong"
	EventDatasetChanged = "dataset.changed"
)

// Request is one line (TCP) or message (websocket) from a client.
type Request struct {
	Type     string `json:"type"`
	Category string `json:"category,omitempty"`
}

// Event is everything the server pushes to sessions.
type Event struct {
	Type       string           `json:"type"`
	SessionID  string           `json:"session_id,omitempty"`
	Transport  string           `json:"transport,omitempty"`
	Category   string           `json:"category,omitempty"`
	Categories []string         `json:"categories,omitempty"`
	Source     string           `json:"source,omitempty"`
	Refresh    bool             `json:"refresh,omitempty"`
	Result     *dispatch.Result `json:"result,omitempty"`
	Code       string           `json:"code,omitempty"`
	Error      string           `json:"error,omitempty"`
	At         time.Time        `json:"at"`
}
