package notification

import (
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

// EventType names a real-time event pushed to connected clients.
type EventType string

const (
	EventStatusUpdate    EventType = "STATUS_UPDATE"
	EventLicenseCreated  EventType = "LICENSE_CREATED"
	EventLicenseUpdated  EventType = "LICENSE_UPDATED"
	EventLicenseDeleted  EventType = "LICENSE_DELETED"
	EventDashboardUpdate EventType = "DASHBOARD_UPDATE"
)

var (
	ErrClientClosed = errors.New("SSE client closed")
	ErrChannelFull  = errors.New("SSE message channel full")
)

// DefaultClientBuffer is the per-client message buffer.
const DefaultClientBuffer = 64

// Event is the wire envelope of every real-time message.
type Event struct {
	Type EventType `json:"type"`
	Data any       `json:"data"`
}

// Message is a serialized event ready to be written to a stream.
type Message struct {
	ID        string          `json:"id"`
	Type      EventType       `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	Timestamp time.Time       `json:"timestamp"`
}

// NewMessage serializes an event envelope.
func NewMessage(eventType EventType, data any) (*Message, error) {
	payload, err := json.Marshal(Event{Type: eventType, Data: data})
	if err != nil {
		return nil, err
	}
	return &Message{
		ID:        uuid.New().String(),
		Type:      eventType,
		Payload:   payload,
		Timestamp: time.Now().UTC(),
	}, nil
}

// StatusUpdate is the data of a STATUS_UPDATE event.
type StatusUpdate struct {
	LicenseID int64  `json:"licenseId"`
	State     string `json:"state"`
	Status    string `json:"status"`
	License   any    `json:"license"`
}

// Client is one open real-time connection. Send never blocks and never panics after
// Close.
type Client struct {
	ID          string
	UserID      *uuid.UUID
	ConnectedAt time.Time

	mu       sync.Mutex
	closed   bool
	messages chan *Message
}

// NewClient creates a client with a buffer of the given size.
func NewClient(id string, userID *uuid.UUID, buffer int) *Client {
	if buffer <= 0 {
		buffer = DefaultClientBuffer
	}
	return &Client{
		ID:          id,
		UserID:      userID,
		ConnectedAt: time.Now().UTC(),
		messages:    make(chan *Message, buffer),
	}
}

// Messages returns the receive side of the client's buffer. It is closed by Close.
func (c *Client) Messages() <-chan *Message {
	return c.messages
}

// Send enqueues msg without blocking.
func (c *Client) Send(msg *Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClientClosed
	}
	select {
	case c.messages <- msg:
		return nil
	default:
		return ErrChannelFull
	}
}

// Close marks the client closed and releases its reader. It is idempotent.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.messages)
}

func (c *Client) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}
