package realtime

import (
	"sync"

	"github.com/google/uuid"

	"github.com/luissimon96/migration-validation-voe/internal/pkg/logger"
)

// SSEMessage is one event delivered to subscribers of a channel. Channel is
// a session's request_id for session-scoped events; Event names the kind of
// transition; Data is the JSON-shaped payload written to the wire verbatim.
type SSEMessage struct {
	Channel string         `json:"channel"`
	Event   string         `json:"event"`
	Data    map[string]any `json:"data"`
}

const (
	SSEEventSessionCreated   = "session.created"
	SSEEventSessionQueued    = "session.queued"
	SSEEventSessionProgress  = "session.progress"
	SSEEventSessionLog       = "session.log"
	SSEEventSessionCompleted = "session.completed"
	SSEEventSessionFailed    = "session.failed"
	SSEEventSessionCancelled = "session.cancelled"
	SSEEventSessionTimedOut  = "session.timed_out"
)

// outboundBuffer bounds how many undelivered messages a slow subscriber can
// accumulate before the hub starts dropping its oldest events rather than
// blocking the broadcaster.
const outboundBuffer = 1024

// SSEHub multiplexes broadcast messages to per-channel subscriber sets. A
// channel is typically a session's request_id; one client may subscribe to
// several channels (e.g. a dashboard view watching many sessions at once).
type SSEHub struct {
	log *logger.Logger

	mu       sync.RWMutex
	clients  map[uuid.UUID]*SSEClient
	channels map[string]map[uuid.UUID]*SSEClient
}

func NewSSEHub(log *logger.Logger) *SSEHub {
	return &SSEHub{
		log:      log.With("service", "SSEHub"),
		clients:  make(map[uuid.UUID]*SSEClient),
		channels: make(map[string]map[uuid.UUID]*SSEClient),
	}
}

func (h *SSEHub) NewSSEClient(userID uuid.UUID) *SSEClient {
	c := &SSEClient{
		ID:       uuid.New(),
		UserID:   userID,
		Channels: make(map[string]bool),
		Outbound: make(chan SSEMessage, outboundBuffer),
		done:     make(chan struct{}),
		Logger:   h.log,
	}
	h.mu.Lock()
	h.clients[c.ID] = c
	h.mu.Unlock()
	return c
}

// AddChannel subscribes an already-registered client to an additional
// channel. Safe to call multiple times for the same channel; idempotent.
func (h *SSEHub) AddChannel(c *SSEClient, channel string) {
	if c == nil || channel == "" {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c.ID]; !ok {
		h.clients[c.ID] = c
	}
	c.Channels[channel] = true
	set, ok := h.channels[channel]
	if !ok {
		set = make(map[uuid.UUID]*SSEClient)
		h.channels[channel] = set
	}
	set[c.ID] = c
}

func (h *SSEHub) RemoveChannel(c *SSEClient, channel string) {
	if c == nil || channel == "" {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(c.Channels, channel)
	if set, ok := h.channels[channel]; ok {
		delete(set, c.ID)
		if len(set) == 0 {
			delete(h.channels, channel)
		}
	}
}

// Broadcast delivers msg to every client currently subscribed to
// msg.Channel. Delivery is best-effort: a client whose outbound buffer is
// full has its oldest queued message dropped to make room rather than
// stalling the broadcaster, matching the broker's best-effort delivery
// contract.
func (h *SSEHub) Broadcast(msg SSEMessage) {
	h.mu.RLock()
	set := h.channels[msg.Channel]
	targets := make([]*SSEClient, 0, len(set))
	for _, c := range set {
		targets = append(targets, c)
	}
	h.mu.RUnlock()

	for _, c := range targets {
		select {
		case c.Outbound <- msg:
		default:
			select {
			case <-c.Outbound:
			default:
			}
			select {
			case c.Outbound <- msg:
			default:
				h.log.Warn("dropped SSE message, subscriber outbound full", "client_id", c.ID, "channel", msg.Channel)
			}
		}
	}
}

// CloseClient unsubscribes a client from every channel, closes its outbound
// channel, and removes it from the hub. Safe to call once; a second call is
// a no-op.
func (h *SSEHub) CloseClient(c *SSEClient) {
	if c == nil {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c.ID]; !ok {
		return
	}
	for channel := range c.Channels {
		if set, ok := h.channels[channel]; ok {
			delete(set, c.ID)
			if len(set) == 0 {
				delete(h.channels, channel)
			}
		}
	}
	delete(h.clients, c.ID)
	close(c.done)
	close(c.Outbound)
}

// Subscribers reports how many clients are currently watching a channel.
func (h *SSEHub) Subscribers(channel string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.channels[channel])
}
