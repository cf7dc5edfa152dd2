package websocket

import (
	"context"
	"sync"

	"github.com/Wideyedwonderer/buscuit-maker/internal/events"
	"github.com/Wideyedwonderer/buscuit-maker/internal/machine"
	"go.uber.org/zap"
)

// Machine is what observers can reach through the socket.
type Machine interface {
	ExecuteCommand(ctx context.Context, cmd machine.Command) error
	InitialConfig() events.InitialConfig
}

// Hub maintains active WebSocket clients and fans machine events out to them
type Hub struct {
	// Registered clients
	clients map[*Client]bool

	register   chan *Client
	unregister chan *Client

	// Per-client replies (command errors)
	replies chan reply

	mu       sync.RWMutex
	done     chan struct{}
	stopOnce sync.Once

	// Latest value of each non-transient event, in first-seen order, as
	// processed by Run
	latest  map[events.Name][]byte
	order   []events.Name
	running bool

	logger  *zap.Logger
	source  *events.Broadcaster
	machine Machine
}

func NewHub(logger *zap.Logger, source *events.Broadcaster, m Machine) *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		replies:    make(chan reply, sendBufferSize),
		latest:     make(map[events.Name][]byte),
		done:       make(chan struct{}),
		logger:     logger,
		source:     source,
		machine:    m,
	}
}

// Run subscribes to the broadcaster and serves clients until ctx is done or
// the broadcaster closes.
func (h *Hub) Run(ctx context.Context) {
	id, feed, snapshot := h.source.Subscribe()
	defer h.source.Unsubscribe(id)

	for _, e := range snapshot {
		h.remember(e)
	}

	h.setRunning(true)
	defer h.shutdown()

	h.logger.Info("WebSocket Hub started", zap.Int("replayable_events", len(snapshot)))

	for {
		select {
		case <-ctx.Done():
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			total := len(h.clients)
			h.mu.Unlock()

			h.greet(client)
			h.logger.Info("WebSocket client registered",
				zap.String("remote_addr", client.remoteAddr()),
				zap.Int("total_clients", total))

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
				h.logger.Info("WebSocket client unregistered",
					zap.String("remote_addr", client.remoteAddr()),
					zap.Int("total_clients", len(h.clients)))
			}
			h.mu.Unlock()

		case r := <-h.replies:
			h.mu.Lock()
			if h.clients[r.client] {
				h.deliver(r.client, r.data)
			}
			h.mu.Unlock()

		case e, ok := <-feed:
			if !ok {
				return
			}
			data := h.remember(e)
			if data == nil {
				continue
			}

			h.mu.Lock()
			for client := range h.clients {
				h.deliver(client, data)
			}
			h.mu.Unlock()
		}
	}
}

// remember encodes e and records it for replay unless it is transient.
func (h *Hub) remember(e events.Event) []byte {
	data, err := encode(e)
	if err != nil {
		h.logger.Error("Failed to marshal event",
			zap.String("event", string(e.Name)),
			zap.Error(err))
		return nil
	}

	if !e.Name.Transient() {
		h.mu.Lock()
		if _, seen := h.latest[e.Name]; !seen {
			h.order = append(h.order, e.Name)
		}
		h.latest[e.Name] = data
		h.mu.Unlock()
	}
	return data
}

// greet sends the static configuration followed by the replay.
func (h *Hub) greet(client *Client) {
	initial, err := encode(events.New(events.InitialConfigName, h.machine.InitialConfig()))
	if err != nil {
		h.logger.Error("Failed to marshal initial config", zap.Error(err))
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	h.deliver(client, initial)
	for _, name := range h.order {
		h.deliver(client, h.latest[name])
	}
}

// deliver queues data for client. A client whose buffer is full is dropped.
// Callers hold mu.
func (h *Hub) deliver(client *Client, data []byte) {
	if !h.clients[client] {
		return
	}
	select {
	case client.send <- data:
	default:
		close(client.send)
		delete(h.clients, client)
		h.logger.Warn("Client send buffer full, unregistering",
			zap.String("remote_addr", client.remoteAddr()))
	}
}

// Reply sends e to a single client.
func (h *Hub) Reply(client *Client, e events.Event) {
	data, err := encode(e)
	if err != nil {
		h.logger.Error("Failed to marshal reply", zap.Error(err))
		return
	}

	select {
	case h.replies <- reply{client: client, data: data}:
	default:
		h.logger.Warn("Hub reply channel full, message dropped",
			zap.String("event", string(e.Name)))
	}
}

func (h *Hub) shutdown() {
	h.stopOnce.Do(func() { close(h.done) })

	h.mu.Lock()
	defer h.mu.Unlock()

	for client := range h.clients {
		delete(h.clients, client)
		close(client.send)
	}
	h.running = false
	h.logger.Info("WebSocket Hub stopped")
}

// join registers client. It returns false once the hub has stopped.
func (h *Hub) join(client *Client) bool {
	select {
	case h.register <- client:
		return true
	case <-h.done:
		return false
	}
}

func (h *Hub) leave(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

func (h *Hub) setRunning(running bool) {
	h.mu.Lock()
	h.running = running
	h.mu.Unlock()
}

// GetClientCount returns the number of connected clients
func (h *Hub) GetClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) Status() HubStatus {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return HubStatus{
		Clients:    len(h.clients),
		Running:    h.running,
		Replayable: len(h.order),
	}
}
