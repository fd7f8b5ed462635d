package ws

import (
	"encoding/json"
	"log"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/agent-pulse/backend/internal/locator"
	"github.com/agent-pulse/backend/internal/stats"
)

type client struct {
	conn *websocket.Conn
	send chan []byte
}

func newClient(conn *websocket.Conn) *client {
	c := &client{
		conn: conn,
		send: make(chan []byte, 64),
	}
	go c.writePump()
	return c
}

func (c *client) writePump() {
	defer c.conn.Close()
	for msg := range c.send {
		if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			return
		}
	}
}

func (c *client) close() {
	close(c.send)
}

// Broadcaster fans bus events out to connected WebSocket clients. Each
// client has a buffered send channel drained by its own writePump; a client
// that cannot keep up is disconnected rather than blocking the rest.
type Broadcaster struct {
	mu       sync.RWMutex
	clients  map[*client]bool
	snapshot func() SnapshotPayload

	unsubs    []func()
	closeOnce sync.Once
}

// NewBroadcaster takes a snapshot source used for the on-connect message
// and the full refresh after a session start.
func NewBroadcaster(snapshot func() SnapshotPayload) *Broadcaster {
	return &Broadcaster{
		clients:  make(map[*client]bool),
		snapshot: snapshot,
	}
}

// Attach subscribes the broadcaster to every bus topic, translating each
// event into a typed delta message. Session starts additionally trigger a
// full snapshot, sent from a separate goroutine because the snapshot source
// locks the monitor that is mid-publish.
func (b *Broadcaster) Attach(bus *stats.Bus) {
	sub := func(u func()) { b.unsubs = append(b.unsubs, u) }

	sub(bus.TokenUsage.Subscribe(func(u stats.TokenUsage) {
		b.broadcast(WSMessage{Type: MsgTokenUsage, Payload: u})
	}))
	sub(bus.ToolCall.Subscribe(func(tc stats.ToolCall) {
		b.broadcast(WSMessage{Type: MsgToolCall, Payload: tc})
	}))
	sub(bus.ToolAnalytics.Subscribe(func(ta map[string]stats.ToolAnalytics) {
		b.broadcast(WSMessage{Type: MsgToolAnalytics, Payload: ta})
	}))
	sub(bus.Timeline.Subscribe(func(te stats.TimelineEvent) {
		b.broadcast(WSMessage{Type: MsgTimeline, Payload: te})
	}))
	sub(bus.Latency.Subscribe(func(ls stats.LatencyStats) {
		b.broadcast(WSMessage{Type: MsgLatency, Payload: ls})
	}))
	sub(bus.Compaction.Subscribe(func(ce stats.CompactionEvent) {
		b.broadcast(WSMessage{Type: MsgCompaction, Payload: ce})
	}))
	sub(bus.DiscoveryMode.Subscribe(func(on bool) {
		b.broadcast(WSMessage{Type: MsgDiscoveryMode, Payload: DiscoveryPayload{Discovery: on}})
	}))
	sub(bus.SessionStart.Subscribe(func(path string) {
		b.broadcast(WSMessage{Type: MsgSessionStart, Payload: SessionPayload{Path: path, ID: locator.SessionID(path)}})
		go b.BroadcastSnapshot()
	}))
	sub(bus.SessionEnd.Subscribe(func(path string) {
		b.broadcast(WSMessage{Type: MsgSessionEnd, Payload: SessionPayload{Path: path, ID: locator.SessionID(path)}})
	}))
}

// AddClient registers conn and queues it a full snapshot.
func (b *Broadcaster) AddClient(conn *websocket.Conn) *client {
	c := newClient(conn)

	b.mu.Lock()
	b.clients[c] = true
	b.mu.Unlock()

	msg := WSMessage{Type: MsgSnapshot, Payload: b.snapshot()}
	data, _ := json.Marshal(msg)

	select {
	case c.send <- data:
	default:
		// Client too slow, drop the snapshot
	}

	return c
}

func (b *Broadcaster) RemoveClient(c *client) {
	b.mu.Lock()
	if _, ok := b.clients[c]; ok {
		delete(b.clients, c)
		c.close()
	}
	b.mu.Unlock()
}

// BroadcastSnapshot pushes the full aggregate state to every client.
func (b *Broadcaster) BroadcastSnapshot() {
	b.broadcast(WSMessage{Type: MsgSnapshot, Payload: b.snapshot()})
}

func (b *Broadcaster) broadcast(msg WSMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		log.Printf("broadcast marshal error: %v", err)
		return
	}

	b.mu.RLock()
	clients := make([]*client, 0, len(b.clients))
	for c := range b.clients {
		clients = append(clients, c)
	}
	b.mu.RUnlock()

	for _, c := range clients {
		select {
		case c.send <- data:
		default:
			// Client can't keep up, disconnect it
			log.Printf("ws client too slow, disconnecting")
			b.RemoveClient(c)
		}
	}
}

func (b *Broadcaster) ClientCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.clients)
}

// Close unsubscribes from the bus and disconnects every client. Idempotent.
func (b *Broadcaster) Close() {
	b.closeOnce.Do(func() {
		for _, u := range b.unsubs {
			u()
		}
		b.mu.Lock()
		for c := range b.clients {
			delete(b.clients, c)
			c.close()
		}
		b.mu.Unlock()
	})
}
