package wsgateway

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"pokercore/internal/auth"
	"pokercore/internal/events"
	"pokercore/internal/metrics"
)

// EnvelopeHandler processes one client-originated envelope. Registered
// per event type; unhandled types get an ERROR response.
type EnvelopeHandler func(ctx context.Context, conn *Connection, env events.Envelope)

// Gateway is the connection registry and broadcast fan-out.
type Gateway struct {
	auth     *auth.Service
	upgrader websocket.Upgrader

	mu          sync.RWMutex
	connections map[string]*Connection
	byUser      map[string]map[string]*Connection // userID -> connID -> conn

	handlersMu sync.RWMutex
	handlers   map[events.Type]EnvelopeHandler

	// Per-channel monotonically increasing versions plus a replay
	// buffer for the recovery protocol.
	versionsMu sync.Mutex
	versions   map[string]uint64
	replay     map[string][]versionedEnvelope

	heartbeatInterval time.Duration
	maxMissedPongs    int

	stop chan struct{}
	once sync.Once
}

type versionedEnvelope struct {
	version uint64
	data    []byte
}

// replayDepth bounds the per-channel recovery buffer.
const replayDepth = 64

// New creates a gateway authenticating handshakes with authService.
func New(authService *auth.Service, heartbeatInterval time.Duration, maxMissedPongs int) *Gateway {
	g := &Gateway{
		auth: authService,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Origin policy is enforced upstream by the CORS layer.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		connections:       make(map[string]*Connection),
		byUser:            make(map[string]map[string]*Connection),
		handlers:          make(map[events.Type]EnvelopeHandler),
		versions:          make(map[string]uint64),
		replay:            make(map[string][]versionedEnvelope),
		heartbeatInterval: heartbeatInterval,
		maxMissedPongs:    maxMissedPongs,
		stop:              make(chan struct{}),
	}
	g.registerBuiltins()
	return g
}

// Handle registers a handler for a client-originated event type.
func (g *Gateway) Handle(t events.Type, h EnvelopeHandler) {
	g.handlersMu.Lock()
	defer g.handlersMu.Unlock()
	g.handlers[t] = h
}

// ServeWS upgrades an HTTP request to a WebSocket connection. The
// client authenticates with ?token=<jwt>; an invalid token is rejected
// before the upgrade.
func (g *Gateway) ServeWS(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	userID, err := g.auth.Validate(token)
	if err != nil {
		http.Error(w, "invalid token", http.StatusUnauthorized)
		return
	}

	ws, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[WS] upgrade failed for %s: %v", userID, err)
		return
	}

	conn := newConnection(auth.GenerateID(), userID, ws)
	g.register(conn)

	conn.send(events.New(events.TypeConnectionState, map[string]any{
		"state":         "CONNECTED",
		"connection_id": conn.ID,
	}))

	go conn.WritePump()
	go conn.ReadPump(g.unregister, g.route)
}

func (g *Gateway) register(conn *Connection) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.connections[conn.ID] = conn
	if g.byUser[conn.UserID] == nil {
		g.byUser[conn.UserID] = make(map[string]*Connection)
	}
	g.byUser[conn.UserID][conn.ID] = conn
	metrics.WSConnections.Set(float64(len(g.connections)))
	log.Printf("[WS] connected %s (user %s, %d total)", conn.ID, conn.UserID, len(g.connections))
}

func (g *Gateway) unregister(conn *Connection) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.connections[conn.ID]; !ok {
		return
	}
	delete(g.connections, conn.ID)
	if conns := g.byUser[conn.UserID]; conns != nil {
		delete(conns, conn.ID)
		if len(conns) == 0 {
			delete(g.byUser, conn.UserID)
		}
	}
	conn.markClosed()
	close(conn.Send)
	metrics.WSConnections.Set(float64(len(g.connections)))
	log.Printf("[WS] disconnected %s (user %s, %d total)", conn.ID, conn.UserID, len(g.connections))
}

// route dispatches one inbound envelope to its handler.
func (g *Gateway) route(conn *Connection, env events.Envelope) {
	g.handlersMu.RLock()
	handler, ok := g.handlers[env.Type]
	g.handlersMu.RUnlock()
	if !ok {
		conn.send(events.New(events.TypeError, map[string]any{
			"code":    "UNKNOWN_EVENT_TYPE",
			"message": fmt.Sprintf("no handler for %s", env.Type),
		}).WithCorrelation(env.CorrelationID))
		return
	}
	handler(context.Background(), conn, env)
}

// registerBuiltins wires the protocol-level handlers: heartbeat,
// subscriptions, recovery.
func (g *Gateway) registerBuiltins() {
	g.Handle(events.TypePong, func(_ context.Context, conn *Connection, _ events.Envelope) {
		conn.recordPong()
	})
	g.Handle(events.TypePing, func(_ context.Context, conn *Connection, env events.Envelope) {
		conn.send(events.New(events.TypePong, nil).WithCorrelation(env.CorrelationID))
	})
	g.Handle(events.TypeSubscribeLobby, func(_ context.Context, conn *Connection, _ events.Envelope) {
		conn.subscribe("lobby")
	})
	g.Handle(events.TypeUnsubscribeLobby, func(_ context.Context, conn *Connection, _ events.Envelope) {
		conn.unsubscribe("lobby")
	})
	g.Handle(events.TypeSubscribeTable, func(_ context.Context, conn *Connection, env events.Envelope) {
		if ch := subscriptionChannel(env); ch != "" {
			conn.subscribe(ch)
		}
	})
	g.Handle(events.TypeUnsubscribeTable, func(_ context.Context, conn *Connection, env events.Envelope) {
		if ch := subscriptionChannel(env); ch != "" {
			conn.unsubscribe(ch)
		}
	})
	g.Handle(events.TypeRecoveryRequest, g.handleRecovery)
}

// subscriptionChannel resolves a subscribe/unsubscribe payload to its
// channel: table_id shorthand, or an explicit channel name for the
// tournament and tournament-table channels.
func subscriptionChannel(env events.Envelope) string {
	if ch := channelFromPayload(env, "table_id", "table:"); ch != "" {
		return ch
	}
	payload, ok := env.Payload.(map[string]any)
	if !ok {
		return ""
	}
	ch, _ := payload["channel"].(string)
	return ch
}

// channelFromPayload extracts payload[key] and prefixes it into a
// channel name.
func channelFromPayload(env events.Envelope, key, prefix string) string {
	payload, ok := env.Payload.(map[string]any)
	if !ok {
		return ""
	}
	id, _ := payload[key].(string)
	if id == "" {
		return ""
	}
	return prefix + id
}

// handleRecovery replays every buffered update newer than the client's
// last-seen version per channel. Channels
// whose buffer no longer reaches back far enough get fresh_snapshot
// set; the domain layer then re-sends full state.
func (g *Gateway) handleRecovery(_ context.Context, conn *Connection, env events.Envelope) {
	payload, _ := env.Payload.(map[string]any)
	lastSeen, _ := payload["last_seen_versions"].(map[string]any)

	needFresh := make([]string, 0)
	g.versionsMu.Lock()
	for channel, rawVersion := range lastSeen {
		version := uint64(0)
		if f, ok := rawVersion.(float64); ok {
			version = uint64(f)
		}
		conn.mu.Lock()
		conn.lastSeenVersions[channel] = version
		conn.mu.Unlock()
		conn.subscribe(channel)

		buffer := g.replay[channel]
		if len(buffer) > 0 && buffer[0].version > version+1 {
			// Gap: buffer trimmed past what the client missed.
			needFresh = append(needFresh, channel)
			continue
		}
		for _, ve := range buffer {
			if ve.version > version {
				conn.enqueue(ve.data)
			}
		}
	}
	g.versionsMu.Unlock()

	conn.send(events.New(events.TypeRecoveryResponse, map[string]any{
		"state":          "RECOVERED",
		"fresh_snapshot": needFresh,
	}).WithCorrelation(env.CorrelationID))
}

// BroadcastToChannel delivers env to every subscriber of channel,
// stamping it with the channel's next version and buffering it for
// recovery. Non-blocking: a subscriber with a full buffer is marked for
// eviction rather than stalling the broadcast.
func (g *Gateway) BroadcastToChannel(channel string, env events.Envelope) {
	data, err := marshalEnvelope(env)
	if err != nil {
		log.Printf("[WS] marshal failed for %s: %v", env.Type, err)
		return
	}

	g.versionsMu.Lock()
	g.versions[channel]++
	version := g.versions[channel]
	buffer := append(g.replay[channel], versionedEnvelope{version: version, data: data})
	if len(buffer) > replayDepth {
		buffer = buffer[len(buffer)-replayDepth:]
	}
	g.replay[channel] = buffer
	g.versionsMu.Unlock()

	var dead []*Connection
	g.mu.RLock()
	for _, conn := range g.connections {
		if !conn.isSubscribed(channel) {
			continue
		}
		if !conn.enqueue(data) {
			dead = append(dead, conn)
		}
	}
	g.mu.RUnlock()

	metrics.WSMessagesSent.WithLabelValues(channelClass(channel)).Inc()
	for _, conn := range dead {
		log.Printf("[WS] send buffer full, evicting %s", conn.ID)
		g.unregister(conn)
		conn.Conn.Close()
	}
}

// SendToUser delivers env to every connection the user holds.
func (g *Gateway) SendToUser(userID string, env events.Envelope) {
	data, err := marshalEnvelope(env)
	if err != nil {
		return
	}
	g.mu.RLock()
	conns := make([]*Connection, 0, len(g.byUser[userID]))
	for _, conn := range g.byUser[userID] {
		conns = append(conns, conn)
	}
	g.mu.RUnlock()

	for _, conn := range conns {
		if !conn.enqueue(data) {
			g.unregister(conn)
			conn.Conn.Close()
		}
	}
}

// SendToConnection delivers env to a single connection by ID.
func (g *Gateway) SendToConnection(connectionID string, env events.Envelope) {
	g.mu.RLock()
	conn, ok := g.connections[connectionID]
	g.mu.RUnlock()
	if !ok {
		return
	}
	conn.send(env)
}

// RunHeartbeat pings every connection at the configured interval and
// closes those past the missed-pong threshold.
func (g *Gateway) RunHeartbeat(ctx context.Context) {
	ticker := time.NewTicker(g.heartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-g.stop:
			return
		case <-ticker.C:
			g.pingAll()
		}
	}
}

func (g *Gateway) pingAll() {
	g.mu.RLock()
	conns := make([]*Connection, 0, len(g.connections))
	for _, conn := range g.connections {
		conns = append(conns, conn)
	}
	g.mu.RUnlock()

	for _, conn := range conns {
		missed := conn.notePingSentWithoutPong()
		if missed > g.maxMissedPongs {
			log.Printf("[WS] closing %s: %d missed pongs", conn.ID, missed-1)
			conn.send(events.New(events.TypeConnectionState, map[string]any{
				"state":  "CLOSING",
				"reason": "HEARTBEAT_TIMEOUT",
			}))
			g.unregister(conn)
			conn.Conn.Close()
			continue
		}
		conn.send(events.New(events.TypePing, nil))
	}
}

// ConnectionCount reports the live connection total.
func (g *Gateway) ConnectionCount() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.connections)
}

// Shutdown stops the heartbeat and closes every connection.
func (g *Gateway) Shutdown() {
	g.once.Do(func() { close(g.stop) })
	g.mu.Lock()
	conns := make([]*Connection, 0, len(g.connections))
	for _, conn := range g.connections {
		conns = append(conns, conn)
	}
	g.mu.Unlock()
	for _, conn := range conns {
		g.unregister(conn)
		conn.Conn.Close()
	}
}

func marshalEnvelope(env events.Envelope) ([]byte, error) {
	if env.Timestamp.IsZero() {
		env.Timestamp = time.Now()
	}
	return json.Marshal(env)
}

func channelClass(channel string) string {
	for i := 0; i < len(channel); i++ {
		if channel[i] == ':' {
			return channel[:i]
		}
	}
	return channel
}
