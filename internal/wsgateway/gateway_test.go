package wsgateway

import (
	"encoding/json"
	"testing"
	"time"

	"pokercore/internal/auth"
	"pokercore/internal/events"
)

func testGateway() *Gateway {
	return New(auth.NewService("test-secret", time.Hour), 15*time.Second, 3)
}

// attach registers a bare connection without a socket; enqueue and the
// replay path never touch the underlying websocket.
func attach(g *Gateway, userID string) *Connection {
	conn := newConnection(auth.GenerateID(), userID, nil)
	g.register(conn)
	return conn
}

func drainOne(t *testing.T, conn *Connection) events.Envelope {
	t.Helper()
	select {
	case data := <-conn.Send:
		var env events.Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			t.Fatalf("bad frame: %v", err)
		}
		return env
	default:
		t.Fatal("no frame queued")
		return events.Envelope{}
	}
}

func TestBroadcastOnlyReachesSubscribers(t *testing.T) {
	g := testGateway()
	sub := attach(g, "u1")
	other := attach(g, "u2")
	sub.subscribe("table:r1")

	g.BroadcastToChannel("table:r1", events.New(events.TypeTableStateUpdate, map[string]any{"x": 1}))

	env := drainOne(t, sub)
	if env.Type != events.TypeTableStateUpdate {
		t.Fatalf("subscriber got %s", env.Type)
	}
	select {
	case <-other.Send:
		t.Fatal("non-subscriber received broadcast")
	default:
	}
}

func TestSendToUserHitsEveryConnection(t *testing.T) {
	g := testGateway()
	c1 := attach(g, "u1")
	c2 := attach(g, "u1")
	attach(g, "u2")

	g.SendToUser("u1", events.New(events.TypeTurnPrompt, nil))
	drainOne(t, c1)
	drainOne(t, c2)
}

func TestChannelVersionsIncrease(t *testing.T) {
	g := testGateway()
	for i := 0; i < 3; i++ {
		g.BroadcastToChannel("lobby", events.New(events.TypeLobbyUpdate, nil))
	}
	g.versionsMu.Lock()
	defer g.versionsMu.Unlock()
	if g.versions["lobby"] != 3 {
		t.Fatalf("version = %d, want 3", g.versions["lobby"])
	}
	if len(g.replay["lobby"]) != 3 {
		t.Fatalf("replay depth = %d, want 3", len(g.replay["lobby"]))
	}
}

func TestRecoveryReplaysMissedUpdates(t *testing.T) {
	g := testGateway()
	for i := 0; i < 5; i++ {
		g.BroadcastToChannel("table:r1", events.New(events.TypeTableStateUpdate, map[string]any{"seq": i}))
	}

	conn := attach(g, "u1")
	g.handleRecovery(nil, conn, events.New(events.TypeRecoveryRequest, map[string]any{
		"last_seen_versions": map[string]any{"table:r1": float64(3)},
	}))

	// Versions 4 and 5 replayed, then the recovery response.
	replayed := 0
	var response *events.Envelope
loop:
	for {
		select {
		case data := <-conn.Send:
			var env events.Envelope
			json.Unmarshal(data, &env)
			if env.Type == events.TypeRecoveryResponse {
				e := env
				response = &e
			} else {
				replayed++
			}
		default:
			break loop
		}
	}
	if replayed != 2 {
		t.Fatalf("replayed %d updates, want 2", replayed)
	}
	if response == nil {
		t.Fatal("no RECOVERY_RESPONSE sent")
	}
	if !conn.isSubscribed("table:r1") {
		t.Fatal("recovery did not resubscribe the channel")
	}
}

func TestHeartbeatEvictsAfterMissedPongs(t *testing.T) {
	g := testGateway()
	conn := attach(g, "u1")

	// Connection never answers: pings accumulate until eviction.
	for i := 0; i <= g.maxMissedPongs; i++ {
		missed := conn.notePingSentWithoutPong()
		if missed > g.maxMissedPongs {
			g.unregister(conn)
		}
	}
	if g.ConnectionCount() != 0 {
		t.Fatalf("connection not evicted after %d missed pongs", g.maxMissedPongs+1)
	}

	// A pong resets the counter.
	conn2 := attach(g, "u2")
	conn2.notePingSentWithoutPong()
	conn2.recordPong()
	conn2.mu.Lock()
	missed := conn2.missedPongs
	conn2.mu.Unlock()
	if missed != 0 {
		t.Fatalf("missed pongs = %d after pong, want 0", missed)
	}
}

func TestEnqueueAfterCloseDropsFrame(t *testing.T) {
	g := testGateway()
	conn := attach(g, "u1")
	g.unregister(conn)
	if conn.enqueue([]byte("{}")) {
		t.Fatal("enqueue succeeded on closed connection")
	}
}

func TestSubscriptionPayloadParsing(t *testing.T) {
	env := events.New(events.TypeSubscribeTable, map[string]any{"table_id": "r42"})
	if got := channelFromPayload(env, "table_id", "table:"); got != "table:r42" {
		t.Fatalf("channel = %q, want table:r42", got)
	}
	env = events.New(events.TypeSubscribeTable, map[string]any{})
	if got := channelFromPayload(env, "table_id", "table:"); got != "" {
		t.Fatalf("empty payload produced channel %q", got)
	}
}
