package gameloop

import "pokercore/internal/events"

// Broadcaster is implemented by the WS gateway (internal/wsgateway) and
// injected into the Loop, mirroring BotDecider's inversion to avoid an
// import cycle. BroadcastToChannel/SendToUser are the non-blocking
// primitives. Per-viewer payloads (hole cards hidden from everyone but
// the viewer) are built by the loop itself and sent with SendToUser, so
// the loop never sees the gateway's connection bookkeeping.
type Broadcaster interface {
	BroadcastToChannel(channel string, env events.Envelope)
	SendToUser(userID string, env events.Envelope)
}

// nopBroadcaster stands in when no gateway is wired (tests, tooling).
type nopBroadcaster struct{}

func (nopBroadcaster) BroadcastToChannel(string, events.Envelope) {}
func (nopBroadcaster) SendToUser(string, events.Envelope)        {}

func tableChannel(tableID string) string {
	return "table:" + tableID
}
