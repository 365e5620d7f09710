// Package events defines the WebSocket envelope and the event-type
// taxonomy shared by the game loop, bot orchestrator,
// tournament engine, and the WS gateway so every producer and consumer
// agrees on wire shape.
package events

import "time"

// Type is one event name from the wire taxonomy. It is not an
// exhaustive closed set in the source system, so this stays a plain
// string type rather than an enum callers must exhaustively switch on.
type Type string

const (
	// System.
	TypePing             Type = "PING"
	TypePong             Type = "PONG"
	TypeConnectionState  Type = "CONNECTION_STATE"
	TypeError            Type = "ERROR"
	TypeRecoveryRequest  Type = "RECOVERY_REQUEST"
	TypeRecoveryResponse Type = "RECOVERY_RESPONSE"
	TypeAnnouncement     Type = "ANNOUNCEMENT"
	TypeRoomForceClosed  Type = "ROOM_FORCE_CLOSED"

	// Lobby.
	TypeSubscribeLobby   Type = "SUBSCRIBE_LOBBY"
	TypeUnsubscribeLobby Type = "UNSUBSCRIBE_LOBBY"
	TypeLobbySnapshot    Type = "LOBBY_SNAPSHOT"
	TypeLobbyUpdate      Type = "LOBBY_UPDATE"

	// Table.
	TypeSubscribeTable   Type = "SUBSCRIBE_TABLE"
	TypeUnsubscribeTable Type = "UNSUBSCRIBE_TABLE"
	TypeTableSnapshot    Type = "TABLE_SNAPSHOT"
	TypeTableStateUpdate Type = "TABLE_STATE_UPDATE"
	TypeTurnPrompt       Type = "TURN_PROMPT"
	TypeTurnChanged      Type = "TURN_CHANGED"
	TypeSeatRequest      Type = "SEAT_REQUEST"
	TypeSeatResult       Type = "SEAT_RESULT"
	TypeLeaveRequest     Type = "LEAVE_REQUEST"
	TypeLeaveResult      Type = "LEAVE_RESULT"
	TypeSitOutRequest    Type = "SIT_OUT_REQUEST"
	TypeSitInRequest     Type = "SIT_IN_REQUEST"
	TypePlayerSitOut     Type = "PLAYER_SIT_OUT"
	TypePlayerSitIn      Type = "PLAYER_SIT_IN"
	TypeHandStarted      Type = "HAND_STARTED"
	TypeHandResult       Type = "HAND_RESULT"
	TypeCommunityCards   Type = "COMMUNITY_CARDS"
	TypeRevealCards      Type = "REVEAL_CARDS"
	TypeCardsRevealed    Type = "CARDS_REVEALED"
	TypeStackZero        Type = "STACK_ZERO"
	TypeRebuy            Type = "REBUY"
	TypeTimeoutFold      Type = "TIMEOUT_FOLD"
	TypeTimeBankRequest  Type = "TIME_BANK_REQUEST"
	TypeTimeBankUsed     Type = "TIME_BANK_USED"

	// Waitlist.
	TypeWaitlistJoinRequest     Type = "WAITLIST_JOIN_REQUEST"
	TypeWaitlistCancelRequest   Type = "WAITLIST_CANCEL_REQUEST"
	TypeWaitlistJoined          Type = "WAITLIST_JOINED"
	TypeWaitlistCancelled       Type = "WAITLIST_CANCELLED"
	TypeWaitlistPositionChanged Type = "WAITLIST_POSITION_CHANGED"
	TypeWaitlistSeatReady       Type = "WAITLIST_SEAT_READY"

	// Tournament.
	TypeTournamentEvent     Type = "TOURNAMENT_EVENT"
	TypeTableEvent          Type = "TABLE_EVENT"
	TypeRankingUpdate       Type = "RANKING_UPDATE"
	TypeBlindChange         Type = "BLIND_CHANGE"
	TypeBlindIncreaseWarn   Type = "BLIND_INCREASE_WARNING"
	TypeShotgunCountdown    Type = "SHOTGUN_COUNTDOWN"
	TypePlayerMove          Type = "PLAYER_MOVE"

	// Chat.
	TypeChatMessage Type = "CHAT_MESSAGE"
	TypeChatHistory Type = "CHAT_HISTORY"
)

// Envelope is the JSON frame every WebSocket message uses.
type Envelope struct {
	Type          Type           `json:"type"`
	Payload       any            `json:"payload"`
	CorrelationID string         `json:"correlationId,omitempty"`
	Timestamp     time.Time      `json:"timestamp"`
}

// New builds an envelope stamped with the current time.
func New(t Type, payload any) Envelope {
	return Envelope{Type: t, Payload: payload, Timestamp: time.Now()}
}

// WithCorrelation attaches a client-supplied correlation ID so the
// client can match a response to its originating request.
func (e Envelope) WithCorrelation(id string) Envelope {
	e.CorrelationID = id
	return e
}

// TournamentEventType enumerates the tournament-lifecycle events fanned
// out over TOURNAMENT_EVENT.
type TournamentEventType string

const (
	EvtPlayerRegistered    TournamentEventType = "PLAYER_REGISTERED"
	EvtTournamentStarted   TournamentEventType = "TOURNAMENT_STARTED"
	EvtTableHandCompleted  TournamentEventType = "TABLE_HAND_COMPLETED"
	EvtBlindLevelChanged   TournamentEventType = "BLIND_LEVEL_CHANGED"
	EvtBlindIncreaseWarn   TournamentEventType = "BLIND_INCREASE_WARNING"
	EvtPlayerEliminated    TournamentEventType = "PLAYER_ELIMINATED"
	EvtPlayerMoved         TournamentEventType = "PLAYER_MOVED"
	EvtTournamentPaused    TournamentEventType = "TOURNAMENT_PAUSED"
	EvtTournamentResumed   TournamentEventType = "TOURNAMENT_RESUMED"
	EvtTournamentCompleted TournamentEventType = "TOURNAMENT_COMPLETED"
	EvtTournamentCancelled TournamentEventType = "TOURNAMENT_CANCELLED"
)

// TournamentEvent is the value broadcast on the event bus.
type TournamentEvent struct {
	EventID      string              `json:"event_id"`
	EventType    TournamentEventType `json:"event_type"`
	TournamentID string              `json:"tournament_id"`
	TableID      string              `json:"table_id,omitempty"`
	UserID       string              `json:"user_id,omitempty"`
	Timestamp    time.Time           `json:"timestamp"`
	Payload      map[string]any      `json:"payload,omitempty"`
}
