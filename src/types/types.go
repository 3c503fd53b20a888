package types

import "time"

// Inbound event kinds; the "type" field of an envelope selects behavior.
const (
	EventJoin           = "JOIN"
	EventMessage        = "MESSAGE"
	EventPrivateMessage = "PRIVATE_MESSAGE"
)

// Outbound payload kinds.
const (
	PayloadHistory        = "PRIVATE_MESSAGE_HISTORY"
	PayloadPrivateMessage = "PRIVATE_MESSAGE"
	PayloadUsersUpdate    = "USERS_UPDATE"
	PayloadError          = "ERROR"
)

// Conn abstracts one client's transport channel for testability.
// The core references connections but never owns them.
type Conn interface {
	Identifier() string
	IsOpen() bool
	SendText(payload string) error
}

// Session binds an open connection to a resolved user identity.
// It exists only after a successful JOIN.
type Session struct {
	ConnectionID string
	UserID       string
}

// User is a durable identity. Username is stored uppercase.
type User struct {
	ID       string `json:"id"`
	Username string `json:"username"`
}

// PrivateMessage is an append-only durable record of one targeted message.
type PrivateMessage struct {
	ID        string    `json:"id"`
	FromUser  string    `json:"fromUser"`
	ToUser    string    `json:"toUser"`
	Message   string    `json:"message"`
	Time      string    `json:"time"`
	CreatedAt time.Time `json:"createdAt"`
}

// Envelope is the decoded inbound message. MESSAGE payloads are
// re-broadcast verbatim, so only Type matters for them; the remaining
// fields are event-specific.
type Envelope struct {
	Type         string `json:"type" validate:"required,oneof=JOIN MESSAGE PRIVATE_MESSAGE"`
	Username     string `json:"username,omitempty" validate:"required_if=Type JOIN"`
	FromUsername string `json:"fromUsername,omitempty" validate:"required_if=Type PRIVATE_MESSAGE"`
	ToUsername   string `json:"toUsername,omitempty" validate:"required_if=Type PRIVATE_MESSAGE"`
	Message      string `json:"message,omitempty"`
	ToSession    string `json:"toSession,omitempty" validate:"required_if=Type PRIVATE_MESSAGE"`
}

// HistoryEntry is one past private message as rendered to a joining client.
type HistoryEntry struct {
	Type     string `json:"type"`
	FromUser string `json:"fromUser"`
	ToUser   string `json:"toUser"`
	Message  string `json:"message"`
	Time     string `json:"time"`
}

// HistoryPayload wraps a user's past private-message history.
type HistoryPayload struct {
	Type string         `json:"type"`
	Data []HistoryEntry `json:"data"`
}

// DeliveredMessage is a single private message relayed to its target session.
type DeliveredMessage struct {
	Type         string `json:"type"`
	FromUsername string `json:"fromUsername"`
	ToUsername   string `json:"toUsername"`
	Message      string `json:"message"`
	Time         string `json:"time"`
}

// RosterEntry describes one joined session in a USERS_UPDATE payload.
type RosterEntry struct {
	UserID    string `json:"userId"`
	Username  string `json:"username"`
	SessionID string `json:"sessionId"`
}

// RosterPayload carries the full current roster plus a transition note.
type RosterPayload struct {
	Type    string        `json:"type"`
	Users   []RosterEntry `json:"users"`
	Message string        `json:"message"`
}

// ErrorPayload is a best-effort failure indication sent back to one client.
type ErrorPayload struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}
