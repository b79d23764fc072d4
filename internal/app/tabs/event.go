/*
Package tabs pushes shared-store changes to every connected front end.

Each WebSocket connection is a tab. On connect a tab receives INIT with the current session
and favorites; afterwards every key written in the shared store arrives as STORAGE_CHANGED
and every session transition as SESSION_CHANGED, so that all tabs converge on the last write.
A tab that lost track can send SYNC to receive INIT again.
*/
package tabs

import (
	"encoding/json"
	"time"

	"holidaze/internal/app/display"
	"holidaze/internal/app/session"
)

// EventType names an event on the tab channel.
type EventType string

const (
	TypeInit           EventType = "INIT"
	TypeStorageChanged EventType = "STORAGE_CHANGED"
	TypeSessionChanged EventType = "SESSION_CHANGED"
	TypeError          EventType = "ERROR"

	// TypeSync is sent by a tab to ask for INIT again.
	TypeSync EventType = "SYNC"
)

// Event is one message sent to tabs.
type Event struct {
	Type      EventType `json:"type"`
	Timestamp int64     `json:"timestamp"`
	Payload   any       `json:"payload,omitempty"`
}

// NewEvent stamps an event of type t carrying payload.
func NewEvent(t EventType, payload any) Event {
	return Event{Type: t, Timestamp: time.Now().UnixMilli(), Payload: payload}
}

// InitPayload is the state a tab starts from.
type InitPayload struct {
	TabID      string             `json:"tabId"`
	Session    session.Snapshot   `json:"session"`
	Favorites  []string           `json:"favorites"`
	Appearance display.Appearance `json:"appearance"`
}

// StorageChangedPayload names a key written or removed in the shared store.
type StorageChangedPayload struct {
	Key     string `json:"key"`
	Deleted bool   `json:"deleted,omitempty"`
}

// SessionChangedPayload carries the new session view.
type SessionChangedPayload struct {
	Session session.Snapshot `json:"session"`
}

// ErrorPayload reports a rejected inbound message.
type ErrorPayload struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// inbound is a message received from a tab.
type inbound struct {
	Type EventType `json:"type"`
}

func encode(ev Event) ([]byte, error) {
	return json.Marshal(ev)
}
