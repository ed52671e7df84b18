package model

import (
	"encoding/json"
	"time"
)

// Party is the durable record for a single watch party room.
type Party struct {
	ID               string    `json:"id"`
	Name             string    `json:"name"`
	MediaRef         string    `json:"media_ref,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
	HostConnectionID string    `json:"-"`
	ParticipantCount int       `json:"participant_count"`
	LastActivity     time.Time `json:"last_activity"`
}

// Client message types understood by the router.
// Anything outside this set is relayed to the room untouched.
const (
	TypePlay              = "play"
	TypePause             = "pause"
	TypeSeek              = "seek"
	TypeViewerPlayRequest = "viewer_play_request"
	TypeViewerSeekRequest = "viewer_seek_request"
	TypeViewerSyncCheck   = "viewer_sync_check"
	TypeSyncCheckResponse = "sync_check_response"
	TypeStateResponse     = "state_response"
)

// Message types sent by the server.
const (
	TypeConnectionEstablished = "connection_established"
	TypeUserJoined            = "user_joined"
	TypeUserLeft              = "user_left"
	TypeError                 = "error"
	TypeStateRequest          = "state_request"
	TypeSyncState             = "sync_state"
	TypeSyncCheckRequest      = "sync_check_request"
	TypeSyncCheck             = "sync_check"
)

// Message is a single frame exchanged with a client. Raw holds the original
// bytes of an inbound frame so unrecognized types can be relayed verbatim.
// IsHost, ParticipantCount and Time are pointers so that zero values still
// serialize when the field is relevant to the message type.
type Message struct {
	Type             string          `json:"type"`
	Message          string          `json:"message,omitempty"`
	IsHost           *bool           `json:"is_host,omitempty"`
	ParticipantCount *int            `json:"participant_count,omitempty"`
	Requester        string          `json:"requester,omitempty"`
	Time             *float64        `json:"time,omitempty"`
	State            json.RawMessage `json:"state,omitempty"`
	Raw              json.RawMessage `json:"-"`
}

// Encode serializes an outbound message. A message without a type is a relayed
// payload and goes out exactly as it came in.
func (m Message) Encode() ([]byte, error) {
	if m.Type == "" && m.Raw != nil {
		return m.Raw, nil
	}
	return json.Marshal(&m)
}

// EventKind discriminates room events delivered between sessions.
type EventKind int

const (
	EventUserJoined EventKind = iota
	EventUserLeft
	EventRequestState
	EventRequestSyncCheck
	EventSyncState
	EventSendSyncCheck
	EventPartyMessage
)

// Event is an internal room event. Sessions receive events through the
// registry and decide per-session whether and how to surface them to their
// own client.
type Event struct {
	Kind             EventKind
	Sender           string
	Requester        string
	ParticipantCount int
	Time             float64
	State            json.RawMessage
	Payload          json.RawMessage
}

// Wire connects one websocket connection to its session.
type Wire struct {
	RX chan Message // client -> session
	TX chan Message // session -> client
}

func NewWire() Wire {
	return Wire{
		RX: make(chan Message),
		TX: make(chan Message),
	}
}
