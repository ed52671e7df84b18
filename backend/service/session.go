package service

import (
	"context"
	"sync"

	"github.com/davecgh/go-spew/spew"
	"github.com/rs/zerolog"
	"github.com/webwatch/backend/model"
)

const errOnlyHost = "Only the host can control playback"

// session is the server-side half of one attached connection. It owns the
// isHost flag, which is set once during election and never re-derived.
// Inbound client messages pass through routeLoop; room events from other
// sessions arrive on the events channel and pass through eventLoop.
type session struct {
	coord   *Coordinator
	partyID string
	connID  string
	isHost  bool
	wire    model.Wire
	events  chan model.Event
	logger  zerolog.Logger
	once    sync.Once
}

func newSession(coord *Coordinator, partyID, connID string, wire model.Wire, logger *zerolog.Logger) *session {
	return &session{
		coord:   coord,
		partyID: partyID,
		connID:  connID,
		wire:    wire,
		events:  make(chan model.Event),
		logger: logger.With().
			Str("partyID", partyID).
			Str("connID", connID).
			Logger(),
	}
}

// announce sends the welcome message to the new client and tells the rest of
// the room about the join. The sender is excluded so nobody hears their own
// arrival.
func (s *session) announce(ctx context.Context, count int) {
	isHost := s.isHost
	s.send(ctx, model.Message{
		Type:             model.TypeConnectionEstablished,
		Message:          "Connected to watch party",
		IsHost:           &isHost,
		ParticipantCount: &count,
	})
	s.coord.reg.Broadcast(ctx, s.partyID, model.Event{
		Kind:             model.EventUserJoined,
		Sender:           s.connID,
		ParticipantCount: count,
	}, s.connID)
}

// leave runs the full disconnect sequence exactly once: decrement the count,
// vacate the host slot if this session held it, notify the room, drop the
// registry membership. Every step runs even if an earlier one fails.
// No replacement host is elected; the slot stays vacant until the next join.
func (s *session) leave(ctx context.Context) {
	s.once.Do(func() {
		count, err := s.coord.store.DecrementCount(ctx, s.partyID)
		if err != nil {
			s.logger.Error().Err(err).Msg("failed to decrement participant count")
		}
		if s.isHost {
			if err = s.coord.store.ClearHost(ctx, s.partyID); err != nil {
				s.logger.Error().Err(err).Msg("failed to clear host")
			}
		}
		// The leaving connection is excluded: its pumps are already gone
		// and delivery to it would only wait out the dead-endpoint timeout.
		s.coord.reg.Broadcast(ctx, s.partyID, model.Event{
			Kind:             model.EventUserLeft,
			ParticipantCount: count,
		}, s.connID)
		s.coord.reg.Leave(s.partyID, s.connID)
	})
}

func (s *session) routeLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-s.wire.RX:
			s.route(ctx, msg)
		}
	}
}

// route classifies one inbound message and applies its delivery strategy.
func (s *session) route(ctx context.Context, msg model.Message) {
	switch msg.Type {
	case model.TypePlay, model.TypePause, model.TypeSeek:
		if !s.isHost {
			s.send(ctx, model.Message{Type: model.TypeError, Message: errOnlyHost})
			return
		}
		s.coord.reg.Broadcast(ctx, s.partyID, model.Event{
			Kind:    model.EventPartyMessage,
			Sender:  s.connID,
			Payload: msg.Raw,
		}, s.connID)

	case model.TypeViewerPlayRequest, model.TypeViewerSeekRequest:
		s.coord.reg.Broadcast(ctx, s.partyID, model.Event{
			Kind:      model.EventRequestState,
			Requester: s.connID,
		}, "")

	case model.TypeViewerSyncCheck:
		s.coord.reg.Broadcast(ctx, s.partyID, model.Event{
			Kind:      model.EventRequestSyncCheck,
			Requester: s.connID,
		}, "")

	case model.TypeSyncCheckResponse:
		var t float64
		if msg.Time != nil {
			t = *msg.Time
		}
		s.unicast(ctx, msg.Requester, model.Event{
			Kind: model.EventSendSyncCheck,
			Time: t,
		})

	case model.TypeStateResponse:
		s.unicast(ctx, msg.Requester, model.Event{
			Kind:  model.EventSyncState,
			State: msg.State,
		})

	default:
		s.logger.Trace().Str("message", spew.Sdump(msg)).Msg("relaying party message")
		s.coord.reg.Broadcast(ctx, s.partyID, model.Event{
			Kind:    model.EventPartyMessage,
			Sender:  s.connID,
			Payload: msg.Raw,
		}, s.connID)
	}
}

// unicast routes a host response back to the connection named in the inbound
// requester field. A vanished requester is dropped, not an error.
func (s *session) unicast(ctx context.Context, requester string, ev model.Event) {
	if requester == "" {
		s.logger.Debug().Msg("response without requester dropped")
		return
	}
	if !s.coord.reg.Unicast(ctx, requester, ev) {
		s.logger.Debug().Str("requester", requester).Msg("response dropped, requester is gone")
	}
}

func (s *session) eventLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-s.events:
			if msg, ok := s.translate(ev); ok {
				s.send(ctx, msg)
			}
		}
	}
}

// translate turns a room event into the message this session's client should
// see, or nothing. State and sync-check requests only reach the client of the
// session that holds the host flag: the authoritative playback state lives in
// the host's client, not on the server.
func (s *session) translate(ev model.Event) (model.Message, bool) {
	switch ev.Kind {
	case model.EventUserJoined:
		count := ev.ParticipantCount
		return model.Message{
			Type:             model.TypeUserJoined,
			Message:          "A user joined the party",
			ParticipantCount: &count,
		}, true

	case model.EventUserLeft:
		count := ev.ParticipantCount
		return model.Message{
			Type:             model.TypeUserLeft,
			Message:          "A user left the party",
			ParticipantCount: &count,
		}, true

	case model.EventRequestState:
		if !s.isHost {
			return model.Message{}, false
		}
		return model.Message{Type: model.TypeStateRequest, Requester: ev.Requester}, true

	case model.EventRequestSyncCheck:
		if !s.isHost {
			return model.Message{}, false
		}
		return model.Message{Type: model.TypeSyncCheckRequest, Requester: ev.Requester}, true

	case model.EventSyncState:
		return model.Message{Type: model.TypeSyncState, State: ev.State}, true

	case model.EventSendSyncCheck:
		t := ev.Time
		return model.Message{Type: model.TypeSyncCheck, Time: &t}, true

	case model.EventPartyMessage:
		if ev.Sender == s.connID {
			return model.Message{}, false
		}
		return model.Message{Raw: ev.Payload}, true
	}
	return model.Message{}, false
}

func (s *session) send(ctx context.Context, msg model.Message) {
	select {
	case <-ctx.Done():
	case s.wire.TX <- msg:
	}
}
