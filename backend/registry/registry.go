package registry

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/webwatch/backend/model"
)

const (
	defaultDeliverTimeout = time.Second
)

// Registry tracks which connections are attached to which party and delivers
// room events to them. Delivery is best-effort: a member that cannot accept
// an event within the deliver timeout is skipped.
type Registry struct {
	logger zerolog.Logger
	mx     *sync.RWMutex
	rooms  map[string]map[string]chan<- model.Event
	conns  map[string]chan<- model.Event // flat index for unicast by connection id
}

func New(logger *zerolog.Logger) *Registry {
	return &Registry{
		logger: logger.With().Str("component", "registry").Logger(),
		mx:     &sync.RWMutex{},
		rooms:  make(map[string]map[string]chan<- model.Event),
		conns:  make(map[string]chan<- model.Event),
	}
}

func (rg *Registry) Join(partyID, connID string, events chan<- model.Event) {
	rg.mx.Lock()
	defer func() {
		rg.mx.Unlock()
		rg.logger.Debug().
			Str("partyID", partyID).
			Str("connID", connID).
			Msg("connection joined")
	}()

	room, ok := rg.rooms[partyID]
	if !ok {
		room = make(map[string]chan<- model.Event)
		rg.rooms[partyID] = room
	}
	room[connID] = events
	rg.conns[connID] = events
}

func (rg *Registry) Leave(partyID, connID string) {
	rg.mx.Lock()
	defer func() {
		rg.mx.Unlock()
		rg.logger.Debug().
			Str("partyID", partyID).
			Str("connID", connID).
			Msg("connection left")
	}()

	if room, ok := rg.rooms[partyID]; ok {
		delete(room, connID)
		if len(room) == 0 {
			delete(rg.rooms, partyID)
		}
	}
	delete(rg.conns, connID)
}

// Broadcast delivers ev to every member of the party except exclude.
// Pass an empty exclude to reach everyone.
func (rg *Registry) Broadcast(ctx context.Context, partyID string, ev model.Event, exclude string) {
	type member struct {
		id     string
		events chan<- model.Event
	}

	rg.mx.RLock()
	members := make([]member, 0, len(rg.rooms[partyID]))
	for id, events := range rg.rooms[partyID] {
		if id != exclude {
			members = append(members, member{id: id, events: events})
		}
	}
	rg.mx.RUnlock()

	var sent bool
	for _, m := range members {
		ok, canceled := rg.deliver(ctx, ev, m.events, m.id)
		if canceled {
			return
		}
		if ok {
			sent = true
		}
	}
	if !sent {
		rg.logger.Debug().
			Str("partyID", partyID).
			Str("exclude", exclude).
			Msg("broadcast did not reach anyone")
	}
}

// Unicast delivers ev to a single connection regardless of party. Returns
// false if the connection is no longer attached or did not accept in time.
func (rg *Registry) Unicast(ctx context.Context, connID string, ev model.Event) bool {
	rg.mx.RLock()
	events, ok := rg.conns[connID]
	rg.mx.RUnlock()

	if !ok {
		rg.logger.Debug().Str("connID", connID).Msg("cannot unicast, connection not found")
		return false
	}
	sent, _ := rg.deliver(ctx, ev, events, connID)
	return sent
}

func (rg *Registry) deliver(ctx context.Context, ev model.Event, events chan<- model.Event, connID string) (bool, bool) {
	var sent, canceled bool
	tCh := time.NewTimer(defaultDeliverTimeout)
	select {
	case <-ctx.Done():
		canceled = true
	case <-tCh.C:
		rg.logger.Error().Str("connID", connID).Msg("dead connection")
	case events <- ev:
		sent = true
	}
	tCh.Stop()
	return sent, canceled
}
