package service

import (
	"context"
	"errors"
	"sync"

	"github.com/rs/zerolog"
	"github.com/webwatch/backend/model"
)

var (
	ErrAttach = errors.New("unable to attach to party")
	ErrCreate = errors.New("unable to create party")
	ErrGet    = errors.New("unable to get party")
	ErrList   = errors.New("unable to list parties")
)

type (
	// PartyStore is the durable party record. Host election and the
	// participant counters must be atomic at the store level: the
	// coordinator never wraps them in its own locking.
	PartyStore interface {
		Create(ctx context.Context, name, mediaRef string) (model.Party, error)
		Get(ctx context.Context, partyID string) (model.Party, error)
		List(ctx context.Context) ([]model.Party, error)
		TrySetHost(ctx context.Context, partyID, connID string) (bool, error)
		ClearHost(ctx context.Context, partyID string) error
		IncrementCount(ctx context.Context, partyID string) (int, error)
		DecrementCount(ctx context.Context, partyID string) (int, error)
	}

	Registry interface {
		Join(partyID, connID string, events chan<- model.Event)
		Leave(partyID, connID string)
		Broadcast(ctx context.Context, partyID string, ev model.Event, exclude string)
		Unicast(ctx context.Context, connID string, ev model.Event) bool
	}

	Coordinator struct {
		store  PartyStore
		reg    Registry
		logger zerolog.Logger

		mx       sync.Mutex
		sessions map[string]*session // by connection id
	}

	Config struct {
		Store    PartyStore
		Registry Registry
		Logger   *zerolog.Logger
	}
)

func NewCoordinator(cfg Config) *Coordinator {
	return &Coordinator{
		store:    cfg.Store,
		reg:      cfg.Registry,
		logger:   cfg.Logger.With().Str("component", "coordinator").Logger(),
		sessions: make(map[string]*session),
	}
}

// Attach registers a new connection with a party, runs host election and
// starts the session loops. A missing party fails the attach closed: no
// session is created and nothing is announced to the room.
func (c *Coordinator) Attach(ctx context.Context, partyID, connID string, wire model.Wire) error {
	if _, err := c.store.Get(ctx, partyID); err != nil {
		return errors.Join(ErrAttach, err)
	}

	sess := newSession(c, partyID, connID, wire, &c.logger)
	c.reg.Join(partyID, connID, sess.events)

	isHost, err := c.store.TrySetHost(ctx, partyID, connID)
	if err != nil {
		c.reg.Leave(partyID, connID)
		return errors.Join(ErrAttach, err)
	}
	sess.isHost = isHost

	count, err := c.store.IncrementCount(ctx, partyID)
	if err != nil {
		if isHost {
			_ = c.store.ClearHost(ctx, partyID)
		}
		c.reg.Leave(partyID, connID)
		return errors.Join(ErrAttach, err)
	}

	c.mx.Lock()
	c.sessions[connID] = sess
	c.mx.Unlock()

	go sess.routeLoop(ctx)
	go sess.eventLoop(ctx)
	go sess.announce(ctx, count)

	c.logger.Debug().
		Str("partyID", partyID).
		Str("connID", connID).
		Bool("isHost", isHost).
		Int("participants", count).
		Msg("session attached")
	return nil
}

// Detach runs the leave sequence for a connection. Safe to call more than
// once; only the first call has any effect.
func (c *Coordinator) Detach(ctx context.Context, partyID, connID string) error {
	c.mx.Lock()
	sess := c.sessions[connID]
	delete(c.sessions, connID)
	c.mx.Unlock()

	if sess == nil || sess.partyID != partyID {
		return nil
	}
	sess.leave(ctx)

	c.logger.Debug().
		Str("partyID", partyID).
		Str("connID", connID).
		Msg("session detached")
	return nil
}

func (c *Coordinator) CreateParty(ctx context.Context, name, mediaRef string) (model.Party, error) {
	party, err := c.store.Create(ctx, name, mediaRef)
	if err != nil {
		return model.Party{}, errors.Join(ErrCreate, err)
	}
	c.logger.Debug().
		Str("partyID", party.ID).
		Str("name", party.Name).
		Msg("party created")
	return party, nil
}

func (c *Coordinator) GetParty(ctx context.Context, partyID string) (model.Party, error) {
	party, err := c.store.Get(ctx, partyID)
	if err != nil {
		return model.Party{}, errors.Join(ErrGet, err)
	}
	return party, nil
}

func (c *Coordinator) ListParties(ctx context.Context) ([]model.Party, error) {
	parties, err := c.store.List(ctx)
	if err != nil {
		return nil, errors.Join(ErrList, err)
	}
	return parties, nil
}
