package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/webwatch/backend/model"
	"github.com/webwatch/backend/storage"
)

// MemStore keeps party records in process memory. All read-modify-write
// operations are serialized by a single mutex, which stands in for the
// row-level atomicity a durable store provides.
type MemStore struct {
	mx *sync.Mutex
	db map[string]*model.Party
}

func NewMemStore() *MemStore {
	return &MemStore{
		mx: &sync.Mutex{},
		db: make(map[string]*model.Party),
	}
}

func (ms *MemStore) Create(_ context.Context, name, mediaRef string) (model.Party, error) {
	ms.mx.Lock()
	defer ms.mx.Unlock()

	now := time.Now()
	party := &model.Party{
		ID:           uuid.NewString(),
		Name:         name,
		MediaRef:     mediaRef,
		CreatedAt:    now,
		LastActivity: now,
	}
	ms.db[party.ID] = party
	return *party, nil
}

func (ms *MemStore) Get(_ context.Context, partyID string) (model.Party, error) {
	ms.mx.Lock()
	defer ms.mx.Unlock()

	party, ok := ms.db[partyID]
	if !ok {
		return model.Party{}, storage.ErrPartyNotFound
	}
	return *party, nil
}

func (ms *MemStore) List(_ context.Context) ([]model.Party, error) {
	ms.mx.Lock()
	defer ms.mx.Unlock()

	parties := make([]model.Party, 0, len(ms.db))
	for _, party := range ms.db {
		parties = append(parties, *party)
	}
	sort.Slice(parties, func(i, j int) bool {
		return parties[i].CreatedAt.After(parties[j].CreatedAt)
	})
	return parties, nil
}

// TrySetHost claims the host slot for connID if and only if it is vacant.
func (ms *MemStore) TrySetHost(_ context.Context, partyID, connID string) (bool, error) {
	ms.mx.Lock()
	defer ms.mx.Unlock()

	party, ok := ms.db[partyID]
	if !ok {
		return false, storage.ErrPartyNotFound
	}
	if party.HostConnectionID != "" {
		return false, nil
	}
	party.HostConnectionID = connID
	party.LastActivity = time.Now()
	return true, nil
}

func (ms *MemStore) ClearHost(_ context.Context, partyID string) error {
	ms.mx.Lock()
	defer ms.mx.Unlock()

	party, ok := ms.db[partyID]
	if !ok {
		return storage.ErrPartyNotFound
	}
	party.HostConnectionID = ""
	party.LastActivity = time.Now()
	return nil
}

func (ms *MemStore) IncrementCount(_ context.Context, partyID string) (int, error) {
	ms.mx.Lock()
	defer ms.mx.Unlock()

	party, ok := ms.db[partyID]
	if !ok {
		return 0, storage.ErrPartyNotFound
	}
	party.ParticipantCount++
	party.LastActivity = time.Now()
	return party.ParticipantCount, nil
}

// DecrementCount never takes the count below zero, even if leaves outnumber
// joins due to duplicate detach events.
func (ms *MemStore) DecrementCount(_ context.Context, partyID string) (int, error) {
	ms.mx.Lock()
	defer ms.mx.Unlock()

	party, ok := ms.db[partyID]
	if !ok {
		return 0, storage.ErrPartyNotFound
	}
	if party.ParticipantCount > 0 {
		party.ParticipantCount--
	}
	party.LastActivity = time.Now()
	return party.ParticipantCount, nil
}

// DeleteInactive removes parties with no participants whose last activity is
// before cutoff. Returns the number of deleted parties.
func (ms *MemStore) DeleteInactive(_ context.Context, cutoff time.Time) (int, error) {
	ms.mx.Lock()
	defer ms.mx.Unlock()

	var deleted int
	for id, party := range ms.db {
		if party.ParticipantCount == 0 && party.LastActivity.Before(cutoff) {
			delete(ms.db, id)
			deleted++
		}
	}
	return deleted, nil
}
