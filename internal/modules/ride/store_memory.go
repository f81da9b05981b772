// README: In-process ride store for local development and tests.
package ride

import (
	"context"
	"slices"
	"sync"

	"github.com/google/uuid"

	"quickauto/internal/types"
)

// MemoryStore keeps rides in a map guarded by one mutex, with the same compare-and-swap
// contract as the persistent backends.
type MemoryStore struct {
	mu    sync.Mutex
	rides map[Ref]*Ride
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{rides: make(map[Ref]*Ride)}
}

func (m *MemoryStore) Create(_ context.Context, r *Ride) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if r.ID == "" {
		r.ID = types.ID(uuid.NewString())
	}
	m.rides[r.Ref()] = r.Clone()
	return nil
}

func (m *MemoryStore) Get(_ context.Context, ref Ref) (*Ride, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rides[ref]
	if !ok {
		return nil, ErrNotFound
	}
	return r.Clone(), nil
}

func (m *MemoryStore) Apply(_ context.Context, ref Ref, mut Mutation) (*Ride, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rides[ref]
	if !ok {
		return nil, ErrNotFound
	}
	if !mut.matches(r) {
		return nil, ErrConflict
	}
	updated := mut.applyTo(r)
	m.rides[ref] = updated
	return updated.Clone(), nil
}

func (m *MemoryStore) Delete(_ context.Context, ref Ref, from Status, version int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rides[ref]
	if !ok {
		return ErrNotFound
	}
	if r.Status != from || r.StatusVersion != version {
		return ErrConflict
	}
	delete(m.rides, ref)
	return nil
}

func (m *MemoryStore) ListByStatus(_ context.Context, c Category, statuses ...Status) ([]*Ride, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*Ride
	for ref, r := range m.rides {
		if ref.Category == c && slices.Contains(statuses, r.Status) {
			out = append(out, r.Clone())
		}
	}
	sortByCreated(out)
	return out, nil
}

// Len reports how many rides are stored.
func (m *MemoryStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.rides)
}
