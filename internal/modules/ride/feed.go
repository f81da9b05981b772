// README: Change feed: publishes ride snapshots and fans them out to latest-value subscribers.
package ride

import (
	"context"
	"sync"

	"quickauto/internal/types"
)

// Feed distributes ride snapshots. Subscribe with an empty id receives every ride's changes.
// Subscribers only ever see the most recent undelivered snapshot; older ones are dropped.
type Feed interface {
	Publish(ctx context.Context, s Snapshot) error
	Subscribe(ctx context.Context, id types.ID) (<-chan Snapshot, error)
}

// offer puts s into a one-slot mailbox, replacing whatever value is waiting there.
// Callers must be the only sender on ch.
func offer(ch chan Snapshot, s Snapshot) {
	for {
		select {
		case ch <- s:
			return
		default:
		}
		select {
		case <-ch:
		default:
		}
	}
}

type subscriber struct {
	id types.ID
	ch chan Snapshot
}

// MemoryFeed is an in-process broker for single-node deployments and tests.
type MemoryFeed struct {
	mu     sync.Mutex
	nextID int
	subs   map[int]subscriber
}

func NewMemoryFeed() *MemoryFeed {
	return &MemoryFeed{subs: make(map[int]subscriber)}
}

func (f *MemoryFeed) Publish(_ context.Context, s Snapshot) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, sub := range f.subs {
		if sub.id == "" || sub.id == s.Ride.ID {
			offer(sub.ch, s)
		}
	}
	return nil
}

func (f *MemoryFeed) Subscribe(ctx context.Context, id types.ID) (<-chan Snapshot, error) {
	ch := make(chan Snapshot, 1)
	f.mu.Lock()
	key := f.nextID
	f.nextID++
	f.subs[key] = subscriber{id: id, ch: ch}
	f.mu.Unlock()

	go func() {
		<-ctx.Done()
		f.mu.Lock()
		delete(f.subs, key)
		close(ch)
		f.mu.Unlock()
	}()
	return ch, nil
}

// Observe streams one ride. The first value is the current snapshot; later values are the latest
// state whenever it changes. A deleted ride yields a final Deleted snapshot, then the channel
// closes. The channel also closes when ctx ends.
func (s *Service) Observe(ctx context.Context, ref Ref) (<-chan Snapshot, error) {
	ctx, cancel := context.WithCancel(ctx)
	updates, err := s.feed.Subscribe(ctx, ref.ID)
	if err != nil {
		cancel()
		return nil, err
	}
	cur, err := s.Get(ctx, ref)
	if err != nil {
		cancel()
		return nil, err
	}

	out := make(chan Snapshot, 1)
	out <- Snapshot{Ride: *cur}
	go func() {
		defer close(out)
		defer cancel()
		version := cur.StatusVersion
		for {
			select {
			case <-ctx.Done():
				return
			case snap, ok := <-updates:
				if !ok {
					return
				}
				if snap.Ride.Category != ref.Category {
					continue
				}
				if !snap.Deleted && snap.Ride.StatusVersion <= version {
					continue
				}
				version = snap.Ride.StatusVersion
				offer(out, snap)
				if snap.Deleted {
					return
				}
			}
		}
	}()
	return out, nil
}

// Changes is a coalesced signal stream of every ride change, used by dashboards to refresh.
func (s *Service) Changes(ctx context.Context) (<-chan Snapshot, error) {
	return s.feed.Subscribe(ctx, "")
}
