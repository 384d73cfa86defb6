// Package store is the deal synchronization layer: an observable in-memory
// collection updated optimistically by local turns, written through to
// durable storage in the background, and merged with realtime changes from
// other sessions.
package store

import (
	"context"
	"sync"
	"time"

	"salesflow_backend/internal/deals/domain"
	"salesflow_backend/internal/deals/ports"
	"salesflow_backend/platform/logger"
)

// ChangeKind is what happened to a deal in the collection.
type ChangeKind string

const (
	ChangeUpserted ChangeKind = "upserted"
	ChangeDeleted  ChangeKind = "deleted"
)

// Origin tells listeners whether a change was made here or merged in.
type Origin string

const (
	OriginLocal  Origin = "local"
	OriginRemote Origin = "remote"
)

// Change is delivered to subscribers after it is visible to readers.
type Change struct {
	Kind   ChangeKind
	Origin Origin
	ID     string
	Deal   domain.Deal
}

// Listener receives changes. Changes are delivered one at a time in the
// order they were applied, so revisions of one deal arrive increasing
// except where a remote change replaced a newer local one. It runs on the
// mutating goroutine and must not block or call back into the store's
// mutating methods.
type Listener func(Change)

// Options configures a Store.
type Options struct {
	Policy         MergePolicy
	TombstoneTTL   time.Duration
	PersistTimeout time.Duration
	// Retry receives failed writes. Nil means failures are only logged.
	Retry ports.RetryQueue
	Now   func() time.Time
}

// Store holds the deals visible to this process. The mutex only guards
// memory; between a local turn and a remote event, arrival order wins.
type Store struct {
	mu         sync.RWMutex
	deals      map[string]domain.Deal
	order      []string
	tombstones map[string]time.Time

	listenersMu sync.RWMutex
	listeners   map[int]Listener
	nextID      int
	// Deliveries take a ticket under mu and run in ticket order, outside
	// every lock, so listeners may read from the store.
	nextTicket uint64
	turnMu     sync.Mutex
	turn       *sync.Cond
	served     uint64

	durable        ports.DealStore
	retry          ports.RetryQueue
	policy         MergePolicy
	tombstoneTTL   time.Duration
	persistTimeout time.Duration
	now            func() time.Time
	log            *logger.Logger
	inflight       sync.WaitGroup

	// writes holds the completion channel of the last queued durable write
	// per deal. Each write waits for its predecessor.
	writesMu sync.Mutex
	writes   map[string]chan struct{}
	// failed marks deals whose last durable write failed, so the durable
	// row is behind local state until a retry lands.
	failed map[string]struct{}
}

// New creates an empty store writing through to durable.
func New(durable ports.DealStore, opts Options, log *logger.Logger) *Store {
	if opts.Policy == "" {
		opts.Policy = LastEventWins
	}
	if opts.PersistTimeout <= 0 {
		opts.PersistTimeout = 10 * time.Second
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	s := &Store{
		deals:          make(map[string]domain.Deal),
		tombstones:     make(map[string]time.Time),
		listeners:      make(map[int]Listener),
		writes:         make(map[string]chan struct{}),
		failed:         make(map[string]struct{}),
		durable:        durable,
		retry:          opts.Retry,
		policy:         opts.Policy,
		tombstoneTTL:   opts.TombstoneTTL,
		persistTimeout: opts.PersistTimeout,
		now:            opts.Now,
		log:            log,
	}
	s.turn = sync.NewCond(&s.turnMu)
	return s
}

// Policy returns the active merge policy.
func (s *Store) Policy() MergePolicy { return s.policy }

// Hydrate replaces the collection with deals loaded from durable storage.
// It does not notify subscribers.
func (s *Store) Hydrate(deals []domain.Deal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deals = make(map[string]domain.Deal, len(deals))
	s.order = s.order[:0]
	for _, d := range deals {
		if _, dup := s.deals[d.ID]; !dup {
			s.order = append(s.order, d.ID)
		}
		s.deals[d.ID] = d.Clone()
	}
}

// Get returns a copy of one deal.
func (s *Store) Get(id string) (domain.Deal, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.deals[id]
	if !ok {
		return domain.Deal{}, false
	}
	return d.Clone(), true
}

// Snapshot returns copies of all deals in insertion order.
func (s *Store) Snapshot() []domain.Deal {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Deal, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.deals[id].Clone())
	}
	return out
}

// Subscribe registers fn and returns a function that removes it.
func (s *Store) Subscribe(fn Listener) func() {
	s.listenersMu.Lock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = fn
	s.listenersMu.Unlock()
	return func() {
		s.listenersMu.Lock()
		delete(s.listeners, id)
		s.listenersMu.Unlock()
	}
}

// ApplyLocal replaces or inserts deal and bumps its revision past the
// stored one. The returned copy carries the new revision.
func (s *Store) ApplyLocal(deal domain.Deal) domain.Deal {
	d := deal.Clone()

	s.mu.Lock()
	if cur, ok := s.deals[d.ID]; ok && cur.Revision >= d.Revision {
		d.Revision = cur.Revision + 1
	} else {
		d.Revision++
	}
	s.put(d)
	delete(s.tombstones, d.ID)
	s.unlockAndNotify(Change{Kind: ChangeUpserted, Origin: OriginLocal, ID: d.ID, Deal: d.Clone()})
	return d
}

// Persist upserts deal in the background. Failures are logged and handed
// to the retry queue; local state is never rolled back.
func (s *Store) Persist(deal domain.Deal) {
	d := deal.Clone()
	s.enqueueWrite(d.ID, func() {
		ctx, cancel := context.WithTimeout(context.Background(), s.persistTimeout)
		defer cancel()

		err := s.durable.Upsert(ctx, d)
		s.markFailed(d.ID, err != nil)
		if err != nil {
			s.log.PersistFailure("upsert", d.ID, err)
			if s.retry != nil {
				s.enqueueRetry(d.ID, func(ctx context.Context) error { return s.retry.EnqueuePersist(ctx, d) })
			}
		}
	})
}

// Commit applies locally then persists, returning the applied copy.
func (s *Store) Commit(deal domain.Deal) domain.Deal {
	applied := s.ApplyLocal(deal)
	s.Persist(applied)
	return applied
}

// DeleteDeal removes the deal locally, then deletes it durably in the
// background. It reports whether the deal was present locally.
func (s *Store) DeleteDeal(id string) bool {
	s.mu.Lock()
	_, existed := s.deals[id]
	s.remove(id)
	if s.policy == RevisionGated {
		s.pruneTombstones()
		s.tombstones[id] = s.now()
	}
	if existed {
		s.unlockAndNotify(Change{Kind: ChangeDeleted, Origin: OriginLocal, ID: id})
	} else {
		s.mu.Unlock()
	}

	s.enqueueWrite(id, func() {
		ctx, cancel := context.WithTimeout(context.Background(), s.persistTimeout)
		defer cancel()

		err := s.durable.Delete(ctx, id)
		s.markFailed(id, err != nil)
		if err != nil {
			s.log.PersistFailure("delete", id, err)
			if s.retry != nil {
				s.enqueueRetry(id, func(ctx context.Context) error { return s.retry.EnqueueDelete(ctx, id) })
			}
		}
	})
	return existed
}

// enqueueWrite runs write in the background after every write queued
// earlier for the same deal has finished, so durable writes land in call
// order. Writes for different deals run concurrently.
func (s *Store) enqueueWrite(id string, write func()) {
	done := make(chan struct{})
	s.writesMu.Lock()
	prev := s.writes[id]
	s.writes[id] = done
	s.writesMu.Unlock()

	s.inflight.Add(1)
	go func() {
		defer s.inflight.Done()
		if prev != nil {
			<-prev
		}
		write()
		close(done)

		s.writesMu.Lock()
		if s.writes[id] == done {
			delete(s.writes, id)
		}
		s.writesMu.Unlock()
	}()
}

func (s *Store) markFailed(id string, failed bool) {
	s.writesMu.Lock()
	defer s.writesMu.Unlock()
	if failed {
		s.failed[id] = struct{}{}
	} else {
		delete(s.failed, id)
	}
}

// localAhead reports whether local state for id may be newer than the
// durable row: a write is queued or running, or the last one failed.
func (s *Store) localAhead(id string) bool {
	s.writesMu.Lock()
	defer s.writesMu.Unlock()
	if _, ok := s.writes[id]; ok {
		return true
	}
	_, ok := s.failed[id]
	return ok
}

// enqueueRetry gets its own deadline since the failed write may have
// exhausted the original one.
func (s *Store) enqueueRetry(id string, enqueue func(context.Context) error) {
	ctx, cancel := context.WithTimeout(context.Background(), s.persistTimeout)
	defer cancel()
	if err := enqueue(ctx); err != nil {
		s.log.Warn("retry enqueue failed", "deal_id", id, "error", err)
	}
}

// OnRemoteChange merges a change made by any session, including echoes of
// this process's own writes.
func (s *Store) OnRemoteChange(ev ports.ChangeEvent) {
	id := ev.ID
	if id == "" {
		id = ev.Deal.ID
	}
	if id == "" {
		return
	}

	s.mu.Lock()
	change, ok := s.merge(ev.Type, id, ev.Deal)
	if !ok {
		s.mu.Unlock()
		return
	}
	s.unlockAndNotify(change)
}

// Resync reconciles the collection with a full durable listing taken
// after the change feed started listening. It recovers changes whose
// notifications were sent while no connection was listening. Deals with
// local writes still on their way to storage are left alone; the echoes of
// those writes settle them. Changes follow the merge policy and are
// delivered to subscribers like remote changes.
func (s *Store) Resync(durable []domain.Deal) {
	seen := make(map[string]struct{}, len(durable))
	changes := make([]Change, 0)

	s.mu.Lock()
	for _, remote := range durable {
		seen[remote.ID] = struct{}{}
		if s.localAhead(remote.ID) {
			continue
		}
		typ := ports.ChangeInsert
		if cur, ok := s.deals[remote.ID]; ok {
			if cur.Revision == remote.Revision && cur.LastInteraction.Equal(remote.LastInteraction) {
				continue
			}
			typ = ports.ChangeUpdate
		}
		if change, ok := s.merge(typ, remote.ID, remote); ok {
			changes = append(changes, change)
		}
	}
	for _, id := range append([]string(nil), s.order...) {
		if _, ok := seen[id]; ok || s.localAhead(id) {
			continue
		}
		if change, ok := s.merge(ports.ChangeDelete, id, domain.Deal{}); ok {
			changes = append(changes, change)
		}
	}
	s.unlockAndNotify(changes...)
}

// merge must be called with mu held.
func (s *Store) merge(typ ports.ChangeType, id string, remote domain.Deal) (Change, bool) {
	if typ != ports.ChangeDelete && s.policy == RevisionGated && s.tombstoned(id) {
		return Change{}, false
	}

	cur, exists := s.deals[id]
	switch typ {
	case ports.ChangeInsert:
		if exists {
			return Change{}, false
		}
	case ports.ChangeUpdate:
		if !exists {
			return Change{}, false
		}
		if s.policy == RevisionGated && remote.Revision < cur.Revision {
			return Change{}, false
		}
	case ports.ChangeDelete:
		if !exists {
			return Change{}, false
		}
		s.remove(id)
		return Change{Kind: ChangeDeleted, Origin: OriginRemote, ID: id}, true
	default:
		return Change{}, false
	}

	d := remote.Clone()
	s.put(d)
	return Change{Kind: ChangeUpserted, Origin: OriginRemote, ID: id, Deal: d.Clone()}, true
}

// Wait blocks until background writes started so far have finished.
func (s *Store) Wait() {
	s.inflight.Wait()
}

func (s *Store) put(d domain.Deal) {
	if _, ok := s.deals[d.ID]; !ok {
		s.order = append(s.order, d.ID)
	}
	s.deals[d.ID] = d
}

func (s *Store) remove(id string) {
	if _, ok := s.deals[id]; !ok {
		return
	}
	delete(s.deals, id)
	for i, oid := range s.order {
		if oid == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
}

func (s *Store) tombstoned(id string) bool {
	at, ok := s.tombstones[id]
	if !ok {
		return false
	}
	if s.tombstoneTTL > 0 && s.now().Sub(at) > s.tombstoneTTL {
		delete(s.tombstones, id)
		return false
	}
	return true
}

func (s *Store) pruneTombstones() {
	if s.tombstoneTTL <= 0 {
		return
	}
	now := s.now()
	for id, at := range s.tombstones {
		if now.Sub(at) > s.tombstoneTTL {
			delete(s.tombstones, id)
		}
	}
}

// unlockAndNotify releases mu and delivers changes after every change
// applied earlier has been delivered. It must be called with mu held.
func (s *Store) unlockAndNotify(changes ...Change) {
	if len(changes) == 0 {
		s.mu.Unlock()
		return
	}
	ticket := s.nextTicket
	s.nextTicket++
	s.mu.Unlock()

	s.turnMu.Lock()
	for s.served != ticket {
		s.turn.Wait()
	}
	s.turnMu.Unlock()

	for _, change := range changes {
		s.notify(change)
	}

	s.turnMu.Lock()
	s.served++
	s.turn.Broadcast()
	s.turnMu.Unlock()
}

func (s *Store) notify(change Change) {
	s.listenersMu.RLock()
	listeners := make([]Listener, 0, len(s.listeners))
	for _, fn := range s.listeners {
		listeners = append(listeners, fn)
	}
	s.listenersMu.RUnlock()

	for _, fn := range listeners {
		fn(change)
	}
}
