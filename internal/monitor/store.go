package monitor

import (
	"log/slog"
	"sort"
	"sync"
	"time"
)

// Saver persists the full monitoring collection after each mutation.
type Saver func(records []Monitoring) error

// entry pairs a record with its own lock so services are mutated
// independently of each other and of the index.
type entry struct {
	mu  sync.Mutex
	rec Monitoring
}

// Store holds one Monitoring record per service id. Records are created
// lazily when the first outcome for a service arrives. The index lock only
// covers find-or-create, list and delete; each record's lock covers the
// span of a mutation callback.
type Store struct {
	mu      sync.RWMutex
	entries map[string]*entry

	save Saver
	now  func() time.Time // injectable for deterministic tests
}

// NewStore creates an empty Store. save may be nil to disable persistence.
func NewStore(save Saver) *Store {
	return &Store{
		entries: make(map[string]*entry),
		save:    save,
		now:     time.Now,
	}
}

// Load replaces the store's contents with records restored from
// persistence.
func (s *Store) Load(records []Monitoring) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = make(map[string]*entry, len(records))
	for _, m := range records {
		s.entries[m.ServiceID] = &entry{rec: m}
	}
}

// Update applies fn to the record for serviceID, creating it first if
// needed, then persists the collection. The index lock is not held across
// the callback; the record's own lock is.
func (s *Store) Update(serviceID string, fn func(*Monitoring)) {
	e := s.findOrCreate(serviceID)

	e.mu.Lock()
	fn(&e.rec)
	e.mu.Unlock()

	s.persist()
}

// ApplyOutcome transitions the service's record with the probe outcome,
// stamped with the store's clock.
func (s *Store) ApplyOutcome(serviceID string, o Outcome) {
	now := s.now()
	s.Update(serviceID, func(m *Monitoring) {
		m.Apply(o, now)
	})
}

func (s *Store) findOrCreate(serviceID string) *entry {
	s.mu.RLock()
	e, ok := s.entries[serviceID]
	s.mu.RUnlock()
	if ok {
		return e
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.entries[serviceID]; ok {
		return e
	}
	e = &entry{rec: *newMonitoring(serviceID)}
	s.entries[serviceID] = e
	return e
}

// Get returns a copy of the record for serviceID.
func (s *Store) Get(serviceID string) (Monitoring, bool) {
	s.mu.RLock()
	e, ok := s.entries[serviceID]
	s.mu.RUnlock()
	if !ok {
		return Monitoring{}, false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.rec, true
}

// List returns copies of all records sorted by service id.
func (s *Store) List() []Monitoring {
	s.mu.RLock()
	entries := make([]*entry, 0, len(s.entries))
	for _, e := range s.entries {
		entries = append(entries, e)
	}
	s.mu.RUnlock()

	out := make([]Monitoring, 0, len(entries))
	for _, e := range entries {
		e.mu.Lock()
		out = append(out, e.rec)
		e.mu.Unlock()
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ServiceID < out[j].ServiceID })
	return out
}

// Delete removes the record for serviceID and reports whether one existed.
func (s *Store) Delete(serviceID string) bool {
	s.mu.Lock()
	_, ok := s.entries[serviceID]
	if ok {
		delete(s.entries, serviceID)
	}
	s.mu.Unlock()

	if ok {
		s.persist()
	}
	return ok
}

func (s *Store) persist() {
	if s.save == nil {
		return
	}
	if err := s.save(s.List()); err != nil {
		slog.Warn("monitor: persist failed", "err", err)
	}
}
