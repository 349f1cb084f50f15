package build

import (
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Saver persists the full record collection. It is called once per completed
// mutation, outside any record lock.
type Saver func(records []*Record) error

// Store is the keyed collection of build records. Absence is never an
// error: updating an unknown (application, version) pair creates the record.
type Store struct {
	mu      sync.RWMutex
	records map[key]*Record

	save Saver
	now  func() time.Time // injectable for deterministic tests
}

type key struct {
	name    string
	version string
}

// NewStore creates an empty Store. save may be nil to disable persistence.
func NewStore(save Saver) *Store {
	return &Store{
		records: make(map[key]*Record),
		save:    save,
		now:     time.Now,
	}
}

// Load replaces the store's contents with records restored from
// persistence. Meant to be called once at startup, before any updates.
func (s *Store) Load(records []*Record) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = make(map[key]*Record, len(records))
	for _, r := range records {
		s.records[key{r.ApplicationName, r.ApplicationVersion}] = r
	}
}

// Update applies mutation to the record for (name, version), creating it
// first if it does not exist. The record lock is held for the span of the
// callback and released even if the mutation panics; the mutation's error
// propagates unchanged. On success the record's timestamp is refreshed and
// the whole collection is persisted.
func (s *Store) Update(name, version string, mutation func(*Record) error) error {
	rec := s.findOrCreate(strings.TrimSpace(name), strings.TrimSpace(version))

	if err := s.mutate(rec, mutation); err != nil {
		return err
	}
	s.persist()
	return nil
}

// UpdateByRun applies mutation to every record whose run metadata matches
// (job, runNumber). Used to annotate records after the run finished.
// Persists only when at least one record matched.
func (s *Store) UpdateByRun(job string, runNumber int, mutation func(*Record) error) error {
	number := strconv.Itoa(runNumber)

	s.mu.RLock()
	var matched []*Record
	for _, r := range s.records {
		// Run metadata is written under the record lock; match under it too.
		r.mu.Lock()
		ok := r.BuildJob == job && r.BuildNumber == number
		r.mu.Unlock()
		if ok {
			matched = append(matched, r)
		}
	}
	s.mu.RUnlock()

	for _, rec := range matched {
		if err := s.mutate(rec, mutation); err != nil {
			return err
		}
	}
	if len(matched) > 0 {
		s.persist()
	}
	return nil
}

// mutate runs the callback under the record lock, then refreshes the
// timestamp. The deferred unlock guarantees release on panic.
func (s *Store) mutate(rec *Record, mutation func(*Record) error) error {
	rec.mu.Lock()
	defer rec.mu.Unlock()
	if err := mutation(rec); err != nil {
		return err
	}
	rec.BuildTimestamp = s.now().Unix()
	return nil
}

func (s *Store) findOrCreate(name, version string) *Record {
	k := key{name, version}

	s.mu.RLock()
	rec, ok := s.records[k]
	s.mu.RUnlock()
	if ok {
		return rec
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if rec, ok := s.records[k]; ok {
		return rec
	}
	rec = newRecord(name, version)
	s.records[k] = rec
	return rec
}

// Find returns the record for (name, version) if one exists.
func (s *Store) Find(name, version string) (*Record, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[key{strings.TrimSpace(name), strings.TrimSpace(version)}]
	return rec, ok
}

// List returns all records sorted by application name, then version.
func (s *Store) List() []*Record {
	s.mu.RLock()
	out := make([]*Record, 0, len(s.records))
	for _, r := range s.records {
		out = append(out, r)
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].ApplicationName != out[j].ApplicationName {
			return out[i].ApplicationName < out[j].ApplicationName
		}
		return out[i].ApplicationVersion < out[j].ApplicationVersion
	})
	return out
}

// Exists reports whether any version of the named application is tracked.
func (s *Store) Exists(name string) bool {
	name = strings.TrimSpace(name)

	s.mu.RLock()
	defer s.mu.RUnlock()
	for k := range s.records {
		if k.name == name {
			return true
		}
	}
	return false
}

// Delete removes the record for (name, version) and reports whether one
// existed. The administrative deletion path.
func (s *Store) Delete(name, version string) bool {
	k := key{strings.TrimSpace(name), strings.TrimSpace(version)}

	s.mu.Lock()
	_, ok := s.records[k]
	if ok {
		delete(s.records, k)
	}
	s.mu.Unlock()

	if ok {
		s.persist()
	}
	return ok
}

// Count returns the number of tracked records.
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

// persist saves the full collection. A failed save is logged and does not
// fail the mutation that triggered it; the in-memory state stays
// authoritative and the next successful save wins.
func (s *Store) persist() {
	if s.save == nil {
		return
	}
	if err := s.save(s.List()); err != nil {
		slog.Warn("build: persist failed", "err", err)
	}
}
