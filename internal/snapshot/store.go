// Package snapshot holds the live per-topic view of a session: the most
// recent classified payload for every topic seen, without history.
package snapshot

import (
	"sort"
	"sync"

	"github.com/nugget/mqttscope/internal/payload"
)

// Entry pairs a topic with its latest value.
type Entry struct {
	Topic string        `json:"topic"`
	Value payload.Value `json:"value"`
}

// Store maps topics to their latest [payload.Value]. Set replaces the
// whole value under the write lock, so readers never observe a partial
// update. It is safe for concurrent use; the session's receive loop is
// expected to be the only writer.
type Store struct {
	mu      sync.RWMutex
	values  map[string]payload.Value
	version uint64
}

// New creates an empty store.
func New() *Store {
	return &Store{values: make(map[string]payload.Value)}
}

// Get returns the latest value for topic.
func (s *Store) Get(topic string) (payload.Value, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.values[topic]
	return v, ok
}

// Set records v as the latest value for topic, replacing any previous
// value. Values are never merged.
func (s *Store) Set(topic string, v payload.Value) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[topic] = v
	s.version++
}

// Version counts the changes made to the store. It increases with
// every Set and Reset, so an unchanged Version means unchanged entries.
func (s *Store) Version() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.version
}

// Len returns the number of topics held.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.values)
}

// Topics returns the known topics in lexical order.
func (s *Store) Topics() []string {
	s.mu.RLock()
	topics := make([]string, 0, len(s.values))
	for t := range s.values {
		topics = append(topics, t)
	}
	s.mu.RUnlock()

	sort.Strings(topics)
	return topics
}

// Entries returns a point-in-time copy of the store ordered by topic.
func (s *Store) Entries() []Entry {
	s.mu.RLock()
	entries := make([]Entry, 0, len(s.values))
	for t, v := range s.values {
		entries = append(entries, Entry{Topic: t, Value: v})
	}
	s.mu.RUnlock()

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Topic < entries[j].Topic
	})
	return entries
}

// Reset discards every entry.
func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values = make(map[string]payload.Value)
	s.version++
}
