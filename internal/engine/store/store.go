// Package store keeps the most recent counter snapshot of every live flow-table entry.
package store

import (
	"hash/fnv"
	"sort"
	"sync"

	"Go2FlowLabel/internal/model"
)

const defaultShardCount = 64

type shard struct {
	mu    sync.RWMutex
	flows map[model.FlowIdentity]model.FlowSnapshot
}

// Store maps a FlowIdentity to its latest FlowSnapshot using a sharded map.
// There is at most one entry per identity; Put replaces, it never merges.
type Store struct {
	shards     []*shard
	shardCount uint32
}

// New creates a store with numShards shards (a default is used when out of range).
func New(numShards uint32) *Store {
	if numShards == 0 || numShards >= 32768 {
		numShards = defaultShardCount
	}
	s := &Store{
		shards:     make([]*shard, numShards),
		shardCount: numShards,
	}
	for i := range s.shards {
		s.shards[i] = &shard{flows: make(map[model.FlowIdentity]model.FlowSnapshot)}
	}
	return s
}

func (s *Store) getShard(id model.FlowIdentity) *shard {
	hasher := fnv.New32a()
	hasher.Write([]byte(id.Key()))
	return s.shards[hasher.Sum32()%s.shardCount]
}

// Get returns a copy of the stored snapshot for id.
func (s *Store) Get(id model.FlowIdentity) (model.FlowSnapshot, bool) {
	sh := s.getShard(id)
	sh.mu.RLock()
	defer sh.mu.RUnlock()
	snap, ok := sh.flows[id]
	return snap, ok
}

// Put creates or replaces the entry for id.
func (s *Store) Put(id model.FlowIdentity, snap model.FlowSnapshot) {
	sh := s.getShard(id)
	sh.mu.Lock()
	sh.flows[id] = snap
	sh.mu.Unlock()
}

// Delete removes the entry for id, if any.
func (s *Store) Delete(id model.FlowIdentity) {
	sh := s.getShard(id)
	sh.mu.Lock()
	delete(sh.flows, id)
	sh.mu.Unlock()
}

// Len returns the number of live entries.
func (s *Store) Len() int {
	n := 0
	for _, sh := range s.shards {
		sh.mu.RLock()
		n += len(sh.flows)
		sh.mu.RUnlock()
	}
	return n
}

// Snapshot returns a copy of every entry, ordered by datapath id and flow key.
func (s *Store) Snapshot() []model.FlowObservation {
	var out []model.FlowObservation
	for _, sh := range s.shards {
		sh.mu.RLock()
		for id, snap := range sh.flows {
			out = append(out, model.FlowObservation{Identity: id, Snapshot: snap})
		}
		sh.mu.RUnlock()
	}
	sortObservations(out)
	return out
}

// Expire removes and returns the entries that belong to a switch in answered but
// whose identity is not in seen. Entries of switches that did not answer are kept.
func (s *Store) Expire(seen map[model.FlowIdentity]struct{}, answered map[uint64]bool) []model.FlowObservation {
	var expired []model.FlowObservation
	for _, sh := range s.shards {
		sh.mu.Lock()
		for id, snap := range sh.flows {
			if !answered[id.DatapathID] {
				continue
			}
			if _, ok := seen[id]; ok {
				continue
			}
			expired = append(expired, model.FlowObservation{Identity: id, Snapshot: snap})
			delete(sh.flows, id)
		}
		sh.mu.Unlock()
	}
	sortObservations(expired)
	return expired
}

// DrainAll removes and returns every entry.
func (s *Store) DrainAll() []model.FlowObservation {
	var out []model.FlowObservation
	for _, sh := range s.shards {
		sh.mu.Lock()
		for id, snap := range sh.flows {
			out = append(out, model.FlowObservation{Identity: id, Snapshot: snap})
		}
		sh.flows = make(map[model.FlowIdentity]model.FlowSnapshot)
		sh.mu.Unlock()
	}
	sortObservations(out)
	return out
}

func sortObservations(obs []model.FlowObservation) {
	sort.Slice(obs, func(i, j int) bool {
		a, b := obs[i].Identity, obs[j].Identity
		if a.DatapathID != b.DatapathID {
			return a.DatapathID < b.DatapathID
		}
		return a.Key() < b.Key()
	})
}
