// TotemWatch - Protocol-Level Totem Automation Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/totemwatch

// Package session owns all per-player detection state. The Store is the
// only structure mutated by both the event path and the sweep path;
// synchronization is per entry so one player's sweep never blocks another
// player's event processing.
package session

import (
	"sync"

	"github.com/google/uuid"

	"github.com/tomtom215/totemwatch/internal/logging"
	"github.com/tomtom215/totemwatch/internal/protocol"
)

// shardCount spreads the registry across independent locks. Power of two
// so the shard index reduces to a mask of the identity bytes.
const shardCount = 32

// DefaultHistorySize bounds each per-kind ring buffer.
const DefaultHistorySize = 32

type shard struct {
	mu      sync.RWMutex
	players map[uuid.UUID]*PlayerState
}

// Store is the process-wide registry of connected players. Exactly one
// PlayerState exists per connected identity; join after quit creates a
// fresh state with no residual history.
type Store struct {
	shards      [shardCount]shard
	clock       protocol.Clock
	historySize int
}

// NewStore creates a session store. historySize bounds each per-kind ring
// buffer; pass 0 for the default.
func NewStore(clock protocol.Clock, historySize int) *Store {
	if historySize <= 0 {
		historySize = DefaultHistorySize
	}
	s := &Store{clock: clock, historySize: historySize}
	for i := range s.shards {
		s.shards[i].players = make(map[uuid.UUID]*PlayerState)
	}
	return s
}

func (s *Store) shardFor(id uuid.UUID) *shard {
	// uuid bytes are uniformly distributed; the last byte is enough.
	return &s.shards[id[15]%shardCount]
}

// OnJoin registers a fresh session for the player. A lingering state for
// the same identity (quit racing a rejoin) is replaced wholesale.
func (s *Store) OnJoin(id uuid.UUID) {
	sh := s.shardFor(id)
	st := newPlayerState(id, s.clock.Now(), s.historySize)

	sh.mu.Lock()
	if old, ok := sh.players[id]; ok {
		old.mu.Lock()
		old.gone = true
		old.mu.Unlock()
	}
	sh.players[id] = st
	sh.mu.Unlock()

	logging.Debug().Str("player", id.String()).Msg("session created")
}

// OnQuit releases the player's session. All per-player memory is dropped;
// in-flight dispatcher work referencing the identity may still complete,
// but no new events are accepted until a new join.
func (s *Store) OnQuit(id uuid.UUID) {
	sh := s.shardFor(id)

	sh.mu.Lock()
	st, ok := sh.players[id]
	if ok {
		delete(sh.players, id)
	}
	sh.mu.Unlock()

	if !ok {
		return
	}

	st.mu.Lock()
	st.gone = true
	st.mu.Unlock()

	logging.Debug().Str("player", id.String()).Msg("session released")
}

// Process runs fn against the player's state under its entry lock, holding
// it for exactly one processing step. It returns false when the identity
// has no live session (unknown or already quit).
func (s *Store) Process(id uuid.UUID, fn func(*PlayerState)) bool {
	sh := s.shardFor(id)

	sh.mu.RLock()
	st, ok := sh.players[id]
	sh.mu.RUnlock()
	if !ok {
		return false
	}

	st.mu.Lock()
	defer st.mu.Unlock()
	if st.gone {
		return false
	}
	fn(st)
	return true
}

// ForEach visits every live session, locking each entry only for the
// duration of fn. Entries added or removed mid-iteration may or may not be
// visited; no entry is visited twice. Sessions for which fn returns true
// are evicted.
func (s *Store) ForEach(fn func(*PlayerState) (evict bool)) {
	for i := range s.shards {
		sh := &s.shards[i]

		sh.mu.RLock()
		batch := make([]*PlayerState, 0, len(sh.players))
		for _, st := range sh.players {
			batch = append(batch, st)
		}
		sh.mu.RUnlock()

		for _, st := range batch {
			st.mu.Lock()
			if st.gone {
				st.mu.Unlock()
				continue
			}
			evict := fn(st)
			if evict {
				st.gone = true
			}
			id := st.id
			st.mu.Unlock()

			if evict {
				sh.mu.Lock()
				// Re-check: a fresh join may have replaced the entry.
				if cur, ok := sh.players[id]; ok && cur == st {
					delete(sh.players, id)
				}
				sh.mu.Unlock()
				logging.Debug().Str("player", id.String()).Msg("idle session evicted")
			}
		}
	}
}

// Len returns the number of live sessions.
func (s *Store) Len() int {
	total := 0
	for i := range s.shards {
		sh := &s.shards[i]
		sh.mu.RLock()
		total += len(sh.players)
		sh.mu.RUnlock()
	}
	return total
}
