package session

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"icgateway/internal/constants"
	"icgateway/internal/logger"
)

type memoryEntry struct {
	record    Record
	expiresAt time.Time
}

func (e memoryEntry) expired(now time.Time) bool {
	return !now.Before(e.expiresAt)
}

// MemoryStore keeps records in process memory. Used when Redis is not
// configured or cannot be reached.
type MemoryStore struct {
	records  sync.Map
	now      func() time.Time
	log      zerolog.Logger
	stop     chan struct{}
	stopOnce sync.Once
}

func NewMemoryStore() *MemoryStore {
	store := newMemoryStore(time.Now)
	go store.cleanupLoop(constants.CleanupInterval)
	return store
}

func newMemoryStore(now func() time.Time) *MemoryStore {
	return &MemoryStore{
		now:  now,
		log:  logger.Component("memory-store"),
		stop: make(chan struct{}),
	}
}

func (st *MemoryStore) Save(_ context.Context, clientID uint64, rec Record, ttl time.Duration) error {
	st.log.Debug().Uint64("client_id", clientID).Dur("ttl", ttl).Msg("💾 Saving session to memory")
	st.records.Store(clientID, memoryEntry{record: rec, expiresAt: st.now().Add(ttl)})
	return nil
}

func (st *MemoryStore) Get(_ context.Context, clientID uint64) (*Record, error) {
	val, ok := st.records.Load(clientID)
	if !ok {
		return nil, nil
	}
	entry := val.(memoryEntry)
	if entry.expired(st.now()) {
		st.records.CompareAndDelete(clientID, val)
		return nil, nil
	}
	rec := entry.record
	return &rec, nil
}

func (st *MemoryStore) Delete(_ context.Context, clientID uint64) error {
	st.records.Delete(clientID)
	return nil
}

func (st *MemoryStore) Close() error {
	st.stopOnce.Do(func() { close(st.stop) })
	return nil
}

func (st *MemoryStore) cleanupLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-st.stop:
			return
		case <-ticker.C:
			st.removeExpired()
		}
	}
}

func (st *MemoryStore) removeExpired() int {
	now := st.now()
	removed := 0
	st.records.Range(func(key, value interface{}) bool {
		if value.(memoryEntry).expired(now) {
			if st.records.CompareAndDelete(key, value) {
				removed++
				st.log.Debug().Uint64("client_id", key.(uint64)).Msg("🗑 Expired session cleaned up")
			}
		}
		return true
	})
	return removed
}
