package storage

import (
	"context"
	"sync"
	"time"
)

// MemoryStore keeps the latest snapshot per lot in a map.
// It is safe for concurrent use.
//
// With a TTL, snapshots whose GeneratedAt is older than the TTL are no longer
// returned, and a background goroutine drops them; call Stop to release it. Use RedisStore when several
// forecaster replicas must share snapshots.
type MemoryStore struct {
	mu        sync.RWMutex
	snapshots map[string]Snapshot
	ttl       time.Duration

	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
}

// NewMemoryStore creates a store that keeps snapshots until replaced.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{snapshots: make(map[string]Snapshot)}
}

// NewMemoryStoreWithTTL creates a store that expires snapshots older than ttl,
// checking every cleanupInterval (one minute if <= 0).
func NewMemoryStoreWithTTL(ttl, cleanupInterval time.Duration) *MemoryStore {
	if ttl <= 0 {
		panic("TTL must be positive")
	}
	if cleanupInterval <= 0 {
		cleanupInterval = time.Minute
	}

	s := &MemoryStore{
		snapshots: make(map[string]Snapshot),
		ttl:       ttl,
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
	}
	go s.runCleanup(cleanupInterval)
	return s
}

// Stop ends the cleanup goroutine and waits for it. Safe to call more than
// once and on stores without a TTL.
func (s *MemoryStore) Stop() {
	if s.stop == nil {
		return
	}
	s.stopOnce.Do(func() {
		close(s.stop)
		<-s.done
	})
}

// Close implements io.Closer so callers can treat all stores alike.
func (s *MemoryStore) Close() error {
	s.Stop()
	return nil
}

func (s *MemoryStore) runCleanup(interval time.Duration) {
	defer close(s.done)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case now := <-ticker.C:
			s.expire(now)
		case <-s.stop:
			return
		}
	}
}

func (s *MemoryStore) expire(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for lot, snap := range s.snapshots {
		if now.Sub(snap.GeneratedAt) > s.ttl {
			delete(s.snapshots, lot)
		}
	}
}

// Put replaces the snapshot for snapshot.Lot.
func (s *MemoryStore) Put(ctx context.Context, snapshot Snapshot) error {
	if err := ValidateLotName(snapshot.Lot); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.snapshots[snapshot.Lot] = snapshot
	return nil
}

// GetLatest returns the stored snapshot for lot and whether one exists.
func (s *MemoryStore) GetLatest(ctx context.Context, lot string) (Snapshot, bool, error) {
	if err := ctx.Err(); err != nil {
		return Snapshot{}, false, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	snap, found := s.snapshots[lot]
	if found && s.ttl > 0 && time.Since(snap.GeneratedAt) > s.ttl {
		return Snapshot{}, false, nil
	}
	return snap, found, nil
}

// Len returns the number of stored snapshots.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.snapshots)
}
