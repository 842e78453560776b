package assets

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/yungbote/certgen-backend/internal/pkg/logger"
)

type memoryEntry struct {
	asset     Asset
	data      []byte
	expiresAt time.Time
}

type memoryStore struct {
	log    *logger.Logger
	limits Limits
	ttl    time.Duration

	mu      sync.RWMutex
	entries map[uuid.UUID]*memoryEntry
}

// NewMemoryStore returns the default Store: process-local, TTL-evicted.
// The janitor stops when ctx is cancelled.
func NewMemoryStore(ctx context.Context, log *logger.Logger, limits Limits, ttl time.Duration) Store {
	s := &memoryStore{
		log:     log.With("component", "AssetStore"),
		limits:  limits,
		ttl:     ttl,
		entries: make(map[uuid.UUID]*memoryEntry),
	}
	if ttl > 0 {
		go s.janitor(ctx)
	}
	return s
}

func (s *memoryStore) Put(ctx context.Context, kind Kind, filename string, data []byte) (Asset, error) {
	return s.PutWithID(ctx, uuid.New(), kind, filename, data)
}

func (s *memoryStore) PutWithID(_ context.Context, id uuid.UUID, kind Kind, filename string, data []byte) (Asset, error) {
	a, err := validate(kind, filename, data, s.limits)
	if err != nil {
		return Asset{}, err
	}
	a.ID = id
	a.CreatedAt = time.Now()

	stored := make([]byte, len(data))
	copy(stored, data)

	s.mu.Lock()
	s.entries[id] = &memoryEntry{asset: a, data: stored, expiresAt: a.CreatedAt.Add(s.ttl)}
	s.mu.Unlock()

	s.log.Debug("asset stored", "id", id, "kind", kind, "bytes", a.Size)
	return a, nil
}

func (s *memoryStore) Get(_ context.Context, id uuid.UUID) (Asset, []byte, error) {
	s.mu.RLock()
	e, ok := s.entries[id]
	s.mu.RUnlock()
	if !ok || (s.ttl > 0 && time.Now().After(e.expiresAt)) {
		return Asset{}, nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	// Callers get their own copy; the stored bytes stay immutable.
	out := make([]byte, len(e.data))
	copy(out, e.data)
	return e.asset, out, nil
}

func (s *memoryStore) Delete(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.entries[id]; !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	delete(s.entries, id)
	return nil
}

func (s *memoryStore) janitor(ctx context.Context) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			now := time.Now()
			s.mu.Lock()
			for id, e := range s.entries {
				if now.After(e.expiresAt) {
					delete(s.entries, id)
				}
			}
			s.mu.Unlock()
		}
	}
}
