// internal/draft/store.go
package draft

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/hearthside/crm-backend/internal/apperrors"
)

// Entry is one autosaved editor draft. Last write wins per (org, key);
// there is no merge, and UpdatedAt is stamped by the store, never
// trusted from the caller.
type Entry struct {
	Key       string          `json:"key"`
	Data      json.RawMessage `json:"data"`
	UpdatedAt time.Time       `json:"updatedAt"`
}

// Store persists in-progress editor state keyed by (org, key). Every
// save is a full replace; the store does no batching or coalescing.
// Debouncing belongs to the editor side (see Debouncer).
type Store interface {
	Save(ctx context.Context, orgID, key string, data json.RawMessage) (*Entry, error)
	Load(ctx context.Context, orgID, key string) (*Entry, error)
}

// RedisStore keeps drafts in Redis under autosave:<org>:<key>.
type RedisStore struct {
	Client *redis.Client

	// Now is the injected clock; nil means time.Now.
	Now func() time.Time
	// TTL expires abandoned drafts; 0 keeps them forever.
	TTL time.Duration
}

func (s *RedisStore) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func redisKey(orgID, key string) string {
	return "autosave:" + orgID + ":" + key
}

func (s *RedisStore) Save(ctx context.Context, orgID, key string, data json.RawMessage) (*Entry, error) {
	entry := &Entry{Key: key, Data: data, UpdatedAt: s.now().UTC()}
	payload, err := json.Marshal(entry)
	if err != nil {
		return nil, err
	}
	if err := s.Client.Set(ctx, redisKey(orgID, key), payload, s.TTL).Err(); err != nil {
		return nil, err
	}
	return entry, nil
}

func (s *RedisStore) Load(ctx context.Context, orgID, key string) (*Entry, error) {
	payload, err := s.Client.Get(ctx, redisKey(orgID, key)).Bytes()
	if err == redis.Nil {
		return nil, apperrors.NewNotFound("draft", key)
	}
	if err != nil {
		return nil, err
	}
	var entry Entry
	if err := json.Unmarshal(payload, &entry); err != nil {
		return nil, err
	}
	return &entry, nil
}

var _ Store = (*RedisStore)(nil)

// MemoryStore is the in-memory Store for tests and local development.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]*Entry

	Now func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string]*Entry)}
}

func (s *MemoryStore) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func (s *MemoryStore) Save(ctx context.Context, orgID, key string, data json.RawMessage) (*Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry := &Entry{Key: key, Data: data, UpdatedAt: s.now().UTC()}
	s.entries[redisKey(orgID, key)] = entry
	return entry, nil
}

func (s *MemoryStore) Load(ctx context.Context, orgID, key string) (*Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.entries[redisKey(orgID, key)]
	if !ok {
		return nil, apperrors.NewNotFound("draft", key)
	}
	return entry, nil
}

var _ Store = (*MemoryStore)(nil)
