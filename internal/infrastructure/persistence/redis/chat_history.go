package redis

import (
	"context"
	"errors"
	"time"

	"github.com/sppzpp/reportcard-hub/internal/domain/chat"
	"github.com/sppzpp/reportcard-hub/internal/domain/shared"
)

// ChatHistoryStore implements chat.HistoryStore. Each session is stored as
// one JSON document; every Save slides its TTL forward.
type ChatHistoryStore struct {
	cache *Cache
	ttl   time.Duration
}

// NewChatHistoryStore creates a new ChatHistoryStore. A non-positive ttl
// uses TTLChatSession.
func NewChatHistoryStore(cache *Cache, ttl time.Duration) *ChatHistoryStore {
	if ttl <= 0 {
		ttl = TTLChatSession
	}
	return &ChatHistoryStore{cache: cache, ttl: ttl}
}

var _ chat.HistoryStore = (*ChatHistoryStore)(nil)

// Load implements chat.HistoryStore.
func (s *ChatHistoryStore) Load(ctx context.Context, sessionID string) (*chat.Session, error) {
	var sess chat.Session
	if err := s.cache.Get(ctx, ChatKey(sessionID), &sess); err != nil {
		if errors.Is(err, ErrCacheMiss) {
			return nil, shared.WrapError("redis", "ChatHistoryStore.Load", shared.ErrNotFound, "chat session not found", err)
		}
		return nil, err
	}
	return &sess, nil
}

// Save implements chat.HistoryStore.
func (s *ChatHistoryStore) Save(ctx context.Context, sess *chat.Session) error {
	if sess == nil {
		return ErrCacheNilValue
	}
	return s.cache.Set(ctx, ChatKey(sess.ID), sess, s.ttl)
}

// Delete implements chat.HistoryStore.
func (s *ChatHistoryStore) Delete(ctx context.Context, sessionID string) error {
	return s.cache.Delete(ctx, ChatKey(sessionID))
}
