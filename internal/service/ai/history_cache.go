package ai

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"gymchat/internal/models"
	"gymchat/internal/redis"
)

const (
	historyKeyPrefix       = "gymchat:history:"
	defaultHistoryCacheTTL = 24 * time.Hour
)

// historyCache mirrors session transcripts to redis so they can still be
// inspected after a restart. The in-memory session stays authoritative.
type historyCache struct {
	client *redis.Client
	ttl    time.Duration
}

func newHistoryCache(client *redis.Client, ttl time.Duration) *historyCache {
	if ttl <= 0 {
		ttl = defaultHistoryCacheTTL
	}
	return &historyCache{client: client, ttl: ttl}
}

func (r *historyCache) cacheSession(ctx context.Context, info *models.SessionInfo) {
	if r == nil || r.client == nil || info == nil || info.ID == "" {
		return
	}
	data, err := json.Marshal(info)
	if err != nil {
		log.Printf("history cache marshal failed: %v", err)
		return
	}
	if err := r.client.Set(ctx, historyKeyPrefix+info.ID, data, r.ttl); err != nil {
		log.Printf("history cache write for session %s failed: %v", info.ID, err)
	}
}

func (r *historyCache) loadSession(ctx context.Context, sessionID string) (*models.SessionInfo, bool) {
	if r == nil || r.client == nil || sessionID == "" {
		return nil, false
	}
	raw, err := r.client.Get(ctx, historyKeyPrefix+sessionID)
	if err != nil {
		if err != redis.ErrCacheMiss {
			log.Printf("history cache load for session %s failed: %v", sessionID, err)
		}
		return nil, false
	}
	var info models.SessionInfo
	if err := json.Unmarshal([]byte(raw), &info); err != nil {
		log.Printf("history cache decode for session %s failed: %v", sessionID, err)
		return nil, false
	}
	return &info, true
}

func (r *historyCache) invalidate(ctx context.Context, sessionID string) {
	if r == nil || r.client == nil || sessionID == "" {
		return
	}
	if err := r.client.Del(ctx, historyKeyPrefix+sessionID); err != nil && err != redis.ErrCacheMiss {
		log.Printf("history cache invalidate for session %s failed: %v", sessionID, err)
	}
}
