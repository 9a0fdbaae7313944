package cache

import (
	"context"
	"fmt"
	"time"

	"healthmate/internal/models"
	"healthmate/internal/redis"

	"github.com/sirupsen/logrus"
)

const defaultSessionTTL = 30 * time.Minute

// SessionCache is an advisory redis-backed cache of active sessions. It is
// never the system of record: a miss or a redis failure simply falls through
// to the database, and entries expire on their own.
type SessionCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewSessionCache wraps the redis client. A nil client yields a nil cache,
// which every method tolerates.
func NewSessionCache(client *redis.Client, ttl time.Duration) *SessionCache {
	if client == nil {
		return nil
	}
	if ttl <= 0 {
		ttl = defaultSessionTTL
	}
	return &SessionCache{client: client, ttl: ttl}
}

func sessionKey(userID int64, sessionType string) string {
	return fmt.Sprintf("session:active:%d:%s", userID, sessionType)
}

// Get returns the cached active session for (user, type), if any.
func (c *SessionCache) Get(ctx context.Context, userID int64, sessionType string) (*models.ConversationSession, bool) {
	if c == nil || c.client == nil {
		return nil, false
	}
	var session models.ConversationSession
	err := c.client.GetJSON(ctx, sessionKey(userID, sessionType), &session)
	if err != nil {
		if err != redis.ErrCacheMiss {
			logrus.WithError(err).Debug("session cache read failed")
		}
		return nil, false
	}
	if session.UserID != userID || !session.IsActive {
		return nil, false
	}
	return &session, true
}

// Put stores the active session with TTL eviction.
func (c *SessionCache) Put(ctx context.Context, session *models.ConversationSession) {
	if c == nil || c.client == nil || session == nil {
		return
	}
	if err := c.client.SetJSON(ctx, sessionKey(session.UserID, session.SessionType), session, c.ttl); err != nil {
		logrus.WithError(err).Debug("session cache write failed")
	}
}

// Invalidate drops the cached entry for (user, type).
func (c *SessionCache) Invalidate(ctx context.Context, userID int64, sessionType string) {
	if c == nil || c.client == nil {
		return
	}
	if err := c.client.Del(ctx, sessionKey(userID, sessionType)); err != nil && err != redis.ErrCacheMiss {
		logrus.WithError(err).Debug("session cache invalidate failed")
	}
}
