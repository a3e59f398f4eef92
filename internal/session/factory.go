package session

import (
	"context"
	"net/url"

	"icgateway/internal/logger"
)

// NewStore connects to Redis at redisURL and falls back to an in-memory store
// when it is empty or the server cannot be reached.
func NewStore(ctx context.Context, redisURL string) StoreInterface {
	log := logger.Component("session")

	if redisURL == "" {
		log.Info().Msg("💾 Using in-memory session store")
		return NewMemoryStore()
	}

	store, err := NewRedisStore(ctx, redisURL)
	if err != nil {
		log.Warn().Err(err).Msg("⚠️  Redis connection failed")
		log.Info().Msg("💾 Falling back to in-memory session store")
		return NewMemoryStore()
	}
	log.Info().Str("url", redactURL(redisURL)).Msg("💾 Using Redis session store")
	return store
}

func redactURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return "invalid"
	}
	return u.Redacted()
}
