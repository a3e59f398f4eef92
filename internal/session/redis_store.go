package session

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"icgateway/internal/constants"
	"icgateway/internal/logger"
)

// RedisStore persists records as JSON under session:<client_id>. Expiry is
// left to Redis.
type RedisStore struct {
	client *redis.Client
	log    zerolog.Logger
}

func NewRedisStore(ctx context.Context, url string) (*RedisStore, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, errors.Wrapf(ErrStore, "invalid redis url: %v", err)
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, errors.Wrapf(ErrStore, "ping %s: %v", opts.Addr, err)
	}

	return &RedisStore{client: client, log: logger.Component("redis-store")}, nil
}

func redisKey(clientID uint64) string {
	return constants.RedisKeyPrefix + strconv.FormatUint(clientID, 10)
}

func (st *RedisStore) Save(ctx context.Context, clientID uint64, rec Record, ttl time.Duration) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return errors.Wrapf(ErrStore, "marshal record: %v", err)
	}
	if err := st.client.Set(ctx, redisKey(clientID), data, ttl).Err(); err != nil {
		return errors.Wrapf(ErrStore, "save %d: %v", clientID, err)
	}
	st.log.Debug().Uint64("client_id", clientID).Dur("ttl", ttl).Msg("💾 Saving session to Redis")
	return nil
}

func (st *RedisStore) Get(ctx context.Context, clientID uint64) (*Record, error) {
	data, err := st.client.Get(ctx, redisKey(clientID)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrapf(ErrStore, "get %d: %v", clientID, err)
	}

	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, errors.Wrapf(ErrStore, "unmarshal record %d: %v", clientID, err)
	}
	return &rec, nil
}

func (st *RedisStore) Delete(ctx context.Context, clientID uint64) error {
	if err := st.client.Del(ctx, redisKey(clientID)).Err(); err != nil {
		return errors.Wrapf(ErrStore, "delete %d: %v", clientID, err)
	}
	return nil
}

func (st *RedisStore) Close() error {
	return st.client.Close()
}
