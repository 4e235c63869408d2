package execution

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const defaultTrackerPrefix = "moduletrack:operator_session:"

// releaseScript удаляет ключ, только если он указывает на переданную сессию.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisTracker — Tracker поверх Redis.
// Позволяет нескольким экземплярам API разделять состояние операторов.
type RedisTracker struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
}

// NewRedisTracker создаёт RedisTracker.
// ttl <= 0 означает DefaultTrackerTTL, пустой prefix — префикс по умолчанию.
func NewRedisTracker(client redis.UniversalClient, prefix string, ttl time.Duration) *RedisTracker {
	if ttl <= 0 {
		ttl = DefaultTrackerTTL
	}
	if prefix == "" {
		prefix = defaultTrackerPrefix
	}
	return &RedisTracker{
		client: client,
		prefix: prefix,
		ttl:    ttl,
	}
}

// NewRedisClient создаёт клиента Redis по URL и проверяет соединение.
func NewRedisClient(ctx context.Context, url string) (redis.UniversalClient, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

func (t *RedisTracker) key(operatorID string) string {
	return t.prefix + operatorID
}

// Get возвращает текущую сессию оператора.
func (t *RedisTracker) Get(ctx context.Context, operatorID string) (uuid.UUID, bool, error) {
	val, err := t.client.Get(ctx, t.key(operatorID)).Result()
	if errors.Is(err, redis.Nil) {
		return uuid.Nil, false, nil
	}
	if err != nil {
		return uuid.Nil, false, fmt.Errorf("get operator session: %w", err)
	}

	id, err := uuid.Parse(val)
	if err != nil {
		// Мусор в ключе — считаем, что сессии нет
		return uuid.Nil, false, nil
	}
	return id, true, nil
}

// Set делает сессию текущей для оператора и продлевает TTL.
func (t *RedisTracker) Set(ctx context.Context, operatorID string, sessionID uuid.UUID) error {
	if err := t.client.Set(ctx, t.key(operatorID), sessionID.String(), t.ttl).Err(); err != nil {
		return fmt.Errorf("set operator session: %w", err)
	}
	return nil
}

// Release удаляет запись оператора, если она указывает на sessionID.
func (t *RedisTracker) Release(ctx context.Context, operatorID string, sessionID uuid.UUID) error {
	err := releaseScript.Run(ctx, t.client, []string{t.key(operatorID)}, sessionID.String()).Err()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("release operator session: %w", err)
	}
	return nil
}
