package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"just_us/pkg/logger"
)

const presenceKeyPrefix = "presence:"

// PresenceRepository хранит онлайн по подключениям: у каждого подключения свой
// redis-ключ с TTL, плюс индекс подключений пользователя. Подключения с других
// инстансов видны всем, упавший инстанс просто перестает продлевать свои ключи.
type PresenceRepository interface {
	Heartbeat(ctx context.Context, userID, connID string, ttl time.Duration) error
	// Clear убирает подключение и возвращает число живых подключений пользователя.
	Clear(ctx context.Context, userID, connID string) (int, error)
	IsOnline(ctx context.Context, userID string) (bool, error)
}

type presenceRepository struct {
	redis *redis.Client
	log   logger.Logger
}

func NewPresenceRepository(redis *redis.Client, log logger.Logger) PresenceRepository {
	return &presenceRepository{redis: redis, log: log}
}

func connsKey(userID string) string {
	return presenceKeyPrefix + userID + ":conns"
}

func connKey(userID, connID string) string {
	return presenceKeyPrefix + userID + ":" + connID
}

func (r *presenceRepository) Heartbeat(ctx context.Context, userID, connID string, ttl time.Duration) error {
	// индекс продлевается вместе с ключом, поэтому живет не меньше любого подключения
	_, err := r.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, connKey(userID, connID), time.Now().UTC().Unix(), ttl)
		pipe.SAdd(ctx, connsKey(userID), connID)
		pipe.Expire(ctx, connsKey(userID), ttl)
		return nil
	})
	if err != nil {
		r.log.Error("Failed to store heartbeat", "error", err, "user_id", userID)
		return fmt.Errorf("heartbeat: %w", err)
	}
	return nil
}

func (r *presenceRepository) Clear(ctx context.Context, userID, connID string) (int, error) {
	_, err := r.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, connKey(userID, connID))
		pipe.SRem(ctx, connsKey(userID), connID)
		return nil
	})
	if err != nil {
		r.log.Error("Failed to clear presence", "error", err, "user_id", userID)
		return 0, fmt.Errorf("clear presence: %w", err)
	}
	return r.liveConnections(ctx, userID)
}

func (r *presenceRepository) IsOnline(ctx context.Context, userID string) (bool, error) {
	n, err := r.liveConnections(ctx, userID)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// liveConnections считает подключения с неистекшим ключом и вычищает остальные из индекса.
func (r *presenceRepository) liveConnections(ctx context.Context, userID string) (int, error) {
	ids, err := r.redis.SMembers(ctx, connsKey(userID)).Result()
	if err != nil {
		r.log.Error("Failed to read presence", "error", err, "user_id", userID)
		return 0, fmt.Errorf("read presence: %w", err)
	}
	if len(ids) == 0 {
		return 0, nil
	}

	pipe := r.redis.Pipeline()
	checks := make([]*redis.IntCmd, len(ids))
	for i, id := range ids {
		checks[i] = pipe.Exists(ctx, connKey(userID, id))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		r.log.Error("Failed to read presence", "error", err, "user_id", userID)
		return 0, fmt.Errorf("read presence: %w", err)
	}

	live := 0
	var stale []interface{}
	for i, cmd := range checks {
		if cmd.Val() > 0 {
			live++
			continue
		}
		stale = append(stale, ids[i])
	}
	if len(stale) > 0 {
		if err := r.redis.SRem(ctx, connsKey(userID), stale...).Err(); err != nil {
			r.log.Warn("Failed to prune stale connections", "error", err, "user_id", userID)
		}
	}
	return live, nil
}
