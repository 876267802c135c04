package repository

import (
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"just_us/internal/config"
	"just_us/pkg/logger"
)

type Repositories struct {
	Message     MessageRepository
	User        UserRepository
	Presence    PresenceRepository
	RateLimit   RateLimitRepository
	LinkPreview LinkPreviewCache
}

func NewRepositories(db *pgxpool.Pool, redis *redis.Client, cfg *config.Config, log logger.Logger) *Repositories {
	repos := &Repositories{
		Message:     NewMessageRepository(db, cfg.Chat.MessagesTable, log),
		User:        NewUserRepository(db, cfg.Chat.UsersTable, log),
		Presence:    NewPresenceRepository(redis, log),
		RateLimit:   NewRateLimitRepository(redis, log),
		LinkPreview: NewLinkPreviewCache(redis, log),
	}

	log.Info("Repositories initialized", "messages_table", cfg.Chat.MessagesTable, "users_table", cfg.Chat.UsersTable)

	return repos
}
