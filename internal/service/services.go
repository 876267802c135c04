package service

import (
	"just_us/internal/config"
	"just_us/internal/metrics"
	"just_us/internal/repository"
	"just_us/pkg/logger"
)

type Services struct {
	User         UserService
	Chat         ChatService
	Presence     PresenceService
	Notification NotificationService
	Media        MediaService
	LinkPreview  LinkPreviewService
	Gif          GifService
	RateLimit    RateLimitService
}

// Deps - внешние зависимости, которые создаются в main.
type Deps struct {
	Notifier   Notifier
	Storage    ObjectStorage
	PushSender PushSender
	Metrics    *metrics.Metrics
}

func NewServices(repos *repository.Repositories, deps Deps, cfg *config.Config, log logger.Logger) *Services {
	users := NewUserService(repos.User, log)
	notifications := NewNotificationService(repos.User, deps.PushSender, cfg.Push, deps.Metrics, log)

	services := &Services{
		User:         users,
		Notification: notifications,
		Chat:         NewChatService(repos.Message, users, notifications, deps.Notifier, cfg.Chat, deps.Metrics, log),
		Presence:     NewPresenceService(repos.Presence, repos.User, deps.Notifier, cfg.Presence, log),
		Media:        NewMediaService(deps.Storage, cfg.Media, deps.Metrics, log),
		LinkPreview:  NewLinkPreviewService(repos.LinkPreview, cfg.LinkPreview, log),
		Gif:          NewGifService(cfg.Tenor, log),
		RateLimit:    NewRateLimitService(repos.RateLimit, log),
	}

	if cfg.Tenor.APIKey == "" {
		log.Warn("TENOR_API_KEY is not set, GIF search is disabled")
	}

	return services
}
