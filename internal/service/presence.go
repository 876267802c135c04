package service

import (
	"context"
	"time"

	"just_us/internal/config"
	"just_us/internal/domain"
	"just_us/internal/repository"
	"just_us/pkg/logger"
)

type PresenceService interface {
	Connect(ctx context.Context, actor domain.Actor, connID string) error
	Heartbeat(ctx context.Context, userID, connID string) error
	Disconnect(ctx context.Context, actor domain.Actor, connID string) error
	Status(ctx context.Context, userID string) (*domain.Presence, error)
	SetTyping(ctx context.Context, actor domain.Actor, typing bool) error
	TypingUsers(ctx context.Context) ([]domain.TypingUser, error)
}

type presenceService struct {
	presenceRepo repository.PresenceRepository
	userRepo     repository.UserRepository
	notifier     Notifier
	cfg          config.PresenceConfig
	log          logger.Logger
	now          func() time.Time
}

func NewPresenceService(
	presenceRepo repository.PresenceRepository,
	userRepo repository.UserRepository,
	notifier Notifier,
	cfg config.PresenceConfig,
	log logger.Logger,
) PresenceService {
	return &presenceService{
		presenceRepo: presenceRepo,
		userRepo:     userRepo,
		notifier:     notifier,
		cfg:          cfg,
		log:          log,
		now:          func() time.Time { return time.Now().UTC() },
	}
}

func (s *presenceService) Connect(ctx context.Context, actor domain.Actor, connID string) error {
	if err := s.presenceRepo.Heartbeat(ctx, actor.ID, connID, s.cfg.HeartbeatTTL); err != nil {
		return err
	}
	s.broadcastStatus(ctx, actor.ID, true, nil)
	return nil
}

func (s *presenceService) Heartbeat(ctx context.Context, userID, connID string) error {
	return s.presenceRepo.Heartbeat(ctx, userID, connID, s.cfg.HeartbeatTTL)
}

// Disconnect вызывается на каждое закрытое подключение.
// Оффлайн наступает, только когда у пользователя не осталось подключений ни на одном инстансе.
func (s *presenceService) Disconnect(ctx context.Context, actor domain.Actor, connID string) error {
	remaining, err := s.presenceRepo.Clear(ctx, actor.ID, connID)
	if err != nil {
		return err
	}
	if remaining > 0 {
		return nil
	}

	now := s.now()
	if err := s.userRepo.TouchLastOnline(ctx, actor.ID, now); err != nil {
		s.log.Warn("Failed to store last online time", "error", err, "user_id", actor.ID)
	}
	s.broadcastStatus(ctx, actor.ID, false, &now)

	// клиент мог уйти посреди набора текста
	if err := s.SetTyping(ctx, actor, false); err != nil {
		s.log.Warn("Failed to reset typing flag", "error", err, "user_id", actor.ID)
	}
	return nil
}

func (s *presenceService) Status(ctx context.Context, userID string) (*domain.Presence, error) {
	online, err := s.presenceRepo.IsOnline(ctx, userID)
	if err != nil {
		return nil, err
	}
	presence := &domain.Presence{UserID: userID, Online: online}
	if !online {
		user, err := s.userRepo.GetByID(ctx, userID)
		if err != nil {
			return nil, err
		}
		presence.LastOnlineAt = user.LastOnlineAt
	}
	return presence, nil
}

func (s *presenceService) SetTyping(ctx context.Context, actor domain.Actor, typing bool) error {
	if err := s.userRepo.SetTyping(ctx, actor.ID, typing, s.now()); err != nil {
		return err
	}

	users, err := s.TypingUsers(ctx)
	if err != nil {
		return err
	}
	env, err := domain.NewEnvelope(domain.EventTyping, "", &domain.TypingPayload{Users: users})
	if err != nil {
		return err
	}
	s.notifier.BroadcastEvent(ctx, env)
	return nil
}

// TypingUsers не учитывает флаги старше TypingTTL - их оставил пропавший клиент.
func (s *presenceService) TypingUsers(ctx context.Context) ([]domain.TypingUser, error) {
	users, err := s.userRepo.ListTyping(ctx, s.now().Add(-s.cfg.TypingTTL))
	if err != nil {
		return nil, err
	}
	out := make([]domain.TypingUser, 0, len(users))
	for _, u := range users {
		out = append(out, domain.TypingUser{ID: u.ID, Username: u.Username})
	}
	return out, nil
}

func (s *presenceService) broadcastStatus(ctx context.Context, userID string, online bool, lastOnline *time.Time) {
	payload := &domain.StatusPayload{UserID: userID, Online: online}
	if lastOnline != nil {
		ms := lastOnline.UnixMilli()
		payload.LastOnlineAt = &ms
	}
	env, err := domain.NewEnvelope(domain.EventStatus, "", payload)
	if err != nil {
		s.log.Error("Failed to build status event", "error", err)
		return
	}
	s.notifier.BroadcastEvent(ctx, env)
}
