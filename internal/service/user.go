package service

import (
	"context"
	"errors"

	"just_us/internal/domain"
	"just_us/internal/repository"
	apperrors "just_us/pkg/errors"
	"just_us/pkg/logger"
)

type UserService interface {
	EnsureUser(ctx context.Context, actor domain.Actor) (*domain.User, error)
	GetByID(ctx context.Context, id string) (*domain.User, error)
	GetPeer(ctx context.Context, me string) (*domain.User, error)
	SavePushSubscription(ctx context.Context, me string, sub domain.PushSubscription) error
	RemovePushSubscription(ctx context.Context, me string, endpoint string) error
	ResetSubscriptions(ctx context.Context, me string) error
	GetSubscriptions(ctx context.Context, id string) (*domain.SubscriptionsView, error)
}

type userService struct {
	userRepo repository.UserRepository
	log      logger.Logger
}

func NewUserService(userRepo repository.UserRepository, log logger.Logger) UserService {
	return &userService{
		userRepo: userRepo,
		log:      log,
	}
}

// EnsureUser создает запись при первом входе. Повторная запись только при смене имени или почты.
func (s *userService) EnsureUser(ctx context.Context, actor domain.Actor) (*domain.User, error) {
	user, err := s.userRepo.GetByID(ctx, actor.ID)
	if err == nil && user.Username == actor.Username && user.Email == actor.Email {
		return user, nil
	}
	if err != nil && !errors.Is(err, apperrors.ErrUserNotFound) {
		return nil, err
	}

	user, err = s.userRepo.Upsert(ctx, &domain.User{ID: actor.ID, Username: actor.Username, Email: actor.Email})
	if err != nil {
		return nil, err
	}
	s.log.Info("User provisioned", "user_id", actor.ID)
	return user, nil
}

func (s *userService) GetByID(ctx context.Context, id string) (*domain.User, error) {
	return s.userRepo.GetByID(ctx, id)
}

// GetPeer возвращает собеседника - первого пользователя, который не я.
func (s *userService) GetPeer(ctx context.Context, me string) (*domain.User, error) {
	users, err := s.userRepo.List(ctx)
	if err != nil {
		return nil, err
	}
	for _, u := range users {
		if u.ID != me {
			return u, nil
		}
	}
	return nil, apperrors.ErrPeerNotFound
}

// SavePushSubscription обновляет одиночную подписку и добавляет устройство в массив без дублей.
func (s *userService) SavePushSubscription(ctx context.Context, me string, sub domain.PushSubscription) error {
	if sub.Endpoint == "" {
		return apperrors.ErrBadRequest
	}
	user, err := s.userRepo.GetByID(ctx, me)
	if err != nil {
		return err
	}

	fp := sub.Fingerprint()
	subs := make([]domain.PushSubscription, 0, len(user.Subscriptions)+1)
	for _, existing := range user.Subscriptions {
		if existing.Fingerprint() != fp {
			subs = append(subs, existing)
		}
	}
	subs = append(subs, sub)

	return s.userRepo.SetSubscriptions(ctx, me, &sub, subs)
}

func (s *userService) RemovePushSubscription(ctx context.Context, me string, endpoint string) error {
	user, err := s.userRepo.GetByID(ctx, me)
	if err != nil {
		return err
	}

	fp := domain.PushSubscription{Endpoint: endpoint}.Fingerprint()
	single := user.Subscription
	if single != nil && single.Fingerprint() == fp {
		single = nil
	}
	var subs []domain.PushSubscription
	for _, existing := range user.Subscriptions {
		if existing.Fingerprint() != fp {
			subs = append(subs, existing)
		}
	}
	return s.userRepo.SetSubscriptions(ctx, me, single, subs)
}

func (s *userService) ResetSubscriptions(ctx context.Context, me string) error {
	return s.userRepo.ClearSubscriptions(ctx, me)
}

func (s *userService) GetSubscriptions(ctx context.Context, id string) (*domain.SubscriptionsView, error) {
	user, err := s.userRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	view := &domain.SubscriptionsView{
		UserID:        user.ID,
		Subscription:  user.Subscription,
		Subscriptions: user.Subscriptions,
	}
	if view.Subscriptions == nil {
		view.Subscriptions = []domain.PushSubscription{}
	}
	return view, nil
}
