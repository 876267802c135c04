package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"just_us/internal/config"
	"just_us/internal/domain"
	"just_us/internal/metrics"
	"just_us/internal/repository"
	apperrors "just_us/pkg/errors"
	"just_us/pkg/logger"
)

// Notifier - сторона рассылки изменений подписчикам (websocket hub).
type Notifier interface {
	NotifyMessagesChanged(ctx context.Context)
	BroadcastEvent(ctx context.Context, env *domain.Envelope)
}

type ChatService interface {
	Send(ctx context.Context, sender domain.Actor, input domain.NewMessage) (*domain.Message, error)
	Edit(ctx context.Context, actor domain.Actor, id uuid.UUID, text string) (*domain.Message, error)
	Unsend(ctx context.Context, actor domain.Actor, id uuid.UUID) (*domain.Message, error)
	UndoUnsend(ctx context.Context, actor domain.Actor, id uuid.UUID) (*domain.Message, error)
	SetReaction(ctx context.Context, actor domain.Actor, id uuid.UUID, glyph string) (*domain.Message, error)
	ClearReaction(ctx context.Context, actor domain.Actor, id uuid.UUID) (*domain.Message, error)
	MarkSeen(ctx context.Context, viewer domain.Actor) (int64, error)
	Latest(ctx context.Context, limit int) ([]*domain.Message, error)
	Older(ctx context.Context, cursor string, limit int) (*domain.MessagePage, error)
}

type chatService struct {
	messageRepo   repository.MessageRepository
	users         UserService
	notifications NotificationService
	notifier      Notifier
	cfg           config.ChatConfig
	metrics       *metrics.Metrics
	log           logger.Logger
	now           func() time.Time
}

func NewChatService(
	messageRepo repository.MessageRepository,
	users UserService,
	notifications NotificationService,
	notifier Notifier,
	cfg config.ChatConfig,
	m *metrics.Metrics,
	log logger.Logger,
) ChatService {
	return &chatService{
		messageRepo:   messageRepo,
		users:         users,
		notifications: notifications,
		notifier:      notifier,
		cfg:           cfg,
		metrics:       m,
		log:           log,
		now:           func() time.Time { return time.Now().UTC().Truncate(time.Microsecond) },
	}
}

func (s *chatService) Send(ctx context.Context, sender domain.Actor, input domain.NewMessage) (*domain.Message, error) {
	if input.IsEmpty() {
		return nil, apperrors.ErrEmptyMessage
	}

	message := &domain.Message{
		ID:        uuid.New(),
		SenderID:  sender.ID,
		Username:  sender.Username,
		Message:   strings.TrimSpace(input.Message),
		Asset:     input.Asset,
		Audio:     input.Audio,
		Gif:       input.Gif,
		Timestamp: s.now(),
	}

	// снимок ответа берется из хранилища, а не у клиента
	if input.ReplyTo != nil {
		original, err := s.messageRepo.GetByID(ctx, input.ReplyTo.ID)
		if err != nil {
			return nil, err
		}
		message.ReplyTo = original.Snapshot()
	}

	if err := s.messageRepo.Create(ctx, message); err != nil {
		return nil, err
	}
	s.metrics.MessagesSent.Inc()
	s.notifier.NotifyMessagesChanged(ctx)

	s.pushToPeer(ctx, sender.ID, func(peer *domain.User) error {
		return s.notifications.NotifyMessage(ctx, peer, message)
	})

	return message, nil
}

func (s *chatService) Edit(ctx context.Context, actor domain.Actor, id uuid.UUID, text string) (*domain.Message, error) {
	message, err := s.ownMessage(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	if message.IsDeleted {
		return nil, apperrors.ErrMessageDeleted
	}

	text = strings.TrimSpace(text)
	if text == "" && message.Asset == nil && message.Gif == nil && message.Audio == nil {
		return nil, apperrors.ErrEmptyMessage
	}

	updated, err := s.messageRepo.UpdateText(ctx, id, text, s.now())
	if err != nil {
		return nil, err
	}
	s.metrics.MessagesEdited.Inc()
	s.notifier.NotifyMessagesChanged(ctx)
	return updated, nil
}

func (s *chatService) Unsend(ctx context.Context, actor domain.Actor, id uuid.UUID) (*domain.Message, error) {
	if _, err := s.ownMessage(ctx, actor, id); err != nil {
		return nil, err
	}
	updated, err := s.messageRepo.SetDeleted(ctx, id, true, s.now())
	if err != nil {
		return nil, err
	}
	s.metrics.MessagesUnsent.Inc()
	s.notifier.NotifyMessagesChanged(ctx)
	return updated, nil
}

// UndoUnsend снимает флаг удаления, содержимое не меняется.
func (s *chatService) UndoUnsend(ctx context.Context, actor domain.Actor, id uuid.UUID) (*domain.Message, error) {
	if _, err := s.ownMessage(ctx, actor, id); err != nil {
		return nil, err
	}
	updated, err := s.messageRepo.SetDeleted(ctx, id, false, s.now())
	if err != nil {
		return nil, err
	}
	s.notifier.NotifyMessagesChanged(ctx)
	return updated, nil
}

func (s *chatService) SetReaction(ctx context.Context, actor domain.Actor, id uuid.UUID, glyph string) (*domain.Message, error) {
	glyph = strings.TrimSpace(glyph)
	if glyph == "" {
		return nil, apperrors.ErrBadRequest
	}

	updated, err := s.messageRepo.SetReaction(ctx, id, &domain.Reaction{
		ReactorID:       actor.ID,
		ReactorUsername: actor.Username,
		Reaction:        glyph,
	})
	if err != nil {
		return nil, err
	}
	s.metrics.Reactions.Inc()
	s.notifier.NotifyMessagesChanged(ctx)

	if updated.SenderID != actor.ID {
		s.pushToPeer(ctx, actor.ID, func(peer *domain.User) error {
			if peer.ID != updated.SenderID {
				return nil
			}
			return s.notifications.NotifyReaction(ctx, peer, actor, glyph)
		})
	}

	return updated, nil
}

// ClearReaction снимает реакцию. Снять можно только свою.
func (s *chatService) ClearReaction(ctx context.Context, actor domain.Actor, id uuid.UUID) (*domain.Message, error) {
	message, err := s.messageRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if message.Reaction == nil {
		return message, nil
	}
	if message.Reaction.ReactorID != actor.ID {
		return nil, apperrors.ErrForbidden
	}

	updated, err := s.messageRepo.SetReaction(ctx, id, nil)
	if err != nil {
		return nil, err
	}
	s.notifier.NotifyMessagesChanged(ctx)
	return updated, nil
}

func (s *chatService) MarkSeen(ctx context.Context, viewer domain.Actor) (int64, error) {
	n, err := s.messageRepo.MarkSeen(ctx, viewer.ID)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.notifier.NotifyMessagesChanged(ctx)
	}
	return n, nil
}

func (s *chatService) Latest(ctx context.Context, limit int) ([]*domain.Message, error) {
	if limit <= 0 {
		limit = s.cfg.LiveWindow
	}
	if limit > s.cfg.MaxPageSize {
		limit = s.cfg.MaxPageSize
	}
	return s.messageRepo.ListLatest(ctx, limit)
}

// Older возвращает страницу перед курсором. Читается на одну запись больше,
// чтобы понять, есть ли что-то еще раньше.
func (s *chatService) Older(ctx context.Context, cursor string, limit int) (*domain.MessagePage, error) {
	c, err := domain.DecodeCursor(cursor)
	if err != nil {
		return nil, apperrors.ErrInvalidCursor
	}
	if limit <= 0 {
		limit = s.cfg.OlderPageSize
	}
	if limit > s.cfg.MaxPageSize {
		limit = s.cfg.MaxPageSize
	}

	messages, err := s.messageRepo.ListBefore(ctx, c, limit+1)
	if err != nil {
		return nil, err
	}

	page := &domain.MessagePage{Messages: messages}
	if len(messages) > limit {
		page.HasMore = true
		page.Messages = messages[len(messages)-limit:]
	}
	if len(page.Messages) > 0 {
		page.NextCursor = domain.EncodeCursor(domain.CursorFor(page.Messages[0]))
	}
	return page, nil
}

func (s *chatService) ownMessage(ctx context.Context, actor domain.Actor, id uuid.UUID) (*domain.Message, error) {
	message, err := s.messageRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if message.SenderID != actor.ID {
		return nil, apperrors.ErrForbidden
	}
	return message, nil
}

// pushToPeer - побочный эффект: ошибки только логируются.
func (s *chatService) pushToPeer(ctx context.Context, me string, send func(peer *domain.User) error) {
	peer, err := s.users.GetPeer(ctx, me)
	if err != nil {
		if !errors.Is(err, apperrors.ErrPeerNotFound) {
			s.log.Warn("Failed to resolve push recipient", "error", err)
		}
		return
	}
	if err := send(peer); err != nil {
		s.log.Warn("Push notification failed", "error", err, "recipient_id", peer.ID)
	}
}
