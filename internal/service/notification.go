package service

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	webpush "github.com/SherClockHolmes/webpush-go"
	"just_us/internal/config"
	"just_us/internal/domain"
	"just_us/internal/metrics"
	"just_us/internal/repository"
	"just_us/pkg/logger"
)

const (
	pushTag = "chat-notification"
	pushURL = "/chat"
)

// PushPayload - то, что получает service worker.
type PushPayload struct {
	Title string `json:"title"`
	Body  string `json:"body"`
	Icon  string `json:"icon,omitempty"`
	Tag   string `json:"tag"`
	URL   string `json:"url"`
}

// MessagePushPayload выбирает заголовок и текст по типу вложения.
func MessagePushPayload(m *domain.Message, icon string) PushPayload {
	p := PushPayload{Icon: icon, Tag: pushTag, URL: pushURL}
	switch m.Kind() {
	case domain.MessageKindImage:
		p.Title = m.Username + " shared an image"
		p.Body = "Image attached"
	case domain.MessageKindGif:
		p.Title = m.Username + " sent a GIF"
		p.Body = "GIF"
	case domain.MessageKindAudio:
		p.Title = m.Username + " sent a voice message"
		p.Body = "Voice message"
	default:
		p.Title = "New message from " + m.Username
		p.Body = m.Message
	}
	return p
}

func ReactionPushPayload(reactorUsername, glyph, icon string) PushPayload {
	return PushPayload{
		Title: reactorUsername + " has reacted to your message",
		Body:  glyph,
		Icon:  icon,
		Tag:   pushTag,
		URL:   pushURL,
	}
}

// PushSender доставляет один payload на одну подписку и возвращает HTTP-статус push-сервиса.
type PushSender interface {
	Send(ctx context.Context, sub domain.PushSubscription, payload []byte) (int, error)
}

type webPushSender struct {
	cfg    config.PushConfig
	client *http.Client
}

func NewWebPushSender(cfg config.PushConfig) PushSender {
	return &webPushSender{
		cfg:    cfg,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

func (s *webPushSender) Send(ctx context.Context, sub domain.PushSubscription, payload []byte) (int, error) {
	resp, err := webpush.SendNotificationWithContext(ctx, payload, &webpush.Subscription{
		Endpoint: sub.Endpoint,
		Keys: webpush.Keys{
			P256dh: sub.Keys.P256dh,
			Auth:   sub.Keys.Auth,
		},
	}, &webpush.Options{
		HTTPClient:      s.client,
		Subscriber:      s.cfg.Subscriber,
		VAPIDPublicKey:  s.cfg.VAPIDPublicKey,
		VAPIDPrivateKey: s.cfg.VAPIDPrivateKey,
		TTL:             s.cfg.TTL,
		Urgency:         webpush.UrgencyHigh,
	})
	if err != nil {
		return 0, fmt.Errorf("send web push: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= 300 {
		return resp.StatusCode, fmt.Errorf("push service responded %d", resp.StatusCode)
	}
	return resp.StatusCode, nil
}

type NotificationService interface {
	NotifyMessage(ctx context.Context, recipient *domain.User, m *domain.Message) error
	NotifyReaction(ctx context.Context, recipient *domain.User, reactor domain.Actor, glyph string) error
}

type notificationService struct {
	userRepo repository.UserRepository
	sender   PushSender
	icon     string
	enabled  bool
	metrics  *metrics.Metrics
	log      logger.Logger
}

func NewNotificationService(userRepo repository.UserRepository, sender PushSender, cfg config.PushConfig, m *metrics.Metrics, log logger.Logger) NotificationService {
	enabled := cfg.VAPIDPublicKey != "" && cfg.VAPIDPrivateKey != ""
	if !enabled {
		log.Warn("VAPID keys are not configured, push notifications are disabled")
	}
	return &notificationService{
		userRepo: userRepo,
		sender:   sender,
		icon:     cfg.IconURL,
		enabled:  enabled,
		metrics:  m,
		log:      log.With("component", "push"),
	}
}

func (s *notificationService) NotifyMessage(ctx context.Context, recipient *domain.User, m *domain.Message) error {
	return s.deliver(ctx, recipient, MessagePushPayload(m, s.icon))
}

func (s *notificationService) NotifyReaction(ctx context.Context, recipient *domain.User, reactor domain.Actor, glyph string) error {
	return s.deliver(ctx, recipient, ReactionPushPayload(reactor.Username, glyph, s.icon))
}

// deliver рассылает payload на все устройства получателя.
// Подписки, на которые push-сервис ответил 404/410, удаляются.
func (s *notificationService) deliver(ctx context.Context, recipient *domain.User, payload PushPayload) error {
	if !s.enabled || recipient == nil {
		return nil
	}
	targets := recipient.PushTargets()
	if len(targets) == 0 {
		return nil
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	var lastErr error
	gone := make(map[string]struct{})
	for _, sub := range targets {
		status, err := s.sender.Send(ctx, sub, body)
		switch {
		case status == http.StatusNotFound || status == http.StatusGone:
			gone[sub.Fingerprint()] = struct{}{}
			s.metrics.PushDeliveries.WithLabelValues(metrics.PushPruned).Inc()
		case err != nil:
			lastErr = err
			s.metrics.PushDeliveries.WithLabelValues(metrics.PushFailed).Inc()
			s.log.Warn("Push delivery failed", "error", err, "user_id", recipient.ID, "status", status)
		default:
			s.metrics.PushDeliveries.WithLabelValues(metrics.PushDelivered).Inc()
		}
	}

	if len(gone) > 0 {
		s.prune(ctx, recipient, gone)
	}
	return lastErr
}

func (s *notificationService) prune(ctx context.Context, user *domain.User, gone map[string]struct{}) {
	single := user.Subscription
	if single != nil {
		if _, dead := gone[single.Fingerprint()]; dead {
			single = nil
		}
	}
	var kept []domain.PushSubscription
	for _, sub := range user.Subscriptions {
		if _, dead := gone[sub.Fingerprint()]; !dead {
			kept = append(kept, sub)
		}
	}

	if err := s.userRepo.SetSubscriptions(ctx, user.ID, single, kept); err != nil {
		s.log.Error("Failed to prune push subscriptions", "error", err, "user_id", user.ID)
		return
	}
	s.log.Info("Pruned expired push subscriptions", "user_id", user.ID, "count", len(gone))
}
