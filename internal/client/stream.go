package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"just_us/internal/domain"
	apperrors "just_us/pkg/errors"
	"just_us/pkg/logger"
)

var ErrStreamClosed = errors.New("stream closed")

// Stream - websocket-подключение к /ws/chat. Переподключение остается за вызывающим.
type Stream struct {
	conn   *websocket.Conn
	events chan *domain.Envelope
	send   chan []byte
	done   chan struct{}
	log    logger.Logger

	mu        sync.Mutex
	pending   map[string]chan *domain.Envelope
	closeOnce sync.Once
	err       error
}

// StreamURL строит адрес websocket из http(s)-адреса сервера.
func StreamURL(baseURL, token string) (string, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return "", fmt.Errorf("invalid server url: %w", err)
	}
	switch u.Scheme {
	case "https", "wss":
		u.Scheme = "wss"
	case "http", "ws", "":
		u.Scheme = "ws"
	default:
		return "", fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	u.Path += "/ws/chat"
	u.RawQuery = url.Values{"token": {token}}.Encode()
	return u.String(), nil
}

func Dial(ctx context.Context, baseURL, token string, log logger.Logger) (*Stream, error) {
	wsURL, err := StreamURL(baseURL, token)
	if err != nil {
		return nil, err
	}

	dialer := &websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to connect: %w", err)
	}

	s := &Stream{
		conn:    conn,
		events:  make(chan *domain.Envelope, 64),
		send:    make(chan []byte, 64),
		done:    make(chan struct{}),
		pending: make(map[string]chan *domain.Envelope),
		log:     log,
	}

	go s.writePump()
	go s.readPump()
	return s, nil
}

// Events - серверные события без request_id. Закрывается вместе с потоком.
func (s *Stream) Events() <-chan *domain.Envelope {
	return s.events
}

func (s *Stream) Done() <-chan struct{} {
	return s.done
}

// Err - причина закрытия потока.
func (s *Stream) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// CheckStatus спрашивает статус пользователя; пустой userID - собеседник.
func (s *Stream) CheckStatus(ctx context.Context, userID string) (*domain.StatusPayload, error) {
	reply, err := s.request(ctx, domain.EventCheckStatus, &domain.StatusRequest{UserID: userID})
	if err != nil {
		return nil, err
	}
	var status domain.StatusPayload
	if err := json.Unmarshal(reply.Payload, &status); err != nil {
		return nil, fmt.Errorf("failed to decode status: %w", err)
	}
	return &status, nil
}

// SetTyping реализует typing.Writer. Сервер отвечает только на ошибку, ответ не ждем.
func (s *Stream) SetTyping(ctx context.Context, typing bool) error {
	env, err := domain.NewEnvelope(domain.EventTypingSet, uuid.NewString(), &domain.TypingSetPayload{Typing: typing})
	if err != nil {
		return err
	}
	return s.write(ctx, env)
}

func (s *Stream) Heartbeat(ctx context.Context) error {
	_, err := s.request(ctx, domain.EventHeartbeat, nil)
	return err
}

func (s *Stream) Close() error {
	s.shutdown(ErrStreamClosed)
	return nil
}

func (s *Stream) request(ctx context.Context, eventType string, payload interface{}) (*domain.Envelope, error) {
	env, err := domain.NewEnvelope(eventType, uuid.NewString(), payload)
	if err != nil {
		return nil, err
	}

	reply := make(chan *domain.Envelope, 1)
	s.mu.Lock()
	s.pending[env.RequestID] = reply
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		delete(s.pending, env.RequestID)
		s.mu.Unlock()
	}()

	if err := s.write(ctx, env); err != nil {
		return nil, err
	}

	select {
	case r := <-reply:
		if r.Type == domain.EventError {
			var e domain.ErrorPayload
			_ = json.Unmarshal(r.Payload, &e)
			return nil, apperrors.NewAPIError(e.Error, 0)
		}
		return r, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-s.done:
		return nil, ErrStreamClosed
	}
}

func (s *Stream) write(ctx context.Context, env *domain.Envelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return err
	}
	select {
	case s.send <- data:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-s.done:
		return ErrStreamClosed
	}
}

func (s *Stream) readPump() {
	defer close(s.events)

	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			s.shutdown(err)
			return
		}

		var env domain.Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			s.log.Warn("Dropping malformed frame", "error", err)
			continue
		}

		if env.RequestID != "" {
			s.mu.Lock()
			reply, ok := s.pending[env.RequestID]
			s.mu.Unlock()
			if ok {
				select {
				case reply <- &env:
				default:
				}
				continue
			}
		}

		select {
		case s.events <- &env:
		case <-s.done:
			return
		}
	}
}

func (s *Stream) writePump() {
	for {
		select {
		case data := <-s.send:
			s.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := s.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				s.shutdown(err)
				return
			}
		case <-s.done:
			s.conn.SetWriteDeadline(time.Now().Add(time.Second))
			s.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			s.conn.Close()
			return
		}
	}
}

func (s *Stream) shutdown(err error) {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.err = err
		s.mu.Unlock()
		close(s.done)
	})
}
