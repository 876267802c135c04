package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Message - одна запись чата. Никогда не удаляется физически,
// только помечается is_deleted.
type Message struct {
	ID        uuid.UUID      `json:"id"`
	SenderID  string         `json:"sender_id"`
	Username  string         `json:"username"`
	Message   string         `json:"message"`
	Asset     *Upload        `json:"asset,omitempty"`
	Audio     *Upload        `json:"audio,omitempty"`
	Gif       *Gif           `json:"gif,omitempty"`
	Reaction  *Reaction      `json:"reaction"`
	IsSeen    bool           `json:"is_seen"`
	IsDeleted bool           `json:"is_deleted"`
	ReplyTo   *ReplySnapshot `json:"reply_to,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
	EditedAt  *time.Time     `json:"edited_at,omitempty"`
	UpdatedAt *time.Time     `json:"updated_at,omitempty"`
}

// Reaction - единственный слот реакции на сообщении.
type Reaction struct {
	ReactorID       string `json:"reactor_id"`
	ReactorUsername string `json:"reactor_username"`
	Reaction        string `json:"reaction"`
}

// ReplySnapshot - копия сообщения на момент ответа, не обновляется.
type ReplySnapshot struct {
	ID       uuid.UUID `json:"id"`
	SenderID string    `json:"sender_id"`
	Username string    `json:"username"`
	Message  string    `json:"message"`
	Asset    *Upload   `json:"asset,omitempty"`
	Gif      *Gif      `json:"gif,omitempty"`
	Audio    *Upload   `json:"audio,omitempty"`
}

// Snapshot строит reply_to для ответа на это сообщение.
func (m *Message) Snapshot() *ReplySnapshot {
	return &ReplySnapshot{
		ID:       m.ID,
		SenderID: m.SenderID,
		Username: m.Username,
		Message:  m.Message,
		Asset:    m.Asset,
		Gif:      m.Gif,
		Audio:    m.Audio,
	}
}

// Kind определяет, что именно отправлено - от этого зависит текст push.
func (m *Message) Kind() string {
	switch {
	case m.Asset != nil:
		return MessageKindImage
	case m.Gif != nil:
		return MessageKindGif
	case m.Audio != nil:
		return MessageKindAudio
	default:
		return MessageKindText
	}
}

const (
	MessageKindText  = "text"
	MessageKindImage = "image"
	MessageKindGif   = "gif"
	MessageKindAudio = "audio"
)

// NewMessage - входные данные для отправки.
type NewMessage struct {
	Message string         `json:"message"`
	Asset   *Upload        `json:"asset,omitempty"`
	Audio   *Upload        `json:"audio,omitempty"`
	Gif     *Gif           `json:"gif,omitempty"`
	ReplyTo *ReplySnapshot `json:"reply_to,omitempty"`
}

func (n NewMessage) IsEmpty() bool {
	return strings.TrimSpace(n.Message) == "" && n.Asset == nil && n.Audio == nil && n.Gif == nil
}

type EditMessageRequest struct {
	Message string `json:"message" binding:"required"`
}

type ReactionRequest struct {
	Reaction string `json:"reaction" binding:"required"`
}

// MessagePage - страница истории, отсортированная по возрастанию времени.
type MessagePage struct {
	Messages   []*Message `json:"messages"`
	NextCursor string     `json:"next_cursor,omitempty"`
	HasMore    bool       `json:"has_more"`
}

// Actor - аутентифицированный пользователь текущего запроса.
type Actor struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email"`
}
