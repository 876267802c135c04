package composer

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"just_us/internal/domain"
	"just_us/internal/state"
	"just_us/pkg/logger"
)

// Backend - запись на сервер. Реализуется client.API.
type Backend interface {
	UploadImage(ctx context.Context, dataURL string) (*domain.Upload, error)
	UploadAudio(ctx context.Context, dataURL string) (*domain.Upload, error)
	Send(ctx context.Context, in domain.NewMessage) (*domain.Message, error)
	Edit(ctx context.Context, id uuid.UUID, text string) (*domain.Message, error)
}

// Toaster показывает ошибку пользователю. Черновик после ошибки не восстанавливается.
type Toaster interface {
	Error(message string)
}

// TypingSignal - источник нажатий для индикатора "печатает".
type TypingSignal interface {
	Keystroke()
	Flush()
}

// Draft - то, что видно в поле ввода. Вложение максимум одно.
type Draft struct {
	Text         string
	ImageDataURL string
	AudioDataURL string
	Gif          *domain.Gif
}

func (d Draft) hasAttachment() bool {
	return d.ImageDataURL != "" || d.AudioDataURL != "" || d.Gif != nil
}

func (d Draft) IsEmpty() bool {
	return strings.TrimSpace(d.Text) == "" && !d.hasAttachment()
}

// Composer очищает поле сразу, а запись выполняет в фоне.
type Composer struct {
	backend Backend
	state   *state.ClientState
	typing  TypingSignal
	toaster Toaster
	timeout time.Duration
	log     logger.Logger

	mu      sync.Mutex
	draft   Draft
	sending bool
	wg      sync.WaitGroup
}

func New(backend Backend, st *state.ClientState, typing TypingSignal, toaster Toaster, log logger.Logger) *Composer {
	return &Composer{
		backend: backend,
		state:   st,
		typing:  typing,
		toaster: toaster,
		timeout: time.Minute,
		log:     log,
	}
}

func (c *Composer) Draft() Draft {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.draft
}

func (c *Composer) Sending() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sending
}

// SetText вызывается на каждое изменение текста.
func (c *Composer) SetText(text string) {
	c.mu.Lock()
	c.draft.Text = text
	c.mu.Unlock()

	if c.typing != nil {
		c.typing.Keystroke()
	}
}

func (c *Composer) AttachImage(dataURL string) {
	c.attach(Draft{ImageDataURL: dataURL})
}

func (c *Composer) AttachAudio(dataURL string) {
	c.attach(Draft{AudioDataURL: dataURL})
}

func (c *Composer) AttachGif(gif *domain.Gif) {
	c.attach(Draft{Gif: gif})
}

func (c *Composer) ClearAttachment() {
	c.attach(Draft{})
}

func (c *Composer) attach(a Draft) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.draft.ImageDataURL = a.ImageDataURL
	c.draft.AudioDataURL = a.AudioDataURL
	c.draft.Gif = a.Gif
}

// StartReply отменяет редактирование: одновременно активна только одна цель.
func (c *Composer) StartReply(m *domain.Message) {
	c.state.EditTarget.Set(nil)
	c.state.ReplyTarget.Set(m.Snapshot())
}

// StartEdit подставляет текст сообщения в поле.
func (c *Composer) StartEdit(m *domain.Message) {
	c.state.ReplyTarget.Set(nil)
	c.state.EditTarget.Set(m)

	c.mu.Lock()
	c.draft = Draft{Text: m.Message}
	c.mu.Unlock()
}

func (c *Composer) Cancel() {
	c.state.ReplyTarget.Set(nil)
	c.state.EditTarget.Set(nil)

	c.mu.Lock()
	c.draft = Draft{}
	c.mu.Unlock()
}

// Submit возвращает false, если отправлять нечего или предыдущая отправка еще идет.
func (c *Composer) Submit() bool {
	c.mu.Lock()
	if c.sending || c.draft.IsEmpty() {
		c.mu.Unlock()
		return false
	}
	payload := c.draft
	payload.Text = strings.TrimSpace(payload.Text)
	c.draft = Draft{}
	c.sending = true
	c.wg.Add(1)
	c.mu.Unlock()

	reply := c.state.ReplyTarget.Get()
	edit := c.state.EditTarget.Get()
	// цели сбрасываются сразу, независимо от исхода записи
	c.state.ReplyTarget.Set(nil)
	c.state.EditTarget.Set(nil)

	go func() {
		defer c.wg.Done()
		defer func() {
			c.mu.Lock()
			c.sending = false
			c.mu.Unlock()
		}()

		if c.typing != nil {
			c.typing.Flush()
		}

		ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
		defer cancel()

		if edit != nil {
			c.edit(ctx, edit, payload)
			return
		}
		c.send(ctx, payload, reply)
	}()
	return true
}

// Wait дожидается фоновых записей.
func (c *Composer) Wait() {
	c.wg.Wait()
}

func (c *Composer) edit(ctx context.Context, target *domain.Message, payload Draft) {
	if payload.Text == "" {
		c.toaster.Error("Message cannot be empty")
		return
	}
	if _, err := c.backend.Edit(ctx, target.ID, payload.Text); err != nil {
		c.log.Warn("Failed to edit message", "message_id", target.ID, "error", err)
		c.toaster.Error("Failed to edit message")
	}
}

func (c *Composer) send(ctx context.Context, payload Draft, reply *domain.ReplySnapshot) {
	in := domain.NewMessage{
		Message: payload.Text,
		Gif:     payload.Gif,
		ReplyTo: reply,
	}

	var err error
	switch {
	case payload.ImageDataURL != "":
		in.Asset, err = c.backend.UploadImage(ctx, payload.ImageDataURL)
		if err != nil {
			c.log.Warn("Failed to upload image", "error", err)
			c.toaster.Error("Failed to upload image")
			return
		}
	case payload.AudioDataURL != "":
		in.Audio, err = c.backend.UploadAudio(ctx, payload.AudioDataURL)
		if err != nil {
			c.log.Warn("Failed to upload voice message", "error", err)
			c.toaster.Error("Failed to upload voice message")
			return
		}
	}

	if _, err := c.backend.Send(ctx, in); err != nil {
		c.log.Warn("Failed to send message", "error", err)
		c.toaster.Error("Failed to send message")
	}
}
