package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"just_us/internal/domain"
	apperrors "just_us/pkg/errors"
	"just_us/pkg/logger"
)

type MessageRepository interface {
	Create(ctx context.Context, message *domain.Message) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Message, error)
	ListLatest(ctx context.Context, limit int) ([]*domain.Message, error)
	ListBefore(ctx context.Context, cursor domain.MessageCursor, limit int) ([]*domain.Message, error)
	UpdateText(ctx context.Context, id uuid.UUID, text string, at time.Time) (*domain.Message, error)
	SetReaction(ctx context.Context, id uuid.UUID, reaction *domain.Reaction) (*domain.Message, error)
	SetDeleted(ctx context.Context, id uuid.UUID, deleted bool, at time.Time) (*domain.Message, error)
	MarkSeen(ctx context.Context, viewerID string) (int64, error)
}

const messageColumns = `id, sender_id, username, message, asset, audio, gif, reaction,
	is_seen, is_deleted, reply_to, created_at, edited_at, updated_at`

type messageRepository struct {
	db    *pgxpool.Pool
	table string
	log   logger.Logger
}

func NewMessageRepository(db *pgxpool.Pool, table string, log logger.Logger) MessageRepository {
	return &messageRepository{db: db, table: pgx.Identifier{table}.Sanitize(), log: log}
}

func (r *messageRepository) Create(ctx context.Context, message *domain.Message) error {
	asset, err := toJSONB(message.Asset)
	if err != nil {
		return err
	}
	audio, err := toJSONB(message.Audio)
	if err != nil {
		return err
	}
	gif, err := toJSONB(message.Gif)
	if err != nil {
		return err
	}
	reaction, err := toJSONB(message.Reaction)
	if err != nil {
		return err
	}
	replyTo, err := toJSONB(message.ReplyTo)
	if err != nil {
		return err
	}

	query := fmt.Sprintf(`
		INSERT INTO %s (id, sender_id, username, message, asset, audio, gif, reaction,
			is_seen, is_deleted, reply_to, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`, r.table)

	_, err = r.db.Exec(ctx, query,
		message.ID, message.SenderID, message.Username, message.Message, asset, audio, gif, reaction,
		message.IsSeen, message.IsDeleted, replyTo, message.Timestamp,
	)
	if err != nil {
		r.log.Error("Failed to create message", "error", err, "message_id", message.ID)
		return fmt.Errorf("create message: %w", err)
	}

	return nil
}

func (r *messageRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Message, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE id = $1`, messageColumns, r.table)
	return r.one(ctx, "get message", query, id)
}

// ListLatest возвращает последние limit сообщений по возрастанию времени.
func (r *messageRepository) ListLatest(ctx context.Context, limit int) ([]*domain.Message, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM %s
		ORDER BY created_at DESC, id DESC
		LIMIT $1
	`, messageColumns, r.table)

	messages, err := r.list(ctx, query, limit)
	if err != nil {
		r.log.Error("Failed to list latest messages", "error", err)
		return nil, fmt.Errorf("list latest messages: %w", err)
	}
	return messages, nil
}

// ListBefore возвращает страницу, которая заканчивается прямо перед курсором.
func (r *messageRepository) ListBefore(ctx context.Context, cursor domain.MessageCursor, limit int) ([]*domain.Message, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM %s
		WHERE (created_at, id) < ($1, $2)
		ORDER BY created_at DESC, id DESC
		LIMIT $3
	`, messageColumns, r.table)

	messages, err := r.list(ctx, query, cursor.Time(), cursor.ID, limit)
	if err != nil {
		r.log.Error("Failed to list older messages", "error", err)
		return nil, fmt.Errorf("list older messages: %w", err)
	}
	return messages, nil
}

func (r *messageRepository) UpdateText(ctx context.Context, id uuid.UUID, text string, at time.Time) (*domain.Message, error) {
	query := fmt.Sprintf(`
		UPDATE %s SET message = $2, edited_at = $3, updated_at = $3
		WHERE id = $1
		RETURNING %s
	`, r.table, messageColumns)
	return r.one(ctx, "update message", query, id, text, at)
}

// SetReaction перезаписывает единственный слот реакции. nil очищает его.
func (r *messageRepository) SetReaction(ctx context.Context, id uuid.UUID, reaction *domain.Reaction) (*domain.Message, error) {
	raw, err := toJSONB(reaction)
	if err != nil {
		return nil, err
	}
	query := fmt.Sprintf(`
		UPDATE %s SET reaction = $2
		WHERE id = $1
		RETURNING %s
	`, r.table, messageColumns)
	return r.one(ctx, "set reaction", query, id, raw)
}

func (r *messageRepository) SetDeleted(ctx context.Context, id uuid.UUID, deleted bool, at time.Time) (*domain.Message, error) {
	query := fmt.Sprintf(`
		UPDATE %s SET is_deleted = $2, updated_at = $3
		WHERE id = $1
		RETURNING %s
	`, r.table, messageColumns)
	return r.one(ctx, "set deleted", query, id, deleted, at)
}

// MarkSeen помечает прочитанными все чужие непрочитанные сообщения.
func (r *messageRepository) MarkSeen(ctx context.Context, viewerID string) (int64, error) {
	query := fmt.Sprintf(`UPDATE %s SET is_seen = TRUE WHERE sender_id <> $1 AND NOT is_seen`, r.table)

	tag, err := r.db.Exec(ctx, query, viewerID)
	if err != nil {
		r.log.Error("Failed to mark messages seen", "error", err, "viewer_id", viewerID)
		return 0, fmt.Errorf("mark seen: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (r *messageRepository) one(ctx context.Context, op, query string, args ...interface{}) (*domain.Message, error) {
	message, err := scanMessage(r.db.QueryRow(ctx, query, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrMessageNotFound
		}
		r.log.Error("Failed to "+op, "error", err)
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return message, nil
}

// list читает строки в порядке DESC и разворачивает их.
func (r *messageRepository) list(ctx context.Context, query string, args ...interface{}) ([]*domain.Message, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	messages := make([]*domain.Message, 0)
	for rows.Next() {
		message, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		messages = append(messages, message)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}
	return messages, nil
}

func scanMessage(row pgx.Row) (*domain.Message, error) {
	m := &domain.Message{}
	var asset, audio, gif, reaction, replyTo []byte

	err := row.Scan(
		&m.ID, &m.SenderID, &m.Username, &m.Message, &asset, &audio, &gif, &reaction,
		&m.IsSeen, &m.IsDeleted, &replyTo, &m.Timestamp, &m.EditedAt, &m.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if m.Asset, err = fromJSONB[domain.Upload](asset); err != nil {
		return nil, err
	}
	if m.Audio, err = fromJSONB[domain.Upload](audio); err != nil {
		return nil, err
	}
	if m.Gif, err = fromJSONB[domain.Gif](gif); err != nil {
		return nil, err
	}
	if m.Reaction, err = fromJSONB[domain.Reaction](reaction); err != nil {
		return nil, err
	}
	if m.ReplyTo, err = fromJSONB[domain.ReplySnapshot](replyTo); err != nil {
		return nil, err
	}
	m.Timestamp = m.Timestamp.UTC()
	return m, nil
}
