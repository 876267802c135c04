package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"just_us/internal/domain"
	apperrors "just_us/pkg/errors"
	"just_us/pkg/logger"
)

type UserRepository interface {
	Upsert(ctx context.Context, user *domain.User) (*domain.User, error)
	GetByID(ctx context.Context, id string) (*domain.User, error)
	List(ctx context.Context) ([]*domain.User, error)
	SetTyping(ctx context.Context, id string, typing bool, at time.Time) error
	ListTyping(ctx context.Context, since time.Time) ([]*domain.User, error)
	SetSubscriptions(ctx context.Context, id string, subscription *domain.PushSubscription, subscriptions []domain.PushSubscription) error
	ClearSubscriptions(ctx context.Context, id string) error
	TouchLastOnline(ctx context.Context, id string, at time.Time) error
}

const userColumns = `id, username, email, typing, typing_at, subscription, subscriptions,
	last_online_at, created_at, updated_at`

type userRepository struct {
	db    *pgxpool.Pool
	table string
	log   logger.Logger
}

func NewUserRepository(db *pgxpool.Pool, table string, log logger.Logger) UserRepository {
	return &userRepository{db: db, table: pgx.Identifier{table}.Sanitize(), log: log}
}

// Upsert создает пользователя при первом входе и обновляет имя/почту при последующих.
// Поля presence и подписки не трогаются.
func (r *userRepository) Upsert(ctx context.Context, user *domain.User) (*domain.User, error) {
	query := fmt.Sprintf(`
		INSERT INTO %s (id, username, email, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $4)
		ON CONFLICT (id) DO UPDATE
		SET username = EXCLUDED.username, email = EXCLUDED.email, updated_at = EXCLUDED.updated_at
		RETURNING %s
	`, r.table, userColumns)

	saved, err := scanUser(r.db.QueryRow(ctx, query, user.ID, user.Username, user.Email, time.Now().UTC()))
	if err != nil {
		r.log.Error("Failed to upsert user", "error", err, "user_id", user.ID)
		return nil, fmt.Errorf("upsert user: %w", err)
	}
	return saved, nil
}

func (r *userRepository) GetByID(ctx context.Context, id string) (*domain.User, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE id = $1`, userColumns, r.table)

	user, err := scanUser(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrUserNotFound
		}
		r.log.Error("Failed to get user", "error", err, "user_id", id)
		return nil, fmt.Errorf("get user: %w", err)
	}
	return user, nil
}

func (r *userRepository) List(ctx context.Context) ([]*domain.User, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s ORDER BY created_at, id`, userColumns, r.table)
	return r.list(ctx, "list users", query)
}

func (r *userRepository) SetTyping(ctx context.Context, id string, typing bool, at time.Time) error {
	var typingAt *time.Time
	if typing {
		typingAt = &at
	}
	query := fmt.Sprintf(`UPDATE %s SET typing = $2, typing_at = $3 WHERE id = $1`, r.table)
	return r.exec(ctx, "set typing", query, id, typing, typingAt)
}

// ListTyping возвращает тех, кто печатает и обновлял флаг не раньше since.
func (r *userRepository) ListTyping(ctx context.Context, since time.Time) ([]*domain.User, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM %s
		WHERE typing AND typing_at >= $1
		ORDER BY typing_at
	`, userColumns, r.table)
	return r.list(ctx, "list typing users", query, since)
}

func (r *userRepository) SetSubscriptions(ctx context.Context, id string, subscription *domain.PushSubscription, subscriptions []domain.PushSubscription) error {
	single, err := toJSONB(subscription)
	if err != nil {
		return err
	}
	var many []byte
	if subscriptions != nil {
		if many, err = json.Marshal(subscriptions); err != nil {
			return err
		}
	}
	query := fmt.Sprintf(`
		UPDATE %s SET subscription = $2, subscriptions = $3, updated_at = NOW()
		WHERE id = $1
	`, r.table)
	return r.exec(ctx, "set subscriptions", query, id, single, many)
}

// ClearSubscriptions удаляет только массив subscriptions, одиночное поле остается.
func (r *userRepository) ClearSubscriptions(ctx context.Context, id string) error {
	query := fmt.Sprintf(`UPDATE %s SET subscriptions = NULL, updated_at = NOW() WHERE id = $1`, r.table)
	return r.exec(ctx, "clear subscriptions", query, id)
}

func (r *userRepository) TouchLastOnline(ctx context.Context, id string, at time.Time) error {
	query := fmt.Sprintf(`UPDATE %s SET last_online_at = $2 WHERE id = $1`, r.table)
	return r.exec(ctx, "touch last online", query, id, at)
}

func (r *userRepository) exec(ctx context.Context, op, query string, args ...interface{}) error {
	tag, err := r.db.Exec(ctx, query, args...)
	if err != nil {
		r.log.Error("Failed to "+op, "error", err)
		return fmt.Errorf("%s: %w", op, err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.ErrUserNotFound
	}
	return nil
}

func (r *userRepository) list(ctx context.Context, op, query string, args ...interface{}) ([]*domain.User, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		r.log.Error("Failed to "+op, "error", err)
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	var users []*domain.User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			r.log.Error("Failed to scan user", "error", err)
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		users = append(users, user)
	}
	return users, rows.Err()
}

func scanUser(row pgx.Row) (*domain.User, error) {
	u := &domain.User{}
	var single, many []byte

	err := row.Scan(
		&u.ID, &u.Username, &u.Email, &u.Typing, &u.TypingAt, &single, &many,
		&u.LastOnlineAt, &u.CreatedAt, &u.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if u.Subscription, err = fromJSONB[domain.PushSubscription](single); err != nil {
		return nil, err
	}
	if len(many) > 0 && string(many) != "null" {
		if err := json.Unmarshal(many, &u.Subscriptions); err != nil {
			return nil, fmt.Errorf("unmarshal subscriptions: %w", err)
		}
	}
	return u, nil
}
