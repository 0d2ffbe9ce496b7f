package chat

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type Repository interface {
	CreateChat(ctx context.Context, c *Chat) error
	GetChat(ctx context.Context, id uuid.UUID) (*Chat, error)
	ListByUser(ctx context.Context, userID uuid.UUID, params ListChatsParams) ([]Chat, int64, error)
	UpdateVisibility(ctx context.Context, id uuid.UUID, visibility string) error
	DeleteChat(ctx context.Context, id uuid.UUID) error
	InsertMessage(ctx context.Context, m *Message) error
	ListMessages(ctx context.Context, chatID uuid.UUID) ([]Message, error)
}

type postgresRepository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) Repository {
	return &postgresRepository{pool: pool}
}

func (r *postgresRepository) CreateChat(ctx context.Context, c *Chat) error {
	query := `
		INSERT INTO chats (id, user_id, title, visibility, created_at)
		VALUES ($1, $2, $3, $4, $5)`

	_, err := r.pool.Exec(ctx, query, c.ID, c.UserID, c.Title, c.Visibility, c.CreatedAt)
	if err != nil {
		return fmt.Errorf("creating chat: %w", err)
	}
	return nil
}

func (r *postgresRepository) GetChat(ctx context.Context, id uuid.UUID) (*Chat, error) {
	query := `
		SELECT id, user_id, title, visibility, created_at
		FROM chats WHERE id = $1`

	c := &Chat{}
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&c.ID, &c.UserID, &c.Title, &c.Visibility, &c.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("getting chat: %w", err)
	}
	return c, nil
}

func (r *postgresRepository) ListByUser(ctx context.Context, userID uuid.UUID, params ListChatsParams) ([]Chat, int64, error) {
	var total int64
	countQuery := `SELECT COUNT(*) FROM chats WHERE user_id = $1`
	if err := r.pool.QueryRow(ctx, countQuery, userID).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("counting chats: %w", err)
	}

	query := `
		SELECT id, user_id, title, visibility, created_at
		FROM chats
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3`

	rows, err := r.pool.Query(ctx, query, userID, params.PageSize, params.Offset())
	if err != nil {
		return nil, 0, fmt.Errorf("listing chats: %w", err)
	}
	defer rows.Close()

	var out []Chat
	for rows.Next() {
		var c Chat
		if err := rows.Scan(&c.ID, &c.UserID, &c.Title, &c.Visibility, &c.CreatedAt); err != nil {
			return nil, 0, fmt.Errorf("scanning chat: %w", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterating chats: %w", err)
	}
	return out, total, nil
}

func (r *postgresRepository) UpdateVisibility(ctx context.Context, id uuid.UUID, visibility string) error {
	query := `UPDATE chats SET visibility = $2 WHERE id = $1`

	_, err := r.pool.Exec(ctx, query, id, visibility)
	if err != nil {
		return fmt.Errorf("updating chat visibility: %w", err)
	}
	return nil
}

// DeleteChat removes the chat's messages first, then the chat. Usage ledger
// rows referencing the chat are kept.
func (r *postgresRepository) DeleteChat(ctx context.Context, id uuid.UUID) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning delete transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM messages WHERE chat_id = $1`, id); err != nil {
		return fmt.Errorf("deleting chat messages: %w", err)
	}
	if _, err := tx.Exec(ctx, `DELETE FROM chats WHERE id = $1`, id); err != nil {
		return fmt.Errorf("deleting chat: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing delete transaction: %w", err)
	}
	return nil
}

func (r *postgresRepository) InsertMessage(ctx context.Context, m *Message) error {
	query := `
		INSERT INTO messages (id, chat_id, role, parts, attachments, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`

	_, err := r.pool.Exec(ctx, query, m.ID, m.ChatID, m.Role, m.Parts, m.Attachments, m.CreatedAt)
	if err != nil {
		return fmt.Errorf("inserting message: %w", err)
	}
	return nil
}

func (r *postgresRepository) ListMessages(ctx context.Context, chatID uuid.UUID) ([]Message, error) {
	query := `
		SELECT id, chat_id, role, parts, attachments, created_at
		FROM messages
		WHERE chat_id = $1
		ORDER BY created_at ASC`

	rows, err := r.pool.Query(ctx, query, chatID)
	if err != nil {
		return nil, fmt.Errorf("listing messages: %w", err)
	}
	defer rows.Close()

	var out []Message
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.ID, &m.ChatID, &m.Role, &m.Parts, &m.Attachments, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning message: %w", err)
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating messages: %w", err)
	}
	return out, nil
}
