package prompts

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type Repository interface {
	Create(ctx context.Context, p *CustomPrompt) error
	List(ctx context.Context, userID *uuid.UUID) ([]CustomPrompt, error)
	GetSystemPrompt(ctx context.Context, userID uuid.UUID) (*CustomPrompt, error)
	Delete(ctx context.Context, id uuid.UUID) (bool, error)
	ClearSystemFlag(ctx context.Context, userID uuid.UUID) error
}

type postgresRepository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) Repository {
	return &postgresRepository{pool: pool}
}

func (r *postgresRepository) Create(ctx context.Context, p *CustomPrompt) error {
	query := `
		INSERT INTO custom_prompts
			(id, user_id, name, content, description, system_prompt, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	_, err := r.pool.Exec(ctx, query,
		p.ID, p.UserID, p.Name, p.Content, p.Description, p.SystemPrompt,
		p.CreatedAt, p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("creating custom prompt: %w", err)
	}
	return nil
}

func (r *postgresRepository) List(ctx context.Context, userID *uuid.UUID) ([]CustomPrompt, error) {
	query := `
		SELECT id, user_id, name, content, COALESCE(description, ''),
		       system_prompt, created_at, updated_at
		FROM custom_prompts
		WHERE ($1::uuid IS NULL OR user_id = $1)
		ORDER BY created_at DESC`

	rows, err := r.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("listing custom prompts: %w", err)
	}
	defer rows.Close()

	var out []CustomPrompt
	for rows.Next() {
		var p CustomPrompt
		if err := rows.Scan(&p.ID, &p.UserID, &p.Name, &p.Content, &p.Description,
			&p.SystemPrompt, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scanning custom prompt: %w", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating custom prompts: %w", err)
	}
	return out, nil
}

// GetSystemPrompt returns the user's system-flagged prompt, or nil when none
// exists.
func (r *postgresRepository) GetSystemPrompt(ctx context.Context, userID uuid.UUID) (*CustomPrompt, error) {
	query := `
		SELECT id, user_id, name, content, COALESCE(description, ''),
		       system_prompt, created_at, updated_at
		FROM custom_prompts
		WHERE user_id = $1 AND system_prompt = true
		ORDER BY updated_at DESC
		LIMIT 1`

	p := &CustomPrompt{}
	err := r.pool.QueryRow(ctx, query, userID).Scan(
		&p.ID, &p.UserID, &p.Name, &p.Content, &p.Description,
		&p.SystemPrompt, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("getting system prompt: %w", err)
	}
	return p, nil
}

func (r *postgresRepository) Delete(ctx context.Context, id uuid.UUID) (bool, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM custom_prompts WHERE id = $1`, id)
	if err != nil {
		return false, fmt.Errorf("deleting custom prompt: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// ClearSystemFlag unsets system_prompt on all of the user's prompts so a new
// system prompt can take over.
func (r *postgresRepository) ClearSystemFlag(ctx context.Context, userID uuid.UUID) error {
	query := `UPDATE custom_prompts SET system_prompt = false, updated_at = NOW()
	          WHERE user_id = $1 AND system_prompt = true`

	if _, err := r.pool.Exec(ctx, query, userID); err != nil {
		return fmt.Errorf("clearing system prompt flag: %w", err)
	}
	return nil
}
