package users

import (
	"time"

	"github.com/google/uuid"
)

const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

type User struct {
	ID           uuid.UUID `json:"id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	Role         string    `json:"role"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Limits is the per-user override row; users without one fall back to the
// global daily token budget.
type Limits struct {
	UserID           uuid.UUID `json:"user_id"`
	MaxTokensPerDay  int       `json:"max_tokens_per_day"`
	MaxConversations int       `json:"max_conversations"`
	UpdatedAt        time.Time `json:"updated_at"`
}

type UpdateUserRequest struct {
	Role       *string `json:"role" validate:"omitempty,oneof=user admin"`
	TokenLimit *int    `json:"token_limit" validate:"omitempty,gt=0"`
}

type ListUsersParams struct {
	Page     int
	PageSize int
}

func DefaultListParams() ListUsersParams {
	return ListUsersParams{
		Page:     1,
		PageSize: 20,
	}
}
