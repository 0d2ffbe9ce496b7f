package prompts

import (
	"time"

	"github.com/google/uuid"
)

// DefaultSystemPrompt is used when the user has no system-flagged custom
// prompt.
const DefaultSystemPrompt = "You are a friendly assistant. Keep your responses concise and helpful."

type CustomPrompt struct {
	ID           uuid.UUID `json:"id"`
	UserID       uuid.UUID `json:"user_id"`
	Name         string    `json:"name"`
	Content      string    `json:"content"`
	Description  string    `json:"description,omitempty"`
	SystemPrompt bool      `json:"system_prompt"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

type CreatePromptRequest struct {
	UserID       string `json:"user_id" validate:"required,uuid"`
	Name         string `json:"name" validate:"required,min=1,max=120"`
	Content      string `json:"content" validate:"required,min=1"`
	Description  string `json:"description" validate:"max=500"`
	SystemPrompt bool   `json:"system_prompt"`
}
