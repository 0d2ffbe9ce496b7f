package chat

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

const (
	VisibilityPrivate = "private"
	VisibilityPublic  = "public"
)

const titleMaxLength = 80

type Chat struct {
	ID         uuid.UUID `json:"id"`
	UserID     uuid.UUID `json:"user_id"`
	Title      string    `json:"title"`
	Visibility string    `json:"visibility"`
	CreatedAt  time.Time `json:"created_at"`
}

// Message stores its parts and attachments as raw JSON so the structure the
// client sent round-trips unchanged.
type Message struct {
	ID          uuid.UUID       `json:"id"`
	ChatID      uuid.UUID       `json:"chat_id"`
	Role        string          `json:"role"`
	Parts       json.RawMessage `json:"parts"`
	Attachments json.RawMessage `json:"attachments"`
	CreatedAt   time.Time       `json:"created_at"`
}

type UpdateVisibilityRequest struct {
	Visibility string `json:"visibility" validate:"required,oneof=private public"`
}

type ListChatsParams struct {
	Page     int
	PageSize int
}

func DefaultListParams() ListChatsParams {
	return ListChatsParams{Page: 1, PageSize: 20}
}

func (p ListChatsParams) Offset() int {
	return (p.Page - 1) * p.PageSize
}

// TitleFromMessage derives a chat title from the first user message,
// truncated on a rune boundary.
func TitleFromMessage(text string) string {
	runes := []rune(text)
	if len(runes) > titleMaxLength {
		return string(runes[:titleMaxLength])
	}
	if text == "" {
		return "New chat"
	}
	return text
}
