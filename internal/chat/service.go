package chat

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrNotOwner is returned when a caller operates on a chat owned by another
// user.
var ErrNotOwner = errors.New("chat belongs to another user")

type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// GetOrCreate loads the chat with the given ID, creating it (titled from the
// caller's first message) when it does not exist. An existing chat owned by a
// different user yields ErrNotOwner.
func (s *Service) GetOrCreate(ctx context.Context, chatID, userID uuid.UUID, firstMessage string) (*Chat, error) {
	existing, err := s.repo.GetChat(ctx, chatID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		if existing.UserID != userID {
			return nil, ErrNotOwner
		}
		return existing, nil
	}

	c := &Chat{
		ID:         chatID,
		UserID:     userID,
		Title:      TitleFromMessage(firstMessage),
		Visibility: VisibilityPrivate,
		CreatedAt:  time.Now(),
	}
	if err := s.repo.CreateChat(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

func (s *Service) List(ctx context.Context, userID uuid.UUID, params ListChatsParams) ([]Chat, int64, error) {
	return s.repo.ListByUser(ctx, userID, params)
}

// History returns the chat's messages. Private chats are only readable by
// their owner; public chats by anyone. Returns (nil, nil) when the chat does
// not exist.
func (s *Service) History(ctx context.Context, chatID, userID uuid.UUID) ([]Message, error) {
	c, err := s.repo.GetChat(ctx, chatID)
	if err != nil {
		return nil, err
	}
	if c == nil {
		return nil, nil
	}
	if c.Visibility != VisibilityPublic && c.UserID != userID {
		return nil, ErrNotOwner
	}

	messages, err := s.repo.ListMessages(ctx, chatID)
	if err != nil {
		return nil, err
	}
	if messages == nil {
		messages = []Message{}
	}
	return messages, nil
}

// Delete removes the chat and its messages. Returns (false, nil) when the
// chat does not exist.
func (s *Service) Delete(ctx context.Context, chatID, userID uuid.UUID) (bool, error) {
	c, err := s.repo.GetChat(ctx, chatID)
	if err != nil {
		return false, err
	}
	if c == nil {
		return false, nil
	}
	if c.UserID != userID {
		return false, ErrNotOwner
	}
	if err := s.repo.DeleteChat(ctx, chatID); err != nil {
		return false, err
	}
	return true, nil
}

// SetVisibility flips a chat between private and public. Owner only.
func (s *Service) SetVisibility(ctx context.Context, chatID, userID uuid.UUID, visibility string) (bool, error) {
	c, err := s.repo.GetChat(ctx, chatID)
	if err != nil {
		return false, err
	}
	if c == nil {
		return false, nil
	}
	if c.UserID != userID {
		return false, ErrNotOwner
	}
	if err := s.repo.UpdateVisibility(ctx, chatID, visibility); err != nil {
		return false, err
	}
	return true, nil
}

// AppendMessage persists one message. Parts defaults to an empty array and
// attachments to an empty object when the caller leaves them nil.
func (s *Service) AppendMessage(ctx context.Context, chatID uuid.UUID, role string, parts, attachments json.RawMessage) (*Message, error) {
	if parts == nil {
		parts = json.RawMessage(`[]`)
	}
	if attachments == nil {
		attachments = json.RawMessage(`[]`)
	}

	m := &Message{
		ID:          uuid.New(),
		ChatID:      chatID,
		Role:        role,
		Parts:       parts,
		Attachments: attachments,
		CreatedAt:   time.Now(),
	}
	if err := s.repo.InsertMessage(ctx, m); err != nil {
		return nil, err
	}
	return m, nil
}
