package prompts

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// Create stores a new custom prompt. When the prompt is flagged as the system
// prompt, any previous system prompt for the same user loses the flag first.
func (s *Service) Create(ctx context.Context, userID uuid.UUID, req *CreatePromptRequest) (*CustomPrompt, error) {
	if req.SystemPrompt {
		if err := s.repo.ClearSystemFlag(ctx, userID); err != nil {
			return nil, err
		}
	}

	now := time.Now()
	p := &CustomPrompt{
		ID:           uuid.New(),
		UserID:       userID,
		Name:         req.Name,
		Content:      req.Content,
		Description:  req.Description,
		SystemPrompt: req.SystemPrompt,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.repo.Create(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

func (s *Service) List(ctx context.Context, userID *uuid.UUID) ([]CustomPrompt, error) {
	return s.repo.List(ctx, userID)
}

func (s *Service) Delete(ctx context.Context, id uuid.UUID) (bool, error) {
	return s.repo.Delete(ctx, id)
}

// ResolveSystemPrompt returns the content to prepend to the user's
// completion requests. Lookup failures fall back to the default so a chat is
// never blocked on prompt resolution.
func (s *Service) ResolveSystemPrompt(ctx context.Context, userID uuid.UUID) string {
	p, err := s.repo.GetSystemPrompt(ctx, userID)
	if err != nil {
		slog.Warn("resolving system prompt, using default", "error", err, "user_id", userID)
		return DefaultSystemPrompt
	}
	if p == nil {
		return DefaultSystemPrompt
	}
	return p.Content
}
