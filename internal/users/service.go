package users

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrNoFieldsToUpdate is returned by Update when the admin request carries
// neither a role nor a token limit.
var ErrNoFieldsToUpdate = errors.New("at least one field must be provided")

type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

func (s *Service) Create(ctx context.Context, email, passwordHash string) (*User, error) {
	now := time.Now()
	user := &User{
		ID:           uuid.New(),
		Email:        email,
		PasswordHash: passwordHash,
		Role:         RoleUser,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.repo.Create(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

func (s *Service) GetByEmail(ctx context.Context, email string) (*User, error) {
	return s.repo.GetByEmail(ctx, email)
}

func (s *Service) GetByID(ctx context.Context, id uuid.UUID) (*User, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *Service) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	return s.repo.ExistsByEmail(ctx, email)
}

func (s *Service) List(ctx context.Context, params ListUsersParams) ([]User, int64, error) {
	return s.repo.List(ctx, params)
}

// TokenLimit returns the user's daily token budget override, or nil if the
// user has none and the global default applies.
func (s *Service) TokenLimit(ctx context.Context, id uuid.UUID) (*int, error) {
	limits, err := s.repo.GetLimits(ctx, id)
	if err != nil {
		return nil, err
	}
	if limits == nil {
		return nil, nil
	}
	return &limits.MaxTokensPerDay, nil
}

// Update applies an admin's partial update. Returns (nil, nil) when the
// target user does not exist.
func (s *Service) Update(ctx context.Context, id uuid.UUID, req *UpdateUserRequest) (*User, error) {
	if req.Role == nil && req.TokenLimit == nil {
		return nil, ErrNoFieldsToUpdate
	}

	user, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, nil
	}

	if req.Role != nil {
		user, err = s.repo.UpdateRole(ctx, id, *req.Role)
		if err != nil {
			return nil, err
		}
		if user == nil {
			return nil, nil
		}
	}

	if req.TokenLimit != nil {
		if err := s.repo.UpsertTokenLimit(ctx, id, *req.TokenLimit); err != nil {
			return nil, err
		}
	}

	return user, nil
}
