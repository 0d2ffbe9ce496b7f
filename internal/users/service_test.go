package users

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRepo struct {
	users  map[uuid.UUID]*User
	limits map[uuid.UUID]int
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		users:  make(map[uuid.UUID]*User),
		limits: make(map[uuid.UUID]int),
	}
}

func (f *fakeRepo) Create(_ context.Context, u *User) error {
	cp := *u
	f.users[u.ID] = &cp
	return nil
}

func (f *fakeRepo) GetByID(_ context.Context, id uuid.UUID) (*User, error) {
	u, ok := f.users[id]
	if !ok {
		return nil, nil
	}
	cp := *u
	return &cp, nil
}

func (f *fakeRepo) GetByEmail(_ context.Context, email string) (*User, error) {
	for _, u := range f.users {
		if u.Email == email {
			cp := *u
			return &cp, nil
		}
	}
	return nil, nil
}

func (f *fakeRepo) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	u, _ := f.GetByEmail(ctx, email)
	return u != nil, nil
}

func (f *fakeRepo) List(_ context.Context, _ ListUsersParams) ([]User, int64, error) {
	var out []User
	for _, u := range f.users {
		out = append(out, *u)
	}
	return out, int64(len(out)), nil
}

func (f *fakeRepo) UpdateRole(_ context.Context, id uuid.UUID, role string) (*User, error) {
	u, ok := f.users[id]
	if !ok {
		return nil, nil
	}
	u.Role = role
	cp := *u
	return &cp, nil
}

func (f *fakeRepo) GetLimits(_ context.Context, id uuid.UUID) (*Limits, error) {
	limit, ok := f.limits[id]
	if !ok {
		return nil, nil
	}
	return &Limits{UserID: id, MaxTokensPerDay: limit}, nil
}

func (f *fakeRepo) UpsertTokenLimit(_ context.Context, id uuid.UUID, maxTokensPerDay int) error {
	f.limits[id] = maxTokensPerDay
	return nil
}

func TestCreate_DefaultsToUserRole(t *testing.T) {
	svc := NewService(newFakeRepo())

	u, err := svc.Create(context.Background(), "new@example.com", "hash")
	require.NoError(t, err)
	assert.Equal(t, RoleUser, u.Role)
}

func TestUpdate_RequiresAField(t *testing.T) {
	svc := NewService(newFakeRepo())

	_, err := svc.Update(context.Background(), uuid.New(), &UpdateUserRequest{})
	assert.ErrorIs(t, err, ErrNoFieldsToUpdate)
}

func TestUpdate_MissingUser(t *testing.T) {
	svc := NewService(newFakeRepo())
	role := RoleAdmin

	u, err := svc.Update(context.Background(), uuid.New(), &UpdateUserRequest{Role: &role})
	require.NoError(t, err)
	assert.Nil(t, u)
}

func TestUpdate_RoleAndTokenLimit(t *testing.T) {
	repo := newFakeRepo()
	svc := NewService(repo)
	ctx := context.Background()

	created, err := svc.Create(ctx, "promote@example.com", "hash")
	require.NoError(t, err)

	role := RoleAdmin
	limit := 50000
	updated, err := svc.Update(ctx, created.ID, &UpdateUserRequest{Role: &role, TokenLimit: &limit})
	require.NoError(t, err)
	require.NotNil(t, updated)
	assert.Equal(t, RoleAdmin, updated.Role)

	got, err := svc.TokenLimit(ctx, created.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, 50000, *got)
}

func TestTokenLimit_NilWithoutOverride(t *testing.T) {
	svc := NewService(newFakeRepo())

	got, err := svc.TokenLimit(context.Background(), uuid.New())
	require.NoError(t, err)
	assert.Nil(t, got)
}
