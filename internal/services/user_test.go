package services

import (
	"context"
	"testing"

	"github.com/brazeiro63/vovo-achados-portal/internal/store"
	"github.com/brazeiro63/vovo-achados-portal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeProfiles struct {
	profiles map[string]types.Profile
	lists    int
}

func (f *fakeProfiles) GetByID(_ context.Context, id string) (types.Profile, error) {
	p, ok := f.profiles[id]
	if !ok {
		return types.Profile{}, store.ErrNotFound
	}
	return p, nil
}

func (f *fakeProfiles) GetRole(_ context.Context, id string) (string, error) {
	p, err := f.GetByID(context.Background(), id)
	return p.Role, err
}

func (f *fakeProfiles) List(context.Context) ([]types.Profile, error) {
	f.lists++
	var out []types.Profile
	for _, p := range f.profiles {
		out = append(out, p)
	}
	return out, nil
}

func (f *fakeProfiles) Update(_ context.Context, p types.Profile) (types.Profile, error) {
	f.profiles[p.ID] = p
	return p, nil
}

func (f *fakeProfiles) SetRole(_ context.Context, id, role string) error {
	p, ok := f.profiles[id]
	if !ok {
		return store.ErrNotFound
	}
	p.Role = role
	f.profiles[id] = p
	return nil
}

type fakeRemover struct {
	deleted []string
}

func (r *fakeRemover) DeleteUser(_ context.Context, id string) error {
	r.deleted = append(r.deleted, id)
	return nil
}

func TestUserService_ListNormalizesRoles(t *testing.T) {
	repo := &fakeProfiles{profiles: map[string]types.Profile{
		"1": {ID: "1", Role: "Admin"},
		"2": {ID: "2", Role: ""},
		"3": {ID: "3", Role: "admin"},
	}}
	svc := NewUserService(repo, &fakeRemover{}, newQuery(t))

	profiles, err := svc.List(context.Background())
	require.NoError(t, err)
	roles := map[string]string{}
	for _, p := range profiles {
		roles[p.ID] = p.Role
	}
	assert.Equal(t, map[string]string{"1": "user", "2": "user", "3": "admin"}, roles)
}

func TestUserService_UpdateInvalidatesList(t *testing.T) {
	repo := &fakeProfiles{profiles: map[string]types.Profile{"1": {ID: "1", Role: "user"}}}
	svc := NewUserService(repo, &fakeRemover{}, newQuery(t))
	ctx := context.Background()

	_, err := svc.List(ctx)
	require.NoError(t, err)
	_, err = svc.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, repo.lists)

	updated, err := svc.Update(ctx, "1", ProfileUpdate{FullName: " Maria ", Role: "admin"})
	require.NoError(t, err)
	assert.Equal(t, "Maria", updated.FullName)

	_, err = svc.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, repo.lists)

	_, err = svc.Update(ctx, "1", ProfileUpdate{Role: "root"})
	assert.True(t, IsValidation(err))
}

func TestUserService_DeleteGoesThroughIdentity(t *testing.T) {
	remover := &fakeRemover{}
	svc := NewUserService(&fakeProfiles{profiles: map[string]types.Profile{}}, remover, nil)

	require.NoError(t, svc.Delete(context.Background(), "u1"))
	assert.Equal(t, []string{"u1"}, remover.deleted)
}
