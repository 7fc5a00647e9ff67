package services

import (
	"context"
	"strings"

	"github.com/brazeiro63/vovo-achados-portal/internal/cache"
	"github.com/brazeiro63/vovo-achados-portal/types"
)

// ProfileRepository defines persistence operations for user profiles.
type ProfileRepository interface {
	GetByID(ctx context.Context, id string) (types.Profile, error)
	GetRole(ctx context.Context, id string) (string, error)
	List(ctx context.Context) ([]types.Profile, error)
	Update(ctx context.Context, profile types.Profile) (types.Profile, error)
	SetRole(ctx context.Context, id, role string) error
}

// UserRemover deletes an identity together with its sessions.
type UserRemover interface {
	DeleteUser(ctx context.Context, userID string) error
}

// ProfileUpdate is the admin edit form of a user.
type ProfileUpdate struct {
	Username  string `json:"username"`
	FullName  string `json:"full_name"`
	AvatarURL string `json:"avatar_url"`
	Phone     string `json:"phone"`
	Role      string `json:"role"`
}

// UserService encapsulates user administration.
type UserService struct {
	repo       ProfileRepository
	identities UserRemover
	queries    *cache.Query
}

func NewUserService(repo ProfileRepository, identities UserRemover, queries *cache.Query) *UserService {
	return &UserService{repo: repo, identities: identities, queries: queries}
}

// List returns every profile with its role normalized.
func (s *UserService) List(ctx context.Context) ([]types.Profile, error) {
	return cache.Fetch(ctx, s.queries, KeyAdminUsers, func(ctx context.Context) ([]types.Profile, error) {
		profiles, err := s.repo.List(ctx)
		if err != nil {
			return nil, err
		}
		for i := range profiles {
			profiles[i].Role = types.NormalizeRole(profiles[i].Role)
		}
		return profiles, nil
	})
}

func (s *UserService) Get(ctx context.Context, id string) (types.Profile, error) {
	profile, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return types.Profile{}, err
	}
	profile.Role = types.NormalizeRole(profile.Role)
	return profile, nil
}

// GetRole returns the stored role untouched; callers normalize.
func (s *UserService) GetRole(ctx context.Context, id string) (string, error) {
	return s.repo.GetRole(ctx, id)
}

func (s *UserService) Update(ctx context.Context, id string, in ProfileUpdate) (types.Profile, error) {
	role := strings.TrimSpace(in.Role)
	if role != types.RoleUser && role != types.RoleAdmin {
		return types.Profile{}, invalid("Papel inválido: %s", in.Role)
	}

	profile, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return types.Profile{}, err
	}
	profile.Username = strings.TrimSpace(in.Username)
	profile.FullName = strings.TrimSpace(in.FullName)
	profile.AvatarURL = strings.TrimSpace(in.AvatarURL)
	profile.Phone = strings.TrimSpace(in.Phone)
	profile.Role = role

	updated, err := s.repo.Update(ctx, profile)
	if err != nil {
		return types.Profile{}, err
	}
	s.queries.Invalidate(ctx, KeyAdminUsers)
	return updated, nil
}

// SetRole promotes or demotes a user.
func (s *UserService) SetRole(ctx context.Context, id, role string) error {
	if role != types.RoleUser && role != types.RoleAdmin {
		return invalid("Papel inválido: %s", role)
	}
	if err := s.repo.SetRole(ctx, id, role); err != nil {
		return err
	}
	s.queries.Invalidate(ctx, KeyAdminUsers)
	return nil
}

// Delete removes the user, its profile and its sessions. Open sessions are
// notified as signed out.
func (s *UserService) Delete(ctx context.Context, id string) error {
	if err := s.identities.DeleteUser(ctx, id); err != nil {
		return err
	}
	s.queries.Invalidate(ctx, KeyAdminUsers)
	return nil
}
